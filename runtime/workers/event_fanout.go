package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"time"
)

var _ contract.Worker = (*EventFanout)(nil)

// EventFanout broadcasts delivered events to the permanent in-process consumers
// (search index, metrics).
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability, or retries. Session delivery never goes through it: the router
// has already handed the event to every receiver before it lands here.
type EventFanout struct {
	log         *slog.Logger
	name        contract.WorkerName
	events      chan event.Event
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, events chan event.Event, sinkTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{
		log:         log,
		name:        "event_fanout",
		events:      events,
		sinks:       sinks,
		sinkTimeout: sinkTimeout,
	}
}

func (w *EventFanout) GetName() contract.WorkerName { return w.name }

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout One sink for each event, each bounded by the sink timeout
func (w *EventFanout) Fanout(ctx context.Context, evt event.Event) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Permanent sink failed", "sink", contract.SinkName(sink), "error", err)
		}
		cancel()
	}
}
