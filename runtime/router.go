// Package runtime handles presence, message routing and the supervised workers behind them.
// It orchestrates the relay without containing the domain rules themselves.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
	"chat-relay/sink"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// RelayMetrics is what the router reports to the monitoring layer.
type RelayMetrics interface {
	workers.QueueObserver
	workers.ProcessObserver
	IncrDelivered()
	IncrDropped()
	IncrRejected()
	IncrCensored()
	IncrJoined()
	IncrLeft()
}

type RouterConfig struct {
	NumberOfWorkers    int
	BufferSize         int
	ConnectionBuffer   int
	MaxMessageLength   int
	DetectLanguage     bool
	SinkTimeout        time.Duration
	MetricInterval     time.Duration
	ProcessStatsWorker bool
}

// Router is the broadcast engine: it stores every message in its room log and
// pushes it to the sessions allowed to see it, and keeps presence announced.
//
// Messages are sharded by room key over a fixed set of delivery workers.
// A room always lands on the same shard, so the order in which a room's
// messages are pushed is the order in which they were appended.
type Router struct {
	log            *slog.Logger
	registry       contract.IRegistry
	repository     repositories.IMessageRepository
	moderator      contract.Moderator
	supervisor     contract.ISupervisor
	metrics        RelayMetrics
	cfg            RouterConfig
	shards         []chan workers.DeliveryJob
	fanout         chan event.Event
	permanentSinks []contract.EventSink

	// presenceMu serializes registry mutations with their announcement,
	// so presence lists are pushed in the order the registry changed.
	presenceMu sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
}

func NewRouter(log *slog.Logger,
	registry contract.IRegistry,
	repository repositories.IMessageRepository,
	moderator contract.Moderator,
	supervisor contract.ISupervisor,
	metrics RelayMetrics,
	cfg RouterConfig,
	permanentSinks ...contract.EventSink) *Router {
	if cfg.NumberOfWorkers <= 0 {
		cfg.NumberOfWorkers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	shards := make([]chan workers.DeliveryJob, cfg.NumberOfWorkers)
	for i := range shards {
		shards[i] = make(chan workers.DeliveryJob, cfg.BufferSize)
	}
	return &Router{
		log:            log,
		registry:       registry,
		repository:     repository,
		moderator:      moderator,
		supervisor:     supervisor,
		metrics:        metrics,
		cfg:            cfg,
		shards:         shards,
		fanout:         make(chan event.Event, cfg.BufferSize),
		permanentSinks: permanentSinks,
		done:           make(chan struct{}),
	}
}

// Start registers every worker to the supervisor and blocks until it stops.
func (r *Router) Start(ctx context.Context) error {
	var all []contract.Worker
	for i, shard := range r.shards {
		all = append(all, workers.NewDeliveryWorker(i, shard, r.deliver, r.log))
	}
	all = append(all, workers.NewEventFanout(r.log, r.fanout, r.cfg.SinkTimeout, r.permanentSinks...))

	if r.cfg.MetricInterval > 0 {
		channels := []workers.NamedChannel{{Name: "fanout", Channel: r.fanout}}
		for i, shard := range r.shards {
			channels = append(channels, workers.NamedChannel{Name: fmt.Sprintf("delivery_%d", i), Channel: shard})
		}
		all = append(all, workers.NewChannelCapacityWorker(r.log, channels, r.metrics, r.cfg.MetricInterval))
		if r.cfg.ProcessStatsWorker {
			all = append(all, workers.NewProcessStatsWorker(r.log, r.metrics, r.cfg.MetricInterval))
		}
	}

	r.supervisor.Add(all...)
	r.log.Info("Starting router and all supervised workers", "shards", len(r.shards))
	r.supervisor.Run(ctx)
	return nil
}

// Stop refuses every new operation and cancels the supervised workers.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		r.log.Info("Requesting router shutdown")
		close(r.done)
		r.supervisor.Stop()
	})
}

// DeliverMessage validates the command, then hands it to the shard owning its room
// and waits for the stored message.
// Once queued, a message is never cancelled: the caller's context only bounds the wait for a queue slot.
func (r *Router) DeliverMessage(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	if r.stopped() {
		return domain.Message{}, errors.ErrRouterStopped
	}
	if err := cmd.Validate(r.cfg.MaxMessageLength); err != nil {
		r.metrics.IncrRejected()
		return domain.Message{}, err
	}
	room, err := cmd.RoomKey()
	if err != nil {
		r.metrics.IncrRejected()
		return domain.Message{}, err
	}

	job := workers.NewDeliveryJob(cmd, room)
	select {
	case r.shardFor(room) <- job:
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	case <-r.done:
		return domain.Message{}, errors.ErrRouterStopped
	}

	select {
	case result := <-job.Reply:
		return result.Message, result.Err
	case <-r.done:
		return domain.Message{}, errors.ErrRouterStopped
	}
}

// AnnouncePresence pushes the current presence list to every active session.
func (r *Router) AnnouncePresence(ctx context.Context) {
	r.presenceMu.Lock()
	defer r.presenceMu.Unlock()
	r.announceLocked(ctx)
}

// Join registers the identity, then announces the new presence list.
// The joining session receives that list as its first event.
func (r *Router) Join(ctx context.Context, identity string, sink contract.EventSink) (*contract.Session, error) {
	if err := domain.ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if r.stopped() {
		return nil, errors.ErrRouterStopped
	}

	r.presenceMu.Lock()
	defer r.presenceMu.Unlock()
	// The list is pushed inside Register: a delivery worker cannot see the
	// new session before its sink holds the presence event.
	session, err := r.registry.Register(identity, sink, func(list []domain.Presence, sessions []*contract.Session) {
		r.push(ctx, sessions, event.NewPresenceEvent(list))
	})
	if err != nil {
		r.log.Debug("Registration refused", "identity", identity, "error", err)
		return nil, err
	}
	r.metrics.IncrJoined()
	r.log.Info("Session joined", "identity", identity, "session", session.ID)
	return session, nil
}

// Leave deregisters the session and announces the change.
// Leaving twice, or leaving with a stale session, announces nothing.
func (r *Router) Leave(ctx context.Context, session *contract.Session) {
	if session == nil {
		return
	}
	r.presenceMu.Lock()
	defer r.presenceMu.Unlock()
	if !r.registry.Deregister(session) {
		return
	}
	r.metrics.IncrLeft()
	r.log.Info("Session left", "identity", session.Identity, "session", session.ID)
	r.announceLocked(ctx)
}

// Subscribe opens a connection session for the identity.
func (r *Router) Subscribe(ctx context.Context, identity string) (*Subscription, error) {
	output := sink.NewSessionSink(identity, r.cfg.ConnectionBuffer)
	session, err := r.Join(ctx, identity, output)
	if err != nil {
		output.Close()
		return nil, err
	}
	return newSubscription(r, session, output), nil
}

func (r *Router) History(ctx context.Context, room domain.RoomKey) ([]domain.Message, error) {
	return r.repository.History(ctx, room)
}

func (r *Router) Presence() []domain.Presence {
	return r.registry.ListActive()
}

func (r *Router) IsActive(identity string) bool {
	return r.registry.IsActive(identity)
}

// deliver runs on the shard owning the job's room.
func (r *Router) deliver(ctx context.Context, job workers.DeliveryJob) (domain.Message, error) {
	message := domain.NewMessage(job.Command)
	if r.cfg.DetectLanguage {
		message.Lang = moderation.DetectLanguage(message.Body)
	}
	body, words := r.moderator.Censor(message.Body)
	if len(words) > 0 {
		r.metrics.IncrCensored()
		r.log.Debug("Message censored", "sender", message.Sender, "room", job.Room, "words", len(words))
	}
	message.Body = body
	message.CensoredWords = words

	stored, err := r.repository.Append(ctx, message)
	if err != nil {
		r.log.Error("Message not stored", "room", job.Room, "sender", message.Sender, "error", err)
		return domain.Message{}, err
	}

	evt := event.NewMessageEvent(stored)
	r.push(ctx, r.receivers(stored), evt)

	select {
	case r.fanout <- evt:
	default:
		r.log.Debug("Fanout channel full, permanent sinks skipped", "room", stored.Room)
	}
	return stored, nil
}

// receivers is every active session for the public room, sender and target for a private one.
func (r *Router) receivers(message domain.Message) []*contract.Session {
	if !message.IsPrivate {
		return r.registry.Sessions()
	}
	return r.registry.SessionsFor(message.Sender, message.Target)
}

// push never stops on a failing sink: the drop is logged and counted.
func (r *Router) push(ctx context.Context, sessions []*contract.Session, evt event.Event) {
	for _, session := range sessions {
		if err := session.Sink.Consume(ctx, evt); err != nil {
			r.metrics.IncrDropped()
			r.log.Warn("Event dropped", "type", evt.Type, "identity", session.Identity, "error", err)
			continue
		}
		r.metrics.IncrDelivered()
	}
}

func (r *Router) announceLocked(ctx context.Context) {
	list, sessions := r.registry.Snapshot()
	r.push(ctx, sessions, event.NewPresenceEvent(list))
}

func (r *Router) shardFor(room domain.RoomKey) chan workers.DeliveryJob {
	return r.shards[xxhash.Sum64String(string(room))%uint64(len(r.shards))]
}

func (r *Router) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
