package sink

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"sync"
)

var _ contract.EventSink = (*SessionSink)(nil)

// SessionSink is the output channel of one connection.
// The router pushes into it, the transport drains Events().
// The buffer is bounded: when it is full the event is dropped so a stalled
// client never stalls the fan-out to the others.
type SessionSink struct {
	mu     sync.RWMutex
	owner  string
	events chan event.Event
	closed bool
}

func NewSessionSink(owner string, bufferSize int) *SessionSink {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &SessionSink{owner: owner, events: make(chan event.Event, bufferSize)}
}

// Consume is called by the router for each receiver.
// It never blocks: a closed or full channel yields ErrChannelUnavailable.
func (s *SessionSink) Consume(ctx context.Context, e event.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("%w: %s is closed", errors.ErrChannelUnavailable, s.owner)
	}
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w: %s buffer is full", errors.ErrChannelUnavailable, s.owner)
	}
}

// Events is drained by the transport owning the connection.
// The channel is closed by Close.
func (s *SessionSink) Events() <-chan event.Event {
	return s.events
}

// Close stops accepting events and closes the channel. Calling it twice is safe.
func (s *SessionSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *SessionSink) Len() int {
	return len(s.events)
}
