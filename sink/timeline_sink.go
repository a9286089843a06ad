package sink

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"context"
	"sync"
)

var _ contract.EventSink = (*Timeline)(nil)

// Timeline holds the latest delivered messages, most recent first.
type Timeline struct {
	mu      sync.RWMutex
	size    int
	entries []observability.ActivityEntry
}

func NewTimeline(size int) *Timeline {
	if size <= 0 {
		size = 1
	}
	return &Timeline{size: size}
}

func (t *Timeline) Consume(_ context.Context, e event.Event) error {
	message, ok := e.Message()
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append([]observability.ActivityEntry{fromMessage(message)}, t.entries...)
	if len(t.entries) > t.size {
		t.entries = t.entries[:t.size]
	}
	return nil
}

func (t *Timeline) Recent() []observability.ActivityEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]observability.ActivityEntry{}, t.entries...)
}

func fromMessage(message domain.Message) observability.ActivityEntry {
	return observability.ActivityEntry{
		Room:      string(message.Room),
		Sender:    message.Sender,
		IsPrivate: message.IsPrivate,
		CreatedAt: message.CreatedAt,
	}
}
