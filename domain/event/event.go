package event

import (
	"chat-relay/domain"
	"time"
)

type Type string

const (
	MessageType  Type = "message"
	PresenceType Type = "presence"
)

// Event is the envelope pushed on every session channel.
// Data is a domain.Message for MessageType and a []domain.Presence for PresenceType.
type Event struct {
	Type      Type      `json:"type"`
	Data      any       `json:"data"`
	CreatedAt time.Time `json:"-"`
}

func NewMessageEvent(message domain.Message) Event {
	return Event{
		Type:      MessageType,
		Data:      message,
		CreatedAt: time.Now().UTC(),
	}
}

func NewPresenceEvent(list []domain.Presence) Event {
	if list == nil {
		list = []domain.Presence{}
	}
	return Event{
		Type:      PresenceType,
		Data:      list,
		CreatedAt: time.Now().UTC(),
	}
}

// Message returns the message carried by a MessageType event.
func (e Event) Message() (domain.Message, bool) {
	m, ok := e.Data.(domain.Message)
	return m, ok && e.Type == MessageType
}

// Presence returns the presence list carried by a PresenceType event.
func (e Event) Presence() ([]domain.Presence, bool) {
	p, ok := e.Data.([]domain.Presence)
	return p, ok && e.Type == PresenceType
}
