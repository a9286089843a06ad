// Package domain contains core concepts of the chat relay.
// This file defines Message values and related rules.
// Messages are immutable once the store has accepted them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event.
// ID, Room and CreatedAt are assigned by the message store.
type Message struct {
	ID            uuid.UUID `json:"id"`
	Body          string    `json:"body"`
	Sender        string    `json:"sender"`
	Target        string    `json:"target"`
	IsPrivate     bool      `json:"isPrivate"`
	Room          RoomKey   `json:"room"`
	Lang          string    `json:"lang,omitempty"`
	CensoredWords []string  `json:"censoredWords,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewMessage builds an unstored message from a post command.
// Public messages always carry the public target.
func NewMessage(cmd PostMessageCommand) Message {
	target := cmd.Target
	if !cmd.IsPrivate {
		target = string(PublicRoom)
	}
	return Message{
		Body:      cmd.Body,
		Sender:    cmd.Sender,
		Target:    target,
		IsPrivate: cmd.IsPrivate,
	}
}
