//go:generate go run go.uber.org/mock/mockgen -source=repository.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"context"
	"fmt"
	"log/slog"
)

// IMessageRepository is the append-only store of room logs.
type IMessageRepository interface {
	// Append assigns the message ID, room and creation time, then appends it to its room log.
	Append(ctx context.Context, message domain.Message) (domain.Message, error)
	// History returns the whole room log in insertion order, empty when the room is unknown.
	History(ctx context.Context, room domain.RoomKey) ([]domain.Message, error)
	Close() error
}

const (
	MemoryBackend = "memory"
	BadgerBackend = "badger"
)

// Open builds the repository selected by STORE_BACKEND.
func Open(backend string, log *slog.Logger) (IMessageRepository, error) {
	switch backend {
	case MemoryBackend:
		return NewMemoryMessageRepository(), nil
	case BadgerBackend:
		db, err := OpenInMemoryBadger()
		if err != nil {
			return nil, fmt.Errorf("database opening failed: %w", err)
		}
		return NewBadgerMessageRepository(db, log), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
