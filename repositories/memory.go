package repositories

import (
	"chat-relay/domain"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ IMessageRepository = (*MemoryMessageRepository)(nil)

// MemoryMessageRepository keeps every room log in process memory.
// Each room has its own lock: appending to one room never waits on another,
// the outer lock only guards the creation of new rooms.
// Logs are never evicted.
type MemoryMessageRepository struct {
	mu    sync.RWMutex
	rooms map[domain.RoomKey]*roomLog
	now   func() time.Time
}

type roomLog struct {
	mu       sync.RWMutex
	messages []domain.Message
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		rooms: make(map[domain.RoomKey]*roomLog),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryMessageRepository) Append(_ context.Context, message domain.Message) (domain.Message, error) {
	room, err := domain.ResolveRoomKey(message.Sender, message.Target, message.IsPrivate)
	if err != nil {
		return domain.Message{}, err
	}
	log := m.roomFor(room)

	log.mu.Lock()
	defer log.mu.Unlock()
	message.ID = uuid.New()
	message.Room = room
	message.CreatedAt = m.now()
	message.CensoredWords = slices.Clone(message.CensoredWords)
	log.messages = append(log.messages, message)
	return message, nil
}

func (m *MemoryMessageRepository) History(_ context.Context, room domain.RoomKey) ([]domain.Message, error) {
	m.mu.RLock()
	log, ok := m.rooms[room]
	m.mu.RUnlock()
	if !ok {
		return []domain.Message{}, nil
	}

	log.mu.RLock()
	defer log.mu.RUnlock()
	return slices.Clone(log.messages), nil
}

func (m *MemoryMessageRepository) Close() error {
	return nil
}

func (m *MemoryMessageRepository) roomFor(room domain.RoomKey) *roomLog {
	m.mu.RLock()
	log, ok := m.rooms[room]
	m.mu.RUnlock()
	if ok {
		return log
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if log, ok = m.rooms[room]; ok {
		return log
	}
	log = &roomLog{}
	m.rooms[room] = log
	return log
}
