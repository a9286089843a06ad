package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var _ IMessageRepository = (*BadgerMessageRepository)(nil)

// BadgerMessageRepository stores room logs in BadgerDB.
// The database is opened in memory only: history lives as long as the process.
// A failed write flips the repository into the exhausted state, after which
// every Append is refused so the log is never left half written.
type BadgerMessageRepository struct {
	db        *badger.DB
	log       *slog.Logger
	mu        sync.Mutex
	sequences map[domain.RoomKey]*roomSequence
	exhausted atomic.Bool
	now       func() time.Time
}

type roomSequence struct {
	mu   sync.Mutex
	next uint64
}

// OpenInMemoryBadger opens a BadgerDB instance that never touches the disk.
func OpenInMemoryBadger() (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.WARNING))
}

func NewBadgerMessageRepository(db *badger.DB, log *slog.Logger) *BadgerMessageRepository {
	return &BadgerMessageRepository{
		db:        db,
		log:       log,
		sequences: make(map[domain.RoomKey]*roomSequence),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Append persists a message in BadgerDB.
// The key is formatted as "msg:{room}\x00{sequence_padded}":
//  1. The NUL terminator cannot appear in a room key, so a prefix scan never
//     leaks another room whose key starts with the same characters.
//  2. The 20-digit zero padded per-room sequence keeps lexicographical order
//     equal to insertion order, even when two messages share a timestamp.
func (m *BadgerMessageRepository) Append(_ context.Context, message domain.Message) (domain.Message, error) {
	if m.exhausted.Load() {
		return domain.Message{}, errors.ErrStoreExhausted
	}
	room, err := domain.ResolveRoomKey(message.Sender, message.Target, message.IsPrivate)
	if err != nil {
		return domain.Message{}, err
	}
	seq := m.sequenceFor(room)

	seq.mu.Lock()
	defer seq.mu.Unlock()
	message.ID = uuid.New()
	message.Room = room
	message.CreatedAt = m.now()

	key := messageKey(room, seq.next)
	value := encodeMessage(message)
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		m.exhausted.Store(true)
		m.log.Error("Message store refused a write, no further message will be accepted",
			"room", room, "error", err)
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreExhausted, err)
	}
	seq.next++
	return message, nil
}

// History retrieves messages for a room using a prefix scan.
// Thanks to the padded sequence in the key, messages come back in insertion order.
func (m *BadgerMessageRepository) History(_ context.Context, room domain.RoomKey) ([]domain.Message, error) {
	messages := []domain.Message{}
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := roomPrefix(room)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				message, err := decodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (m *BadgerMessageRepository) Close() error {
	m.log.Info("Closing BadgerDB...")
	return m.db.Close()
}

func (m *BadgerMessageRepository) sequenceFor(room domain.RoomKey) *roomSequence {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq, ok := m.sequences[room]
	if !ok {
		seq = &roomSequence{}
		m.sequences[room] = seq
	}
	return seq
}

func roomPrefix(room domain.RoomKey) []byte {
	return []byte("msg:" + string(room) + "\x00")
}

func messageKey(room domain.RoomKey, seq uint64) []byte {
	return fmt.Appendf(roomPrefix(room), "%020d", seq)
}
