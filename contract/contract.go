//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	if named, ok := w.(interface{ GetName() WorkerName }); ok && named.GetName() != "" {
		return string(named.GetName())
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives events pushed by the router.
// Consume must never block the caller for long: a slow consumer drops instead.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// SinkName returns the type name of a sink, for logs.
func SinkName(s EventSink) string {
	if s == nil {
		return "NilSink"
	}
	t := reflect.TypeOf(s)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Session is one live, addressable subscription owned by the registry.
type Session struct {
	ID       uuid.UUID
	Identity string
	JoinedAt time.Time
	Sink     EventSink
	seq      uint64
}

func NewSession(identity string, sink EventSink, joinedAt time.Time, seq uint64) *Session {
	return &Session{
		ID:       uuid.New(),
		Identity: identity,
		JoinedAt: joinedAt,
		Sink:     sink,
		seq:      seq,
	}
}

// Seq is the registration order, used to break ties between equal join times.
func (s *Session) Seq() uint64 {
	return s.seq
}

// ISubscription is a connected client as seen by the transport.
type ISubscription interface {
	Identity() string
	Events() <-chan event.Event
	Close()
}

// PresenceHook receives the presence list and its sessions right after a
// registry change, before any reader can observe the change.
type PresenceHook func(list []domain.Presence, sessions []*Session)

type IRegistry interface {
	Register(identity string, sink EventSink, hook PresenceHook) (*Session, error)
	Deregister(session *Session) bool
	ListActive() []domain.Presence
	IsActive(identity string) bool
	Sessions() []*Session
	SessionsFor(identities ...string) []*Session
	Snapshot() ([]domain.Presence, []*Session)
}

// Moderator rewrites message bodies before they are stored.
type Moderator interface {
	Censor(original string) (string, []string)
}
