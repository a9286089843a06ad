package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

// Registry tracks the currently connected identities and their sinks.
// A single RWMutex serializes mutations against reads, so no caller can see
// a session both present and absent at the same time.
// An identity holds at most one session: a second Register is rejected, the
// existing session is never evicted.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*contract.Session // map identity -> Session
	seq      uint64
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*contract.Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register adds a session for identity.
// It fails with ErrDuplicateIdentity while another session holds the identity.
// A non nil hook runs under the write lock with the new presence list, so
// whatever it pushes reaches the new sink before any Sessions read returns it.
func (r *Registry) Register(identity string, sink contract.EventSink, hook contract.PresenceHook) (*contract.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[identity]; ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrDuplicateIdentity, identity)
	}
	r.seq++
	session := contract.NewSession(identity, sink, r.now(), r.seq)
	r.sessions[identity] = session
	if hook != nil {
		ordered := r.orderedLocked()
		hook(toPresence(ordered), ordered)
	}
	return session, nil
}

// Deregister removes the session and reports whether anything changed.
// Removing an already removed session is a no-op, and a stale session never
// removes a newer session registered under the same identity.
func (r *Registry) Deregister(session *contract.Session) bool {
	if session == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[session.Identity]
	if !ok || current.ID != session.ID {
		return false
	}
	delete(r.sessions, session.Identity)
	return true
}

// ListActive returns a snapshot of the presence list ordered by join time.
func (r *Registry) ListActive() []domain.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return toPresence(r.orderedLocked())
}

func (r *Registry) IsActive(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[identity]
	return ok
}

// Sessions returns every active session ordered by join time.
func (r *Registry) Sessions() []*contract.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orderedLocked()
}

// SessionsFor resolves identities into their active sessions.
// Unknown identities are skipped and duplicates are resolved once.
func (r *Registry) SessionsFor(identities ...string) []*contract.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []*contract.Session
	for _, identity := range lo.Uniq(identities) {
		if session, ok := r.sessions[identity]; ok {
			res = append(res, session)
		}
	}
	return res
}

// Snapshot returns the presence list and the sessions it was computed from,
// both read under the same lock.
func (r *Registry) Snapshot() ([]domain.Presence, []*contract.Session) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := r.orderedLocked()
	return toPresence(sessions), sessions
}

func (r *Registry) orderedLocked() []*contract.Session {
	sessions := lo.Values(r.sessions)
	slices.SortFunc(sessions, func(a, b *contract.Session) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		switch {
		case a.Seq() < b.Seq():
			return -1
		case a.Seq() > b.Seq():
			return 1
		}
		return 0
	})
	return sessions
}

func toPresence(sessions []*contract.Session) []domain.Presence {
	return lo.Map(sessions, func(item *contract.Session, _ int) domain.Presence {
		return domain.Presence{
			Identity: item.Identity,
			JoinedAt: item.JoinedAt,
		}
	})
}
