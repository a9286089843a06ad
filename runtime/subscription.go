package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/sink"
	"context"
	"sync"
)

// Subscription is one connected client: its registry session and the channel it drains.
type Subscription struct {
	router  *Router
	session *contract.Session
	output  *sink.SessionSink
	once    sync.Once
}

func newSubscription(router *Router, session *contract.Session, output *sink.SessionSink) *Subscription {
	return &Subscription{router: router, session: session, output: output}
}

func (s *Subscription) Identity() string {
	return s.session.Identity
}

func (s *Subscription) Session() *contract.Session {
	return s.session
}

// Events is closed once the subscription is closed.
func (s *Subscription) Events() <-chan event.Event {
	return s.output.Events()
}

// Close deregisters the session and closes its channel.
// Only the first call has an effect.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.router.Leave(context.Background(), s.session)
		s.output.Close()
	})
}
