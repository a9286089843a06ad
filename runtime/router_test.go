package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
	"chat-relay/sink"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const eventTimeout = time.Second

func newTestRouter(t *testing.T, repository repositories.IMessageRepository, moderator contract.Moderator, permanentSinks ...contract.EventSink) (*Router, *observability.MonitoringManager) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitoring := observability.NewMonitoringManager(log)
	router := NewRouter(log, NewRegistry(), repository, moderator,
		workers.NewSupervisor(log, 10*time.Millisecond), monitoring,
		RouterConfig{
			NumberOfWorkers:  4,
			BufferSize:       64,
			ConnectionBuffer: 256,
			MaxMessageLength: 500,
			SinkTimeout:      time.Second,
		}, permanentSinks...)

	done := make(chan struct{})
	go func() {
		_ = router.Start(context.Background())
		close(done)
	}()
	t.Cleanup(func() {
		router.Stop()
		<-done
	})
	return router, monitoring
}

func subscribe(t *testing.T, router *Router, identity string) *Subscription {
	t.Helper()
	sub, err := router.Subscribe(context.Background(), identity)
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	return sub
}

func nextEvent(t *testing.T, sub *Subscription) event.Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		require.True(t, ok, "channel of %s closed", sub.Identity())
		return evt
	case <-time.After(eventTimeout):
		require.FailNow(t, fmt.Sprintf("no event received by %s", sub.Identity()))
		return event.Event{}
	}
}

func nextMessage(t *testing.T, sub *Subscription) domain.Message {
	t.Helper()
	evt := nextEvent(t, sub)
	message, ok := evt.Message()
	require.True(t, ok, "expected a message event, got %s", evt.Type)
	return message
}

func nextPresence(t *testing.T, sub *Subscription) []string {
	t.Helper()
	evt := nextEvent(t, sub)
	list, ok := evt.Presence()
	require.True(t, ok, "expected a presence event, got %s", evt.Type)
	names := make([]string, 0, len(list))
	for _, p := range list {
		names = append(names, p.Identity)
	}
	return names
}

func requireNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case evt := <-sub.Events():
		require.FailNow(t, fmt.Sprintf("%s received an unexpected %s event", sub.Identity(), evt.Type))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouter_Public_Message_Reaches_Everyone(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	router, monitoring := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})

	// Given Alice then Bob connected
	alice := subscribe(t, router, "alice")
	req.Equal([]string{"alice"}, nextPresence(t, alice))
	bob := subscribe(t, router, "bob")
	req.Equal([]string{"alice", "bob"}, nextPresence(t, alice))
	req.Equal([]string{"alice", "bob"}, nextPresence(t, bob))

	// When Alice posts publicly
	stored, err := router.DeliverMessage(ctx, domain.PostMessageCommand{Sender: "alice", Body: "hi"})
	req.NoError(err)
	req.Equal(domain.PublicRoom, stored.Room)
	req.Equal("public", stored.Target)

	// Then both receive it, the sender included
	for _, sub := range []*Subscription{alice, bob} {
		message := nextMessage(t, sub)
		req.Equal(stored.ID, message.ID)
		req.Equal("hi", message.Body)
		req.Equal("alice", message.Sender)
		req.False(message.IsPrivate)
	}

	// And the public log holds it
	history, err := router.History(ctx, domain.PublicRoom)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(stored.ID, history[0].ID)
	req.Equal(uint64(2), monitoring.GetLatest().Joined)
}

func TestRouter_Private_Message_Is_Scoped_To_The_Pair(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	router, _ := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})

	alice := subscribe(t, router, "alice")
	bob := subscribe(t, router, "bob")
	carol := subscribe(t, router, "carol")
	for _, sub := range []*Subscription{alice, bob, carol} {
		for len(sub.Events()) > 0 {
			<-sub.Events()
		}
	}

	// When Alice whispers to Bob
	stored, err := router.DeliverMessage(ctx, domain.PostMessageCommand{
		Sender: "alice", Target: "bob", Body: "secret", IsPrivate: true,
	})
	req.NoError(err)
	req.Equal(domain.RoomKey("alice:bob"), stored.Room)

	// Then Alice (echo) and Bob receive it, Carol does not
	req.Equal("secret", nextMessage(t, alice).Body)
	req.Equal("secret", nextMessage(t, bob).Body)
	requireNoEvent(t, carol)

	// And the pair log is the same from both sides, the public log untouched
	history, err := router.History(ctx, domain.PairRoomKey("bob", "alice"))
	req.NoError(err)
	req.Len(history, 1)
	public, err := router.History(ctx, domain.PublicRoom)
	req.NoError(err)
	req.Empty(public)
}

func TestRouter_Self_Message_Delivered_Once(t *testing.T) {
	req := require.New(t)
	router, _ := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})
	alice := subscribe(t, router, "alice")
	nextPresence(t, alice)

	stored, err := router.DeliverMessage(context.Background(), domain.PostMessageCommand{
		Sender: "alice", Target: "alice", Body: "note to self", IsPrivate: true,
	})
	req.NoError(err)
	req.Equal(domain.RoomKey("alice:alice"), stored.Room)

	req.Equal("note to self", nextMessage(t, alice).Body)
	requireNoEvent(t, alice)
}

func TestRouter_Private_Message_To_Offline_Target_Is_Still_Stored(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	router, _ := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})
	alice := subscribe(t, router, "alice")
	nextPresence(t, alice)

	_, err := router.DeliverMessage(ctx, domain.PostMessageCommand{
		Sender: "alice", Target: "dave", Body: "when you are back", IsPrivate: true,
	})
	req.NoError(err)
	req.Equal("when you are back", nextMessage(t, alice).Body)

	history, err := router.History(ctx, domain.PairRoomKey("alice", "dave"))
	req.NoError(err)
	req.Len(history, 1)
}

func TestRouter_Rejects_Invalid_Commands(t *testing.T) {
	router, monitoring := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})

	tests := []struct {
		name string
		cmd  domain.PostMessageCommand
		err  error
	}{
		{"empty body", domain.PostMessageCommand{Sender: "alice", Body: "   "}, errors.ErrEmptyBody},
		{"private without target", domain.PostMessageCommand{Sender: "alice", Body: "hi", IsPrivate: true}, errors.ErrInvalidTarget},
		{"invalid sender", domain.PostMessageCommand{Sender: "al:ice", Body: "hi"}, errors.ErrInvalidIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := router.DeliverMessage(context.Background(), tt.cmd)
			require.ErrorIs(t, err, tt.err)
		})
	}
	require.Equal(t, uint64(len(tests)), monitoring.GetLatest().Rejected)
}

func TestRouter_Duplicate_Identity_Rejected(t *testing.T) {
	req := require.New(t)
	router, _ := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})

	// Given Alice connected
	alice := subscribe(t, router, "alice")
	nextPresence(t, alice)

	// When a second client claims the same identity
	_, err := router.Subscribe(context.Background(), "alice")

	// Then it is refused and the first session is untouched
	req.ErrorIs(err, errors.ErrDuplicateIdentity)
	req.True(router.IsActive("alice"))
	requireNoEvent(t, alice)

	_, err = router.DeliverMessage(context.Background(), domain.PostMessageCommand{Sender: "bob", Body: "still there?"})
	req.NoError(err)
	req.Equal("still there?", nextMessage(t, alice).Body)
}

func TestRouter_Invalid_Identity_Rejected(t *testing.T) {
	router, _ := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})
	_, err := router.Subscribe(context.Background(), "")
	require.ErrorIs(t, err, errors.ErrInvalidIdentity)
	require.Empty(t, router.Presence())
}

func TestRouter_Presence_Follows_Joins_And_Leaves(t *testing.T) {
	req := require.New(t)
	router, monitoring := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})

	alice := subscribe(t, router, "alice")
	req.Equal([]string{"alice"}, nextPresence(t, alice))

	bob, err := router.Subscribe(context.Background(), "bob")
	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, nextPresence(t, bob))
	req.Equal([]string{"alice", "bob"}, nextPresence(t, alice))

	// When Bob disconnects, twice
	bob.Close()
	bob.Close()

	// Then Alice sees a single departure and Bob's channel is closed
	req.Equal([]string{"alice"}, nextPresence(t, alice))
	requireNoEvent(t, alice)
	_, ok := <-bob.Events()
	req.False(ok)
	req.Equal([]string{"alice"}, identitiesOf(router.Presence()))
	req.Equal(uint64(1), monitoring.GetLatest().Left)

	// And the identity is free again
	again := subscribe(t, router, "bob")
	req.Equal([]string{"alice", "bob"}, nextPresence(t, again))
}

func TestRouter_Presence_Announced_Once_Per_Change(t *testing.T) {
	req := require.New(t)
	router, _ := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})

	// Given a watcher connected before and after Carol's visit
	watcher := subscribe(t, router, "watcher")
	req.Equal([]string{"watcher"}, nextPresence(t, watcher))

	// When Carol joins then leaves
	carol, err := router.Subscribe(context.Background(), "carol")
	req.NoError(err)
	carol.Close()

	// Then the watcher gets exactly two lists, one per change
	req.Equal([]string{"watcher", "carol"}, nextPresence(t, watcher))
	req.Equal([]string{"watcher"}, nextPresence(t, watcher))
	requireNoEvent(t, watcher)
}

func TestRouter_Join_Presence_Comes_Before_Concurrent_Messages(t *testing.T) {
	req := require.New(t)
	router, _ := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})
	sender := subscribe(t, router, "sender")
	nextPresence(t, sender)

	// Given a public message stream running in the background
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			_, _ = router.DeliverMessage(ctx, domain.PostMessageCommand{Sender: "sender", Body: "tick"})
		}
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	// When clients keep joining while messages flow
	for i := range 500 {
		sub, err := router.Subscribe(context.Background(), "reader")
		req.NoError(err)

		// Then the first event of every session is its presence list
		evt := nextEvent(t, sub)
		req.Equal(event.PresenceType, evt.Type, "join %d started with %s", i, evt.Type)
		sub.Close()
	}
}

func TestRouter_Stale_Session_Does_Not_Evict_New_Holder(t *testing.T) {
	req := require.New(t)
	router, _ := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})

	alice := subscribe(t, router, "alice")
	req.Equal([]string{"alice"}, nextPresence(t, alice))

	// Given Bob reconnected after his first session closed
	first, err := router.Subscribe(context.Background(), "bob")
	req.NoError(err)
	stale := first.Session()
	first.Close()
	second := subscribe(t, router, "bob")
	req.Equal([]string{"alice", "bob"}, nextPresence(t, alice))
	req.Equal([]string{"alice"}, nextPresence(t, alice))
	req.Equal([]string{"alice", "bob"}, nextPresence(t, alice))

	// When the old session leaves again
	router.Leave(context.Background(), stale)

	// Then the new Bob stays online and nobody is told otherwise
	requireNoEvent(t, alice)
	req.True(router.IsActive("bob"))
	req.Equal("bob", second.Identity())
}

func TestRouter_Concurrent_Presence_Ends_Consistent(t *testing.T) {
	req := require.New(t)
	router, _ := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})
	watcher := subscribe(t, router, "watcher")
	nextPresence(t, watcher)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub, err := router.Subscribe(context.Background(), fmt.Sprintf("user%d", i))
			if err != nil {
				return
			}
			if i%2 == 0 {
				sub.Close()
			}
		}(i)
	}
	wg.Wait()

	// The last presence list pushed equals the registry content
	var last []string
	for len(watcher.Events()) > 0 {
		evt := <-watcher.Events()
		if list, ok := evt.Presence(); ok {
			last = identitiesOf(list)
		}
	}
	req.Equal(identitiesOf(router.Presence()), last)
	req.Len(last, 11)
}

func TestRouter_Room_Order_Matches_Store_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	router, _ := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})
	reader := subscribe(t, router, "reader")
	nextPresence(t, reader)

	// Given several senders posting to the same room at the same time
	var wg sync.WaitGroup
	for s := range 4 {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := range 20 {
				_, err := router.DeliverMessage(ctx, domain.PostMessageCommand{
					Sender: fmt.Sprintf("sender%d", s), Body: fmt.Sprintf("%d-%d", s, i),
				})
				if err != nil {
					t.Error(err)
				}
			}
		}(s)
	}
	wg.Wait()

	// Then the reader saw exactly the stored order
	history, err := router.History(ctx, domain.PublicRoom)
	req.NoError(err)
	req.Len(history, 80)
	for _, stored := range history {
		req.Equal(stored.ID, nextMessage(t, reader).ID)
	}
}

func TestRouter_Full_Sink_Does_Not_Abort_Fanout(t *testing.T) {
	req := require.New(t)
	router, monitoring := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})

	// Given a stalled client whose buffer is already full with its presence snapshot
	stalled := sink.NewSessionSink("stalled", 1)
	_, err := router.Join(context.Background(), "stalled", stalled)
	req.NoError(err)
	alice := subscribe(t, router, "alice")
	nextPresence(t, alice)

	// When a public message is delivered
	_, err = router.DeliverMessage(context.Background(), domain.PostMessageCommand{Sender: "alice", Body: "hello"})
	req.NoError(err)

	// Then Alice still gets it and the drop is counted
	req.Equal("hello", nextMessage(t, alice).Body)
	req.GreaterOrEqual(monitoring.GetLatest().Dropped, uint64(1))
	req.Equal(1, stalled.Len())
}

func TestRouter_Store_Exhausted(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIMessageRepository(ctrl)
	router, _ := newTestRouter(t, repository, moderation.NoopModerator{})
	alice := subscribe(t, router, "alice")
	nextPresence(t, alice)

	// Given a store refusing every append
	repository.EXPECT().Append(gomock.Any(), gomock.Any()).
		Return(domain.Message{}, errors.ErrStoreExhausted).Times(2)

	for range 2 {
		_, err := router.DeliverMessage(context.Background(), domain.PostMessageCommand{Sender: "alice", Body: "lost"})
		req.ErrorIs(err, errors.ErrStoreExhausted)
	}

	// Then nothing was pushed
	requireNoEvent(t, alice)
}

func TestRouter_Moderates_Before_Storing(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	moderator, err := moderation.NewModerator([]string{"badger"}, '*', log)
	req.NoError(err)
	router, monitoring := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderator)
	alice := subscribe(t, router, "alice")
	nextPresence(t, alice)

	stored, err := router.DeliverMessage(context.Background(), domain.PostMessageCommand{Sender: "alice", Body: "the b4dger"})
	req.NoError(err)
	req.Equal("the ******", stored.Body)
	req.Equal([]string{"badger"}, stored.CensoredWords)
	req.Equal("the ******", nextMessage(t, alice).Body)
	req.Equal(uint64(1), monitoring.GetLatest().Censored)
}

func TestRouter_Feeds_Permanent_Sinks(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	permanent := mocks.NewMockEventSink(ctrl)

	received := make(chan event.Event, 1)
	permanent.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, evt event.Event) error {
			received <- evt
			return nil
		}).Times(1)

	router, _ := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{}, permanent)
	stored, err := router.DeliverMessage(context.Background(), domain.PostMessageCommand{Sender: "alice", Body: "indexed"})
	req.NoError(err)

	select {
	case evt := <-received:
		message, ok := evt.Message()
		req.True(ok)
		req.Equal(stored.ID, message.ID)
	case <-time.After(eventTimeout):
		req.Fail("Permanent sink not reached")
	}
}

func TestRouter_Stopped_Refuses_Work(t *testing.T) {
	req := require.New(t)
	router, _ := newTestRouter(t, repositories.NewMemoryMessageRepository(), moderation.NoopModerator{})

	router.Stop()

	_, err := router.DeliverMessage(context.Background(), domain.PostMessageCommand{Sender: "alice", Body: "late"})
	req.ErrorIs(err, errors.ErrRouterStopped)
	_, err = router.Subscribe(context.Background(), "alice")
	req.ErrorIs(err, errors.ErrRouterStopped)
}

func identitiesOf(list []domain.Presence) []string {
	names := make([]string, 0, len(list))
	for _, p := range list {
		names = append(names, p.Identity)
	}
	return names
}
