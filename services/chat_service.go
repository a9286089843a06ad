//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/search"
	"chat-relay/sink"
	"context"
	"fmt"
	"log/slog"
)

// IChatService is everything a transport may ask of the relay.
type IChatService interface {
	SubmitMessage(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error)
	Subscribe(ctx context.Context, identity string) (contract.ISubscription, error)
	Unsubscribe(subscription contract.ISubscription)
	QueryHistory(ctx context.Context, room string) ([]domain.Message, error)
	QueryPairHistory(ctx context.Context, user1, user2 string) ([]domain.Message, error)
	ClaimIdentity(name string) error
	Presence() []domain.Presence
	Search(ctx context.Context, room, input string) ([]search.Hit, error)
	Stats() observability.MonitoringStats
}

// Searcher is the read side of the search index.
type Searcher interface {
	Search(ctx context.Context, room domain.RoomKey, query search.Query) ([]search.Hit, error)
}

type ChatService struct {
	log         *slog.Logger
	router      *runtime.Router
	searcher    Searcher
	monitoring  *observability.MonitoringManager
	timeline    *sink.Timeline
	searchLimit int
}

func NewChatService(log *slog.Logger, router *runtime.Router, searcher Searcher,
	monitoring *observability.MonitoringManager, timeline *sink.Timeline, searchLimit int) *ChatService {
	return &ChatService{
		log:         log,
		router:      router,
		searcher:    searcher,
		monitoring:  monitoring,
		timeline:    timeline,
		searchLimit: searchLimit,
	}
}

func (s *ChatService) SubmitMessage(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	return s.router.DeliverMessage(ctx, cmd)
}

func (s *ChatService) Subscribe(ctx context.Context, identity string) (contract.ISubscription, error) {
	subscription, err := s.router.Subscribe(ctx, identity)
	if err != nil {
		return nil, err
	}
	return subscription, nil
}

func (s *ChatService) Unsubscribe(subscription contract.ISubscription) {
	subscription.Close()
}

// QueryHistory accepts "public" or a canonical pair key such as "alice:bob".
func (s *ChatService) QueryHistory(ctx context.Context, room string) ([]domain.Message, error) {
	key, err := domain.ParseRoomKey(room)
	if err != nil {
		return nil, err
	}
	return s.router.History(ctx, key)
}

// QueryPairHistory returns the private log of two identities, in any order.
func (s *ChatService) QueryPairHistory(ctx context.Context, user1, user2 string) ([]domain.Message, error) {
	for _, identity := range []string{user1, user2} {
		if err := domain.ValidateIdentity(identity); err != nil {
			return nil, err
		}
	}
	return s.router.History(ctx, domain.PairRoomKey(user1, user2))
}

// ClaimIdentity only tells whether the name is free right now.
// Subscribe stays the authority: a claimed name can still be taken before the client connects.
func (s *ChatService) ClaimIdentity(name string) error {
	if err := domain.ValidateIdentity(name); err != nil {
		return err
	}
	if s.router.IsActive(name) {
		return fmt.Errorf("%w: %s", errors.ErrDuplicateIdentity, name)
	}
	return nil
}

func (s *ChatService) Presence() []domain.Presence {
	return s.router.Presence()
}

func (s *ChatService) Search(ctx context.Context, room, input string) ([]search.Hit, error) {
	key, err := domain.ParseRoomKey(room)
	if err != nil {
		return nil, err
	}
	query := search.ParseQuery(input, s.searchLimit)
	s.log.Debug("Searching history", "room", key, "terms", query.Terms, "sender", query.Sender)
	return s.searcher.Search(ctx, key, query)
}

func (s *ChatService) Stats() observability.MonitoringStats {
	stats := s.monitoring.GetLatest()
	stats.Recent = s.timeline.Recent()
	return stats
}
