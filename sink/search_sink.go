package sink

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
)

var _ contract.EventSink = (*SearchSink)(nil)

// MessageIndexer is the write side of the search index.
type MessageIndexer interface {
	IndexMessage(message domain.Message) error
}

// SearchSink indexes every delivered message.
type SearchSink struct {
	indexer MessageIndexer
	log     *slog.Logger
}

func NewSearchSink(indexer MessageIndexer, log *slog.Logger) *SearchSink {
	return &SearchSink{indexer: indexer, log: log}
}

func (s *SearchSink) Consume(ctx context.Context, e event.Event) error {
	message, ok := e.Message()
	if !ok {
		s.log.Debug("Not indexed event", "type", e.Type)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.indexer.IndexMessage(message)
}
