// Package search keeps a full-text index of delivered messages.
// The index lives in memory, like the room logs it mirrors.
package search

import (
	"chat-relay/domain"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const (
	fieldRoom      = "room"
	fieldSender    = "sender"
	fieldBody      = "body"
	fieldCreatedAt = "created_at"
)

// Hit is one message matching a query.
type Hit struct {
	ID        uuid.UUID      `json:"id"`
	Room      domain.RoomKey `json:"room"`
	Sender    string         `json:"sender"`
	Body      string         `json:"body"`
	CreatedAt time.Time      `json:"createdAt"`
	Score     float64        `json:"score"`
}

type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewInMemoryIndex(log *slog.Logger) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return &Index{writer: writer, log: log}, nil
}

// IndexMessage adds or replaces the message in the index, keyed by its ID.
func (i *Index) IndexMessage(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(fieldRoom, string(message.Room)).StoreValue()).
		AddField(bluge.NewKeywordField(fieldSender, message.Sender).StoreValue()).
		AddField(bluge.NewTextField(fieldBody, message.Body).StoreValue()).
		AddField(bluge.NewDateTimeField(fieldCreatedAt, message.CreatedAt).StoreValue())
	return i.writer.Update(doc.ID(), doc)
}

// Search returns the best matching messages of one room.
func (i *Index) Search(ctx context.Context, room domain.RoomKey, query Query) ([]Hit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(room)).SetField(fieldRoom))
	if query.Terms != "" {
		q.AddMust(bluge.NewMatchQuery(query.Terms).SetField(fieldBody))
	}
	if query.Sender != "" {
		q.AddMust(bluge.NewTermQuery(query.Sender).SetField(fieldSender))
	}

	limit := query.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	hits := []Hit{}
	match, err := iterator.Next()
	for err == nil && match != nil {
		hit := Hit{Score: match.Score}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				if id, parseErr := uuid.ParseBytes(value); parseErr == nil {
					hit.ID = id
				}
			case fieldRoom:
				hit.Room = domain.RoomKey(value)
			case fieldSender:
				hit.Sender = string(value)
			case fieldBody:
				hit.Body = string(value)
			case fieldCreatedAt:
				if at, decodeErr := bluge.DecodeDateTime(value); decodeErr == nil {
					hit.CreatedAt = at.UTC()
				}
			}
			return true
		})
		if err != nil {
			break
		}
		hits = append(hits, hit)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (i *Index) Close() error {
	i.log.Info("Closing Bluge...")
	return i.writer.Close()
}
