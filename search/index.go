// Package search maintains a bluge full-text index over persisted
// messages. The index is derived data: it is fed from the event fanout
// and can always be rebuilt from the store.
package search

import (
	"context"
	"log/slog"
	"sync"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"

	"reviewroom/domain"
)

type MessageIndex struct {
	mu     sync.Mutex
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Index adds one message to the index. Re-indexing the same id is an
// overwrite, not a duplicate.
func (i *MessageIndex) Index(msg domain.Message) error {
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewKeywordField("discussion", string(msg.Discussion)).StoreValue()).
		AddField(bluge.NewTextField("body", msg.Body)).
		AddField(bluge.NewKeywordField("author", msg.Author).StoreValue()).
		AddField(bluge.NewDateTimeField("at", msg.At).Sortable())

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.writer.Update(doc.ID(), doc)
}

// Search returns the ids of matching messages in one discussion, newest
// first.
func (i *MessageIndex) Search(ctx context.Context, discussion domain.DiscussionID, terms string, limit int) ([]uuid.UUID, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(discussion)).SetField("discussion")).
		AddMust(bluge.NewMatchQuery(terms).SetField("body"))

	request := bluge.NewTopNSearch(limit, query).SortBy([]string{"-at"})
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field != "_id" {
				return true
			}
			id, parseErr := uuid.Parse(string(value))
			if parseErr != nil {
				i.log.Warn("Indexed document with non-uuid id", "id", string(value))
				return true
			}
			ids = append(ids, id)
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}
