package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"reviewroom/domain"
)

func newTestIndex(t *testing.T) *MessageIndex {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewMessageIndex(writer, slog.Default())
}

func message(discussion domain.DiscussionID, author, body string, at time.Time) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		Discussion: discussion,
		Author:     author,
		Body:       body,
		At:         at,
	}
}

func Test_Search_Finds_Messages_By_Body_Terms(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	now := time.Now().UTC()

	// Given three indexed messages in one discussion
	hit := message("paper-42", "Alice", "the statistics in table 2 look wrong", now)
	miss := message("paper-42", "Bob", "I agree with the reviewer", now.Add(time.Minute))
	req.NoError(index.Index(hit))
	req.NoError(index.Index(miss))

	// When searching for a body term
	ids, err := index.Search(context.Background(), "paper-42", "statistics", 10)

	// Then only the matching message comes back
	req.NoError(err)
	req.Equal([]uuid.UUID{hit.ID}, ids)
}

func Test_Search_Is_Scoped_To_One_Discussion(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	now := time.Now().UTC()

	inScope := message("paper-1", "Alice", "methodology concerns here", now)
	outOfScope := message("paper-2", "Bob", "methodology concerns there", now)
	req.NoError(index.Index(inScope))
	req.NoError(index.Index(outOfScope))

	ids, err := index.Search(context.Background(), "paper-1", "methodology", 10)
	req.NoError(err)
	req.Equal([]uuid.UUID{inScope.ID}, ids)
}

func Test_Search_Returns_Newest_First(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	now := time.Now().UTC()

	older := message("paper-42", "Alice", "revision needed", now)
	newer := message("paper-42", "Bob", "another revision needed", now.Add(time.Hour))
	req.NoError(index.Index(older))
	req.NoError(index.Index(newer))

	ids, err := index.Search(context.Background(), "paper-42", "revision", 10)
	req.NoError(err)
	req.Equal([]uuid.UUID{newer.ID, older.ID}, ids)
}

func Test_Index_Same_ID_Overwrites(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	now := time.Now().UTC()

	msg := message("paper-42", "Alice", "draft wording", now)
	req.NoError(index.Index(msg))

	// When the same message id is indexed with a new body
	msg.Body = "final wording"
	req.NoError(index.Index(msg))

	// Then the old terms no longer match and the new ones do
	ids, err := index.Search(context.Background(), "paper-42", "draft", 10)
	req.NoError(err)
	req.Empty(ids)

	ids, err = index.Search(context.Background(), "paper-42", "final", 10)
	req.NoError(err)
	req.Equal([]uuid.UUID{msg.ID}, ids)
}

func Test_Search_Honors_Limit(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		req.NoError(index.Index(
			message("paper-42", "Alice", "benchmark results", now.Add(time.Duration(i)*time.Minute))))
	}

	ids, err := index.Search(context.Background(), "paper-42", "benchmark", 2)
	req.NoError(err)
	req.Len(ids, 2)
}
