package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"reviewroom/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Record_Multiple_Messages(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()

	repository := NewDiscussionRepository(db, slog.Default(), nil)
	discussion := domain.DiscussionID("paper-42")

	authors := []string{"Alice", "Bob", "Clara"}
	for _, author := range authors {
		_, err := repository.CreateMessage(ctx, discussion, author, "looks good to me")
		req.NoError(err)
		time.Sleep(2 * time.Millisecond)
	}

	fetched, _, err := repository.Messages(ctx, discussion, nil)
	req.NoError(err)
	req.Len(fetched, len(authors))

	// Newest first: Clara wrote last
	req.Equal("Clara", fetched[0].Author)
	req.Equal("Bob", fetched[1].Author)
	req.Equal("Alice", fetched[2].Author)
}

func Test_Messages_Are_Scoped_Per_Discussion(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()

	repository := NewDiscussionRepository(db, slog.Default(), nil)

	_, err := repository.CreateMessage(ctx, "paper-1", "Alice", "first thread")
	req.NoError(err)
	_, err = repository.CreateMessage(ctx, "paper-2", "Bob", "second thread")
	req.NoError(err)

	fetched, _, err := repository.Messages(ctx, "paper-1", nil)
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal("Alice", fetched[0].Author)
}

func Test_Messages_Cursor_Pagination(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()

	limit := 2
	repository := NewDiscussionRepository(db, slog.Default(), &limit)
	discussion := domain.DiscussionID("paper-42")

	const total = 5
	for i := 0; i < total; i++ {
		_, err := repository.CreateMessage(ctx, discussion, "Alice", fmt.Sprintf("m%d", i))
		req.NoError(err)
		time.Sleep(2 * time.Millisecond)
	}

	// First page holds the newest messages
	page1, cursor, err := repository.Messages(ctx, discussion, nil)
	req.NoError(err)
	req.Len(page1, limit)
	req.Equal("m4", page1[0].Body)
	req.Equal("m3", page1[1].Body)
	req.NotNil(cursor)

	// Resuming with the cursor continues strictly past the last message
	page2, cursor, err := repository.Messages(ctx, discussion, cursor)
	req.NoError(err)
	req.Len(page2, limit)
	req.Equal("m2", page2[0].Body)
	req.Equal("m1", page2[1].Body)

	page3, _, err := repository.Messages(ctx, discussion, cursor)
	req.NoError(err)
	req.Len(page3, 1)
	req.Equal("m0", page3[0].Body)
}

func Test_MarkRead_Creates_One_Receipt_Per_Message_And_User(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()

	repository := NewDiscussionRepository(db, slog.Default(), nil)
	discussion := domain.DiscussionID("paper-42")
	first, second := uuid.New(), uuid.New()

	// When Bob marks two messages as read
	created, err := repository.MarkRead(ctx, discussion, "Bob", []uuid.UUID{first, second})
	req.NoError(err)
	req.Len(created, 2)

	// Then re-marking one of them plus a new one only creates the new receipt
	third := uuid.New()
	created, err = repository.MarkRead(ctx, discussion, "Bob", []uuid.UUID{first, third})
	req.NoError(err)
	req.Len(created, 1)
	req.Equal(third, created[0].MessageID)

	// And another user marking the same message gets their own receipt
	created, err = repository.MarkRead(ctx, discussion, "Clara", []uuid.UUID{first})
	req.NoError(err)
	req.Len(created, 1)
	req.Equal("Clara", created[0].UserID)
}

func Test_Participant_Roster(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()

	repository := NewDiscussionRepository(db, slog.Default(), nil)
	discussion := domain.DiscussionID("paper-42")

	// Given an empty roster
	ok, err := repository.IsParticipant(ctx, discussion, "Alice")
	req.NoError(err)
	req.False(ok)

	// When two reviewers are added
	req.NoError(repository.AddParticipant(ctx, discussion, "Alice"))
	req.NoError(repository.AddParticipant(ctx, discussion, "Bob"))

	// Then both are on the roster
	ok, err = repository.IsParticipant(ctx, discussion, "Alice")
	req.NoError(err)
	req.True(ok)

	participants, err := repository.Participants(ctx, discussion)
	req.NoError(err)
	req.ElementsMatch([]string{"Alice", "Bob"}, participants)

	// And removal is effective and idempotent
	req.NoError(repository.RemoveParticipant(ctx, discussion, "Alice"))
	req.NoError(repository.RemoveParticipant(ctx, discussion, "Alice"))

	ok, err = repository.IsParticipant(ctx, discussion, "Alice")
	req.NoError(err)
	req.False(ok)
}

func Test_CreateMessage_Detects_Language(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()

	repository := NewDiscussionRepository(db, slog.Default(), nil)

	msg, err := repository.CreateMessage(ctx, "paper-42", "Alice",
		"the experimental results are very convincing overall")
	req.NoError(err)
	req.Equal("en", msg.Lang)
	req.NotEqual(uuid.Nil, msg.ID)
	req.False(msg.At.IsZero())
}
