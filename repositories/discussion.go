//go:generate go run go.uber.org/mock/mockgen -source=discussion.go -destination=../mocks/mock_discussion_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"reviewroom/domain"
)

// DiscussionRepository persists messages, read receipts, and the
// participant roster in BadgerDB.
//
// Key layout:
//
//	msg:{discussion}:{timestamp_padded}:{uuid}  -> message JSON
//	rcpt:{discussion}:{message_uuid}:{user}     -> receipt JSON
//	part:{discussion}:{user}                    -> participant JSON
//
// The 19-digit zero padding keeps messages chronologically sorted under
// lexicographic iteration; the trailing UUID disambiguates two messages
// arriving at the same nanosecond. The receipt key carries the (message,
// user) pair, which is what enforces at most one receipt per pair: a
// re-mark lands on the same key and is detected before writing.
type DiscussionRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewDiscussionRepository(db *badger.DB, log *slog.Logger, limitMessages *int) DiscussionRepository {
	return DiscussionRepository{db: db, log: log, limitMessages: limitMessages}
}

func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", m.Discussion, m.At.UnixNano(), m.ID))
}

func receiptKey(discussion domain.DiscussionID, messageID uuid.UUID, userID string) []byte {
	return []byte(fmt.Sprintf("rcpt:%s:%s:%s", discussion, messageID, userID))
}

func participantKey(discussion domain.DiscussionID, userID string) []byte {
	return []byte(fmt.Sprintf("part:%s:%s", discussion, userID))
}

// CreateMessage builds the durable message record: id, timestamp, and
// detected language are assigned here so every caller gets the same
// canonical form back for broadcasting.
func (r DiscussionRepository) CreateMessage(ctx context.Context, discussion domain.DiscussionID, authorID, body string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	info := whatlanggo.Detect(body)
	msg := domain.Message{
		ID:         uuid.New(),
		Discussion: discussion,
		Author:     authorID,
		Body:       body,
		Lang:       info.Lang.Iso6391(),
		At:         time.Now().UTC(),
	}

	bytes, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), bytes)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// Messages retrieves a page for one discussion using a reverse prefix
// scan, newest first. Thanks to the padded timestamp in the key the scan
// order is the chronological order. The returned cursor is the key
// suffix of the last collected message; passing it back resumes just
// past it.
func (r DiscussionRepository) Messages(ctx context.Context, discussion domain.DiscussionID, cursor *string) ([]domain.Message, *string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var messages []domain.Message
	var lastKey string
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", discussion)
		prefix := []byte(prefixStr)

		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk back
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages != nil && len(messages) == *r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *r.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			err := item.Value(func(value []byte) error {
				var msg domain.Message
				if err := json.Unmarshal(value, &msg); err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return messages, &lastKey, nil
}

// MarkRead writes one receipt per message id that doesn't have one yet
// for this user, and returns only the receipts actually created.
// Re-marking an already-read message is silently skipped, keeping the
// at-most-one-receipt-per-(user, message) invariant.
func (r DiscussionRepository) MarkRead(ctx context.Context, discussion domain.DiscussionID, userID string, messageIDs []uuid.UUID) ([]domain.ReadReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var created []domain.ReadReceipt
	err := r.db.Update(func(txn *badger.Txn) error {
		created = created[:0]
		for _, messageID := range messageIDs {
			key := receiptKey(discussion, messageID, userID)
			_, err := txn.Get(key)
			if err == nil {
				continue // already read
			}
			if err != badger.ErrKeyNotFound {
				return err
			}

			receipt := domain.ReadReceipt{
				Discussion: discussion,
				MessageID:  messageID,
				UserID:     userID,
				ReadAt:     time.Now().UTC(),
			}
			bytes, err := json.Marshal(receipt)
			if err != nil {
				return err
			}
			if err := txn.Set(key, bytes); err != nil {
				return err
			}
			created = append(created, receipt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Participants lists the user ids on the roster of one discussion.
func (r DiscussionRepository) Participants(ctx context.Context, discussion domain.DiscussionID) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var userIDs []string
	prefixStr := fmt.Sprintf("part:%s:", discussion)
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(prefixStr)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			userIDs = append(userIDs, string(it.Item().Key()[len(prefixStr):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}

// IsParticipant is the authorization check the router runs before
// permitting a room join.
func (r DiscussionRepository) IsParticipant(ctx context.Context, discussion domain.DiscussionID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(participantKey(discussion, userID))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r DiscussionRepository) AddParticipant(ctx context.Context, discussion domain.DiscussionID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	participant := domain.Participant{
		Discussion: discussion,
		UserID:     userID,
		AddedAt:    time.Now().UTC(),
	}
	bytes, err := json.Marshal(participant)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(participantKey(discussion, userID), bytes)
	})
}

func (r DiscussionRepository) RemoveParticipant(ctx context.Context, discussion domain.DiscussionID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(participantKey(discussion, userID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}
