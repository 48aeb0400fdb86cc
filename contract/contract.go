//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"github.com/google/uuid"

	"reviewroom/domain"
	"reviewroom/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives outbound events for one consumer. Connection sinks
// wrap a buffered channel drained by the transport write pump; permanent
// sinks (search index, telemetry) consume a copy of every domain event.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry tracks live connections and room membership in both
// directions: connection -> rooms and room -> connections.
type IRegistry interface {
	Connect(sink EventSink) domain.ConnID
	Disconnect(connID domain.ConnID)
	Join(connID domain.ConnID, discussion domain.DiscussionID)
	Leave(connID domain.ConnID, discussion domain.DiscussionID)
	Joined(connID domain.ConnID, discussion domain.DiscussionID) bool
	Sink(connID domain.ConnID) (EventSink, bool)
	SinksForRoom(discussion domain.DiscussionID) []EventSink
	SinksForOthers(sender domain.ConnID, discussion domain.DiscussionID) []EventSink
}

// DiscussionStore is the durable side of the discussion system:
// messages, read receipts, and the participant roster.
type DiscussionStore interface {
	CreateMessage(ctx context.Context, discussion domain.DiscussionID, authorID, body string) (domain.Message, error)
	Messages(ctx context.Context, discussion domain.DiscussionID, cursor *string) ([]domain.Message, *string, error)
	MarkRead(ctx context.Context, discussion domain.DiscussionID, userID string, messageIDs []uuid.UUID) ([]domain.ReadReceipt, error)
	Participants(ctx context.Context, discussion domain.DiscussionID) ([]string, error)
	IsParticipant(ctx context.Context, discussion domain.DiscussionID, userID string) (bool, error)
	AddParticipant(ctx context.Context, discussion domain.DiscussionID, userID string) error
	RemoveParticipant(ctx context.Context, discussion domain.DiscussionID, userID string) error
}

// MessageIndex is the full-text side; fed by a sink, queried by the
// REST boundary.
type MessageIndex interface {
	Index(msg domain.Message) error
	Search(ctx context.Context, discussion domain.DiscussionID, terms string, limit int) ([]uuid.UUID, error)
}
