package services

import (
	"context"

	"github.com/google/uuid"

	"reviewroom/contract"
	"reviewroom/domain"
)

// IDiscussionService is the facade the transport layer talks to: the
// real-time side goes through Connect/Dispatch, the query side hits the
// store and index directly.
type IDiscussionService interface {
	Connect(sink contract.EventSink) domain.ConnID
	Dispatch(cmd domain.Command)
	Messages(ctx context.Context, discussion domain.DiscussionID, cursor *string) ([]domain.Message, *string, error)
	Search(ctx context.Context, discussion domain.DiscussionID, terms string, limit int) ([]uuid.UUID, error)
	IsParticipant(ctx context.Context, discussion domain.DiscussionID, userID string) (bool, error)
	Participants(ctx context.Context, discussion domain.DiscussionID) ([]string, error)
	AddParticipant(ctx context.Context, discussion domain.DiscussionID, userID string) error
	RemoveParticipant(ctx context.Context, discussion domain.DiscussionID, userID string) error
}

type Dispatcher interface {
	Dispatch(cmd domain.Command)
}

type DiscussionService struct {
	registry   contract.IRegistry
	dispatcher Dispatcher
	store      contract.DiscussionStore
	index      contract.MessageIndex
}

func NewDiscussionService(registry contract.IRegistry, dispatcher Dispatcher,
	store contract.DiscussionStore, index contract.MessageIndex) *DiscussionService {
	return &DiscussionService{registry: registry, dispatcher: dispatcher, store: store, index: index}
}

func (s *DiscussionService) Connect(sink contract.EventSink) domain.ConnID {
	return s.registry.Connect(sink)
}

func (s *DiscussionService) Dispatch(cmd domain.Command) {
	s.dispatcher.Dispatch(cmd)
}

func (s *DiscussionService) Messages(ctx context.Context, discussion domain.DiscussionID, cursor *string) ([]domain.Message, *string, error) {
	return s.store.Messages(ctx, discussion, cursor)
}

func (s *DiscussionService) Search(ctx context.Context, discussion domain.DiscussionID, terms string, limit int) ([]uuid.UUID, error) {
	return s.index.Search(ctx, discussion, terms, limit)
}

func (s *DiscussionService) IsParticipant(ctx context.Context, discussion domain.DiscussionID, userID string) (bool, error) {
	return s.store.IsParticipant(ctx, discussion, userID)
}

func (s *DiscussionService) Participants(ctx context.Context, discussion domain.DiscussionID) ([]string, error) {
	return s.store.Participants(ctx, discussion)
}

func (s *DiscussionService) AddParticipant(ctx context.Context, discussion domain.DiscussionID, userID string) error {
	return s.store.AddParticipant(ctx, discussion, userID)
}

func (s *DiscussionService) RemoveParticipant(ctx context.Context, discussion domain.DiscussionID, userID string) error {
	return s.store.RemoveParticipant(ctx, discussion, userID)
}
