package sink

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"reviewroom/domain"
	"reviewroom/domain/event"
	"reviewroom/mocks"
)

func Test_ConnSink_Buffers_Events(t *testing.T) {
	req := require.New(t)
	s := NewConnSink(2, nil)

	evt := event.UserTyping{Discussion: "d1", UserID: "alice", IsTyping: true}

	// When an event is consumed
	req.NoError(s.Consume(context.Background(), evt))

	// Then the write pump side can read it back
	req.Equal(evt, <-s.Events)
}

func Test_ConnSink_Drops_When_Buffer_Is_Full(t *testing.T) {
	req := require.New(t)

	drops := 0
	s := NewConnSink(1, func() { drops++ })

	// Given a full buffer
	req.NoError(s.Consume(context.Background(), event.UserTyping{Discussion: "d1"}))

	// When another event arrives
	req.NoError(s.Consume(context.Background(), event.UserTyping{Discussion: "d1"}))

	// Then it is dropped and counted instead of blocking
	req.Equal(1, drops)
	req.Len(s.Events, 1)
}

func Test_IndexSink_Indexes_Messages_Only(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	index := mocks.NewMockMessageIndex(ctrl)
	s := NewIndexSink(index, slog.Default())

	msg := domain.Message{ID: uuid.New(), Discussion: "d1", Author: "alice", Body: "hello"}

	// Given the index expects exactly the message event
	index.EXPECT().Index(msg).Return(nil).Times(1)

	// When a message event and a typing event are consumed
	req.NoError(s.Consume(context.Background(), event.MessageReceived{Message: msg}))
	req.NoError(s.Consume(context.Background(), event.UserTyping{Discussion: "d1", UserID: "bob"}))
}
