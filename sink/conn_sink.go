// Package sink provides EventSink implementations: the per-connection
// buffered channel drained by the websocket write pump, and the adapter
// feeding the search index from the event fanout.
package sink

import (
	"context"

	"reviewroom/domain/event"
)

// ConnSink buffers outbound events for one connection. The write pump
// owns the receiving side.
type ConnSink struct {
	Events chan event.DomainEvent
	onDrop func()
}

func NewConnSink(bufferSize int, onDrop func()) *ConnSink {
	return &ConnSink{
		Events: make(chan event.DomainEvent, bufferSize),
		onDrop: onDrop,
	}
}

// Consume is called by the router during broadcast.
// Redirect the event through the concerned owner of the channel;
// the write pump will take it from now. A full buffer means the client
// is too slow, so the event is dropped rather than stalling the
// dispatch loop.
func (s *ConnSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		if s.onDrop != nil {
			s.onDrop()
		}
		return nil
	}
}
