package sink

import (
	"context"
	"fmt"
	"log/slog"

	"reviewroom/contract"
	"reviewroom/domain/event"
)

// IndexSink feeds the full-text index from the event fanout. Only
// persisted messages are indexed; typing signals and receipts carry no
// searchable text.
type IndexSink struct {
	index contract.MessageIndex
	log   *slog.Logger
}

func NewIndexSink(index contract.MessageIndex, log *slog.Logger) IndexSink {
	return IndexSink{index: index, log: log}
}

func (s IndexSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageReceived:
		return s.index.Index(evt.Message)
	default:
		s.log.Debug(fmt.Sprintf("Not an indexable event : %T", evt))
		return nil
	}
}
