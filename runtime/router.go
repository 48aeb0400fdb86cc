package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reviewroom/contract"
	"reviewroom/domain"
	"reviewroom/domain/event"
	"reviewroom/moderation"
	"reviewroom/observability"
)

// Router is the single dispatch loop of the hub. Every inbound command
// is handled to completion before the next one, which is what gives the
// per-room FIFO ordering guarantee and lets the registry mutations stay
// free of cross-command races. Broadcast targets are re-fetched from the
// registry at delivery time, never cached across a store call, so a
// join or disconnect that interleaves with message persistence is
// honored by the next delivery.
type Router struct {
	log       *slog.Logger
	registry  contract.IRegistry
	store     contract.DiscussionStore
	moderator moderation.Moderator
	metrics   *observability.Metrics
	commands  chan domain.Command
	fanout    chan event.DomainEvent // copies for permanent sinks
}

func NewRouter(
	log *slog.Logger,
	registry contract.IRegistry,
	store contract.DiscussionStore,
	moderator moderation.Moderator,
	metrics *observability.Metrics,
	bufferSize int,
) *Router {
	return &Router{
		log:       log,
		registry:  registry,
		store:     store,
		moderator: moderator,
		metrics:   metrics,
		commands:  make(chan domain.Command, bufferSize),
		fanout:    make(chan event.DomainEvent, bufferSize),
	}
}

// Ensure *Router implements the contract.Worker interface at compile time.
var _ contract.Worker = (*Router)(nil)

// Dispatch queues a command for the dispatch loop. It never blocks a
// transport goroutine: when the channel is full the command is dropped
// and counted, which is acceptable for ephemeral signals and surfaces
// as a send rejection for messages at the client's next read.
func (r *Router) Dispatch(cmd domain.Command) {
	select {
	case r.commands <- cmd:
	default:
		r.metrics.CommandsDropped.Inc()
		r.log.Warn("Command channel full, dropping command",
			"conn_id", cmd.Conn())
	}
}

// FanoutEvents exposes the copy stream consumed by the fanout worker.
func (r *Router) FanoutEvents() <-chan event.DomainEvent {
	return r.fanout
}

func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("Stopping router")
			return ctx.Err()
		case cmd, ok := <-r.commands:
			if !ok {
				return nil
			}
			r.handle(ctx, cmd)
		}
	}
}

// handle processes one command with per-command isolation: a panic in a
// handler is recovered here so one connection's event can never kill the
// dispatch loop or affect other connections.
func (r *Router) handle(ctx context.Context, cmd domain.Command) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Recovered from command handler panic",
				"conn_id", cmd.Conn(), "panic", rec)
		}
	}()

	switch c := cmd.(type) {
	case domain.JoinCommand:
		r.handleJoin(ctx, c)
	case domain.LeaveCommand:
		r.registry.Leave(c.ConnID, c.Discussion)
	case domain.PostMessageCommand:
		r.handlePostMessage(ctx, c)
	case domain.TypingCommand:
		r.handleTyping(c)
	case domain.MarkReadCommand:
		r.handleMarkRead(ctx, c)
	case domain.DisconnectCommand:
		r.registry.Disconnect(c.ConnID)
	default:
		r.log.Debug(fmt.Sprintf("Unknown command type %T, dropping", cmd))
	}
}

// handleJoin checks participant membership before subscribing. A join
// for a non-participant is rejected locally: no membership change, no
// broadcast, nothing visible to the room.
func (r *Router) handleJoin(ctx context.Context, c domain.JoinCommand) {
	ok, err := r.store.IsParticipant(ctx, c.Discussion, c.UserID)
	if err != nil {
		r.metrics.RejectionsTotal.Inc()
		r.log.Error("Participant lookup failed, rejecting join",
			"discussion", c.Discussion, "user_id", c.UserID, "error", err)
		return
	}
	if !ok {
		r.metrics.RejectionsTotal.Inc()
		r.log.Warn("Join rejected, user is not a participant",
			"discussion", c.Discussion, "user_id", c.UserID)
		return
	}
	r.registry.Join(c.ConnID, c.Discussion)
}

// handlePostMessage persists first, broadcasts second. An unpersisted
// message is never broadcast; the sender alone gets a rejection event.
func (r *Router) handlePostMessage(ctx context.Context, c domain.PostMessageCommand) {
	if !r.registry.Joined(c.ConnID, c.Discussion) {
		r.metrics.RejectionsTotal.Inc()
		r.log.Warn("Message from connection not joined to discussion, dropping",
			"discussion", c.Discussion, "conn_id", c.ConnID)
		return
	}

	body, foundWords := r.moderator.Censor(c.Body)
	if len(foundWords) > 0 {
		r.log.Info("Message censored",
			"discussion", c.Discussion, "author", c.UserID,
			"words", len(foundWords))
	}

	msg, err := r.store.CreateMessage(ctx, c.Discussion, c.UserID, body)
	if err != nil {
		r.metrics.RejectionsTotal.Inc()
		r.log.Error("Message persistence failed",
			"discussion", c.Discussion, "author", c.UserID, "error", err)
		r.deliverTo(ctx, c.ConnID, event.SendRejected{
			Discussion: c.Discussion,
			Reason:     "message could not be stored",
			At:         time.Now().UTC(),
		})
		return
	}

	r.metrics.MessagesTotal.Inc()
	evt := event.MessageReceived{Message: msg}
	r.deliver(ctx, r.registry.SinksForRoom(c.Discussion), evt)
	r.copyToFanout(evt)
}

func (r *Router) handleTyping(c domain.TypingCommand) {
	if !r.registry.Joined(c.ConnID, c.Discussion) {
		r.log.Debug("Typing signal from connection not joined, dropping",
			"discussion", c.Discussion, "conn_id", c.ConnID)
		return
	}
	r.metrics.TypingTotal.Inc()
	r.deliver(context.Background(), r.registry.SinksForOthers(c.ConnID, c.Discussion),
		event.UserTyping{
			Discussion: c.Discussion,
			UserID:     c.UserID,
			IsTyping:   c.IsTyping,
		})
}

func (r *Router) handleMarkRead(ctx context.Context, c domain.MarkReadCommand) {
	if !r.registry.Joined(c.ConnID, c.Discussion) {
		r.log.Warn("Mark-read from connection not joined, dropping",
			"discussion", c.Discussion, "conn_id", c.ConnID)
		return
	}
	receipts, err := r.store.MarkRead(ctx, c.Discussion, c.UserID, c.MessageIDs)
	if err != nil {
		r.metrics.RejectionsTotal.Inc()
		r.log.Error("Read receipt persistence failed",
			"discussion", c.Discussion, "user_id", c.UserID, "error", err)
		r.deliverTo(ctx, c.ConnID, event.SendRejected{
			Discussion: c.Discussion,
			Reason:     "read receipts could not be stored",
			At:         time.Now().UTC(),
		})
		return
	}
	if len(receipts) == 0 {
		return
	}
	r.metrics.ReceiptsTotal.Add(float64(len(receipts)))
	r.deliver(ctx, r.registry.SinksForRoom(c.Discussion), event.ReceiptsUpdated{
		Discussion: c.Discussion,
		Receipts:   receipts,
	})
}

// deliver fans an event out to the given sinks. An empty target list is
// a no-op, not an error.
func (r *Router) deliver(ctx context.Context, sinks []contract.EventSink, evt event.DomainEvent) {
	if len(sinks) == 0 {
		return
	}
	r.metrics.BroadcastsTotal.Inc()
	for _, sink := range sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			r.log.Debug("Sink refused event", "error", err)
		}
	}
}

// deliverTo targets the originating connection only, resolved at
// delivery time so a connection gone in the meantime gets nothing.
func (r *Router) deliverTo(ctx context.Context, connID domain.ConnID, evt event.DomainEvent) {
	sink, ok := r.registry.Sink(connID)
	if !ok {
		return
	}
	if err := sink.Consume(ctx, evt); err != nil {
		r.log.Debug("Sink refused event", "conn_id", connID, "error", err)
	}
}

func (r *Router) copyToFanout(evt event.DomainEvent) {
	select {
	case r.fanout <- evt:
	default:
		r.log.Debug("Fanout channel full, permanent sinks skipped one event")
	}
}
