// Package event defines the outbound events fanned out to subscribed
// connections and permanent sinks.
package event

import (
	"time"

	"reviewroom/domain"
)

type DomainEvent interface {
	DiscussionID() domain.DiscussionID
}

// MessageReceived is broadcast to every subscriber of the room,
// sender included.
type MessageReceived struct {
	Message domain.Message
}

func (e MessageReceived) DiscussionID() domain.DiscussionID {
	return e.Message.Discussion
}

// UserTyping is broadcast to every subscriber except the sender.
// It is never persisted; clients clear stale typing state themselves.
type UserTyping struct {
	Discussion domain.DiscussionID
	UserID     string
	IsTyping   bool
}

func (e UserTyping) DiscussionID() domain.DiscussionID { return e.Discussion }

// ReceiptsUpdated is broadcast to the room after a mark-read request so
// other clients can update their read-state display.
type ReceiptsUpdated struct {
	Discussion domain.DiscussionID
	Receipts   []domain.ReadReceipt
}

func (e ReceiptsUpdated) DiscussionID() domain.DiscussionID { return e.Discussion }

// SendRejected is delivered to the originating connection only, when a
// message could not be persisted. Other room members see nothing.
type SendRejected struct {
	Discussion domain.DiscussionID
	Reason     string
	At         time.Time
}

func (e SendRejected) DiscussionID() domain.DiscussionID { return e.Discussion }
