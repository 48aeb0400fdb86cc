// Package domain contains core concepts of the discussion system.
// Entities here are transport-agnostic; no runtime, network, or storage
// logic should be added to this package.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DiscussionID identifies one manuscript discussion thread.
type DiscussionID string

// ConnID identifies one live client connection. It is allocated by the
// registry on connect and is meaningless once the connection is gone.
type ConnID string

// Message represents an immutable discussion message.
// Lang is the ISO 639-1 code detected at persistence time, empty when
// detection was inconclusive.
type Message struct {
	ID         uuid.UUID
	Discussion DiscussionID
	Author     string
	Body       string
	Lang       string
	At         time.Time
}

// ReadReceipt records that a user has seen a specific message.
// At most one receipt exists per (user, message) pair.
type ReadReceipt struct {
	Discussion DiscussionID
	MessageID  uuid.UUID
	UserID     string
	ReadAt     time.Time
}

// Participant is a user authorized to read and write a discussion.
type Participant struct {
	Discussion DiscussionID
	UserID     string
	AddedAt    time.Time
}
