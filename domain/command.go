package domain

import (
	"time"

	"github.com/google/uuid"
)

// Command is an inbound intent from one connection, dispatched to the
// router. Disconnect carries no discussion, so the tag is the connection.
type Command interface {
	Conn() ConnID
}

type JoinCommand struct {
	ConnID     ConnID
	UserID     string
	Discussion DiscussionID
}

func (c JoinCommand) Conn() ConnID { return c.ConnID }

type LeaveCommand struct {
	ConnID     ConnID
	Discussion DiscussionID
}

func (c LeaveCommand) Conn() ConnID { return c.ConnID }

type PostMessageCommand struct {
	ConnID     ConnID
	UserID     string
	Discussion DiscussionID
	Body       string
	At         time.Time
}

func (c PostMessageCommand) Conn() ConnID { return c.ConnID }

type TypingCommand struct {
	ConnID     ConnID
	UserID     string
	Discussion DiscussionID
	IsTyping   bool
}

func (c TypingCommand) Conn() ConnID { return c.ConnID }

type MarkReadCommand struct {
	ConnID     ConnID
	UserID     string
	Discussion DiscussionID
	MessageIDs []uuid.UUID
}

func (c MarkReadCommand) Conn() ConnID { return c.ConnID }

type DisconnectCommand struct {
	ConnID ConnID
}

func (c DisconnectCommand) Conn() ConnID { return c.ConnID }
