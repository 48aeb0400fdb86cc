package ws

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"reviewroom/domain"
	"reviewroom/domain/event"
)

// Inbound event names.
const (
	eventJoin     = "join_discussion"
	eventLeave    = "leave_discussion"
	eventMessage  = "new_message"
	eventTyping   = "typing"
	eventMarkRead = "mark_read"
)

// Outbound event names.
const (
	eventMessageReceived = "message_received"
	eventUserTyping      = "user_typing"
	eventReceiptsUpdated = "receipts_updated"
	eventSendRejected    = "send_rejected"
)

var validate = validator.New()

// envelope is the frame format in both directions: a tag plus a payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type joinPayload struct {
	DiscussionID string `json:"discussionId" validate:"required"`
}

type messagePayload struct {
	DiscussionID string `json:"discussionId" validate:"required"`
	Message      string `json:"message" validate:"required,max=10000"`
}

type typingPayload struct {
	DiscussionID string `json:"discussionId" validate:"required"`
	IsTyping     bool   `json:"isTyping"`
}

type markReadPayload struct {
	DiscussionID string   `json:"discussionId" validate:"required"`
	MessageIDs   []string `json:"messageIds" validate:"required,min=1,dive,uuid4"`
}

// decodeCommand turns one inbound frame into a router command. A frame
// that fails decoding or validation yields an error and is dropped by
// the caller; it must never tear down the connection.
func decodeCommand(raw []byte, connID domain.ConnID, userID string) (domain.Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	switch env.Event {
	case eventJoin:
		var p joinPayload
		if err := unmarshalPayload(env.Data, &p); err != nil {
			return nil, err
		}
		return domain.JoinCommand{
			ConnID:     connID,
			UserID:     userID,
			Discussion: domain.DiscussionID(p.DiscussionID),
		}, nil

	case eventLeave:
		var p joinPayload
		if err := unmarshalPayload(env.Data, &p); err != nil {
			return nil, err
		}
		return domain.LeaveCommand{
			ConnID:     connID,
			Discussion: domain.DiscussionID(p.DiscussionID),
		}, nil

	case eventMessage:
		var p messagePayload
		if err := unmarshalPayload(env.Data, &p); err != nil {
			return nil, err
		}
		return domain.PostMessageCommand{
			ConnID:     connID,
			UserID:     userID,
			Discussion: domain.DiscussionID(p.DiscussionID),
			Body:       p.Message,
			At:         time.Now().UTC(),
		}, nil

	case eventTyping:
		var p typingPayload
		if err := unmarshalPayload(env.Data, &p); err != nil {
			return nil, err
		}
		return domain.TypingCommand{
			ConnID:     connID,
			UserID:     userID,
			Discussion: domain.DiscussionID(p.DiscussionID),
			IsTyping:   p.IsTyping,
		}, nil

	case eventMarkRead:
		var p markReadPayload
		if err := unmarshalPayload(env.Data, &p); err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, 0, len(p.MessageIDs))
		for _, raw := range p.MessageIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return domain.MarkReadCommand{
			ConnID:     connID,
			UserID:     userID,
			Discussion: domain.DiscussionID(p.DiscussionID),
			MessageIDs: ids,
		}, nil

	default:
		return nil, errUnknownEvent{name: env.Event}
	}
}

func unmarshalPayload(data json.RawMessage, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return err
	}
	return validate.Struct(target)
}

type errUnknownEvent struct{ name string }

func (e errUnknownEvent) Error() string { return "unknown event: " + e.name }

type messageBody struct {
	ID           string    `json:"id"`
	DiscussionID string    `json:"discussionId"`
	Author       string    `json:"author"`
	Body         string    `json:"body"`
	Lang         string    `json:"lang,omitempty"`
	At           time.Time `json:"at"`
}

type receiptBody struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	ReadAt    time.Time `json:"readAt"`
}

func toMessageBody(m domain.Message) messageBody {
	return messageBody{
		ID:           m.ID.String(),
		DiscussionID: string(m.Discussion),
		Author:       m.Author,
		Body:         m.Body,
		Lang:         m.Lang,
		At:           m.At,
	}
}

// encodeEvent maps an outbound domain event to its wire envelope. The
// second return is false for event kinds the websocket boundary doesn't
// expose.
func encodeEvent(e event.DomainEvent) (outEnvelope, bool) {
	switch evt := e.(type) {
	case event.MessageReceived:
		return outEnvelope{Event: eventMessageReceived, Data: toMessageBody(evt.Message)}, true

	case event.UserTyping:
		return outEnvelope{Event: eventUserTyping, Data: map[string]any{
			"discussionId": string(evt.Discussion),
			"userId":       evt.UserID,
			"isTyping":     evt.IsTyping,
		}}, true

	case event.ReceiptsUpdated:
		return outEnvelope{Event: eventReceiptsUpdated, Data: map[string]any{
			"discussionId": string(evt.Discussion),
			"receipts": lo.Map(evt.Receipts, func(r domain.ReadReceipt, _ int) receiptBody {
				return receiptBody{
					MessageID: r.MessageID.String(),
					UserID:    r.UserID,
					ReadAt:    r.ReadAt,
				}
			}),
		}}, true

	case event.SendRejected:
		return outEnvelope{Event: eventSendRejected, Data: map[string]any{
			"discussionId": string(evt.Discussion),
			"reason":       evt.Reason,
		}}, true

	default:
		return outEnvelope{}, false
	}
}
