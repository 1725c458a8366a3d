package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxMessageBodyLength caps the stored message body.
const MaxMessageBodyLength = 4000

// Message is an immutable chat message event. Messages are the ground truth
// for distinct chat partner counting.
type Message struct {
	ID         uuid.UUID
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Body       string
	CreatedAt  time.Time
}

// SendMessageParams contains the validated parameters for sending a message.
type SendMessageParams struct {
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Body       string
}

// Validate checks the parameters and trims the body.
func (p *SendMessageParams) Validate(op string) error {
	if p.SenderID == uuid.Nil || p.ReceiverID == uuid.Nil {
		return Invalid(op, "Sender and receiver are required")
	}
	if p.SenderID == p.ReceiverID {
		return Invalid(op, "You cannot message yourself")
	}
	p.Body = strings.TrimSpace(p.Body)
	if p.Body == "" {
		return NewValidationError(op, "body", "Message cannot be empty")
	}
	if len(p.Body) > MaxMessageBodyLength {
		return NewValidationError(op, "body", "Message is too long")
	}
	return nil
}
