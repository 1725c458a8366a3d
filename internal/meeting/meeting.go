// Package meeting defines how call sessions get a meeting link.
package meeting

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Provider creates a meeting room for a call session.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// CreateMeeting returns the join URL for the session's room. Calling it
	// twice for the same session must return the same room.
	CreateMeeting(ctx context.Context, params CreateMeetingParams) (string, error)
}

// CreateMeetingParams identifies the session and its two participants.
type CreateMeetingParams struct {
	SessionID     uuid.UUID
	InitiatorID   uuid.UUID
	ParticipantID uuid.UUID
}

// ErrProviderUnavailable is returned when the provider cannot be reached.
// Callers should retry later.
var ErrProviderUnavailable = errors.New("meeting provider unavailable")
