package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallSessionStatus is the lifecycle state of a call session. Only creation
// matters to quota; the rest belongs to the calling feature.
type CallSessionStatus string

const (
	CallSessionStatusScheduled CallSessionStatus = "scheduled"
	CallSessionStatusEnded     CallSessionStatus = "ended"
)

// CallSession is a voice/video session between two users.
type CallSession struct {
	ID            uuid.UUID
	InitiatorID   uuid.UUID
	ParticipantID uuid.UUID
	Status        CallSessionStatus
	MeetingURL    string
	CreatedAt     time.Time
}
