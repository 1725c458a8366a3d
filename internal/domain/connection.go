package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionStatus is the stored state of a connection request.
// Cancelled and removed connections are deleted rather than stored.
type ConnectionStatus string

const (
	ConnectionStatusPending  ConnectionStatus = "pending"
	ConnectionStatusApproved ConnectionStatus = "approved"
	ConnectionStatusRejected ConnectionStatus = "rejected"
)

// ConnectionAction is a transition requested on an existing connection.
type ConnectionAction string

const (
	ConnectionActionApprove ConnectionAction = "approve"
	ConnectionActionReject  ConnectionAction = "reject"
	ConnectionActionCancel  ConnectionAction = "cancel"
	ConnectionActionRemove  ConnectionAction = "remove"
)

// Connection is a connection request between two users.
type Connection struct {
	ID          uuid.UUID
	FromUserID  uuid.UUID
	ToUserID    uuid.UUID
	Status      ConnectionStatus
	CreatedAt   time.Time
	RespondedAt *time.Time
}

// Involves reports whether userID is either party.
func (c *Connection) Involves(userID uuid.UUID) bool {
	return c.FromUserID == userID || c.ToUserID == userID
}

// Counterpart returns the other party of the connection.
func (c *Connection) Counterpart(userID uuid.UUID) uuid.UUID {
	if c.FromUserID == userID {
		return c.ToUserID
	}
	return c.FromUserID
}

// BlocksNewRequest reports whether this record prevents another request
// for the same pair. Rejected records never do.
func (c *Connection) BlocksNewRequest() bool {
	return c.Status == ConnectionStatusPending || c.Status == ConnectionStatusApproved
}

// ValidateNewRequest checks a request from one user to another against the
// existing non-rejected record for the pair, if any.
func ValidateNewRequest(op string, from, to uuid.UUID, existing *Connection) error {
	if from == uuid.Nil || to == uuid.Nil {
		return Invalid(op, "Both users are required")
	}
	if from == to {
		return Invalid(op, "You cannot send a connection request to yourself")
	}
	if existing != nil && existing.BlocksNewRequest() {
		return ConnectionAlreadyExists(op)
	}
	return nil
}

// Apply validates action by actor and returns the resulting state.
// deleted is true for cancel and remove, which drop the record.
//
// Valid transitions:
// - pending -> approved | rejected (recipient only)
// - pending -> cancelled (requester only)
// - approved -> removed (either party)
func (c *Connection) Apply(op string, actor uuid.UUID, action ConnectionAction) (next ConnectionStatus, deleted bool, err error) {
	if !c.Involves(actor) {
		return c.Status, false, ConnectionStateInvalid(op, "You are not a party to this connection")
	}

	switch action {
	case ConnectionActionApprove, ConnectionActionReject:
		if actor != c.ToUserID {
			return c.Status, false, ConnectionStateInvalid(op, "Only the recipient can respond to a connection request")
		}
		if c.Status != ConnectionStatusPending {
			return c.Status, false, ConnectionStateInvalid(op, "Only pending requests can be "+pastTense(action))
		}
		if action == ConnectionActionApprove {
			return ConnectionStatusApproved, false, nil
		}
		return ConnectionStatusRejected, false, nil

	case ConnectionActionCancel:
		if actor != c.FromUserID {
			return c.Status, false, ConnectionStateInvalid(op, "Only the requester can cancel a connection request")
		}
		if c.Status != ConnectionStatusPending {
			return c.Status, false, ConnectionStateInvalid(op, "Only pending requests can be cancelled")
		}
		return c.Status, true, nil

	case ConnectionActionRemove:
		if c.Status != ConnectionStatusApproved {
			return c.Status, false, ConnectionStateInvalid(op, "Only approved connections can be removed")
		}
		return c.Status, true, nil
	}

	return c.Status, false, Invalid(op, "Unknown connection action")
}

func pastTense(action ConnectionAction) string {
	switch action {
	case ConnectionActionApprove:
		return "approved"
	case ConnectionActionReject:
		return "rejected"
	}
	return string(action)
}
