// Package service contains the business logic layer.
//
// This file implements the call session service. Creating a session is a
// gated action; the meeting link is provisioned by a background job after
// commit.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/notify"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/DukeRupert/kinship/internal/worker"
	"github.com/google/uuid"
)

// SessionService defines call session operations.
type SessionService interface {
	// Create schedules a call session between the initiator and participant.
	// Only the initiator's session quota is consumed.
	// Returns domain.EINVALID if the participant is missing or the initiator.
	Create(ctx context.Context, initiatorID, participantID uuid.UUID) (*domain.CallSession, *Authorization, error)

	// Get returns a session visible to userID.
	// Returns domain.ENOTFOUND if it does not exist or userID is not a participant.
	Get(ctx context.Context, sessionID, userID uuid.UUID) (*domain.CallSession, error)
}

type sessionService struct {
	store    repository.Store
	enforcer QuotaEnforcer
	notifier notify.Dispatcher
	now      func() time.Time
	logger   *slog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(store repository.Store, enforcer QuotaEnforcer, notifier notify.Dispatcher, logger *slog.Logger) SessionService {
	return &sessionService{
		store:    store,
		enforcer: enforcer,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *sessionService) Create(ctx context.Context, initiatorID, participantID uuid.UUID) (*domain.CallSession, *Authorization, error) {
	const op = "session.create"

	if initiatorID == uuid.Nil || participantID == uuid.Nil {
		return nil, nil, domain.Invalid(op, "Both participants are required")
	}
	if initiatorID == participantID {
		return nil, nil, domain.Invalid(op, "You cannot start a session with yourself")
	}

	gate := Gate{UserID: initiatorID, Kind: domain.ResourceSession}
	row, auth, err := gated(ctx, s.enforcer, gate, func(ctx context.Context, q repository.Querier) (repository.CallSession, error) {
		row, err := q.CreateCallSession(ctx, repository.CreateCallSessionParams{
			ID:            uuid.New(),
			InitiatorID:   initiatorID,
			ParticipantID: participantID,
			Status:        string(domain.CallSessionStatusScheduled),
			CreatedAt:     s.now(),
		})
		if repository.IsForeignKeyViolation(err) {
			return row, domain.NotFound(op, "user", participantID.String())
		}
		return row, err
	})
	if err != nil {
		return nil, nil, err
	}

	session := callSessionFromRow(row)
	s.logger.Info("call session created",
		"session_id", session.ID,
		"initiator_id", initiatorID,
		"participant_id", participantID,
	)

	if _, err := worker.EnqueueMeetingLink(ctx, s.store, session.ID); err != nil {
		s.logger.Warn("failed to enqueue meeting link",
			"session_id", session.ID,
			"error", err,
		)
	}
	s.notifier.Dispatch(ctx, notify.Notification{
		Event:       notify.EventSessionCreated,
		RecipientID: participantID,
		ActorID:     initiatorID,
		SubjectID:   session.ID,
	})
	return session, auth, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID, userID uuid.UUID) (*domain.CallSession, error) {
	const op = "session.get"

	row, err := s.store.GetCallSession(ctx, sessionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "session", sessionID.String())
		}
		return nil, domain.Internal(err, op, "failed to load session")
	}
	if row.InitiatorID != userID && row.ParticipantID != userID {
		return nil, domain.NotFound(op, "session", sessionID.String())
	}
	return callSessionFromRow(row), nil
}

func callSessionFromRow(row repository.CallSession) *domain.CallSession {
	return &domain.CallSession{
		ID:            row.ID,
		InitiatorID:   row.InitiatorID,
		ParticipantID: row.ParticipantID,
		Status:        domain.CallSessionStatus(row.Status),
		MeetingURL:    domain.NullStringValue(row.MeetingUrl),
		CreatedAt:     row.CreatedAt,
	}
}
