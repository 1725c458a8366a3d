// Package service contains the business logic layer.
//
// This file implements the connection service. Creating a request is a
// gated action; responding to, cancelling and removing a connection are
// state machine transitions that consume no quota.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/notify"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ConnectionService defines operations on connection requests.
type ConnectionService interface {
	// Request sends a connection request from fromUserID to toUserID.
	// Returns domain.EINVALID for a self-request.
	// Returns domain.ECONFLICT if a pending or approved connection exists in
	// either direction.
	// Returns the quota enforcer errors otherwise.
	Request(ctx context.Context, fromUserID, toUserID uuid.UUID) (*domain.Connection, *Authorization, error)

	// Approve accepts a pending request. Only the recipient may approve.
	Approve(ctx context.Context, connectionID, actorID uuid.UUID) (*domain.Connection, error)

	// Reject declines a pending request. Only the recipient may reject.
	Reject(ctx context.Context, connectionID, actorID uuid.UUID) (*domain.Connection, error)

	// Cancel withdraws a pending request and deletes it. Only the requester may cancel.
	Cancel(ctx context.Context, connectionID, actorID uuid.UUID) error

	// Remove deletes an approved connection. Either party may remove.
	Remove(ctx context.Context, connectionID, actorID uuid.UUID) error

	// List returns every connection involving userID, newest first.
	List(ctx context.Context, userID uuid.UUID) ([]domain.Connection, error)
}

// =============================================================================
// Implementation
// =============================================================================

type connectionService struct {
	store       repository.Store
	enforcer    QuotaEnforcer
	notifier    notify.Dispatcher
	lockTimeout string
	now         func() time.Time
	logger      *slog.Logger
}

// NewConnectionService creates a new ConnectionService.
func NewConnectionService(
	store repository.Store,
	enforcer QuotaEnforcer,
	notifier notify.Dispatcher,
	cfg QuotaConfig,
	logger *slog.Logger,
) ConnectionService {
	return &connectionService{
		store:       store,
		enforcer:    enforcer,
		notifier:    notifier,
		lockTimeout: lockTimeoutSetting(cfg.LockTimeout),
		now:         time.Now,
		logger:      logger,
	}
}

// =============================================================================
// Request
// =============================================================================

func (s *connectionService) Request(ctx context.Context, fromUserID, toUserID uuid.UUID) (*domain.Connection, *Authorization, error) {
	const op = "connection.request"

	if err := domain.ValidateNewRequest(op, fromUserID, toUserID, nil); err != nil {
		return nil, nil, err
	}

	// Report a duplicate before touching quota; the check is repeated under
	// the lock and by the unique index.
	if err := s.checkNoLiveConnection(ctx, op, s.store, fromUserID, toUserID); err != nil {
		return nil, nil, err
	}

	gate := Gate{UserID: fromUserID, Kind: domain.ResourceConnectionRequest}
	row, auth, err := gated(ctx, s.enforcer, gate, func(ctx context.Context, q repository.Querier) (repository.Connection, error) {
		if err := s.checkNoLiveConnection(ctx, op, q, fromUserID, toUserID); err != nil {
			return repository.Connection{}, err
		}
		row, err := q.CreateConnection(ctx, repository.CreateConnectionParams{
			ID:         uuid.New(),
			FromUserID: fromUserID,
			ToUserID:   toUserID,
			Status:     string(domain.ConnectionStatusPending),
			CreatedAt:  s.now(),
		})
		switch {
		case err == nil:
			return row, nil
		case repository.IsUniqueViolation(err):
			return repository.Connection{}, domain.ConnectionAlreadyExists(op)
		case repository.IsForeignKeyViolation(err):
			return repository.Connection{}, domain.NotFound(op, "user", toUserID.String())
		}
		return repository.Connection{}, err
	})
	if err != nil {
		return nil, nil, err
	}

	conn := connectionFromRow(row)
	s.logger.Info("connection requested",
		"connection_id", conn.ID,
		"from_user_id", fromUserID,
		"to_user_id", toUserID,
	)
	s.notifier.Dispatch(ctx, notify.Notification{
		Event:       notify.EventConnectionRequested,
		RecipientID: toUserID,
		ActorID:     fromUserID,
		SubjectID:   conn.ID,
	})
	return conn, auth, nil
}

func (s *connectionService) checkNoLiveConnection(ctx context.Context, op string, q repository.Querier, from, to uuid.UUID) error {
	existing, err := q.GetLiveConnectionBetween(ctx, repository.GetLiveConnectionBetweenParams{
		UserA: from,
		UserB: to,
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return domain.Internal(err, op, "failed to check existing connection")
	}
	return domain.ValidateNewRequest(op, from, to, connectionFromRow(existing))
}

// =============================================================================
// Transitions
// =============================================================================

func (s *connectionService) Approve(ctx context.Context, connectionID, actorID uuid.UUID) (*domain.Connection, error) {
	conn, err := s.transition(ctx, "connection.approve", connectionID, actorID, domain.ConnectionActionApprove)
	if err != nil {
		return nil, err
	}
	s.notifier.Dispatch(ctx, notify.Notification{
		Event:       notify.EventConnectionApproved,
		RecipientID: conn.FromUserID,
		ActorID:     actorID,
		SubjectID:   conn.ID,
	})
	return conn, nil
}

func (s *connectionService) Reject(ctx context.Context, connectionID, actorID uuid.UUID) (*domain.Connection, error) {
	return s.transition(ctx, "connection.reject", connectionID, actorID, domain.ConnectionActionReject)
}

func (s *connectionService) Cancel(ctx context.Context, connectionID, actorID uuid.UUID) error {
	_, err := s.transition(ctx, "connection.cancel", connectionID, actorID, domain.ConnectionActionCancel)
	return err
}

func (s *connectionService) Remove(ctx context.Context, connectionID, actorID uuid.UUID) error {
	_, err := s.transition(ctx, "connection.remove", connectionID, actorID, domain.ConnectionActionRemove)
	return err
}

// transition locks the connection row, applies action and persists the
// result. Deleting actions return the record as it was before deletion.
func (s *connectionService) transition(ctx context.Context, op string, connectionID, actorID uuid.UUID, action domain.ConnectionAction) (*domain.Connection, error) {
	var result *domain.Connection
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.SetLockTimeout(ctx, s.lockTimeout); err != nil {
			return err
		}

		row, err := q.GetConnectionForUpdate(ctx, connectionID)
		if err != nil {
			if repository.IsNotFound(err) {
				return domain.NotFound(op, "connection", connectionID.String())
			}
			return err
		}
		conn := connectionFromRow(row)

		next, deleted, err := conn.Apply(op, actorID, action)
		if err != nil {
			return err
		}

		if deleted {
			if _, err := q.DeleteConnection(ctx, conn.ID); err != nil {
				return err
			}
			result = conn
			return nil
		}

		updated, err := q.UpdateConnectionStatus(ctx, repository.UpdateConnectionStatusParams{
			ID:          conn.ID,
			Status:      string(next),
			RespondedAt: domain.ToNullTime(timePtr(s.now())),
		})
		if err != nil {
			return err
		}
		result = connectionFromRow(updated)
		return nil
	})
	if err != nil {
		return nil, wrapStoreError(err, op, "failed to update connection")
	}

	s.logger.Info("connection transition",
		"connection_id", connectionID,
		"actor_id", actorID,
		"action", action,
	)
	return result, nil
}

// =============================================================================
// List
// =============================================================================

func (s *connectionService) List(ctx context.Context, userID uuid.UUID) ([]domain.Connection, error) {
	const op = "connection.list"

	rows, err := s.store.ListConnectionsForUser(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list connections")
	}

	conns := make([]domain.Connection, 0, len(rows))
	for _, row := range rows {
		conns = append(conns, *connectionFromRow(row))
	}
	return conns, nil
}

// =============================================================================
// Helpers
// =============================================================================

func connectionFromRow(row repository.Connection) *domain.Connection {
	return &domain.Connection{
		ID:          row.ID,
		FromUserID:  row.FromUserID,
		ToUserID:    row.ToUserID,
		Status:      domain.ConnectionStatus(row.Status),
		CreatedAt:   row.CreatedAt,
		RespondedAt: domain.NullTimeValue(row.RespondedAt),
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// wrapStoreError passes domain errors through and classifies the rest.
func wrapStoreError(err error, op, message string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if _, ok := domain.AsQuotaError(err); ok {
		return err
	}
	if repository.IsRetryable(err) {
		return domain.Unavailable(err, op, "The request timed out. Refresh and try again.")
	}
	return domain.Internal(err, op, message)
}
