// Package service contains the business logic layer.
//
// This file implements the billing-cycle reset of the connection and
// session counters.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/metrics"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/google/uuid"
)

// CycleService resets counting windows.
type CycleService interface {
	// ResetDue zeroes connections_used and sessions_used for every active
	// subscription whose window has elapsed at now, and starts the next
	// window at now. The chat partner count is never reset.
	ResetDue(ctx context.Context, now time.Time) (*domain.CycleResetResult, error)
}

type cycleService struct {
	store       repository.Store
	concurrency int
	lockTimeout string
	logger      *slog.Logger
}

// NewCycleService creates a new CycleService.
func NewCycleService(store repository.Store, cfg ReconcileConfig, logger *slog.Logger) CycleService {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = DefaultReconcileConcurrency
	}
	return &cycleService{
		store:       store,
		concurrency: concurrency,
		lockTimeout: lockTimeoutSetting(cfg.LockTimeout),
		logger:      logger,
	}
}

func (s *cycleService) ResetDue(ctx context.Context, now time.Time) (*domain.CycleResetResult, error) {
	const op = "cycle.reset_due"

	// Any window that ends by now started at least 28 days ago, so this
	// cutoff lists a superset of the due subscriptions. Each one is checked
	// again under its lock.
	ids, err := s.store.ListSubscriptionsDueForReset(ctx, now.AddDate(0, 0, -28))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list subscriptions")
	}

	logger := s.logger.With("op", op)
	summary, err := runBatch(ctx, ids, s.concurrency, logger, func(ctx context.Context, id uuid.UUID) (bool, error) {
		return s.resetOne(ctx, id, now)
	})
	result := &domain.CycleResetResult{
		Reset:  summary.Corrected,
		Failed: summary.Failed,
	}
	if err != nil {
		return result, domain.Unavailable(err, op, "cycle reset interrupted")
	}

	if len(result.Reset) > 0 || len(result.Failed) > 0 {
		s.logger.Info("cycle reset finished",
			"candidates", summary.Checked,
			"reset", len(result.Reset),
			"failed", len(result.Failed),
		)
	}
	return result, nil
}

// resetOne resets userID's window if it is still due once locked.
func (s *cycleService) resetOne(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	var reset bool
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.SetLockTimeout(ctx, s.lockTimeout); err != nil {
			return err
		}
		row, err := q.GetSubscriptionForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		sub := subscriptionFromRow(row)
		if !sub.IsActive() || !sub.ResetDue(now) {
			return nil
		}

		if err := q.ResetUsageWindow(ctx, repository.ResetUsageWindowParams{
			UserID:      userID,
			LastResetAt: sql.NullTime{Time: now, Valid: true},
		}); err != nil {
			return err
		}
		reset = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if reset {
		metrics.CycleResetsTotal.Inc()
		s.logger.Debug("usage window reset", "user_id", userID, "at", now)
	}
	return reset, nil
}
