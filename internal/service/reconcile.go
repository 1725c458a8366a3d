// Package service contains the business logic layer.
//
// This file implements reconciliation: recomputing cached usage counters
// from the event tables and correcting drift. It is independent of the
// write path in quota.go and never increments anything.
package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/metrics"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"golang.org/x/sync/errgroup"
)

// DefaultReconcileConcurrency is the number of users reconciled in parallel.
const DefaultReconcileConcurrency = 4

// =============================================================================
// Interface Definition
// =============================================================================

// ReconciliationService corrects counter drift.
type ReconciliationService interface {
	// Reconcile recomputes the counters of one user and writes them if they
	// differ. Running it twice with no events in between reports
	// Corrected=false the second time.
	// Returns domain.ENOTFOUND if the user has no subscription.
	Reconcile(ctx context.Context, userID uuid.UUID) (*domain.ReconcileResult, error)

	// ReconcileAll reconciles every subscription. Per-user failures are
	// logged and listed in the summary; they never abort the batch.
	ReconcileAll(ctx context.Context) (*domain.BatchSummary, error)
}

// =============================================================================
// Implementation
// =============================================================================

// ReconcileConfig holds reconciliation settings.
type ReconcileConfig struct {
	// Concurrency bounds parallel users in ReconcileAll. Default: 4.
	Concurrency int
	// LockTimeout bounds the wait for a user's subscription row lock.
	LockTimeout time.Duration
}

type reconciliationService struct {
	store       repository.Store
	partners    DistinctPartnerCounter
	concurrency int
	lockTimeout string
	now         func() time.Time
	logger      *slog.Logger
}

// NewReconciliationService creates a new ReconciliationService.
func NewReconciliationService(
	store repository.Store,
	partners DistinctPartnerCounter,
	cfg ReconcileConfig,
	logger *slog.Logger,
) ReconciliationService {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = DefaultReconcileConcurrency
	}
	return &reconciliationService{
		store:       store,
		partners:    partners,
		concurrency: concurrency,
		lockTimeout: lockTimeoutSetting(cfg.LockTimeout),
		now:         time.Now,
		logger:      logger,
	}
}

// usageDrift is stored in usage_corrections.details.
type usageDrift struct {
	Old domain.UsageCounters `json:"old"`
	New domain.UsageCounters `json:"new"`
}

func (s *reconciliationService) Reconcile(ctx context.Context, userID uuid.UUID) (*domain.ReconcileResult, error) {
	const op = "reconcile.user"

	// Counting runs unlocked first; most users have no drift and never
	// contend with their own gated actions.
	row, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "subscription", userID.String())
		}
		return nil, domain.Internal(err, op, "failed to load subscription")
	}
	sub := subscriptionFromRow(row)

	counts, err := s.recount(ctx, s.store, sub)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to recount usage")
	}
	result := &domain.ReconcileResult{
		UserID: userID,
		Old:    sub.Counters,
		New:    counts,
	}
	if counts == sub.Counters {
		return result, nil
	}

	// Drift seen. Recount under the user's lock so an action that committed
	// after the unlocked read is included in what gets written.
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.SetLockTimeout(ctx, s.lockTimeout); err != nil {
			return err
		}
		row, err := q.GetSubscriptionForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		locked := subscriptionFromRow(row)

		counts, err := s.recount(ctx, q, locked)
		if err != nil {
			return err
		}
		result.Old = locked.Counters
		result.New = counts
		if counts == locked.Counters {
			return nil
		}

		if err := q.CorrectUsageCounters(ctx, counterCorrection(userID, locked.Counters, counts)); err != nil {
			return fmt.Errorf("update counters: %w", err)
		}
		if err := writeCorrection(ctx, q, userID, domain.CorrectionKindUsage, usageDrift{Old: locked.Counters, New: counts}, s.now()); err != nil {
			return err
		}
		result.Corrected = true
		return nil
	})
	if err != nil {
		return nil, wrapStoreError(err, op, "failed to correct usage")
	}

	if result.Corrected {
		recordCounterCorrections(result.Old, result.New)
		s.logger.Info("usage drift corrected",
			"user_id", userID,
			"old", result.Old,
			"new", result.New,
		)
	}
	return result, nil
}

// counterCorrection sets only the counters whose recount differs from the
// cached value.
func counterCorrection(userID uuid.UUID, old, recounted domain.UsageCounters) repository.CorrectUsageCountersParams {
	changed := func(o, n int) sql.NullInt32 {
		return sql.NullInt32{Int32: int32(n), Valid: o != n}
	}
	return repository.CorrectUsageCountersParams{
		UserID:          userID,
		ConnectionsUsed: changed(old.ConnectionsUsed, recounted.ConnectionsUsed),
		ChatUsersCount:  changed(old.ChatUsersCount, recounted.ChatUsersCount),
		SessionsUsed:    changed(old.SessionsUsed, recounted.SessionsUsed),
	}
}

// recount computes the true counters of sub from the event tables.
func (s *reconciliationService) recount(ctx context.Context, q repository.Querier, sub *domain.Subscription) (domain.UsageCounters, error) {
	since := sub.WindowStart()

	connections, err := q.CountConnectionsSentSince(ctx, repository.CountConnectionsSentSinceParams{
		FromUserID: sub.UserID,
		Since:      since,
	})
	if err != nil {
		return domain.UsageCounters{}, fmt.Errorf("count connections: %w", err)
	}

	sessions, err := q.CountCallSessionsSince(ctx, repository.CountCallSessionsSinceParams{
		InitiatorID: sub.UserID,
		Since:       since,
	})
	if err != nil {
		return domain.UsageCounters{}, fmt.Errorf("count sessions: %w", err)
	}

	partners, err := s.partners.CountOf(ctx, q, sub.UserID)
	if err != nil {
		return domain.UsageCounters{}, err
	}

	return domain.UsageCounters{
		ConnectionsUsed: int(connections),
		ChatUsersCount:  partners,
		SessionsUsed:    int(sessions),
	}, nil
}

func (s *reconciliationService) ReconcileAll(ctx context.Context) (*domain.BatchSummary, error) {
	const op = "reconcile.all"

	ids, err := s.store.ListSubscriptionUserIDs(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list subscriptions")
	}

	summary, err := runBatch(ctx, ids, s.concurrency, s.logger.With("op", op), func(ctx context.Context, id uuid.UUID) (bool, error) {
		res, err := s.Reconcile(ctx, id)
		if err != nil {
			return false, err
		}
		return res.Corrected, nil
	})
	if err != nil {
		return summary, domain.Unavailable(err, op, "reconciliation interrupted")
	}

	s.logger.Info("reconciliation finished",
		"checked", summary.Checked,
		"corrected", len(summary.Corrected),
		"failed", len(summary.Failed),
	)
	return summary, nil
}

// =============================================================================
// Helpers
// =============================================================================

// runBatch applies fn to every id with bounded concurrency. fn reports
// whether it changed anything. Errors are logged and collected; only
// cancellation of ctx stops the batch early.
func runBatch(
	ctx context.Context,
	ids []uuid.UUID,
	concurrency int,
	logger *slog.Logger,
	fn func(ctx context.Context, id uuid.UUID) (bool, error),
) (*domain.BatchSummary, error) {
	summary := &domain.BatchSummary{
		Corrected: []uuid.UUID{},
		Failed:    []uuid.UUID{},
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(concurrency)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			changed, err := fn(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			summary.Checked++
			switch {
			case err != nil:
				summary.Failed = append(summary.Failed, id)
				logger.Error("batch item failed", "user_id", id, "error", err)
			case changed:
				summary.Corrected = append(summary.Corrected, id)
			}
			return nil
		})
	}
	_ = g.Wait()

	sortIDs(summary.Corrected)
	sortIDs(summary.Failed)
	return summary, ctx.Err()
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}

// writeCorrection stores an audit row in the transaction that made the correction.
func writeCorrection(ctx context.Context, q repository.Querier, userID uuid.UUID, kind domain.CorrectionKind, details any, now time.Time) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal correction details: %w", err)
	}
	_, err = q.CreateUsageCorrection(ctx, repository.CreateUsageCorrectionParams{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      string(kind),
		Details:   pqtype.NullRawMessage{RawMessage: raw, Valid: true},
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("write usage correction: %w", err)
	}
	return nil
}

func recordCounterCorrections(old, new domain.UsageCounters) {
	if old.ConnectionsUsed != new.ConnectionsUsed {
		metrics.UsageCorrected("connections_used")
	}
	if old.ChatUsersCount != new.ChatUsersCount {
		metrics.UsageCorrected("chat_users_count")
	}
	if old.SessionsUsed != new.SessionsUsed {
		metrics.UsageCorrected("sessions_used")
	}
}
