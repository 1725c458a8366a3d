// Package service contains the business logic layer.
//
// This file implements the subscription service: explicit initialization,
// read-only usage views and operator plan assignment.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SubscriptionService defines operations on subscription records.
type SubscriptionService interface {
	// Initialize creates the free, active subscription for userID if none
	// exists and returns the current record.
	Initialize(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)

	// Get returns the subscription.
	// Returns domain.ENOTFOUND if the user has none yet.
	Get(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)

	// GetUsage returns limits, counters and remaining units. A user with no
	// subscription gets the free plan with zero usage; no row is created.
	GetUsage(ctx context.Context, userID uuid.UUID) (*domain.Usage, error)

	// UsageFor returns usage for every user in userIDs that has a subscription.
	UsageFor(ctx context.Context, userIDs []uuid.UUID) ([]domain.Usage, error)

	// SetPlan assigns a tier and status. Operator use only; counters are kept.
	// Returns domain.EINVALID for an unknown tier or status.
	SetPlan(ctx context.Context, userID uuid.UUID, tier domain.PlanTier, status domain.SubscriptionStatus) (*domain.Subscription, error)

	// RecentCorrections lists the latest reconciliation audit rows for userID.
	RecentCorrections(ctx context.Context, userID uuid.UUID, limit int) ([]domain.UsageCorrection, error)
}

// =============================================================================
// Implementation
// =============================================================================

type subscriptionService struct {
	store       repository.Store
	catalog     domain.PlanCatalog
	lockTimeout string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSubscriptionService creates a new SubscriptionService. cfg bounds the
// wait for the subscription row lock in SetPlan.
func NewSubscriptionService(store repository.Store, catalog domain.PlanCatalog, cfg QuotaConfig, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{
		store:       store,
		catalog:     catalog,
		lockTimeout: lockTimeoutSetting(cfg.LockTimeout),
		now:         time.Now,
		logger:      logger,
	}
}

func (s *subscriptionService) Initialize(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	const op = "subscription.initialize"

	if userID == uuid.Nil {
		return nil, domain.Invalid(op, "user is required")
	}
	if err := initSubscription(ctx, s.store, userID, s.now()); err != nil {
		return nil, domain.Internal(err, op, "failed to initialize subscription")
	}
	row, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load subscription")
	}
	return subscriptionFromRow(row), nil
}

func (s *subscriptionService) Get(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	const op = "subscription.get"

	row, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "subscription", userID.String())
		}
		return nil, domain.Internal(err, op, "failed to load subscription")
	}
	return subscriptionFromRow(row), nil
}

func (s *subscriptionService) GetUsage(ctx context.Context, userID uuid.UUID) (*domain.Usage, error) {
	const op = "subscription.get_usage"

	row, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		if !repository.IsNotFound(err) {
			return nil, domain.Internal(err, op, "failed to load subscription")
		}
		// Not initialized yet: report what the first gated action would create.
		sub := &domain.Subscription{
			UserID:    userID,
			PlanTier:  domain.PlanTierFree,
			Status:    domain.SubscriptionStatusActive,
			StartedAt: s.now(),
		}
		return domain.NewUsage(sub, s.catalog.Plan(sub.PlanTier)), nil
	}

	sub := subscriptionFromRow(row)
	return domain.NewUsage(sub, s.catalog.Plan(sub.PlanTier)), nil
}

func (s *subscriptionService) UsageFor(ctx context.Context, userIDs []uuid.UUID) ([]domain.Usage, error) {
	const op = "subscription.usage_for"

	if len(userIDs) == 0 {
		return []domain.Usage{}, nil
	}
	rows, err := s.store.ListSubscriptionsByUserIDs(ctx, userIDs)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list subscriptions")
	}

	usages := make([]domain.Usage, 0, len(rows))
	for _, row := range rows {
		sub := subscriptionFromRow(row)
		usages = append(usages, *domain.NewUsage(sub, s.catalog.Plan(sub.PlanTier)))
	}
	return usages, nil
}

func (s *subscriptionService) SetPlan(ctx context.Context, userID uuid.UUID, tier domain.PlanTier, status domain.SubscriptionStatus) (*domain.Subscription, error) {
	const op = "subscription.set_plan"

	if userID == uuid.Nil {
		return nil, domain.Invalid(op, "user is required")
	}
	if !tier.Valid() {
		return nil, domain.Invalid(op, fmt.Sprintf("unknown plan tier %q", tier))
	}
	if !status.Valid() {
		return nil, domain.Invalid(op, fmt.Sprintf("unknown subscription status %q", status))
	}

	var updated repository.Subscription
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.SetLockTimeout(ctx, s.lockTimeout); err != nil {
			return err
		}
		if err := initSubscription(ctx, q, userID, s.now()); err != nil {
			return err
		}
		var err error
		updated, err = q.UpdateSubscriptionPlan(ctx, repository.UpdateSubscriptionPlanParams{
			UserID:   userID,
			PlanTier: string(tier),
			Status:   string(status),
		})
		return err
	})
	if err != nil {
		if repository.IsRetryable(err) {
			return nil, domain.Unavailable(err, op, "subscription is busy, try again")
		}
		return nil, domain.Internal(err, op, "failed to update subscription")
	}

	s.logger.Info("subscription plan set",
		"user_id", userID,
		"tier", tier,
		"status", status,
	)
	return subscriptionFromRow(updated), nil
}

func (s *subscriptionService) RecentCorrections(ctx context.Context, userID uuid.UUID, limit int) ([]domain.UsageCorrection, error) {
	const op = "subscription.recent_corrections"

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.store.ListUsageCorrections(ctx, repository.ListUsageCorrectionsParams{
		UserID: userID,
		Limit:  int32(limit),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list usage corrections")
	}

	items := make([]domain.UsageCorrection, 0, len(rows))
	for _, row := range rows {
		items = append(items, domain.UsageCorrection{
			ID:        row.ID,
			UserID:    row.UserID,
			Kind:      domain.CorrectionKind(row.Kind),
			Details:   row.Details.RawMessage,
			CreatedAt: row.CreatedAt,
		})
	}
	return items, nil
}

// =============================================================================
// Helpers
// =============================================================================

// initSubscription inserts the default subscription for userID if absent.
// It is the first statement of every gated transaction.
func initSubscription(ctx context.Context, q repository.Querier, userID uuid.UUID, now time.Time) error {
	err := q.InitSubscription(ctx, repository.InitSubscriptionParams{
		UserID:    userID,
		PlanTier:  string(domain.PlanTierFree),
		Status:    string(domain.SubscriptionStatusActive),
		StartedAt: now,
	})
	if err != nil {
		return fmt.Errorf("initialize subscription: %w", err)
	}
	return nil
}

func subscriptionFromRow(row repository.Subscription) *domain.Subscription {
	return &domain.Subscription{
		UserID:      row.UserID,
		PlanTier:    domain.PlanTier(row.PlanTier),
		Status:      domain.SubscriptionStatus(row.Status),
		StartedAt:   row.StartedAt,
		LastResetAt: domain.NullTimeValue(row.LastResetAt),
		Counters: domain.UsageCounters{
			ConnectionsUsed: int(row.ConnectionsUsed),
			ChatUsersCount:  int(row.ChatUsersCount),
			SessionsUsed:    int(row.SessionsUsed),
		},
		UpdatedAt: row.UpdatedAt,
	}
}
