// Package service contains the business logic layer.
//
// This file implements the quota enforcer: the single critical section that
// checks a gated action against the caller's plan and commits the action's
// side effect together with the usage increment.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/metrics"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/google/uuid"
)

// DefaultLockTimeout bounds the wait for a user's subscription row lock.
const DefaultLockTimeout = 5 * time.Second

// =============================================================================
// Interface Definition
// =============================================================================

// Gate identifies one gated action.
type Gate struct {
	UserID uuid.UUID
	Kind   domain.ResourceKind

	// PartnerID is the counterpart of a chat message. Required for
	// domain.ResourceChatPartner, ignored otherwise.
	PartnerID uuid.UUID
}

func (g Gate) validate(op string) error {
	if g.UserID == uuid.Nil {
		return domain.Invalid(op, "user is required")
	}
	if !g.Kind.Valid() {
		return domain.Invalid(op, fmt.Sprintf("unknown resource %q", g.Kind))
	}
	if g.Kind == domain.ResourceChatPartner && g.PartnerID == uuid.Nil {
		return domain.Invalid(op, "chat partner is required")
	}
	return nil
}

// Effect is the side effect of a gated action. It runs inside the enforcer's
// transaction and must use q for every write so that a failure rolls back
// the effect together with the usage increment.
type Effect func(ctx context.Context, q repository.Querier) error

// Authorization describes a committed gated action.
type Authorization struct {
	Resource domain.ResourceKind
	Tier     domain.PlanTier
	Limit    int
	// Used is the consumption after the action.
	Used int
	// Consumed is false when the action did not use a unit, which happens
	// when messaging an existing chat partner.
	Consumed bool
}

// Remaining returns the units left, or domain.Unlimited.
func (a *Authorization) Remaining() int {
	return domain.NewResourceUsage(a.Limit, a.Used).Remaining
}

// QuotaEnforcer gates actions against the caller's plan.
type QuotaEnforcer interface {
	// AuthorizeAndCommit locks the caller's subscription, checks status and
	// limit, runs effect and increments the usage counter, all in one
	// transaction. Nothing is written when the check fails.
	//
	// Returns domain.EPAYMENT if the subscription is not active.
	// Returns *domain.QuotaError if the plan limit is reached.
	// Returns domain.EUNAVAILABLE on lock timeout or storage failure; the
	// caller must re-read state before retrying.
	// Errors from effect that are *domain.Error are returned unchanged.
	AuthorizeAndCommit(ctx context.Context, gate Gate, effect Effect) (*Authorization, error)
}

// =============================================================================
// Implementation
// =============================================================================

// QuotaConfig holds enforcer settings.
type QuotaConfig struct {
	// LockTimeout bounds the wait for the per-user row lock. Default: 5s.
	LockTimeout time.Duration
}

type quotaEnforcer struct {
	store       repository.Store
	catalog     domain.PlanCatalog
	partners    DistinctPartnerCounter
	lockTimeout string
	now         func() time.Time
	logger      *slog.Logger
}

// NewQuotaEnforcer creates a new QuotaEnforcer.
func NewQuotaEnforcer(
	store repository.Store,
	catalog domain.PlanCatalog,
	partners DistinctPartnerCounter,
	cfg QuotaConfig,
	logger *slog.Logger,
) QuotaEnforcer {
	return &quotaEnforcer{
		store:       store,
		catalog:     catalog,
		partners:    partners,
		lockTimeout: lockTimeoutSetting(cfg.LockTimeout),
		now:         time.Now,
		logger:      logger,
	}
}

// lockTimeoutSetting renders d as a Postgres lock_timeout value.
func lockTimeoutSetting(d time.Duration) string {
	if d <= 0 {
		d = DefaultLockTimeout
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// AuthorizeAndCommit implements QuotaEnforcer.
func (s *quotaEnforcer) AuthorizeAndCommit(ctx context.Context, gate Gate, effect Effect) (*Authorization, error) {
	const op = "quota.authorize"

	if err := gate.validate(op); err != nil {
		return nil, err
	}

	start := time.Now()
	var auth *Authorization
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		auth, err = s.authorize(ctx, op, q, gate, effect)
		return err
	})
	elapsed := time.Since(start)

	if err != nil {
		return nil, s.classify(op, gate, err, elapsed)
	}

	metrics.GatedAction(string(gate.Kind), metrics.OutcomeAllowed, elapsed)
	s.logger.Debug("gated action committed",
		"user_id", gate.UserID,
		"resource", gate.Kind,
		"tier", auth.Tier,
		"used", auth.Used,
		"limit", auth.Limit,
		"consumed", auth.Consumed,
	)
	return auth, nil
}

// authorize is the body of the gated transaction.
func (s *quotaEnforcer) authorize(ctx context.Context, op string, q repository.Querier, gate Gate, effect Effect) (*Authorization, error) {
	if err := q.SetLockTimeout(ctx, s.lockTimeout); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}
	if err := initSubscription(ctx, q, gate.UserID, s.now()); err != nil {
		return nil, err
	}

	row, err := q.GetSubscriptionForUpdate(ctx, gate.UserID)
	if err != nil {
		return nil, fmt.Errorf("lock subscription: %w", err)
	}
	sub := subscriptionFromRow(row)
	if !sub.IsActive() {
		return nil, domain.SubscriptionInactive(op, sub.Status)
	}

	plan := s.catalog.Plan(sub.PlanTier)
	auth := &Authorization{
		Resource: gate.Kind,
		Tier:     plan.Tier,
		Limit:    plan.Limit(gate.Kind),
		Used:     sub.Counters.Get(gate.Kind),
		Consumed: true,
	}

	// Chat is capped on distinct partners. Messaging someone already
	// talked to is free; a new partner is checked against the live count.
	if gate.Kind == domain.ResourceChatPartner {
		isNew, err := s.partners.IsNewPartner(ctx, q, gate.UserID, gate.PartnerID)
		if err != nil {
			return nil, err
		}
		auth.Consumed = isNew
		if isNew && !plan.IsUnlimited(gate.Kind) {
			if auth.Used, err = s.partners.CountOf(ctx, q, gate.UserID); err != nil {
				return nil, err
			}
		}
	}

	if auth.Consumed {
		if err := domain.CheckQuota(op, plan, gate.Kind, auth.Used); err != nil {
			return nil, err
		}
	}

	if err := effect(ctx, q); err != nil {
		return nil, err
	}

	if auth.Consumed {
		n, err := incrementUsage(ctx, q, gate.Kind, gate.UserID)
		if err != nil {
			return nil, fmt.Errorf("increment %s: %w", gate.Kind, err)
		}
		if n != 1 {
			return nil, fmt.Errorf("increment %s: %d rows affected", gate.Kind, n)
		}
		auth.Used++
	}
	return auth, nil
}

// classify turns a failed transaction into the error returned to callers and
// records its outcome.
func (s *quotaEnforcer) classify(op string, gate Gate, err error, elapsed time.Duration) error {
	resource := string(gate.Kind)

	if qe, ok := domain.AsQuotaError(err); ok {
		metrics.GatedAction(resource, metrics.OutcomeExceeded, elapsed)
		s.logger.Info("quota exceeded",
			"user_id", gate.UserID,
			"resource", gate.Kind,
			"tier", qe.Tier,
			"used", qe.Used,
			"limit", qe.Limit,
		)
		return err
	}

	var de *domain.Error
	if errors.As(err, &de) {
		outcome := metrics.OutcomeError
		if de.Code == domain.EPAYMENT {
			outcome = metrics.OutcomeInactive
		}
		metrics.GatedAction(resource, outcome, elapsed)
		return err
	}

	metrics.GatedAction(resource, metrics.OutcomeUnavailable, elapsed)
	if repository.IsLockTimeout(err) {
		s.logger.Warn("subscription lock timeout",
			"user_id", gate.UserID,
			"resource", gate.Kind,
			"waited", elapsed,
		)
	} else {
		s.logger.Error("gated action failed",
			"user_id", gate.UserID,
			"resource", gate.Kind,
			"error", err,
		)
	}
	return domain.Unavailable(err, op, "The request could not be completed. Check your usage before trying again.")
}

// incrementUsage adds one to the counter that tracks kind.
func incrementUsage(ctx context.Context, q repository.Querier, kind domain.ResourceKind, userID uuid.UUID) (int64, error) {
	switch kind {
	case domain.ResourceConnectionRequest:
		return q.IncrementConnectionsUsed(ctx, userID)
	case domain.ResourceChatPartner:
		return q.IncrementChatUsersCount(ctx, userID)
	case domain.ResourceSession:
		return q.IncrementSessionsUsed(ctx, userID)
	}
	return 0, fmt.Errorf("unknown resource %q", kind)
}

// gated runs create as the effect of a gated action and returns what it created.
func gated[T any](
	ctx context.Context,
	enforcer QuotaEnforcer,
	gate Gate,
	create func(ctx context.Context, q repository.Querier) (T, error),
) (T, *Authorization, error) {
	var created T
	auth, err := enforcer.AuthorizeAndCommit(ctx, gate, func(ctx context.Context, q repository.Querier) error {
		var err error
		created, err = create(ctx, q)
		return err
	})
	if err != nil {
		var zero T
		return zero, nil, err
	}
	return created, auth, nil
}
