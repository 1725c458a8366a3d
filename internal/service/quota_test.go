package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/DukeRupert/kinship/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quotaProperties run against every backend. Each one creates its own users
// so they can share a database.
var quotaProperties = []struct {
	name string
	run  func(t *testing.T, env *testEnv)
}{
	{"limit admits exactly N", testLimitAdmitsExactlyN},
	{"parallel requests never overshoot", testParallelRequestsNeverOvershoot},
	{"parallel sessions at the last unit", testParallelSessionsAtLastUnit},
	{"failed effect consumes nothing", testFailedEffectConsumesNothing},
	{"failed increment rolls back the effect", testFailedIncrementRollsBackEffect},
	{"unknown counterpart consumes nothing", testUnknownCounterpartConsumesNothing},
	{"existing chat partner is free", testExistingChatPartnerIsFree},
	{"distinct partners count each person once", testDistinctPartnersCountEachPersonOnce},
	{"reconcile is idempotent", testReconcileIsIdempotent},
	{"connection lifecycle", testConnectionLifecycle},
	{"report threshold is symmetric", testReportThresholdIsSymmetric},
	{"inactive subscription is blocked", testInactiveSubscriptionIsBlocked},
	{"unlimited plan skips the check", testUnlimitedPlan},
}

func TestQuotaProperties(t *testing.T) {
	for _, p := range quotaProperties {
		t.Run(p.name, func(t *testing.T) {
			p.run(t, newMemEnv(t))
		})
	}
}

// =============================================================================
// Properties
// =============================================================================

func testLimitAdmitsExactlyN(t *testing.T, env *testEnv) {
	ctx := context.Background()
	user := env.newUser(t)
	targets := env.newUsers(t, 6)

	for i := 0; i < 5; i++ {
		conn, auth, err := env.conns.Request(ctx, user, targets[i])
		require.NoError(t, err)
		assert.Equal(t, domain.ConnectionStatusPending, conn.Status)
		assert.Equal(t, 5, auth.Limit)
		assert.Equal(t, i+1, auth.Used)
		assert.Equal(t, 4-i, auth.Remaining())
	}

	_, _, err := env.conns.Request(ctx, user, targets[5])
	qe, ok := domain.AsQuotaError(err)
	require.True(t, ok, "expected quota error, got %v", err)
	assert.Equal(t, domain.ResourceConnectionRequest, qe.Resource)
	assert.Equal(t, domain.PlanTierFree, qe.Tier)
	assert.Equal(t, 5, qe.Limit)
	assert.Equal(t, 5, qe.Used)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))

	conns, err := env.conns.List(ctx, user)
	require.NoError(t, err)
	assert.Len(t, conns, 5)
	assert.Equal(t, 5, env.counters(t, user).ConnectionsUsed)
}

func testParallelRequestsNeverOvershoot(t *testing.T, env *testEnv) {
	ctx := context.Background()
	user := env.newUser(t)
	targets := env.newUsers(t, 12)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		allowed  int
		exceeded int
		other    []error
	)
	for _, target := range targets {
		wg.Add(1)
		go func(target uuid.UUID) {
			defer wg.Done()
			_, _, err := env.conns.Request(ctx, user, target)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				allowed++
			case domain.ErrorCode(err) == domain.EQUOTA:
				exceeded++
			default:
				other = append(other, err)
			}
		}(target)
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 5, allowed)
	assert.Equal(t, 7, exceeded)

	conns, err := env.conns.List(ctx, user)
	require.NoError(t, err)
	assert.Len(t, conns, 5)
	assert.Equal(t, 5, env.counters(t, user).ConnectionsUsed)
}

func testParallelSessionsAtLastUnit(t *testing.T, env *testEnv) {
	ctx := context.Background()
	user := env.newUser(t)
	partner := env.newUser(t)
	env.setPlan(t, user, domain.PlanTierSilver, domain.SubscriptionStatusActive)

	for i := 0; i < 4; i++ {
		_, _, err := env.sessions.Create(ctx, user, partner)
		require.NoError(t, err)
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = env.sessions.Create(ctx, user, partner)
		}(i)
	}
	wg.Wait()

	var allowed, exceeded int
	for _, err := range errs {
		switch {
		case err == nil:
			allowed++
		case domain.ErrorCode(err) == domain.EQUOTA:
			exceeded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, allowed)
	assert.Equal(t, 1, exceeded)
	assert.Equal(t, 5, env.counters(t, user).SessionsUsed)

	n, err := env.store.CountCallSessionsSince(ctx, repository.CountCallSessionsSinceParams{InitiatorID: user})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func testFailedEffectConsumesNothing(t *testing.T, env *testEnv) {
	ctx := context.Background()
	user := env.newUser(t)
	target := env.newUser(t)
	errEffect := errors.New("downstream write failed")

	_, err := env.enforcer.AuthorizeAndCommit(ctx, Gate{UserID: user, Kind: domain.ResourceConnectionRequest},
		func(ctx context.Context, q repository.Querier) error {
			_, err := q.CreateConnection(ctx, repository.CreateConnectionParams{
				ID:         uuid.New(),
				FromUserID: user,
				ToUserID:   target,
				Status:     string(domain.ConnectionStatusPending),
				CreatedAt:  time.Now(),
			})
			require.NoError(t, err)
			return errEffect
		})
	require.Error(t, err)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.ErrorIs(t, err, errEffect)

	// The effect's write rolled back with the transaction.
	conns, err := env.conns.List(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, conns)
	assert.Zero(t, env.counters(t, user).ConnectionsUsed)

	// A domain error from the effect passes through unchanged.
	_, err = env.enforcer.AuthorizeAndCommit(ctx, Gate{UserID: user, Kind: domain.ResourceSession},
		func(ctx context.Context, q repository.Querier) error {
			return domain.Conflict("test.effect", "already scheduled")
		})
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
	assert.Zero(t, env.counters(t, user).SessionsUsed)
}

var errIncrement = errors.New("counter update failed")

// failingIncrementStore hands every transaction a Querier whose session
// counter update fails.
type failingIncrementStore struct {
	repository.Store
}

func (s failingIncrementStore) ExecTx(ctx context.Context, fn func(q repository.Querier) error) error {
	return s.Store.ExecTx(ctx, func(q repository.Querier) error {
		return fn(failingIncrementQuerier{q})
	})
}

type failingIncrementQuerier struct {
	repository.Querier
}

func (failingIncrementQuerier) IncrementSessionsUsed(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, errIncrement
}

func testFailedIncrementRollsBackEffect(t *testing.T, env *testEnv) {
	ctx := context.Background()
	user := env.newUser(t)
	partner := env.newUser(t)
	_, err := env.subs.Initialize(ctx, user)
	require.NoError(t, err)
	failing := newTestEnv(t, failingIncrementStore{env.store})

	_, _, err = failing.sessions.Create(ctx, user, partner)
	require.Error(t, err)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.ErrorIs(t, err, errIncrement)

	n, err := env.store.CountCallSessionsSince(ctx, repository.CountCallSessionsSinceParams{InitiatorID: user})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, env.counters(t, user).SessionsUsed)
}

func testUnknownCounterpartConsumesNothing(t *testing.T, env *testEnv) {
	ctx := context.Background()
	user := env.newUser(t)
	ghost := uuid.New()
	_, err := env.subs.Initialize(ctx, user)
	require.NoError(t, err)

	_, _, err = env.messages.Send(ctx, domain.SendMessageParams{SenderID: user, ReceiverID: ghost, Body: "hi"})
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	_, _, err = env.sessions.Create(ctx, user, ghost)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	_, _, err = env.conns.Request(ctx, user, ghost)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	assert.Equal(t, domain.UsageCounters{}, env.counters(t, user))
}

func testExistingChatPartnerIsFree(t *testing.T, env *testEnv) {
	ctx := context.Background()
	user := env.newUser(t)
	partners := env.newUsers(t, 3)
	inbound := env.newUser(t)
	stranger := env.newUser(t)

	env.sendMessages(t, user, partners...)
	assert.Equal(t, 3, env.counters(t, user).ChatUsersCount)

	// At the cap, an existing partner is still reachable and costs nothing.
	_, auth, err := env.messages.Send(ctx, domain.SendMessageParams{
		SenderID:   user,
		ReceiverID: partners[0],
		Body:       "again",
	})
	require.NoError(t, err)
	assert.False(t, auth.Consumed)
	assert.Equal(t, 3, auth.Used)
	assert.Equal(t, 3, env.counters(t, user).ChatUsersCount)

	// A new partner is refused.
	_, _, err = env.messages.Send(ctx, domain.SendMessageParams{
		SenderID:   user,
		ReceiverID: stranger,
		Body:       "hi",
	})
	qe, ok := domain.AsQuotaError(err)
	require.True(t, ok, "expected quota error, got %v", err)
	assert.Equal(t, domain.ResourceChatPartner, qe.Resource)
	assert.Equal(t, 3, qe.Limit)
	assert.Equal(t, 3, qe.Used)

	// Someone who wrote first is already a partner, so replying is free.
	env.sendMessages(t, inbound, user)
	_, auth, err = env.messages.Send(ctx, domain.SendMessageParams{
		SenderID:   user,
		ReceiverID: inbound,
		Body:       "reply",
	})
	require.NoError(t, err)
	assert.False(t, auth.Consumed)
}

func testDistinctPartnersCountEachPersonOnce(t *testing.T, env *testEnv) {
	ctx := context.Background()
	user := env.newUser(t)
	a := env.newUser(t)
	b := env.newUser(t)

	env.sendMessages(t, user, a)
	env.sendMessages(t, b, user)
	env.sendMessages(t, user, a)

	n, err := NewDistinctPartnerCounter().CountOf(ctx, env.store, user)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testReconcileIsIdempotent(t *testing.T, env *testEnv) {
	ctx := context.Background()
	user := env.newUser(t)
	others := env.newUsers(t, 3)

	_, _, err := env.conns.Request(ctx, user, others[0])
	require.NoError(t, err)
	_, _, err = env.conns.Request(ctx, user, others[1])
	require.NoError(t, err)
	env.sendMessages(t, user, others[2])
	_, _, err = env.sessions.Create(ctx, user, others[0])
	require.NoError(t, err)

	truth := domain.UsageCounters{ConnectionsUsed: 2, ChatUsersCount: 1, SessionsUsed: 1}

	// No drift: nothing is written.
	res, err := env.reconciler.Reconcile(ctx, user)
	require.NoError(t, err)
	assert.False(t, res.Corrected)
	assert.Equal(t, truth, res.New)

	require.NoError(t, env.store.UpdateUsageCounters(ctx, repository.UpdateUsageCountersParams{
		UserID:          user,
		ConnectionsUsed: 4,
		ChatUsersCount:  0,
		SessionsUsed:    1,
	}))

	res, err = env.reconciler.Reconcile(ctx, user)
	require.NoError(t, err)
	assert.True(t, res.Corrected)
	assert.Equal(t, domain.UsageCounters{ConnectionsUsed: 4, ChatUsersCount: 0, SessionsUsed: 1}, res.Old)
	assert.Equal(t, truth, res.New)
	assert.Equal(t, truth, env.counters(t, user))

	res, err = env.reconciler.Reconcile(ctx, user)
	require.NoError(t, err)
	assert.False(t, res.Corrected)
	assert.Equal(t, truth, res.Old)
	assert.Equal(t, truth, res.New)

	corrections, err := env.subs.RecentCorrections(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	assert.Equal(t, domain.CorrectionKindUsage, corrections[0].Kind)
	assert.JSONEq(t,
		`{"old":{"connections_used":4,"chat_users_count":0,"sessions_used":1},"new":{"connections_used":2,"chat_users_count":1,"sessions_used":1}}`,
		string(corrections[0].Details))
}

func testConnectionLifecycle(t *testing.T, env *testEnv) {
	ctx := context.Background()
	alice := env.newUser(t)
	bob := env.newUser(t)
	carol := env.newUser(t)

	conn, _, err := env.conns.Request(ctx, alice, bob)
	require.NoError(t, err)

	// Duplicate in either direction.
	_, _, err = env.conns.Request(ctx, alice, bob)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
	_, _, err = env.conns.Request(ctx, bob, alice)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
	assert.Equal(t, 1, env.counters(t, alice).ConnectionsUsed)

	// Only the recipient responds.
	_, err = env.conns.Approve(ctx, conn.ID, alice)
	assert.Equal(t, domain.EINVALIDSTATE, domain.ErrorCode(err))
	_, err = env.conns.Approve(ctx, conn.ID, carol)
	assert.Equal(t, domain.EINVALIDSTATE, domain.ErrorCode(err))

	approved, err := env.conns.Approve(ctx, conn.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionStatusApproved, approved.Status)
	assert.NotNil(t, approved.RespondedAt)

	_, err = env.conns.Reject(ctx, conn.ID, bob)
	assert.Equal(t, domain.EINVALIDSTATE, domain.ErrorCode(err))
	err = env.conns.Cancel(ctx, conn.ID, alice)
	assert.Equal(t, domain.EINVALIDSTATE, domain.ErrorCode(err))

	// Either party removes; the row is gone.
	require.NoError(t, env.conns.Remove(ctx, conn.ID, bob))
	err = env.conns.Remove(ctx, conn.ID, alice)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	// A rejected request is terminal and does not block a new one.
	second, _, err := env.conns.Request(ctx, bob, alice)
	require.NoError(t, err)
	rejected, err := env.conns.Reject(ctx, second.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionStatusRejected, rejected.Status)
	_, err = env.conns.Approve(ctx, second.ID, alice)
	assert.Equal(t, domain.EINVALIDSTATE, domain.ErrorCode(err))

	third, _, err := env.conns.Request(ctx, alice, bob)
	require.NoError(t, err)
	err = env.conns.Cancel(ctx, third.ID, bob)
	assert.Equal(t, domain.EINVALIDSTATE, domain.ErrorCode(err))
	require.NoError(t, env.conns.Cancel(ctx, third.ID, alice))

	// Transitions never touch quota.
	assert.Equal(t, 2, env.counters(t, alice).ConnectionsUsed)
	assert.Equal(t, 1, env.counters(t, bob).ConnectionsUsed)

	_, _, err = env.conns.Request(ctx, alice, alice)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func testReportThresholdIsSymmetric(t *testing.T, env *testEnv) {
	ctx := context.Background()
	target := env.newUser(t)
	reporters := env.newUsers(t, domain.ReportThreshold)

	var reports []*domain.Report
	for i, reporter := range reporters {
		report, err := env.reports.File(ctx, domain.FileReportParams{
			ReporterID: reporter,
			ReportedID: target,
			Reason:     "spam",
		})
		require.NoError(t, err)
		reports = append(reports, report)

		profile, err := env.store.GetProfile(ctx, target)
		require.NoError(t, err)
		assert.Equal(t, i == len(reporters)-1, profile.IsDisabled, "after %d reports", i+1)
	}

	user, err := env.store.GetUser(ctx, target)
	require.NoError(t, err)
	assert.False(t, user.IsActive)

	// A repeat report from the same reporter does not change the count.
	_, err = env.reports.File(ctx, domain.FileReportParams{
		ReporterID: reporters[0],
		ReportedID: target,
		Reason:     "still spam",
	})
	require.NoError(t, err)

	// Dismissal alone does not re-enable.
	_, err = env.reports.Dismiss(ctx, reports[1].ID)
	require.NoError(t, err)
	profile, err := env.store.GetProfile(ctx, target)
	require.NoError(t, err)
	assert.True(t, profile.IsDisabled)

	res, err := env.reports.EnforceThreshold(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, domain.ThresholdEnable, res.Decision)
	assert.Equal(t, domain.ReportThreshold-1, res.DistinctReporters)
	assert.True(t, res.WasDisabled)
	assert.False(t, res.Disabled)

	profile, err = env.store.GetProfile(ctx, target)
	require.NoError(t, err)
	assert.False(t, profile.IsDisabled)
	assert.False(t, profile.DisabledReason.Valid)
	user, err = env.store.GetUser(ctx, target)
	require.NoError(t, err)
	assert.True(t, user.IsActive)

	// Idempotent.
	res, err = env.reports.EnforceThreshold(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, domain.ThresholdNoChange, res.Decision)

	corrections, err := env.subs.RecentCorrections(ctx, target, 10)
	require.NoError(t, err)
	require.Len(t, corrections, 2)
	for _, c := range corrections {
		assert.Equal(t, domain.CorrectionKindReportThreshold, c.Kind)
	}
}

func testInactiveSubscriptionIsBlocked(t *testing.T, env *testEnv) {
	ctx := context.Background()
	user := env.newUser(t)
	target := env.newUser(t)

	for _, status := range []domain.SubscriptionStatus{domain.SubscriptionStatusExpired, domain.SubscriptionStatusCancelled} {
		env.setPlan(t, user, domain.PlanTierGold, status)

		_, _, err := env.conns.Request(ctx, user, target)
		assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
		_, _, err = env.sessions.Create(ctx, user, target)
		assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
		_, _, err = env.messages.Send(ctx, domain.SendMessageParams{SenderID: user, ReceiverID: target, Body: "hi"})
		assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	}

	conns, err := env.conns.List(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, conns)
	assert.Equal(t, domain.UsageCounters{}, env.counters(t, user))

	env.setPlan(t, user, domain.PlanTierGold, domain.SubscriptionStatusActive)
	_, _, err = env.conns.Request(ctx, user, target)
	assert.NoError(t, err)
}

func testUnlimitedPlan(t *testing.T, env *testEnv) {
	ctx := context.Background()
	user := env.newUser(t)
	other := env.newUser(t)
	env.setPlan(t, user, domain.PlanTierPlatinum, domain.SubscriptionStatusActive)

	for i := 0; i < 12; i++ {
		_, auth, err := env.sessions.Create(ctx, user, other)
		require.NoError(t, err)
		assert.Equal(t, domain.Unlimited, auth.Limit)
		assert.Equal(t, domain.Unlimited, auth.Remaining())
	}
	assert.Equal(t, 12, env.counters(t, user).SessionsUsed)
}

// =============================================================================
// Memstore-only cases
// =============================================================================

func TestAuthorizeAndCommit_LockTimeoutIsUnavailable(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	env := newTestEnv(t, store)
	user := env.newUser(t)
	target := env.newUser(t)

	_, err := env.subs.Initialize(ctx, user)
	require.NoError(t, err)

	catalog, err := domain.NewStaticPlanCatalog(nil)
	require.NoError(t, err)
	enforcer := NewQuotaEnforcer(store, catalog, NewDistinctPartnerCounter(), QuotaConfig{LockTimeout: 30 * time.Millisecond}, discardLogger())

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.ExecTx(ctx, func(q repository.Querier) error {
			if _, err := q.GetSubscriptionForUpdate(ctx, user); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	effectRan := false
	_, err = enforcer.AuthorizeAndCommit(ctx, Gate{UserID: user, Kind: domain.ResourceConnectionRequest},
		func(ctx context.Context, q repository.Querier) error {
			effectRan = true
			return nil
		})
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.True(t, domain.IsRetryable(err))
	assert.True(t, repository.IsLockTimeout(err))
	assert.False(t, effectRan)

	// Other users are never blocked by that lock.
	_, _, err = env.conns.Request(ctx, target, user)
	assert.NoError(t, err)
}

func TestAuthorizeAndCommit_InitializesSubscription(t *testing.T) {
	ctx := context.Background()
	env := newMemEnv(t)
	user := env.newUser(t)
	other := env.newUser(t)

	_, err := env.subs.Get(ctx, user)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	_, auth, err := env.sessions.Create(ctx, user, other)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanTierFree, auth.Tier)

	sub, err := env.subs.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, 1, sub.Counters.SessionsUsed)
}

func TestAuthorizeAndCommit_InvalidGate(t *testing.T) {
	env := newMemEnv(t)
	noop := func(ctx context.Context, q repository.Querier) error { return nil }

	tests := []struct {
		name string
		gate Gate
	}{
		{"missing user", Gate{Kind: domain.ResourceSession}},
		{"unknown resource", Gate{UserID: uuid.New(), Kind: "likes"}},
		{"chat without partner", Gate{UserID: uuid.New(), Kind: domain.ResourceChatPartner}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.enforcer.AuthorizeAndCommit(context.Background(), tt.gate, noop)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}
}
