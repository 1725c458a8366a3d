package service

import (
	"context"
	"testing"
	"time"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/DukeRupert/kinship/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionService_GetUsageDoesNotCreate(t *testing.T) {
	ctx := context.Background()
	env := newMemEnv(t)
	user := env.newUser(t)

	usage, err := env.subs.GetUsage(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanTierFree, usage.Tier)
	assert.Equal(t, domain.ResourceUsage{Limit: 5, Used: 0, Remaining: 5}, usage.Resources[domain.ResourceConnectionRequest])
	assert.Equal(t, domain.ResourceUsage{Limit: 3, Used: 0, Remaining: 3}, usage.Resources[domain.ResourceChatPartner])
	assert.Equal(t, domain.ResourceUsage{Limit: 1, Used: 0, Remaining: 1}, usage.Resources[domain.ResourceSession])

	_, err = env.subs.Get(ctx, user)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestSubscriptionService_GetUsageAfterActions(t *testing.T) {
	ctx := context.Background()
	env := newMemEnv(t)
	user := env.newUser(t)
	others := env.newUsers(t, 2)

	_, _, err := env.conns.Request(ctx, user, others[0])
	require.NoError(t, err)
	env.sendMessages(t, user, others...)

	usage, err := env.subs.GetUsage(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 4, usage.Resources[domain.ResourceConnectionRequest].Remaining)
	assert.Equal(t, 1, usage.Resources[domain.ResourceChatPartner].Remaining)
	assert.Equal(t, 1, usage.Resources[domain.ResourceSession].Remaining)
	assert.True(t, usage.ResetAt.After(usage.WindowStart))

	env.setPlan(t, user, domain.PlanTierPlatinum, domain.SubscriptionStatusActive)
	usage, err = env.subs.GetUsage(ctx, user)
	require.NoError(t, err)
	conns := usage.Resources[domain.ResourceConnectionRequest]
	assert.True(t, conns.Unlimited)
	assert.Equal(t, 1, conns.Used)
	assert.Equal(t, domain.Unlimited, conns.Remaining)
}

func TestSubscriptionService_SetPlan(t *testing.T) {
	ctx := context.Background()
	env := newMemEnv(t)
	user := env.newUser(t)

	sub, err := env.subs.SetPlan(ctx, user, domain.PlanTierGold, domain.SubscriptionStatusActive)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanTierGold, sub.PlanTier)

	_, err = env.subs.SetPlan(ctx, user, "diamond", domain.SubscriptionStatusActive)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	_, err = env.subs.SetPlan(ctx, user, domain.PlanTierGold, "paused")
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	_, err = env.subs.SetPlan(ctx, uuid.Nil, domain.PlanTierGold, domain.SubscriptionStatusActive)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestSubscriptionService_Initialize(t *testing.T) {
	ctx := context.Background()
	env := newMemEnv(t)
	user := env.newUser(t)

	first, err := env.subs.Initialize(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanTierFree, first.PlanTier)
	assert.True(t, first.IsActive())

	env.setPlan(t, user, domain.PlanTierSilver, domain.SubscriptionStatusActive)

	// Initialize never overwrites an existing record.
	again, err := env.subs.Initialize(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanTierSilver, again.PlanTier)
	assert.True(t, first.StartedAt.Equal(again.StartedAt))
}

func TestSubscriptionService_UsageFor(t *testing.T) {
	ctx := context.Background()
	env := newMemEnv(t)
	users := env.newUsers(t, 3)
	for _, u := range users[:2] {
		_, err := env.subs.Initialize(ctx, u)
		require.NoError(t, err)
	}

	usages, err := env.subs.UsageFor(ctx, users)
	require.NoError(t, err)
	assert.Len(t, usages, 2)

	usages, err = env.subs.UsageFor(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, usages)
}

func TestSubscriptionService_SetPlanLockTimeout(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	env := newTestEnv(t, store)
	user := env.newUser(t)
	_, err := env.subs.Initialize(ctx, user)
	require.NoError(t, err)

	catalog, err := domain.NewStaticPlanCatalog(nil)
	require.NoError(t, err)
	subs := NewSubscriptionService(store, catalog, QuotaConfig{LockTimeout: 30 * time.Millisecond}, discardLogger())

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

	start := time.Now()
	_, err = subs.SetPlan(ctx, user, domain.PlanTierGold, domain.SubscriptionStatusActive)
	elapsed := time.Since(start)
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.Less(t, elapsed, time.Second)

	sub, err := env.subs.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanTierFree, sub.PlanTier)
}
