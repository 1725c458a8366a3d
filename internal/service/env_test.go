package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/notify"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/DukeRupert/kinship/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testEnv wires every service over one store, the way cmd/server does.
type testEnv struct {
	store      repository.Store
	enforcer   QuotaEnforcer
	subs       SubscriptionService
	conns      ConnectionService
	messages   MessageService
	sessions   SessionService
	reconciler ReconciliationService
	reports    ReportService
	cycles     CycleService
	notes      *notify.Recorder
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, store repository.Store) *testEnv {
	t.Helper()

	catalog, err := domain.NewStaticPlanCatalog(nil)
	require.NoError(t, err)

	logger := discardLogger()
	partners := NewDistinctPartnerCounter()
	quotaCfg := QuotaConfig{LockTimeout: 2 * time.Second}
	batchCfg := ReconcileConfig{Concurrency: 4, LockTimeout: 2 * time.Second}
	notes := &notify.Recorder{}
	enforcer := NewQuotaEnforcer(store, catalog, partners, quotaCfg, logger)

	return &testEnv{
		store:      store,
		enforcer:   enforcer,
		subs:       NewSubscriptionService(store, catalog, quotaCfg, logger),
		conns:      NewConnectionService(store, enforcer, notes, quotaCfg, logger),
		messages:   NewMessageService(enforcer, notes, logger),
		sessions:   NewSessionService(store, enforcer, notes, logger),
		reconciler: NewReconciliationService(store, partners, batchCfg, logger),
		reports:    NewReportService(store, batchCfg, logger),
		cycles:     NewCycleService(store, batchCfg, logger),
		notes:      notes,
	}
}

func newMemEnv(t *testing.T) *testEnv {
	return newTestEnv(t, memstore.New())
}

// newUser creates a user with a profile and returns its ID.
func (e *testEnv) newUser(t *testing.T) uuid.UUID {
	t.Helper()
	id := e.newUserWithoutProfile(t)
	_, err := e.store.CreateProfile(context.Background(), id)
	require.NoError(t, err)
	return id
}

func (e *testEnv) newUserWithoutProfile(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := e.store.CreateUser(context.Background(), repository.CreateUserParams{
		ID:    id,
		Email: id.String() + "@example.com",
		Name:  "Test User",
	})
	require.NoError(t, err)
	return id
}

func (e *testEnv) newUsers(t *testing.T, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = e.newUser(t)
	}
	return ids
}

func (e *testEnv) setPlan(t *testing.T, userID uuid.UUID, tier domain.PlanTier, status domain.SubscriptionStatus) {
	t.Helper()
	_, err := e.subs.SetPlan(context.Background(), userID, tier, status)
	require.NoError(t, err)
}

func (e *testEnv) counters(t *testing.T, userID uuid.UUID) domain.UsageCounters {
	t.Helper()
	sub, err := e.subs.Get(context.Background(), userID)
	require.NoError(t, err)
	return sub.Counters
}

// sendMessages sends one message from sender to each receiver.
func (e *testEnv) sendMessages(t *testing.T, sender uuid.UUID, receivers ...uuid.UUID) {
	t.Helper()
	for _, r := range receivers {
		_, _, err := e.messages.Send(context.Background(), domain.SendMessageParams{
			SenderID:   sender,
			ReceiverID: r,
			Body:       "hello",
		})
		require.NoError(t, err)
	}
}
