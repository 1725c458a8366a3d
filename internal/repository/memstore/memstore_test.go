package memstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

// newUser inserts a users row so event tables can reference it.
func newUser(t *testing.T, q repository.Querier) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := q.CreateUser(context.Background(), repository.CreateUserParams{
		ID:    id,
		Email: id.String() + "@example.com",
		Name:  "User",
	})
	require.NoError(t, err)
	return id
}

func initSub(t *testing.T, q repository.Querier, userID uuid.UUID) {
	t.Helper()
	err := q.InitSubscription(context.Background(), repository.InitSubscriptionParams{
		UserID:    userID,
		PlanTier:  "free",
		Status:    "active",
		StartedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestExecTx_RollbackUndoesWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID := newUser(t, s)
	initSub(t, s, userID)
	other := newUser(t, s)

	errBoom := errors.New("boom")
	err := s.ExecTx(ctx, func(q repository.Querier) error {
		n, err := q.IncrementConnectionsUsed(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = q.CreateConnection(ctx, repository.CreateConnectionParams{
			ID:         uuid.New(),
			FromUserID: userID,
			ToUserID:   other,
			Status:     "pending",
			CreatedAt:  time.Now(),
		})
		require.NoError(t, err)

		_, err = q.CreateMessage(ctx, repository.CreateMessageParams{
			ID:         uuid.New(),
			SenderID:   userID,
			ReceiverID: other,
			Body:       "hi",
			CreatedAt:  time.Now(),
		})
		require.NoError(t, err)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	sub, err := s.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), sub.ConnectionsUsed)

	conns, err := s.ListConnectionsForUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, conns)

	partners, err := s.CountDistinctPartners(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, partners)
}

func TestExecTx_CommitKeepsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID := uuid.New()

	err := s.ExecTx(ctx, func(q repository.Querier) error {
		initSub(t, q, userID)
		_, err := q.IncrementSessionsUsed(ctx, userID)
		return err
	})
	require.NoError(t, err)

	sub, err := s.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), sub.SessionsUsed)
}

func TestExecTx_LockTimeout(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID := uuid.New()
	initSub(t, s, userID)

	locked := make(chan struct{})
	done := make(chan struct{})
	holderErr := make(chan error, 1)

	go func() {
		holderErr <- s.ExecTx(ctx, func(q repository.Querier) error {
			if _, err := q.GetSubscriptionForUpdate(ctx, userID); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked

	err := s.ExecTx(ctx, func(q repository.Querier) error {
		require.NoError(t, q.SetLockTimeout(ctx, "50ms"))
		_, err := q.GetSubscriptionForUpdate(ctx, userID)
		return err
	})
	assert.True(t, repository.IsLockTimeout(err))
	assert.True(t, repository.IsRetryable(err))

	close(done)
	require.NoError(t, <-holderErr)

	// Released after the holder commits.
	err = s.ExecTx(ctx, func(q repository.Querier) error {
		_, err := q.GetSubscriptionForUpdate(ctx, userID)
		return err
	})
	assert.NoError(t, err)
}

func TestExecTx_LocksAreReentrant(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID := uuid.New()

	err := s.ExecTx(ctx, func(q repository.Querier) error {
		require.NoError(t, q.SetLockTimeout(ctx, "50ms"))
		initSub(t, q, userID)
		if _, err := q.GetSubscriptionForUpdate(ctx, userID); err != nil {
			return err
		}
		_, err := q.IncrementChatUsersCount(ctx, userID)
		return err
	})
	require.NoError(t, err)
}

func TestExecTx_PanicRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	userID := uuid.New()
	initSub(t, s, userID)

	assert.Panics(t, func() {
		_ = s.ExecTx(ctx, func(q repository.Querier) error {
			_, _ = q.IncrementConnectionsUsed(ctx, userID)
			panic("effect failed")
		})
	})

	sub, err := s.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), sub.ConnectionsUsed)

	// The row lock was released.
	_, err = s.IncrementConnectionsUsed(ctx, userID)
	assert.NoError(t, err)
}

func TestCreateConnection_LivePairUnique(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b := newUser(t, s), newUser(t, s)

	create := func(from, to uuid.UUID, status string) (repository.Connection, error) {
		return s.CreateConnection(ctx, repository.CreateConnectionParams{
			ID:         uuid.New(),
			FromUserID: from,
			ToUserID:   to,
			Status:     status,
			CreatedAt:  time.Now(),
		})
	}

	first, err := create(a, b, "pending")
	require.NoError(t, err)

	_, err = create(b, a, "pending")
	assert.True(t, repository.IsUniqueViolation(err))

	_, err = s.UpdateConnectionStatus(ctx, repository.UpdateConnectionStatusParams{
		ID:     first.ID,
		Status: "rejected",
	})
	require.NoError(t, err)

	_, err = create(b, a, "pending")
	assert.NoError(t, err)

	_, err = create(a, a, "pending")
	assert.Error(t, err)
}

func TestCreate_UnknownUserIsForeignKeyViolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	known := newUser(t, s)
	unknown := uuid.New()
	now := time.Now()

	tests := []struct {
		name   string
		create func() error
	}{
		{"connection", func() error {
			_, err := s.CreateConnection(ctx, repository.CreateConnectionParams{
				ID: uuid.New(), FromUserID: known, ToUserID: unknown, Status: "pending", CreatedAt: now,
			})
			return err
		}},
		{"message", func() error {
			_, err := s.CreateMessage(ctx, repository.CreateMessageParams{
				ID: uuid.New(), SenderID: known, ReceiverID: unknown, Body: "hi", CreatedAt: now,
			})
			return err
		}},
		{"call session", func() error {
			_, err := s.CreateCallSession(ctx, repository.CreateCallSessionParams{
				ID: uuid.New(), InitiatorID: unknown, ParticipantID: known, Status: "scheduled", CreatedAt: now,
			})
			return err
		}},
		{"report", func() error {
			_, err := s.CreateReport(ctx, repository.CreateReportParams{
				ID: uuid.New(), ReporterID: known, ReportedID: unknown, Reason: "spam", Status: "pending", CreatedAt: now,
			})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.create()
			assert.True(t, repository.IsForeignKeyViolation(err), "got %v", err)
		})
	}

	n, err := s.CountDistinctPartners(ctx, known)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSetLockTimeout_Invalid(t *testing.T) {
	s := New()
	err := s.ExecTx(context.Background(), func(q repository.Querier) error {
		return q.SetLockTimeout(context.Background(), "soon")
	})
	assert.Error(t, err)
}

func TestListReportThresholdCandidates(t *testing.T) {
	ctx := context.Background()
	s := New()
	reported, autoDisabled, manual := newUser(t, s), newUser(t, s), newUser(t, s)

	_, err := s.CreateReport(ctx, repository.CreateReportParams{
		ID:         uuid.New(),
		ReporterID: newUser(t, s),
		ReportedID: reported,
		Reason:     "spam",
		Status:     "pending",
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)

	for _, id := range []uuid.UUID{autoDisabled, manual} {
		_, err := s.CreateProfile(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, s.UpdateProfileDisabled(ctx, repository.UpdateProfileDisabledParams{
		UserID:         autoDisabled,
		IsDisabled:     true,
		DisabledReason: nullString("auto_report_threshold"),
	}))
	require.NoError(t, s.UpdateProfileDisabled(ctx, repository.UpdateProfileDisabledParams{
		UserID:         manual,
		IsDisabled:     true,
		DisabledReason: nullString("manual"),
	}))

	ids, err := s.ListReportThresholdCandidates(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{reported, autoDisabled}, ids)
}

func TestDequeueJob_SkipsLocked(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := New(WithClock(func() time.Time { return now }))

	_, err := s.EnqueueJob(ctx, repository.EnqueueJobParams{
		JobType:     "send_notification",
		MaxAttempts: 3,
		ScheduledAt: now.Add(-time.Second),
	})
	require.NoError(t, err)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.ExecTx(ctx, func(q repository.Querier) error {
			_, err := q.DequeueJob(ctx)
			close(held)
			<-done
			return err
		})
	}()
	<-held

	err = s.ExecTx(ctx, func(q repository.Querier) error {
		_, err := q.DequeueJob(ctx)
		return err
	})
	assert.True(t, repository.IsNotFound(err))
	close(done)
}
