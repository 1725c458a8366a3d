package service

import (
	"context"
	"testing"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/notify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionService_Notifications(t *testing.T) {
	ctx := context.Background()
	env := newMemEnv(t)
	alice := env.newUser(t)
	bob := env.newUser(t)

	conn, _, err := env.conns.Request(ctx, alice, bob)
	require.NoError(t, err)
	_, err = env.conns.Approve(ctx, conn.ID, bob)
	require.NoError(t, err)

	assert.Equal(t, []notify.Notification{
		{Event: notify.EventConnectionRequested, RecipientID: bob, ActorID: alice, SubjectID: conn.ID},
		{Event: notify.EventConnectionApproved, RecipientID: alice, ActorID: bob, SubjectID: conn.ID},
	}, env.notes.Sent())
}

func TestConnectionService_RejectedRequestNotNotified(t *testing.T) {
	ctx := context.Background()
	env := newMemEnv(t)
	alice := env.newUser(t)
	bob := env.newUser(t)

	_, _, err := env.conns.Request(ctx, alice, bob)
	require.NoError(t, err)
	_, _, err = env.conns.Request(ctx, alice, bob)
	require.Error(t, err)

	assert.Len(t, env.notes.Sent(), 1)
}

func TestConnectionService_List(t *testing.T) {
	ctx := context.Background()
	env := newMemEnv(t)
	alice := env.newUser(t)
	bob := env.newUser(t)
	carol := env.newUser(t)

	_, _, err := env.conns.Request(ctx, alice, bob)
	require.NoError(t, err)
	_, _, err = env.conns.Request(ctx, carol, alice)
	require.NoError(t, err)

	conns, err := env.conns.List(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, conns, 2)

	conns, err = env.conns.List(ctx, bob)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, alice, conns[0].Counterpart(bob))
}

func TestConnectionService_UnknownConnection(t *testing.T) {
	env := newMemEnv(t)
	_, err := env.conns.Approve(context.Background(), uuid.New(), uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
