package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/kinship/internal/email"
	"github.com/DukeRupert/kinship/internal/meeting"
	"github.com/DukeRupert/kinship/internal/meeting/mock"
	"github.com/DukeRupert/kinship/internal/notify"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/DukeRupert/kinship/internal/repository/memstore"
	"github.com/DukeRupert/kinship/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentNotice struct {
	to, name string
	notice   email.Notice
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentNotice
	err  error
}

func (f *fakeEmail) SendNotice(ctx context.Context, to, name string, notice email.Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentNotice{to: to, name: name, notice: notice})
	return nil
}

func newUser(t *testing.T, q repository.Querier, name string) uuid.UUID {
	t.Helper()
	u, err := q.CreateUser(context.Background(), repository.CreateUserParams{
		ID:    uuid.New(),
		Email: fmt.Sprintf("%s@example.com", name),
		Name:  name,
	})
	require.NoError(t, err)
	return u.ID
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// =============================================================================
// send_notification
// =============================================================================

func TestSendNotificationHandler(t *testing.T) {
	store := memstore.New()
	ana := newUser(t, store, "Ana")
	ben := newUser(t, store, "Ben")
	subject := uuid.New()

	tests := []struct {
		event    notify.Event
		subject  string
		body     string
		linkPath string
	}{
		{notify.EventConnectionRequested, "New connection request", "Ben sent you a connection request.", "/connections"},
		{notify.EventConnectionApproved, "Connection accepted", "Ben accepted your connection request.", "/connections"},
		{notify.EventMessageReceived, "New message", "Ben sent you a message.", "/messages"},
		{notify.EventSessionCreated, "Call scheduled", "Ben started a call session with you.", "/sessions/" + subject.String()},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			mail := &fakeEmail{}
			h := NewSendNotificationHandler(store, mail, discardLogger())

			err := h.Handle(context.Background(), mustJSON(t, notify.Notification{
				Event:       tt.event,
				RecipientID: ana,
				ActorID:     ben,
				SubjectID:   subject,
			}))
			require.NoError(t, err)

			require.Len(t, mail.sent, 1)
			got := mail.sent[0]
			assert.Equal(t, "Ana@example.com", got.to)
			assert.Equal(t, "Ana", got.name)
			assert.Equal(t, tt.subject, got.notice.Subject)
			assert.Equal(t, tt.body, got.notice.Body)
			assert.Equal(t, tt.linkPath, got.notice.Path)
		})
	}
}

func TestSendNotificationHandler_UnknownActor(t *testing.T) {
	store := memstore.New()
	ana := newUser(t, store, "Ana")
	mail := &fakeEmail{}
	h := NewSendNotificationHandler(store, mail, discardLogger())

	err := h.Handle(context.Background(), mustJSON(t, notify.Notification{
		Event:       notify.EventMessageReceived,
		RecipientID: ana,
		ActorID:     uuid.New(),
	}))
	require.NoError(t, err)
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "Someone sent you a message.", mail.sent[0].notice.Body)
}

func TestSendNotificationHandler_InactiveRecipient(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	ana := newUser(t, store, "Ana")
	ben := newUser(t, store, "Ben")
	require.NoError(t, store.SetUserActive(ctx, repository.SetUserActiveParams{ID: ana, IsActive: false}))

	mail := &fakeEmail{}
	h := NewSendNotificationHandler(store, mail, discardLogger())

	err := h.Handle(ctx, mustJSON(t, notify.Notification{
		Event:       notify.EventConnectionRequested,
		RecipientID: ana,
		ActorID:     ben,
	}))
	require.NoError(t, err)
	assert.Empty(t, mail.sent)
}

func TestSendNotificationHandler_PermanentFailures(t *testing.T) {
	store := memstore.New()
	ana := newUser(t, store, "Ana")
	h := NewSendNotificationHandler(store, &fakeEmail{}, discardLogger())

	tests := []struct {
		name    string
		payload []byte
	}{
		{"invalid payload", []byte("{")},
		{"unknown recipient", mustJSON(t, notify.Notification{Event: notify.EventMessageReceived, RecipientID: uuid.New()})},
		{"unknown event", mustJSON(t, notify.Notification{Event: "birthday", RecipientID: ana})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(context.Background(), tt.payload)
			require.Error(t, err)
			assert.True(t, worker.IsPermanent(err))
		})
	}
}

func TestSendNotificationHandler_SendFailureIsRetried(t *testing.T) {
	store := memstore.New()
	ana := newUser(t, store, "Ana")
	h := NewSendNotificationHandler(store, &fakeEmail{err: errors.New("smtp down")}, discardLogger())

	err := h.Handle(context.Background(), mustJSON(t, notify.Notification{
		Event:       notify.EventMessageReceived,
		RecipientID: ana,
	}))
	require.Error(t, err)
	assert.False(t, worker.IsPermanent(err))
}

// =============================================================================
// provision_meeting_link
// =============================================================================

func newSession(t *testing.T, store *memstore.Store) repository.CallSession {
	t.Helper()
	ctx := context.Background()
	s, err := store.CreateCallSession(ctx, repository.CreateCallSessionParams{
		ID:            uuid.New(),
		InitiatorID:   newUser(t, store, "Ana"),
		ParticipantID: newUser(t, store, "Ben"),
		Status:        "scheduled",
		CreatedAt:     time.Now(),
	})
	require.NoError(t, err)
	return s
}

func TestProvisionMeetingLinkHandler(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	session := newSession(t, store)
	provider := mock.New(discardLogger())
	h := NewProvisionMeetingLinkHandler(store, provider, discardLogger())

	payload := mustJSON(t, worker.ProvisionMeetingLinkPayload{SessionID: session.ID})
	require.NoError(t, h.Handle(ctx, payload))

	got, err := store.GetCallSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, got.MeetingUrl.Valid)
	assert.Equal(t, "https://meet.invalid/"+session.ID.String(), got.MeetingUrl.String)

	// A retried job does not create a second meeting.
	require.NoError(t, h.Handle(ctx, payload))
	assert.Equal(t, 1, provider.Calls())
}

func TestProvisionMeetingLinkHandler_Errors(t *testing.T) {
	tests := []struct {
		name        string
		providerErr error
		missing     bool
		payload     []byte
		permanent   bool
	}{
		{name: "invalid payload", payload: []byte("nope"), permanent: true},
		{name: "unknown session", missing: true, permanent: true},
		{name: "provider unavailable", providerErr: fmt.Errorf("dial: %w", meeting.ErrProviderUnavailable), permanent: false},
		{name: "provider rejects", providerErr: errors.New("room name taken"), permanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memstore.New()
			session := newSession(t, store)
			provider := mock.New(discardLogger())
			provider.CreateMeetingError = tt.providerErr
			h := NewProvisionMeetingLinkHandler(store, provider, discardLogger())

			payload := tt.payload
			if payload == nil {
				id := session.ID
				if tt.missing {
					id = uuid.New()
				}
				payload = mustJSON(t, worker.ProvisionMeetingLinkPayload{SessionID: id})
			}

			err := h.Handle(ctx, payload)
			require.Error(t, err)
			assert.Equal(t, tt.permanent, worker.IsPermanent(err))

			got, err := store.GetCallSession(ctx, session.ID)
			require.NoError(t, err)
			assert.False(t, got.MeetingUrl.Valid)
		})
	}
}
