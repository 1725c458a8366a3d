package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/kinship/internal/meeting"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/DukeRupert/kinship/internal/worker"
)

// ProvisionMeetingLinkHandler stores the meeting URL of a call session.
type ProvisionMeetingLinkHandler struct {
	queries  repository.Querier
	provider meeting.Provider
	logger   *slog.Logger
}

// NewProvisionMeetingLinkHandler creates a new handler for meeting link jobs.
func NewProvisionMeetingLinkHandler(queries repository.Querier, provider meeting.Provider, logger *slog.Logger) *ProvisionMeetingLinkHandler {
	return &ProvisionMeetingLinkHandler{
		queries:  queries,
		provider: provider,
		logger:   logger,
	}
}

// Type returns the job type identifier.
func (h *ProvisionMeetingLinkHandler) Type() string {
	return worker.JobTypeProvisionMeetingLink
}

// Handle executes the meeting link job. Sessions that already have a URL are
// left alone, so a retried job is harmless.
func (h *ProvisionMeetingLinkHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.ProvisionMeetingLinkPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	session, err := h.queries.GetCallSession(ctx, p.SessionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return worker.NewPermanentError(fmt.Errorf("session not found: %s", p.SessionID))
		}
		return fmt.Errorf("fetch session: %w", err)
	}
	if session.MeetingUrl.Valid {
		return nil
	}

	url, err := h.provider.CreateMeeting(ctx, meeting.CreateMeetingParams{
		SessionID:     session.ID,
		InitiatorID:   session.InitiatorID,
		ParticipantID: session.ParticipantID,
	})
	if err != nil {
		if errors.Is(err, meeting.ErrProviderUnavailable) {
			return fmt.Errorf("create meeting: %w", err)
		}
		return worker.NewPermanentError(fmt.Errorf("create meeting with %s: %w", h.provider.Name(), err))
	}

	err = h.queries.SetCallSessionMeetingURL(ctx, repository.SetCallSessionMeetingURLParams{
		ID:         session.ID,
		MeetingUrl: sql.NullString{String: url, Valid: true},
	})
	if err != nil {
		return fmt.Errorf("store meeting url: %w", err)
	}

	h.logger.Info("meeting link provisioned",
		"session_id", session.ID,
		"provider", h.provider.Name(),
	)
	return nil
}
