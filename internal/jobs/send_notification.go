// Package jobs contains the background job handlers run by the worker.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/email"
	"github.com/DukeRupert/kinship/internal/metrics"
	"github.com/DukeRupert/kinship/internal/notify"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/DukeRupert/kinship/internal/worker"
)

// SendNotificationHandler emails the recipient of a notification.
type SendNotificationHandler struct {
	queries      repository.Querier
	emailService email.EmailService
	logger       *slog.Logger
}

// NewSendNotificationHandler creates a new handler for notification jobs.
func NewSendNotificationHandler(queries repository.Querier, emailService email.EmailService, logger *slog.Logger) *SendNotificationHandler {
	return &SendNotificationHandler{
		queries:      queries,
		emailService: emailService,
		logger:       logger,
	}
}

// Type returns the job type identifier.
func (h *SendNotificationHandler) Type() string {
	return worker.JobTypeSendNotification
}

// Handle executes the notification job.
func (h *SendNotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var n notify.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	row, err := h.queries.GetUser(ctx, n.RecipientID)
	if err != nil {
		if repository.IsNotFound(err) {
			return worker.NewPermanentError(fmt.Errorf("recipient not found: %s", n.RecipientID))
		}
		return fmt.Errorf("fetch recipient: %w", err)
	}
	recipient := userFromRow(row)

	// Deactivated accounts, including ones hidden by the report threshold,
	// get no mail.
	if !recipient.IsActive {
		h.logger.Info("notification skipped, recipient inactive",
			"event", n.Event,
			"recipient_id", n.RecipientID,
		)
		return nil
	}

	actorName := "Someone"
	if actor, err := h.queries.GetUser(ctx, n.ActorID); err == nil {
		actorName = userFromRow(actor).DisplayName()
	}

	notice, err := noticeFor(n, actorName)
	if err != nil {
		return worker.NewPermanentError(err)
	}

	err = h.emailService.SendNotice(ctx, recipient.Email, recipient.DisplayName(), notice)
	metrics.NotificationSent(string(n.Event), err)
	if err != nil {
		return fmt.Errorf("send notice: %w", err)
	}
	return nil
}

// noticeFor renders the email content of n.
func noticeFor(n notify.Notification, actorName string) (email.Notice, error) {
	switch n.Event {
	case notify.EventConnectionRequested:
		return email.Notice{
			Subject: "New connection request",
			Heading: "Someone wants to connect",
			Body:    fmt.Sprintf("%s sent you a connection request.", actorName),
			Path:    "/connections",
		}, nil
	case notify.EventConnectionApproved:
		return email.Notice{
			Subject: "Connection accepted",
			Heading: "You have a new connection",
			Body:    fmt.Sprintf("%s accepted your connection request.", actorName),
			Path:    "/connections",
		}, nil
	case notify.EventMessageReceived:
		return email.Notice{
			Subject: "New message",
			Heading: "You have a new message",
			Body:    fmt.Sprintf("%s sent you a message.", actorName),
			Path:    "/messages",
		}, nil
	case notify.EventSessionCreated:
		return email.Notice{
			Subject: "Call scheduled",
			Heading: "A call has been scheduled",
			Body:    fmt.Sprintf("%s started a call session with you.", actorName),
			Path:    "/sessions/" + n.SubjectID.String(),
		}, nil
	}
	return email.Notice{}, fmt.Errorf("unknown notification event: %s", n.Event)
}

func userFromRow(row repository.User) *domain.User {
	return &domain.User{
		ID:        row.ID,
		Email:     row.Email,
		Name:      row.Name,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
	}
}
