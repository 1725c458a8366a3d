// Package service contains the business logic layer.
//
// This file implements the message service. Sending is gated on distinct
// chat partners: only the first message exchanged with someone consumes a
// unit.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/notify"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/google/uuid"
)

// MessageService defines chat operations.
type MessageService interface {
	// Send stores a message from params.SenderID to params.ReceiverID.
	// Returns domain.EINVALID for an empty, oversized or self-addressed message.
	// Returns *domain.QuotaError when the receiver would be a new partner
	// beyond the plan's chat cap.
	Send(ctx context.Context, params domain.SendMessageParams) (*domain.Message, *Authorization, error)
}

type messageService struct {
	enforcer QuotaEnforcer
	notifier notify.Dispatcher
	now      func() time.Time
	logger   *slog.Logger
}

// NewMessageService creates a new MessageService.
func NewMessageService(enforcer QuotaEnforcer, notifier notify.Dispatcher, logger *slog.Logger) MessageService {
	return &messageService{
		enforcer: enforcer,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *messageService) Send(ctx context.Context, params domain.SendMessageParams) (*domain.Message, *Authorization, error) {
	const op = "message.send"

	if err := params.Validate(op); err != nil {
		return nil, nil, err
	}

	gate := Gate{
		UserID:    params.SenderID,
		Kind:      domain.ResourceChatPartner,
		PartnerID: params.ReceiverID,
	}
	row, auth, err := gated(ctx, s.enforcer, gate, func(ctx context.Context, q repository.Querier) (repository.Message, error) {
		row, err := q.CreateMessage(ctx, repository.CreateMessageParams{
			ID:         uuid.New(),
			SenderID:   params.SenderID,
			ReceiverID: params.ReceiverID,
			Body:       params.Body,
			CreatedAt:  s.now(),
		})
		if repository.IsForeignKeyViolation(err) {
			return row, domain.NotFound(op, "user", params.ReceiverID.String())
		}
		return row, err
	})
	if err != nil {
		return nil, nil, err
	}

	msg := &domain.Message{
		ID:         row.ID,
		SenderID:   row.SenderID,
		ReceiverID: row.ReceiverID,
		Body:       row.Body,
		CreatedAt:  row.CreatedAt,
	}
	if auth.Consumed {
		s.logger.Info("new chat partner",
			"user_id", params.SenderID,
			"partner_id", params.ReceiverID,
			"used", auth.Used,
			"limit", auth.Limit,
		)
	}
	s.notifier.Dispatch(ctx, notify.Notification{
		Event:       notify.EventMessageReceived,
		RecipientID: msg.ReceiverID,
		ActorID:     msg.SenderID,
		SubjectID:   msg.ID,
	})
	return msg, auth, nil
}
