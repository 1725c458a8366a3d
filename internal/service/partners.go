package service

import (
	"context"
	"fmt"

	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/google/uuid"
)

// DistinctPartnerCounter answers chat partner questions from message history.
//
// A partner is anyone the user has sent a message to or received one from.
// The count is cumulative over the subscription's lifetime and is not reset
// with the connection and session window.
type DistinctPartnerCounter interface {
	// IsNewPartner reports whether no message has been exchanged between
	// userID and candidateID in either direction.
	IsNewPartner(ctx context.Context, q repository.Querier, userID, candidateID uuid.UUID) (bool, error)

	// CountOf returns the number of distinct partners of userID.
	CountOf(ctx context.Context, q repository.Querier, userID uuid.UUID) (int, error)
}

type messagePartnerCounter struct{}

// NewDistinctPartnerCounter returns a counter that reads the messages table.
// Both methods take the querier so they can run inside a gated transaction.
func NewDistinctPartnerCounter() DistinctPartnerCounter {
	return messagePartnerCounter{}
}

func (messagePartnerCounter) IsNewPartner(ctx context.Context, q repository.Querier, userID, candidateID uuid.UUID) (bool, error) {
	exchanged, err := q.HasExchangedMessages(ctx, repository.HasExchangedMessagesParams{
		UserID:    userID,
		PartnerID: candidateID,
	})
	if err != nil {
		return false, fmt.Errorf("check message history: %w", err)
	}
	return !exchanged, nil
}

func (messagePartnerCounter) CountOf(ctx context.Context, q repository.Querier, userID uuid.UUID) (int, error) {
	n, err := q.CountDistinctPartners(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count chat partners: %w", err)
	}
	return int(n), nil
}
