package handler

import (
	"time"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/service"
	"github.com/google/uuid"
)

// =============================================================================
// Response bodies
// =============================================================================

// QuotaResponse reports what a gated action consumed.
type QuotaResponse struct {
	Resource string `json:"resource"`
	Tier     string `json:"tier"`
	Limit    int    `json:"limit"`
	Used     int    `json:"used"`
	Consumed bool   `json:"consumed"`
}

func quotaResponse(a *service.Authorization) *QuotaResponse {
	if a == nil {
		return nil
	}
	return &QuotaResponse{
		Resource: string(a.Resource),
		Tier:     string(a.Tier),
		Limit:    a.Limit,
		Used:     a.Used,
		Consumed: a.Consumed,
	}
}

// ConnectionResponse is the JSON form of a connection.
type ConnectionResponse struct {
	ID          uuid.UUID      `json:"id"`
	FromUserID  uuid.UUID      `json:"from_user_id"`
	ToUserID    uuid.UUID      `json:"to_user_id"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	RespondedAt *time.Time     `json:"responded_at,omitempty"`
	Quota       *QuotaResponse `json:"quota,omitempty"`
}

func connectionResponse(c *domain.Connection, a *service.Authorization) ConnectionResponse {
	return ConnectionResponse{
		ID:          c.ID,
		FromUserID:  c.FromUserID,
		ToUserID:    c.ToUserID,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
		RespondedAt: c.RespondedAt,
		Quota:       quotaResponse(a),
	}
}

// MessageResponse is the JSON form of a message.
type MessageResponse struct {
	ID         uuid.UUID      `json:"id"`
	SenderID   uuid.UUID      `json:"sender_id"`
	ReceiverID uuid.UUID      `json:"receiver_id"`
	Body       string         `json:"body"`
	CreatedAt  time.Time      `json:"created_at"`
	Quota      *QuotaResponse `json:"quota,omitempty"`
}

// SessionResponse is the JSON form of a call session. MeetingURL stays empty
// until the background job provisions it.
type SessionResponse struct {
	ID            uuid.UUID      `json:"id"`
	InitiatorID   uuid.UUID      `json:"initiator_id"`
	ParticipantID uuid.UUID      `json:"participant_id"`
	Status        string         `json:"status"`
	MeetingURL    string         `json:"meeting_url,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	Quota         *QuotaResponse `json:"quota,omitempty"`
}

func sessionResponse(s *domain.CallSession, a *service.Authorization) SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		InitiatorID:   s.InitiatorID,
		ParticipantID: s.ParticipantID,
		Status:        string(s.Status),
		MeetingURL:    s.MeetingURL,
		CreatedAt:     s.CreatedAt,
		Quota:         quotaResponse(a),
	}
}

// ReportResponse is the JSON form of a report.
type ReportResponse struct {
	ID         uuid.UUID `json:"id"`
	ReporterID uuid.UUID `json:"reporter_id"`
	ReportedID uuid.UUID `json:"reported_id"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func reportResponse(r *domain.Report) ReportResponse {
	return ReportResponse{
		ID:         r.ID,
		ReporterID: r.ReporterID,
		ReportedID: r.ReportedID,
		Reason:     r.Reason,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
	}
}

// SubscriptionResponse is the JSON form of a subscription record.
type SubscriptionResponse struct {
	UserID      uuid.UUID            `json:"user_id"`
	Tier        string               `json:"tier"`
	Status      string               `json:"status"`
	StartedAt   time.Time            `json:"started_at"`
	LastResetAt *time.Time           `json:"last_reset_at,omitempty"`
	Counters    domain.UsageCounters `json:"counters"`
}

func subscriptionResponse(s *domain.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		UserID:      s.UserID,
		Tier:        string(s.PlanTier),
		Status:      string(s.Status),
		StartedAt:   s.StartedAt,
		LastResetAt: s.LastResetAt,
		Counters:    s.Counters,
	}
}
