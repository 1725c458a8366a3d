package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the possible states of a user's subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusExpired, SubscriptionStatusCancelled:
		return true
	}
	return false
}

// ResetIntervalMonths is the length of the counting window for connections
// and sessions. Chat partners are counted over the subscription's lifetime.
const ResetIntervalMonths = 1

// UsageCounters are the cached per-user counters.
type UsageCounters struct {
	ConnectionsUsed int `json:"connections_used"`
	ChatUsersCount  int `json:"chat_users_count"`
	SessionsUsed    int `json:"sessions_used"`
}

// Get returns the counter that tracks kind.
func (c UsageCounters) Get(kind ResourceKind) int {
	switch kind {
	case ResourceConnectionRequest:
		return c.ConnectionsUsed
	case ResourceChatPartner:
		return c.ChatUsersCount
	case ResourceSession:
		return c.SessionsUsed
	}
	return 0
}

// Subscription is the per-user entitlement state.
type Subscription struct {
	UserID      uuid.UUID
	PlanTier    PlanTier
	Status      SubscriptionStatus
	StartedAt   time.Time
	LastResetAt *time.Time
	Counters    UsageCounters
	UpdatedAt   time.Time
}

// IsActive returns true if gated actions may proceed.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// WindowStart is the start of the current counting window.
func (s *Subscription) WindowStart() time.Time {
	if s.LastResetAt != nil {
		return *s.LastResetAt
	}
	return s.StartedAt
}

// NextResetAt is when the connection and session counters are next zeroed.
func (s *Subscription) NextResetAt() time.Time {
	return s.WindowStart().AddDate(0, ResetIntervalMonths, 0)
}

// ResetDue reports whether the counting window has elapsed at now.
func (s *Subscription) ResetDue(now time.Time) bool {
	return !now.Before(s.NextResetAt())
}

// ResourceUsage is one resource's limit and consumption.
type ResourceUsage struct {
	Limit     int  `json:"limit"`
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited"`
}

// NewResourceUsage computes remaining units, reporting Unlimited as -1.
func NewResourceUsage(limit, used int) ResourceUsage {
	if limit == Unlimited {
		return ResourceUsage{Limit: Unlimited, Used: used, Remaining: Unlimited, Unlimited: true}
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return ResourceUsage{Limit: limit, Used: used, Remaining: remaining}
}

// Usage is the read-only entitlement view for a user.
type Usage struct {
	UserID      uuid.UUID                      `json:"user_id"`
	Tier        PlanTier                       `json:"tier"`
	Status      SubscriptionStatus             `json:"status"`
	WindowStart time.Time                      `json:"window_start"`
	ResetAt     time.Time                      `json:"reset_at"`
	Resources   map[ResourceKind]ResourceUsage `json:"resources"`
}

// NewUsage builds the usage view of sub under plan.
func NewUsage(sub *Subscription, plan Plan) *Usage {
	u := &Usage{
		UserID:      sub.UserID,
		Tier:        sub.PlanTier,
		Status:      sub.Status,
		WindowStart: sub.WindowStart(),
		ResetAt:     sub.NextResetAt(),
		Resources:   make(map[ResourceKind]ResourceUsage, 3),
	}
	for _, kind := range []ResourceKind{ResourceConnectionRequest, ResourceChatPartner, ResourceSession} {
		u.Resources[kind] = NewResourceUsage(plan.Limit(kind), sub.Counters.Get(kind))
	}
	return u
}
