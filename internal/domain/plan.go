// Package domain contains core business types and interfaces.
//
// This file defines the plan catalog: subscription tiers and the per-cycle
// limits for each gated resource.
package domain

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Unlimited is the limit sentinel meaning no cap is enforced.
const Unlimited = -1

// ResourceKind identifies the gated action being checked.
type ResourceKind string

const (
	ResourceConnectionRequest ResourceKind = "connection_request"
	ResourceChatPartner       ResourceKind = "new_chat_partner"
	ResourceSession           ResourceKind = "session"
)

// Valid reports whether k is a known resource kind.
func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceConnectionRequest, ResourceChatPartner, ResourceSession:
		return true
	}
	return false
}

// Noun returns the plural user-facing name of the resource.
func (k ResourceKind) Noun() string {
	switch k {
	case ResourceConnectionRequest:
		return "connection requests per cycle"
	case ResourceChatPartner:
		return "chat partners"
	case ResourceSession:
		return "sessions per cycle"
	}
	return string(k)
}

// PlanTier is a named subscription level.
type PlanTier string

const (
	PlanTierFree     PlanTier = "free"
	PlanTierSilver   PlanTier = "silver"
	PlanTierGold     PlanTier = "gold"
	PlanTierPlatinum PlanTier = "platinum"
)

var titleCaser = cases.Title(language.English)

// DisplayName returns the tier formatted for messages ("Gold").
func (t PlanTier) DisplayName() string {
	return titleCaser.String(string(t))
}

// Valid reports whether t is one of the catalog tiers.
func (t PlanTier) Valid() bool {
	_, ok := DefaultPlans[t]
	return ok
}

// Plan holds the limits of a tier. Each cap is a non-negative count or Unlimited.
type Plan struct {
	Tier           PlanTier
	MaxConnections int
	MaxChatUsers   int
	MaxSessions    int
}

// Limit returns the cap for the given resource.
func (p Plan) Limit(kind ResourceKind) int {
	switch kind {
	case ResourceConnectionRequest:
		return p.MaxConnections
	case ResourceChatPartner:
		return p.MaxChatUsers
	case ResourceSession:
		return p.MaxSessions
	}
	return 0
}

// IsUnlimited reports whether the plan has no cap on kind.
func (p Plan) IsUnlimited(kind ResourceKind) bool {
	return p.Limit(kind) == Unlimited
}

// Validate checks every cap is non-negative or the Unlimited sentinel.
func (p Plan) Validate() error {
	for _, limit := range []int{p.MaxConnections, p.MaxChatUsers, p.MaxSessions} {
		if limit < Unlimited {
			return Errorf(EINVALID, "plan.validate", "plan %s has invalid limit %d", p.Tier, limit)
		}
	}
	return nil
}

// DefaultPlans maps tiers to their limits.
var DefaultPlans = map[PlanTier]Plan{
	PlanTierFree: {
		Tier:           PlanTierFree,
		MaxConnections: 5,
		MaxChatUsers:   3,
		MaxSessions:    1,
	},
	PlanTierSilver: {
		Tier:           PlanTierSilver,
		MaxConnections: 25,
		MaxChatUsers:   15,
		MaxSessions:    5,
	},
	PlanTierGold: {
		Tier:           PlanTierGold,
		MaxConnections: 60,
		MaxChatUsers:   40,
		MaxSessions:    15,
	},
	PlanTierPlatinum: {
		Tier:           PlanTierPlatinum,
		MaxConnections: Unlimited,
		MaxChatUsers:   Unlimited,
		MaxSessions:    Unlimited,
	},
}

// PlanCatalog resolves plan limits by tier. The engine only reads from it.
type PlanCatalog interface {
	Plan(tier PlanTier) Plan
}

// StaticPlanCatalog is a PlanCatalog backed by an in-memory table.
type StaticPlanCatalog struct {
	plans map[PlanTier]Plan
}

// NewStaticPlanCatalog builds a catalog from plans. A nil map uses DefaultPlans.
func NewStaticPlanCatalog(plans map[PlanTier]Plan) (*StaticPlanCatalog, error) {
	if plans == nil {
		plans = DefaultPlans
	}
	if _, ok := plans[PlanTierFree]; !ok {
		return nil, Invalid("plan_catalog.new", "catalog must define the free tier")
	}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return &StaticPlanCatalog{plans: plans}, nil
}

// Plan returns the plan for a tier, defaulting to the free tier for unknown tiers.
func (c *StaticPlanCatalog) Plan(tier PlanTier) Plan {
	if plan, ok := c.plans[tier]; ok {
		return plan
	}
	return c.plans[PlanTierFree]
}

// CheckQuota decides whether one more unit may be consumed.
// A limit of N admits exactly N units: the block is on used >= limit.
func CheckQuota(op string, plan Plan, kind ResourceKind, used int) error {
	limit := plan.Limit(kind)
	if limit == Unlimited {
		return nil
	}
	if used >= limit {
		return QuotaExceeded(op, kind, plan.Tier, used, limit)
	}
	return nil
}
