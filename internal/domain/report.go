package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReportThreshold is the number of distinct reporters with pending reports
// at which a profile is disabled automatically.
const ReportThreshold = 5

// ReportStatus is the moderation state of a report.
type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusDismissed ReportStatus = "dismissed"
	ReportStatusActioned  ReportStatus = "actioned"
)

// Report is one user's complaint about another.
type Report struct {
	ID         uuid.UUID
	ReporterID uuid.UUID
	ReportedID uuid.UUID
	Reason     string
	Status     ReportStatus
	CreatedAt  time.Time
}

// FileReportParams contains the parameters for filing a report.
type FileReportParams struct {
	ReporterID uuid.UUID
	ReportedID uuid.UUID
	Reason     string
}

// Validate checks the parameters and trims the reason.
func (p *FileReportParams) Validate(op string) error {
	if p.ReporterID == uuid.Nil || p.ReportedID == uuid.Nil {
		return Invalid(op, "Reporter and reported user are required")
	}
	if p.ReporterID == p.ReportedID {
		return Invalid(op, "You cannot report yourself")
	}
	p.Reason = strings.TrimSpace(p.Reason)
	if p.Reason == "" {
		return NewValidationError(op, "reason", "Reason is required")
	}
	return nil
}

// ThresholdDecision is what the report threshold rule does to a profile.
type ThresholdDecision string

const (
	ThresholdNoChange ThresholdDecision = "no_change"
	ThresholdDisable  ThresholdDecision = "disable"
	ThresholdEnable   ThresholdDecision = "enable"
)

// DecideThreshold applies the report threshold rule to a profile given the
// live count of distinct pending reporters. Manually disabled profiles are
// never re-enabled.
func DecideThreshold(profile *Profile, distinctReporters int) ThresholdDecision {
	over := distinctReporters >= ReportThreshold
	switch {
	case over && !profile.IsDisabled:
		return ThresholdDisable
	case !over && profile.IsAutoDisabled():
		return ThresholdEnable
	}
	return ThresholdNoChange
}

// ThresholdResult summarizes one run of the report threshold rule.
type ThresholdResult struct {
	UserID            uuid.UUID         `json:"user_id"`
	DistinctReporters int               `json:"distinct_reporters"`
	WasDisabled       bool              `json:"was_disabled"`
	Disabled          bool              `json:"disabled"`
	Decision          ThresholdDecision `json:"decision"`
}

// Changed reports whether the rule modified the profile.
func (r *ThresholdResult) Changed() bool {
	return r.Decision != ThresholdNoChange
}
