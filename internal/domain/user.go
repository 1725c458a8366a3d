// Package domain contains core business types and interfaces.
//
// This file defines the User and Profile types. Both are owned by the
// identity and profile collaborators; the engine reads them and toggles the
// activation flags when enforcing the report threshold.
package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User is the account record supplied by the identity collaborator.
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// DisplayName returns the user's name or email if name is empty.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// DisabledReason explains why a profile is hidden.
type DisabledReason string

const (
	// DisabledReasonReportThreshold is set only by the report threshold rule,
	// which is also the only rule allowed to lift it.
	DisabledReasonReportThreshold DisabledReason = "auto_report_threshold"
	DisabledReasonManual          DisabledReason = "manual"
)

// Profile is the public matchmaking profile of a user.
type Profile struct {
	UserID         uuid.UUID
	IsDisabled     bool
	DisabledReason DisabledReason
	DisabledAt     *time.Time
}

// IsAutoDisabled reports whether the profile was hidden by the report threshold.
func (p *Profile) IsAutoDisabled() bool {
	return p.IsDisabled && p.DisabledReason == DisabledReasonReportThreshold
}

// =============================================================================
// Conversion helpers from repository types
// =============================================================================

// NullStringValue safely extracts a string from sql.NullString.
func NullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// NullTimeValue safely extracts a time pointer from sql.NullTime.
func NullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// ToNullString converts a string to sql.NullString, treating "" as NULL.
func ToNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ToNullTime converts a time pointer to sql.NullTime.
func ToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
