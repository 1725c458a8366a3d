package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReconcileResult reports the counters before and after a reconciliation.
type ReconcileResult struct {
	UserID    uuid.UUID     `json:"user_id"`
	Old       UsageCounters `json:"old_counts"`
	New       UsageCounters `json:"new_counts"`
	Corrected bool          `json:"corrected"`
}

// CorrectionKind labels an audit row for a drift correction.
type CorrectionKind string

const (
	CorrectionKindUsage           CorrectionKind = "usage"
	CorrectionKindReportThreshold CorrectionKind = "report_threshold"
)

// UsageCorrection is the audit record of one drift correction.
type UsageCorrection struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Kind      CorrectionKind  `json:"kind"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// BatchSummary is the operator-facing summary of a batch run.
type BatchSummary struct {
	Checked   int         `json:"checked"`
	Corrected []uuid.UUID `json:"corrected"`
	Failed    []uuid.UUID `json:"failed"`
}

// CycleResetResult summarizes a billing-cycle reset run.
type CycleResetResult struct {
	Reset  []uuid.UUID `json:"reset"`
	Failed []uuid.UUID `json:"failed"`
}
