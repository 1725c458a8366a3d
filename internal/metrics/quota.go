package metrics

import "time"

// Gated action outcomes.
const (
	OutcomeAllowed     = "allowed"
	OutcomeExceeded    = "quota_exceeded"
	OutcomeInactive    = "inactive"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// GatedAction records the outcome and latency of one enforced action.
func GatedAction(resource, outcome string, duration time.Duration) {
	GatedActionsTotal.WithLabelValues(resource, outcome).Inc()
	GatedActionDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// UsageCorrected records one counter rewritten by reconciliation.
func UsageCorrected(counter string) {
	UsageCorrectionsTotal.WithLabelValues(counter).Inc()
}

// ReportThresholdChanged records a profile toggled by the report threshold rule.
func ReportThresholdChanged(decision string) {
	ReportThresholdChangesTotal.WithLabelValues(decision).Inc()
}

// NotificationSent records a notification dispatch attempt.
func NotificationSent(event string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	NotificationsTotal.WithLabelValues(event, status).Inc()
}
