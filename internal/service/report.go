// Package service contains the business logic layer.
//
// This file implements user reports and the report threshold rule, which
// hides a profile once enough distinct users have pending reports against it
// and restores it when the count drops back below the threshold.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/metrics"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ReportService defines operations on reports and the threshold rule.
type ReportService interface {
	// File creates a pending report and applies the threshold rule to the
	// reported user in the same transaction.
	// Returns domain.EINVALID for a self-report or an empty reason.
	File(ctx context.Context, params domain.FileReportParams) (*domain.Report, error)

	// Dismiss marks a pending report dismissed. The profile is re-enabled by
	// the next threshold run, not here.
	// Returns domain.ENOTFOUND if the report does not exist or is not pending.
	Dismiss(ctx context.Context, reportID uuid.UUID) (*domain.Report, error)

	// EnforceThreshold applies the rule to one user. It is idempotent.
	// Returns domain.ENOTFOUND if the user has no profile.
	EnforceThreshold(ctx context.Context, userID uuid.UUID) (*domain.ThresholdResult, error)

	// EnforceThresholdAll applies the rule to every user with pending reports
	// or an automatic disable. Missing profiles are logged and skipped.
	EnforceThresholdAll(ctx context.Context) (*domain.BatchSummary, error)
}

// =============================================================================
// Implementation
// =============================================================================

type reportService struct {
	store       repository.Store
	concurrency int
	lockTimeout string
	now         func() time.Time
	logger      *slog.Logger
}

// NewReportService creates a new ReportService. It shares the batch and lock
// settings of reconciliation.
func NewReportService(store repository.Store, cfg ReconcileConfig, logger *slog.Logger) ReportService {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = DefaultReconcileConcurrency
	}
	return &reportService{
		store:       store,
		concurrency: concurrency,
		lockTimeout: lockTimeoutSetting(cfg.LockTimeout),
		now:         time.Now,
		logger:      logger,
	}
}

func (s *reportService) File(ctx context.Context, params domain.FileReportParams) (*domain.Report, error) {
	const op = "report.file"

	if err := params.Validate(op); err != nil {
		return nil, err
	}

	var (
		created repository.Report
		result  *domain.ThresholdResult
	)
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.SetLockTimeout(ctx, s.lockTimeout); err != nil {
			return err
		}

		var err error
		created, err = q.CreateReport(ctx, repository.CreateReportParams{
			ID:         uuid.New(),
			ReporterID: params.ReporterID,
			ReportedID: params.ReportedID,
			Reason:     params.Reason,
			Status:     string(domain.ReportStatusPending),
			CreatedAt:  s.now(),
		})
		if err != nil {
			if repository.IsForeignKeyViolation(err) {
				return domain.NotFound(op, "user", params.ReportedID.String())
			}
			return err
		}

		result, err = s.applyThreshold(ctx, q, params.ReportedID)
		if repository.IsNotFound(err) {
			// No profile to hide yet; the report still counts once one exists.
			s.logger.Warn("reported user has no profile", "user_id", params.ReportedID)
			return nil
		}
		return err
	})
	if err != nil {
		return nil, wrapStoreError(err, op, "failed to file report")
	}

	report := reportFromRow(created)
	s.logger.Info("report filed",
		"report_id", report.ID,
		"reporter_id", report.ReporterID,
		"reported_id", report.ReportedID,
	)
	if result != nil {
		s.recordThreshold(result)
	}
	return report, nil
}

func (s *reportService) Dismiss(ctx context.Context, reportID uuid.UUID) (*domain.Report, error) {
	const op = "report.dismiss"

	row, err := s.store.DismissReport(ctx, reportID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "pending report", reportID.String())
		}
		return nil, domain.Internal(err, op, "failed to dismiss report")
	}

	s.logger.Info("report dismissed", "report_id", reportID, "reported_id", row.ReportedID)
	return reportFromRow(row), nil
}

func (s *reportService) EnforceThreshold(ctx context.Context, userID uuid.UUID) (*domain.ThresholdResult, error) {
	const op = "report.enforce_threshold"

	var result *domain.ThresholdResult
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.SetLockTimeout(ctx, s.lockTimeout); err != nil {
			return err
		}
		var err error
		result, err = s.applyThreshold(ctx, q, userID)
		return err
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "profile", userID.String())
		}
		return nil, wrapStoreError(err, op, "failed to apply report threshold")
	}

	s.recordThreshold(result)
	return result, nil
}

func (s *reportService) EnforceThresholdAll(ctx context.Context) (*domain.BatchSummary, error) {
	const op = "report.enforce_threshold_all"

	ids, err := s.store.ListReportThresholdCandidates(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list threshold candidates")
	}

	logger := s.logger.With("op", op)
	summary, err := runBatch(ctx, ids, s.concurrency, logger, func(ctx context.Context, id uuid.UUID) (bool, error) {
		res, err := s.EnforceThreshold(ctx, id)
		if err != nil {
			if domain.ErrorCode(err) == domain.ENOTFOUND {
				logger.Warn("threshold candidate has no profile", "user_id", id)
				return false, nil
			}
			return false, err
		}
		return res.Changed(), nil
	})
	if err != nil {
		return summary, domain.Unavailable(err, op, "threshold run interrupted")
	}

	s.logger.Info("report threshold run finished",
		"checked", summary.Checked,
		"changed", len(summary.Corrected),
		"failed", len(summary.Failed),
	)
	return summary, nil
}

// thresholdChange is stored in usage_corrections.details.
type thresholdChange struct {
	DistinctReporters int                      `json:"distinct_reporters"`
	Decision          domain.ThresholdDecision `json:"decision"`
}

// applyThreshold locks the profile, counts distinct pending reporters and
// applies the decision. Returns sql.ErrNoRows if the profile does not exist.
func (s *reportService) applyThreshold(ctx context.Context, q repository.Querier, userID uuid.UUID) (*domain.ThresholdResult, error) {
	row, err := q.GetProfileForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := profileFromRow(row)

	count, err := q.CountDistinctPendingReporters(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count reporters: %w", err)
	}

	decision := domain.DecideThreshold(profile, int(count))
	result := &domain.ThresholdResult{
		UserID:            userID,
		DistinctReporters: int(count),
		WasDisabled:       profile.IsDisabled,
		Disabled:          profile.IsDisabled,
		Decision:          decision,
	}

	now := s.now()
	switch decision {
	case domain.ThresholdNoChange:
		return result, nil
	case domain.ThresholdDisable:
		err = q.UpdateProfileDisabled(ctx, repository.UpdateProfileDisabledParams{
			UserID:         userID,
			IsDisabled:     true,
			DisabledReason: domain.ToNullString(string(domain.DisabledReasonReportThreshold)),
			DisabledAt:     domain.ToNullTime(&now),
		})
		result.Disabled = true
	case domain.ThresholdEnable:
		err = q.UpdateProfileDisabled(ctx, repository.UpdateProfileDisabledParams{
			UserID:     userID,
			IsDisabled: false,
		})
		result.Disabled = false
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	if err := q.SetUserActive(ctx, repository.SetUserActiveParams{
		ID:       userID,
		IsActive: !result.Disabled,
	}); err != nil {
		return nil, fmt.Errorf("set user active: %w", err)
	}

	details := thresholdChange{DistinctReporters: int(count), Decision: decision}
	if err := writeCorrection(ctx, q, userID, domain.CorrectionKindReportThreshold, details, now); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *reportService) recordThreshold(result *domain.ThresholdResult) {
	if !result.Changed() {
		return
	}
	metrics.ReportThresholdChanged(string(result.Decision))
	s.logger.Info("report threshold applied",
		"user_id", result.UserID,
		"decision", result.Decision,
		"distinct_reporters", result.DistinctReporters,
	)
}

// =============================================================================
// Helpers
// =============================================================================

func reportFromRow(row repository.Report) *domain.Report {
	return &domain.Report{
		ID:         row.ID,
		ReporterID: row.ReporterID,
		ReportedID: row.ReportedID,
		Reason:     row.Reason,
		Status:     domain.ReportStatus(row.Status),
		CreatedAt:  row.CreatedAt,
	}
}

func profileFromRow(row repository.Profile) *domain.Profile {
	return &domain.Profile{
		UserID:         row.UserID,
		IsDisabled:     row.IsDisabled,
		DisabledReason: domain.DisabledReason(domain.NullStringValue(row.DisabledReason)),
		DisabledAt:     domain.NullTimeValue(row.DisabledAt),
	}
}
