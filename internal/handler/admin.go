package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/kinship/internal/auth"
	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/service"
	"github.com/google/uuid"
)

// correctionsLimit is how many audit rows GET /admin/usage returns for a
// single user.
const correctionsLimit = 20

// AdminHandler serves the operator routes.
type AdminHandler struct {
	reconciler    service.ReconciliationService
	reports       service.ReportService
	cycles        service.CycleService
	subscriptions service.SubscriptionService
	now           func() time.Time
	logger        *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	reconciler service.ReconciliationService,
	reports service.ReportService,
	cycles service.CycleService,
	subscriptions service.SubscriptionService,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		reconciler:    reconciler,
		reports:       reports,
		cycles:        cycles,
		subscriptions: subscriptions,
		now:           time.Now,
		logger:        logger,
	}
}

// RegisterRoutes registers admin routes with the provided middleware.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, requireOperator func(http.Handler) http.Handler) {
	mux.Handle("POST /admin/reconcile", requireOperator(http.HandlerFunc(h.Reconcile)))
	mux.Handle("POST /admin/report-threshold", requireOperator(http.HandlerFunc(h.ReportThreshold)))
	mux.Handle("POST /admin/cycles/reset", requireOperator(http.HandlerFunc(h.ResetCycles)))
	mux.Handle("POST /admin/reports/{id}/dismiss", requireOperator(http.HandlerFunc(h.DismissReport)))
	mux.Handle("PUT /admin/subscriptions/{userID}", requireOperator(http.HandlerFunc(h.SetPlan)))
	mux.Handle("GET /admin/usage", requireOperator(http.HandlerFunc(h.Usage)))
}

// userTarget selects one user, or every user when UserID is nil.
type userTarget struct {
	UserID *uuid.UUID `json:"user_id"`
}

// Reconcile handles POST /admin/reconcile.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	const op = "handler.admin.reconcile"

	var req userTarget
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if req.UserID != nil {
		res, err := h.reconciler.Reconcile(r.Context(), *req.UserID)
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
		h.audit(r, op, "user_id", res.UserID, "corrected", res.Corrected)
		writeJSON(w, http.StatusOK, res)
		return
	}

	summary, err := h.reconciler.ReconcileAll(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	h.audit(r, op, "checked", summary.Checked, "corrected", len(summary.Corrected), "failed", len(summary.Failed))
	writeJSON(w, http.StatusOK, summary)
}

// ReportThreshold handles POST /admin/report-threshold.
func (h *AdminHandler) ReportThreshold(w http.ResponseWriter, r *http.Request) {
	const op = "handler.admin.report_threshold"

	var req userTarget
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if req.UserID != nil {
		res, err := h.reports.EnforceThreshold(r.Context(), *req.UserID)
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
		h.audit(r, op, "user_id", res.UserID, "decision", res.Decision)
		writeJSON(w, http.StatusOK, res)
		return
	}

	summary, err := h.reports.EnforceThresholdAll(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	h.audit(r, op, "checked", summary.Checked, "corrected", len(summary.Corrected), "failed", len(summary.Failed))
	writeJSON(w, http.StatusOK, summary)
}

type resetRequest struct {
	// At overrides the reference time. Defaults to now.
	At *time.Time `json:"at"`
}

// ResetCycles handles POST /admin/cycles/reset.
func (h *AdminHandler) ResetCycles(w http.ResponseWriter, r *http.Request) {
	const op = "handler.admin.reset_cycles"

	var req resetRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	at := h.now()
	if req.At != nil {
		at = *req.At
	}

	res, err := h.cycles.ResetDue(r.Context(), at)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	h.audit(r, op, "reset", len(res.Reset), "failed", len(res.Failed))
	writeJSON(w, http.StatusOK, res)
}

// DismissReport handles POST /admin/reports/{id}/dismiss.
func (h *AdminHandler) DismissReport(w http.ResponseWriter, r *http.Request) {
	const op = "handler.admin.dismiss_report"

	reportID, err := pathUUID(r, op, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	report, err := h.reports.Dismiss(r.Context(), reportID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	h.audit(r, op, "report_id", report.ID, "reported_id", report.ReportedID)
	writeJSON(w, http.StatusOK, reportResponse(report))
}

type setPlanRequest struct {
	Tier   string `json:"tier"`
	Status string `json:"status"`
}

// SetPlan handles PUT /admin/subscriptions/{userID}.
func (h *AdminHandler) SetPlan(w http.ResponseWriter, r *http.Request) {
	const op = "handler.admin.set_plan"

	userID, err := pathUUID(r, op, "userID")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req setPlanRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	status := domain.SubscriptionStatus(req.Status)
	if status == "" {
		status = domain.SubscriptionStatusActive
	}

	sub, err := h.subscriptions.SetPlan(r.Context(), userID, domain.PlanTier(req.Tier), status)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	h.audit(r, op, "user_id", userID, "tier", sub.PlanTier, "status", sub.Status)
	writeJSON(w, http.StatusOK, subscriptionResponse(sub))
}

// UsageResponse answers GET /admin/usage.
type UsageResponse struct {
	Usage       []domain.Usage           `json:"usage"`
	Corrections []domain.UsageCorrection `json:"corrections,omitempty"`
}

// Usage handles GET /admin/usage?user_id=a&user_id=b (or a comma list).
// A single user also gets the latest corrections.
func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	const op = "handler.admin.usage"

	var ids []uuid.UUID
	for _, v := range r.URL.Query()["user_id"] {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "user_id", "Invalid user ID: "+part))
				return
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "user_id", "At least one user ID is required"))
		return
	}

	usage, err := h.subscriptions.UsageFor(r.Context(), ids)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	resp := UsageResponse{Usage: usage}

	if len(ids) == 1 {
		resp.Corrections, err = h.subscriptions.RecentCorrections(r.Context(), ids[0], correctionsLimit)
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// audit logs an operator action.
func (h *AdminHandler) audit(r *http.Request, op string, attrs ...any) {
	attrs = append([]any{"op", op, "operator", auth.Operator(r.Context())}, attrs...)
	h.logger.Info("operator action", attrs...)
}
