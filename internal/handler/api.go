package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/kinship/internal/auth"
	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/service"
	"github.com/google/uuid"
)

// APIHandler serves the user-facing gated actions.
type APIHandler struct {
	connections   service.ConnectionService
	messages      service.MessageService
	sessions      service.SessionService
	reports       service.ReportService
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(
	connections service.ConnectionService,
	messages service.MessageService,
	sessions service.SessionService,
	reports service.ReportService,
	subscriptions service.SubscriptionService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		connections:   connections,
		messages:      messages,
		sessions:      sessions,
		reports:       reports,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers the user API. requireUser must reject requests
// without an authenticated user.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/subscription", requireUser(http.HandlerFunc(h.Subscription)))

	mux.Handle("GET /api/connections", requireUser(http.HandlerFunc(h.ListConnections)))
	mux.Handle("POST /api/connections", requireUser(http.HandlerFunc(h.RequestConnection)))
	mux.Handle("POST /api/connections/{id}/approve", requireUser(h.transition(domain.ConnectionActionApprove)))
	mux.Handle("POST /api/connections/{id}/reject", requireUser(h.transition(domain.ConnectionActionReject)))
	mux.Handle("POST /api/connections/{id}/cancel", requireUser(h.transition(domain.ConnectionActionCancel)))
	mux.Handle("POST /api/connections/{id}/remove", requireUser(h.transition(domain.ConnectionActionRemove)))

	mux.Handle("POST /api/messages", requireUser(http.HandlerFunc(h.SendMessage)))

	mux.Handle("POST /api/sessions", requireUser(http.HandlerFunc(h.CreateSession)))
	mux.Handle("GET /api/sessions/{id}", requireUser(http.HandlerFunc(h.GetSession)))

	mux.Handle("POST /api/reports", requireUser(http.HandlerFunc(h.FileReport)))
}

// =============================================================================
// Subscription
// =============================================================================

// Subscription handles GET /api/subscription.
func (h *APIHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromRequest(r)

	usage, err := h.subscriptions.GetUsage(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// =============================================================================
// Connections
// =============================================================================

type connectionRequest struct {
	ToUserID uuid.UUID `json:"to_user_id"`
}

// RequestConnection handles POST /api/connections.
func (h *APIHandler) RequestConnection(w http.ResponseWriter, r *http.Request) {
	const op = "handler.connection.request"
	userID, _ := auth.UserIDFromRequest(r)

	var req connectionRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.ToUserID == uuid.Nil {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "to_user_id", "Recipient is required"))
		return
	}

	conn, authz, err := h.connections.Request(r.Context(), userID, req.ToUserID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, connectionResponse(conn, authz))
}

// ListConnections handles GET /api/connections.
func (h *APIHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromRequest(r)

	conns, err := h.connections.List(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]ConnectionResponse, 0, len(conns))
	for i := range conns {
		out = append(out, connectionResponse(&conns[i], nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": out})
}

// transition returns the handler for one connection action. Cancel and
// remove delete the connection and answer 204.
func (h *APIHandler) transition(action domain.ConnectionAction) http.Handler {
	op := "handler.connection." + string(action)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserIDFromRequest(r)
		connID, err := pathUUID(r, op, "id")
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}

		var conn *domain.Connection
		switch action {
		case domain.ConnectionActionApprove:
			conn, err = h.connections.Approve(r.Context(), connID, userID)
		case domain.ConnectionActionReject:
			conn, err = h.connections.Reject(r.Context(), connID, userID)
		case domain.ConnectionActionCancel:
			err = h.connections.Cancel(r.Context(), connID, userID)
		case domain.ConnectionActionRemove:
			err = h.connections.Remove(r.Context(), connID, userID)
		}
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}

		if conn == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, connectionResponse(conn, nil))
	})
}

// =============================================================================
// Messages
// =============================================================================

type messageRequest struct {
	ReceiverID uuid.UUID `json:"receiver_id"`
	Body       string    `json:"body"`
}

// SendMessage handles POST /api/messages.
func (h *APIHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	const op = "handler.message.send"
	userID, _ := auth.UserIDFromRequest(r)

	var req messageRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	msg, authz, err := h.messages.Send(r.Context(), domain.SendMessageParams{
		SenderID:   userID,
		ReceiverID: req.ReceiverID,
		Body:       req.Body,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
		Quota:      quotaResponse(authz),
	})
}

// =============================================================================
// Sessions
// =============================================================================

type sessionRequest struct {
	ParticipantID uuid.UUID `json:"participant_id"`
}

// CreateSession handles POST /api/sessions.
func (h *APIHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	const op = "handler.session.create"
	userID, _ := auth.UserIDFromRequest(r)

	var req sessionRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	session, authz, err := h.sessions.Create(r.Context(), userID, req.ParticipantID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse(session, authz))
}

// GetSession handles GET /api/sessions/{id}.
func (h *APIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	const op = "handler.session.get"
	userID, _ := auth.UserIDFromRequest(r)

	sessionID, err := pathUUID(r, op, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	session, err := h.sessions.Get(r.Context(), sessionID, userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(session, nil))
}

// =============================================================================
// Reports
// =============================================================================

type reportRequest struct {
	ReportedID uuid.UUID `json:"reported_id"`
	Reason     string    `json:"reason"`
}

// FileReport handles POST /api/reports.
func (h *APIHandler) FileReport(w http.ResponseWriter, r *http.Request) {
	const op = "handler.report.file"
	userID, _ := auth.UserIDFromRequest(r)

	var req reportRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	report, err := h.reports.File(r.Context(), domain.FileReportParams{
		ReporterID: userID,
		ReportedID: req.ReportedID,
		Reason:     req.Reason,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, reportResponse(report))
}
