// Package notify delivers best-effort notifications about committed gated
// actions. Dispatch never fails the caller: the action has already committed
// and a lost notification is acceptable.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/DukeRupert/kinship/internal/metrics"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/DukeRupert/kinship/internal/worker"
	"github.com/google/uuid"
)

// Event names what happened.
type Event string

const (
	EventConnectionRequested Event = "connection_requested"
	EventConnectionApproved  Event = "connection_approved"
	EventMessageReceived     Event = "message_received"
	EventSessionCreated      Event = "session_created"
)

// Notification tells RecipientID that ActorID did Event on SubjectID.
type Notification struct {
	Event       Event     `json:"event"`
	RecipientID uuid.UUID `json:"recipient_id"`
	ActorID     uuid.UUID `json:"actor_id"`
	SubjectID   uuid.UUID `json:"subject_id"`
}

// Dispatcher sends notifications after commit.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}

// =============================================================================
// Queue dispatcher
// =============================================================================

// QueueDispatcher enqueues a send_notification job per notification. The
// worker delivers it.
type QueueDispatcher struct {
	queries repository.Querier
	logger  *slog.Logger
}

// NewQueueDispatcher creates a dispatcher that writes to the jobs table.
func NewQueueDispatcher(queries repository.Querier, logger *slog.Logger) *QueueDispatcher {
	return &QueueDispatcher{
		queries: queries,
		logger:  logger,
	}
}

// Dispatch implements Dispatcher.
func (d *QueueDispatcher) Dispatch(ctx context.Context, n Notification) {
	_, err := worker.EnqueueJob(ctx, d.queries, worker.JobTypeSendNotification, n, worker.WithPriority(worker.PriorityLow))
	if err != nil {
		metrics.NotificationSent(string(n.Event), err)
		d.logger.Warn("failed to enqueue notification",
			"event", n.Event,
			"recipient_id", n.RecipientID,
			"error", err,
		)
	}
}

// =============================================================================
// Log dispatcher
// =============================================================================

// LogDispatcher only logs notifications. Used when no delivery channel is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch implements Dispatcher.
func (d *LogDispatcher) Dispatch(ctx context.Context, n Notification) {
	d.logger.Info("notification",
		"event", n.Event,
		"recipient_id", n.RecipientID,
		"actor_id", n.ActorID,
		"subject_id", n.SubjectID,
	)
	metrics.NotificationSent(string(n.Event), nil)
}

// =============================================================================
// Recorder
// =============================================================================

// Recorder keeps dispatched notifications in memory for tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

// Dispatch implements Dispatcher.
func (r *Recorder) Dispatch(ctx context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

// Sent returns a copy of every recorded notification.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}
