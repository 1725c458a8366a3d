package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/google/uuid"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeSendNotification     = "send_notification"
	JobTypeProvisionMeetingLink = "provision_meeting_link"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// ProvisionMeetingLinkPayload is the payload for meeting link jobs.
type ProvisionMeetingLinkPayload struct {
	SessionID uuid.UUID `json:"session_id"`
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = p.ScheduledAt.Add(delay)
	}
}

// EnqueueJob marshals payload and inserts a pending job. q may be a
// transaction, in which case the job becomes visible on commit.
func EnqueueJob(
	ctx context.Context,
	q repository.Querier,
	jobType string,
	payload any,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	job, err := q.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// EnqueueMeetingLink enqueues a job that provisions the meeting URL of a
// freshly created call session.
func EnqueueMeetingLink(
	ctx context.Context,
	q repository.Querier,
	sessionID uuid.UUID,
	opts ...EnqueueOption,
) (repository.Job, error) {
	opts = append([]EnqueueOption{WithPriority(PriorityHigh)}, opts...)
	return EnqueueJob(ctx, q, JobTypeProvisionMeetingLink, ProvisionMeetingLinkPayload{SessionID: sessionID}, opts...)
}
