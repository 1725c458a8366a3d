// Package worker runs post-commit background jobs: notification delivery
// and meeting link provisioning. Jobs live in the jobs table so they survive
// restarts and are retried with backoff.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/kinship/internal/metrics"
	"github.com/DukeRupert/kinship/internal/repository"
)

// Worker manages background job processing with concurrent workers.
type Worker struct {
	store    repository.Store
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(store repository.Store, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		store:    store,
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a job handler to the worker.
// The handler's Type() must be unique. Call this before Start().
func (w *Worker) Register(handler JobHandler) {
	jobType := handler.Type()
	if _, exists := w.handlers[jobType]; exists {
		w.logger.Warn("overwriting existing handler", "job_type", jobType)
	}
	w.handlers[jobType] = handler
	w.logger.Debug("registered job handler", "job_type", jobType)
}

// Start recovers stale jobs and launches the configured number of workers.
func (w *Worker) Start(ctx context.Context) {
	if err := w.recoverStaleJobs(ctx); err != nil {
		w.logger.Error("failed to recover stale jobs", "error", err)
	}

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i+1)
	}

	w.logger.Info("worker started", "concurrency", w.config.Concurrency)
}

// Stop signals all workers to stop and waits up to ShutdownTimeout for
// running jobs to finish.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker")
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("worker shutdown timeout exceeded, some jobs may still be running")
	}
}

// recoverStaleJobs resets jobs left running by a crashed process.
func (w *Worker) recoverStaleJobs(ctx context.Context) error {
	count, err := w.store.RecoverStaleJobs(ctx, w.config.StaleJobThreshold.Seconds())
	if err != nil {
		return fmt.Errorf("recover stale jobs: %w", err)
	}
	if count > 0 {
		w.logger.Warn("recovered stale jobs", "count", count, "threshold", w.config.StaleJobThreshold)
	}
	return nil
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", workerID)
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx, logger)
		}
	}
}

// errJobFailed marks a job whose handler returned an error. The failure is
// already recorded, so the queue can keep draining.
var errJobFailed = errors.New("job failed")

// drain processes ready jobs until none is left or dequeuing fails, and
// returns how many it ran.
func (w *Worker) drain(ctx context.Context, logger *slog.Logger) int {
	processed := 0
	for ctx.Err() == nil {
		err := w.processNextJob(ctx, logger)
		switch {
		case err == nil, errors.Is(err, errJobFailed):
			processed++
		case errors.Is(err, sql.ErrNoRows):
			return processed
		default:
			logger.Error("failed to process job", "error", err)
			return processed
		}
	}
	return processed
}

// processNextJob dequeues and executes a single job.
// Returns sql.ErrNoRows if no job is ready and wraps errJobFailed when the
// handler fails.
func (w *Worker) processNextJob(ctx context.Context, logger *slog.Logger) error {
	var job repository.Job
	err := w.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		job, err = q.DequeueJob(ctx)
		if err != nil {
			return err
		}
		if err := q.UpdateJobStarted(ctx, job.ID); err != nil {
			return fmt.Errorf("mark job started: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger = logger.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts+1)
	logger.Debug("processing job")
	metrics.JobStarted(job.JobType)
	start := time.Now()

	if err := w.executeJob(ctx, job); err != nil {
		metrics.JobFailed(job.JobType)
		w.markJobFailed(ctx, job, err, logger)
		return fmt.Errorf("execute job: %w: %w", errJobFailed, err)
	}

	metrics.JobCompleted(job.JobType, time.Since(start))
	if err := w.store.UpdateJobCompleted(ctx, job.ID); err != nil {
		logger.Error("failed to mark job completed", "error", err)
		return fmt.Errorf("update job completed: %w", err)
	}
	logger.Info("job completed", "duration", time.Since(start))
	return nil
}

// executeJob runs the handler for job with the configured timeout.
func (w *Worker) executeJob(ctx context.Context, job repository.Job) error {
	handler, ok := w.handlers[job.JobType]
	if !ok {
		return NewPermanentError(fmt.Errorf("no handler registered for job type: %s", job.JobType))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	return handler.Handle(jobCtx, job.Payload)
}

// markJobFailed records the failure. Permanent errors and exhausted jobs
// end as failed; the rest are rescheduled with backoff by the query.
func (w *Worker) markJobFailed(ctx context.Context, job repository.Job, jobErr error, logger *slog.Logger) {
	permanent := IsPermanent(jobErr)
	attempts := job.Attempts + 1

	switch {
	case permanent:
		logger.Warn("job failed permanently", "error", jobErr)
	case attempts >= job.MaxAttempts:
		logger.Error("job failed, attempts exhausted", "error", jobErr, "max_attempts", job.MaxAttempts)
	default:
		metrics.JobRetried(job.JobType)
		logger.Warn("job failed, will retry", "error", jobErr)
	}

	err := w.store.UpdateJobFailed(ctx, repository.UpdateJobFailedParams{
		ID:           job.ID,
		Permanent:    permanent,
		ErrorMessage: sql.NullString{String: jobErr.Error(), Valid: true},
	})
	if err != nil {
		logger.Error("failed to mark job failed", "error", err)
	}
}
