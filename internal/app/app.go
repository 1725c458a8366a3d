// Package app wires the store, services and collaborators from a Config.
// Both cmd/server and cmd/quotactl build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/kinship/internal"
	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/DukeRupert/kinship/internal/email"
	"github.com/DukeRupert/kinship/internal/jobs"
	"github.com/DukeRupert/kinship/internal/meeting"
	"github.com/DukeRupert/kinship/internal/meeting/jitsi"
	"github.com/DukeRupert/kinship/internal/meeting/mock"
	"github.com/DukeRupert/kinship/internal/notify"
	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/DukeRupert/kinship/internal/repository/memstore"
	"github.com/DukeRupert/kinship/internal/service"
	"github.com/DukeRupert/kinship/internal/worker"
	"github.com/robfig/cron/v3"
)

// App holds every long-lived dependency.
type App struct {
	Config *internal.Config
	Logger *slog.Logger
	Store  repository.Store
	DB     *sql.DB // nil with the memory driver

	Catalog       domain.PlanCatalog
	Subscriptions service.SubscriptionService
	Enforcer      service.QuotaEnforcer
	Connections   service.ConnectionService
	Messages      service.MessageService
	Sessions      service.SessionService
	Reconciler    service.ReconciliationService
	Reports       service.ReportService
	Cycles        service.CycleService

	Notifier notify.Dispatcher
	Email    email.EmailService
	Meetings meeting.Provider
}

// New opens the store and builds the services. The returned cleanup closes
// the database.
func New(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (*App, func(), error) {
	a := &App{Config: cfg, Logger: logger}
	cleanup := func() {}

	switch cfg.StoreDriver {
	case internal.StoreDriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		a.Store = memstore.New()
	default:
		db, err := internal.OpenDatabase(ctx, cfg.DatabaseUrl, logger)
		if err != nil {
			return nil, nil, err
		}
		a.DB = db
		a.Store = repository.NewStore(db)
		cleanup = func() { db.Close() }
	}

	catalog, err := domain.NewStaticPlanCatalog(nil)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("plan catalog: %w", err)
	}
	a.Catalog = catalog

	if a.Email, err = newEmailService(cfg, logger); err != nil {
		cleanup()
		return nil, nil, err
	}
	if a.Meetings, err = newMeetingProvider(cfg, logger); err != nil {
		cleanup()
		return nil, nil, err
	}
	a.Notifier = notify.NewQueueDispatcher(a.Store, logger)

	quotaCfg := service.QuotaConfig{LockTimeout: cfg.QuotaLockTimeout}
	batchCfg := service.ReconcileConfig{
		Concurrency: cfg.ReconcileConcurrency,
		LockTimeout: cfg.QuotaLockTimeout,
	}
	partners := service.NewDistinctPartnerCounter()

	a.Enforcer = service.NewQuotaEnforcer(a.Store, catalog, partners, quotaCfg, logger)
	a.Subscriptions = service.NewSubscriptionService(a.Store, catalog, quotaCfg, logger)
	a.Connections = service.NewConnectionService(a.Store, a.Enforcer, a.Notifier, quotaCfg, logger)
	a.Messages = service.NewMessageService(a.Enforcer, a.Notifier, logger)
	a.Sessions = service.NewSessionService(a.Store, a.Enforcer, a.Notifier, logger)
	a.Reconciler = service.NewReconciliationService(a.Store, partners, batchCfg, logger)
	a.Reports = service.NewReportService(a.Store, batchCfg, logger)
	a.Cycles = service.NewCycleService(a.Store, batchCfg, logger)

	return a, cleanup, nil
}

func newEmailService(cfg *internal.Config, logger *slog.Logger) (email.EmailService, error) {
	if cfg.SMTPHost == "" {
		return email.NewLogEmailService(logger), nil
	}
	svc, err := email.NewSMTPEmailService(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, cfg.BaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("email service: %w", err)
	}
	return svc, nil
}

func newMeetingProvider(cfg *internal.Config, logger *slog.Logger) (meeting.Provider, error) {
	if cfg.MeetingProvider == internal.MeetingProviderJitsi {
		p, err := jitsi.New(jitsi.Config{BaseURL: cfg.JitsiBaseURL, RoomPrefix: cfg.JitsiRoomPrefix})
		if err != nil {
			return nil, fmt.Errorf("meeting provider: %w", err)
		}
		return p, nil
	}
	return mock.New(logger), nil
}

// =============================================================================
// Background processing
// =============================================================================

// NewWorker creates the job worker with every handler registered.
func (a *App) NewWorker() (*worker.Worker, error) {
	wcfg := worker.DefaultConfig()
	wcfg.Concurrency = a.Config.WorkerConcurrency
	wcfg.PollInterval = a.Config.WorkerPollInterval
	wcfg.JobTimeout = a.Config.WorkerJobTimeout

	w, err := worker.New(a.Store, wcfg, a.Logger)
	if err != nil {
		return nil, err
	}
	w.Register(jobs.NewSendNotificationHandler(a.Store, a.Email, a.Logger))
	w.Register(jobs.NewProvisionMeetingLinkHandler(a.Store, a.Meetings, a.Logger))
	return w, nil
}

// batchTimeout bounds one scheduled batch run.
const batchTimeout = 10 * time.Minute

// NewScheduler registers the cycle reset, reconciliation and report
// threshold runs. Empty schedules are skipped. The caller starts and stops
// the returned scheduler.
func (a *App) NewScheduler() (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	tasks := []struct {
		name     string
		schedule string
		run      func(ctx context.Context) error
	}{
		{"cycle_reset", a.Config.CycleResetSchedule, func(ctx context.Context) error {
			res, err := a.Cycles.ResetDue(ctx, time.Now())
			if res != nil {
				a.Logger.Info("scheduled cycle reset finished", "reset", len(res.Reset), "failed", len(res.Failed))
			}
			return err
		}},
		{"reconcile", a.Config.ReconcileSchedule, func(ctx context.Context) error {
			summary, err := a.Reconciler.ReconcileAll(ctx)
			if summary != nil {
				a.Logger.Info("scheduled reconciliation finished",
					"checked", summary.Checked, "corrected", len(summary.Corrected), "failed", len(summary.Failed))
			}
			return err
		}},
		{"report_threshold", a.Config.ReportThresholdSchedule, func(ctx context.Context) error {
			summary, err := a.Reports.EnforceThresholdAll(ctx)
			if summary != nil {
				a.Logger.Info("scheduled report threshold finished",
					"checked", summary.Checked, "changed", len(summary.Corrected), "failed", len(summary.Failed))
			}
			return err
		}},
	}

	for _, task := range tasks {
		if task.schedule == "" {
			a.Logger.Info("schedule disabled", "task", task.name)
			continue
		}
		task := task
		_, err := c.AddFunc(task.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
			defer cancel()
			if err := task.run(ctx); err != nil {
				a.Logger.Error("scheduled task failed", "task", task.name, "error", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", task.name, err)
		}
		a.Logger.Info("task scheduled", "task", task.name, "schedule", task.schedule)
	}
	return c, nil
}
