// Command quotactl runs operator tasks against the quota store: counter
// reconciliation, report threshold enforcement, cycle resets and plan
// changes. Results are printed as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/DukeRupert/kinship/internal"
	"github.com/DukeRupert/kinship/internal/app"
	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// appLoader builds the application for a command. Tests replace it.
type appLoader func(ctx context.Context) (*app.App, func(), error)

func loadFromEnv(ctx context.Context) (*app.App, func(), error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("config initialization failed: %w", err)
	}
	// Keep stdout for results.
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)
	return app.New(ctx, cfg, logger)
}

func newRootCmd(load appLoader) *cobra.Command {
	root := &cobra.Command{
		Use:           "quotactl",
		Short:         "Operator tool for the kinship quota engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newReconcileCmd(load),
		newReportThresholdCmd(load),
		newCyclesCmd(load),
		newSubscriptionsCmd(load),
		newUsageCmd(load),
		newMigrateCmd(load),
		newHashPasswordCmd(),
	)
	return root
}

// withApp loads the application, runs fn and releases resources.
func withApp(cmd *cobra.Command, load appLoader, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, cleanup, err := load(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseUserID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

// =============================================================================
// reconcile / report-threshold
// =============================================================================

func newReconcileCmd(load appLoader) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute usage counters from source records",
		Example: `  quotactl reconcile
  quotactl reconcile --user 7f9c2a4e-1b0d-4d8e-9a51-0c3e2f6b8d11`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(ctx context.Context, a *app.App) error {
				if user == "" {
					summary, err := a.Reconciler.ReconcileAll(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), summary)
				}
				id, err := parseUserID(user)
				if err != nil {
					return err
				}
				res, err := a.Reconciler.Reconcile(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "reconcile a single user")
	return cmd
}

func newReportThresholdCmd(load appLoader) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "report-threshold",
		Short: "Apply the report threshold rule to profile visibility",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(ctx context.Context, a *app.App) error {
				if user == "" {
					summary, err := a.Reports.EnforceThresholdAll(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), summary)
				}
				id, err := parseUserID(user)
				if err != nil {
					return err
				}
				res, err := a.Reports.EnforceThreshold(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "evaluate a single user")
	return cmd
}

// =============================================================================
// cycles
// =============================================================================

func newCyclesCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "Billing cycle commands",
	}

	var at string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Reset counters for subscriptions whose cycle has elapsed",
		Example: `  quotactl cycles reset
  quotactl cycles reset --at 2026-11-01T00:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at value: %w", err)
				}
				now = t
			}
			return withApp(cmd, load, func(ctx context.Context, a *app.App) error {
				res, err := a.Cycles.ResetDue(ctx, now)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	reset.Flags().StringVar(&at, "at", "", "reference time in RFC 3339 (default now)")

	cmd.AddCommand(reset)
	return cmd
}

// =============================================================================
// subscriptions / usage
// =============================================================================

func newSubscriptionsCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Subscription commands",
	}

	var tier, status string
	set := &cobra.Command{
		Use:   "set <user-id>",
		Short: "Change a user's plan tier and status",
		Example: `  quotactl subscriptions set 7f9c2a4e-1b0d-4d8e-9a51-0c3e2f6b8d11 --tier gold
  quotactl subscriptions set 7f9c2a4e-1b0d-4d8e-9a51-0c3e2f6b8d11 --tier free --status cancelled`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, load, func(ctx context.Context, a *app.App) error {
				_, err := a.Subscriptions.SetPlan(ctx, id,
					domain.PlanTier(strings.ToLower(tier)),
					domain.SubscriptionStatus(strings.ToLower(status)))
				if err != nil {
					return err
				}
				usage, err := a.Subscriptions.GetUsage(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), usage)
			})
		},
	}
	set.Flags().StringVar(&tier, "tier", "", "plan tier: free, silver, gold or platinum")
	set.Flags().StringVar(&status, "status", string(domain.SubscriptionStatusActive), "subscription status")
	_ = set.MarkFlagRequired("tier")

	cmd.AddCommand(set)
	return cmd
}

func newUsageCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "usage <user-id>...",
		Short: "Show plan limits and counters for users",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, 0, len(args))
			for _, arg := range args {
				id, err := parseUserID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return withApp(cmd, load, func(ctx context.Context, a *app.App) error {
				usage, err := a.Subscriptions.UsageFor(ctx, ids)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), usage)
			})
		},
	}
}

// =============================================================================
// migrate / hashpw
// =============================================================================

func newMigrateCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Apply pending migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(ctx context.Context, a *app.App) error {
				if a.DB == nil {
					return fmt.Errorf("migrations require the %s store driver", internal.StoreDriverPostgres)
				}
				version, err := internal.MigrationVersion(a.DB)
				if err != nil {
					return fmt.Errorf("read migration version: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), map[string]int64{"version": version})
			})
		},
	})
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hashpw <password>",
		Short: "Print a bcrypt hash for OPERATOR_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}

func main() {
	if err := newRootCmd(loadFromEnv).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
