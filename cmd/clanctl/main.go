// Command clanctl runs economy maintenance from an external cron or by hand.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kayteedberserker/oreblogda-sub000/internal/app"
	"github.com/kayteedberserker/oreblogda-sub000/internal/config"
	"github.com/kayteedberserker/oreblogda-sub000/internal/scheduler"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

var (
	verbose  bool
	jsonOut  bool
	logLevel = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:   "clanctl",
	Short: "Clan economy maintenance",
	Long: `clanctl runs the periodic clan economy jobs outside the API server:
migrations, war sweeps, the daily and weekly passes, manual settlement,
and war flag repair.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logLevel.Set(slog.LevelDebug)
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending Postgres migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			if a.Pool == nil {
				return errors.New("migrate needs STORE_BACKEND=postgres")
			}
			applied, err := store.Migrate(ctx, a.Pool)
			if err != nil {
				return err
			}
			return report(map[string]any{"applied": applied})
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:       "sweep {wars|stale|daily|weekly}",
	Short:     "Run one scheduled job now",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{scheduler.JobWars, scheduler.JobStale, scheduler.JobDaily, scheduler.JobWeekly},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			if err := a.Scheduler.RunNow(ctx, args[0]); err != nil {
				return err
			}
			return report(map[string]string{"job": args[0], "status": "done"})
		})
	},
}

var settleCmd = &cobra.Command{
	Use:   "settle <warId>",
	Short: "Settle an ACTIVE war immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			w, err := a.Wars.Get(ctx, args[0])
			if err != nil {
				return err
			}
			res, err := a.Wars.Settle(ctx, w.ID)
			if err != nil {
				return err
			}
			if res == nil {
				return report(map[string]string{"war": w.WarID, "status": string(w.Status), "result": "not active, nothing to settle"})
			}
			return report(res)
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair clan war flags from the wars table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			repaired, err := a.Wars.Reconcile(ctx)
			if err != nil {
				return err
			}
			return report(map[string]any{"repaired": repaired})
		})
	},
}

var boardsCmd = &cobra.Command{
	Use:   "publish-boards",
	Short: "Recompute and publish the cached clan leaderboards",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			if a.Redis == nil {
				return errors.New("publish-boards needs redis")
			}
			if err := a.Badges.PublishBoards(ctx); err != nil {
				return err
			}
			return report(map[string]string{"status": "published"})
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")
	rootCmd.AddCommand(migrateCmd, sweepCmd, settleCmd, reconcileCmd, boardsCmd)
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	// Notices raised by the job are delivered before the process exits.
	a.Dispatcher.Start()
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close", "err", err)
		}
	}()
	return fn(ctx, a)
}

func report(v any) error {
	if !jsonOut {
		fmt.Printf("%+v\n", v)
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
