package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ncompliance/ncompliance/cmd/ncadmin/cli"
	"github.com/ncompliance/ncompliance/internal/app"
	"github.com/ncompliance/ncompliance/internal/commoncodes"
	"github.com/ncompliance/ncompliance/internal/notifications"
	"github.com/ncompliance/ncompliance/internal/platform/cache"
	"github.com/ncompliance/ncompliance/internal/platform/db"
	"github.com/ncompliance/ncompliance/internal/shared"
	"github.com/ncompliance/ncompliance/jobs"
)

// env is the shared state built lazily by commands that need it.
type env struct {
	cfg    *app.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client
}

func (e *env) config() (*app.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	e.cfg = cfg
	e.logger = app.NewLogger(cfg)
	return cfg, nil
}

func (e *env) database(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if e.pool == nil {
		if e.pool, err = db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 4}); err != nil {
			return nil, err
		}
	}
	return e.pool, nil
}

func (e *env) cache(ctx context.Context) (*redis.Client, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if e.redis == nil {
		if e.redis, err = cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
			return nil, err
		}
	}
	return e.redis, nil
}

func (e *env) redisOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: e.cfg.RedisAddr, Password: e.cfg.RedisPassword, DB: e.cfg.RedisDB}
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
}

func main() {
	if app.InTestMode() {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := &env{}
	defer e.close()

	root := &cobra.Command{
		Use:           "ncadmin",
		Short:         "nCompliance administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd(e), seedCmd(e), sweepCmd(e), jobsCmd(e))

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		e.close()
		os.Exit(1)
	}
}

func migrateCmd(e *env) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), db.Schema())
				return err
			}
			pool, err := e.database(cmd.Context())
			if err != nil {
				return err
			}
			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the schema instead of applying it")
	return cmd
}

func seedCmd(e *env) *cobra.Command {
	var file string
	var dump bool
	cmd := &cobra.Command{
		Use:   "seed-codes",
		Short: "Insert missing default common codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dump {
				return cli.DumpSeed(cmd.OutOrStdout(), file)
			}
			pool, err := e.database(cmd.Context())
			if err != nil {
				return err
			}
			client, err := e.cache(cmd.Context())
			if err != nil {
				e.logger.Warn("redis unavailable, code cache not bumped", slog.Any("error", err))
				client = nil
			}
			svc := commoncodes.NewService(commoncodes.NewRepository(pool), commoncodes.NewCache(client, e.cfg.CodeCacheTTL), shared.NewAuditLogger(pool), e.logger)
			return cli.RunSeed(cmd.Context(), svc, cli.SeedOptions{File: file, Stdout: cmd.OutOrStdout()})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Seed file to load instead of the built-in defaults")
	cmd.Flags().BoolVar(&dump, "dump", false, "Print the seed document and exit")
	return cmd
}

func sweepCmd(e *env) *cobra.Command {
	var opts cli.SweepOptions
	var enqueue bool
	cmd := &cobra.Command{
		Use:   "sweep-expiry",
		Short: "Create expiry notices for regulations due for review",
		Long: "Runs the expiry sweep in process. Runs are not deduplicated: sweeping the same day twice " +
			"notifies twice. Use --dry-run to list what would be sent, or --enqueue to hand the run to the worker.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.config()
			if err != nil {
				return err
			}
			if enqueue {
				client := jobs.NewClient(e.redisOpts())
				defer client.Close()
				info, err := client.EnqueueExpirySweep(cmd.Context(), opts.Date)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s)\n", info.ID, info.Queue)
				return nil
			}
			pool, err := e.database(cmd.Context())
			if err != nil {
				return err
			}
			client, err := e.cache(cmd.Context())
			if err != nil {
				return err
			}
			mailer := jobs.NewClient(e.redisOpts())
			defer mailer.Close()
			svc := notifications.NewService(notifications.NewRepository(pool), notifications.Config{
				Cache:    notifications.NewUnreadCache(client, 5*time.Minute),
				Mailer:   mailer,
				Logger:   e.logger,
				Location: cfg.Location(),
			})
			opts.Stdout = cmd.OutOrStdout()
			opts.Lock = jobs.RedisDayLocker(client, 30*time.Minute)
			return cli.RunSweep(cmd.Context(), notifications.NewSweeper(svc, cfg.ExpiryAlertDays), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Date, "date", "", "Sweep as if today were this date (YYYY-MM-DD)")
	f.BoolVar(&opts.DryRun, "dry-run", false, "List due regulations without notifying")
	f.BoolVar(&opts.JSON, "json", false, "Print JSON output")
	f.BoolVar(&enqueue, "enqueue", false, "Queue the sweep for the worker instead of running it here")
	return cmd
}

func jobsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Inspect and trigger background jobs"}

	open := func() (*cli.JobsCLI, func(), error) {
		if _, err := e.config(); err != nil {
			return nil, nil, err
		}
		client := jobs.NewClient(e.redisOpts())
		inspector := asynq.NewInspector(e.redisOpts())
		return cli.NewJobsCLI(client, inspector), func() {
			_ = inspector.Close()
			_ = client.Close()
		}, nil
	}

	var trigger cli.TriggerOptions
	triggerCmd := &cobra.Command{
		Use:   "trigger <task-type>",
		Short: "Enqueue " + jobs.TaskExpirySweep + " or a test " + jobs.TaskTypeSendEmail,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := open()
			if err != nil {
				return err
			}
			defer done()
			id, err := c.Trigger(cmd.Context(), args[0], trigger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s %s\n", args[0], id)
			return nil
		},
	}
	triggerCmd.Flags().StringVar(&trigger.Date, "date", "", "Sweep date (YYYY-MM-DD)")
	triggerCmd.Flags().StringVar(&trigger.To, "to", "", "Recipient of the test email")

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show queue backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := open()
			if err != nil {
				return err
			}
			defer done()
			stats, err := c.InspectQueues(cmd.Context())
			if err != nil {
				return err
			}
			return cli.PrintQueueStats(cmd.OutOrStdout(), stats)
		},
	}

	var size int
	scheduledCmd := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks on the default queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := open()
			if err != nil {
				return err
			}
			defer done()
			tasks, err := c.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, t := range tasks {
				if err := enc.Encode(map[string]any{"id": t.ID, "type": t.Type, "next": t.NextProcessAt}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	scheduledCmd.Flags().IntVar(&size, "size", 10, "Number of tasks to list")

	cmd.AddCommand(triggerCmd, inspectCmd, scheduledCmd)
	return cmd
}
