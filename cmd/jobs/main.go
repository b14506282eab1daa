package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-service/config"
	"storefront-service/internal/redisclient"
	"storefront-service/internal/service"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type jobEnv struct {
	cfg    *config.Config
	db     *store.Store
	tp     *sdktrace.TracerProvider
	logger *zap.Logger
}

var env jobEnv

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil && env.logger != nil {
		env.logger.Error("Job failed", zap.Error(err))
	}
	env.close()
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// close runs after every job, failed or not
func (e *jobEnv) close() {
	if e.tp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.tp.Shutdown(ctx); err != nil && e.logger != nil {
			e.logger.Warn("Error shutting down tracer", zap.Error(err))
		}
		cancel()
	}
	if e.db != nil {
		_ = e.db.Close()
	}
	util.SyncLogger()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jobs",
		Short:         "Scheduled maintenance jobs for the storefront service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel, "jobs"); err != nil {
				log.Printf("Failed to initialize logger: %v", err)
				return err
			}

			env = jobEnv{cfg: cfg, logger: util.GetLogger()}

			tp, err := util.InitTracer("jobs", cfg.Observ.JaegerEndpoint)
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}
			env.tp = tp

			db, err := store.NewStore(cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			env.db = db

			env.logger.Info("Job starting", zap.String("job", cmd.Name()))
			return nil
		},
	}

	root.AddCommand(
		newSweepCmd(),
		newFlushCmd(),
		newSegmentsCmd(),
		newMigrateCmd(),
	)
	return root
}

func newSweepCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check-inactive-sessions",
		Short: "Confirm bounces for single-page sessions that went idle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if timeout <= 0 {
				timeout = env.cfg.Analytics.SessionTimeout
			}
			sweeper := service.NewBounceSweeper(env.db, timeout, env.cfg.Analytics.BounceSweepBatch)

			result, err := sweeper.Sweep(cmd.Context(), time.Now())
			if result != nil {
				env.logger.Info("Bounce sweep finished",
					zap.Int("scanned", result.Scanned),
					zap.Int("finalized", result.Finalized),
					zap.Int("failed", result.Failed))
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "session-timeout", 0, "idle time after which a session is closed (defaults to SESSION_TIMEOUT)")
	return cmd
}

func newFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush-traffic-cache",
		Short: "Move buffered traffic counters into the daily traffic rows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !env.cfg.Redis.Enabled {
				env.logger.Warn("Redis disabled, in-memory traffic counters are flushed by the server process")
				return nil
			}

			redisClient, err := redisclient.NewClient(env.cfg.Redis.Addr, env.cfg.Redis.Password, env.cfg.Redis.DB)
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			defer redisClient.Close()

			flusher := service.NewTrafficFlusher(redisClient, env.db, redisClient)
			result, err := flusher.Flush(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			if result.Skipped {
				env.logger.Info("Traffic flush skipped, another flush holds the lock")
				return nil
			}
			env.logger.Info("Traffic flush finished",
				zap.Int("days", result.Days),
				zap.Int("applied", result.Applied),
				zap.Int("replayed", result.Replayed),
				zap.Int64("visits", result.Visits),
				zap.Int("forgotten", result.Forgotten))
			return nil
		},
	}
}

func newSegmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-user-segments",
		Short: "Recompute the purchase segment of every recent customer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := service.NewSegmentService(env.db).UpdateSegments(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			env.logger.Info("Segmentation finished", zap.Any("by_segment", result.BySegment))
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := env.db.Migrate(cmd.Context()); err != nil {
				return err
			}
			env.logger.Info("Migrations applied")
			return nil
		},
	}
}
