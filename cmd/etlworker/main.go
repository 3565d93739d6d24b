// Command etlworker runs exactly one ETL cycle and exits 0 on success or 1
// on any failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/disafronov/etl-prometheus-clickhouse/internal/config"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/etlstate"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/extract"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/load"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/logging"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/scheduler"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/tempfile"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/transform"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "etlworker",
		Short:   "Run one Prometheus-to-ClickHouse ETL cycle",
		Version: version,
		// Failures are already logged with structured context; cobra's own
		// error/usage output would only duplicate them on the exit path.
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context())
		},
	}
	return cmd
}

func runOnce(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "etlworker: config: %v\n", err)
		return err
	}

	logger := logging.New(cfg.ETL.LogLevel)

	store, err := etlstate.NewClickHouseStore(ctx, cfg.ClickHouse, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to state store")
		return err
	}

	metricsLoader, err := load.New(cfg.ClickHouse, cfg.ClickHouse.TableMetrics, logger)
	if err != nil {
		logger.Error().Err(err).Msg("invalid metrics table identifier")
		return err
	}

	tempFiles, err := tempfile.New(cfg.ETL.TempDir, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to prepare temp directory")
		return err
	}

	extractor := extract.New(cfg.Prometheus, logger)
	transformer := transform.New(logger)
	queryStep := time.Duration(cfg.Prometheus.QueryStepSeconds) * time.Second

	sched := scheduler.New(store, extractor, transformer, metricsLoader, tempFiles, logger, cfg.ETL, queryStep)

	if err := sched.RunOnce(ctx); err != nil {
		logCycleFailure(logger, err)
		return err
	}

	logger.Info().Msg("cycle completed")
	return nil
}

// logCycleFailure logs lock-contention as a warning (external schedulers
// distinguish "nothing to do yet" from a real failure in dashboards built
// on the structured log stream) and everything else as an error.
func logCycleFailure(logger zerolog.Logger, err error) {
	if errors.Is(err, scheduler.ErrConcurrentRun) || errors.Is(err, scheduler.ErrClaimFailed) {
		logger.Warn().Err(err).Msg("cycle skipped")
		return
	}
	logger.Error().Err(err).Msg("cycle failed")
}
