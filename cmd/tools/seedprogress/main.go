// Command seedprogress inserts the initial ETL state row an operator needs
// to bootstrap a fresh table: the worker refuses to run without a prior
// completed cycle to read progress from.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/disafronov/etl-prometheus-clickhouse/internal/config"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/etlstate"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/logging"
)

func main() {
	seedFlag := flag.Int64("progress", 0, "unix seconds to seed timestamp_progress with (required)")
	flag.Parse()

	if *seedFlag <= 0 {
		fmt.Fprintln(os.Stderr, "seedprogress: -progress must be a positive unix timestamp")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "seedprogress: config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.ETL.LogLevel)
	ctx := context.Background()

	store, err := etlstate.NewClickHouseStore(ctx, cfg.ClickHouse, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seedprogress: connect: %v\n", err)
		os.Exit(1)
	}

	running, err := store.HasRunningJob(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seedprogress: has_running_job: %v\n", err)
		os.Exit(1)
	}
	if running {
		fmt.Fprintln(os.Stderr, "seedprogress: refusing to seed while a job claim is open")
		os.Exit(1)
	}

	seed := *seedFlag
	start := seed
	end := seed + 1

	fields := etlstate.StateFields{
		TimestampStart:    &start,
		TimestampEnd:      &end,
		TimestampProgress: &seed,
	}
	if err := store.SaveState(ctx, fields); err != nil {
		fmt.Fprintf(os.Stderr, "seedprogress: save_state: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("seeded timestamp_progress=%d (table=%s)\n", seed, cfg.ClickHouse.TableETL)
}
