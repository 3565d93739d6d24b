// Package scheduler drives one ETL cycle: claim the single-writer lock,
// load progress, compute the window, run extract -> transform -> load, and
// persist advanced progress.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/disafronov/etl-prometheus-clickhouse/internal/config"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/etlstate"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/transform"
)

// metricsQuery always exports every metric Prometheus holds; the job
// carries no per-metric selection knob, matching the original job's
// `{__name__=~".+"}` selector.
const metricsQuery = `{__name__=~".+"}`

const (
	rawPrefix       = "prometheus_raw_"
	rawSuffix       = ".json"
	processedPrefix = "etl_processed_"
	processedSuffix = ".tsv"
)

// Extractor is the subset of internal/extract.Extractor the Scheduler
// depends on.
type Extractor interface {
	QueryRangeToFile(ctx context.Context, expr string, start, end time.Time, step time.Duration, outPath string) error
}

// Transformer is the subset of internal/transform.Transformer the
// Scheduler depends on.
type Transformer interface {
	StreamTransform(inPath, outPath string) (transform.Result, error)
}

// Loader is the subset of internal/load.Loader the Scheduler depends on.
type Loader interface {
	InsertFromFile(ctx context.Context, path string) error
}

// TempFileManager is the subset of internal/tempfile.Manager the Scheduler
// depends on.
type TempFileManager interface {
	Allocate(prefix, suffix string) (string, error)
	Cleanup(paths ...string)
}

// Scheduler coordinates one ETL cycle across the Store, Extractor,
// Transformer, and Loader.
type Scheduler struct {
	store       etlstate.Store
	extractor   Extractor
	transformer Transformer
	loader      Loader
	tempFiles   TempFileManager
	logger      zerolog.Logger
	clock       Clock

	windowSize int64
	overlap    int64
	minAllowed int64
	queryStep  time.Duration
}

// New builds a Scheduler from its collaborators and the ETL window
// configuration.
func New(
	store etlstate.Store,
	extractor Extractor,
	transformer Transformer,
	loader Loader,
	tempFiles TempFileManager,
	logger zerolog.Logger,
	etlCfg config.ETL,
	queryStep time.Duration,
) *Scheduler {
	return &Scheduler{
		store:       store,
		extractor:   extractor,
		transformer: transformer,
		loader:      loader,
		tempFiles:   tempFiles,
		logger:      logger,
		clock:       systemClock{},
		windowSize:  etlCfg.BatchWindowSizeSeconds,
		overlap:     etlCfg.BatchWindowOverlapSeconds,
		minAllowed:  etlCfg.MinWindowStartTimestamp,
		queryStep:   queryStep,
	}
}

// WithClock overrides the Scheduler's Clock; used by tests to control
// now_unix() deterministically.
func (s *Scheduler) WithClock(clock Clock) *Scheduler {
	s.clock = clock
	return s
}

// RunOnce executes one full ETL cycle: Idle -> Claimed -> Extracting ->
// Transforming -> Loading -> Finalizing -> Idle. Lock contention, missing
// progress, and extract/transform/load/persist failures map to the
// package's sentinel errors; store errors from the gate, claim, or progress
// read and temp-file allocation errors are returned wrapped without one.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	running, err := s.store.HasRunningJob(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: has_running_job: %w", err)
	}
	if running {
		return ErrConcurrentRun
	}

	tsStart := s.clock.Now().Unix()
	claimed, err := s.store.TryMarkStart(ctx, tsStart)
	if err != nil {
		return fmt.Errorf("scheduler: try_mark_start: %w", err)
	}
	if !claimed {
		return ErrClaimFailed
	}

	state, err := s.store.GetState(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: get_state: %w", err)
	}
	if state.TimestampProgress == nil {
		return ErrProgressMissing
	}
	progressIn := *state.TimestampProgress

	windowStart := progressIn - s.overlap
	if windowStart < s.minAllowed {
		windowStart = s.minAllowed
	}
	windowEnd := windowStart + s.windowSize

	rawPath, err := s.tempFiles.Allocate(rawPrefix, rawSuffix)
	if err != nil {
		return fmt.Errorf("scheduler: allocate raw file: %w", err)
	}
	tsvPath, err := s.tempFiles.Allocate(processedPrefix, processedSuffix)
	if err != nil {
		s.tempFiles.Cleanup(rawPath)
		return fmt.Errorf("scheduler: allocate tsv file: %w", err)
	}

	result, err := s.extractTransform(ctx, windowStart, windowEnd, rawPath, tsvPath)
	if err != nil {
		s.tempFiles.Cleanup(rawPath, tsvPath)
		return err
	}
	s.tempFiles.Cleanup(rawPath)

	if result.Rows > 0 {
		if err := s.loader.InsertFromFile(ctx, tsvPath); err != nil {
			s.tempFiles.Cleanup(tsvPath)
			s.logger.Error().Str("op", "scheduler.load").Err(err).Msg("load failed")
			return fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}
	}
	s.tempFiles.Cleanup(tsvPath)

	now := s.clock.Now().Unix()
	progressOut := windowEnd
	if now < progressOut {
		progressOut = now
	}
	actualWindow := progressOut - windowStart
	if actualWindow < 0 {
		actualWindow = 0
	}
	tsEnd := tsStart + 1
	if now > tsEnd {
		tsEnd = now
	}

	batchWindow := uint32(actualWindow)
	batchRows := uint64(result.Rows)
	batchSkipped := uint64(result.Skipped)

	err = s.store.SaveState(ctx, etlstate.StateFields{
		TimestampStart:     &tsStart,
		TimestampEnd:       &tsEnd,
		TimestampProgress:  &progressOut,
		BatchWindowSeconds: &batchWindow,
		BatchRows:          &batchRows,
		BatchSkippedCount:  &batchSkipped,
	})
	if err != nil {
		s.logger.Error().Str("op", "scheduler.save_state").Err(err).Msg("state persist failed")
		return fmt.Errorf("%w: %v", ErrStatePersistFailed, err)
	}
	return nil
}

// extractTransform runs the Extractor then the Transformer, wrapping each
// failure in its sentinel. Temp-file cleanup on error is the caller's
// responsibility, for both scratch files.
func (s *Scheduler) extractTransform(ctx context.Context, windowStart, windowEnd int64, rawPath, tsvPath string) (transform.Result, error) {
	start := time.Unix(windowStart, 0).UTC()
	end := time.Unix(windowEnd, 0).UTC()

	if err := s.extractor.QueryRangeToFile(ctx, metricsQuery, start, end, s.queryStep, rawPath); err != nil {
		s.logger.Error().Str("op", "scheduler.extract").Err(err).Msg("extract failed")
		return transform.Result{}, fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}

	result, err := s.transformer.StreamTransform(rawPath, tsvPath)
	if err != nil {
		s.logger.Error().Str("op", "scheduler.transform").Err(err).Msg("transform failed")
		return transform.Result{}, fmt.Errorf("%w: %v", ErrTransformFailed, err)
	}
	return result, nil
}
