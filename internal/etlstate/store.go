// Package etlstate implements the ETL state table adapter: reading the last
// completed cycle, the single-writer claim protocol built on a
// ReplacingMergeTree-style log-structured table, and appending new state
// rows.
package etlstate

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog"

	"github.com/disafronov/etl-prometheus-clickhouse/internal/config"
)

// Store is the interface the Scheduler depends on, so tests can substitute
// an in-memory fake without standing up a real ClickHouse server.
type Store interface {
	GetState(ctx context.Context) (StateRecord, error)
	HasRunningJob(ctx context.Context) (bool, error)
	TryMarkStart(ctx context.Context, ts int64) (bool, error)
	SaveState(ctx context.Context, fields StateFields) error
}

// ClickHouseStore is the production Store backed by the ClickHouse ETL
// state table.
type ClickHouseStore struct {
	conn   driver.Conn
	table  string
	logger zerolog.Logger
}

// NewClickHouseStore opens a connection to ClickHouse and validates the ETL
// table name. It pings immediately so misconfiguration fails fast, before
// the first cycle attempts any real work.
func NewClickHouseStore(ctx context.Context, cfg config.ClickHouse, logger zerolog.Logger) (*ClickHouseStore, error) {
	if err := ValidateIdentifier(cfg.TableETL); err != nil {
		return nil, err
	}

	opts, err := buildOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("etlstate: build options: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("etlstate: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("etlstate: ping: %w", err)
	}

	return &ClickHouseStore{conn: conn, table: cfg.TableETL, logger: logger}, nil
}

// buildOptions mirrors the original client's URL parsing: the same base URL
// used for the raw HTTP streaming insert (internal/load) is reused here,
// split into host/port with scheme-appropriate defaults, so operators only
// configure one URL per subsystem.
func buildOptions(cfg config.ClickHouse) (*clickhouse.Options, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", cfg.URL, err)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("invalid url %q: missing hostname", cfg.URL)
	}

	port := parsed.Port()
	secure := parsed.Scheme == "https"
	if port == "" {
		if secure {
			port = "8443"
		} else {
			port = "8123"
		}
	}

	opts := &clickhouse.Options{
		Addr:     []string{parsed.Hostname() + ":" + port},
		Protocol: clickhouse.HTTP,
		Auth: clickhouse.Auth{
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: cfg.ConnectTimeout,
		ReadTimeout: cfg.SendReceiveTimeout,
	}
	if secure {
		tlsConfig := &tls.Config{InsecureSkipVerify: cfg.Insecure} // #nosec G402 -- explicit operator opt-in
		opts.TLS = tlsConfig
	}
	return opts, nil
}

// GetState returns the most recent completed cycle record. "Completed"
// means timestamp_progress and timestamp_end are both set and
// timestamp_end > timestamp_start. FINAL forces the merged view, so
// unmerged duplicates of a cycle's rows are collapsed before ORDER BY and
// LIMIT pick the latest one.
func (s *ClickHouseStore) GetState(ctx context.Context) (StateRecord, error) {
	query := fmt.Sprintf(`
		SELECT
			timestamp_start,
			timestamp_end,
			timestamp_progress,
			batch_window_seconds,
			batch_rows,
			batch_skipped_count
		FROM %s FINAL
		WHERE timestamp_progress IS NOT NULL
		  AND timestamp_end IS NOT NULL
		  AND timestamp_end > timestamp_start
		ORDER BY timestamp_start DESC
		LIMIT 1
	`, s.table)

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		s.logError("get_state", err)
		return StateRecord{}, fmt.Errorf("etlstate: get_state: %w", err)
	}
	defer rows.Close()

	var rec StateRecord
	if rows.Next() {
		var (
			tsStart, tsEnd, tsProgress *time.Time
			windowSeconds              *uint32
			batchRows, skippedCount    *uint64
		)
		if err := rows.Scan(&tsStart, &tsEnd, &tsProgress, &windowSeconds, &batchRows, &skippedCount); err != nil {
			s.logError("get_state", err)
			return StateRecord{}, fmt.Errorf("etlstate: get_state: scan: %w", err)
		}
		rec.TimestampStart = timeToUnix(tsStart)
		rec.TimestampEnd = timeToUnix(tsEnd)
		rec.TimestampProgress = timeToUnix(tsProgress)
		rec.BatchWindowSeconds = windowSeconds
		rec.BatchRows = batchRows
		rec.BatchSkippedCount = skippedCount
	}
	if err := rows.Err(); err != nil {
		s.logError("get_state", err)
		return StateRecord{}, fmt.Errorf("etlstate: get_state: %w", err)
	}
	return rec, nil
}

// HasRunningJob reports whether the merged view shows an open cycle (a row
// with timestamp_start set and timestamp_end null). Under FINAL,
// ReplacingMergeTree has already collapsed any companion closing row onto
// the same key, so no extra exclusion subquery is needed here — that is
// only required in the unmerged verification read in TryMarkStart.
func (s *ClickHouseStore) HasRunningJob(ctx context.Context) (bool, error) {
	query := fmt.Sprintf(`
		SELECT count()
		FROM %s FINAL
		WHERE timestamp_start IS NOT NULL AND timestamp_end IS NULL
	`, s.table)

	var count uint64
	if err := s.conn.QueryRow(ctx, query).Scan(&count); err != nil {
		s.logError("has_running_job", err)
		return false, fmt.Errorf("etlstate: has_running_job: %w", err)
	}
	return count > 0, nil
}

// TryMarkStart attempts to claim the lock for cycle ts. It first repeats
// the HasRunningJob gate, inserts a bare open row, then re-reads the
// UNMERGED rowset to confirm that ts is the only open timestamp_start
// without a companion closing row — a fresh insert may not yet be folded
// into the merged view, so this verification must never use FINAL.
func (s *ClickHouseStore) TryMarkStart(ctx context.Context, ts int64) (bool, error) {
	running, err := s.HasRunningJob(ctx)
	if err != nil {
		return false, err
	}
	if running {
		return false, nil
	}

	insertQuery := fmt.Sprintf(`INSERT INTO %s (timestamp_start) VALUES (?)`, s.table)
	startTime := time.Unix(ts, 0).UTC()
	if err := s.conn.Exec(ctx, insertQuery, startTime); err != nil {
		s.logError("try_mark_start", err)
		return false, fmt.Errorf("etlstate: try_mark_start: insert: %w", err)
	}

	verifyQuery := fmt.Sprintf(`
		SELECT timestamp_start
		FROM %s
		WHERE timestamp_start IS NOT NULL AND timestamp_end IS NULL
		  AND timestamp_start NOT IN (
		      SELECT timestamp_start FROM %s
		      WHERE timestamp_end IS NOT NULL AND timestamp_end > timestamp_start
		  )
	`, s.table, s.table)

	rows, err := s.conn.Query(ctx, verifyQuery)
	if err != nil {
		s.logError("try_mark_start", err)
		return false, fmt.Errorf("etlstate: try_mark_start: verify: %w", err)
	}
	defer rows.Close()

	var openStarts []int64
	for rows.Next() {
		var openTS time.Time
		if err := rows.Scan(&openTS); err != nil {
			s.logError("try_mark_start", err)
			return false, fmt.Errorf("etlstate: try_mark_start: verify scan: %w", err)
		}
		openStarts = append(openStarts, openTS.UTC().Unix())
	}
	if err := rows.Err(); err != nil {
		s.logError("try_mark_start", err)
		return false, fmt.Errorf("etlstate: try_mark_start: verify: %w", err)
	}

	return len(openStarts) == 1 && openStarts[0] == ts, nil
}

// SaveState inserts one new row with only the supplied fields. A no-op
// when every field is nil.
func (s *ClickHouseStore) SaveState(ctx context.Context, fields StateFields) error {
	columns := make([]string, 0, 6)
	args := make([]any, 0, 6)

	if fields.TimestampStart != nil {
		columns = append(columns, "timestamp_start")
		args = append(args, time.Unix(*fields.TimestampStart, 0).UTC())
	}
	if fields.TimestampEnd != nil {
		columns = append(columns, "timestamp_end")
		args = append(args, time.Unix(*fields.TimestampEnd, 0).UTC())
	}
	if fields.TimestampProgress != nil {
		columns = append(columns, "timestamp_progress")
		args = append(args, time.Unix(*fields.TimestampProgress, 0).UTC())
	}
	if fields.BatchWindowSeconds != nil {
		columns = append(columns, "batch_window_seconds")
		args = append(args, *fields.BatchWindowSeconds)
	}
	if fields.BatchRows != nil {
		columns = append(columns, "batch_rows")
		args = append(args, *fields.BatchRows)
	}
	if fields.BatchSkippedCount != nil {
		columns = append(columns, "batch_skipped_count")
		args = append(args, *fields.BatchSkippedCount)
	}

	if len(columns) == 0 {
		return nil
	}

	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		s.table,
		joinColumns(columns),
		joinColumns(placeholders),
	)

	if err := s.conn.Exec(ctx, query, args...); err != nil {
		s.logError("save_state", err)
		return fmt.Errorf("etlstate: save_state: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) logError(op string, err error) {
	s.logger.Error().
		Str("op", op).
		Str("table", s.table).
		Err(err).
		Msg("etlstate operation failed")
}

func timeToUnix(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	unix := t.UTC().Unix()
	return &unix
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
