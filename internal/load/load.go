// Package load streams a TSV file produced by internal/transform into
// ClickHouse over its native HTTP interface.
package load

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/rs/zerolog"

	"github.com/disafronov/etl-prometheus-clickhouse/internal/config"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/etlstate"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/httpcfg"
)

// Loader inserts a TSV file's contents into one ClickHouse table.
type Loader struct {
	client   *http.Client
	baseURL  string
	user     string
	password string
	table    string
	logger   zerolog.Logger
}

// New builds a Loader from the ClickHouse connection settings. Table is
// validated here once, rather than on every InsertFromFile call.
func New(cfg config.ClickHouse, table string, logger zerolog.Logger) (*Loader, error) {
	if err := etlstate.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	return &Loader{
		client:   httpcfg.Client(cfg.SendReceiveTimeout, cfg.Insecure),
		baseURL:  cfg.URL,
		user:     cfg.User,
		password: cfg.Password,
		table:    table,
		logger:   logger,
	}, nil
}

// InsertFromFile streams path's contents as the body of an
// INSERT ... FORMAT TabSeparated request. A zero-byte file is a no-op: an
// empty extraction window produces nothing worth inserting. A missing file
// is an error — the caller always expects transform to have produced one.
func (l *Loader) InsertFromFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("load: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load: open %s: %w", path, err)
	}
	defer f.Close()

	reqURL := l.baseURL + "?query=" + url.QueryEscape(insertQuery(l.table))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, f)
	if err != nil {
		return fmt.Errorf("load: build request: %w", err)
	}
	req.ContentLength = info.Size()
	httpcfg.SetBasicAuth(req, l.user, l.password)

	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.Error().Str("op", "load.insert").Str("table", l.table).Err(err).Msg("insert request failed")
		return fmt.Errorf("load: insert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, diagnosticCapture))
		err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(diag))
		l.logger.Error().Str("op", "load.insert").Str("table", l.table).Int("status", resp.StatusCode).Msg(err.Error())
		return fmt.Errorf("load: %w", err)
	}
	return nil
}

const diagnosticCapture = 1024

func insertQuery(table string) string {
	return fmt.Sprintf("INSERT INTO %s FORMAT TabSeparated", table)
}
