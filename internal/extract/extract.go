// Package extract issues range queries against a Prometheus-compatible API
// and streams the raw response body to disk, never materializing it in
// memory.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/disafronov/etl-prometheus-clickhouse/internal/config"
	"github.com/disafronov/etl-prometheus-clickhouse/internal/httpcfg"
)

const (
	copyChunkBytes    = 8 * 1024
	diagnosticCapture = 1024
)

// Kind classifies an extraction failure for log tagging and caller
// dispatch.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindConnection Kind = "connection"
	KindTransport  Kind = "transport"
)

// Error wraps an extraction failure with its classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("extract: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Extractor performs range queries against the upstream API.
type Extractor struct {
	client   *http.Client
	baseURL  string
	user     string
	password string
	logger   zerolog.Logger
}

// New builds an Extractor from the Prometheus connection settings.
func New(cfg config.Prometheus, logger zerolog.Logger) *Extractor {
	return &Extractor{
		client:   httpcfg.Client(cfg.Timeout, cfg.Insecure),
		baseURL:  cfg.URL,
		user:     cfg.User,
		password: cfg.Password,
		logger:   logger,
	}
}

// QueryRangeToFile performs one GET /api/v1/query_range and streams the
// response body to outPath in fixed-size chunks over the already-open
// connection.
func (e *Extractor) QueryRangeToFile(ctx context.Context, expr string, start, end time.Time, step time.Duration, outPath string) error {
	reqURL, err := e.buildURL(expr, start, end, step)
	if err != nil {
		return &Error{Kind: KindTransport, Err: fmt.Errorf("build url: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &Error{Kind: KindTransport, Err: fmt.Errorf("build request: %w", err)}
	}
	httpcfg.SetBasicAuth(req, e.user, e.password)

	resp, err := e.client.Do(req)
	if err != nil {
		return e.classifyRequestError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, diagnosticCapture))
		err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(diag))
		e.logger.Error().
			Str("op", "extract.query_range").
			Str("kind", string(KindTransport)).
			Int("status", resp.StatusCode).
			Msg(err.Error())
		return &Error{Kind: KindTransport, Err: err}
	}

	out, err := os.Create(outPath)
	if err != nil {
		return &Error{Kind: KindTransport, Err: fmt.Errorf("create %s: %w", outPath, err)}
	}
	defer out.Close()

	buf := make([]byte, copyChunkBytes)
	if _, err := io.CopyBuffer(out, resp.Body, buf); err != nil {
		return e.classifyRequestError(err)
	}
	return nil
}

func (e *Extractor) buildURL(expr string, start, end time.Time, step time.Duration) (string, error) {
	base, err := url.Parse(e.baseURL)
	if err != nil {
		return "", err
	}
	base.Path = joinPath(base.Path, "/api/v1/query_range")

	q := base.Query()
	q.Set("query", expr)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("step", formatStep(step))
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func formatStep(step time.Duration) string {
	seconds := int64(step / time.Second)
	return strconv.FormatInt(seconds, 10) + "s"
}

func joinPath(base, suffix string) string {
	if base == "" || base == "/" {
		return suffix
	}
	return base + suffix
}

func (e *Extractor) classifyRequestError(err error) error {
	kind := KindTransport
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = KindTimeout
		} else {
			var opErr *net.OpError
			if errors.As(err, &opErr) {
				kind = KindConnection
			}
		}
	}
	e.logger.Error().
		Str("op", "extract.query_range").
		Str("kind", string(kind)).
		Err(err).
		Msg("extraction request failed")
	return &Error{Kind: kind, Err: err}
}
