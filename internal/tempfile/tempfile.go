// Package tempfile creates and unconditionally cleans up the per-cycle
// scratch files used by the extract and transform stages.
package tempfile

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Manager creates scratch files under a single configured directory and
// guarantees their cleanup never raises into the caller.
type Manager struct {
	dir    string
	logger zerolog.Logger
}

// New returns a Manager rooted at dir, creating dir if it does not exist.
func New(dir string, logger zerolog.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tempfile: create dir %s: %w", dir, err)
	}
	return &Manager{dir: dir, logger: logger}, nil
}

// Allocate creates a new empty file under the managed directory named
// "<prefix><random><suffix>" and returns its path. The file is closed
// immediately; callers reopen it for writing.
func (m *Manager) Allocate(prefix, suffix string) (string, error) {
	f, err := os.CreateTemp(m.dir, prefix+"*"+suffix)
	if err != nil {
		return "", fmt.Errorf("tempfile: allocate %s*%s: %w", prefix, suffix, err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("tempfile: close %s: %w", path, err)
	}
	return path, nil
}

// Cleanup deletes every given path, swallowing "not found" silently and
// logging any other OS error as a warning. It never returns an error: a
// cleanup failure must never shadow the error that triggered it, nor abort
// an otherwise-successful cycle.
func (m *Manager) Cleanup(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			m.logger.Warn().
				Str("op", "tempfile.cleanup").
				Str("path", path).
				Err(err).
				Msg("failed to remove scratch file")
		}
	}
}
