package transform

import (
	"bufio"
	"strings"
)

// tsvWriter emits rows in the worker's output dialect: tab-separated fields,
// newline-terminated, no header.
type tsvWriter struct {
	w *bufio.Writer
}

func newTSVWriter(w *bufio.Writer) *tsvWriter {
	return &tsvWriter{w: w}
}

func (t *tsvWriter) writeRow(fields ...string) error {
	_, err := t.w.WriteString(strings.Join(fields, "\t"))
	if err != nil {
		return err
	}
	return t.w.WriteByte('\n')
}
