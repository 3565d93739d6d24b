package transform

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestStreamTransformHappyPathTwoSeries(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	in := `{"status":"success","data":{"result":[
		{"metric":{"__name__":"up","instance":"a"},"values":[[1700000000,"1"],[1700000150,"1"]]},
		{"metric":{"__name__":"up","instance":"b"},"values":[[1700000000,"0"]]}
	]}}`
	inPath := writeTempFile(t, dir, "in.json", in)
	outPath := filepath.Join(dir, "out.tsv")

	tr := New(zerolog.Nop())
	result, err := tr.StreamTransform(inPath, outPath)
	if err != nil {
		t.Fatalf("StreamTransform: %v", err)
	}
	if result.Rows != 3 {
		t.Fatalf("rows=%d want 3", result.Rows)
	}
	if result.Series != 2 {
		t.Fatalf("series=%d want 2", result.Series)
	}
	if result.Skipped != 0 {
		t.Fatalf("skipped=%d want 0", result.Skipped)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	want := []string{
		"1700000000\tup\t['instance']\t['a']\t1",
		"1700000150\tup\t['instance']\t['a']\t1",
		"1700000000\tup\t['instance']\t['b']\t0",
	}
	for i, w := range want {
		if lines[i] != w {
			t.Fatalf("line %d=%q want %q", i, lines[i], w)
		}
	}
}

func TestStreamTransformEmptyResult(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	in := `{"status":"success","data":{"result":[]}}`
	inPath := writeTempFile(t, dir, "in.json", in)
	outPath := filepath.Join(dir, "out.tsv")

	tr := New(zerolog.Nop())
	result, err := tr.StreamTransform(inPath, outPath)
	if err != nil {
		t.Fatalf("StreamTransform: %v", err)
	}
	if result.Rows != 0 || result.Series != 0 {
		t.Fatalf("got %+v, want all zero", result)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestStreamTransformMalformedSampleSkipped(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	in := `{"status":"success","data":{"result":[
		{"metric":{"__name__":"up","instance":"a"},"values":[[1700000000,"banana"],[1700000150,"1"]]}
	]}}`
	inPath := writeTempFile(t, dir, "in.json", in)
	outPath := filepath.Join(dir, "out.tsv")

	tr := New(zerolog.Nop())
	result, err := tr.StreamTransform(inPath, outPath)
	if err != nil {
		t.Fatalf("StreamTransform: %v", err)
	}
	if result.Skipped != 1 {
		t.Fatalf("skipped=%d want 1", result.Skipped)
	}
	if result.Rows != 1 {
		t.Fatalf("rows=%d want 1", result.Rows)
	}
}

func TestStreamTransformSkipWarningNamesSeriesAndLiteral(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	in := `{"status":"success","data":{"result":[
		{"metric":{"__name__":"up","instance":"a"},"values":[[1700000000,"banana"]]}
	]}}`
	inPath := writeTempFile(t, dir, "in.json", in)
	outPath := filepath.Join(dir, "out.tsv")

	var logBuf bytes.Buffer
	tr := New(zerolog.New(&logBuf))
	if _, err := tr.StreamTransform(inPath, outPath); err != nil {
		t.Fatalf("StreamTransform: %v", err)
	}

	logged := logBuf.String()
	if !strings.Contains(logged, `"series":"up"`) {
		t.Fatalf("skip warning missing series name: %s", logged)
	}
	if !strings.Contains(logged, `"value":"banana"`) {
		t.Fatalf("skip warning missing offending literal: %s", logged)
	}
	if n := strings.Count(logged, "skipped unparseable sample value"); n != 1 {
		t.Fatalf("skip warning logged %d times, want 1", n)
	}
}

func TestStreamTransformSpecialFloatsRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	in := `{"status":"success","data":{"result":[
		{"metric":{"__name__":"m"},"values":[[1,"NaN"],[2,"Inf"],[3,"-Inf"]]}
	]}}`
	inPath := writeTempFile(t, dir, "in.json", in)
	outPath := filepath.Join(dir, "out.tsv")

	tr := New(zerolog.Nop())
	result, err := tr.StreamTransform(inPath, outPath)
	if err != nil {
		t.Fatalf("StreamTransform: %v", err)
	}
	if result.Skipped != 0 {
		t.Fatalf("skipped=%d want 0", result.Skipped)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	wantValues := []string{"nan", "inf", "-inf"}
	for i, w := range wantValues {
		fields := strings.Split(lines[i], "\t")
		if fields[len(fields)-1] != w {
			t.Fatalf("line %d value=%q want %q", i, fields[len(fields)-1], w)
		}
	}
}

func TestStreamTransformLabelsSortedAndNameRemoved(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	in := `{"status":"success","data":{"result":[
		{"metric":{"zed":"1","__name__":"m","alpha":"2"},"values":[[1,"1"]]}
	]}}`
	inPath := writeTempFile(t, dir, "in.json", in)
	outPath := filepath.Join(dir, "out.tsv")

	tr := New(zerolog.Nop())
	if _, err := tr.StreamTransform(inPath, outPath); err != nil {
		t.Fatalf("StreamTransform: %v", err)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	line := strings.TrimRight(string(out), "\n")
	fields := strings.Split(line, "\t")
	if fields[2] != "['alpha','zed']" {
		t.Fatalf("keys=%q want ['alpha','zed']", fields[2])
	}
	if fields[3] != "['2','1']" {
		t.Fatalf("values=%q want ['2','1']", fields[3])
	}
	if strings.Contains(fields[2], "__name__") {
		t.Fatalf("labels.key must not contain __name__: %q", fields[2])
	}
}

func TestStreamTransformMalformedJSONFails(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	inPath := writeTempFile(t, dir, "in.json", `{"status":"success",`)
	outPath := filepath.Join(dir, "out.tsv")

	tr := New(zerolog.Nop())
	if _, err := tr.StreamTransform(inPath, outPath); err == nil {
		t.Fatal("expected error for truncated JSON body")
	}
}
