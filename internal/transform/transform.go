// Package transform converts a Prometheus range-query response into the
// ETL table's TSV row format, reading the input through encoding/json's
// token-level decoder so memory use stays bounded in the number of open
// series, never in the number of samples.
package transform

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rs/zerolog"
)

// Transformer streams one query_range response body into TSV rows.
type Transformer struct {
	logger zerolog.Logger
}

// New builds a Transformer.
func New(logger zerolog.Logger) *Transformer {
	return &Transformer{logger: logger}
}

// Result reports what one StreamTransform call produced.
type Result struct {
	Rows    int
	Series  int
	Skipped int
}

// StreamTransform reads the query_range response at inPath and writes TSV
// rows to outPath. A malformed individual sample is skipped and counted;
// a malformed JSON body fails the whole cycle.
func (tr *Transformer) StreamTransform(inPath, outPath string) (Result, error) {
	var res Result

	in, err := os.Open(inPath)
	if err != nil {
		return res, fmt.Errorf("transform: open input: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return res, fmt.Errorf("transform: create output: %w", err)
	}
	defer out.Close()

	bw := bufio.NewWriter(out)
	w := newTSVWriter(bw)

	dec := json.NewDecoder(bufio.NewReader(in))

	if err := expectDelim(dec, '{'); err != nil {
		return res, fmt.Errorf("transform: %w", err)
	}
	for dec.More() {
		key, err := decodeKey(dec)
		if err != nil {
			return res, fmt.Errorf("transform: %w", err)
		}
		if key == "data" {
			if err := tr.processDataObject(dec, w, &res); err != nil {
				return res, fmt.Errorf("transform: %w", err)
			}
			continue
		}
		if err := skipValue(dec); err != nil {
			return res, fmt.Errorf("transform: skip %q: %w", key, err)
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return res, fmt.Errorf("transform: %w", err)
	}

	if err := bw.Flush(); err != nil {
		return res, fmt.Errorf("transform: flush output: %w", err)
	}
	return res, nil
}

func (tr *Transformer) processDataObject(dec *json.Decoder, w *tsvWriter, res *Result) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		key, err := decodeKey(dec)
		if err != nil {
			return err
		}
		if key == "result" {
			if err := tr.processResultArray(dec, w, res); err != nil {
				return err
			}
			continue
		}
		if err := skipValue(dec); err != nil {
			return fmt.Errorf("skip data.%s: %w", key, err)
		}
	}
	return expectDelim(dec, '}')
}

func (tr *Transformer) processResultArray(dec *json.Decoder, w *tsvWriter, res *Result) error {
	if err := expectDelim(dec, '['); err != nil {
		return err
	}
	for dec.More() {
		if err := tr.processSeriesObject(dec, w, res); err != nil {
			return err
		}
		res.Series++
	}
	return expectDelim(dec, ']')
}

// processSeriesObject reads one {"metric": {...}, "values": [...]} object.
// The Prometheus range-query response always places "metric" before
// "values"; processValuesArray therefore requires the label strings to
// already be computed.
func (tr *Transformer) processSeriesObject(dec *json.Decoder, w *tsvWriter, res *Result) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	var name, keyArr, valArr string
	haveMetric := false

	for dec.More() {
		key, err := decodeKey(dec)
		if err != nil {
			return err
		}
		switch key {
		case "metric":
			labels, err := parseMetricObject(dec)
			if err != nil {
				return fmt.Errorf("metric: %w", err)
			}
			name, keyArr, valArr = buildSeriesStrings(labels)
			haveMetric = true
		case "values":
			if !haveMetric {
				return fmt.Errorf("values encountered before metric")
			}
			rows, skipped, err := tr.processValuesArray(dec, w, name, keyArr, valArr)
			if err != nil {
				return fmt.Errorf("values: %w", err)
			}
			res.Rows += rows
			res.Skipped += skipped
		default:
			if err := skipValue(dec); err != nil {
				return fmt.Errorf("skip series.%s: %w", key, err)
			}
		}
	}
	return expectDelim(dec, '}')
}

func parseMetricObject(dec *json.Decoder) (map[string]string, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	labels := make(map[string]string)
	for dec.More() {
		key, err := decodeKey(dec)
		if err != nil {
			return nil, err
		}
		valTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		val, ok := valTok.(string)
		if !ok {
			return nil, fmt.Errorf("label %q: expected string value", key)
		}
		labels[key] = val
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return labels, nil
}

// buildSeriesStrings splits __name__ out of labels and precomputes the
// escaped name, sorted key array, and parallel value array once per
// series, so every sample row reuses the same three strings.
func buildSeriesStrings(labels map[string]string) (name, keyArr, valArr string) {
	name = labels["__name__"]
	delete(labels, "__name__")

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = labels[k]
	}
	return escapeScalar(name), formatArray(keys), formatArray(vals)
}

// processValuesArray streams [ts, value] pairs, emitting one TSV row per
// valid pair immediately. A value that cannot be parsed as a float is
// skipped and counted rather than aborting the series.
func (tr *Transformer) processValuesArray(dec *json.Decoder, w *tsvWriter, name, keyArr, valArr string) (rows, skipped int, err error) {
	if err := expectDelim(dec, '['); err != nil {
		return 0, 0, err
	}
	for dec.More() {
		ts, valFloat, literal, ok, err := readSamplePair(dec)
		if err != nil {
			return rows, skipped, err
		}
		if !ok {
			skipped++
			tr.logger.Warn().
				Str("op", "transform.sample").
				Str("series", name).
				Str("value", literal).
				Msg("skipped unparseable sample value")
			continue
		}
		if err := w.writeRow(formatTimestamp(ts), name, keyArr, valArr, formatValue(valFloat)); err != nil {
			return rows, skipped, err
		}
		rows++
	}
	return rows, skipped, expectDelim(dec, ']')
}

// readSamplePair reads one [ts, value] array. ok is false when the value
// could not be interpreted as a float; literal then carries the offending
// value's text so the caller can count and log the skip rather than treat
// it as a fatal parse error.
func readSamplePair(dec *json.Decoder) (ts, value float64, literal string, ok bool, err error) {
	if err := expectDelim(dec, '['); err != nil {
		return 0, 0, "", false, err
	}

	tsTok, err := dec.Token()
	if err != nil {
		return 0, 0, "", false, err
	}
	tsFloat, isFloat := tsTok.(float64)
	if !isFloat {
		return 0, 0, "", false, fmt.Errorf("sample timestamp: expected number, got %v", tsTok)
	}

	valTok, err := dec.Token()
	if err != nil {
		return 0, 0, "", false, err
	}

	valid := true
	var valFloat float64
	switch v := valTok.(type) {
	case float64:
		valFloat = v
	case string:
		parsed, perr := parseSampleValue(v)
		if perr != nil {
			valid = false
			literal = v
		} else {
			valFloat = parsed
		}
	default:
		valid = false
		literal = fmt.Sprintf("%v", valTok)
	}

	if err := expectDelim(dec, ']'); err != nil {
		return 0, 0, "", false, err
	}
	return tsFloat, valFloat, literal, valid, nil
}

// skipValue consumes one complete JSON value (scalar, object, or array)
// without inspecting it, by tracking delimiter nesting depth.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err == io.EOF {
		return fmt.Errorf("unexpected end of input, wanted %q", want)
	}
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func decodeKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}
