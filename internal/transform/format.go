package transform

import (
	"math"
	"strconv"
	"strings"
)

// formatTimestamp renders a sample timestamp as an integer when it carries
// no fractional seconds, or as fixed-point with microsecond precision
// otherwise. Fixed-point never produces exponent notation.
func formatTimestamp(ts float64) string {
	if ts == math.Trunc(ts) {
		return strconv.FormatInt(int64(ts), 10)
	}
	return strconv.FormatFloat(ts, 'f', 6, 64)
}

// formatValue renders a sample value with up to 15 significant digits,
// falling back to fixed-point (and trimming the trailing zeros that
// introduces) whenever the %g form would have used exponent notation.
// NaN and the infinities are written lowercase, matching ClickHouse's
// own text representation for Float64.
func formatValue(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	s := strconv.FormatFloat(f, 'g', 15, 64)
	if strings.ContainsAny(s, "eE") {
		s = strconv.FormatFloat(f, 'f', 15, 64)
		s = trimTrailingZeros(s)
	}
	return s
}

// parseSampleValue parses the string form a value can take (Prometheus
// encodes NaN/+Inf/-Inf samples as JSON strings since they have no JSON
// numeric representation).
func parseSampleValue(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func trimTrailingZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
