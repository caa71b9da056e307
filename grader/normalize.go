package grader

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Result is a raw tabular query result. Columns preserves the order the
// database returned them in, which the positional column mapping depends on.
type Result struct {
	Columns []string
	Rows    []Row
}

var keyJunkPattern = regexp.MustCompile(`[\s_]+`)

// normalizeKey lower-cases a column name and strips whitespace and
// underscores, so student_name and StudentName compare equal.
func normalizeKey(key string) string {
	return keyJunkPattern.ReplaceAllString(strings.ToLower(key), "")
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

// normalizeValue reduces a scanned value to a comparable form: numbers and
// numeric strings round to 6 decimal places, dates reduce to YYYY-MM-DD,
// NULL stays nil. Normalization is idempotent.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return normalizeValue(string(val))
	case string:
		s := strings.TrimSpace(val)
		if s != "" {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return round6(f)
			}
		}
		return s
	case float64:
		return round6(val)
	case float32:
		return round6(float64(val))
	case int:
		return round6(float64(val))
	case int32:
		return round6(float64(val))
	case int64:
		return round6(float64(val))
	case uint64:
		return round6(float64(val))
	case time.Time:
		return val.Format("2006-01-02")
	default:
		return v
	}
}

// NormalizeResult applies key and value normalization to every row and to
// the column list. The output is stable under re-normalization.
func NormalizeResult(r Result) Result {
	out := Result{Columns: make([]string, len(r.Columns))}
	for i, c := range r.Columns {
		out.Columns[i] = normalizeKey(c)
	}
	for _, row := range r.Rows {
		normalized := make(Row, len(row))
		for k, v := range row {
			normalized[normalizeKey(k)] = normalizeValue(v)
		}
		out.Rows = append(out.Rows, normalized)
	}
	return out
}
