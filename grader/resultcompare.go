package grader

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

const (
	columnWeight = 0.3
	rowWeight    = 0.7

	// Score awarded when the student result is the teacher result in
	// reverse: almost certainly an ASC/DESC inversion, not a wrong answer.
	reversedOrderScore = 0.7
	// Fraction of rows that must match under reversed alignment before the
	// inversion rule kicks in.
	reversedOrderThreshold = 0.8
)

// CompareOptions tunes a result-set comparison.
type CompareOptions struct {
	// StrictMode short-circuits to exact equality: 1.0 or 0.
	StrictMode bool
	// IgnoreOrder sorts both sides by a stable serialization before the
	// positional row comparison.
	IgnoreOrder bool
	// StrictColumnCount fails the comparison outright when the column
	// counts differ instead of mapping the shorter side.
	StrictColumnCount bool
	// MinSimilarity is the score threshold for the Match flag.
	MinSimilarity float64
}

// CompareDetails is the diagnostic breakdown attached to every comparison.
type CompareDetails struct {
	ColumnScore    int
	RowScore       int
	OrderScore     int
	MatchedRows    int
	TotalRows      int
	StudentRows    int
	TeacherRows    int
	StudentColumns []string
	TeacherColumns []string
	IgnoreOrder    bool
	RowDetails     string
}

// CompareResult is the outcome of comparing a student result set against
// the reference result set.
type CompareResult struct {
	Match        bool
	Reason       string
	Score        float64 // 0..1
	Percentage   int     // round(100 * Score)
	OrderMatched bool
	Details      *CompareDetails
}

type columnMapping struct {
	compatible bool
	score      float64
	mapping    map[string]string // student column -> teacher column
	reason     string
}

// mapColumns builds a best-effort 1:1 association between the two column
// lists: positional first over the shorter side, then exact-name fallback
// for any surplus columns. Aliasing therefore never breaks the mapping.
func mapColumns(studentCols, teacherCols []string, strictCount bool) columnMapping {
	if len(studentCols) == 0 && len(teacherCols) == 0 {
		return columnMapping{compatible: true, score: 1.0, mapping: map[string]string{}}
	}
	if len(studentCols) == 0 || len(teacherCols) == 0 {
		return columnMapping{mapping: map[string]string{}}
	}
	if strictCount && len(studentCols) != len(teacherCols) {
		return columnMapping{
			mapping: map[string]string{},
			reason: fmt.Sprintf("column count mismatch (teacher: %d, student: %d)",
				len(teacherCols), len(studentCols)),
		}
	}

	matched := make(map[string]bool, len(teacherCols))
	mapping := make(map[string]string, len(studentCols))
	matchCount := 0

	minCols := len(studentCols)
	if len(teacherCols) < minCols {
		minCols = len(teacherCols)
	}
	for i := 0; i < minCols; i++ {
		s, t := studentCols[i], teacherCols[i]
		if !matched[t] {
			if _, seen := mapping[s]; !seen {
				matched[t] = true
				mapping[s] = t
				matchCount++
			}
		}
	}

	// Surplus columns on either side only pair up on an exact name hit.
	if len(studentCols) > len(teacherCols) {
		for _, s := range studentCols {
			if _, seen := mapping[s]; seen {
				continue
			}
			for _, t := range teacherCols {
				if !matched[t] && s == t {
					matched[t] = true
					mapping[s] = t
					matchCount++
					break
				}
			}
		}
	} else if len(teacherCols) > len(studentCols) {
		for _, t := range teacherCols {
			if matched[t] {
				continue
			}
			for _, s := range studentCols {
				if _, seen := mapping[s]; !seen && s == t {
					matched[t] = true
					mapping[s] = t
					matchCount++
					break
				}
			}
		}
	}

	maxCols := len(studentCols)
	if len(teacherCols) > maxCols {
		maxCols = len(teacherCols)
	}
	return columnMapping{
		compatible: true,
		score:      float64(matchCount) / float64(maxCols),
		mapping:    mapping,
	}
}

// encodeRow serializes a normalized row with sorted keys, giving a stable
// identity for row equality and order-independent sorting.
func encodeRow(row Row) string {
	b, err := json.Marshal(row)
	if err != nil {
		// Normalized values are plain scalars; this is unreachable in
		// practice but a distinct sentinel keeps equality honest.
		return fmt.Sprintf("!unencodable:%v", err)
	}
	return string(b)
}

type rowSimilarity struct {
	score   float64
	matches int
	total   int
	minLen  int
	reverse bool
	details string
}

func compareRows(student, teacher []Row, ignoreOrder bool) rowSimilarity {
	if len(student) == 0 && len(teacher) == 0 {
		return rowSimilarity{score: 1.0, details: "both results are empty"}
	}
	if len(student) == 0 || len(teacher) == 0 {
		total := len(student)
		if len(teacher) > total {
			total = len(teacher)
		}
		return rowSimilarity{total: total, details: "one side has no rows"}
	}

	maxLen := len(student)
	if len(teacher) > maxLen {
		maxLen = len(teacher)
	}
	minLen := len(student)
	if len(teacher) < minLen {
		minLen = len(teacher)
	}

	studentKeys := make([]string, len(student))
	for i, r := range student {
		studentKeys[i] = encodeRow(r)
	}
	teacherKeys := make([]string, len(teacher))
	for i, r := range teacher {
		teacherKeys[i] = encodeRow(r)
	}

	matches := 0
	reverse := false

	if ignoreOrder {
		sortedStudent := append([]string(nil), studentKeys...)
		sortedTeacher := append([]string(nil), teacherKeys...)
		sort.Strings(sortedStudent)
		sort.Strings(sortedTeacher)
		for i := 0; i < minLen; i++ {
			if sortedStudent[i] == sortedTeacher[i] {
				matches++
			}
		}
	} else {
		for i := 0; i < minLen; i++ {
			if studentKeys[i] == teacherKeys[i] {
				matches++
			}
		}
		// An odd-length full reversal still matches its middle row, so the
		// trigger is "reversal fits clearly better", not "zero matches".
		if matches < minLen && minLen > 1 {
			reverseMatches := 0
			for i := 0; i < minLen; i++ {
				if studentKeys[i] == teacherKeys[minLen-1-i] {
					reverseMatches++
				}
			}
			if float64(reverseMatches) >= float64(minLen)*reversedOrderThreshold && reverseMatches > matches {
				reverse = true
				matches = reverseMatches
			}
		}
	}

	score := float64(matches) / float64(maxLen)
	details := fmt.Sprintf("matched %d/%d rows out of %d total", matches, minLen, maxLen)
	if reverse {
		score = reversedOrderScore
		details = fmt.Sprintf("rows are in reversed order (matched %d/%d rows)", matches, minLen)
	}

	return rowSimilarity{
		score:   score,
		matches: matches,
		total:   maxLen,
		minLen:  minLen,
		reverse: reverse,
		details: details,
	}
}

// CompareResults normalizes both result sets, aligns their columns and rows
// and produces a bounded [0,1] similarity with a diagnostic breakdown.
func CompareResults(student, teacher Result, opts CompareOptions) CompareResult {
	if opts.StrictMode {
		match := encodeResult(student) == encodeResult(teacher)
		res := CompareResult{
			Match:        match,
			Reason:       "results differ (0%)",
			OrderMatched: match,
		}
		if match {
			res.Reason = "results match exactly (100%)"
			res.Score = 1.0
			res.Percentage = 100
		}
		return res
	}

	normStudent := NormalizeResult(student)
	normTeacher := NormalizeResult(teacher)

	cols := mapColumns(normStudent.Columns, normTeacher.Columns, opts.StrictColumnCount)
	if !cols.compatible && opts.StrictColumnCount {
		reason := cols.reason
		if reason == "" {
			reason = "column count mismatch"
		}
		total := len(student.Rows)
		if len(teacher.Rows) > total {
			total = len(teacher.Rows)
		}
		return CompareResult{
			Reason: reason,
			Details: &CompareDetails{
				TotalRows:      total,
				StudentRows:    len(normStudent.Rows),
				TeacherRows:    len(normTeacher.Rows),
				StudentColumns: normStudent.Columns,
				TeacherColumns: normTeacher.Columns,
				IgnoreOrder:    opts.IgnoreOrder,
				RowDetails:     reason,
			},
		}
	}

	// Re-key student rows through the mapping so aliasing differences do
	// not register as value mismatches.
	remapped := make([]Row, len(normStudent.Rows))
	for i, row := range normStudent.Rows {
		newRow := make(Row, len(row))
		for k, v := range row {
			key := k
			if mapped, ok := cols.mapping[k]; ok {
				key = mapped
			}
			newRow[key] = v
		}
		remapped[i] = newRow
	}

	rows := compareRows(remapped, normTeacher.Rows, opts.IgnoreOrder)

	columnScore := cols.score
	rowScore := rows.score
	totalScore := columnScore*columnWeight + rowScore*rowWeight

	orderMatched := true
	orderScore := 1.0
	if !opts.IgnoreOrder || rowScore > 0 {
		ordered := compareRows(remapped, normTeacher.Rows, false)
		orderMatched = ordered.score == 1.0
		orderScore = ordered.score
	}

	percentage := int(math.Round(totalScore * 100))

	var reason string
	switch {
	case totalScore == 1.0:
		reason = fmt.Sprintf("results match exactly (%d%%)", percentage)
	case totalScore >= 0.8:
		reason = fmt.Sprintf("results are very close (%d%%)", percentage)
	case totalScore >= 0.5:
		reason = fmt.Sprintf("results are moderately close (%d%%)", percentage)
	case totalScore > 0:
		reason = fmt.Sprintf("results are slightly close (%d%%)", percentage)
	default:
		reason = fmt.Sprintf("results are entirely different (%d%%)", percentage)
	}
	if !opts.IgnoreOrder && !orderMatched && rowScore > 0 {
		reason += fmt.Sprintf(" [row order differs: %d%%]", int(math.Round(orderScore*100)))
	}

	return CompareResult{
		Match:        totalScore >= opts.MinSimilarity,
		Reason:       reason,
		Score:        totalScore,
		Percentage:   percentage,
		OrderMatched: orderMatched,
		Details: &CompareDetails{
			ColumnScore:    int(math.Round(columnScore * 100)),
			RowScore:       int(math.Round(rowScore * 100)),
			OrderScore:     int(math.Round(orderScore * 100)),
			MatchedRows:    rows.matches,
			TotalRows:      rows.total,
			StudentRows:    len(normStudent.Rows),
			TeacherRows:    len(normTeacher.Rows),
			StudentColumns: normStudent.Columns,
			TeacherColumns: normTeacher.Columns,
			IgnoreOrder:    opts.IgnoreOrder,
			RowDetails:     rows.details,
		},
	}
}

func encodeResult(r Result) string {
	keys := make([]string, len(r.Rows))
	for i, row := range r.Rows {
		keys[i] = encodeRow(row)
	}
	b, _ := json.Marshal(keys)
	return string(b)
}

// FlexibleCompare is the default grading comparison: partial credit, order
// sensitive, tolerant of extra columns.
func FlexibleCompare(student, teacher Result) CompareResult {
	return CompareResults(student, teacher, CompareOptions{})
}

// StrictCompare awards credit only for an exact match.
func StrictCompare(student, teacher Result) CompareResult {
	return CompareResults(student, teacher, CompareOptions{StrictMode: true})
}

// OrderIndependentCompare ignores row order entirely.
func OrderIndependentCompare(student, teacher Result) CompareResult {
	return CompareResults(student, teacher, CompareOptions{IgnoreOrder: true})
}

// PercentageCompare is the preset the worker grades SELECT answers with:
// partial credit, but the projected column count must match.
func PercentageCompare(student, teacher Result) CompareResult {
	return CompareResults(student, teacher, CompareOptions{StrictColumnCount: true})
}
