package grader

import (
	"testing"

	"gotest.tools/assert"
)

func result(cols []string, rows ...[]any) Result {
	r := Result{Columns: cols}
	for _, values := range rows {
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		r.Rows = append(r.Rows, row)
	}
	return r
}

func TestCompareResultsExactMatch(t *testing.T) {
	a := result([]string{"name", "grade"}, []any{"alice", 90}, []any{"bob", 80})
	res := FlexibleCompare(a, a)

	assert.Equal(t, res.Score, 1.0)
	assert.Equal(t, res.Percentage, 100)
	assert.Assert(t, res.OrderMatched)
	assert.Equal(t, res.Reason, "results match exactly (100%)")
}

func TestCompareResultsBothEmpty(t *testing.T) {
	res := FlexibleCompare(Result{}, Result{})
	assert.Equal(t, res.Score, 1.0)
}

func TestCompareResultsOneEmpty(t *testing.T) {
	teacher := result([]string{"name"}, []any{"alice"})
	res := FlexibleCompare(Result{Columns: []string{"name"}}, teacher)
	assert.Assert(t, res.Score < 1.0)
	assert.Equal(t, res.Details.RowScore, 0)
}

func TestCompareResultsAliasTolerance(t *testing.T) {
	student := result([]string{"student_name", "avg_grade"}, []any{"alice", 90})
	teacher := result([]string{"name", "average"}, []any{"alice", 90})

	// Columns map positionally, so aliasing costs nothing.
	res := FlexibleCompare(student, teacher)
	assert.Equal(t, res.Score, 1.0)
}

func TestCompareResultsReversedOrder(t *testing.T) {
	student := result([]string{"n"}, []any{4}, []any{3}, []any{2}, []any{1})
	teacher := result([]string{"n"}, []any{1}, []any{2}, []any{3}, []any{4})

	res := FlexibleCompare(student, teacher)

	// Full reversal scores the fixed partial credit and flags the order.
	assert.Assert(t, !res.OrderMatched)
	assert.Equal(t, res.Details.RowScore, 70)
	expected := columnWeight + rowWeight*reversedOrderScore
	assert.Equal(t, res.Percentage, 79)
	assert.Assert(t, res.Score > expected-0.001 && res.Score < expected+0.001)
}

func TestCompareResultsReversedOrderOddLength(t *testing.T) {
	// The middle row of an odd-length reversal matches positionally; the
	// inversion must still be detected.
	student := result([]string{"id"}, []any{3}, []any{2}, []any{1})
	teacher := result([]string{"id"}, []any{1}, []any{2}, []any{3})

	res := FlexibleCompare(student, teacher)
	assert.Assert(t, !res.OrderMatched)
	assert.Equal(t, res.Details.RowScore, 70)
}

func TestCompareResultsIgnoreOrder(t *testing.T) {
	student := result([]string{"n"}, []any{2}, []any{1}, []any{3})
	teacher := result([]string{"n"}, []any{1}, []any{2}, []any{3})

	ordered := FlexibleCompare(student, teacher)
	assert.Assert(t, ordered.Score < 1.0)

	unordered := OrderIndependentCompare(student, teacher)
	assert.Equal(t, unordered.Score, 1.0)
	assert.Assert(t, !unordered.OrderMatched)
}

func TestCompareResultsStrictColumnCount(t *testing.T) {
	student := result([]string{"name", "grade"}, []any{"alice", 90})
	teacher := result([]string{"name"}, []any{"alice"})

	res := PercentageCompare(student, teacher)
	assert.Equal(t, res.Score, 0.0)
	assert.Equal(t, res.Reason, "column count mismatch (teacher: 1, student: 2)")

	// The flexible preset maps the shared prefix instead of failing.
	flexible := FlexibleCompare(student, teacher)
	assert.Assert(t, flexible.Score > 0)
}

func TestCompareResultsStrictMode(t *testing.T) {
	a := result([]string{"n"}, []any{1})
	b := result([]string{"n"}, []any{2})

	assert.Equal(t, StrictCompare(a, a).Score, 1.0)
	assert.Assert(t, StrictCompare(a, a).Match)

	res := StrictCompare(a, b)
	assert.Equal(t, res.Score, 0.0)
	assert.Assert(t, !res.Match)
}

func TestCompareResultsNumericAndKeyNormalization(t *testing.T) {
	student := result([]string{"Avg_Grade"}, []any{"87.5000001"})
	teacher := result([]string{"avggrade"}, []any{87.5})

	res := FlexibleCompare(student, teacher)
	assert.Equal(t, res.Score, 1.0)
}

func TestCompareResultsScoreBounded(t *testing.T) {
	student := result([]string{"a"}, []any{1}, []any{2}, []any{3}, []any{4})
	teacher := result([]string{"b"}, []any{9})

	res := FlexibleCompare(student, teacher)
	assert.Assert(t, res.Score >= 0 && res.Score <= 1)
	assert.Assert(t, res.Percentage >= 0 && res.Percentage <= 100)
}
