package grader

import (
	"errors"
	"testing"

	"gotest.tools/assert"
)

func mustCompare(t *testing.T, student, teacher string, opts CanonicalOptions) *StructureResult {
	t.Helper()
	res, err := CompareStructure(student, teacher, opts)
	assert.NilError(t, err)
	return res
}

func TestCompareStructureIdentical(t *testing.T) {
	sql := "SELECT name, grade FROM students WHERE grade > 80 ORDER BY grade DESC"
	res := mustCompare(t, sql, sql, CanonicalOptions{})
	assert.Assert(t, res.OK)
	assert.Equal(t, res.Score, 100)
	assert.Equal(t, len(res.Issues), 0)
}

func TestCompareStructureStripsAliases(t *testing.T) {
	student := "SELECT s.name, s.grade FROM students s WHERE grade > 80"
	teacher := "SELECT name, grade FROM students WHERE grade > 80"
	res := mustCompare(t, student, teacher, CanonicalOptions{})

	// Column qualifiers never count against the student; the extra alias
	// shows up only in the table set.
	for _, issue := range res.Issues {
		assert.Assert(t, issue.Field != "columns", "columns should canonicalize identically")
	}
}

func TestCompareStructureAggregates(t *testing.T) {
	student := "SELECT COUNT(*), AVG(grade) FROM students"
	teacher := "SELECT count(*), avg(s.grade) FROM students s"
	res := mustCompare(t, student, teacher, CanonicalOptions{})

	ss := res.Student.(*SelectStructure)
	ts := res.Teacher.(*SelectStructure)
	assert.DeepEqual(t, ss.Columns, ts.Columns)
	assert.Equal(t, ss.Columns[1], "FUNC:AVG(grade)")
	for _, issue := range res.Issues {
		assert.Assert(t, issue.Field != "columns", "aggregate signatures should match")
	}
}

func TestCompareStructureWhereMismatch(t *testing.T) {
	student := "SELECT name FROM students WHERE grade > 90"
	teacher := "SELECT name FROM students WHERE grade > 80"
	res := mustCompare(t, student, teacher, CanonicalOptions{})

	assert.Assert(t, !res.OK)
	assert.Equal(t, len(res.Issues), 1)
	assert.Equal(t, res.Issues[0].Field, "where")
	// one issue out of seven SELECT facets
	assert.Equal(t, res.Score, 86)
}

func TestCompareStructureKindMismatch(t *testing.T) {
	res := mustCompare(t, "DELETE FROM students", "SELECT name FROM students", CanonicalOptions{})
	assert.Assert(t, !res.OK)
	assert.Equal(t, res.Issues[0].Field, "type")
	assert.Assert(t, res.Score < 100)
}

func TestCompareStructureIgnoreSelectOrder(t *testing.T) {
	student := "SELECT grade, name FROM students"
	teacher := "SELECT name, grade FROM students"

	strict := mustCompare(t, student, teacher, CanonicalOptions{})
	assert.Assert(t, !strict.OK)

	relaxed := mustCompare(t, student, teacher, CanonicalOptions{IgnoreSelectOrder: true})
	assert.Assert(t, relaxed.OK)
}

func TestCompareStructureIgnoreOrderBy(t *testing.T) {
	student := "SELECT name FROM students ORDER BY name"
	teacher := "SELECT name FROM students ORDER BY name DESC"

	strict := mustCompare(t, student, teacher, CanonicalOptions{})
	assert.Assert(t, !strict.OK)

	relaxed := mustCompare(t, student, teacher, CanonicalOptions{IgnoreOrderBy: true})
	assert.Assert(t, relaxed.OK)
}

func TestCompareStructureJoins(t *testing.T) {
	student := `SELECT s.name FROM students s JOIN grades g ON s.id = g.student_id`
	teacher := `SELECT s.name FROM students s JOIN grades g ON s.id = g.student_id`
	res := mustCompare(t, student, teacher, CanonicalOptions{})
	assert.Assert(t, res.OK)

	structure := res.Student.(*SelectStructure)
	assert.Equal(t, len(structure.Joins), 1)
}

func TestCompareStructureUpdateFacets(t *testing.T) {
	student := "UPDATE students SET grade = 100 WHERE id = 1"
	teacher := "UPDATE students SET grade = 100 WHERE id = 2"
	res := mustCompare(t, student, teacher, CanonicalOptions{})

	assert.Assert(t, !res.OK)
	assert.Equal(t, len(res.Issues), 1)
	assert.Equal(t, res.Issues[0].Field, "where")
	// one issue out of five UPDATE facets
	assert.Equal(t, res.Score, 80)
}

func TestCompareStructureInsertColumns(t *testing.T) {
	student := "INSERT INTO students (name, grade) VALUES ('a', 1)"
	teacher := "INSERT INTO students (name, grade) VALUES ('b', 2)"
	res := mustCompare(t, student, teacher, CanonicalOptions{})

	// Values differ but are not a diffed facet; the row effect is judged by
	// the mutation checker instead.
	assert.Assert(t, res.OK)
	assert.Equal(t, res.Score, 100)
}

func TestCompareStructureInvalidSQL(t *testing.T) {
	_, err := CompareStructure("SELEC nope", "SELECT 1", CanonicalOptions{})
	assert.Assert(t, errors.Is(err, ErrInvalidStudentSQL))

	_, err = CompareStructure("SELECT 1", "SELEC nope", CanonicalOptions{})
	assert.Assert(t, errors.Is(err, ErrInvalidTeacherSQL))
}

func TestCanonicalizeDMLTargetTable(t *testing.T) {
	upd := mustCompare(t,
		"UPDATE students SET grade = 0",
		"UPDATE students SET grade = 0",
		CanonicalOptions{})
	assert.Equal(t, upd.Student.(*UpdateStructure).Table, "students")

	del := mustCompare(t,
		"DELETE FROM students WHERE id = 1",
		"DELETE FROM students WHERE id = 1",
		CanonicalOptions{})
	assert.Equal(t, del.Student.(*DeleteStructure).Table, "students")
}

func TestTableSetSortedAndDeduped(t *testing.T) {
	res := mustCompare(t,
		"SELECT * FROM b JOIN a ON a.id = b.id",
		"SELECT * FROM b JOIN a ON a.id = b.id",
		CanonicalOptions{})
	structure := res.Student.(*SelectStructure)
	assert.DeepEqual(t, structure.Tables, []string{"a", "b"})
}
