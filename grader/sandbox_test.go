package grader

import (
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"gotest.tools/assert"
	_ "modernc.org/sqlite"
)

func TestValidIdentifier(t *testing.T) {
	assert.Assert(t, validIdentifier("students"))
	assert.Assert(t, validIdentifier("_tmp_1"))
	assert.Assert(t, !validIdentifier(""))
	assert.Assert(t, !validIdentifier("1abc"))
	assert.Assert(t, !validIdentifier("students; DROP TABLE x"))
	assert.Assert(t, !validIdentifier("a-b"))
}

func TestSandboxNameUnique(t *testing.T) {
	a := sandboxName("student")
	b := sandboxName("student")
	assert.Assert(t, a != b)
	assert.Assert(t, strings.HasPrefix(a, "temp_student_"))
	assert.Assert(t, validIdentifier(a), a)
}

func TestRewriteTableRefs(t *testing.T) {
	out, err := rewriteTableRefs("DELETE FROM students WHERE id = 1", "students", "temp_x")
	assert.NilError(t, err)
	assert.Equal(t, out, "DELETE FROM temp_x WHERE id = 1")

	// Whole-word only: a table whose name is a prefix of another stays put.
	out, err = rewriteTableRefs("SELECT * FROM students_archive, students", "students", "temp_x")
	assert.NilError(t, err)
	assert.Equal(t, out, "SELECT * FROM students_archive, temp_x")

	// Case-insensitive, every occurrence.
	out, err = rewriteTableRefs("UPDATE Students SET a = (SELECT MAX(a) FROM STUDENTS)", "students", "temp_x")
	assert.NilError(t, err)
	assert.Equal(t, out, "UPDATE temp_x SET a = (SELECT MAX(a) FROM temp_x)")
}

func TestRewriteTableRefsRejectsBadIdentifiers(t *testing.T) {
	_, err := rewriteTableRefs("DELETE FROM x", "x; DROP TABLE y", "temp_x")
	assert.ErrorContains(t, err, "invalid table identifier")

	_, err = rewriteTableRefs("DELETE FROM x", "x", "temp x")
	assert.ErrorContains(t, err, "invalid sandbox identifier")
}

func TestChangedAndEqualConditions(t *testing.T) {
	cols := []string{"name", "grade"}
	assert.Equal(t, changedCondition("s", "o", cols),
		"NOT (s.name <=> o.name) OR NOT (s.grade <=> o.grade)")
	assert.Equal(t, equalCondition("s", "t", cols),
		"s.name <=> t.name AND s.grade <=> t.grade")
	assert.Equal(t, changedCondition("s", "o", nil), "1=0")
	assert.Equal(t, equalCondition("s", "t", nil), "1=1")
}

// openTestDB opens a single-connection in-memory database so every query in
// a test sees the same schema.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	assert.NilError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedStudents(t *testing.T, db *sqlx.DB) {
	t.Helper()
	_, err := db.Exec(`CREATE TABLE students (id INTEGER, name TEXT, grade INTEGER)`)
	assert.NilError(t, err)
	_, err = db.Exec(`INSERT INTO students (id, name, grade) VALUES
		(1, 'alice', 90), (2, 'bob', 75), (3, 'carol', 60)`)
	assert.NilError(t, err)
}

func TestQueryResultPreservesColumnOrder(t *testing.T) {
	db := openTestDB(t)
	seedStudents(t, db)

	res, err := queryResult(db, "SELECT grade, name FROM students ORDER BY id")
	assert.NilError(t, err)
	assert.DeepEqual(t, res.Columns, []string{"grade", "name"})
	assert.Equal(t, len(res.Rows), 3)
	assert.Equal(t, stringValue(res.Rows[0]["name"]), "alice")
}

func TestQueryResultError(t *testing.T) {
	db := openTestDB(t)
	_, err := queryResult(db, "SELECT * FROM missing_table")
	assert.Assert(t, err != nil)
}

func TestCountRows(t *testing.T) {
	db := openTestDB(t)
	seedStudents(t, db)
	n, err := countRows(db, "students")
	assert.NilError(t, err)
	assert.Equal(t, n, 3)
}
