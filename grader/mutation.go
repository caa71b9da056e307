package grader

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// MutationResult is the outcome of grading a DML statement by its effect on
// an isolated sandbox copy of the table under test.
type MutationResult struct {
	Match  bool
	Score  float64 // 0..1
	Err    string
	Reason string
	// Rows affected on each side (deleted, inserted or changed).
	StudentRows int
	TeacherRows int
}

func mutationError(format string, args ...any) MutationResult {
	msg := fmt.Sprintf(format, args...)
	return MutationResult{Err: msg, Reason: msg}
}

// prepareSandbox validates the table under test and clones it. With
// withData false the clones copy structure only (the INSERT baseline).
func prepareSandbox(db *sqlx.DB, table string, clones []string, withData bool) error {
	if !validIdentifier(table) {
		return fmt.Errorf("invalid table identifier %q", table)
	}
	template := "CREATE TABLE %s AS SELECT * FROM %s"
	if !withData {
		template = "CREATE TABLE %s AS SELECT * FROM %s WHERE 1=0"
	}
	for _, clone := range clones {
		if _, err := db.Exec(fmt.Sprintf(template, clone, table)); err != nil {
			return fmt.Errorf("cloning %s into %s: %w", table, clone, err)
		}
	}
	return nil
}

// runRewritten points the statement at its own sandbox clone and executes
// it there; student and reference runs never share a table.
func runRewritten(db *sqlx.DB, sql, table, clone string) error {
	rewritten, err := rewriteTableRefs(sql, table, clone)
	if err != nil {
		return err
	}
	if _, err := db.Exec(rewritten); err != nil {
		return fmt.Errorf("executing against %s: %w", clone, err)
	}
	return nil
}

// CheckDelete grades a DELETE by diffing the row sets each side removed
// from its clone, identified by primary key against the pristine baseline.
func CheckDelete(db *sqlx.DB, studentSQL, teacherSQL, table string) MutationResult {
	if table == "" {
		return mutationError("no test table specified")
	}

	original := sandboxName("original")
	studentTable := sandboxName("student")
	teacherTable := sandboxName("teacher")
	studentDeleted := sandboxName("student_deleted")
	teacherDeleted := sandboxName("teacher_deleted")
	defer dropTables(db, original, studentTable, teacherTable, studentDeleted, teacherDeleted)

	if err := prepareSandbox(db, table, []string{original, studentTable, teacherTable}, true); err != nil {
		return mutationError("%v", err)
	}
	if err := runRewritten(db, studentSQL, table, studentTable); err != nil {
		return mutationError("student DELETE failed: %v", err)
	}
	if err := runRewritten(db, teacherSQL, table, teacherTable); err != nil {
		return mutationError("teacher DELETE failed: %v", err)
	}

	key := primaryKeyColumn(db, original)

	deletedSet := `
		CREATE TABLE %s AS
		SELECT o.* FROM %s o
		LEFT JOIN %s r ON o.%s = r.%s
		WHERE r.%s IS NULL`
	if _, err := db.Exec(fmt.Sprintf(deletedSet, studentDeleted, original, studentTable, key, key, key)); err != nil {
		return mutationError("collecting student deletions: %v", err)
	}
	if _, err := db.Exec(fmt.Sprintf(deletedSet, teacherDeleted, original, teacherTable, key, key, key)); err != nil {
		return mutationError("collecting teacher deletions: %v", err)
	}

	studentCount, err := countRows(db, studentDeleted)
	if err != nil {
		return mutationError("counting student deletions: %v", err)
	}
	teacherCount, err := countRows(db, teacherDeleted)
	if err != nil {
		return mutationError("counting teacher deletions: %v", err)
	}

	exact := false
	matchScore := 0.0
	switch {
	case studentCount == teacherCount && studentCount > 0:
		var overlap int
		err := db.Get(&overlap, fmt.Sprintf(`
			SELECT COUNT(*) FROM %s s
			WHERE EXISTS (SELECT 1 FROM %s t WHERE s.%s = t.%s)`,
			studentDeleted, teacherDeleted, key, key))
		if err != nil {
			return mutationError("matching deleted rows: %v", err)
		}
		matchScore = float64(overlap) / float64(teacherCount)
		exact = overlap == teacherCount
	case studentCount == 0 && teacherCount == 0:
		exact = true
		matchScore = 1.0
	}

	return finishMutation("deleted", exact, matchScore, studentCount, teacherCount)
}

// CheckInsert grades an INSERT by running both statements against empty
// structural clones and matching the inserted primary keys.
func CheckInsert(db *sqlx.DB, studentSQL, teacherSQL, table string) MutationResult {
	if table == "" {
		return mutationError("no test table specified")
	}

	studentTable := sandboxName("student")
	teacherTable := sandboxName("teacher")
	defer dropTables(db, studentTable, teacherTable)

	if err := prepareSandbox(db, table, []string{studentTable, teacherTable}, false); err != nil {
		return mutationError("%v", err)
	}
	if err := runRewritten(db, studentSQL, table, studentTable); err != nil {
		return mutationError("student INSERT failed: %v", err)
	}
	if err := runRewritten(db, teacherSQL, table, teacherTable); err != nil {
		return mutationError("teacher INSERT failed: %v", err)
	}

	studentCount, err := countRows(db, studentTable)
	if err != nil {
		return mutationError("counting student inserts: %v", err)
	}
	teacherCount, err := countRows(db, teacherTable)
	if err != nil {
		return mutationError("counting teacher inserts: %v", err)
	}

	exact := false
	matchScore := 0.0
	switch {
	case studentCount == teacherCount && studentCount > 0:
		key := primaryKeyColumn(db, studentTable)
		var overlap int
		err := db.Get(&overlap, fmt.Sprintf(`
			SELECT COUNT(*) FROM %s s
			WHERE EXISTS (SELECT 1 FROM %s t WHERE s.%s = t.%s)`,
			studentTable, teacherTable, key, key))
		if err != nil {
			return mutationError("matching inserted rows: %v", err)
		}
		matchScore = float64(overlap) / float64(teacherCount)
		exact = overlap == teacherCount
	case studentCount == 0 && teacherCount == 0:
		exact = true
		matchScore = 1.0
	}

	return finishMutation("inserted", exact, matchScore, studentCount, teacherCount)
}

// CheckUpdate grades an UPDATE by comparing each side's changed-row set
// against the pristine baseline, then value-matching the changed rows.
func CheckUpdate(db *sqlx.DB, studentSQL, teacherSQL, table string) MutationResult {
	if table == "" {
		return mutationError("no test table specified")
	}

	original := sandboxName("original")
	studentTable := sandboxName("student")
	teacherTable := sandboxName("teacher")
	defer dropTables(db, original, studentTable, teacherTable)

	if err := prepareSandbox(db, table, []string{original, studentTable, teacherTable}, true); err != nil {
		return mutationError("%v", err)
	}
	if err := runRewritten(db, studentSQL, table, studentTable); err != nil {
		return mutationError("student UPDATE failed: %v", err)
	}
	if err := runRewritten(db, teacherSQL, table, teacherTable); err != nil {
		return mutationError("teacher UPDATE failed: %v", err)
	}

	key := primaryKeyColumn(db, studentTable)
	valueCols, err := nonKeyColumns(db, studentTable, key)
	if err != nil {
		return mutationError("listing columns: %v", err)
	}

	changedCount := func(clone string) (int, error) {
		var n int
		err := db.Get(&n, fmt.Sprintf(`
			SELECT COUNT(*) FROM %s c
			JOIN %s o ON c.%s = o.%s
			WHERE %s`,
			clone, original, key, key, changedCondition("c", "o", valueCols)))
		return n, err
	}

	studentChanged, err := changedCount(studentTable)
	if err != nil {
		return mutationError("counting student changes: %v", err)
	}
	teacherChanged, err := changedCount(teacherTable)
	if err != nil {
		return mutationError("counting teacher changes: %v", err)
	}

	exact := false
	matchScore := 0.0
	switch {
	case studentChanged == teacherChanged && studentChanged > 0:
		// A matched row must be changed on both sides and end up with
		// identical values.
		var matched int
		err := db.Get(&matched, fmt.Sprintf(`
			SELECT COUNT(*) FROM %s s
			JOIN %s t ON s.%s = t.%s
			JOIN %s o ON s.%s = o.%s
			WHERE (%s) AND (%s) AND (%s)`,
			studentTable, teacherTable, key, key, original, key, key,
			changedCondition("s", "o", valueCols),
			changedCondition("t", "o", valueCols),
			equalCondition("s", "t", valueCols)))
		if err != nil {
			return mutationError("matching updated rows: %v", err)
		}
		matchScore = float64(matched) / float64(teacherChanged)
		if matchScore > 1.0 {
			matchScore = 1.0
		}
		exact = matched == teacherChanged
	case studentChanged == 0 && teacherChanged == 0:
		exact = true
		matchScore = 1.0
	}

	return finishMutation("updated", exact, matchScore, studentChanged, teacherChanged)
}

func finishMutation(verb string, exact bool, matchScore float64, studentRows, teacherRows int) MutationResult {
	score := matchScore
	if exact {
		score = 1.0
	}

	var reason string
	switch {
	case exact:
		reason = fmt.Sprintf("%s the correct rows (%d rows)", verb, studentRows)
	case studentRows == teacherRows:
		reason = fmt.Sprintf("%s the right number of rows (%d) but not the same rows (%.0f%% matched)",
			verb, studentRows, matchScore*100)
	default:
		reason = fmt.Sprintf("%s the wrong rows (student: %d rows, teacher: %d rows)",
			verb, studentRows, teacherRows)
	}

	return MutationResult{
		Match:       exact,
		Score:       score,
		Reason:      reason,
		StudentRows: studentRows,
		TeacherRows: teacherRows,
	}
}
