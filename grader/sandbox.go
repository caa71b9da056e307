package grader

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validIdentifier guards the textual table substitution: table names are
// system-controlled, but free substitution is never trusted anyway.
func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// sandboxName builds a unique temporary table name. The timestamp plus a
// random suffix prevents collisions between concurrent checker runs.
func sandboxName(role string) string {
	return fmt.Sprintf("temp_%s_%d_%s", role, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// rewriteTableRefs points a statement's table reference at its sandbox
// clone via whole-word, case-insensitive substitution.
func rewriteTableRefs(sql, from, to string) (string, error) {
	if !validIdentifier(from) {
		return "", fmt.Errorf("invalid table identifier %q", from)
	}
	if !validIdentifier(to) {
		return "", fmt.Errorf("invalid sandbox identifier %q", to)
	}
	pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
	return pattern.ReplaceAllString(sql, to), nil
}

// queryResult runs a query and scans every row generically, preserving
// column order for the positional mapping in the result comparator.
func queryResult(db *sqlx.DB, query string) (Result, error) {
	rows, err := db.Query(query)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	result := Result{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return Result{}, err
		}
		row := make(Row, len(columns))
		for i, c := range columns {
			row[c] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

func countRows(db *sqlx.DB, table string) (int, error) {
	var n int
	err := db.Get(&n, fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	return n, err
}

func tableColumns(db *sqlx.DB, table string) ([]string, error) {
	res, err := queryResult(db, fmt.Sprintf("SHOW COLUMNS FROM %s", table))
	if err != nil {
		return nil, err
	}
	var cols []string
	for _, row := range res.Rows {
		if f := stringValue(row["Field"]); f != "" {
			cols = append(cols, f)
		}
	}
	return cols, nil
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

const primaryKeyLookup = `
SELECT COLUMN_NAME
FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
LIMIT 1`

// conventionalKeys are tried when the schema declares no primary key.
var conventionalKeys = []string{"id", "ID", "Id", "_id", "uuid", "UUID"}

// primaryKeyColumn discovers the column used to identify corresponding rows
// across sandbox clones: declared primary key first, conventional names
// next, first column as the last resort.
func primaryKeyColumn(db *sqlx.DB, table string) string {
	var col string
	if err := db.Get(&col, primaryKeyLookup, table); err == nil && col != "" {
		return col
	}

	cols, err := tableColumns(db, table)
	if err != nil || len(cols) == 0 {
		return "id"
	}
	for _, candidate := range conventionalKeys {
		for _, c := range cols {
			if c == candidate {
				return candidate
			}
		}
	}
	return cols[0]
}

// dropTables removes sandbox clones, best effort. It runs on every exit
// path of a checker so temp tables never leak across submissions.
func dropTables(db *sqlx.DB, tables ...string) {
	for _, t := range tables {
		_, _ = db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", t))
	}
}

// nonKeyColumns lists a table's columns minus the primary key, for the
// changed-row detection in the UPDATE checker.
func nonKeyColumns(db *sqlx.DB, table, key string) ([]string, error) {
	cols, err := tableColumns(db, table)
	if err != nil {
		return nil, err
	}
	out := cols[:0]
	for _, c := range cols {
		if c != key {
			out = append(out, c)
		}
	}
	return out, nil
}

// changedCondition builds the NULL-safe predicate "any non-key column
// differs between the two aliases".
func changedCondition(alias1, alias2 string, cols []string) string {
	if len(cols) == 0 {
		return "1=0"
	}
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("NOT (%s.%s <=> %s.%s)", alias1, c, alias2, c)
	}
	return strings.Join(parts, " OR ")
}

// equalCondition builds the NULL-safe predicate "every non-key column is
// equal between the two aliases".
func equalCondition(alias1, alias2 string, cols []string) string {
	if len(cols) == 0 {
		return "1=1"
	}
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s.%s <=> %s.%s", alias1, c, alias2, c)
	}
	return strings.Join(parts, " AND ")
}
