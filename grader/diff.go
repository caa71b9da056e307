package grader

import (
	"errors"
	"fmt"
	"math"
)

// Facet is one named, comparable slice of a canonical structure.
type Facet struct {
	Name  string
	Value string
}

// Issue reports one mismatched facet with both canonical values.
type Issue struct {
	Field    string
	Expected string
	Got      string
}

// StructureResult is the outcome of a structural diff between a student
// statement and the reference statement.
type StructureResult struct {
	OK      bool
	Score   int // 0-100
	Issues  []Issue
	Student Canonical
	Teacher Canonical
}

var (
	// ErrInvalidStudentSQL marks a student statement the grammar rejects.
	// Callers distinguish this from a zero score: the answer could not be
	// evaluated at all.
	ErrInvalidStudentSQL = errors.New("invalid student SQL")
	// ErrInvalidTeacherSQL marks an unparseable reference statement.
	ErrInvalidTeacherSQL = errors.New("invalid teacher SQL")
)

// CompareStructure parses both statements, canonicalizes them and diffs the
// canonical facets. Both statements must be of the same, supported kind.
func CompareStructure(studentSQL, teacherSQL string, opts CanonicalOptions) (*StructureResult, error) {
	studentStmt, err := parseStatement(StripComments(studentSQL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStudentSQL, err)
	}
	teacherStmt, err := parseStatement(StripComments(teacherSQL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTeacherSQL, err)
	}

	student, err := Canonicalize(studentStmt, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStudentSQL, err)
	}
	teacher, err := Canonicalize(teacherStmt, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTeacherSQL, err)
	}

	return diffStructures(student, teacher), nil
}

func diffStructures(student, teacher Canonical) *StructureResult {
	var issues []Issue

	if student.StatementKind() != teacher.StatementKind() {
		issues = append(issues, Issue{
			Field:    "type",
			Expected: teacher.StatementKind().String(),
			Got:      student.StatementKind().String(),
		})
	}

	studentFacets := student.Facets()
	teacherFacets := teacher.Facets()
	for i, tf := range teacherFacets {
		got := ""
		if i < len(studentFacets) {
			got = studentFacets[i].Value
		}
		if got != tf.Value {
			issues = append(issues, Issue{Field: tf.Name, Expected: tf.Value, Got: got})
		}
	}

	total := teacher.FieldCount()
	score := int(math.Round(100 - float64(len(issues))/float64(total)*100))
	if score < 0 {
		score = 0
	}

	return &StructureResult{
		OK:      len(issues) == 0,
		Score:   score,
		Issues:  issues,
		Student: student,
		Teacher: teacher,
	}
}
