package grader

import (
	"math"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Share of a question's points carried by each check. Fixed policy, not
// per-question configurable.
const (
	keywordShare = 0.33
	syntaxShare  = 0.33
	resultShare  = 0.34

	latePenaltyRate = 0.30
)

// GradeInput is everything needed to grade one submitted answer to one
// question.
type GradeInput struct {
	StudentSQL    string
	TeacherSQL    string
	QuestionScore float64
	// Keywords is the question's comma-separated keyword list; empty means
	// keyword checking is off and the full share is awarded.
	Keywords string
	// TestTable names the table mutation checks sandbox. When empty it is
	// recovered from the reference statement.
	TestTable string
	IsLate    bool
	// Assignment submissions are subject to the late penalty; exams are not.
	Assignment bool
}

// ScoreBreakdown is the orchestrator's sole output contract: the weighted
// component scores plus the ungradable flag review UIs depend on.
type ScoreBreakdown struct {
	SQLType            Kind
	KeywordScore       float64
	SyntaxScore        float64
	ResultScore        float64
	OriginalTotal      float64
	FinalTotal         float64
	LatePenaltyApplied bool
	CompareError       bool
	Reason             string
}

// Scorer runs the full grading pipeline for single submissions.
type Scorer struct {
	logger *zap.Logger
}

func NewScorer(logger *zap.Logger) *Scorer {
	return &Scorer{logger: logger}
}

// Grade scores one submission against its reference answer, executing both
// statements in the given sandbox database. Failures degrade to ungradable
// outcomes; Grade never panics into the caller.
func (s *Scorer) Grade(sandbox *sqlx.DB, in GradeInput) ScoreBreakdown {
	clean := StripComments(in.StudentSQL)
	kind := KindOf(clean)

	breakdown := ScoreBreakdown{SQLType: kind}
	synShare := in.QuestionScore * syntaxShare
	resShare := in.QuestionScore * resultShare

	switch kind {
	case KindUnknown:
		breakdown.CompareError = true
		breakdown.Reason = "cannot determine the SQL statement kind"
	case KindUnsupported:
		breakdown.CompareError = true
		breakdown.Reason = "statement kind is not supported for grading"
	case KindSelect:
		s.gradeSelect(sandbox, clean, in, synShare, resShare, &breakdown)
	case KindInsert, KindUpdate, KindDelete:
		s.gradeMutation(sandbox, kind, clean, in, synShare, resShare, &breakdown)
	}

	breakdown.KeywordScore = keywordScore(in.StudentSQL, in.Keywords, in.QuestionScore*keywordShare)

	// NaN can only come out of a degenerate share division; coerce rather
	// than poison the stored totals.
	breakdown.KeywordScore = zeroNaN(breakdown.KeywordScore)
	breakdown.SyntaxScore = zeroNaN(breakdown.SyntaxScore)
	breakdown.ResultScore = zeroNaN(breakdown.ResultScore)

	breakdown.OriginalTotal = breakdown.KeywordScore + breakdown.SyntaxScore + breakdown.ResultScore
	breakdown.FinalTotal = breakdown.OriginalTotal
	if in.IsLate && in.Assignment {
		breakdown.FinalTotal = breakdown.OriginalTotal * (1 - latePenaltyRate)
		breakdown.LatePenaltyApplied = true
	}
	breakdown.FinalTotal = math.Round(breakdown.FinalTotal*100) / 100

	return breakdown
}

func (s *Scorer) gradeSelect(sandbox *sqlx.DB, clean string, in GradeInput, synShare, resShare float64, b *ScoreBreakdown) {
	structure, err := CompareStructure(clean, in.TeacherSQL, CanonicalOptions{})
	if err != nil {
		b.CompareError = true
		b.Reason = err.Error()
		return
	}
	b.SyntaxScore = synShare * float64(structure.Score) / 100

	if sandbox == nil {
		b.CompareError = true
		b.Reason = "no sandbox database available"
		return
	}

	// Execution errors degrade per side to an empty result, so a broken
	// student query still grades against the reference rows.
	studentResult, err := queryResult(sandbox, in.StudentSQL)
	if err != nil {
		s.logger.Warn("student SELECT failed", zap.String("error_message", err.Error()))
		studentResult = Result{}
	}
	teacherResult, err := queryResult(sandbox, in.TeacherSQL)
	if err != nil {
		s.logger.Warn("teacher SELECT failed", zap.String("error_message", err.Error()))
		teacherResult = Result{}
	}

	comparison := PercentageCompare(studentResult, teacherResult)
	b.ResultScore = comparison.Score * resShare
	b.Reason = comparison.Reason
}

func (s *Scorer) gradeMutation(sandbox *sqlx.DB, kind Kind, clean string, in GradeInput, synShare, resShare float64, b *ScoreBreakdown) {
	structure, err := CompareStructure(clean, in.TeacherSQL, CanonicalOptions{})
	if err != nil {
		b.CompareError = true
		b.Reason = err.Error()
		return
	}
	b.SyntaxScore = synShare * float64(structure.Score) / 100

	if sandbox == nil {
		b.CompareError = true
		b.Reason = "no sandbox database available"
		return
	}

	table := in.TestTable
	if table == "" {
		table = TableFromSQL(in.TeacherSQL)
	}

	var result MutationResult
	switch kind {
	case KindDelete:
		result = CheckDelete(sandbox, clean, in.TeacherSQL, table)
	case KindInsert:
		result = CheckInsert(sandbox, clean, in.TeacherSQL, table)
	case KindUpdate:
		result = CheckUpdate(sandbox, clean, in.TeacherSQL, table)
	}

	b.ResultScore = result.Score * resShare
	b.Reason = result.Reason
	if result.Err != "" {
		b.CompareError = true
	}
}

// keywordScore awards the keyword share proportionally to the keywords
// found as case-insensitive substrings; an empty list awards the full
// share, since keyword checking is opt-in per question.
func keywordScore(studentSQL, keywords string, share float64) float64 {
	var list []string
	for _, k := range strings.Split(keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			list = append(list, k)
		}
	}
	if len(list) == 0 {
		return share
	}

	lowered := strings.ToLower(studentSQL)
	found := 0
	for _, k := range list {
		if strings.Contains(lowered, strings.ToLower(k)) {
			found++
		}
	}
	return float64(found) / float64(len(list)) * share
}

func zeroNaN(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return f
}
