package grader

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/sqlportal/grader/config"
)

// Queue entry states. An entry is claimed pending -> processing by exactly
// one worker and finishes as done or error exactly once.
const (
	queuePending    = 0
	queueDone       = 1
	queueError      = 2
	queueProcessing = 3
)

// QueueEntry is one unit of pending grading work: all submissions of one
// (user, target, attempt) tuple.
type QueueEntry struct {
	ID         int       `db:"queue_id"`
	UserID     int       `db:"user_id"`
	TargetType string    `db:"target_type"`
	TargetID   int       `db:"target_id"`
	AttemptNo  int       `db:"attempt_no"`
	QueuedAt   time.Time `db:"queue_at"`
}

// target maps a queue entry's target kind onto the right submission table
// and answer column.
type target struct {
	table      string
	idColumn   string
	jsonColumn string
	assignment bool
}

func resolveTarget(targetType string) (target, bool) {
	switch targetType {
	case "assignment":
		return target{"assignment_submission", "assignment_id", "answer_json", true}, true
	case "exam":
		return target{"exam_submission", "exam_id", "answers_json", false}, true
	default:
		return target{}, false
	}
}

type submissionRow struct {
	QuestionID int            `db:"question_id"`
	Answer     sql.NullString `db:"answer"`
	IsLate     int            `db:"is_late"`
}

type questionRow struct {
	ID         int            `db:"question_id"`
	Name       sql.NullString `db:"question_name"`
	Answer     sql.NullString `db:"answer"`
	Score      float64        `db:"question_score"`
	Keyword    sql.NullString `db:"keyword"`
	TestTable  sql.NullString `db:"test_table"`
	DatabaseID sql.NullInt64  `db:"database_id"`
}

// answerEnvelope is the small JSON wrapper submissions store their SQL in.
type answerEnvelope struct {
	SQL string `json:"sql"`
}

// parseAnswerSQL extracts the submitted SQL text. A parse failure degrades
// to an empty statement, which scores as ungradable rather than aborting
// the batch.
func parseAnswerSQL(raw string) string {
	var envelope answerEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return ""
	}
	return envelope.SQL
}

// Worker is the grading loop: it claims queue entries oldest-first, grades
// every submission in the entry and persists the score breakdowns.
type Worker struct {
	logger     *zap.Logger
	mainDB     *sqlx.DB
	scorer     *Scorer
	sandboxCfg config.MySQLConfig

	waitGroup  *sync.WaitGroup
	stop       chan struct{}
	pollTicker *time.Ticker
}

func NewWorker(
	logger *zap.Logger,
	mainDB *sqlx.DB,
	sandboxCfg config.MySQLConfig,
	waitGroup *sync.WaitGroup,
	stop chan struct{},
) *Worker {
	return &Worker{
		logger:     logger,
		mainDB:     mainDB,
		scorer:     NewScorer(logger),
		sandboxCfg: sandboxCfg,
		waitGroup:  waitGroup,
		stop:       stop,
	}
}

func (w *Worker) Start(cfg config.WorkerConfig) {
	w.pollTicker = time.NewTicker(time.Duration(cfg.PollInterval) * time.Millisecond)
	w.waitGroup.Add(1)
	go w.run()
}

func (w *Worker) Stop() {
	w.pollTicker.Stop()
}

func (w *Worker) run() {
	defer func() {
		w.logger.Info("stopped grading worker")
		w.waitGroup.Done()
	}()
	for {
		select {
		case <-w.stop:
			return
		case <-w.pollTicker.C:
			for {
				processed, err := w.processNext()
				if err != nil {
					w.logger.Error("failed processing queue", zap.String("error_message", err.Error()))
					break
				}
				if !processed {
					break
				}
				select {
				case <-w.stop:
					return
				default:
				}
			}
		}
	}
}

// processNext claims and drains at most one queue entry. It reports whether
// the loop should immediately look for more work.
func (w *Worker) processNext() (bool, error) {
	var entry QueueEntry
	err := w.mainDB.Get(&entry, fetchOldestPending, queuePending)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetching queue entry: %w", err)
	}

	res, err := w.mainDB.Exec(claimQueueEntry, queueProcessing, entry.ID, queuePending)
	if err != nil {
		return false, fmt.Errorf("claiming queue entry %d: %w", entry.ID, err)
	}
	if affected, err := res.RowsAffected(); err != nil || affected == 0 {
		// Another worker instance won the claim; look for the next entry.
		return true, nil
	}

	w.processEntry(entry)
	return true, nil
}

func (w *Worker) processEntry(entry QueueEntry) {
	logger := w.logger.With(
		zap.Int("queue_id", entry.ID),
		zap.Int("user_id", entry.UserID),
		zap.String("target_type", entry.TargetType),
		zap.Int("target_id", entry.TargetID),
		zap.Int("attempt_no", entry.AttemptNo),
	)

	tgt, ok := resolveTarget(entry.TargetType)
	if !ok {
		// A structurally bad entry is terminal immediately; retrying it
		// would livelock the queue.
		logger.Error("queue entry has invalid target type")
		w.markEntry(entry.ID, queueError)
		return
	}

	query := fmt.Sprintf(fetchSubmissionsTemplate, tgt.jsonColumn, tgt.table, tgt.idColumn)
	var submissions []submissionRow
	if err := w.mainDB.Select(&submissions, query, entry.UserID, entry.TargetID, entry.AttemptNo); err != nil {
		logger.Error("failed loading submissions", zap.String("error_message", err.Error()))
		w.markEntry(entry.ID, queueError)
		return
	}

	if len(submissions) == 0 {
		logger.Info("no submissions to grade")
		w.markEntry(entry.ID, queueDone)
		return
	}

	// One attempt's questions share a schema, so the sandbox connection is
	// resolved once per entry and reused across its submissions.
	sandbox := w.openSandbox(logger, submissions[0].QuestionID)
	if sandbox != nil {
		defer sandbox.Close()
	}

	for _, submission := range submissions {
		w.gradeSubmission(logger, tgt, entry, submission, sandbox)
	}

	w.markEntry(entry.ID, queueDone)
	logger.Info("queue entry graded", zap.Int("submissions", len(submissions)))
}

func (w *Worker) openSandbox(logger *zap.Logger, questionID int) *sqlx.DB {
	var question questionRow
	if err := w.mainDB.Get(&question, fetchQuestion, questionID); err != nil {
		logger.Error("failed loading question", zap.Int("question_id", questionID), zap.String("error_message", err.Error()))
		return nil
	}
	if !question.DatabaseID.Valid {
		logger.Warn("question has no sandbox database", zap.Int("question_id", questionID))
		return nil
	}

	var dbName string
	if err := w.mainDB.Get(&dbName, fetchDatabaseName, question.DatabaseID.Int64); err != nil {
		logger.Error("failed resolving sandbox database", zap.Int64("database_id", question.DatabaseID.Int64), zap.String("error_message", err.Error()))
		return nil
	}

	db, err := connectDB(w.sandboxCfg.DSN(dbName))
	if err != nil {
		logger.Error("failed connecting sandbox database", zap.String("database_name", dbName), zap.String("error_message", err.Error()))
		return nil
	}

	logger.Info("sandbox database connected", zap.String("database_name", dbName))
	return db
}

func (w *Worker) gradeSubmission(logger *zap.Logger, tgt target, entry QueueEntry, submission submissionRow, sandbox *sqlx.DB) {
	logger = logger.With(zap.Int("question_id", submission.QuestionID))

	var question questionRow
	if err := w.mainDB.Get(&question, fetchQuestion, submission.QuestionID); err != nil {
		logger.Error("failed loading question; skipping submission", zap.String("error_message", err.Error()))
		return
	}

	if sandbox == nil {
		logger.Warn("no sandbox database; skipping submission")
		return
	}

	studentSQL := parseAnswerSQL(submission.Answer.String)

	breakdown := w.scorer.Grade(sandbox, GradeInput{
		StudentSQL:    studentSQL,
		TeacherSQL:    question.Answer.String,
		QuestionScore: question.Score,
		Keywords:      question.Keyword.String,
		TestTable:     question.TestTable.String,
		IsLate:        submission.IsLate == 1,
		Assignment:    tgt.assignment,
	})

	penalty := 0
	if breakdown.LatePenaltyApplied {
		penalty = 1
	}
	update := fmt.Sprintf(updateScoresTemplate, tgt.table, tgt.idColumn)
	if _, err := w.mainDB.Exec(update,
		breakdown.SyntaxScore,
		breakdown.ResultScore,
		breakdown.KeywordScore,
		breakdown.OriginalTotal,
		breakdown.FinalTotal,
		penalty,
		entry.UserID,
		entry.TargetID,
		submission.QuestionID,
		entry.AttemptNo,
	); err != nil {
		logger.Error("failed persisting scores", zap.String("error_message", err.Error()))
		return
	}

	logger.Info("submission graded",
		zap.String("question_name", question.Name.String),
		zap.String("sql_type", breakdown.SQLType.String()),
		zap.Float64("keyword_score", breakdown.KeywordScore),
		zap.Float64("syntax_score", breakdown.SyntaxScore),
		zap.Float64("result_score", breakdown.ResultScore),
		zap.Float64("final_score", breakdown.FinalTotal),
		zap.Bool("late_penalty_applied", breakdown.LatePenaltyApplied),
		zap.Bool("compare_error", breakdown.CompareError),
		zap.String("reason", breakdown.Reason),
	)
}

func (w *Worker) markEntry(queueID, state int) {
	if _, err := w.mainDB.Exec(markQueueEntry, state, queueID); err != nil {
		w.logger.Error("failed updating queue entry",
			zap.Int("queue_id", queueID),
			zap.Int("state", state),
			zap.String("error_message", err.Error()),
		)
	}
}
