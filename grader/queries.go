package grader

// SQL run against the portal (main) database. Submission tables differ per
// target kind, so their statements are templates filled in with resolved,
// system-controlled identifiers.
const (
	fetchOldestPending = `
SELECT queue_id, user_id, target_type, target_id, attempt_no, queue_at
FROM queue
WHERE checked = ?
ORDER BY queue_at
LIMIT 1`

	// The conditional claim: only one worker instance can win the
	// pending -> processing transition for a given entry.
	claimQueueEntry = `UPDATE queue SET checked = ? WHERE queue_id = ? AND checked = ?`

	markQueueEntry = `UPDATE queue SET checked = ? WHERE queue_id = ?`

	fetchQuestion = `
SELECT question_id, question_name, answer, question_score, keyword, test_table, database_id
FROM question
WHERE question_id = ?`

	fetchDatabaseName = `SELECT database_name FROM database_list WHERE database_id = ?`

	fetchSubmissionsTemplate = `
SELECT question_id, %s AS answer, is_late
FROM %s
WHERE user_id = ? AND %s = ? AND attempt_no = ?`

	updateScoresTemplate = `
UPDATE %s
SET syntax_score = ?, result_score = ?, keyword_score = ?,
    original_score = ?, final_score = ?, late_penalty_applied = ?
WHERE user_id = ? AND %s = ? AND question_id = ? AND attempt_no = ?`
)
