package logging

// #region imports
import (
	"database/sql"
	"fmt"
	"time"
)

// #endregion

// #region schema

const evaluationLogSchema = `
CREATE TABLE IF NOT EXISTS evaluation_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	snapshot_id   TEXT NOT NULL,
	subject_id    TEXT NOT NULL,
	cluster_id    TEXT NOT NULL,
	decision      TEXT NOT NULL,
	reason        TEXT,
	confidence    REAL,
	detail        TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluation_log_subject
ON evaluation_log(subject_id, created_at DESC);
`

// EnsureSchema creates the evaluation_log table if missing.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(evaluationLogSchema); err != nil {
		return fmt.Errorf("migrate evaluation log: %w", err)
	}
	return nil
}

// #endregion

// #region entry

// EvaluationEntry records one cluster's terminal decision for audit.
type EvaluationEntry struct {
	SnapshotID string
	SubjectID  string
	ClusterID  string
	Decision   string
	Reason     string
	Confidence float64
	Detail     string
	CreatedAt  time.Time
}

// #endregion

// #region log-evaluation

// LogEvaluation writes one decision row to the evaluation_log table.
func LogEvaluation(db *sql.DB, entry EvaluationEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO evaluation_log (snapshot_id, subject_id, cluster_id, decision, reason, confidence, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SnapshotID,
		entry.SubjectID,
		entry.ClusterID,
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.Confidence,
		nullIfEmpty(entry.Detail),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log evaluation: %w", err)
	}
	return nil
}

// #endregion log-evaluation

// #region list

// ListEvaluations returns the most recent decisions for a subject.
func ListEvaluations(db *sql.DB, subjectID string, limit int) ([]EvaluationEntry, error) {
	rows, err := db.Query(
		`SELECT snapshot_id, subject_id, cluster_id, decision, reason, confidence, detail, created_at
		 FROM evaluation_log WHERE subject_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		subjectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var entries []EvaluationEntry
	for rows.Next() {
		var e EvaluationEntry
		var reason, detail sql.NullString
		var createdStr string
		if err := rows.Scan(&e.SnapshotID, &e.SubjectID, &e.ClusterID, &e.Decision,
			&reason, &e.Confidence, &detail, &createdStr); err != nil {
			return nil, fmt.Errorf("scan evaluation row: %w", err)
		}
		e.Reason = reason.String
		e.Detail = detail.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list

// #region helpers

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
