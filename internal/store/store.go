package store

// #region imports
import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/coreloop/behavior-engine/internal/behavior"
)

// #endregion

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS analysis_snapshots (
	snapshot_id   TEXT PRIMARY KEY,
	subject_id    TEXT NOT NULL,
	run_at        TEXT NOT NULL,
	stats_json    TEXT
);

CREATE INDEX IF NOT EXISTS idx_snapshots_subject
ON analysis_snapshots(subject_id, run_at DESC);

CREATE TABLE IF NOT EXISTS core_behaviors (
	snapshot_id     TEXT NOT NULL,
	behavior_id     TEXT NOT NULL,
	subject_id      TEXT NOT NULL,
	statement       TEXT NOT NULL,
	confidence      REAL NOT NULL,
	grade           TEXT NOT NULL,
	components_json TEXT NOT NULL,
	evidence_json   TEXT NOT NULL,
	founding_json   TEXT NOT NULL,
	version         INTEGER NOT NULL,
	created_at      TEXT NOT NULL,
	last_updated    TEXT NOT NULL,
	status          TEXT NOT NULL,
	support_ratio   REAL NOT NULL,
	PRIMARY KEY (snapshot_id, behavior_id),
	FOREIGN KEY (snapshot_id) REFERENCES analysis_snapshots(snapshot_id)
);
`

// #endregion schema

// #region store-struct

// Store persists analysis snapshots in SQLite. The engine never touches it
// directly; callers load the previous snapshot, run an analysis, then save
// the result here.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region save

// SaveSnapshot writes the snapshot header and its behaviors atomically.
func (s *Store) SaveSnapshot(snap behavior.Snapshot, statsJSON string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var statsPtr interface{}
	if statsJSON != "" {
		statsPtr = statsJSON
	}

	_, err = tx.Exec(
		`INSERT INTO analysis_snapshots (snapshot_id, subject_id, run_at, stats_json)
		 VALUES (?, ?, ?, ?)`,
		snap.SnapshotID, snap.SubjectID, snap.RunAt.Format(time.RFC3339Nano), statsPtr,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	for _, cb := range snap.Behaviors {
		componentsJSON, err := json.Marshal(cb.Components)
		if err != nil {
			return fmt.Errorf("marshal components: %w", err)
		}
		evidenceJSON, err := json.Marshal(cb.EvidenceChain)
		if err != nil {
			return fmt.Errorf("marshal evidence: %w", err)
		}
		foundingJSON, err := json.Marshal(cb.FoundingChain)
		if err != nil {
			return fmt.Errorf("marshal founding evidence: %w", err)
		}

		_, err = tx.Exec(
			`INSERT INTO core_behaviors
			 (snapshot_id, behavior_id, subject_id, statement, confidence, grade,
			  components_json, evidence_json, founding_json, version,
			  created_at, last_updated, status, support_ratio)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.SnapshotID, cb.ID, snap.SubjectID, cb.Statement, cb.Confidence, string(cb.Grade),
			string(componentsJSON), string(evidenceJSON), string(foundingJSON), cb.Version,
			cb.CreatedAt.Format(time.RFC3339Nano), cb.LastUpdated.Format(time.RFC3339Nano),
			string(cb.Status), cb.SupportRatio,
		)
		if err != nil {
			return fmt.Errorf("insert behavior %s: %w", cb.ID, err)
		}
	}

	return tx.Commit()
}

// #endregion save

// #region load-latest

// LoadLatest returns the most recent snapshot for a subject, or nil when
// the subject has never been analyzed. nil is the caller's "first run".
func (s *Store) LoadLatest(subjectID string) (*behavior.Snapshot, error) {
	var snapshotID string
	err := s.db.QueryRow(
		`SELECT snapshot_id FROM analysis_snapshots
		 WHERE subject_id = ? ORDER BY run_at DESC LIMIT 1`, subjectID,
	).Scan(&snapshotID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest snapshot: %w", err)
	}
	return s.GetSnapshot(snapshotID)
}

// GetSnapshot retrieves a specific snapshot with its behaviors.
func (s *Store) GetSnapshot(snapshotID string) (*behavior.Snapshot, error) {
	snap := &behavior.Snapshot{SnapshotID: snapshotID}

	var runAtStr string
	err := s.db.QueryRow(
		`SELECT subject_id, run_at FROM analysis_snapshots WHERE snapshot_id = ?`, snapshotID,
	).Scan(&snap.SubjectID, &runAtStr)
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", snapshotID, err)
	}
	snap.RunAt, _ = time.Parse(time.RFC3339Nano, runAtStr)

	rows, err := s.db.Query(
		`SELECT behavior_id, statement, confidence, grade, components_json,
		        evidence_json, founding_json, version, created_at, last_updated,
		        status, support_ratio
		 FROM core_behaviors WHERE snapshot_id = ? ORDER BY behavior_id`, snapshotID,
	)
	if err != nil {
		return nil, fmt.Errorf("list behaviors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cb behavior.CoreBehavior
		var grade, componentsJSON, evidenceJSON, foundingJSON, createdStr, updatedStr, status string

		if err := rows.Scan(&cb.ID, &cb.Statement, &cb.Confidence, &grade, &componentsJSON,
			&evidenceJSON, &foundingJSON, &cb.Version, &createdStr, &updatedStr,
			&status, &cb.SupportRatio); err != nil {
			return nil, fmt.Errorf("scan behavior: %w", err)
		}

		cb.Grade = behavior.Grade(grade)
		cb.Status = behavior.Status(status)
		if err := json.Unmarshal([]byte(componentsJSON), &cb.Components); err != nil {
			return nil, fmt.Errorf("unmarshal components: %w", err)
		}
		if err := json.Unmarshal([]byte(evidenceJSON), &cb.EvidenceChain); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
		if err := json.Unmarshal([]byte(foundingJSON), &cb.FoundingChain); err != nil {
			return nil, fmt.Errorf("unmarshal founding evidence: %w", err)
		}
		cb.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		cb.LastUpdated, _ = time.Parse(time.RFC3339Nano, updatedStr)

		snap.Behaviors = append(snap.Behaviors, cb)
	}
	return snap, rows.Err()
}

// #endregion load-latest

// #region list

// SnapshotInfo is a history row without the full behavior payload.
type SnapshotInfo struct {
	SnapshotID    string    `json:"snapshot_id"`
	SubjectID     string    `json:"subject_id"`
	RunAt         time.Time `json:"run_at"`
	BehaviorCount int       `json:"behavior_count"`
	StatsJSON     string    `json:"stats_json,omitempty"`
}

// ListSnapshots returns a subject's analysis history, newest first.
func (s *Store) ListSnapshots(subjectID string, limit, offset int) ([]SnapshotInfo, error) {
	rows, err := s.db.Query(
		`SELECT a.snapshot_id, a.subject_id, a.run_at, a.stats_json,
		        (SELECT COUNT(*) FROM core_behaviors b WHERE b.snapshot_id = a.snapshot_id)
		 FROM analysis_snapshots a
		 WHERE a.subject_id = ?
		 ORDER BY a.run_at DESC LIMIT ? OFFSET ?`,
		subjectID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var runAtStr string
		var statsJSON sql.NullString
		if err := rows.Scan(&info.SnapshotID, &info.SubjectID, &runAtStr, &statsJSON, &info.BehaviorCount); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		info.RunAt, _ = time.Parse(time.RFC3339Nano, runAtStr)
		if statsJSON.Valid {
			info.StatsJSON = statsJSON.String
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// #endregion list

// #region delete

// DeleteSubject removes all snapshots and behaviors for a subject and
// returns the number of snapshots deleted.
func (s *Store) DeleteSubject(subjectID string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM core_behaviors WHERE subject_id = ?`, subjectID); err != nil {
		return 0, fmt.Errorf("delete behaviors: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM analysis_snapshots WHERE subject_id = ?`, subjectID)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(n), nil
}

// #endregion delete

// #region stats

// SubjectStats summarizes a subject's analysis history.
type SubjectStats struct {
	SubjectID       string  `json:"subject_id"`
	Runs            int     `json:"runs"`
	LatestBehaviors int     `json:"latest_behaviors"`
	MeanConfidence  float64 `json:"mean_confidence"`
}

// SubjectStats aggregates run count and latest-snapshot confidence.
func (s *Store) SubjectStats(subjectID string) (SubjectStats, error) {
	stats := SubjectStats{SubjectID: subjectID}

	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM analysis_snapshots WHERE subject_id = ?`, subjectID,
	).Scan(&stats.Runs)
	if err != nil {
		return stats, fmt.Errorf("count runs: %w", err)
	}
	if stats.Runs == 0 {
		return stats, nil
	}

	latest, err := s.LoadLatest(subjectID)
	if err != nil {
		return stats, err
	}
	stats.LatestBehaviors = len(latest.Behaviors)

	var sum float64
	for _, cb := range latest.Behaviors {
		sum += cb.Confidence
	}
	if stats.LatestBehaviors > 0 {
		stats.MeanConfidence = sum / float64(stats.LatestBehaviors)
	}
	return stats, nil
}

// #endregion stats
