package logging

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func tempDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return db
}

func TestLogAndListEvaluations(t *testing.T) {
	db := tempDB(t)
	t0 := time.Unix(1_700_000_000, 0).UTC()

	entries := []EvaluationEntry{
		{SnapshotID: "s1", SubjectID: "subj", ClusterID: "c1", Decision: "promoted", Confidence: 0.85, CreatedAt: t0},
		{SnapshotID: "s1", SubjectID: "subj", ClusterID: "c2", Decision: "rejected", Reason: "low_credibility", Detail: "weighted credibility 0.4000 below 0.65", CreatedAt: t0},
		{SnapshotID: "s1", SubjectID: "other", ClusterID: "c3", Decision: "emerging", Reason: "low_stability", CreatedAt: t0},
	}
	for _, e := range entries {
		if err := LogEvaluation(db, e); err != nil {
			t.Fatalf("LogEvaluation: %v", err)
		}
	}

	got, err := ListEvaluations(db, "subj", 10)
	if err != nil {
		t.Fatalf("ListEvaluations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for subject, got %d", len(got))
	}
	// Same timestamp: newest-insert-first via id ordering.
	if got[0].ClusterID != "c2" || got[0].Reason != "low_credibility" {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}
	if got[1].Decision != "promoted" || got[1].Confidence != 0.85 {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
}

func TestLogEvaluationDefaultsCreatedAt(t *testing.T) {
	db := tempDB(t)

	if err := LogEvaluation(db, EvaluationEntry{
		SnapshotID: "s1", SubjectID: "subj", ClusterID: "c1", Decision: "promoted",
	}); err != nil {
		t.Fatalf("LogEvaluation: %v", err)
	}

	got, err := ListEvaluations(db, "subj", 1)
	if err != nil {
		t.Fatalf("ListEvaluations: %v", err)
	}
	if len(got) != 1 || got[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to default to now")
	}
}
