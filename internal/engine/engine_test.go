package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/coreloop/behavior-engine/internal/behavior"
	"github.com/coreloop/behavior-engine/internal/config"
	"github.com/coreloop/behavior-engine/internal/label"
)

// #region fixtures

func strongRecords(prefix string, n int) []behavior.Record {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]behavior.Record, n)
	for i := range records {
		records[i] = behavior.Record{
			ID:                 prefix + string(rune('a'+i)),
			Text:               "asks detailed follow-up questions",
			Credibility:        0.9,
			ReinforcementCount: 5,
			LastSeen:           base.Add(time.Duration(i) * 24 * time.Hour),
			ClarityScore:       0.8,
		}
	}
	return records
}

func clusterOf(id string, records []behavior.Record) behavior.Cluster {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return behavior.Cluster{ID: id, MemberIDs: ids, CoherenceScore: 0.9}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(config.Default(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// #endregion

// #region first-run

func TestAnalyzeFirstRunAllNew(t *testing.T) {
	e := newTestEngine(t)
	records := strongRecords("r", 3)
	in := Input{
		SubjectID: "subj",
		Records:   records,
		Clusters:  []behavior.Cluster{clusterOf("c1", records)},
	}

	res, err := e.Analyze(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.FromCache {
		t.Fatal("first run must not come from cache")
	}
	if len(res.Snapshot.Behaviors) != 1 {
		t.Fatalf("expected 1 behavior, got %d", len(res.Snapshot.Behaviors))
	}

	cb := res.Snapshot.Behaviors[0]
	if cb.Version != 1 {
		t.Fatalf("expected version 1, got %d", cb.Version)
	}
	if cb.Status != behavior.StatusActive {
		t.Fatalf("expected active status, got %s", cb.Status)
	}
	if cb.Grade != behavior.GradeHigh {
		t.Fatalf("expected high grade, got %s", cb.Grade)
	}
	if cb.Statement == "" {
		t.Fatal("expected a fallback statement on the new behavior")
	}
	if len(res.Report.New) != 1 || res.Report.New[0] != cb.ID {
		t.Fatalf("expected the behavior reported as new, got %+v", res.Report)
	}
	if res.Stats.Promoted != 1 || res.Stats.Evaluated != 1 {
		t.Fatalf("unexpected stats: %+v", res.Stats)
	}
}

// #endregion

// #region determinism

func TestAnalyzeDeterministicScores(t *testing.T) {
	records := strongRecords("r", 4)
	in := Input{
		SubjectID: "subj",
		Records:   records,
		Clusters:  []behavior.Cluster{clusterOf("c1", records)},
	}

	run := func() behavior.CoreBehavior {
		e := newTestEngine(t)
		res, err := e.Analyze(context.Background(), in, nil)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		cb := res.Snapshot.Behaviors[0]
		// Wall-clock and snapshot id vary per run; the derivation must not.
		cb.CreatedAt, cb.LastUpdated = time.Time{}, time.Time{}
		return cb
	}

	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Fatalf("same input produced different behavior (-first +second):\n%s", diff)
	}
}

// #endregion

// #region continuity

func TestAnalyzeVersionContinuity(t *testing.T) {
	e := newTestEngine(t)
	records := strongRecords("r", 4)
	in := Input{
		SubjectID: "subj",
		Records:   records,
		Clusters:  []behavior.Cluster{clusterOf("c1", records)},
	}

	first, err := e.Analyze(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("first Analyze: %v", err)
	}

	// Next run: same founding evidence plus one new record in the cluster.
	extra := strongRecords("x", 1)
	in.Records = append(append([]behavior.Record{}, records...), extra...)
	in.Clusters = []behavior.Cluster{clusterOf("c1", in.Records)}

	second, err := e.Analyze(context.Background(), in, &first.Snapshot)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if len(second.Snapshot.Behaviors) != 1 {
		t.Fatalf("expected 1 behavior, got %d", len(second.Snapshot.Behaviors))
	}

	prev, cur := first.Snapshot.Behaviors[0], second.Snapshot.Behaviors[0]
	if cur.ID != prev.ID {
		t.Fatalf("identity lost across runs: %s vs %s", prev.ID, cur.ID)
	}
	if cur.Version != prev.Version+1 {
		t.Fatalf("expected version %d, got %d", prev.Version+1, cur.Version)
	}
	if cur.Statement != prev.Statement {
		t.Fatal("matched behavior must carry its statement forward")
	}
	if !cur.CreatedAt.Equal(prev.CreatedAt) {
		t.Fatal("matched behavior must keep created_at")
	}
	if second.Report.Total() != 1 || len(second.Report.New) != 0 {
		t.Fatalf("expected a single non-new classification, got %+v", second.Report)
	}
}

// #endregion

// #region incremental

func TestAnalyzeUnchangedEvidenceShortCircuits(t *testing.T) {
	e := newTestEngine(t)
	records := strongRecords("r", 3)
	in := Input{
		SubjectID: "subj",
		Records:   records,
		Clusters:  []behavior.Cluster{clusterOf("c1", records)},
	}

	first, err := e.Analyze(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("first Analyze: %v", err)
	}

	second, err := e.Analyze(context.Background(), in, &first.Snapshot)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if !second.FromCache {
		t.Fatal("unchanged evidence set must return the previous snapshot")
	}
	if second.Snapshot.SnapshotID != first.Snapshot.SnapshotID {
		t.Fatal("cached result must be the previous snapshot, not a new one")
	}

	in.Force = true
	third, err := e.Analyze(context.Background(), in, &first.Snapshot)
	if err != nil {
		t.Fatalf("forced Analyze: %v", err)
	}
	if third.FromCache {
		t.Fatal("force must bypass the incremental short-circuit")
	}
	if third.Snapshot.SnapshotID == first.Snapshot.SnapshotID {
		t.Fatal("forced run must produce a fresh snapshot")
	}
}

// #endregion

// #region label-isolation

type failingProvider struct{ calls int }

func (p *failingProvider) GenerateLabel(ctx context.Context, texts []string) (string, error) {
	p.calls++
	return "", errors.New("model unavailable")
}

func TestAnalyzeLabelFailureLeavesScoresUntouched(t *testing.T) {
	records := strongRecords("r", 3)
	in := Input{
		SubjectID: "subj",
		Records:   records,
		Clusters:  []behavior.Cluster{clusterOf("c1", records)},
	}

	baseline := newTestEngine(t)
	want, err := baseline.Analyze(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("baseline Analyze: %v", err)
	}

	provider := &failingProvider{}
	e, err := New(config.Default(), label.NewLabeler(provider, time.Second, 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := e.Analyze(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if provider.calls == 0 {
		t.Fatal("expected the provider to be attempted")
	}
	wb, gb := want.Snapshot.Behaviors[0], got.Snapshot.Behaviors[0]
	if gb.Confidence != wb.Confidence || gb.Components != wb.Components || gb.Grade != wb.Grade {
		t.Fatal("label failure must not alter derived scores")
	}
	if gb.Statement != wb.Statement {
		t.Fatal("label failure must fall back to the deterministic statement")
	}
}

// #endregion

// #region serialization

func TestAnalyzeSerializesSameSubject(t *testing.T) {
	e := newTestEngine(t)
	records := strongRecords("r", 3)
	in := Input{
		SubjectID: "subj",
		Records:   records,
		Clusters:  []behavior.Cluster{clusterOf("c1", records)},
		Force:     true,
	}

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Analyze(context.Background(), in, nil)
			if err != nil {
				t.Errorf("Analyze: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	// Every run saw the same nil-previous base, so all must agree.
	for _, res := range results[1:] {
		if res.Snapshot.Behaviors[0].Version != results[0].Snapshot.Behaviors[0].Version {
			t.Fatal("concurrent same-subject runs disagreed on version")
		}
	}
}

func TestAnalyzeRespectsCancelledContext(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Analyze(ctx, Input{SubjectID: "subj"}, nil); err == nil {
		t.Fatal("expected cancelled context to abort the run")
	}
}

// #endregion
