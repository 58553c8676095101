package promotion

import (
	"testing"
	"time"

	"github.com/coreloop/behavior-engine/internal/behavior"
	"github.com/coreloop/behavior-engine/internal/confidence"
)

var baseTime = time.Unix(1_700_000_000, 0).UTC()

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	scorer, err := confidence.NewEngine(confidence.DefaultWeights())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return NewEvaluator(DefaultConfig(), scorer)
}

// regularMembers builds n records with daily, perfectly regular last-seen gaps.
func regularMembers(n int, cred float64, reinf int) ([]behavior.Record, []string) {
	records := make([]behavior.Record, n)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := string(rune('a'+i)) + "-rec"
		records[i] = behavior.Record{
			ID:                 id,
			Credibility:        cred,
			ReinforcementCount: reinf,
			LastSeen:           baseTime.Add(time.Duration(i) * 24 * time.Hour),
		}
		ids[i] = id
	}
	return records, ids
}

func indexOf(records []behavior.Record) map[string]behavior.Record {
	idx := make(map[string]behavior.Record, len(records))
	for _, r := range records {
		idx[r.ID] = r
	}
	return idx
}

func TestEvaluateRejectsSmallCluster(t *testing.T) {
	e := newEvaluator(t)
	records, ids := regularMembers(2, 0.9, 5)
	c := behavior.Cluster{ID: "c1", MemberIDs: ids, CoherenceScore: 0.9}

	o := e.Evaluate(c, indexOf(records))
	if o.Decision != DecisionRejected || o.Reason != ReasonInsufficientEvidence {
		t.Fatalf("expected insufficient_evidence rejection, got %s/%s", o.Decision, o.Reason)
	}
}

func TestEvaluateRejectsLowCredibility(t *testing.T) {
	e := newEvaluator(t)
	records, ids := regularMembers(4, 0.4, 5)
	c := behavior.Cluster{ID: "c1", MemberIDs: ids, CoherenceScore: 0.9}

	o := e.Evaluate(c, indexOf(records))
	if o.Decision != DecisionRejected || o.Reason != ReasonLowCredibility {
		t.Fatalf("expected low_credibility rejection, got %s/%s", o.Decision, o.Reason)
	}
}

func TestEvaluateEmergingOnLowStability(t *testing.T) {
	e := newEvaluator(t)
	// Same instant for every member: stability is exactly 0.
	records := make([]behavior.Record, 4)
	ids := make([]string, 4)
	for i := range records {
		id := string(rune('a'+i)) + "-rec"
		records[i] = behavior.Record{ID: id, Credibility: 0.9, ReinforcementCount: 5, LastSeen: baseTime}
		ids[i] = id
	}
	c := behavior.Cluster{ID: "c1", MemberIDs: ids, CoherenceScore: 0.9}

	o := e.Evaluate(c, indexOf(records))
	if o.Decision != DecisionEmerging {
		t.Fatalf("expected emerging, got %s (%s)", o.Decision, o.Detail)
	}
	if o.Reason != ReasonLowStability {
		t.Fatalf("expected low_stability reason for observability, got %s", o.Reason)
	}
	if o.Stability != 0 {
		t.Fatalf("expected stability 0, got %.4f", o.Stability)
	}
}

func TestEvaluateRejectsLowCoherence(t *testing.T) {
	e := newEvaluator(t)
	records, ids := regularMembers(4, 0.9, 5)
	c := behavior.Cluster{ID: "c1", MemberIDs: ids, CoherenceScore: 0.5}

	o := e.Evaluate(c, indexOf(records))
	if o.Decision != DecisionRejected || o.Reason != ReasonLowCoherence {
		t.Fatalf("expected low_coherence rejection, got %s/%s", o.Decision, o.Reason)
	}
}

func TestEvaluateRejectsBelowPromotionThreshold(t *testing.T) {
	e := newEvaluator(t)
	// Credibility and coherence just clear their gates, reinforcement is
	// minimal: aggregate lands under 0.70.
	records, ids := regularMembers(3, 0.66, 0)
	c := behavior.Cluster{ID: "c1", MemberIDs: ids, CoherenceScore: 0.70}

	o := e.Evaluate(c, indexOf(records))
	if o.Decision != DecisionRejected || o.Reason != ReasonBelowThreshold {
		t.Fatalf("expected below_promotion_threshold, got %s/%s (%s)", o.Decision, o.Reason, o.Detail)
	}
}

func TestEvaluatePromotes(t *testing.T) {
	e := newEvaluator(t)
	records, ids := regularMembers(4, 0.85, 5)
	c := behavior.Cluster{ID: "c1", MemberIDs: ids, CoherenceScore: 0.85}

	o := e.Evaluate(c, indexOf(records))
	if o.Decision != DecisionPromoted {
		t.Fatalf("expected promotion, got %s/%s (%s)", o.Decision, o.Reason, o.Detail)
	}
	if o.Confidence < 0.70 || o.Confidence > 1.0 {
		t.Fatalf("confidence %.4f out of range", o.Confidence)
	}
	if o.Components.Stability != 1.0 {
		t.Fatalf("expected stability 1.0 for regular gaps, got %.4f", o.Components.Stability)
	}
	if o.Grade != behavior.GradeHigh {
		t.Fatalf("expected high grade, got %s", o.Grade)
	}
	if len(o.Members) != 4 {
		t.Fatalf("expected 4 resolved members, got %d", len(o.Members))
	}
}

func TestEvaluateRejectsUnknownMemberID(t *testing.T) {
	e := newEvaluator(t)
	records, ids := regularMembers(3, 0.9, 5)
	c := behavior.Cluster{ID: "c1", MemberIDs: append(ids, "ghost"), CoherenceScore: 0.9}

	o := e.Evaluate(c, indexOf(records))
	if o.Decision != DecisionRejected || o.Reason != ReasonInvalidCluster {
		t.Fatalf("expected invalid_cluster rejection, got %s/%s", o.Decision, o.Reason)
	}
}

func TestEvaluateRejectsEmptyCluster(t *testing.T) {
	e := newEvaluator(t)
	c := behavior.Cluster{ID: "c1", CoherenceScore: 0.9}

	o := e.Evaluate(c, map[string]behavior.Record{})
	if o.Decision != DecisionRejected || o.Reason != ReasonInvalidCluster {
		t.Fatalf("expected invalid_cluster rejection, got %s/%s", o.Decision, o.Reason)
	}
}

func TestCheckOrderShortCircuits(t *testing.T) {
	e := newEvaluator(t)
	// Fails size AND credibility AND coherence; only the first check's
	// reason may surface.
	records, ids := regularMembers(2, 0.1, 5)
	c := behavior.Cluster{ID: "c1", MemberIDs: ids, CoherenceScore: 0.1}

	o := e.Evaluate(c, indexOf(records))
	if o.Reason != ReasonInsufficientEvidence {
		t.Fatalf("expected first-check reason, got %s", o.Reason)
	}
}

func TestEvaluateAllStatsAndIsolation(t *testing.T) {
	e := newEvaluator(t)
	good, goodIDs := regularMembers(4, 0.85, 5)
	weak, weakIDs := regularMembers(4, 0.4, 5)
	for i := range weak {
		weak[i].ID = "weak-" + weak[i].ID
		weakIDs[i] = weak[i].ID
	}

	records := append(append([]behavior.Record{}, good...), weak...)
	clusters := []behavior.Cluster{
		{ID: "good", MemberIDs: goodIDs, CoherenceScore: 0.85},
		{ID: "weak", MemberIDs: weakIDs, CoherenceScore: 0.85},
		{ID: "broken", MemberIDs: []string{"missing"}, CoherenceScore: 0.85},
	}

	outcomes, stats := e.EvaluateAll(clusters, records)
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if stats.Evaluated != 3 || stats.Promoted != 1 || stats.Rejected != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.RejectionReasons[string(ReasonLowCredibility)] != 1 {
		t.Fatalf("expected one low_credibility rejection, got %+v", stats.RejectionReasons)
	}
	if stats.RejectionReasons[string(ReasonInvalidCluster)] != 1 {
		t.Fatalf("expected one invalid_cluster rejection, got %+v", stats.RejectionReasons)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	e := newEvaluator(t)
	records, ids := regularMembers(4, 0.85, 5)
	c := behavior.Cluster{ID: "c1", MemberIDs: ids, CoherenceScore: 0.85}
	idx := indexOf(records)

	first := e.Evaluate(c, idx)
	for i := 0; i < 5; i++ {
		again := e.Evaluate(c, idx)
		if again.Confidence != first.Confidence || again.Components != first.Components {
			t.Fatalf("run %d differed: %.12f vs %.12f", i, again.Confidence, first.Confidence)
		}
	}
}
