package promotion

// #region imports
import (
	"fmt"
	"math"

	"github.com/coreloop/behavior-engine/internal/behavior"
	"github.com/coreloop/behavior-engine/internal/confidence"
	"github.com/coreloop/behavior-engine/internal/metrics"
)

// #endregion

// #region evaluator

// Evaluator applies the promotion decision tree to one cluster at a time.
// Checks run in a fixed order and short-circuit; that ordering is a contract
// callers rely on for test parity.
type Evaluator struct {
	cfg    Config
	scorer *confidence.Engine
}

// NewEvaluator wires the thresholds to a validated confidence engine.
func NewEvaluator(cfg Config, scorer *confidence.Engine) *Evaluator {
	return &Evaluator{cfg: cfg, scorer: scorer}
}

// #endregion

// #region evaluate

// Evaluate produces the terminal outcome for one cluster. Input contract
// violations reject just this cluster; the rest of the batch continues.
func (e *Evaluator) Evaluate(c behavior.Cluster, index map[string]behavior.Record) Outcome {
	members, err := resolveMembers(c, index)
	if err != nil {
		return Outcome{
			ClusterID: c.ID,
			Decision:  DecisionRejected,
			Reason:    ReasonInvalidCluster,
			Detail:    err.Error(),
			MemberIDs: c.MemberIDs,
		}
	}

	// 1. Evidence floor
	if c.Size() < e.cfg.MinClusterSize {
		return Outcome{
			ClusterID: c.ID,
			Decision:  DecisionRejected,
			Reason:    ReasonInsufficientEvidence,
			Detail:    fmt.Sprintf("cluster size %d below minimum %d", c.Size(), e.cfg.MinClusterSize),
			MemberIDs: c.MemberIDs,
		}
	}

	// 2. Credibility gate
	cred := metrics.WeightedCredibility(members)
	if cred < e.cfg.MinCredibility {
		return Outcome{
			ClusterID: c.ID,
			Decision:  DecisionRejected,
			Reason:    ReasonLowCredibility,
			Detail:    fmt.Sprintf("weighted credibility %.4f below %.2f", cred, e.cfg.MinCredibility),
			MemberIDs: c.MemberIDs,
		}
	}

	// 3. Stability gate — evidentially real but not yet stable: emerging,
	// not rejected.
	stability := metrics.TemporalStability(members)
	if stability < e.cfg.MinStability {
		return Outcome{
			ClusterID: c.ID,
			Decision:  DecisionEmerging,
			Reason:    ReasonLowStability,
			Detail:    fmt.Sprintf("temporal stability %.4f below %.2f", stability, e.cfg.MinStability),
			Stability: stability,
			MemberIDs: c.MemberIDs,
		}
	}

	// 4. Coherence gate
	if c.CoherenceScore < e.cfg.MinCoherence {
		return Outcome{
			ClusterID: c.ID,
			Decision:  DecisionRejected,
			Reason:    ReasonLowCoherence,
			Detail:    fmt.Sprintf("coherence %.4f below %.2f", c.CoherenceScore, e.cfg.MinCoherence),
			MemberIDs: c.MemberIDs,
		}
	}

	// 5. Final confidence threshold
	components := behavior.Components{
		Credibility:   cred,
		Stability:     stability,
		Coherence:     c.CoherenceScore,
		Reinforcement: metrics.ReinforcementDepth(members, e.cfg.ReinforcementSaturation),
	}
	score := e.scorer.Score(components)
	if score < e.cfg.PromotionThreshold {
		return Outcome{
			ClusterID: c.ID,
			Decision:  DecisionRejected,
			Reason:    ReasonBelowThreshold,
			Detail:    fmt.Sprintf("confidence %.4f below %.2f", score, e.cfg.PromotionThreshold),
			MemberIDs: c.MemberIDs,
		}
	}

	return Outcome{
		ClusterID:  c.ID,
		Decision:   DecisionPromoted,
		Confidence: score,
		Grade:      e.scorer.GradeFor(score, components),
		Components: components,
		Members:    members,
		MemberIDs:  c.MemberIDs,
	}
}

// #endregion

// #region evaluate-all

// EvaluateAll runs the decision tree over the batch, in input order.
// One bad cluster never aborts the rest.
func (e *Evaluator) EvaluateAll(clusters []behavior.Cluster, records []behavior.Record) ([]Outcome, Stats) {
	index := make(map[string]behavior.Record, len(records))
	for _, r := range records {
		index[r.ID] = r
	}

	outcomes := make([]Outcome, 0, len(clusters))
	stats := newStats()
	for _, c := range clusters {
		o := e.Evaluate(c, index)
		stats.record(o)
		outcomes = append(outcomes, o)
	}
	return outcomes, stats
}

// #endregion

// #region resolve-members

func resolveMembers(c behavior.Cluster, index map[string]behavior.Record) ([]behavior.Record, error) {
	if len(c.MemberIDs) == 0 {
		return nil, fmt.Errorf("cluster %s has no members", c.ID)
	}
	if math.IsNaN(c.CoherenceScore) || c.CoherenceScore < 0 || c.CoherenceScore > 1 {
		return nil, fmt.Errorf("cluster %s coherence %.4f outside [0,1]", c.ID, c.CoherenceScore)
	}

	members := make([]behavior.Record, 0, len(c.MemberIDs))
	for _, id := range c.MemberIDs {
		if id == "" {
			return nil, fmt.Errorf("cluster %s contains an empty member id", c.ID)
		}
		rec, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("cluster %s references unknown record %s", c.ID, id)
		}
		members = append(members, rec)
	}
	return members, nil
}

// #endregion
