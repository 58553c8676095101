package promotion

// #region imports
import (
	"github.com/coreloop/behavior-engine/internal/behavior"
	"github.com/coreloop/behavior-engine/internal/metrics"
)

// #endregion

// #region decision

// Decision is the terminal outcome kind for one cluster.
type Decision string

const (
	DecisionPromoted Decision = "promoted"
	DecisionRejected Decision = "rejected"
	DecisionEmerging Decision = "emerging"
)

// #endregion

// #region reject-reason

// Reason categorizes why a cluster was not promoted. Checks short-circuit,
// so each cluster carries exactly one reason.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonInvalidCluster       Reason = "invalid_cluster"
	ReasonInsufficientEvidence Reason = "insufficient_evidence"
	ReasonLowCredibility       Reason = "low_credibility"
	ReasonLowStability         Reason = "low_stability" // emerging, not rejected
	ReasonLowCoherence         Reason = "low_coherence"
	ReasonBelowThreshold       Reason = "below_promotion_threshold"
)

// #endregion

// #region outcome

// Outcome is the transient per-cluster result. Only promoted outcomes go on
// to become core behaviors.
type Outcome struct {
	ClusterID  string
	Decision   Decision
	Reason     Reason // set for rejected and emerging
	Detail     string
	Confidence float64              // promoted only
	Grade      behavior.Grade       // promoted only
	Components behavior.Components  // promoted only
	Stability  float64              // emerging only
	Members    []behavior.Record    // resolved members, promotion order preserved
	MemberIDs  []string
}

// #endregion

// #region config

// Config holds the promotion decision thresholds.
type Config struct {
	MinClusterSize          int     `yaml:"min_cluster_size"`
	MinCredibility          float64 `yaml:"min_credibility"`
	MinStability            float64 `yaml:"min_stability"`
	MinCoherence            float64 `yaml:"min_coherence"`
	PromotionThreshold      float64 `yaml:"promotion_threshold"`
	ReinforcementSaturation float64 `yaml:"reinforcement_saturation"`
}

// DefaultConfig returns the canonical thresholds.
func DefaultConfig() Config {
	return Config{
		MinClusterSize:          3,
		MinCredibility:          0.65,
		MinStability:            0.50,
		MinCoherence:            0.70,
		PromotionThreshold:      0.70,
		ReinforcementSaturation: metrics.DefaultReinforcementSaturation,
	}
}

// #endregion

// #region stats

// Stats counts outcomes for one run. Observability only, never control flow.
type Stats struct {
	Evaluated        int            `json:"clusters_evaluated"`
	Promoted         int            `json:"promoted"`
	Emerging         int            `json:"emerging"`
	Rejected         int            `json:"rejected"`
	RejectionReasons map[string]int `json:"rejection_reasons"`
}

func newStats() Stats {
	return Stats{RejectionReasons: make(map[string]int)}
}

func (s *Stats) record(o Outcome) {
	s.Evaluated++
	switch o.Decision {
	case DecisionPromoted:
		s.Promoted++
	case DecisionEmerging:
		s.Emerging++
	case DecisionRejected:
		s.Rejected++
		s.RejectionReasons[string(o.Reason)]++
	}
}

// #endregion
