package behavior

import "time"

// #region record

// Record is a single evidence-backed observation about a subject.
// Produced upstream; the engine never mutates it.
type Record struct {
	ID                 string    `json:"behavior_id"`
	Text               string    `json:"text,omitempty"`
	Credibility        float64   `json:"credibility"`
	ReinforcementCount int       `json:"reinforcement_count"`
	LastSeen           time.Time `json:"last_seen"`
	ClarityScore       float64   `json:"clarity_score"`
}

// #endregion

// #region cluster

// Cluster is one semantically grouped candidate, produced by the external
// clustering stage. CoherenceScore is supplied, not computed here.
type Cluster struct {
	ID             string   `json:"cluster_id"`
	MemberIDs      []string `json:"member_ids"`
	CoherenceScore float64  `json:"coherence_score"`
}

// Size returns the member count.
func (c Cluster) Size() int { return len(c.MemberIDs) }

// #endregion

// #region grade

// Grade is the coarse interpretation of a confidence score.
type Grade string

const (
	GradeHigh   Grade = "high"
	GradeMedium Grade = "medium"
	GradeLow    Grade = "low"
)

// #endregion

// #region status

// Status tracks a core behavior across runs based on its support ratio.
type Status string

const (
	StatusActive     Status = "active"
	StatusDegrading  Status = "degrading"
	StatusHistorical Status = "historical"
	StatusRetired    Status = "retired"
)

// #endregion

// #region components

// Components is the per-factor breakdown behind a confidence score.
type Components struct {
	Credibility   float64 `json:"credibility"`
	Stability     float64 `json:"stability"`
	Coherence     float64 `json:"coherence"`
	Reinforcement float64 `json:"reinforcement"`
}

// Min returns the smallest component, used for grade gating.
func (c Components) Min() float64 {
	m := c.Credibility
	for _, v := range []float64{c.Stability, c.Coherence, c.Reinforcement} {
		if v < m {
			m = v
		}
	}
	return m
}

// #endregion

// #region core-behavior

// CoreBehavior is a promoted, durable pattern derived from a cluster.
// The engine owns every field except Statement, which belongs to the
// label-generation collaborator.
type CoreBehavior struct {
	ID            string     `json:"behavior_id"`
	Statement     string     `json:"statement"`
	Confidence    float64    `json:"confidence_score"`
	Grade         Grade      `json:"confidence_grade"`
	Components    Components `json:"confidence_components"`
	EvidenceChain []string   `json:"evidence_chain"`
	FoundingChain []string   `json:"founding_evidence"`
	Version       int        `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUpdated   time.Time  `json:"last_updated"`
	Status        Status     `json:"status"`
	SupportRatio  float64    `json:"support_ratio"`
}

// #endregion

// #region snapshot

// Snapshot is the persisted output of one completed run, used by the next
// run for versioning and change detection.
type Snapshot struct {
	SnapshotID string         `json:"snapshot_id"`
	SubjectID  string         `json:"subject_id"`
	RunAt      time.Time      `json:"run_at"`
	Behaviors  []CoreBehavior `json:"behaviors"`
}

// Find returns the behavior with the given id, or nil.
func (s *Snapshot) Find(id string) *CoreBehavior {
	if s == nil {
		return nil
	}
	for i := range s.Behaviors {
		if s.Behaviors[i].ID == id {
			return &s.Behaviors[i]
		}
	}
	return nil
}

// EvidenceUnion returns the set of record ids referenced by any evidence chain.
func (s *Snapshot) EvidenceUnion() map[string]bool {
	union := make(map[string]bool)
	if s == nil {
		return union
	}
	for _, cb := range s.Behaviors {
		for _, id := range cb.EvidenceChain {
			union[id] = true
		}
	}
	return union
}

// #endregion
