package lifecycle

// #region imports
import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/coreloop/behavior-engine/internal/behavior"
	"github.com/coreloop/behavior-engine/internal/promotion"
)

// #endregion

// #region config

// Config holds identity-matching and status thresholds.
type Config struct {
	// MatchThreshold is the fraction of a previous behavior's founding
	// evidence that must reappear in a cluster for the cluster to inherit
	// that behavior's identity.
	MatchThreshold float64 `yaml:"match_threshold"`
	// ActiveMin and DegradingMin partition support ratio into statuses:
	// >= ActiveMin active, >= DegradingMin degrading, > 0 historical,
	// 0 retired.
	ActiveMin    float64 `yaml:"active_min"`
	DegradingMin float64 `yaml:"degrading_min"`
}

// DefaultConfig returns the canonical thresholds.
func DefaultConfig() Config {
	return Config{
		MatchThreshold: 0.5,
		ActiveMin:      0.5,
		DegradingMin:   0.3,
	}
}

// #endregion

// #region behavior-id

// BehaviorID derives the stable identifier for a founding evidence set.
// Deterministic: same subject and member set always hash to the same id.
// Computed once at first promotion and stored, never regenerated, so the
// pattern keeps its id as membership drifts.
func BehaviorID(subjectID string, memberIDs []string) string {
	sorted := append([]string(nil), memberIDs...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(subjectID))
	for _, id := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return "cb_" + hex.EncodeToString(h.Sum(nil))[:16]
}

// #endregion

// #region result

// Result splits this run's behavior set by provenance. Promoted behaviors
// were derived from a cluster this run; Carried behaviors come forward from
// the previous snapshot with a recomputed support ratio and status.
type Result struct {
	Promoted []behavior.CoreBehavior
	Carried  []behavior.CoreBehavior
}

// All returns the full set, promoted first, carried sorted by id.
func (r Result) All() []behavior.CoreBehavior {
	all := append([]behavior.CoreBehavior{}, r.Promoted...)
	carried := append([]behavior.CoreBehavior{}, r.Carried...)
	sort.Slice(carried, func(i, j int) bool { return carried[i].ID < carried[j].ID })
	return append(all, carried...)
}

// #endregion

// #region manager

// Manager assigns identity, version, support ratio, and status.
type Manager struct {
	cfg Config
}

// NewManager creates a lifecycle manager.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Apply resolves each promoted outcome against the previous snapshot.
// A matched behavior keeps its id, founding chain, and created_at, and its
// version increments by one. An unmatched outcome founds a new behavior at
// version 1. Previous behaviors not re-promoted are carried forward, never
// deleted; their status degrades toward retired as their founding evidence
// vanishes from the current record set, which leaves the door open for
// reemergence.
func (m *Manager) Apply(
	subjectID string,
	promoted []promotion.Outcome,
	prev *behavior.Snapshot,
	currentRecordIDs map[string]bool,
	now time.Time,
) Result {
	claimed := make(map[string]bool)
	var out Result

	for _, o := range promoted {
		memberSet := make(map[string]bool, len(o.MemberIDs))
		for _, id := range o.MemberIDs {
			memberSet[id] = true
		}

		match := m.bestMatch(prev, memberSet, claimed)

		cb := behavior.CoreBehavior{
			Confidence:    o.Confidence,
			Grade:         o.Grade,
			Components:    o.Components,
			EvidenceChain: append([]string(nil), o.MemberIDs...),
			LastUpdated:   now,
		}

		if match != nil {
			claimed[match.ID] = true
			cb.ID = match.ID
			cb.Statement = match.Statement
			cb.FoundingChain = append([]string(nil), match.FoundingChain...)
			cb.Version = match.Version + 1
			cb.CreatedAt = match.CreatedAt
		} else {
			cb.ID = BehaviorID(subjectID, o.MemberIDs)
			cb.FoundingChain = append([]string(nil), o.MemberIDs...)
			cb.Version = 1
			cb.CreatedAt = now
		}

		cb.SupportRatio = supportRatio(cb.FoundingChain, memberSet)
		cb.Status = m.statusFor(cb.SupportRatio)
		out.Promoted = append(out.Promoted, cb)
	}

	if prev != nil {
		for _, old := range prev.Behaviors {
			if claimed[old.ID] {
				continue
			}
			cb := old
			cb.EvidenceChain = append([]string(nil), old.EvidenceChain...)
			cb.FoundingChain = append([]string(nil), old.FoundingChain...)
			cb.SupportRatio = supportRatio(cb.FoundingChain, currentRecordIDs)
			cb.Status = m.statusFor(cb.SupportRatio)
			out.Carried = append(out.Carried, cb)
		}
	}

	return out
}

// #endregion

// #region matching

// bestMatch finds the unclaimed previous behavior with the highest founding
// overlap at or above the match threshold. Ties break toward the smaller id
// so resolution stays deterministic.
func (m *Manager) bestMatch(prev *behavior.Snapshot, memberSet map[string]bool, claimed map[string]bool) *behavior.CoreBehavior {
	if prev == nil {
		return nil
	}

	var best *behavior.CoreBehavior
	var bestOverlap float64
	for i := range prev.Behaviors {
		cand := &prev.Behaviors[i]
		if claimed[cand.ID] {
			continue
		}
		overlap := supportRatio(cand.FoundingChain, memberSet)
		if overlap < m.cfg.MatchThreshold {
			continue
		}
		if best == nil || overlap > bestOverlap || (overlap == bestOverlap && cand.ID < best.ID) {
			best = cand
			bestOverlap = overlap
		}
	}
	return best
}

// #endregion

// #region support-ratio

// supportRatio is the fraction of the founding evidence still present.
// Empty founding chains yield 0, never a division error.
func supportRatio(founding []string, present map[string]bool) float64 {
	if len(founding) == 0 {
		return 0.0
	}
	var hits int
	for _, id := range founding {
		if present[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(founding))
}

func (m *Manager) statusFor(ratio float64) behavior.Status {
	switch {
	case ratio >= m.cfg.ActiveMin:
		return behavior.StatusActive
	case ratio >= m.cfg.DegradingMin:
		return behavior.StatusDegrading
	case ratio > 0:
		return behavior.StatusHistorical
	default:
		return behavior.StatusRetired
	}
}

// #endregion
