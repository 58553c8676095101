package changes

// #region imports
import (
	"fmt"
	"math"
	"sort"

	"github.com/coreloop/behavior-engine/internal/behavior"
)

// #endregion

// #region change-type

// ChangeType classifies how a behavior moved between two runs.
type ChangeType string

const (
	ChangeNew          ChangeType = "new"
	ChangeRetired      ChangeType = "retired"
	ChangeStrengthened ChangeType = "strengthened"
	ChangeWeakened     ChangeType = "weakened"
	ChangeMinorUpdate  ChangeType = "minor_update"
	ChangeStable       ChangeType = "stable"
)

// Magnitude bands on the confidence delta. Strengthened/weakened need a
// move past 0.20 in either direction; the 0.20 boundary itself counts as a
// minor update.
const (
	majorDelta = 0.20
	minorDelta = 0.10
)

// #endregion

// #region entry

// Entry quantifies one classified change with the numbers behind it.
type Entry struct {
	BehaviorID         string  `json:"behavior_id"`
	PreviousConfidence float64 `json:"previous_confidence"`
	CurrentConfidence  float64 `json:"current_confidence"`
	Delta              float64 `json:"delta"`
	EvidenceAdded      int     `json:"evidence_added"`
	EvidenceRemoved    int     `json:"evidence_removed"`
	Explanation        string  `json:"explanation"`
}

// Report is the full structured diff between two runs.
type Report struct {
	New          []string `json:"new"`
	Retired      []string `json:"retired"`
	Strengthened []Entry  `json:"strengthened"`
	Weakened     []Entry  `json:"weakened"`
	MinorUpdate  []Entry  `json:"minor_update"`
	Stable       []Entry  `json:"stable"`
}

// Total returns the number of classified behaviors.
func (r Report) Total() int {
	return len(r.New) + len(r.Retired) + len(r.Strengthened) +
		len(r.Weakened) + len(r.MinorUpdate) + len(r.Stable)
}

// #endregion

// #region detect

// Detect diffs the previous snapshot against the behaviors promoted this
// run. A nil snapshot is the first run: everything is new and nothing else
// is computed.
func Detect(prev *behavior.Snapshot, current []behavior.CoreBehavior) Report {
	var report Report

	if prev == nil {
		for _, cb := range current {
			report.New = append(report.New, cb.ID)
		}
		return report
	}

	currentByID := make(map[string]behavior.CoreBehavior, len(current))
	for _, cb := range current {
		currentByID[cb.ID] = cb
	}

	for _, cb := range current {
		old := prev.Find(cb.ID)
		if old == nil {
			report.New = append(report.New, cb.ID)
			continue
		}
		entry := classify(*old, cb)
		switch kindFor(entry.Delta) {
		case ChangeStrengthened:
			report.Strengthened = append(report.Strengthened, entry)
		case ChangeWeakened:
			report.Weakened = append(report.Weakened, entry)
		case ChangeMinorUpdate:
			report.MinorUpdate = append(report.MinorUpdate, entry)
		default:
			report.Stable = append(report.Stable, entry)
		}
	}

	for _, old := range prev.Behaviors {
		if _, ok := currentByID[old.ID]; !ok {
			report.Retired = append(report.Retired, old.ID)
		}
	}
	sort.Strings(report.Retired)

	return report
}

// #endregion

// #region classify

func kindFor(delta float64) ChangeType {
	switch {
	case delta > majorDelta:
		return ChangeStrengthened
	case delta < -majorDelta:
		return ChangeWeakened
	case math.Abs(delta) >= minorDelta:
		return ChangeMinorUpdate
	default:
		return ChangeStable
	}
}

func classify(old, cur behavior.CoreBehavior) Entry {
	delta := cur.Confidence - old.Confidence
	added, removed := evidenceDiff(old.EvidenceChain, cur.EvidenceChain)

	return Entry{
		BehaviorID:         cur.ID,
		PreviousConfidence: old.Confidence,
		CurrentConfidence:  cur.Confidence,
		Delta:              delta,
		EvidenceAdded:      added,
		EvidenceRemoved:    removed,
		Explanation:        explain(kindFor(delta), old.Confidence, cur.Confidence, delta, added, removed),
	}
}

func evidenceDiff(old, cur []string) (added, removed int) {
	oldSet := make(map[string]bool, len(old))
	for _, id := range old {
		oldSet[id] = true
	}
	curSet := make(map[string]bool, len(cur))
	for _, id := range cur {
		curSet[id] = true
		if !oldSet[id] {
			added++
		}
	}
	for _, id := range old {
		if !curSet[id] {
			removed++
		}
	}
	return added, removed
}

// explain builds the one-line explanation from the numeric facts.
// Deterministic string templating only, never free-form generation.
func explain(kind ChangeType, prevConf, curConf, delta float64, added, removed int) string {
	evidence := fmt.Sprintf("%d evidence item(s) added, %d removed", added, removed)
	switch kind {
	case ChangeStrengthened:
		return fmt.Sprintf("confidence rose from %.2f to %.2f (+%.2f); %s", prevConf, curConf, delta, evidence)
	case ChangeWeakened:
		return fmt.Sprintf("confidence fell from %.2f to %.2f (%.2f); %s", prevConf, curConf, delta, evidence)
	case ChangeMinorUpdate:
		return fmt.Sprintf("confidence shifted from %.2f to %.2f (%+.2f); %s", prevConf, curConf, delta, evidence)
	default:
		return fmt.Sprintf("confidence held near %.2f (%+.2f); %s", curConf, delta, evidence)
	}
}

// #endregion
