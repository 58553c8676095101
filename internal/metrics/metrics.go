package metrics

// #region imports
import (
	"math"
	"sort"

	"github.com/coreloop/behavior-engine/internal/behavior"
)

// #endregion

// #region constants

// DefaultReinforcementSaturation is the total reinforcement count at which a
// cluster is considered fully reinforced. Tunable via promotion config.
const DefaultReinforcementSaturation = 20.0

// #endregion

// #region weighted-credibility

// WeightedCredibility aggregates member credibility weighted by reinforcement
// count. Zero total reinforcement falls back to an unweighted mean. Total
// function: empty input returns 0.
func WeightedCredibility(members []behavior.Record) float64 {
	if len(members) == 0 {
		return 0.0
	}

	var weightedSum, totalWeight float64
	for _, m := range members {
		weightedSum += m.Credibility * float64(m.ReinforcementCount)
		totalWeight += float64(m.ReinforcementCount)
	}
	if totalWeight > 0 {
		return weightedSum / totalWeight
	}

	var sum float64
	for _, m := range members {
		sum += m.Credibility
	}
	return sum / float64(len(members))
}

// #endregion

// #region temporal-stability

// TemporalStability scores the regularity of member last-seen timestamps:
// 1 - std(gaps)/mean(gaps), clamped to [0, 1]. Fewer than 2 members, or all
// members seen simultaneously, returns exactly 0 — no evidence of stability.
func TemporalStability(members []behavior.Record) float64 {
	if len(members) < 2 {
		return 0.0
	}

	times := make([]float64, len(members))
	for i, m := range members {
		times[i] = float64(m.LastSeen.UnixNano()) / 1e9
	}
	sort.Float64s(times)

	gaps := make([]float64, len(times)-1)
	var sum float64
	for i := 1; i < len(times); i++ {
		gaps[i-1] = times[i] - times[i-1]
		sum += gaps[i-1]
	}

	mean := sum / float64(len(gaps))
	if mean == 0 {
		return 0.0
	}

	var sumSq float64
	for _, g := range gaps {
		d := g - mean
		sumSq += d * d
	}
	std := math.Sqrt(sumSq / float64(len(gaps)))

	return clamp01(1.0 - std/mean)
}

// #endregion

// #region reinforcement-depth

// ReinforcementDepth scales total reinforcement logarithmically, saturating
// at 1.0 once the total reaches the saturation constant. Zero total yields 0.
func ReinforcementDepth(members []behavior.Record, saturation float64) float64 {
	if saturation <= 1 {
		saturation = DefaultReinforcementSaturation
	}

	var total float64
	for _, m := range members {
		total += float64(m.ReinforcementCount)
	}
	if total <= 0 {
		return 0.0
	}

	return math.Min(1.0, math.Log(1.0+total)/math.Log(saturation))
}

// #endregion

// #region helpers

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MeanClarity and MeanReinforcement summarize a member set for fallback
// label templating.
func MeanClarity(members []behavior.Record) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, m := range members {
		sum += m.ClarityScore
	}
	return sum / float64(len(members))
}

func MeanReinforcement(members []behavior.Record) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, m := range members {
		sum += float64(m.ReinforcementCount)
	}
	return sum / float64(len(members))
}

// #endregion
