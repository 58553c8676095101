package confidence

// #region imports
import (
	"fmt"
	"math"

	"github.com/coreloop/behavior-engine/internal/behavior"
)

// #endregion

// #region weights

// Weights holds the four component coefficients. They must sum to exactly
// 1.0; NewEngine enforces this once so scoring never has to.
type Weights struct {
	Credibility   float64 `yaml:"credibility" json:"credibility"`
	Stability     float64 `yaml:"stability" json:"stability"`
	Coherence     float64 `yaml:"coherence" json:"coherence"`
	Reinforcement float64 `yaml:"reinforcement" json:"reinforcement"`
}

// DefaultWeights returns the canonical coefficients.
func DefaultWeights() Weights {
	return Weights{
		Credibility:   0.35,
		Stability:     0.25,
		Coherence:     0.25,
		Reinforcement: 0.15,
	}
}

// Sum returns the coefficient total.
func (w Weights) Sum() float64 {
	return w.Credibility + w.Stability + w.Coherence + w.Reinforcement
}

// #endregion

// #region grade-thresholds

// Grade gating is harmonic-style: the floor applies to every component, so
// one strong component cannot mask a structurally weak one.
const (
	highScoreMin     = 0.75
	highComponentMin = 0.65
	medScoreMin      = 0.55
	medComponentMin  = 0.45
)

// #endregion

// #region engine

// Engine combines weighted components into a final score and grade.
type Engine struct {
	weights Weights
}

// NewEngine validates the weight-sum invariant and returns a scorer.
// A violation is a configuration error, fatal at startup, never at runtime.
func NewEngine(w Weights) (*Engine, error) {
	for name, v := range map[string]float64{
		"credibility":   w.Credibility,
		"stability":     w.Stability,
		"coherence":     w.Coherence,
		"reinforcement": w.Reinforcement,
	} {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("confidence weight %s=%.4f outside [0,1]", name, v)
		}
	}
	if math.Abs(w.Sum()-1.0) > 1e-9 {
		return nil, fmt.Errorf("confidence weights sum to %.6f, want 1.0", w.Sum())
	}
	return &Engine{weights: w}, nil
}

// Score combines the component breakdown into the final confidence value.
func (e *Engine) Score(c behavior.Components) float64 {
	return e.weights.Credibility*c.Credibility +
		e.weights.Stability*c.Stability +
		e.weights.Coherence*c.Coherence +
		e.weights.Reinforcement*c.Reinforcement
}

// GradeFor assigns High/Medium/Low. Computed only for promoted behaviors.
func (e *Engine) GradeFor(score float64, c behavior.Components) behavior.Grade {
	switch {
	case score >= highScoreMin && c.Min() >= highComponentMin:
		return behavior.GradeHigh
	case score >= medScoreMin && c.Min() >= medComponentMin:
		return behavior.GradeMedium
	default:
		return behavior.GradeLow
	}
}

// #endregion
