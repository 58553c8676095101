package config

// #region imports
import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coreloop/behavior-engine/internal/confidence"
	"github.com/coreloop/behavior-engine/internal/lifecycle"
	"github.com/coreloop/behavior-engine/internal/promotion"
)

// #endregion

// #region config

// Config bundles every tunable the engine accepts. Invalid values are
// configuration errors: they fail here, at load, never per cluster.
type Config struct {
	Promotion promotion.Config   `yaml:"promotion"`
	Weights   confidence.Weights `yaml:"weights"`
	Lifecycle lifecycle.Config   `yaml:"lifecycle"`
	Label     LabelConfig        `yaml:"label"`
}

// LabelConfig configures the optional statement-generation collaborator.
type LabelConfig struct {
	Model           string `yaml:"model"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// Default returns the canonical configuration.
func Default() Config {
	return Config{
		Promotion: promotion.DefaultConfig(),
		Weights:   confidence.DefaultWeights(),
		Lifecycle: lifecycle.DefaultConfig(),
		Label: LabelConfig{
			Model:           "gpt-4o-mini",
			TimeoutSeconds:  10,
			CacheTTLSeconds: 7 * 24 * 3600,
		},
	}
}

// #endregion

// #region load

// Load overlays a YAML file onto the defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// #endregion

// #region validate

// Validate enforces the startup invariants.
func (c Config) Validate() error {
	if _, err := confidence.NewEngine(c.Weights); err != nil {
		return err
	}

	if c.Promotion.MinClusterSize < 1 {
		return fmt.Errorf("min_cluster_size %d must be at least 1", c.Promotion.MinClusterSize)
	}
	for name, v := range map[string]float64{
		"min_credibility":     c.Promotion.MinCredibility,
		"min_stability":       c.Promotion.MinStability,
		"min_coherence":       c.Promotion.MinCoherence,
		"promotion_threshold": c.Promotion.PromotionThreshold,
		"match_threshold":     c.Lifecycle.MatchThreshold,
		"active_min":          c.Lifecycle.ActiveMin,
		"degrading_min":       c.Lifecycle.DegradingMin,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s=%.4f outside [0,1]", name, v)
		}
	}
	if c.Promotion.ReinforcementSaturation <= 1 {
		return fmt.Errorf("reinforcement_saturation %.2f must exceed 1", c.Promotion.ReinforcementSaturation)
	}
	if c.Lifecycle.DegradingMin > c.Lifecycle.ActiveMin {
		return fmt.Errorf("degrading_min %.2f exceeds active_min %.2f", c.Lifecycle.DegradingMin, c.Lifecycle.ActiveMin)
	}
	return nil
}

// #endregion
