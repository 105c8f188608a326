package fusion

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights holds the per-source vote weights for both fusion modes.
// Primary mode is used when the momentum prediction clears ConfidenceFloor;
// fallback mode votes on the raw force reading instead.
type Weights struct {
	Prediction float64 `yaml:"prediction"`
	FearGreed  float64 `yaml:"fear_greed"`
	Social     float64 `yaml:"social"`
	Options    float64 `yaml:"options"` // BTC/ETH only
	OnChain    float64 `yaml:"on_chain"`

	FallbackForce     float64 `yaml:"fallback_force"`
	FallbackFearGreed float64 `yaml:"fallback_fear_greed"`
	FallbackSocial    float64 `yaml:"fallback_social"`
	FallbackOnChain   float64 `yaml:"fallback_on_chain"`

	// ConfidenceFloor is the minimum predictor confidence for primary mode.
	ConfidenceFloor float64 `yaml:"confidence_floor"`
}

// DefaultWeights returns the tuned reference weights.
func DefaultWeights() Weights {
	return Weights{
		Prediction: 0.30,
		FearGreed:  0.20,
		Social:     0.20,
		Options:    0.15,
		OnChain:    0.15,

		FallbackForce:     0.35,
		FallbackFearGreed: 0.20,
		FallbackSocial:    0.25,
		FallbackOnChain:   0.20,

		ConfidenceFloor: 60,
	}
}

// LoadWeights reads weights from a YAML file, filling any zero field from
// the defaults so a partial file only overrides what it names.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("weights: read %s: %w", path, err)
	}
	var file Weights
	if err := yaml.Unmarshal(data, &file); err != nil {
		return w, fmt.Errorf("weights: parse %s: %w", path, err)
	}
	merge := func(dst *float64, v float64) {
		if v > 0 {
			*dst = v
		}
	}
	merge(&w.Prediction, file.Prediction)
	merge(&w.FearGreed, file.FearGreed)
	merge(&w.Social, file.Social)
	merge(&w.Options, file.Options)
	merge(&w.OnChain, file.OnChain)
	merge(&w.FallbackForce, file.FallbackForce)
	merge(&w.FallbackFearGreed, file.FallbackFearGreed)
	merge(&w.FallbackSocial, file.FallbackSocial)
	merge(&w.FallbackOnChain, file.FallbackOnChain)
	merge(&w.ConfidenceFloor, file.ConfidenceFloor)
	return w, nil
}
