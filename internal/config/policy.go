package config

import (
	"fmt"
	"time"

	"legal-assistant-be/pkg/legal/router"
	"legal-assistant-be/pkg/legal/stage"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Policy holds the routing knobs an operator may tune without a rebuild.
type Policy struct {
	Complexity         router.Thresholds `koanf:"complexity"`
	ReadinessThreshold float64           `koanf:"readiness_threshold"`
	StageTimeout       time.Duration     `koanf:"stage_timeout"`
	MaxSteps           int               `koanf:"max_steps"`
	MaxIntakeQuestions int               `koanf:"max_intake_questions"`
	// Models overrides the model per stage name.
	Models map[string]string `koanf:"models"`
}

// DefaultPolicy is what runs when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{
		Complexity:         router.DefaultThresholds(),
		ReadinessThreshold: router.DefaultReadinessThreshold,
		MaxIntakeQuestions: stage.DefaultMaxIntakeQuestions,
	}
}

// LoadPolicy reads a YAML policy file. Keys missing from the file keep their
// defaults; an empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return p, fmt.Errorf("failed to load policy from %q: %w", path, err)
	}
	if err := k.Unmarshal("", &p); err != nil {
		return p, fmt.Errorf("failed to parse policy from %q: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid policy %q: %w", path, err)
	}
	return p, nil
}

func (p Policy) Validate() error {
	if p.ReadinessThreshold < 0 || p.ReadinessThreshold > 1 {
		return fmt.Errorf("readiness_threshold %v outside [0,1]", p.ReadinessThreshold)
	}
	if p.Complexity.ScoreThreshold < 0 || p.Complexity.ScoreThreshold > 1 {
		return fmt.Errorf("complexity.score_threshold %v outside [0,1]", p.Complexity.ScoreThreshold)
	}
	if p.StageTimeout < 0 {
		return fmt.Errorf("stage_timeout must not be negative")
	}
	if p.MaxIntakeQuestions < 1 || p.MaxIntakeQuestions > 20 {
		return fmt.Errorf("max_intake_questions %d outside [1,20]", p.MaxIntakeQuestions)
	}
	return nil
}
