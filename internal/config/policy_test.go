package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"legal-assistant-be/pkg/legal/router"
	"legal-assistant-be/pkg/legal/stage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPolicyDefaultsWithoutFile(t *testing.T) {
	p, err := LoadPolicy("")

	require.NoError(t, err)
	assert.Equal(t, router.DefaultThresholds(), p.Complexity)
	assert.Equal(t, router.DefaultReadinessThreshold, p.ReadinessThreshold)
	assert.Equal(t, stage.DefaultMaxIntakeQuestions, p.MaxIntakeQuestions)
}

func TestLoadPolicyOverridesOnlyGivenKeys(t *testing.T) {
	path := writePolicy(t, `
readiness_threshold: 0.8
stage_timeout: 45s
max_intake_questions: 3
complexity:
  score_threshold: 0.5
  extra_complex_indicators:
    - ncat
models:
  legal_elements: claude-sonnet-4-5
`)

	p, err := LoadPolicy(path)

	require.NoError(t, err)
	assert.Equal(t, 0.8, p.ReadinessThreshold)
	assert.Equal(t, 45*time.Second, p.StageTimeout)
	assert.Equal(t, 3, p.MaxIntakeQuestions)
	assert.Equal(t, 0.5, p.Complexity.ScoreThreshold)
	assert.Equal(t, 250, p.Complexity.MaxQueryLength)
	assert.Equal(t, []string{"ncat"}, p.Complexity.ExtraComplexIndicators)
	assert.Equal(t, "claude-sonnet-4-5", p.Models["legal_elements"])
}

func TestLoadPolicyRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"readiness above one", "readiness_threshold: 1.5\n"},
		{"negative timeout", "stage_timeout: -1s\n"},
		{"no intake questions", "max_intake_questions: 0\n"},
		{"malformed yaml", "complexity: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPolicy(writePolicy(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadPolicyMissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
