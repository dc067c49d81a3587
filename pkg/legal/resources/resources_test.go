package resources

import (
	"testing"

	"legal-assistant-be/pkg/legal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(rs []state.Resource) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name)
	}
	return out
}

func TestFamilyViolenceNationalFirst(t *testing.T) {
	got := Default().For(state.RiskFamilyViolence, "NSW")
	require.NotEmpty(t, got)
	assert.Equal(t, "1800RESPECT", got[0].Name)
	assert.Equal(t, "1800 737 732", got[0].Phone)
	assert.Contains(t, names(got), "NSW Domestic Violence Line")
}

func TestDeduplicatedByName(t *testing.T) {
	got := Default().For(state.RiskUrgentDeadline, "NSW")
	assert.Equal(t, []string{"LawAccess NSW"}, names(got))
}

func TestUnknownStateFallsBackToNational(t *testing.T) {
	got := Default().For(state.RiskSuicide, "")
	assert.Equal(t, []string{"Lifeline", "Beyond Blue", "Kids Helpline"}, names(got))
}

func TestParseRejectsUnknownCategory(t *testing.T) {
	_, err := Parse([]byte("national:\n  hauntings:\n    - name: x\n"))
	assert.Error(t, err)
}
