package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextShortInput(t *testing.T) {
	assert.Equal(t, []string{"Residential Tenancies Act 2010"}, SplitText("  Residential Tenancies Act 2010 ", 100, 10))
	assert.Nil(t, SplitText("   ", 100, 10))
}

func TestSplitTextPrefersParagraphBreaks(t *testing.T) {
	first := strings.Repeat("a", 80)
	second := strings.Repeat("b", 80)

	chunks := SplitText(first+"\n\n"+second, 100, 0)

	require.Len(t, chunks, 2)
	assert.Equal(t, first, chunks[0])
	assert.Equal(t, second, chunks[1])
}

func TestSplitTextKeepsWordsWhole(t *testing.T) {
	text := strings.Repeat("landlord ", 40)

	for _, c := range SplitText(text, 50, 10) {
		for _, w := range strings.Fields(c) {
			assert.Equal(t, "landlord", w)
		}
		assert.LessOrEqual(t, len([]rune(c)), 50)
	}
}

func TestSplitTextOverlapCoversEverything(t *testing.T) {
	text := strings.Repeat("x", 250)

	chunks := SplitText(text, 100, 20)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 90)
}
