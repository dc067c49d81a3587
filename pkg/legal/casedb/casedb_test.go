package casedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoads(t *testing.T) {
	db := Default()
	assert.Equal(t, 17, db.Len())
	assert.Len(t, db.ByArea("tenancy"), 5)
}

func TestBySubCategory(t *testing.T) {
	got := Default().BySubCategory("tenancy", "retaliatory_eviction")
	require.Len(t, got, 1)
	assert.Equal(t, "Commissioner for Fair Trading v Rixon", got[0].CaseName)
	assert.Empty(t, Default().BySubCategory("employment", "retaliatory_eviction"))
}

func TestSearchKeywordsRanksByMatches(t *testing.T) {
	got := Default().SearchKeywords([]string{"bond", "cleaning", "carpet"}, "tenancy")
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, "Shields v Westpac Banking Corp", got[0].CaseName)
	for _, c := range got {
		assert.Equal(t, "tenancy", c.LegalArea)
	}
}

func TestByName(t *testing.T) {
	c, ok := Default().ByName("rice v asplund")
	require.True(t, ok)
	assert.Equal(t, "family", c.LegalArea)

	_, ok = Default().ByName("Nobody v Nothing")
	assert.False(t, ok)
}
