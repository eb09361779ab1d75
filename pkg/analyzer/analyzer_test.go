package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moecapital/refinery/pkg/models"
)

func item(id, source, text string) *models.ContentItem {
	return &models.ContentItem{ID: id, SourceID: source, RawText: text}
}

func TestBatchText(t *testing.T) {
	items := []*models.ContentItem{
		item("aaa", "s1", "first text"),
		item("bbb", "s1", "second text"),
	}
	assert.Equal(t,
		"[ID: aaa] first text\n---\n[ID: bbb] second text",
		BatchText(items))

	assert.Empty(t, BatchText(nil))
}

func TestGroupBySource(t *testing.T) {
	items := []*models.ContentItem{
		item("1", "zeta", "a"),
		item("2", "alpha", "b"),
		item("3", "zeta", "c"),
		item("4", "alpha", "d"),
	}
	groups := groupBySource(items)
	require.Len(t, groups, 2)

	// Sorted by source id; created order preserved within a group.
	assert.Equal(t, "alpha", groups[0][0].SourceID)
	assert.Equal(t, []string{"2", "4"}, []string{groups[0][0].ID, groups[0][1].ID})
	assert.Equal(t, "zeta", groups[1][0].SourceID)
	assert.Equal(t, []string{"1", "3"}, []string{groups[1][0].ID, groups[1][1].ID})
}

func TestCanonicalTickers(t *testing.T) {
	assert.Equal(t, []string{"SPY", "TLT"}, canonicalTickers([]string{"spy", " tlt "}))
	assert.Equal(t, []string{"SPY"}, canonicalTickers([]string{"SPY", "spy", ""}))
	assert.Nil(t, canonicalTickers(nil))
	assert.Nil(t, canonicalTickers([]string{" ", ""}))
}

func TestResolveSourceIDs(t *testing.T) {
	group := []*models.ContentItem{item("aaa", "s", "x"), item("bbb", "s", "y")}
	byID := map[string]*models.ContentItem{"aaa": group[0], "bbb": group[1]}

	t.Run("plain ids", func(t *testing.T) {
		assert.Equal(t, []string{"aaa"}, resolveSourceIDs([]string{"aaa"}, byID, group))
	})

	t.Run("decorated ids tolerated", func(t *testing.T) {
		assert.Equal(t, []string{"aaa", "bbb"},
			resolveSourceIDs([]string{"[ID: aaa]", " bbb "}, byID, group))
	})

	t.Run("unknown ids dropped", func(t *testing.T) {
		assert.Equal(t, []string{"bbb"},
			resolveSourceIDs([]string{"nope", "bbb"}, byID, group))
	})

	t.Run("nothing recognizable falls back to whole group", func(t *testing.T) {
		assert.Equal(t, []string{"aaa", "bbb"},
			resolveSourceIDs([]string{"nope"}, byID, group))
		assert.Equal(t, []string{"aaa", "bbb"},
			resolveSourceIDs(nil, byID, group))
	})
}
