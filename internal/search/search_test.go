package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladderline/ladder-server/internal/domain"
)

// setupTestIndex creates a memory-only player index for testing.
func setupTestIndex(t *testing.T) *PlayerIndex {
	t.Helper()

	index, err := NewPlayerIndex(Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func entry(id, name, region string, score int64, mmr int) *domain.LeaderboardEntry {
	e := &domain.LeaderboardEntry{PlayerID: id, PlayerName: name, Region: region, Score: score, MMR: mmr}
	e.Derive()
	return e
}

func seed(t *testing.T, index *PlayerIndex) {
	t.Helper()
	require.NoError(t, index.IndexAll([]*PlayerDocument{
		NewPlayerDocument("global", entry("p1", "ShadowHunter", "eu", 1500, 1800)),
		NewPlayerDocument("global", entry("p2", "Shadow Mage", "na", 900, 1200)),
		NewPlayerDocument("global", entry("p3", "Nightowl", "eu", 700, 900)),
		NewPlayerDocument("ranked:eu", entry("p1", "ShadowHunter", "eu", 300, 1800)),
	}))
}

func TestNewPlayerIndex_Empty(t *testing.T) {
	index := setupTestIndex(t)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestPlayerIndex_IndexAndReplace(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)

	// Same board and player replaces the document.
	require.NoError(t, index.Index(NewPlayerDocument("global", entry("p3", "Nightowl", "eu", 2500, 900))))
	count, err = index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)

	res, err := index.Search(context.Background(), SearchParams{Query: "p3", LeaderboardID: "global"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, int64(2500), res.Hits[0].Score)
}

func TestPlayerIndex_SearchByName(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	res, err := index.Search(context.Background(), SearchParams{Query: "shadow", LeaderboardID: "global"})
	require.NoError(t, err)

	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.PlayerID)
		assert.Equal(t, "global", h.LeaderboardID)
	}
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids)
}

func TestPlayerIndex_AcrossBoards(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	res, err := index.Search(context.Background(), SearchParams{Query: "shadowhunter"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Total)
}

func TestPlayerIndex_Filters(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	res, err := index.Search(context.Background(), SearchParams{LeaderboardID: "global", Region: "eu"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Total)

	tier, _ := domain.TierFor(1800)
	res, err = index.Search(context.Background(), SearchParams{Tier: string(tier)})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Total)
	for _, h := range res.Hits {
		assert.Equal(t, "p1", h.PlayerID)
	}
}

func TestPlayerIndex_Remove(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	require.NoError(t, index.Remove("global", "p2"))
	res, err := index.Search(context.Background(), SearchParams{Query: "mage"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Total)

	removed, err := index.RemoveLeaderboard("global")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestPlayerIndex_RebuildOnDisk(t *testing.T) {
	dir := t.TempDir()
	index, err := NewPlayerIndex(Options{DataPath: dir})
	require.NoError(t, err)
	seed(t, index)

	require.NoError(t, index.Rebuild([]*PlayerDocument{
		NewPlayerDocument("global", entry("p9", "Fresh", "", 1, 0)),
	}))
	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
	require.NoError(t, index.Close())

	reopened, err := NewPlayerIndex(Options{DataPath: dir})
	require.NoError(t, err)
	defer reopened.Close()
	count, err = reopened.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
