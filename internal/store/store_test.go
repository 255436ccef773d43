package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladderline/ladder-server/internal/domain"
	"github.com/ladderline/ladder-server/internal/store"
)

func TestNew_OnDiskReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	ctx := context.Background()

	s, err := store.New(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateLeaderboard(ctx, &domain.Leaderboard{ID: "global", Name: "Global", Status: domain.LeaderboardActive}))
	require.NoError(t, s.Close())

	s, err = store.New(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	lb, err := s.GetLeaderboard(ctx, "global")
	require.NoError(t, err)
	assert.Equal(t, "Global", lb.Name)
	assert.NoError(t, s.RunGC())
}

func TestLeaderboards_ListSorted(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"global:eu", "global", "arena"} {
		require.NoError(t, s.CreateLeaderboard(ctx, &domain.Leaderboard{ID: id, Status: domain.LeaderboardActive}))
	}

	list, err := s.ListLeaderboards(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "arena", list[0].ID)
	assert.Equal(t, "global", list[1].ID)
	assert.Equal(t, "global:eu", list[2].ID)
}

func TestSanctions_MissingIsNil(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	got, err := s.GetSanction(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SaveSanction(ctx, &domain.PlayerSanction{PlayerID: "p1", Banned: true}))
	got, err = s.GetSanction(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.IsBanned())
}

func seedSubmissions(t *testing.T, s *store.Store, n int) []*domain.ScoreSubmission {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	subs := make([]*domain.ScoreSubmission, 0, n)
	for i := range n {
		sub := &domain.ScoreSubmission{
			ID:            fmt.Sprintf("sub_%02d", i),
			PlayerID:      fmt.Sprintf("p%d", i%2),
			LeaderboardID: "global",
			Score:         int64(100 * i),
			Status:        domain.SubmissionValidated,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if i%3 == 0 {
			sub.AntiCheatFlags = []string{"SCORE_VARIANCE"}
		}
		require.NoError(t, s.SaveSubmission(context.Background(), sub))
		subs = append(subs, sub)
	}
	return subs
}

func TestListSubmissions_NewestFirstWithCursor(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedSubmissions(t, s, 5)

	page, err := s.ListSubmissions(ctx, store.SubmissionFilter{}, store.PaginationParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "sub_04", page.Items[0].ID)
	assert.Equal(t, "sub_03", page.Items[1].ID)
	assert.True(t, page.HasMore)

	page, err = s.ListSubmissions(ctx, store.SubmissionFilter{}, store.PaginationParams{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "sub_02", page.Items[0].ID)
	assert.Equal(t, "sub_01", page.Items[1].ID)

	page, err = s.ListSubmissions(ctx, store.SubmissionFilter{}, store.PaginationParams{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "sub_00", page.Items[0].ID)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)
}

func TestListSubmissions_Filters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedSubmissions(t, s, 6)

	page, err := s.ListSubmissions(ctx, store.SubmissionFilter{PlayerID: "p1"}, store.PaginationParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	for _, sub := range page.Items {
		assert.Equal(t, "p1", sub.PlayerID)
	}

	page, err = s.ListSubmissions(ctx, store.SubmissionFilter{FlaggedOnly: true}, store.PaginationParams{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2) // sub_00, sub_03
}

func TestListSubmissions_ForeignCursor(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.ListSubmissions(context.Background(), store.SubmissionFilter{}, store.PaginationParams{Cursor: store.EncodeCursor("lb:global")})
	assert.ErrorIs(t, err, store.ErrInvalidCursor)
}

func TestPlayerSubmissions_OldestFirst(t *testing.T) {
	s := setupTestStore(t)
	seedSubmissions(t, s, 6)

	subs, err := s.PlayerSubmissions(context.Background(), "p0")
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, "sub_00", subs[0].ID)
	assert.Equal(t, "sub_04", subs[2].ID)
}

func TestFindByMatch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sub := &domain.ScoreSubmission{ID: "sub_m", PlayerID: "p1", LeaderboardID: "global", MatchID: "m-1", Status: domain.SubmissionValidated}
	require.NoError(t, s.SaveSubmission(ctx, sub))

	got, err := s.FindByMatch(ctx, "global", "p1", "m-1")
	require.NoError(t, err)
	assert.Equal(t, "sub_m", got.ID)

	_, err = s.FindByMatch(ctx, "global", "p2", "m-1")
	assert.True(t, store.IsNotFound(err))

	sub.Status = domain.SubmissionRejected
	require.NoError(t, s.SaveSubmission(ctx, sub))
	_, err = s.FindByMatch(ctx, "global", "p1", "m-1")
	assert.True(t, store.IsNotFound(err))
}

func TestSubmissionStats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	subs := seedSubmissions(t, s, 4)

	subs[1].Status = domain.SubmissionApproved
	require.NoError(t, s.SaveSubmission(ctx, subs[1]))

	stats, err := s.SubmissionStats(ctx, domain.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalSubmissions)
	assert.Equal(t, 3, stats.ByStatus[domain.SubmissionValidated])
	assert.Equal(t, 1, stats.ByStatus[domain.SubmissionApproved])
	assert.Equal(t, 0, stats.ByStatus[domain.SubmissionDisputed])
	assert.Equal(t, 2, stats.Flagged)

	ranged, err := s.SubmissionStats(ctx, domain.DateRange{From: subs[2].CreatedAt})
	require.NoError(t, err)
	assert.Equal(t, 2, ranged.TotalSubmissions)
}

func TestSubscriptions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordSubscription(ctx, "conn_a", "global", time.Hour))
	require.NoError(t, s.RecordSubscription(ctx, "conn_a", "global:eu", time.Hour))
	require.NoError(t, s.RecordSubscription(ctx, "conn_b", "global", time.Hour))

	subs, err := s.Subscribers(ctx, "global")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"conn_a", "conn_b"}, subs)

	boards, err := s.ConnectionSubscriptions(ctx, "conn_a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"global", "global:eu"}, boards)

	require.NoError(t, s.RemoveSubscription(ctx, "conn_b", "global"))
	require.NoError(t, s.RemoveConnection(ctx, "conn_a"))
	require.NoError(t, s.RemoveConnection(ctx, "conn_a"))

	subs, err = s.Subscribers(ctx, "global")
	require.NoError(t, err)
	assert.Empty(t, subs)
	subs, err = s.Subscribers(ctx, "global:eu")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestRankingSnapshot_ReplacesStaleEntries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entries, meta, err := s.LoadRanking(ctx, "global")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Nil(t, meta)

	first := []domain.LeaderboardEntry{
		{PlayerID: "a", Score: 500},
		{PlayerID: "b", Score: 1000},
	}
	require.NoError(t, s.SaveRanking(ctx, "global", first, 3))

	second := []domain.LeaderboardEntry{
		{PlayerID: "b", Score: 1200},
		{PlayerID: "c", Score: 700},
	}
	require.NoError(t, s.SaveRanking(ctx, "global", second, 5))
	require.NoError(t, s.SaveRanking(ctx, "global:eu", first, 1))

	entries, meta, err = s.LoadRanking(ctx, "global")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].PlayerID)
	assert.Equal(t, int64(1200), entries[0].Score)
	assert.Equal(t, "c", entries[1].PlayerID)
	require.NotNil(t, meta)
	assert.Equal(t, uint64(5), meta.Version)
	assert.Equal(t, 2, meta.Entries)
}
