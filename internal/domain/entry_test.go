package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestEntryFields_ApplyDerives(t *testing.T) {
	e := &LeaderboardEntry{PlayerID: "p1"}

	EntryFields{
		PlayerName: ptr("Ada"),
		Score:      ptr(int64(1500)),
		MMR:        ptr(1650),
		Wins:       ptr(3),
		Losses:     ptr(1),
	}.Apply(e)

	assert.Equal(t, "Ada", e.PlayerName)
	assert.Equal(t, 4, e.GamesPlayed)
	assert.InDelta(t, 0.75, e.WinRate, 1e-9)
	assert.Equal(t, TierGold, e.Tier)
	assert.Equal(t, DivisionIV, e.Division)
}

func TestEntryFields_NilKeepsValues(t *testing.T) {
	e := &LeaderboardEntry{PlayerID: "p1", PlayerName: "Ada", Score: 10, MMR: 900}
	e.Derive()

	EntryFields{Score: ptr(int64(20))}.Apply(e)

	assert.Equal(t, "Ada", e.PlayerName)
	assert.Equal(t, int64(20), e.Score)
	assert.Equal(t, TierBronze, e.Tier)
}

func TestEntry_FieldsRoundTrip(t *testing.T) {
	orig := LeaderboardEntry{
		PlayerID: "p1", PlayerName: "Ada", Score: 42, MMR: 2100,
		Wins: 5, Losses: 2, GamesPlayed: 8, LastActiveAt: time.Unix(1700000000, 0),
	}
	orig.Derive()

	var restored LeaderboardEntry
	restored.PlayerID = "p1"
	orig.Fields().Apply(&restored)

	assert.Equal(t, orig, restored)
}

func TestEntry_WinRateZeroGames(t *testing.T) {
	e := &LeaderboardEntry{}
	e.Derive()
	assert.Zero(t, e.WinRate)
}

func TestEntry_LessTiebreak(t *testing.T) {
	a := &LeaderboardEntry{PlayerID: "a", Score: 100, Wins: 1}
	b := &LeaderboardEntry{PlayerID: "b", Score: 100, Wins: 1}
	c := &LeaderboardEntry{PlayerID: "c", Score: 100, Wins: 5}
	d := &LeaderboardEntry{PlayerID: "d", Score: 200}

	assert.True(t, d.Less(c), "higher score first")
	assert.True(t, c.Less(a), "more wins first")
	assert.True(t, a.Less(b), "player id ascending")
	assert.False(t, b.Less(a))
}

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, "global", PartitionKey("global", "", ""))
	assert.Equal(t, "global:eu", PartitionKey("global", "EU", ""))
	assert.Equal(t, "ranked:na:s3", PartitionKey("ranked", "na", "S3"))
}

func TestDateRange_Contains(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	r := DateRange{From: from, To: to}

	assert.True(t, r.Contains(from))
	assert.True(t, r.Contains(from.Add(time.Hour)))
	assert.False(t, r.Contains(to))
	assert.False(t, r.Contains(from.Add(-time.Second)))
	assert.True(t, DateRange{}.Contains(from))
}

func TestPrincipal_RateTier(t *testing.T) {
	var anon *Principal
	assert.Equal(t, ClientAnonymous, anon.RateTier())
	assert.False(t, anon.IsAdmin())

	assert.Equal(t, ClientAuthenticated, (&Principal{UserID: "u1"}).RateTier())
	assert.Equal(t, ClientPremium, (&Principal{UserID: "u1", Tier: ClientPremium}).RateTier())
	assert.True(t, (&Principal{UserID: "u1", Role: RoleAdmin}).IsAdmin())
}
