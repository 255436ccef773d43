package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladderline/ladder-server/internal/anticheat"
	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
	"github.com/ladderline/ladder-server/internal/hub"
	"github.com/ladderline/ladder-server/internal/ranking"
	"github.com/ladderline/ladder-server/internal/search"
	"github.com/ladderline/ladder-server/internal/store"
	"github.com/ladderline/ladder-server/internal/validation"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []hub.Event
}

func (p *recordingPublisher) Publish(e hub.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []hub.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]hub.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	records []*domain.AuditRecord
	fail    bool
}

func (s *recordingSink) Record(_ context.Context, rec *domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return assert.AnError
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.Action
	}
	return out
}

type testEnv struct {
	store    *store.Store
	registry *ranking.Registry
	boards   *LeaderboardService
	subs     *SubmissionService
	events   *recordingPublisher
	sink     *recordingSink
	now      time.Time
}

var (
	admin = &domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin, Tier: domain.ClientAuthenticated}
	ctx   = context.Background()
)

func player(id string) *domain.Principal {
	return &domain.Principal{UserID: id, Role: domain.RolePlayer, Tier: domain.ClientAuthenticated}
}

func setupTestServices(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	st, err := store.New("", logger)
	require.NoError(t, err)

	directory, err := search.NewPlayerIndex(search.Options{Logger: logger})
	require.NoError(t, err)

	t.Cleanup(func() {
		directory.Close() //nolint:errcheck // test cleanup
		st.Close()        //nolint:errcheck // test cleanup
	})

	env := &testEnv{
		store:    st,
		registry: ranking.NewRegistry(ranking.Limits{DefaultPageSize: 10, MaxPageSize: 100, MaxTopN: 100, MaxContextWindow: 10}),
		events:   &recordingPublisher{},
		sink:     &recordingSink{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	v := validation.New()
	env.boards = NewLeaderboardService(st, env.registry, directory, env.events, env.sink, nil, v, logger)
	env.subs = NewSubmissionService(st, env.boards,
		anticheat.New(anticheat.Config{VarianceMultiplier: 5, HistoryWindow: 20, MinHistory: 1}),
		env.sink, nil, v,
		SubmissionConfig{MaxBatchSize: 5, DisputeReasonMin: 10, DisputeReasonMax: 40},
		logger)
	env.subs.SetClock(func() time.Time { return env.now })

	require.NoError(t, env.boards.EnsureDefaults(ctx, []string{"global"}))
	return env
}

func (e *testEnv) submit(t *testing.T, playerID string, score int64) *domain.ScoreSubmission {
	t.Helper()
	e.now = e.now.Add(time.Minute)
	sub, err := e.subs.Submit(ctx, player(playerID), SubmitRequest{LeaderboardID: "global", Score: score})
	require.NoError(t, err)
	return sub
}

func (e *testEnv) scoreOf(t *testing.T, playerID string) (int64, int) {
	t.Helper()
	entry, err := e.boards.GetRank(ctx, "global", playerID)
	require.NoError(t, err)
	return entry.Score, entry.Rank
}

func playerIDs(entries []domain.LeaderboardEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.PlayerID
	}
	return out
}

func TestSubmit_RanksAndRemoval(t *testing.T) {
	env := setupTestServices(t)

	env.submit(t, "A", 500)
	env.submit(t, "B", 1000)
	env.submit(t, "C", 750)

	page, err := env.boards.GetPage(ctx, "global", ranking.PageQuery{Sort: ranking.SortScore, Order: ranking.OrderDesc, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, playerIDs(page.Data))
	assert.Equal(t, []int{1, 2, 3}, []int{page.Data[0].Rank, page.Data[1].Rank, page.Data[2].Rank})

	_, err = env.boards.RemovePlayer(ctx, admin, "global", "B")
	require.NoError(t, err)

	page, err = env.boards.GetPage(ctx, "global", ranking.PageQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, playerIDs(page.Data))
	assert.Equal(t, 1, page.Data[0].Rank)
	assert.Equal(t, int64(750), page.Data[0].Score)
}

func TestSubmit_RecordsRanksAndEvents(t *testing.T) {
	env := setupTestServices(t)

	first := env.submit(t, "p1", 100)
	assert.Equal(t, domain.SubmissionValidated, first.Status)
	assert.Nil(t, first.PreviousRank)
	require.NotNil(t, first.NewRank)
	assert.Equal(t, 1, *first.NewRank)
	assert.Empty(t, first.AntiCheatFlags)
	require.Len(t, first.AuditTrail, 1)
	assert.Equal(t, domain.AuditSubmitted, first.AuditTrail[0].Action)

	env.submit(t, "p2", 200)
	second := env.submit(t, "p1", 300)
	require.NotNil(t, second.PreviousRank)
	assert.Equal(t, 2, *second.PreviousRank)
	assert.Equal(t, 1, *second.NewRank)

	assert.Equal(t, []hub.EventType{hub.EventNewEntry, hub.EventNewEntry, hub.EventRankChange}, env.events.types())
	assert.Equal(t, []string{ActionSubmissionSubmitted, ActionSubmissionSubmitted, ActionSubmissionSubmitted}, env.sink.actions())
}

func TestSubmit_VarianceFlagDoesNotBlock(t *testing.T) {
	env := setupTestServices(t)

	env.submit(t, "p1", 100)
	sub := env.submit(t, "p1", 10000)

	assert.Equal(t, domain.SubmissionValidated, sub.Status)
	assert.Equal(t, []string{anticheat.FlagScoreVariance}, sub.AntiCheatFlags)

	score, _ := env.scoreOf(t, "p1")
	assert.Equal(t, int64(10000), score)
}

func TestSubmit_OutcomeAndProfileFields(t *testing.T) {
	env := setupTestServices(t)
	mmr := 1650

	_, err := env.subs.Submit(ctx, player("p1"), SubmitRequest{
		LeaderboardID: "global", Score: 10, Outcome: "win", MMR: &mmr, PlayerName: "Ada",
	})
	require.NoError(t, err)
	_, err = env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "global", Score: 20, Outcome: domain.OutcomeLoss, MatchID: "m2"})
	require.NoError(t, err)

	entry, err := env.boards.GetRank(ctx, "global", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", entry.PlayerName)
	assert.Equal(t, 1, entry.Wins)
	assert.Equal(t, 1, entry.Losses)
	assert.Equal(t, 2, entry.GamesPlayed)
	assert.InDelta(t, 0.5, entry.WinRate, 1e-9)
	assert.Equal(t, 1650, entry.MMR)
	assert.Equal(t, domain.TierGold, entry.Tier)
}

func TestSubmit_NewPlayerNameDefaultsToID(t *testing.T) {
	env := setupTestServices(t)
	env.submit(t, "p9", 1)

	entry, err := env.boards.GetRank(ctx, "global", "p9")
	require.NoError(t, err)
	assert.Equal(t, "p9", entry.PlayerName)
}

func TestSubmit_Rejections(t *testing.T) {
	env := setupTestServices(t)

	_, err := env.subs.Submit(ctx, nil, SubmitRequest{LeaderboardID: "global", Score: 1})
	assert.Equal(t, domainerrors.CodeUnauthorized, domainerrors.CodeOf(err))

	_, err = env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "missing", Score: 1})
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))

	_, err = env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "Not A Slug", Score: 1})
	assert.Equal(t, domainerrors.CodeInvalidInput, domainerrors.CodeOf(err))

	sub, err := env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "global", Score: -5})
	assert.Nil(t, sub)
	assert.Equal(t, domainerrors.CodeInvalidInput, domainerrors.CodeOf(err))

	_, err = env.boards.GetRank(ctx, "global", "p1")
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err), "hard rejection must not touch the ranking")

	page, err := env.subs.ListSubmissions(ctx, admin, store.SubmissionFilter{Status: domain.SubmissionRejected}, store.PaginationParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "NEGATIVE_SCORE", page.Items[0].RejectionReason)
	assert.Empty(t, env.events.types())
}

func TestSubmit_DuplicateMatch(t *testing.T) {
	env := setupTestServices(t)
	req := SubmitRequest{LeaderboardID: "global", Score: 10, MatchID: "match-1"}

	_, err := env.subs.Submit(ctx, player("p1"), req)
	require.NoError(t, err)

	_, err = env.subs.Submit(ctx, player("p1"), req)
	assert.Equal(t, domainerrors.CodeConflict, domainerrors.CodeOf(err))

	// Another player in the same match is fine.
	_, err = env.subs.Submit(ctx, player("p2"), req)
	assert.NoError(t, err)
}

func TestSubmit_BoardStatusAndCapacity(t *testing.T) {
	env := setupTestServices(t)

	_, err := env.boards.CreateLeaderboard(ctx, admin, CreateLeaderboardRequest{ID: "duel", Name: "Duel", Region: "EU", Season: "s1", MaxEntries: 1})
	require.NoError(t, err)

	_, err = env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "duel:eu:s1", Score: 5})
	require.NoError(t, err)
	_, err = env.subs.Submit(ctx, player("p2"), SubmitRequest{LeaderboardID: "duel:eu:s1", Score: 5})
	assert.Equal(t, domainerrors.CodePreconditionFailed, domainerrors.CodeOf(err))

	_, err = env.boards.SetStatus(ctx, admin, "duel:eu:s1", domain.LeaderboardLocked)
	require.NoError(t, err)
	_, err = env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "duel:eu:s1", Score: 6})
	assert.Equal(t, domainerrors.CodePreconditionFailed, domainerrors.CodeOf(err))

	// Reads stay available on a locked board.
	top, err := env.boards.TopN(ctx, "duel:eu:s1", 5)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestBanGate(t *testing.T) {
	env := setupTestServices(t)
	accepted := env.submit(t, "p1", 100)

	_, err := env.subs.BanPlayer(ctx, admin, "p1", BanRequest{Reason: "aimbot"})
	require.NoError(t, err)

	for range 3 {
		_, err = env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "global", Score: 50})
		assert.Equal(t, domainerrors.CodeForbidden, domainerrors.CodeOf(err))
	}

	// Earlier submissions are not affected.
	got, err := env.subs.Get(ctx, admin, accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionValidated, got.Status)
	score, _ := env.scoreOf(t, "p1")
	assert.Equal(t, int64(100), score)

	_, err = env.subs.UnbanPlayer(ctx, admin, "p1")
	require.NoError(t, err)
	env.submit(t, "p1", 120)

	assert.Contains(t, env.sink.actions(), ActionPlayerBanned)
	assert.Contains(t, env.sink.actions(), ActionPlayerUnbanned)
}

func TestBanGate_PrecedesBoardAndMatchChecks(t *testing.T) {
	env := setupTestServices(t)
	_, err := env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "global", Score: 10, MatchID: "m1"})
	require.NoError(t, err)

	_, err = env.subs.BanPlayer(ctx, admin, "p1", BanRequest{Reason: "aimbot"})
	require.NoError(t, err)

	_, err = env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "global", Score: 10, MatchID: "m1"})
	assert.Equal(t, domainerrors.CodeForbidden, domainerrors.CodeOf(err), "duplicate match")

	_, err = env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "global", Score: -5})
	assert.Equal(t, domainerrors.CodeForbidden, domainerrors.CodeOf(err), "negative score")

	_, err = env.boards.SetStatus(ctx, admin, "global", domain.LeaderboardLocked)
	require.NoError(t, err)
	_, err = env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "global", Score: 20})
	assert.Equal(t, domainerrors.CodeForbidden, domainerrors.CodeOf(err), "locked board")
}

func TestSuspension(t *testing.T) {
	env := setupTestServices(t)

	_, err := env.subs.SuspendPlayer(ctx, admin, "p1", SuspendRequest{Until: env.now.Add(-time.Minute), Reason: "cooldown"})
	assert.Equal(t, domainerrors.CodeInvalidInput, domainerrors.CodeOf(err))

	_, err = env.subs.SuspendPlayer(ctx, admin, "p1", SuspendRequest{Until: env.now.Add(time.Hour), Reason: "cooldown"})
	require.NoError(t, err)

	_, err = env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "global", Score: 1})
	assert.Equal(t, domainerrors.CodeForbidden, domainerrors.CodeOf(err))

	env.now = env.now.Add(2 * time.Hour)
	_, err = env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "global", Score: 1})
	assert.NoError(t, err)
}

func TestSanctions_AdminOnly(t *testing.T) {
	env := setupTestServices(t)

	_, err := env.subs.BanPlayer(ctx, player("p2"), "p1", BanRequest{Reason: "x"})
	assert.Equal(t, domainerrors.CodeForbidden, domainerrors.CodeOf(err))

	_, err = env.subs.BanPlayer(ctx, admin, "p1", BanRequest{})
	assert.Equal(t, domainerrors.CodeInvalidInput, domainerrors.CodeOf(err))

	sn, err := env.subs.GetSanction(ctx, admin, "never-sanctioned")
	require.NoError(t, err)
	assert.True(t, sn.Cleared(env.now))
}

func TestSubmitBatch_Isolation(t *testing.T) {
	env := setupTestServices(t)

	res, err := env.subs.SubmitBatch(ctx, player("p1"), []SubmitRequest{
		{LeaderboardID: "global", Score: 10, MatchID: "m1"},
		{LeaderboardID: "global", Score: -1, MatchID: "m2"},
		{LeaderboardID: "global", Score: 12, MatchID: "m3"},
		{LeaderboardID: "missing", Score: 13, MatchID: "m4"},
		{LeaderboardID: "global", Score: 14, MatchID: "m5"},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, res.TotalProcessed)
	assert.Len(t, res.Successful, 3)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, 1, res.Failed[0].Index)
	assert.Equal(t, domainerrors.CodeInvalidInput, res.Failed[0].Code)
	assert.Equal(t, 3, res.Failed[1].Index)
	assert.Equal(t, domainerrors.CodeNotFound, res.Failed[1].Code)
	assert.Equal(t, res.TotalProcessed, len(res.Successful)+len(res.Failed))
}

func TestSubmitBatch_SizeLimits(t *testing.T) {
	env := setupTestServices(t)

	_, err := env.subs.SubmitBatch(ctx, player("p1"), nil)
	assert.Equal(t, domainerrors.CodeInvalidInput, domainerrors.CodeOf(err))

	reqs := make([]SubmitRequest, 6)
	for i := range reqs {
		reqs[i] = SubmitRequest{LeaderboardID: "global", Score: int64(i)}
	}
	_, err = env.subs.SubmitBatch(ctx, player("p1"), reqs)
	assert.Equal(t, domainerrors.CodeInvalidInput, domainerrors.CodeOf(err))

	_, err = env.boards.GetRank(ctx, "global", "p1")
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err), "oversized batch must not process any item")
}

func TestRollback_RestoresPriorEntry(t *testing.T) {
	env := setupTestServices(t)

	env.submit(t, "p1", 500)
	env.submit(t, "p2", 800)
	beforeScore, beforeRank := env.scoreOf(t, "p1")

	sub := env.submit(t, "p1", 1000)
	_, rank := env.scoreOf(t, "p1")
	require.Equal(t, 1, rank)

	_, err := env.subs.AdminAction(ctx, admin, sub.ID, AdminActionRequest{Action: domain.AdminApprove})
	require.NoError(t, err)
	rolled, err := env.subs.AdminAction(ctx, admin, sub.ID, AdminActionRequest{Action: domain.AdminRollback, Reason: "replay"})
	require.NoError(t, err)

	assert.Equal(t, domain.SubmissionRolledBack, rolled.Status)
	assert.False(t, rolled.Applied)
	assert.Equal(t, admin.UserID, rolled.ReviewedBy)

	score, rank := env.scoreOf(t, "p1")
	assert.Equal(t, beforeScore, score)
	assert.Equal(t, beforeRank, rank)
}

func TestRollback_NewPlayerIsRemoved(t *testing.T) {
	env := setupTestServices(t)
	sub := env.submit(t, "p1", 500)

	_, err := env.subs.AdminAction(ctx, admin, sub.ID, AdminActionRequest{Action: domain.AdminApprove})
	require.NoError(t, err)
	_, err = env.subs.AdminAction(ctx, admin, sub.ID, AdminActionRequest{Action: domain.AdminRollback})
	require.NoError(t, err)

	_, err = env.boards.GetRank(ctx, "global", "p1")
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))
	assert.Equal(t, hub.EventEntryRemoved, env.events.types()[len(env.events.types())-1])
}

func TestReject_SupersededSubmissionKeepsNewerScore(t *testing.T) {
	env := setupTestServices(t)

	first := env.submit(t, "p1", 100)
	second := env.submit(t, "p1", 200)

	_, err := env.subs.AdminAction(ctx, admin, first.ID, AdminActionRequest{Action: domain.AdminReject, Reason: "bad replay"})
	require.NoError(t, err)

	score, _ := env.scoreOf(t, "p1")
	assert.Equal(t, int64(200), score, "a newer validated score survives rejecting an older one")

	stored, err := env.subs.Get(ctx, admin, second.ID)
	require.NoError(t, err)
	assert.True(t, stored.Applied)
	assert.Nil(t, stored.PriorEntry, "the rejected submission is spliced out of the chain")

	_, err = env.subs.AdminAction(ctx, admin, second.ID, AdminActionRequest{Action: domain.AdminApprove})
	require.NoError(t, err)
	_, err = env.subs.AdminAction(ctx, admin, second.ID, AdminActionRequest{Action: domain.AdminRollback})
	require.NoError(t, err)

	_, err = env.boards.GetRank(ctx, "global", "p1")
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err), "the rejected score must not come back")
}

func TestRollback_SupersededSubmissionTakesOffItsOutcome(t *testing.T) {
	env := setupTestServices(t)

	env.now = env.now.Add(time.Minute)
	win, err := env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "global", Score: 100, Outcome: domain.OutcomeWin})
	require.NoError(t, err)
	env.now = env.now.Add(time.Minute)
	_, err = env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "global", Score: 150, Outcome: domain.OutcomeLoss})
	require.NoError(t, err)

	_, err = env.subs.AdminAction(ctx, admin, win.ID, AdminActionRequest{Action: domain.AdminApprove})
	require.NoError(t, err)
	_, err = env.subs.AdminAction(ctx, admin, win.ID, AdminActionRequest{Action: domain.AdminRollback})
	require.NoError(t, err)

	entry, err := env.boards.GetRank(ctx, "global", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), entry.Score)
	assert.Equal(t, 0, entry.Wins)
	assert.Equal(t, 1, entry.Losses)
	assert.Equal(t, 1, entry.GamesPlayed)
}

func TestAdminAction_Transitions(t *testing.T) {
	env := setupTestServices(t)
	sub := env.submit(t, "p1", 500)

	_, err := env.subs.AdminAction(ctx, admin, sub.ID, AdminActionRequest{Action: domain.AdminRollback})
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeConflict, domainerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "VALIDATED")

	_, err = env.subs.AdminAction(ctx, player("p1"), sub.ID, AdminActionRequest{Action: domain.AdminApprove})
	assert.Equal(t, domainerrors.CodeForbidden, domainerrors.CodeOf(err))

	_, err = env.subs.AdminAction(ctx, admin, sub.ID, AdminActionRequest{Action: domain.AdminReject})
	assert.Equal(t, domainerrors.CodeInvalidInput, domainerrors.CodeOf(err))

	_, err = env.subs.AdminAction(ctx, admin, sub.ID, AdminActionRequest{Action: "ERASE"})
	assert.Equal(t, domainerrors.CodeInvalidInput, domainerrors.CodeOf(err))

	_, err = env.subs.AdminAction(ctx, admin, "sub_missing", AdminActionRequest{Action: domain.AdminApprove})
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))

	rejected, err := env.subs.AdminAction(ctx, admin, sub.ID, AdminActionRequest{Action: domain.AdminReject, Reason: "tampered client"})
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionRejected, rejected.Status)
	assert.Equal(t, "tampered client", rejected.RejectionReason)

	_, err = env.boards.GetRank(ctx, "global", "p1")
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err), "rejecting an applied submission reverts it")

	_, err = env.subs.AdminAction(ctx, admin, sub.ID, AdminActionRequest{Action: domain.AdminApprove})
	assert.Equal(t, domainerrors.CodeConflict, domainerrors.CodeOf(err))
}

func TestDispute(t *testing.T) {
	env := setupTestServices(t)
	sub := env.submit(t, "p1", 500)
	reason := "my score was recorded wrong"

	_, err := env.subs.Dispute(ctx, player("p2"), sub.ID, reason)
	assert.Equal(t, domainerrors.CodeForbidden, domainerrors.CodeOf(err))

	_, err = env.subs.Dispute(ctx, player("p1"), sub.ID, "short")
	assert.Equal(t, domainerrors.CodeInvalidInput, domainerrors.CodeOf(err))

	_, err = env.subs.Dispute(ctx, player("p1"), sub.ID, strings.Repeat("x", 41))
	assert.Equal(t, domainerrors.CodeInvalidInput, domainerrors.CodeOf(err))

	disputed, err := env.subs.Dispute(ctx, player("p1"), sub.ID, reason)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionDisputed, disputed.Status)
	assert.Equal(t, reason, disputed.DisputeReason)

	_, err = env.subs.Dispute(ctx, player("p1"), sub.ID, reason)
	assert.Equal(t, domainerrors.CodeConflict, domainerrors.CodeOf(err))

	// An admin may still approve a disputed submission.
	approved, err := env.subs.AdminAction(ctx, admin, sub.ID, AdminActionRequest{Action: domain.AdminApprove})
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionApproved, approved.Status)

	trail, err := env.subs.GetAuditTrail(ctx, player("p1"), sub.ID)
	require.NoError(t, err)
	actions := make([]domain.AuditAction, len(trail))
	for i, e := range trail {
		actions[i] = e.Action
	}
	assert.Equal(t, []domain.AuditAction{domain.AuditSubmitted, domain.AuditDisputed, domain.AuditApproved}, actions)

	_, err = env.subs.GetAuditTrail(ctx, player("p2"), sub.ID)
	assert.Equal(t, domainerrors.CodeForbidden, domainerrors.CodeOf(err))
}

func TestDispute_RejectedIsNotDisputable(t *testing.T) {
	env := setupTestServices(t)
	sub := env.submit(t, "p1", 500)

	_, err := env.subs.AdminAction(ctx, admin, sub.ID, AdminActionRequest{Action: domain.AdminReject, Reason: "invalid match"})
	require.NoError(t, err)

	_, err = env.subs.Dispute(ctx, player("p1"), sub.ID, "please look at this again")
	assert.Equal(t, domainerrors.CodeConflict, domainerrors.CodeOf(err))
}

func TestStatistics(t *testing.T) {
	env := setupTestServices(t)
	env.submit(t, "p1", 100)
	env.submit(t, "p2", 200)
	_, err := env.subs.Submit(ctx, player("p3"), SubmitRequest{LeaderboardID: "global", Score: -1})
	require.Error(t, err)

	stats, err := env.subs.Statistics(ctx, admin, domain.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalSubmissions)
	assert.Equal(t, 2, stats.ByStatus[domain.SubmissionValidated])
	assert.Equal(t, 1, stats.ByStatus[domain.SubmissionRejected])

	_, err = env.subs.Statistics(ctx, player("p1"), domain.DateRange{})
	assert.Equal(t, domainerrors.CodeForbidden, domainerrors.CodeOf(err))
}

func TestAuditSinkFailureIsSwallowed(t *testing.T) {
	env := setupTestServices(t)
	env.sink.fail = true

	sub := env.submit(t, "p1", 100)
	assert.Equal(t, domain.SubmissionValidated, sub.Status)
}

func TestLeaderboardService_Admin(t *testing.T) {
	env := setupTestServices(t)

	_, err := env.boards.CreateLeaderboard(ctx, player("p1"), CreateLeaderboardRequest{ID: "x", Name: "X"})
	assert.Equal(t, domainerrors.CodeForbidden, domainerrors.CodeOf(err))

	_, err = env.boards.CreateLeaderboard(ctx, admin, CreateLeaderboardRequest{ID: "global", Name: "Again"})
	assert.Equal(t, domainerrors.CodeConflict, domainerrors.CodeOf(err))

	_, err = env.boards.SetStatus(ctx, admin, "global", "PAUSED")
	assert.Equal(t, domainerrors.CodeInvalidInput, domainerrors.CodeOf(err))

	lbs, err := env.boards.ListLeaderboards(ctx)
	require.NoError(t, err)
	require.Len(t, lbs, 1)
	assert.Equal(t, "global", lbs[0].ID)
}

func TestLeaderboardService_Reset(t *testing.T) {
	env := setupTestServices(t)
	env.submit(t, "p1", 100)
	env.submit(t, "p2", 200)

	removed, err := env.boards.Reset(ctx, admin, "global")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	stats, err := env.boards.Statistics(ctx, "global")
	require.NoError(t, err)
	assert.Equal(t, ranking.Statistics{}, stats)
	assert.Equal(t, hub.EventLeaderboardReset, env.events.types()[len(env.events.types())-1])

	_, err = env.boards.SearchPlayers(ctx, search.SearchParams{Query: "p1", Limit: 10})
	require.NoError(t, err)
}

func TestLeaderboardService_SearchPlayers(t *testing.T) {
	env := setupTestServices(t)
	_, err := env.subs.Submit(ctx, player("p1"), SubmitRequest{LeaderboardID: "global", Score: 100, PlayerName: "Nightingale"})
	require.NoError(t, err)

	res, err := env.boards.SearchPlayers(ctx, search.SearchParams{Query: "nightingale", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "p1", res.Hits[0].PlayerID)

	_, err = env.boards.SearchPlayers(ctx, search.SearchParams{})
	assert.Equal(t, domainerrors.CodeInvalidInput, domainerrors.CodeOf(err))
}

func TestSnapshotAndRestore(t *testing.T) {
	env := setupTestServices(t)
	env.submit(t, "p1", 100)
	env.submit(t, "p2", 300)

	written, err := env.boards.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	written, err = env.boards.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, written, "unchanged boards are not rewritten")

	registry := ranking.NewRegistry(env.registry.Limits())
	restored := NewLeaderboardService(env.store, registry, nil, nil, nil, nil, validation.New(), slog.New(slog.DiscardHandler))
	require.NoError(t, restored.Restore(ctx))

	top, err := restored.TopN(ctx, "global", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, playerIDs(top))
	assert.Equal(t, int64(300), top[0].Score)
}
