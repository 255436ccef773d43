package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ladderline/ladder-server/internal/anticheat"
	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
	"github.com/ladderline/ladder-server/internal/hub"
	"github.com/ladderline/ladder-server/internal/id"
	"github.com/ladderline/ladder-server/internal/metrics"
	"github.com/ladderline/ladder-server/internal/ranking"
	"github.com/ladderline/ladder-server/internal/store"
	"github.com/ladderline/ladder-server/internal/validation"
)

// Audit actions emitted by SubmissionService.
const (
	ActionSubmissionSubmitted  = "SUBMISSION_SUBMITTED"
	ActionSubmissionApproved   = "SUBMISSION_APPROVED"
	ActionSubmissionRejected   = "SUBMISSION_REJECTED"
	ActionSubmissionDisputed   = "SUBMISSION_DISPUTED"
	ActionSubmissionRolledBack = "SUBMISSION_ROLLED_BACK"
	ActionPlayerBanned         = "PLAYER_BANNED"
	ActionPlayerUnbanned       = "PLAYER_UNBANNED"
	ActionPlayerSuspended      = "PLAYER_SUSPENDED"
)

// SubmissionConfig bounds batch and dispute input.
type SubmissionConfig struct {
	MaxBatchSize     int
	DisputeReasonMin int
	DisputeReasonMax int
}

// SubmissionService is the score submission pipeline: anti-cheat evaluation,
// ranking mutation, lifecycle transitions and player sanctions.
type SubmissionService struct {
	store     *store.Store
	boards    *LeaderboardService
	evaluator *anticheat.Evaluator
	audit     AuditSink
	metrics   *metrics.Metrics
	validator *validation.Validator
	logger    *slog.Logger
	cfg       SubmissionConfig
	now       func() time.Time

	sanctionMu sync.Mutex

	historyMu sync.Mutex
	history   map[string][]anticheat.Sample // board/player -> accepted scores, oldest first
}

// NewSubmissionService creates a new submission service. It shares board
// locks, events and the player directory with boards.
func NewSubmissionService(
	st *store.Store,
	boards *LeaderboardService,
	evaluator *anticheat.Evaluator,
	sink AuditSink,
	m *metrics.Metrics,
	validator *validation.Validator,
	cfg SubmissionConfig,
	logger *slog.Logger,
) *SubmissionService {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 50
	}
	if cfg.DisputeReasonMin <= 0 {
		cfg.DisputeReasonMin = 10
	}
	if cfg.DisputeReasonMax < cfg.DisputeReasonMin {
		cfg.DisputeReasonMax = 500
	}
	return &SubmissionService{
		store:     st,
		boards:    boards,
		evaluator: evaluator,
		audit:     sink,
		metrics:   m,
		validator: validator,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		history:   make(map[string][]anticheat.Sample),
	}
}

// SetClock replaces the time source. Tests only.
func (s *SubmissionService) SetClock(now func() time.Time) {
	s.now = now
	s.boards.now = now
}

// SubmitRequest is one score submission. Score is validated by the
// anti-cheat evaluator, not here, so negative scores are recorded as rejected.
type SubmitRequest struct {
	LeaderboardID string         `json:"leaderboard_id" validate:"required,slug"`
	Score         int64          `json:"score"`
	MatchID       string         `json:"match_id,omitempty" validate:"max=128"`
	SessionID     string         `json:"session_id,omitempty" validate:"max=128"`
	GameMode      string         `json:"game_mode,omitempty" validate:"max=64"`
	Region        string         `json:"region,omitempty" validate:"max=16"`
	PlayerName    string         `json:"player_name,omitempty" validate:"max=64"`
	PlayerAvatar  string         `json:"player_avatar,omitempty" validate:"omitempty,url,max=512"`
	Outcome       domain.Outcome `json:"outcome,omitempty" validate:"omitempty,oneof=WIN LOSS DRAW"`
	MMR           *int           `json:"mmr,omitempty" validate:"omitempty,gte=0,lte=100000"`
	Checksum      string         `json:"checksum,omitempty" validate:"max=128"`
}

func (r *SubmitRequest) normalize() {
	r.LeaderboardID = strings.TrimSpace(r.LeaderboardID)
	r.MatchID = strings.TrimSpace(r.MatchID)
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.PlayerName = strings.TrimSpace(r.PlayerName)
	r.Region = strings.ToLower(strings.TrimSpace(r.Region))
	r.Outcome = domain.Outcome(strings.ToUpper(string(r.Outcome)))
}

// Submit runs one submission through the pipeline. A hard anti-cheat
// rejection is stored as REJECTED and returned as the evaluator's error;
// the ranking is not touched.
func (s *SubmissionService) Submit(ctx context.Context, principal *domain.Principal, req SubmitRequest) (*domain.ScoreSubmission, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	req.normalize()
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	start := time.Now()
	playerID := principal.UserID
	logger := s.logger.With(
		slog.String("leaderboard_id", req.LeaderboardID),
		slog.String("player_id", playerID))

	unlock := s.boards.locks.lock(req.LeaderboardID)
	defer unlock()

	sanction, err := s.store.GetSanction(ctx, playerID)
	if err != nil {
		return nil, domainerrors.Infrastructure(err, "load player sanction")
	}

	subID, err := id.Generate(id.PrefixSubmission)
	if err != nil {
		return nil, domainerrors.Infrastructure(err, "generate submission id")
	}
	now := s.now()
	sub := &domain.ScoreSubmission{
		ID:             subID,
		PlayerID:       playerID,
		LeaderboardID:  req.LeaderboardID,
		Score:          req.Score,
		MatchID:        req.MatchID,
		SessionID:      req.SessionID,
		GameMode:       req.GameMode,
		Region:         req.Region,
		Outcome:        req.Outcome,
		Status:         domain.SubmissionPending,
		AntiCheatFlags: []string{},
		CreatedAt:      now,
	}
	sub.Append(domain.AuditSubmitted, playerID, "", now)

	// A banned or suspended player is refused before any board or match check.
	if !sanction.Cleared(now) {
		result := s.evaluator.Evaluate(anticheat.Input{Submission: sub, Sanction: sanction, Now: now})
		s.rejectOnSubmit(ctx, logger, sub, result, start)
		return nil, result.Err
	}

	_, board, err := s.boards.writableBoard(ctx, req.LeaderboardID)
	if err != nil {
		return nil, err
	}

	if req.MatchID != "" {
		dup, err := s.store.FindByMatch(ctx, req.LeaderboardID, playerID, req.MatchID)
		switch {
		case err == nil:
			return nil, domainerrors.Conflictf("match %s was already submitted", req.MatchID).
				WithDetails(map[string]string{"submission_id": dup.ID})
		case !store.IsNotFound(err):
			return nil, domainerrors.Infrastructure(err, "look up match")
		}
	}

	history, err := s.historyFor(ctx, req.LeaderboardID, playerID)
	if err != nil {
		return nil, domainerrors.Infrastructure(err, "load submission history")
	}

	result := s.evaluator.Evaluate(anticheat.Input{
		Submission: sub,
		Checksum:   req.Checksum,
		History:    history,
		Sanction:   sanction,
		Now:        now,
	})
	if result.Rejected() {
		s.rejectOnSubmit(ctx, logger, sub, result, start)
		return nil, result.Err
	}
	sub.AntiCheatFlags = result.Flags

	prior, existed := board.Entry(playerID)
	res, err := board.Upsert(playerID, entryFields(playerID, req, prior, existed, now))
	if err != nil {
		return nil, err
	}

	sub.Status = domain.SubmissionValidated
	sub.Applied = true
	sub.Sequence = board.Version()
	sub.PreviousRank = res.PreviousRank
	newRank := res.NewRank
	sub.NewRank = &newRank
	if existed {
		sub.PriorEntry = &prior
	}

	if err := s.store.SaveSubmission(ctx, sub); err != nil {
		s.restoreEntry(board, playerID, prior, existed)
		return nil, domainerrors.Infrastructure(err, "save submission")
	}

	s.remember(sub)
	s.boards.entryChanged(board, res.Entry)

	change := hub.EntryChange{
		Entry:        res.Entry,
		PreviousRank: res.PreviousRank,
		NewRank:      res.NewRank,
		SubmissionID: sub.ID,
	}
	if existed {
		change.PreviousScore = &prior.Score
	}
	s.boards.publish(hub.NewEntryChangeEvent(req.LeaderboardID, change))

	audit(ctx, s.audit, s.logger, ActionSubmissionSubmitted, playerID, domain.ResourceSubmission, sub.ID, priorOrNil(sub), res.Entry)
	s.metrics.SubmissionProcessed(string(sub.Status), sub.AntiCheatFlags, time.Since(start))

	if len(sub.AntiCheatFlags) > 0 {
		logger.Warn("submission flagged for review",
			slog.String("submission_id", sub.ID),
			slog.Int64("score", sub.Score),
			slog.Any("flags", sub.AntiCheatFlags))
	} else {
		logger.Debug("submission accepted",
			slog.String("submission_id", sub.ID),
			slog.Int("new_rank", res.NewRank))
	}
	return sub, nil
}

// rejectOnSubmit records a hard anti-cheat rejection. The caller still gets
// the rejection error when the record cannot be stored.
func (s *SubmissionService) rejectOnSubmit(ctx context.Context, logger *slog.Logger, sub *domain.ScoreSubmission, result anticheat.Result, start time.Time) {
	sub.Status = domain.SubmissionRejected
	sub.RejectionReason = string(result.Violation)
	sub.Append(domain.AuditRejected, domain.ActorSystem, string(result.Violation), sub.CreatedAt)

	if err := s.store.SaveSubmission(ctx, sub); err != nil {
		logger.Error("failed to store rejected submission",
			slog.String("submission_id", sub.ID),
			slog.String("error", err.Error()))
	}

	audit(ctx, s.audit, s.logger, ActionSubmissionSubmitted, sub.PlayerID, domain.ResourceSubmission, sub.ID, nil, sub.Status)
	audit(ctx, s.audit, s.logger, ActionSubmissionRejected, domain.ActorSystem, domain.ResourceSubmission, sub.ID,
		domain.SubmissionPending, map[string]any{"status": sub.Status, "violation": result.Violation})
	s.metrics.SubmissionProcessed(string(sub.Status), nil, time.Since(start))

	logger.Info("submission rejected",
		slog.String("submission_id", sub.ID),
		slog.String("violation", string(result.Violation)))
}

// entryFields maps a request onto the ranking fields. The submitted score
// replaces the stored one; an outcome adds one game to the record.
func entryFields(playerID string, req SubmitRequest, prior domain.LeaderboardEntry, existed bool, now time.Time) domain.EntryFields {
	score := req.Score
	fields := domain.EntryFields{Score: &score, LastActiveAt: now}

	switch {
	case req.PlayerName != "":
		fields.PlayerName = &req.PlayerName
	case !existed:
		name := playerID
		fields.PlayerName = &name
	}
	if req.PlayerAvatar != "" {
		fields.PlayerAvatar = &req.PlayerAvatar
	}
	if req.Region != "" {
		fields.Region = &req.Region
	}
	if req.MMR != nil {
		mmr := *req.MMR
		fields.MMR = &mmr
	}

	if req.Outcome != domain.OutcomeNone {
		wins, losses, games := prior.Wins, prior.Losses, prior.GamesPlayed+1
		switch req.Outcome {
		case domain.OutcomeWin:
			wins++
		case domain.OutcomeLoss:
			losses++
		}
		fields.Wins, fields.Losses, fields.GamesPlayed = &wins, &losses, &games
	}
	return fields
}

func priorOrNil(sub *domain.ScoreSubmission) any {
	if sub.PriorEntry == nil {
		return nil
	}
	return sub.PriorEntry
}

// restoreEntry puts a board back to the given entry state after a failed write.
func (s *SubmissionService) restoreEntry(board *ranking.Board, playerID string, entry domain.LeaderboardEntry, existed bool) {
	var err error
	if existed {
		_, err = board.Upsert(playerID, entry.Fields())
	} else {
		_, err = board.Remove(playerID)
	}
	if err != nil {
		s.logger.Error("failed to restore ranking entry",
			slog.String("leaderboard_id", board.ID()),
			slog.String("player_id", playerID),
			slog.String("error", err.Error()))
	}
}

// BatchFailure is one failed item of a batch.
type BatchFailure struct {
	Index   int               `json:"index"`
	Code    domainerrors.Code `json:"code"`
	Message string            `json:"message"`
	Details any               `json:"details,omitempty"`
}

// BatchResult aggregates a batch. len(Successful)+len(Failed) == TotalProcessed.
type BatchResult struct {
	Successful     []*domain.ScoreSubmission `json:"successful"`
	Failed         []BatchFailure            `json:"failed"`
	TotalProcessed int                       `json:"total_processed"`
}

// SubmitBatch submits every request independently, in order. Only an empty
// or oversized batch fails as a whole.
func (s *SubmissionService) SubmitBatch(ctx context.Context, principal *domain.Principal, reqs []SubmitRequest) (*BatchResult, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, domainerrors.InvalidInput("batch must contain at least one submission")
	}
	if len(reqs) > s.cfg.MaxBatchSize {
		return nil, domainerrors.InvalidInputf("batch of %d exceeds the maximum of %d", len(reqs), s.cfg.MaxBatchSize).
			WithDetails(map[string]int{"max_batch_size": s.cfg.MaxBatchSize})
	}

	result := &BatchResult{
		Successful: []*domain.ScoreSubmission{},
		Failed:     []BatchFailure{},
	}
	for i, req := range reqs {
		sub, err := s.Submit(ctx, principal, req)
		result.TotalProcessed++
		if err != nil {
			result.Failed = append(result.Failed, batchFailure(i, err))
			continue
		}
		result.Successful = append(result.Successful, sub)
	}

	s.logger.Info("batch processed",
		slog.String("player_id", principal.UserID),
		slog.Int("successful", len(result.Successful)),
		slog.Int("failed", len(result.Failed)))
	return result, nil
}

func batchFailure(index int, err error) BatchFailure {
	f := BatchFailure{Index: index, Code: domainerrors.CodeOf(err), Message: err.Error()}
	if de, ok := domainerrors.As(err); ok {
		f.Message = de.Message
		f.Details = de.Details
	}
	return f
}

// Get returns a submission. Players see only their own.
func (s *SubmissionService) Get(ctx context.Context, principal *domain.Principal, submissionID string) (*domain.ScoreSubmission, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	sub, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.PlayerID != principal.UserID && !principal.IsAdmin() {
		return nil, domainerrors.Forbidden("submission belongs to another player")
	}
	return sub, nil
}

// GetAuditTrail returns the ordered lifecycle trail of a submission.
func (s *SubmissionService) GetAuditTrail(ctx context.Context, principal *domain.Principal, submissionID string) ([]domain.AuditEntry, error) {
	sub, err := s.Get(ctx, principal, submissionID)
	if err != nil {
		return nil, err
	}
	trail := make([]domain.AuditEntry, len(sub.AuditTrail))
	copy(trail, sub.AuditTrail)
	return trail, nil
}

func (s *SubmissionService) load(ctx context.Context, submissionID string) (*domain.ScoreSubmission, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainerrors.NotFoundf("submission %s not found", submissionID)
		}
		return nil, domainerrors.Infrastructure(err, "get submission")
	}
	return sub, nil
}

// Dispute moves the caller's own VALIDATED or APPROVED submission to DISPUTED.
// The reason must be within the configured rune bounds.
func (s *SubmissionService) Dispute(ctx context.Context, principal *domain.Principal, submissionID, reason string) (*domain.ScoreSubmission, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	tag := fmt.Sprintf("min=%d,max=%d", s.cfg.DisputeReasonMin, s.cfg.DisputeReasonMax)
	if err := s.validator.Var("reason", reason, tag); err != nil {
		return nil, err
	}

	sub, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	unlock := s.boards.locks.lock(sub.LeaderboardID)
	defer unlock()
	if sub, err = s.load(ctx, submissionID); err != nil {
		return nil, err
	}

	if sub.PlayerID != principal.UserID {
		return nil, domainerrors.Forbidden("only the submitting player may dispute a submission")
	}
	if sub.Status == domain.SubmissionDisputed {
		return nil, domainerrors.Conflict("submission is already disputed")
	}
	if !sub.Status.Disputable() {
		return nil, domainerrors.Conflictf("submission in status %s cannot be disputed", sub.Status).
			WithDetails(map[string]string{"status": string(sub.Status)})
	}

	previous := sub.Status
	now := s.now()
	sub.Status = domain.SubmissionDisputed
	sub.DisputeReason = reason
	sub.Append(domain.AuditDisputed, principal.UserID, reason, now)

	if err := s.store.SaveSubmission(ctx, sub); err != nil {
		return nil, domainerrors.Infrastructure(err, "save submission")
	}

	audit(ctx, s.audit, s.logger, ActionSubmissionDisputed, principal.UserID, domain.ResourceSubmission, sub.ID, previous, sub.Status)
	s.metrics.SubmissionTransition(string(sub.Status))
	s.logger.Info("submission disputed",
		slog.String("submission_id", sub.ID),
		slog.String("player_id", sub.PlayerID))
	return sub, nil
}

// AdminActionRequest is an admin review decision.
type AdminActionRequest struct {
	Action domain.AdminAction `json:"action" validate:"required,oneof=APPROVE REJECT ROLLBACK"`
	Reason string             `json:"reason,omitempty" validate:"max=500"`
}

// AdminAction applies an admin decision. APPROVE accepts VALIDATED or
// DISPUTED submissions. REJECT needs a reason and reverts an applied score.
// ROLLBACK accepts only APPROVED submissions and restores the player's
// entry as it was before the submission.
func (s *SubmissionService) AdminAction(ctx context.Context, principal *domain.Principal, submissionID string, req AdminActionRequest) (*domain.ScoreSubmission, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	req.Action = domain.AdminAction(strings.ToUpper(strings.TrimSpace(string(req.Action))))
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if req.Action == domain.AdminReject && req.Reason == "" {
		return nil, domainerrors.InvalidInput("a reason is required to reject a submission")
	}

	sub, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	unlock := s.boards.locks.lock(sub.LeaderboardID)
	defer unlock()
	if sub, err = s.load(ctx, submissionID); err != nil {
		return nil, err
	}

	previous := sub.Status
	var (
		next   domain.SubmissionStatus
		action domain.AuditAction
		revert bool
	)
	switch req.Action {
	case domain.AdminApprove:
		if previous != domain.SubmissionValidated && previous != domain.SubmissionDisputed {
			return nil, transitionConflict("approve", previous)
		}
		next, action = domain.SubmissionApproved, domain.AuditApproved
	case domain.AdminReject:
		if previous.IsTerminal() {
			return nil, transitionConflict("reject", previous)
		}
		next, action, revert = domain.SubmissionRejected, domain.AuditRejected, sub.Applied
	case domain.AdminRollback:
		if previous != domain.SubmissionApproved {
			return nil, transitionConflict("roll back", previous)
		}
		next, action, revert = domain.SubmissionRolledBack, domain.AuditRolledBack, sub.Applied
	}

	var change *boardChange
	if revert {
		if change, err = s.revert(ctx, sub); err != nil {
			return nil, err
		}
	}

	now := s.now()
	sub.Status = next
	sub.ReviewedBy = principal.UserID
	sub.ReviewedAt = &now
	if next == domain.SubmissionRejected {
		sub.RejectionReason = req.Reason
	}
	if revert {
		sub.Applied = false
	}
	sub.Append(action, principal.UserID, req.Reason, now)

	if err := s.store.SaveSubmission(ctx, sub); err != nil {
		if change != nil {
			change.undo()
		}
		return nil, domainerrors.Infrastructure(err, "save submission")
	}

	if change != nil {
		s.forget(sub.LeaderboardID, sub.PlayerID)
		change.commit()
	}

	audit(ctx, s.audit, s.logger, adminAuditAction(req.Action), principal.UserID, domain.ResourceSubmission, sub.ID,
		map[string]any{"status": previous}, map[string]any{"status": next, "reason": req.Reason})
	s.metrics.SubmissionTransition(string(next))
	s.logger.Info("admin action applied",
		slog.String("submission_id", sub.ID),
		slog.String("action", string(req.Action)),
		slog.String("from", string(previous)),
		slog.String("to", string(next)),
		slog.String("admin_id", principal.UserID),
		slog.Bool("reverted", revert))
	return sub, nil
}

func transitionConflict(verb string, status domain.SubmissionStatus) error {
	return domainerrors.Conflictf("cannot %s submission in status %s", verb, status).
		WithDetails(map[string]string{"status": string(status)})
}

func adminAuditAction(a domain.AdminAction) string {
	switch a {
	case domain.AdminApprove:
		return ActionSubmissionApproved
	case domain.AdminReject:
		return ActionSubmissionRejected
	default:
		return ActionSubmissionRolledBack
	}
}

// boardChange is a reverted entry whose event and directory update wait for
// the submission to be stored.
type boardChange struct {
	undo   func()
	commit func()
}

// revert undoes a submission's effect on the ranking. Callers hold the
// board lock.
//
// When the submission is the player's latest applied one, the entry it
// replaced is restored, or the player is removed if the submission created
// the entry. When later applied submissions exist, the current score stays:
// the submission is spliced out of their prior-entry chain and its outcome
// is taken off the win/loss counters.
func (s *SubmissionService) revert(ctx context.Context, sub *domain.ScoreSubmission) (*boardChange, error) {
	_, board, err := s.boards.writableBoard(ctx, sub.LeaderboardID)
	if err != nil {
		return nil, err
	}
	later, err := s.laterApplied(ctx, sub)
	if err != nil {
		return nil, domainerrors.Infrastructure(err, "load player submissions")
	}
	current, had := board.Entry(sub.PlayerID)

	if len(later) > 0 {
		return s.spliceOut(ctx, board, sub, later, current, had)
	}

	if sub.PriorEntry != nil {
		res, err := board.Upsert(sub.PlayerID, sub.PriorEntry.Fields())
		if err != nil {
			return nil, err
		}
		change := hub.EntryChange{
			Entry:        res.Entry,
			PreviousRank: res.PreviousRank,
			NewRank:      res.NewRank,
			SubmissionID: sub.ID,
		}
		if had {
			change.PreviousScore = &current.Score
		}
		return &boardChange{
			undo: func() { s.restoreEntry(board, sub.PlayerID, current, had) },
			commit: func() {
				s.boards.entryChanged(board, res.Entry)
				s.boards.publish(hub.NewEntryChangeEvent(sub.LeaderboardID, change))
			},
		}, nil
	}

	if !had {
		return &boardChange{undo: func() {}, commit: func() {}}, nil
	}
	removed, err := board.Remove(sub.PlayerID)
	if err != nil {
		return nil, err
	}
	return &boardChange{
		undo: func() { s.restoreEntry(board, sub.PlayerID, current, true) },
		commit: func() {
			s.boards.entryRemoved(sub.LeaderboardID, removed)
			s.boards.publish(hub.NewEntryRemovedEvent(sub.LeaderboardID, sub.PlayerID, removed.Rank))
		},
	}, nil
}

// laterApplied returns the player's applied submissions on sub's board that
// were applied after sub, in apply order.
func (s *SubmissionService) laterApplied(ctx context.Context, sub *domain.ScoreSubmission) ([]*domain.ScoreSubmission, error) {
	subs, err := s.store.PlayerSubmissions(ctx, sub.PlayerID)
	if err != nil {
		return nil, err
	}
	var later []*domain.ScoreSubmission
	for _, o := range subs {
		if o.ID == sub.ID || o.LeaderboardID != sub.LeaderboardID || !o.Applied {
			continue
		}
		if appliedBefore(sub, o) {
			later = append(later, o)
		}
	}
	slices.SortStableFunc(later, func(a, b *domain.ScoreSubmission) int {
		if appliedBefore(a, b) {
			return -1
		}
		if appliedBefore(b, a) {
			return 1
		}
		return 0
	})
	return later, nil
}

func appliedBefore(a, b *domain.ScoreSubmission) bool {
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// spliceOut removes a superseded submission from the chain of later ones.
// The later submissions are stored on commit, after sub itself.
func (s *SubmissionService) spliceOut(ctx context.Context, board *ranking.Board, sub *domain.ScoreSubmission, later []*domain.ScoreSubmission, current domain.LeaderboardEntry, had bool) (*boardChange, error) {
	if sub.PriorEntry != nil {
		prior := *sub.PriorEntry
		later[0].PriorEntry = &prior
	} else {
		later[0].PriorEntry = nil
	}
	for _, o := range later[1:] {
		if o.PriorEntry != nil {
			adjusted := withoutOutcome(*o.PriorEntry, sub.Outcome)
			o.PriorEntry = &adjusted
		}
	}

	saveLater := func() {
		for _, o := range later {
			if err := s.store.SaveSubmission(ctx, o); err != nil {
				s.logger.Error("failed to update superseding submission",
					slog.String("submission_id", o.ID),
					slog.String("reverted_id", sub.ID),
					slog.String("error", err.Error()))
			}
		}
	}

	if sub.Outcome == domain.OutcomeNone || !had {
		return &boardChange{undo: func() {}, commit: saveLater}, nil
	}

	adjusted := withoutOutcome(current, sub.Outcome)
	res, err := board.Upsert(sub.PlayerID, adjusted.Fields())
	if err != nil {
		return nil, err
	}
	change := hub.EntryChange{
		Entry:         res.Entry,
		PreviousRank:  res.PreviousRank,
		NewRank:       res.NewRank,
		SubmissionID:  sub.ID,
		PreviousScore: &current.Score,
	}
	return &boardChange{
		undo: func() { s.restoreEntry(board, sub.PlayerID, current, true) },
		commit: func() {
			saveLater()
			s.boards.entryChanged(board, res.Entry)
			s.boards.publish(hub.NewEntryChangeEvent(sub.LeaderboardID, change))
		},
	}, nil
}

// withoutOutcome takes one match outcome off an entry's counters.
func withoutOutcome(e domain.LeaderboardEntry, o domain.Outcome) domain.LeaderboardEntry {
	if o == domain.OutcomeNone {
		return e
	}
	e.GamesPlayed = max(0, e.GamesPlayed-1)
	switch o {
	case domain.OutcomeWin:
		e.Wins = max(0, e.Wins-1)
	case domain.OutcomeLoss:
		e.Losses = max(0, e.Losses-1)
	}
	return e
}

// ListSubmissions returns the admin review queue, newest first.
func (s *SubmissionService) ListSubmissions(ctx context.Context, principal *domain.Principal, filter store.SubmissionFilter, params store.PaginationParams) (*store.PaginatedResult[*domain.ScoreSubmission], error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domainerrors.InvalidInputf("unknown submission status %q", filter.Status)
	}
	page, err := s.store.ListSubmissions(ctx, filter, params)
	if err != nil {
		if domainerrors.CodeOf(err) == domainerrors.CodeInvalidInput {
			return nil, err
		}
		return nil, domainerrors.Infrastructure(err, "list submissions")
	}
	return page, nil
}

// Statistics counts submissions by status within r. Admin only.
func (s *SubmissionService) Statistics(ctx context.Context, principal *domain.Principal, r domain.DateRange) (*domain.SubmissionStats, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return nil, domainerrors.InvalidInput("date range start must be before its end")
	}
	stats, err := s.store.SubmissionStats(ctx, r)
	if err != nil {
		return nil, domainerrors.Infrastructure(err, "submission statistics")
	}
	return stats, nil
}

func historyKey(leaderboardID, playerID string) string {
	return leaderboardID + "/" + playerID
}

// historyFor returns the player's accepted scores on a board, oldest first,
// hydrating from the store on first use.
func (s *SubmissionService) historyFor(ctx context.Context, leaderboardID, playerID string) ([]anticheat.Sample, error) {
	key := historyKey(leaderboardID, playerID)

	s.historyMu.Lock()
	cached, ok := s.history[key]
	s.historyMu.Unlock()
	if ok {
		return cached, nil
	}

	subs, err := s.store.PlayerSubmissions(ctx, playerID)
	if err != nil {
		return nil, err
	}
	samples := []anticheat.Sample{}
	for _, sub := range subs {
		if sub.LeaderboardID != leaderboardID || !sub.Applied {
			continue
		}
		if sub.Status != domain.SubmissionValidated && sub.Status != domain.SubmissionApproved {
			continue
		}
		samples = append(samples, anticheat.Sample{Score: sub.Score, At: sub.CreatedAt})
	}
	samples = s.trim(samples)

	s.historyMu.Lock()
	s.history[key] = samples
	s.historyMu.Unlock()
	return samples, nil
}

func (s *SubmissionService) remember(sub *domain.ScoreSubmission) {
	key := historyKey(sub.LeaderboardID, sub.PlayerID)
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	samples := append(s.history[key], anticheat.Sample{Score: sub.Score, At: sub.CreatedAt})
	s.history[key] = s.trim(samples)
}

func (s *SubmissionService) forget(leaderboardID, playerID string) {
	s.historyMu.Lock()
	delete(s.history, historyKey(leaderboardID, playerID))
	s.historyMu.Unlock()
}

func (s *SubmissionService) trim(samples []anticheat.Sample) []anticheat.Sample {
	if w := s.evaluator.HistoryWindow(); len(samples) > w {
		return append([]anticheat.Sample(nil), samples[len(samples)-w:]...)
	}
	return samples
}
