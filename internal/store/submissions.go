package store

import (
	"context"
	"errors"
	"slices"

	"github.com/ladderline/ladder-server/internal/domain"
)

// SubmissionFilter narrows the review queue. Zero fields match everything.
type SubmissionFilter struct {
	Status        domain.SubmissionStatus
	LeaderboardID string
	PlayerID      string
	FlaggedOnly   bool
	Range         domain.DateRange
}

// Matches reports whether sub passes the filter.
func (f SubmissionFilter) Matches(sub *domain.ScoreSubmission) bool {
	if f.Status != "" && sub.Status != f.Status {
		return false
	}
	if f.LeaderboardID != "" && sub.LeaderboardID != f.LeaderboardID {
		return false
	}
	if f.PlayerID != "" && sub.PlayerID != f.PlayerID {
		return false
	}
	if f.FlaggedOnly && len(sub.AntiCheatFlags) == 0 {
		return false
	}
	return f.Range.Contains(sub.CreatedAt)
}

// SaveSubmission creates or replaces a submission.
func (s *Store) SaveSubmission(ctx context.Context, sub *domain.ScoreSubmission) error {
	return s.Submissions.Put(ctx, sub.ID, sub)
}

// GetSubmission returns a submission by ID.
func (s *Store) GetSubmission(ctx context.Context, id string) (*domain.ScoreSubmission, error) {
	return s.Submissions.Get(ctx, id)
}

// ListSubmissions returns one page of submissions matching filter, newest first.
func (s *Store) ListSubmissions(ctx context.Context, filter SubmissionFilter, params PaginationParams) (*PaginatedResult[*domain.ScoreSubmission], error) {
	return s.Submissions.PageByIndex(ctx, IndexCreated, params, true, filter.Matches)
}

// PlayerSubmissions returns every submission by a player, oldest first.
func (s *Store) PlayerSubmissions(ctx context.Context, playerID string) ([]*domain.ScoreSubmission, error) {
	var out []*domain.ScoreSubmission
	for sub, err := range s.Submissions.ListByIndex(ctx, IndexPlayer, playerID) {
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	slices.SortStableFunc(out, func(a, b *domain.ScoreSubmission) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// FindByMatch returns the submission a player already made for a match on a
// board, or ErrNotFound.
func (s *Store) FindByMatch(ctx context.Context, leaderboardID, playerID, matchID string) (*domain.ScoreSubmission, error) {
	for sub, err := range s.Submissions.ListByIndex(ctx, IndexMatch, leaderboardID+"/"+playerID+"/"+matchID) {
		if err != nil {
			return nil, err
		}
		if sub.Status != domain.SubmissionRejected {
			return sub, nil
		}
	}
	return nil, ErrNotFound
}

// SubmissionStats aggregates submissions created within r.
func (s *Store) SubmissionStats(ctx context.Context, r domain.DateRange) (*domain.SubmissionStats, error) {
	stats := &domain.SubmissionStats{ByStatus: make(map[domain.SubmissionStatus]int)}
	for _, st := range domain.SubmissionStatuses() {
		stats.ByStatus[st] = 0
	}

	for sub, err := range s.Submissions.List(ctx) {
		if err != nil {
			return nil, err
		}
		if !r.Contains(sub.CreatedAt) {
			continue
		}
		stats.TotalSubmissions++
		stats.ByStatus[sub.Status]++
		if len(sub.AntiCheatFlags) > 0 {
			stats.Flagged++
		}
	}
	return stats, nil
}

// IsNotFound reports whether err is a store miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
