package store

import (
	"context"
	"slices"
	"strings"

	"github.com/ladderline/ladder-server/internal/domain"
)

// CreateLeaderboard stores a new leaderboard.
// Returns ErrAlreadyExists when the ID is taken.
func (s *Store) CreateLeaderboard(ctx context.Context, lb *domain.Leaderboard) error {
	return s.Leaderboards.Create(ctx, lb.ID, lb)
}

// GetLeaderboard returns a leaderboard by ID.
func (s *Store) GetLeaderboard(ctx context.Context, id string) (*domain.Leaderboard, error) {
	return s.Leaderboards.Get(ctx, id)
}

// UpdateLeaderboard replaces an existing leaderboard.
func (s *Store) UpdateLeaderboard(ctx context.Context, lb *domain.Leaderboard) error {
	return s.Leaderboards.Update(ctx, lb.ID, lb)
}

// ListLeaderboards returns every leaderboard ordered by ID.
func (s *Store) ListLeaderboards(ctx context.Context) ([]*domain.Leaderboard, error) {
	var out []*domain.Leaderboard
	for lb, err := range s.Leaderboards.List(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, lb)
	}
	slices.SortFunc(out, func(a, b *domain.Leaderboard) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}
