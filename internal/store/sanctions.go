package store

import (
	"context"
	"errors"

	"github.com/ladderline/ladder-server/internal/domain"
)

// GetSanction returns the sanction record for a player, or nil when the
// player has never been sanctioned.
func (s *Store) GetSanction(ctx context.Context, playerID string) (*domain.PlayerSanction, error) {
	sanction, err := s.Sanctions.Get(ctx, playerID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return sanction, err
}

// SaveSanction creates or replaces a player's sanction record.
func (s *Store) SaveSanction(ctx context.Context, sanction *domain.PlayerSanction) error {
	return s.Sanctions.Put(ctx, sanction.PlayerID, sanction)
}
