package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ladderline/ladder-server/internal/domain"
)

// RankingMeta describes the last snapshot of one partition.
type RankingMeta struct {
	LeaderboardID string    `json:"leaderboard_id"`
	Version       uint64    `json:"version"`
	Entries       int       `json:"entries"`
	SavedAt       time.Time `json:"saved_at"`
}

func rankingPrefix(leaderboardID string) []byte {
	return []byte(prefixRanking + leaderboardID + string(indexSep))
}

func rankingKey(leaderboardID, playerID string) []byte {
	return append(rankingPrefix(leaderboardID), playerID...)
}

// SaveRanking replaces the stored snapshot of a partition with entries.
// Keys for players no longer present are removed in the same batch.
func (s *Store) SaveRanking(ctx context.Context, leaderboardID string, entries []domain.LeaderboardEntry, version uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stale := make(map[string]struct{})
	prefix := rankingPrefix(leaderboardID)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stale[string(it.Item().Key())] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan ranking %s: %w", leaderboardID, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		key := rankingKey(leaderboardID, e.PlayerID)
		delete(stale, string(key))
		if err := wb.Set(key, data); err != nil {
			return err
		}
	}
	for key := range stale {
		if err := wb.Delete([]byte(key)); err != nil {
			return err
		}
	}

	meta, err := json.Marshal(RankingMeta{
		LeaderboardID: leaderboardID,
		Version:       version,
		Entries:       len(entries),
		SavedAt:       s.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if err := wb.Set([]byte(prefixRankingMeta+leaderboardID), meta); err != nil {
		return err
	}

	return wb.Flush()
}

// LoadRanking returns the stored entries of a partition in key order.
// A partition that was never saved yields no entries and a nil meta.
func (s *Store) LoadRanking(ctx context.Context, leaderboardID string) ([]domain.LeaderboardEntry, *RankingMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		entries []domain.LeaderboardEntry
		meta    *RankingMeta
	)
	prefix := rankingPrefix(leaderboardID)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixRankingMeta + leaderboardID))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			meta = &RankingMeta{}
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, meta) }); err != nil {
				return err
			}
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e domain.LeaderboardEntry
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return fmt.Errorf("unmarshal entry: %w", err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entries, meta, nil
}
