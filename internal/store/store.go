// Package store persists leaderboards, score submissions, player sanctions,
// hub subscriptions and ranking snapshots in Badger.
package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ladderline/ladder-server/internal/domain"
)

// Key prefixes.
const (
	prefixLeaderboard  = "lb:"
	prefixSubmission   = "sub:"
	prefixSanction     = "sanction:"
	prefixSubscription = "subscr:"
	prefixConnSubs     = "connsub:"
	prefixRanking      = "rank:"
	prefixRankingMeta  = "rankmeta:"
)

// Submission index names.
const (
	IndexPlayer  = "player"
	IndexBoard   = "board"
	IndexCreated = "created"
	IndexMatch   = "match"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time

	Leaderboards *Entity[domain.Leaderboard]
	Submissions  *Entity[domain.ScoreSubmission]
	Sanctions    *Entity[domain.PlayerSanction]
}

// New opens a Store at path. An empty path opens an in-memory database,
// used by tests and ephemeral deployments.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable Badger's internal logging
	if path == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
		opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
	s.initLeaderboards()
	s.initSubmissions()
	s.initSanctions()

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path, "in_memory", path == "")
	}

	return s, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// RunGC reclaims value log space. It is cheap when there is nothing to do.
func (s *Store) RunGC() error {
	if s.db.Opts().InMemory {
		return nil
	}
	err := s.db.RunValueLogGC(0.5)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}

func (s *Store) initLeaderboards() {
	s.Leaderboards = NewEntity[domain.Leaderboard](s, prefixLeaderboard)
}

// initSubmissions indexes submissions by player (history hydration), by board,
// by creation time (review queue order), and by match ID (duplicate detection).
func (s *Store) initSubmissions() {
	s.Submissions = NewEntity[domain.ScoreSubmission](s, prefixSubmission).
		WithIndex(IndexPlayer, func(sub *domain.ScoreSubmission) []string {
			return []string{sub.PlayerID}
		}).
		WithIndex(IndexBoard, func(sub *domain.ScoreSubmission) []string {
			return []string{sub.LeaderboardID}
		}).
		WithIndex(IndexCreated, func(sub *domain.ScoreSubmission) []string {
			return []string{sortableTime(sub.CreatedAt)}
		}).
		WithIndex(IndexMatch, func(sub *domain.ScoreSubmission) []string {
			if sub.MatchID == "" {
				return nil
			}
			return []string{sub.LeaderboardID + "/" + sub.PlayerID + "/" + sub.MatchID}
		})
}

func (s *Store) initSanctions() {
	s.Sanctions = NewEntity[domain.PlayerSanction](s, prefixSanction)
}
