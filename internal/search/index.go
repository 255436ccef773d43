package search

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// PlayerIndex wraps a Bleve index of player documents.
//
// Thread safety: All public methods are safe for concurrent use.
// The mutex protects against index corruption during rebuild operations.
type PlayerIndex struct {
	index  bleve.Index
	path   string // empty for a memory-only index
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the player index.
type Options struct {
	DataPath string       // Directory for index storage; empty keeps the index in memory
	Logger   *slog.Logger // Logger for operations (uses discard if nil)
}

// mappingVersion is incremented whenever the index mapping changes.
// This triggers an automatic rebuild on startup when the version doesn't match.
const mappingVersion = "1"

// NewPlayerIndex creates or opens a player index.
// If the existing index is corrupted or has an outdated mapping, it's removed
// and recreated; callers repopulate it from the ranking boards.
func NewPlayerIndex(opts Options) (*PlayerIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.DataPath == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		return &PlayerIndex{index: index, logger: logger}, nil
	}

	indexPath := filepath.Join(opts.DataPath, "players.bleve")
	versionPath := filepath.Join(opts.DataPath, "players.version")

	var index bleve.Index
	var err error
	needsRebuild := false

	indexExists := false
	if _, statErr := os.Stat(indexPath); statErr == nil {
		indexExists = true
	}

	if indexExists {
		existingVersion, readErr := os.ReadFile(versionPath) //#nosec G304 -- derived from the data dir
		if readErr != nil || string(existingVersion) != mappingVersion {
			logger.Info("player index mapping version changed, will rebuild",
				"old_version", string(existingVersion),
				"new_version", mappingVersion,
			)
			needsRebuild = true
		}
	}

	if !needsRebuild && indexExists {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("failed to open existing index, will recreate",
				"path", indexPath,
				"error", err,
			)
			needsRebuild = true
		}
	}

	if needsRebuild {
		if removeErr := os.RemoveAll(indexPath); removeErr != nil {
			return nil, fmt.Errorf("remove old index: %w", removeErr)
		}
		index = nil
	}

	if index == nil {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if writeErr := os.WriteFile(versionPath, []byte(mappingVersion), 0o600); writeErr != nil {
			logger.Warn("failed to write player index version file", "error", writeErr)
		}
		logger.Info("created new player index", "path", indexPath, "mapping_version", mappingVersion)
	} else {
		logger.Info("opened existing player index", "path", indexPath)
	}

	return &PlayerIndex{
		index:  index,
		path:   indexPath,
		logger: logger,
	}, nil
}

// Close closes the index and releases resources.
func (s *PlayerIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// Index adds or replaces one document.
func (s *PlayerIndex) Index(doc *PlayerDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(doc.ID, doc.ToMap())
}

// IndexAll indexes documents in batches.
func (s *PlayerIndex) IndexAll(docs []*PlayerDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const batchSize = 500

	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))

		batch := s.index.NewBatch()
		for _, doc := range docs[i:end] {
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// Remove deletes one player's document on a board.
func (s *PlayerIndex) Remove(leaderboardID, playerID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(DocumentID(leaderboardID, playerID))
}

// RemoveLeaderboard deletes every document of a board and returns how many
// were removed.
func (s *PlayerIndex) RemoveLeaderboard(leaderboardID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := bleve.NewTermQuery(leaderboardID)
	q.SetField("leaderboard_id")

	removed := 0
	for {
		req := bleve.NewSearchRequestOptions(q, 1000, 0, false)
		res, err := s.index.Search(req)
		if err != nil {
			return removed, fmt.Errorf("find board documents: %w", err)
		}
		if len(res.Hits) == 0 {
			return removed, nil
		}

		batch := s.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := s.index.Batch(batch); err != nil {
			return removed, fmt.Errorf("delete board documents: %w", err)
		}
		removed += len(res.Hits)
	}
}

// DocumentCount returns the total number of indexed documents.
func (s *PlayerIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild drops every document and indexes docs from scratch.
//
// This acquires an exclusive lock and blocks searches while it runs.
func (s *PlayerIndex) Rebuild(docs []*PlayerDocument) error {
	s.mu.Lock()
	if err := s.index.Close(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("close index: %w", err)
	}

	var index bleve.Index
	var err error
	if s.path == "" {
		index, err = bleve.NewMemOnly(buildIndexMapping())
	} else {
		if rmErr := os.RemoveAll(s.path); rmErr != nil {
			s.mu.Unlock()
			return fmt.Errorf("remove index: %w", rmErr)
		}
		index, err = bleve.New(s.path, buildIndexMapping())
	}
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create index: %w", err)
	}
	s.index = index
	s.mu.Unlock()

	s.logger.Info("rebuilt player index", "documents", len(docs))
	return s.IndexAll(docs)
}
