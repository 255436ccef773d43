package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
	"github.com/ladderline/ladder-server/internal/hub"
	"github.com/ladderline/ladder-server/internal/metrics"
	"github.com/ladderline/ladder-server/internal/ranking"
	"github.com/ladderline/ladder-server/internal/search"
	"github.com/ladderline/ladder-server/internal/store"
	"github.com/ladderline/ladder-server/internal/validation"
)

// Audit actions emitted by LeaderboardService.
const (
	ActionLeaderboardCreated = "LEADERBOARD_CREATED"
	ActionLeaderboardStatus  = "LEADERBOARD_STATUS_CHANGED"
	ActionLeaderboardReset   = "LEADERBOARD_RESET"
	ActionEntryRemoved       = "ENTRY_REMOVED"
)

// LeaderboardService owns leaderboard metadata and the ranking boards behind
// it. Every write to a board happens under that board's lock.
type LeaderboardService struct {
	store     *store.Store
	registry  *ranking.Registry
	directory *search.PlayerIndex
	events    EventPublisher
	audit     AuditSink
	metrics   *metrics.Metrics
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time

	locks *boardLocks

	snapMu sync.Mutex
	saved  map[string]uint64 // board -> version last written to the snapshot
}

// NewLeaderboardService creates a new leaderboard service. directory, events,
// sink and m may be nil.
func NewLeaderboardService(
	st *store.Store,
	registry *ranking.Registry,
	directory *search.PlayerIndex,
	events EventPublisher,
	sink AuditSink,
	m *metrics.Metrics,
	validator *validation.Validator,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		store:     st,
		registry:  registry,
		directory: directory,
		events:    events,
		audit:     sink,
		metrics:   m,
		validator: validator,
		logger:    logger,
		now:       time.Now,
		locks:     newBoardLocks(),
		saved:     make(map[string]uint64),
	}
}

// CreateLeaderboardRequest describes a new partition. The stored ID is
// PartitionKey(ID, Region, Season).
type CreateLeaderboardRequest struct {
	ID          string `json:"id" validate:"required,slug,max=64"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"max=500"`
	Region      string `json:"region,omitempty" validate:"omitempty,slug,max=16"`
	Season      string `json:"season,omitempty" validate:"omitempty,slug,max=32"`
	MaxEntries  int    `json:"max_entries,omitempty" validate:"gte=0"`
}

// CreateLeaderboard registers a new leaderboard. Admin only.
func (s *LeaderboardService) CreateLeaderboard(ctx context.Context, principal *domain.Principal, req CreateLeaderboardRequest) (*domain.Leaderboard, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	req.ID = strings.ToLower(strings.TrimSpace(req.ID))
	req.Region = strings.ToLower(strings.TrimSpace(req.Region))
	req.Season = strings.ToLower(strings.TrimSpace(req.Season))
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	lb, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	audit(ctx, s.audit, s.logger, ActionLeaderboardCreated, principal.UserID, domain.ResourceLeaderboard, lb.ID, nil, lb)
	return lb, nil
}

func (s *LeaderboardService) create(ctx context.Context, req CreateLeaderboardRequest) (*domain.Leaderboard, error) {
	now := s.now()
	lb := &domain.Leaderboard{
		ID:          domain.PartitionKey(req.ID, req.Region, req.Season),
		Name:        req.Name,
		Description: req.Description,
		Region:      req.Region,
		Season:      req.Season,
		Status:      domain.LeaderboardActive,
		MaxEntries:  req.MaxEntries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateLeaderboard(ctx, lb); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domainerrors.Conflictf("leaderboard %s already exists", lb.ID)
		}
		return nil, domainerrors.Infrastructure(err, "create leaderboard")
	}

	s.registry.Ensure(lb.ID).SetCapacity(lb.MaxEntries)
	s.metrics.SetLeaderboardSize(lb.ID, 0)
	s.logger.Info("leaderboard created", slog.String("leaderboard_id", lb.ID))
	return lb, nil
}

// EnsureDefaults creates any of ids that do not exist yet.
func (s *LeaderboardService) EnsureDefaults(ctx context.Context, ids []string) error {
	for _, lbID := range ids {
		_, err := s.store.GetLeaderboard(ctx, lbID)
		if err == nil {
			continue
		}
		if !store.IsNotFound(err) {
			return domainerrors.Infrastructure(err, "load leaderboard "+lbID)
		}
		if _, err := s.create(ctx, CreateLeaderboardRequest{ID: lbID, Name: lbID}); err != nil && domainerrors.CodeOf(err) != domainerrors.CodeConflict {
			return err
		}
	}
	return nil
}

// GetLeaderboard returns leaderboard metadata.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, leaderboardID string) (*domain.Leaderboard, error) {
	lb, err := s.store.GetLeaderboard(ctx, leaderboardID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainerrors.NotFoundf("leaderboard %s not found", leaderboardID)
		}
		return nil, domainerrors.Infrastructure(err, "get leaderboard")
	}
	return lb, nil
}

// ListLeaderboards returns every leaderboard, ordered by ID.
func (s *LeaderboardService) ListLeaderboards(ctx context.Context) ([]*domain.Leaderboard, error) {
	lbs, err := s.store.ListLeaderboards(ctx)
	if err != nil {
		return nil, domainerrors.Infrastructure(err, "list leaderboards")
	}
	if lbs == nil {
		lbs = []*domain.Leaderboard{}
	}
	return lbs, nil
}

// SetStatus moves a leaderboard between ACTIVE, LOCKED and INACTIVE. Admin only.
func (s *LeaderboardService) SetStatus(ctx context.Context, principal *domain.Principal, leaderboardID string, status domain.LeaderboardStatus) (*domain.Leaderboard, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, domainerrors.InvalidInputf("unknown leaderboard status %q", status)
	}

	unlock := s.locks.lock(leaderboardID)
	defer unlock()

	lb, err := s.GetLeaderboard(ctx, leaderboardID)
	if err != nil {
		return nil, err
	}
	previous := lb.Status
	if previous == status {
		return lb, nil
	}

	lb.Status = status
	lb.UpdatedAt = s.now()
	if err := s.store.UpdateLeaderboard(ctx, lb); err != nil {
		return nil, domainerrors.Infrastructure(err, "update leaderboard")
	}

	audit(ctx, s.audit, s.logger, ActionLeaderboardStatus, principal.UserID, domain.ResourceLeaderboard, lb.ID,
		map[string]any{"status": previous}, map[string]any{"status": status})
	s.logger.Info("leaderboard status changed",
		slog.String("leaderboard_id", lb.ID),
		slog.String("from", string(previous)),
		slog.String("to", string(status)))
	return lb, nil
}

// Size returns the number of ranked players on a leaderboard, 0 when no
// board has been loaded for it.
func (s *LeaderboardService) Size(leaderboardID string) int {
	if board, ok := s.registry.Get(leaderboardID); ok {
		return board.Len()
	}
	return 0
}

// readBoard returns the ranking board of an existing leaderboard.
func (s *LeaderboardService) readBoard(ctx context.Context, leaderboardID string) (*ranking.Board, error) {
	if _, err := s.GetLeaderboard(ctx, leaderboardID); err != nil {
		return nil, err
	}
	return s.registry.Ensure(leaderboardID), nil
}

// writableBoard is readBoard plus the status gate. Callers hold the board lock.
func (s *LeaderboardService) writableBoard(ctx context.Context, leaderboardID string) (*domain.Leaderboard, *ranking.Board, error) {
	lb, err := s.GetLeaderboard(ctx, leaderboardID)
	if err != nil {
		return nil, nil, err
	}
	if !lb.AcceptsWrites() {
		return nil, nil, domainerrors.PreconditionFailedf("leaderboard %s is %s", lb.ID, strings.ToLower(string(lb.Status)))
	}
	board := s.registry.Ensure(lb.ID)
	board.SetCapacity(lb.MaxEntries)
	return lb, board, nil
}

// GetPage returns one page of a leaderboard.
func (s *LeaderboardService) GetPage(ctx context.Context, leaderboardID string, q ranking.PageQuery) (ranking.Page, error) {
	board, err := s.readBoard(ctx, leaderboardID)
	if err != nil {
		return ranking.Page{}, err
	}
	return board.GetPage(q)
}

// TopN returns the best n entries.
func (s *LeaderboardService) TopN(ctx context.Context, leaderboardID string, n int) ([]domain.LeaderboardEntry, error) {
	board, err := s.readBoard(ctx, leaderboardID)
	if err != nil {
		return nil, err
	}
	return board.TopN(n)
}

// GetRank returns a player's entry and rank.
func (s *LeaderboardService) GetRank(ctx context.Context, leaderboardID, playerID string) (domain.LeaderboardEntry, error) {
	board, err := s.readBoard(ctx, leaderboardID)
	if err != nil {
		return domain.LeaderboardEntry{}, err
	}
	return board.GetRank(playerID)
}

// GetContext returns a player's rank neighbors.
func (s *LeaderboardService) GetContext(ctx context.Context, leaderboardID, playerID string, window int) (ranking.Context, error) {
	board, err := s.readBoard(ctx, leaderboardID)
	if err != nil {
		return ranking.Context{}, err
	}
	return board.GetContext(playerID, window)
}

// SearchByName finds entries on one board by display name.
func (s *LeaderboardService) SearchByName(ctx context.Context, leaderboardID, query string) ([]domain.LeaderboardEntry, error) {
	board, err := s.readBoard(ctx, leaderboardID)
	if err != nil {
		return nil, err
	}
	return board.SearchByName(query)
}

// Statistics summarises a leaderboard.
func (s *LeaderboardService) Statistics(ctx context.Context, leaderboardID string) (ranking.Statistics, error) {
	board, err := s.readBoard(ctx, leaderboardID)
	if err != nil {
		return ranking.Statistics{}, err
	}
	return board.Statistics(), nil
}

// SearchPlayers queries the cross-leaderboard player directory.
func (s *LeaderboardService) SearchPlayers(ctx context.Context, params search.SearchParams) (*search.SearchResult, error) {
	if s.directory == nil {
		return nil, domainerrors.PreconditionFailed("player directory is not available")
	}
	if strings.TrimSpace(params.Query) == "" && params.LeaderboardID == "" && params.Region == "" && params.Tier == "" {
		return nil, domainerrors.InvalidInput("a query or at least one filter is required")
	}
	res, err := s.directory.Search(ctx, params)
	if err != nil {
		return nil, domainerrors.Infrastructure(err, "search players")
	}
	return res, nil
}

// RemovePlayer deletes a player's entry. Admin only.
func (s *LeaderboardService) RemovePlayer(ctx context.Context, principal *domain.Principal, leaderboardID, playerID string) (domain.LeaderboardEntry, error) {
	if err := requireAdmin(principal); err != nil {
		return domain.LeaderboardEntry{}, err
	}

	unlock := s.locks.lock(leaderboardID)
	defer unlock()

	_, board, err := s.writableBoard(ctx, leaderboardID)
	if err != nil {
		return domain.LeaderboardEntry{}, err
	}
	removed, err := board.Remove(playerID)
	if err != nil {
		return domain.LeaderboardEntry{}, err
	}

	s.entryRemoved(leaderboardID, removed)
	s.publish(hub.NewEntryRemovedEvent(leaderboardID, playerID, removed.Rank))
	audit(ctx, s.audit, s.logger, ActionEntryRemoved, principal.UserID, domain.ResourceEntry,
		leaderboardID+"/"+playerID, removed, nil)
	s.logger.Info("leaderboard entry removed",
		slog.String("leaderboard_id", leaderboardID),
		slog.String("player_id", playerID),
		slog.String("admin_id", principal.UserID))
	return removed, nil
}

// Reset clears every entry on a leaderboard. Admin only.
func (s *LeaderboardService) Reset(ctx context.Context, principal *domain.Principal, leaderboardID string) (int, error) {
	if err := requireAdmin(principal); err != nil {
		return 0, err
	}

	unlock := s.locks.lock(leaderboardID)
	defer unlock()

	_, board, err := s.writableBoard(ctx, leaderboardID)
	if err != nil {
		return 0, err
	}
	removed := board.Reset()

	if s.directory != nil {
		if _, err := s.directory.RemoveLeaderboard(leaderboardID); err != nil {
			s.logger.Warn("player directory cleanup failed",
				slog.String("leaderboard_id", leaderboardID),
				slog.String("error", err.Error()))
		}
	}
	s.metrics.SetLeaderboardSize(leaderboardID, 0)
	s.publish(hub.NewLeaderboardResetEvent(leaderboardID, removed))
	audit(ctx, s.audit, s.logger, ActionLeaderboardReset, principal.UserID, domain.ResourceLeaderboard, leaderboardID,
		map[string]int{"entries": removed}, map[string]int{"entries": 0})
	s.logger.Info("leaderboard reset",
		slog.String("leaderboard_id", leaderboardID),
		slog.Int("removed", removed),
		slog.String("admin_id", principal.UserID))
	return removed, nil
}

// entryChanged keeps the directory and size gauge in step with a board write.
func (s *LeaderboardService) entryChanged(board *ranking.Board, entry domain.LeaderboardEntry) {
	if s.directory != nil {
		if err := s.directory.Index(search.NewPlayerDocument(board.ID(), &entry)); err != nil {
			s.logger.Warn("player directory index failed",
				slog.String("leaderboard_id", board.ID()),
				slog.String("player_id", entry.PlayerID),
				slog.String("error", err.Error()))
		}
	}
	s.metrics.SetLeaderboardSize(board.ID(), board.Len())
}

func (s *LeaderboardService) entryRemoved(leaderboardID string, entry domain.LeaderboardEntry) {
	if s.directory != nil {
		if err := s.directory.Remove(leaderboardID, entry.PlayerID); err != nil {
			s.logger.Warn("player directory delete failed",
				slog.String("leaderboard_id", leaderboardID),
				slog.String("player_id", entry.PlayerID),
				slog.String("error", err.Error()))
		}
	}
	if board, ok := s.registry.Get(leaderboardID); ok {
		s.metrics.SetLeaderboardSize(leaderboardID, board.Len())
	}
}

func (s *LeaderboardService) publish(event hub.Event) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

// Snapshot writes every board whose version moved since its last snapshot.
// It returns the number of boards written.
func (s *LeaderboardService) Snapshot(ctx context.Context) (int, error) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	written := 0
	for _, lbID := range s.registry.IDs() {
		board, ok := s.registry.Get(lbID)
		if !ok {
			continue
		}
		entries, version := board.Snapshot()
		if last, ok := s.saved[lbID]; ok && last == version {
			continue
		}

		start := time.Now()
		if err := s.store.SaveRanking(ctx, lbID, entries, version); err != nil {
			return written, domainerrors.Infrastructure(err, "save ranking snapshot "+lbID)
		}
		s.saved[lbID] = version
		s.metrics.SnapshotSaved(time.Since(start))
		written++

		s.logger.Debug("ranking snapshot saved",
			slog.String("leaderboard_id", lbID),
			slog.Int("entries", len(entries)),
			slog.Uint64("version", version))
	}
	return written, nil
}

// Restore loads every stored leaderboard's snapshot into the registry and
// rebuilds the player directory from the result.
func (s *LeaderboardService) Restore(ctx context.Context) error {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	lbs, err := s.ListLeaderboards(ctx)
	if err != nil {
		return err
	}

	var docs []*search.PlayerDocument
	total := 0
	for _, lb := range lbs {
		entries, _, err := s.store.LoadRanking(ctx, lb.ID)
		if err != nil {
			return domainerrors.Infrastructure(err, "load ranking snapshot "+lb.ID)
		}

		board := s.registry.Ensure(lb.ID)
		board.Load(entries)
		board.SetCapacity(lb.MaxEntries)
		s.saved[lb.ID] = board.Version()
		s.metrics.SetLeaderboardSize(lb.ID, board.Len())
		total += len(entries)

		for i := range entries {
			docs = append(docs, search.NewPlayerDocument(lb.ID, &entries[i]))
		}
	}

	if s.directory != nil {
		if err := s.directory.Rebuild(docs); err != nil {
			s.logger.Warn("player directory rebuild failed", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("rankings restored",
		slog.Int("leaderboards", len(lbs)),
		slog.Int("entries", total))
	return nil
}
