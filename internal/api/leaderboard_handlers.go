package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
	"github.com/ladderline/ladder-server/internal/http/response"
	"github.com/ladderline/ladder-server/internal/hub"
	"github.com/ladderline/ladder-server/internal/ranking"
	"github.com/ladderline/ladder-server/internal/service"
)

func (s *Server) registerLeaderboardRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "createLeaderboard",
		Method:      http.MethodPost,
		Path:        "/api/v1/leaderboards",
		Summary:     "Create leaderboard",
		Description: "Registers a new leaderboard partition. Admin only.",
		Tags:        []string{"Leaderboards"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCreateLeaderboard)

	huma.Register(s.api, huma.Operation{
		OperationID: "listLeaderboards",
		Method:      http.MethodGet,
		Path:        "/api/v1/leaderboards",
		Summary:     "List leaderboards",
		Description: "Returns every leaderboard with its current size",
		Tags:        []string{"Leaderboards"},
	}, s.handleListLeaderboards)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLeaderboard",
		Method:      http.MethodGet,
		Path:        "/api/v1/leaderboards/{id}",
		Summary:     "Get leaderboard",
		Description: "Returns a leaderboard by ID",
		Tags:        []string{"Leaderboards"},
	}, s.handleGetLeaderboard)

	huma.Register(s.api, huma.Operation{
		OperationID: "setLeaderboardStatus",
		Method:      http.MethodPut,
		Path:        "/api/v1/leaderboards/{id}/status",
		Summary:     "Set leaderboard status",
		Description: "Activates, locks or retires a leaderboard. Admin only.",
		Tags:        []string{"Leaderboards"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSetLeaderboardStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLeaderboardEntries",
		Method:      http.MethodGet,
		Path:        "/api/v1/leaderboards/{id}/entries",
		Summary:     "Get leaderboard page",
		Description: "Returns one page of ranked entries, optionally sorted and filtered",
		Tags:        []string{"Leaderboards"},
	}, s.handleGetEntries)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLeaderboardTop",
		Method:      http.MethodGet,
		Path:        "/api/v1/leaderboards/{id}/top",
		Summary:     "Get top players",
		Description: "Returns the top N entries by score",
		Tags:        []string{"Leaderboards"},
	}, s.handleGetTop)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPlayerRank",
		Method:      http.MethodGet,
		Path:        "/api/v1/leaderboards/{id}/players/{playerId}",
		Summary:     "Get player rank",
		Description: "Returns a player's entry with its current rank",
		Tags:        []string{"Leaderboards"},
	}, s.handleGetPlayerRank)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPlayerContext",
		Method:      http.MethodGet,
		Path:        "/api/v1/leaderboards/{id}/players/{playerId}/context",
		Summary:     "Get player context",
		Description: "Returns a player's entry with the entries ranked just above and below",
		Tags:        []string{"Leaderboards"},
	}, s.handleGetPlayerContext)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeLeaderboardPlayer",
		Method:      http.MethodDelete,
		Path:        "/api/v1/leaderboards/{id}/players/{playerId}",
		Summary:     "Remove player",
		Description: "Removes a player's entry from a leaderboard. Admin only.",
		Tags:        []string{"Leaderboards"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRemovePlayer)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchLeaderboard",
		Method:      http.MethodGet,
		Path:        "/api/v1/leaderboards/{id}/search",
		Summary:     "Search leaderboard by name",
		Description: "Returns entries whose player name contains the query, best rank first",
		Tags:        []string{"Leaderboards"},
	}, s.handleSearchLeaderboard)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLeaderboardStatistics",
		Method:      http.MethodGet,
		Path:        "/api/v1/leaderboards/{id}/statistics",
		Summary:     "Get leaderboard statistics",
		Description: "Returns player count and score distribution for a leaderboard",
		Tags:        []string{"Leaderboards"},
	}, s.handleGetLeaderboardStatistics)

	huma.Register(s.api, huma.Operation{
		OperationID: "resetLeaderboard",
		Method:      http.MethodPost,
		Path:        "/api/v1/leaderboards/{id}/reset",
		Summary:     "Reset leaderboard",
		Description: "Removes every entry from a leaderboard. Admin only.",
		Tags:        []string{"Leaderboards"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleResetLeaderboard)
}

// === DTOs ===

// LeaderboardResponse contains leaderboard data in API responses.
type LeaderboardResponse struct {
	ID          string    `json:"id" doc:"Leaderboard ID"`
	Name        string    `json:"name" doc:"Display name"`
	Description string    `json:"description,omitempty" doc:"Description"`
	Region      string    `json:"region,omitempty" doc:"Region partition"`
	Season      string    `json:"season,omitempty" doc:"Season partition"`
	Status      string    `json:"status" doc:"ACTIVE, LOCKED or INACTIVE"`
	MaxEntries  int       `json:"max_entries,omitempty" doc:"Entry cap, 0 for unbounded"`
	Players     int       `json:"players" doc:"Current number of ranked players"`
	CreatedAt   time.Time `json:"created_at" doc:"Creation time"`
	UpdatedAt   time.Time `json:"updated_at" doc:"Last update time"`
}

// LeaderboardOutput wraps a leaderboard for Huma.
type LeaderboardOutput struct {
	Body LeaderboardResponse
}

// ListLeaderboardsResponse contains a list of leaderboards.
type ListLeaderboardsResponse struct {
	Leaderboards []LeaderboardResponse `json:"leaderboards" doc:"Leaderboards"`
}

// ListLeaderboardsOutput wraps the list for Huma.
type ListLeaderboardsOutput struct {
	Body ListLeaderboardsResponse
}

// CreateLeaderboardRequest is the request body for creating a leaderboard.
type CreateLeaderboardRequest struct {
	ID          string `json:"id" doc:"Lowercase slug, unique"`
	Name        string `json:"name" doc:"Display name"`
	Description string `json:"description,omitempty" doc:"Description"`
	Region      string `json:"region,omitempty" doc:"Region partition"`
	Season      string `json:"season,omitempty" doc:"Season partition"`
	MaxEntries  int    `json:"max_entries,omitempty" minimum:"0" doc:"Entry cap, 0 for unbounded"`
}

// CreateLeaderboardInput wraps the create request for Huma.
type CreateLeaderboardInput struct {
	Authorization string `header:"Authorization"`
	Body          CreateLeaderboardRequest
}

// LeaderboardIDInput addresses one leaderboard.
type LeaderboardIDInput struct {
	ID string `path:"id" doc:"Leaderboard ID"`
}

// SetStatusRequest is the request body for changing a leaderboard's status.
type SetStatusRequest struct {
	Status string `json:"status" enum:"ACTIVE,LOCKED,INACTIVE" doc:"New status"`
}

// SetStatusInput wraps the status request for Huma.
type SetStatusInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Leaderboard ID"`
	Body          SetStatusRequest
}

// GetEntriesInput contains page, sort and filter parameters.
type GetEntriesInput struct {
	ID       string `path:"id" doc:"Leaderboard ID"`
	Page     int    `query:"page" default:"1" minimum:"1" maximum:"1000000" doc:"1-based page number"`
	Limit    int    `query:"limit" minimum:"0" doc:"Page size, clamped to the server maximum"`
	Sort     string `query:"sort" default:"score" enum:"score,wins,mmr,last_active_at" doc:"Sort field"`
	Order    string `query:"order" default:"desc" enum:"asc,desc" doc:"Sort order"`
	MinScore string `query:"min_score" doc:"Minimum score, inclusive"`
	MaxScore string `query:"max_score" doc:"Maximum score, inclusive"`
	Tier     string `query:"tier" doc:"Only entries in this tier"`
	Region   string `query:"region" doc:"Only entries from this region"`
}

// PageResponse is one page of ranked entries.
type PageResponse struct {
	Entries    []domain.LeaderboardEntry `json:"entries" doc:"Ranked entries"`
	Total      int                       `json:"total" doc:"Entries matching the filters"`
	TotalPages int                       `json:"total_pages" doc:"Number of pages"`
	Page       int                       `json:"page" doc:"Current page"`
	Limit      int                       `json:"limit" doc:"Effective page size"`
	HasMore    bool                      `json:"has_more" doc:"Whether a later page exists"`
}

// PageOutput wraps a page for Huma.
type PageOutput struct {
	Body PageResponse
}

// GetTopInput contains parameters for the top N query.
type GetTopInput struct {
	ID    string `path:"id" doc:"Leaderboard ID"`
	Limit int    `query:"limit" default:"10" minimum:"1" doc:"Number of entries"`
}

// EntriesResponse contains a list of entries.
type EntriesResponse struct {
	Entries []domain.LeaderboardEntry `json:"entries" doc:"Ranked entries"`
}

// EntriesOutput wraps an entry list for Huma.
type EntriesOutput struct {
	Body EntriesResponse
}

// PlayerInput addresses one player on one leaderboard.
type PlayerInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Leaderboard ID"`
	PlayerID      string `path:"playerId" doc:"Player ID"`
}

// EntryOutput wraps one entry for Huma.
type EntryOutput struct {
	Body domain.LeaderboardEntry
}

// GetContextInput contains parameters for the rank context query.
type GetContextInput struct {
	ID       string `path:"id" doc:"Leaderboard ID"`
	PlayerID string `path:"playerId" doc:"Player ID"`
	Range    int    `query:"range" default:"5" minimum:"0" doc:"Entries to include on each side"`
}

// ContextOutput wraps a rank context for Huma.
type ContextOutput struct {
	Body ranking.Context
}

// SearchLeaderboardInput contains the name query.
type SearchLeaderboardInput struct {
	ID    string `path:"id" doc:"Leaderboard ID"`
	Query string `query:"q" doc:"Case-insensitive name fragment"`
}

// StatisticsOutput wraps leaderboard statistics for Huma.
type StatisticsOutput struct {
	Body ranking.Statistics
}

// ResetLeaderboardInput wraps the reset request for Huma.
type ResetLeaderboardInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Leaderboard ID"`
}

// ResetResponse reports a reset.
type ResetResponse struct {
	LeaderboardID string `json:"leaderboard_id" doc:"Leaderboard ID"`
	Removed       int    `json:"removed" doc:"Number of entries removed"`
}

// ResetOutput wraps the reset response for Huma.
type ResetOutput struct {
	Body ResetResponse
}

// === Handlers ===

func (s *Server) handleCreateLeaderboard(ctx context.Context, input *CreateLeaderboardInput) (*LeaderboardOutput, error) {
	lb, err := s.services.Leaderboards.CreateLeaderboard(ctx, PrincipalFrom(ctx), service.CreateLeaderboardRequest{
		ID:          input.Body.ID,
		Name:        input.Body.Name,
		Description: input.Body.Description,
		Region:      input.Body.Region,
		Season:      input.Body.Season,
		MaxEntries:  input.Body.MaxEntries,
	})
	if err != nil {
		return nil, err
	}
	return &LeaderboardOutput{Body: s.leaderboardResponse(lb)}, nil
}

func (s *Server) handleListLeaderboards(ctx context.Context, _ *struct{}) (*ListLeaderboardsOutput, error) {
	lbs, err := s.services.Leaderboards.ListLeaderboards(ctx)
	if err != nil {
		return nil, err
	}

	resp := make([]LeaderboardResponse, len(lbs))
	for i, lb := range lbs {
		resp[i] = s.leaderboardResponse(lb)
	}
	return &ListLeaderboardsOutput{Body: ListLeaderboardsResponse{Leaderboards: resp}}, nil
}

func (s *Server) handleGetLeaderboard(ctx context.Context, input *LeaderboardIDInput) (*LeaderboardOutput, error) {
	lb, err := s.services.Leaderboards.GetLeaderboard(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &LeaderboardOutput{Body: s.leaderboardResponse(lb)}, nil
}

func (s *Server) handleSetLeaderboardStatus(ctx context.Context, input *SetStatusInput) (*LeaderboardOutput, error) {
	lb, err := s.services.Leaderboards.SetStatus(ctx, PrincipalFrom(ctx), input.ID, domain.LeaderboardStatus(input.Body.Status))
	if err != nil {
		return nil, err
	}
	return &LeaderboardOutput{Body: s.leaderboardResponse(lb)}, nil
}

func (s *Server) handleGetEntries(ctx context.Context, input *GetEntriesInput) (*PageOutput, error) {
	filters, err := entryFilters(input)
	if err != nil {
		return nil, err
	}

	page, err := s.services.Leaderboards.GetPage(ctx, input.ID, ranking.PageQuery{
		Sort:    ranking.SortField(input.Sort),
		Order:   ranking.SortOrder(input.Order),
		Filters: filters,
		Page:    input.Page,
		Limit:   input.Limit,
	})
	if err != nil {
		return nil, err
	}

	return &PageOutput{Body: PageResponse{
		Entries:    page.Data,
		Total:      page.Total,
		TotalPages: page.TotalPages,
		Page:       page.Page,
		Limit:      page.Limit,
		HasMore:    page.HasMore,
	}}, nil
}

// entryFilters parses the optional filter parameters. Score bounds arrive as
// strings so that an absent bound is distinguishable from zero.
func entryFilters(input *GetEntriesInput) (ranking.Filters, error) {
	var f ranking.Filters

	parse := func(name, raw string) (*int64, error) {
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, domainerrors.InvalidInputf("%s must be an integer", name)
		}
		return &v, nil
	}

	var err error
	if f.MinScore, err = parse("min_score", input.MinScore); err != nil {
		return f, err
	}
	if f.MaxScore, err = parse("max_score", input.MaxScore); err != nil {
		return f, err
	}
	f.Tier = domain.Tier(input.Tier)
	f.Region = input.Region
	return f, nil
}

func (s *Server) handleGetTop(ctx context.Context, input *GetTopInput) (*EntriesOutput, error) {
	entries, err := s.services.Leaderboards.TopN(ctx, input.ID, input.Limit)
	if err != nil {
		return nil, err
	}
	return &EntriesOutput{Body: EntriesResponse{Entries: entries}}, nil
}

func (s *Server) handleGetPlayerRank(ctx context.Context, input *PlayerInput) (*EntryOutput, error) {
	entry, err := s.services.Leaderboards.GetRank(ctx, input.ID, input.PlayerID)
	if err != nil {
		return nil, err
	}
	return &EntryOutput{Body: entry}, nil
}

func (s *Server) handleGetPlayerContext(ctx context.Context, input *GetContextInput) (*ContextOutput, error) {
	c, err := s.services.Leaderboards.GetContext(ctx, input.ID, input.PlayerID, input.Range)
	if err != nil {
		return nil, err
	}
	return &ContextOutput{Body: c}, nil
}

func (s *Server) handleRemovePlayer(ctx context.Context, input *PlayerInput) (*EntryOutput, error) {
	entry, err := s.services.Leaderboards.RemovePlayer(ctx, PrincipalFrom(ctx), input.ID, input.PlayerID)
	if err != nil {
		return nil, err
	}
	return &EntryOutput{Body: entry}, nil
}

func (s *Server) handleSearchLeaderboard(ctx context.Context, input *SearchLeaderboardInput) (*EntriesOutput, error) {
	entries, err := s.services.Leaderboards.SearchByName(ctx, input.ID, input.Query)
	if err != nil {
		return nil, err
	}
	return &EntriesOutput{Body: EntriesResponse{Entries: entries}}, nil
}

func (s *Server) handleGetLeaderboardStatistics(ctx context.Context, input *LeaderboardIDInput) (*StatisticsOutput, error) {
	stats, err := s.services.Leaderboards.Statistics(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &StatisticsOutput{Body: stats}, nil
}

func (s *Server) handleResetLeaderboard(ctx context.Context, input *ResetLeaderboardInput) (*ResetOutput, error) {
	removed, err := s.services.Leaderboards.Reset(ctx, PrincipalFrom(ctx), input.ID)
	if err != nil {
		return nil, err
	}
	return &ResetOutput{Body: ResetResponse{LeaderboardID: input.ID, Removed: removed}}, nil
}

// handleLeaderboardStream checks the leaderboard exists before handing the
// request to the SSE handler, which subscribes to the {id} path segment.
func (s *Server) handleLeaderboardStream(stream *hub.SSEHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.services.Leaderboards.GetLeaderboard(r.Context(), chi.URLParam(r, "id")); err != nil {
			response.Error(w, err, s.logger)
			return
		}
		stream.ServeHTTP(w, r)
	}
}

func (s *Server) leaderboardResponse(lb *domain.Leaderboard) LeaderboardResponse {
	resp := LeaderboardResponse{
		ID:          lb.ID,
		Name:        lb.Name,
		Description: lb.Description,
		Region:      lb.Region,
		Season:      lb.Season,
		Status:      string(lb.Status),
		MaxEntries:  lb.MaxEntries,
		CreatedAt:   lb.CreatedAt,
		UpdatedAt:   lb.UpdatedAt,
	}
	resp.Players = s.services.Leaderboards.Size(lb.ID)
	return resp
}
