package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ladderline/ladder-server/internal/search"
)

func (s *Server) registerPlayerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchPlayers",
		Method:      http.MethodGet,
		Path:        "/api/v1/players/search",
		Summary:     "Search players",
		Description: "Full-text player lookup across every leaderboard",
		Tags:        []string{"Players"},
	}, s.handleSearchPlayers)
}

// SearchPlayersInput contains player directory query parameters.
type SearchPlayersInput struct {
	Query         string `query:"q" doc:"Name fragment or exact player ID"`
	LeaderboardID string `query:"leaderboard" doc:"Restrict to one leaderboard"`
	Region        string `query:"region" doc:"Restrict to a region"`
	Tier          string `query:"tier" doc:"Restrict to a tier"`
	Limit         int    `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Maximum hits"`
	Offset        int    `query:"offset" default:"0" minimum:"0" doc:"Hits to skip"`
}

// SearchPlayersOutput wraps search results for Huma.
type SearchPlayersOutput struct {
	Body *search.SearchResult
}

func (s *Server) handleSearchPlayers(ctx context.Context, input *SearchPlayersInput) (*SearchPlayersOutput, error) {
	result, err := s.services.Leaderboards.SearchPlayers(ctx, search.SearchParams{
		Query:         input.Query,
		LeaderboardID: input.LeaderboardID,
		Region:        input.Region,
		Tier:          input.Tier,
		Limit:         input.Limit,
		Offset:        input.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &SearchPlayersOutput{Body: result}, nil
}
