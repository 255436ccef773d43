package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
	"github.com/ladderline/ladder-server/internal/service"
	"github.com/ladderline/ladder-server/internal/store"
	"github.com/ladderline/ladder-server/internal/store/sqlite"
)

func (s *Server) registerAdminRoutes() {
	admin := []map[string][]string{{"bearer": {}}}

	huma.Register(s.api, huma.Operation{
		OperationID: "listSubmissions",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/submissions",
		Summary:     "List submissions",
		Description: "Review queue of submissions, newest first, with cursor pagination",
		Tags:        []string{"Admin"},
		Security:    admin,
	}, s.handleListSubmissions)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSubmissionStatistics",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/submissions/statistics",
		Summary:     "Submission statistics",
		Description: "Counts submissions by status within an optional date range",
		Tags:        []string{"Admin"},
		Security:    admin,
	}, s.handleSubmissionStatistics)

	huma.Register(s.api, huma.Operation{
		OperationID: "submissionAdminAction",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/submissions/{id}/actions",
		Summary:     "Review submission",
		Description: "Approves, rejects or rolls back a submission",
		Tags:        []string{"Admin"},
		Security:    admin,
	}, s.handleAdminAction)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPlayerSanction",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/players/{playerId}/sanction",
		Summary:     "Get player sanction",
		Description: "Returns a player's ban and suspension state",
		Tags:        []string{"Admin"},
		Security:    admin,
	}, s.handleGetSanction)

	huma.Register(s.api, huma.Operation{
		OperationID: "banPlayer",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/players/{playerId}/ban",
		Summary:     "Ban player",
		Description: "Blocks every future submission from a player",
		Tags:        []string{"Admin"},
		Security:    admin,
	}, s.handleBanPlayer)

	huma.Register(s.api, huma.Operation{
		OperationID: "unbanPlayer",
		Method:      http.MethodDelete,
		Path:        "/api/v1/admin/players/{playerId}/ban",
		Summary:     "Unban player",
		Description: "Lifts a ban",
		Tags:        []string{"Admin"},
		Security:    admin,
	}, s.handleUnbanPlayer)

	huma.Register(s.api, huma.Operation{
		OperationID: "suspendPlayer",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/players/{playerId}/suspend",
		Summary:     "Suspend player",
		Description: "Blocks submissions from a player until a given time",
		Tags:        []string{"Admin"},
		Security:    admin,
	}, s.handleSuspendPlayer)

	huma.Register(s.api, huma.Operation{
		OperationID: "resetRateLimit",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/ratelimit/{clientId}/reset",
		Summary:     "Reset rate limit",
		Description: "Clears every counter of a client",
		Tags:        []string{"Admin"},
		Security:    admin,
	}, s.handleResetRateLimit)

	huma.Register(s.api, huma.Operation{
		OperationID: "queryAuditLog",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/audit",
		Summary:     "Query audit log",
		Description: "Returns audit records, newest first",
		Tags:        []string{"Admin"},
		Security:    admin,
	}, s.handleQueryAudit)
}

// === DTOs ===

// ListSubmissionsInput contains review queue filters.
type ListSubmissionsInput struct {
	Authorization string `header:"Authorization"`
	Status        string `query:"status" doc:"Only submissions in this status"`
	LeaderboardID string `query:"leaderboard" doc:"Only submissions to this leaderboard"`
	PlayerID      string `query:"player" doc:"Only submissions from this player"`
	FlaggedOnly   bool   `query:"flagged" doc:"Only submissions with anti-cheat flags"`
	From          string `query:"from" doc:"RFC 3339 lower bound, inclusive"`
	To            string `query:"to" doc:"RFC 3339 upper bound, exclusive"`
	Limit         int    `query:"limit" default:"50" minimum:"1" maximum:"200" doc:"Items per page"`
	Cursor        string `query:"cursor" doc:"Cursor from the previous page"`
}

// SubmissionListResponse is one page of the review queue.
type SubmissionListResponse struct {
	Submissions []SubmissionResponse `json:"submissions" doc:"Submissions, newest first"`
	NextCursor  string               `json:"next_cursor,omitempty" doc:"Cursor for the next page"`
	HasMore     bool                 `json:"has_more" doc:"Whether more pages exist"`
}

// SubmissionListOutput wraps the queue page for Huma.
type SubmissionListOutput struct {
	Body SubmissionListResponse
}

// StatisticsRangeInput bounds the statistics query.
type StatisticsRangeInput struct {
	Authorization string `header:"Authorization"`
	From          string `query:"from" doc:"RFC 3339 lower bound, inclusive"`
	To            string `query:"to" doc:"RFC 3339 upper bound, exclusive"`
}

// SubmissionStatsOutput wraps submission statistics for Huma.
type SubmissionStatsOutput struct {
	Body *domain.SubmissionStats
}

// AdminActionRequest is the request body for a review decision.
type AdminActionRequest struct {
	Action string `json:"action" enum:"APPROVE,REJECT,ROLLBACK" doc:"Decision"`
	Reason string `json:"reason,omitempty" maxLength:"500" doc:"Required for REJECT"`
}

// AdminActionInput wraps the review decision for Huma.
type AdminActionInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Submission ID"`
	Body          AdminActionRequest
}

// PlayerIDInput addresses a player.
type PlayerIDInput struct {
	Authorization string `header:"Authorization"`
	PlayerID      string `path:"playerId" doc:"Player ID"`
}

// BanRequest is the request body for banning a player.
type BanRequest struct {
	Reason string `json:"reason" doc:"Why the player is banned"`
}

// BanInput wraps a ban request for Huma.
type BanInput struct {
	Authorization string `header:"Authorization"`
	PlayerID      string `path:"playerId" doc:"Player ID"`
	Body          BanRequest
}

// SuspendRequest is the request body for suspending a player.
type SuspendRequest struct {
	Until  time.Time `json:"until" doc:"End of the suspension"`
	Reason string    `json:"reason" doc:"Why the player is suspended"`
}

// SuspendInput wraps a suspension request for Huma.
type SuspendInput struct {
	Authorization string `header:"Authorization"`
	PlayerID      string `path:"playerId" doc:"Player ID"`
	Body          SuspendRequest
}

// SanctionOutput wraps a player sanction for Huma.
type SanctionOutput struct {
	Body *domain.PlayerSanction
}

// ResetRateLimitInput addresses a rate limit client.
type ResetRateLimitInput struct {
	Authorization string `header:"Authorization"`
	ClientID      string `path:"clientId" doc:"User ID or ip:<address>"`
}

// ResetRateLimitResponse reports a rate limit reset.
type ResetRateLimitResponse struct {
	ClientID string `json:"client_id" doc:"Client ID"`
	Cleared  bool   `json:"cleared" doc:"Whether the client had any counters"`
}

// ResetRateLimitOutput wraps the reset response for Huma.
type ResetRateLimitOutput struct {
	Body ResetRateLimitResponse
}

// QueryAuditInput contains audit log filters.
type QueryAuditInput struct {
	Authorization string `header:"Authorization"`
	ResourceType  string `query:"resource_type" doc:"submission, leaderboard or player"`
	ResourceID    string `query:"resource_id" doc:"Resource ID"`
	Actor         string `query:"actor" doc:"User ID or system"`
	Action        string `query:"action" doc:"Audit action"`
	Since         string `query:"since" doc:"RFC 3339 lower bound"`
	Limit         int    `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum records"`
}

// AuditLogResponse lists audit records.
type AuditLogResponse struct {
	Records []*domain.AuditRecord `json:"records" doc:"Audit records, newest first"`
}

// AuditLogOutput wraps the audit records for Huma.
type AuditLogOutput struct {
	Body AuditLogResponse
}

// === Handlers ===

func (s *Server) handleListSubmissions(ctx context.Context, input *ListSubmissionsInput) (*SubmissionListOutput, error) {
	r, err := parseRange(input.From, input.To)
	if err != nil {
		return nil, err
	}

	page, err := s.services.Submissions.ListSubmissions(ctx, PrincipalFrom(ctx), store.SubmissionFilter{
		Status:        domain.SubmissionStatus(strings.ToUpper(input.Status)),
		LeaderboardID: input.LeaderboardID,
		PlayerID:      input.PlayerID,
		FlaggedOnly:   input.FlaggedOnly,
		Range:         r,
	}, store.PaginationParams{Limit: input.Limit, Cursor: input.Cursor})
	if err != nil {
		return nil, err
	}

	subs := make([]SubmissionResponse, len(page.Items))
	for i, sub := range page.Items {
		subs[i] = submissionResponse(sub)
	}
	return &SubmissionListOutput{Body: SubmissionListResponse{
		Submissions: subs,
		NextCursor:  page.NextCursor,
		HasMore:     page.HasMore,
	}}, nil
}

func (s *Server) handleSubmissionStatistics(ctx context.Context, input *StatisticsRangeInput) (*SubmissionStatsOutput, error) {
	r, err := parseRange(input.From, input.To)
	if err != nil {
		return nil, err
	}

	stats, err := s.services.Submissions.Statistics(ctx, PrincipalFrom(ctx), r)
	if err != nil {
		return nil, err
	}
	return &SubmissionStatsOutput{Body: stats}, nil
}

func (s *Server) handleAdminAction(ctx context.Context, input *AdminActionInput) (*SubmissionOutput, error) {
	sub, err := s.services.Submissions.AdminAction(ctx, PrincipalFrom(ctx), input.ID, service.AdminActionRequest{
		Action: domain.AdminAction(input.Body.Action),
		Reason: input.Body.Reason,
	})
	if err != nil {
		return nil, err
	}
	return &SubmissionOutput{Body: submissionResponse(sub)}, nil
}

func (s *Server) handleGetSanction(ctx context.Context, input *PlayerIDInput) (*SanctionOutput, error) {
	sanction, err := s.services.Submissions.GetSanction(ctx, PrincipalFrom(ctx), input.PlayerID)
	if err != nil {
		return nil, err
	}
	return &SanctionOutput{Body: sanction}, nil
}

func (s *Server) handleBanPlayer(ctx context.Context, input *BanInput) (*SanctionOutput, error) {
	sanction, err := s.services.Submissions.BanPlayer(ctx, PrincipalFrom(ctx), input.PlayerID, service.BanRequest{
		Reason: input.Body.Reason,
	})
	if err != nil {
		return nil, err
	}
	return &SanctionOutput{Body: sanction}, nil
}

func (s *Server) handleUnbanPlayer(ctx context.Context, input *PlayerIDInput) (*SanctionOutput, error) {
	sanction, err := s.services.Submissions.UnbanPlayer(ctx, PrincipalFrom(ctx), input.PlayerID)
	if err != nil {
		return nil, err
	}
	return &SanctionOutput{Body: sanction}, nil
}

func (s *Server) handleSuspendPlayer(ctx context.Context, input *SuspendInput) (*SanctionOutput, error) {
	sanction, err := s.services.Submissions.SuspendPlayer(ctx, PrincipalFrom(ctx), input.PlayerID, service.SuspendRequest{
		Until:  input.Body.Until,
		Reason: input.Body.Reason,
	})
	if err != nil {
		return nil, err
	}
	return &SanctionOutput{Body: sanction}, nil
}

func (s *Server) handleResetRateLimit(ctx context.Context, input *ResetRateLimitInput) (*ResetRateLimitOutput, error) {
	p := PrincipalFrom(ctx)
	if p == nil {
		return nil, domainerrors.Unauthorized("authentication required")
	}
	if !p.IsAdmin() {
		return nil, domainerrors.Forbidden("admin role required")
	}
	if s.infra.Limiter == nil {
		return nil, domainerrors.PreconditionFailed("rate limiting is disabled")
	}

	cleared := s.infra.Limiter.Reset(input.ClientID)
	s.logger.Info("Rate limit reset",
		"client_id", input.ClientID,
		"cleared", cleared,
		"admin_id", p.UserID,
	)
	return &ResetRateLimitOutput{Body: ResetRateLimitResponse{ClientID: input.ClientID, Cleared: cleared}}, nil
}

func (s *Server) handleQueryAudit(ctx context.Context, input *QueryAuditInput) (*AuditLogOutput, error) {
	q := sqlite.AuditQuery{
		ResourceType: input.ResourceType,
		ResourceID:   input.ResourceID,
		Actor:        input.Actor,
		Action:       input.Action,
		Limit:        input.Limit,
	}
	if input.Since != "" {
		since, err := time.Parse(time.RFC3339, input.Since)
		if err != nil {
			return nil, domainerrors.InvalidInput("since must be an RFC 3339 timestamp")
		}
		q.Since = since
	}

	records, err := s.services.Audit.Query(ctx, PrincipalFrom(ctx), q)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*domain.AuditRecord{}
	}
	return &AuditLogOutput{Body: AuditLogResponse{Records: records}}, nil
}

// parseRange reads optional RFC 3339 bounds.
func parseRange(from, to string) (domain.DateRange, error) {
	var r domain.DateRange
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return r, domainerrors.InvalidInput("from must be an RFC 3339 timestamp")
		}
		r.From = t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return r, domainerrors.InvalidInput("to must be an RFC 3339 timestamp")
		}
		r.To = t
	}
	return r, nil
}
