package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ladderline/ladder-server/internal/domain"
	"github.com/ladderline/ladder-server/internal/service"
)

func (s *Server) registerSubmissionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "submitScore",
		Method:        http.MethodPost,
		Path:          "/api/v1/submissions",
		Summary:       "Submit score",
		Description:   "Validates a score and applies it to the leaderboard",
		Tags:          []string{"Submissions"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleSubmitScore)

	huma.Register(s.api, huma.Operation{
		OperationID: "submitScoreBatch",
		Method:      http.MethodPost,
		Path:        "/api/v1/submissions/batch",
		Summary:     "Submit scores in bulk",
		Description: "Submits every score independently; failures do not affect the rest of the batch",
		Tags:        []string{"Submissions"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSubmitBatch)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSubmission",
		Method:      http.MethodGet,
		Path:        "/api/v1/submissions/{id}",
		Summary:     "Get submission",
		Description: "Returns a submission. Players see only their own.",
		Tags:        []string{"Submissions"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetSubmission)

	huma.Register(s.api, huma.Operation{
		OperationID: "disputeSubmission",
		Method:      http.MethodPost,
		Path:        "/api/v1/submissions/{id}/dispute",
		Summary:     "Dispute submission",
		Description: "Flags a validated or rejected submission for admin review",
		Tags:        []string{"Submissions"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDisputeSubmission)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSubmissionAudit",
		Method:      http.MethodGet,
		Path:        "/api/v1/submissions/{id}/audit",
		Summary:     "Get submission audit trail",
		Description: "Returns the lifecycle transitions of a submission",
		Tags:        []string{"Submissions"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetSubmissionAudit)
}

// === DTOs ===

// SubmitScoreRequest is the request body for submitting a score.
type SubmitScoreRequest struct {
	LeaderboardID string `json:"leaderboard_id" doc:"Target leaderboard"`
	Score         int64  `json:"score" doc:"Reported score"`
	MatchID       string `json:"match_id,omitempty" doc:"Game match ID, unique per player and leaderboard"`
	SessionID     string `json:"session_id,omitempty" doc:"Client session ID"`
	GameMode      string `json:"game_mode,omitempty" doc:"Game mode"`
	Region        string `json:"region,omitempty" doc:"Player region"`
	PlayerName    string `json:"player_name,omitempty" doc:"Display name, defaults to the player ID"`
	PlayerAvatar  string `json:"player_avatar,omitempty" doc:"Avatar URL"`
	Outcome       string `json:"outcome,omitempty" doc:"WIN, LOSS or DRAW"`
	MMR           *int   `json:"mmr,omitempty" doc:"Matchmaking rating after the match"`
	Checksum      string `json:"checksum,omitempty" doc:"Client integrity checksum"`
}

func (r SubmitScoreRequest) toService() service.SubmitRequest {
	return service.SubmitRequest{
		LeaderboardID: r.LeaderboardID,
		Score:         r.Score,
		MatchID:       r.MatchID,
		SessionID:     r.SessionID,
		GameMode:      r.GameMode,
		Region:        r.Region,
		PlayerName:    r.PlayerName,
		PlayerAvatar:  r.PlayerAvatar,
		Outcome:       domain.Outcome(r.Outcome),
		MMR:           r.MMR,
		Checksum:      r.Checksum,
	}
}

// SubmitScoreInput wraps the submit request for Huma.
type SubmitScoreInput struct {
	Authorization string `header:"Authorization"`
	Body          SubmitScoreRequest
}

// SubmissionResponse contains submission data in API responses.
type SubmissionResponse struct {
	ID              string              `json:"id" doc:"Submission ID"`
	PlayerID        string              `json:"player_id" doc:"Submitting player"`
	LeaderboardID   string              `json:"leaderboard_id" doc:"Target leaderboard"`
	Score           int64               `json:"score" doc:"Reported score"`
	MatchID         string              `json:"match_id,omitempty" doc:"Game match ID"`
	SessionID       string              `json:"session_id,omitempty" doc:"Client session ID"`
	GameMode        string              `json:"game_mode,omitempty" doc:"Game mode"`
	Region          string              `json:"region,omitempty" doc:"Player region"`
	Outcome         string              `json:"outcome,omitempty" doc:"Match outcome"`
	Status          string              `json:"status" doc:"Lifecycle status"`
	PreviousRank    *int                `json:"previous_rank" doc:"Rank before the submission, null for a new player"`
	NewRank         *int                `json:"new_rank" doc:"Rank after the submission"`
	AntiCheatFlags  []string            `json:"anti_cheat_flags" doc:"Soft anti-cheat flags"`
	DisputeReason   string              `json:"dispute_reason,omitempty" doc:"Player's dispute reason"`
	RejectionReason string              `json:"rejection_reason,omitempty" doc:"Why the submission was rejected"`
	ReviewedBy      string              `json:"reviewed_by,omitempty" doc:"Admin who last acted on it"`
	ReviewedAt      *time.Time          `json:"reviewed_at,omitempty" doc:"Time of the last admin action"`
	CreatedAt       time.Time           `json:"created_at" doc:"Submission time"`
	AuditTrail      []domain.AuditEntry `json:"audit_trail" doc:"Lifecycle transitions"`
}

func submissionResponse(sub *domain.ScoreSubmission) SubmissionResponse {
	flags := sub.AntiCheatFlags
	if flags == nil {
		flags = []string{}
	}
	trail := sub.AuditTrail
	if trail == nil {
		trail = []domain.AuditEntry{}
	}
	return SubmissionResponse{
		ID:              sub.ID,
		PlayerID:        sub.PlayerID,
		LeaderboardID:   sub.LeaderboardID,
		Score:           sub.Score,
		MatchID:         sub.MatchID,
		SessionID:       sub.SessionID,
		GameMode:        sub.GameMode,
		Region:          sub.Region,
		Outcome:         string(sub.Outcome),
		Status:          string(sub.Status),
		PreviousRank:    sub.PreviousRank,
		NewRank:         sub.NewRank,
		AntiCheatFlags:  flags,
		DisputeReason:   sub.DisputeReason,
		RejectionReason: sub.RejectionReason,
		ReviewedBy:      sub.ReviewedBy,
		ReviewedAt:      sub.ReviewedAt,
		CreatedAt:       sub.CreatedAt,
		AuditTrail:      trail,
	}
}

// SubmissionOutput wraps a submission for Huma.
type SubmissionOutput struct {
	Body SubmissionResponse
}

// SubmitBatchRequest is the request body for a batch submission.
type SubmitBatchRequest struct {
	Submissions []SubmitScoreRequest `json:"submissions" doc:"Submissions, processed in order"`
}

// SubmitBatchInput wraps the batch request for Huma.
type SubmitBatchInput struct {
	Authorization string `header:"Authorization"`
	Body          SubmitBatchRequest
}

// BatchFailureResponse describes one failed batch item.
type BatchFailureResponse struct {
	Index   int    `json:"index" doc:"Position in the request"`
	Code    string `json:"code" doc:"Error code"`
	Message string `json:"message" doc:"Error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// BatchResponse aggregates a batch submission.
type BatchResponse struct {
	Successful     []SubmissionResponse   `json:"successful" doc:"Accepted submissions"`
	Failed         []BatchFailureResponse `json:"failed" doc:"Failed items"`
	TotalProcessed int                    `json:"total_processed" doc:"Items processed"`
}

// BatchOutput wraps the batch response for Huma.
type BatchOutput struct {
	Body BatchResponse
}

// SubmissionIDInput addresses one submission.
type SubmissionIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Submission ID"`
}

// DisputeRequest is the request body for a dispute.
type DisputeRequest struct {
	Reason string `json:"reason" doc:"Why the result is wrong"`
}

// DisputeInput wraps the dispute request for Huma.
type DisputeInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Submission ID"`
	Body          DisputeRequest
}

// AuditTrailResponse lists a submission's transitions.
type AuditTrailResponse struct {
	SubmissionID string              `json:"submission_id" doc:"Submission ID"`
	Entries      []domain.AuditEntry `json:"entries" doc:"Transitions, oldest first"`
}

// AuditTrailOutput wraps the audit trail for Huma.
type AuditTrailOutput struct {
	Body AuditTrailResponse
}

// === Handlers ===

func (s *Server) handleSubmitScore(ctx context.Context, input *SubmitScoreInput) (*SubmissionOutput, error) {
	sub, err := s.services.Submissions.Submit(ctx, PrincipalFrom(ctx), input.Body.toService())
	if err != nil {
		return nil, err
	}
	return &SubmissionOutput{Body: submissionResponse(sub)}, nil
}

func (s *Server) handleSubmitBatch(ctx context.Context, input *SubmitBatchInput) (*BatchOutput, error) {
	reqs := make([]service.SubmitRequest, len(input.Body.Submissions))
	for i, r := range input.Body.Submissions {
		reqs[i] = r.toService()
	}

	result, err := s.services.Submissions.SubmitBatch(ctx, PrincipalFrom(ctx), reqs)
	if err != nil {
		return nil, err
	}

	resp := BatchResponse{
		Successful:     make([]SubmissionResponse, len(result.Successful)),
		Failed:         make([]BatchFailureResponse, len(result.Failed)),
		TotalProcessed: result.TotalProcessed,
	}
	for i, sub := range result.Successful {
		resp.Successful[i] = submissionResponse(sub)
	}
	for i, f := range result.Failed {
		resp.Failed[i] = BatchFailureResponse{
			Index:   f.Index,
			Code:    string(f.Code),
			Message: f.Message,
			Details: f.Details,
		}
	}
	return &BatchOutput{Body: resp}, nil
}

func (s *Server) handleGetSubmission(ctx context.Context, input *SubmissionIDInput) (*SubmissionOutput, error) {
	sub, err := s.services.Submissions.Get(ctx, PrincipalFrom(ctx), input.ID)
	if err != nil {
		return nil, err
	}
	return &SubmissionOutput{Body: submissionResponse(sub)}, nil
}

func (s *Server) handleDisputeSubmission(ctx context.Context, input *DisputeInput) (*SubmissionOutput, error) {
	sub, err := s.services.Submissions.Dispute(ctx, PrincipalFrom(ctx), input.ID, input.Body.Reason)
	if err != nil {
		return nil, err
	}
	return &SubmissionOutput{Body: submissionResponse(sub)}, nil
}

func (s *Server) handleGetSubmissionAudit(ctx context.Context, input *SubmissionIDInput) (*AuditTrailOutput, error) {
	entries, err := s.services.Submissions.GetAuditTrail(ctx, PrincipalFrom(ctx), input.ID)
	if err != nil {
		return nil, err
	}
	return &AuditTrailOutput{Body: AuditTrailResponse{SubmissionID: input.ID, Entries: entries}}, nil
}
