package domain

import "time"

// SubmissionStatus is the lifecycle state of a ScoreSubmission.
type SubmissionStatus string

const (
	SubmissionPending    SubmissionStatus = "PENDING"
	SubmissionValidated  SubmissionStatus = "VALIDATED"
	SubmissionApproved   SubmissionStatus = "APPROVED"
	SubmissionRejected   SubmissionStatus = "REJECTED"
	SubmissionDisputed   SubmissionStatus = "DISPUTED"
	SubmissionRolledBack SubmissionStatus = "ROLLED_BACK"
)

// SubmissionStatuses lists every status, used for statistics buckets.
func SubmissionStatuses() []SubmissionStatus {
	return []SubmissionStatus{
		SubmissionPending,
		SubmissionValidated,
		SubmissionApproved,
		SubmissionRejected,
		SubmissionDisputed,
		SubmissionRolledBack,
	}
}

// Valid checks if the status is known.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionPending, SubmissionValidated, SubmissionApproved,
		SubmissionRejected, SubmissionDisputed, SubmissionRolledBack:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s SubmissionStatus) IsTerminal() bool {
	return s == SubmissionRejected || s == SubmissionRolledBack
}

// Disputable reports whether a player may dispute a submission in this status.
func (s SubmissionStatus) Disputable() bool {
	return s == SubmissionValidated || s == SubmissionApproved
}

// Outcome is the optional match result carried by a submission.
type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
	OutcomeDraw Outcome = "DRAW"
)

// ScoreSubmission is one attempt to write a score into a leaderboard.
type ScoreSubmission struct {
	ID            string           `json:"id"`
	PlayerID      string           `json:"player_id"`
	LeaderboardID string           `json:"leaderboard_id"`
	Score         int64            `json:"score"`
	MatchID       string           `json:"match_id,omitempty"`
	SessionID     string           `json:"session_id,omitempty"`
	GameMode      string           `json:"game_mode,omitempty"`
	Region        string           `json:"region,omitempty"`
	Outcome       Outcome          `json:"outcome,omitempty"`
	Status        SubmissionStatus `json:"status"`

	PreviousRank *int `json:"previous_rank"`
	NewRank      *int `json:"new_rank"`

	AntiCheatFlags  []string   `json:"anti_cheat_flags"`
	DisputeReason   string     `json:"dispute_reason,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	ReviewedBy      string     `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`

	// Applied is true once the score has been written into the ranking.
	Applied bool `json:"applied"`
	// PriorEntry is the player's entry before this submission was applied;
	// nil when the player was new. ROLLBACK restores it.
	PriorEntry *LeaderboardEntry `json:"prior_entry,omitempty"`
	// Sequence is the board version right after the submission was applied.
	// It orders a player's applied submissions on one board.
	Sequence uint64 `json:"sequence,omitempty"`

	AuditTrail []AuditEntry `json:"audit_trail"`
}

// AuditAction names a lifecycle transition.
type AuditAction string

const (
	AuditSubmitted  AuditAction = "SUBMITTED"
	AuditApproved   AuditAction = "APPROVED"
	AuditRejected   AuditAction = "REJECTED"
	AuditDisputed   AuditAction = "DISPUTED"
	AuditRolledBack AuditAction = "ROLLED_BACK"
)

// AuditEntry is one append-only line of a submission's audit trail.
type AuditEntry struct {
	Action    AuditAction `json:"action"`
	Actor     string      `json:"actor"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Append records a transition on the trail.
func (s *ScoreSubmission) Append(action AuditAction, actor, reason string, at time.Time) {
	s.AuditTrail = append(s.AuditTrail, AuditEntry{
		Action:    action,
		Actor:     actor,
		Reason:    reason,
		Timestamp: at,
	})
}

// AdminAction is an admin-driven transition.
type AdminAction string

const (
	AdminApprove  AdminAction = "APPROVE"
	AdminReject   AdminAction = "REJECT"
	AdminRollback AdminAction = "ROLLBACK"
)

// Valid checks if the action is known.
func (a AdminAction) Valid() bool {
	return a == AdminApprove || a == AdminReject || a == AdminRollback
}

// SubmissionStats summarises the pipeline.
type SubmissionStats struct {
	TotalSubmissions int                      `json:"total_submissions"`
	ByStatus         map[SubmissionStatus]int `json:"by_status"`
	Flagged          int                      `json:"flagged"`
}

// DateRange is an optional half-open [From, To) filter. Zero bounds are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}
