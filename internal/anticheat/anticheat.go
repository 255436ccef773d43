// Package anticheat evaluates score submissions against a player's recent
// history and sanction state. Evaluation is pure: the same input always yields
// the same verdict and flags, so audit trails can be replayed.
package anticheat

import (
	"crypto/subtle"
	"encoding/hex"
	"slices"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
)

// Violation names a hard rejection.
type Violation string

const (
	ViolationNegativeScore    Violation = "NEGATIVE_SCORE"
	ViolationBanned           Violation = "PLAYER_BANNED"
	ViolationSuspended        Violation = "PLAYER_SUSPENDED"
	ViolationChecksumMissing  Violation = "CHECKSUM_MISSING"
	ViolationChecksumMismatch Violation = "CHECKSUM_MISMATCH"
)

// Flags attached to accepted submissions for later review.
const (
	FlagScoreVariance   = "SCORE_VARIANCE"
	FlagRapidSubmission = "RAPID_SUBMISSION"
)

// Config tunes the evaluator.
type Config struct {
	// VarianceMultiplier flags scores above this multiple of the recent average.
	VarianceMultiplier float64
	// HistoryWindow is the number of recent accepted scores considered.
	HistoryWindow int
	// MinHistory is the history size needed before variance applies.
	MinHistory int
	// MinSubmitInterval flags accepted submissions closer together than this.
	MinSubmitInterval time.Duration
	// ChecksumKey keys the submission checksum. Empty disables checksums.
	ChecksumKey []byte
	// RequireChecksum rejects submissions without a checksum.
	RequireChecksum bool
}

// Sample is one accepted score in a player's history.
type Sample struct {
	Score int64
	At    time.Time
}

// Input is everything the evaluator looks at.
type Input struct {
	Submission *domain.ScoreSubmission
	Checksum   string
	History    []Sample // oldest first
	Sanction   *domain.PlayerSanction
	Now        time.Time
}

// Result is the verdict. A nil Err means the submission may proceed.
type Result struct {
	Violation Violation
	Err       *domainerrors.Error
	Flags     []string
}

// Rejected reports whether the submission failed a hard constraint.
func (r Result) Rejected() bool {
	return r.Err != nil
}

// Evaluator applies Config to submissions.
type Evaluator struct {
	cfg Config
}

// New creates an evaluator.
func New(cfg Config) *Evaluator {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 20
	}
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = 1
	}
	return &Evaluator{cfg: cfg}
}

// HistoryWindow is the number of samples the evaluator wants.
func (e *Evaluator) HistoryWindow() int {
	return e.cfg.HistoryWindow
}

// Evaluate checks the hard constraints in order (ban, suspension,
// negative score, checksum) and, when all pass, computes review flags.
func (e *Evaluator) Evaluate(in Input) Result {
	sub := in.Submission

	if in.Sanction.IsBanned() {
		return reject(ViolationBanned, domainerrors.Forbiddenf("player %s is banned", sub.PlayerID))
	}
	if in.Sanction.SuspendedAt(in.Now) {
		return reject(ViolationSuspended, domainerrors.Forbiddenf("player %s is suspended until %s",
			sub.PlayerID, in.Sanction.SuspendedUntil.UTC().Format(time.RFC3339)))
	}
	if sub.Score < 0 {
		return reject(ViolationNegativeScore, domainerrors.InvalidInputf("score must not be negative, got %d", sub.Score))
	}
	if v, err := e.checkChecksum(sub, in.Checksum); err != nil {
		return reject(v, err)
	}

	return Result{Flags: e.flags(sub, in.History)}
}

func reject(v Violation, err *domainerrors.Error) Result {
	return Result{
		Violation: v,
		Err:       err.WithDetails(map[string]string{"violation": string(v)}),
	}
}

func (e *Evaluator) checkChecksum(sub *domain.ScoreSubmission, provided string) (Violation, *domainerrors.Error) {
	if len(e.cfg.ChecksumKey) == 0 {
		return "", nil
	}
	if provided == "" {
		if e.cfg.RequireChecksum {
			return ViolationChecksumMissing, domainerrors.InvalidInput("submission checksum is required")
		}
		return "", nil
	}

	want := Checksum(e.cfg.ChecksumKey, sub)
	if subtle.ConstantTimeCompare([]byte(want), []byte(provided)) != 1 {
		return ViolationChecksumMismatch, domainerrors.InvalidInput("submission checksum does not match")
	}
	return "", nil
}

func (e *Evaluator) flags(sub *domain.ScoreSubmission, history []Sample) []string {
	if len(history) > e.cfg.HistoryWindow {
		history = history[len(history)-e.cfg.HistoryWindow:]
	}

	flags := []string{}
	if len(history) >= e.cfg.MinHistory && len(history) > 0 && e.cfg.VarianceMultiplier > 0 {
		var sum float64
		for _, s := range history {
			sum += float64(s.Score)
		}
		avg := sum / float64(len(history))
		if avg > 0 && float64(sub.Score) > avg*e.cfg.VarianceMultiplier {
			flags = append(flags, FlagScoreVariance)
		}
	}

	if e.cfg.MinSubmitInterval > 0 && len(history) > 0 {
		last := history[len(history)-1].At
		if !last.IsZero() && sub.CreatedAt.Sub(last) < e.cfg.MinSubmitInterval {
			flags = append(flags, FlagRapidSubmission)
		}
	}

	slices.Sort(flags)
	return flags
}

// Checksum computes the keyed BLAKE2b-256 digest a game client attaches to a
// submission, hex encoded. The digest covers the fields that decide ranking.
func Checksum(key []byte, sub *domain.ScoreSubmission) string {
	h, _ := blake2b.New256(macKey(key)) //nolint:errcheck // macKey keeps the key within blake2b's 64 byte limit
	for _, part := range []string{
		sub.PlayerID,
		sub.LeaderboardID,
		strconv.FormatInt(sub.Score, 10),
		sub.MatchID,
		sub.SessionID,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// macKey shortens keys longer than blake2b accepts.
func macKey(key []byte) []byte {
	if len(key) <= blake2b.Size {
		return key
	}
	sum := blake2b.Sum256(key)
	return sum[:]
}
