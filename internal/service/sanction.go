package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
)

// BanRequest bans a player from submitting.
type BanRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// SuspendRequest blocks submissions until a point in time.
type SuspendRequest struct {
	Until  time.Time `json:"until" validate:"required"`
	Reason string    `json:"reason" validate:"required,max=500"`
}

// BanPlayer bans a player. It takes effect on the player's next submission;
// already accepted submissions are untouched.
func (s *SubmissionService) BanPlayer(ctx context.Context, principal *domain.Principal, playerID string, req BanRequest) (*domain.PlayerSanction, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	return s.updateSanction(ctx, principal, playerID, ActionPlayerBanned, func(sn *domain.PlayerSanction, now time.Time) {
		sn.Banned = true
		sn.BanReason = req.Reason
		sn.BannedBy = principal.UserID
		sn.BannedAt = &now
	})
}

// UnbanPlayer lifts a ban. Unbanning a player who is not banned is a no-op.
func (s *SubmissionService) UnbanPlayer(ctx context.Context, principal *domain.Principal, playerID string) (*domain.PlayerSanction, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	return s.updateSanction(ctx, principal, playerID, ActionPlayerUnbanned, func(sn *domain.PlayerSanction, _ time.Time) {
		sn.Banned = false
		sn.BanReason = ""
		sn.BannedBy = ""
		sn.BannedAt = nil
	})
}

// SuspendPlayer blocks a player's submissions until req.Until.
func (s *SubmissionService) SuspendPlayer(ctx context.Context, principal *domain.Principal, playerID string, req SuspendRequest) (*domain.PlayerSanction, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if !req.Until.After(s.now()) {
		return nil, domainerrors.InvalidInput("suspension must end in the future")
	}

	until := req.Until.UTC()
	return s.updateSanction(ctx, principal, playerID, ActionPlayerSuspended, func(sn *domain.PlayerSanction, _ time.Time) {
		sn.SuspendedUntil = &until
		sn.SuspensionReason = req.Reason
	})
}

// GetSanction returns a player's sanction record. A player who was never
// sanctioned gets a cleared record.
func (s *SubmissionService) GetSanction(ctx context.Context, principal *domain.Principal, playerID string) (*domain.PlayerSanction, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	sn, err := s.store.GetSanction(ctx, playerID)
	if err != nil {
		return nil, domainerrors.Infrastructure(err, "load player sanction")
	}
	if sn == nil {
		sn = &domain.PlayerSanction{PlayerID: playerID}
	}
	return sn, nil
}

func (s *SubmissionService) updateSanction(
	ctx context.Context,
	principal *domain.Principal,
	playerID, action string,
	mutate func(*domain.PlayerSanction, time.Time),
) (*domain.PlayerSanction, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, domainerrors.InvalidInput("player id is required")
	}

	s.sanctionMu.Lock()
	defer s.sanctionMu.Unlock()

	current, err := s.store.GetSanction(ctx, playerID)
	if err != nil {
		return nil, domainerrors.Infrastructure(err, "load player sanction")
	}
	var previous *domain.PlayerSanction
	next := &domain.PlayerSanction{PlayerID: playerID}
	if current != nil {
		c := *current
		previous = &c
		n := *current
		next = &n
	}

	now := s.now()
	mutate(next, now)
	next.UpdatedAt = now

	if err := s.store.SaveSanction(ctx, next); err != nil {
		return nil, domainerrors.Infrastructure(err, "save player sanction")
	}

	audit(ctx, s.audit, s.logger, action, principal.UserID, domain.ResourcePlayer, playerID, previous, next)
	s.logger.Info("player sanction updated",
		slog.String("player_id", playerID),
		slog.String("action", action),
		slog.String("admin_id", principal.UserID))
	return next, nil
}
