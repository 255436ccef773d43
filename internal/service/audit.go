package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
	"github.com/ladderline/ladder-server/internal/hub"
	"github.com/ladderline/ladder-server/internal/store/sqlite"
)

// AuditSink receives a structured record for every state-changing action.
type AuditSink interface {
	Record(ctx context.Context, rec *domain.AuditRecord) error
}

// EventPublisher forwards ranking events to live connections.
type EventPublisher interface {
	Publish(event hub.Event)
}

// audit hands a record to the sink. Sink failures are logged and swallowed.
func audit(ctx context.Context, sink AuditSink, logger *slog.Logger, action, actor, resourceType, resourceID string, previous, next any) {
	if sink == nil {
		return
	}
	rec := &domain.AuditRecord{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Previous:     previous,
		Next:         next,
		Timestamp:    time.Now(),
	}
	if err := sink.Record(ctx, rec); err != nil {
		logger.Warn("audit sink write failed",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", err.Error()))
	}
}

// AuditService reads the audit log for admins.
type AuditService struct {
	log    *sqlite.Store
	logger *slog.Logger
}

// NewAuditService creates a new audit service.
func NewAuditService(log *sqlite.Store, logger *slog.Logger) *AuditService {
	return &AuditService{log: log, logger: logger}
}

// Query returns audit records matching q, newest first. Admin only.
func (s *AuditService) Query(ctx context.Context, principal *domain.Principal, q sqlite.AuditQuery) ([]*domain.AuditRecord, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	if s == nil || s.log == nil {
		return nil, domainerrors.PreconditionFailed("audit log is not configured")
	}
	records, err := s.log.ListAudit(ctx, q)
	if err != nil {
		return nil, domainerrors.Infrastructure(err, "query audit log")
	}
	return records, nil
}

func requirePrincipal(p *domain.Principal) error {
	if p == nil || p.UserID == "" {
		return domainerrors.Unauthorized("authentication required")
	}
	return nil
}

func requireAdmin(p *domain.Principal) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return domainerrors.Forbidden("admin role required")
	}
	return nil
}
