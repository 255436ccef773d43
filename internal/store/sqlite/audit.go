package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ladderline/ladder-server/internal/domain"
)

// auditColumns must match the scan order in scanAuditRecord.
const auditColumns = `id, action, actor, resource_type, resource_id, previous, next, created_at`

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditQuery filters ListAudit. Zero fields match everything.
type AuditQuery struct {
	ResourceType string
	ResourceID   string
	Actor        string
	Action       string
	Since        time.Time
	Limit        int
}

func scanAuditRecord(scanner interface{ Scan(dest ...any) error }) (*domain.AuditRecord, error) {
	var (
		rec       domain.AuditRecord
		previous  sql.NullString
		next      sql.NullString
		createdAt string
	)

	err := scanner.Scan(
		&rec.ID,
		&rec.Action,
		&rec.Actor,
		&rec.ResourceType,
		&rec.ResourceID,
		&previous,
		&next,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.Timestamp, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if previous.Valid {
		rec.Previous = json.RawMessage(previous.String)
	}
	if next.Valid {
		rec.Next = json.RawMessage(next.String)
	}
	return &rec, nil
}

func encodeState(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return nullString(string(data)), nil
}

// Record inserts an audit record. A missing ID is filled with a UUIDv7 and a
// zero timestamp with the current time.
func (s *Store) Record(ctx context.Context, rec *domain.AuditRecord) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate audit id: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	previous, err := encodeState(rec.Previous)
	if err != nil {
		return fmt.Errorf("encode previous state: %w", err)
	}
	next, err := encodeState(rec.Next)
	if err != nil {
		return fmt.Errorf("encode next state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_records (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Action,
		rec.Actor,
		rec.ResourceType,
		rec.ResourceID,
		previous,
		next,
		formatTime(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListAudit returns matching records, newest first.
func (s *Store) ListAudit(ctx context.Context, q AuditQuery) ([]*domain.AuditRecord, error) {
	var (
		where []string
		args  []any
	)
	if q.ResourceType != "" {
		where = append(where, "resource_type = ?")
		args = append(args, q.ResourceType)
	}
	if q.ResourceID != "" {
		where = append(where, "resource_id = ?")
		args = append(args, q.ResourceID)
	}
	if q.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, q.Actor)
	}
	if q.Action != "" {
		where = append(where, "action = ?")
		args = append(args, q.Action)
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(q.Since))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	query := `SELECT ` + auditColumns + ` FROM audit_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditRecord
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountAudit returns the number of stored records.
func (s *Store) CountAudit(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_records`).Scan(&n)
	return n, err
}
