package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladderline/ladder-server/internal/domain"
)

func TestRecord_FillsIDAndRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 10, 0, 0, 123, time.UTC)

	rec := &domain.AuditRecord{
		Action:       "ROLLED_BACK",
		Actor:        "admin-1",
		ResourceType: domain.ResourceSubmission,
		ResourceID:   "sub_1",
		Previous:     map[string]string{"status": "APPROVED"},
		Next:         map[string]string{"status": "ROLLED_BACK"},
		Timestamp:    at,
	}
	require.NoError(t, s.Record(ctx, rec))
	assert.NotEmpty(t, rec.ID)

	got, err := s.ListAudit(ctx, AuditQuery{ResourceID: "sub_1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.True(t, at.Equal(got[0].Timestamp))

	raw, ok := got[0].Next.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"status":"ROLLED_BACK"}`, string(raw))
}

func TestRecord_NilStateStoredAsNull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, &domain.AuditRecord{
		Action: "UNBANNED", Actor: "admin-1", ResourceType: domain.ResourcePlayer, ResourceID: "p1",
	}))

	got, err := s.ListAudit(ctx, AuditQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Previous)
	assert.Nil(t, got[0].Next)
}

func TestListAudit_FiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	records := []domain.AuditRecord{
		{Action: "SUBMITTED", Actor: "p1", ResourceType: domain.ResourceSubmission, ResourceID: "sub_1", Timestamp: base},
		{Action: "APPROVED", Actor: "admin", ResourceType: domain.ResourceSubmission, ResourceID: "sub_1", Timestamp: base.Add(time.Second)},
		{Action: "BANNED", Actor: "admin", ResourceType: domain.ResourcePlayer, ResourceID: "p1", Timestamp: base.Add(1500 * time.Millisecond)},
		{Action: "SUBMITTED", Actor: "p2", ResourceType: domain.ResourceSubmission, ResourceID: "sub_2", Timestamp: base.Add(2 * time.Second)},
	}
	for i := range records {
		require.NoError(t, s.Record(ctx, &records[i]))
	}

	all, err := s.ListAudit(ctx, AuditQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "sub_2", all[0].ResourceID)
	assert.Equal(t, "BANNED", all[1].Action)
	assert.Equal(t, "APPROVED", all[2].Action)

	byActor, err := s.ListAudit(ctx, AuditQuery{Actor: "admin"})
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	since, err := s.ListAudit(ctx, AuditQuery{Since: base.Add(time.Second)})
	require.NoError(t, err)
	assert.Len(t, since, 3)

	limited, err := s.ListAudit(ctx, AuditQuery{ResourceType: domain.ResourceSubmission, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "sub_2", limited[0].ResourceID)

	n, err := s.CountAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
