package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return s
}

func TestEvery_RunsRepeatedly(t *testing.T) {
	s := newTestScheduler(t)

	var runs, failures atomic.Int32
	require.NoError(t, s.Every("count", 20*time.Millisecond, func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.Every("fail", 20*time.Millisecond, func(context.Context) error {
		failures.Add(1)
		return errors.New("boom")
	}))
	assert.ElementsMatch(t, []string{"count", "fail"}, s.Jobs())

	s.Start()
	require.Eventually(t, func() bool {
		return runs.Load() >= 2 && failures.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Shutdown())
	after := runs.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestEvery_Validation(t *testing.T) {
	s := newTestScheduler(t)
	defer s.Shutdown() //nolint:errcheck // test cleanup

	assert.Error(t, s.Every("zero", 0, func(context.Context) error { return nil }))
	assert.Error(t, s.Every("nil", time.Second, nil))
	assert.Empty(t, s.Jobs())
}
