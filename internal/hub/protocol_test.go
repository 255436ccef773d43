package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
)

type stubVerifier map[string]*domain.Principal

func (v stubVerifier) Verify(token string) (*domain.Principal, error) {
	p, ok := v[token]
	if !ok {
		return nil, domainerrors.Unauthorized("invalid token")
	}
	return p, nil
}

type stubThrottle struct {
	allow     bool
	forgotten []string
}

func (s *stubThrottle) Allow(string) bool { return s.allow }

func (s *stubThrottle) Forget(key string) { s.forgotten = append(s.forgotten, key) }

func lastEvent(t *testing.T, ft *fakeTransport) Event {
	t.Helper()
	events := ft.events(t)
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

func TestProtocol_Messages(t *testing.T) {
	h := newTestHub(t, Config{MaxSubscriptions: 2}, nil)
	verifier := stubVerifier{"good": {UserID: "u1", Role: domain.RolePlayer}}
	p := NewProtocol(h, verifier, nil, h.logger)
	c, ft := connect(t, h)
	ctx := context.Background()

	p.Handle(ctx, c.ID, []byte(`{"type":"SUBSCRIBE","leaderboard_ids":["global","eu"]}`))
	assert.Equal(t, EventSubscribed, lastEvent(t, ft).Type)
	assert.Equal(t, []string{"eu", "global"}, h.Subscriptions(c.ID))

	p.Handle(ctx, c.ID, []byte(`{"type":"SUBSCRIBE","leaderboard_ids":["na"]}`))
	errEvent := lastEvent(t, ft)
	assert.Equal(t, EventError, errEvent.Type)
	assert.Equal(t, string(domainerrors.CodeInvalidInput), errEvent.Data.(map[string]any)["code"])

	p.Handle(ctx, c.ID, []byte(`{"type":"UNSUBSCRIBE","leaderboard_ids":["eu"]}`))
	assert.Equal(t, EventUnsubscribed, lastEvent(t, ft).Type)

	p.Handle(ctx, c.ID, []byte(`{"type":"PING"}`))
	assert.Equal(t, EventHeartbeat, lastEvent(t, ft).Type)

	p.Handle(ctx, c.ID, []byte(`{"type":"AUTH","token":"bad"}`))
	assert.Equal(t, EventError, lastEvent(t, ft).Type)
	assert.Nil(t, c.Principal())

	p.Handle(ctx, c.ID, []byte(`{"type":"AUTH","token":"good"}`))
	assert.Equal(t, EventAuthenticated, lastEvent(t, ft).Type)
	assert.Equal(t, "u1", c.Principal().UserID)

	p.Handle(ctx, c.ID, []byte(`{"type":"DANCE"}`))
	assert.Equal(t, EventError, lastEvent(t, ft).Type)

	p.Handle(ctx, c.ID, []byte(`not json`))
	assert.Equal(t, EventError, lastEvent(t, ft).Type)
}

func TestProtocol_AuthWithoutVerifier(t *testing.T) {
	h := newTestHub(t, Config{}, nil)
	p := NewProtocol(h, nil, nil, h.logger)
	c, ft := connect(t, h)

	p.Handle(context.Background(), c.ID, []byte(`{"type":"AUTH","token":"x"}`))
	e := lastEvent(t, ft)
	assert.Equal(t, EventError, e.Type)
	assert.Equal(t, string(domainerrors.CodeForbidden), e.Data.(map[string]any)["code"])
}

func TestProtocol_Throttled(t *testing.T) {
	h := newTestHub(t, Config{}, nil)
	throttle := &stubThrottle{allow: false}
	p := NewProtocol(h, nil, throttle, h.logger)
	c, ft := connect(t, h)

	p.Handle(context.Background(), c.ID, []byte(`{"type":"SUBSCRIBE","leaderboard_ids":["global"]}`))
	e := lastEvent(t, ft)
	assert.Equal(t, EventError, e.Type)
	assert.Equal(t, string(domainerrors.CodeRateLimited), e.Data.(map[string]any)["code"])
	assert.Empty(t, h.Subscriptions(c.ID))

	p.Closed(c.ID)
	assert.Equal(t, []string{c.ID}, throttle.forgotten)
}
