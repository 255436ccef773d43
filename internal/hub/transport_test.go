package hub

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladderline/ladder-server/internal/domain"
)

func TestQueue_SendAfterCloseAndOverflow(t *testing.T) {
	q := newQueue(1)
	require.NoError(t, q.Send([]byte("a")))
	assert.ErrorIs(t, q.Send([]byte("b")), ErrSendBufferFull)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.False(t, q.Open())
	assert.ErrorIs(t, q.Send([]byte("c")), ErrTransportClosed)

	// Buffered data is still drained before the channel reports closed.
	msg, ok := <-q.Messages()
	assert.True(t, ok)
	assert.Equal(t, "a", string(msg))
	_, ok = <-q.Messages()
	assert.False(t, ok)
}

func readWS(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var e Event
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func TestWSHandler_RoundTrip(t *testing.T) {
	h := newTestHub(t, Config{}, nil)
	verifier := stubVerifier{"tok": {UserID: "u1", Role: domain.RolePlayer}}
	handler := NewWSHandler(h, NewProtocol(h, verifier, nil, h.logger), nil, nil, h.logger)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, EventWelcome, readWS(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageSubscribe, LeaderboardIDs: []string{"global"}}))
	assert.Equal(t, EventSubscribed, readWS(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageAuth, Token: "tok"}))
	assert.Equal(t, EventAuthenticated, readWS(t, conn).Type)

	assert.Equal(t, 1, h.Broadcast(NewEntryRemovedEvent("global", "p9", 4)))
	e := readWS(t, conn)
	assert.Equal(t, EventEntryRemoved, e.Type)
	assert.Equal(t, "p9", e.PlayerID)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return h.ConnectionCount() == 0 && h.SubscriberCount("global") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWSHandler_ResponsivePeerSurvivesSweep(t *testing.T) {
	h := newTestHub(t, Config{HeartbeatInterval: 200 * time.Millisecond}, nil)
	handler := NewWSHandler(h, nil, nil, nil, h.logger)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// The default ping handler answers server pings while the client reads.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Stay idle well past the two-interval cutoff, sweeping each interval.
	for range 5 {
		time.Sleep(200 * time.Millisecond)
		assert.Zero(t, h.Sweep())
	}
	assert.Equal(t, 1, h.ConnectionCount())
}

func TestHeartbeatTimings(t *testing.T) {
	ping, pong := heartbeatTimings(30 * time.Second)
	assert.Equal(t, 15*time.Second, ping)
	assert.Equal(t, time.Minute, pong)
}

func TestSSEHandler_Streams(t *testing.T) {
	h := newTestHub(t, Config{}, nil)
	handler := NewSSEHandler(h, nil, nil, h.logger)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?leaderboards=global", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() Event {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if payload, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				var e Event
				require.NoError(t, json.Unmarshal([]byte(payload), &e))
				return e
			}
		}
	}

	assert.Equal(t, EventWelcome, next().Type)
	assert.Equal(t, EventSubscribed, next().Type)

	require.Eventually(t, func() bool { return h.SubscriberCount("global") == 1 }, time.Second, 5*time.Millisecond)
	h.Broadcast(NewLeaderboardResetEvent("global", 7))
	assert.Equal(t, EventLeaderboardReset, next().Type)

	cancel()
	require.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSSEHandler_RejectsPost(t *testing.T) {
	h := newTestHub(t, Config{}, nil)
	rec := httptest.NewRecorder()
	NewSSEHandler(h, nil, nil, h.logger).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
