package hub

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ladderline/ladder-server/internal/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// heartbeatTimings derives the ping period and pong deadline from the hub's
// heartbeat interval. A peer answering pings is touched at least every half
// interval, well inside the sweep cutoff of two intervals.
func heartbeatTimings(interval time.Duration) (pingPeriod, pongWait time.Duration) {
	return interval / 2, 2 * interval
}

// IdentifyFunc resolves the caller of an upgrade request, nil for anonymous.
type IdentifyFunc func(r *http.Request) *domain.Principal

// WSHandler upgrades HTTP requests to websocket hub connections.
type WSHandler struct {
	hub      *Hub
	protocol *Protocol
	identify IdentifyFunc
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a WSHandler. identify may be nil.
func NewWSHandler(h *Hub, protocol *Protocol, identify IdentifyFunc, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:      h,
		protocol: protocol,
		identify: identify,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	pingPeriod, pongWait := heartbeatTimings(h.hub.Config().HeartbeatInterval)
	transport := &wsTransport{queue: newQueue(defaultSendBuffer), conn: conn, pingPeriod: pingPeriod}
	c, err := h.hub.Connect(transport)
	if err != nil {
		h.logger.Error("failed to register websocket client", slog.String("error", err.Error()))
		conn.Close() //nolint:errcheck // connection is being abandoned
		return
	}

	if h.identify != nil {
		if p := h.identify(r); p != nil {
			if err := h.hub.Authenticate(c.ID, p); err != nil {
				h.logger.Warn("websocket pre-authentication failed",
					slog.String("connection_id", c.ID),
					slog.String("error", err.Error()))
			}
		}
	}

	go transport.writePump()
	h.readPump(r, c.ID, conn, pongWait)
}

// readPump feeds inbound messages to the protocol. When the peer goes away
// the connection is removed from the hub.
func (h *WSHandler) readPump(r *http.Request, connID string, conn *websocket.Conn, pongWait time.Duration) {
	defer func() {
		h.hub.Disconnect(connID, ReasonClosed)
		if h.protocol != nil {
			h.protocol.Closed(connID)
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck // a failed deadline surfaces on the next read
	conn.SetPongHandler(func(string) error {
		h.hub.Touch(connID)
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed",
					slog.String("connection_id", connID),
					slog.String("error", err.Error()))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck // see above

		if h.protocol == nil {
			h.hub.Touch(connID)
			continue
		}
		h.protocol.Handle(r.Context(), connID, message)
	}
}

type wsTransport struct {
	*queue
	conn       *websocket.Conn
	pingPeriod time.Duration
}

// writePump drains the outbound queue and pings the peer.
func (t *wsTransport) writePump() {
	ticker := time.NewTicker(t.pingPeriod)
	defer func() {
		ticker.Stop()
		t.conn.Close() //nolint:errcheck // read pump observes the close
	}()

	for {
		select {
		case message, ok := <-t.Messages():
			t.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // the write reports it
			if !ok {
				// The hub closed the transport.
				t.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck // best effort
				return
			}

			w, err := t.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				t.Close() //nolint:errcheck // always nil
				return
			}
			if _, err := w.Write(message); err != nil {
				t.Close() //nolint:errcheck // always nil
				return
			}
			if err := w.Close(); err != nil {
				t.Close() //nolint:errcheck // always nil
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // the write reports it
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.Close() //nolint:errcheck // always nil
				return
			}
		}
	}
}
