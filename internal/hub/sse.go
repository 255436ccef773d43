package hub

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// BoardsFunc picks the leaderboards an SSE stream subscribes to.
type BoardsFunc func(r *http.Request) []string

// QueryBoards reads a comma-separated "leaderboards" query parameter.
func QueryBoards(r *http.Request) []string {
	raw := r.URL.Query().Get("leaderboards")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// SSEHandler streams hub events over Server-Sent Events. SSE is one-way, so
// subscriptions are fixed at connect time.
type SSEHandler struct {
	hub      *Hub
	boards   BoardsFunc
	identify IdentifyFunc
	logger   *slog.Logger
}

// NewSSEHandler creates an SSEHandler. boards defaults to QueryBoards;
// identify may be nil.
func NewSSEHandler(h *Hub, boards BoardsFunc, identify IdentifyFunc, logger *slog.Logger) *SSEHandler {
	if boards == nil {
		boards = QueryBoards
	}
	return &SSEHandler{hub: h, boards: boards, identify: identify, logger: logger}
}

// ServeHTTP handles the SSE connection.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Early client disconnect.
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	transport := &sseTransport{queue: newQueue(defaultSendBuffer)}
	c, err := h.hub.Connect(transport)
	if err != nil {
		h.logger.Error("failed to register SSE client", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.hub.Disconnect(c.ID, ReasonClosed)

	clientLogger := h.logger.With(slog.String("connection_id", c.ID))

	if h.identify != nil {
		if p := h.identify(r); p != nil {
			if err := h.hub.Authenticate(c.ID, p); err != nil {
				clientLogger.Warn("sse pre-authentication failed", slog.String("error", err.Error()))
			}
		}
	}

	if ids := h.boards(r); len(ids) > 0 {
		if _, err := h.hub.Subscribe(r.Context(), c.ID, ids); err != nil {
			clientLogger.Info("sse subscription refused", slog.String("error", err.Error()))
		}
	}

	ctx := r.Context()
	for {
		select {
		case message, ok := <-transport.Messages():
			if !ok {
				// Hub closed this client (heartbeat timeout or shutdown).
				clientLogger.Debug("client closed by hub")
				return
			}
			if err := h.write(w, rc, message); err != nil {
				clientLogger.Debug("client disconnected during send")
				return
			}
			h.hub.Touch(c.ID)

		case <-ctx.Done():
			clientLogger.Debug("client context canceled")
			return
		}
	}
}

// write emits one pre-encoded event as an SSE data frame.
func (h *SSEHandler) write(w http.ResponseWriter, rc *http.ResponseController, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	// Reset after each successful write so a hung client cannot pin the handler.
	if err := rc.SetWriteDeadline(time.Now().Add(2 * h.hub.Config().HeartbeatInterval)); err != nil {
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}

type sseTransport struct {
	*queue
}
