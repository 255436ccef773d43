// Package hub fans leaderboard events out to live client connections.
//
// A connection is any Transport (websocket, SSE stream). Connections subscribe
// to leaderboards; Broadcast delivers an event to that board's subscribers and
// skips transports that are no longer open. A heartbeat sweep reaps
// connections that have been silent for twice the heartbeat interval.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
	"github.com/ladderline/ladder-server/internal/id"
	"github.com/ladderline/ladder-server/internal/metrics"
)

// ErrTransportClosed is returned by transports after Close.
var ErrTransportClosed = errors.New("transport closed")

// Transport is the minimum a connection needs: send bytes, close, and report
// whether it is still open.
type Transport interface {
	Send(data []byte) error
	Close() error
	Open() bool
}

// SubscriptionIndex is the external, best-effort record of subscriptions.
type SubscriptionIndex interface {
	RecordSubscription(ctx context.Context, connectionID, leaderboardID string, ttl time.Duration) error
	RemoveSubscription(ctx context.Context, connectionID, leaderboardID string) error
	RemoveConnection(ctx context.Context, connectionID string) error
}

// Disconnect reasons.
const (
	ReasonClosed           = "closed"
	ReasonHeartbeatTimeout = "heartbeat_timeout"
	ReasonShutdown         = "shutdown"
)

// Config configures a Hub.
type Config struct {
	MaxSubscriptions  int
	HeartbeatInterval time.Duration
	EventBuffer       int
	PublishTimeout    time.Duration
	IndexTTL          time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSubscriptions <= 0 {
		c.MaxSubscriptions = 10
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 1024
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 2 * time.Second
	}
	if c.IndexTTL <= 0 {
		c.IndexTTL = 24 * time.Hour
	}
	return c
}

// Connection is one registered client.
type Connection struct {
	ID          string
	ConnectedAt time.Time

	transport Transport

	// Guarded by Hub.mu.
	subscriptions map[string]struct{}

	mu            sync.Mutex
	principal     *domain.Principal
	lastHeartbeat time.Time
}

// Principal returns the authenticated identity, nil when anonymous.
func (c *Connection) Principal() *domain.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.principal
}

// LastHeartbeat returns the last time the client was heard from.
func (c *Connection) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

// Hub manages connections and their leaderboard subscriptions.
type Hub struct {
	cfg     Config
	logger  *slog.Logger
	index   SubscriptionIndex
	metrics *metrics.Metrics
	now     func() time.Time

	mu          sync.RWMutex
	connections map[string]*Connection
	subscribers map[string]map[string]*Connection // leaderboard -> connection ID -> conn

	events chan Event
	wg     sync.WaitGroup

	// Shutdown state - protected by shutdownMu
	shutdownMu sync.RWMutex
	shutdown   bool
}

// New creates a Hub. index and m may be nil.
func New(cfg Config, index SubscriptionIndex, m *metrics.Metrics, logger *slog.Logger) *Hub {
	cfg = cfg.withDefaults()
	return &Hub{
		cfg:         cfg,
		logger:      logger,
		index:       index,
		metrics:     m,
		now:         time.Now,
		connections: make(map[string]*Connection),
		subscribers: make(map[string]map[string]*Connection),
		events:      make(chan Event, cfg.EventBuffer),
	}
}

// SetClock replaces the time source. Tests only.
func (h *Hub) SetClock(now func() time.Time) {
	h.now = now
}

// Config returns the effective configuration.
func (h *Hub) Config() Config {
	return h.cfg
}

// Connect registers a transport, starts heartbeat tracking and sends WELCOME.
func (h *Hub) Connect(t Transport) (*Connection, error) {
	connID, err := id.Generate(id.PrefixConnection)
	if err != nil {
		return nil, err
	}

	now := h.now()
	c := &Connection{
		ID:            connID,
		ConnectedAt:   now,
		transport:     t,
		subscriptions: make(map[string]struct{}),
		lastHeartbeat: now,
	}

	h.mu.Lock()
	h.connections[c.ID] = c
	total := len(h.connections)
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	h.logger.Info("hub connection opened",
		slog.String("connection_id", c.ID),
		slog.Int("total_connections", total))

	h.SendTo(c.ID, NewWelcomeEvent(c.ID, h.cfg.HeartbeatInterval, h.cfg.MaxSubscriptions))
	return c, nil
}

func (h *Hub) connection(connID string) (*Connection, error) {
	h.mu.RLock()
	c, ok := h.connections[connID]
	h.mu.RUnlock()
	if !ok {
		return nil, domainerrors.NotFoundf("connection %s not found", connID)
	}
	return c, nil
}

// Connection returns a registered connection.
func (h *Hub) Connection(connID string) (*Connection, bool) {
	c, err := h.connection(connID)
	return c, err == nil
}

// Authenticate binds a principal to a connection. It can be set once.
func (h *Hub) Authenticate(connID string, p *domain.Principal) error {
	if p == nil || p.UserID == "" {
		return domainerrors.InvalidInput("principal is required")
	}
	c, err := h.connection(connID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.principal != nil {
		c.mu.Unlock()
		return domainerrors.Conflict("connection is already authenticated")
	}
	c.principal = p
	c.mu.Unlock()

	h.logger.Debug("hub connection authenticated",
		slog.String("connection_id", connID),
		slog.String("user_id", p.UserID))
	h.SendTo(connID, NewAuthenticatedEvent(p.UserID))
	return nil
}

// normalizeIDs drops blanks and duplicates, keeping first-seen order.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, lb := range ids {
		if lb == "" {
			continue
		}
		if _, dup := seen[lb]; dup {
			continue
		}
		seen[lb] = struct{}{}
		out = append(out, lb)
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Subscribe adds leaderboards to a connection. It is all or nothing: when the
// result would exceed MaxSubscriptions nothing changes and INVALID_INPUT is
// returned. It returns the connection's full subscription set.
func (h *Hub) Subscribe(ctx context.Context, connID string, leaderboardIDs []string) ([]string, error) {
	ids := normalizeIDs(leaderboardIDs)
	if len(ids) == 0 {
		return nil, domainerrors.InvalidInput("at least one leaderboard id is required")
	}

	h.mu.Lock()
	c, ok := h.connections[connID]
	if !ok {
		h.mu.Unlock()
		return nil, domainerrors.NotFoundf("connection %s not found", connID)
	}

	var added []string
	for _, lb := range ids {
		if _, already := c.subscriptions[lb]; !already {
			added = append(added, lb)
		}
	}
	if len(c.subscriptions)+len(added) > h.cfg.MaxSubscriptions {
		current := len(c.subscriptions)
		h.mu.Unlock()
		return nil, domainerrors.InvalidInputf("subscription limit of %d exceeded", h.cfg.MaxSubscriptions).
			WithDetails(map[string]int{
				"current":   current,
				"requested": len(added),
				"max":       h.cfg.MaxSubscriptions,
			})
	}

	for _, lb := range added {
		c.subscriptions[lb] = struct{}{}
		set, ok := h.subscribers[lb]
		if !ok {
			set = make(map[string]*Connection)
			h.subscribers[lb] = set
		}
		set[connID] = c
	}
	current := sortedKeys(c.subscriptions)
	h.mu.Unlock()

	if h.index != nil {
		for _, lb := range added {
			if err := h.index.RecordSubscription(ctx, connID, lb, h.cfg.IndexTTL); err != nil {
				h.logger.Warn("subscription index write failed",
					slog.String("connection_id", connID),
					slog.String("leaderboard_id", lb),
					slog.String("error", err.Error()))
			}
		}
	}

	h.SendTo(connID, NewSubscribedEvent(ids, current))
	return current, nil
}

// Unsubscribe removes leaderboards from a connection. Unknown IDs are ignored.
func (h *Hub) Unsubscribe(ctx context.Context, connID string, leaderboardIDs []string) ([]string, error) {
	ids := normalizeIDs(leaderboardIDs)

	h.mu.Lock()
	c, ok := h.connections[connID]
	if !ok {
		h.mu.Unlock()
		return nil, domainerrors.NotFoundf("connection %s not found", connID)
	}

	var removed []string
	for _, lb := range ids {
		if _, subscribed := c.subscriptions[lb]; !subscribed {
			continue
		}
		delete(c.subscriptions, lb)
		h.removeSubscriberLocked(lb, connID)
		removed = append(removed, lb)
	}
	current := sortedKeys(c.subscriptions)
	h.mu.Unlock()

	if h.index != nil {
		for _, lb := range removed {
			if err := h.index.RemoveSubscription(ctx, connID, lb); err != nil {
				h.logger.Warn("subscription index delete failed",
					slog.String("connection_id", connID),
					slog.String("leaderboard_id", lb),
					slog.String("error", err.Error()))
			}
		}
	}

	h.SendTo(connID, NewUnsubscribedEvent(ids, current))
	return current, nil
}

func (h *Hub) removeSubscriberLocked(leaderboardID, connID string) {
	set, ok := h.subscribers[leaderboardID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(h.subscribers, leaderboardID)
	}
}

// Touch records that the client is alive.
func (h *Hub) Touch(connID string) {
	c, err := h.connection(connID)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.lastHeartbeat = h.now()
	c.mu.Unlock()
}

// Disconnect removes a connection. It first drops the connection from every
// subscriber set, then from the registry, then closes the transport and
// clears the external index. Calling it again is a no-op; it reports whether
// this call did the removal.
func (h *Hub) Disconnect(connID, reason string) bool {
	h.mu.Lock()
	c, ok := h.connections[connID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	for lb := range c.subscriptions {
		h.removeSubscriberLocked(lb, connID)
	}
	clear(c.subscriptions)
	delete(h.connections, connID)
	total := len(h.connections)
	h.mu.Unlock()

	if err := c.transport.Close(); err != nil {
		h.logger.Debug("transport close failed",
			slog.String("connection_id", connID),
			slog.String("error", err.Error()))
	}

	if h.index != nil {
		if err := h.index.RemoveConnection(context.Background(), connID); err != nil {
			h.logger.Warn("subscription index cleanup failed",
				slog.String("connection_id", connID),
				slog.String("error", err.Error()))
		}
	}

	h.metrics.ConnectionClosed(reason)
	h.logger.Info("hub connection closed",
		slog.String("connection_id", connID),
		slog.String("reason", reason),
		slog.Duration("duration", h.now().Sub(c.ConnectedAt)),
		slog.Int("total_connections", total))
	return true
}

// SendTo delivers an event to one connection. Failures are logged and dropped.
func (h *Hub) SendTo(connID string, event Event) bool {
	c, err := h.connection(connID)
	if err != nil {
		return false
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal event", slog.String("event_type", string(event.Type)), slog.String("error", err.Error()))
		return false
	}
	if !c.transport.Open() {
		return false
	}
	if err := c.transport.Send(data); err != nil {
		h.logger.Debug("send failed",
			slog.String("connection_id", connID),
			slog.String("event_type", string(event.Type)),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// targets snapshots the recipients of an event.
func (h *Hub) targets(leaderboardID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if leaderboardID == "" {
		out := make([]*Connection, 0, len(h.connections))
		for _, c := range h.connections {
			out = append(out, c)
		}
		return out
	}

	set := h.subscribers[leaderboardID]
	out := make([]*Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Broadcast sends event to its recipients synchronously and returns how many
// sends succeeded. Closed transports are skipped; failed sends are counted and
// otherwise ignored. Reaping is left to Disconnect and Sweep.
func (h *Hub) Broadcast(event Event) int {
	if event.Timestamp.IsZero() {
		event.Timestamp = h.now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal event", slog.String("event_type", string(event.Type)), slog.String("error", err.Error()))
		return 0
	}

	var delivered, skipped, failed int
	for _, c := range h.targets(event.LeaderboardID) {
		if !c.transport.Open() {
			skipped++
			continue
		}
		if err := c.transport.Send(data); err != nil {
			failed++
			continue
		}
		delivered++
	}

	h.metrics.EventBroadcast(string(event.Type), delivered, skipped, failed)
	if event.Type != EventHeartbeat {
		h.logger.Debug("event broadcast",
			slog.String("event_type", string(event.Type)),
			slog.String("leaderboard_id", event.LeaderboardID),
			slog.Group("stats",
				slog.Int("delivered", delivered),
				slog.Int("skipped", skipped),
				slog.Int("failed", failed)))
	}
	return delivered
}

// Publish queues an event for the broadcast loop. When the queue is full it
// waits up to PublishTimeout for room; an event still not queued by then is
// dropped and counted. Events published after Shutdown are dropped.
func (h *Hub) Publish(event Event) {
	// Hold read lock through the send so Shutdown cannot close the channel mid-send.
	h.shutdownMu.RLock()
	defer h.shutdownMu.RUnlock()

	if h.shutdown {
		return
	}

	select {
	case h.events <- event:
		return
	default:
	}

	timer := time.NewTimer(h.cfg.PublishTimeout)
	defer timer.Stop()
	select {
	case h.events <- event:
	case <-timer.C:
		h.metrics.EventDropped()
		h.logger.Error("hub event queue full, dropping event",
			slog.String("event_type", string(event.Type)),
			slog.String("leaderboard_id", event.LeaderboardID),
			slog.Duration("waited", h.cfg.PublishTimeout))
	}
}

// Start runs the broadcast loop and the heartbeat sweep until ctx is done.
// Call once, in its own goroutine.
func (h *Hub) Start(ctx context.Context) {
	h.wg.Add(1)
	defer h.wg.Done()

	h.logger.Info("hub starting", slog.Duration("heartbeat_interval", h.cfg.HeartbeatInterval))

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-h.events:
			if !ok {
				return
			}
			h.Broadcast(event)

		case <-ticker.C:
			h.Sweep()

		case <-ctx.Done():
			h.logger.Info("hub stopping")
			h.closeAll()
			return
		}
	}
}

// Sweep disconnects connections silent for more than twice the heartbeat
// interval and pings the rest with a HEARTBEAT. It returns the number reaped.
func (h *Hub) Sweep() int {
	cutoff := h.now().Add(-2 * h.cfg.HeartbeatInterval)

	var stale []string
	for _, c := range h.targets("") {
		if c.LastHeartbeat().Before(cutoff) {
			stale = append(stale, c.ID)
		}
	}

	reaped := 0
	for _, connID := range stale {
		if h.Disconnect(connID, ReasonHeartbeatTimeout) {
			reaped++
		}
	}

	h.Broadcast(NewHeartbeatEvent())
	if reaped > 0 {
		h.logger.Info("heartbeat sweep reaped connections", slog.Int("reaped", reaped))
	}
	return reaped
}

// Shutdown stops accepting events, drains queued ones, and closes every
// connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.logger.Info("hub shutdown initiated")

	h.shutdownMu.Lock()
	if h.shutdown {
		h.shutdownMu.Unlock()
		return nil
	}
	h.shutdown = true
	close(h.events)
	h.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		for event := range h.events {
			h.Broadcast(event)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("hub event drain timeout, some events may be lost")
	}

	h.wg.Wait()
	h.closeAll()
	h.logger.Info("hub shutdown complete")
	return nil
}

func (h *Hub) closeAll() {
	for _, c := range h.targets("") {
		h.Disconnect(c.ID, ReasonShutdown)
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SubscriberCount returns the size of a leaderboard's subscriber set.
func (h *Hub) SubscriberCount(leaderboardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[leaderboardID])
}

// IsSubscribed reports whether connID is in leaderboardID's subscriber set.
func (h *Hub) IsSubscribed(connID, leaderboardID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subscribers[leaderboardID][connID]
	return ok
}

// Subscriptions returns a connection's subscriptions, sorted.
func (h *Hub) Subscriptions(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.connections[connID]
	if !ok {
		return nil
	}
	return sortedKeys(c.subscriptions)
}
