package hub

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
)

// MessageType names a client-to-server message.
type MessageType string

const (
	MessageSubscribe   MessageType = "SUBSCRIBE"
	MessageUnsubscribe MessageType = "UNSUBSCRIBE"
	MessageAuth        MessageType = "AUTH"
	MessagePing        MessageType = "PING"
)

// ClientMessage is the envelope of every inbound message.
type ClientMessage struct {
	Type           MessageType `json:"type"`
	LeaderboardIDs []string    `json:"leaderboard_ids,omitempty"`
	Token          string      `json:"token,omitempty"`
}

// TokenVerifier turns an AUTH token into a principal.
type TokenVerifier interface {
	Verify(token string) (*domain.Principal, error)
}

// Throttler budgets inbound messages per connection.
type Throttler interface {
	Allow(key string) bool
	Forget(key string)
}

// Protocol interprets client messages for one hub.
type Protocol struct {
	hub      *Hub
	verifier TokenVerifier
	throttle Throttler
	logger   *slog.Logger
}

// NewProtocol creates a Protocol. verifier and throttle may be nil; without a
// verifier AUTH is refused.
func NewProtocol(h *Hub, verifier TokenVerifier, throttle Throttler, logger *slog.Logger) *Protocol {
	return &Protocol{hub: h, verifier: verifier, throttle: throttle, logger: logger}
}

// Handle processes one raw inbound message. Any message counts as a
// heartbeat. Errors are answered with an ERROR event on the same connection.
func (p *Protocol) Handle(ctx context.Context, connID string, raw []byte) {
	p.hub.Touch(connID)

	if p.throttle != nil && !p.throttle.Allow(connID) {
		p.replyError(connID, domainerrors.RateLimited("too many messages", 0))
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		p.replyError(connID, domainerrors.InvalidInput("message is not valid JSON"))
		return
	}

	var err error
	switch msg.Type {
	case MessageSubscribe:
		_, err = p.hub.Subscribe(ctx, connID, msg.LeaderboardIDs)
	case MessageUnsubscribe:
		_, err = p.hub.Unsubscribe(ctx, connID, msg.LeaderboardIDs)
	case MessageAuth:
		err = p.authenticate(connID, msg.Token)
	case MessagePing:
		p.hub.SendTo(connID, NewHeartbeatEvent())
	default:
		err = domainerrors.InvalidInputf("unknown message type %q", msg.Type)
	}

	if err != nil {
		p.replyError(connID, err)
	}
}

func (p *Protocol) authenticate(connID, token string) error {
	if p.verifier == nil {
		return domainerrors.Forbidden("authentication is not available on this connection")
	}
	if token == "" {
		return domainerrors.InvalidInput("token is required")
	}
	principal, err := p.verifier.Verify(token)
	if err != nil {
		return err
	}
	return p.hub.Authenticate(connID, principal)
}

// Closed releases per-connection protocol state.
func (p *Protocol) Closed(connID string) {
	if p.throttle != nil {
		p.throttle.Forget(connID)
	}
}

func (p *Protocol) replyError(connID string, err error) {
	code := domainerrors.CodeOf(err)
	msg := err.Error()
	if !domainerrors.IsOperational(err) {
		p.logger.Error("hub message failed", slog.String("connection_id", connID), slog.String("error", msg))
		msg = "internal error"
	}
	p.hub.SendTo(connID, NewErrorEvent(string(code), msg))
}
