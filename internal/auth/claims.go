package auth

import (
	"time"

	"github.com/ladderline/ladder-server/internal/domain"
)

// AccessClaims represents the claims stored in a PASETO access token.
// These are encrypted in v4.local tokens, so they're not readable without the key.
type AccessClaims struct {
	UserID string            `json:"user_id"`
	Role   domain.Role       `json:"role"`
	Tier   domain.ClientTier `json:"tier"`

	// Standard PASETO claims
	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}

// Principal converts verified claims into the caller identity. Unknown roles
// degrade to player and unknown tiers to AUTHENTICATED.
func (c *AccessClaims) Principal() *domain.Principal {
	role := c.Role
	if role != domain.RoleAdmin {
		role = domain.RolePlayer
	}
	tier := c.Tier
	if tier != domain.ClientPremium {
		tier = domain.ClientAuthenticated
	}
	return &domain.Principal{UserID: c.UserID, Role: role, Tier: tier}
}
