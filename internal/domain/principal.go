package domain

// Role is the caller's authorization level.
type Role string

const (
	RolePlayer Role = "player"
	RoleAdmin  Role = "admin"
)

// ClientTier selects the rate limit budget.
type ClientTier string

const (
	ClientAnonymous     ClientTier = "ANONYMOUS"
	ClientAuthenticated ClientTier = "AUTHENTICATED"
	ClientPremium       ClientTier = "PREMIUM"
)

// Valid checks if the tier is known.
func (t ClientTier) Valid() bool {
	return t == ClientAnonymous || t == ClientAuthenticated || t == ClientPremium
}

// Principal is the already-verified caller identity. A nil *Principal is anonymous.
type Principal struct {
	UserID string     `json:"user_id"`
	Role   Role       `json:"role"`
	Tier   ClientTier `json:"tier"`
}

// IsAdmin reports whether the principal may run admin actions. Safe on nil.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// RateTier returns the rate limit tier, ANONYMOUS for nil.
func (p *Principal) RateTier() ClientTier {
	if p == nil || p.UserID == "" {
		return ClientAnonymous
	}
	if p.Tier == ClientPremium {
		return ClientPremium
	}
	return ClientAuthenticated
}
