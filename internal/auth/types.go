package auth

import "time"

// Principal is any credential-bearing entity capable of authenticating:
// the single global super admin, per-tenant admins, staff, parents and
// students. PasswordHash is never serialized outward.
type Principal struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Subject carries the identity fields authorization decisions depend on.
// It is produced either from a loaded Principal or from verified access
// token claims.
type Subject struct {
	ID       string
	Role     Role
	TenantID string
}

// Subject projects the principal onto its authorization identity.
func (p *Principal) Subject() Subject {
	return Subject{ID: p.ID, Role: p.Role, TenantID: p.TenantID}
}

// Scope is the effective tenant context of one request. Derived fresh per
// request by ResolveScope and never cached. An empty TenantID with Global
// set means the caller operates across all tenants.
type Scope struct {
	PrincipalID string
	Role        Role
	TenantID    string
	Global      bool
}

// RefreshTokenRecord tracks one issued refresh token. A record starts
// active; it terminates by rotation (Revoked with ReplacedBy set), explicit
// logout (Revoked without ReplacedBy) or passive expiry. Revocation is
// monotonic: no transition leaves a terminal state.
type RefreshTokenRecord struct {
	TokenValue  string
	PrincipalID string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Revoked     bool
	IssuingIP   string
	RevokedIP   string
	ReplacedBy  string
}

// Active reports whether the record may still mint access tokens at the
// given instant.
func (r *RefreshTokenRecord) Active(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// TokenPair bundles freshly issued access and refresh tokens with their
// expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
