package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// The connection handle is owned by process bootstrap and injected here;
// there is no hidden package-level connection state.
type Store interface {
	Principals() PrincipalStore
	RefreshTokens() RefreshTokenStore
}

// PrincipalStore manages principal records. Create enforces scoped email
// uniqueness and the single-global-admin invariant, surfacing
// ErrDuplicateCredential and ErrSingletonViolation respectively.
type PrincipalStore interface {
	Create(ctx context.Context, p *Principal) error
	FindByID(ctx context.Context, id string) (*Principal, error)
	// FindByEmailInScope looks up a principal by email within one tenant.
	// An empty tenantID addresses the tenant-less scope, which only the
	// global super admin occupies.
	FindByEmailInScope(ctx context.Context, email, tenantID string) (*Principal, error)
	List(ctx context.Context, f Filter) ([]*Principal, error)
	// SetActive flips the activation flag; principals are never hard-deleted.
	SetActive(ctx context.Context, id string, active bool) error
}

// RefreshTokenStore manages the refresh-token state machine. Rotate and
// Revoke are conditional updates: they only apply to a record that is still
// active, so two concurrent rotations of the same token yield exactly one
// winner.
type RefreshTokenStore interface {
	Create(ctx context.Context, rec *RefreshTokenRecord) error
	Find(ctx context.Context, tokenValue string) (*RefreshTokenRecord, error)
	// Rotate atomically marks the old record revoked with ReplacedBy set to
	// the new token and inserts the new record. Both writes commit as one
	// unit. Returns ErrInvalidToken if the old record is not active.
	Rotate(ctx context.Context, oldValue string, newRec *RefreshTokenRecord, ip string) error
	// Revoke marks an active record revoked, recording the revoking IP.
	// Returns ErrInvalidToken if no active record matches.
	Revoke(ctx context.Context, tokenValue, ip string) error
	// PurgeExpired deletes records whose expiry has passed, standing in for
	// a storage-level TTL. Returns the number of records removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
