package auth

import (
	"context"
	"fmt"
	"strings"
)

// NewPrincipalData is the validated shape a registration request carries.
type NewPrincipalData struct {
	Email    string
	Secret   string
	Role     Role
	TenantID string
}

// Credentials owns principal records: lookup, creation with irreversible
// secret hashing, and secret verification. The hashing cost is fixed at
// construction from configuration.
type Credentials struct {
	store PrincipalStore
	cost  int
}

func NewCredentials(store PrincipalStore, bcryptCost int) (*Credentials, error) {
	if store == nil {
		return nil, fmt.Errorf("credentials: store is required")
	}
	return &Credentials{store: store, cost: bcryptCost}, nil
}

// NormalizeEmail lower-cases and trims an email address. All lookups and
// writes go through the same normalization so scoped uniqueness holds.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// Create hashes the secret and persists a new principal. It enforces the
// structural invariants of the record itself; cross-principal authorization
// rules live in Service.Register.
func (c *Credentials) Create(ctx context.Context, data NewPrincipalData) (*Principal, error) {
	email := NormalizeEmail(data.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrBadRequest)
	}
	if !data.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrBadRequest, data.Role)
	}
	if data.Role.TenantScoped() && data.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required for role %s", ErrBadRequest, data.Role)
	}
	if data.Role == RoleGlobalSuperAdmin && data.TenantID != "" {
		return nil, fmt.Errorf("%w: global super admin is not tenant-bound", ErrBadRequest)
	}
	hash, err := HashSecret(data.Secret, c.cost)
	if err != nil {
		return nil, err
	}
	p := &Principal{
		Email:        email,
		PasswordHash: hash,
		Role:         data.Role,
		TenantID:     data.TenantID,
		Active:       true,
	}
	if err := c.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// FindByEmailInScope looks up a principal by normalized email within a
// tenant scope. An empty tenantID addresses the tenant-less global scope.
func (c *Credentials) FindByEmailInScope(ctx context.Context, email, tenantID string) (*Principal, error) {
	return c.store.FindByEmailInScope(ctx, NormalizeEmail(email), tenantID)
}

func (c *Credentials) FindByID(ctx context.Context, id string) (*Principal, error) {
	return c.store.FindByID(ctx, id)
}

func (c *Credentials) List(ctx context.Context, f Filter) ([]*Principal, error) {
	return c.store.List(ctx, f)
}

// VerifySecret reports whether the plaintext secret matches the principal's
// stored hash.
func (c *Credentials) VerifySecret(p *Principal, secret string) bool {
	if p == nil {
		return false
	}
	return VerifySecret(p.PasswordHash, secret)
}
