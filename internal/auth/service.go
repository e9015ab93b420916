package auth

import (
	"context"
	"errors"
	"fmt"
)

// Service is the state-free auth orchestrator: it composes the credential
// store, the role hierarchy, the scope resolver and the token service into
// login, registration, refresh and logout flows. Sentinel errors from lower
// layers pass through unchanged; anything unexpected is wrapped in
// ErrPersistence so internals never leak to callers.
type Service struct {
	creds  *Credentials
	tokens *TokenService
}

func NewService(creds *Credentials, tokens *TokenService) (*Service, error) {
	if creds == nil {
		return nil, errors.New("auth: credentials are required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	return &Service{creds: creds, tokens: tokens}, nil
}

// LoginResult is what every token-issuing flow returns.
type LoginResult struct {
	TokenPair
	Role Role `json:"role"`
}

// Login verifies credentials and issues a token pair. With no tenant the
// lookup targets the tenant-less global scope; otherwise the requested
// tenant's scope. Absent principal, inactive principal and secret mismatch
// all surface the identical ErrInvalidCredentials so callers cannot probe
// which emails exist.
func (s *Service) Login(ctx context.Context, email, secret, tenantID, ip string) (*LoginResult, error) {
	p, err := s.creds.FindByEmailInScope(ctx, email, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, wrapUnexpected(err, "login lookup")
	}
	if !p.Active || !s.creds.VerifySecret(p, secret) {
		return nil, ErrInvalidCredentials
	}
	return s.issuePair(ctx, p, ip)
}

// Register creates a new principal on behalf of an authenticated requester.
// Authorization gates, in order:
//
//  1. only the global super admin may create another global super admin;
//  2. every tenant-scoped role requires a tenant id on the new record;
//  3. a non-global requester may only create principals inside its own
//     tenant.
//
// The scoped duplicate pre-check goes through ScopedFilter so a requester
// cannot probe emails outside its tenant; the store's unique indexes remain
// the authority and surface ErrDuplicateCredential or ErrSingletonViolation
// under races.
func (s *Service) Register(ctx context.Context, data NewPrincipalData, requester Subject, ip string) (*LoginResult, error) {
	if !data.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrBadRequest, data.Role)
	}
	if data.Role == RoleGlobalSuperAdmin && requester.Role != RoleGlobalSuperAdmin {
		return nil, fmt.Errorf("%w: only the global super admin may create another", ErrForbidden)
	}
	if data.Role.TenantScoped() {
		if data.TenantID == "" {
			return nil, fmt.Errorf("%w: tenant id is required for role %s", ErrBadRequest, data.Role)
		}
		if requester.Role != RoleGlobalSuperAdmin && requester.TenantID != data.TenantID {
			return nil, fmt.Errorf("%w: cannot create principals outside your tenant", ErrForbidden)
		}
	}

	if data.Role != RoleGlobalSuperAdmin {
		filter, err := ScopedFilter(requester, Filter{"email": NormalizeEmail(data.Email)}, data.TenantID)
		if err != nil {
			return nil, err
		}
		existing, err := s.creds.List(ctx, filter)
		if err != nil {
			return nil, wrapUnexpected(err, "register duplicate check")
		}
		if len(existing) > 0 {
			return nil, ErrDuplicateCredential
		}
	}

	p, err := s.creds.Create(ctx, data)
	if err != nil {
		return nil, wrapUnexpected(err, "register create")
	}
	return s.issuePair(ctx, p, ip)
}

// Refresh rotates a refresh token and mints a fresh access token bound to
// the principal's CURRENT role and tenant. Claims embedded in the old tokens
// are never trusted here: role or tenant may have changed since issuance, so
// the principal is always re-read from the store.
func (s *Service) Refresh(ctx context.Context, refreshToken, ip string) (*LoginResult, error) {
	principalID, err := s.tokens.ResolvePrincipalID(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	p, err := s.creds.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidUser
		}
		return nil, wrapUnexpected(err, "refresh lookup")
	}
	if !p.Active {
		return nil, ErrInvalidUser
	}
	newRefresh, refreshExp, err := s.tokens.RotateRefreshToken(ctx, refreshToken, ip)
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.tokens.IssueAccessToken(p.Subject())
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		TokenPair: TokenPair{
			AccessToken:      access,
			RefreshToken:     newRefresh,
			AccessExpiresAt:  accessExp,
			RefreshExpiresAt: refreshExp,
		},
		Role: p.Role,
	}, nil
}

// Logout revokes the refresh token. A second logout with the same token
// fails with ErrInvalidToken; the failure is surfaced, not swallowed.
func (s *Service) Logout(ctx context.Context, refreshToken, ip string) error {
	return s.tokens.RevokeRefreshToken(ctx, refreshToken, ip)
}

// ListPrincipals returns principals visible inside the requester's resolved
// tenant scope. A global requester without a requested tenant lists across
// all tenants.
func (s *Service) ListPrincipals(ctx context.Context, requester Subject, requestedTenant string) ([]*Principal, error) {
	filter, err := ScopedFilter(requester, Filter{}, requestedTenant)
	if err != nil {
		return nil, err
	}
	list, err := s.creds.List(ctx, filter)
	if err != nil {
		return nil, wrapUnexpected(err, "list principals")
	}
	return list, nil
}

func (s *Service) issuePair(ctx context.Context, p *Principal, ip string) (*LoginResult, error) {
	access, accessExp, err := s.tokens.IssueAccessToken(p.Subject())
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefreshToken(ctx, p.ID, ip)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		TokenPair: TokenPair{
			AccessToken:      access,
			RefreshToken:     refresh,
			AccessExpiresAt:  accessExp,
			RefreshExpiresAt: refreshExp,
		},
		Role: p.Role,
	}, nil
}

// wrapUnexpected passes subsystem sentinels through and folds anything else
// into ErrPersistence.
func wrapUnexpected(err error, op string) error {
	if isKnown(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
