package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer     = "maktab"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// AccessClaims is the transient signed structure embedded in access tokens.
// It is never persisted; the API boundary trusts it for the short access
// TTL (an accepted staleness window — refresh re-reads the store).
type AccessClaims struct {
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues, verifies, rotates and revokes access/refresh token
// pairs and owns the refresh-token state machine. Access and refresh tokens
// are signed with distinct secrets.
type TokenService struct {
	store         RefreshTokenStore
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		issuer = strings.TrimSpace(issuer)
		if issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewTokenService constructs a TokenService. The two signing secrets must be
// non-empty and distinct: a shared secret would let a refresh token pass as
// an access token.
func NewTokenService(store RefreshTokenStore, accessSecret, refreshSecret string, opts ...TokenOption) (*TokenService, error) {
	if store == nil {
		return nil, errors.New("tokens: refresh token store is required")
	}
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("tokens: access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("tokens: access and refresh secrets must differ")
	}
	svc := &TokenService{
		store:         store,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        defaultIssuer,
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// IssueAccessToken signs a short-lived stateless access token carrying the
// subject's identity, role and tenant.
func (s *TokenService) IssueAccessToken(sub Subject) (string, time.Time, error) {
	if sub.ID == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject id is required", ErrBadRequest)
	}
	now := s.now().UTC()
	exp := now.Add(s.accessTTL)
	claims := AccessClaims{
		Role:     string(sub.Role),
		TenantID: sub.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   sub.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// ParseAccessToken verifies an access token's signature, issuer and expiry
// and returns the embedded subject.
func (s *TokenService) ParseAccessToken(token string) (Subject, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Subject{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{},
		func(t *jwt.Token) (any, error) { return s.accessSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Subject{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Subject{}, ErrInvalidToken
	}
	role := Role(claims.Role)
	if !role.Valid() {
		return Subject{}, ErrInvalidToken
	}
	return Subject{ID: claims.Subject, Role: role, TenantID: claims.TenantID}, nil
}

// IssueRefreshToken signs a refresh token bound to the principal and
// persists an active record keyed by the signed string.
func (s *TokenService) IssueRefreshToken(ctx context.Context, principalID, ip string) (string, time.Time, error) {
	signed, rec, err := s.signRefresh(principalID, ip)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: store refresh token: %v", ErrPersistence, err)
	}
	return signed, rec.ExpiresAt, nil
}

// RotateRefreshToken exchanges an active refresh token for a fresh one.
// Rotation is single-use: the old record is atomically marked rotated with
// ReplacedBy pointing at the successor, and a missing, revoked or expired
// record is reported uniformly as ErrInvalidToken to avoid enumeration.
func (s *TokenService) RotateRefreshToken(ctx context.Context, oldToken, ip string) (string, time.Time, error) {
	rec, err := s.store.Find(ctx, oldToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, fmt.Errorf("%w: find refresh token: %v", ErrPersistence, err)
	}
	if !rec.Active(s.now()) {
		return "", time.Time{}, ErrInvalidToken
	}
	signed, newRec, err := s.signRefresh(rec.PrincipalID, ip)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.store.Rotate(ctx, oldToken, newRec, ip); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			// Lost a concurrent rotation race; the winner already
			// consumed the old token.
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, fmt.Errorf("%w: rotate refresh token: %v", ErrPersistence, err)
	}
	return signed, newRec.ExpiresAt, nil
}

// RevokeRefreshToken terminates an active refresh token (logout).
func (s *TokenService) RevokeRefreshToken(ctx context.Context, token, ip string) error {
	err := s.store.Revoke(ctx, token, ip)
	if err == nil || errors.Is(err, ErrInvalidToken) {
		return err
	}
	return fmt.Errorf("%w: revoke refresh token: %v", ErrPersistence, err)
}

// ResolvePrincipalID returns the principal a refresh token belongs to. The
// stored record must be active AND the token's signature must verify against
// the refresh secret with a matching subject; either failing alone is
// ErrInvalidToken. This defends against store/signature desync.
func (s *TokenService) ResolvePrincipalID(ctx context.Context, token string) (string, error) {
	rec, err := s.store.Find(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("%w: find refresh token: %v", ErrPersistence, err)
	}
	if !rec.Active(s.now()) {
		return "", ErrInvalidToken
	}
	claims, err := s.parseRefresh(token)
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.Subject != rec.PrincipalID {
		return "", ErrInvalidToken
	}
	return rec.PrincipalID, nil
}

func (s *TokenService) signRefresh(principalID, ip string) (string, *RefreshTokenRecord, error) {
	if principalID == "" {
		return "", nil, fmt.Errorf("%w: principal id is required", ErrBadRequest)
	}
	now := s.now().UTC()
	exp := now.Add(s.refreshTTL)
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   principalID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", nil, fmt.Errorf("sign refresh token: %w", err)
	}
	rec := &RefreshTokenRecord{
		TokenValue:  signed,
		PrincipalID: principalID,
		IssuedAt:    now,
		ExpiresAt:   exp,
		IssuingIP:   ip,
	}
	return signed, rec, nil
}

func (s *TokenService) parseRefresh(token string) (*jwt.RegisteredClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return s.refreshSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
