// Package httpapi is the HTTP boundary over the auth core. It stays thin:
// request decoding, bearer authentication, role gates and error-to-status
// mapping. All business rules live in internal/auth.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"maktab.org/internal/auth"
	"maktab.org/internal/obs"
)

// AuthService is the slice of the auth orchestrator this boundary consumes.
type AuthService interface {
	Login(ctx context.Context, email, secret, tenantID, ip string) (*auth.LoginResult, error)
	Register(ctx context.Context, data auth.NewPrincipalData, requester auth.Subject, ip string) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken, ip string) (*auth.LoginResult, error)
	Logout(ctx context.Context, refreshToken, ip string) error
	ListPrincipals(ctx context.Context, requester auth.Subject, requestedTenant string) ([]*auth.Principal, error)
}

// TokenVerifier authenticates bearer tokens on protected routes.
type TokenVerifier interface {
	ParseAccessToken(token string) (auth.Subject, error)
}

// ReadyProbe carries the dependencies /readyz checks.
type ReadyProbe struct {
	DB *sql.DB
}

// Options tunes boundary behavior from configuration.
type Options struct {
	MaxBodyBytes   int64
	RateLimitBurst int
	RateLimitPerS  int
}

// API wires handlers, middleware and collaborators.
type API struct {
	auth     AuthService
	verifier TokenVerifier
	ready    ReadyProbe
	version  string
	opts     Options
}

func New(svc AuthService, verifier TokenVerifier, ready ReadyProbe, version string, opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 10
	}
	if opts.RateLimitPerS <= 0 {
		opts.RateLimitPerS = 5
	}
	return &API{auth: svc, verifier: verifier, ready: ready, version: version, opts: opts}
}

// Handler builds the routed handler wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/readyz", a.handleReadyz)
	mux.Handle("/metrics", obs.Handler())

	limited := func(h http.HandlerFunc) http.Handler {
		return RateLimit(h, a.opts.RateLimitBurst, a.opts.RateLimitPerS)
	}
	mux.Handle("/v1/auth/login", limited(a.handleLogin))
	mux.Handle("/v1/auth/refresh", limited(a.handleRefresh))
	mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	mux.HandleFunc("/v1/auth/register", a.handleRegister)
	mux.HandleFunc("/v1/principals", a.handleListPrincipals)

	var h http.Handler = mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
