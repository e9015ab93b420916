package auth

import "errors"

// Sentinel errors raised by the auth subsystem. Lower layers raise the most
// specific kind; the orchestrator passes them through unchanged and wraps
// anything unexpected in ErrPersistence. The HTTP boundary maps each kind to
// a status code.
var (
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrForbidden           = errors.New("auth: forbidden")
	ErrBadRequest          = errors.New("auth: bad request")
	ErrDuplicateCredential = errors.New("auth: credential already exists")
	ErrSingletonViolation  = errors.New("auth: a global super admin already exists")
	ErrMissingTenant       = errors.New("auth: tenant id required for this role")
	ErrTenantMismatch      = errors.New("auth: tenant id outside principal scope")
	ErrInvalidToken        = errors.New("auth: invalid token")
	ErrInvalidUser         = errors.New("auth: invalid user")
	ErrPersistence         = errors.New("auth: persistence failure")

	// ErrNotFound is internal to the store layer; it never crosses the
	// orchestrator boundary (lookups surface ErrInvalidCredentials,
	// ErrInvalidUser or ErrInvalidToken instead).
	ErrNotFound = errors.New("auth: not found")
)

var knownErrors = []error{
	ErrInvalidCredentials,
	ErrForbidden,
	ErrBadRequest,
	ErrDuplicateCredential,
	ErrSingletonViolation,
	ErrMissingTenant,
	ErrTenantMismatch,
	ErrInvalidToken,
	ErrInvalidUser,
	ErrPersistence,
	ErrNotFound,
}

// isKnown reports whether err is (or wraps) one of the subsystem sentinels.
func isKnown(err error) bool {
	for _, sentinel := range knownErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
