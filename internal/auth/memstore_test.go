package auth

import (
	"context"
	"sync"
	"time"

	"maktab.org/internal/ids"
)

// In-memory Store used by token and orchestrator tests. Mirrors the
// conditional-update semantics of the Postgres implementation, including
// scoped email uniqueness, the global-admin singleton and the
// rotate/revoke compare-and-swap.

type memPrincipalStore struct {
	mu   sync.Mutex
	byID map[string]*Principal
}

func newMemPrincipalStore() *memPrincipalStore {
	return &memPrincipalStore{byID: make(map[string]*Principal)}
}

func (s *memPrincipalStore) Create(_ context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if p.Role == RoleGlobalSuperAdmin && existing.Role == RoleGlobalSuperAdmin {
			return ErrSingletonViolation
		}
		if existing.Email == p.Email && existing.TenantID == p.TenantID {
			return ErrDuplicateCredential
		}
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	s.byID[p.ID] = &cp
	return nil
}

func (s *memPrincipalStore) FindByID(_ context.Context, id string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memPrincipalStore) FindByEmailInScope(_ context.Context, email, tenantID string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byID {
		if p.Email == email && p.TenantID == tenantID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memPrincipalStore) List(_ context.Context, f Filter) ([]*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*Principal
	for _, p := range s.byID {
		if email, ok := f["email"].(string); ok && p.Email != email {
			continue
		}
		if tenant, ok := f["tenant_id"].(string); ok && p.TenantID != tenant {
			continue
		}
		if role, ok := f["role"].(string); ok && string(p.Role) != role {
			continue
		}
		if active, ok := f["active"].(bool); ok && p.Active != active {
			continue
		}
		cp := *p
		res = append(res, &cp)
	}
	return res, nil
}

func (s *memPrincipalStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.Active = active
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// mutate applies fn to the stored principal, bypassing the public contract.
// Tests use it to simulate out-of-band role changes and deletions.
func (s *memPrincipalStore) mutate(id string, fn func(*Principal)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byID[id]; ok {
		fn(p)
	}
}

func (s *memPrincipalStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

type memTokenStore struct {
	mu   sync.Mutex
	recs map[string]*RefreshTokenRecord
	now  func() time.Time
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{recs: make(map[string]*RefreshTokenRecord), now: time.Now}
}

func (s *memTokenStore) Create(_ context.Context, rec *RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recs[rec.TokenValue]; exists {
		return ErrDuplicateCredential
	}
	cp := *rec
	s.recs[rec.TokenValue] = &cp
	return nil
}

func (s *memTokenStore) Find(_ context.Context, tokenValue string) (*RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[tokenValue]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memTokenStore) Rotate(_ context.Context, oldValue string, newRec *RefreshTokenRecord, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.recs[oldValue]
	if !ok || !old.Active(s.now()) {
		return ErrInvalidToken
	}
	old.Revoked = true
	old.ReplacedBy = newRec.TokenValue
	old.RevokedIP = ip
	cp := *newRec
	s.recs[newRec.TokenValue] = &cp
	return nil
}

func (s *memTokenStore) Revoke(_ context.Context, tokenValue, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[tokenValue]
	if !ok || !rec.Active(s.now()) {
		return ErrInvalidToken
	}
	rec.Revoked = true
	rec.RevokedIP = ip
	return nil
}

func (s *memTokenStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rec := range s.recs {
		if !now.Before(rec.ExpiresAt) {
			delete(s.recs, k)
			n++
		}
	}
	return n, nil
}

// tamper rewrites a stored record in place; tests use it to simulate
// store/signature desync.
func (s *memTokenStore) tamper(tokenValue string, fn func(*RefreshTokenRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.recs[tokenValue]; ok {
		fn(rec)
	}
}
