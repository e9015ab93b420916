package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"maktab.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// Constraint names from migrations/0001_principals.up.sql. Create relies on
// them to tell a scoped-email collision from a second global admin.
const (
	constraintOneGlobalAdmin = "principals_one_global_admin"
)

// PGStore implements Store on PostgreSQL through an injected *sql.DB.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Principals() PrincipalStore { return &principalStore{db: s.db} }

func (s *PGStore) RefreshTokens() RefreshTokenStore { return &tokenStore{db: s.db} }

// Principal store -----------------------------------------------------------

type principalStore struct{ db *sql.DB }

const principalColumns = `id, email, password_hash, role, tenant_id, active, created_at, updated_at`

func (s *principalStore) Create(ctx context.Context, p *Principal) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into principals(id, email, password_hash, role, tenant_id, active)
		 values($1,$2,$3,$4,$5,$6)`,
		p.ID, p.Email, p.PasswordHash, string(p.Role), nullableTenant(p.TenantID), p.Active,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			if pgErr.ConstraintName == constraintOneGlobalAdmin {
				return ErrSingletonViolation
			}
			return ErrDuplicateCredential
		}
		return err
	}
	return nil
}

func (s *principalStore) FindByID(ctx context.Context, id string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where id=$1`, id)
	return scanPrincipal(row)
}

func (s *principalStore) FindByEmailInScope(ctx context.Context, email, tenantID string) (*Principal, error) {
	var row *sql.Row
	if tenantID == "" {
		row = s.db.QueryRowContext(ctx,
			`select `+principalColumns+` from principals where email=$1 and tenant_id is null`, email)
	} else {
		row = s.db.QueryRowContext(ctx,
			`select `+principalColumns+` from principals where email=$1 and tenant_id=$2`, email, tenantID)
	}
	return scanPrincipal(row)
}

// filterColumns lists the columns List accepts; anything else in a Filter is
// rejected rather than silently dropped.
var filterColumns = map[string]struct{}{
	"email":     {},
	"role":      {},
	"tenant_id": {},
	"active":    {},
}

func (s *principalStore) List(ctx context.Context, f Filter) ([]*Principal, error) {
	var (
		clauses []string
		args    []any
	)
	keys := make([]string, 0, len(f))
	for k := range f {
		if _, ok := filterColumns[k]; !ok {
			return nil, fmt.Errorf("%w: unsupported filter column %q", ErrBadRequest, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, f[k])
		clauses = append(clauses, fmt.Sprintf("%s=$%d", k, len(args)))
	}
	query := `select ` + principalColumns + ` from principals`
	if len(clauses) > 0 {
		query += ` where ` + strings.Join(clauses, " and ")
	}
	query += ` order by created_at asc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *principalStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*Principal, error) {
	var (
		p      Principal
		role   string
		tenant sql.NullString
	)
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &role, &tenant, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Role = Role(role)
	p.TenantID = tenant.String
	return &p, nil
}

func nullableTenant(tenantID string) sql.NullString {
	return sql.NullString{String: tenantID, Valid: tenantID != ""}
}

// Refresh token store -------------------------------------------------------

type tokenStore struct{ db *sql.DB }

func (s *tokenStore) Create(ctx context.Context, rec *RefreshTokenRecord) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(token_value, principal_id, issued_at, expires_at, issuing_ip)
		 values($1,$2,$3,$4,$5)`,
		rec.TokenValue, rec.PrincipalID, rec.IssuedAt, rec.ExpiresAt, rec.IssuingIP,
	)
	return err
}

func (s *tokenStore) Find(ctx context.Context, tokenValue string) (*RefreshTokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`select token_value, principal_id, issued_at, expires_at, revoked, issuing_ip, revoked_ip, replaced_by
		 from refresh_tokens where token_value=$1`, tokenValue)
	var (
		rec        RefreshTokenRecord
		revokedIP  sql.NullString
		replacedBy sql.NullString
	)
	err := row.Scan(&rec.TokenValue, &rec.PrincipalID, &rec.IssuedAt, &rec.ExpiresAt,
		&rec.Revoked, &rec.IssuingIP, &revokedIP, &replacedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.RevokedIP = revokedIP.String
	rec.ReplacedBy = replacedBy.String
	return &rec, nil
}

// Rotate performs the compare-and-swap the rotation state machine depends
// on: the conditional update only matches a record that is still active and
// unexpired, so of two concurrent rotations exactly one sees an affected
// row. Old-mark and new-insert commit as a single transaction.
func (s *tokenStore) Rotate(ctx context.Context, oldValue string, newRec *RefreshTokenRecord, ip string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update refresh_tokens
		 set revoked=true, replaced_by=$1, revoked_ip=$2
		 where token_value=$3 and revoked=false and expires_at > now()`,
		newRec.TokenValue, ip, oldValue,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidToken
	}
	if _, err := tx.ExecContext(ctx,
		`insert into refresh_tokens(token_value, principal_id, issued_at, expires_at, issuing_ip)
		 values($1,$2,$3,$4,$5)`,
		newRec.TokenValue, newRec.PrincipalID, newRec.IssuedAt, newRec.ExpiresAt, newRec.IssuingIP,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *tokenStore) Revoke(ctx context.Context, tokenValue, ip string) error {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens
		 set revoked=true, revoked_ip=$2
		 where token_value=$1 and revoked=false and expires_at > now()`,
		tokenValue, ip,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidToken
	}
	return nil
}

func (s *tokenStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
