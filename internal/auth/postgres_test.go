package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewPGStore(db), mock
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraint}
}

func TestPrincipalStoreCreate(t *testing.T) {
	t.Run("assigns id and stores null tenant for global", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`insert into principals`).
			WithArgs(sqlmock.AnyArg(), "root@maktab.org", "hash", "global_super_admin", nil, true).
			WillReturnResult(sqlmock.NewResult(0, 1))

		p := &Principal{Email: "root@maktab.org", PasswordHash: "hash", Role: RoleGlobalSuperAdmin, Active: true}
		if err := store.Principals().Create(context.Background(), p); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if p.ID == "" {
			t.Fatal("id not assigned")
		}
	})

	t.Run("second global admin maps to singleton violation", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`insert into principals`).
			WillReturnError(uniqueViolation("principals_one_global_admin"))

		err := store.Principals().Create(context.Background(), &Principal{
			Email: "root2@maktab.org", PasswordHash: "hash", Role: RoleGlobalSuperAdmin, Active: true,
		})
		if !errors.Is(err, ErrSingletonViolation) {
			t.Fatalf("got %v, want ErrSingletonViolation", err)
		}
	})

	t.Run("scoped email collision maps to duplicate", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`insert into principals`).
			WillReturnError(uniqueViolation("principals_tenant_email"))

		err := store.Principals().Create(context.Background(), &Principal{
			Email: "staff@school-a.org", PasswordHash: "hash", Role: RoleStaff, TenantID: "tenant-a", Active: true,
		})
		if !errors.Is(err, ErrDuplicateCredential) {
			t.Fatalf("got %v, want ErrDuplicateCredential", err)
		}
	})

	t.Run("non-constraint errors pass through", func(t *testing.T) {
		store, mock := newMockStore(t)
		boom := errors.New("connection reset")
		mock.ExpectExec(`insert into principals`).WillReturnError(boom)

		err := store.Principals().Create(context.Background(), &Principal{
			Email: "staff@school-a.org", PasswordHash: "hash", Role: RoleStaff, TenantID: "tenant-a",
		})
		if !errors.Is(err, boom) {
			t.Fatalf("got %v", err)
		}
	})
}

func principalRows(p *Principal) *sqlmock.Rows {
	var tenant any
	if p.TenantID != "" {
		tenant = p.TenantID
	}
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "role", "tenant_id", "active", "created_at", "updated_at",
	}).AddRow(p.ID, p.Email, p.PasswordHash, string(p.Role), tenant, p.Active, p.CreatedAt, p.UpdatedAt)
}

func TestPrincipalStoreFindByEmailInScope(t *testing.T) {
	now := time.Now().UTC()

	t.Run("empty tenant targets the null-tenant scope", func(t *testing.T) {
		store, mock := newMockStore(t)
		want := &Principal{ID: "p1", Email: "root@maktab.org", PasswordHash: "h",
			Role: RoleGlobalSuperAdmin, Active: true, CreatedAt: now, UpdatedAt: now}
		mock.ExpectQuery(`from principals where email=\$1 and tenant_id is null`).
			WithArgs("root@maktab.org").
			WillReturnRows(principalRows(want))

		got, err := store.Principals().FindByEmailInScope(context.Background(), "root@maktab.org", "")
		if err != nil {
			t.Fatalf("FindByEmailInScope: %v", err)
		}
		if got.ID != "p1" || got.TenantID != "" || got.Role != RoleGlobalSuperAdmin {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("tenant scope binds the tenant", func(t *testing.T) {
		store, mock := newMockStore(t)
		want := &Principal{ID: "p2", Email: "admin@school-a.org", PasswordHash: "h",
			Role: RoleSchoolAdmin, TenantID: "tenant-a", Active: true, CreatedAt: now, UpdatedAt: now}
		mock.ExpectQuery(`from principals where email=\$1 and tenant_id=\$2`).
			WithArgs("admin@school-a.org", "tenant-a").
			WillReturnRows(principalRows(want))

		got, err := store.Principals().FindByEmailInScope(context.Background(), "admin@school-a.org", "tenant-a")
		if err != nil {
			t.Fatal(err)
		}
		if got.TenantID != "tenant-a" {
			t.Fatalf("tenant = %q", got.TenantID)
		}
	})

	t.Run("no row is ErrNotFound", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`from principals where email=\$1 and tenant_id=\$2`).
			WithArgs("ghost@school-a.org", "tenant-a").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "email", "password_hash", "role", "tenant_id", "active", "created_at", "updated_at",
			}))

		_, err := store.Principals().FindByEmailInScope(context.Background(), "ghost@school-a.org", "tenant-a")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})
}

func TestPrincipalStoreList(t *testing.T) {
	now := time.Now().UTC()

	t.Run("filter keys render in sorted order", func(t *testing.T) {
		store, mock := newMockStore(t)
		p := &Principal{ID: "p1", Email: "staff@school-a.org", PasswordHash: "h",
			Role: RoleStaff, TenantID: "tenant-a", Active: true, CreatedAt: now, UpdatedAt: now}
		mock.ExpectQuery(`from principals where role=\$1 and tenant_id=\$2 order by created_at asc`).
			WithArgs("staff", "tenant-a").
			WillReturnRows(principalRows(p))

		got, err := store.Principals().List(context.Background(), Filter{
			"tenant_id": "tenant-a",
			"role":      "staff",
		})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 || got[0].ID != "p1" {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("empty filter lists everything", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`select .* from principals order by created_at asc`).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "email", "password_hash", "role", "tenant_id", "active", "created_at", "updated_at",
			}))

		if _, err := store.Principals().List(context.Background(), Filter{}); err != nil {
			t.Fatalf("List: %v", err)
		}
	})

	t.Run("unsupported column is rejected", func(t *testing.T) {
		store, _ := newMockStore(t)
		_, err := store.Principals().List(context.Background(), Filter{"password_hash": "x"})
		if !errors.Is(err, ErrBadRequest) {
			t.Fatalf("got %v, want ErrBadRequest", err)
		}
	})
}

func TestPrincipalStoreSetActive(t *testing.T) {
	t.Run("updates the row", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`update principals set active=\$2`).
			WithArgs("p1", false).
			WillReturnResult(sqlmock.NewResult(0, 1))
		if err := store.Principals().SetActive(context.Background(), "p1", false); err != nil {
			t.Fatalf("SetActive: %v", err)
		}
	})

	t.Run("missing principal", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`update principals set active=\$2`).
			WithArgs("ghost", true).
			WillReturnResult(sqlmock.NewResult(0, 0))
		if err := store.Principals().SetActive(context.Background(), "ghost", true); !errors.Is(err, ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})
}

func TestTokenStoreRotate(t *testing.T) {
	now := time.Now().UTC()
	newRec := &RefreshTokenRecord{
		TokenValue:  "new-token",
		PrincipalID: "p1",
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Hour),
		IssuingIP:   "10.0.0.2",
	}

	t.Run("marks old and inserts new in one transaction", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`update refresh_tokens`).
			WithArgs("new-token", "10.0.0.2", "old-token").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`insert into refresh_tokens`).
			WithArgs("new-token", "p1", newRec.IssuedAt, newRec.ExpiresAt, "10.0.0.2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := store.RefreshTokens().Rotate(context.Background(), "old-token", newRec, "10.0.0.2"); err != nil {
			t.Fatalf("Rotate: %v", err)
		}
	})

	t.Run("zero affected rows loses the race", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`update refresh_tokens`).
			WithArgs("new-token", "10.0.0.2", "old-token").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.RefreshTokens().Rotate(context.Background(), "old-token", newRec, "10.0.0.2")
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("got %v, want ErrInvalidToken", err)
		}
	})

	t.Run("insert failure rolls back the mark", func(t *testing.T) {
		store, mock := newMockStore(t)
		boom := errors.New("disk full")
		mock.ExpectBegin()
		mock.ExpectExec(`update refresh_tokens`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`insert into refresh_tokens`).
			WillReturnError(boom)
		mock.ExpectRollback()

		err := store.RefreshTokens().Rotate(context.Background(), "old-token", newRec, "10.0.0.2")
		if !errors.Is(err, boom) {
			t.Fatalf("got %v", err)
		}
	})
}

func TestTokenStoreRevoke(t *testing.T) {
	t.Run("revokes an active token", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`update refresh_tokens`).
			WithArgs("tok", "10.0.0.3").
			WillReturnResult(sqlmock.NewResult(0, 1))
		if err := store.RefreshTokens().Revoke(context.Background(), "tok", "10.0.0.3"); err != nil {
			t.Fatalf("Revoke: %v", err)
		}
	})

	t.Run("already terminal", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`update refresh_tokens`).
			WithArgs("tok", "10.0.0.3").
			WillReturnResult(sqlmock.NewResult(0, 0))
		if err := store.RefreshTokens().Revoke(context.Background(), "tok", "10.0.0.3"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("got %v, want ErrInvalidToken", err)
		}
	})
}

func TestTokenStoreFind(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`from refresh_tokens where token_value=\$1`).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{
			"token_value", "principal_id", "issued_at", "expires_at", "revoked", "issuing_ip", "revoked_ip", "replaced_by",
		}).AddRow("tok", "p1", now, now.Add(time.Hour), false, "10.0.0.1", nil, nil))

	rec, err := store.RefreshTokens().Find(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if rec.PrincipalID != "p1" || rec.Revoked || rec.RevokedIP != "" || rec.ReplacedBy != "" {
		t.Fatalf("got %+v", rec)
	}
}

func TestTokenStorePurgeExpired(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectExec(`delete from refresh_tokens where expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.RefreshTokens().PurgeExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 3 {
		t.Fatalf("purged %d, want 3", n)
	}
}
