package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"maktab.org/internal/auth"
	"maktab.org/internal/config"
	"maktab.org/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("MAKTAB_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "migrations", "path to SQL migrations")
		configPath     = flag.String("config", os.Getenv("MAKTAB_CONFIG"), "path to YAML config (seed-admin only)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or MAKTAB_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status|seed-admin]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "seed-admin":
		err = seedGlobalAdmin(ctx, db, *configPath)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

// seedGlobalAdmin creates the singleton global super admin if none exists.
// Creation goes through the credential layer so the secret is hashed with
// the configured cost and the singleton index stays authoritative.
func seedGlobalAdmin(ctx context.Context, db *sql.DB, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.SeedAdmin.Email == "" || cfg.SeedAdmin.Secret == "" {
		return errors.New("seed_admin email and secret must be set (config or MAKTAB_SEED_ADMIN_*)")
	}

	store := auth.NewPGStore(db)
	creds, err := auth.NewCredentials(store.Principals(), cfg.BcryptCost)
	if err != nil {
		return err
	}
	p, err := creds.Create(ctx, auth.NewPrincipalData{
		Email:  cfg.SeedAdmin.Email,
		Secret: cfg.SeedAdmin.Secret,
		Role:   auth.RoleGlobalSuperAdmin,
	})
	switch {
	case errors.Is(err, auth.ErrSingletonViolation), errors.Is(err, auth.ErrDuplicateCredential):
		log.Println("global super admin already exists, nothing to do")
		return nil
	case err != nil:
		return err
	}
	log.Printf("global super admin created: id=%s email=%s", p.ID, p.Email)
	return nil
}
