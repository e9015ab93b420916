package main

import (
	"context"
	"database/sql"
	"flag"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"maktab.org/internal/auth"
	"maktab.org/internal/config"
	"maktab.org/internal/httpapi"
	"maktab.org/internal/obs"
)

var version = "0.3.1"

func main() {
	configPath := flag.String("config", os.Getenv("MAKTAB_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stdlog.Fatalf("load config: %v", err)
	}

	log, err := obs.InitLogger(cfg.Environment, cfg.Logger.Level)
	if err != nil {
		stdlog.Fatalf("init logger: %v", err)
	}
	defer obs.Sync()
	obs.Init()

	if cfg.Database.DSN == "" {
		log.Fatal("missing database DSN: set database.dsn or MAKTAB_PG_DSN")
	}
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	store := auth.NewPGStore(db)
	creds, err := auth.NewCredentials(store.Principals(), cfg.BcryptCost)
	if err != nil {
		log.Fatal("init credentials", zap.Error(err))
	}
	tokens, err := auth.NewTokenService(store.RefreshTokens(),
		cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret,
		auth.WithIssuer(cfg.JWT.Issuer),
		auth.WithAccessTTL(cfg.JWT.AccessTTL.Std()),
		auth.WithRefreshTTL(cfg.JWT.RefreshTTL.Std()),
	)
	if err != nil {
		log.Fatal("init token service", zap.Error(err))
	}
	svc, err := auth.NewService(creds, tokens)
	if err != nil {
		log.Fatal("init auth service", zap.Error(err))
	}

	api := httpapi.New(svc, tokens, httpapi.ReadyProbe{DB: db}, version, httpapi.Options{
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RateLimitBurst: cfg.RateLimit.Burst,
		RateLimitPerS:  cfg.RateLimit.PerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout.Std(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout.Std(),
		WriteTimeout:      cfg.Server.WriteTimeout.Std(),
		IdleTimeout:       cfg.Server.IdleTimeout.Std(),
	}

	rootCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Expired refresh-token records are passively invalid; the sweeper just
	// reclaims storage in place of a document-store TTL.
	go sweepExpiredTokens(rootCtx, store.RefreshTokens(), log)

	go func() {
		log.Info("starting maktab-api", zap.String("version", version), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Info("stopped")
}

func sweepExpiredTokens(ctx context.Context, store auth.RefreshTokenStore, log *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx, time.Now().UTC())
			if err != nil {
				log.Warn("purge expired refresh tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged expired refresh tokens", zap.Int64("count", n))
			}
		}
	}
}
