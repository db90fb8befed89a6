package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"callsync/internal/audit"
	"callsync/internal/auth"
	"callsync/internal/calls"
	"callsync/internal/config"
	"callsync/internal/ingest"
	"callsync/internal/integrations"
	"callsync/internal/reporting"
	"callsync/internal/secrets"
	"callsync/internal/syncjob"
	"callsync/internal/telephony"
	"callsync/migrations"
	"callsync/pkg/logger"
	"callsync/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	if err := migrate(cfg.PostgresDSN(), log); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	enc, err := secrets.New(cfg.Secrets.TokenEncryptionKey, "")
	if err != nil {
		log.Error("token encryption init failed", "err", err)
		os.Exit(1)
	}
	if !enc.Enabled() {
		log.Warn("TOKEN_ENCRYPTION_KEY not set; provider tokens are stored unencrypted")
	}

	provider, err := telephony.NewRingCentralClient(telephony.RingCentralConfig{
		BaseURL:      cfg.Provider.BaseURL,
		ClientID:     cfg.Provider.ClientID,
		ClientSecret: cfg.Provider.ClientSecret,
		Timeout:      cfg.Provider.HTTPTimeout,
	})
	if err != nil {
		log.Error("provider init failed", "err", err)
		os.Exit(1)
	}

	locker, closeLocker, err := newLocker(rootCtx, cfg, log)
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer closeLocker()

	integrationRepo := integrations.NewPostgresRepo(db, enc)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	store := calls.NewStore(calls.NewPostgresRepo(db))

	creds := integrations.NewCredentialManager(integrationRepo, provider, auditSvc,
		integrations.WithRefreshSkew(cfg.Sync.RefreshSkew),
		integrations.WithLogger(log),
	)
	fetcher := ingest.NewFetcher(provider, store, integrationRepo, auditSvc, ingest.Config{
		PageSize:        cfg.Provider.PageSize,
		PageDelay:       cfg.Provider.PageDelay,
		BootstrapWindow: cfg.Sync.BootstrapWindow,
	}, log)
	aggregator := reporting.NewAggregator(store, reporting.NewPostgresRepo(db), log)

	orchestrator := syncjob.NewOrchestrator(integrationRepo, creds, fetcher, aggregator, locker, syncjob.Config{
		Deadline: cfg.Sync.Deadline,
		LeaseTTL: cfg.Sync.LeaseTTL,
		Location: cfg.Location(),
	}, log)

	var scheduler *syncjob.Scheduler
	if cfg.Sync.Schedule != "" {
		scheduler, err = syncjob.NewScheduler(cfg.Sync.Schedule, cfg.Location(), orchestrator.RunActive, log)
		if err != nil {
			log.Error("scheduler init failed", "err", err)
			os.Exit(1)
		}
		scheduler.Start()
		log.Info("call sync scheduled", "schedule", cfg.Sync.Schedule, "next_run", scheduler.NextRun())
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		authMW:       auth.RequireAccessToken(authManager),
		job:          orchestrator,
		integrations: integrationRepo,
		db:           db,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// The trigger endpoint answers only after the run, which is bounded by the sync deadline.
		WriteTimeout: cfg.Sync.Deadline + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// migrate applies embedded migrations on a dedicated handle; the migrate driver closes it.
func migrate(dsn string, log *slog.Logger) error {
	mdb, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	return utils.RunMigrations(mdb, migrations.FS, log)
}

// newLocker returns a Redis-backed run lease when Redis is configured and an in-process one otherwise.
func newLocker(ctx context.Context, cfg config.Config, log *slog.Logger) (syncjob.Locker, func(), error) {
	if !cfg.RedisEnabled() {
		log.Info("REDIS_HOST not set; using in-process sync leases")
		return syncjob.NewMemoryLocker(), func() {}, nil
	}
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		return nil, nil, err
	}
	return syncjob.NewRedisLocker(rdb), func() { _ = rdb.Close() }, nil
}
