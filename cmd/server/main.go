package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/campaign-session/internal/config"
	"github.com/iliyamo/campaign-session/internal/database"
	"github.com/iliyamo/campaign-session/internal/logging"
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/obs"
	"github.com/iliyamo/campaign-session/internal/queue"
	"github.com/iliyamo/campaign-session/internal/repository"
	"github.com/iliyamo/campaign-session/internal/router"
	"github.com/iliyamo/campaign-session/internal/service"
	"github.com/iliyamo/campaign-session/internal/utils"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New("server", cfg.LogLevel)
	if err != nil {
		logger.Fatalj(log.JSON{"event": "config_invalid", "error": err.Error()})
	}
	// Missing secrets do not stop the process: requests that need them
	// fail with a configuration error until the operator fixes the env.
	if err := cfg.Validate(); err != nil {
		logger.Errorj(log.JSON{"event": "config_incomplete", "error": err.Error()})
	}

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatalj(log.JSON{"event": "db_open_failed", "error": err.Error()})
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(ctx, db); err != nil {
		cancel()
		logger.Fatalj(log.JSON{"event": "db_migrate_failed", "error": err.Error()})
	}
	cancel()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		logger.Warnj(log.JSON{"event": "redis_unavailable", "addr": cfg.Redis.Addr, "effect": "rate limiting and caching disabled"})
	} else {
		defer rdb.Close()
	}

	metrics := obs.NewMetrics()
	auditOpts := []service.AuditOption{service.WithEventMetrics(metrics)}
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL)
		defer pub.Close()
		auditOpts = append(auditOpts, service.WithPublisher(pub))
	}
	audit := service.NewAuditor(repository.NewSecurityEventRepo(db), logging.New("audit", cfg.LogLevel), auditOpts...)

	sessions := service.NewSessionService(service.SessionDeps{
		Signer:    utils.NewSigner(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL(), cfg.RefreshTTL()),
		Users:     repository.NewUserRepo(db),
		Tokens:    repository.NewTokenRepo(db),
		Devices:   repository.NewDeviceRepo(db),
		Audit:     audit,
		Logger:    logging.New("session", cfg.LogLevel),
		DeviceTTL: cfg.TrustedDeviceTTL(),
	})

	refs := repository.NewReferenceRepo(db,
		repository.LockConfig{Enabled: cfg.MasterDataLockEnabled, Bypass: cfg.MasterDataLockBypass},
		repository.WithLockLogger(logging.New("masterdata", cfg.LogLevel)),
		repository.WithBypassHook(func(kind model.ReferenceKind, op model.Operation) {
			metrics.LockBypass(string(kind), string(op))
		}),
	)
	if cfg.MasterDataLockEnabled && cfg.MasterDataLockBypass {
		logger.Warnj(log.JSON{"event": "masterdata_lock_bypass_enabled"})
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger
	router.Register(e, router.Deps{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Sessions: sessions,
		Audit:    audit,
		Refs:     refs,
		Metrics:  metrics,
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Infoj(log.JSON{"event": "listening", "addr": addr, "env": cfg.Env})
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalj(log.JSON{"event": "server_failed", "error": err.Error()})
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorj(log.JSON{"event": "shutdown_failed", "error": err.Error()})
	}
	logger.Infoj(log.JSON{"event": "stopped"})
}
