package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudcall-platform/internal/audit"
	"cloudcall-platform/internal/auth"
	"cloudcall-platform/internal/calls"
	"cloudcall-platform/internal/config"
	"cloudcall-platform/internal/directory"
	"cloudcall-platform/internal/httpapi"
	"cloudcall-platform/internal/messaging"
	"cloudcall-platform/internal/numbers"
	"cloudcall-platform/internal/reporting"
	"cloudcall-platform/internal/routing"
	"cloudcall-platform/internal/telephony"
	"cloudcall-platform/pkg/logger"
	"cloudcall-platform/pkg/utils"

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

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Repositories
	dirRepo := directory.NewPostgresRepo(db)
	numRepo := numbers.NewPostgresRepo(db)
	callRepo := calls.NewPostgresRepo(db)
	msgRepo := messaging.NewPostgresRepo(db)
	auditRepo := audit.NewPostgresRepo(db)
	reportRepo := reporting.NewPostgresRepo(db)

	// Cross-process coordination lives in Redis: webhook dedupe, round-robin
	// rotation pointers, and the orphan queue.
	dedupe := utils.NewRedisDeduper(rdb, 24*time.Hour)
	rotation := routing.NewRedisRotationStore(rdb)
	orphans := calls.NewRedisOrphanQueue(rdb)

	var gateway telephony.Gateway
	if cfg.Twilio.AccountSID != "" {
		gateway = telephony.NewTwilioGateway(telephony.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			BaseURL:    cfg.Twilio.APIBaseURL,
		})
	} else {
		// Local bring-up without provider credentials.
		log.Warn("no telephony credentials configured, using in-memory gateway")
		gateway = telephony.NewMemoryGateway()
	}

	auditSvc := audit.NewService(auditRepo)
	numSvc := numbers.NewService(numRepo)
	resolver := routing.NewResolver(dirRepo, rotation, nil)
	reportSvc := reporting.NewService(reportRepo)

	callSvc := calls.NewService(
		calls.Config{
			PublicBaseURL:        cfg.App.PublicBaseURL,
			DialTimeoutSeconds:   int(cfg.Voice.DialTimeout.Seconds()),
			GatherTimeoutSeconds: int(cfg.Voice.GatherTimeout.Seconds()),
		},
		callRepo, numSvc, dirRepo, resolver, gateway, auditSvc, dedupe, orphans, reportSvc,
	)
	msgSvc := messaging.NewService(
		messaging.Config{PublicBaseURL: cfg.App.PublicBaseURL},
		msgRepo, numSvc, dirRepo, resolver, gateway, auditSvc, dedupe,
	)

	reconciler := calls.NewReconciler(callRepo, orphans, gateway, auditSvc, 30*time.Second)
	reconciler.Start(logger.With(rootCtx, log))

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		AuthMW: auth.RequireAccessToken(authManager),
		Handlers: httpapi.Handlers{
			Auth:     authManager,
			Numbers:  numSvc,
			Calls:    callSvc,
			Messages: msgSvc,
			Reports:  reportSvc,
			Gateway:  gateway,
		},
		Webhooks: telephony.WebhookHandler{Voice: callSvc, Messages: msgSvc},
		Gateway:  gateway,
		DB:       db,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "gateway", gateway.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	reconciler.Stop()
}
