package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"forkline.io/internal/audit"
	"forkline.io/internal/auth"
	"forkline.io/internal/config"
	"forkline.io/internal/crm"
	"forkline.io/internal/httpapi"
	"forkline.io/internal/obs"
	"forkline.io/internal/store"
)

var version = "0.3.0"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := obs.NewLogger(cfg.LogLevel, "forkline-api")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init(version)

	db, err := store.Open(cfg.PostgresDSN, logger)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	// redis is optional; without it metric reads hit postgres every time
	var cache *crm.MetricsCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		cache = crm.NewMetricsCache(rdb, 10*time.Minute, logger)
	}

	svc := crm.NewService(db, cache, logger)

	tokens, err := auth.NewJWTStrategy(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL.Std())
	if err != nil {
		logger.Fatal("token strategy", zap.Error(err))
	}
	ctrl, err := auth.NewController(auth.NewDatabaseAuthenticator(svc), tokens, svc, logger)
	if err != nil {
		logger.Fatal("auth controller", zap.Error(err))
	}

	api := httpapi.New(svc, ctrl, audit.New(logger), httpapi.ReadyProbe{DB: db}, cfg, version, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting forkline-api", zap.String("version", version), zap.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	api.Close()
	logger.Info("stopped")
}
