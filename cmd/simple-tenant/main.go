package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-tenant/internal/config"
	httpserver "github.com/tendant/simple-tenant/internal/http"
	"github.com/tendant/simple-tenant/pkg/audit"
	"github.com/tendant/simple-tenant/pkg/registry"
	"github.com/tendant/simple-tenant/pkg/tenant"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Connect to the main registry database
	db, err := registry.NewDB(registry.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to registry database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to registry database")

	// Build the tenant manager
	manager := tenant.NewManager(
		registry.NewTenantRegistry(db),
		tenant.PostgresConnector(),
		tenant.Config{
			CacheTTL:  cfg.CacheTTL,
			CacheSize: cfg.CacheSize,
			Logger:    logger,
			Audit:     audit.NewSlogRecorder(logger),
		},
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Invalidations stay local unless Redis fan-out is configured
	var invalidator tenant.Invalidator = manager
	if cfg.HasRedis() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		broadcaster, err := tenant.NewBroadcaster(rootCtx, rdb, cfg.InvalidationChannel, manager, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := broadcaster.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("invalidation subscriber stopped", "error", err)
			}
		}()
		invalidator = broadcaster
		logger.Info("redis invalidation fan-out enabled")
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:             logger,
		Manager:            manager,
		Invalidator:        invalidator,
		ServiceAuthSecret:  []byte(cfg.ServiceAuthSecret),
		ServiceAuthIssuer:  cfg.ServiceAuthIssuer,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		RateLimit:          cfg.RateLimit,
		SecurityHeaders:    cfg.SecurityHeaders,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	// Drain the cache and close every tenant connection
	manager.Shutdown()
}
