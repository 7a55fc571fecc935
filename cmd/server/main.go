// Package main is the entry point for the almacen API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"almacen/internal/app"
	"almacen/internal/core/security"
	"almacen/internal/domain/auth"
	v1 "almacen/internal/infrastructure/http/v1"
	"almacen/internal/infrastructure/storage/postgres"
	"almacen/pkg/config"
	"almacen/pkg/logger"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := context.Background()
	log.Infow("starting almacen server", "storage", cfg.Storage.Driver, "env", cfg.App.Env)

	policy, err := security.NewPolicy(cfg.Policy.Overrides())
	if err != nil {
		log.Fatalw("invalid policy rules", "error", err)
	}

	application, pool, err := buildApp(ctx, cfg, policy)
	if err != nil {
		log.Fatalw("failed to initialize storage", "error", err)
	}
	if pool != nil {
		defer pool.Close()
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.JWT.Secret,
		Issuer:         cfg.JWT.Issuer,
		AccessTokenTTL: cfg.JWT.TTL,
	})

	router := v1.NewRouter(v1.RouterConfig{
		App:          application,
		Pool:         pool,
		Driver:       cfg.Storage.Driver,
		Version:      version,
		Logger:       log,
		JWTValidator: jwtService,
		Debug:        cfg.App.IsDevelopment(),
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	if pool != nil {
		go reportPoolStats(ctx, pool)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// buildApp wires the services on the configured storage driver. The pool is
// nil on the memory driver.
func buildApp(ctx context.Context, cfg *config.Config, policy *security.Policy) (*app.App, *postgres.Pool, error) {
	opts := app.Options{Policy: policy}

	if cfg.Storage.Driver == config.DriverMemory {
		a, _ := app.NewMemory(opts)
		logger.Warn(ctx, "running on the in-memory store, data is lost on exit")
		return a, nil, nil
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfigFrom(cfg.DB))
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	if cfg.DB.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}

	txm := postgres.NewTxManager(pool, cfg.DB.StatementTimeout)
	a, err := app.NewPostgres(txm, opts)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return a, pool, nil
}

func reportPoolStats(ctx context.Context, pool *postgres.Pool) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		postgres.LogPoolStats(ctx, pool)
	}
}
