package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admin-console/internal/apiclient"
	"admin-console/internal/catalog"
	"admin-console/internal/config"
	"admin-console/internal/console"
	"admin-console/internal/logger"
	"admin-console/internal/session"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Initialize structured logger
	log := logger.New()
	logger.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting admin console",
		"port", cfg.Port,
		"api_url", cfg.APIURL,
		"session_store", cfg.SessionStore,
	)

	store, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to open session store", "error", err)
		os.Exit(1)
	}

	// One client for refresh, logout and data calls so backend cookies are shared
	jar, err := cookiejar.New(nil)
	if err != nil {
		slog.Error("Failed to create cookie jar", "error", err)
		os.Exit(1)
	}
	httpClient := &http.Client{Jar: jar, Timeout: cfg.RequestTimeout}

	sessionMgr := session.NewManager(store, session.Options{
		BaseURL:             cfg.APIURL,
		HTTPClient:          httpClient,
		RefreshCookieName:   cfg.RefreshCookieName,
		LogoutNotifyTimeout: cfg.LogoutNotifyTimeout,
		Logger:              log,
	})

	initCtx, cancelInit := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	if err := sessionMgr.Initialize(initCtx); err != nil {
		// Not fatal: the administrator can still sign in through /login-direct
		slog.Warn("No session restored", "error", err)
	}
	cancelInit()

	client := apiclient.New(cfg.APIURL, httpClient, sessionMgr)
	cat := catalog.New(client, cfg.DefaultPageSize, log)

	router := console.SetupRouter(sessionMgr, cat, console.Options{
		AdminFEURL: cfg.AdminFEURL,
		UserFEURL:  cfg.UserFEURL,
		Logger:     log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		slog.Info("Admin console listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down admin console")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Let in-flight logout notifications finish
	sessionMgr.Wait()

	slog.Info("Admin console stopped")
}

func openStore(cfg *config.Config) (session.Store, error) {
	switch cfg.SessionStore {
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		slog.Info("Connected to Redis", "addr", cfg.RedisAddr)
		return session.NewRedisStoreFromClient(rdb, cfg.RedisKeyPrefix), nil
	case config.StoreMemory:
		slog.Warn("Using in-memory session store; sessions are lost on restart")
		return session.NewMemoryStore(), nil
	default:
		slog.Info("Using file session store", "path", cfg.SessionFile)
		return session.NewFileStore(cfg.SessionFile), nil
	}
}
