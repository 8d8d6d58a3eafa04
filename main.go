// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/crowdlist/cliparse"
	"github.com/danielhkuo/crowdlist/credentials"
	"github.com/danielhkuo/crowdlist/db"
	"github.com/danielhkuo/crowdlist/engine"
	"github.com/danielhkuo/crowdlist/lock"
	"github.com/danielhkuo/crowdlist/middleware"
	"github.com/danielhkuo/crowdlist/router"
	"github.com/danielhkuo/crowdlist/spotify"
	"github.com/danielhkuo/crowdlist/store"
	"github.com/danielhkuo/crowdlist/telemetry"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment wins
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "crowdlist",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       true,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.RedisURL != "" {
		rl, err := lock.NewRedisLocker(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rl.Close()
		locker = rl
		slog.Info("using redis vote locks")
	}

	sp := spotify.NewClient(spotify.Config{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		RedirectURI:  cfg.SpotifyRedirectURI,
	})
	if cfg.SpotifyClientID == "" {
		slog.Warn("SPOTIFY_CLIENT_ID not set, host login will fail")
	}

	eng := engine.New(s, spotify.NewDispatcher(sp), credentials.NewResolver(s, s), locker, engine.Config{
		DispatchTimeout: cfg.DispatchTimeout,
	})
	limiter := middleware.NewRateLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitBurst)

	// Create server
	mux := router.NewRouter(s, eng, sp, limiter, cfg)
	server := &http.Server{
		Handler:           middleware.CORS(mux),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Listening", "port", cfg.Port, "database", cfg.DatabaseType)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if cfg.ReconcileInterval > 0 {
		g.Go(func() error {
			return engine.NewReconciler(eng, cfg.ReconcileInterval).Run(gctx)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := limiter.Prune(); n > 0 {
					slog.Debug("pruned idle rate limit buckets", "count", n)
				}
			}
		}
	})

	err = g.Wait()
	slog.Info("Server closed", "error", err)
	return err
}

func openStore(cfg cliparse.Config) (store.Store, error) {
	if cfg.DatabaseType == cliparse.DatabaseMemory {
		slog.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil
	}

	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.CreateSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	slog.Info("Database schema ready")

	driver, err := db.DriverName(cfg.DatabaseType)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return store.NewSQLStore(conn, driver), nil
}

func setupLogging(cfg cliparse.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
