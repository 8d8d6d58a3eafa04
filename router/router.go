// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/danielhkuo/crowdlist/cliparse"
	"github.com/danielhkuo/crowdlist/engine"
	"github.com/danielhkuo/crowdlist/handlers"
	"github.com/danielhkuo/crowdlist/middleware"
	"github.com/danielhkuo/crowdlist/spotify"
	"github.com/danielhkuo/crowdlist/store"
)

// NewRouter wires every endpoint. A nil limiter disables rate limiting.
func NewRouter(s store.Store, eng *engine.Engine, sp *spotify.Client, limiter *middleware.RateLimiter, cfg cliparse.Config) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(s, sp, cfg)
	eventHandler := handlers.NewEventHandler(s, eng, sp, cfg)
	votingHandler := handlers.NewVotingHandler(s, eng, sp, cfg)

	limited := func(h http.HandlerFunc) http.HandlerFunc {
		if limiter == nil {
			return middleware.WithLogging(h)
		}
		return middleware.WithLogging(limiter.Limit(h))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Host login
	mux.HandleFunc("GET /auth/login", middleware.WithLogging(authHandler.Login))
	mux.HandleFunc("GET /auth/callback", middleware.WithLogging(authHandler.Callback))

	// Event management (host operations)
	mux.HandleFunc("POST /events", middleware.WithLogging(eventHandler.CreateEvent))
	mux.HandleFunc("PUT /events/{code}/credential", middleware.WithLogging(eventHandler.RefreshCredential))
	mux.HandleFunc("POST /events/{code}/tracks/{track}/retry", middleware.WithLogging(eventHandler.RetryCommit))

	// Event reads (public)
	mux.HandleFunc("GET /events/{code}", middleware.WithLogging(eventHandler.GetEvent))
	mux.HandleFunc("GET /events/{code}/stats", middleware.WithLogging(eventHandler.GetStats))
	mux.HandleFunc("GET /events/{code}/tracks", middleware.WithLogging(votingHandler.GetTracks))

	// Voter operations
	mux.HandleFunc("POST /events/{code}/join", limited(eventHandler.JoinEvent))
	mux.HandleFunc("POST /events/{code}/votes", limited(votingHandler.Vote))
	mux.HandleFunc("POST /events/{code}/search", limited(votingHandler.Search))

	// Root endpoint. {$} matches "/" only, so unknown methods on real routes
	// still get 405 instead of falling through to here.
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("crowdlist API v1"))
	})

	return mux
}
