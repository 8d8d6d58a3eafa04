// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

	mux.HandleFunc("GET /events/{code}", middleware.WithLogging(handler))

Logs one line per request with method, path, status, client IP and
duration_ms. 5xx responses are logged at error level.

# Rate Limiting

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	mux.HandleFunc("POST /events/{code}/votes", middleware.WithLogging(limiter.Limit(h.Vote)))

Token bucket per client IP (golang.org/x/time/rate). Exhausted clients get
429 with Retry-After. Call Prune periodically to drop idle clients.

# CORS

	server := http.Server{Handler: middleware.CORS(mux)}

Allows headers Content-Type, Authorization, X-Voter-Token, X-Host-Key.

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")
	middleware.RetryableErrorResponse(w, http.StatusBadGateway, "message")

	var req models.VoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
*/
package middleware
