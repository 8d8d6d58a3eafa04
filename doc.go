// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the crowdlist API server.

crowdlist is a collaborative playlist service. A host opens an event backed by
a Spotify playlist, guests join with the event code and vote on tracks, and a
track is appended to the playlist the moment its votes reach the event's
threshold. Each guest holds at most three votes at a time.

# Starting the Server

The server reads CLI flags, environment variables (a .env file is loaded if
present) and an optional YAML config file:

	HOST_KEY_SALT=... SESSION_SECRET=... DATABASE_URL=crowdlist.db go run .

Or with flags:

	go run . -p 3318 -t postgres -d "postgres://..."

# Configuration

Required settings:

  - HOST_KEY_SALT (--host-salt): Secret for host key HMAC
  - SESSION_SECRET (--session-secret): Signing key for host tokens
  - DATABASE_URL (-d): Required unless DATABASE_TYPE=memory

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite (default), postgres or memory
  - REDIS_URL (--redis): Share vote locks across server processes
  - SPOTIFY_CLIENT_ID, SPOTIFY_CLIENT_SECRET, SPOTIFY_REDIRECT_URI
  - DEFAULT_THRESHOLD, DISPATCH_TIMEOUT, RECONCILE_INTERVAL
  - RATE_LIMIT_RPS, RATE_LIMIT_BURST
  - LOG_LEVEL, LOG_FORMAT (text or json)
  - OTEL_EXPORTER_OTLP_ENDPOINT: Enables trace and metric export

# Architecture

  - engine: Vote toggling, threshold detection and exactly-once commit
  - store: Event registry and vote ledger (memory, SQLite, PostgreSQL)
  - credentials: Event and host credential resolution
  - spotify: Web API client and playlist dispatcher
  - lock: Per-key locks, in process or on Redis
  - handlers, router, middleware: HTTP surface
  - models: Request/response types
  - auth: Codes, host keys and host tokens
  - db: Schema creation
  - cliparse: Configuration parsing
  - telemetry: OpenTelemetry setup

See package documentation for each component.
*/
package main
