// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Sources

Each setting is resolved in order, first hit wins:

 1. CLI flag
 2. Environment variable
 3. YAML config file (-c or CONFIG_FILE)
 4. Default

# CLI Flags

	-c                 YAML config file
	-p                 Server port (default 3318)
	-d                 Database URL
	-t                 Database type: sqlite (default), postgres, memory
	-redis             Redis URL for cross-process vote locks
	-base-url          Public base URL for join links
	-host-salt         Host key salt
	-session-secret    Host session signing secret
	-threshold         Default vote threshold (default 5)
	-dispatch-timeout  Playlist append timeout (default 10s)
	-reconcile         Reconciliation interval (default 30s, 0 disables)

# Environment Variables

	PORT, DATABASE_URL, DATABASE_TYPE, REDIS_URL, BASE_URL,
	HOST_KEY_SALT, SESSION_SECRET,
	SPOTIFY_CLIENT_ID, SPOTIFY_CLIENT_SECRET, SPOTIFY_REDIRECT_URI,
	DEFAULT_THRESHOLD, DISPATCH_TIMEOUT, RECONCILE_INTERVAL,
	RATE_LIMIT_RPS, RATE_LIMIT_BURST,
	LOG_LEVEL, LOG_FORMAT, OTEL_EXPORTER_OTLP_ENDPOINT

# Validation

ParseFlags returns an error if:

  - DATABASE_URL is missing for sqlite or postgres
  - HOST_KEY_SALT or SESSION_SECRET is missing
  - a numeric or duration value does not parse
*/
package cliparse
