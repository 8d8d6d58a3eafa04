// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the crowdlist API.

# Handler Types

Each handler is a struct holding the store, the vote engine, the Spotify
client and the config:

  - AuthHandler: Spotify login for hosts
  - EventHandler: Event lifecycle, joining, stats and host repair operations
  - VotingHandler: Votes, search and the voted-tracks list

Handlers are created via constructor functions:

	eventHandler := handlers.NewEventHandler(store, eng, sp, cfg)

# Host Flow

	GET  /auth/login    → Login (redirects to Spotify)
	GET  /auth/callback → Callback (returns host_token)
	POST /events        → CreateEvent (Authorization: Bearer host_token)

CreateEvent returns the event code, the join URL and a host key. Host repair
operations require the X-Host-Key header:

	PUT  /events/{code}/credential          → RefreshCredential
	POST /events/{code}/tracks/{track}/retry → RetryCommit

# Voting Flow

	POST /events/{code}/join   → JoinEvent (returns voter_token)
	POST /events/{code}/votes  → Vote (toggle)
	POST /events/{code}/search → Search
	GET  /events/{code}/tracks → GetTracks

Voter operations take the X-Voter-Token header. A vote that hits the
per-voter limit, or targets a track already on the playlist, answers 200
with success=false. A failed playlist append answers 502 with retryable=true;
the vote itself is kept.
*/
package handlers
