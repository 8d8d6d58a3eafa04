// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the crowdlist API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(store, eng, sp, limiter, cfg)

# Endpoints

Health:

	GET /health

Host login:

	GET /auth/login    - Redirect to Spotify
	GET /auth/callback - Finish login, returns host token

Event management (host):

	POST /events                             - Create event (Bearer host token)
	PUT  /events/{code}/credential           - Re-attach host credential (X-Host-Key)
	POST /events/{code}/tracks/{track}/retry - Retry a failed playlist append (X-Host-Key)

Event reads (public):

	GET /events/{code}        - Event, votes and committed tracks
	GET /events/{code}/stats  - Tally snapshot
	GET /events/{code}/tracks - Voted tracks with metadata

Voting (X-Voter-Token, rate limited per client IP):

	POST /events/{code}/join   - Join and receive a voter token
	POST /events/{code}/votes  - Toggle a vote
	POST /events/{code}/search - Search the catalog

Every route except /health and / is wrapped in middleware.WithLogging.
*/
package router
