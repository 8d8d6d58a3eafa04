// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the configured SQL database and creates the schema.

	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

SQLite (modernc.org/sqlite, pure Go) and PostgreSQL (lib/pq) share one schema.
CreateSchema is safe to call multiple times.

# Tables

  - host: provider credentials keyed by host ID
  - event: code, playlist, threshold, event credential
  - event_member: (event_code, voter_id) joins
  - vote: (event_code, track_id, voter_id) primary key; one row per backing
  - committed_track: (event_code, track_id) primary key; the commit set

	event 1──* event_member
	event 1──* vote
	event 1──* committed_track
*/
package db
