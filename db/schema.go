// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/danielhkuo/crowdlist/cliparse"
)

// DriverName maps a configured database type to its database/sql driver
func DriverName(databaseType string) (string, error) {
	switch databaseType {
	case cliparse.DatabaseSQLite:
		return "sqlite", nil
	case cliparse.DatabasePostgres:
		return "postgres", nil
	}
	return "", fmt.Errorf("no SQL driver for database type %q", databaseType)
}

// Open connects to the configured database and verifies the connection
func Open(databaseType, databaseURL string) (*sql.DB, error) {
	driver, err := DriverName(databaseType)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		// SQLite allows one writer; a single connection queues writers
		// instead of surfacing SQLITE_BUSY under concurrent votes.
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to configure sqlite: %w", err)
		}
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return conn, nil
}

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Valid for both SQLite and PostgreSQL.
const schema = `
-- Hosts (provider credentials obtained through OAuth)
CREATE TABLE IF NOT EXISTS host (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    credential TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Events
CREATE TABLE IF NOT EXISTS event (
    code TEXT PRIMARY KEY,
    playlist_name TEXT NOT NULL,
    playlist_ref TEXT NOT NULL,
    threshold INTEGER NOT NULL CHECK (threshold > 0),
    credential TEXT NOT NULL DEFAULT '',
    host_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Event membership (one voter identity per join)
CREATE TABLE IF NOT EXISTS event_member (
    event_code TEXT NOT NULL REFERENCES event(code) ON DELETE CASCADE,
    voter_id TEXT NOT NULL,
    joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (event_code, voter_id)
);

-- Votes: presence of a row means the voter currently backs the track
CREATE TABLE IF NOT EXISTS vote (
    event_code TEXT NOT NULL REFERENCES event(code) ON DELETE CASCADE,
    track_id TEXT NOT NULL,
    voter_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (event_code, track_id, voter_id)
);

CREATE INDEX IF NOT EXISTS idx_vote_voter ON vote(event_code, voter_id);

-- Tracks appended to the event playlist
CREATE TABLE IF NOT EXISTS committed_track (
    event_code TEXT NOT NULL REFERENCES event(code) ON DELETE CASCADE,
    track_id TEXT NOT NULL,
    committed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (event_code, track_id)
);
`
