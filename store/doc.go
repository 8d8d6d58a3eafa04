// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package store persists events, votes, membership and host credentials.

Two implementations satisfy Store:

  - MemoryStore: maps behind an RWMutex, used for tests and DATABASE_TYPE=memory
  - SQLStore: sqlx over the schema in package db (SQLite or PostgreSQL)

The vote ledger is a set of (event, track, voter) triples; AddVote and
RemoveVote are idempotent. The commit set is claimed with MarkCommitted,
which reports true to exactly one caller per (event, track) and can be
released with UnmarkCommitted when a playlist append fails.
*/
package store
