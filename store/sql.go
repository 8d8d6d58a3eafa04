// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/danielhkuo/crowdlist/models"
)

func init() {
	// modernc.org/sqlite registers as "sqlite", which sqlx does not know
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLStore implements Store over the schema created by db.CreateSchema.
// Queries are written with ? placeholders and rebound per driver.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an open connection. driverName selects placeholder style.
func NewSQLStore(conn *sql.DB, driverName string) *SQLStore {
	return &SQLStore{db: sqlx.NewDb(conn, driverName)}
}

func (s *SQLStore) Close() error { return s.db.Close() }

type eventRow struct {
	Code         string    `db:"code"`
	PlaylistName string    `db:"playlist_name"`
	PlaylistRef  string    `db:"playlist_ref"`
	Threshold    int       `db:"threshold"`
	Credential   string    `db:"credential"`
	HostID       string    `db:"host_id"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r eventRow) toModel() models.Event {
	return models.Event{
		Code:          r.Code,
		PlaylistName:  r.PlaylistName,
		PlaylistRef:   r.PlaylistRef,
		Threshold:     r.Threshold,
		CredentialRef: r.Credential,
		HostID:        r.HostID,
		CreatedAt:     r.CreatedAt,
	}
}

const selectEvent = `SELECT code, playlist_name, playlist_ref, threshold, credential, host_id, created_at FROM event`

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.db.Rebind(query), args...)
}

func (s *SQLStore) CreateEvent(ctx context.Context, ev models.Event) error {
	if ev.Code == "" {
		return ErrEmptyField
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	res, err := s.exec(ctx, `
		INSERT INTO event (code, playlist_name, playlist_ref, threshold, credential, host_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO NOTHING
	`, ev.Code, ev.PlaylistName, ev.PlaylistRef, ev.Threshold, ev.CredentialRef, ev.HostID, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	// Zero rows means the conflict clause fired
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrCodeTaken
	}
	return nil
}

func (s *SQLStore) GetEvent(ctx context.Context, code string) (models.Event, error) {
	var row eventRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectEvent+` WHERE code = ?`), code)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, ErrNotFound
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to query event: %w", err)
	}

	// Committed tracks live in their own table
	ev := row.toModel()
	ev.CommittedTracks, err = s.committedTracks(ctx, code)
	if err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

func (s *SQLStore) ListEvents(ctx context.Context) ([]models.Event, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, selectEvent+` ORDER BY code`); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	// One extra query per event; the reconciler is the only caller
	out := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		ev := r.toModel()
		committed, err := s.committedTracks(ctx, r.Code)
		if err != nil {
			return nil, err
		}
		ev.CommittedTracks = committed
		out = append(out, ev)
	}
	return out, nil
}

func (s *SQLStore) committedTracks(ctx context.Context, code string) ([]string, error) {
	tracks := []string{}
	err := s.db.SelectContext(ctx, &tracks, s.db.Rebind(`
		SELECT track_id FROM committed_track
		WHERE event_code = ?
		ORDER BY committed_at, track_id
	`), code)
	if err != nil {
		return nil, fmt.Errorf("failed to query committed tracks: %w", err)
	}
	return tracks, nil
}

func (s *SQLStore) RefreshCredential(ctx context.Context, code, credential string) error {
	res, err := s.exec(ctx, `UPDATE event SET credential = ? WHERE code = ?`, credential, code)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RefreshCredentialIf is a compare-and-set on the credential column. A miss
// is told apart from an unknown event with a second lookup.
func (s *SQLStore) RefreshCredentialIf(ctx context.Context, code, old, credential string) (bool, error) {
	res, err := s.exec(ctx, `UPDATE event SET credential = ? WHERE code = ? AND credential = ?`, credential, code, old)
	if err != nil {
		return false, fmt.Errorf("failed to update credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	// No row updated: either the event is gone or the credential moved on
	found, err := s.exists(ctx, `SELECT 1 FROM event WHERE code = ?`, code)
	if err != nil {
		return false, err
	}
	if !found {
		return false, ErrNotFound
	}
	return false, nil
}

// MarkCommitted relies on the committed_track primary key: only the insert
// that creates the row reports one affected row.
func (s *SQLStore) MarkCommitted(ctx context.Context, code, trackID string) (bool, error) {
	res, err := s.exec(ctx, `
		INSERT INTO committed_track (event_code, track_id, committed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (event_code, track_id) DO NOTHING
	`, code, trackID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to mark committed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStore) UnmarkCommitted(ctx context.Context, code, trackID string) error {
	_, err := s.exec(ctx, `DELETE FROM committed_track WHERE event_code = ? AND track_id = ?`, code, trackID)
	if err != nil {
		return fmt.Errorf("failed to unmark committed: %w", err)
	}
	return nil
}

func (s *SQLStore) IsCommitted(ctx context.Context, code, trackID string) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM committed_track WHERE event_code = ? AND track_id = ?`, code, trackID)
}

func (s *SQLStore) AddMember(ctx context.Context, code, voterID string) error {
	_, err := s.exec(ctx, `
		INSERT INTO event_member (event_code, voter_id, joined_at)
		VALUES (?, ?, ?)
		ON CONFLICT (event_code, voter_id) DO NOTHING
	`, code, voterID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (s *SQLStore) IsMember(ctx context.Context, code, voterID string) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM event_member WHERE event_code = ? AND voter_id = ?`, code, voterID)
}

func (s *SQLStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return true, nil
}

// Ledger

// Every ledger query is keyed on (event_code, track_id, voter_id); the
// primary key on that triple makes AddVote idempotent.

func (s *SQLStore) HasVote(ctx context.Context, code, trackID, voterID string) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM vote WHERE event_code = ? AND track_id = ? AND voter_id = ?`,
		code, trackID, voterID)
}

func (s *SQLStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Tally(ctx context.Context, code, trackID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM vote WHERE event_code = ? AND track_id = ?`, code, trackID)
}

func (s *SQLStore) Usage(ctx context.Context, code, voterID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM vote WHERE event_code = ? AND voter_id = ?`, code, voterID)
}

func (s *SQLStore) TotalVoters(ctx context.Context, code string) (int, error) {
	return s.count(ctx, `SELECT COUNT(DISTINCT voter_id) FROM vote WHERE event_code = ?`, code)
}

func (s *SQLStore) AddVote(ctx context.Context, code, trackID, voterID string) error {
	_, err := s.exec(ctx, `
		INSERT INTO vote (event_code, track_id, voter_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_code, track_id, voter_id) DO NOTHING
	`, code, trackID, voterID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add vote: %w", err)
	}
	return nil
}

func (s *SQLStore) RemoveVote(ctx context.Context, code, trackID, voterID string) error {
	_, err := s.exec(ctx, `DELETE FROM vote WHERE event_code = ? AND track_id = ? AND voter_id = ?`,
		code, trackID, voterID)
	if err != nil {
		return fmt.Errorf("failed to remove vote: %w", err)
	}
	return nil
}

func (s *SQLStore) TracksWithVotes(ctx context.Context, code string) ([]string, error) {
	tracks := []string{}
	err := s.db.SelectContext(ctx, &tracks, s.db.Rebind(`
		SELECT DISTINCT track_id FROM vote WHERE event_code = ? ORDER BY track_id
	`), code)
	if err != nil {
		return nil, fmt.Errorf("failed to query voted tracks: %w", err)
	}
	return tracks, nil
}

func (s *SQLStore) VotersFor(ctx context.Context, code, trackID string) ([]string, error) {
	voters := []string{}
	err := s.db.SelectContext(ctx, &voters, s.db.Rebind(`
		SELECT voter_id FROM vote WHERE event_code = ? AND track_id = ? ORDER BY voter_id
	`), code, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query voters: %w", err)
	}
	return voters, nil
}

func (s *SQLStore) Tallies(ctx context.Context, code string) (map[string]int, error) {
	var rows []struct {
		TrackID string `db:"track_id"`
		Votes   int    `db:"votes"`
	}
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT track_id, COUNT(*) AS votes FROM vote WHERE event_code = ? GROUP BY track_id
	`), code)
	if err != nil {
		return nil, fmt.Errorf("failed to query tallies: %w", err)
	}

	// Tracks without votes are absent, callers read them as zero
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.TrackID] = r.Votes
	}
	return out, nil
}

// Hosts

func (s *SQLStore) SaveHost(ctx context.Context, host models.Host) error {
	if host.ID == "" {
		return ErrEmptyField
	}
	if host.UpdatedAt.IsZero() {
		host.UpdatedAt = time.Now().UTC()
	}
	// Upsert: a repeat login replaces name and credential
	_, err := s.exec(ctx, `
		INSERT INTO host (id, display_name, credential, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			credential = excluded.credential,
			updated_at = excluded.updated_at
	`, host.ID, host.DisplayName, host.CredentialRef, host.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save host: %w", err)
	}
	return nil
}

func (s *SQLStore) GetHost(ctx context.Context, id string) (models.Host, error) {
	var row struct {
		ID          string    `db:"id"`
		DisplayName string    `db:"display_name"`
		Credential  string    `db:"credential"`
		UpdatedAt   time.Time `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, display_name, credential, updated_at FROM host WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Host{}, ErrNotFound
	}
	if err != nil {
		return models.Host{}, fmt.Errorf("failed to query host: %w", err)
	}
	return models.Host{
		ID:            row.ID,
		DisplayName:   row.DisplayName,
		CredentialRef: row.Credential,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}

// RefreshHostCredentialIf mirrors RefreshCredentialIf for the host table.
func (s *SQLStore) RefreshHostCredentialIf(ctx context.Context, id, old, credential string) (bool, error) {
	res, err := s.exec(ctx, `
		UPDATE host SET credential = ?, updated_at = ?
		WHERE id = ? AND credential = ?
	`, credential, time.Now().UTC(), id, old)
	if err != nil {
		return false, fmt.Errorf("failed to update host credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	// Distinguish unknown host from a lost race
	found, err := s.exists(ctx, `SELECT 1 FROM host WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, ErrNotFound
	}
	return false, nil
}
