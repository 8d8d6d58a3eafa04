// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"errors"

	"github.com/danielhkuo/crowdlist/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrCodeTaken  = errors.New("event code already in use")
	ErrEmptyField = errors.New("required field is empty")
)

// Registry owns events, their membership and their commit sets.
type Registry interface {
	// CreateEvent inserts ev. Returns ErrCodeTaken if the code exists.
	CreateEvent(ctx context.Context, ev models.Event) error
	// GetEvent returns the event with CommittedTracks filled, or ErrNotFound.
	GetEvent(ctx context.Context, code string) (models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	// RefreshCredential replaces the event credential in place.
	RefreshCredential(ctx context.Context, code, credential string) error
	// RefreshCredentialIf replaces the event credential only while it still
	// equals old, and reports whether it did.
	RefreshCredentialIf(ctx context.Context, code, old, credential string) (bool, error)

	// MarkCommitted atomically adds track to the commit set and reports
	// whether this call inserted it. Exactly one concurrent caller sees true.
	MarkCommitted(ctx context.Context, code, trackID string) (bool, error)
	// UnmarkCommitted removes track from the commit set after a failed dispatch.
	UnmarkCommitted(ctx context.Context, code, trackID string) error
	IsCommitted(ctx context.Context, code, trackID string) (bool, error)

	AddMember(ctx context.Context, code, voterID string) error
	IsMember(ctx context.Context, code, voterID string) (bool, error)
}

// Ledger is the (event, track, voter) vote relation. AddVote and RemoveVote
// are idempotent. Set-valued results are sorted.
type Ledger interface {
	HasVote(ctx context.Context, code, trackID, voterID string) (bool, error)
	Tally(ctx context.Context, code, trackID string) (int, error)
	Usage(ctx context.Context, code, voterID string) (int, error)
	AddVote(ctx context.Context, code, trackID, voterID string) error
	RemoveVote(ctx context.Context, code, trackID, voterID string) error
	TracksWithVotes(ctx context.Context, code string) ([]string, error)
	VotersFor(ctx context.Context, code, trackID string) ([]string, error)
	// Tallies returns the tally of every track with at least one vote.
	Tallies(ctx context.Context, code string) (map[string]int, error)
	// TotalVoters counts distinct voters across all tracks of the event.
	TotalVoters(ctx context.Context, code string) (int, error)
}

// Hosts stores provider credentials obtained through the OAuth callback.
type Hosts interface {
	SaveHost(ctx context.Context, host models.Host) error
	GetHost(ctx context.Context, id string) (models.Host, error)
	// RefreshHostCredentialIf is the host counterpart of RefreshCredentialIf.
	RefreshHostCredentialIf(ctx context.Context, id, old, credential string) (bool, error)
}

type Store interface {
	Registry
	Ledger
	Hosts
	Close() error
}
