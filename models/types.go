// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Voting limits
const (
	DefaultThreshold = 5
	MaxVotesPerVoter = 3
)

// Toggle outcome statuses
const (
	OutcomeToggled          = "toggled"
	OutcomeVoteLimitReached = "vote_limit_reached"
	OutcomeAlreadyCommitted = "already_committed"
)

// Toggle actions
const (
	ActionAdded   = "added"
	ActionRemoved = "removed"
)

// Domain types

type Event struct {
	Code          string    `json:"code"`
	PlaylistName  string    `json:"playlist_name"`
	PlaylistRef   string    `json:"playlist_id"`
	Threshold     int       `json:"threshold"`
	CredentialRef string    `json:"-"` // Never expose in JSON
	HostID        string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`

	// Filled on read; never written through CreateEvent
	CommittedTracks []string `json:"committed_tracks"`
}

// IsCommitted reports whether trackID is in the event's commit set
func (e Event) IsCommitted(trackID string) bool {
	for _, t := range e.CommittedTracks {
		if t == trackID {
			return true
		}
	}
	return false
}

// Host is an account holder whose provider credential backs events
type Host struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"display_name"`
	CredentialRef string    `json:"-"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// VoteOutcome is the structured result of a vote toggle.
// Rejected actions (limit reached, already committed) are outcomes, not errors.
type VoteOutcome struct {
	Status           string `json:"status"`
	Action           string `json:"action,omitempty"`
	Tally            int    `json:"vote_count"`
	Usage            int    `json:"user_votes_used"`
	ThresholdReached bool   `json:"threshold_reached"`
	IsCommitted      bool   `json:"is_added"`
}

type TrackTally struct {
	TrackID string `json:"song_id"`
	Tally   int    `json:"votes"`
}

type TallySnapshot struct {
	Tracks      []TrackTally `json:"songs"`
	TotalVoters int          `json:"total_voters"`
	Usage       int          `json:"user_votes_used"`
	Threshold   int          `json:"threshold"`
}

// Track is playlist-provider metadata decorated with event vote state
type Track struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	Image      string `json:"image"`
	SpotifyURI string `json:"spotify_uri"`
	Votes      int    `json:"votes"`
	HasVoted   bool   `json:"has_voted"`
	IsAdded    bool   `json:"is_added"`
}

// Request types

type CreateEventRequest struct {
	PlaylistName string `json:"playlist_name"`
	Threshold    *int   `json:"threshold,omitempty"`
}

type VoteRequest struct {
	TrackID string `json:"track_id"`
}

type SearchRequest struct {
	Query string `json:"query"`
}

type RefreshCredentialRequest struct {
	HostToken string `json:"host_token"`
}

// Response types

type CreateEventResponse struct {
	EventCode    string `json:"event_code"`
	HostKey      string `json:"host_key"`
	JoinURL      string `json:"join_url"`
	PlaylistName string `json:"playlist_name"`
	Threshold    int    `json:"threshold"`
}

type EventResponse struct {
	Event         Event          `json:"event"`
	Votes         map[string]int `json:"votes"`
	TotalVoters   int            `json:"total_voters"`
	UserVotesUsed int            `json:"user_votes_used"`
}

type JoinEventResponse struct {
	VoterToken string `json:"voter_token"`
	EventCode  string `json:"event_code"`
}

type VoteResponse struct {
	Success bool `json:"success"`
	VoteOutcome
	Message string `json:"message,omitempty"`
}

type TracksResponse struct {
	Tracks        []Track `json:"tracks"`
	UserVotesUsed int     `json:"user_votes_used"`
}

type HostLoginResponse struct {
	HostToken   string `json:"host_token"`
	DisplayName string `json:"display_name"`
}

type RetryCommitResponse struct {
	TrackID   string `json:"track_id"`
	Committed bool   `json:"committed"`
}

// Error response

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	// Outcome is set when a vote was recorded but the commit that followed failed
	Outcome *VoteOutcome `json:"outcome,omitempty"`
}
