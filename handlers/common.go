// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/danielhkuo/crowdlist/credentials"
	"github.com/danielhkuo/crowdlist/engine"
	"github.com/danielhkuo/crowdlist/middleware"
	"github.com/danielhkuo/crowdlist/models"
	"github.com/danielhkuo/crowdlist/spotify"
	"github.com/danielhkuo/crowdlist/store"
)

const (
	headerVoterToken = "X-Voter-Token"
	headerHostKey    = "X-Host-Key"
)

// writeEngineError maps engine and store errors to HTTP responses
func writeEngineError(w http.ResponseWriter, err error, eventCode string) {
	var dispatchErr *engine.DispatchError
	switch {
	case errors.Is(err, store.ErrNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Event not found")
	case errors.Is(err, engine.ErrValidation):
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrNotMember):
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Join the event before voting")
	case errors.Is(err, engine.ErrCredentialMissing):
		middleware.RetryableErrorResponse(w, http.StatusConflict, "Host must reconnect Spotify")
	case errors.As(err, &dispatchErr):
		middleware.RetryableErrorResponse(w, http.StatusBadGateway, "Failed to add track to playlist")
	default:
		slog.Error("request failed", "event_code", eventCode, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Internal error")
	}
}

// writeCommitError reports a failed commit along with the vote that was
// recorded before it. Errors that are not commit failures go to writeEngineError.
func writeCommitError(w http.ResponseWriter, err error, eventCode string, outcome models.VoteOutcome) {
	var dispatchErr *engine.DispatchError
	var status int
	var message string
	switch {
	case errors.As(err, &dispatchErr):
		status, message = http.StatusBadGateway, "Failed to add track to playlist"
	case errors.Is(err, engine.ErrCredentialMissing):
		status, message = http.StatusConflict, "Host must reconnect Spotify"
	default:
		writeEngineError(w, err, eventCode)
		return
	}
	middleware.JSONResponse(w, status, models.ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Retryable: true,
		Outcome:   &outcome,
	})
}

// writeProviderError reports a failed Spotify call
func writeProviderError(w http.ResponseWriter, err error, eventCode string) {
	if errors.Is(err, credentials.ErrMissing) || errors.Is(err, spotify.ErrInvalidCredential) {
		middleware.RetryableErrorResponse(w, http.StatusConflict, "Host must reconnect Spotify")
		return
	}
	slog.Warn("spotify request failed", "event_code", eventCode, "error", err)
	middleware.RetryableErrorResponse(w, http.StatusBadGateway, "Spotify request failed")
}

// eventSession opens a Spotify session with the event's resolved credential.
// Call the returned finish func after the last API call to persist refreshes.
func eventSession(ctx context.Context, sp *spotify.Client, creds *credentials.Resolver, ev models.Event) (*spotify.Session, func(), error) {
	resolved, err := creds.Resolve(ctx, ev)
	if err != nil {
		return nil, nil, err
	}
	sess, err := sp.Session(ctx, resolved.Credential)
	if err != nil {
		return nil, nil, err
	}
	finish := func() {
		if cred, ok := sess.Refreshed(); ok {
			if _, err := creds.Persist(context.WithoutCancel(ctx), ev, resolved, cred); err != nil {
				slog.Warn("failed to persist refreshed credential", "event_code", ev.Code, "error", err)
			}
		}
	}
	return sess, finish, nil
}

// decorateTracks fills vote state for the requester on provider metadata
func decorateTracks(ctx context.Context, s store.Store, ev models.Event, voterID string, tracks []models.Track) ([]models.Track, error) {
	tallies, err := s.Tallies(ctx, ev.Code)
	if err != nil {
		return nil, err
	}
	for i := range tracks {
		tracks[i].Votes = tallies[tracks[i].ID]
		tracks[i].IsAdded = ev.IsCommitted(tracks[i].ID)
		if voterID != "" && tracks[i].Votes > 0 {
			if tracks[i].HasVoted, err = s.HasVote(ctx, ev.Code, tracks[i].ID, voterID); err != nil {
				return nil, err
			}
		}
	}
	return tracks, nil
}

func sortByVotes(tracks []models.Track) {
	sort.SliceStable(tracks, func(i, j int) bool {
		return tracks[i].Votes > tracks[j].Votes
	})
}
