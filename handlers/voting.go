// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/danielhkuo/crowdlist/cliparse"
	"github.com/danielhkuo/crowdlist/credentials"
	"github.com/danielhkuo/crowdlist/engine"
	"github.com/danielhkuo/crowdlist/middleware"
	"github.com/danielhkuo/crowdlist/models"
	"github.com/danielhkuo/crowdlist/spotify"
	"github.com/danielhkuo/crowdlist/store"
)

type VotingHandler struct {
	store   store.Store
	engine  *engine.Engine
	spotify *spotify.Client
	creds   *credentials.Resolver
	cfg     cliparse.Config
}

func NewVotingHandler(s store.Store, eng *engine.Engine, sp *spotify.Client, cfg cliparse.Config) *VotingHandler {
	return &VotingHandler{
		store:   s,
		engine:  eng,
		spotify: sp,
		creds:   credentials.NewResolver(s, s),
		cfg:     cfg,
	}
}

// Vote handles POST /events/{code}/votes
func (h *VotingHandler) Vote(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	// Get voter token from header
	voter := r.Header.Get(headerVoterToken)
	if voter == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Voter-Token header is required")
		return
	}

	// Parse request
	var req models.VoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.TrackID = strings.TrimSpace(req.TrackID)

	// Toggle the vote; the engine commits if this one crossed the threshold
	outcome, err := h.engine.ToggleVote(r.Context(), code, req.TrackID, voter)
	if err != nil {
		if outcome.Status == models.OutcomeToggled {
			// Vote is recorded, only the playlist append failed
			writeCommitError(w, err, code, outcome)
			return
		}
		writeEngineError(w, err, code)
		return
	}

	// Rejections are still 200s; the status field says what happened
	resp := models.VoteResponse{
		Success:     outcome.Status == models.OutcomeToggled,
		VoteOutcome: outcome,
	}
	switch outcome.Status {
	case models.OutcomeVoteLimitReached:
		resp.Message = fmt.Sprintf("Vote limit reached (max %d votes)", models.MaxVotesPerVoter)
	case models.OutcomeAlreadyCommitted:
		resp.Message = "Track already added to playlist"
	}
	if outcome.ThresholdReached {
		resp.Message = "Threshold reached, track added to playlist"
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}

func (h *VotingHandler) requireMember(w http.ResponseWriter, r *http.Request, code string) (models.Event, string, bool) {
	// Find event by code
	ev, err := h.store.GetEvent(r.Context(), code)
	if err != nil {
		writeEngineError(w, err, code)
		return models.Event{}, "", false
	}

	// Get voter token from header
	voter := r.Header.Get(headerVoterToken)
	if voter == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Voter-Token header is required")
		return models.Event{}, "", false
	}
	// Verify voter joined this event
	member, err := h.store.IsMember(r.Context(), code, voter)
	if err != nil {
		writeEngineError(w, err, code)
		return models.Event{}, "", false
	}
	if !member {
		writeEngineError(w, engine.ErrNotMember, code)
		return models.Event{}, "", false
	}
	return ev, voter, true
}

// Search handles POST /events/{code}/search
func (h *VotingHandler) Search(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	// Parse request
	var req models.SearchRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "query is required")
		return
	}

	ev, voter, ok := h.requireMember(w, r, code)
	if !ok {
		return
	}

	// Search Spotify with the host's credential
	sess, finish, err := eventSession(r.Context(), h.spotify, h.creds, ev)
	if err != nil {
		writeProviderError(w, err, code)
		return
	}
	tracks, err := sess.Search(r.Context(), req.Query)
	finish()
	if err != nil {
		writeProviderError(w, err, code)
		return
	}

	// Decorate results with vote state for this voter
	tracks, err = decorateTracks(r.Context(), h.store, ev, voter, tracks)
	if err != nil {
		writeEngineError(w, err, code)
		return
	}
	used, err := h.store.Usage(r.Context(), code, voter)
	if err != nil {
		writeEngineError(w, err, code)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.TracksResponse{
		Tracks:        tracks,
		UserVotesUsed: used,
	})
}

// GetTracks handles GET /events/{code}/tracks.
// Returns every track with votes, most voted first.
func (h *VotingHandler) GetTracks(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	ev, err := h.store.GetEvent(r.Context(), code)
	if err != nil {
		writeEngineError(w, err, code)
		return
	}
	// Voter token is optional here; anonymous readers see zero usage
	voter := r.Header.Get(headerVoterToken)

	used := 0
	if voter != "" {
		if used, err = h.store.Usage(r.Context(), code, voter); err != nil {
			writeEngineError(w, err, code)
			return
		}
	}

	// Collect every track with at least one vote
	ids, err := h.store.TracksWithVotes(r.Context(), code)
	if err != nil {
		writeEngineError(w, err, code)
		return
	}
	if len(ids) == 0 {
		middleware.JSONResponse(w, http.StatusOK, models.TracksResponse{Tracks: []models.Track{}, UserVotesUsed: used})
		return
	}

	// Fetch metadata from Spotify
	sess, finish, err := eventSession(r.Context(), h.spotify, h.creds, ev)
	if err != nil {
		writeProviderError(w, err, code)
		return
	}
	tracks, err := sess.Tracks(r.Context(), ids)
	finish()
	if err != nil {
		writeProviderError(w, err, code)
		return
	}

	tracks, err = decorateTracks(r.Context(), h.store, ev, voter, tracks)
	if err != nil {
		writeEngineError(w, err, code)
		return
	}
	// Most voted first
	sortByVotes(tracks)

	middleware.JSONResponse(w, http.StatusOK, models.TracksResponse{
		Tracks:        tracks,
		UserVotesUsed: used,
	})
}
