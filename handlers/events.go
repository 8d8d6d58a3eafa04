// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielhkuo/crowdlist/auth"
	"github.com/danielhkuo/crowdlist/cliparse"
	"github.com/danielhkuo/crowdlist/credentials"
	"github.com/danielhkuo/crowdlist/engine"
	"github.com/danielhkuo/crowdlist/middleware"
	"github.com/danielhkuo/crowdlist/models"
	"github.com/danielhkuo/crowdlist/spotify"
	"github.com/danielhkuo/crowdlist/store"
)

type EventHandler struct {
	store   store.Store
	engine  *engine.Engine
	spotify *spotify.Client
	creds   *credentials.Resolver
	cfg     cliparse.Config
}

func NewEventHandler(s store.Store, eng *engine.Engine, sp *spotify.Client, cfg cliparse.Config) *EventHandler {
	return &EventHandler{
		store:   s,
		engine:  eng,
		spotify: sp,
		creds:   credentials.NewResolver(s, s),
		cfg:     cfg,
	}
}

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	hostID, err := auth.ParseHostToken(auth.BearerToken(r.Header.Get("Authorization")), h.cfg.SessionSecret)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Host login required")
		return
	}

	var req models.CreateEventRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.PlaylistName = strings.TrimSpace(req.PlaylistName)
	if req.PlaylistName == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "playlist_name is required")
		return
	}

	threshold := h.cfg.DefaultThreshold
	if threshold <= 0 {
		threshold = models.DefaultThreshold
	}
	if req.Threshold != nil && *req.Threshold > 0 {
		threshold = *req.Threshold
	}

	host, err := h.store.GetHost(r.Context(), hostID)
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Host login required")
		return
	}
	if err != nil {
		slog.Error("failed to load host", "error", err, "host_id", hostID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	sess, err := h.spotify.Session(r.Context(), host.CredentialRef)
	if err != nil {
		writeProviderError(w, err, "")
		return
	}
	playlistID, err := sess.FindOrCreatePlaylist(r.Context(), req.PlaylistName)
	if err != nil {
		writeProviderError(w, err, "")
		return
	}
	credential := host.CredentialRef
	if refreshed, ok := sess.Refreshed(); ok {
		credential = refreshed
		// Leave a concurrent re-login in place
		if _, err := h.store.RefreshHostCredentialIf(r.Context(), hostID, host.CredentialRef, refreshed); err != nil {
			slog.Warn("failed to persist refreshed host credential", "host_id", hostID, "error", err)
		}
	}

	ev, err := h.engine.CreateEvent(r.Context(), models.Event{
		PlaylistName:  req.PlaylistName,
		PlaylistRef:   playlistID,
		Threshold:     threshold,
		CredentialRef: credential,
		HostID:        hostID,
	})
	if err != nil {
		if errors.Is(err, engine.ErrValidation) || errors.Is(err, engine.ErrCredentialMissing) {
			writeEngineError(w, err, "")
			return
		}
		slog.Error("failed to create event", "error", err, "host_id", hostID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create event")
		return
	}
	code := ev.Code

	slog.Info("event created", "event_code", code, "playlist_id", playlistID, "threshold", threshold)

	middleware.JSONResponse(w, http.StatusCreated, models.CreateEventResponse{
		EventCode:    code,
		HostKey:      auth.GenerateHostKey(code, h.cfg.HostKeySalt),
		JoinURL:      strings.TrimRight(h.cfg.BaseURL, "/") + "/join/" + code,
		PlaylistName: req.PlaylistName,
		Threshold:    ev.Threshold,
	})
}

// GetEvent handles GET /events/{code}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	ev, err := h.store.GetEvent(r.Context(), code)
	if err != nil {
		writeEngineError(w, err, code)
		return
	}

	votes, err := h.store.Tallies(r.Context(), code)
	if err != nil {
		writeEngineError(w, err, code)
		return
	}
	total, err := h.store.TotalVoters(r.Context(), code)
	if err != nil {
		writeEngineError(w, err, code)
		return
	}
	used := 0
	if voter := r.Header.Get(headerVoterToken); voter != "" {
		if used, err = h.store.Usage(r.Context(), code, voter); err != nil {
			writeEngineError(w, err, code)
			return
		}
	}

	middleware.JSONResponse(w, http.StatusOK, models.EventResponse{
		Event:         ev,
		Votes:         votes,
		TotalVoters:   total,
		UserVotesUsed: used,
	})
}

// GetStats handles GET /events/{code}/stats
func (h *EventHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	snap, err := h.engine.Snapshot(r.Context(), code, r.Header.Get(headerVoterToken))
	if err != nil {
		writeEngineError(w, err, code)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, snap)
}

// JoinEvent handles POST /events/{code}/join
func (h *EventHandler) JoinEvent(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if _, err := h.store.GetEvent(r.Context(), code); err != nil {
		writeEngineError(w, err, code)
		return
	}

	voterID, err := auth.GenerateVoterID()
	if err != nil {
		slog.Error("failed to generate voter id", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to join event")
		return
	}
	if err := h.store.AddMember(r.Context(), code, voterID); err != nil {
		writeEngineError(w, err, code)
		return
	}

	slog.Info("voter joined", "event_code", code)
	middleware.JSONResponse(w, http.StatusCreated, models.JoinEventResponse{
		VoterToken: voterID,
		EventCode:  code,
	})
}

// checkHostKey validates X-Host-Key for the event in the path
func (h *EventHandler) checkHostKey(w http.ResponseWriter, r *http.Request, code string) bool {
	hostKey := r.Header.Get(headerHostKey)
	if hostKey == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Host-Key header is required")
		return false
	}
	if err := auth.ValidateHostKey(code, hostKey, h.cfg.HostKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid host key")
		return false
	}
	return true
}

// RefreshCredential handles PUT /events/{code}/credential.
// Copies the host's current Spotify credential onto the event after re-login.
func (h *EventHandler) RefreshCredential(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !h.checkHostKey(w, r, code) {
		return
	}

	var req models.RefreshCredentialRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	hostID, err := auth.ParseHostToken(req.HostToken, h.cfg.SessionSecret)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Host login required")
		return
	}

	ev, err := h.store.GetEvent(r.Context(), code)
	if err != nil {
		writeEngineError(w, err, code)
		return
	}
	if ev.HostID != "" && ev.HostID != hostID {
		middleware.ErrorResponse(w, http.StatusForbidden, "Event belongs to another host")
		return
	}

	host, err := h.store.GetHost(r.Context(), hostID)
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Host login required")
		return
	}
	if err != nil {
		writeEngineError(w, err, code)
		return
	}

	if err := h.store.RefreshCredential(r.Context(), code, host.CredentialRef); err != nil {
		writeEngineError(w, err, code)
		return
	}

	slog.Info("event credential refreshed", "event_code", code)
	w.WriteHeader(http.StatusNoContent)
}

// RetryCommit handles POST /events/{code}/tracks/{track}/retry
func (h *EventHandler) RetryCommit(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	trackID := r.PathValue("track")
	if !h.checkHostKey(w, r, code) {
		return
	}

	committed, err := h.engine.Recheck(r.Context(), code, trackID)
	if err != nil {
		writeEngineError(w, err, code)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.RetryCommitResponse{
		TrackID:   trackID,
		Committed: committed,
	})
}
