// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/crowdlist/auth"
	"github.com/danielhkuo/crowdlist/cliparse"
	"github.com/danielhkuo/crowdlist/middleware"
	"github.com/danielhkuo/crowdlist/models"
	"github.com/danielhkuo/crowdlist/spotify"
	"github.com/danielhkuo/crowdlist/store"
)

const (
	stateCookie  = "crowdlist_oauth_state"
	HostTokenTTL = 24 * time.Hour
)

type AuthHandler struct {
	store   store.Store
	spotify *spotify.Client
	cfg     cliparse.Config
}

func NewAuthHandler(s store.Store, sp *spotify.Client, cfg cliparse.Config) *AuthHandler {
	return &AuthHandler{store: s, spotify: sp, cfg: cfg}
}

// Login handles GET /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateID(16)
	if err != nil {
		slog.Error("failed to generate oauth state", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.spotify.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /auth/callback
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Spotify authorization denied: "+e)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	code := q.Get("code")
	if code == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "code is required")
		return
	}

	cred, err := h.spotify.Exchange(r.Context(), code)
	if err != nil {
		slog.Warn("oauth exchange failed", "error", err)
		middleware.ErrorResponse(w, http.StatusBadGateway, "Failed to authenticate with Spotify")
		return
	}

	sess, err := h.spotify.Session(r.Context(), cred)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadGateway, "Failed to authenticate with Spotify")
		return
	}
	user, err := sess.CurrentUser(r.Context())
	if err != nil {
		slog.Warn("failed to fetch spotify profile", "error", err)
		middleware.ErrorResponse(w, http.StatusBadGateway, "Failed to load Spotify profile")
		return
	}
	if refreshed, ok := sess.Refreshed(); ok {
		cred = refreshed
	}

	err = h.store.SaveHost(r.Context(), models.Host{
		ID:            user.ID,
		DisplayName:   user.DisplayName,
		CredentialRef: cred,
	})
	if err != nil {
		slog.Error("failed to save host", "error", err, "host_id", user.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save login")
		return
	}

	token, err := auth.IssueHostToken(user.ID, h.cfg.SessionSecret, HostTokenTTL)
	if err != nil {
		slog.Error("failed to issue host token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save login")
		return
	}

	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth", MaxAge: -1})
	slog.Info("host logged in", "host_id", user.ID)

	middleware.JSONResponse(w, http.StatusOK, models.HostLoginResponse{
		HostToken:   token,
		DisplayName: user.DisplayName,
	})
}
