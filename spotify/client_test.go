// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost/auth/callback",
		APIURL:       srv.URL,
		AuthURL:      srv.URL + "/authorize",
		TokenURL:     srv.URL + "/api/token",
		HTTPClient:   srv.Client(),
	})
}

func credential(t *testing.T, tok *oauth2.Token) string {
	t.Helper()
	cred, err := EncodeCredential(tok)
	require.NoError(t, err)
	return cred
}

func TestAppendTrack(t *testing.T) {
	var gotBody map[string][]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/playlists/pl1/tracks", r.URL.Path)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"snapshot_id":"abc"}`)
	}))

	d := NewDispatcher(client)
	refreshed, err := d.Append(context.Background(), credential(t, &oauth2.Token{AccessToken: "access-1"}), "pl1", "t42")
	require.NoError(t, err)
	assert.Empty(t, refreshed)
	assert.Equal(t, []string{"spotify:track:t42"}, gotBody["uris"])
}

func TestAppendTrackAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"status":403,"message":"Insufficient client scope"}}`)
	}))

	_, err := NewDispatcher(client).Append(context.Background(), credential(t, &oauth2.Token{AccessToken: "a"}), "pl1", "t1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Insufficient client scope", apiErr.Message)
}

func TestAppendTrackRefreshesExpiredToken(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh","token_type":"Bearer","refresh_token":"r2","expires_in":3600}`)
	})
	mux.HandleFunc("POST /v1/playlists/{id}/tracks", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
	})
	client := newTestClient(t, mux)

	expired := &oauth2.Token{
		AccessToken:  "stale",
		TokenType:    "Bearer",
		RefreshToken: "r1",
		Expiry:       time.Now().Add(-time.Hour),
	}
	refreshed, err := NewDispatcher(client).Append(context.Background(), credential(t, expired), "pl1", "t1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokenCalls.Load())

	tok, err := DecodeCredential(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
}

func TestSearch(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "daft punk", r.URL.Query().Get("q"))
		assert.Equal(t, "track", r.URL.Query().Get("type"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"tracks":{"items":[
			{"id":"t1","name":"One More Time","uri":"spotify:track:t1",
			 "artists":[{"name":"Daft Punk"},{"name":"Romanthony"}],
			 "album":{"images":[{"url":"http://img/1"}]}},
			{"id":"t2","name":"Aerodynamic","uri":"spotify:track:t2","artists":[],"album":{"images":[]}}
		]}}`)
	}))

	sess, err := client.Session(context.Background(), credential(t, &oauth2.Token{AccessToken: "a"}))
	require.NoError(t, err)
	tracks, err := sess.Search(context.Background(), "daft punk")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "Daft Punk, Romanthony", tracks[0].Artist)
	assert.Equal(t, "http://img/1", tracks[0].Image)
	assert.Equal(t, "", tracks[1].Image)
}

func TestTracksBatches(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		assert.LessOrEqual(t, len(ids), 50)
		items := make([]string, 0, len(ids))
		for _, id := range ids {
			if id == "gone" {
				items = append(items, "null")
				continue
			}
			items = append(items, fmt.Sprintf(`{"id":%q,"name":"n","uri":"spotify:track:%s"}`, id, id))
		}
		fmt.Fprintf(w, `{"tracks":[%s]}`, strings.Join(items, ","))
	}))

	ids := make([]string, 0, 120)
	for i := 0; i < 119; i++ {
		ids = append(ids, fmt.Sprintf("t%d", i))
	}
	ids = append(ids, "gone")

	sess, err := client.Session(context.Background(), credential(t, &oauth2.Token{AccessToken: "a"}))
	require.NoError(t, err)
	tracks, err := sess.Tracks(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, tracks, 119)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFindOrCreatePlaylist(t *testing.T) {
	tests := []struct {
		name        string
		existing    string
		wantID      string
		wantCreated bool
	}{
		{name: "existing playlist", existing: `[{"id":"pl-old","name":"Party"}]`, wantID: "pl-old"},
		{name: "creates private playlist", existing: `[{"id":"pl-x","name":"Other"}]`, wantID: "pl-new", wantCreated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var created bool
			mux := http.NewServeMux()
			mux.HandleFunc("GET /v1/me/playlists", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `{"items":%s,"next":null}`, tt.existing)
			})
			mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"id":"dj","display_name":"DJ"}`)
			})
			mux.HandleFunc("POST /v1/users/dj/playlists", func(w http.ResponseWriter, r *http.Request) {
				created = true
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "Party", body["name"])
				assert.Equal(t, false, body["public"])
				assert.Equal(t, PlaylistDescription, body["description"])
				w.WriteHeader(http.StatusCreated)
				fmt.Fprint(w, `{"id":"pl-new"}`)
			})
			client := newTestClient(t, mux)

			sess, err := client.Session(context.Background(), credential(t, &oauth2.Token{AccessToken: "a"}))
			require.NoError(t, err)
			id, err := sess.FindOrCreatePlaylist(context.Background(), "Party")
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantCreated, created)
		})
	}
}

func TestExchangeAndAuthCodeURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"acc","token_type":"Bearer","refresh_token":"ref","expires_in":3600}`)
	})
	client := newTestClient(t, mux)

	authURL := client.AuthCodeURL("state-1")
	assert.Contains(t, authURL, "state=state-1")
	assert.Contains(t, authURL, "client_id=id")

	cred, err := client.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	tok, err := DecodeCredential(cred)
	require.NoError(t, err)
	assert.Equal(t, "acc", tok.AccessToken)
	assert.Equal(t, "ref", tok.RefreshToken)
}

func TestDecodeCredentialInvalid(t *testing.T) {
	for _, in := range []string{"", "not json", `{}`} {
		_, err := DecodeCredential(in)
		assert.ErrorIs(t, err, ErrInvalidCredential, "input %q", in)
	}
}
