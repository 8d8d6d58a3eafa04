// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/danielhkuo/crowdlist/auth"
	"github.com/danielhkuo/crowdlist/cliparse"
	"github.com/danielhkuo/crowdlist/models"
	"github.com/danielhkuo/crowdlist/spotify"
	"github.com/danielhkuo/crowdlist/store"
)

// TestHostID is the Spotify user the fake API authenticates as
const TestHostID = "dj-host"

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:             3318,
		BaseURL:          "http://localhost:3318",
		DatabaseType:     cliparse.DatabaseMemory,
		HostKeySalt:      "test-host-salt",
		SessionSecret:    "test-session-secret",
		DefaultThreshold: models.DefaultThreshold,
		DispatchTimeout:  time.Second,
		RateLimitRPS:     1000,
		RateLimitBurst:   1000,
	}
}

// FakeSpotify is an in-process stand-in for the Spotify Web API and token endpoint
type FakeSpotify struct {
	Server *httptest.Server

	Failing     atomic.Bool
	AppendCalls atomic.Int32

	mu        sync.Mutex
	appended  map[string][]string // playlist -> track IDs
	playlists map[string]string   // name -> ID
}

func NewFakeSpotify(t *testing.T) *FakeSpotify {
	t.Helper()
	f := &FakeSpotify{
		appended:  make(map[string][]string),
		playlists: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"access-exchanged","token_type":"Bearer","refresh_token":"refresh","expires_in":3600}`)
	})
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":%q,"display_name":"Test DJ"}`, TestHostID)
	})
	mux.HandleFunc("GET /v1/me/playlists", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		items := make([]map[string]string, 0, len(f.playlists))
		for name, id := range f.playlists {
			items = append(items, map[string]string{"id": id, "name": name})
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items, "next": nil})
	})
	mux.HandleFunc("POST /v1/users/{user}/playlists", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		id := fmt.Sprintf("pl-%d", len(f.playlists)+1)
		f.playlists[body.Name] = id
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":%q}`, id)
	})
	mux.HandleFunc("POST /v1/playlists/{id}/tracks", func(w http.ResponseWriter, r *http.Request) {
		f.AppendCalls.Add(1)
		if f.Failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"status":503,"message":"Service unavailable"}}`)
			return
		}
		var body struct {
			URIs []string `json:"uris"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		for _, uri := range body.URIs {
			f.appended[r.PathValue("id")] = append(f.appended[r.PathValue("id")], strings.TrimPrefix(uri, "spotify:track:"))
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"snapshot_id":"snap"}`)
	})
	mux.HandleFunc("GET /v1/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		items := []string{trackJSON("s1", q+" one"), trackJSON("s2", q+" two")}
		fmt.Fprintf(w, `{"tracks":{"items":[%s]}}`, strings.Join(items, ","))
	})
	mux.HandleFunc("GET /v1/tracks", func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		items := make([]string, 0, len(ids))
		for _, id := range ids {
			items = append(items, trackJSON(id, "Track "+id))
		}
		fmt.Fprintf(w, `{"tracks":[%s]}`, strings.Join(items, ","))
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func trackJSON(id, name string) string {
	return fmt.Sprintf(`{"id":%q,"name":%q,"uri":"spotify:track:%s","artists":[{"name":"Artist"}],"album":{"images":[{"url":"http://img/%s"}]}}`,
		id, name, id, id)
}

// Client returns a spotify.Client pointed at the fake
func (f *FakeSpotify) Client() *spotify.Client {
	return spotify.NewClient(spotify.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURI:  "http://localhost:3318/auth/callback",
		APIURL:       f.Server.URL,
		AuthURL:      f.Server.URL + "/authorize",
		TokenURL:     f.Server.URL + "/api/token",
		HTTPClient:   f.Server.Client(),
	})
}

// Appended returns the tracks appended to a playlist so far
func (f *FakeSpotify) Appended(playlistID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.appended[playlistID]...)
}

// TestCredential returns a non-expiring encoded credential
func TestCredential(t *testing.T) string {
	t.Helper()
	cred, err := spotify.EncodeCredential(&oauth2.Token{AccessToken: "access-test", TokenType: "Bearer"})
	if err != nil {
		t.Fatalf("Failed to encode credential: %v", err)
	}
	return cred
}

// CreateTestHost stores the fake Spotify user as a host and returns a host token
func CreateTestHost(t *testing.T, s store.Store, cfg cliparse.Config) string {
	t.Helper()
	err := s.SaveHost(context.Background(), models.Host{
		ID:            TestHostID,
		DisplayName:   "Test DJ",
		CredentialRef: TestCredential(t),
	})
	if err != nil {
		t.Fatalf("Failed to save host: %v", err)
	}
	token, err := auth.IssueHostToken(TestHostID, cfg.SessionSecret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue host token: %v", err)
	}
	return token
}

// CreateTestEvent creates an event and returns its code and host key
func CreateTestEvent(t *testing.T, s store.Store, cfg cliparse.Config, threshold int) (code, hostKey string) {
	t.Helper()

	code, err := auth.GenerateEventCode()
	if err != nil {
		t.Fatalf("Failed to generate event code: %v", err)
	}
	err = s.CreateEvent(context.Background(), models.Event{
		Code:          code,
		PlaylistName:  "Test Party",
		PlaylistRef:   "pl-test",
		Threshold:     threshold,
		CredentialRef: TestCredential(t),
		HostID:        TestHostID,
	})
	if err != nil {
		t.Fatalf("Failed to create test event: %v", err)
	}
	return code, auth.GenerateHostKey(code, cfg.HostKeySalt)
}

// CreateTestVoter joins a voter to an event and returns the voter token
func CreateTestVoter(t *testing.T, s store.Store, code string) string {
	t.Helper()
	voter, err := auth.GenerateVoterID()
	if err != nil {
		t.Fatalf("Failed to generate voter ID: %v", err)
	}
	if err := s.AddMember(context.Background(), code, voter); err != nil {
		t.Fatalf("Failed to add member: %v", err)
	}
	return voter
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body any, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
