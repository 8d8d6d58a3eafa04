// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielhkuo/crowdlist/credentials"
	"github.com/danielhkuo/crowdlist/engine"
	"github.com/danielhkuo/crowdlist/middleware"
	"github.com/danielhkuo/crowdlist/spotify"
	"github.com/danielhkuo/crowdlist/store"
	"github.com/danielhkuo/crowdlist/testutil"
)

func newTestRouter(t *testing.T, limiter *middleware.RateLimiter) (*http.ServeMux, *store.MemoryStore) {
	t.Helper()
	cfg := testutil.GetTestConfig()
	s := store.NewMemoryStore()
	sp := testutil.NewFakeSpotify(t).Client()
	eng := engine.New(s, spotify.NewDispatcher(sp), credentials.NewResolver(s, s), nil, engine.Config{
		DispatchTimeout: cfg.DispatchTimeout,
	})
	return NewRouter(s, eng, sp, limiter, cfg), s
}

func TestHealthEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	if w.Body.String() != "OK" {
		t.Errorf("Expected body 'OK', got '%s'", w.Body.String())
	}
}

func TestRootEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t, nil)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	expected := "crowdlist API v1"
	if w.Body.String() != expected {
		t.Errorf("Expected body '%s', got '%s'", expected, w.Body.String())
	}

	t.Run("unknown path", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})
}

func TestRouteExistence(t *testing.T) {
	mux, _ := newTestRouter(t, nil)

	// 400, 401, 404 are all valid handler responses here; 405 means no route
	testCases := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/"},

		{"GET", "/auth/login"},
		{"GET", "/auth/callback"},

		{"POST", "/events"},
		{"GET", "/events/ABCD2345"},
		{"GET", "/events/ABCD2345/stats"},
		{"GET", "/events/ABCD2345/tracks"},
		{"POST", "/events/ABCD2345/join"},
		{"PUT", "/events/ABCD2345/credential"},
		{"POST", "/events/ABCD2345/tracks/t1/retry"},

		{"POST", "/events/ABCD2345/votes"},
		{"POST", "/events/ABCD2345/search"},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			if w.Code == http.StatusMethodNotAllowed {
				t.Errorf("Route %s %s returned 405, expected route handler to exist", tc.method, tc.path)
			}
		})
	}
}

func TestSpecificMethodRouting(t *testing.T) {
	mux, _ := newTestRouter(t, nil)

	testCases := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"POST to health endpoint", "POST", "/health", http.StatusMethodNotAllowed},
		{"GET to votes endpoint", "GET", "/events/ABCD2345/votes", http.StatusMethodNotAllowed},
		{"POST to credential endpoint", "POST", "/events/ABCD2345/credential", http.StatusMethodNotAllowed},
		{"DELETE event", "DELETE", "/events/ABCD2345", http.StatusMethodNotAllowed},
		{"GET to search endpoint", "GET", "/events/ABCD2345/search", http.StatusMethodNotAllowed},
		{"POST to root", "POST", "/", http.StatusMethodNotAllowed},
		{"GET unknown path", "GET", "/events/ABCD2345/nope", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			if w.Code != tc.expectedStatus {
				t.Errorf("Expected %d for %s %s, got %d", tc.expectedStatus, tc.method, tc.path, w.Code)
			}
		})
	}
}

func TestPathParameterExtraction(t *testing.T) {
	mux, s := newTestRouter(t, nil)
	code, _ := testutil.CreateTestEvent(t, s, testutil.GetTestConfig(), 3)

	req := httptest.NewRequest("GET", "/events/"+code, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for existing event, got %d. Body: %s", w.Code, w.Body.String())
	}
}

func TestVoterRoutesRateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(0.001, 2)
	mux, s := newTestRouter(t, limiter)
	code, _ := testutil.CreateTestEvent(t, s, testutil.GetTestConfig(), 3)

	join := func() int {
		req := httptest.NewRequest("POST", "/events/"+code+"/join", bytes.NewReader(nil))
		req.RemoteAddr = "10.0.0.1:5000"
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if got := join(); got != http.StatusCreated {
			t.Fatalf("Join %d: expected 201, got %d", i+1, got)
		}
	}
	if got := join(); got != http.StatusTooManyRequests {
		t.Errorf("Expected 429 once the burst is spent, got %d", got)
	}

	// Host reads are not limited
	req := httptest.NewRequest("GET", "/events/"+code, nil)
	req.RemoteAddr = "10.0.0.1:5000"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for unlimited route, got %d", w.Code)
	}
}
