// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielhkuo/crowdlist/cliparse"
	"github.com/danielhkuo/crowdlist/credentials"
	"github.com/danielhkuo/crowdlist/engine"
	"github.com/danielhkuo/crowdlist/lock"
	"github.com/danielhkuo/crowdlist/spotify"
	"github.com/danielhkuo/crowdlist/store"
	"github.com/danielhkuo/crowdlist/testutil"
)

type testEnv struct {
	cfg    cliparse.Config
	store  *store.MemoryStore
	fake   *testutil.FakeSpotify
	engine *engine.Engine

	auth   *AuthHandler
	events *EventHandler
	voting *VotingHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testutil.GetTestConfig()
	s := store.NewMemoryStore()
	fake := testutil.NewFakeSpotify(t)
	sp := fake.Client()

	eng := engine.New(s, spotify.NewDispatcher(sp), credentials.NewResolver(s, s), lock.NewKeyedMutex(), engine.Config{
		DispatchTimeout: cfg.DispatchTimeout,
	})

	return &testEnv{
		cfg:    cfg,
		store:  s,
		fake:   fake,
		engine: eng,
		auth:   NewAuthHandler(s, sp, cfg),
		events: NewEventHandler(s, eng, sp, cfg),
		voting: NewVotingHandler(s, eng, sp, cfg),
	}
}

// serve dispatches req to h with the given path values set
func serve(h http.HandlerFunc, req *http.Request, pathValues map[string]string) *httptest.ResponseRecorder {
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func (env *testEnv) committed(t *testing.T, code, trackID string) bool {
	t.Helper()
	ok, err := env.store.IsCommitted(context.Background(), code, trackID)
	if err != nil {
		t.Fatalf("IsCommitted() error = %v", err)
	}
	return ok
}
