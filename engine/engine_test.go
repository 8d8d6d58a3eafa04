// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/crowdlist/credentials"
	"github.com/danielhkuo/crowdlist/lock"
	"github.com/danielhkuo/crowdlist/models"
	"github.com/danielhkuo/crowdlist/store"
)

// fakeDispatcher counts appends and fails while failing is set
type fakeDispatcher struct {
	calls     atomic.Int32
	failing   atomic.Bool
	delay     time.Duration
	refreshTo string
	during    func() // runs inside Append, before it returns

	mu       sync.Mutex
	appended []string
}

func (f *fakeDispatcher) Append(ctx context.Context, credential, playlistRef, trackID string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.during != nil {
		f.during()
	}
	if f.failing.Load() {
		return "", errors.New("provider rejected append")
	}
	f.mu.Lock()
	f.appended = append(f.appended, trackID)
	f.mu.Unlock()
	return f.refreshTo, nil
}

type fixture struct {
	store      *store.MemoryStore
	dispatcher *fakeDispatcher
	engine     *Engine
}

func newFixture(t *testing.T, threshold int, voters ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateEvent(ctx, models.Event{
		Code:          "EVENT001",
		PlaylistName:  "Party",
		PlaylistRef:   "pl-1",
		Threshold:     threshold,
		CredentialRef: "cred",
	}))
	for _, v := range voters {
		require.NoError(t, s.AddMember(ctx, "EVENT001", v))
	}
	d := &fakeDispatcher{}
	e := New(s, d, credentials.NewResolver(s, s), lock.NewKeyedMutex(), Config{DispatchTimeout: time.Second})
	return &fixture{store: s, dispatcher: d, engine: e}
}

func (f *fixture) toggle(t *testing.T, track, voter string) models.VoteOutcome {
	t.Helper()
	out, err := f.engine.ToggleVote(context.Background(), "EVENT001", track, voter)
	require.NoError(t, err)
	return out
}

func TestToggleRoundTrip(t *testing.T) {
	f := newFixture(t, 5, "alice")

	out := f.toggle(t, "t1", "alice")
	assert.Equal(t, models.OutcomeToggled, out.Status)
	assert.Equal(t, models.ActionAdded, out.Action)
	assert.Equal(t, 1, out.Tally)
	assert.Equal(t, 1, out.Usage)

	out = f.toggle(t, "t1", "alice")
	assert.Equal(t, models.ActionRemoved, out.Action)
	assert.Equal(t, 0, out.Tally)
	assert.Equal(t, 0, out.Usage)
	assert.False(t, out.ThresholdReached)
}

func TestToggleValidation(t *testing.T) {
	f := newFixture(t, 5, "alice")
	ctx := context.Background()

	tests := []struct {
		name    string
		code    string
		track   string
		voter   string
		wantErr error
	}{
		{"empty track", "EVENT001", "", "alice", ErrValidation},
		{"empty voter", "EVENT001", "t1", "", ErrValidation},
		{"unknown event", "NOPE0000", "t1", "alice", store.ErrNotFound},
		{"not a member", "EVENT001", "t1", "mallory", ErrNotMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.ToggleVote(ctx, tt.code, tt.track, tt.voter)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVoteLimitScenario(t *testing.T) {
	f := newFixture(t, 10, "x")

	for _, track := range []string{"T1", "T2", "T3"} {
		out := f.toggle(t, track, "x")
		require.Equal(t, models.OutcomeToggled, out.Status)
	}

	out := f.toggle(t, "T4", "x")
	assert.Equal(t, models.OutcomeVoteLimitReached, out.Status)
	assert.Equal(t, 3, out.Usage)
	tally, _ := f.store.Tally(context.Background(), "EVENT001", "T4")
	assert.Equal(t, 0, tally, "limit must be enforced before insertion")

	out = f.toggle(t, "T1", "x")
	assert.Equal(t, models.ActionRemoved, out.Action)
	assert.Equal(t, 2, out.Usage)

	out = f.toggle(t, "T4", "x")
	assert.Equal(t, models.OutcomeToggled, out.Status)
	assert.Equal(t, models.ActionAdded, out.Action)
	assert.Equal(t, 3, out.Usage)
}

func TestThresholdScenario(t *testing.T) {
	f := newFixture(t, 3, "A", "B", "C", "D")

	assert.False(t, f.toggle(t, "T1", "A").ThresholdReached)
	assert.False(t, f.toggle(t, "T1", "B").ThresholdReached)

	out := f.toggle(t, "T1", "C")
	assert.True(t, out.ThresholdReached)
	assert.True(t, out.IsCommitted)
	assert.Equal(t, 3, out.Tally)
	assert.Equal(t, int32(1), f.dispatcher.calls.Load())

	out = f.toggle(t, "T1", "D")
	assert.Equal(t, models.OutcomeAlreadyCommitted, out.Status)
	assert.True(t, out.IsCommitted)
	assert.False(t, out.ThresholdReached)
	assert.Equal(t, int32(1), f.dispatcher.calls.Load(), "no second dispatch")

	ev, err := f.store.GetEvent(context.Background(), "EVENT001")
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, ev.CommittedTracks)
}

func TestVotingOnCommittedTrackIsNoop(t *testing.T) {
	f := newFixture(t, 1, "A", "B")

	assert.True(t, f.toggle(t, "T1", "A").ThresholdReached)

	// A cannot withdraw from a committed track either
	out := f.toggle(t, "T1", "A")
	assert.Equal(t, models.OutcomeAlreadyCommitted, out.Status)
	assert.Equal(t, 1, out.Tally)

	out = f.toggle(t, "T1", "B")
	assert.Equal(t, models.OutcomeAlreadyCommitted, out.Status)
	assert.Equal(t, int32(1), f.dispatcher.calls.Load())
}

func TestRemovalNeverCommits(t *testing.T) {
	f := newFixture(t, 2, "A", "B")

	f.toggle(t, "T1", "A")
	f.dispatcher.failing.Store(true)
	_, err := f.engine.ToggleVote(context.Background(), "EVENT001", "T1", "B")
	require.Error(t, err)
	calls := f.dispatcher.calls.Load()

	f.dispatcher.failing.Store(false)
	out := f.toggle(t, "T1", "B")
	assert.Equal(t, models.ActionRemoved, out.Action)
	assert.False(t, out.ThresholdReached)
	assert.Equal(t, calls, f.dispatcher.calls.Load())
}

func TestDispatchFailureThenRecheck(t *testing.T) {
	f := newFixture(t, 2, "A", "B")
	ctx := context.Background()

	f.toggle(t, "T1", "A")
	f.dispatcher.failing.Store(true)

	out, err := f.engine.ToggleVote(ctx, "EVENT001", "T1", "B")
	var de *DispatchError
	require.True(t, errors.As(err, &de))
	assert.True(t, de.Retryable())
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 2, out.Tally, "vote stays recorded")
	assert.False(t, out.ThresholdReached)

	committed, err := f.store.IsCommitted(ctx, "EVENT001", "T1")
	require.NoError(t, err)
	assert.False(t, committed, "claim must be released on failure")

	f.dispatcher.failing.Store(false)
	ok, err := f.engine.Recheck(ctx, "EVENT001", "T1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), f.dispatcher.calls.Load())

	committed, err = f.store.IsCommitted(ctx, "EVENT001", "T1")
	require.NoError(t, err)
	assert.True(t, committed)

	// Recheck on a committed track does not dispatch again
	ok, err = f.engine.Recheck(ctx, "EVENT001", "T1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), f.dispatcher.calls.Load())
}

func TestRecheckBelowThreshold(t *testing.T) {
	f := newFixture(t, 3, "A")
	f.toggle(t, "T1", "A")

	ok, err := f.engine.Recheck(context.Background(), "EVENT001", "T1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(0), f.dispatcher.calls.Load())
}

func TestDispatchTimeoutIsFailure(t *testing.T) {
	f := newFixture(t, 1, "A")
	f.dispatcher.delay = 200 * time.Millisecond
	f.engine.cfg.DispatchTimeout = 20 * time.Millisecond

	_, err := f.engine.ToggleVote(context.Background(), "EVENT001", "T1", "A")
	var de *DispatchError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	committed, err := f.store.IsCommitted(context.Background(), "EVENT001", "T1")
	require.NoError(t, err)
	assert.False(t, committed)
}

func TestCredentialMissing(t *testing.T) {
	f := newFixture(t, 1, "A")
	ctx := context.Background()
	require.NoError(t, f.store.RefreshCredential(ctx, "EVENT001", ""))

	out, err := f.engine.ToggleVote(ctx, "EVENT001", "T1", "A")
	assert.ErrorIs(t, err, ErrCredentialMissing)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 1, out.Tally)
	assert.Equal(t, int32(0), f.dispatcher.calls.Load())

	committed, _ := f.store.IsCommitted(ctx, "EVENT001", "T1")
	assert.False(t, committed)

	require.NoError(t, f.store.RefreshCredential(ctx, "EVENT001", "cred-2"))
	ok, err := f.engine.Recheck(ctx, "EVENT001", "T1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRefreshedCredentialPersisted(t *testing.T) {
	f := newFixture(t, 1, "A")
	f.dispatcher.refreshTo = "cred-refreshed"

	assert.True(t, f.toggle(t, "T1", "A").ThresholdReached)

	ev, err := f.store.GetEvent(context.Background(), "EVENT001")
	require.NoError(t, err)
	assert.Equal(t, "cred-refreshed", ev.CredentialRef)
}

// TestHostReauthDuringDispatchWins verifies a credential refreshed from the
// token a dispatch started with does not overwrite one stored mid-dispatch
func TestHostReauthDuringDispatchWins(t *testing.T) {
	f := newFixture(t, 1, "A")
	ctx := context.Background()
	f.dispatcher.refreshTo = "stale-refresh"
	f.dispatcher.during = func() {
		require.NoError(t, f.store.RefreshCredential(ctx, "EVENT001", "host-reauth"))
	}

	out := f.toggle(t, "T1", "A")
	assert.True(t, out.ThresholdReached)

	ev, err := f.store.GetEvent(ctx, "EVENT001")
	require.NoError(t, err)
	assert.Equal(t, "host-reauth", ev.CredentialRef)
}

// TestConcurrentThresholdCrossing verifies that many voters crossing the
// threshold at the same time produce exactly one dispatch
func TestConcurrentThresholdCrossing(t *testing.T) {
	const numVoters = 40
	voters := make([]string, numVoters)
	for i := range voters {
		voters[i] = fmt.Sprintf("voter-%02d", i)
	}
	f := newFixture(t, 5, voters...)
	f.dispatcher.delay = 5 * time.Millisecond

	var reached atomic.Int32
	var wg sync.WaitGroup
	for _, v := range voters {
		wg.Add(1)
		go func(voter string) {
			defer wg.Done()
			out, err := f.engine.ToggleVote(context.Background(), "EVENT001", "T1", voter)
			if err != nil {
				t.Errorf("ToggleVote(%s) error = %v", voter, err)
				return
			}
			if out.ThresholdReached {
				reached.Add(1)
			}
		}(v)
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.dispatcher.calls.Load(), "exactly one dispatch")
	assert.Equal(t, int32(1), reached.Load(), "exactly one caller reports threshold reached")
	assert.Equal(t, []string{"T1"}, f.dispatcher.appended)
}

// TestConcurrentVoterCap verifies one voter racing on many tracks never
// exceeds the per-voter cap
func TestConcurrentVoterCap(t *testing.T) {
	f := newFixture(t, 100, "greedy")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.engine.ToggleVote(context.Background(), "EVENT001", fmt.Sprintf("T%d", i), "greedy")
		}(i)
	}
	wg.Wait()

	usage, err := f.store.Usage(context.Background(), "EVENT001", "greedy")
	require.NoError(t, err)
	assert.Equal(t, models.MaxVotesPerVoter, usage)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, 10, "A", "B", "C")
	f.toggle(t, "T1", "A")
	f.toggle(t, "T2", "A")
	f.toggle(t, "T2", "B")
	f.toggle(t, "T3", "C")

	snap, err := f.engine.Snapshot(context.Background(), "EVENT001", "A")
	require.NoError(t, err)
	assert.Equal(t, []models.TrackTally{
		{TrackID: "T2", Tally: 2},
		{TrackID: "T1", Tally: 1},
		{TrackID: "T3", Tally: 1},
	}, snap.Tracks)
	assert.Equal(t, 3, snap.TotalVoters)
	assert.Equal(t, 2, snap.Usage)
	assert.Equal(t, 10, snap.Threshold)

	_, err = f.engine.Snapshot(context.Background(), "NOPE0000", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReconcilerSweep(t *testing.T) {
	f := newFixture(t, 1, "A", "B")
	ctx := context.Background()

	f.dispatcher.failing.Store(true)
	_, err := f.engine.ToggleVote(ctx, "EVENT001", "T1", "A")
	require.Error(t, err)
	_, err = f.engine.ToggleVote(ctx, "EVENT001", "T2", "B")
	require.Error(t, err)

	r := NewReconciler(f.engine, time.Hour)

	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "still failing")

	f.dispatcher.failing.Store(false)
	n, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing left to commit")
}

func TestReconcilerRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, 1)
	r := NewReconciler(f.engine, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
