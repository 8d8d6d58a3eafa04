// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/danielhkuo/crowdlist/models"
)

type pairKey struct {
	code string
	id   string
}

type memEvent struct {
	event     models.Event
	committed map[string]time.Time
	members   map[string]struct{}
}

// MemoryStore keeps all state in process. It is the reference Store used by
// tests and by single-process deployments with DATABASE_TYPE=memory.
type MemoryStore struct {
	mu      sync.RWMutex
	events  map[string]*memEvent
	byTrack map[pairKey]map[string]struct{} // (code, track) -> voters
	byVoter map[pairKey]map[string]struct{} // (code, voter) -> tracks
	hosts   map[string]models.Host
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:  make(map[string]*memEvent),
		byTrack: make(map[pairKey]map[string]struct{}),
		byVoter: make(map[pairKey]map[string]struct{}),
		hosts:   make(map[string]models.Host),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateEvent(_ context.Context, ev models.Event) error {
	if ev.Code == "" {
		return ErrEmptyField
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[ev.Code]; ok {
		return ErrCodeTaken
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	ev.CommittedTracks = nil
	m.events[ev.Code] = &memEvent{
		event:     ev,
		committed: make(map[string]time.Time),
		members:   make(map[string]struct{}),
	}
	return nil
}

func (m *MemoryStore) GetEvent(_ context.Context, code string) (models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	me, ok := m.events[code]
	if !ok {
		return models.Event{}, ErrNotFound
	}
	return me.snapshot(), nil
}

func (m *MemoryStore) ListEvents(_ context.Context) ([]models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Event, 0, len(m.events))
	for _, me := range m.events {
		out = append(out, me.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// snapshot copies the event with its commit set in commit order
func (me *memEvent) snapshot() models.Event {
	ev := me.event
	ev.CommittedTracks = make([]string, 0, len(me.committed))
	for id := range me.committed {
		ev.CommittedTracks = append(ev.CommittedTracks, id)
	}
	sort.Slice(ev.CommittedTracks, func(i, j int) bool {
		a, b := ev.CommittedTracks[i], ev.CommittedTracks[j]
		if me.committed[a].Equal(me.committed[b]) {
			return a < b
		}
		return me.committed[a].Before(me.committed[b])
	})
	return ev
}

func (m *MemoryStore) RefreshCredential(_ context.Context, code, credential string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, ok := m.events[code]
	if !ok {
		return ErrNotFound
	}
	me.event.CredentialRef = credential
	return nil
}

func (m *MemoryStore) RefreshCredentialIf(_ context.Context, code, old, credential string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, ok := m.events[code]
	if !ok {
		return false, ErrNotFound
	}
	if me.event.CredentialRef != old {
		return false, nil
	}
	me.event.CredentialRef = credential
	return true, nil
}

func (m *MemoryStore) MarkCommitted(_ context.Context, code, trackID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, ok := m.events[code]
	if !ok {
		return false, ErrNotFound
	}
	if _, done := me.committed[trackID]; done {
		return false, nil
	}
	me.committed[trackID] = time.Now()
	return true, nil
}

func (m *MemoryStore) UnmarkCommitted(_ context.Context, code, trackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, ok := m.events[code]
	if !ok {
		return ErrNotFound
	}
	delete(me.committed, trackID)
	return nil
}

func (m *MemoryStore) IsCommitted(_ context.Context, code, trackID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	me, ok := m.events[code]
	if !ok {
		return false, ErrNotFound
	}
	_, done := me.committed[trackID]
	return done, nil
}

func (m *MemoryStore) AddMember(_ context.Context, code, voterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, ok := m.events[code]
	if !ok {
		return ErrNotFound
	}
	me.members[voterID] = struct{}{}
	return nil
}

func (m *MemoryStore) IsMember(_ context.Context, code, voterID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	me, ok := m.events[code]
	if !ok {
		return false, nil
	}
	_, member := me.members[voterID]
	return member, nil
}

// Ledger

func (m *MemoryStore) HasVote(_ context.Context, code, trackID, voterID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.byTrack[pairKey{code, trackID}][voterID]
	return ok, nil
}

func (m *MemoryStore) Tally(_ context.Context, code, trackID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byTrack[pairKey{code, trackID}]), nil
}

func (m *MemoryStore) Usage(_ context.Context, code, voterID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byVoter[pairKey{code, voterID}]), nil
}

func (m *MemoryStore) AddVote(_ context.Context, code, trackID, voterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	addTo(m.byTrack, pairKey{code, trackID}, voterID)
	addTo(m.byVoter, pairKey{code, voterID}, trackID)
	return nil
}

func (m *MemoryStore) RemoveVote(_ context.Context, code, trackID, voterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	removeFrom(m.byTrack, pairKey{code, trackID}, voterID)
	removeFrom(m.byVoter, pairKey{code, voterID}, trackID)
	return nil
}

func (m *MemoryStore) TracksWithVotes(_ context.Context, code string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for k, voters := range m.byTrack {
		if k.code == code && len(voters) > 0 {
			out = append(out, k.id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) VotersFor(_ context.Context, code, trackID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	voters := m.byTrack[pairKey{code, trackID}]
	out := make([]string, 0, len(voters))
	for v := range voters {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Tallies(_ context.Context, code string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int)
	for k, voters := range m.byTrack {
		if k.code == code && len(voters) > 0 {
			out[k.id] = len(voters)
		}
	}
	return out, nil
}

func (m *MemoryStore) TotalVoters(_ context.Context, code string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for k, tracks := range m.byVoter {
		if k.code == code && len(tracks) > 0 {
			n++
		}
	}
	return n, nil
}

// Hosts

func (m *MemoryStore) SaveHost(_ context.Context, host models.Host) error {
	if host.ID == "" {
		return ErrEmptyField
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if host.UpdatedAt.IsZero() {
		host.UpdatedAt = time.Now().UTC()
	}
	m.hosts[host.ID] = host
	return nil
}

func (m *MemoryStore) GetHost(_ context.Context, id string) (models.Host, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.hosts[id]
	if !ok {
		return models.Host{}, ErrNotFound
	}
	return h, nil
}

func (m *MemoryStore) RefreshHostCredentialIf(_ context.Context, id, old, credential string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hosts[id]
	if !ok {
		return false, ErrNotFound
	}
	if h.CredentialRef != old {
		return false, nil
	}
	h.CredentialRef = credential
	h.UpdatedAt = time.Now().UTC()
	m.hosts[id] = h
	return true, nil
}

func addTo(idx map[pairKey]map[string]struct{}, k pairKey, v string) {
	set, ok := idx[k]
	if !ok {
		set = make(map[string]struct{})
		idx[k] = set
	}
	set[v] = struct{}{}
}

func removeFrom(idx map[pairKey]map[string]struct{}, k pairKey, v string) {
	set, ok := idx[k]
	if !ok {
		return
	}
	delete(set, v)
	if len(set) == 0 {
		delete(idx, k)
	}
}
