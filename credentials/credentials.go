// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package credentials resolves which playlist-provider credential backs an event.
//
// Precedence: the credential stored on the event, then the credential of the
// host who created it. If neither exists, Resolve returns ErrMissing.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielhkuo/crowdlist/models"
	"github.com/danielhkuo/crowdlist/store"
)

var ErrMissing = errors.New("no playlist credential available for event")

type Source int

const (
	SourceEvent Source = iota
	SourceHost
)

func (s Source) String() string {
	if s == SourceHost {
		return "host"
	}
	return "event"
}

type Resolved struct {
	Credential string
	Source     Source
}

type Resolver struct {
	registry store.Registry
	hosts    store.Hosts
}

func NewResolver(registry store.Registry, hosts store.Hosts) *Resolver {
	return &Resolver{registry: registry, hosts: hosts}
}

func (r *Resolver) Resolve(ctx context.Context, ev models.Event) (Resolved, error) {
	if ev.CredentialRef != "" {
		return Resolved{Credential: ev.CredentialRef, Source: SourceEvent}, nil
	}
	if ev.HostID == "" {
		return Resolved{}, ErrMissing
	}

	host, err := r.hosts.GetHost(ctx, ev.HostID)
	if errors.Is(err, store.ErrNotFound) {
		return Resolved{}, ErrMissing
	}
	if err != nil {
		return Resolved{}, fmt.Errorf("failed to load host credential: %w", err)
	}
	if host.CredentialRef == "" {
		return Resolved{}, ErrMissing
	}
	return Resolved{Credential: host.CredentialRef, Source: SourceHost}, nil
}

// Persist writes a refreshed credential back to where from was resolved,
// but only while the stored value is still from.Credential. It reports false
// when a newer credential (a host re-login, say) replaced it in the meantime.
func (r *Resolver) Persist(ctx context.Context, ev models.Event, from Resolved, refreshed string) (bool, error) {
	if from.Source == SourceEvent {
		return r.registry.RefreshCredentialIf(ctx, ev.Code, from.Credential, refreshed)
	}
	return r.hosts.RefreshHostCredentialIf(ctx, ev.HostID, from.Credential, refreshed)
}
