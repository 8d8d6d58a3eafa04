// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielhkuo/crowdlist/credentials"
	"github.com/danielhkuo/crowdlist/lock"
	"github.com/danielhkuo/crowdlist/models"
	"github.com/danielhkuo/crowdlist/store"
)

const DefaultDispatchTimeout = 10 * time.Second

// Dispatcher appends a track to a playlist. A non-empty refreshed value is a
// replacement credential obtained during the call.
type Dispatcher interface {
	Append(ctx context.Context, credential, playlistRef, trackID string) (refreshed string, err error)
}

type CredentialResolver interface {
	Resolve(ctx context.Context, ev models.Event) (credentials.Resolved, error)
	Persist(ctx context.Context, ev models.Event, from credentials.Resolved, refreshed string) (bool, error)
}

// Store is the subset of store.Store the engine mutates
type Store interface {
	store.Registry
	store.Ledger
}

type Config struct {
	DispatchTimeout  time.Duration
	MaxVotesPerVoter int
}

type Engine struct {
	store       Store
	dispatcher  Dispatcher
	credentials CredentialResolver
	locker      lock.Locker
	cfg         Config
	inst        *instruments
}

func New(s Store, d Dispatcher, creds CredentialResolver, locker lock.Locker, cfg Config) *Engine {
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	if cfg.MaxVotesPerVoter <= 0 {
		cfg.MaxVotesPerVoter = models.MaxVotesPerVoter
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &Engine{
		store:       s,
		dispatcher:  d,
		credentials: creds,
		locker:      locker,
		cfg:         cfg,
		inst:        newInstruments(),
	}
}

func voterKey(code, voterID string) string { return "voter:" + code + ":" + voterID }
func trackKey(code, trackID string) string { return "track:" + code + ":" + trackID }

// ToggleVote adds the voter's backing for a track, or withdraws it if present.
//
// Limit and commit rejections are reported through the outcome status, not as
// errors. When the vote pushes the tally to the threshold the caller that wins
// MarkCommitted dispatches; a failed dispatch returns the outcome together with
// a *DispatchError and leaves the vote recorded.
func (e *Engine) ToggleVote(ctx context.Context, code, trackID, voterID string) (models.VoteOutcome, error) {
	switch {
	case trackID == "":
		return models.VoteOutcome{}, fmt.Errorf("%w: track_id is required", ErrValidation)
	case voterID == "" || code == "":
		return models.VoteOutcome{}, fmt.Errorf("%w: voter and event are required", ErrValidation)
	}

	// Find event and verify membership
	ev, err := e.store.GetEvent(ctx, code)
	if err != nil {
		return models.VoteOutcome{}, err
	}
	member, err := e.store.IsMember(ctx, code, voterID)
	if err != nil {
		return models.VoteOutcome{}, err
	}
	if !member {
		return models.VoteOutcome{}, ErrNotMember
	}

	// Committed tracks are frozen
	if ev.IsCommitted(trackID) {
		return e.alreadyCommitted(ctx, code, trackID, voterID)
	}

	outcome, removing, err := e.mutate(ctx, ev, trackID, voterID)
	// Withdrawals and rejections never commit
	if err != nil || removing || outcome.Status != models.OutcomeToggled {
		return outcome, err
	}
	if outcome.Tally < ev.Threshold {
		return outcome, nil
	}

	dispatched, err := e.commit(ctx, ev, trackID)
	if err != nil {
		return outcome, err
	}
	outcome.ThresholdReached = dispatched
	// A losing caller still sees the track as committed
	outcome.IsCommitted = true
	return outcome, nil
}

// mutate runs the check-and-write steps under the voter lock and then the
// track lock. Locks are always taken in that order.
func (e *Engine) mutate(ctx context.Context, ev models.Event, trackID, voterID string) (models.VoteOutcome, bool, error) {
	unlockVoter, err := e.locker.Lock(ctx, voterKey(ev.Code, voterID))
	if err != nil {
		return models.VoteOutcome{}, false, fmt.Errorf("failed to acquire voter lock: %w", err)
	}
	defer unlockVoter()

	unlockTrack, err := e.locker.Lock(ctx, trackKey(ev.Code, trackID))
	if err != nil {
		return models.VoteOutcome{}, false, fmt.Errorf("failed to acquire track lock: %w", err)
	}
	defer unlockTrack()

	// The event snapshot may predate a commit that finished while we waited
	committed, err := e.store.IsCommitted(ctx, ev.Code, trackID)
	if err != nil {
		return models.VoteOutcome{}, false, err
	}
	if committed {
		out, err := e.alreadyCommitted(ctx, ev.Code, trackID, voterID)
		return out, false, err
	}

	// An existing vote means this toggle withdraws it
	removing, err := e.store.HasVote(ctx, ev.Code, trackID, voterID)
	if err != nil {
		return models.VoteOutcome{}, false, err
	}
	usage, err := e.store.Usage(ctx, ev.Code, voterID)
	if err != nil {
		return models.VoteOutcome{}, false, err
	}

	// Cap applies to additions only
	if !removing && usage >= e.cfg.MaxVotesPerVoter {
		tally, err := e.store.Tally(ctx, ev.Code, trackID)
		if err != nil {
			return models.VoteOutcome{}, false, err
		}
		e.inst.recordRejected(ctx, models.OutcomeVoteLimitReached)
		return models.VoteOutcome{
			Status: models.OutcomeVoteLimitReached,
			Tally:  tally,
			Usage:  usage,
		}, false, nil
	}

	// Apply the toggle
	action := models.ActionAdded
	if removing {
		action = models.ActionRemoved
		err = e.store.RemoveVote(ctx, ev.Code, trackID, voterID)
		usage--
	} else {
		err = e.store.AddVote(ctx, ev.Code, trackID, voterID)
		usage++
	}
	if err != nil {
		return models.VoteOutcome{}, false, err
	}

	// Tally is read under the track lock so it reflects this toggle
	tally, err := e.store.Tally(ctx, ev.Code, trackID)
	if err != nil {
		return models.VoteOutcome{}, false, err
	}

	e.inst.recordToggle(ctx, action)
	slog.Debug("vote toggled", "event_code", ev.Code, "track_id", trackID, "action", action, "tally", tally)

	return models.VoteOutcome{
		Status: models.OutcomeToggled,
		Action: action,
		Tally:  tally,
		Usage:  usage,
	}, removing, nil
}

func (e *Engine) alreadyCommitted(ctx context.Context, code, trackID, voterID string) (models.VoteOutcome, error) {
	tally, err := e.store.Tally(ctx, code, trackID)
	if err != nil {
		return models.VoteOutcome{}, err
	}
	usage, err := e.store.Usage(ctx, code, voterID)
	if err != nil {
		return models.VoteOutcome{}, err
	}
	e.inst.recordRejected(ctx, models.OutcomeAlreadyCommitted)
	return models.VoteOutcome{
		Status:      models.OutcomeAlreadyCommitted,
		Tally:       tally,
		Usage:       usage,
		IsCommitted: true,
	}, nil
}

// Recheck re-runs the threshold decision for a track without touching votes.
// It reports whether the track is committed afterwards.
func (e *Engine) Recheck(ctx context.Context, code, trackID string) (bool, error) {
	if code == "" || trackID == "" {
		return false, ErrValidation
	}
	ev, err := e.store.GetEvent(ctx, code)
	if err != nil {
		return false, err
	}
	if ev.IsCommitted(trackID) {
		return true, nil
	}

	// Still below threshold, e.g. votes were withdrawn since the failure
	tally, err := e.store.Tally(ctx, code, trackID)
	if err != nil {
		return false, err
	}
	if tally < ev.Threshold {
		return false, nil
	}

	if _, err := e.commit(ctx, ev, trackID); err != nil {
		return false, err
	}
	return true, nil
}

// commit claims the track and dispatches it. It returns true only for the
// caller that performed a successful dispatch. On any failure after the
// claim, the claim is released.
func (e *Engine) commit(ctx context.Context, ev models.Event, trackID string) (bool, error) {
	// Claim the track; exactly one caller wins
	won, err := e.store.MarkCommitted(ctx, ev.Code, trackID)
	if err != nil {
		return false, fmt.Errorf("failed to claim track: %w", err)
	}
	if !won {
		return false, nil
	}

	ctx, span := e.inst.tracer.Start(ctx, "engine.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("event.code", ev.Code),
			attribute.String("track.id", trackID),
		),
	)
	defer span.End()

	// Resolve credential (event first, then host)
	resolved, err := e.credentials.Resolve(ctx, ev)
	if err != nil {
		e.release(ctx, ev.Code, trackID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "credential unavailable")
		e.inst.recordDispatch(ctx, "no_credential", 0)
		if errors.Is(err, credentials.ErrMissing) {
			return false, ErrCredentialMissing
		}
		return false, err
	}

	// Append to the playlist under the dispatch timeout
	dctx, cancel := context.WithTimeout(ctx, e.cfg.DispatchTimeout)
	defer cancel()

	start := time.Now()
	refreshed, err := e.dispatcher.Append(dctx, resolved.Credential, ev.PlaylistRef, trackID)
	took := time.Since(start)
	if err == nil && dctx.Err() != nil {
		// Late success after the deadline counts as failure
		err = dctx.Err()
	}
	if err != nil {
		e.release(ctx, ev.Code, trackID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		e.inst.recordDispatch(ctx, "failure", took)
		slog.Warn("dispatch failed", "event_code", ev.Code, "track_id", trackID, "error", err)
		return false, &DispatchError{EventCode: ev.Code, TrackID: trackID, Err: err}
	}

	e.inst.recordDispatch(ctx, "success", took)
	slog.Info("track committed", "event_code", ev.Code, "track_id", trackID, "credential_source", resolved.Source)

	if refreshed != "" {
		// Only replace the credential this dispatch started from. A host
		// re-login during the call must win.
		saved, err := e.credentials.Persist(context.WithoutCancel(ctx), ev, resolved, refreshed)
		switch {
		case err != nil:
			slog.Warn("failed to persist refreshed credential", "event_code", ev.Code, "error", err)
		case !saved:
			slog.Info("refreshed credential discarded, a newer one is stored", "event_code", ev.Code, "credential_source", resolved.Source)
		}
	}
	return true, nil
}

// release compensates a claim whose dispatch did not succeed
func (e *Engine) release(ctx context.Context, code, trackID string) {
	if err := e.store.UnmarkCommitted(context.WithoutCancel(ctx), code, trackID); err != nil {
		slog.Error("failed to release commit claim", "event_code", code, "track_id", trackID, "error", err)
	}
}
