// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"log/slog"
	"time"
)

// Reconciler periodically retries tracks whose tally reached the threshold
// but which are not committed, typically after a failed dispatch.
type Reconciler struct {
	engine   *Engine
	interval time.Duration
}

func NewReconciler(e *Engine, interval time.Duration) *Reconciler {
	return &Reconciler{engine: e, interval: interval}
}

// Run sweeps every interval until ctx is done
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("reconciler started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return nil
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				slog.Warn("reconcile sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("reconcile sweep committed tracks", "count", n)
			}
		}
	}
}

// Sweep makes one pass over all events and returns how many tracks it committed.
// Per-track failures are logged and do not stop the pass.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	events, err := r.engine.store.ListEvents(ctx)
	if err != nil {
		return 0, err
	}

	committed := 0
	for _, ev := range events {
		tallies, err := r.engine.store.Tallies(ctx, ev.Code)
		if err != nil {
			slog.Warn("failed to load tallies", "event_code", ev.Code, "error", err)
			continue
		}
		for _, tt := range SortTallies(tallies) {
			if tt.Tally < ev.Threshold || ev.IsCommitted(tt.TrackID) {
				continue
			}
			ok, err := r.engine.Recheck(ctx, ev.Code, tt.TrackID)
			if err != nil {
				slog.Warn("reconcile dispatch failed", "event_code", ev.Code, "track_id", tt.TrackID, "error", err)
				continue
			}
			if ok {
				committed++
			}
		}
		if ctx.Err() != nil {
			return committed, ctx.Err()
		}
	}
	return committed, nil
}
