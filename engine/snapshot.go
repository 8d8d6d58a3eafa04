// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"sort"

	"github.com/danielhkuo/crowdlist/models"
)

// Snapshot returns every track with at least one vote, highest tally first,
// with the distinct voter count and the requester's usage. voterID may be empty.
func (e *Engine) Snapshot(ctx context.Context, code, voterID string) (models.TallySnapshot, error) {
	ev, err := e.store.GetEvent(ctx, code)
	if err != nil {
		return models.TallySnapshot{}, err
	}

	tallies, err := e.store.Tallies(ctx, code)
	if err != nil {
		return models.TallySnapshot{}, err
	}
	total, err := e.store.TotalVoters(ctx, code)
	if err != nil {
		return models.TallySnapshot{}, err
	}

	usage := 0
	if voterID != "" {
		if usage, err = e.store.Usage(ctx, code, voterID); err != nil {
			return models.TallySnapshot{}, err
		}
	}

	return models.TallySnapshot{
		Tracks:      SortTallies(tallies),
		TotalVoters: total,
		Usage:       usage,
		Threshold:   ev.Threshold,
	}, nil
}

// SortTallies orders by tally descending, then track ID
func SortTallies(tallies map[string]int) []models.TrackTally {
	out := make([]models.TrackTally, 0, len(tallies))
	for id, n := range tallies {
		if n > 0 {
			out = append(out, models.TrackTally{TrackID: id, Tally: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tally != out[j].Tally {
			return out[i].Tally > out[j].Tally
		}
		return out[i].TrackID < out[j].TrackID
	})
	return out
}
