// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/danielhkuo/crowdlist/auth"
	"github.com/danielhkuo/crowdlist/models"
	"github.com/danielhkuo/crowdlist/store"
)

const maxCodeAttempts = 5

// generateCode is swapped in tests to force collisions
var generateCode = auth.GenerateEventCode

// CreateEvent registers ev under a freshly generated code and returns the
// stored event. Thresholds below one fall back to models.DefaultThreshold.
func (e *Engine) CreateEvent(ctx context.Context, ev models.Event) (models.Event, error) {
	if strings.TrimSpace(ev.PlaylistRef) == "" {
		return models.Event{}, fmt.Errorf("%w: playlist is required", ErrValidation)
	}
	if ev.CredentialRef == "" {
		return models.Event{}, ErrCredentialMissing
	}
	if ev.Threshold <= 0 {
		ev.Threshold = models.DefaultThreshold
	}
	ev.CommittedTracks = nil

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return models.Event{}, fmt.Errorf("failed to generate event code: %w", err)
		}
		ev.Code = code

		err = e.store.CreateEvent(ctx, ev)
		if errors.Is(err, store.ErrCodeTaken) {
			slog.Debug("event code collision", "event_code", code, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return models.Event{}, err
		}
		return e.store.GetEvent(ctx, code)
	}
	return models.Event{}, fmt.Errorf("no free event code after %d attempts: %w", maxCodeAttempts, store.ErrCodeTaken)
}
