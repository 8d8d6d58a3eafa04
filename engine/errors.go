// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"errors"
	"fmt"

	"github.com/danielhkuo/crowdlist/credentials"
)

var (
	ErrValidation        = errors.New("invalid request")
	ErrNotMember         = errors.New("voter has not joined this event")
	ErrCredentialMissing = credentials.ErrMissing
)

// DispatchError reports a failed playlist append. The vote that triggered it
// stays recorded and the track is released for another attempt.
type DispatchError struct {
	EventCode string
	TrackID   string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch of track %s for event %s failed: %v", e.TrackID, e.EventCode, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func (e *DispatchError) Retryable() bool { return true }

// IsRetryable reports whether err is worth retrying once the cause is fixed
func IsRetryable(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Retryable()
	}
	return errors.Is(err, ErrCredentialMissing)
}
