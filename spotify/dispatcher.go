// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package spotify

import "context"

// Dispatcher appends committed tracks to event playlists
type Dispatcher struct {
	client *Client
}

func NewDispatcher(c *Client) *Dispatcher {
	return &Dispatcher{client: c}
}

// Append performs one playlist append. If the token was refreshed on the
// way, the new credential is returned so the caller can persist it.
func (d *Dispatcher) Append(ctx context.Context, credential, playlistRef, trackID string) (string, error) {
	sess, err := d.client.Session(ctx, credential)
	if err != nil {
		return "", err
	}
	if err := sess.AppendTrack(ctx, playlistRef, trackID); err != nil {
		return "", err
	}
	refreshed, _ := sess.Refreshed()
	return refreshed, nil
}
