// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/danielhkuo/crowdlist/models"
)

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type apiTrack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URI     string `json:"uri"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
}

func (t apiTrack) toModel() models.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	image := ""
	if len(t.Album.Images) > 0 {
		image = t.Album.Images[0].URL
	}
	return models.Track{
		ID:         t.ID,
		Name:       t.Name,
		Artist:     strings.Join(artists, ", "),
		Image:      image,
		SpotifyURI: t.URI,
	}
}

// TrackURI formats a track ID as a Spotify URI
func TrackURI(trackID string) string {
	return "spotify:track:" + trackID
}

func (s *Session) CurrentUser(ctx context.Context) (User, error) {
	var u User
	if err := s.do(ctx, http.MethodGet, s.client.apiURL+"/v1/me", nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Search returns up to SearchLimit tracks matching query
func (s *Session) Search(ctx context.Context, query string) ([]models.Track, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", fmt.Sprint(SearchLimit))

	var resp struct {
		Tracks struct {
			Items []apiTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := s.do(ctx, http.MethodGet, s.client.apiURL+"/v1/search?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]models.Track, 0, len(resp.Tracks.Items))
	for _, t := range resp.Tracks.Items {
		out = append(out, t.toModel())
	}
	return out, nil
}

// Tracks fetches metadata for ids in batches. Unknown IDs are skipped.
func (s *Session) Tracks(ctx context.Context, ids []string) ([]models.Track, error) {
	out := make([]models.Track, 0, len(ids))
	for start := 0; start < len(ids); start += tracksBatch {
		end := min(start+tracksBatch, len(ids))

		var resp struct {
			Tracks []*apiTrack `json:"tracks"`
		}
		u := s.client.apiURL + "/v1/tracks?ids=" + url.QueryEscape(strings.Join(ids[start:end], ","))
		if err := s.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
			return nil, err
		}
		for _, t := range resp.Tracks {
			if t != nil {
				out = append(out, t.toModel())
			}
		}
	}
	return out, nil
}

// AppendTrack adds one track to the end of a playlist
func (s *Session) AppendTrack(ctx context.Context, playlistRef, trackID string) error {
	body := map[string][]string{"uris": {TrackURI(trackID)}}
	u := fmt.Sprintf("%s/v1/playlists/%s/tracks", s.client.apiURL, url.PathEscape(playlistRef))
	return s.do(ctx, http.MethodPost, u, body, nil)
}

// FindOrCreatePlaylist returns the ID of the user's playlist named name,
// creating a private one if none exists.
func (s *Session) FindOrCreatePlaylist(ctx context.Context, name string) (string, error) {
	next := s.client.apiURL + "/v1/me/playlists?limit=50"
	for next != "" {
		var page struct {
			Items []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"items"`
			Next string `json:"next"`
		}
		if err := s.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return "", fmt.Errorf("failed to list playlists: %w", err)
		}
		for _, p := range page.Items {
			if p.Name == name {
				return p.ID, nil
			}
		}
		next = page.Next
	}

	user, err := s.CurrentUser(ctx)
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"name":        name,
		"public":      false,
		"description": PlaylistDescription,
	}
	u := fmt.Sprintf("%s/v1/users/%s/playlists", s.client.apiURL, url.PathEscape(user.ID))
	if err := s.do(ctx, http.MethodPost, u, body, &created); err != nil {
		return "", fmt.Errorf("failed to create playlist: %w", err)
	}
	return created.ID, nil
}
