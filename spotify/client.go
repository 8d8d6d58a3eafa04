// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultAPIURL   = "https://api.spotify.com"
	DefaultAuthURL  = "https://accounts.spotify.com/authorize"
	DefaultTokenURL = "https://accounts.spotify.com/api/token"

	SearchLimit = 10
	tracksBatch = 50

	PlaylistDescription = "Created by crowdlist"
)

var Scopes = []string{"playlist-modify-public", "playlist-modify-private", "user-read-private"}

var ErrInvalidCredential = errors.New("invalid spotify credential")

// APIError is a non-2xx response from the Web API
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify api error %d: %s", e.Status, e.Message)
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Overridable for tests
	APIURL     string
	AuthURL    string
	TokenURL   string
	HTTPClient *http.Client
}

type Client struct {
	oauth      *oauth2.Config
	apiURL     string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		httpClient: cfg.HTTPClient,
	}
}

// EncodeCredential serialises a token for storage as an opaque credential
func EncodeCredential(tok *oauth2.Token) (string, error) {
	b, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("failed to encode token: %w", err)
	}
	return string(b), nil
}

func DecodeCredential(credential string) (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(credential), &tok); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrInvalidCredential
	}
	return &tok, nil
}

func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for an encoded credential
func (c *Client) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange code: %w", err)
	}
	return EncodeCredential(tok)
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// Session binds a credential to a sequence of API calls. Expired tokens are
// refreshed through the oauth2 token source; Refreshed reports the result.
type Session struct {
	client *Client
	ts     oauth2.TokenSource
	orig   string

	mu   sync.Mutex
	last *oauth2.Token
}

func (c *Client) Session(ctx context.Context, credential string) (*Session, error) {
	tok, err := DecodeCredential(credential)
	if err != nil {
		return nil, err
	}
	return &Session{
		client: c,
		ts:     c.oauth.TokenSource(c.oauthContext(ctx), tok),
		orig:   tok.AccessToken,
	}, nil
}

// Refreshed returns the encoded credential if the access token changed
func (s *Session) Refreshed() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || s.last.AccessToken == s.orig {
		return "", false
	}
	cred, err := EncodeCredential(s.last)
	if err != nil {
		return "", false
	}
	return cred, true
}

func (s *Session) do(ctx context.Context, method, url string, body, out any) error {
	tok, err := s.ts.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}
	s.mu.Lock()
	s.last = tok
	s.mu.Unlock()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	tok.SetAuthHeader(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
