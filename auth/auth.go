// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidHostKey   = errors.New("invalid host key")
	ErrInvalidHostToken = errors.New("invalid host token")
)

// EventCodeLen is the length of a join code
const EventCodeLen = 8

// GenerateID creates a random hex ID of the specified byte length
func GenerateID(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateEventCode returns a short uppercase join code taken from a random UUID.
// Codes are not guaranteed unique; callers check for collisions.
func GenerateEventCode() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate event code: %w", err)
	}
	return strings.ToUpper(id.String()[:EventCodeLen]), nil
}

// GenerateVoterID creates the per-membership voter identity handed to a
// joining attendee. It doubles as the X-Voter-Token.
func GenerateVoterID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate voter id: %w", err)
	}
	return id.String(), nil
}

// GenerateHostKey creates an HMAC-based host key for an event.
// Deterministic, so it never needs to be stored.
func GenerateHostKey(eventCode, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(eventCode))
	sum := h.Sum(nil)
	return strings.TrimRight(base64.URLEncoding.EncodeToString(sum), "=")
}

// ValidateHostKey checks if the provided host key is valid for the event
func ValidateHostKey(eventCode, hostKey, salt string) error {
	expected := GenerateHostKey(eventCode, salt)
	if !hmac.Equal([]byte(hostKey), []byte(expected)) {
		return ErrInvalidHostKey
	}
	return nil
}

type hostClaims struct {
	jwt.RegisteredClaims
}

// IssueHostToken signs a session token naming the host whose provider
// credential is stored server side.
func IssueHostToken(hostID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := hostClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   hostID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign host token: %w", err)
	}
	return signed, nil
}

// ParseHostToken verifies a host token and returns the host ID
func ParseHostToken(tokenString, secret string) (string, error) {
	var claims hostClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHostToken, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidHostToken
	}
	return claims.Subject, nil
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header value
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
