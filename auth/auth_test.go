// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGenerateID(t *testing.T) {
	tests := []struct {
		name    string
		byteLen int
		wantLen int // hex encoded length = byteLen * 2
	}{
		{"8 bytes", 8, 16},
		{"16 bytes", 16, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := GenerateID(tt.byteLen)
			if err != nil {
				t.Fatalf("GenerateID() error = %v", err)
			}
			if len(id) != tt.wantLen {
				t.Errorf("GenerateID() length = %d, want %d", len(id), tt.wantLen)
			}
		})
	}
}

func TestGenerateEventCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateEventCode()
		if err != nil {
			t.Fatalf("GenerateEventCode() error = %v", err)
		}
		if len(code) != EventCodeLen {
			t.Errorf("code length = %d, want %d", len(code), EventCodeLen)
		}
		if code != strings.ToUpper(code) {
			t.Errorf("code %q is not uppercase", code)
		}
		seen[code] = true
	}
	// 32 bits of entropy; 50 draws colliding would point at a broken generator
	if len(seen) < 49 {
		t.Errorf("too many duplicate codes: %d unique of 50", len(seen))
	}
}

func TestGenerateVoterID(t *testing.T) {
	a, err := GenerateVoterID()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateVoterID()
	if a == "" || a == b {
		t.Errorf("expected distinct non-empty voter ids, got %q and %q", a, b)
	}
}

func TestValidateHostKey(t *testing.T) {
	code := "ABCD1234"
	salt := "test-salt"
	validKey := GenerateHostKey(code, salt)

	if strings.Contains(validKey, "=") {
		t.Error("GenerateHostKey() contains padding characters")
	}

	tests := []struct {
		name    string
		code    string
		key     string
		salt    string
		wantErr bool
	}{
		{"valid key", code, validKey, salt, false},
		{"wrong key", code, "wrong-key", salt, true},
		{"wrong event", "ZZZZ9999", validKey, salt, true},
		{"wrong salt", code, validKey, "different-salt", true},
		{"empty key", code, "", salt, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHostKey(tt.code, tt.key, tt.salt)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHostKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && err != ErrInvalidHostKey {
				t.Errorf("ValidateHostKey() error = %v, want %v", err, ErrInvalidHostKey)
			}
		})
	}
}

func TestHostTokenRoundTrip(t *testing.T) {
	token, err := IssueHostToken("host-1", "secret", time.Hour)
	if err != nil {
		t.Fatalf("IssueHostToken() error = %v", err)
	}

	hostID, err := ParseHostToken(token, "secret")
	if err != nil {
		t.Fatalf("ParseHostToken() error = %v", err)
	}
	if hostID != "host-1" {
		t.Errorf("hostID = %q, want host-1", hostID)
	}

	if _, err := ParseHostToken(token, "other-secret"); !errors.Is(err, ErrInvalidHostToken) {
		t.Errorf("wrong secret: got %v, want ErrInvalidHostToken", err)
	}

	expired, _ := IssueHostToken("host-1", "secret", -time.Minute)
	if _, err := ParseHostToken(expired, "secret"); !errors.Is(err, ErrInvalidHostToken) {
		t.Errorf("expired token: got %v, want ErrInvalidHostToken", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Bearer ", ""},
		{"Basic abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := BearerToken(tt.header); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
