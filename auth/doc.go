// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides identifiers, host keys, and host session tokens.

# Event Codes

Join codes are the first 8 characters of a random UUID, uppercased:

	code, err := auth.GenerateEventCode()

Codes are short enough to type from a screen, so collisions are possible; the
store rejects a duplicate and the caller draws again.

# Voter IDs

Joining an event issues a UUID that identifies the voter for that event only:

	voterID, err := auth.GenerateVoterID()

# Host Keys

Host keys use HMAC-SHA256 over the event code, so they are never stored:

	hostKey := auth.GenerateHostKey(code, salt)
	err := auth.ValidateHostKey(code, hostKey, salt)

# Host Tokens

After the provider OAuth callback the host receives a signed JWT naming the
stored credential:

	token, err := auth.IssueHostToken(hostID, secret, 24*time.Hour)
	hostID, err := auth.ParseHostToken(token, secret)
*/
package auth
