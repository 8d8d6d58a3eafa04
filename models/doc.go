// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Domain Types

  - Event: one voting session bound to a playlist and a vote threshold
  - VoteOutcome: structured result of a vote toggle
  - TallySnapshot: per-track tallies sorted by votes, plus voter totals
  - Track: provider metadata decorated with vote state

# Outcomes

A toggle always returns a VoteOutcome. Rejected actions are outcomes, not errors:

	OutcomeToggled          = "toggled"
	OutcomeVoteLimitReached = "vote_limit_reached"
	OutcomeAlreadyCommitted = "already_committed"

# Limits

	DefaultThreshold = 5
	MaxVotesPerVoter = 3
*/
package models
