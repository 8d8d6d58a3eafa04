// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package engine turns vote toggles into tallies and commits tracks that reach
the event threshold.

CreateEvent assigns a fresh event code, retrying on collision, and coerces
non-positive thresholds to models.DefaultThreshold.

# Toggle

ToggleVote is idempotent per (event, track, voter): a second call withdraws
the vote. Each voter may back at most models.MaxVotesPerVoter tracks per
event; the cap is checked before insertion. A committed track rejects further
toggles with status already_committed.

# Concurrency

Ledger mutation and the tally read run under the voter lock and then the track
lock (always in that order). Locks are released before dispatch. Which caller
dispatches is decided by store.Registry.MarkCommitted, so concurrent toggles
crossing the threshold produce one playlist append.

# Failure

The track is claimed before dispatch. If the credential is missing, the append
fails, or it exceeds Config.DispatchTimeout, the claim is released and the
vote stays recorded. Recheck and the Reconciler retry such tracks without
changing votes.
*/
package engine
