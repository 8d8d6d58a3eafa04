// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package lock provides per-key mutual exclusion, in process (KeyedMutex)
// or across processes sharing a Redis instance (RedisLocker).
package lock
