// Package limiter provides an in-process, per-key rate limiter based on the
// Fixed Window algorithm.
//
// The primary entry point is the RateLimiter interface:
//
//	dec, err := limiter.TryConsume("user_123")
//
// The returned Decision reports whether the request is allowed, how much of
// the window's quota remains, and when a blocked caller may retry.
//
// # Overview
//
// Time is cut into fixed windows of equal length aligned to the Unix epoch:
//
//	[k*Window, (k+1)*Window)
//
// Each key owns a counter for the window it was last seen in. A call computes
// the current window start, and if the key's stored window is older the
// counter is reset before the call is counted. There is no background timer;
// rollover happens lazily on access.
//
// Because windows are aligned to absolute time rather than to a key's first
// request, all keys roll over at the same instants. A client may therefore
// spend its whole quota just before a boundary and again just after it,
// seeing up to 2x MaxRequests in a short span. This is how fixed windows
// behave and is kept on purpose.
//
// # Core Types
//
// Config defines the policy and is built with NewConfig:
//
//   - MaxRequests: units allowed per window (must be > 0)
//   - Window: the window length, a whole number of milliseconds since
//     timestamps are kept in milliseconds
//   - Clock: the time source, SystemClock unless overridden with WithClock
//
// Keys are plain strings. KeyStrategy turns arbitrary caller input (a user id,
// an Identity, request metadata) into a key; DefaultKeyStrategy maps absent
// input to AnonymousKey.
//
// # Concurrency
//
// Limiter is safe for concurrent use. Per-key state lives in a store sharded
// by an xxhash of the key, and each key carries its own mutex held only for the
// read-check-update of a single call. Calls on one key are linearized; calls
// on different keys do not contend on each other's lock.
//
// # Decision Semantics
//
//   - Allowed reports whether the current request is permitted.
//   - Remaining is the quota left after an allowed call, and 0 when blocked.
//   - RetryAt is the end of the window the caller is blocked in (zero when
//     allowed). RetryAfter converts it to a duration from a given instant.
//
// Blocked is a normal outcome. TryConsume only returns an error for an empty
// key.
//
// # Usage
//
// For a runnable example over a ManualClock, see ExampleLimiter_TryConsume in
// example_test.go.
//
// # Limitations and Notes
//
//   - State is local to the process; this is not a distributed limiter.
//   - Tracked keys are never evicted. High-cardinality keys grow memory
//     without bound; TrackedKeys exposes the current count.
//
// # Configuration
//
// Limiter is configured using the Functional Options pattern:
//
//	cfg, _ := limiter.NewConfig(100, time.Minute)
//	l, _ := limiter.New(cfg,
//		limiter.WithRecorder(myMetrics),
//		limiter.WithLogger(slog.Default()),
//	)
//
// Supported options:
//
//   - WithRecorder(MetricsRecorder): Injects a custom metrics backend.
//   - WithLogger(*slog.Logger): Debug logging of blocked calls.
//   - WithShards(int): Number of store shards (default 64).
package limiter
