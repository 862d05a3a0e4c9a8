// Package limiters holds the attempt-rate limiter shared by the
// self-service flows.
//
// # Limiters
//
//   - [AttemptLimiter]: per-request send counter with a cap and a cooldown,
//     persisted through the store in the caller's transaction.
//
// The sign-in throttle lives in internal/rate because it counts in Redis, not
// in the credential store.
//
// # What this package must NOT do
//
//   - Open transactions; callers pass them in the context.
//   - Decide consequences beyond counting.
package limiters
