// Package rate implements the Redis-backed sign-in throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on the first hit of a window. Key
// prefixes:
//   - sg:si: failed sign-ins per e-mail
//   - sg:sii: failed sign-ins per client IP
//
// Only failures are counted; a successful sign-in clears the e-mail counter.
package rate
