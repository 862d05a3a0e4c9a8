// Package internal contains helpers private to sessionguard: identifier
// generation and the one-way token digests kept in the credential store.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: refresh rotation and the generic self-service state machine
//   - ledger: refresh-token record issuance, lookup and revocation
//   - limiters: store-backed attempt-rate limiter
//   - rate: Redis sign-in throttle
//
// # What this package must NOT do
//
//   - Export types that appear in the public sessionguard API.
package internal
