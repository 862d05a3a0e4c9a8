// Package sessionguard issues, rotates and revokes session credentials for
// web and mobile clients and runs the account-verification,
// password-recovery and password-reset flows.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// sessionguard is the public surface. It exposes [Engine], [Builder], [Config], the
// [Response] variants and the [Error] taxonomy. Flow orchestration, the refresh-token
// ledger, attempt limiting and audit dispatch live under internal/. Persistence is
// reached only through the interfaces of package store; store/sqlstore implements
// them for Postgres and SQLite.
//
// Every mutating operation runs in one store transaction carried by the context.
// Reuse and replay escalation (revocation and account lock) commit even though the
// operation returns an error. Mail and audit delivery happen after commit on their
// own goroutines and never affect the result.
//
// # What this package must NOT do
//
//   - Store or log a token, a temporary password or a password in clear text.
//   - Tell a caller why a sign-in failed beyond "email or password invalid".
//   - Send mail or emit audit events from inside a transaction.
package sessionguard
