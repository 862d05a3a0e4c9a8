// Package flows contains the orchestration logic behind every Engine
// operation that touches more than one collaborator.
//
// Each Run* function accepts a typed dependency struct and returns a result
// carrying either the payload or a classified failure. Flows never open
// transactions: the Engine runs them inside one and decides, from the
// failure kind, whether the work done so far commits.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import sessionguard (to avoid import cycles).
//   - Deliver mail or audit events; results carry what the Engine needs to
//     do that after commit.
package flows
