/*
Package approval implements the approval gate: deferred routing decisions
held as pending requests until an admin resolves them or their deadline
passes.

The lifecycle is a small state machine. Requests start pending and move to
approved, rejected, expired, or auto_approved. Approved, auto_approved, and
expired are terminal; rejected may still be reversed to approved. Every
status change is a single compare-and-set write guarded on the current
status, so concurrent resolvers race safely: exactly one wins and the
losers get a state conflict naming the actual current status.
*/
package approval

import "github.com/wardstone/gatekeeper/internal/types"

// transitions maps each target status to the statuses it is reachable from.
// Used both to build the CAS guard and to classify failed writes.
var transitions = map[types.Status][]types.Status{
	types.StatusApproved:     {types.StatusPending, types.StatusRejected},
	types.StatusRejected:     {types.StatusPending},
	types.StatusExpired:      {types.StatusPending},
	types.StatusAutoApproved: {types.StatusPending},
}

// allowedFrom returns the source statuses from which a transition to the
// given status is legal. Nil for statuses that are never a target (pending).
func allowedFrom(to types.Status) []types.Status {
	return transitions[to]
}

// canTransition reports whether a request in from may move to to.
func canTransition(from, to types.Status) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// conflict builds the error for a transition denied by the current status.
func conflict(current, attempted types.Status) error {
	return &types.StateConflictError{Current: current, Attempted: attempted}
}
