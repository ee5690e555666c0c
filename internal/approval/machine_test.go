package approval

import (
	"testing"

	"github.com/wardstone/gatekeeper/internal/types"
)

func TestTransitionLegalityMatrix(t *testing.T) {
	statuses := []types.Status{
		types.StatusPending, types.StatusApproved, types.StatusRejected,
		types.StatusExpired, types.StatusAutoApproved,
	}

	legal := map[types.Status]map[types.Status]bool{
		types.StatusApproved:     {types.StatusPending: true, types.StatusRejected: true},
		types.StatusRejected:     {types.StatusPending: true},
		types.StatusExpired:      {types.StatusPending: true},
		types.StatusAutoApproved: {types.StatusPending: true},
		types.StatusPending:      {},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := legal[to][from]
			if got := canTransition(from, to); got != want {
				t.Errorf("canTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	// Rejected is resolvable but not terminal: reversal to approved stays
	// legal.
	if types.StatusRejected.Terminal() {
		t.Errorf("rejected.Terminal() = true, want false")
	}
	for _, s := range []types.Status{types.StatusApproved, types.StatusAutoApproved, types.StatusExpired} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	if types.StatusPending.Terminal() {
		t.Errorf("pending.Terminal() = true, want false")
	}
}

func TestConflictReason(t *testing.T) {
	err := conflict(types.StatusApproved, types.StatusRejected)
	conflictErr, ok := err.(*types.StateConflictError)
	if !ok {
		t.Fatalf("conflict() type = %T, want *types.StateConflictError", err)
	}
	if conflictErr.Reason() != "already approved" {
		t.Errorf("Reason() = %q, want %q", conflictErr.Reason(), "already approved")
	}
}
