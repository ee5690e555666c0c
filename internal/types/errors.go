package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for Gatekeeper operations.
var (
	// ErrMalformedRule indicates an unknown field, unsupported operator, or
	// wrong value shape at rule-authoring time. Rejected before persistence.
	ErrMalformedRule = errors.New("malformed rule")

	// ErrNotFound indicates an unknown rule or approval request id.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict indicates a transition attempted from a status that
	// does not permit it.
	ErrStateConflict = errors.New("state conflict")

	// ErrEvaluationUnavailable indicates a plugin's rule lookup failed due
	// to a data-access error. The plugin's contribution is treated as
	// empty; other plugins continue.
	ErrEvaluationUnavailable = errors.New("evaluation unavailable")

	// ErrExecutionFailed indicates the downstream acquisition call failed
	// after approval. The request stays approved; surfaced distinctly from
	// transition errors.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrSweepInProgress indicates an expiration sweep is already running.
	ErrSweepInProgress = errors.New("expiration sweep already in progress")
)

// StateConflictError reports an illegal transition with the precise reason,
// e.g. "already approved". Unwraps to ErrStateConflict.
type StateConflictError struct {
	Current   Status
	Attempted Status
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot transition to %s: %s", e.Attempted, e.Reason())
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

// Reason returns the human-readable conflict cause.
func (e *StateConflictError) Reason() string {
	switch e.Current {
	case StatusApproved:
		return "already approved"
	case StatusAutoApproved:
		return "already auto-approved"
	case StatusRejected:
		return "already rejected"
	case StatusExpired:
		return "already expired"
	case StatusPending:
		return "still pending"
	default:
		return fmt.Sprintf("current status is %s", e.Current)
	}
}

// MalformedRuleError carries the authoring-time validation failure detail.
// Unwraps to ErrMalformedRule.
type MalformedRuleError struct {
	Detail string
}

func (e *MalformedRuleError) Error() string {
	return fmt.Sprintf("malformed rule: %s", e.Detail)
}

func (e *MalformedRuleError) Unwrap() error { return ErrMalformedRule }
