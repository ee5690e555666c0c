package approval

import (
	"time"

	"github.com/wardstone/gatekeeper/internal/types"
)

// ExpirationPolicy decides whether pending requests get a deadline, how
// long it is, and what the sweep does when it passes. TTLs may vary per
// trigger; triggers without an override use the default.
type ExpirationPolicy struct {
	// Enabled gates deadline assignment entirely. When false, requests are
	// created with no deadline and the sweep never touches them.
	Enabled bool

	// DefaultTTL applies to triggers without a specific override.
	DefaultTTL time.Duration

	// TriggerTTL overrides the deadline per trigger kind.
	TriggerTTL map[types.Trigger]time.Duration

	// TriggerAction selects expire vs auto_approve per trigger kind.
	// Triggers without an entry expire.
	TriggerAction map[types.Trigger]types.ExpirationAction

	// Retention is how long expired and rejected requests are kept before
	// the cleanup pass removes them. Zero disables cleanup.
	Retention time.Duration
}

// DeadlineFor computes the expiry deadline for a request created at now.
// Returns nil when expiration is disabled or the effective TTL is zero,
// meaning the request never expires.
func (p ExpirationPolicy) DeadlineFor(trigger types.Trigger, now time.Time) *time.Time {
	if !p.Enabled {
		return nil
	}
	ttl := p.DefaultTTL
	if override, ok := p.TriggerTTL[trigger]; ok {
		ttl = override
	}
	if ttl <= 0 {
		return nil
	}
	deadline := now.Add(ttl)
	return &deadline
}

// ActionFor returns the sweep action for an expired request.
func (p ExpirationPolicy) ActionFor(trigger types.Trigger) types.ExpirationAction {
	if action, ok := p.TriggerAction[trigger]; ok && action == types.ExpirationActionAutoApprove {
		return types.ExpirationActionAutoApprove
	}
	return types.ExpirationActionExpire
}
