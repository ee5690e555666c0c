// Package quota enforces per-user request limits over a rolling window.
package quota

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/store"
	"github.com/wardstone/gatekeeper/internal/types"
)

// Limits configures per-user caps. A zero limit means unlimited for that
// content type.
type Limits struct {
	MovieLimit int
	ShowLimit  int
	Window     time.Duration
}

// Checker answers whether a new request would exceed a user's quota and
// records grants when decisions are dispatched.
type Checker struct {
	ledger *store.Quota
	limits Limits
	logger *zap.Logger
}

// NewChecker creates the quota checker.
func NewChecker(ledger *store.Quota, limits Limits, logger *zap.Logger) *Checker {
	return &Checker{ledger: ledger, limits: limits, logger: logger}
}

func (c *Checker) limitFor(contentType types.ContentType) int {
	if contentType == types.ContentTypeShow {
		return c.limits.ShowLimit
	}
	return c.limits.MovieLimit
}

// WouldExceed reports whether granting one more request of the given type
// would push the user past their limit.
func (c *Checker) WouldExceed(ctx context.Context, userID string, contentType types.ContentType, now time.Time) (bool, error) {
	limit := c.limitFor(contentType)
	if limit <= 0 {
		return false, nil
	}

	used, err := c.ledger.CountGrants(ctx, userID, contentType, now.Add(-c.limits.Window))
	if err != nil {
		return false, err
	}
	if used >= limit {
		c.logger.Debug("quota exceeded",
			zap.String("user_id", userID),
			zap.String("content_type", string(contentType)),
			zap.Int("used", used),
			zap.Int("limit", limit))
		return true, nil
	}
	return false, nil
}

// Record appends a ledger entry for a dispatched decision.
func (c *Checker) Record(ctx context.Context, userID string, contentType types.ContentType, at time.Time) error {
	return c.ledger.RecordGrant(ctx, userID, contentType, at)
}

// Usage summarizes ledger activity inside the current window.
func (c *Checker) Usage(ctx context.Context, now time.Time) ([]store.UsageEntry, error) {
	return c.ledger.Usage(ctx, now.Add(-c.limits.Window))
}
