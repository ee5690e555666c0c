package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/core/db"
	"github.com/wardstone/gatekeeper/internal/types"
)

// Quota is the usage ledger. One row is recorded per granted request;
// counts over a rolling window decide whether a new request would exceed
// the user's limit.
type Quota struct {
	q      *db.Queries
	logger *zap.Logger
}

// NewQuota creates the quota ledger repository.
func NewQuota(queries *db.Queries, logger *zap.Logger) *Quota {
	return &Quota{q: queries, logger: logger}
}

// RecordGrant appends a ledger entry for a granted request.
func (s *Quota) RecordGrant(ctx context.Context, userID string, contentType types.ContentType, at time.Time) error {
	id := uuid.Must(uuid.NewV7()).String()
	if _, err := s.q.Exec(ctx, "insert-quota-grant", id, userID, string(contentType), at); err != nil {
		return fmt.Errorf("record quota grant: %w", err)
	}
	s.logger.Debug("recorded quota grant",
		zap.String("user_id", userID),
		zap.String("content_type", string(contentType)))
	return nil
}

// CountGrants returns the number of grants for a user and content type
// since the window start.
func (s *Quota) CountGrants(ctx context.Context, userID string, contentType types.ContentType, since time.Time) (int, error) {
	var count int
	if err := s.q.Get(ctx, "count-quota-grants", &count, userID, string(contentType), since); err != nil {
		return 0, fmt.Errorf("count quota grants: %w", err)
	}
	return count, nil
}

// UsageEntry is one user/content-type bucket of ledger activity.
type UsageEntry struct {
	UserID      string            `db:"user_id"`
	ContentType types.ContentType `db:"content_type"`
	Count       int               `db:"count"`
}

// Usage summarizes ledger activity since the window start, grouped by
// user and content type.
func (s *Quota) Usage(ctx context.Context, since time.Time) ([]UsageEntry, error) {
	var entries []UsageEntry
	if err := s.q.Select(ctx, "count-quota-usage", &entries, since); err != nil {
		return nil, fmt.Errorf("summarize quota usage: %w", err)
	}
	return entries, nil
}
