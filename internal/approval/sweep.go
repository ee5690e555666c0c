package approval

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/types"
)

// sweepLeaseKey is the shared lock for multi-process deployments. The lease
// TTL bounds how long a crashed sweeper blocks the others.
const (
	sweepLeaseKey = "gatekeeper:sweep:lease"
	sweepLeaseTTL = 5 * time.Minute
)

// SweepResult summarizes one expiration pass.
type SweepResult struct {
	Expired      int
	AutoApproved int
	Failed       int
}

// Sweeper periodically resolves pending requests whose deadline has passed.
// Each request is expired or auto-approved per the policy's trigger action.
// Every write goes through the same CAS guard as manual resolution, so a
// sweep racing an admin (or another sweeper) is harmless: whoever loses the
// write simply skips the request.
type Sweeper struct {
	gate   *Gate
	redis  *redis.Client
	logger *zap.Logger

	mu sync.Mutex
}

// NewSweeper creates the expiration sweeper. The redis client is optional;
// when nil, only the in-process lock guards against overlapping sweeps.
func NewSweeper(gate *Gate, redisClient *redis.Client, logger *zap.Logger) *Sweeper {
	return &Sweeper{gate: gate, redis: redisClient, logger: logger}
}

// Sweep runs one expiration pass. Returns ErrSweepInProgress when another
// sweep holds the lock.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	if !s.mu.TryLock() {
		return SweepResult{}, types.ErrSweepInProgress
	}
	defer s.mu.Unlock()

	if s.redis != nil {
		ok, err := s.redis.SetNX(ctx, sweepLeaseKey, s.gate.now().Format(time.RFC3339), sweepLeaseTTL).Result()
		if err != nil {
			// Redis being down must not stop expiration; fall back to the
			// in-process lock alone.
			s.logger.Warn("sweep lease unavailable, proceeding without it", zap.Error(err))
		} else if !ok {
			return SweepResult{}, types.ErrSweepInProgress
		} else {
			defer s.redis.Del(context.WithoutCancel(ctx), sweepLeaseKey)
		}
	}

	return s.sweep(ctx)
}

func (s *Sweeper) sweep(ctx context.Context) (SweepResult, error) {
	now := s.gate.now()
	due, err := s.gate.store.ListExpiredPending(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for i := range due {
		req := &due[i]
		switch s.gate.policy.ActionFor(req.Trigger) {
		case types.ExpirationActionAutoApprove:
			if s.autoApprove(ctx, req) {
				result.AutoApproved++
			} else {
				result.Failed++
			}
		default:
			if s.expire(ctx, req) {
				result.Expired++
			} else {
				result.Failed++
			}
		}
	}

	if result.Expired > 0 || result.AutoApproved > 0 || result.Failed > 0 {
		s.logger.Info("expiration sweep finished",
			zap.Int("expired", result.Expired),
			zap.Int("auto_approved", result.AutoApproved),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

func (s *Sweeper) expire(ctx context.Context, req *types.ApprovalRequest) bool {
	affected, err := s.gate.store.Transition(ctx, req.ID, types.StatusExpired, allowedFrom(types.StatusExpired), nil, nil, s.gate.now())
	if err != nil {
		s.logger.Error("failed to expire request", zap.String("request_id", string(req.ID)), zap.Error(err))
		return false
	}
	if affected == 0 {
		// Resolved between listing and writing; nothing to do.
		return false
	}

	req.Status = types.StatusExpired
	s.gate.notifier.RequestResolved(ctx, req)
	return true
}

// autoApprove flips the request and dispatches its decision. Dispatch
// happens only when this sweeper won the CAS write, so a decision is never
// executed twice.
func (s *Sweeper) autoApprove(ctx context.Context, req *types.ApprovalRequest) bool {
	affected, err := s.gate.store.Transition(ctx, req.ID, types.StatusAutoApproved, allowedFrom(types.StatusAutoApproved), nil, nil, s.gate.now())
	if err != nil {
		s.logger.Error("failed to auto-approve request", zap.String("request_id", string(req.ID)), zap.Error(err))
		return false
	}
	if affected == 0 {
		return false
	}

	req.Status = types.StatusAutoApproved
	s.gate.notifier.RequestResolved(ctx, req)

	if err := s.gate.dispatch(ctx, req.Proposed, req.Ref(), req.UserID); err != nil {
		s.logger.Error("auto-approved request failed to dispatch",
			zap.String("request_id", string(req.ID)),
			zap.Error(err))
	}
	return true
}

// RunRetention deletes expired and rejected requests older than the
// policy's retention period. Returns the number of rows removed.
func (s *Sweeper) RunRetention(ctx context.Context) (int64, error) {
	if s.gate.policy.Retention <= 0 {
		return 0, nil
	}
	cutoff := s.gate.now().Add(-s.gate.policy.Retention)
	removed, err := s.gate.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("retention cleanup removed requests", zap.Int64("removed", removed))
	}
	return removed, nil
}

// Run drives periodic sweeps until the context is cancelled. Retention
// cleanup piggybacks on the same ticker.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && err != types.ErrSweepInProgress {
				s.logger.Error("expiration sweep failed", zap.Error(err))
			}
			if _, err := s.RunRetention(ctx); err != nil {
				s.logger.Error("retention cleanup failed", zap.Error(err))
			}
		}
	}
}
