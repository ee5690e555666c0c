package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/types"
)

func newSweeper(h *gateHarness) *Sweeper {
	return NewSweeper(h.gate, nil, zap.NewNop())
}

func TestSweep_ExpiresDueRequests(t *testing.T) {
	h := newHarness(t, defaultPolicy(), decision(1, true))
	held := submitHeld(t, h)
	s := newSweeper(h)

	// Before the deadline nothing is due.
	result, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result != (SweepResult{}) {
		t.Fatalf("result before deadline = %+v, want zero", result)
	}

	h.now = h.now.Add(73 * time.Hour)
	result, err = s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Expired != 1 || result.AutoApproved != 0 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 1 expired", result)
	}

	req, err := h.gate.Get(context.Background(), held.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if req.Status != types.StatusExpired {
		t.Errorf("Status = %s, want expired", req.Status)
	}
	if h.executor.callCount() != 0 {
		t.Errorf("executor calls = %d, want 0 for expiration", h.executor.callCount())
	}
	if h.notifier.resolved != 1 {
		t.Errorf("resolved notifications = %d, want 1", h.notifier.resolved)
	}

	// A second pass finds nothing: expiration is idempotent.
	result, err = s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if result != (SweepResult{}) {
		t.Errorf("second sweep result = %+v, want zero", result)
	}
}

func TestSweep_AutoApproveDispatchesExactlyOnce(t *testing.T) {
	policy := defaultPolicy()
	policy.TriggerAction = map[types.Trigger]types.ExpirationAction{
		types.TriggerRouterRule: types.ExpirationActionAutoApprove,
	}
	h := newHarness(t, policy, decision(1, true))
	held := submitHeld(t, h)
	s := newSweeper(h)

	h.now = h.now.Add(73 * time.Hour)
	result, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.AutoApproved != 1 || result.Expired != 0 {
		t.Fatalf("result = %+v, want 1 auto-approved", result)
	}

	req, err := h.gate.Get(context.Background(), held.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if req.Status != types.StatusAutoApproved {
		t.Errorf("Status = %s, want auto_approved", req.Status)
	}
	if h.executor.callCount() != 1 {
		t.Errorf("executor calls = %d, want 1", h.executor.callCount())
	}
	if h.recorder.grants != 1 {
		t.Errorf("quota grants = %d, want 1", h.recorder.grants)
	}

	if _, err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if h.executor.callCount() != 1 {
		t.Errorf("executor calls after second sweep = %d, want still 1", h.executor.callCount())
	}
}

func TestSweep_NilDeadlineNeverTouched(t *testing.T) {
	h := newHarness(t, ExpirationPolicy{Enabled: false}, decision(1, true))
	held := submitHeld(t, h)
	s := newSweeper(h)

	h.now = h.now.Add(1000 * time.Hour)
	result, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result != (SweepResult{}) {
		t.Fatalf("result = %+v, want zero with expiration disabled", result)
	}

	req, err := h.gate.Get(context.Background(), held.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if req.Status != types.StatusPending {
		t.Errorf("Status = %s, want still pending", req.Status)
	}
}

// raceStore resolves every listed request behind the sweeper's back,
// simulating an admin (or competing sweeper) winning the write between the
// listing and the transition.
type raceStore struct {
	*memStore
}

func (s *raceStore) ListExpiredPending(ctx context.Context, now time.Time) ([]types.ApprovalRequest, error) {
	due, err := s.memStore.ListExpiredPending(ctx, now)
	if err != nil {
		return nil, err
	}
	by := "racer"
	for i := range due {
		if _, err := s.memStore.Transition(ctx, due[i].ID, types.StatusApproved, []types.Status{types.StatusPending}, &by, nil, now); err != nil {
			return nil, err
		}
	}
	return due, nil
}

func TestSweep_LostRaceCountsFailed(t *testing.T) {
	h := newHarness(t, defaultPolicy(), decision(1, true))
	held := submitHeld(t, h)

	racing := &raceStore{memStore: h.store}
	gate := NewGate(racing, h.executor, h.recorder, h.notifier, defaultPolicy(), zap.NewNop(),
		WithClock(func() time.Time { return h.now }))
	s := NewSweeper(gate, nil, zap.NewNop())

	h.now = h.now.Add(73 * time.Hour)
	result, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Failed != 1 || result.Expired != 0 {
		t.Fatalf("result = %+v, want 1 failed", result)
	}

	req, err := gate.Get(context.Background(), held.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if req.Status != types.StatusApproved {
		t.Errorf("Status = %s, want the racer's approved to stand", req.Status)
	}
}

func TestSweep_InProgress(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	s := newSweeper(h)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.Sweep(context.Background())
	if !errors.Is(err, types.ErrSweepInProgress) {
		t.Fatalf("Sweep() error = %v, want ErrSweepInProgress", err)
	}
}

func TestRunRetention_RemovesOldTerminalRequests(t *testing.T) {
	h := newHarness(t, defaultPolicy(), decision(1, true))
	held := submitHeld(t, h)
	s := newSweeper(h)

	h.now = h.now.Add(73 * time.Hour)
	if _, err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	// Still inside the retention window.
	removed, err := s.RunRetention(context.Background())
	if err != nil {
		t.Fatalf("RunRetention() error = %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0 inside the window", removed)
	}

	h.now = h.now.Add(31 * 24 * time.Hour)
	removed, err = s.RunRetention(context.Background())
	if err != nil {
		t.Fatalf("RunRetention() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := h.gate.Get(context.Background(), held.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get after retention error = %v, want ErrNotFound", err)
	}
}

func TestRunRetention_DisabledIsNoop(t *testing.T) {
	policy := defaultPolicy()
	policy.Retention = 0
	h := newHarness(t, policy, decision(1, true))
	submitHeld(t, h)
	s := newSweeper(h)

	h.now = h.now.Add(73 * time.Hour)
	if _, err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	h.now = h.now.Add(365 * 24 * time.Hour)
	removed, err := s.RunRetention(context.Background())
	if err != nil {
		t.Fatalf("RunRetention() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0 with retention disabled", removed)
	}
}
