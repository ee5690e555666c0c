package approval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/store"
	"github.com/wardstone/gatekeeper/internal/types"
)

// Store is the persistence surface the gate needs. *store.Approvals
// satisfies it.
type Store interface {
	Create(ctx context.Context, req *types.ApprovalRequest) error
	Get(ctx context.Context, id types.RequestID) (*types.ApprovalRequest, error)
	List(ctx context.Context, filter store.RequestFilter) ([]types.ApprovalRequest, error)
	Transition(ctx context.Context, id types.RequestID, to types.Status, from []types.Status, approvedBy, notes *string, now time.Time) (int64, error)
	UpdateProposed(ctx context.Context, id types.RequestID, decision types.RoutingDecision, now time.Time) (int64, error)
	ListExpiredPending(ctx context.Context, now time.Time) ([]types.ApprovalRequest, error)
	Delete(ctx context.Context, id types.RequestID) error
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[types.Status]int, error)
}

// Executor hands an approved decision to the downstream acquisition
// pipeline. Execution failure never rolls back the status change that
// preceded it.
type Executor interface {
	Execute(ctx context.Context, decision types.RoutingDecision, content types.ContentRef) error
}

// Recorder appends quota ledger entries when a request is dispatched.
type Recorder interface {
	Record(ctx context.Context, userID string, contentType types.ContentType, at time.Time) error
}

// Notifier publishes lifecycle events. Implementations must not block the
// caller on delivery problems; failures are the notifier's to log.
type Notifier interface {
	RequestCreated(ctx context.Context, req *types.ApprovalRequest)
	RequestResolved(ctx context.Context, req *types.ApprovalRequest)
}

// Routes resolves an item to its routing decisions. *router.Router
// satisfies it.
type Routes interface {
	Route(ctx context.Context, item types.ContentItem, rctx types.RoutingContext) []types.RoutingDecision
}

// QuotaChecker answers the quota question at submission time.
type QuotaChecker interface {
	WouldExceed(ctx context.Context, userID string, contentType types.ContentType, now time.Time) (bool, error)
}

// CriteriaEvaluator evaluates the configured approval criteria tree.
// *rules.Evaluator satisfies it.
type CriteriaEvaluator interface {
	Evaluate(node types.ConditionNode, item types.ContentItem, rctx types.RoutingContext) bool
}

// Gate owns the approval request lifecycle.
type Gate struct {
	store    Store
	executor Executor
	recorder Recorder
	notifier Notifier
	policy   ExpirationPolicy
	logger   *zap.Logger

	router   Routes
	quota    QuotaChecker
	criteria *types.ConditionGroup
	eval     CriteriaEvaluator

	now func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source. Tests use this to pin deadlines.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithRouter wires the routing orchestrator, enabling Submit.
func WithRouter(r Routes) Option {
	return func(g *Gate) { g.router = r }
}

// WithQuota wires the quota checker consulted at submission time.
func WithQuota(q QuotaChecker) Option {
	return func(g *Gate) { g.quota = q }
}

// WithApprovalCriteria wires a condition tree that, when matched by an
// item, defers its decisions for approval regardless of rule flags.
func WithApprovalCriteria(tree *types.ConditionGroup, eval CriteriaEvaluator) Option {
	return func(g *Gate) {
		g.criteria = tree
		g.eval = eval
	}
}

// NewGate creates the approval gate.
func NewGate(st Store, executor Executor, recorder Recorder, notifier Notifier, policy ExpirationPolicy, logger *zap.Logger, opts ...Option) *Gate {
	g := &Gate{
		store:    st,
		executor: executor,
		recorder: recorder,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SubmitResult reports what Submit did: decisions dispatched immediately
// and requests created for decisions held at the gate.
type SubmitResult struct {
	Executed []types.RoutingDecision  `json:"executed"`
	Held     []*types.ApprovalRequest `json:"held"`
}

// Submit routes the item and sends each decision through trigger
// assessment. Triggers are consulted in a fixed order: quota, the rule's
// own approval flag, the request's manual flag, then the configured
// content criteria. The first one that fires holds the decision as a
// pending request; decisions with no trigger dispatch immediately.
func (g *Gate) Submit(ctx context.Context, item types.ContentItem, rctx types.RoutingContext) (*SubmitResult, error) {
	if g.router == nil {
		return nil, fmt.Errorf("gate has no router wired")
	}

	decisions := g.router.Route(ctx, item, rctx)
	result := &SubmitResult{}

	for _, decision := range decisions {
		trigger, reason, err := g.assessTriggers(ctx, item, rctx, decision)
		if err != nil {
			return nil, err
		}

		if trigger == "" {
			if err := g.dispatch(ctx, decision, item.Ref(), rctx.UserID); err != nil {
				return nil, err
			}
			result.Executed = append(result.Executed, decision)
			continue
		}

		req, err := g.hold(ctx, item, rctx, decision, trigger, reason)
		if err != nil {
			return nil, err
		}
		result.Held = append(result.Held, req)
	}

	return result, nil
}

// assessTriggers returns the first trigger requiring approval, or empty
// when the decision may dispatch immediately.
func (g *Gate) assessTriggers(ctx context.Context, item types.ContentItem, rctx types.RoutingContext, decision types.RoutingDecision) (types.Trigger, string, error) {
	if g.quota != nil && rctx.UserID != "" {
		exceeded, err := g.quota.WouldExceed(ctx, rctx.UserID, item.Type, g.now())
		if err != nil {
			return "", "", fmt.Errorf("quota check: %w", err)
		}
		if exceeded {
			return types.TriggerQuotaExceeded, fmt.Sprintf("user %s exceeded the %s quota", rctx.UserID, item.Type), nil
		}
	}

	if decision.RequiresApproval {
		return types.TriggerRouterRule, fmt.Sprintf("rule %s requires approval", decision.RuleID), nil
	}

	if rctx.RequiresApproval {
		return types.TriggerManualFlag, "request flagged for manual approval", nil
	}

	if g.criteria != nil && g.eval != nil {
		if g.eval.Evaluate(types.ConditionNode{Group: g.criteria}, item, rctx) {
			return types.TriggerContentCriteria, "content matched the approval criteria", nil
		}
	}

	return "", "", nil
}

// hold creates a pending request holding the proposed decision. The expiry
// deadline is fixed at creation from the policy in force; later policy
// changes do not retouch existing requests.
func (g *Gate) hold(ctx context.Context, item types.ContentItem, rctx types.RoutingContext, decision types.RoutingDecision, trigger types.Trigger, reason string) (*types.ApprovalRequest, error) {
	now := g.now()
	req := &types.ApprovalRequest{
		ID:        types.NewRequestID(),
		UserID:    rctx.UserID,
		UserName:  rctx.UserName,
		Title:     item.Title,
		Type:      item.Type,
		GUIDs:     item.GUIDs,
		Trigger:   trigger,
		Reason:    reason,
		Status:    types.StatusPending,
		Proposed:  decision,
		ExpiresAt: g.policy.DeadlineFor(trigger, now),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := g.store.Create(ctx, req); err != nil {
		return nil, err
	}

	g.notifier.RequestCreated(ctx, req)
	return req, nil
}

// Get retrieves a request by id.
func (g *Gate) Get(ctx context.Context, id types.RequestID) (*types.ApprovalRequest, error) {
	return g.store.Get(ctx, id)
}

// List retrieves requests, optionally filtered by status or user.
func (g *Gate) List(ctx context.Context, filter store.RequestFilter) ([]types.ApprovalRequest, error) {
	return g.store.List(ctx, filter)
}

// Approve resolves a request to approved and dispatches its stored
// decision. Legal from pending and from rejected (reversal). On execution
// failure the request stays approved and the error wraps
// types.ErrExecutionFailed; callers surface it without retrying the
// transition.
func (g *Gate) Approve(ctx context.Context, id types.RequestID, approvedBy string, notes *string) (*types.ApprovalRequest, error) {
	req, err := g.transition(ctx, id, types.StatusApproved, &approvedBy, notes)
	if err != nil {
		return nil, err
	}

	g.logger.Info("approved request",
		zap.String("request_id", string(id)),
		zap.String("approved_by", approvedBy))
	g.notifier.RequestResolved(ctx, req)

	if err := g.dispatch(ctx, req.Proposed, req.Ref(), req.UserID); err != nil {
		return req, err
	}
	return req, nil
}

// Reject resolves a pending request to rejected. The proposed decision is
// retained so a later reversal can still dispatch it.
func (g *Gate) Reject(ctx context.Context, id types.RequestID, rejectedBy string, notes *string) (*types.ApprovalRequest, error) {
	req, err := g.transition(ctx, id, types.StatusRejected, &rejectedBy, notes)
	if err != nil {
		return nil, err
	}

	g.logger.Info("rejected request",
		zap.String("request_id", string(id)),
		zap.String("rejected_by", rejectedBy))
	g.notifier.RequestResolved(ctx, req)
	return req, nil
}

// EditProposedRouting replaces the stored decision of a pending request.
// The replacement is wholesale; fields absent from the new decision are
// gone. Denied once the request has left pending.
func (g *Gate) EditProposedRouting(ctx context.Context, id types.RequestID, decision types.RoutingDecision) (*types.ApprovalRequest, error) {
	affected, err := g.store.UpdateProposed(ctx, id, decision, g.now())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		current, err := g.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, conflict(current.Status, types.StatusPending)
	}
	return g.store.Get(ctx, id)
}

// Delete removes a request entirely, from any status.
func (g *Gate) Delete(ctx context.Context, id types.RequestID) error {
	return g.store.Delete(ctx, id)
}

// Stats returns request counts per status.
func (g *Gate) Stats(ctx context.Context) (map[types.Status]int, error) {
	return g.store.CountByStatus(ctx)
}

// transition performs the CAS write and classifies a zero-row outcome as
// either not-found or a state conflict against the actual current status.
func (g *Gate) transition(ctx context.Context, id types.RequestID, to types.Status, by, notes *string) (*types.ApprovalRequest, error) {
	affected, err := g.store.Transition(ctx, id, to, allowedFrom(to), by, notes, g.now())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		current, err := g.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, conflict(current.Status, to)
	}
	return g.store.Get(ctx, id)
}

// dispatch executes a decision and records the quota grant.
func (g *Gate) dispatch(ctx context.Context, decision types.RoutingDecision, content types.ContentRef, userID string) error {
	if err := g.executor.Execute(ctx, decision, content); err != nil {
		g.logger.Error("execution failed",
			zap.Int64("instance_id", decision.InstanceID),
			zap.String("title", content.Title),
			zap.Error(err))
		return fmt.Errorf("dispatch %q: %w: %v", content.Title, types.ErrExecutionFailed, err)
	}

	if g.recorder != nil && userID != "" {
		if err := g.recorder.Record(ctx, userID, content.Type, g.now()); err != nil {
			// The content is already on its way; a ledger miss only loosens
			// the quota window.
			g.logger.Warn("failed to record quota grant",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
	return nil
}
