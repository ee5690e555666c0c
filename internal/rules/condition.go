// internal/rules/condition.go
package rules

import (
	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/types"
)

/*
 * Condition tree evaluation.
 *
 * Evaluates a ConditionNode against an item and routing context. Groups
 * combine child results with AND (all true) or OR (any true); leaves
 * dispatch to the field evaluator registered for the condition's field.
 *
 * Negation ownership: Evaluate computes the raw leaf/group result first and
 * applies the node's Negate flag exactly once, as the owner of that node.
 * Leaf evaluators return the un-negated result; a parent group never
 * re-applies a child's negation. Any change here must keep a single
 * negation owner or double-negation bugs appear silently.
 *
 * Failure containment: an unknown field, an operator the field does not
 * support, or a malformed value makes the node evaluate false rather than
 * error, so a single bad rule does not abort evaluation of the others.
 */

// LeafEvaluator evaluates a single condition for the fields it owns.
// Implementations return the raw result; negation is resolved by the
// condition evaluator.
type LeafEvaluator interface {
	// Fields names the attributes this evaluator owns.
	Fields() []string

	// EvaluateLeaf applies the condition's operator and value against the
	// item/context attribute, ignoring the condition's Negate flag.
	EvaluateLeaf(cond types.Condition, item types.ContentItem, rctx types.RoutingContext) bool
}

// Evaluator walks condition trees, dispatching leaves to registered field
// evaluators.
type Evaluator struct {
	leaves map[string]LeafEvaluator
	logger *zap.Logger
}

// NewEvaluator builds an evaluator over the given leaf evaluators. Later
// registrations do not override earlier ones for the same field.
func NewEvaluator(logger *zap.Logger, evaluators ...LeafEvaluator) *Evaluator {
	leaves := make(map[string]LeafEvaluator)
	for _, ev := range evaluators {
		for _, field := range ev.Fields() {
			if _, exists := leaves[field]; !exists {
				leaves[field] = ev
			}
		}
	}
	return &Evaluator{leaves: leaves, logger: logger}
}

// Evaluate returns whether the node matches the item. The node's Negate
// flag is applied here, exactly once.
func (e *Evaluator) Evaluate(node types.ConditionNode, item types.ContentItem, rctx types.RoutingContext) bool {
	raw, negate := e.raw(node, item, rctx)
	if negate {
		return !raw
	}
	return raw
}

// raw computes the un-negated result and reports the node's negate flag.
func (e *Evaluator) raw(node types.ConditionNode, item types.ContentItem, rctx types.RoutingContext) (bool, bool) {
	switch {
	case node.Group != nil:
		return e.evaluateGroup(node.Group, item, rctx), node.Group.Negate
	case node.Leaf != nil:
		return e.evaluateLeaf(node.Leaf, item, rctx), node.Leaf.Negate
	default:
		return false, false
	}
}

// evaluateGroup combines child results. Children own their negation: each
// recursive Evaluate call resolves the child's flag, and this group only
// combines the already-resolved results.
func (e *Evaluator) evaluateGroup(group *types.ConditionGroup, item types.ContentItem, rctx types.RoutingContext) bool {
	if len(group.Conditions) == 0 {
		// Invalid by authoring rules; treated as non-match at runtime.
		return false
	}

	switch group.Operator {
	case types.GroupAnd:
		for _, child := range group.Conditions {
			if !e.Evaluate(child, item, rctx) {
				return false
			}
		}
		return true
	case types.GroupOr:
		for _, child := range group.Conditions {
			if e.Evaluate(child, item, rctx) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (e *Evaluator) evaluateLeaf(cond *types.Condition, item types.ContentItem, rctx types.RoutingContext) bool {
	ev, ok := e.leaves[cond.Field]
	if !ok {
		e.logger.Debug("no evaluator registered for condition field",
			zap.String("field", cond.Field))
		return false
	}
	return ev.EvaluateLeaf(*cond, item, rctx)
}
