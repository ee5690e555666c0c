// Package router implements the routing orchestrator and its field
// evaluator plugins.
//
// Each plugin owns one routable attribute: it declares the operators it
// supports (consumed by the authoring surface for validation), decides
// whether it applies to an item, produces candidate decisions from
// persisted rules, and evaluates single conditions inside authored
// condition trees. matchRules and evaluateLeaf are distinct code paths but
// share the operator implementations in internal/rules, so they agree on
// semantics for identical inputs.
package router

import (
	"context"

	"github.com/wardstone/gatekeeper/internal/rules"
	"github.com/wardstone/gatekeeper/internal/types"
)

// Evaluator plugin priorities. Decisions carry their plugin's priority as
// the primary conflict key; the rule's own priority number decides between
// rules evaluated at the same plugin level, higher winning.
const (
	PriorityConditional = 100
	PriorityUser        = 90
	PriorityGenre       = 80
	PriorityYear        = 70
	PriorityLanguage    = 60
)

// RuleSource loads persisted router rules for matching. A data-access
// failure is reported as an error, distinct from zero rules matched.
type RuleSource interface {
	ListEnabled(ctx context.Context, targetType types.ContentType) ([]types.RouterRule, error)
}

// Plugin is the field evaluator contract.
type Plugin interface {
	rules.LeafEvaluator

	// Name identifies the plugin in logs.
	Name() string

	// Priority is the evaluator-level priority stamped on every decision
	// this plugin produces.
	Priority() int

	// Spec describes the plugin's fields and supported operators for the
	// authoring surface.
	Spec() []rules.FieldSpec

	// Applies reports whether the item carries the attribute this plugin
	// judges.
	Applies(item types.ContentItem, rctx types.RoutingContext) bool

	// MatchRules returns candidate decisions from persisted rules whose
	// criterion this plugin's attribute satisfies. A nil slice with a non-nil
	// error means the lookup failed; the orchestrator logs and skips the
	// plugin's contribution.
	MatchRules(ctx context.Context, item types.ContentItem, rctx types.RoutingContext) ([]types.RoutingDecision, error)
}

// matchCriterionRules is the shared matchRules body for single-field
// plugins: load enabled rules for the content type, keep rules whose simple
// criterion is on one of the plugin's fields and satisfied by the item, and
// map each to a decision at the plugin's priority.
func matchCriterionRules(ctx context.Context, source RuleSource, p Plugin, item types.ContentItem, rctx types.RoutingContext) ([]types.RoutingDecision, error) {
	ruleSet, err := source.ListEnabled(ctx, rctx.Type)
	if err != nil {
		return nil, err
	}

	owned := make(map[string]bool, 2)
	for _, f := range p.Fields() {
		owned[f] = true
	}

	var decisions []types.RoutingDecision
	for i := range ruleSet {
		rule := &ruleSet[i]
		c := rule.Criteria.Criterion
		if c == nil || !owned[c.Field] {
			continue
		}
		cond := types.Condition{Field: c.Field, Operator: c.Operator, Value: c.Value}
		if p.EvaluateLeaf(cond, item, rctx) {
			decisions = append(decisions, rule.Decision(p.Priority()))
		}
	}
	return decisions, nil
}
