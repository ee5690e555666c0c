package router

import (
	"context"

	"github.com/wardstone/gatekeeper/internal/rules"
	"github.com/wardstone/gatekeeper/internal/types"
)

// ConditionalPlugin routes on full authored condition trees. It owns no
// field of its own; rules with a tree criteria are its territory, evaluated
// through the shared condition evaluator so leaf semantics match the
// single-field plugins exactly.
type ConditionalPlugin struct {
	source    RuleSource
	evaluator *rules.Evaluator
}

// NewConditionalPlugin creates the condition-tree evaluator.
func NewConditionalPlugin(source RuleSource, evaluator *rules.Evaluator) *ConditionalPlugin {
	return &ConditionalPlugin{source: source, evaluator: evaluator}
}

func (p *ConditionalPlugin) Name() string { return "conditional" }
func (p *ConditionalPlugin) Priority() int { return PriorityConditional }
func (p *ConditionalPlugin) Fields() []string { return nil }
func (p *ConditionalPlugin) Spec() []rules.FieldSpec { return nil }

// Applies is unconditionally true: any item may be judged by a tree.
func (p *ConditionalPlugin) Applies(types.ContentItem, types.RoutingContext) bool { return true }

// EvaluateLeaf is never dispatched to (no owned fields).
func (p *ConditionalPlugin) EvaluateLeaf(types.Condition, types.ContentItem, types.RoutingContext) bool {
	return false
}

func (p *ConditionalPlugin) MatchRules(ctx context.Context, item types.ContentItem, rctx types.RoutingContext) ([]types.RoutingDecision, error) {
	ruleSet, err := p.source.ListEnabled(ctx, rctx.Type)
	if err != nil {
		return nil, err
	}

	var decisions []types.RoutingDecision
	for i := range ruleSet {
		rule := &ruleSet[i]
		if rule.Criteria.Tree == nil {
			continue
		}
		node := types.ConditionNode{Group: rule.Criteria.Tree}
		if p.evaluator.Evaluate(node, item, rctx) {
			decisions = append(decisions, rule.Decision(p.Priority()))
		}
	}
	return decisions, nil
}
