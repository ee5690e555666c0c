package router

import (
	"context"

	"github.com/wardstone/gatekeeper/internal/rules"
	"github.com/wardstone/gatekeeper/internal/types"
)

// UserPlugin routes on the requesting user, read from the routing context
// rather than the item.
type UserPlugin struct {
	source RuleSource
}

// NewUserPlugin creates the user evaluator.
func NewUserPlugin(source RuleSource) *UserPlugin {
	return &UserPlugin{source: source}
}

func (p *UserPlugin) Name() string { return "user" }
func (p *UserPlugin) Priority() int { return PriorityUser }
func (p *UserPlugin) Fields() []string { return []string{"user", "userId"} }

func (p *UserPlugin) Spec() []rules.FieldSpec {
	ops := map[types.Operator]string{
		types.OpEquals:    "Requesting user matches the given id or name",
		types.OpNotEquals: "Requesting user differs from the given id or name",
		types.OpIn:        "Requesting user is one of the listed ids or names",
		types.OpNotIn:     "Requesting user is none of the listed ids or names",
	}
	return []rules.FieldSpec{
		{Field: "user", Description: "Identity of the requesting user", Operators: ops},
		{Field: "userId", Description: "Alias of user", Operators: ops},
	}
}

// Applies requires a requesting user on the context.
func (p *UserPlugin) Applies(_ types.ContentItem, rctx types.RoutingContext) bool {
	return rctx.UserID != ""
}

// EvaluateLeaf matches against the user id or display name. Positive
// operators match when either identity matches; negative operators require
// both identities to pass, so "notEquals alice" never matches the user
// whose display name is alice.
func (p *UserPlugin) EvaluateLeaf(cond types.Condition, _ types.ContentItem, rctx types.RoutingContext) bool {
	idMatch := rules.CompareScalar(cond.Operator, rctx.UserID, cond.Value)
	if rctx.UserName == "" {
		return idMatch
	}
	nameMatch := rules.CompareScalar(cond.Operator, rctx.UserName, cond.Value)

	if cond.Operator == types.OpNotEquals || cond.Operator == types.OpNotIn {
		return idMatch && nameMatch
	}
	return idMatch || nameMatch
}

func (p *UserPlugin) MatchRules(ctx context.Context, item types.ContentItem, rctx types.RoutingContext) ([]types.RoutingDecision, error) {
	return matchCriterionRules(ctx, p.source, p, item, rctx)
}
