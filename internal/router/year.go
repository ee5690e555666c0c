package router

import (
	"context"

	"github.com/wardstone/gatekeeper/internal/rules"
	"github.com/wardstone/gatekeeper/internal/types"
)

// YearPlugin routes on release year.
type YearPlugin struct {
	source RuleSource
}

// NewYearPlugin creates the year evaluator.
func NewYearPlugin(source RuleSource) *YearPlugin {
	return &YearPlugin{source: source}
}

func (p *YearPlugin) Name() string { return "year" }
func (p *YearPlugin) Priority() int { return PriorityYear }
func (p *YearPlugin) Fields() []string { return []string{"year"} }

func (p *YearPlugin) Spec() []rules.FieldSpec {
	return []rules.FieldSpec{{
		Field:       "year",
		Description: "Release year of the movie or first air year of the show",
		Operators: map[types.Operator]string{
			types.OpEquals:      "Year matches exactly",
			types.OpNotEquals:   "Year does not match",
			types.OpGreaterThan: "Released after the given year",
			types.OpLessThan:    "Released before the given year",
			types.OpIn:          "Year is one of the listed years",
			types.OpNotIn:       "Year is none of the listed years",
			types.OpBetween:     "Year falls in an inclusive range; omit a bound to leave it open",
		},
	}}
}

// Applies requires a resolvable release year.
func (p *YearPlugin) Applies(item types.ContentItem, _ types.RoutingContext) bool {
	return item.Year > 0
}

func (p *YearPlugin) EvaluateLeaf(cond types.Condition, item types.ContentItem, _ types.RoutingContext) bool {
	return rules.CompareScalar(cond.Operator, float64(item.Year), cond.Value)
}

func (p *YearPlugin) MatchRules(ctx context.Context, item types.ContentItem, rctx types.RoutingContext) ([]types.RoutingDecision, error) {
	return matchCriterionRules(ctx, p.source, p, item, rctx)
}
