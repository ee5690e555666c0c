package router

import (
	"context"

	"github.com/wardstone/gatekeeper/internal/rules"
	"github.com/wardstone/gatekeeper/internal/types"
)

// GenrePlugin routes on the item's genre set. Membership comparisons are
// case-insensitive and order-independent.
type GenrePlugin struct {
	source RuleSource
}

// NewGenrePlugin creates the genre evaluator.
func NewGenrePlugin(source RuleSource) *GenrePlugin {
	return &GenrePlugin{source: source}
}

func (p *GenrePlugin) Name() string { return "genre" }
func (p *GenrePlugin) Priority() int { return PriorityGenre }
func (p *GenrePlugin) Fields() []string { return []string{"genre", "genres"} }

func (p *GenrePlugin) Spec() []rules.FieldSpec {
	ops := map[types.Operator]string{
		types.OpEquals:    "Genre set contains the given genre",
		types.OpNotEquals: "Genre set does not contain the given genre",
		types.OpContains:  "Genre set contains the given genre",
		types.OpIn:        "Genre set overlaps any of the listed genres",
		types.OpNotIn:     "Genre set overlaps none of the listed genres",
	}
	return []rules.FieldSpec{
		{Field: "genre", Description: "Genres attached to the item", Operators: ops},
		{Field: "genres", Description: "Alias of genre", Operators: ops},
	}
}

// Applies requires at least one genre on the item.
func (p *GenrePlugin) Applies(item types.ContentItem, _ types.RoutingContext) bool {
	return len(item.Genres) > 0
}

func (p *GenrePlugin) EvaluateLeaf(cond types.Condition, item types.ContentItem, _ types.RoutingContext) bool {
	return rules.CompareSet(cond.Operator, item.Genres, cond.Value)
}

func (p *GenrePlugin) MatchRules(ctx context.Context, item types.ContentItem, rctx types.RoutingContext) ([]types.RoutingDecision, error) {
	return matchCriterionRules(ctx, p.source, p, item, rctx)
}
