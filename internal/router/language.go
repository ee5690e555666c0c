package router

import (
	"context"
	"strings"

	"github.com/wardstone/gatekeeper/internal/rules"
	"github.com/wardstone/gatekeeper/internal/types"
)

// LanguagePlugin routes on the item's original language code.
type LanguagePlugin struct {
	source RuleSource
}

// NewLanguagePlugin creates the language evaluator.
func NewLanguagePlugin(source RuleSource) *LanguagePlugin {
	return &LanguagePlugin{source: source}
}

func (p *LanguagePlugin) Name() string { return "language" }
func (p *LanguagePlugin) Priority() int { return PriorityLanguage }
func (p *LanguagePlugin) Fields() []string { return []string{"language", "originalLanguage"} }

func (p *LanguagePlugin) Spec() []rules.FieldSpec {
	ops := map[types.Operator]string{
		types.OpEquals:    "Original language matches the given code",
		types.OpNotEquals: "Original language differs from the given code",
		types.OpIn:        "Original language is one of the listed codes",
		types.OpNotIn:     "Original language is none of the listed codes",
	}
	return []rules.FieldSpec{
		{Field: "language", Description: "Original language code of the item", Operators: ops},
		{Field: "originalLanguage", Description: "Alias of language", Operators: ops},
	}
}

// Applies requires a resolvable original language.
func (p *LanguagePlugin) Applies(item types.ContentItem, _ types.RoutingContext) bool {
	return item.Language != ""
}

func (p *LanguagePlugin) EvaluateLeaf(cond types.Condition, item types.ContentItem, _ types.RoutingContext) bool {
	// Language codes compare case-insensitively.
	return rules.CompareScalar(cond.Operator, strings.ToLower(item.Language), lowerValue(cond.Value))
}

func (p *LanguagePlugin) MatchRules(ctx context.Context, item types.ContentItem, rctx types.RoutingContext) ([]types.RoutingDecision, error) {
	return matchCriterionRules(ctx, p.source, p, item, rctx)
}

// lowerValue lowercases scalar string values and string array elements,
// leaving other shapes untouched.
func lowerValue(v any) any {
	switch val := v.(type) {
	case string:
		return strings.ToLower(val)
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = strings.ToLower(s)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			if s, ok := e.(string); ok {
				out[i] = strings.ToLower(s)
			} else {
				out[i] = e
			}
		}
		return out
	default:
		return v
	}
}
