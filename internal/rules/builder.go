// internal/rules/builder.go
package rules

import (
	"time"

	"github.com/wardstone/gatekeeper/internal/types"
)

/*
 * Authoring helpers for condition trees and rule records.
 *
 * Consumed by the administrative surface; runtime evaluation never calls
 * into here. Builders construct values only; ValidateRule decides whether
 * the result is persistable.
 */

// Cond builds a leaf condition node.
func Cond(field string, op types.Operator, value any) types.ConditionNode {
	return types.ConditionNode{Leaf: &types.Condition{Field: field, Operator: op, Value: value}}
}

// And builds an AND group over the given nodes.
func And(nodes ...types.ConditionNode) types.ConditionNode {
	return types.ConditionNode{Group: &types.ConditionGroup{Operator: types.GroupAnd, Conditions: nodes}}
}

// Or builds an OR group over the given nodes.
func Or(nodes ...types.ConditionNode) types.ConditionNode {
	return types.ConditionNode{Group: &types.ConditionGroup{Operator: types.GroupOr, Conditions: nodes}}
}

// Not returns a copy of the node with its negate flag toggled. Negation is
// stored on the node and resolved exactly once during evaluation.
func Not(node types.ConditionNode) types.ConditionNode {
	switch {
	case node.Group != nil:
		g := *node.Group
		g.Negate = !g.Negate
		return types.ConditionNode{Group: &g}
	case node.Leaf != nil:
		l := *node.Leaf
		l.Negate = !l.Negate
		return types.ConditionNode{Leaf: &l}
	default:
		return node
	}
}

// Between builds an inclusive range value; pass nil for an unbounded side.
func Between(min, max *float64) types.Range {
	return types.Range{Min: min, Max: max}
}

// RuleBuilder assembles a RouterRule record.
type RuleBuilder struct {
	rule types.RouterRule
}

// NewRule starts a rule for the given target instance. Rules start enabled.
func NewRule(name string, targetType types.ContentType, instanceID int64) *RuleBuilder {
	return &RuleBuilder{rule: types.RouterRule{
		ID:         types.NewRuleID(),
		Name:       name,
		TargetType: targetType,
		InstanceID: instanceID,
		Enabled:    true,
	}}
}

// Criterion sets the simple single-field match criteria.
func (b *RuleBuilder) Criterion(field string, op types.Operator, value any) *RuleBuilder {
	b.rule.Criteria = types.RuleCriteria{Criterion: &types.Criterion{Field: field, Operator: op, Value: value}}
	return b
}

// Tree sets a full condition tree as the match criteria. Leaf nodes are
// wrapped into a single-child AND group.
func (b *RuleBuilder) Tree(node types.ConditionNode) *RuleBuilder {
	group := node.Group
	if group == nil {
		group = &types.ConditionGroup{Operator: types.GroupAnd, Conditions: []types.ConditionNode{node}}
	}
	b.rule.Criteria = types.RuleCriteria{Tree: group}
	return b
}

// QualityProfile sets the quality profile applied on the target instance.
func (b *RuleBuilder) QualityProfile(profile string) *RuleBuilder {
	b.rule.QualityProfile = profile
	return b
}

// RootFolder sets the root folder on the target instance.
func (b *RuleBuilder) RootFolder(folder string) *RuleBuilder {
	b.rule.RootFolder = folder
	return b
}

// Tags sets the tag set attached to routed content.
func (b *RuleBuilder) Tags(tags ...string) *RuleBuilder {
	b.rule.Tags = tags
	return b
}

// SearchOnAdd sets whether the instance should search immediately on add.
func (b *RuleBuilder) SearchOnAdd(search bool) *RuleBuilder {
	b.rule.SearchOnAdd = search
	return b
}

// SeasonMonitoring sets the show monitoring mode.
func (b *RuleBuilder) SeasonMonitoring(mode string) *RuleBuilder {
	b.rule.SeasonMonitoring = mode
	return b
}

// MinimumAvailability sets the movie availability threshold.
func (b *RuleBuilder) MinimumAvailability(availability string) *RuleBuilder {
	b.rule.MinimumAvailability = availability
	return b
}

// Order sets the rule priority number; among rules at the same evaluator
// level the higher order takes precedence.
func (b *RuleBuilder) Order(order int) *RuleBuilder {
	b.rule.Order = order
	return b
}

// Enabled toggles the rule.
func (b *RuleBuilder) Enabled(enabled bool) *RuleBuilder {
	b.rule.Enabled = enabled
	return b
}

// RequiresApproval marks decisions from this rule for admin sign-off.
func (b *RuleBuilder) RequiresApproval(required bool) *RuleBuilder {
	b.rule.RequiresApproval = required
	return b
}

// Build validates and returns the rule record.
func (b *RuleBuilder) Build(specs map[string]FieldSpec) (*types.RouterRule, error) {
	now := time.Now().UTC()
	b.rule.CreatedAt = now
	b.rule.UpdatedAt = now

	rule := b.rule
	if err := ValidateRule(&rule, specs); err != nil {
		return nil, err
	}
	return &rule, nil
}
