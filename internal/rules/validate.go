// internal/rules/validate.go
package rules

import (
	"fmt"

	"github.com/wardstone/gatekeeper/internal/types"
)

/*
 * Authoring-time rule validation.
 *
 * Enforcing shape and vocabulary during authoring moves error detection to
 * rule creation time rather than evaluation time: a malformed rule is
 * rejected before persistence and never silently skipped later. Runtime
 * evaluation still degrades to false on bad nodes as a second line of
 * defense, but nothing that passes ValidateRule should reach that path.
 */

// FieldSpec describes one routable field for the authoring surface: which
// operators it supports, each with a human-readable description.
type FieldSpec struct {
	Field       string                    `json:"field"`
	Description string                    `json:"description"`
	Operators   map[types.Operator]string `json:"operators"`
}

// ValidateRule checks a router rule against the registered field specs.
// Returns a MalformedRuleError (unwrapping to ErrMalformedRule) on the
// first violation found.
func ValidateRule(rule *types.RouterRule, specs map[string]FieldSpec) error {
	if rule.Name == "" {
		return malformed("name is required")
	}
	if !rule.TargetType.Valid() {
		return malformed(fmt.Sprintf("unknown target type %q", rule.TargetType))
	}
	if rule.InstanceID <= 0 {
		return malformed("instance_id must be positive")
	}
	if len(rule.Tags) > types.MaxTagCount {
		return malformed(fmt.Sprintf("too many tags (max %d)", types.MaxTagCount))
	}

	hasCriterion := rule.Criteria.Criterion != nil
	hasTree := rule.Criteria.Tree != nil
	if hasCriterion == hasTree {
		return malformed("exactly one of criterion or tree must be set")
	}

	if hasCriterion {
		c := rule.Criteria.Criterion
		return validateComparison(c.Field, c.Operator, c.Value, specs)
	}

	node := types.ConditionNode{Group: rule.Criteria.Tree}
	return validateNode(node, specs, 1)
}

// ValidateNode checks a standalone condition tree, e.g. the configured
// content-criteria tree.
func ValidateNode(node types.ConditionNode, specs map[string]FieldSpec) error {
	return validateNode(node, specs, 1)
}

func validateNode(node types.ConditionNode, specs map[string]FieldSpec, depth int) error {
	if depth > types.MaxConditionDepth {
		return malformed(fmt.Sprintf("condition tree exceeds max depth %d", types.MaxConditionDepth))
	}

	switch {
	case node.Group != nil:
		g := node.Group
		if g.Operator != types.GroupAnd && g.Operator != types.GroupOr {
			return malformed(fmt.Sprintf("unknown group operator %q", g.Operator))
		}
		if len(g.Conditions) == 0 {
			return malformed("condition group has no conditions")
		}
		if len(g.Conditions) > types.MaxGroupConditions {
			return malformed(fmt.Sprintf("condition group exceeds max width %d", types.MaxGroupConditions))
		}
		for _, child := range g.Conditions {
			if err := validateNode(child, specs, depth+1); err != nil {
				return err
			}
		}
		return nil
	case node.Leaf != nil:
		return validateComparison(node.Leaf.Field, node.Leaf.Operator, node.Leaf.Value, specs)
	default:
		return malformed("condition node has neither leaf nor group")
	}
}

// validateComparison checks field vocabulary, operator support, and value
// shape for one comparison.
func validateComparison(field string, op types.Operator, value any, specs map[string]FieldSpec) error {
	spec, ok := specs[field]
	if !ok {
		return malformed(fmt.Sprintf("unknown field %q", field))
	}
	if _, ok := spec.Operators[op]; !ok {
		return malformed(fmt.Sprintf("operator %q not supported for field %q", op, field))
	}

	switch op {
	case types.OpIn, types.OpNotIn:
		arr, ok := asArray(value)
		if !ok {
			return malformed(fmt.Sprintf("operator %q requires an array value", op))
		}
		if len(arr) == 0 {
			return malformed(fmt.Sprintf("operator %q requires a non-empty array", op))
		}
		if len(arr) > types.MaxInOperatorValues {
			return malformed(fmt.Sprintf("operator %q exceeds max %d values", op, types.MaxInOperatorValues))
		}
	case types.OpBetween:
		if _, ok := types.AsRange(value); !ok {
			return malformed("operator \"between\" requires a range with at least one bound")
		}
	default:
		// Scalar operators.
		switch value.(type) {
		case string, int, int64, float64, bool:
		default:
			return malformed(fmt.Sprintf("operator %q requires a scalar value", op))
		}
	}
	return nil
}

func malformed(detail string) error {
	return &types.MalformedRuleError{Detail: detail}
}
