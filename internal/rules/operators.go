// internal/rules/operators.go
package rules

import (
	"strings"

	"github.com/wardstone/gatekeeper/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Implements the fixed operator vocabulary with shape-aware comparison
 * rules. Semantics are fixed per value shape:
 *
 *   - scalar value  -> equals/notEquals/greaterThan/lessThan/contains
 *   - array value   -> in/notIn (membership, order-independent)
 *   - range value   -> between, inclusive on both ends, absent bound
 *                      treated as unbounded
 *
 * Values of the wrong shape for the chosen operator compare false rather
 * than error, so one bad rule cannot abort evaluation of the others.
 *
 * Numeric comparison handles float64/int/int64 mixing for JSON
 * compatibility. Set attributes (genres) use CompareSet, where equals and
 * contains both mean membership of the rule value in the item's set.
 *
 * Why function-based: operators vary only in the comparison itself, so a
 * switch over the vocabulary stays cleaner than eight single-method
 * implementations of an operator interface.
 */

// CompareScalar applies the operator to a scalar item attribute.
// The attribute may be a string or any numeric type; target shape depends
// on the operator.
func CompareScalar(op types.Operator, actual, target any) bool {
	switch op {
	case types.OpEquals:
		return scalarEqual(actual, target)
	case types.OpNotEquals:
		return !scalarEqual(actual, target)
	case types.OpGreaterThan:
		cmp, ok := compareNumeric(actual, target)
		return ok && cmp > 0
	case types.OpLessThan:
		cmp, ok := compareNumeric(actual, target)
		return ok && cmp < 0
	case types.OpIn:
		return memberOf(actual, target)
	case types.OpNotIn:
		arr, ok := asArray(target)
		if !ok {
			return false
		}
		for _, elem := range arr {
			if scalarEqual(actual, elem) {
				return false
			}
		}
		return true
	case types.OpBetween:
		return inRange(actual, target)
	case types.OpContains:
		return containsSubstring(actual, target)
	default:
		return false
	}
}

// CompareSet applies the operator to a set-valued item attribute such as
// genres. Membership is order-independent; equals and contains both test
// that the target scalar is a member of the set.
func CompareSet(op types.Operator, actual []string, target any) bool {
	switch op {
	case types.OpEquals, types.OpContains:
		s, ok := target.(string)
		if !ok {
			return false
		}
		return setHas(actual, s)
	case types.OpNotEquals:
		s, ok := target.(string)
		if !ok {
			return false
		}
		return !setHas(actual, s)
	case types.OpIn:
		// Any overlap between the set and the target array matches.
		arr, ok := asArray(target)
		if !ok {
			return false
		}
		for _, elem := range arr {
			if s, ok := elem.(string); ok && setHas(actual, s) {
				return true
			}
		}
		return false
	case types.OpNotIn:
		arr, ok := asArray(target)
		if !ok {
			return false
		}
		for _, elem := range arr {
			if s, ok := elem.(string); ok && setHas(actual, s) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// scalarEqual performs equality comparison with numeric type mixing.
func scalarEqual(a, b any) bool {
	if na, oka := toFloat64(a); oka {
		if nb, okb := toFloat64(b); okb {
			return na == nb
		}
		return false
	}
	return a == b
}

// compareNumeric performs three-way numeric comparison.
// Second return is false for incomparable types.
func compareNumeric(a, b any) (int, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	if !oka || !okb {
		return 0, false
	}
	switch {
	case na < nb:
		return -1, true
	case na > nb:
		return 1, true
	default:
		return 0, true
	}
}

// toFloat64 converts value to float64 if it's a numeric type.
// Handles float64, int, int64 from JSON unmarshaling.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// memberOf checks if actual exists in the target array using equality
// semantics.
func memberOf(actual, target any) bool {
	arr, ok := asArray(target)
	if !ok {
		return false
	}
	for _, elem := range arr {
		if scalarEqual(actual, elem) {
			return true
		}
	}
	return false
}

// asArray normalizes the array value shapes produced by JSON decoding and
// by the authoring helpers.
func asArray(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		out := make([]any, len(arr))
		for i, s := range arr {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(arr))
		for i, n := range arr {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(arr))
		for i, n := range arr {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

// inRange checks the between operator: inclusive bounds, absent bound
// unbounded. Non-numeric attributes and non-range targets compare false.
func inRange(actual, target any) bool {
	n, ok := toFloat64(actual)
	if !ok {
		return false
	}
	r, ok := types.AsRange(target)
	if !ok {
		return false
	}
	if r.Min != nil && n < *r.Min {
		return false
	}
	if r.Max != nil && n > *r.Max {
		return false
	}
	return true
}

// containsSubstring checks case-insensitive substring containment for
// string attributes.
func containsSubstring(actual, target any) bool {
	as, ok1 := actual.(string)
	ts, ok2 := target.(string)
	if !ok1 || !ok2 {
		return false
	}
	return strings.Contains(strings.ToLower(as), strings.ToLower(ts))
}

// setHas reports case-insensitive membership in a string set.
func setHas(set []string, s string) bool {
	for _, elem := range set {
		if strings.EqualFold(elem, s) {
			return true
		}
	}
	return false
}
