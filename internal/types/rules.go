package types

/*
 * Domain types for routing rules and condition trees.
 *
 * A condition tree is an owned recursive sum type: a ConditionNode holds
 * either a leaf Condition or a ConditionGroup of child nodes. Cycles are
 * impossible by construction; authoring validation additionally enforces
 * depth and width limits.
 *
 * Negation ownership: Negate flags live on both leaves and groups, but they
 * are applied exactly once, by the evaluator that owns the node. Field
 * plugins return the un-negated leaf result.
 */

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operator is the comparison vocabulary for conditions and rule criteria.
// The valid subset is attribute-dependent; field plugins declare theirs.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpIn          Operator = "in"
	OpNotIn       Operator = "notIn"
	OpBetween     Operator = "between"
	OpContains    Operator = "contains"
)

// GroupOperator combines child results within a ConditionGroup.
type GroupOperator string

const (
	GroupAnd GroupOperator = "and"
	GroupOr  GroupOperator = "or"
)

// Condition is a leaf predicate against one item attribute.
// Value shape depends on Operator: scalar for equals/notEquals/greaterThan/
// lessThan/contains, array for in/notIn, Range for between.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
	Negate   bool     `json:"negate,omitempty"`
}

// ConditionGroup is an internal tree node. A group with zero conditions is
// invalid and rejected at authoring time.
type ConditionGroup struct {
	Operator   GroupOperator   `json:"operator"`
	Conditions []ConditionNode `json:"conditions"`
	Negate     bool            `json:"negate,omitempty"`
}

// ConditionNode is the tagged union over Condition and ConditionGroup.
// Exactly one of Leaf or Group is non-nil.
type ConditionNode struct {
	Leaf  *Condition
	Group *ConditionGroup
}

// MarshalJSON flattens the union: groups serialize with their "conditions"
// key, leaves with their "field" key.
func (n ConditionNode) MarshalJSON() ([]byte, error) {
	switch {
	case n.Group != nil:
		return json.Marshal(n.Group)
	case n.Leaf != nil:
		return json.Marshal(n.Leaf)
	default:
		return nil, fmt.Errorf("condition node has neither leaf nor group")
	}
}

// UnmarshalJSON distinguishes the variants by the presence of a
// "conditions" key.
func (n *ConditionNode) UnmarshalJSON(data []byte) error {
	var probe struct {
		Conditions json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Conditions != nil {
		var g ConditionGroup
		if err := json.Unmarshal(data, &g); err != nil {
			return err
		}
		n.Group = &g
		n.Leaf = nil
		return nil
	}
	var c Condition
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	n.Leaf = &c
	n.Group = nil
	return nil
}

// Range is the value shape for the between operator. At least one bound must
// be present; an absent bound is unbounded on that side. Bounds are
// inclusive.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// AsRange coerces a condition value into a Range. Accepts Range, *Range, and
// the map[string]any shape produced by JSON decoding. Returns false for any
// other shape or when both bounds are absent.
func AsRange(v any) (Range, bool) {
	switch r := v.(type) {
	case Range:
		return r, r.Min != nil || r.Max != nil
	case *Range:
		if r == nil {
			return Range{}, false
		}
		return *r, r.Min != nil || r.Max != nil
	case map[string]any:
		var out Range
		if mv, ok := asFloat(r["min"]); ok {
			out.Min = &mv
		}
		if mv, ok := asFloat(r["max"]); ok {
			out.Max = &mv
		}
		return out, out.Min != nil || out.Max != nil
	default:
		return Range{}, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Criterion is the simple single-field form of a rule's match criteria.
type Criterion struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// RuleCriteria holds either a simple criterion or a full condition tree.
// Exactly one form is set; validation rejects rules with both or neither.
type RuleCriteria struct {
	Criterion *Criterion      `json:"criterion,omitempty"`
	Tree      *ConditionGroup `json:"tree,omitempty"`
}

// RouterRule is the persisted routing policy. Created and edited through the
// authoring surface; read-only to the orchestrator.
type RouterRule struct {
	ID         RuleID       `json:"id"`
	Name       string       `json:"name"`
	TargetType ContentType  `json:"target_type"`
	InstanceID int64        `json:"instance_id"`
	Criteria   RuleCriteria `json:"criteria"`

	QualityProfile      string   `json:"quality_profile,omitempty"`
	RootFolder          string   `json:"root_folder,omitempty"`
	Tags                []string `json:"tags,omitempty"`
	SearchOnAdd         bool     `json:"search_on_add"`
	SeasonMonitoring    string   `json:"season_monitoring,omitempty"`
	MinimumAvailability string   `json:"minimum_availability,omitempty"`

	// Order is the rule's priority number. Among rules of equal evaluator
	// priority the higher order takes precedence; it carries into decisions
	// as RulePriority.
	Order int `json:"order"`

	Enabled          bool `json:"enabled"`
	RequiresApproval bool `json:"requires_approval"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Decision maps the rule's settings to a routing decision at the given
// evaluator priority.
func (r *RouterRule) Decision(priority int) RoutingDecision {
	return RoutingDecision{
		InstanceID:          r.InstanceID,
		InstanceType:        r.TargetType,
		QualityProfile:      r.QualityProfile,
		RootFolder:          r.RootFolder,
		Tags:                r.Tags,
		SearchOnAdd:         r.SearchOnAdd,
		SeasonMonitoring:    r.SeasonMonitoring,
		MinimumAvailability: r.MinimumAvailability,
		Priority:            priority,
		RuleID:              r.ID,
		RulePriority:        r.Order,
		RequiresApproval:    r.RequiresApproval,
	}
}
