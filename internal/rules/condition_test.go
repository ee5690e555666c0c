// internal/rules/condition_test.go
package rules

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/types"
)

// boolLeaf resolves the "flag" field to a fixed answer per value. Ignores
// operators so tree tests isolate group and negation semantics.
type boolLeaf struct{}

func (boolLeaf) Fields() []string { return []string{"flag"} }

func (boolLeaf) EvaluateLeaf(cond types.Condition, _ types.ContentItem, _ types.RoutingContext) bool {
	b, _ := cond.Value.(bool)
	return b
}

func leaf(value bool, negate bool) types.ConditionNode {
	return types.ConditionNode{Leaf: &types.Condition{
		Field:    "flag",
		Operator: types.OpEquals,
		Value:    value,
		Negate:   negate,
	}}
}

func group(op types.GroupOperator, negate bool, children ...types.ConditionNode) types.ConditionNode {
	return types.ConditionNode{Group: &types.ConditionGroup{
		Operator:   op,
		Conditions: children,
		Negate:     negate,
	}}
}

func newTestEvaluator() *Evaluator {
	return NewEvaluator(zap.NewNop(), boolLeaf{})
}

func TestEvaluate_GroupSemantics(t *testing.T) {
	e := newTestEvaluator()
	var item types.ContentItem
	var rctx types.RoutingContext

	tests := []struct {
		name string
		node types.ConditionNode
		want bool
	}{
		{"leaf true", leaf(true, false), true},
		{"leaf false", leaf(false, false), false},
		{"negated leaf", leaf(false, true), true},
		{"and all true", group(types.GroupAnd, false, leaf(true, false), leaf(true, false)), true},
		{"and one false", group(types.GroupAnd, false, leaf(true, false), leaf(false, false)), false},
		{"or any true", group(types.GroupOr, false, leaf(false, false), leaf(true, false)), true},
		{"or all false", group(types.GroupOr, false, leaf(false, false), leaf(false, false)), false},
		{"negated and", group(types.GroupAnd, true, leaf(true, false), leaf(false, false)), true},
		{"empty group is non-match", group(types.GroupAnd, false), false},
		{"negated empty group", group(types.GroupAnd, true), true},
		{"empty node", types.ConditionNode{}, false},
		{"nested", group(types.GroupOr, false,
			group(types.GroupAnd, false, leaf(true, false), leaf(true, false)),
			leaf(false, false)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Evaluate(tt.node, item, rctx); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_UnknownFieldIsFalse(t *testing.T) {
	e := newTestEvaluator()
	node := types.ConditionNode{Leaf: &types.Condition{
		Field:    "studio",
		Operator: types.OpEquals,
		Value:    "A24",
	}}

	if e.Evaluate(node, types.ContentItem{}, types.RoutingContext{}) {
		t.Errorf("unknown field = true, want false")
	}

	// Negation still applies to the false leaf result exactly once.
	node.Leaf.Negate = true
	if !e.Evaluate(node, types.ContentItem{}, types.RoutingContext{}) {
		t.Errorf("negated unknown field = false, want true")
	}
}

// genTree produces random condition trees up to a small depth, with negate
// flags sprinkled over leaves and groups.
func genTree(depth int) gopter.Gen {
	leafGen := gopter.CombineGens(gen.Bool(), gen.Bool()).Map(func(vs []any) types.ConditionNode {
		return leaf(vs[0].(bool), vs[1].(bool))
	})
	if depth <= 0 {
		return leafGen
	}

	groupGen := gopter.CombineGens(
		gen.Bool(),
		gen.Bool(),
		gen.SliceOfN(2, genTree(depth-1)),
	).Map(func(vs []any) types.ConditionNode {
		op := types.GroupAnd
		if vs[0].(bool) {
			op = types.GroupOr
		}
		children := vs[2].([]types.ConditionNode)
		return group(op, vs[1].(bool), children...)
	})

	return gen.OneGenOf(leafGen, groupGen)
}

// expected computes the tree result independently of the evaluator,
// applying each node's negation exactly once.
func expected(node types.ConditionNode) bool {
	var raw bool
	var negate bool
	switch {
	case node.Group != nil:
		negate = node.Group.Negate
		if len(node.Group.Conditions) == 0 {
			raw = false
			break
		}
		if node.Group.Operator == types.GroupAnd {
			raw = true
			for _, child := range node.Group.Conditions {
				raw = raw && expected(child)
			}
		} else {
			raw = false
			for _, child := range node.Group.Conditions {
				raw = raw || expected(child)
			}
		}
	case node.Leaf != nil:
		negate = node.Leaf.Negate
		raw, _ = node.Leaf.Value.(bool)
	}
	if negate {
		return !raw
	}
	return raw
}

func TestEvaluate_NegationAppliedExactlyOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	e := newTestEvaluator()

	properties.Property("evaluator agrees with single-negation reference", prop.ForAll(
		func(node types.ConditionNode) bool {
			return e.Evaluate(node, types.ContentItem{}, types.RoutingContext{}) == expected(node)
		},
		genTree(3),
	))

	properties.Property("toggling a root negate flag flips the result", prop.ForAll(
		func(node types.ConditionNode) bool {
			before := e.Evaluate(node, types.ContentItem{}, types.RoutingContext{})

			flipped := node
			switch {
			case flipped.Group != nil:
				g := *flipped.Group
				g.Negate = !g.Negate
				flipped.Group = &g
			case flipped.Leaf != nil:
				l := *flipped.Leaf
				l.Negate = !l.Negate
				flipped.Leaf = &l
			}
			after := e.Evaluate(flipped, types.ContentItem{}, types.RoutingContext{})
			return before != after
		},
		genTree(3),
	))

	properties.TestingRun(t)
}

func TestEvaluate_BetweenBoundSymmetry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("value inside iff not outside either bound", prop.ForAll(
		func(value, lo, hi int) bool {
			if lo > hi {
				lo, hi = hi, lo
			}
			min, max := float64(lo), float64(hi)
			got := CompareScalar(types.OpBetween, value, types.Range{Min: &min, Max: &max})
			want := value >= lo && value <= hi
			return got == want
		},
		gen.IntRange(1800, 2200),
		gen.IntRange(1800, 2200),
		gen.IntRange(1800, 2200),
	))

	properties.TestingRun(t)
}
