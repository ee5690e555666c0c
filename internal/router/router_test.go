package router

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/types"
)

// memSource serves rules from memory, optionally failing to simulate a
// data-access outage.
type memSource struct {
	rules []types.RouterRule
	err   error
}

func (s *memSource) ListEnabled(_ context.Context, targetType types.ContentType) ([]types.RouterRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []types.RouterRule
	for _, r := range s.rules {
		if r.TargetType == targetType && r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func yearRule(name string, instanceID int64, op types.Operator, value any, order int) types.RouterRule {
	return types.RouterRule{
		ID:         types.NewRuleID(),
		Name:       name,
		TargetType: types.ContentTypeMovie,
		InstanceID: instanceID,
		Criteria:   types.RuleCriteria{Criterion: &types.Criterion{Field: "year", Operator: op, Value: value}},
		Order:      order,
		Enabled:    true,
	}
}

func genreRule(name string, instanceID int64, op types.Operator, value any, order int) types.RouterRule {
	r := yearRule(name, instanceID, op, value, order)
	r.Criteria = types.RuleCriteria{Criterion: &types.Criterion{Field: "genre", Operator: op, Value: value}}
	return r
}

func newTestRouter(source RuleSource) *Router {
	plugins, _ := DefaultRegistry(zap.NewNop(), source)
	return New(zap.NewNop(), plugins)
}

func movie(title string, year int, genres ...string) types.ContentItem {
	return types.ContentItem{
		GUIDs:  []string{"imdb:" + title},
		Title:  title,
		Type:   types.ContentTypeMovie,
		Year:   year,
		Genres: genres,
	}
}

var movieCtx = types.RoutingContext{Type: types.ContentTypeMovie, UserID: "u1"}

func TestRoute_NoRulesNoDecisions(t *testing.T) {
	r := newTestRouter(&memSource{})
	decisions := r.Route(context.Background(), movie("Heat", 1995), movieCtx)
	if len(decisions) != 0 {
		t.Fatalf("decisions = %d, want 0", len(decisions))
	}
}

func TestRoute_SingleMatch(t *testing.T) {
	source := &memSource{rules: []types.RouterRule{
		yearRule("80s", 2, types.OpBetween, types.Range{Min: fptr(1980), Max: fptr(1989)}, 0),
	}}
	r := newTestRouter(source)

	decisions := r.Route(context.Background(), movie("Aliens", 1986), movieCtx)
	if len(decisions) != 1 {
		t.Fatalf("decisions = %d, want 1", len(decisions))
	}
	if decisions[0].InstanceID != 2 {
		t.Errorf("InstanceID = %d, want 2", decisions[0].InstanceID)
	}
	if decisions[0].Priority != PriorityYear {
		t.Errorf("Priority = %d, want %d", decisions[0].Priority, PriorityYear)
	}
}

// Two rules on different plugins match the same item for different
// instances: only the higher evaluator priority survives, regardless of
// rule order.
func TestRoute_HigherPriorityWinsAcrossInstances(t *testing.T) {
	source := &memSource{rules: []types.RouterRule{
		yearRule("by year", 2, types.OpEquals, 1985, 0),
		genreRule("by genre", 5, types.OpEquals, "Action", 10),
	}}
	r := newTestRouter(source)

	decisions := r.Route(context.Background(), movie("Commando", 1985, "Action"), movieCtx)
	if len(decisions) != 1 {
		t.Fatalf("decisions = %d, want 1", len(decisions))
	}
	if decisions[0].InstanceID != 5 {
		t.Errorf("InstanceID = %d, want 5 (genre outranks year)", decisions[0].InstanceID)
	}
	if decisions[0].Priority != PriorityGenre {
		t.Errorf("Priority = %d, want %d", decisions[0].Priority, PriorityGenre)
	}
}

// Equal-priority rules for different instances both survive: synced
// instances are authored at the same priority level.
func TestRoute_EqualPrioritySyncedInstances(t *testing.T) {
	source := &memSource{rules: []types.RouterRule{
		yearRule("main", 1, types.OpGreaterThan, 1980, 10),
		yearRule("backup", 4, types.OpGreaterThan, 1980, 10),
	}}
	r := newTestRouter(source)

	decisions := r.Route(context.Background(), movie("Heat", 1995), movieCtx)
	if len(decisions) != 2 {
		t.Fatalf("decisions = %d, want 2", len(decisions))
	}
	// Deterministic order: ascending instance id within a priority level.
	if decisions[0].InstanceID != 1 || decisions[1].InstanceID != 4 {
		t.Errorf("instances = [%d, %d], want [1, 4]", decisions[0].InstanceID, decisions[1].InstanceID)
	}
}

// Two rules on the same plugin target the same instance: the higher rule
// priority wins the instance slot.
func TestRoute_SameInstanceHigherRulePriorityWins(t *testing.T) {
	preferred := yearRule("preferred", 3, types.OpGreaterThan, 1970, 20)
	preferred.QualityProfile = "HD"
	fallback := yearRule("fallback", 3, types.OpGreaterThan, 1960, 10)
	fallback.QualityProfile = "SD"

	source := &memSource{rules: []types.RouterRule{fallback, preferred}}
	r := newTestRouter(source)

	decisions := r.Route(context.Background(), movie("Jaws", 1975), movieCtx)
	if len(decisions) != 1 {
		t.Fatalf("decisions = %d, want 1", len(decisions))
	}
	if decisions[0].QualityProfile != "HD" {
		t.Errorf("winner = %q, want the priority-20 rule (HD)", decisions[0].QualityProfile)
	}
	if decisions[0].RulePriority != 20 {
		t.Errorf("RulePriority = %d, want 20", decisions[0].RulePriority)
	}
}

// Two rules on the same plugin target different instances with different
// rule priorities: only the higher-priority rule's instance survives.
func TestRoute_RulePriorityDecidesAcrossInstances(t *testing.T) {
	source := &memSource{rules: []types.RouterRule{
		yearRule("decade", 2, types.OpBetween, types.Range{Min: fptr(1980), Max: fptr(1989)}, 10),
		yearRule("exact", 5, types.OpEquals, 1985, 20),
	}}
	r := newTestRouter(source)

	decisions := r.Route(context.Background(), movie("Commando", 1985), movieCtx)
	if len(decisions) != 1 {
		t.Fatalf("decisions = %d, want exactly 1", len(decisions))
	}
	if decisions[0].InstanceID != 5 {
		t.Errorf("InstanceID = %d, want 5 (rule priority 20 over 10)", decisions[0].InstanceID)
	}
	if decisions[0].RulePriority != 20 {
		t.Errorf("RulePriority = %d, want 20", decisions[0].RulePriority)
	}
}

// A tree rule outranks every single-field rule via the conditional
// plugin's priority.
func TestRoute_ConditionalOutranksFieldPlugins(t *testing.T) {
	tree := types.RouterRule{
		ID:         types.NewRuleID(),
		Name:       "80s action",
		TargetType: types.ContentTypeMovie,
		InstanceID: 7,
		Criteria: types.RuleCriteria{Tree: &types.ConditionGroup{
			Operator: types.GroupAnd,
			Conditions: []types.ConditionNode{
				{Leaf: &types.Condition{Field: "genre", Operator: types.OpEquals, Value: "Action"}},
				{Leaf: &types.Condition{Field: "year", Operator: types.OpBetween, Value: types.Range{Min: fptr(1980), Max: fptr(1989)}}},
			},
		}},
		Enabled: true,
	}

	source := &memSource{rules: []types.RouterRule{
		tree,
		genreRule("by genre", 5, types.OpEquals, "Action", 0),
	}}
	r := newTestRouter(source)

	decisions := r.Route(context.Background(), movie("Predator", 1987, "Action"), movieCtx)
	if len(decisions) != 1 {
		t.Fatalf("decisions = %d, want 1", len(decisions))
	}
	if decisions[0].InstanceID != 7 {
		t.Errorf("InstanceID = %d, want 7 (conditional outranks genre)", decisions[0].InstanceID)
	}
	if decisions[0].Priority != PriorityConditional {
		t.Errorf("Priority = %d, want %d", decisions[0].Priority, PriorityConditional)
	}
}

// A failing rule source takes out every plugin's contribution here, but
// the orchestrator itself must not error or panic.
func TestRoute_SourceFailureIsContained(t *testing.T) {
	r := newTestRouter(&memSource{err: errors.New("connection refused")})
	decisions := r.Route(context.Background(), movie("Heat", 1995), movieCtx)
	if len(decisions) != 0 {
		t.Fatalf("decisions = %d, want 0", len(decisions))
	}
}

// failingPlugin errors on MatchRules; the other plugins keep contributing.
type failingPlugin struct {
	YearPlugin
}

func (p *failingPlugin) Name() string { return "failing" }
func (p *failingPlugin) MatchRules(context.Context, types.ContentItem, types.RoutingContext) ([]types.RoutingDecision, error) {
	return nil, errors.New("boom")
}

func TestRoute_PluginFailureIsolated(t *testing.T) {
	source := &memSource{rules: []types.RouterRule{
		yearRule("by year", 2, types.OpEquals, 1985, 0),
	}}
	plugins, _ := DefaultRegistry(zap.NewNop(), source)
	plugins = append(plugins, &failingPlugin{YearPlugin{source: source}})
	r := New(zap.NewNop(), plugins)

	decisions := r.Route(context.Background(), movie("Commando", 1985), movieCtx)
	if len(decisions) != 1 {
		t.Fatalf("decisions = %d, want 1 despite one plugin failing", len(decisions))
	}
	if decisions[0].InstanceID != 2 {
		t.Errorf("InstanceID = %d, want 2", decisions[0].InstanceID)
	}
}

func TestRoute_InapplicablePluginsSkipped(t *testing.T) {
	source := &memSource{rules: []types.RouterRule{
		yearRule("by year", 2, types.OpGreaterThan, 0, 0),
	}}
	r := newTestRouter(source)

	// Year zero: the year plugin does not apply and its rule cannot fire.
	decisions := r.Route(context.Background(), movie("Undated", 0), movieCtx)
	if len(decisions) != 0 {
		t.Fatalf("decisions = %d, want 0", len(decisions))
	}
}

func TestRoute_DisabledRulesIgnored(t *testing.T) {
	disabled := yearRule("off", 2, types.OpEquals, 1985, 0)
	disabled.Enabled = false
	source := &memSource{rules: []types.RouterRule{disabled}}
	r := newTestRouter(source)

	decisions := r.Route(context.Background(), movie("Commando", 1985), movieCtx)
	if len(decisions) != 0 {
		t.Fatalf("decisions = %d, want 0 for disabled rules", len(decisions))
	}
}

func TestFieldSpecs_CoverAllPluginFields(t *testing.T) {
	r := newTestRouter(&memSource{})
	specs := r.FieldSpecs()

	for _, field := range []string{"genre", "year", "language", "user", "userId"} {
		if _, ok := specs[field]; !ok {
			t.Errorf("FieldSpecs() missing %q", field)
		}
	}
}

func fptr(f float64) *float64 { return &f }
