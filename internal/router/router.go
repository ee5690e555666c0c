package router

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/rules"
	"github.com/wardstone/gatekeeper/internal/types"
)

/*
 * Routing orchestration.
 *
 * Route runs every applicable plugin's rule matching, flattens the
 * candidate decisions, and resolves conflicts:
 *
 *   1. Group candidates by target instance id.
 *   2. Within a group keep the highest (evaluator priority, rule priority)
 *      pair; remaining ties go to the earliest-registered plugin.
 *   3. Keep only the instance groups at the top surviving pair. Synced
 *      instances are authored at equal priorities and all survive;
 *      otherwise the single highest-priority decision wins.
 *
 * Routing is read-only against persisted rules and safe to run in parallel
 * across items. Plugins run concurrently with a per-plugin timeout; a slow
 * or failing plugin is logged and skipped without aborting the others.
 */

// DefaultPluginTimeout bounds a single plugin's rule matching.
const DefaultPluginTimeout = 5 * time.Second

// Router is the routing orchestrator over a fixed plugin registry.
type Router struct {
	plugins []Plugin
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures the router.
type Option func(*Router)

// WithPluginTimeout overrides the per-plugin matching timeout.
func WithPluginTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New builds a router over the given registry. Registration order is the
// documented tie-break between equal-priority candidates.
func New(logger *zap.Logger, plugins []Plugin, opts ...Option) *Router {
	r := &Router{
		plugins: plugins,
		timeout: DefaultPluginTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultRegistry assembles the standard plugin set over a rule source and
// returns it with the condition evaluator wired through the conditional
// plugin.
func DefaultRegistry(logger *zap.Logger, source RuleSource) ([]Plugin, *rules.Evaluator) {
	genre := NewGenrePlugin(source)
	year := NewYearPlugin(source)
	language := NewLanguagePlugin(source)
	user := NewUserPlugin(source)

	evaluator := rules.NewEvaluator(logger, genre, year, language, user)
	conditional := NewConditionalPlugin(source, evaluator)

	return []Plugin{conditional, user, genre, year, language}, evaluator
}

// FieldSpecs collects authoring metadata from every plugin in the registry.
func (r *Router) FieldSpecs() map[string]rules.FieldSpec {
	specs := make(map[string]rules.FieldSpec)
	for _, p := range r.plugins {
		for _, spec := range p.Spec() {
			specs[spec.Field] = spec
		}
	}
	return specs
}

// Route evaluates the item against all applicable plugins and returns the
// resolved decision set. An empty result means no rule matched; the caller
// falls back to its default instance policy.
func (r *Router) Route(ctx context.Context, item types.ContentItem, rctx types.RoutingContext) []types.RoutingDecision {
	type outcome struct {
		decisions []types.RoutingDecision
		err       error
	}

	active := make([]Plugin, 0, len(r.plugins))
	indexes := make([]int, 0, len(r.plugins))
	for i, p := range r.plugins {
		if p.Applies(item, rctx) {
			active = append(active, p)
			indexes = append(indexes, i)
		}
	}
	if len(active) == 0 {
		return nil
	}

	// Results are collected positionally so the registration-order
	// tie-break stays deterministic regardless of goroutine scheduling.
	outcomes := make([]outcome, len(active))
	var wg sync.WaitGroup
	for i, p := range active {
		wg.Add(1)
		go func(slot int, plugin Plugin) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			decisions, err := plugin.MatchRules(pctx, item, rctx)
			outcomes[slot] = outcome{decisions: decisions, err: err}
		}(i, p)
	}
	wg.Wait()

	var candidates []candidate
	for i, out := range outcomes {
		if out.err != nil {
			// Partial failure: this plugin contributes nothing, the
			// rest of the evaluation proceeds.
			r.logger.Warn("evaluator plugin unavailable",
				zap.String("plugin", active[i].Name()),
				zap.String("title", item.Title),
				zap.Error(out.err))
			continue
		}
		for _, d := range out.decisions {
			candidates = append(candidates, candidate{decision: d, pluginIndex: indexes[i]})
		}
	}

	return resolveConflicts(candidates)
}

type candidate struct {
	decision    types.RoutingDecision
	pluginIndex int
}

// resolveConflicts deduplicates candidates per instance and keeps the top
// (evaluator priority, rule priority) level.
func resolveConflicts(candidates []candidate) []types.RoutingDecision {
	if len(candidates) == 0 {
		return nil
	}

	best := make(map[int64]candidate)
	for _, c := range candidates {
		cur, ok := best[c.decision.InstanceID]
		if !ok || beats(c, cur) {
			best[c.decision.InstanceID] = c
		}
	}

	maxPriority, maxRulePriority := 0, 0
	first := true
	for _, c := range best {
		d := c.decision
		if first || outranks(d.Priority, d.RulePriority, maxPriority, maxRulePriority) {
			maxPriority, maxRulePriority = d.Priority, d.RulePriority
			first = false
		}
	}

	top := make([]types.RoutingDecision, 0, len(best))
	for _, c := range best {
		if c.decision.Priority == maxPriority && c.decision.RulePriority == maxRulePriority {
			top = append(top, c.decision)
		}
	}

	sort.Slice(top, func(i, j int) bool {
		return top[i].InstanceID < top[j].InstanceID
	})
	return top
}

// outranks compares two (evaluator priority, rule priority) pairs,
// evaluator priority first, higher wins on both.
func outranks(p, rp, otherP, otherRP int) bool {
	if p != otherP {
		return p > otherP
	}
	return rp > otherRP
}

// beats reports whether a should replace b as an instance's candidate:
// higher evaluator priority first, then higher rule priority, then
// earlier-registered plugin.
func beats(a, b candidate) bool {
	if a.decision.Priority != b.decision.Priority {
		return a.decision.Priority > b.decision.Priority
	}
	if a.decision.RulePriority != b.decision.RulePriority {
		return a.decision.RulePriority > b.decision.RulePriority
	}
	return a.pluginIndex < b.pluginIndex
}
