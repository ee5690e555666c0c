// Package store implements persistence for router rules, approval
// requests, and the quota ledger.
//
// Rule queries are built dynamically with go-sqlbuilder (filtered lists,
// partial updates); approval and quota statements are static named queries
// loaded through internal/core/db. All operations are short, individually
// transactional statements; no locks are held across calls.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/types"
)

// Rules is the RouterRule repository.
type Rules struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewRules creates the rule repository.
func NewRules(database *sqlx.DB, logger *zap.Logger) *Rules {
	return &Rules{db: database, logger: logger}
}

const rulesTable = "router_rules"

var ruleColumns = []string{
	"id", "name", "target_type", "instance_id", "criteria",
	"quality_profile", "root_folder", "tags", "search_on_add",
	"season_monitoring", "minimum_availability", "rule_order",
	"enabled", "requires_approval", "created_at", "updated_at",
}

type ruleRow struct {
	ID                  string    `db:"id"`
	Name                string    `db:"name"`
	TargetType          string    `db:"target_type"`
	InstanceID          int64     `db:"instance_id"`
	Criteria            []byte    `db:"criteria"`
	QualityProfile      string    `db:"quality_profile"`
	RootFolder          string    `db:"root_folder"`
	Tags                []byte    `db:"tags"`
	SearchOnAdd         bool      `db:"search_on_add"`
	SeasonMonitoring    string    `db:"season_monitoring"`
	MinimumAvailability string    `db:"minimum_availability"`
	RuleOrder           int       `db:"rule_order"`
	Enabled             bool      `db:"enabled"`
	RequiresApproval    bool      `db:"requires_approval"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

func (r ruleRow) toDomain() (types.RouterRule, error) {
	rule := types.RouterRule{
		ID:                  types.RuleID(r.ID),
		Name:                r.Name,
		TargetType:          types.ContentType(r.TargetType),
		InstanceID:          r.InstanceID,
		QualityProfile:      r.QualityProfile,
		RootFolder:          r.RootFolder,
		SearchOnAdd:         r.SearchOnAdd,
		SeasonMonitoring:    r.SeasonMonitoring,
		MinimumAvailability: r.MinimumAvailability,
		Order:               r.RuleOrder,
		Enabled:             r.Enabled,
		RequiresApproval:    r.RequiresApproval,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Criteria, &rule.Criteria); err != nil {
		return rule, fmt.Errorf("decode rule %s criteria: %w", r.ID, err)
	}
	if len(r.Tags) > 0 {
		if err := json.Unmarshal(r.Tags, &rule.Tags); err != nil {
			return rule, fmt.Errorf("decode rule %s tags: %w", r.ID, err)
		}
	}
	return rule, nil
}

func ruleValues(rule *types.RouterRule) ([]any, error) {
	criteria, err := json.Marshal(rule.Criteria)
	if err != nil {
		return nil, fmt.Errorf("encode rule criteria: %w", err)
	}
	tags := rule.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode rule tags: %w", err)
	}
	return []any{
		string(rule.ID), rule.Name, string(rule.TargetType), rule.InstanceID,
		string(criteria), rule.QualityProfile, rule.RootFolder, string(tagsJSON),
		rule.SearchOnAdd, rule.SeasonMonitoring, rule.MinimumAvailability,
		rule.Order, rule.Enabled, rule.RequiresApproval,
		rule.CreatedAt, rule.UpdatedAt,
	}, nil
}

// Create persists a new rule. Validation happens before this point.
func (r *Rules) Create(ctx context.Context, rule *types.RouterRule) error {
	values, err := ruleValues(rule)
	if err != nil {
		return err
	}

	sb := sqlbuilder.NewInsertBuilder()
	sb.InsertInto(rulesTable)
	sb.Cols(ruleColumns...)
	sb.Values(values...)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("failed to create router rule", zap.String("rule_id", string(rule.ID)), zap.Error(err))
		return fmt.Errorf("create router rule: %w", err)
	}

	r.logger.Info("created router rule",
		zap.String("rule_id", string(rule.ID)),
		zap.String("name", rule.Name),
		zap.Int64("instance_id", rule.InstanceID))
	return nil
}

// Get retrieves a rule by id. Returns ErrNotFound for unknown ids.
func (r *Rules) Get(ctx context.Context, id types.RuleID) (*types.RouterRule, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(ruleColumns...)
	sb.From(rulesTable)
	sb.Where(sb.Equal("id", string(id)))

	query, args := sb.Build()
	var row ruleRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("router rule %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("get router rule: %w", err)
	}

	rule, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	TargetType *types.ContentType
	Enabled    *bool
}

// List retrieves rules matching the filter, highest rule priority first,
// then by name.
func (r *Rules) List(ctx context.Context, filter ListFilter) ([]types.RouterRule, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(ruleColumns...)
	sb.From(rulesTable)
	if filter.TargetType != nil {
		sb.Where(sb.Equal("target_type", string(*filter.TargetType)))
	}
	if filter.Enabled != nil {
		sb.Where(sb.Equal("enabled", *filter.Enabled))
	}
	sb.OrderBy("rule_order DESC", "name")

	query, args := sb.Build()
	var rows []ruleRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list router rules: %w", err)
	}

	out := make([]types.RouterRule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toDomain()
		if err != nil {
			// A single undecodable rule must not hide the others.
			r.logger.Warn("skipping undecodable router rule", zap.String("rule_id", row.ID), zap.Error(err))
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

// ListEnabled retrieves enabled rules for the given content type, highest
// rule priority first. This is the plugins' rule source.
func (r *Rules) ListEnabled(ctx context.Context, targetType types.ContentType) ([]types.RouterRule, error) {
	enabled := true
	return r.List(ctx, ListFilter{TargetType: &targetType, Enabled: &enabled})
}

// Update replaces the stored rule. Returns ErrNotFound for unknown ids.
func (r *Rules) Update(ctx context.Context, rule *types.RouterRule) error {
	values, err := ruleValues(rule)
	if err != nil {
		return err
	}

	sb := sqlbuilder.NewUpdateBuilder()
	sb.Update(rulesTable)
	assignments := make([]string, 0, len(ruleColumns)-2)
	// Skip id (key) and created_at (immutable).
	for i, col := range ruleColumns {
		if col == "id" || col == "created_at" {
			continue
		}
		assignments = append(assignments, sb.Assign(col, values[i]))
	}
	sb.Set(assignments...)
	sb.Where(sb.Equal("id", string(rule.ID)))

	query, args := sb.Build()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update router rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update router rule: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("router rule %s: %w", rule.ID, types.ErrNotFound)
	}

	r.logger.Info("updated router rule", zap.String("rule_id", string(rule.ID)))
	return nil
}

// Delete removes a rule. Returns ErrNotFound for unknown ids.
func (r *Rules) Delete(ctx context.Context, id types.RuleID) error {
	sb := sqlbuilder.NewDeleteBuilder()
	sb.DeleteFrom(rulesTable)
	sb.Where(sb.Equal("id", string(id)))

	query, args := sb.Build()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("delete router rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete router rule: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("router rule %s: %w", id, types.ErrNotFound)
	}

	r.logger.Info("deleted router rule", zap.String("rule_id", string(id)))
	return nil
}
