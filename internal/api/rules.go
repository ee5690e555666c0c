package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/rules"
	"github.com/wardstone/gatekeeper/internal/store"
	"github.com/wardstone/gatekeeper/internal/types"
)

// ruleRequest is the authoring payload for create and update. Criteria
// carries either a simple criterion or a condition tree; validation
// enforces exactly one.
type ruleRequest struct {
	Name       string             `json:"name" validate:"required,max=200"`
	TargetType types.ContentType  `json:"target_type" validate:"required,oneof=movie show"`
	InstanceID int64              `json:"instance_id" validate:"required,gt=0"`
	Criteria   types.RuleCriteria `json:"criteria"`

	QualityProfile      string   `json:"quality_profile"`
	RootFolder          string   `json:"root_folder"`
	Tags                []string `json:"tags"`
	SearchOnAdd         bool     `json:"search_on_add"`
	SeasonMonitoring    string   `json:"season_monitoring"`
	MinimumAvailability string   `json:"minimum_availability"`

	Order            int   `json:"order"`
	Enabled          *bool `json:"enabled"`
	RequiresApproval bool  `json:"requires_approval"`
}

func (r ruleRequest) toDomain(id types.RuleID, createdAt, now time.Time) *types.RouterRule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &types.RouterRule{
		ID:                  id,
		Name:                r.Name,
		TargetType:          r.TargetType,
		InstanceID:          r.InstanceID,
		Criteria:            r.Criteria,
		QualityProfile:      r.QualityProfile,
		RootFolder:          r.RootFolder,
		Tags:                r.Tags,
		SearchOnAdd:         r.SearchOnAdd,
		SeasonMonitoring:    r.SeasonMonitoring,
		MinimumAvailability: r.MinimumAvailability,
		Order:               r.Order,
		Enabled:             enabled,
		RequiresApproval:    r.RequiresApproval,
		CreatedAt:           createdAt,
		UpdatedAt:           now,
	}
}

// CreateRule validates and persists a new routing rule.
func (h *Handler) CreateRule(c echo.Context) error {
	var req ruleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()
	rule := req.toDomain(types.NewRuleID(), now, now)

	if err := rules.ValidateRule(rule, h.router.FieldSpecs()); err != nil {
		return writeError(c, err)
	}
	if err := h.rules.Create(c.Request().Context(), rule); err != nil {
		h.logger.Error("create rule failed", zap.Error(err))
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, rule)
}

// ListRules returns rules, optionally filtered by target_type and enabled.
func (h *Handler) ListRules(c echo.Context) error {
	var filter store.ListFilter

	if tt := c.QueryParam("target_type"); tt != "" {
		contentType := types.ContentType(tt)
		if !contentType.Valid() {
			return badRequest(c, "target_type must be movie or show")
		}
		filter.TargetType = &contentType
	}
	if en := c.QueryParam("enabled"); en != "" {
		enabled := en == "true"
		filter.Enabled = &enabled
	}

	list, err := h.rules.List(c.Request().Context(), filter)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"rules": list})
}

// GetRule returns a rule by id.
func (h *Handler) GetRule(c echo.Context) error {
	id, err := types.ParseRuleID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid rule id")
	}

	rule, err := h.rules.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

// UpdateRule replaces a rule wholesale after re-validating its criteria.
func (h *Handler) UpdateRule(c echo.Context) error {
	id, err := types.ParseRuleID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid rule id")
	}

	var req ruleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.rules.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	rule := req.toDomain(id, existing.CreatedAt, time.Now().UTC())
	if err := rules.ValidateRule(rule, h.router.FieldSpecs()); err != nil {
		return writeError(c, err)
	}
	if err := h.rules.Update(c.Request().Context(), rule); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, rule)
}

// DeleteRule removes a rule.
func (h *Handler) DeleteRule(c echo.Context) error {
	id, err := types.ParseRuleID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid rule id")
	}

	if err := h.rules.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListFields returns the authoring metadata: every evaluator field and the
// operators it supports.
func (h *Handler) ListFields(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"fields": h.router.FieldSpecs()})
}
