package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/approval"
	"github.com/wardstone/gatekeeper/internal/core/auth"
	"github.com/wardstone/gatekeeper/internal/core/db"
	"github.com/wardstone/gatekeeper/internal/execute"
	"github.com/wardstone/gatekeeper/internal/notify"
	"github.com/wardstone/gatekeeper/internal/quota"
	"github.com/wardstone/gatekeeper/internal/router"
	"github.com/wardstone/gatekeeper/internal/store"
	"github.com/wardstone/gatekeeper/internal/types"
)

const testAPIKey = "test-key"

// apiHarness runs the full HTTP surface against a throwaway SQLite
// database.
type apiHarness struct {
	t *testing.T
	e *echo.Echo
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	logger := zap.NewNop()

	database, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "gatekeeper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.MigrateUp(database))

	queries, err := db.LoadQueries(database)
	require.NoError(t, err)

	rules := store.NewRules(database, logger)
	approvals := store.NewApprovals(queries, logger)
	ledger := store.NewQuota(queries, logger)

	plugins, _ := router.DefaultRegistry(logger, rules)
	rt := router.New(logger, plugins)

	checker := quota.NewChecker(ledger, quota.Limits{Window: 7 * 24 * time.Hour}, logger)

	policy := approval.ExpirationPolicy{Enabled: true, DefaultTTL: 72 * time.Hour}
	gate := approval.NewGate(approvals, execute.LogOnly{Logger: logger}, checker, notify.Noop{}, policy, logger,
		approval.WithRouter(rt),
		approval.WithQuota(checker))

	h := NewHandler(rules, gate, rt, checker, logger)
	e := NewEcho(h, auth.NewAuthenticator([]string{testAPIKey}).Middleware())

	return &apiHarness{t: t, e: e}
}

func (h *apiHarness) request(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Api-Key", testAPIKey)

	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) decode(rec *httptest.ResponseRecorder, dest any) {
	h.t.Helper()
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func yearRuleBody(name string, instanceID int64, requiresApproval bool) map[string]any {
	return map[string]any{
		"name":        name,
		"target_type": "movie",
		"instance_id": instanceID,
		"criteria": map[string]any{
			"criterion": map[string]any{
				"field":    "year",
				"operator": "between",
				"value":    map[string]any{"min": 1980, "max": 1989},
			},
		},
		"quality_profile":   "HD",
		"requires_approval": requiresApproval,
	}
}

func routeBody(title string, year int) map[string]any {
	return map[string]any{
		"item": map[string]any{
			"guids": []string{"imdb:" + title},
			"title": title,
			"type":  "movie",
			"year":  year,
		},
		"context": map[string]any{"type": "movie", "user_id": "u1"},
	}
}

func TestHealthIsOpen(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	req.Header.Set("X-Api-Key", "wrong-key")
	rec = httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.request(http.MethodGet, "/api/v1/rules", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRuleLifecycle(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(http.MethodPost, "/api/v1/rules", yearRuleBody("80s movies", 2, false))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created types.RouterRule
	h.decode(rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Enabled)

	rec = h.request(http.MethodGet, "/api/v1/rules/"+string(created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	update := yearRuleBody("80s movies v2", 2, false)
	rec = h.request(http.MethodPut, "/api/v1/rules/"+string(created.ID), update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated types.RouterRule
	h.decode(rec, &updated)
	assert.Equal(t, "80s movies v2", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	rec = h.request(http.MethodGet, "/api/v1/rules?target_type=movie", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rules []types.RouterRule `json:"rules"`
	}
	h.decode(rec, &list)
	assert.Len(t, list.Rules, 1)

	rec = h.request(http.MethodDelete, "/api/v1/rules/"+string(created.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.request(http.MethodGet, "/api/v1/rules/"+string(created.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRule_Malformed(t *testing.T) {
	h := newAPIHarness(t)

	body := yearRuleBody("bad field", 2, false)
	body["criteria"] = map[string]any{
		"criterion": map[string]any{
			"field":    "no_such_field",
			"operator": "equals",
			"value":    "x",
		},
	}

	rec := h.request(http.MethodPost, "/api/v1/rules", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouteAndApprovalFlow(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(http.MethodPost, "/api/v1/rules", yearRuleBody("gated 80s", 3, true))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.request(http.MethodPost, "/api/v1/route", routeBody("Aliens", 1986))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result approval.SubmitResult
	h.decode(rec, &result)
	require.Len(t, result.Held, 1)
	assert.Empty(t, result.Executed)
	assert.Equal(t, types.TriggerRouterRule, result.Held[0].Trigger)

	id := string(result.Held[0].ID)

	rec = h.request(http.MethodGet, "/api/v1/requests?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending struct {
		Requests []types.ApprovalRequest `json:"requests"`
	}
	h.decode(rec, &pending)
	assert.Len(t, pending.Requests, 1)

	rec = h.request(http.MethodPut, "/api/v1/requests/"+id+"/routing", map[string]any{
		"instance_id":     9,
		"instance_type":   "movie",
		"quality_profile": "Ultra-HD",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.request(http.MethodPost, "/api/v1/requests/"+id+"/approve", map[string]any{"by": "admin"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var approved types.ApprovalRequest
	h.decode(rec, &approved)
	assert.Equal(t, types.StatusApproved, approved.Status)
	assert.Equal(t, int64(9), approved.Proposed.InstanceID)

	// Approving again conflicts.
	rec = h.request(http.MethodPost, "/api/v1/requests/"+id+"/approve", map[string]any{"by": "admin"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Editing the decision after resolution conflicts too.
	rec = h.request(http.MethodPut, "/api/v1/requests/"+id+"/routing", map[string]any{"instance_id": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRoute_NoTriggerDispatchesImmediately(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(http.MethodPost, "/api/v1/rules", yearRuleBody("open 80s", 3, false))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.request(http.MethodPost, "/api/v1/route", routeBody("Aliens", 1986))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result approval.SubmitResult
	h.decode(rec, &result)
	assert.Len(t, result.Executed, 1)
	assert.Empty(t, result.Held)
}

func TestRoute_ValidationErrors(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(http.MethodPost, "/api/v1/route", map[string]any{
		"item": map[string]any{"title": "No Type"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.request(http.MethodPost, "/api/v1/route", map[string]any{
		"item": map[string]any{"type": "movie"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(http.MethodPost, "/api/v1/rules", yearRuleBody("gated 80s", 3, true))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = h.request(http.MethodPost, "/api/v1/route", routeBody("Aliens", 1986))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.request(http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		Requests map[string]int `json:"requests"`
	}
	h.decode(rec, &stats)
	assert.Equal(t, 1, stats.Requests["pending"])
}
