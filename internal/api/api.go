// Package api exposes the HTTP surface: rule authoring, route submission,
// and approval operations.
package api

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/approval"
	"github.com/wardstone/gatekeeper/internal/quota"
	"github.com/wardstone/gatekeeper/internal/router"
	"github.com/wardstone/gatekeeper/internal/store"
)

// Handler wires the HTTP endpoints to the domain services.
type Handler struct {
	rules    *store.Rules
	gate     *approval.Gate
	router   *router.Router
	quota    *quota.Checker
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(rules *store.Rules, gate *approval.Gate, rt *router.Router, checker *quota.Checker, logger *zap.Logger) *Handler {
	return &Handler{
		rules:    rules,
		gate:     gate,
		router:   rt,
		quota:    checker,
		validate: validator.New(),
		logger:   logger,
	}
}

// NewEcho builds the echo instance with common middleware and all routes
// registered. The auth middleware guards everything under /api.
func NewEcho(h *Handler, authMiddleware echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/healthz", h.Health)

	g := e.Group("/api/v1", authMiddleware)

	g.POST("/route", h.SubmitRoute)
	g.GET("/fields", h.ListFields)

	g.POST("/rules", h.CreateRule)
	g.GET("/rules", h.ListRules)
	g.GET("/rules/:id", h.GetRule)
	g.PUT("/rules/:id", h.UpdateRule)
	g.DELETE("/rules/:id", h.DeleteRule)

	g.GET("/requests", h.ListRequests)
	g.GET("/requests/:id", h.GetRequest)
	g.POST("/requests/:id/approve", h.ApproveRequest)
	g.POST("/requests/:id/reject", h.RejectRequest)
	g.PUT("/requests/:id/routing", h.EditRequestRouting)
	g.DELETE("/requests/:id", h.DeleteRequest)

	g.GET("/stats", h.Stats)

	return e
}

// Health reports liveness.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(200, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
