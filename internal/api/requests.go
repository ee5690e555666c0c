package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/store"
	"github.com/wardstone/gatekeeper/internal/types"
)

// routeRequest is the submission payload.
type routeRequest struct {
	Item    types.ContentItem    `json:"item"`
	Context types.RoutingContext `json:"context"`
}

// SubmitRoute routes an item through the evaluator plugins and the
// approval gate. Decisions with no approval trigger are dispatched
// immediately; the rest come back as pending requests.
func (h *Handler) SubmitRoute(c echo.Context) error {
	var req routeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if !req.Item.Type.Valid() {
		return badRequest(c, "item.type must be movie or show")
	}
	if req.Item.Title == "" {
		return badRequest(c, "item.title is required")
	}
	if req.Context.Type == "" {
		req.Context.Type = req.Item.Type
	}

	result, err := h.gate.Submit(c.Request().Context(), req.Item, req.Context)
	if err != nil {
		if errors.Is(err, types.ErrExecutionFailed) {
			// The routing outcome stands; the downstream hand-off is what
			// failed. Surface it without turning the whole call into a 5xx.
			return c.JSON(http.StatusOK, map[string]any{
				"execution_error": err.Error(),
			})
		}
		h.logger.Error("route submission failed", zap.String("title", req.Item.Title), zap.Error(err))
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// resolveRequest is the approve/reject payload.
type resolveRequest struct {
	By    string  `json:"by" validate:"required"`
	Notes *string `json:"notes"`
}

// ListRequests returns approval requests filtered by status or user.
func (h *Handler) ListRequests(c echo.Context) error {
	var filter store.RequestFilter

	if st := c.QueryParam("status"); st != "" {
		status := types.Status(st)
		switch status {
		case types.StatusPending, types.StatusApproved, types.StatusRejected,
			types.StatusExpired, types.StatusAutoApproved:
			filter.Status = &status
		default:
			return badRequest(c, "unknown status")
		}
	}
	if user := c.QueryParam("user_id"); user != "" {
		filter.UserID = &user
	}

	list, err := h.gate.List(c.Request().Context(), filter)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"requests": list})
}

// GetRequest returns an approval request by id.
func (h *Handler) GetRequest(c echo.Context) error {
	id, err := types.ParseRequestID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid request id")
	}

	req, err := h.gate.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// ApproveRequest resolves a request to approved and dispatches its stored
// decision. An execution failure still returns the approved request, with
// the failure reported alongside it.
func (h *Handler) ApproveRequest(c echo.Context) error {
	id, err := types.ParseRequestID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid request id")
	}

	var body resolveRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(body); err != nil {
		return badRequest(c, err.Error())
	}

	req, err := h.gate.Approve(c.Request().Context(), id, body.By, body.Notes)
	if err != nil {
		if errors.Is(err, types.ErrExecutionFailed) {
			return c.JSON(http.StatusOK, map[string]any{
				"request":         req,
				"execution_error": err.Error(),
			})
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// RejectRequest resolves a request to rejected.
func (h *Handler) RejectRequest(c echo.Context) error {
	id, err := types.ParseRequestID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid request id")
	}

	var body resolveRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(body); err != nil {
		return badRequest(c, err.Error())
	}

	req, err := h.gate.Reject(c.Request().Context(), id, body.By, body.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// EditRequestRouting replaces a pending request's proposed decision.
func (h *Handler) EditRequestRouting(c echo.Context) error {
	id, err := types.ParseRequestID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid request id")
	}

	var decision types.RoutingDecision
	if err := c.Bind(&decision); err != nil {
		return badRequest(c, "invalid request body")
	}
	if decision.InstanceID <= 0 {
		return badRequest(c, "instance_id is required")
	}

	req, err := h.gate.EditProposedRouting(c.Request().Context(), id, decision)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// DeleteRequest removes an approval request from any status.
func (h *Handler) DeleteRequest(c echo.Context) error {
	id, err := types.ParseRequestID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid request id")
	}

	if err := h.gate.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats reports request counts per status and quota usage inside the
// current window.
func (h *Handler) Stats(c echo.Context) error {
	counts, err := h.gate.Stats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}

	usage, err := h.quota.Usage(c.Request().Context(), time.Now().UTC())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"requests": counts,
		"quota":    usage,
	})
}
