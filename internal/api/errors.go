package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wardstone/gatekeeper/internal/types"
)

// writeError maps domain errors onto HTTP status codes. State conflicts
// carry the precise reason so clients can show "already approved" rather
// than a generic 409.
func writeError(c echo.Context, err error) error {
	var conflictErr *types.StateConflictError
	if errors.As(err, &conflictErr) {
		return c.JSON(http.StatusConflict, map[string]string{
			"error":  conflictErr.Error(),
			"reason": conflictErr.Reason(),
		})
	}

	var malformedErr *types.MalformedRuleError
	if errors.As(err, &malformedErr) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": malformedErr.Error(),
		})
	}

	switch {
	case errors.Is(err, types.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, types.ErrStateConflict):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, types.ErrMalformedRule):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}
