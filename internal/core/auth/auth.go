// Package auth provides API key authentication for the HTTP API.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

const apiKeyHeader = "X-Api-Key"

// Authenticator validates API keys from request headers. Multiple keys are
// accepted so old and new keys stay valid during rotation.
type Authenticator struct {
	keys []string
}

// NewAuthenticator creates an authenticator. With no keys configured,
// authentication is disabled and every request passes.
func NewAuthenticator(keys []string) *Authenticator {
	return &Authenticator{keys: keys}
}

// Enabled reports whether any keys are configured.
func (a *Authenticator) Enabled() bool { return len(a.keys) > 0 }

// Validate checks a presented key against the configured set in constant
// time per comparison.
func (a *Authenticator) Validate(presented string) bool {
	for _, key := range a.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(presented)) == 1 {
			return true
		}
	}
	return false
}

// Middleware returns an echo middleware enforcing the X-Api-Key header.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !a.Enabled() {
				return next(c)
			}

			presented := c.Request().Header.Get(apiKeyHeader)
			if presented == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing API key")
			}
			if !a.Validate(presented) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
			}
			return next(c)
		}
	}
}
