// Package server provides HTTP server lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/core/config"
)

// HTTPServer manages the echo server lifecycle.
type HTTPServer struct {
	echo   *echo.Echo
	config config.ServerConfig
	logger *zap.Logger
}

// NewHTTPServer wraps a configured echo instance.
func NewHTTPServer(e *echo.Echo, cfg config.ServerConfig, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{echo: e, config: cfg, logger: logger}
}

// Start binds the listener and serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("http server listening", zap.String("addr", addr))

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured grace period.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
