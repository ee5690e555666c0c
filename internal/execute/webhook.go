// Package execute hands approved routing decisions to the downstream
// acquisition pipeline.
package execute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/types"
)

// Payload is the wire form of an execution hand-off.
type Payload struct {
	Decision types.RoutingDecision `json:"decision"`
	Content  types.ContentRef      `json:"content"`
}

// Webhook posts decisions to a configured endpoint. A non-2xx response is
// an execution failure; the caller decides what that means for the request.
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhook creates the webhook executor.
func NewWebhook(url string, timeout time.Duration, logger *zap.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Execute posts the decision and content reference as JSON.
func (w *Webhook) Execute(ctx context.Context, decision types.RoutingDecision, content types.ContentRef) error {
	body, err := json.Marshal(Payload{Decision: decision, Content: content})
	if err != nil {
		return fmt.Errorf("encode execution payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build execution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post execution request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("execution endpoint returned %d", resp.StatusCode)
	}

	w.logger.Info("dispatched routing decision",
		zap.Int64("instance_id", decision.InstanceID),
		zap.String("title", content.Title))
	return nil
}

// LogOnly records dispatches without calling anything. Used when no
// execution endpoint is configured.
type LogOnly struct {
	Logger *zap.Logger
}

// Execute logs the decision and succeeds.
func (l LogOnly) Execute(_ context.Context, decision types.RoutingDecision, content types.ContentRef) error {
	l.Logger.Info("execution endpoint not configured, decision logged only",
		zap.Int64("instance_id", decision.InstanceID),
		zap.String("title", content.Title))
	return nil
}
