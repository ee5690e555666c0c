package notify

import (
	"context"

	"github.com/wardstone/gatekeeper/internal/types"
)

// Noop discards all events.
type Noop struct{}

func (Noop) RequestCreated(context.Context, *types.ApprovalRequest)  {}
func (Noop) RequestResolved(context.Context, *types.ApprovalRequest) {}
