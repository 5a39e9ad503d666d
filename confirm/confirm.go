// Package confirm coordinates human approval of destructive tool calls.
//
// Every destructive call passes through a Gateway before it may execute.
// The terminal gateway blocks on a local [Y/n] prompt; the remote gateway
// publishes a confirmation request to an attached front-end and waits for
// the matching response, treating a timeout as denial.
package confirm

import (
	"context"
	"time"
)

// DefaultTimeout bounds how long a remote confirmation may stay pending
// before it is treated as denied.
const DefaultTimeout = 300 * time.Second

// Request describes one pending destructive call shown to the user.
type Request struct {
	ID        string
	Tool      string
	Arguments map[string]any
	// Preview is a short human-readable summary of the effect, such as a
	// unified diff for an edit. May be empty.
	Preview   string
	CreatedAt time.Time
}

// Gateway obtains an approve or deny decision for one destructive call.
// Confirm blocks until a decision is available; false means the call is
// skipped without executing.
type Gateway interface {
	Confirm(ctx context.Context, req Request) bool
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req Request) bool

func (f GatewayFunc) Confirm(ctx context.Context, req Request) bool {
	return f(ctx, req)
}
