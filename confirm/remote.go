package confirm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RemoteGateway publishes confirmation requests to an attached front-end
// and waits for the inbound channel to resolve them through the shared
// pending table.
type RemoteGateway struct {
	table   *Table
	publish func(Request)
	timeout time.Duration
	logger  *slog.Logger
}

// RemoteOption configures a RemoteGateway.
type RemoteOption func(*RemoteGateway)

// WithTimeout overrides the decision timeout.
func WithTimeout(d time.Duration) RemoteOption {
	return func(g *RemoteGateway) {
		g.timeout = d
	}
}

// WithLogger sets the logger for timeout and denial diagnostics.
func WithLogger(logger *slog.Logger) RemoteOption {
	return func(g *RemoteGateway) {
		g.logger = logger
	}
}

// NewRemoteGateway creates a gateway that emits requests through publish.
// Responses are delivered by whoever feeds table.Resolve, typically the
// bridge reading the front-end's inbound channel.
func NewRemoteGateway(table *Table, publish func(Request), opts ...RemoteOption) *RemoteGateway {
	g := &RemoteGateway{
		table:   table,
		publish: publish,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Confirm registers the request, publishes it, and blocks until a decision
// arrives. Timeouts and cancelled contexts count as denial.
func (g *RemoteGateway) Confirm(ctx context.Context, req Request) bool {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	// Register strictly before publishing: a front-end answering
	// instantly must still find the pending entry.
	ch := g.table.Register(req.ID)
	g.publish(req)

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case approved := <-ch:
		return approved
	case <-timer.C:
		g.table.Remove(req.ID)
		g.logger.Warn("confirmation timed out, denying",
			"id", req.ID,
			"tool", req.Tool,
			"timeout", g.timeout)
		return false
	case <-ctx.Done():
		g.table.Remove(req.ID)
		return false
	}
}
