package stateflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context provides execution context to nodes and routers.
// It extends context.Context with stateflow-specific services and metadata.
//
// Context is immutable after creation. The executor creates derived contexts
// for each node with updated NodeID and an enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with thread and node
	// context. Never returns nil - defaults to slog.Default() if not
	// configured.
	Logger() *slog.Logger

	// ThreadID returns the opaque run identifier. It is the primary key
	// into the checkpoint store and is auto-generated if not configured.
	ThreadID() string

	// NodeID returns the current node being executed.
	// Empty string before execution starts.
	NodeID() string

	// Step returns the step sequence number of the in-flight step
	// (1 = first step).
	Step() int
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger   *slog.Logger
	threadID string
	nodeID   string
	step     int
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// ThreadID returns the run identifier.
func (c *executionContext) ThreadID() string {
	return c.threadID
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// Step returns the in-flight step sequence number.
func (c *executionContext) Step() int {
	return c.step
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
// The logger will be enriched with thread_id and node_id during execution.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		c.logger = logger
	}
}

// WithThreadID sets the run identifier for the context.
// If not set, a UUID is auto-generated.
func WithThreadID(id string) ContextOption {
	return func(c *executionContext) {
		c.threadID = id
	}
}

// NewContext creates an execution context from a standard context.
// The returned Context wraps the provided context.Context and adds
// stateflow-specific services and metadata.
//
// Example:
//
//	ctx := stateflow.NewContext(context.Background(),
//	    stateflow.WithLogger(myLogger),
//	    stateflow.WithThreadID("thread-123"))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context:  ctx,
		logger:   slog.Default(),
		threadID: uuid.New().String(),
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// withNode returns a new context for one step, with the node ID and step
// number set and the logger enriched.
func (c *executionContext) withNode(nodeID string, step int) *executionContext {
	return &executionContext{
		Context:  c.Context,
		logger:   c.logger.With("thread_id", c.threadID, "node_id", nodeID, "step", step),
		threadID: c.threadID,
		nodeID:   nodeID,
		step:     step,
	}
}
