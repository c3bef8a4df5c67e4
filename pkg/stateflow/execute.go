package stateflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/stateflow/pkg/stateflow/checkpoint"
	"github.com/randalmurphal/stateflow/pkg/stateflow/observability"
	"go.opentelemetry.io/otel/trace"
)

// runConfig holds the observability configuration for a run.
// Metrics and tracing default to no-op implementations.
type runConfig struct {
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
}

func defaultRunConfig() runConfig {
	return runConfig{
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// RunOption configures observability for Run and Resume.
type RunOption func(*runConfig)

// WithMetrics enables metrics recording for the run.
//
// Example:
//
//	result, err := compiled.Run(ctx, state, store, sink,
//	    stateflow.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables trace spans for the run and each node execution.
//
// Example:
//
//	result, err := compiled.Run(ctx, state, store, sink,
//	    stateflow.WithTracing(observability.NewSpanManager()))
func WithTracing(s observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if s != nil {
			c.spans = s
			c.tracingEnabled = true
		}
	}
}

// Run executes the graph with the given initial state, checkpointing after
// every step. Returns the final state and any error encountered.
//
// On success, returns the state after the last node executed before END.
// On error, returns the state at the point of failure (useful for debugging).
// If the graph reaches its interrupt node, Run returns an *InterruptError
// after the suspend checkpoint is durable; use AsInterrupt to distinguish
// suspension from failure, and Resume to continue the thread.
//
// Execution flow per step:
//  1. Check for cancellation
//  2. Execute the current node, producing a partial update
//  3. Merge the partial into the state document
//  4. At the interrupt node: checkpoint with a pending interrupt and suspend
//  5. Otherwise resolve the next node (static or conditional edge, merging
//     any routing patch), checkpoint, and emit a step event
//  6. Repeat until END is reached or an error occurs
//
// sink may be nil if the caller does not consume step events. The sink is
// called synchronously after each step's checkpoint is durable.
//
// Example:
//
//	ctx := stateflow.NewContext(context.Background())
//	store := checkpoint.NewMemoryStore()
//	result, err := compiled.Run(ctx, initialState, store, nil)
//	if intr, ok := stateflow.AsInterrupt(err); ok {
//	    // suspended; resume later with compiled.Resume
//	}
func (cg *CompiledGraph[S, P]) Run(ctx Context, state S, store checkpoint.Store, sink EventSink[S, P], opts ...RunOption) (result S, runErr error) {
	if ctx == nil {
		return state, ErrNilContext
	}
	if store == nil {
		return state, ErrNilStore
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ec := normalizeContext(ctx)
	threadID := ec.threadID

	startTime := time.Now()
	observability.LogRunStart(ec.logger, threadID)

	var tracingCtx context.Context = ec
	var runSpan trace.Span
	if cfg.tracingEnabled {
		tracingCtx, runSpan = cfg.spans.StartRunSpan(ec, threadID)
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	var steps int
	result, steps, runErr = cg.runFrom(tracingCtx, ec, state, cg.entryPoint, 0, store, sink, &cfg)

	duration := time.Since(startTime)
	durationMs := float64(duration.Milliseconds())

	if intr, ok := AsInterrupt(runErr); ok {
		observability.LogRunSuspended(ec.logger, threadID, intr.NodeID, intr.StepSeq)
		return result, runErr
	}

	cfg.metrics.RecordRun(ec, runErr == nil, duration)

	if runErr != nil {
		observability.LogRunError(ec.logger, threadID, runErr, durationMs, LastNode(runErr))
	} else {
		observability.LogRunComplete(ec.logger, threadID, durationMs, steps)
	}

	return result, runErr
}

// normalizeContext returns the internal context implementation, wrapping
// foreign Context implementations so the executor can derive per-step
// contexts.
func normalizeContext(ctx Context) *executionContext {
	if ec, ok := ctx.(*executionContext); ok {
		return ec
	}
	return &executionContext{
		Context:  ctx,
		logger:   ctx.Logger(),
		threadID: ctx.ThreadID(),
	}
}

// LastNode extracts the node a run error is attributed to, or the empty
// string if the error carries no node context.
func LastNode(err error) string {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.NodeID
	}
	var schemaErr *SchemaViolationError
	if errors.As(err, &schemaErr) {
		return schemaErr.NodeID
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return panicErr.NodeID
	}
	var cancelErr *CancellationError
	if errors.As(err, &cancelErr) {
		return cancelErr.NodeID
	}
	var maxErr *MaxStepsError
	if errors.As(err, &maxErr) {
		return maxErr.LastNodeID
	}
	var cpErr *CheckpointError
	if errors.As(err, &cpErr) {
		return cpErr.NodeID
	}
	var routeErr *RoutingError
	if errors.As(err, &routeErr) {
		return routeErr.FromNode
	}
	return ""
}

// runFrom executes the step loop starting from a specific node.
// seq is the sequence number of the last durable checkpoint (0 for a fresh
// run). Returns the final state, the number of steps executed, and any error.
func (cg *CompiledGraph[S, P]) runFrom(tracingCtx context.Context, ec *executionContext, state S, startNode string, seq int, store checkpoint.Store, sink EventSink[S, P], cfg *runConfig) (S, int, error) {
	current := startNode
	steps := 0

	for current != END {
		steps++
		if steps > cg.maxSteps {
			return state, steps - 1, &MaxStepsError{
				Max:        cg.maxSteps,
				LastNodeID: current,
			}
		}

		// Check for cancellation before executing the node. Nothing is
		// persisted for the in-flight step, so the thread stays resumable
		// from its last checkpoint.
		select {
		case <-ec.Done():
			return state, steps - 1, &CancellationError{
				NodeID:       current,
				Cause:        ec.Err(),
				WasExecuting: false,
			}
		default:
		}

		stepCtx := ec.withNode(current, seq+1)
		observability.LogNodeStart(stepCtx.logger, current)

		nodeTracingCtx := tracingCtx
		var nodeSpan trace.Span
		if cfg.tracingEnabled {
			nodeTracingCtx, nodeSpan = cfg.spans.StartNodeSpan(tracingCtx, current)
		}

		nodeStart := time.Now()
		partial, nodeErr := cg.executeNode(stepCtx, current, state)
		nodeDuration := time.Since(nodeStart)

		cfg.metrics.RecordNodeExecution(nodeTracingCtx, current, nodeDuration, nodeErr)
		if cfg.tracingEnabled {
			cfg.spans.EndSpanWithError(nodeSpan, nodeErr)
		}

		if nodeErr != nil {
			if ec.Err() != nil && errors.Is(nodeErr, ec.Err()) {
				nodeErr = &CancellationError{
					NodeID:       current,
					Cause:        ec.Err(),
					WasExecuting: true,
				}
			}
			observability.LogNodeError(stepCtx.logger, current, nodeErr)
			return state, steps - 1, nodeErr
		}
		observability.LogNodeComplete(stepCtx.logger, current, float64(nodeDuration.Milliseconds()))

		// Merge the node's partial. A merge error is a schema violation:
		// nothing is persisted for this step and the last valid checkpoint
		// remains authoritative.
		merged, err := cg.apply(state, partial)
		if err != nil {
			return state, steps - 1, &SchemaViolationError{NodeID: current, Err: err}
		}
		state = merged
		seq++

		// Suspend at the interrupt node. Its successor is resolved at resume
		// time, so the checkpoint carries a pending interrupt instead of a
		// next node.
		if current == cg.interruptNode {
			var payload any
			if cg.interruptPayload != nil {
				payload = cg.interruptPayload(state)
			}
			if err := cg.saveSuspendCheckpoint(stepCtx, cfg, store, current, seq, state, payload); err != nil {
				return state, steps, err
			}
			cfg.metrics.RecordSuspension(stepCtx, current)
			emit(sink, StepEvent[S, P]{
				ThreadID: ec.threadID,
				Seq:      seq,
				Node:     current,
				Partial:  partial,
				State:    state,
			})
			return state, steps, &InterruptError{
				ThreadID: ec.threadID,
				NodeID:   current,
				StepSeq:  seq,
				Payload:  payload,
			}
		}

		next, outcome, patch, err := cg.route(stepCtx, state, current)
		if err != nil {
			return state, steps - 1, err
		}
		if patch != nil {
			merged, err := cg.apply(state, *patch)
			if err != nil {
				return state, steps - 1, &SchemaViolationError{NodeID: current, Err: err}
			}
			state = merged
		}

		if err := cg.saveCheckpoint(stepCtx, cfg, store, current, seq, state, next); err != nil {
			return state, steps - 1, err
		}

		emit(sink, StepEvent[S, P]{
			ThreadID: ec.threadID,
			Seq:      seq,
			Node:     current,
			Partial:  partial,
			Patch:    patch,
			State:    state,
		})

		observability.LogRoute(stepCtx.logger, current, outcome, next)
		current = next
	}

	return state, steps, nil
}

// emit delivers a step event to the sink, if one is configured.
// Delivery is synchronous: a slow sink backpressures the run rather than
// losing or reordering events.
func emit[S, P any](sink EventSink[S, P], ev StepEvent[S, P]) {
	if sink != nil {
		sink(ev)
	}
}

// executeNode executes a single node with panic recovery.
// Returns the partial update and any error (including wrapped panics).
func (cg *CompiledGraph[S, P]) executeNode(ctx Context, nodeID string, state S) (partial P, err error) {
	fn, exists := cg.getNode(nodeID)
	if !exists {
		// This shouldn't happen if compilation was successful
		return partial, &NodeError{
			NodeID: nodeID,
			Op:     "lookup",
			Err:    fmt.Errorf("node not found: %s", nodeID),
		}
	}

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			var zero P
			partial = zero
			err = &PanicError{
				NodeID: nodeID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	partial, err = fn(ctx, state)
	if err != nil {
		return partial, &NodeError{
			NodeID: nodeID,
			Op:     "execute",
			Err:    err,
		}
	}

	return partial, nil
}

// route resolves the next node after current, using its conditional edge if
// one exists and its static edge otherwise. Returns the resolved outcome
// (empty for static edges) and the routing patch, if the router produced one.
func (cg *CompiledGraph[S, P]) route(ctx Context, state S, current string) (string, string, *P, error) {
	if ce, exists := cg.getConditional(current); exists {
		decision := ce.router(ctx, state)
		target, registered := ce.outcomes[decision.Outcome]
		if !registered {
			return "", "", nil, &RoutingError{
				FromNode: current,
				Outcome:  decision.Outcome,
			}
		}
		return target, decision.Outcome, decision.Patch, nil
	}

	next, exists := cg.successors[current]
	if !exists {
		// This shouldn't happen if compilation was successful
		return "", "", nil, &NodeError{
			NodeID: current,
			Op:     "routing",
			Err:    fmt.Errorf("no outgoing edge from node %s", current),
		}
	}
	return next, "", nil, nil
}

// saveCheckpoint persists the state after one completed step. Checkpoint
// writes are load-bearing for the resume protocol, so any failure is fatal to
// the run.
func (cg *CompiledGraph[S, P]) saveCheckpoint(ctx *executionContext, cfg *runConfig, store checkpoint.Store, nodeID string, seq int, state S, nextNode string) error {
	stateBytes, err := json.Marshal(state)
	if err != nil {
		return &CheckpointError{NodeID: nodeID, Op: "serialize", Err: err}
	}

	cp := checkpoint.New(ctx.threadID, nodeID, seq, stateBytes, nextNode)
	if err := store.Save(cp); err != nil {
		return &CheckpointError{NodeID: nodeID, Op: "save", Err: err}
	}

	sizeBytes := len(stateBytes)
	observability.LogCheckpoint(ctx.logger, nodeID, seq, sizeBytes)
	cfg.metrics.RecordCheckpoint(ctx, nodeID, int64(sizeBytes))
	return nil
}

// saveSuspendCheckpoint persists the state at the interrupt node with a
// pending interrupt record. The run is only considered suspended once this
// write succeeds.
func (cg *CompiledGraph[S, P]) saveSuspendCheckpoint(ctx *executionContext, cfg *runConfig, store checkpoint.Store, nodeID string, seq int, state S, payload any) error {
	stateBytes, err := json.Marshal(state)
	if err != nil {
		return &CheckpointError{NodeID: nodeID, Op: "serialize", Err: err}
	}

	var payloadBytes []byte
	if payload != nil {
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return &CheckpointError{NodeID: nodeID, Op: "serialize", Err: err}
		}
	}

	cp := checkpoint.New(ctx.threadID, nodeID, seq, stateBytes, "").
		WithInterrupt(nodeID, payloadBytes)
	if err := store.Save(cp); err != nil {
		return &CheckpointError{NodeID: nodeID, Op: "save", Err: err}
	}

	sizeBytes := len(stateBytes)
	observability.LogCheckpoint(ctx.logger, nodeID, seq, sizeBytes)
	cfg.metrics.RecordCheckpoint(ctx, nodeID, int64(sizeBytes))
	return nil
}
