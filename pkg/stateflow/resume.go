package stateflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/stateflow/pkg/stateflow/checkpoint"
	"github.com/randalmurphal/stateflow/pkg/stateflow/observability"
	"go.opentelemetry.io/otel/trace"
)

// Resume continues a suspended thread. It loads the thread's latest
// checkpoint, merges the external patch through the resume apply function,
// resolves the interrupt node's conditional edge against the patched state,
// and re-enters the step loop at the resolved successor.
//
// The patch is the only way external input enters a suspended run; fields the
// resume apply function accepts (an approval flag, say) can be set here even
// when node partials may never set them.
//
// Returns ErrNoSuchThread if the thread has no checkpoints and ErrNotSuspended
// if its latest checkpoint carries no pending interrupt. Both are inspection
// failures: nothing is persisted and the thread is left untouched.
//
// If the graph loops back into the interrupt node, Resume suspends again and
// returns a fresh *InterruptError, exactly like Run.
//
// Example:
//
//	result, err := compiled.Run(ctx, state, store, sink)
//	if intr, ok := stateflow.AsInterrupt(err); ok {
//	    // ... collect human input ...
//	    result, err = compiled.Resume(ctx, store, intr.ThreadID, patch, sink)
//	}
func (cg *CompiledGraph[S, P]) Resume(ctx Context, store checkpoint.Store, threadID string, patch P, sink EventSink[S, P], opts ...RunOption) (result S, runErr error) {
	var zero S

	if ctx == nil {
		return zero, ErrNilContext
	}
	if store == nil {
		return zero, ErrNilStore
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cp, err := store.Latest(threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return zero, fmt.Errorf("%w: %s", ErrNoSuchThread, threadID)
		}
		return zero, fmt.Errorf("load checkpoint: %w", err)
	}

	if !cp.Suspended() {
		return zero, fmt.Errorf("%w: %s", ErrNotSuspended, threadID)
	}

	if cp.Version != checkpoint.Version {
		return zero, fmt.Errorf("%w: got %d, expected %d",
			ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version)
	}

	var state S
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	// Resume under the suspended thread's identity regardless of what the
	// caller's context carries.
	ec := normalizeContext(ctx)
	if ec.threadID != threadID {
		ec = &executionContext{
			Context:  ec.Context,
			logger:   ec.logger,
			threadID: threadID,
		}
	}

	interruptNode := cp.Interrupt.NodeID
	seq := cp.StepSeq

	startTime := time.Now()
	observability.LogRunResume(ec.logger, threadID, interruptNode, seq)

	var tracingCtx context.Context = ec
	var runSpan trace.Span
	if cfg.tracingEnabled {
		tracingCtx, runSpan = cfg.spans.StartRunSpan(ec, threadID)
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	stepCtx := ec.withNode(interruptNode, seq+1)

	// Merge the external patch. On violation nothing is persisted; the thread
	// stays suspended at its existing checkpoint.
	state, err = cg.resumeApply(state, patch)
	if err != nil {
		runErr = &SchemaViolationError{NodeID: interruptNode, Err: err}
		return state, runErr
	}

	// The interrupt node's routing was deferred to this moment so the router
	// sees the patched state.
	next, outcome, routePatch, err := cg.route(stepCtx, state, interruptNode)
	if err != nil {
		runErr = err
		return state, runErr
	}
	if routePatch != nil {
		merged, err := cg.apply(state, *routePatch)
		if err != nil {
			runErr = &SchemaViolationError{NodeID: interruptNode, Err: err}
			return state, runErr
		}
		state = merged
	}

	// The resolution itself is a step: it gets a checkpoint (clearing the
	// pending interrupt) and a step event carrying the external patch.
	seq++
	if err := cg.saveCheckpoint(stepCtx, &cfg, store, interruptNode, seq, state, next); err != nil {
		runErr = err
		return state, runErr
	}

	emit(sink, StepEvent[S, P]{
		ThreadID: threadID,
		Seq:      seq,
		Node:     interruptNode,
		Partial:  patch,
		Patch:    routePatch,
		State:    state,
	})

	observability.LogRoute(stepCtx.logger, interruptNode, outcome, next)

	var steps int
	if next == END {
		steps = 1
	} else {
		result, steps, runErr = cg.runFrom(tracingCtx, ec, state, next, seq, store, sink, &cfg)
		state = result
		steps++
	}

	duration := time.Since(startTime)
	durationMs := float64(duration.Milliseconds())

	if intr, ok := AsInterrupt(runErr); ok {
		observability.LogRunSuspended(ec.logger, threadID, intr.NodeID, intr.StepSeq)
		return state, runErr
	}

	cfg.metrics.RecordRun(ec, runErr == nil, duration)

	if runErr != nil {
		observability.LogRunError(ec.logger, threadID, runErr, durationMs, LastNode(runErr))
	} else {
		observability.LogRunComplete(ec.logger, threadID, durationMs, steps)
	}

	return state, runErr
}
