package stateflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryPoint indicates SetEntry() was not called before Compile().
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point references a non-existent node.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrNodeNotFound indicates an edge references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoApply indicates SetApply() was not called before Compile().
	ErrNoApply = errors.New("apply function not set")

	// ErrDuplicateEdge indicates a node has more than one static edge.
	ErrDuplicateEdge = errors.New("node has more than one static edge")

	// ErrConflictingEdges indicates a node has both a static and a
	// conditional edge; the two are mutually exclusive per node.
	ErrConflictingEdges = errors.New("node has both static and conditional edges")

	// ErrMissingEdge indicates a node has no outgoing edge at all.
	ErrMissingEdge = errors.New("node has no outgoing edge")

	// ErrNoOutcomes indicates a conditional edge was registered with an
	// empty outcome map.
	ErrNoOutcomes = errors.New("conditional edge has no outcomes")

	// ErrInterruptNotFound indicates SetInterrupt named an unknown node.
	ErrInterruptNotFound = errors.New("interrupt node not found")

	// ErrInterruptNeedsRouter indicates the interrupt node has no
	// conditional edge. Successor resolution for the interrupt node happens
	// at resume time and is always a routing decision.
	ErrInterruptNeedsRouter = errors.New("interrupt node requires a conditional edge")

	// ErrNoPathToEnd indicates no path exists from the entry point to END.
	ErrNoPathToEnd = errors.New("no path to END from entry")
)

// Sentinel errors for execution.
var (
	// ErrMaxSteps indicates the step loop exceeded the configured limit.
	ErrMaxSteps = errors.New("exceeded maximum steps")

	// ErrNilContext indicates Run() or Resume() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrNilStore indicates Run() or Resume() was called without a checkpoint
	// store. Per-step checkpointing is not optional.
	ErrNilStore = errors.New("checkpoint store cannot be nil")
)

// Sentinel errors for checkpointing and resume.
var (
	// ErrNoSuchThread indicates no checkpoint chain exists for the thread.
	ErrNoSuchThread = errors.New("no checkpoints found for thread")

	// ErrNotSuspended indicates the latest checkpoint for the thread does
	// not carry a pending interrupt, so there is nothing to resume.
	ErrNotSuspended = errors.New("thread is not suspended")

	// ErrDeserializeState indicates checkpointed state failed to decode.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrCheckpointVersionMismatch indicates the checkpoint format version
	// is incompatible with this build.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// SchemaViolationError indicates a node's output, once merged, failed
// structural validation. Nothing is persisted for the offending step; the
// last valid checkpoint remains authoritative.
type SchemaViolationError struct {
	// NodeID is the node whose partial produced the invalid document.
	NodeID string
	// Err describes the violated constraint.
	Err error
}

// Error implements the error interface.
func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation after node %s: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SchemaViolationError) Unwrap() error {
	return e.Err
}

// NodeError wraps a node execution failure with node context.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed (e.g., "execute").
	Op string
	// Err is the underlying error from the node.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from node execution.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError captures the point at which execution was cancelled.
// No checkpoint is written for the in-flight step; the run remains resumable
// from the last completed step.
type CancellationError struct {
	// NodeID is the node that was about to execute or was executing.
	NodeID string
	// Cause is the underlying cancellation cause.
	Cause error
	// WasExecuting is true if cancellation occurred during node execution.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// RoutingError indicates a routing function returned an outcome absent from
// its registered set. Against a compiled graph this is a programming-contract
// violation, not a recoverable runtime condition.
type RoutingError struct {
	// FromNode is the node with the conditional edge.
	FromNode string
	// Outcome is the value the router returned.
	Outcome string
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	return fmt.Sprintf("router from %s returned unregistered outcome %q", e.FromNode, e.Outcome)
}

// MaxStepsError provides context when the step limit is exceeded.
type MaxStepsError struct {
	// Max is the configured step limit.
	Max int
	// LastNodeID is the node that would have executed next.
	LastNodeID string
}

// Error implements the error interface.
func (e *MaxStepsError) Error() string {
	return fmt.Sprintf("exceeded maximum steps (%d) at node %s", e.Max, e.LastNodeID)
}

// Unwrap returns ErrMaxSteps for errors.Is support.
func (e *MaxStepsError) Unwrap() error {
	return ErrMaxSteps
}

// CheckpointError wraps a checkpoint persistence failure. Checkpoint writes
// are load-bearing for the resume protocol, so these are always fatal to the
// run.
type CheckpointError struct {
	// NodeID is the node whose step could not be checkpointed.
	NodeID string
	// Op is the operation that failed ("serialize", "save").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s at node %s: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// InterruptError reports that the run reached its interrupt node and is now
// suspended. The checkpoint for the interrupt step is already durable, so the
// caller may drop the run entirely and resume later, from another process if
// the checkpoint store is externally durable. It is returned by Run (and by
// Resume, if the graph loops back into the interrupt node) and is a suspend
// signal, not a failure.
type InterruptError struct {
	// ThreadID identifies the suspended run.
	ThreadID string
	// NodeID is the interrupt node.
	NodeID string
	// StepSeq is the sequence number of the durable checkpoint.
	StepSeq int
	// Payload is the caller-visible suspension payload produced by the
	// function registered with SetInterrupt.
	Payload any
}

// Error implements the error interface.
func (e *InterruptError) Error() string {
	return fmt.Sprintf("run %s suspended at node %s (step %d)", e.ThreadID, e.NodeID, e.StepSeq)
}

// AsInterrupt extracts an InterruptError, reporting whether err represents a
// suspension rather than a failure.
func AsInterrupt(err error) (*InterruptError, bool) {
	var intr *InterruptError
	if errors.As(err, &intr) {
		return intr, true
	}
	return nil, false
}
