package research

import (
	"context"
	"fmt"
)

// Capability is the external collaborator interface the workflow's nodes call
// out to. Implementations are stateless services; the engine never pools or
// serializes access beyond what the implementation itself requires.
type Capability interface {
	// GeneratePlan drafts a research plan for the query. feedback carries the
	// auditor's rejection feedback on a revision cycle, or "" on the first
	// attempt. May fail with a *GenerationError.
	GeneratePlan(ctx context.Context, query, feedback string) (*Plan, error)

	// AuditPlan reviews a plan and returns a verdict with optional feedback.
	// May fail with a *GenerationError.
	AuditPlan(ctx context.Context, plan *Plan) (*Audit, error)

	// DispatchTool executes one tool invocation and returns its output text.
	// May fail with a *ToolError.
	DispatchTool(ctx context.Context, kind ToolKind, input string) (string, error)

	// SynthesizeReport produces the final report from the executed plan.
	// May fail with a *GenerationError.
	SynthesizeReport(ctx context.Context, plan *Plan) (string, error)
}

// GenerationError indicates an inference backend failure during plan
// generation, auditing, or synthesis.
type GenerationError struct {
	// Op is the capability operation that failed.
	Op string
	// Err is the underlying backend error.
	Err error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ToolError indicates a tool invocation failure.
type ToolError struct {
	// Kind is the tool that failed.
	Kind ToolKind
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ToolError) Unwrap() error {
	return e.Err
}
