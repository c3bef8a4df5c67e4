package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// SimulatedCapability is a deterministic, offline Capability for demos, the
// CLI's sim backend, and tests. Plans, audits, tool outputs, and reports are
// all scripted.
//
// Audit scripting counts calls per plan objective, so concurrent runs with
// distinct queries do not interfere.
type SimulatedCapability struct {
	// RejectFirst is how many audits to reject (with feedback) before
	// approving a given plan. 0 approves immediately.
	RejectFirst int

	// StepCount is the number of plan steps to generate (default 2).
	StepCount int

	mu     sync.Mutex
	audits map[string]int
}

// NewSimulatedCapability creates a simulated capability that rejects the
// first rejectFirst audits of each plan.
func NewSimulatedCapability(rejectFirst int) *SimulatedCapability {
	return &SimulatedCapability{RejectFirst: rejectFirst}
}

// GeneratePlan implements Capability.
func (s *SimulatedCapability) GeneratePlan(ctx context.Context, query, feedback string) (*Plan, error) {
	count := s.StepCount
	if count <= 0 {
		count = 2
	}

	steps := make([]PlanStep, 0, count)
	steps = append(steps, PlanStep{
		Tool:  ToolWebSearch,
		Input: query,
	})
	for len(steps) < count-1 {
		steps = append(steps, PlanStep{
			Tool:  ToolDocumentFetch,
			Input: fmt.Sprintf("primary sources for: %s", query),
		})
	}
	if len(steps) < count {
		steps = append(steps, PlanStep{
			Tool:  ToolSummarize,
			Input: fmt.Sprintf("findings on: %s", query),
		})
	}

	return &Plan{
		Objective: fmt.Sprintf("Research: %s", query),
		Steps:     steps,
	}, nil
}

// AuditPlan implements Capability.
func (s *SimulatedCapability) AuditPlan(ctx context.Context, plan *Plan) (*Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.audits == nil {
		s.audits = make(map[string]int)
	}
	n := s.audits[plan.Objective]
	s.audits[plan.Objective] = n + 1

	if n < s.RejectFirst {
		return &Audit{
			Verdict:  VerdictRejected,
			Feedback: fmt.Sprintf("needs more specific sourcing (pass %d)", n+1),
		}, nil
	}
	return &Audit{Verdict: VerdictApproved}, nil
}

// DispatchTool implements Capability.
func (s *SimulatedCapability) DispatchTool(ctx context.Context, kind ToolKind, input string) (string, error) {
	if !kind.Valid() {
		return "", &ToolError{Kind: kind, Err: fmt.Errorf("unknown tool kind")}
	}
	return fmt.Sprintf("[%s] simulated output for %q", kind, input), nil
}

// SynthesizeReport implements Capability.
func (s *SimulatedCapability) SynthesizeReport(ctx context.Context, plan *Plan) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", plan.Objective)
	for i, step := range plan.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step.Result)
	}
	return b.String(), nil
}
