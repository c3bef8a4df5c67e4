package research

import (
	"fmt"

	"github.com/randalmurphal/stateflow/pkg/stateflow"
)

// Node identifiers for the research graph.
const (
	NodeThinker      = "thinker"
	NodeAuditor      = "auditor"
	NodeHitlGate     = "hitl_gate"
	NodeToolExecutor = "tool_executor"
	NodeSynthesizer  = "synthesizer"
)

// thinkerNode drafts (or redrafts) the research plan. On a revision cycle the
// auditor's rejection feedback is forwarded to the capability, and the step
// index resets because the new plan's steps start over.
func thinkerNode(cap Capability) stateflow.NodeFunc[StateDocument, Partial] {
	return func(ctx stateflow.Context, state StateDocument) (Partial, error) {
		feedback := ""
		if state.Audit != nil && state.Audit.Verdict != VerdictApproved {
			feedback = state.Audit.Feedback
		}

		plan, err := cap.GeneratePlan(ctx, state.UserQuery, feedback)
		if err != nil {
			return Partial{}, err
		}

		note := fmt.Sprintf("drafted plan %q with %d steps", plan.Objective, len(plan.Steps))
		if feedback != "" {
			note = fmt.Sprintf("revised plan %q with %d steps after feedback: %s",
				plan.Objective, len(plan.Steps), feedback)
		}

		return Partial{
			Status:           stateflow.Set(StatusThinking),
			Plan:             stateflow.Set(plan),
			CurrentStepIndex: stateflow.Set(0),
			Reasoning:        stateflow.Set([]string{note}),
		}, nil
	}
}

// auditorNode reviews the current plan. Routing on the verdict (and the
// revision ceiling) belongs to the audit router, not this node.
func auditorNode(cap Capability) stateflow.NodeFunc[StateDocument, Partial] {
	return func(ctx stateflow.Context, state StateDocument) (Partial, error) {
		audit, err := cap.AuditPlan(ctx, state.Plan)
		if err != nil {
			return Partial{}, err
		}

		note := fmt.Sprintf("audit verdict: %s", audit.Verdict)
		if audit.Feedback != "" {
			note = fmt.Sprintf("audit verdict: %s (%s)", audit.Verdict, audit.Feedback)
		}

		return Partial{
			Audit:     stateflow.Set(audit),
			Reasoning: stateflow.Set([]string{note}),
		}, nil
	}
}

// gateNode marks the run as awaiting human approval. It is the graph's
// interrupt node: after its partial is merged and checkpointed, the run
// suspends until an external resume patch arrives.
func gateNode() stateflow.NodeFunc[StateDocument, Partial] {
	return func(ctx stateflow.Context, state StateDocument) (Partial, error) {
		return Partial{
			Status:    stateflow.Set(StatusAwaitingApproval),
			Reasoning: stateflow.Set([]string{"plan approved by auditor, awaiting human approval"}),
		}, nil
	}
}

// toolExecutorNode executes exactly one plan step per invocation, so every
// step's output is durably checkpointed before the next is attempted.
func toolExecutorNode(cap Capability) stateflow.NodeFunc[StateDocument, Partial] {
	return func(ctx stateflow.Context, state StateDocument) (Partial, error) {
		idx := state.CurrentStepIndex
		if state.Plan == nil || idx >= len(state.Plan.Steps) {
			return Partial{}, fmt.Errorf("no plan step at index %d", idx)
		}

		step := state.Plan.Steps[idx]
		output, err := cap.DispatchTool(ctx, step.Tool, step.Input)
		if err != nil {
			return Partial{}, err
		}

		plan := state.Plan.Clone()
		plan.Steps[idx].Result = output

		return Partial{
			Status:           stateflow.Set(StatusExecuting),
			Plan:             stateflow.Set(plan),
			CurrentStepIndex: stateflow.Set(idx + 1),
			Reasoning: stateflow.Set([]string{
				fmt.Sprintf("executed step %d/%d (%s)", idx+1, len(plan.Steps), step.Tool),
			}),
		}, nil
	}
}

// synthesizerNode produces the final report from the executed plan.
func synthesizerNode(cap Capability) stateflow.NodeFunc[StateDocument, Partial] {
	return func(ctx stateflow.Context, state StateDocument) (Partial, error) {
		report, err := cap.SynthesizeReport(ctx, state.Plan)
		if err != nil {
			return Partial{}, err
		}

		return Partial{
			Status:    stateflow.Set(StatusComplete),
			Report:    stateflow.Set(report),
			Reasoning: stateflow.Set([]string{"synthesized final report"}),
		}, nil
	}
}
