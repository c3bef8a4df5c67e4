package research

import (
	"github.com/randalmurphal/stateflow/pkg/stateflow"
)

// ApprovalRequest is the payload surfaced to the caller when a run suspends
// at the approval gate.
type ApprovalRequest struct {
	Plan  *Plan  `json:"plan"`
	Audit *Audit `json:"audit,omitempty"`
}

// BuildGraph wires the research workflow:
//
//	thinker -> auditor -(revise)-> thinker
//	                    -(approve)-> hitl_gate
//	                    -(give_up)-> END
//	hitl_gate [interrupt] -(proceed)-> tool_executor
//	                      -(reject)-> END
//	tool_executor -(next_step)-> tool_executor
//	              -(finalize)-> synthesizer
//	synthesizer -> END
//
// maxSteps bounds the step loop; 0 keeps the engine default.
func BuildGraph(cap Capability, maxSteps int) (*stateflow.CompiledGraph[StateDocument, Partial], error) {
	g := stateflow.NewGraph[StateDocument, Partial]().
		AddNode(NodeThinker, thinkerNode(cap)).
		AddNode(NodeAuditor, auditorNode(cap)).
		AddNode(NodeHitlGate, gateNode()).
		AddNode(NodeToolExecutor, toolExecutorNode(cap)).
		AddNode(NodeSynthesizer, synthesizerNode(cap)).
		AddEdge(NodeThinker, NodeAuditor).
		AddConditionalEdge(NodeAuditor, auditRouter, map[string]string{
			outcomeRevise:  NodeThinker,
			outcomeApprove: NodeHitlGate,
			outcomeGiveUp:  stateflow.END,
		}).
		AddConditionalEdge(NodeHitlGate, gateRouter, map[string]string{
			outcomeProceed: NodeToolExecutor,
			outcomeReject:  stateflow.END,
		}).
		AddConditionalEdge(NodeToolExecutor, toolRouter, map[string]string{
			outcomeNextStep: NodeToolExecutor,
			outcomeFinalize: NodeSynthesizer,
		}).
		AddEdge(NodeSynthesizer, stateflow.END).
		SetEntry(NodeThinker).
		SetInterrupt(NodeHitlGate, approvalPayload).
		SetApply(MergeStep).
		SetResumeApply(MergeResume)

	if maxSteps > 0 {
		g.SetMaxSteps(maxSteps)
	}

	return g.Compile()
}

// approvalPayload builds the suspension payload from the state at the gate.
func approvalPayload(state StateDocument) any {
	return ApprovalRequest{Plan: state.Plan, Audit: state.Audit}
}
