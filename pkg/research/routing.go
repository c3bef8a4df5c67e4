package research

import (
	"fmt"

	"github.com/randalmurphal/stateflow/pkg/stateflow"
)

// Outcome keys for the graph's conditional edges.
const (
	outcomeRevise   = "revise"
	outcomeApprove  = "approve"
	outcomeGiveUp   = "give_up"
	outcomeProceed  = "proceed"
	outcomeReject   = "reject"
	outcomeNextStep = "next_step"
	outcomeFinalize = "finalize"
)

// auditRouter guards the audit -> thinker revision cycle.
//
// The revision counter is incremented here, by the routing layer, as part of
// the reject decision. The ceiling is a hard safety bound: once RevisionCount
// reaches MaxRevisions the run terminates with a "gave up" marker regardless
// of verdict. That is a normal terminal outcome, not a fault.
func auditRouter(ctx stateflow.Context, state StateDocument) stateflow.Decision[Partial] {
	gaveUp := func(count int) stateflow.Decision[Partial] {
		return stateflow.GotoWith(outcomeGiveUp, Partial{
			Status:       stateflow.Set(StatusFailed),
			ErrorMessage: stateflow.Set(fmt.Sprintf("gave up after %d revisions", count)),
		})
	}

	if state.RevisionCount >= state.MaxRevisions {
		return gaveUp(state.RevisionCount)
	}

	if state.Audit == nil || state.Audit.Verdict != VerdictApproved {
		count := state.RevisionCount + 1
		if count >= state.MaxRevisions {
			return stateflow.GotoWith(outcomeGiveUp, Partial{
				RevisionCount: stateflow.Set(count),
				Status:        stateflow.Set(StatusFailed),
				ErrorMessage:  stateflow.Set(fmt.Sprintf("gave up after %d revisions", count)),
			})
		}
		return stateflow.GotoWith(outcomeRevise, Partial{
			RevisionCount: stateflow.Set(count),
		})
	}

	return stateflow.Goto[Partial](outcomeApprove)
}

// gateRouter resolves the interrupt node's successor at resume time.
//
// Fail-closed: tool execution proceeds only when the approval flag was
// explicitly set by the resume patch. Any other state, including a resume
// that never set the flag, routes to terminal.
func gateRouter(ctx stateflow.Context, state StateDocument) stateflow.Decision[Partial] {
	if state.HumanApproved {
		return stateflow.GotoWith(outcomeProceed, Partial{
			Status: stateflow.Set(StatusExecuting),
		})
	}
	return stateflow.GotoWith(outcomeReject, Partial{
		Status:       stateflow.Set(StatusFailed),
		ErrorMessage: stateflow.Set("human approval not granted"),
	})
}

// toolRouter drives the tool loop one step at a time. It is re-evaluated
// after every single step; the finalize decision fires exactly once, when the
// step index first equals the plan length.
func toolRouter(ctx stateflow.Context, state StateDocument) stateflow.Decision[Partial] {
	if state.Plan != nil && state.CurrentStepIndex < len(state.Plan.Steps) {
		return stateflow.Goto[Partial](outcomeNextStep)
	}
	return stateflow.Goto[Partial](outcomeFinalize)
}
