// Package research implements a deep-research workflow on top of the
// stateflow engine: a thinker drafts a multi-step plan, an auditor reviews it
// in a bounded revision loop, a human approves it at a durable suspend point,
// and a tool loop executes the plan one checkpointed step at a time before a
// final report is synthesized.
package research

import (
	"fmt"

	"github.com/randalmurphal/stateflow/pkg/stateflow"
)

// Status is the run lifecycle phase. The set is closed; anything else is a
// schema violation.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusThinking         Status = "thinking"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusExecuting        Status = "executing"
	StatusComplete         Status = "complete"
	StatusFailed           Status = "failed"
)

// Valid reports whether the status is a member of the closed set.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusThinking, StatusAwaitingApproval,
		StatusExecuting, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// ToolKind identifies a tool a plan step may invoke. The set is closed;
// anything else is a schema violation.
type ToolKind string

const (
	ToolWebSearch       ToolKind = "web_search"
	ToolDocumentFetch   ToolKind = "document_fetch"
	ToolCodeInterpreter ToolKind = "code_interpreter"
	ToolSummarize       ToolKind = "summarize"
)

// Valid reports whether the tool kind is a member of the closed set.
func (k ToolKind) Valid() bool {
	switch k {
	case ToolWebSearch, ToolDocumentFetch, ToolCodeInterpreter, ToolSummarize:
		return true
	}
	return false
}

// Verdict is the auditor's judgment of a plan.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
)

// PlanStep is one tool invocation in a plan. Result is empty until the step
// has executed.
type PlanStep struct {
	Tool   ToolKind `json:"tool"`
	Input  string   `json:"input"`
	Result string   `json:"result,omitempty"`
}

// Plan is the thinker's research plan.
type Plan struct {
	Objective string     `json:"objective"`
	Steps     []PlanStep `json:"steps"`
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	steps := make([]PlanStep, len(p.Steps))
	copy(steps, p.Steps)
	return &Plan{Objective: p.Objective, Steps: steps}
}

// Audit is the auditor's review of a plan.
type Audit struct {
	Verdict  Verdict `json:"verdict"`
	Feedback string  `json:"feedback,omitempty"`
}

// StateDocument is the shared state of one research run.
//
// ThreadID, UserQuery, SessionName, and MaxRevisions are fixed at creation
// and have no Partial counterpart, so no node can rewrite them.
type StateDocument struct {
	ThreadID    string `json:"thread_id"`
	UserQuery   string `json:"user_query"`
	SessionName string `json:"session_name,omitempty"`

	Status Status `json:"status"`
	Plan   *Plan  `json:"plan,omitempty"`
	Audit  *Audit `json:"audit,omitempty"`

	RevisionCount    int `json:"revision_count"`
	MaxRevisions     int `json:"max_revisions"`
	CurrentStepIndex int `json:"current_step_index"`

	// Reasoning is append-only; merges concatenate, never truncate.
	Reasoning []string `json:"reasoning,omitempty"`

	// HumanApproved defaults false and is settable only through a resume
	// patch, never by a node.
	HumanApproved bool `json:"human_approved"`

	Report       string `json:"report,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Partial is a node's (or resume patch's) update to the state document. Each
// field is wrapped in an explicit presence indicator; absent fields leave the
// document untouched.
type Partial struct {
	Status           stateflow.Field[Status]   `json:"status,omitzero"`
	Plan             stateflow.Field[*Plan]    `json:"plan,omitzero"`
	Audit            stateflow.Field[*Audit]   `json:"audit,omitzero"`
	RevisionCount    stateflow.Field[int]      `json:"revision_count,omitzero"`
	CurrentStepIndex stateflow.Field[int]      `json:"current_step_index,omitzero"`
	Reasoning        stateflow.Field[[]string] `json:"reasoning,omitzero"`
	HumanApproved    stateflow.Field[bool]     `json:"human_approved,omitzero"`
	Report           stateflow.Field[string]   `json:"report,omitzero"`
	ErrorMessage     stateflow.Field[string]   `json:"error_message,omitzero"`
}

// NewStateDocument creates the initial state for a run.
func NewStateDocument(threadID, query, session string, maxRevisions int) StateDocument {
	return StateDocument{
		ThreadID:     threadID,
		UserQuery:    query,
		SessionName:  session,
		Status:       StatusIdle,
		MaxRevisions: maxRevisions,
	}
}

// MergeStep merges a node partial into the document. Every field uses the
// replace channel except Reasoning, which appends. HumanApproved is rejected
// outright: only an external resume patch may set it.
//
// The merge is pure; the returned document shares no mutable sequence
// references with either input. An error means the merged document failed
// validation and nothing may be persisted for the step.
func MergeStep(current StateDocument, partial Partial) (StateDocument, error) {
	if partial.HumanApproved.Present() {
		return current, fmt.Errorf("human_approved cannot be set by a node")
	}
	return merge(current, partial)
}

// MergeResume merges an external resume patch into the document. Unlike
// MergeStep it accepts HumanApproved.
func MergeResume(current StateDocument, partial Partial) (StateDocument, error) {
	return merge(current, partial)
}

func merge(current StateDocument, partial Partial) (StateDocument, error) {
	next := current
	next.Status = stateflow.Replace(current.Status, partial.Status)
	next.Plan = stateflow.Replace(current.Plan, partial.Plan)
	next.Audit = stateflow.Replace(current.Audit, partial.Audit)
	next.RevisionCount = stateflow.Replace(current.RevisionCount, partial.RevisionCount)
	next.CurrentStepIndex = stateflow.Replace(current.CurrentStepIndex, partial.CurrentStepIndex)
	next.Reasoning = stateflow.Append(current.Reasoning, partial.Reasoning)
	next.HumanApproved = stateflow.Replace(current.HumanApproved, partial.HumanApproved)
	next.Report = stateflow.Replace(current.Report, partial.Report)
	next.ErrorMessage = stateflow.Replace(current.ErrorMessage, partial.ErrorMessage)

	if err := next.Validate(); err != nil {
		return current, err
	}
	return next, nil
}

// Validate checks the document's structural invariants.
func (d StateDocument) Validate() error {
	if !d.Status.Valid() {
		return fmt.Errorf("invalid status: %q", d.Status)
	}

	if d.RevisionCount < 0 {
		return fmt.Errorf("revision_count cannot be negative: %d", d.RevisionCount)
	}

	if d.CurrentStepIndex < 0 {
		return fmt.Errorf("current_step_index cannot be negative: %d", d.CurrentStepIndex)
	}

	planLen := 0
	if d.Plan != nil {
		planLen = len(d.Plan.Steps)
		for i, step := range d.Plan.Steps {
			if !step.Tool.Valid() {
				return fmt.Errorf("plan step %d: invalid tool kind: %q", i, step.Tool)
			}
		}
	}
	if d.CurrentStepIndex > planLen {
		return fmt.Errorf("current_step_index %d exceeds plan length %d", d.CurrentStepIndex, planLen)
	}

	return nil
}
