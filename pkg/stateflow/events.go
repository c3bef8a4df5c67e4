package stateflow

// StepEvent describes one completed step of a run: the node that executed,
// the partial it produced, and the state document after merging. Events are
// delivered to the sink in execution order, one per step, before the next
// step begins; no reordering or coalescing is permitted, since consumers rely
// on last-event-wins semantics per field.
//
// There is no final "done" event. Consumers detect completion by observing
// the run call return, or by a terminal status field in the last event's
// state.
type StepEvent[S, P any] struct {
	// ThreadID identifies the run.
	ThreadID string `json:"thread_id"`

	// Seq is the step sequence number, matching the checkpoint written for
	// the step.
	Seq int `json:"seq"`

	// Node is the node that executed.
	Node string `json:"node"`

	// Partial is the update the node produced. Any given event carries only
	// the fields its node wrote; consumers must tolerate arbitrary partial
	// presence.
	Partial P `json:"partial"`

	// Patch is the routing layer's state patch for the step, if the node's
	// conditional edge produced one.
	Patch *P `json:"patch,omitempty"`

	// State is the full document after the step's merges.
	State S `json:"state"`
}

// EventSink receives step events. The executor invokes the sink synchronously
// between steps, so a slow sink backpressures the run rather than losing or
// reordering events.
type EventSink[S, P any] func(StepEvent[S, P])
