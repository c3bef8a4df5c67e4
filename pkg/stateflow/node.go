package stateflow

// END is the terminal marker.
// Use this as an edge target or router outcome target to indicate the run
// should terminate.
const END = "__end__"

// NodeFunc is the signature for all node functions.
// Nodes receive the execution context and the current state, and return a
// partial update that the engine merges through the graph's apply function.
//
// The state parameter is passed by value. Nodes must not mutate shared state
// through it; everything a node wants to change goes into the returned
// partial.
type NodeFunc[S, P any] func(ctx Context, state S) (P, error)

// Decision is the result of a routing function: one outcome from the edge's
// registered set, plus an optional state patch merged before the next node
// runs. The patch is how the routing layer (rather than a node) adjusts state
// as part of a routing choice, such as bumping a revision counter on a
// reject-and-retry cycle.
type Decision[P any] struct {
	// Outcome names one key of the conditional edge's outcome map.
	Outcome string

	// Patch, when non-nil, is merged via the graph's apply function after the
	// outcome is resolved and before the checkpoint for the step is written.
	Patch *P
}

// Goto returns a Decision with no patch.
func Goto[P any](outcome string) Decision[P] {
	return Decision[P]{Outcome: outcome}
}

// GotoWith returns a Decision carrying a state patch.
func GotoWith[P any](outcome string, patch P) Decision[P] {
	return Decision[P]{Outcome: outcome, Patch: &patch}
}

// RouterFunc determines the next node for a conditional edge based on the
// state after the source node's partial was merged. The returned Decision
// must name one of the outcomes registered with AddConditionalEdge; anything
// else is a fatal RoutingError at runtime.
type RouterFunc[S, P any] func(ctx Context, state S) Decision[P]

// ApplyFunc merges a partial update into the current state, one field at a
// time according to that field's channel. It must be pure: the returned state
// shares no mutable sequence references with either input. An error means the
// merged document failed structural validation; the engine treats it as a
// schema violation and persists nothing for the step.
type ApplyFunc[S, P any] func(current S, partial P) (S, error)
