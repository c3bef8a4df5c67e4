package stateflow

import (
	"fmt"
	"strings"
	"sync"
)

// defaultMaxSteps bounds the step loop so cyclic graphs cannot spin forever.
const defaultMaxSteps = 1000

// conditionalEdge pairs a routing function with its enumerated outcome set.
type conditionalEdge[S, P any] struct {
	router   RouterFunc[S, P]
	outcomes map[string]string // outcome key -> target node or END
}

// Graph is a mutable builder for creating execution graphs.
// Use NewGraph to create a new graph, then chain AddNode, AddEdge,
// AddConditionalEdge, SetEntry, and SetApply calls to define the workflow.
//
// Graph is NOT thread-safe during building. Use a single goroutine to
// construct the graph, then call Compile() to create an immutable
// CompiledGraph that can be safely shared across runs.
//
// Example:
//
//	graph := stateflow.NewGraph[MyState, MyPartial]().
//	    AddNode("fetch", fetchNode).
//	    AddNode("process", processNode).
//	    AddEdge("fetch", "process").
//	    AddEdge("process", stateflow.END).
//	    SetEntry("fetch").
//	    SetApply(mergeStep)
//
//	compiled, err := graph.Compile()
type Graph[S, P any] struct {
	mu               sync.RWMutex
	nodes            map[string]NodeFunc[S, P]
	edges            map[string][]string
	conditionalEdges map[string]*conditionalEdge[S, P]
	entryPoint       string
	interruptNode    string
	interruptPayload func(S) any
	apply            ApplyFunc[S, P]
	resumeApply      ApplyFunc[S, P]
	maxSteps         int
}

// NewGraph creates a new graph builder for state type S and partial type P.
func NewGraph[S, P any]() *Graph[S, P] {
	return &Graph[S, P]{
		nodes:            make(map[string]NodeFunc[S, P]),
		edges:            make(map[string][]string),
		conditionalEdges: make(map[string]*conditionalEdge[S, P]),
		maxSteps:         defaultMaxSteps,
	}
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is the reserved word "END" or "__end__" (case-insensitive)
//   - id contains whitespace (space, tab, newline)
//   - fn is nil
//   - id already exists in the graph
func (g *Graph[S, P]) AddNode(id string, fn NodeFunc[S, P]) *Graph[S, P] {
	if id == "" {
		panic("stateflow: node ID cannot be empty")
	}

	idLower := strings.ToLower(id)
	if idLower == "end" || idLower == "__end__" {
		panic("stateflow: node ID cannot be reserved word 'END'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("stateflow: node ID cannot contain whitespace")
	}

	if fn == nil {
		panic("stateflow: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("stateflow: duplicate node ID: %s", id))
	}

	g.nodes[id] = fn
	return g
}

// AddEdge adds the static edge from one node to another.
// The target can be a node ID or stateflow.END.
// Returns the graph for method chaining.
//
// A node may have exactly one outgoing edge, static or conditional; violations
// are reported at Compile() time, so edges can be added in any order.
func (g *Graph[S, P]) AddEdge(from, to string) *Graph[S, P] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge adds a conditional edge where a RouterFunc picks the
// next node at runtime from an enumerated outcome set. outcomes maps each
// legal router outcome to a target node ID or stateflow.END.
// Returns the graph for method chaining.
//
// The router must return one of the keys of outcomes; anything else is a
// fatal RoutingError at runtime. Target validity is checked at Compile()
// time. A node can have either a static edge or a conditional edge, not both.
func (g *Graph[S, P]) AddConditionalEdge(from string, router RouterFunc[S, P], outcomes map[string]string) *Graph[S, P] {
	if router == nil {
		panic("stateflow: router function cannot be nil")
	}

	copied := make(map[string]string, len(outcomes))
	for outcome, target := range outcomes {
		copied[outcome] = target
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.conditionalEdges[from] = &conditionalEdge[S, P]{router: router, outcomes: copied}
	return g
}

// SetEntry designates the entry point node.
// This must be called before Compile().
// Returns the graph for method chaining.
func (g *Graph[S, P]) SetEntry(id string) *Graph[S, P] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryPoint = id
	return g
}

// SetInterrupt designates the node at which runs suspend. After the node's
// partial is merged and checkpointed, the step loop halts and Run returns an
// *InterruptError whose Payload is payload(state). Successor resolution for
// the interrupt node is deferred until Resume, so it must carry a conditional
// edge.
//
// payload may be nil, in which case the InterruptError carries no payload.
func (g *Graph[S, P]) SetInterrupt(id string, payload func(S) any) *Graph[S, P] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.interruptNode = id
	g.interruptPayload = payload
	return g
}

// SetApply sets the merge function applied to every node partial and router
// patch. This must be called before Compile().
// Returns the graph for method chaining.
func (g *Graph[S, P]) SetApply(fn ApplyFunc[S, P]) *Graph[S, P] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.apply = fn
	return g
}

// SetResumeApply sets a separate merge function for external resume patches.
// Domain code can use this to permit fields on the resume path that node
// partials may never set (an approval flag, for example). Defaults to the
// SetApply function.
// Returns the graph for method chaining.
func (g *Graph[S, P]) SetResumeApply(fn ApplyFunc[S, P]) *Graph[S, P] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resumeApply = fn
	return g
}

// SetMaxSteps bounds the number of node executions per run (default 1000).
// If a run exceeds this limit it fails with a MaxStepsError. Values <= 0 are
// ignored.
// Returns the graph for method chaining.
func (g *Graph[S, P]) SetMaxSteps(n int) *Graph[S, P] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n > 0 {
		g.maxSteps = n
	}
	return g
}
