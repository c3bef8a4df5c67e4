package stateflow

// CompiledGraph is an immutable, executable graph.
// It is created by calling Compile() on a Graph builder.
//
// CompiledGraph is thread-safe and can be shared by any number of concurrent
// Run() calls; each run carries fully independent state and checkpoint
// lineage. The graph structure cannot be modified after compilation.
//
// Use the introspection methods (NodeIDs, Successor, Outcomes, etc.) to
// examine the graph structure for debugging or visualization.
type CompiledGraph[S, P any] struct {
	nodes            map[string]NodeFunc[S, P]
	successors       map[string]string
	conditionalEdges map[string]*conditionalEdge[S, P]
	entryPoint       string
	interruptNode    string
	interruptPayload func(S) any
	apply            ApplyFunc[S, P]
	resumeApply      ApplyFunc[S, P]
	maxSteps         int
}

// EntryPoint returns the entry node ID.
func (cg *CompiledGraph[S, P]) EntryPoint() string {
	return cg.entryPoint
}

// InterruptNode returns the designated suspend-point node ID, or the empty
// string if the graph has none.
func (cg *CompiledGraph[S, P]) InterruptNode() string {
	return cg.interruptNode
}

// NodeIDs returns all node identifiers in the graph.
// The order is not guaranteed.
func (cg *CompiledGraph[S, P]) NodeIDs() []string {
	ids := make([]string, 0, len(cg.nodes))
	for id := range cg.nodes {
		ids = append(ids, id)
	}
	return ids
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph[S, P]) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// Successor returns the static successor of the given node, if it has one.
func (cg *CompiledGraph[S, P]) Successor(id string) (string, bool) {
	next, exists := cg.successors[id]
	return next, exists
}

// IsConditional returns true if the node has a conditional edge.
func (cg *CompiledGraph[S, P]) IsConditional(id string) bool {
	_, exists := cg.conditionalEdges[id]
	return exists
}

// Outcomes returns a copy of the outcome map for the given node's conditional
// edge, or nil if the node has none.
func (cg *CompiledGraph[S, P]) Outcomes(id string) map[string]string {
	ce, exists := cg.conditionalEdges[id]
	if !exists {
		return nil
	}
	outcomes := make(map[string]string, len(ce.outcomes))
	for outcome, target := range ce.outcomes {
		outcomes[outcome] = target
	}
	return outcomes
}

// getNode returns the node function for the given ID.
// Used internally by the executor.
func (cg *CompiledGraph[S, P]) getNode(id string) (NodeFunc[S, P], bool) {
	fn, exists := cg.nodes[id]
	return fn, exists
}

// getConditional returns the conditional edge for the given node.
// Used internally by the executor.
func (cg *CompiledGraph[S, P]) getConditional(id string) (*conditionalEdge[S, P], bool) {
	ce, exists := cg.conditionalEdges[id]
	return ce, exists
}
