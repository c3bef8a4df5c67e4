package stateflow

import (
	"errors"
	"fmt"
	"log/slog"
)

// Compile validates the graph and creates an executable CompiledGraph.
// Returns an error if validation fails. Multiple errors are joined together.
//
// Validation checks (in order):
//  1. An apply function must be set
//  2. Entry point must be set and reference an existing node
//  3. Static edge sources and targets must reference existing nodes (or END)
//  4. A node may not carry both a static and a conditional edge, nor more
//     than one static edge
//  5. Every conditional outcome target must reference an existing node or END
//  6. Every node must have exactly one outgoing edge
//  7. The interrupt node, if set, must exist and carry a conditional edge
//  8. A path from the entry point to END must exist
//
// Unreachable nodes (not reachable from entry) are logged as warnings
// but do not cause compilation to fail.
func (g *Graph[S, P]) Compile() (*CompiledGraph[S, P], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	if g.apply == nil {
		errs = append(errs, ErrNoApply)
	}

	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, exists := g.nodes[g.entryPoint]; !exists {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	}

	for from, targets := range g.edges {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrNodeNotFound, from))
		}

		if len(targets) > 1 {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateEdge, from))
		}

		if _, hasConditional := g.conditionalEdges[from]; hasConditional {
			errs = append(errs, fmt.Errorf("%w: %s", ErrConflictingEdges, from))
		}

		for _, to := range targets {
			if to != END {
				if _, exists := g.nodes[to]; !exists {
					errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrNodeNotFound, to))
				}
			}
		}
	}

	for from, ce := range g.conditionalEdges {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrNodeNotFound, from))
		}

		if len(ce.outcomes) == 0 {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoOutcomes, from))
		}

		for outcome, target := range ce.outcomes {
			if target != END {
				if _, exists := g.nodes[target]; !exists {
					errs = append(errs, fmt.Errorf("%w: outcome %q of '%s' targets '%s'", ErrNodeNotFound, outcome, from, target))
				}
			}
		}
	}

	for id := range g.nodes {
		_, hasStatic := g.edges[id]
		_, hasConditional := g.conditionalEdges[id]
		if !hasStatic && !hasConditional {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingEdge, id))
		}
	}

	if g.interruptNode != "" {
		if _, exists := g.nodes[g.interruptNode]; !exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInterruptNotFound, g.interruptNode))
		} else if _, hasConditional := g.conditionalEdges[g.interruptNode]; !hasConditional {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInterruptNeedsRouter, g.interruptNode))
		}
	}

	if g.entryPoint != "" {
		if _, exists := g.nodes[g.entryPoint]; exists {
			if !g.hasPathToEnd() {
				errs = append(errs, ErrNoPathToEnd)
			}
		}
	}

	g.warnUnreachableNodes()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return g.buildCompiledGraph(), nil
}

// hasPathToEnd checks if there's a path from entry to END using reverse
// reachability. Unlike graphs with open-ended routers, conditional edges here
// have enumerated outcome targets, so the analysis is exact.
func (g *Graph[S, P]) hasPathToEnd() bool {
	canReachEnd := make(map[string]bool)
	canReachEnd[END] = true

	// Propagate until fixpoint.
	changed := true
	for changed {
		changed = false

		for from, targets := range g.edges {
			if canReachEnd[from] {
				continue
			}
			for _, to := range targets {
				if canReachEnd[to] {
					canReachEnd[from] = true
					changed = true
					break
				}
			}
		}

		for from, ce := range g.conditionalEdges {
			if canReachEnd[from] {
				continue
			}
			for _, target := range ce.outcomes {
				if canReachEnd[target] {
					canReachEnd[from] = true
					changed = true
					break
				}
			}
		}
	}

	return canReachEnd[g.entryPoint]
}

// warnUnreachableNodes logs warnings for nodes not reachable from entry.
func (g *Graph[S, P]) warnUnreachableNodes() {
	if g.entryPoint == "" {
		return
	}

	reachable := g.findReachableNodes()

	for nodeID := range g.nodes {
		if !reachable[nodeID] {
			slog.Warn("node is unreachable from entry", "node_id", nodeID)
		}
	}
}

// findReachableNodes returns the set of nodes reachable from the entry point.
func (g *Graph[S, P]) findReachableNodes() map[string]bool {
	reachable := make(map[string]bool)

	if g.entryPoint == "" {
		return reachable
	}

	// BFS from entry across both edge kinds.
	queue := []string{g.entryPoint}
	reachable[g.entryPoint] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, target := range g.edges[current] {
			if target != END && !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}

		if ce, ok := g.conditionalEdges[current]; ok {
			for _, target := range ce.outcomes {
				if target != END && !reachable[target] {
					reachable[target] = true
					queue = append(queue, target)
				}
			}
		}
	}

	return reachable
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder state.
func (g *Graph[S, P]) buildCompiledGraph() *CompiledGraph[S, P] {
	nodes := make(map[string]NodeFunc[S, P], len(g.nodes))
	for id, fn := range g.nodes {
		nodes[id] = fn
	}

	// One static successor per node after validation.
	successors := make(map[string]string, len(g.edges))
	for from, targets := range g.edges {
		successors[from] = targets[0]
	}

	conditionalEdges := make(map[string]*conditionalEdge[S, P], len(g.conditionalEdges))
	for from, ce := range g.conditionalEdges {
		outcomes := make(map[string]string, len(ce.outcomes))
		for outcome, target := range ce.outcomes {
			outcomes[outcome] = target
		}
		conditionalEdges[from] = &conditionalEdge[S, P]{router: ce.router, outcomes: outcomes}
	}

	resumeApply := g.resumeApply
	if resumeApply == nil {
		resumeApply = g.apply
	}

	return &CompiledGraph[S, P]{
		nodes:            nodes,
		successors:       successors,
		conditionalEdges: conditionalEdges,
		entryPoint:       g.entryPoint,
		interruptNode:    g.interruptNode,
		interruptPayload: g.interruptPayload,
		apply:            g.apply,
		resumeApply:      resumeApply,
		maxSteps:         g.maxSteps,
	}
}
