/*
Package stateflow provides graph-based orchestration over a shared, typed
state document.

# Overview

stateflow executes a directed, possibly cyclic graph of nodes. Each node reads
the current state and returns a partial update; the partial is merged into the
shared state through a caller-supplied apply function built from per-field
channels (replace or append). After every merged step the engine persists a
checkpoint, emits an ordered step event, and resolves the next node through a
static edge or a routing function with an enumerated outcome set.

The engine supports a durable suspend point: a designated interrupt node halts
the step loop after its checkpoint is written, and a later Resume call patches
the state from external input and re-enters the loop at the interrupt node's
successor resolution. Because the checkpoint chain is the only thing resumption
needs, the suspended process is free to exit entirely.

The library is inspired by LangGraph but built for Go with:
  - Type-safe generics for state and partial-update types
  - Explicit field presence (Field) so merges can distinguish "not produced"
    from "explicitly cleared"
  - Compile-time validation of graph structure and router outcome sets
  - Append-only, per-thread checkpoint chains for crash recovery
  - OpenTelemetry integration for observability

# Basic Usage

Define a state type, a partial type using Field wrappers, and an apply
function, then wire the graph:

	type State struct {
	    Count int
	    Log   []string
	}

	type Partial struct {
	    Count stateflow.Field[int]
	    Log   stateflow.Field[[]string]
	}

	func apply(s State, p Partial) (State, error) {
	    s.Count = stateflow.Replace(s.Count, p.Count)
	    s.Log = stateflow.Append(s.Log, p.Log)
	    return s, nil
	}

	func bump(ctx stateflow.Context, s State) (Partial, error) {
	    return Partial{Count: stateflow.Set(s.Count + 1)}, nil
	}

	graph := stateflow.NewGraph[State, Partial]().
	    AddNode("bump", bump).
	    AddEdge("bump", stateflow.END).
	    SetEntry("bump").
	    SetApply(apply)

	compiled, err := graph.Compile()
	if err != nil {
	    log.Fatal(err)
	}

	ctx := stateflow.NewContext(context.Background())
	result, err := compiled.Run(ctx, State{}, nil, nil)

# Conditional Routing

Conditional edges carry a routing function plus an enumerated outcome map.
The router returns a Decision naming one of the registered outcomes and may
attach a state patch that is merged before the next node runs; returning an
outcome outside the registered set is a fatal routing error.

# Suspend and Resume

Mark a node as the interrupt point with SetInterrupt. When that node's partial
has been merged and checkpointed, Run returns an *InterruptError carrying a
caller-visible payload. Resume later with an external patch:

	result, err := compiled.Run(ctx, initial, store, sink)
	if intr, ok := stateflow.AsInterrupt(err); ok {
	    // inspect intr.Payload, gather external input...
	    result, err = compiled.Resume(ctx, store, intr.ThreadID, patch, sink)
	}
*/
package stateflow
