package benchmarks

import (
	"fmt"
	"testing"

	"github.com/randalmurphal/stateflow/pkg/stateflow"
)

// State for benchmarks.
type State struct {
	Value int
}

// Patch is the partial update for State.
type Patch struct {
	Value stateflow.Field[int] `json:"value,omitzero"`
}

// apply merges a Patch into a State.
func apply(current State, patch Patch) (State, error) {
	current.Value = stateflow.Replace(current.Value, patch.Value)
	return current, nil
}

// noopNode does minimal work to measure framework overhead.
func noopNode(ctx stateflow.Context, s State) (Patch, error) {
	return Patch{}, nil
}

func nodeID(i int) string {
	return fmt.Sprintf("node%d", i)
}

// BenchmarkNewGraph measures graph creation overhead.
func BenchmarkNewGraph(b *testing.B) {
	for i := 0; i < b.N; i++ {
		stateflow.NewGraph[State, Patch]()
	}
}

// BenchmarkAddNode measures node addition overhead.
func BenchmarkAddNode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		graph := stateflow.NewGraph[State, Patch]()
		graph.AddNode("node", noopNode)
	}
}

// BenchmarkAddNode_10 measures adding 10 nodes.
func BenchmarkAddNode_10(b *testing.B) {
	for i := 0; i < b.N; i++ {
		graph := stateflow.NewGraph[State, Patch]()
		for j := 0; j < 10; j++ {
			graph.AddNode(nodeID(j), noopNode)
		}
	}
}

// BenchmarkCompile_Linear_10 measures compiling a 10-node linear graph.
func BenchmarkCompile_Linear_10(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := buildLinearGraph(10).Compile(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCompile_Linear_100 measures compiling a 100-node linear graph.
func BenchmarkCompile_Linear_100(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := buildLinearGraph(100).Compile(); err != nil {
			b.Fatal(err)
		}
	}
}

// buildLinearGraph builds an n-node linear chain ending at END.
func buildLinearGraph(n int) *stateflow.Graph[State, Patch] {
	graph := stateflow.NewGraph[State, Patch]()
	for i := 0; i < n; i++ {
		graph.AddNode(nodeID(i), noopNode)
	}
	for i := 0; i < n-1; i++ {
		graph.AddEdge(nodeID(i), nodeID(i+1))
	}
	graph.AddEdge(nodeID(n-1), stateflow.END)
	graph.SetEntry(nodeID(0))
	graph.SetApply(apply)
	return graph
}

func mustCompile(g *stateflow.Graph[State, Patch]) *stateflow.CompiledGraph[State, Patch] {
	compiled, err := g.Compile()
	if err != nil {
		panic(err)
	}
	return compiled
}
