package stateflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/randalmurphal/stateflow/pkg/stateflow/checkpoint"
)

// Doc is the state document used across the package tests.
type Doc struct {
	Value  int      `json:"value"`
	Label  string   `json:"label,omitempty"`
	Log    []string `json:"log,omitempty"`
	Gate   bool     `json:"gate"`
	Status string   `json:"status,omitempty"`
}

// DocPatch is the partial update for Doc.
type DocPatch struct {
	Value  Field[int]      `json:"value,omitzero"`
	Label  Field[string]   `json:"label,omitzero"`
	Log    Field[[]string] `json:"log,omitzero"`
	Gate   Field[bool]     `json:"gate,omitzero"`
	Status Field[string]   `json:"status,omitzero"`
}

// applyDoc merges a DocPatch into a Doc: Log appends, everything else
// replaces.
func applyDoc(current Doc, patch DocPatch) (Doc, error) {
	next := current
	next.Value = Replace(current.Value, patch.Value)
	next.Label = Replace(current.Label, patch.Label)
	next.Log = Append(current.Log, patch.Log)
	next.Gate = Replace(current.Gate, patch.Gate)
	next.Status = Replace(current.Status, patch.Status)
	if next.Value < 0 {
		return current, fmt.Errorf("value cannot be negative: %d", next.Value)
	}
	return next, nil
}

// testCtx creates a context for testing.
func testCtx() Context {
	return NewContext(context.Background())
}

// incrementBy returns a node that adds n to Value and logs its execution.
func incrementBy(name string, n int) NodeFunc[Doc, DocPatch] {
	return func(ctx Context, d Doc) (DocPatch, error) {
		return DocPatch{
			Value: Set(d.Value + n),
			Log:   Set([]string{name}),
		}, nil
	}
}

// noopNode returns a node that produces an empty patch.
func noopNode() NodeFunc[Doc, DocPatch] {
	return func(ctx Context, d Doc) (DocPatch, error) {
		return DocPatch{}, nil
	}
}

// newTestStore creates an in-memory checkpoint store for one test.
func newTestStore(t *testing.T) *checkpoint.MemoryStore {
	t.Helper()
	return checkpoint.NewMemoryStore()
}

// collectSink returns an event sink that appends into the given slice.
func collectSink(events *[]StepEvent[Doc, DocPatch]) EventSink[Doc, DocPatch] {
	return func(ev StepEvent[Doc, DocPatch]) {
		*events = append(*events, ev)
	}
}

// gateGraph builds a graph that suspends at an approval gate:
//
//	work -> gate(interrupt) -> {proceed: finish, reject: END} ; finish -> END
//
// The gate router reads Gate from the patched state, so approval arrives via
// the resume patch.
func gateGraph() (*CompiledGraph[Doc, DocPatch], error) {
	gateRouter := func(ctx Context, d Doc) Decision[DocPatch] {
		if d.Gate {
			return GotoWith("proceed", DocPatch{Status: Set("approved")})
		}
		return GotoWith("reject", DocPatch{Status: Set("rejected")})
	}

	return NewGraph[Doc, DocPatch]().
		AddNode("work", incrementBy("work", 1)).
		AddNode("gate", func(ctx Context, d Doc) (DocPatch, error) {
			return DocPatch{Status: Set("pending"), Log: Set([]string{"gate"})}, nil
		}).
		AddNode("finish", incrementBy("finish", 100)).
		AddEdge("work", "gate").
		AddConditionalEdge("gate", gateRouter, map[string]string{
			"proceed": "finish",
			"reject":  END,
		}).
		AddEdge("finish", END).
		SetEntry("work").
		SetInterrupt("gate", func(d Doc) any {
			return map[string]int{"value": d.Value}
		}).
		SetApply(applyDoc).
		Compile()
}

// linearGraph builds a compiled two-node graph: a -> b -> END.
func linearGraph() (*CompiledGraph[Doc, DocPatch], error) {
	return NewGraph[Doc, DocPatch]().
		AddNode("a", incrementBy("a", 1)).
		AddNode("b", incrementBy("b", 10)).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a").
		SetApply(applyDoc).
		Compile()
}
