package stateflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/stateflow/pkg/stateflow/checkpoint"
)

// TestRun_Linear tests the basic execute-merge-advance loop.
func TestRun_Linear(t *testing.T) {
	compiled, err := linearGraph()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	final, err := compiled.Run(testCtx(), Doc{}, store, nil)

	require.NoError(t, err)
	assert.Equal(t, 11, final.Value)
	assert.Equal(t, []string{"a", "b"}, final.Log)
}

// TestRun_NilContext tests the nil-context guard.
func TestRun_NilContext(t *testing.T) {
	compiled, err := linearGraph()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	_, err = compiled.Run(nil, Doc{}, store, nil)

	assert.ErrorIs(t, err, ErrNilContext)
}

// TestRun_NilStore tests that running without a checkpoint store fails.
func TestRun_NilStore(t *testing.T) {
	compiled, err := linearGraph()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), Doc{}, nil, nil)

	assert.ErrorIs(t, err, ErrNilStore)
}

// TestRun_EventsOrdered tests that step events arrive in execution order with
// monotonically increasing sequence numbers and per-step snapshots.
func TestRun_EventsOrdered(t *testing.T) {
	compiled, err := linearGraph()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	var events []StepEvent[Doc, DocPatch]
	ctx := NewContext(context.Background(), WithThreadID("t-events"))

	_, err = compiled.Run(ctx, Doc{}, store, collectSink(&events))
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Node)
	assert.Equal(t, "b", events[1].Node)
	assert.Equal(t, 1, events[0].Seq)
	assert.Equal(t, 2, events[1].Seq)

	for _, ev := range events {
		assert.Equal(t, "t-events", ev.ThreadID)
	}

	// Each event snapshots the state after its own merge, not the final state.
	assert.Equal(t, 1, events[0].State.Value)
	assert.Equal(t, 11, events[1].State.Value)

	v, ok := events[0].Partial.Value.Get()
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

// TestRun_CheckpointPerStep tests that one checkpoint is written per step with
// contiguous sequence numbers.
func TestRun_CheckpointPerStep(t *testing.T) {
	compiled, err := linearGraph()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	ctx := NewContext(context.Background(), WithThreadID("t-cp"))
	_, err = compiled.Run(ctx, Doc{}, store, nil)
	require.NoError(t, err)

	infos, err := store.List("t-cp")
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, 1, infos[0].StepSeq)
	assert.Equal(t, "a", infos[0].NodeID)
	assert.Equal(t, 2, infos[1].StepSeq)
	assert.Equal(t, "b", infos[1].NodeID)

	latest, err := store.Latest("t-cp")
	require.NoError(t, err)
	assert.Equal(t, END, latest.NextNode)
	assert.False(t, latest.Suspended())

	var doc Doc
	require.NoError(t, json.Unmarshal(latest.State, &doc))
	assert.Equal(t, 11, doc.Value)
}

// TestRun_ConditionalRouting tests a cyclic graph driven by a router whose
// decision patch is merged before the checkpoint for the step.
func TestRun_ConditionalRouting(t *testing.T) {
	router := func(ctx Context, d Doc) Decision[DocPatch] {
		if d.Value < 3 {
			return GotoWith("again", DocPatch{Log: Set([]string{"loop"})})
		}
		return GotoWith("done", DocPatch{Status: Set("finished")})
	}

	compiled, err := NewGraph[Doc, DocPatch]().
		AddNode("work", incrementBy("work", 1)).
		AddConditionalEdge("work", router, map[string]string{
			"again": "work",
			"done":  END,
		}).
		SetEntry("work").
		SetApply(applyDoc).
		Compile()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	var events []StepEvent[Doc, DocPatch]
	final, err := compiled.Run(testCtx(), Doc{}, store, collectSink(&events))

	require.NoError(t, err)
	assert.Equal(t, 3, final.Value)
	assert.Equal(t, "finished", final.Status)
	assert.Equal(t, []string{"work", "loop", "work", "loop", "work"}, final.Log)

	require.Len(t, events, 3)
	require.NotNil(t, events[0].Patch)
	// The event's state includes the routing patch, matching the checkpoint.
	assert.Equal(t, []string{"work", "loop"}, events[0].State.Log)
}

// TestRun_RoutingError tests that an unregistered router outcome is fatal and
// leaves no checkpoint for the offending step.
func TestRun_RoutingError(t *testing.T) {
	router := func(ctx Context, d Doc) Decision[DocPatch] {
		return Goto[DocPatch]("sideways")
	}

	compiled, err := NewGraph[Doc, DocPatch]().
		AddNode("a", incrementBy("a", 1)).
		AddConditionalEdge("a", router, map[string]string{"done": END}).
		SetEntry("a").
		SetApply(applyDoc).
		Compile()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	_, err = compiled.Run(testCtx(), Doc{}, store, nil)

	var routeErr *RoutingError
	require.ErrorAs(t, err, &routeErr)
	assert.Equal(t, "a", routeErr.FromNode)
	assert.Equal(t, "sideways", routeErr.Outcome)
	assert.Equal(t, 0, store.Len())
}

// TestRun_NodeError tests that a node failure is wrapped with node context
// and the underlying error stays reachable via errors.Is.
func TestRun_NodeError(t *testing.T) {
	boom := errors.New("boom")

	compiled, err := NewGraph[Doc, DocPatch]().
		AddNode("a", func(ctx Context, d Doc) (DocPatch, error) {
			return DocPatch{}, boom
		}).
		AddEdge("a", END).
		SetEntry("a").
		SetApply(applyDoc).
		Compile()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	_, err = compiled.Run(testCtx(), Doc{}, store, nil)

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "a", nodeErr.NodeID)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "a", LastNode(err))
	assert.Equal(t, 0, store.Len())
}

// TestRun_SchemaViolation tests that a merge rejection persists nothing and
// returns the pre-merge state.
func TestRun_SchemaViolation(t *testing.T) {
	compiled, err := NewGraph[Doc, DocPatch]().
		AddNode("a", incrementBy("a", 5)).
		AddNode("bad", func(ctx Context, d Doc) (DocPatch, error) {
			return DocPatch{Value: Set(-1)}, nil
		}).
		AddEdge("a", "bad").
		AddEdge("bad", END).
		SetEntry("a").
		SetApply(applyDoc).
		Compile()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	var events []StepEvent[Doc, DocPatch]
	ctx := NewContext(context.Background(), WithThreadID("t-schema"))
	state, err := compiled.Run(ctx, Doc{}, store, collectSink(&events))

	var schemaErr *SchemaViolationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "bad", schemaErr.NodeID)

	// The first step's checkpoint survives; the violating step left none.
	infos, listErr := store.List("t-schema")
	require.NoError(t, listErr)
	require.Len(t, infos, 1)
	assert.Equal(t, "a", infos[0].NodeID)

	assert.Equal(t, 5, state.Value)
	require.Len(t, events, 1)
}

// TestRun_PanicRecovery tests that a panicking node becomes a PanicError with
// the panic value and a stack trace.
func TestRun_PanicRecovery(t *testing.T) {
	compiled, err := NewGraph[Doc, DocPatch]().
		AddNode("a", func(ctx Context, d Doc) (DocPatch, error) {
			panic("node exploded")
		}).
		AddEdge("a", END).
		SetEntry("a").
		SetApply(applyDoc).
		Compile()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	_, err = compiled.Run(testCtx(), Doc{}, store, nil)

	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "a", panicErr.NodeID)
	assert.Equal(t, "node exploded", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
	assert.Equal(t, 0, store.Len())
}

// TestRun_CancelledBeforeNode tests cancellation between steps: nothing is
// persisted for the in-flight step and the error names the pending node.
func TestRun_CancelledBeforeNode(t *testing.T) {
	compiled, err := linearGraph()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	base, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = compiled.Run(NewContext(base), Doc{}, store, nil)

	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	assert.Equal(t, "a", cancelErr.NodeID)
	assert.False(t, cancelErr.WasExecuting)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.Len())
}

// TestRun_CancelledDuringNode tests that a node surfacing its context's
// cancellation is reported as cancelled mid-execution.
func TestRun_CancelledDuringNode(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())

	compiled, err := NewGraph[Doc, DocPatch]().
		AddNode("a", func(ctx Context, d Doc) (DocPatch, error) {
			cancel()
			return DocPatch{}, ctx.Err()
		}).
		AddEdge("a", END).
		SetEntry("a").
		SetApply(applyDoc).
		Compile()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	_, err = compiled.Run(NewContext(base), Doc{}, store, nil)

	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	assert.Equal(t, "a", cancelErr.NodeID)
	assert.True(t, cancelErr.WasExecuting)
}

// TestRun_MaxSteps tests that a runaway cycle is stopped at the configured
// step limit.
func TestRun_MaxSteps(t *testing.T) {
	router := func(ctx Context, d Doc) Decision[DocPatch] {
		return Goto[DocPatch]("again")
	}

	compiled, err := NewGraph[Doc, DocPatch]().
		AddNode("work", incrementBy("work", 1)).
		AddConditionalEdge("work", router, map[string]string{
			"again": "work",
			"done":  END,
		}).
		SetEntry("work").
		SetApply(applyDoc).
		SetMaxSteps(10).
		Compile()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	state, err := compiled.Run(testCtx(), Doc{}, store, nil)

	require.ErrorIs(t, err, ErrMaxSteps)
	var maxErr *MaxStepsError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 10, maxErr.Max)
	assert.Equal(t, "work", maxErr.LastNodeID)
	assert.Equal(t, 10, state.Value)
}

// TestRun_NodeContext tests that nodes observe their own ID, the thread ID,
// and the in-flight step number.
func TestRun_NodeContext(t *testing.T) {
	type seen struct {
		node string
		step int
	}
	var got []seen

	probe := func(ctx Context, d Doc) (DocPatch, error) {
		got = append(got, seen{node: ctx.NodeID(), step: ctx.Step()})
		assert.Equal(t, "t-ctx", ctx.ThreadID())
		require.NotNil(t, ctx.Logger())
		return DocPatch{}, nil
	}

	compiled, err := NewGraph[Doc, DocPatch]().
		AddNode("first", probe).
		AddNode("second", probe).
		AddEdge("first", "second").
		AddEdge("second", END).
		SetEntry("first").
		SetApply(applyDoc).
		Compile()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	ctx := NewContext(context.Background(), WithThreadID("t-ctx"))
	_, err = compiled.Run(ctx, Doc{}, store, nil)
	require.NoError(t, err)

	assert.Equal(t, []seen{{"first", 1}, {"second", 2}}, got)
}

// TestRun_InterruptSuspends tests that reaching the interrupt node merges the
// node's partial, writes a durable suspend checkpoint with the payload, emits
// one event, and returns an InterruptError instead of routing onward.
func TestRun_InterruptSuspends(t *testing.T) {
	compiled, err := gateGraph()
	require.NoError(t, err)

	store := newTestStore(t)
	defer store.Close()

	var events []StepEvent[Doc, DocPatch]
	ctx := NewContext(context.Background(), WithThreadID("t-intr"))

	state, err := compiled.Run(ctx, Doc{}, store, collectSink(&events))

	intr, ok := AsInterrupt(err)
	require.True(t, ok)
	assert.Equal(t, "t-intr", intr.ThreadID)
	assert.Equal(t, "gate", intr.NodeID)
	assert.Equal(t, 2, intr.StepSeq)
	assert.Equal(t, map[string]int{"value": 1}, intr.Payload)

	// The gate's own partial merged before suspension; routing never ran.
	assert.Equal(t, "pending", state.Status)
	assert.Equal(t, 1, state.Value)

	require.Len(t, events, 2)
	assert.Equal(t, "work", events[0].Node)
	assert.Equal(t, "gate", events[1].Node)
	assert.Nil(t, events[1].Patch)

	cp, err := store.Latest("t-intr")
	require.NoError(t, err)
	assert.True(t, cp.Suspended())
	assert.Equal(t, "gate", cp.Interrupt.NodeID)
	assert.Empty(t, cp.NextNode)

	var payload map[string]int
	require.NoError(t, json.Unmarshal(cp.Interrupt.Payload, &payload))
	assert.Equal(t, 1, payload["value"])
}

// TestRun_CheckpointSaveFailure tests that a failed checkpoint write is fatal
// to the run.
func TestRun_CheckpointSaveFailure(t *testing.T) {
	compiled, err := linearGraph()
	require.NoError(t, err)

	store := newTestStore(t)
	require.NoError(t, store.Close())

	_, err = compiled.Run(testCtx(), Doc{}, store, nil)

	var cpErr *CheckpointError
	require.ErrorAs(t, err, &cpErr)
	assert.Equal(t, "save", cpErr.Op)
	assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
}

// TestLastNode tests node attribution across the error taxonomy.
func TestLastNode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&NodeError{NodeID: "n1"}, "n1"},
		{&SchemaViolationError{NodeID: "n2"}, "n2"},
		{&PanicError{NodeID: "n3"}, "n3"},
		{&CancellationError{NodeID: "n4"}, "n4"},
		{&MaxStepsError{LastNodeID: "n5"}, "n5"},
		{&CheckpointError{NodeID: "n6"}, "n6"},
		{&RoutingError{FromNode: "n7"}, "n7"},
		{errors.New("anonymous"), ""},
		{nil, ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, LastNode(tc.err))
	}
}
