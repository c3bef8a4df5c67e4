package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/randalmurphal/stateflow/pkg/stateflow"
	"github.com/randalmurphal/stateflow/pkg/stateflow/checkpoint"
	"github.com/randalmurphal/stateflow/pkg/stateflow/event"
)

// StepEvent is the research workflow's step event.
type StepEvent = stateflow.StepEvent[StateDocument, Partial]

// eventBuffer is the per-run channel buffer. Consumers slower than this
// backpressure the run rather than losing events.
const eventBuffer = 64

// Engine drives research runs over one compiled graph and one checkpoint
// store. It is an explicit instance with no ambient globals; construct it
// once at process start and pass it to request handlers.
//
// Run failures never cross the event stream as errors: the stream instead
// ends with a terminal event (status failed, error message set), so partial
// progress stays visible in the event history. Suspensions end the stream
// with the awaiting-approval event; resume the thread to continue it.
type Engine struct {
	graph        *stateflow.CompiledGraph[StateDocument, Partial]
	store        checkpoint.Store
	bus          *event.Bus[StepEvent]
	logger       *slog.Logger
	maxRevisions int
	maxSteps     int
	runOpts      []stateflow.RunOption
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxRevisions sets the plan revision ceiling for new runs (default 3).
func WithMaxRevisions(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRevisions = n
		}
	}
}

// WithRunOptions forwards observability options to every run.
func WithRunOptions(opts ...stateflow.RunOption) Option {
	return func(e *Engine) {
		e.runOpts = append(e.runOpts, opts...)
	}
}

// WithMaxSteps bounds the step loop of the underlying graph (default 1000).
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// NewEngine compiles the research graph over the given capability and
// returns an engine using the given checkpoint store. The engine does not
// take ownership of the store; the caller closes it.
func NewEngine(cap Capability, store checkpoint.Store, opts ...Option) (*Engine, error) {
	if cap == nil {
		return nil, fmt.Errorf("capability cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("checkpoint store cannot be nil")
	}

	e := &Engine{
		store:        store,
		logger:       slog.Default(),
		maxRevisions: 3,
		bus:          event.NewBus[StepEvent](event.DefaultConfig),
	}
	for _, opt := range opts {
		opt(e)
	}

	graph, err := BuildGraph(cap, e.maxSteps)
	if err != nil {
		return nil, fmt.Errorf("build research graph: %w", err)
	}
	e.graph = graph

	return e, nil
}

// StartRun starts a new research run and returns its thread ID with an
// ordered stream of step events. The stream closes when the run completes,
// fails, or suspends at the approval gate; inspect the final event's status
// to tell which.
func (e *Engine) StartRun(ctx context.Context, query, session string) (string, <-chan StepEvent, error) {
	if query == "" {
		return "", nil, fmt.Errorf("query cannot be empty")
	}

	threadID := uuid.New().String()
	state := NewStateDocument(threadID, query, session, e.maxRevisions)

	ch := make(chan StepEvent, eventBuffer)
	go func() {
		defer close(ch)

		runCtx := stateflow.NewContext(ctx,
			stateflow.WithThreadID(threadID),
			stateflow.WithLogger(e.logger),
		)

		final, err := e.graph.Run(runCtx, state, e.store, e.sink(ch), e.runOpts...)
		e.finish(ch, threadID, final, err)
	}()

	return threadID, ch, nil
}

// ResumeRun resumes a suspended run with the human's approval decision and
// returns the continuation's event stream. The thread checks happen
// synchronously: stateflow.ErrNoSuchThread if the thread has no checkpoints,
// stateflow.ErrNotSuspended if it is not awaiting approval. Neither mutates
// any state.
func (e *Engine) ResumeRun(ctx context.Context, threadID string, approved bool) (<-chan StepEvent, error) {
	cp, err := e.store.Latest(threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", stateflow.ErrNoSuchThread, threadID)
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if !cp.Suspended() {
		return nil, fmt.Errorf("%w: %s", stateflow.ErrNotSuspended, threadID)
	}

	patch := Partial{HumanApproved: stateflow.Set(approved)}

	ch := make(chan StepEvent, eventBuffer)
	go func() {
		defer close(ch)

		runCtx := stateflow.NewContext(ctx,
			stateflow.WithThreadID(threadID),
			stateflow.WithLogger(e.logger),
		)

		final, err := e.graph.Resume(runCtx, e.store, threadID, patch, e.sink(ch), e.runOpts...)
		e.finish(ch, threadID, final, err)
	}()

	return ch, nil
}

// State returns the latest checkpointed state for a thread.
func (e *Engine) State(threadID string) (StateDocument, error) {
	var doc StateDocument

	cp, err := e.store.Latest(threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return doc, fmt.Errorf("%w: %s", stateflow.ErrNoSuchThread, threadID)
		}
		return doc, fmt.Errorf("load checkpoint: %w", err)
	}

	if err := json.Unmarshal(cp.State, &doc); err != nil {
		return doc, fmt.Errorf("%w: %v", stateflow.ErrDeserializeState, err)
	}
	return doc, nil
}

// Subscribe taps the firehose of step events across all threads. Slow
// subscribers drop events; per-run ordering guarantees are only made on the
// channels returned by StartRun and ResumeRun.
func (e *Engine) Subscribe() *event.Subscription[StepEvent] {
	return e.bus.Subscribe()
}

// Close shuts down the event bus. The checkpoint store remains open; its
// owner closes it.
func (e *Engine) Close() {
	e.bus.Close()
}

// sink builds the per-run event sink: ordered delivery into the run's own
// channel, plus best-effort fan-out to bus subscribers.
func (e *Engine) sink(ch chan<- StepEvent) stateflow.EventSink[StateDocument, Partial] {
	return func(ev StepEvent) {
		ch <- ev
		e.bus.Publish(ev)
	}
}

// finish converts a run error into a terminal stream event. Suspensions and
// clean completions need no synthesis: their last real step event already
// carries the terminal status.
func (e *Engine) finish(ch chan<- StepEvent, threadID string, final StateDocument, err error) {
	if err == nil {
		return
	}
	if _, suspended := stateflow.AsInterrupt(err); suspended {
		return
	}

	final.Status = StatusFailed
	final.ErrorMessage = err.Error()

	ev := StepEvent{
		ThreadID: threadID,
		Node:     stateflow.LastNode(err),
		State:    final,
	}
	ch <- ev
	e.bus.Publish(ev)
}
