package checkpoint

import (
	"encoding/json"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// Interrupt records a pending suspension: the node the run suspended at and
// the payload surfaced to the caller. A checkpoint carrying an Interrupt is
// the resume point for its thread.
type Interrupt struct {
	// NodeID is the node the run suspended at.
	NodeID string `json:"node_id"`

	// Payload is the serialized suspension payload.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Checkpoint is the persisted snapshot of a run after one step.
// It contains all information needed to resume execution.
type Checkpoint struct {
	// Metadata
	Version   int       `json:"version"`
	ThreadID  string    `json:"thread_id"`
	NodeID    string    `json:"node_id"`
	StepSeq   int       `json:"step_seq"`
	Timestamp time.Time `json:"timestamp"`

	// Execution state
	State    json.RawMessage `json:"state"`
	NextNode string          `json:"next_node,omitempty"`

	// Interrupt is set when the run suspended at this step.
	Interrupt *Interrupt `json:"interrupt,omitempty"`
}

// New creates a new checkpoint with the given parameters.
// State must already be JSON-serialized.
func New(threadID, nodeID string, stepSeq int, state []byte, nextNode string) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		ThreadID:  threadID,
		NodeID:    nodeID,
		StepSeq:   stepSeq,
		Timestamp: time.Now().UTC(),
		State:     state,
		NextNode:  nextNode,
	}
}

// WithInterrupt marks the checkpoint as a suspend point. payload must
// already be JSON-serialized (nil is allowed).
func (c *Checkpoint) WithInterrupt(nodeID string, payload []byte) *Checkpoint {
	c.Interrupt = &Interrupt{NodeID: nodeID, Payload: payload}
	return c
}

// Suspended reports whether the checkpoint carries a pending interrupt.
func (c *Checkpoint) Suspended() bool {
	return c.Interrupt != nil
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
