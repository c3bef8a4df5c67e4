// Package checkpoint provides persistent, per-thread checkpoint chains for
// crash recovery and suspend/resume.
//
// Each thread owns an append-only chain of checkpoints with strictly
// monotonically increasing step sequence numbers. New checkpoints supersede
// (never delete) earlier ones, so a store can always answer "give me the
// latest checkpoint for thread X".
package checkpoint

import (
	"errors"
	"time"
)

// Store persists checkpoint chains. Implementations must be safe for
// concurrent use across threads; per-thread access is serialized by the
// engine (one run per thread at a time), but Latest must be linearizable
// per thread.
type Store interface {
	// Save appends a checkpoint to its thread's chain.
	// Returns ErrStaleSequence if cp.StepSeq is not greater than the
	// thread's latest sequence number.
	Save(cp *Checkpoint) error

	// Latest retrieves the most recent checkpoint for a thread.
	// Returns ErrNotFound if the thread has no checkpoints.
	Latest(threadID string) (*Checkpoint, error)

	// List returns metadata for all checkpoints of a thread, ordered by
	// sequence. Returns an empty slice (not an error) if the thread has no
	// checkpoints.
	List(threadID string) ([]Info, error)

	// DeleteThread removes all checkpoints for a thread.
	// Returns nil if the thread has no checkpoints.
	DeleteThread(threadID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading full state.
type Info struct {
	ThreadID  string
	NodeID    string
	StepSeq   int
	Timestamp time.Time
	Suspended bool
	Size      int64
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a thread has no checkpoints.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrStaleSequence indicates a Save would violate per-thread sequence
	// monotonicity.
	ErrStaleSequence = errors.New("checkpoint sequence not greater than latest")
)
