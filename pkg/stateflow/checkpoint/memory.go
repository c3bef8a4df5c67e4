package checkpoint

import (
	"fmt"
	"sync"
)

// MemoryStore is the reference in-memory checkpoint store.
// Data is lost when the process exits, which is fine for tests and for
// single-process deployments that accept losing suspended runs on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	chains map[string][][]byte // threadID -> serialized checkpoints, seq order
	closed bool
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chains: make(map[string][][]byte),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(cp *Checkpoint) error {
	data, err := cp.Marshal()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	chain := m.chains[cp.ThreadID]
	if len(chain) > 0 {
		latest, err := Unmarshal(chain[len(chain)-1])
		if err != nil {
			return fmt.Errorf("decode latest checkpoint: %w", err)
		}
		if cp.StepSeq <= latest.StepSeq {
			return fmt.Errorf("%w: %d <= %d", ErrStaleSequence, cp.StepSeq, latest.StepSeq)
		}
	}

	m.chains[cp.ThreadID] = append(chain, data)
	return nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	chain, ok := m.chains[threadID]
	if !ok || len(chain) == 0 {
		return nil, ErrNotFound
	}

	return Unmarshal(chain[len(chain)-1])
}

// List implements Store.
func (m *MemoryStore) List(threadID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	chain := m.chains[threadID]
	infos := make([]Info, 0, len(chain))
	for _, data := range chain {
		cp, err := Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("decode checkpoint: %w", err)
		}
		infos = append(infos, Info{
			ThreadID:  cp.ThreadID,
			NodeID:    cp.NodeID,
			StepSeq:   cp.StepSeq,
			Timestamp: cp.Timestamp,
			Suspended: cp.Suspended(),
			Size:      int64(len(data)),
		})
	}

	return infos, nil
}

// DeleteThread implements Store.
func (m *MemoryStore) DeleteThread(threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.chains, threadID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.chains = nil
	return nil
}

// Len returns the total number of checkpoints across all threads.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, chain := range m.chains {
		count += len(chain)
	}
	return count
}
