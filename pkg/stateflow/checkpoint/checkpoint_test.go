package checkpoint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew tests checkpoint construction defaults.
func TestNew(t *testing.T) {
	cp := New("thread-1", "node-a", 3, []byte(`{"x":1}`), "node-b")

	assert.Equal(t, Version, cp.Version)
	assert.Equal(t, "thread-1", cp.ThreadID)
	assert.Equal(t, "node-a", cp.NodeID)
	assert.Equal(t, 3, cp.StepSeq)
	assert.Equal(t, "node-b", cp.NextNode)
	assert.False(t, cp.Timestamp.IsZero())
	assert.False(t, cp.Suspended())
}

// TestWithInterrupt tests that marking a suspend point sets the interrupt
// record.
func TestWithInterrupt(t *testing.T) {
	cp := New("thread-1", "gate", 2, []byte(`{}`), "").
		WithInterrupt("gate", []byte(`{"plan":"x"}`))

	require.True(t, cp.Suspended())
	assert.Equal(t, "gate", cp.Interrupt.NodeID)
	assert.JSONEq(t, `{"plan":"x"}`, string(cp.Interrupt.Payload))
}

// TestMarshalUnmarshal tests that checkpoints survive serialization intact,
// including the interrupt record and raw state bytes.
func TestMarshalUnmarshal(t *testing.T) {
	original := New("thread-1", "gate", 5, []byte(`{"value":42}`), "").
		WithInterrupt("gate", []byte(`{"reason":"approval"}`))

	data, err := original.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, original.Version, decoded.Version)
	assert.Equal(t, original.ThreadID, decoded.ThreadID)
	assert.Equal(t, original.NodeID, decoded.NodeID)
	assert.Equal(t, original.StepSeq, decoded.StepSeq)
	assert.JSONEq(t, string(original.State), string(decoded.State))
	require.True(t, decoded.Suspended())
	assert.Equal(t, "gate", decoded.Interrupt.NodeID)
	assert.JSONEq(t, `{"reason":"approval"}`, string(decoded.Interrupt.Payload))
}

// TestUnmarshal_Invalid tests that garbage bytes fail to decode.
func TestUnmarshal_Invalid(t *testing.T) {
	_, err := Unmarshal([]byte("not json"))

	assert.Error(t, err)
}

// TestCheckpoint_StateIsOpaque tests that state round-trips as raw JSON
// without the checkpoint layer interpreting it.
func TestCheckpoint_StateIsOpaque(t *testing.T) {
	state := json.RawMessage(`{"nested":{"deep":[1,2,3]},"s":"text"}`)
	cp := New("t", "n", 1, state, "next")

	data, err := cp.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, string(state), string(decoded.State))
}
