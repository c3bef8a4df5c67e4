package stateflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestField_ZeroValueIsAbsent tests that an unset field reports absent.
func TestField_ZeroValueIsAbsent(t *testing.T) {
	var f Field[int]

	assert.False(t, f.Present())
	_, ok := f.Get()
	assert.False(t, ok)
}

// TestField_SetIsPresent tests that Set produces a present field, even for
// the zero value.
func TestField_SetIsPresent(t *testing.T) {
	f := Set(0)

	assert.True(t, f.Present())
	v, ok := f.Get()
	assert.True(t, ok)
	assert.Equal(t, 0, v)
}

// TestField_Or tests the fallback accessor.
func TestField_Or(t *testing.T) {
	assert.Equal(t, 42, Field[int]{}.Or(42))
	assert.Equal(t, 7, Set(7).Or(42))
}

// TestField_JSONRoundTrip tests that presence survives serialization.
func TestField_JSONRoundTrip(t *testing.T) {
	type wrapper struct {
		A Field[string] `json:"a"`
		B Field[string] `json:"b"`
	}

	data, err := json.Marshal(wrapper{A: Set("hello")})
	require.NoError(t, err)

	var decoded wrapper
	require.NoError(t, json.Unmarshal(data, &decoded))

	v, ok := decoded.A.Get()
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
	assert.False(t, decoded.B.Present())
}

// TestReplace_PresentWins tests the replace channel.
func TestReplace_PresentWins(t *testing.T) {
	assert.Equal(t, 5, Replace(1, Set(5)))
	assert.Equal(t, 0, Replace(1, Set(0))) // explicit zero wins too
	assert.Equal(t, 1, Replace(1, Field[int]{}))
}

// TestAppend_Concatenates tests the append channel preserves order.
func TestAppend_Concatenates(t *testing.T) {
	current := []string{"one", "two"}

	merged := Append(current, Set([]string{"three"}))

	assert.Equal(t, []string{"one", "two", "three"}, merged)
}

// TestAppend_AbsentLeavesUntouched tests that absent updates are no-ops.
func TestAppend_AbsentLeavesUntouched(t *testing.T) {
	current := []string{"one"}

	merged := Append(current, Field[[]string]{})

	assert.Equal(t, []string{"one"}, merged)
}

// TestAppend_NeverAliases tests that merged output shares no backing array
// with the prior sequence, so later merges cannot corrupt earlier snapshots.
func TestAppend_NeverAliases(t *testing.T) {
	current := make([]string, 1, 8)
	current[0] = "one"

	first := Append(current, Set([]string{"two"}))
	second := Append(current, Set([]string{"OTHER"}))

	assert.Equal(t, []string{"one", "two"}, first)
	assert.Equal(t, []string{"one", "OTHER"}, second)
}

// TestMergeOrder_LastWriteWins tests field-by-field merge composition:
// sequential merges match independent per-field channel application.
func TestMergeOrder_LastWriteWins(t *testing.T) {
	doc := Doc{Value: 1, Log: []string{"init"}}

	doc, err := applyDoc(doc, DocPatch{Value: Set(2), Log: Set([]string{"first"})})
	require.NoError(t, err)
	doc, err = applyDoc(doc, DocPatch{Value: Set(3), Log: Set([]string{"second"})})
	require.NoError(t, err)

	assert.Equal(t, 3, doc.Value)
	assert.Equal(t, []string{"init", "first", "second"}, doc.Log)
}
