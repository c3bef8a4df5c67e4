package stateflow

import "encoding/json"

// Field wraps a value in a partial state update with an explicit presence
// flag. It distinguishes "this node did not produce the field" (absent) from
// "this node explicitly set the field to its zero value" (present).
//
// The zero Field is absent. Use Set to construct a present Field.
type Field[T any] struct {
	value   T
	present bool
}

// Set returns a present Field holding v.
func Set[T any](v T) Field[T] {
	return Field[T]{value: v, present: true}
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.present
}

// Present reports whether the field carries a value.
func (f Field[T]) Present() bool {
	return f.present
}

// Or returns the field's value if present, otherwise fallback.
func (f Field[T]) Or(fallback T) T {
	if f.present {
		return f.value
	}
	return fallback
}

// MarshalJSON encodes the value, or null when absent.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.present {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// UnmarshalJSON decodes null as absent, anything else as a present value.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Field[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Field[T]{value: v, present: true}
	return nil
}

// Replace is the default merge channel: the incoming value wins when present,
// otherwise the existing value is left untouched.
func Replace[T any](current T, update Field[T]) T {
	if update.present {
		return update.value
	}
	return current
}

// Append is the append merge channel for ordered sequences: the incoming
// entries are concatenated after the existing ones, preserving order. The
// result is always a fresh slice, so prior entries are never aliased or
// truncated by later merges.
func Append[T any](current []T, update Field[[]T]) []T {
	if !update.present {
		return current
	}
	merged := make([]T, 0, len(current)+len(update.value))
	merged = append(merged, current...)
	merged = append(merged, update.value...)
	return merged
}
