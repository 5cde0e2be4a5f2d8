package types

import (
	"bytes"
	"encoding/json"
)

// Nullable tracks whether a JSON field was present, explicitly null, or set.
// PATCH handlers use it to tell "leave unchanged" from "clear".
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	n.Set = true
	if bytes.Equal(trimmed, []byte("null")) {
		n.Value = nil
		return nil
	}

	var parsed T
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return err
	}
	n.Value = &parsed
	return nil
}

// Null reports whether the field was sent as an explicit null.
func (n Nullable[T]) Null() bool {
	return n.Set && n.Value == nil
}
