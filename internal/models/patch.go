package models

import (
	"bytes"
	"encoding/json"
)

// PatchOp is the instruction carried by a Patch
type PatchOp int

const (
	// PatchKeep leaves the current value untouched (field absent from input)
	PatchKeep PatchOp = iota
	// PatchClear removes the current value (explicit null)
	PatchClear
	// PatchSet replaces the current value
	PatchSet
)

// Patch is a three-state update instruction for a nullable field.
// The zero value is Keep, so a field missing from a JSON payload stays untouched.
type Patch[T any] struct {
	Op    PatchOp
	Value T
}

// Keep returns a patch that leaves the field unchanged
func Keep[T any]() Patch[T] {
	return Patch[T]{Op: PatchKeep}
}

// Clear returns a patch that removes the field's value
func Clear[T any]() Patch[T] {
	return Patch[T]{Op: PatchClear}
}

// SetTo returns a patch that replaces the field's value
func SetTo[T any](v T) Patch[T] {
	return Patch[T]{Op: PatchSet, Value: v}
}

// UnmarshalJSON maps null to Clear and any other value to SetTo.
// It is only invoked when the key is present.
func (p *Patch[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = Clear[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = SetTo(v)
	return nil
}

// MarshalJSON renders Clear as null and Set as the value
func (p Patch[T]) MarshalJSON() ([]byte, error) {
	if p.Op != PatchSet {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

// IsZero lets omitzero drop Keep patches
func (p Patch[T]) IsZero() bool {
	return p.Op == PatchKeep
}

// Apply resolves the patch against the current value
func (p Patch[T]) Apply(current T) T {
	switch p.Op {
	case PatchClear:
		var zero T
		return zero
	case PatchSet:
		return p.Value
	default:
		return current
	}
}
