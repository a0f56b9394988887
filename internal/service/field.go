package service

import "encoding/json"

// Field distinguishes the three states a PATCH body can put a key in:
// absent (Set false), explicit null (Set true, Value nil), and present
// with a value. Absent keys leave the column untouched; explicit null
// clears a nullable column.
type Field[T any] struct {
	Set   bool
	Value *T
}

// Provide wraps a value as a provided field.
func Provide[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: &v}
}

// Clear marks a field as provided with an explicit null.
func Clear[T any]() Field[T] {
	return Field[T]{Set: true}
}

// UnmarshalJSON is only invoked for keys present in the body, which is
// what records presence.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if string(data) == "null" {
		f.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.Value = &v
	return nil
}

// MarshalJSON round-trips the value; an unset or null field encodes as
// null.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.Value)
}
