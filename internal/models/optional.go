package models

import "encoding/json"

// Optional is a tri-state JSON field for partial patches: the key may be
// absent (Set=false), present but null (Set=true, Valid=false), or present
// with a value (Set=true, Valid=true). encoding/json only invokes
// UnmarshalJSON for keys that appear in the document, which is what makes
// the absent state observable.
type Optional[T any] struct {
	Set   bool
	Valid bool
	Value T
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		var zero T
		o.Valid = false
		o.Value = zero
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

// IsZero reports whether the field was never set, so `omitzero` tags drop
// absent fields on marshal instead of encoding them as null.
func (o Optional[T]) IsZero() bool {
	return !o.Set
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Ptr returns the value as a nullable pointer: nil when the field was
// absent or explicitly null.
func (o Optional[T]) Ptr() *T {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}
