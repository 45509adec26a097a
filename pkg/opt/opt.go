package opt

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Value is an optional field. The zero value is absent.
//
// A JSON key that is missing from the payload leaves the Value absent; a key
// that is present makes it set. An explicit null is accepted only when T can
// hold nil.
type Value[T any] struct {
	v  T
	ok bool
}

// Some returns a set Value holding v.
func Some[T any](v T) Value[T] {
	return Value[T]{v: v, ok: true}
}

// Get returns the held value and whether it is set.
func (o Value[T]) Get() (T, bool) {
	return o.v, o.ok
}

func (o Value[T]) IsSet() bool {
	return o.ok
}

func (o Value[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.v)
}

// UnmarshalJSON is only invoked by encoding/json when the key is present.
func (o *Value[T]) UnmarshalJSON(data []byte) error {
	var v T
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		if t := reflect.TypeFor[T](); !nilable(t.Kind()) {
			return &json.UnmarshalTypeError{Value: "null", Type: t}
		}
	} else if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.v = v
	o.ok = true
	return nil
}

func nilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
