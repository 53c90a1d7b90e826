package models

import (
	"errors"
	"fmt"
)

// ErrAbsent is the reason attached to absent values created without one.
var ErrAbsent = errors.New("value absent")

// Value is a cell in a result record. It is either present, holding a value
// that may itself be falsy (0, "", false), or absent with a reason.
type Value struct {
	v       any
	present bool
	reason  error
}

// Present wraps v as a present value.
func Present(v any) Value {
	return Value{v: v, present: true}
}

// Absent returns an absent value. A nil reason is replaced by ErrAbsent.
func Absent(reason error) Value {
	if reason == nil {
		reason = ErrAbsent
	}
	return Value{reason: reason}
}

// IsPresent reports whether the value holds data.
func (v Value) IsPresent() bool { return v.present }

// Get returns the underlying value and whether it is present.
func (v Value) Get() (any, bool) {
	return v.v, v.present
}

// Reason returns why the value is absent, or nil when present.
func (v Value) Reason() error {
	if v.present {
		return nil
	}
	if v.reason == nil {
		return ErrAbsent
	}
	return v.reason
}

// Text returns the value as a string when it holds one.
func (v Value) Text() (string, bool) {
	if !v.present {
		return "", false
	}
	s, ok := v.v.(string)
	return s, ok
}

// String formats present values with %v and absent values as "".
func (v Value) String() string {
	if !v.present {
		return ""
	}
	if s, ok := v.v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v.v)
}
