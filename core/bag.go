package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// ValueKind is the fixed set of kinds a metadata value can hold.
type ValueKind string

const (
	KindString    ValueKind = "string"
	KindNumber    ValueKind = "number"
	KindBool      ValueKind = "bool"
	KindTimestamp ValueKind = "timestamp"
)

// Value is one typed metadata entry. Exactly one field matching Kind is
// meaningful.
type Value struct {
	Kind ValueKind `json:"kind"`

	Str  string    `json:"str,omitempty"`
	Num  float64   `json:"num,omitempty"`
	Bool bool      `json:"bool,omitempty"`
	Time time.Time `json:"time,omitempty"`
}

func String(s string) Value  { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func Boolean(b bool) Value   { return Value{Kind: KindBool, Bool: b} }

func Timestamp(t time.Time) Value {
	return Value{Kind: KindTimestamp, Time: t}
}

// Any returns the value as its native Go type.
func (v Value) Any() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindTimestamp:
		return v.Time
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return fmt.Sprintf("%g", v.Num)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindTimestamp:
		return v.Time.Format(time.RFC3339)
	default:
		return ""
	}
}

// Bag is a typed key-value store for instance metadata. Keeping the value
// kinds fixed keeps trigger-condition evaluation statically checkable.
type Bag map[string]Value

// Env flattens the bag into native Go values for expression evaluation.
func (b Bag) Env() map[string]any {
	env := make(map[string]any, len(b))
	for k, v := range b {
		env[k] = v.Any()
	}

	return env
}

// Clone returns a shallow copy of the bag. Values are immutable so a
// shallow copy is sufficient.
func (b Bag) Clone() Bag {
	if b == nil {
		return nil
	}

	c := make(Bag, len(b))
	for k, v := range b {
		c[k] = v
	}

	return c
}

var _ json.Marshaler = Value{}

// MarshalJSON keeps only the field matching the value kind.
func (v Value) MarshalJSON() ([]byte, error) {
	type alias struct {
		Kind ValueKind  `json:"kind"`
		Str  *string    `json:"str,omitempty"`
		Num  *float64   `json:"num,omitempty"`
		Bool *bool      `json:"bool,omitempty"`
		Time *time.Time `json:"time,omitempty"`
	}

	a := alias{Kind: v.Kind}
	switch v.Kind {
	case KindString:
		a.Str = &v.Str
	case KindNumber:
		a.Num = &v.Num
	case KindBool:
		a.Bool = &v.Bool
	case KindTimestamp:
		a.Time = &v.Time
	}

	return json.Marshal(a)
}
