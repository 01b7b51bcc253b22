// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package value implements the restricted data model of legacy SSB messages
// and its canonical JSON encodings.
//
// A legacy value is one of null, boolean, float, string, array or object.
// Objects keep their entries in insertion order. That order is part of the
// signed bytes, so it must survive a parse/encode round trip untouched.
//
// See https://spec.scuttlebutt.nz/datamodel.html for the format details.
package value

import (
	"fmt"
	"math"
)

// Value is one node of a legacy message value tree. The only implementations
// are Null, Bool, Float, String, Array and *Object.
type Value interface {
	// Kind names the variant, mostly for error reporting.
	Kind() Kind
}

// Kind enumerates the legacy value variants.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindFloat
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindFloat:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("unknown kind (%d)", uint8(k))
	}
}

// Null is the JSON null value.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Float is a JSON number. The format has no integers, only IEEE 754 doubles.
// NaN, the infinities and negative zero are not legal legacy values; Parse
// never produces them and Encode fails on them.
type Float float64

// String is a utf8 string.
type String string

// Array is an ordered list of values.
type Array []Value

func (Null) Kind() Kind    { return KindNull }
func (Bool) Kind() Kind    { return KindBool }
func (Float) Kind() Kind   { return KindFloat }
func (String) Kind() Kind  { return KindString }
func (Array) Kind() Kind   { return KindArray }
func (*Object) Kind() Kind { return KindObject }

// Valid reports whether the float is usable as a legacy value,
// i.e. it is finite and not negative zero.
func (f Float) Valid() bool {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v != 0 || !math.Signbit(v)
}

// Object is a collection of key/value entries which preserves insertion
// order. Keys are unique. The zero value is not usable, use NewObject.
type Object struct {
	keys []string
	vals map[string]Value
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// Set appends the entry to the object. It returns false (changing nothing) if
// the key is already present; replacing a value would be fine but appending a
// key twice never is, and callers that hit this usually want to report a
// duplicate-key error.
func (o *Object) Set(key string, v Value) bool {
	if _, has := o.vals[key]; has {
		return false
	}
	o.keys = append(o.keys, key)
	o.vals[key] = v
	return true
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	v, has := o.vals[key]
	return v, has
}

// Len returns the number of entries.
func (o *Object) Len() int { return len(o.keys) }

// Keys returns the keys in insertion order. The caller must not modify the
// returned slice.
func (o *Object) Keys() []string { return o.keys }

// Without returns a shallow copy of the object with the named key removed.
// The copy keeps the insertion order of the remaining entries.
func (o *Object) Without(key string) *Object {
	trimmed := &Object{
		keys: make([]string, 0, len(o.keys)),
		vals: make(map[string]Value, len(o.keys)),
	}
	for _, k := range o.keys {
		if k == key {
			continue
		}
		trimmed.keys = append(trimmed.keys, k)
		trimmed.vals[k] = o.vals[k]
	}
	return trimmed
}

// Equal compares two value trees for structural equality, including the entry
// order of objects.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Object:
		bv, ok := b.(*Object)
		if !ok || len(av.keys) != len(bv.keys) {
			return false
		}
		for i, k := range av.keys {
			if bv.keys[i] != k {
				return false
			}
			if !Equal(av.vals[k], bv.vals[k]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
