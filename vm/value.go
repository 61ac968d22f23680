package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: the tagged union flowing through the stack, natives and containers
// ---------------------------------------------------------------------------

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindInteger
	KindFloat
	KindString
	KindObject
	KindAlias
)

var kindNames = [...]string{
	KindNull:    "Null",
	KindBoolean: "Boolean",
	KindInteger: "Integer",
	KindFloat:   "Float",
	KindString:  "String",
	KindObject:  "Object",
	KindAlias:   "Alias",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a script value. Numbers and booleans are stored inline in bits,
// strings are immutable Go strings, and everything else is an *Object.
// An Alias value is a by-reference cell created for ref parameters.
//
// The zero Value is null.
type Value struct {
	kind  Kind
	bits  uint64
	str   string
	obj   *Object
	alias *Alias
}

// Null is the null value.
var Null = Value{}

// True and False are the boolean values.
var (
	True  = Value{kind: KindBoolean, bits: 1}
	False = Value{kind: KindBoolean}
)

// FromBool creates a boolean value.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromInt creates an integer value.
func FromInt(i int64) Value {
	return Value{kind: KindInteger, bits: uint64(i)}
}

// FromFloat creates a float value.
func FromFloat(f float64) Value {
	return Value{kind: KindFloat, bits: math.Float64bits(f)}
}

// FromString creates a string value.
func FromString(s string) Value {
	return Value{kind: KindString, str: s}
}

// FromObject wraps a heap object. A nil object yields null.
func FromObject(o *Object) Value {
	if o == nil {
		return Null
	}
	return Value{kind: KindObject, obj: o}
}

func fromAlias(a *Alias) Value {
	return Value{kind: KindAlias, alias: a}
}

// ---------------------------------------------------------------------------
// Type predicates
// ---------------------------------------------------------------------------

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) IsBool() bool    { return v.kind == KindBoolean }
func (v Value) IsInt() bool     { return v.kind == KindInteger }
func (v Value) IsFloat() bool   { return v.kind == KindFloat }
func (v Value) IsNumber() bool  { return v.kind == KindInteger || v.kind == KindFloat }
func (v Value) IsString() bool  { return v.kind == KindString }
func (v Value) IsObject() bool  { return v.kind == KindObject }
func (v Value) IsAlias() bool   { return v.kind == KindAlias }
func (v Value) IsPrimitive() bool { return v.kind < KindObject }

// ---------------------------------------------------------------------------
// Accessors. Callers check the kind first; accessors on the wrong kind
// return the zero value of the Go type.
// ---------------------------------------------------------------------------

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.kind == KindBoolean && v.bits != 0 }

// Int returns the integer payload.
func (v Value) Int() int64 {
	if v.kind != KindInteger {
		return 0
	}
	return int64(v.bits)
}

// Float returns the float payload.
func (v Value) Float() float64 {
	if v.kind != KindFloat {
		return 0
	}
	return math.Float64frombits(v.bits)
}

// Number returns an Integer or Float as float64.
func (v Value) Number() float64 {
	switch v.kind {
	case KindInteger:
		return float64(int64(v.bits))
	case KindFloat:
		return math.Float64frombits(v.bits)
	}
	return 0
}

// Str returns the string payload.
func (v Value) Str() string { return v.str }

// Object returns the heap object, or nil.
func (v Value) Object() *Object {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// Alias returns the alias cell, or nil.
func (v Value) Alias() *Alias {
	if v.kind != KindAlias {
		return nil
	}
	return v.alias
}

// Resolve follows an alias to the value it refers to.
func (v Value) Resolve() Value {
	if v.kind == KindAlias {
		return v.alias.Get()
	}
	return v
}

// Truthy implements the boolean interpretation used by conditions:
// null, false, zero and NaN are false, everything else is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBoolean:
		return v.bits != 0
	case KindInteger:
		return v.bits != 0
	case KindFloat:
		f := math.Float64frombits(v.bits)
		return f != 0 && !math.IsNaN(f)
	case KindAlias:
		return v.alias.Get().Truthy()
	}
	return true
}

// Payload returns the payload of an object value, or nil.
func (v Value) Payload() any {
	v = v.Resolve()
	if v.kind != KindObject {
		return nil
	}
	return v.obj.data
}

// As extracts the payload of an object value as T.
func As[T any](v Value) (T, bool) {
	p, ok := v.Payload().(T)
	return p, ok
}

// ---------------------------------------------------------------------------
// Share counting
//
// Counts track how many owning slots (locals, globals, container elements,
// alias cells, captured upvalues) hold an object. Operand stack temporaries
// do not count. The count decides whether in-place mutation must clone
// first, and a collectable whose count falls to zero is handed back to the
// Go allocator instead of waiting for a collection cycle.
// ---------------------------------------------------------------------------

func (v Value) retain() {
	switch v.kind {
	case KindObject:
		v.obj.retain()
	case KindAlias:
		v.alias.refs++
	}
}

func (v Value) release() {
	switch v.kind {
	case KindObject:
		v.obj.release()
	case KindAlias:
		v.alias.release()
	}
}

// Retain and Release expose share counting to natives that store values
// in their own containers.
func (v Value) Retain()  { v.retain() }
func (v Value) Release() { v.release() }

// IsShared reports whether a clonable object is held by more than one slot.
func (v Value) IsShared() bool {
	v = v.Resolve()
	return v.kind == KindObject && v.obj.refs > 1
}

// Identical reports whether two values are the same value without any
// conversion: same kind, same bits, same object.
func Identical(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindString:
		return a.str == b.str
	case KindObject:
		return a.obj == b.obj
	case KindAlias:
		return a.alias == b.alias
	}
	return a.bits == b.bits
}
