package vm

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// ---------------------------------------------------------------------------
// Type names
// ---------------------------------------------------------------------------

// TypeName returns the class name of v without needing a runtime.
func TypeName(v Value) string {
	v = v.Resolve()
	if v.kind == KindObject {
		return v.obj.class.Name
	}
	return v.kind.String()
}

// ---------------------------------------------------------------------------
// Equality, ordering and hashing
// ---------------------------------------------------------------------------

// Equal reports whether two values are equal. Integers and floats compare
// by numeric value, strings and containers by content, and other objects
// by identity. Values of unrelated types are never equal.
func Equal(a, b Value) bool {
	a, b = a.Resolve(), b.Resolve()
	if a.IsNumber() && b.IsNumber() {
		if a.kind == KindInteger && b.kind == KindInteger {
			return a.Int() == b.Int()
		}
		return a.Number() == b.Number()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBoolean:
		return a.bits == b.bits
	case KindString:
		return a.str == b.str
	case KindObject:
		if a.obj == b.obj {
			return true
		}
		if a.obj.class != b.obj.class {
			return false
		}
		if eq, ok := a.obj.data.(Equatable); ok {
			return eq.Equal(b.obj.data)
		}
	}
	return false
}

// Compare returns -1, 0 or 1. Numbers compare numerically, strings
// lexicographically, booleans with false before true, and objects of the
// same comparable class by content. Any other pair raises a type error.
func Compare(a, b Value) int {
	a, b = a.Resolve(), b.Resolve()
	if a.IsNumber() && b.IsNumber() {
		if a.kind == KindInteger && b.kind == KindInteger {
			return cmpOrdered(a.Int(), b.Int())
		}
		x, y := a.Number(), b.Number()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		case x == y:
			return 0
		}
		Throwf(TypeError, "cannot compare NaN")
	}
	if a.kind == b.kind {
		switch a.kind {
		case KindNull:
			return 0
		case KindBoolean:
			return cmpOrdered(a.bits, b.bits)
		case KindString:
			return strings.Compare(a.str, b.str)
		case KindObject:
			if a.obj.class == b.obj.class {
				if c, ok := a.obj.data.(Comparable); ok {
					return c.Compare(b.obj.data)
				}
			}
		}
	}
	Throwf(TypeError, "cannot compare values of type %s and %s", TypeName(a), TypeName(b))
	return 0
}

func cmpOrdered[T int64 | uint64 | int | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

const (
	hashNull  = 0x9e3779b97f4a7c15
	hashTrue  = 0xc2b2ae3d27d4eb4f
	hashFalse = 0x165667b19e3779f9
)

// Hash returns a hash consistent with Equal: an integral float hashes like
// the corresponding integer.
func Hash(v Value) uint64 {
	v = v.Resolve()
	var buf [8]byte
	switch v.kind {
	case KindNull:
		return hashNull
	case KindBoolean:
		if v.bits != 0 {
			return hashTrue
		}
		return hashFalse
	case KindInteger:
		binary.LittleEndian.PutUint64(buf[:], v.bits)
		return xxh3.Hash(buf[:])
	case KindFloat:
		f := v.Float()
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			binary.LittleEndian.PutUint64(buf[:], uint64(int64(f)))
		} else {
			binary.LittleEndian.PutUint64(buf[:], v.bits)
		}
		return xxh3.Hash(buf[:])
	case KindString:
		return xxh3.HashString(v.str)
	case KindObject:
		if h, ok := v.obj.data.(Hashable); ok {
			return h.Hash()
		}
		binary.LittleEndian.PutUint64(buf[:], v.obj.id)
		return xxh3.Hash(buf[:])
	}
	return 0
}

// ---------------------------------------------------------------------------
// String conversion
// ---------------------------------------------------------------------------

// FormatFloat renders a float the way print does.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Display converts v to its printed form. With quote set, strings are
// quoted; containers quote the strings they hold.
func Display(v Value, quote bool) string {
	v = v.Resolve()
	switch v.kind {
	case KindNull:
		return "null"
	case KindBoolean:
		if v.bits != 0 {
			return "true"
		}
		return "false"
	case KindInteger:
		return strconv.FormatInt(v.Int(), 10)
	case KindFloat:
		return FormatFloat(v.Float())
	case KindString:
		if quote {
			return strconv.Quote(v.str)
		}
		return v.str
	case KindObject:
		if d, ok := v.obj.data.(Displayable); ok {
			return d.Display(quote)
		}
		return "<" + v.obj.class.Name + ">"
	}
	return "?"
}

// String implements fmt.Stringer.
func (v Value) String() string {
	return Display(v, false)
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// Arith applies a binary arithmetic opcode.
func Arith(op Opcode, a, b Value) Value {
	a, b = a.Resolve(), b.Resolve()
	if !a.IsNumber() || !b.IsNumber() {
		Throwf(TypeError, "cannot apply operator %s to values of type %s and %s",
			arithSymbol(op), TypeName(a), TypeName(b))
	}
	bothInt := a.kind == KindInteger && b.kind == KindInteger
	switch op {
	case OpAdd:
		if bothInt {
			return FromInt(a.Int() + b.Int())
		}
		return FromFloat(a.Number() + b.Number())
	case OpSubtract:
		if bothInt {
			return FromInt(a.Int() - b.Int())
		}
		return FromFloat(a.Number() - b.Number())
	case OpMultiply:
		if bothInt {
			return FromInt(a.Int() * b.Int())
		}
		return FromFloat(a.Number() * b.Number())
	case OpDivide:
		return FromFloat(a.Number() / b.Number())
	case OpModulus:
		if bothInt {
			if b.Int() == 0 {
				Throwf(RuntimeError, "division by zero")
			}
			return FromInt(a.Int() % b.Int())
		}
		return FromFloat(math.Mod(a.Number(), b.Number()))
	case OpPower:
		return FromFloat(math.Pow(a.Number(), b.Number()))
	}
	Throwf(RuntimeError, "invalid arithmetic opcode %s", op)
	return Null
}

// Negate returns -v.
func Negate(v Value) Value {
	v = v.Resolve()
	switch v.kind {
	case KindInteger:
		return FromInt(-v.Int())
	case KindFloat:
		return FromFloat(-v.Float())
	}
	Throwf(TypeError, "cannot negate value of type %s", TypeName(v))
	return Null
}

func arithSymbol(op Opcode) string {
	switch op {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpModulus:
		return "%"
	case OpPower:
		return "^"
	}
	return op.Name()
}

// Concat joins the string forms of values.
func Concat(values []Value) Value {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(Display(v, false))
	}
	return FromString(b.String())
}
