package vm

import (
	"slices"
	"strings"
)

// Array is a dense matrix of floats with 1-based indexing. A one
// dimensional array has a single row.
type Array struct {
	rows, cols int
	data       []float64
}

// NewArrayPayload creates a rows x cols array of zeros.
func NewArrayPayload(rows, cols int) *Array {
	return &Array{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

func (a *Array) Len() int { return len(a.data) }

// At returns the element at 0-based row i, column j.
func (a *Array) At(i, j int) float64 { return a.data[i*a.cols+j] }

func (a *Array) Clone() any {
	return &Array{rows: a.rows, cols: a.cols, data: slices.Clone(a.data)}
}

func (a *Array) Equal(other any) bool {
	o := other.(*Array)
	return a.rows == o.rows && a.cols == o.cols && slices.Equal(a.data, o.data)
}

func (a *Array) Display(bool) string {
	var b strings.Builder
	b.WriteString("@[")
	for i := 0; i < a.rows; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		for j := 0; j < a.cols; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(FormatFloat(a.At(i, j)))
		}
	}
	b.WriteByte(']')
	return b.String()
}

func (a *Array) offset(keys []Value) int {
	idx := make([]int64, len(keys))
	for i, k := range keys {
		k = k.Resolve()
		if !k.IsInt() {
			Throwf(TypeError, "array index must be an Integer, got %s", TypeName(k))
		}
		idx[i] = k.Int()
	}
	switch len(idx) {
	case 1:
		return normIndex(idx[0], len(a.data))
	case 2:
		return normIndex(idx[0], a.rows)*a.cols + normIndex(idx[1], a.cols)
	}
	Throwf(IndexError, "arrays take 1 or 2 indexes, got %d", len(keys))
	return 0
}

func (a *Array) GetItem(keys []Value) Value {
	return FromFloat(a.data[a.offset(keys)])
}

func (a *Array) SetItem(keys []Value, v Value) {
	v = v.Resolve()
	if !v.IsNumber() {
		Throwf(TypeError, "array elements must be numbers, got %s", TypeName(v))
	}
	a.data[a.offset(keys)] = v.Number()
}

func (a *Array) Field(name string) (Value, bool) {
	switch name {
	case "nrow":
		return FromInt(int64(a.rows)), true
	case "ncol":
		return FromInt(int64(a.cols)), true
	case "size":
		return FromInt(int64(len(a.data))), true
	}
	return Null, false
}

func (a *Array) Iterate() Cursor { return &arrayCursor{a: a, pos: -1} }

type arrayCursor struct {
	a   *Array
	pos int
}

func (c *arrayCursor) Next() bool {
	c.pos++
	return c.pos < len(c.a.data)
}

func (c *arrayCursor) Key() Value   { return FromInt(int64(c.pos + 1)) }
func (c *arrayCursor) Value() Value { return FromFloat(c.a.data[c.pos]) }
func (c *arrayCursor) Ref() []Value { return []Value{FromInt(int64(c.pos + 1))} }

func (rt *Runtime) newArray(a *Array) Value {
	return FromObject(rt.heap.alloc(rt.ArrayClass, a))
}

func (rt *Runtime) newArrayFromValues(rows, cols int, values []Value) Value {
	a := NewArrayPayload(rows, cols)
	for i, v := range values {
		v = v.Resolve()
		if !v.IsNumber() {
			Throwf(TypeError, "array elements must be numbers, got %s", TypeName(v))
		}
		a.data[i] = v.Number()
	}
	return rt.newArray(a)
}

func (rt *Runtime) initArray() {
	A, I := rt.ArrayClass, rt.IntegerClass
	array := func(v Value) *Array { return v.Payload().(*Array) }
	dims := func(args []Value) (int, int) {
		rows, cols := int64(1), args[0].Int()
		if len(args) == 2 {
			rows, cols = args[0].Int(), args[1].Int()
		}
		if rows < 0 || cols < 0 {
			Throwf(RangeError, "negative array dimension")
		}
		return int(rows), int(cols)
	}
	filled := func(value float64) NativeFunc {
		return func(rt *Runtime, args []Value) Value {
			a := NewArrayPayload(dims(args))
			for i := range a.data {
				a.data[i] = value
			}
			return rt.newArray(a)
		}
	}

	rt.ArrayClass.AddInitializer(filled(0), []*Class{I}, 0)
	rt.ArrayClass.AddInitializer(filled(0), []*Class{I, I}, 0)
	rt.AddGlobal("zeros", filled(0), []*Class{I}, 0)
	rt.AddGlobal("zeros", filled(0), []*Class{I, I}, 0)
	rt.AddGlobal("ones", filled(1), []*Class{I}, 0)
	rt.AddGlobal("ones", filled(1), []*Class{I, I}, 0)
	rt.AddGlobal("min", func(rt *Runtime, args []Value) Value {
		a := array(args[0])
		if len(a.data) == 0 {
			Throwf(RangeError, "empty array has no minimum")
		}
		return FromFloat(slices.Min(a.data))
	}, []*Class{A}, 0)
	rt.AddGlobal("max", func(rt *Runtime, args []Value) Value {
		a := array(args[0])
		if len(a.data) == 0 {
			Throwf(RangeError, "empty array has no maximum")
		}
		return FromFloat(slices.Max(a.data))
	}, []*Class{A}, 0)
	rt.AddGlobal("clear", func(rt *Runtime, args []Value) Value {
		clear(Unshare[*Array](rt, args[0]).data)
		return Null
	}, []*Class{A}, ByRef(0))
}
