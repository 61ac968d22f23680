package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ---------------------------------------------------------------------------
// Generic functions
// ---------------------------------------------------------------------------

func (rt *Runtime) initGeneric() {
	O, S, I, F, B := rt.ObjectClass, rt.StringClass, rt.IntegerClass, rt.FloatClass, rt.BooleanClass

	rt.AddGlobal("type", func(rt *Runtime, args []Value) Value {
		return rt.ClassOf(args[0]).Value()
	}, []*Class{O}, 0)
	rt.AddGlobal("len", func(rt *Runtime, args []Value) Value {
		v := args[0].Resolve()
		if v.IsString() {
			return FromInt(int64(StringLength(v.Str())))
		}
		if s, ok := v.Payload().(Sized); ok {
			return FromInt(int64(s.Len()))
		}
		Throwf(TypeError, "value of type %s has no length", TypeName(v))
		return Null
	}, []*Class{O}, 0)
	rt.AddGlobal("str", func(rt *Runtime, args []Value) Value {
		return FromString(Display(args[0], false))
	}, []*Class{O}, 0)
	rt.AddGlobal("bool", func(rt *Runtime, args []Value) Value {
		return FromBool(args[0].Truthy())
	}, []*Class{O}, 0)

	rt.AddGlobal("int", func(rt *Runtime, args []Value) Value { return args[0] }, []*Class{I}, 0)
	rt.AddGlobal("int", func(rt *Runtime, args []Value) Value {
		f := args[0].Float()
		if math.IsNaN(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
			Throwf(RangeError, "cannot convert %s to Integer", FormatFloat(f))
		}
		return FromInt(int64(f))
	}, []*Class{F}, 0)
	rt.AddGlobal("int", func(rt *Runtime, args []Value) Value {
		n, err := strconv.ParseInt(strings.TrimSpace(args[0].Str()), 10, 64)
		if err != nil {
			Throwf(TypeError, "cannot convert %q to Integer", args[0].Str())
		}
		return FromInt(n)
	}, []*Class{S}, 0)
	rt.AddGlobal("int", func(rt *Runtime, args []Value) Value {
		if args[0].Bool() {
			return FromInt(1)
		}
		return FromInt(0)
	}, []*Class{B}, 0)
	rt.AddGlobal("float", func(rt *Runtime, args []Value) Value {
		return FromFloat(args[0].Resolve().Number())
	}, []*Class{rt.NumberClass}, 0)
	rt.AddGlobal("float", func(rt *Runtime, args []Value) Value {
		f, err := strconv.ParseFloat(strings.TrimSpace(args[0].Str()), 64)
		if err != nil {
			Throwf(TypeError, "cannot convert %q to Float", args[0].Str())
		}
		return FromFloat(f)
	}, []*Class{S}, 0)

	rt.AddGlobal("import", func(rt *Runtime, args []Value) Value {
		return rt.Import(args[0].Str())
	}, []*Class{S}, 0)
	rt.AddGlobal("gc", func(rt *Runtime, args []Value) Value {
		stats := rt.CollectGarbage()
		return FromInt(int64(stats.Freed))
	}, nil, 0)
	rt.AddGlobal("args", func(rt *Runtime, args []Value) Value {
		values := make([]Value, len(rt.args))
		for i, a := range rt.args {
			values[i] = FromString(a)
		}
		return rt.NewList(values)
	}, nil, 0)
}

// ---------------------------------------------------------------------------
// Math
// ---------------------------------------------------------------------------

func (rt *Runtime) initMath() {
	N, I := rt.NumberClass, rt.IntegerClass
	unary := func(name string, fn func(float64) float64) {
		rt.AddGlobal(name, func(rt *Runtime, args []Value) Value {
			return FromFloat(fn(args[0].Resolve().Number()))
		}, []*Class{N}, 0)
	}
	unary("acos", math.Acos)
	unary("asin", math.Asin)
	unary("atan", math.Atan)
	unary("cos", math.Cos)
	unary("exp", math.Exp)
	unary("log", math.Log)
	unary("log10", math.Log10)
	unary("log2", math.Log2)
	unary("sin", math.Sin)
	unary("sqrt", math.Sqrt)
	unary("tan", math.Tan)

	rt.AddGlobal("abs", func(rt *Runtime, args []Value) Value {
		if n := args[0].Int(); n < 0 {
			return FromInt(-n)
		}
		return args[0]
	}, []*Class{I}, 0)
	rt.AddGlobal("abs", func(rt *Runtime, args []Value) Value {
		return FromFloat(math.Abs(args[0].Float()))
	}, []*Class{rt.FloatClass}, 0)
	rt.AddGlobal("atan2", func(rt *Runtime, args []Value) Value {
		return FromFloat(math.Atan2(args[0].Resolve().Number(), args[1].Resolve().Number()))
	}, []*Class{N, N}, 0)

	rounding := func(name string, fn func(float64) float64) {
		rt.AddGlobal(name, func(rt *Runtime, args []Value) Value {
			v := args[0].Resolve()
			if v.IsInt() {
				return v
			}
			return FromInt(int64(fn(v.Float())))
		}, []*Class{N}, 0)
	}
	rounding("ceil", math.Ceil)
	rounding("floor", math.Floor)
	rounding("round", math.Round)
	rt.AddGlobal("round", func(rt *Runtime, args []Value) Value {
		scale := math.Pow(10, float64(args[1].Int()))
		return FromFloat(math.Round(args[0].Resolve().Number()*scale) / scale)
	}, []*Class{N, I}, 0)

	rt.AddGlobal("min", func(rt *Runtime, args []Value) Value {
		if Compare(args[1], args[0]) < 0 {
			return args[1].Resolve()
		}
		return args[0].Resolve()
	}, []*Class{N, N}, 0)
	rt.AddGlobal("max", func(rt *Runtime, args []Value) Value {
		if Compare(args[1], args[0]) > 0 {
			return args[1].Resolve()
		}
		return args[0].Resolve()
	}, []*Class{N, N}, 0)

	rt.AddGlobal("random", func(rt *Runtime, args []Value) Value {
		return FromFloat(rt.random.Float64())
	}, nil, 0)
	rt.AddGlobal("random", func(rt *Runtime, args []Value) Value {
		n := args[0].Int()
		if n <= 0 {
			Throwf(RangeError, "random upper bound must be positive, got %d", n)
		}
		return FromInt(rt.random.Int64N(n) + 1)
	}, []*Class{I}, 0)

	// Element-wise overloads on arrays.
	for _, f := range []struct {
		name string
		fn   func(float64) float64
	}{
		{"abs", math.Abs}, {"acos", math.Acos}, {"asin", math.Asin}, {"atan", math.Atan},
		{"ceil", math.Ceil}, {"cos", math.Cos}, {"exp", math.Exp}, {"floor", math.Floor},
		{"log", math.Log}, {"log10", math.Log10}, {"log2", math.Log2}, {"round", math.Round},
		{"sin", math.Sin}, {"sqrt", math.Sqrt}, {"tan", math.Tan},
	} {
		fn := f.fn
		rt.AddGlobal(f.name, func(rt *Runtime, args []Value) Value {
			a := args[0].Resolve().Payload().(*Array)
			out := NewArrayPayload(a.rows, a.cols)
			for i, x := range a.data {
				out.data[i] = fn(x)
			}
			return rt.newArray(out)
		}, []*Class{rt.ArrayClass}, 0)
	}

	rt.builtins.Set("E", FromFloat(math.E))
	rt.builtins.Set("PI", FromFloat(math.Pi))
	rt.builtins.Set("SQRT2", FromFloat(math.Sqrt2))
	rt.builtins.Set("PHI", FromFloat(math.Phi))
}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

func (rt *Runtime) initJSON() {
	rt.AddGlobal("load_json", func(rt *Runtime, args []Value) Value {
		dec := json.NewDecoder(strings.NewReader(args[0].Str()))
		dec.UseNumber()
		var data any
		if err := dec.Decode(&data); err != nil {
			Throw(WrapError(RuntimeError, err, "invalid JSON"))
		}
		return rt.FromGo(data)
	}, []*Class{rt.StringClass}, 0)
	rt.AddGlobal("dump_json", func(rt *Runtime, args []Value) Value {
		data, err := json.Marshal(ToGo(args[0]))
		if err != nil {
			Throw(WrapError(TypeError, err, "cannot convert value to JSON"))
		}
		return FromString(string(data))
	}, []*Class{rt.ObjectClass}, 0)
}

// FromGo converts decoded JSON-like data to a script value.
func (rt *Runtime) FromGo(data any) Value {
	switch d := data.(type) {
	case nil:
		return Null
	case bool:
		return FromBool(d)
	case string:
		return FromString(d)
	case int:
		return FromInt(int64(d))
	case int64:
		return FromInt(d)
	case float64:
		return FromFloat(d)
	case json.Number:
		if n, err := d.Int64(); err == nil {
			return FromInt(n)
		}
		f, _ := d.Float64()
		return FromFloat(f)
	case []any:
		values := make([]Value, len(d))
		for i, item := range d {
			values[i] = rt.FromGo(item)
		}
		return rt.NewList(values)
	case map[string]any:
		t := rt.NewTable()
		table := t.Payload().(*Table)
		for k, v := range d {
			table.Put(FromString(k), rt.FromGo(v))
		}
		return t
	}
	Throwf(TypeError, "cannot convert Go value of type %T", data)
	return Null
}

// ToGo converts a script value to plain Go data. Table keys become their
// string form.
func ToGo(v Value) any {
	v = v.Resolve()
	switch v.kind {
	case KindNull:
		return nil
	case KindBoolean:
		return v.Bool()
	case KindInteger:
		return v.Int()
	case KindFloat:
		return v.Float()
	case KindString:
		return v.Str()
	}
	switch p := v.Payload().(type) {
	case *List:
		out := make([]any, len(p.items))
		for i, item := range p.items {
			out[i] = ToGo(item)
		}
		return out
	case *Table:
		out := make(map[string]any, p.Len())
		for k, item := range p.m.All() {
			out[Display(k, false)] = ToGo(item)
		}
		return out
	case *Set:
		var out []any
		for _, item := range p.Elements() {
			out = append(out, ToGo(item))
		}
		return out
	case *Array:
		return p.data
	}
	return Display(v, false)
}
