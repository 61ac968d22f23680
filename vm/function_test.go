package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(v Value) NativeFunc {
	return func(*Runtime, []Value) Value { return v }
}

func TestRefMask(t *testing.T) {
	m := ByRef(0, 2, 63)
	assert.True(t, m.Has(0))
	assert.False(t, m.Has(1))
	assert.True(t, m.Has(2))
	assert.True(t, m.Has(63))
	assert.False(t, m.Has(64))
	assert.False(t, m.Has(-1))
	assert.Equal(t, 3, m.Count())
}

func TestResolvePicksClosestOverload(t *testing.T) {
	rt := New()
	f := &Function{Name: "describe"}
	require.NoError(t, f.AddOverload(&Callable{Name: "describe", Signature: []*Class{rt.ObjectClass}, Native: constant(FromString("object"))}))
	require.NoError(t, f.AddOverload(&Callable{Name: "describe", Signature: []*Class{rt.NumberClass}, Native: constant(FromString("number"))}))
	require.NoError(t, f.AddOverload(&Callable{Name: "describe", Signature: []*Class{rt.IntegerClass}, Native: constant(FromString("integer"))}))

	tests := []struct {
		arg  Value
		want string
	}{
		{FromInt(1), "integer"},
		{FromFloat(1), "number"},
		{FromString("s"), "object"},
		{rt.NewList(nil), "object"},
	}
	for _, tt := range tests {
		c, err := f.Resolve(rt, []Value{tt.arg})
		require.NoError(t, err)
		assert.Equal(t, tt.want, c.Native(rt, nil).Str(), TypeName(tt.arg))
	}
}

func TestResolveAmbiguous(t *testing.T) {
	rt := New()
	f := &Function{Name: "mix"}
	I, N := rt.IntegerClass, rt.NumberClass
	require.NoError(t, f.AddOverload(&Callable{Name: "mix", Signature: []*Class{I, N}, Native: constant(Null)}))
	require.NoError(t, f.AddOverload(&Callable{Name: "mix", Signature: []*Class{N, I}, Native: constant(Null)}))

	_, err := f.Resolve(rt, []Value{FromInt(1), FromInt(2)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrType)
	assert.Contains(t, err.Error(), "ambiguous call")
	assert.Contains(t, err.Error(), "mix(Integer, Number)")
	assert.Contains(t, err.Error(), "mix(Number, Integer)")

	_, err = f.Resolve(rt, []Value{FromFloat(1), FromInt(2)})
	assert.NoError(t, err)
}

func TestResolveMismatch(t *testing.T) {
	rt := New()
	f := &Function{Name: "upper"}
	require.NoError(t, f.AddOverload(&Callable{Name: "upper", Signature: []*Class{rt.StringClass}, Native: constant(Null)}))

	_, err := f.Resolve(rt, []Value{FromInt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `argument 1 in call to function "upper": expected String, got Integer`)

	_, err = f.Resolve(rt, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects 1 argument(s), got 0")

	// null matches any class
	_, err = f.Resolve(rt, []Value{Null})
	assert.NoError(t, err)
}

func TestOverloadRefsMustAgree(t *testing.T) {
	rt := New()
	f := &Function{Name: "push"}
	L, O := rt.ListClass, rt.ObjectClass
	require.NoError(t, f.AddOverload(&Callable{Name: "push", Signature: []*Class{L, O}, Refs: ByRef(0), Native: constant(Null)}))
	err := f.AddOverload(&Callable{Name: "push", Signature: []*Class{L}, Native: constant(Null)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be passed by reference")

	require.NoError(t, f.AddOverload(&Callable{Name: "push", Signature: []*Class{L, O, O}, Refs: ByRef(0), Native: constant(Null)}))
	assert.True(t, f.NeedsRef(0))
	assert.False(t, f.NeedsRef(1))
	require.Len(t, f.Overloads(), 2)
	assert.Equal(t, 2, f.Overloads()[0].Arity())
}

func TestOverloadSameSignatureReplaces(t *testing.T) {
	rt := New()
	f := &Function{Name: "g"}
	sig := []*Class{rt.IntegerClass}
	require.NoError(t, f.AddOverload(&Callable{Name: "g", Signature: sig, Native: constant(FromInt(1))}))
	require.NoError(t, f.AddOverload(&Callable{Name: "g", Signature: sig, Native: constant(FromInt(2))}))
	require.Len(t, f.Overloads(), 1)
	assert.Equal(t, int64(2), f.Overloads()[0].Native(rt, nil).Int())
}

func TestCallableString(t *testing.T) {
	rt := New()
	c := &Callable{Name: "append", Signature: []*Class{rt.ListClass, nil}, Refs: ByRef(0)}
	assert.Equal(t, "append(ref List, Object)", c.String())
}

func TestAddGlobalMergesOverloads(t *testing.T) {
	rt := New()
	rt.AddGlobal("twice", func(rt *Runtime, args []Value) Value {
		return FromInt(args[0].Int() * 2)
	}, []*Class{rt.IntegerClass}, 0)
	rt.AddGlobal("twice", func(rt *Runtime, args []Value) Value {
		return FromString(args[0].Str() + args[0].Str())
	}, []*Class{rt.StringClass}, 0)

	fn, ok := rt.Builtins().Get("twice")
	require.True(t, ok)
	v, err := rt.Call(fn, FromInt(21))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int())
	v, err = rt.Call(fn, FromString("ab"))
	require.NoError(t, err)
	assert.Equal(t, "abab", v.Str())

	_, err = rt.Call(fn, True)
	assert.ErrorIs(t, err, ErrType)
}

func TestClassHierarchy(t *testing.T) {
	rt := New()
	d, ok := rt.IntegerClass.Distance(rt.ObjectClass)
	require.True(t, ok)
	assert.Equal(t, 2, d)
	assert.True(t, rt.FloatClass.IsSubclassOf(rt.NumberClass))
	assert.False(t, rt.StringClass.IsSubclassOf(rt.NumberClass))
	_, ok = rt.StringClass.Distance(rt.NumberClass)
	assert.False(t, ok)

	c, ok := rt.Class("Table")
	require.True(t, ok)
	assert.Same(t, rt.TableClass, c)
	assert.True(t, c.Collectable())
	assert.False(t, rt.RegexClass.Collectable())
}
