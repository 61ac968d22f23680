package vm

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Reference masks
// ---------------------------------------------------------------------------

// RefMask marks which positional parameters are passed by reference.
// Bit i is parameter i (0-based).
type RefMask uint64

// MaxParams is the largest number of parameters a function may declare.
const MaxParams = 64

// ByRef builds a mask from parameter positions.
func ByRef(positions ...int) RefMask {
	var m RefMask
	for _, p := range positions {
		m |= 1 << uint(p)
	}
	return m
}

// Has reports whether parameter i is by reference.
func (m RefMask) Has(i int) bool {
	return i >= 0 && i < MaxParams && m&(1<<uint(i)) != 0
}

// Count returns the number of by-reference parameters.
func (m RefMask) Count() int { return bits.OnesCount64(uint64(m)) }

// NativeFunc is a Go function callable from scripts. args is a span of the
// operand stack; by-reference arguments arrive as Alias values. Natives
// raise errors with Throwf.
type NativeFunc func(rt *Runtime, args []Value) Value

// ---------------------------------------------------------------------------
// Callable: one overload
// ---------------------------------------------------------------------------

// Callable is a single overload of a Function: either a native or a script
// closure (a Routine plus its captured variables).
type Callable struct {
	Name      string
	Signature []*Class
	Refs      RefMask

	Native NativeFunc

	Routine  *Routine
	Upvalues []*Alias
	Env      *Module
}

// Arity returns the number of parameters.
func (c *Callable) Arity() int { return len(c.Signature) }

// IsNative reports whether the overload is implemented in Go.
func (c *Callable) IsNative() bool { return c.Native != nil }

// String renders the signature, e.g. "append(ref List, Object)".
func (c *Callable) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('(')
	for i, cls := range c.Signature {
		if i > 0 {
			b.WriteString(", ")
		}
		if c.Refs.Has(i) {
			b.WriteString("ref ")
		}
		if cls != nil {
			b.WriteString(cls.Name)
		} else {
			b.WriteString("Object")
		}
	}
	b.WriteByte(')')
	return b.String()
}

func (c *Callable) sameSignature(other *Callable) bool {
	if len(c.Signature) != len(other.Signature) {
		return false
	}
	for i := range c.Signature {
		if c.Signature[i] != other.Signature[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Function: a named set of overloads
// ---------------------------------------------------------------------------

// Function is the payload of function values. Overloads are kept sorted by
// arity; the by-reference flag of a parameter position must agree across
// all overloads so that the caller can decide how to pass an argument
// before the overload is resolved.
type Function struct {
	Name      string
	overloads []*Callable
	refs      RefMask
}

// Overloads returns the registered overloads, sorted by arity.
func (f *Function) Overloads() []*Callable { return f.overloads }

// NeedsRef reports whether argument position i is passed by reference.
func (f *Function) NeedsRef(i int) bool { return f.refs.Has(i) }

// AddOverload adds c, replacing an existing overload with the same
// signature.
func (f *Function) AddOverload(c *Callable) error {
	for _, o := range f.overloads {
		n := min(o.Arity(), c.Arity())
		for i := 0; i < n; i++ {
			if o.Refs.Has(i) != c.Refs.Has(i) {
				mode := "value"
				if o.Refs.Has(i) {
					mode = "reference"
				}
				return fmt.Errorf("parameter %d in function %q must be passed by %s", i+1, f.Name, mode)
			}
		}
	}
	for i, o := range f.overloads {
		if o.sameSignature(c) {
			f.overloads[i] = c
			return nil
		}
	}
	f.overloads = append(f.overloads, c)
	sort.SliceStable(f.overloads, func(i, j int) bool {
		return f.overloads[i].Arity() < f.overloads[j].Arity()
	})
	f.refs |= c.Refs
	return nil
}

// merge copies every overload of other into f.
func (f *Function) merge(other *Function) error {
	for _, c := range other.overloads {
		if err := f.AddOverload(c); err != nil {
			return err
		}
	}
	return nil
}

// Resolve picks the overload matching args. Each argument must be an
// instance of the declared class or one of its subclasses; null matches
// any class. Among matching overloads the one with the smallest total
// inheritance distance wins, and a tie is an ambiguity error.
func (f *Function) Resolve(rt *Runtime, args []Value) (*Callable, error) {
	var (
		best      *Callable
		bestCost  = -1
		ambiguous []*Callable
		sameArity []*Callable
	)
	for _, c := range f.overloads {
		if c.Arity() != len(args) {
			continue
		}
		sameArity = append(sameArity, c)
		cost, ok := c.cost(rt, args)
		if !ok {
			continue
		}
		switch {
		case bestCost < 0 || cost < bestCost:
			best, bestCost = c, cost
			ambiguous = ambiguous[:0]
		case cost == bestCost:
			if len(ambiguous) == 0 {
				ambiguous = append(ambiguous, best)
			}
			ambiguous = append(ambiguous, c)
		}
	}
	if len(ambiguous) > 0 {
		var candidates []string
		for _, c := range ambiguous {
			candidates = append(candidates, c.String())
		}
		return nil, NewError(TypeError, "ambiguous call to function %q, candidates are:\n%s",
			f.Name, strings.Join(candidates, "\n"))
	}
	if best != nil {
		return best, nil
	}
	return nil, f.mismatch(rt, args, sameArity)
}

func (c *Callable) cost(rt *Runtime, args []Value) (int, bool) {
	total := 0
	for i, want := range c.Signature {
		arg := args[i].Resolve()
		if want == nil || arg.IsNull() {
			continue
		}
		d, ok := rt.ClassOf(arg).Distance(want)
		if !ok {
			return 0, false
		}
		total += d
	}
	return total, true
}

func (f *Function) mismatch(rt *Runtime, args []Value, sameArity []*Callable) error {
	if len(sameArity) == 0 {
		var arities []string
		seen := map[int]bool{}
		for _, c := range f.overloads {
			if !seen[c.Arity()] {
				seen[c.Arity()] = true
				arities = append(arities, fmt.Sprint(c.Arity()))
			}
		}
		return NewError(TypeError, "function %q expects %s argument(s), got %d",
			f.Name, strings.Join(arities, " or "), len(args))
	}
	if len(sameArity) == 1 {
		c := sameArity[0]
		for i, want := range c.Signature {
			arg := args[i].Resolve()
			if want == nil || arg.IsNull() {
				continue
			}
			if !rt.ClassOf(arg).IsSubclassOf(want) {
				return NewError(TypeError, "argument %d in call to function %q: expected %s, got %s",
					i+1, f.Name, want.Name, rt.ClassOf(arg).Name)
			}
		}
	}
	var got []string
	for _, a := range args {
		got = append(got, rt.ClassOf(a).Name)
	}
	return NewError(TypeError, "cannot resolve call to function %q with argument types (%s)",
		f.Name, strings.Join(got, ", "))
}

// ---------------------------------------------------------------------------
// Function payload capabilities
// ---------------------------------------------------------------------------

// Traverse exposes captured variables to the collector.
func (f *Function) Traverse(visit func(Value)) {
	for _, c := range f.overloads {
		for _, up := range c.Upvalues {
			visit(fromAlias(up))
		}
		if c.Env != nil && c.Env.object != nil {
			visit(FromObject(c.Env.object))
		}
	}
}

// Destroy drops captured variables.
func (f *Function) Destroy() {
	for _, c := range f.overloads {
		for _, up := range c.Upvalues {
			up.release()
		}
		c.Upvalues = nil
	}
}

func (f *Function) Display(bool) string {
	if f.Name == "" {
		return "<function>"
	}
	return "<function " + f.Name + ">"
}

func (rt *Runtime) newFunction(name string) *Object {
	return rt.heap.alloc(rt.FunctionClass, &Function{Name: name})
}

// NewNativeFunction creates a function value with a single native overload.
func (rt *Runtime) NewNativeFunction(name string, fn NativeFunc, sig []*Class, refs RefMask) Value {
	obj := rt.newFunction(name)
	if err := obj.data.(*Function).AddOverload(&Callable{Name: name, Signature: sig, Refs: refs, Native: fn}); err != nil {
		Throw(NewError(TypeError, "%v", err))
	}
	return FromObject(obj)
}
