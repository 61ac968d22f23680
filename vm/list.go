package vm

import (
	"slices"
	"strings"
)

// ---------------------------------------------------------------------------
// List payload
// ---------------------------------------------------------------------------

// List is a growable sequence of values, indexed from 1. Negative indexes
// count from the end.
type List struct {
	items      []Value
	displaying bool
}

// Items returns the elements. The slice must not be modified.
func (l *List) Items() []Value { return l.items }

func (l *List) Len() int { return len(l.items) }

// Append adds v at the end.
func (l *List) Append(v Value) {
	v = v.Resolve()
	v.retain()
	l.items = append(l.items, v)
}

// Insert adds v before the 0-based position pos.
func (l *List) Insert(pos int, v Value) {
	v = v.Resolve()
	v.retain()
	l.items = slices.Insert(l.items, pos, v)
}

// RemoveAt removes and returns the element at the 0-based position pos.
func (l *List) RemoveAt(pos int) Value {
	v := l.items[pos]
	l.items = slices.Delete(l.items, pos, pos+1)
	v.release()
	return v
}

// Clear removes every element.
func (l *List) Clear() {
	for _, v := range l.items {
		v.release()
	}
	l.items = nil
}

func (l *List) Traverse(visit func(Value)) {
	for _, v := range l.items {
		visit(v)
	}
}

func (l *List) Destroy() { l.Clear() }

func (l *List) Clone() any {
	items := slices.Clone(l.items)
	for _, v := range items {
		v.retain()
	}
	return &List{items: items}
}

func (l *List) Display(bool) string {
	if l.displaying {
		return "[...]"
	}
	l.displaying = true
	defer func() { l.displaying = false }()
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range l.items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Display(v, true))
	}
	b.WriteByte(']')
	return b.String()
}

func (l *List) Equal(other any) bool {
	o := other.(*List)
	return slices.EqualFunc(l.items, o.items, Equal)
}

func (l *List) Compare(other any) int {
	return slices.CompareFunc(l.items, other.(*List).items, Compare)
}

func (l *List) Hash() uint64 {
	h := uint64(len(l.items))
	for _, v := range l.items {
		h = h*31 + Hash(v)
	}
	return h
}

func (l *List) GetItem(keys []Value) Value {
	return l.items[l.index(keys)]
}

func (l *List) SetItem(keys []Value, v Value) {
	i := l.index(keys)
	v = v.Resolve()
	v.retain()
	l.items[i].release()
	l.items[i] = v
}

func (l *List) index(keys []Value) int {
	if len(keys) != 1 {
		Throwf(IndexError, "list index must be a single integer, got %d indexes", len(keys))
	}
	k := keys[0].Resolve()
	if !k.IsInt() {
		Throwf(TypeError, "list index must be an Integer, got %s", TypeName(k))
	}
	return normIndex(k.Int(), len(l.items))
}

func (l *List) Field(name string) (Value, bool) {
	switch name {
	case "length":
		return FromInt(int64(len(l.items))), true
	case "first", "last":
		if len(l.items) == 0 {
			Throwf(IndexError, "empty list has no %s element", name)
		}
		if name == "first" {
			return l.items[0], true
		}
		return l.items[len(l.items)-1], true
	}
	return Null, false
}

func (l *List) Iterate() Cursor { return &listCursor{list: l, pos: -1} }

type listCursor struct {
	list *List
	pos  int
}

func (c *listCursor) Next() bool {
	c.pos++
	return c.pos < len(c.list.items)
}

func (c *listCursor) Key() Value   { return FromInt(int64(c.pos + 1)) }
func (c *listCursor) Value() Value { return c.list.items[c.pos] }
func (c *listCursor) Ref() []Value { return []Value{FromInt(int64(c.pos + 1))} }

// normIndex converts a 1-based index, negative from the end, into a 0-based
// position.
func normIndex(i int64, n int) int {
	pos := i - 1
	if i < 0 {
		pos = int64(n) + i
	}
	if i == 0 || pos < 0 || pos >= int64(n) {
		Throwf(IndexError, "index %d out of range (size %d)", i, n)
	}
	return int(pos)
}

// NewList creates a list holding values.
func (rt *Runtime) NewList(values []Value) Value {
	l := &List{items: make([]Value, 0, len(values))}
	for _, v := range values {
		l.Append(v)
	}
	return FromObject(rt.heap.alloc(rt.ListClass, l))
}

// ---------------------------------------------------------------------------
// List library
// ---------------------------------------------------------------------------

func listArg(v Value) *List { return v.Payload().(*List) }

func (rt *Runtime) initList() {
	L, O, I, S, F := rt.ListClass, rt.ObjectClass, rt.IntegerClass, rt.StringClass, rt.FunctionClass
	refList := ByRef(0)

	rt.ListClass.AddInitializer(func(rt *Runtime, args []Value) Value {
		return rt.NewList(nil)
	}, nil, 0)
	rt.ListClass.AddInitializer(func(rt *Runtime, args []Value) Value {
		n := args[0].Int()
		if n < 0 {
			Throwf(RangeError, "negative list size %d", n)
		}
		values := make([]Value, n)
		for i := range values {
			values[i] = args[1]
		}
		return rt.NewList(values)
	}, []*Class{I, O}, 0)

	rt.AddGlobal("contains", func(rt *Runtime, args []Value) Value {
		return FromBool(slices.ContainsFunc(listArg(args[0]).items, func(v Value) bool { return Equal(v, args[1]) }))
	}, []*Class{L, O}, 0)
	rt.AddGlobal("is_empty", func(rt *Runtime, args []Value) Value {
		return FromBool(len(listArg(args[0]).items) == 0)
	}, []*Class{L}, 0)
	rt.AddGlobal("first", func(rt *Runtime, args []Value) Value {
		v, _ := listArg(args[0]).Field("first")
		return v
	}, []*Class{L}, 0)
	rt.AddGlobal("last", func(rt *Runtime, args []Value) Value {
		v, _ := listArg(args[0]).Field("last")
		return v
	}, []*Class{L}, 0)
	find := func(rt *Runtime, l *List, v Value, start int64, back bool) Value {
		n := len(l.items)
		if n == 0 {
			return FromInt(0)
		}
		from := normIndex(start, n)
		if back {
			for i := from; i >= 0; i-- {
				if Equal(l.items[i], v) {
					return FromInt(int64(i + 1))
				}
			}
			return FromInt(0)
		}
		for i := from; i < n; i++ {
			if Equal(l.items[i], v) {
				return FromInt(int64(i + 1))
			}
		}
		return FromInt(0)
	}
	rt.AddGlobal("find", func(rt *Runtime, args []Value) Value {
		return find(rt, listArg(args[0]), args[1], 1, false)
	}, []*Class{L, O}, 0)
	rt.AddGlobal("find", func(rt *Runtime, args []Value) Value {
		return find(rt, listArg(args[0]), args[1], args[2].Int(), false)
	}, []*Class{L, O, I}, 0)
	rt.AddGlobal("find_back", func(rt *Runtime, args []Value) Value {
		return find(rt, listArg(args[0]), args[1], -1, true)
	}, []*Class{L, O}, 0)
	rt.AddGlobal("find_back", func(rt *Runtime, args []Value) Value {
		return find(rt, listArg(args[0]), args[1], args[2].Int(), true)
	}, []*Class{L, O, I}, 0)
	rt.AddGlobal("left", func(rt *Runtime, args []Value) Value {
		items := listArg(args[0]).items
		n := clampCount(args[1].Int(), len(items))
		return rt.NewList(items[:n])
	}, []*Class{L, I}, 0)
	rt.AddGlobal("right", func(rt *Runtime, args []Value) Value {
		items := listArg(args[0]).items
		n := clampCount(args[1].Int(), len(items))
		return rt.NewList(items[len(items)-n:])
	}, []*Class{L, I}, 0)
	rt.AddGlobal("slice", func(rt *Runtime, args []Value) Value {
		items := listArg(args[0]).items
		from, to := sliceBounds(args[1].Int(), args[2].Int(), len(items))
		return rt.NewList(items[from:to])
	}, []*Class{L, I, I}, 0)
	rt.AddGlobal("join", func(rt *Runtime, args []Value) Value {
		items := listArg(args[0]).items
		parts := make([]string, len(items))
		for i, v := range items {
			parts[i] = Display(v, false)
		}
		return FromString(strings.Join(parts, args[1].Str()))
	}, []*Class{L, S}, 0)
	rt.AddGlobal("clear", func(rt *Runtime, args []Value) Value {
		Unshare[*List](rt, args[0]).Clear()
		return Null
	}, []*Class{L}, refList)
	rt.AddGlobal("append", func(rt *Runtime, args []Value) Value {
		Unshare[*List](rt, args[0]).Append(args[1])
		return Null
	}, []*Class{L, O}, refList)
	rt.AddGlobal("prepend", func(rt *Runtime, args []Value) Value {
		Unshare[*List](rt, args[0]).Insert(0, args[1])
		return Null
	}, []*Class{L, O}, refList)
	rt.AddGlobal("insert", func(rt *Runtime, args []Value) Value {
		l := Unshare[*List](rt, args[0])
		pos := args[1].Int()
		if pos == int64(len(l.items))+1 {
			l.Append(args[2])
			return Null
		}
		l.Insert(normIndex(pos, len(l.items)), args[2])
		return Null
	}, []*Class{L, I, O}, refList)
	rt.AddGlobal("pop", func(rt *Runtime, args []Value) Value {
		l := Unshare[*List](rt, args[0])
		if len(l.items) == 0 {
			Throwf(IndexError, "cannot pop from an empty list")
		}
		return l.RemoveAt(len(l.items) - 1)
	}, []*Class{L}, refList)
	rt.AddGlobal("shift", func(rt *Runtime, args []Value) Value {
		l := Unshare[*List](rt, args[0])
		if len(l.items) == 0 {
			Throwf(IndexError, "cannot shift an empty list")
		}
		return l.RemoveAt(0)
	}, []*Class{L}, refList)
	rt.AddGlobal("remove_at", func(rt *Runtime, args []Value) Value {
		l := Unshare[*List](rt, args[0])
		return l.RemoveAt(normIndex(args[1].Int(), len(l.items)))
	}, []*Class{L, I}, refList)
	rt.AddGlobal("remove", func(rt *Runtime, args []Value) Value {
		l := Unshare[*List](rt, args[0])
		for i := len(l.items) - 1; i >= 0; i-- {
			if Equal(l.items[i], args[1]) {
				l.RemoveAt(i)
			}
		}
		return Null
	}, []*Class{L, O}, refList)
	rt.AddGlobal("remove_first", func(rt *Runtime, args []Value) Value {
		l := Unshare[*List](rt, args[0])
		if i := slices.IndexFunc(l.items, func(v Value) bool { return Equal(v, args[1]) }); i >= 0 {
			l.RemoveAt(i)
		}
		return Null
	}, []*Class{L, O}, refList)
	rt.AddGlobal("remove_last", func(rt *Runtime, args []Value) Value {
		l := Unshare[*List](rt, args[0])
		for i := len(l.items) - 1; i >= 0; i-- {
			if Equal(l.items[i], args[1]) {
				l.RemoveAt(i)
				break
			}
		}
		return Null
	}, []*Class{L, O}, refList)
	rt.AddGlobal("reverse", func(rt *Runtime, args []Value) Value {
		slices.Reverse(Unshare[*List](rt, args[0]).items)
		return Null
	}, []*Class{L}, refList)
	rt.AddGlobal("sort", func(rt *Runtime, args []Value) Value {
		slices.SortStableFunc(Unshare[*List](rt, args[0]).items, Compare)
		return Null
	}, []*Class{L}, refList)
	rt.AddGlobal("sort", func(rt *Runtime, args []Value) Value {
		l := Unshare[*List](rt, args[0])
		fn := args[1]
		slices.SortStableFunc(l.items, func(a, b Value) int {
			if rt.Invoke(fn, a, b).Truthy() {
				return -1
			}
			if rt.Invoke(fn, b, a).Truthy() {
				return 1
			}
			return 0
		})
		return Null
	}, []*Class{L, F}, refList)
	rt.AddGlobal("is_sorted", func(rt *Runtime, args []Value) Value {
		return FromBool(slices.IsSortedFunc(listArg(args[0]).items, Compare))
	}, []*Class{L}, 0)
	rt.AddGlobal("sorted_find", func(rt *Runtime, args []Value) Value {
		items := listArg(args[0]).items
		i, found := slices.BinarySearchFunc(items, args[1], Compare)
		if !found {
			return FromInt(0)
		}
		return FromInt(int64(i + 1))
	}, []*Class{L, O}, 0)
	rt.AddGlobal("sorted_insert", func(rt *Runtime, args []Value) Value {
		l := Unshare[*List](rt, args[0])
		i, _ := slices.BinarySearchFunc(l.items, args[1], Compare)
		l.Insert(i, args[1])
		return FromInt(int64(i + 1))
	}, []*Class{L, O}, refList)
	rt.AddGlobal("shuffle", func(rt *Runtime, args []Value) Value {
		items := Unshare[*List](rt, args[0]).items
		rt.random.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
		return Null
	}, []*Class{L}, refList)
	rt.AddGlobal("sample", func(rt *Runtime, args []Value) Value {
		items := listArg(args[0]).items
		n := args[1].Int()
		if n < 0 || n > int64(len(items)) {
			Throwf(RangeError, "cannot sample %d elements from a list of size %d", n, len(items))
		}
		perm := rt.random.Perm(len(items))[:n]
		values := make([]Value, n)
		for i, p := range perm {
			values[i] = items[p]
		}
		return rt.NewList(values)
	}, []*Class{L, I}, 0)
	rt.AddGlobal("intersect", func(rt *Runtime, args []Value) Value {
		a, b := listArg(args[0]).items, listArg(args[1]).items
		var values []Value
		for _, v := range a {
			if slices.ContainsFunc(b, func(w Value) bool { return Equal(v, w) }) &&
				!slices.ContainsFunc(values, func(w Value) bool { return Equal(v, w) }) {
				values = append(values, v)
			}
		}
		return rt.NewList(values)
	}, []*Class{L, L}, 0)
	rt.AddGlobal("unite", func(rt *Runtime, args []Value) Value {
		var values []Value
		for _, v := range slices.Concat(listArg(args[0]).items, listArg(args[1]).items) {
			if !slices.ContainsFunc(values, func(w Value) bool { return Equal(v, w) }) {
				values = append(values, v)
			}
		}
		return rt.NewList(values)
	}, []*Class{L, L}, 0)
	rt.AddGlobal("subtract", func(rt *Runtime, args []Value) Value {
		b := listArg(args[1]).items
		var values []Value
		for _, v := range listArg(args[0]).items {
			if !slices.ContainsFunc(b, func(w Value) bool { return Equal(v, w) }) {
				values = append(values, v)
			}
		}
		return rt.NewList(values)
	}, []*Class{L, L}, 0)
}

// clampCount limits a count argument to [0, n].
func clampCount(count int64, n int) int {
	if count < 0 {
		Throwf(RangeError, "negative count %d", count)
	}
	return int(min(count, int64(n)))
}

// sliceBounds converts an inclusive 1-based range into 0-based bounds.
func sliceBounds(from, to int64, n int) (int, int) {
	if n == 0 {
		return 0, 0
	}
	start := normIndex(from, n)
	end := normIndex(to, n) + 1
	if end < start {
		return start, start
	}
	return start, end
}
