package vm

import (
	"strings"

	"github.com/chazu/phon/vm/hashmap"
)

func newValueMap[V any]() *hashmap.Map[Value, V] {
	return hashmap.New[Value, V](Hash, Equal)
}

// ---------------------------------------------------------------------------
// Table payload
// ---------------------------------------------------------------------------

// Table maps keys to values. Keys compare with Equal, so 1 and 1.0 are
// the same key.
type Table struct {
	m          *hashmap.Map[Value, Value]
	displaying bool
}

func NewTablePayload() *Table { return &Table{m: newValueMap[Value]()} }

func (t *Table) Len() int { return t.m.Len() }

// Get returns the value stored under key.
func (t *Table) Get(key Value) (Value, bool) { return t.m.Find(key.Resolve()) }

// Put stores value under key.
func (t *Table) Put(key, value Value) {
	key, value = key.Resolve(), value.Resolve()
	value.retain()
	if old, ok := t.m.Find(key); ok {
		old.release()
	} else {
		key.retain()
	}
	t.m.Insert(key, value)
}

// Remove deletes key and reports whether it was present.
func (t *Table) Remove(key Value) bool {
	key = key.Resolve()
	v, ok := t.m.Find(key)
	if !ok {
		return false
	}
	k := t.keyOf(key)
	t.m.Erase(key)
	k.release()
	v.release()
	return true
}

func (t *Table) keyOf(key Value) Value {
	for i := t.m.Next(0); i >= 0; i = t.m.Next(i + 1) {
		if k, _ := t.m.At(i); Equal(k, key) {
			return k
		}
	}
	return key
}

// Clear removes every entry.
func (t *Table) Clear() {
	for k, v := range t.m.All() {
		k.release()
		v.release()
	}
	t.m.Clear()
}

// Keys returns the keys in iteration order.
func (t *Table) Keys() []Value {
	keys := make([]Value, 0, t.m.Len())
	for k := range t.m.Keys() {
		keys = append(keys, k)
	}
	return keys
}

// Values returns the values in iteration order.
func (t *Table) Values() []Value {
	values := make([]Value, 0, t.m.Len())
	for _, v := range t.m.All() {
		values = append(values, v)
	}
	return values
}

func (t *Table) Traverse(visit func(Value)) {
	for k, v := range t.m.All() {
		visit(k)
		visit(v)
	}
}

func (t *Table) Destroy() { t.Clear() }

func (t *Table) Clone() any {
	m := t.m.Clone()
	for k, v := range m.All() {
		k.retain()
		v.retain()
	}
	return &Table{m: m}
}

func (t *Table) Display(bool) string {
	if t.displaying {
		return "{...}"
	}
	t.displaying = true
	defer func() { t.displaying = false }()
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for k, v := range t.m.All() {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(Display(k, true))
		b.WriteString(": ")
		b.WriteString(Display(v, true))
	}
	b.WriteByte('}')
	return b.String()
}

func (t *Table) Equal(other any) bool {
	o := other.(*Table)
	if t.m.Len() != o.m.Len() {
		return false
	}
	for k, v := range t.m.All() {
		w, ok := o.m.Find(k)
		if !ok || !Equal(v, w) {
			return false
		}
	}
	return true
}

// Hash is independent of the iteration order.
func (t *Table) Hash() uint64 {
	var h uint64
	for k, v := range t.m.All() {
		h += Hash(k)*31 ^ Hash(v)
	}
	return h
}

func (t *Table) GetItem(keys []Value) Value {
	key := singleKey(keys)
	v, ok := t.m.Find(key)
	if !ok {
		Throwf(IndexError, "key %s not found in table", Display(key, true))
	}
	return v
}

func (t *Table) SetItem(keys []Value, v Value) {
	t.Put(singleKey(keys), v)
}

func (t *Table) Field(name string) (Value, bool) {
	if name == "length" {
		return FromInt(int64(t.m.Len())), true
	}
	return Null, false
}

func (t *Table) Iterate() Cursor { return &tableCursor{m: t.m, pos: -1} }

type tableCursor struct {
	m   *hashmap.Map[Value, Value]
	pos int
}

func (c *tableCursor) Next() bool {
	c.pos = c.m.Next(c.pos + 1)
	return c.pos >= 0
}

func (c *tableCursor) Key() Value {
	k, _ := c.m.At(c.pos)
	return k
}

func (c *tableCursor) Value() Value {
	_, v := c.m.At(c.pos)
	return v
}

func (c *tableCursor) Ref() []Value { return []Value{c.Key()} }

func singleKey(keys []Value) Value {
	if len(keys) != 1 {
		Throwf(IndexError, "expected a single key, got %d", len(keys))
	}
	return keys[0].Resolve()
}

// NewTable creates an empty table.
func (rt *Runtime) NewTable() Value {
	return FromObject(rt.heap.alloc(rt.TableClass, NewTablePayload()))
}

func (rt *Runtime) newTableFromPairs(pairs []Value) Value {
	t := NewTablePayload()
	for i := 0; i+1 < len(pairs); i += 2 {
		t.Put(pairs[i], pairs[i+1])
	}
	return FromObject(rt.heap.alloc(rt.TableClass, t))
}

// ---------------------------------------------------------------------------
// Set payload
// ---------------------------------------------------------------------------

// Set is an unordered collection of distinct values.
type Set struct {
	m          *hashmap.Map[Value, struct{}]
	displaying bool
}

func NewSetPayload() *Set { return &Set{m: newValueMap[struct{}]()} }

func (s *Set) Len() int { return s.m.Len() }

// Contains reports whether v is an element.
func (s *Set) Contains(v Value) bool { return s.m.Contains(v.Resolve()) }

// Insert adds v and reports whether it was new.
func (s *Set) Insert(v Value) bool {
	v = v.Resolve()
	if !s.m.Insert(v, struct{}{}) {
		return false
	}
	v.retain()
	return true
}

// Remove deletes v and reports whether it was present.
func (s *Set) Remove(v Value) bool {
	v = v.Resolve()
	var stored Value
	found := false
	for i := s.m.Next(0); i >= 0; i = s.m.Next(i + 1) {
		if k, _ := s.m.At(i); Equal(k, v) {
			stored, found = k, true
			break
		}
	}
	if !found {
		return false
	}
	s.m.Erase(v)
	stored.release()
	return true
}

// Clear removes every element.
func (s *Set) Clear() {
	for k := range s.m.Keys() {
		k.release()
	}
	s.m.Clear()
}

// Elements returns the elements in iteration order.
func (s *Set) Elements() []Value {
	values := make([]Value, 0, s.m.Len())
	for k := range s.m.Keys() {
		values = append(values, k)
	}
	return values
}

func (s *Set) Traverse(visit func(Value)) {
	for k := range s.m.Keys() {
		visit(k)
	}
}

func (s *Set) Destroy() { s.Clear() }

func (s *Set) Clone() any {
	m := s.m.Clone()
	for k := range m.Keys() {
		k.retain()
	}
	return &Set{m: m}
}

func (s *Set) Display(bool) string {
	if s.displaying {
		return "{...}"
	}
	s.displaying = true
	defer func() { s.displaying = false }()
	var parts []string
	for k := range s.m.Keys() {
		parts = append(parts, Display(k, true))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (s *Set) Equal(other any) bool {
	o := other.(*Set)
	if s.m.Len() != o.m.Len() {
		return false
	}
	for k := range s.m.Keys() {
		if !o.m.Contains(k) {
			return false
		}
	}
	return true
}

func (s *Set) Hash() uint64 {
	var h uint64
	for k := range s.m.Keys() {
		h += Hash(k)
	}
	return h
}

func (s *Set) Field(name string) (Value, bool) {
	if name == "length" {
		return FromInt(int64(s.m.Len())), true
	}
	return Null, false
}

func (s *Set) Iterate() Cursor { return &setCursor{m: s.m, pos: -1} }

type setCursor struct {
	m   *hashmap.Map[Value, struct{}]
	pos int
}

func (c *setCursor) Next() bool {
	c.pos = c.m.Next(c.pos + 1)
	return c.pos >= 0
}

func (c *setCursor) Key() Value {
	k, _ := c.m.At(c.pos)
	return k
}

func (c *setCursor) Value() Value { return c.Key() }
func (c *setCursor) Ref() []Value { return nil }

// NewSet creates a set holding values.
func (rt *Runtime) NewSet(values []Value) Value {
	s := NewSetPayload()
	for _, v := range values {
		s.Insert(v)
	}
	return FromObject(rt.heap.alloc(rt.SetClass, s))
}

// ---------------------------------------------------------------------------
// Table and Set library
// ---------------------------------------------------------------------------

func (rt *Runtime) initTable() {
	T, O := rt.TableClass, rt.ObjectClass
	table := func(v Value) *Table { return v.Payload().(*Table) }

	rt.TableClass.AddInitializer(func(rt *Runtime, args []Value) Value {
		return rt.NewTable()
	}, nil, 0)
	rt.AddGlobal("contains", func(rt *Runtime, args []Value) Value {
		_, ok := table(args[0]).Get(args[1])
		return FromBool(ok)
	}, []*Class{T, O}, 0)
	rt.AddGlobal("is_empty", func(rt *Runtime, args []Value) Value {
		return FromBool(table(args[0]).Len() == 0)
	}, []*Class{T}, 0)
	rt.AddGlobal("clear", func(rt *Runtime, args []Value) Value {
		Unshare[*Table](rt, args[0]).Clear()
		return Null
	}, []*Class{T}, ByRef(0))
	rt.AddGlobal("remove", func(rt *Runtime, args []Value) Value {
		return FromBool(Unshare[*Table](rt, args[0]).Remove(args[1]))
	}, []*Class{T, O}, ByRef(0))
	rt.AddGlobal("get", func(rt *Runtime, args []Value) Value {
		return table(args[0]).GetItem(args[1:2])
	}, []*Class{T, O}, 0)
	rt.AddGlobal("get", func(rt *Runtime, args []Value) Value {
		if v, ok := table(args[0]).Get(args[1]); ok {
			return v
		}
		return args[2]
	}, []*Class{T, O, O}, 0)
	rt.AddGlobal("keys", func(rt *Runtime, args []Value) Value {
		return rt.NewList(table(args[0]).Keys())
	}, []*Class{T}, 0)
	rt.AddGlobal("values", func(rt *Runtime, args []Value) Value {
		return rt.NewList(table(args[0]).Values())
	}, []*Class{T}, 0)
}

func (rt *Runtime) initSet() {
	S, O, L := rt.SetClass, rt.ObjectClass, rt.ListClass
	set := func(v Value) *Set { return v.Payload().(*Set) }

	rt.SetClass.AddInitializer(func(rt *Runtime, args []Value) Value {
		return rt.NewSet(nil)
	}, nil, 0)
	rt.SetClass.AddInitializer(func(rt *Runtime, args []Value) Value {
		return rt.NewSet(listArg(args[0]).items)
	}, []*Class{L}, 0)
	rt.AddGlobal("contains", func(rt *Runtime, args []Value) Value {
		return FromBool(set(args[0]).Contains(args[1]))
	}, []*Class{S, O}, 0)
	rt.AddGlobal("is_empty", func(rt *Runtime, args []Value) Value {
		return FromBool(set(args[0]).Len() == 0)
	}, []*Class{S}, 0)
	rt.AddGlobal("insert", func(rt *Runtime, args []Value) Value {
		return FromBool(Unshare[*Set](rt, args[0]).Insert(args[1]))
	}, []*Class{S, O}, ByRef(0))
	rt.AddGlobal("remove", func(rt *Runtime, args []Value) Value {
		return FromBool(Unshare[*Set](rt, args[0]).Remove(args[1]))
	}, []*Class{S, O}, ByRef(0))
	rt.AddGlobal("clear", func(rt *Runtime, args []Value) Value {
		Unshare[*Set](rt, args[0]).Clear()
		return Null
	}, []*Class{S}, ByRef(0))
	rt.AddGlobal("intersect", func(rt *Runtime, args []Value) Value {
		a, b := set(args[0]), set(args[1])
		var values []Value
		for _, v := range a.Elements() {
			if b.Contains(v) {
				values = append(values, v)
			}
		}
		return rt.NewSet(values)
	}, []*Class{S, S}, 0)
	rt.AddGlobal("unite", func(rt *Runtime, args []Value) Value {
		return rt.NewSet(append(set(args[0]).Elements(), set(args[1]).Elements()...))
	}, []*Class{S, S}, 0)
	rt.AddGlobal("subtract", func(rt *Runtime, args []Value) Value {
		a, b := set(args[0]), set(args[1])
		var values []Value
		for _, v := range a.Elements() {
			if !b.Contains(v) {
				values = append(values, v)
			}
		}
		return rt.NewSet(values)
	}, []*Class{S, S}, 0)
}
