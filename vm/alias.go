package vm

// ---------------------------------------------------------------------------
// Alias: by-reference cells
// ---------------------------------------------------------------------------

// Alias is the indirection cell behind by-reference parameters, ref loop
// variables and captured variables.
//
// A variable alias boxes the variable's value: the variable slot and every
// callee slot hold the same cell, so writes through either are visible to
// both. Once only the owning slot still holds the cell, reading the slot
// collapses it back to a plain value.
//
// An element alias refers to an element of a container (lst[i], tbl[k])
// or to a field of an object (obj.name) and reads and writes through the
// container.
type Alias struct {
	refs  int
	value Value

	container *Object
	keys      []Value
	field     string
	isField   bool
}

// newAlias boxes v. The cell takes over the slot's share of v.
func newAlias(v Value) *Alias {
	return &Alias{value: v}
}

func newElementAlias(container *Object, keys []Value) *Alias {
	k := make([]Value, len(keys))
	copy(k, keys)
	return &Alias{container: container, keys: k}
}

func newFieldAlias(container *Object, name string) *Alias {
	return &Alias{container: container, field: name, isField: true}
}

// IsElement reports whether the alias refers to a container element.
func (a *Alias) IsElement() bool { return a.container != nil }

// Refs returns the number of slots holding the cell.
func (a *Alias) Refs() int { return a.refs }

// Get returns the referenced value.
func (a *Alias) Get() Value {
	switch {
	case a.container == nil:
		return a.value
	case a.isField:
		return a.container.class.rt.getField(FromObject(a.container), a.field)
	}
	return a.container.data.(Indexable).GetItem(a.keys)
}

// Set writes through the alias.
func (a *Alias) Set(v Value) {
	v = v.Resolve()
	switch {
	case a.container == nil:
		v.retain()
		a.value.release()
		a.value = v
	case a.isField:
		a.container.class.rt.setField(FromObject(a.container), a.field, v)
	default:
		a.container.data.(Indexable).SetItem(a.keys, v)
	}
}

func (a *Alias) release() {
	if a.refs > 0 {
		a.refs--
	}
	if a.refs > 0 {
		return
	}
	if a.container == nil {
		a.value.release()
		a.value = Null
	}
}

func (a *Alias) traverse(visit func(Value)) {
	if a.container == nil {
		visit(a.value)
		return
	}
	visit(FromObject(a.container))
	for _, k := range a.keys {
		visit(k)
	}
}

// boxSlot turns the value in *slot into a variable alias, unless it already
// is one, and returns the cell.
func boxSlot(slot *Value) *Alias {
	if slot.kind == KindAlias {
		return slot.alias
	}
	a := newAlias(*slot)
	a.refs = 1
	*slot = fromAlias(a)
	return a
}

// loadSlot reads a variable slot. With collapse set, an alias that nobody
// else holds any more is turned back into a plain value. Callers must not
// collapse while an uncounted copy of the alias may sit on the operand
// stack, i.e. while call arguments are being evaluated.
func loadSlot(slot *Value, collapse bool) Value {
	if slot.kind != KindAlias {
		return *slot
	}
	a := slot.alias
	if collapse && a.refs <= 1 && a.container == nil {
		*slot = a.value
		a.value = Null
		a.refs = 0
		return *slot
	}
	return a.Get()
}

// storeSlot assigns to a variable slot, writing through an alias.
func storeSlot(slot *Value, v Value) {
	if slot.kind == KindAlias {
		slot.alias.Set(v)
		return
	}
	v = v.Resolve()
	v.retain()
	slot.release()
	*slot = v
}

// bindSlot stores v in a fresh slot as-is, keeping aliases. It is used for
// parameters, where a by-reference argument must stay an alias.
func bindSlot(slot *Value, v Value) {
	v.retain()
	slot.release()
	*slot = v
}

// clearSlot empties a slot without writing through an alias.
func clearSlot(slot *Value) {
	slot.release()
	*slot = Null
}
