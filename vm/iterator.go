package vm

// Iterator is the payload of the hidden loop variable of a foreach loop.
type Iterator struct {
	coll   Value
	cursor Cursor
}

func (it *Iterator) Traverse(visit func(Value)) { visit(it.coll) }

func (it *Iterator) Display(bool) string { return "<iterator>" }

// ref returns an alias to the current element, for ref loop variables.
func (it *Iterator) ref() Value {
	keys := it.cursor.Ref()
	if keys == nil || it.coll.kind != KindObject {
		return it.cursor.Value()
	}
	return fromAlias(newElementAlias(it.coll.obj, keys))
}

// newIterator starts iterating over v. With ref set the loop writes
// through element references, so the collection is unshared first.
func (rt *Runtime) newIterator(v Value, ref bool) Value {
	var coll Value
	if ref && v.kind == KindAlias {
		coll = rt.unshareAlias(v.alias)
	} else {
		coll = v.Resolve()
	}
	var cursor Cursor
	switch coll.kind {
	case KindString:
		cursor = &stringCursor{clusters: graphemes(coll.str), pos: -1}
	case KindObject:
		if it, ok := coll.obj.data.(Iterable); ok {
			cursor = it.Iterate()
		}
	}
	if cursor == nil {
		Throwf(TypeError, "cannot iterate over value of type %s", TypeName(coll))
	}
	return FromObject(rt.heap.alloc(rt.IteratorClass, &Iterator{coll: coll, cursor: cursor}))
}

// stringCursor walks the characters of a string. Strings are immutable,
// so it has no element references.
type stringCursor struct {
	clusters []string
	pos      int
}

func (c *stringCursor) Next() bool {
	c.pos++
	return c.pos < len(c.clusters)
}

func (c *stringCursor) Key() Value   { return FromInt(int64(c.pos + 1)) }
func (c *stringCursor) Value() Value { return FromString(c.clusters[c.pos]) }
func (c *stringCursor) Ref() []Value { return nil }
