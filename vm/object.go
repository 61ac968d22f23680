package vm

// ---------------------------------------------------------------------------
// Object: heap cell for every non-primitive value
// ---------------------------------------------------------------------------

// Color is the tri-color marking state of a tracked object.
type Color uint8

const (
	White Color = iota
	Grey
	Black
)

func (c Color) String() string {
	switch c {
	case Grey:
		return "grey"
	case Black:
		return "black"
	}
	return "white"
}

// Object is a heap cell: a class pointer, a share count, GC bookkeeping and
// the payload implementing the type (*List, *Table, *Function, ...).
type Object struct {
	class *Class
	refs  int
	id    uint64
	data  any

	// GC state. Collectable objects live on the heap's candidate list
	// while tracked.
	heap       *Heap
	color      Color
	epoch      uint32
	tracked    bool
	prev, next *Object
}

// Class returns the object's class.
func (o *Object) Class() *Class { return o.class }

// Data returns the payload.
func (o *Object) Data() any { return o.data }

// Refs returns the current share count.
func (o *Object) Refs() int { return o.refs }

// ID returns a unique, stable identifier for identity hashing.
func (o *Object) ID() uint64 { return o.id }

// Color returns the marking color.
func (o *Object) Color() Color { return o.color }

// Tracked reports whether the object is on the GC candidate list.
func (o *Object) Tracked() bool { return o.tracked }

func (o *Object) retain() {
	o.refs++
	if o.refs == 1 && !o.tracked && o.heap != nil && o.class.Collectable() {
		o.heap.track(o)
	}
}

func (o *Object) release() {
	if o.refs == 0 {
		return
	}
	o.refs--
	if o.refs == 0 && o.tracked {
		o.heap.untrack(o)
	}
}

// ---------------------------------------------------------------------------
// Capabilities. A payload type opts into each behavior by implementing the
// corresponding interface; CreateType records which ones it found.
// ---------------------------------------------------------------------------

// Traversable payloads expose their child values to the collector.
// Implementing it makes a type Collectable.
type Traversable interface {
	Traverse(visit func(Value))
}

// Destroyable payloads release their children when collected.
type Destroyable interface {
	Destroy()
}

// Clonable payloads can be copied for copy-on-write. Clone must retain the
// children it copies.
type Clonable interface {
	Clone() any
}

// Displayable payloads have a string representation. quote asks for
// strings nested inside containers to be quoted.
type Displayable interface {
	Display(quote bool) string
}

// Comparable payloads have a total order with values of the same class.
type Comparable interface {
	Compare(other any) int
}

// Equatable payloads define value equality with values of the same class.
type Equatable interface {
	Equal(other any) bool
}

// Hashable payloads hash by content. Other objects hash by identity.
type Hashable interface {
	Hash() uint64
}

// Indexable payloads support element access and element references.
type Indexable interface {
	GetItem(keys []Value) Value
	SetItem(keys []Value, v Value)
}

// Sized payloads report their number of elements for len().
type Sized interface {
	Len() int
}

// Iterable payloads can be walked by foreach.
type Iterable interface {
	Iterate() Cursor
}

// Cursor walks an Iterable. Key and Value are called after Next returns
// true; Ref returns an element reference for ref loop variables.
type Cursor interface {
	Next() bool
	Key() Value
	Value() Value
	Ref() (keys []Value)
}

// FieldGetter payloads expose named fields (obj.name). The boolean is false
// when the field does not exist.
type FieldGetter interface {
	Field(name string) (Value, bool)
}

// FieldSetter payloads accept obj.name = value. It returns false when the
// field cannot be assigned.
type FieldSetter interface {
	SetField(name string, v Value) bool
}
