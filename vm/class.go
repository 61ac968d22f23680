package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/phon/vm/hashmap"
)

// ---------------------------------------------------------------------------
// Class: type descriptor shared by all instances
// ---------------------------------------------------------------------------

// Capability is a bitmask of the behaviors a payload type implements.
type Capability uint16

const (
	CapTraverse Capability = 1 << iota
	CapDestroy
	CapClone
	CapDisplay
	CapCompare
	CapEqual
	CapHash
	CapIndex
	CapIterate
	CapSize
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapTraverse, "traverse"},
	{CapDestroy, "destroy"},
	{CapClone, "clone"},
	{CapDisplay, "display"},
	{CapCompare, "compare"},
	{CapEqual, "equal"},
	{CapHash, "hash"},
	{CapIndex, "index"},
	{CapIterate, "iterate"},
	{CapSize, "size"},
}

func (c Capability) String() string {
	var parts []string
	for _, n := range capabilityNames {
		if c&n.cap != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// capabilitiesOf inspects a payload prototype. Payloads are pointer types,
// so a typed nil pointer is enough to probe the method set.
func capabilitiesOf(proto any) Capability {
	var caps Capability
	if proto == nil {
		return caps
	}
	if _, ok := proto.(Traversable); ok {
		caps |= CapTraverse
	}
	if _, ok := proto.(Destroyable); ok {
		caps |= CapDestroy
	}
	if _, ok := proto.(Clonable); ok {
		caps |= CapClone
	}
	if _, ok := proto.(Displayable); ok {
		caps |= CapDisplay
	}
	if _, ok := proto.(Comparable); ok {
		caps |= CapCompare
	}
	if _, ok := proto.(Equatable); ok {
		caps |= CapEqual
	}
	if _, ok := proto.(Hashable); ok {
		caps |= CapHash
	}
	if _, ok := proto.(Indexable); ok {
		caps |= CapIndex
	}
	if _, ok := proto.(Iterable); ok {
		caps |= CapIterate
	}
	if _, ok := proto.(Sized); ok {
		caps |= CapSize
	}
	return caps
}

// Class describes a built-in or host-registered type. Classes are created
// while the runtime is being built and outlive every instance.
type Class struct {
	Name string
	Base *Class

	// ID is the class identity token: its index in the runtime registry.
	ID int

	caps    Capability
	depth   int
	methods *hashmap.Map[string, *Object]
	object  *Object
	rt      *Runtime
}

// Capabilities returns the behaviors derived from the payload type.
func (c *Class) Capabilities() Capability { return c.caps }

// Has reports whether the class has every capability in caps.
func (c *Class) Has(caps Capability) bool { return c.caps&caps == caps }

// Collectable reports whether instances may form cycles and are therefore
// tracked by the collector.
func (c *Class) Collectable() bool { return c.caps&CapTraverse != 0 }

// Depth is the number of ancestors: 0 for Object.
func (c *Class) Depth() int { return c.depth }

// Value returns the class as a script value.
func (c *Class) Value() Value { return FromObject(c.object) }

func (c *Class) String() string { return c.Name }

// IsSubclassOf returns true if c is other or inherits from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for current := c; current != nil; current = current.Base {
		if current == other {
			return true
		}
	}
	return false
}

// Distance returns the number of inheritance steps from c up to target.
// The boolean is false when c does not inherit from target.
func (c *Class) Distance(target *Class) (int, bool) {
	steps := 0
	for current := c; current != nil; current = current.Base {
		if current == target {
			return steps, true
		}
		steps++
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

// Well-known method names used by the interpreter.
const (
	MethodInit     = "init"
	MethodGetItem  = "get_item"
	MethodSetItem  = "set_item"
	MethodGetField = "get_field"
	MethodSetField = "set_field"
)

// FindMethod looks name up in c and its ancestors.
func (c *Class) FindMethod(name string) *Function {
	for current := c; current != nil; current = current.Base {
		if current.methods == nil {
			continue
		}
		if obj, ok := current.methods.Find(name); ok {
			return obj.data.(*Function)
		}
	}
	return nil
}

// AddMethod registers a native overload of the method name. Argument 0 is
// the receiver, so sig[0] is normally c itself.
func (c *Class) AddMethod(name string, fn NativeFunc, sig []*Class, refs RefMask) {
	if c.methods == nil {
		c.methods = hashmap.NewString[*Object]()
	}
	obj, ok := c.methods.Find(name)
	if !ok {
		obj = c.rt.newFunction(c.Name + "." + name)
		obj.retain()
		c.methods.Insert(name, obj)
	}
	callable := &Callable{Name: name, Signature: sig, Refs: refs, Native: fn}
	if err := obj.data.(*Function).AddOverload(callable); err != nil {
		panic(fmt.Sprintf("vm: method %s.%s: %v", c.Name, name, err))
	}
}

// AddInitializer registers a constructor overload, called when the class
// value itself is called.
func (c *Class) AddInitializer(fn NativeFunc, sig []*Class, refs RefMask) {
	c.AddMethod(MethodInit, fn, sig, refs)
}

// SetInitializer makes an existing function the class constructor.
func (c *Class) SetInitializer(fn *Object) {
	if c.methods == nil {
		c.methods = hashmap.NewString[*Object]()
	}
	fn.retain()
	if old, ok := c.methods.Find(MethodInit); ok {
		old.release()
	}
	c.methods.Insert(MethodInit, fn)
}

// Methods returns the names of the methods defined directly on c.
func (c *Class) Methods() []string {
	if c.methods == nil {
		return nil
	}
	var names []string
	for name := range c.methods.Keys() {
		names = append(names, name)
	}
	return names
}

func (c *Class) traverse(visit func(Value)) {
	visit(FromObject(c.object))
	if c.methods == nil {
		return
	}
	for _, fn := range c.methods.All() {
		visit(FromObject(fn))
	}
}

// classPayload is the payload of class objects.
type classPayload struct {
	class *Class
}

func (p *classPayload) Display(bool) string { return "<class " + p.class.Name + ">" }

// ---------------------------------------------------------------------------
// Type registration
// ---------------------------------------------------------------------------

// CreateType registers a new class whose instances carry payloads of type
// T. The class capabilities are derived from the interfaces T implements.
// A nil base makes the class a direct subclass of Object.
func CreateType[T any](rt *Runtime, name string, base *Class) *Class {
	var proto T
	return rt.newClass(name, base, capabilitiesOf(any(proto)))
}

func (rt *Runtime) newClass(name string, base *Class, caps Capability) *Class {
	if base == nil && rt.ObjectClass != nil {
		base = rt.ObjectClass
	}
	c := &Class{
		Name: name,
		Base: base,
		ID:   len(rt.classes),
		caps: caps,
		rt:   rt,
	}
	if base != nil {
		c.depth = base.depth + 1
	}
	rt.classes = append(rt.classes, c)
	rt.classIndex.Insert(name, c)

	if rt.ClassClass != nil {
		c.object = rt.heap.alloc(rt.ClassClass, &classPayload{class: c})
		c.object.retain()
		if rt.builtins != nil {
			rt.builtins.Set(name, c.Value())
		}
	}
	return c
}

// Class looks up a registered class by name.
func (rt *Runtime) Class(name string) (*Class, bool) {
	return rt.classIndex.Find(name)
}

// Classes returns every registered class in registration order.
func (rt *Runtime) Classes() []*Class {
	return rt.classes
}

// ClassOf returns the class of a value.
func (rt *Runtime) ClassOf(v Value) *Class {
	switch v.kind {
	case KindNull:
		return rt.NullClass
	case KindBoolean:
		return rt.BooleanClass
	case KindInteger:
		return rt.IntegerClass
	case KindFloat:
		return rt.FloatClass
	case KindString:
		return rt.StringClass
	case KindObject:
		return v.obj.class
	case KindAlias:
		return rt.ClassOf(v.alias.Get())
	}
	return rt.ObjectClass
}
