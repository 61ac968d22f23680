package vm

import (
	"encoding/binary"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// frame is the execution state of one routine activation. The callee value
// sits at stack[base-1]; locals, parameters first, occupy
// stack[base:base+routine.Locals].
type frame struct {
	routine  *Routine
	callable *Callable
	upvalues []*Alias
	env      *Module
	ip       int
	base     int
}

func (f *frame) readByte() int {
	v := f.routine.Code[f.ip]
	f.ip++
	return int(v)
}

func (f *frame) readUint16() int {
	v := binary.LittleEndian.Uint16(f.routine.Code[f.ip:])
	f.ip += 2
	return int(v)
}

func (f *frame) readInt16() int {
	return int(int16(f.readUint16()))
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (rt *Runtime) push(v Value) {
	if rt.sp >= len(rt.stack) {
		rt.growStack(rt.sp + 1)
	}
	rt.stack[rt.sp] = v
	rt.sp++
}

func (rt *Runtime) pop() Value {
	rt.sp--
	v := rt.stack[rt.sp]
	rt.stack[rt.sp] = Null
	return v
}

func (rt *Runtime) peek(distance int) Value {
	return rt.stack[rt.sp-1-distance]
}

// drop discards the top n values.
func (rt *Runtime) drop(n int) {
	clear(rt.stack[rt.sp-n : rt.sp])
	rt.sp -= n
}

func (rt *Runtime) growStack(need int) {
	size := max(2*len(rt.stack), need, 256)
	stack := make([]Value, size)
	copy(stack, rt.stack[:rt.sp])
	rt.stack = stack
}

func (rt *Runtime) top() *frame {
	return rt.frames[len(rt.frames)-1]
}

// canCollapse reports whether variable aliases may be collapsed back into
// plain values. While a call is being prepared, uncounted aliases for
// by-reference arguments live on the operand stack.
func (rt *Runtime) canCollapse() bool {
	return len(rt.pending) == 0
}

func (rt *Runtime) pendingRef(pos int) bool {
	if len(rt.pending) == 0 {
		return false
	}
	fn := rt.pending[len(rt.pending)-1]
	return fn != nil && fn.NeedsRef(pos)
}

// ---------------------------------------------------------------------------
// Frame management
// ---------------------------------------------------------------------------

// pushFrame activates routine. The arguments are already on the stack at
// base and have been retained as locals.
func (rt *Runtime) pushFrame(routine *Routine, callable *Callable, upvalues []*Alias, env *Module, base int) {
	if len(rt.frames) >= rt.maxDepth {
		Throwf(RuntimeError, "stack overflow (maximum call depth is %d)", rt.maxDepth)
	}
	end := base + routine.Locals
	if end+16 > len(rt.stack) {
		rt.growStack(end + 16)
	}
	for i := rt.sp; i < end; i++ {
		rt.stack[i] = Null
	}
	rt.sp = end
	rt.frames = append(rt.frames, &frame{
		routine:  routine,
		callable: callable,
		upvalues: upvalues,
		env:      env,
		base:     base,
	})
}

// popFrame releases the locals of the top frame and removes it, together
// with the callee slot and anything left above the locals.
func (rt *Runtime) popFrame() {
	f := rt.top()
	rt.frames[len(rt.frames)-1] = nil
	rt.frames = rt.frames[:len(rt.frames)-1]
	end := max(rt.sp, f.base+f.routine.Locals)
	for i := f.base; i < f.base+f.routine.Locals; i++ {
		rt.stack[i].release()
	}
	rt.sp = f.base - 1
	clear(rt.stack[rt.sp:end])
}

// execute runs routine as a script in env and returns its result.
func (rt *Runtime) execute(routine *Routine, env *Module) Value {
	rt.push(Null)
	rt.pushFrame(routine, nil, nil, env, rt.sp)
	return rt.run(len(rt.frames) - 1)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// calleeFunction returns the function invoked when v is called: the value
// itself for functions, the initializer for classes.
func calleeFunction(v Value) *Function {
	switch p := v.Payload().(type) {
	case *Function:
		return p
	case *classPayload:
		return p.class.FindMethod(MethodInit)
	}
	return nil
}

// call invokes the callee at stack[sp-argc-1] with the argc values above
// it. Natives run to completion and leave their result in place of the
// callee; for script functions a frame is pushed and true is returned.
func (rt *Runtime) call(argc int) bool {
	callee := rt.stack[rt.sp-argc-1].Resolve()
	fn := calleeFunction(callee)
	if fn == nil {
		if cls, ok := callee.Payload().(*classPayload); ok {
			Throwf(TypeError, "class %s cannot be instantiated", cls.class.Name)
		}
		Throwf(TypeError, "value of type %s is not callable", TypeName(callee))
	}
	return rt.enter(fn, argc)
}

func (rt *Runtime) enter(fn *Function, argc int) bool {
	args := rt.stack[rt.sp-argc : rt.sp]
	c, err := fn.Resolve(rt, args)
	if err != nil {
		if e, ok := AsError(err); ok {
			Throw(e)
		}
		Throw(WrapError(TypeError, err, ""))
	}
	if c.IsNative() {
		result := c.Native(rt, args).Resolve()
		rt.drop(argc + 1)
		rt.push(result)
		return false
	}
	base := rt.sp - argc
	for i := base; i < rt.sp; i++ {
		rt.stack[i].retain()
	}
	rt.pushFrame(c.Routine, c, c.Upvalues, c.Env, base)
	return true
}

// callFunction calls fn with args from Go and returns its result. The
// collector stays suspended while a native is waiting for the result.
func (rt *Runtime) callFunction(fn *Function, args ...Value) Value {
	nested := len(rt.frames) > 0
	if nested {
		rt.heap.suspend()
		defer rt.heap.resume()
	}
	rt.push(Null)
	for _, a := range args {
		rt.push(a)
	}
	stop := len(rt.frames)
	if rt.enter(fn, len(args)) {
		return rt.run(stop)
	}
	return rt.pop()
}

// Invoke calls a function or class value from a native and returns the
// result. Errors propagate to the enclosing script.
func (rt *Runtime) Invoke(callee Value, args ...Value) Value {
	fn := calleeFunction(callee)
	if fn == nil {
		Throwf(TypeError, "value of type %s is not callable", TypeName(callee))
	}
	return rt.callFunction(fn, args...)
}

// ---------------------------------------------------------------------------
// Copy-on-write
// ---------------------------------------------------------------------------

func (rt *Runtime) cloneObject(o *Object) *Object {
	c, ok := o.data.(Clonable)
	if !ok {
		return o
	}
	return rt.heap.alloc(o.class, c.Clone())
}

// unshareAlias makes the value referred to by a unique and returns it.
func (rt *Runtime) unshareAlias(a *Alias) Value {
	v := a.Get()
	if v.kind == KindObject && v.obj.refs > 1 {
		if clone := rt.cloneObject(v.obj); clone != v.obj {
			v = FromObject(clone)
			a.Set(v)
		}
	}
	return v
}

// unshareSlot makes the value stored in a variable unique before it is
// modified in place, and returns it.
func (rt *Runtime) unshareSlot(slot *Value) Value {
	if slot.kind == KindAlias {
		return rt.unshareAlias(slot.alias)
	}
	v := *slot
	if v.kind == KindObject && v.obj.refs > 1 {
		if clone := rt.cloneObject(v.obj); clone != v.obj {
			v = FromObject(clone)
			storeSlot(slot, v)
		}
	}
	return v
}

// unshare makes the object behind a by-reference argument unique. A value
// passed without a reference is modified in place only if no variable
// holds it.
func (rt *Runtime) unshare(v Value) *Object {
	var obj *Object
	if v.kind == KindAlias {
		obj = rt.unshareAlias(v.alias).Object()
	} else if v.kind == KindObject {
		obj = v.obj
		if obj.refs > 0 {
			obj = rt.cloneObject(obj)
		}
	}
	if obj == nil {
		Throwf(TypeError, "expected an object, got a value of type %s", TypeName(v))
	}
	return obj
}

// Unshare returns the payload of a by-reference argument after making it
// unique, so that a native can modify it in place.
func Unshare[T any](rt *Runtime, v Value) T {
	obj := rt.unshare(v)
	p, ok := obj.data.(T)
	if !ok {
		Throwf(TypeError, "unexpected argument of type %s", obj.class.Name)
	}
	return p
}

// ---------------------------------------------------------------------------
// Element and field access
// ---------------------------------------------------------------------------

func (rt *Runtime) getIndex(container Value, keys []Value) Value {
	v := container.Resolve()
	switch v.kind {
	case KindString:
		return stringGetItem(v.str, keys)
	case KindObject:
		if ix, ok := v.obj.data.(Indexable); ok {
			return ix.GetItem(keys)
		}
		if m := v.obj.class.FindMethod(MethodGetItem); m != nil {
			return rt.callFunction(m, append([]Value{v}, keys...)...)
		}
	}
	Throwf(TypeError, "cannot index value of type %s", TypeName(v))
	return Null
}

func (rt *Runtime) setIndex(container Value, keys []Value, value Value) {
	v := container.Resolve()
	if v.kind == KindObject {
		if ix, ok := v.obj.data.(Indexable); ok {
			ix.SetItem(keys, value.Resolve())
			return
		}
		if m := v.obj.class.FindMethod(MethodSetItem); m != nil {
			args := append([]Value{v}, keys...)
			rt.callFunction(m, append(args, value.Resolve())...)
			return
		}
	}
	if v.kind == KindString {
		Throwf(TypeError, "strings cannot be modified by index")
	}
	Throwf(TypeError, "cannot set index in value of type %s", TypeName(v))
}

func (rt *Runtime) getField(obj Value, name string) Value {
	v := obj.Resolve()
	if v.kind == KindObject {
		if f, ok := v.obj.data.(FieldGetter); ok {
			if r, ok := f.Field(name); ok {
				return r
			}
		}
		if m := v.obj.class.FindMethod(MethodGetField); m != nil {
			return rt.callFunction(m, v, FromString(name))
		}
	}
	Throwf(TypeError, "value of type %s has no field %q", TypeName(v), name)
	return Null
}

func (rt *Runtime) setField(obj Value, name string, value Value) {
	v := obj.Resolve()
	if v.kind == KindObject {
		if f, ok := v.obj.data.(FieldSetter); ok && f.SetField(name, value.Resolve()) {
			return
		}
		if m := v.obj.class.FindMethod(MethodSetField); m != nil {
			rt.callFunction(m, v, FromString(name), value.Resolve())
			return
		}
	}
	Throwf(TypeError, "cannot set field %q in value of type %s", name, TypeName(v))
}

func (rt *Runtime) uniqueElement(container Value, keys []Value) Value {
	elem := rt.getIndex(container, keys)
	if elem.kind == KindObject && elem.obj.refs > 1 {
		if clone := rt.cloneObject(elem.obj); clone != elem.obj {
			elem = FromObject(clone)
			rt.setIndex(container, keys, elem)
		}
	}
	return elem
}

func (rt *Runtime) uniqueField(obj Value, name string) Value {
	elem := rt.getField(obj, name)
	if elem.kind == KindObject && elem.obj.refs > 1 {
		if clone := rt.cloneObject(elem.obj); clone != elem.obj {
			elem = FromObject(clone)
			rt.setField(obj, name, elem)
		}
	}
	return elem
}

// elementRef returns an alias to container[keys]. Values that are not
// objects cannot be referred to and are returned as they are.
func elementRef(container Value, keys []Value) Value {
	c := container.Resolve()
	if c.kind != KindObject {
		return Null
	}
	if _, ok := c.obj.data.(Indexable); !ok {
		return Null
	}
	return fromAlias(newElementAlias(c.obj, keys))
}

func fieldRef(obj Value, name string) Value {
	o := obj.Resolve()
	if o.kind != KindObject {
		return Null
	}
	return fromAlias(newFieldAlias(o.obj, name))
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

func (rt *Runtime) globalCell(env *Module, name string) *Value {
	cell, ok := env.Lookup(name)
	if !ok {
		Throwf(RuntimeError, "undefined variable %q", name)
	}
	return cell
}

// defineFunction binds a function declaration. Declaring a function whose
// name already holds a function adds overloads to it; a function inherited
// from the builtins is copied into env first.
func (rt *Runtime) defineFunction(env *Module, name string, v Value) {
	decl := v.Payload().(*Function)
	if cell, ok := env.Own(name); ok {
		if existing, ok := cell.Resolve().Payload().(*Function); ok {
			if err := existing.merge(decl); err != nil {
				Throwf(TypeError, "%v", err)
			}
			return
		}
		storeSlot(cell, v)
		return
	}
	if cell, ok := env.Lookup(name); ok {
		if inherited, ok := cell.Resolve().Payload().(*Function); ok {
			obj := rt.newFunction(name)
			fn := obj.data.(*Function)
			if err := fn.merge(inherited); err != nil {
				Throwf(TypeError, "%v", err)
			}
			if err := fn.merge(decl); err != nil {
				Throwf(TypeError, "%v", err)
			}
			v = FromObject(obj)
		}
	}
	env.Set(name, v)
}

// ---------------------------------------------------------------------------
// Main interpreter loop
// ---------------------------------------------------------------------------

// run executes frames until the frame count drops back to stop, and
// returns the value returned by the frame at that depth.
func (rt *Runtime) run(stop int) Value {
	f := rt.top()
	for {
		if rt.heap.pending && rt.heap.suspended == 0 {
			rt.collect()
		}

		code := f.routine.Code
		if f.ip >= len(code) {
			rt.popFrame()
			if len(rt.frames) == stop {
				return Null
			}
			rt.push(Null)
			f = rt.top()
			continue
		}
		op := Opcode(code[f.ip])
		f.ip++

		switch op {
		// --- Stack and constants ---
		case OpNop:

		case OpPop:
			rt.pop()

		case OpPushNull:
			rt.push(Null)

		case OpPushTrue:
			rt.push(True)

		case OpPushFalse:
			rt.push(False)

		case OpPushNan:
			rt.push(FromFloat(nan))

		case OpPushSmallInt:
			rt.push(FromInt(int64(f.readInt16())))

		case OpPushInteger:
			rt.push(FromInt(f.routine.Integers[f.readUint16()]))

		case OpPushFloat:
			rt.push(FromFloat(f.routine.Floats[f.readUint16()]))

		case OpPushString:
			rt.push(FromString(f.routine.Strings[f.readUint16()]))

		// --- Locals ---
		case OpDefineLocal:
			bindSlot(&rt.stack[f.base+f.readUint16()], rt.pop())

		case OpGetLocal:
			rt.push(loadSlot(&rt.stack[f.base+f.readUint16()], rt.canCollapse()))

		case OpGetLocalArg:
			slot := &rt.stack[f.base+f.readUint16()]
			if rt.pendingRef(f.readByte()) {
				rt.push(fromAlias(boxSlot(slot)))
			} else {
				rt.push(loadSlot(slot, false))
			}

		case OpGetLocalRef:
			rt.push(fromAlias(boxSlot(&rt.stack[f.base+f.readUint16()])))

		case OpGetUniqueLocal:
			rt.push(rt.unshareSlot(&rt.stack[f.base+f.readUint16()]))

		case OpSetLocal:
			storeSlot(&rt.stack[f.base+f.readUint16()], rt.pop())

		case OpClearLocal:
			clearSlot(&rt.stack[f.base+f.readUint16()])

		case OpIncrementLocal, OpDecrementLocal:
			slot := &rt.stack[f.base+f.readUint16()]
			step := FromInt(1)
			if op == OpDecrementLocal {
				step = FromInt(-1)
			}
			storeSlot(slot, Arith(OpAdd, loadSlot(slot, false), step))

		// --- Globals ---
		case OpGetGlobal:
			cell := rt.globalCell(f.env, f.routine.Strings[f.readUint16()])
			rt.push(loadSlot(cell, rt.canCollapse()))

		case OpGetGlobalArg:
			cell := rt.globalCell(f.env, f.routine.Strings[f.readUint16()])
			if rt.pendingRef(f.readByte()) {
				rt.push(fromAlias(boxSlot(cell)))
			} else {
				rt.push(loadSlot(cell, false))
			}

		case OpGetGlobalRef:
			cell := rt.globalCell(f.env, f.routine.Strings[f.readUint16()])
			rt.push(fromAlias(boxSlot(cell)))

		case OpGetUniqueGlobal:
			name := f.routine.Strings[f.readUint16()]
			cell, ok := f.env.Own(name)
			if !ok {
				// Modifying an inherited global gives the module its own copy.
				f.env.Set(name, rt.globalCell(f.env, name).Resolve())
				cell, _ = f.env.Own(name)
			}
			rt.push(rt.unshareSlot(cell))

		case OpSetGlobal:
			f.env.Set(f.routine.Strings[f.readUint16()], rt.pop())

		case OpDefineFunction:
			name := f.routine.Strings[f.readUint16()]
			rt.defineFunction(f.env, name, rt.peek(0))
			rt.pop()

		// --- Upvalues ---
		case OpGetUpvalue:
			rt.push(f.upvalues[f.readUint16()].Get())

		case OpGetUpvalueArg:
			up := f.upvalues[f.readUint16()]
			if rt.pendingRef(f.readByte()) {
				rt.push(fromAlias(up))
			} else {
				rt.push(up.Get())
			}

		case OpGetUpvalueRef:
			rt.push(fromAlias(f.upvalues[f.readUint16()]))

		case OpGetUniqueUpvalue:
			rt.push(rt.unshareAlias(f.upvalues[f.readUint16()]))

		case OpSetUpvalue:
			f.upvalues[f.readUint16()].Set(rt.pop())

		// --- Indexing ---
		case OpGetIndex:
			n := f.readByte()
			v := rt.getIndex(rt.stack[rt.sp-n-1], rt.stack[rt.sp-n:rt.sp])
			rt.drop(n + 1)
			rt.push(v)

		case OpGetIndexArg, OpGetIndexRef:
			n := f.readByte()
			container, keys := rt.stack[rt.sp-n-1], rt.stack[rt.sp-n:rt.sp]
			var v Value
			if op == OpGetIndexRef || rt.pendingRef(f.readByte()) {
				if container.kind == KindAlias {
					container = rt.unshareAlias(container.alias)
				}
				v = elementRef(container, keys)
			}
			if v.IsNull() {
				v = rt.getIndex(container, keys)
			}
			rt.drop(n + 1)
			rt.push(v)

		case OpGetUniqueIndex:
			n := f.readByte()
			v := rt.uniqueElement(rt.stack[rt.sp-n-1], rt.stack[rt.sp-n:rt.sp])
			rt.drop(n + 1)
			rt.push(v)

		case OpSetIndex:
			n := f.readByte()
			rt.setIndex(rt.stack[rt.sp-n-1], rt.stack[rt.sp-n:rt.sp], rt.stack[rt.sp-n-2])
			rt.drop(n + 2)

		case OpGetField:
			name := rt.pop().Str()
			v := rt.getField(rt.pop(), name)
			rt.push(v)

		case OpGetFieldArg, OpGetFieldRef:
			name := rt.pop().Str()
			obj := rt.pop()
			var v Value
			if op == OpGetFieldRef || rt.pendingRef(f.readByte()) {
				if obj.kind == KindAlias {
					obj = rt.unshareAlias(obj.alias)
				}
				v = fieldRef(obj, name)
			}
			if v.IsNull() {
				v = rt.getField(obj, name)
			}
			rt.push(v)

		case OpGetUniqueField:
			name := rt.pop().Str()
			rt.push(rt.uniqueField(rt.pop(), name))

		case OpSetField:
			name := rt.pop().Str()
			obj := rt.pop()
			rt.setField(obj, name, rt.pop())

		// --- Operators ---
		case OpAdd, OpSubtract, OpMultiply, OpDivide, OpModulus, OpPower:
			b := rt.pop()
			a := rt.pop()
			rt.push(Arith(op, a, b))

		case OpNegate:
			rt.push(Negate(rt.pop()))

		case OpNot:
			rt.push(FromBool(!rt.pop().Truthy()))

		case OpConcat:
			n := f.readByte()
			v := Concat(rt.stack[rt.sp-n : rt.sp])
			rt.drop(n)
			rt.push(v)

		case OpEqual, OpNotEqual:
			b := rt.pop()
			a := rt.pop()
			rt.push(FromBool(Equal(a, b) == (op == OpEqual)))

		case OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpCompare:
			b := rt.pop()
			a := rt.pop()
			c := Compare(a, b)
			switch op {
			case OpLess:
				rt.push(FromBool(c < 0))
			case OpLessEqual:
				rt.push(FromBool(c <= 0))
			case OpGreater:
				rt.push(FromBool(c > 0))
			case OpGreaterEqual:
				rt.push(FromBool(c >= 0))
			default:
				rt.push(FromInt(int64(c)))
			}

		// --- Control flow ---
		case OpJump:
			offset := f.readInt16()
			f.ip += offset

		case OpJumpFalse:
			offset := f.readInt16()
			if !rt.pop().Truthy() {
				f.ip += offset
			}

		case OpJumpTrue:
			offset := f.readInt16()
			if rt.pop().Truthy() {
				f.ip += offset
			}

		case OpJumpFalseAnd:
			offset := f.readInt16()
			if !rt.peek(0).Truthy() {
				f.ip += offset
			} else {
				rt.pop()
			}

		case OpJumpTrueOr:
			offset := f.readInt16()
			if rt.peek(0).Truthy() {
				f.ip += offset
			} else {
				rt.pop()
			}

		// --- Calls ---
		case OpPrecall:
			rt.pending = append(rt.pending, calleeFunction(rt.peek(0)))

		case OpCall:
			argc := f.readByte()
			rt.pending = rt.pending[:len(rt.pending)-1]
			if rt.call(argc) {
				f = rt.top()
			}

		case OpReturn:
			result := rt.pop().Resolve()
			rt.popFrame()
			if len(rt.frames) == stop {
				return result
			}
			rt.push(result)
			f = rt.top()

		case OpNewClosure:
			rt.push(rt.newClosure(f, f.readUint16(), f.readByte()))

		// --- Containers ---
		case OpNewList:
			n := f.readUint16()
			v := rt.NewList(rt.stack[rt.sp-n : rt.sp])
			rt.drop(n)
			rt.push(v)

		case OpNewTable:
			n := f.readUint16()
			v := rt.newTableFromPairs(rt.stack[rt.sp-2*n : rt.sp])
			rt.drop(2 * n)
			rt.push(v)

		case OpNewSet:
			n := f.readUint16()
			v := rt.NewSet(rt.stack[rt.sp-n : rt.sp])
			rt.drop(n)
			rt.push(v)

		case OpNewArray:
			rows := f.readUint16()
			cols := f.readUint16()
			n := rows * cols
			v := rt.newArrayFromValues(rows, cols, rt.stack[rt.sp-n:rt.sp])
			rt.drop(n)
			rt.push(v)

		// --- Iteration ---
		case OpNewIterator:
			ref := f.readByte() != 0
			rt.push(rt.newIterator(rt.pop(), ref))

		case OpTestIterator:
			it := rt.stack[f.base+f.readUint16()].Payload().(*Iterator)
			rt.push(FromBool(it.cursor.Next()))

		case OpNextKey:
			it := rt.stack[f.base+f.readUint16()].Payload().(*Iterator)
			rt.push(it.cursor.Key())

		case OpNextValue:
			it := rt.stack[f.base+f.readUint16()].Payload().(*Iterator)
			if f.readByte() != 0 {
				rt.push(it.ref())
			} else {
				rt.push(it.cursor.Value())
			}

		// --- Statements ---
		case OpPrint, OpPrintLine:
			n := f.readByte()
			rt.print(rt.stack[rt.sp-n:rt.sp], op == OpPrintLine)
			rt.drop(n)

		case OpAssert:
			var msg Value
			if f.readByte() != 0 {
				msg = rt.pop()
			}
			if !rt.pop().Truthy() {
				if msg.IsNull() {
					Throwf(RuntimeError, "assertion failed")
				}
				Throwf(RuntimeError, "assertion failed: %s", Display(msg, false))
			}

		case OpThrow:
			v := rt.pop().Resolve()
			Throw(&Error{Kind: RuntimeError, Message: Display(v, false), Value: v})

		default:
			Throwf(RuntimeError, "invalid opcode %s at offset %d", op, f.ip-1)
		}
	}
}

// newClosure creates a function value for the nested routine idx, taking
// ntypes parameter classes from the stack.
func (rt *Runtime) newClosure(f *frame, idx, ntypes int) Value {
	routine := f.routine.Routines[idx]
	sig := make([]*Class, routine.Params)
	types := rt.stack[rt.sp-ntypes : rt.sp]
	for i := range sig {
		sig[i] = rt.ObjectClass
		if i < len(types) {
			cls, ok := types[i].Payload().(*classPayload)
			if !ok {
				Throwf(TypeError, "type of parameter %d in function %q must be a class, got %s",
					i+1, routine.Name, TypeName(types[i]))
			}
			sig[i] = cls.class
		}
	}
	rt.drop(ntypes)

	upvalues := make([]*Alias, len(routine.Upvalues))
	for i, desc := range routine.Upvalues {
		var up *Alias
		if desc.IsLocal {
			up = boxSlot(&rt.stack[f.base+desc.Index])
		} else {
			up = f.upvalues[desc.Index]
		}
		up.refs++
		upvalues[i] = up
	}

	obj := rt.newFunction(routine.Name)
	fn := obj.data.(*Function)
	if err := fn.AddOverload(&Callable{
		Name:      routine.Name,
		Signature: sig,
		Refs:      routine.Refs,
		Routine:   routine,
		Upvalues:  upvalues,
		Env:       f.env,
	}); err != nil {
		Throwf(TypeError, "%v", err)
	}
	return FromObject(obj)
}

// print writes values separated by a space.
func (rt *Runtime) print(values []Value, newline bool) {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(Display(v, false))
	}
	if newline {
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(rt.out, b.String()); err != nil {
		Throw(WrapError(IOError, err, "cannot write output"))
	}
}
