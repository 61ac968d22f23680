package vm

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/phon/vm/hashmap"
)

// ScriptExtension is the file extension of script sources.
const ScriptExtension = ".phon"

// DefaultMaxDepth is the default maximum call depth.
const DefaultMaxDepth = 1024

var nan = math.NaN()

// CompileFunc compiles source code to a routine. The compiler lives in its
// own package and is injected when the runtime is created.
type CompileFunc func(source, name string, debug bool) (*Routine, error)

// ---------------------------------------------------------------------------
// Runtime
// ---------------------------------------------------------------------------

// Runtime owns the class registry, the heap, the global namespaces and the
// interpreter state. A Runtime is not safe for concurrent use.
type Runtime struct {
	ObjectClass   *Class
	ClassClass    *Class
	NullClass     *Class
	BooleanClass  *Class
	NumberClass   *Class
	IntegerClass  *Class
	FloatClass    *Class
	StringClass   *Class
	ListClass     *Class
	TableClass    *Class
	SetClass      *Class
	RegexClass    *Class
	FileClass     *Class
	ArrayClass    *Class
	FunctionClass *Class
	ModuleClass   *Class
	IteratorClass *Class

	classes    []*Class
	classIndex *hashmap.Map[string, *Class]
	heap       *Heap

	builtins    *Module
	main        *Module
	imports     map[string]*Module
	importPaths []string

	stack    []Value
	sp       int
	frames   []*frame
	pending  []*Function
	maxDepth int
	depth    int

	out     io.Writer
	compile CompileFunc
	debug   bool
	args    []string
	random  *rand.Rand
	log     commonlog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithOutput sets the writer used by print.
func WithOutput(w io.Writer) Option {
	return func(rt *Runtime) { rt.out = w }
}

// WithCompiler installs the compiler used by DoString, DoFile and import.
func WithCompiler(fn CompileFunc) Option {
	return func(rt *Runtime) { rt.compile = fn }
}

// WithGCThreshold sets the initial collection threshold.
func WithGCThreshold(n int) Option {
	return func(rt *Runtime) { rt.heap = newHeap(n) }
}

// WithMaxDepth sets the maximum call depth.
func WithMaxDepth(n int) Option {
	return func(rt *Runtime) {
		if n > 0 {
			rt.maxDepth = n
		}
	}
}

// WithImportPaths adds directories searched by import.
func WithImportPaths(paths ...string) Option {
	return func(rt *Runtime) { rt.importPaths = append(rt.importPaths, paths...) }
}

// WithDebug compiles debug blocks.
func WithDebug(debug bool) Option {
	return func(rt *Runtime) { rt.debug = debug }
}

// WithArgs sets the script arguments returned by the args() builtin.
func WithArgs(args []string) Option {
	return func(rt *Runtime) { rt.args = args }
}

// WithSeed makes random numbers reproducible.
func WithSeed(seed uint64) Option {
	return func(rt *Runtime) { rt.random = rand.New(rand.NewPCG(seed, seed^0x5bd1e995)) }
}

// New creates a runtime with the built-in classes and library installed.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		classIndex: hashmap.NewString[*Class](),
		heap:       newHeap(DefaultGCThreshold),
		imports:    make(map[string]*Module),
		stack:      make([]Value, 256),
		maxDepth:   DefaultMaxDepth,
		out:        os.Stdout,
		random:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:        commonlog.GetLogger("phon.vm"),
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.bootstrap()
	return rt
}

func (rt *Runtime) bootstrap() {
	rt.builtins = newModule("builtins", "", nil)

	// Object and Class refer to each other: create both, then give them
	// their class objects.
	rt.ObjectClass = rt.newClass("Object", nil, 0)
	rt.ClassClass = CreateType[*classPayload](rt, "Class", nil)
	for _, c := range rt.classes {
		if c.object == nil {
			c.object = rt.heap.alloc(rt.ClassClass, &classPayload{class: c})
			c.object.retain()
			rt.builtins.Set(c.Name, c.Value())
		}
	}

	rt.NullClass = rt.newClass("Null", nil, 0)
	rt.BooleanClass = rt.newClass("Boolean", nil, 0)
	rt.NumberClass = rt.newClass("Number", nil, 0)
	rt.IntegerClass = rt.newClass("Integer", rt.NumberClass, 0)
	rt.FloatClass = rt.newClass("Float", rt.NumberClass, 0)
	rt.StringClass = rt.newClass("String", nil, 0)
	rt.FunctionClass = CreateType[*Function](rt, "Function", nil)
	rt.ModuleClass = CreateType[*Module](rt, "Module", nil)
	rt.IteratorClass = CreateType[*Iterator](rt, "Iterator", nil)
	rt.ListClass = CreateType[*List](rt, "List", nil)
	rt.TableClass = CreateType[*Table](rt, "Table", nil)
	rt.SetClass = CreateType[*Set](rt, "Set", nil)
	rt.RegexClass = CreateType[*Regex](rt, "Regex", nil)
	rt.FileClass = CreateType[*File](rt, "File", nil)
	rt.ArrayClass = CreateType[*Array](rt, "Array", nil)

	rt.builtins.object = rt.heap.alloc(rt.ModuleClass, rt.builtins)
	rt.builtins.object.retain()
	rt.main = rt.newModule("main", "")

	rt.initGeneric()
	rt.initMath()
	rt.initString()
	rt.initList()
	rt.initTable()
	rt.initSet()
	rt.initRegex()
	rt.initFile()
	rt.initArray()
	rt.initJSON()
	rt.initSystem()

	rt.log.Debugf("runtime ready: %d classes, %d builtins", len(rt.classes), rt.builtins.vars.Len())
}

// ---------------------------------------------------------------------------
// Error boundary
// ---------------------------------------------------------------------------

// protect runs fn and turns a raised error into a return value. Only the
// outermost protect recovers: it unwinds the frames, the operand stack and
// the pending calls to where they were on entry. Nested calls re-raise so
// that errors cross natives untouched.
func (rt *Runtime) protect(fn func() Value) (result Value, err error) {
	frames, sp, pending, suspended := len(rt.frames), rt.sp, len(rt.pending), rt.heap.suspended
	outer := rt.depth == 0
	rt.depth++
	defer func() {
		rt.depth--
		r := recover()
		if r == nil {
			return
		}
		e := rt.toError(r)
		if !outer {
			panic(e)
		}
		for len(rt.frames) > frames {
			rt.popFrame()
		}
		if rt.sp > sp {
			clear(rt.stack[sp:rt.sp])
		}
		rt.sp = sp
		rt.pending = rt.pending[:pending]
		rt.heap.suspended = suspended
		result, err = Null, e
	}()
	return fn(), nil
}

// toError converts a recovered panic to an *Error carrying the line of
// the instruction that raised it.
func (rt *Runtime) toError(r any) *Error {
	var e *Error
	switch v := r.(type) {
	case *Error:
		e = v
	case error:
		e = WrapError(RuntimeError, v, "")
	default:
		e = NewError(RuntimeError, "%v", v)
	}
	if len(rt.frames) > 0 {
		f := rt.top()
		if e.Line == 0 {
			e.Line = f.routine.LineAt(max(f.ip-1, 0))
		}
		if e.File == "" {
			e.File = f.routine.File
		}
	}
	return e
}

// ---------------------------------------------------------------------------
// Compiling and running
// ---------------------------------------------------------------------------

// CompileString compiles source without running it.
func (rt *Runtime) CompileString(source, name string) (*Routine, error) {
	if rt.compile == nil {
		return nil, NewError(RuntimeError, "no compiler installed")
	}
	return rt.compile(source, name, rt.debug)
}

// CompileFile compiles a script file without running it.
func (rt *Runtime) CompileFile(path string) (*Routine, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		e := WrapError(IOError, err, "cannot read file")
		e.File = path
		return nil, e
	}
	return rt.CompileString(string(src), path)
}

// Interpret runs a compiled routine in the main namespace.
func (rt *Runtime) Interpret(routine *Routine) (Value, error) {
	return rt.protect(func() Value {
		return rt.execute(routine, rt.main)
	})
}

// DoString compiles and runs source.
func (rt *Runtime) DoString(source string) (Value, error) {
	routine, err := rt.CompileString(source, "<string>")
	if err != nil {
		return Null, err
	}
	return rt.Interpret(routine)
}

// DoFile compiles and runs a script file.
func (rt *Runtime) DoFile(path string) (Value, error) {
	routine, err := rt.CompileFile(path)
	if err != nil {
		return Null, err
	}
	return rt.InterpretFile(routine, path)
}

// InterpretFile runs a routine compiled from path. Imports resolve
// relative to the directory of path.
func (rt *Runtime) InterpretFile(routine *Routine, path string) (Value, error) {
	if abs, err := filepath.Abs(path); err == nil {
		rt.main.File = abs
	}
	return rt.Interpret(routine)
}

// Disassemble compiles source and returns its bytecode listing.
func (rt *Runtime) Disassemble(source, name string) (string, error) {
	routine, err := rt.CompileString(source, name)
	if err != nil {
		return "", err
	}
	return Disassemble(routine), nil
}

// Call calls a function or class value.
func (rt *Runtime) Call(callee Value, args ...Value) (Value, error) {
	return rt.protect(func() Value {
		return rt.Invoke(callee, args...)
	})
}

// currentFile returns the file of the innermost running routine.
func (rt *Runtime) currentFile() string {
	for i := len(rt.frames) - 1; i >= 0; i-- {
		if f := rt.frames[i].routine.File; f != "" && f != "<string>" {
			return f
		}
	}
	return rt.main.File
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// AddGlobal registers a native function in the builtin namespace. Calling
// it again with the same name adds an overload.
func (rt *Runtime) AddGlobal(name string, fn NativeFunc, sig []*Class, refs RefMask) {
	cell := rt.builtins.Define(name)
	if existing, ok := cell.Payload().(*Function); ok {
		c := &Callable{Name: name, Signature: sig, Refs: refs, Native: fn}
		if err := existing.AddOverload(c); err != nil {
			panic(fmt.Sprintf("vm: global %s: %v", name, err))
		}
		return
	}
	storeSlot(cell, rt.NewNativeFunction(name, fn, sig, refs))
}

// SetGlobal assigns a variable in the main namespace.
func (rt *Runtime) SetGlobal(name string, v Value) {
	rt.main.Set(name, v)
}

// Global reads a variable from the main namespace or the builtins.
func (rt *Runtime) Global(name string) (Value, bool) {
	return rt.main.Get(name)
}

// Globals returns the main namespace.
func (rt *Runtime) Globals() *Module { return rt.main }

// Builtins returns the builtin namespace.
func (rt *Runtime) Builtins() *Module { return rt.builtins }

// ---------------------------------------------------------------------------
// Garbage collection
// ---------------------------------------------------------------------------

// Heap returns the runtime heap.
func (rt *Runtime) Heap() *Heap { return rt.heap }

// CollectGarbage runs a full collection cycle.
func (rt *Runtime) CollectGarbage() GCStats {
	return rt.collect()
}

// SuspendGC prevents collections until the matching ResumeGC. Calls nest.
func (rt *Runtime) SuspendGC() { rt.heap.suspend() }

// ResumeGC ends a SuspendGC.
func (rt *Runtime) ResumeGC() { rt.heap.resume() }

func (rt *Runtime) collect() GCStats {
	return rt.heap.collect(rt.roots)
}

func (rt *Runtime) roots(visit func(Value)) {
	for _, v := range rt.stack[:rt.sp] {
		visit(v)
	}
	for _, f := range rt.frames {
		for _, up := range f.upvalues {
			visit(fromAlias(up))
		}
		if f.env != nil {
			visit(FromObject(f.env.object))
		}
	}
	visit(FromObject(rt.builtins.object))
	visit(FromObject(rt.main.object))
	for _, m := range rt.imports {
		visit(FromObject(m.object))
	}
	for _, c := range rt.classes {
		c.traverse(visit)
	}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Output returns the writer used by print.
func (rt *Runtime) Output() io.Writer { return rt.out }

// SetOutput redirects print.
func (rt *Runtime) SetOutput(w io.Writer) { rt.out = w }

// Debug reports whether debug blocks are compiled.
func (rt *Runtime) Debug() bool { return rt.debug }

// Depth returns the number of active frames.
func (rt *Runtime) Depth() int { return len(rt.frames) }
