package compiler

import (
	"math"

	"github.com/chazu/phon/vm"
)

// ---------------------------------------------------------------------------
// Public API
// ---------------------------------------------------------------------------

// Options control code generation.
type Options struct {
	// Name is the file name recorded in the routine and in errors.
	Name string
	// Debug compiles debug statements. A script can also turn it on with
	// "option debug".
	Debug bool
	// ReturnLast makes the routine return the value of a final expression
	// statement instead of discarding it. The REPL uses it to echo results.
	ReturnLast bool
}

// Compile lowers a parsed program to a routine.
func Compile(prog *Program, opts Options) (routine *vm.Routine, err error) {
	if opts.Name == "" {
		opts.Name = prog.Name
	}
	c := &Compiler{
		file:       opts.Name,
		debug:      opts.Debug || prog.Debug,
		returnLast: opts.ReturnLast,
	}
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*vm.Error)
			if !ok {
				panic(r)
			}
			routine, err = nil, e
		}
	}()
	return c.compileProgram(prog), nil
}

// CompileString parses and compiles source.
func CompileString(src string, opts Options) (*vm.Routine, error) {
	prog, err := Parse(src, opts.Name)
	if err != nil {
		return nil, err
	}
	return Compile(prog, opts)
}

// CompileSource has the signature of vm.CompileFunc and is what the engine
// installs in the runtime.
func CompileSource(source, name string, debug bool) (*vm.Routine, error) {
	return CompileString(source, Options{Name: name, Debug: debug})
}

var _ vm.CompileFunc = CompileSource

// ---------------------------------------------------------------------------
// Compiler state
// ---------------------------------------------------------------------------

// mode selects the instruction used to load a variable, element or field.
type mode int

const (
	modeValue  mode = iota // plain value
	modeArg                // argument: an alias if the callee takes it by reference
	modeRef                // always an alias
	modeUnique             // unshared container about to be modified in place
)

type localVar struct {
	name  string
	depth int
	slot  int
}

type loopLabels struct {
	brk  *vm.Label
	cont *vm.Label
}

// routineState holds what is being built for one routine. Nested function
// definitions push a new state whose parent is the enclosing routine.
type routineState struct {
	parent   *routineState
	routine  *vm.Routine
	code     *vm.BytecodeBuilder
	locals   []localVar
	depth    int
	slots    int
	loops    []loopLabels
	ints     map[int64]int
	strings  map[string]int
	floats   map[uint64]int
	upvalues []vm.UpvalueInfo
}

func newRoutineState(parent *routineState, name, file string, debug bool) *routineState {
	return &routineState{
		parent:  parent,
		routine: &vm.Routine{Name: name, File: file, Debug: debug},
		code:    vm.NewBytecodeBuilder(),
		ints:    make(map[int64]int),
		strings: make(map[string]int),
		floats:  make(map[uint64]int),
	}
}

// Compiler generates bytecode by visiting the AST.
type Compiler struct {
	state      *routineState
	file       string
	debug      bool
	returnLast bool

	mode   mode
	argPos int
	ifEnd  *vm.Label
}

var _ Visitor = (*Compiler)(nil)

func (c *Compiler) compileProgram(prog *Program) *vm.Routine {
	c.state = newRoutineState(nil, "", c.file, c.debug)
	stmts := prog.Body.Statements
	var last *ExprStmt
	if c.returnLast && len(stmts) > 0 {
		if e, ok := stmts[len(stmts)-1].(*ExprStmt); ok {
			last = e
			stmts = stmts[:len(stmts)-1]
		}
	}
	for _, s := range stmts {
		s.Accept(c)
	}
	if last != nil {
		c.line(last)
		c.value(last.Expr)
		c.emit(vm.OpReturn)
	}
	return c.finish(prog.Body)
}

// finish seals the current routine.
func (c *Compiler) finish(n Node) *vm.Routine {
	s := c.state
	s.code.Emit(vm.OpPushNull)
	s.code.Emit(vm.OpReturn)
	if s.code.Len() > math.MaxInt16 {
		c.fail(n, "function %q is too large", s.routine.Name)
	}
	r := s.routine
	r.Code = s.code.Bytes()
	r.Lines = s.code.Lines()
	r.Locals = s.slots
	r.Upvalues = s.upvalues
	return r
}

func (c *Compiler) fail(n Node, format string, args ...any) {
	e := vm.NewError(vm.SyntaxError, format, args...)
	e.File = c.file
	if n != nil {
		e.Line = n.Line()
	}
	panic(e)
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) code() *vm.BytecodeBuilder { return c.state.code }

func (c *Compiler) line(n Node) { c.state.code.SetLine(n.Line()) }

func (c *Compiler) emit(op vm.Opcode) { c.state.code.Emit(op) }

func (c *Compiler) emitCount(op vm.Opcode, n, limit int, node Node, what string) {
	if n > limit {
		c.fail(node, "too many %s (maximum is %d)", what, limit)
	}
	if limit <= math.MaxUint8 {
		c.code().EmitByte(op, byte(n))
	} else {
		c.code().EmitUint16(op, uint16(n))
	}
}

func (c *Compiler) poolIndex(n Node, size int) uint16 {
	if size > math.MaxUint16 {
		c.fail(n, "too many constants in one function")
	}
	return uint16(size)
}

func (c *Compiler) stringConstant(n Node, s string) uint16 {
	st := c.state
	if i, ok := st.strings[s]; ok {
		return uint16(i)
	}
	i := c.poolIndex(n, len(st.routine.Strings))
	st.routine.Strings = append(st.routine.Strings, s)
	st.strings[s] = int(i)
	return i
}

func (c *Compiler) pushInteger(n Node, v int64) {
	if v >= math.MinInt16 && v <= math.MaxInt16 {
		c.code().EmitInt16(vm.OpPushSmallInt, int16(v))
		return
	}
	st := c.state
	i, ok := st.ints[v]
	if !ok {
		i = int(c.poolIndex(n, len(st.routine.Integers)))
		st.routine.Integers = append(st.routine.Integers, v)
		st.ints[v] = i
	}
	c.code().EmitUint16(vm.OpPushInteger, uint16(i))
}

func (c *Compiler) pushFloat(n Node, v float64) {
	st := c.state
	bits := math.Float64bits(v)
	i, ok := st.floats[bits]
	if !ok {
		i = int(c.poolIndex(n, len(st.routine.Floats)))
		st.routine.Floats = append(st.routine.Floats, v)
		st.floats[bits] = i
	}
	c.code().EmitUint16(vm.OpPushFloat, uint16(i))
}

func (c *Compiler) pushString(n Node, s string) {
	c.code().EmitUint16(vm.OpPushString, c.stringConstant(n, s))
}

// expr compiles e in the given mode.
func (c *Compiler) expr(e Expr, m mode, pos int) {
	savedMode, savedPos := c.mode, c.argPos
	c.mode, c.argPos = m, pos
	e.Accept(c)
	c.mode, c.argPos = savedMode, savedPos
}

func (c *Compiler) value(e Expr) { c.expr(e, modeValue, 0) }

// ---------------------------------------------------------------------------
// Scopes and variables
// ---------------------------------------------------------------------------

func (c *Compiler) openScope() { c.state.depth++ }

func (c *Compiler) closeScope() {
	st := c.state
	st.depth--
	i := len(st.locals)
	for i > 0 && st.locals[i-1].depth > st.depth {
		i--
	}
	st.locals = st.locals[:i]
}

// addLocal declares a variable in the current scope. Slots are never
// reused, so that closures created in a scope keep their variables after
// it ends.
func (c *Compiler) addLocal(n Node, name string) int {
	st := c.state
	for i := len(st.locals) - 1; i >= 0 && st.locals[i].depth == st.depth; i-- {
		if st.locals[i].name == name {
			c.fail(n, "variable %q is already declared in this scope", name)
		}
	}
	if st.slots >= math.MaxUint16 {
		c.fail(n, "too many local variables in one function")
	}
	slot := st.slots
	st.slots++
	st.locals = append(st.locals, localVar{name: name, depth: st.depth, slot: slot})
	return slot
}

func (st *routineState) resolveLocal(name string) (int, bool) {
	for i := len(st.locals) - 1; i >= 0; i-- {
		if st.locals[i].name == name {
			return st.locals[i].slot, true
		}
	}
	return 0, false
}

func (st *routineState) resolveUpvalue(name string) (int, bool) {
	if st.parent == nil {
		return 0, false
	}
	if slot, ok := st.parent.resolveLocal(name); ok {
		return st.addUpvalue(slot, true), true
	}
	if idx, ok := st.parent.resolveUpvalue(name); ok {
		return st.addUpvalue(idx, false), true
	}
	return 0, false
}

func (st *routineState) addUpvalue(index int, isLocal bool) int {
	for i, up := range st.upvalues {
		if up.Index == index && up.IsLocal == isLocal {
			return i
		}
	}
	st.upvalues = append(st.upvalues, vm.UpvalueInfo{Index: index, IsLocal: isLocal})
	return len(st.upvalues) - 1
}

// variable loads a variable in the current mode.
func (c *Compiler) variable(n Node, name string) {
	code := c.code()
	if slot, ok := c.state.resolveLocal(name); ok {
		switch c.mode {
		case modeArg:
			code.EmitUint16Byte(vm.OpGetLocalArg, uint16(slot), byte(c.argPos))
		case modeRef:
			code.EmitUint16(vm.OpGetLocalRef, uint16(slot))
		case modeUnique:
			code.EmitUint16(vm.OpGetUniqueLocal, uint16(slot))
		default:
			code.EmitUint16(vm.OpGetLocal, uint16(slot))
		}
		return
	}
	if idx, ok := c.state.resolveUpvalue(name); ok {
		switch c.mode {
		case modeArg:
			code.EmitUint16Byte(vm.OpGetUpvalueArg, uint16(idx), byte(c.argPos))
		case modeRef:
			code.EmitUint16(vm.OpGetUpvalueRef, uint16(idx))
		case modeUnique:
			code.EmitUint16(vm.OpGetUniqueUpvalue, uint16(idx))
		default:
			code.EmitUint16(vm.OpGetUpvalue, uint16(idx))
		}
		return
	}
	k := c.stringConstant(n, name)
	switch c.mode {
	case modeArg:
		code.EmitUint16Byte(vm.OpGetGlobalArg, k, byte(c.argPos))
	case modeRef:
		code.EmitUint16(vm.OpGetGlobalRef, k)
	case modeUnique:
		code.EmitUint16(vm.OpGetUniqueGlobal, k)
	default:
		code.EmitUint16(vm.OpGetGlobal, k)
	}
}

// store pops the top of the stack into a variable.
func (c *Compiler) store(n Node, name string) {
	if slot, ok := c.state.resolveLocal(name); ok {
		c.code().EmitUint16(vm.OpSetLocal, uint16(slot))
	} else if idx, ok := c.state.resolveUpvalue(name); ok {
		c.code().EmitUint16(vm.OpSetUpvalue, uint16(idx))
	} else {
		c.code().EmitUint16(vm.OpSetGlobal, c.stringConstant(n, name))
	}
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

func (c *Compiler) VisitConstant(n *ConstantLiteral) {
	switch n.Value {
	case TokenTrue:
		c.emit(vm.OpPushTrue)
	case TokenFalse:
		c.emit(vm.OpPushFalse)
	case TokenNan:
		c.emit(vm.OpPushNan)
	default:
		c.emit(vm.OpPushNull)
	}
}

func (c *Compiler) VisitInteger(n *IntegerLiteral) { c.pushInteger(n, n.Value) }

func (c *Compiler) VisitFloat(n *FloatLiteral) { c.pushFloat(n, n.Value) }

func (c *Compiler) VisitString(n *StringLiteral) { c.pushString(n, n.Value) }

func (c *Compiler) VisitList(n *ListLiteral) {
	for _, item := range n.Items {
		c.value(item)
	}
	c.emitCount(vm.OpNewList, len(n.Items), math.MaxUint16, n, "list items")
}

func (c *Compiler) VisitArray(n *ArrayLiteral) {
	if n.Rows > math.MaxUint16 || n.Cols > math.MaxUint16 {
		c.fail(n, "array literal has too many rows or columns")
	}
	for _, item := range n.Items {
		c.value(item)
	}
	c.code().EmitUint16Pair(vm.OpNewArray, uint16(n.Rows), uint16(n.Cols))
}

func (c *Compiler) VisitTable(n *TableLiteral) {
	for i := range n.Keys {
		c.value(n.Keys[i])
		c.value(n.Values[i])
	}
	c.emitCount(vm.OpNewTable, len(n.Keys), math.MaxUint16, n, "table entries")
}

func (c *Compiler) VisitSet(n *SetLiteral) {
	for _, item := range n.Items {
		c.value(item)
	}
	c.emitCount(vm.OpNewSet, len(n.Items), math.MaxUint16, n, "set items")
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Compiler) VisitUnary(n *UnaryExpr) {
	if n.Op == TokenMinus {
		switch lit := n.Expr.(type) {
		case *IntegerLiteral:
			c.pushInteger(n, -lit.Value)
			return
		case *FloatLiteral:
			c.pushFloat(n, -lit.Value)
			return
		}
	}
	c.value(n.Expr)
	if n.Op == TokenNot {
		c.emit(vm.OpNot)
	} else {
		c.emit(vm.OpNegate)
	}
}

var binaryOps = map[TokenType]vm.Opcode{
	TokenPlus:         vm.OpAdd,
	TokenMinus:        vm.OpSubtract,
	TokenStar:         vm.OpMultiply,
	TokenSlash:        vm.OpDivide,
	TokenMod:          vm.OpModulus,
	TokenPower:        vm.OpPower,
	TokenEqual:        vm.OpEqual,
	TokenNotEqual:     vm.OpNotEqual,
	TokenLess:         vm.OpLess,
	TokenLessEqual:    vm.OpLessEqual,
	TokenGreater:      vm.OpGreater,
	TokenGreaterEqual: vm.OpGreaterEqual,
	TokenCompare:      vm.OpCompare,
}

func (c *Compiler) VisitBinary(n *BinaryExpr) {
	switch n.Op {
	case TokenAnd, TokenOr:
		c.value(n.Left)
		end := c.code().NewLabel()
		if n.Op == TokenAnd {
			c.code().EmitJump(vm.OpJumpFalseAnd, end)
		} else {
			c.code().EmitJump(vm.OpJumpTrueOr, end)
		}
		c.value(n.Right)
		c.code().Mark(end)
		return
	}
	c.value(n.Left)
	c.value(n.Right)
	c.line(n)
	c.binaryOp(n, n.Op)
}

func (c *Compiler) binaryOp(n Node, op TokenType) {
	if op == TokenConcat {
		c.code().EmitByte(vm.OpConcat, 2)
		return
	}
	code, ok := binaryOps[op]
	if !ok {
		c.fail(n, "invalid binary operator %s", op)
	}
	c.emit(code)
}

func (c *Compiler) VisitConcat(n *ConcatExpr) {
	count := 0
	for _, item := range n.Items {
		c.value(item)
		count++
		if count == math.MaxUint8 {
			c.code().EmitByte(vm.OpConcat, byte(count))
			count = 1
		}
	}
	if count > 1 {
		c.code().EmitByte(vm.OpConcat, byte(count))
	}
}

func (c *Compiler) VisitCall(n *CallExpr) {
	if len(n.Args) > math.MaxUint8 {
		c.fail(n, "too many arguments (maximum is %d)", math.MaxUint8)
	}
	c.value(n.Callee)
	c.line(n)
	c.emit(vm.OpPrecall)
	for i, arg := range n.Args {
		c.expr(arg, modeArg, i)
	}
	c.line(n)
	c.code().EmitByte(vm.OpCall, byte(len(n.Args)))
}

// VisitIndex loads an element. The container is loaded in the same mode,
// so that a by-reference argument refers into the original container.
func (c *Compiler) VisitIndex(n *IndexExpr) {
	m, pos := c.mode, c.argPos
	c.expr(n.Expr, m, pos)
	for _, key := range n.Indexes {
		c.value(key)
	}
	c.line(n)
	count := len(n.Indexes)
	if count > math.MaxUint8 {
		c.fail(n, "too many indexes")
	}
	switch m {
	case modeArg:
		c.code().EmitBytes(vm.OpGetIndexArg, byte(count), byte(pos))
	case modeRef:
		c.code().EmitByte(vm.OpGetIndexRef, byte(count))
	case modeUnique:
		c.code().EmitByte(vm.OpGetUniqueIndex, byte(count))
	default:
		c.code().EmitByte(vm.OpGetIndex, byte(count))
	}
}

func (c *Compiler) VisitField(n *FieldExpr) {
	m, pos := c.mode, c.argPos
	c.expr(n.Expr, m, pos)
	c.pushString(n, n.Name)
	c.line(n)
	switch m {
	case modeArg:
		c.code().EmitByte(vm.OpGetFieldArg, byte(pos))
	case modeRef:
		c.emit(vm.OpGetFieldRef)
	case modeUnique:
		c.emit(vm.OpGetUniqueField)
	default:
		c.emit(vm.OpGetField)
	}
}

// VisitReference loads an alias. A call result cannot be referred to and
// is passed as a plain value.
func (c *Compiler) VisitReference(n *ReferenceExpr) {
	switch n.Expr.(type) {
	case *Variable, *IndexExpr, *FieldExpr:
		c.expr(n.Expr, modeRef, 0)
	default:
		c.value(n.Expr)
	}
}

func (c *Compiler) VisitVariable(n *Variable) { c.variable(n, n.Name) }

// VisitParameter compiles the declared type of a parameter in the
// enclosing routine. Untyped parameters accept any Object.
func (c *Compiler) VisitParameter(n *Parameter) {
	if n.Type != nil {
		c.value(n.Type)
		return
	}
	c.code().EmitUint16(vm.OpGetGlobal, c.stringConstant(n, "Object"))
}

func (c *Compiler) VisitRoutine(n *RoutineDef) {
	if len(n.Params) > vm.MaxParams {
		c.fail(n, "too many parameters (maximum is %d)", vm.MaxParams)
	}
	c.line(n)

	// Functions declared below the top level of a script are local. The
	// variable exists before the body is compiled so that the function
	// can call itself.
	local := !n.IsExpr && (n.Local || c.state.parent != nil || c.state.depth > 0)
	slot := -1
	if local {
		if s, ok := c.ownLocal(n.Name); ok {
			slot = s
		} else {
			c.emit(vm.OpPushNull)
			slot = c.addLocal(n, n.Name)
			c.code().EmitUint16(vm.OpDefineLocal, uint16(slot))
		}
	}

	outer := c.state
	savedMode, savedPos := c.mode, c.argPos
	c.mode, c.argPos = modeValue, 0
	c.state = newRoutineState(outer, n.Name, c.file, c.debug)
	c.state.depth = 1
	var refs []int
	for i, p := range n.Params {
		c.addLocal(p, p.Name)
		if p.ByRef {
			refs = append(refs, i)
		}
	}
	c.state.routine.Params = len(n.Params)
	c.state.routine.Refs = vm.ByRef(refs...)
	for _, s := range n.Body.Statements {
		s.Accept(c)
	}
	routine := c.finish(n)
	c.state = outer
	c.mode, c.argPos = savedMode, savedPos

	idx := c.poolIndex(n, len(outer.routine.Routines))
	outer.routine.Routines = append(outer.routine.Routines, routine)

	ntypes := 0
	for i, p := range n.Params {
		if p.Type != nil {
			ntypes = i + 1
		}
	}
	for _, p := range n.Params[:ntypes] {
		p.Accept(c)
	}
	c.line(n)
	c.code().EmitUint16Byte(vm.OpNewClosure, idx, byte(ntypes))

	switch {
	case n.IsExpr:
	case local:
		c.code().EmitUint16(vm.OpSetLocal, uint16(slot))
	default:
		c.code().EmitUint16(vm.OpDefineFunction, c.stringConstant(n, n.Name))
	}
}

// ownLocal finds a variable declared in the current scope.
func (c *Compiler) ownLocal(name string) (int, bool) {
	st := c.state
	for i := len(st.locals) - 1; i >= 0 && st.locals[i].depth == st.depth; i-- {
		if st.locals[i].name == name {
			return st.locals[i].slot, true
		}
	}
	return 0, false
}

func (c *Compiler) VisitConditional(n *ConditionalExpr) {
	code := c.code()
	otherwise, end := code.NewLabel(), code.NewLabel()
	c.value(n.Cond)
	code.EmitJump(vm.OpJumpFalse, otherwise)
	c.value(n.Then)
	code.EmitJump(vm.OpJump, end)
	code.Mark(otherwise)
	c.value(n.Else)
	code.Mark(end)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) VisitExprStmt(n *ExprStmt) {
	c.line(n)
	c.value(n.Expr)
	c.emit(vm.OpPop)
}

func (c *Compiler) VisitAssignment(n *Assignment) {
	c.line(n)
	compound := n.Op != TokenAssign
	switch target := n.Target.(type) {
	case *Variable:
		if compound {
			c.value(target)
			c.value(n.Value)
			c.binaryOp(n, n.Op.BinaryOperator())
		} else {
			c.value(n.Value)
		}
		c.line(n)
		c.store(n, target.Name)

	case *IndexExpr:
		count := len(target.Indexes)
		if compound {
			c.value(target)
			c.value(n.Value)
			c.binaryOp(n, n.Op.BinaryOperator())
		} else {
			c.value(n.Value)
		}
		c.expr(target.Expr, modeUnique, 0)
		for _, key := range target.Indexes {
			c.value(key)
		}
		c.line(n)
		c.code().EmitByte(vm.OpSetIndex, byte(count))

	case *FieldExpr:
		if compound {
			c.value(target)
			c.value(n.Value)
			c.binaryOp(n, n.Op.BinaryOperator())
		} else {
			c.value(n.Value)
		}
		c.expr(target.Expr, modeUnique, 0)
		c.pushString(n, target.Name)
		c.line(n)
		c.emit(vm.OpSetField)

	default:
		c.fail(n, "cannot assign to this expression")
	}
}

func (c *Compiler) VisitDeclaration(n *Declaration) {
	c.line(n)
	if len(n.Values) > 0 && len(n.Values) != len(n.Names) {
		c.fail(n, "invalid declaration: %d names but %d values", len(n.Names), len(n.Values))
	}
	if len(n.Values) == 0 {
		for _, v := range n.Names {
			c.emit(vm.OpPushNull)
			c.code().EmitUint16(vm.OpDefineLocal, uint16(c.addLocal(v, v.Name)))
		}
		return
	}
	// All values are evaluated before any name is bound.
	for _, v := range n.Values {
		c.value(v)
	}
	slots := make([]int, len(n.Names))
	for i, v := range n.Names {
		slots[i] = c.addLocal(v, v.Name)
	}
	for i := len(slots) - 1; i >= 0; i-- {
		c.code().EmitUint16(vm.OpDefineLocal, uint16(slots[i]))
	}
}

func (c *Compiler) VisitIfBranch(n *IfBranch) {
	c.line(n)
	next := c.code().NewLabel()
	c.value(n.Cond)
	c.code().EmitJump(vm.OpJumpFalse, next)
	n.Body.Accept(c)
	c.code().EmitJump(vm.OpJump, c.ifEnd)
	c.code().Mark(next)
}

func (c *Compiler) VisitIf(n *IfStatement) {
	saved := c.ifEnd
	end := c.code().NewLabel()
	for _, b := range n.Branches {
		c.ifEnd = end
		b.Accept(c)
	}
	c.ifEnd = saved
	if n.Else != nil {
		n.Else.Accept(c)
	}
	c.code().Mark(end)
}

func (c *Compiler) pushLoop() loopLabels {
	l := loopLabels{brk: c.code().NewLabel(), cont: c.code().NewLabel()}
	c.state.loops = append(c.state.loops, l)
	return l
}

func (c *Compiler) popLoop() {
	c.state.loops = c.state.loops[:len(c.state.loops)-1]
}

func (c *Compiler) VisitWhile(n *WhileStatement) {
	c.line(n)
	code := c.code()
	l := c.pushLoop()
	top := code.Here()
	code.Mark(l.cont)
	c.value(n.Cond)
	code.EmitJump(vm.OpJumpFalse, l.brk)
	n.Body.Accept(c)
	code.EmitJump(vm.OpJump, top)
	code.Mark(l.brk)
	c.popLoop()
}

// VisitRepeat compiles the body and the condition in one scope, so that
// the condition can test variables declared in the body.
func (c *Compiler) VisitRepeat(n *RepeatStatement) {
	c.line(n)
	code := c.code()
	c.openScope()
	l := c.pushLoop()
	top := code.Here()
	for _, s := range n.Body.Statements {
		s.Accept(c)
	}
	code.Mark(l.cont)
	c.line(n.Cond)
	c.value(n.Cond)
	code.EmitJump(vm.OpJumpFalse, top)
	code.Mark(l.brk)
	c.popLoop()
	c.closeScope()
}

func (c *Compiler) VisitFor(n *ForStatement) {
	c.line(n)
	code := c.code()
	c.openScope()

	c.value(n.Start)
	v := c.addLocal(n.Var, n.Var.Name)
	code.EmitUint16(vm.OpDefineLocal, uint16(v))
	c.value(n.End)
	end := c.addLocal(n, "$end")
	code.EmitUint16(vm.OpDefineLocal, uint16(end))
	step := -1
	if n.Step != nil {
		c.value(n.Step)
		step = c.addLocal(n, "$step")
		code.EmitUint16(vm.OpDefineLocal, uint16(step))
	}

	l := c.pushLoop()
	top := code.Here()
	code.EmitUint16(vm.OpGetLocal, uint16(v))
	code.EmitUint16(vm.OpGetLocal, uint16(end))
	if n.Down {
		c.emit(vm.OpLess)
	} else {
		c.emit(vm.OpGreater)
	}
	code.EmitJump(vm.OpJumpTrue, l.brk)

	for _, s := range n.Body.Statements {
		s.Accept(c)
	}

	code.Mark(l.cont)
	c.line(n)
	switch {
	case step >= 0:
		code.EmitUint16(vm.OpGetLocal, uint16(v))
		code.EmitUint16(vm.OpGetLocal, uint16(step))
		if n.Down {
			c.emit(vm.OpSubtract)
		} else {
			c.emit(vm.OpAdd)
		}
		code.EmitUint16(vm.OpSetLocal, uint16(v))
	case n.Down:
		code.EmitUint16(vm.OpDecrementLocal, uint16(v))
	default:
		code.EmitUint16(vm.OpIncrementLocal, uint16(v))
	}
	code.EmitJump(vm.OpJump, top)
	code.Mark(l.brk)
	c.popLoop()
	c.closeScope()
}

func (c *Compiler) VisitForeach(n *ForeachStatement) {
	c.line(n)
	code := c.code()
	c.openScope()

	c.expr(n.Collection, modeRef, 0)
	var ref byte
	if n.ByRef {
		ref = 1
	}
	code.EmitByte(vm.OpNewIterator, ref)
	iter := c.addLocal(n, "$iter")
	code.EmitUint16(vm.OpDefineLocal, uint16(iter))
	key := -1
	if n.Key != nil {
		key = c.addLocal(n.Key, n.Key.Name)
	}
	val := c.addLocal(n.Value, n.Value.Name)

	l := c.pushLoop()
	top := code.Here()
	code.EmitUint16(vm.OpTestIterator, uint16(iter))
	code.EmitJump(vm.OpJumpFalse, l.brk)
	if key >= 0 {
		code.EmitUint16(vm.OpNextKey, uint16(iter))
		code.EmitUint16(vm.OpDefineLocal, uint16(key))
	}
	code.EmitUint16Byte(vm.OpNextValue, uint16(iter), ref)
	code.EmitUint16(vm.OpDefineLocal, uint16(val))

	for _, s := range n.Body.Statements {
		s.Accept(c)
	}

	code.Mark(l.cont)
	code.EmitJump(vm.OpJump, top)
	code.Mark(l.brk)
	c.popLoop()

	// Drop the loop variables so that a value alias does not outlive the
	// loop.
	c.line(n)
	if key >= 0 {
		code.EmitUint16(vm.OpClearLocal, uint16(key))
	}
	code.EmitUint16(vm.OpClearLocal, uint16(val))
	code.EmitUint16(vm.OpClearLocal, uint16(iter))
	c.closeScope()
}

func (c *Compiler) VisitLoopExit(n *LoopExit) {
	c.line(n)
	loops := c.state.loops
	if len(loops) == 0 {
		c.fail(n, "%q outside of a loop", n.Kind.String())
	}
	l := loops[len(loops)-1]
	if n.Kind == TokenBreak {
		c.code().EmitJump(vm.OpJump, l.brk)
	} else {
		c.code().EmitJump(vm.OpJump, l.cont)
	}
}

func (c *Compiler) VisitReturn(n *ReturnStatement) {
	c.line(n)
	if n.Value != nil {
		c.value(n.Value)
	} else {
		c.emit(vm.OpPushNull)
	}
	c.emit(vm.OpReturn)
}

func (c *Compiler) VisitThrow(n *ThrowStatement) {
	c.line(n)
	c.value(n.Value)
	c.emit(vm.OpThrow)
}

func (c *Compiler) VisitAssert(n *AssertStatement) {
	c.line(n)
	c.value(n.Cond)
	var hasMsg byte
	if n.Message != nil {
		c.value(n.Message)
		hasMsg = 1
	}
	c.line(n)
	c.code().EmitByte(vm.OpAssert, hasMsg)
}

func (c *Compiler) VisitPrint(n *PrintStatement) {
	c.line(n)
	for _, v := range n.Values {
		c.value(v)
	}
	op := vm.OpPrint
	if n.Newline {
		op = vm.OpPrintLine
	}
	c.line(n)
	c.emitCount(op, len(n.Values), math.MaxUint8, n, "values in print statement")
}

func (c *Compiler) VisitDebug(n *DebugStatement) {
	if c.debug {
		n.Body.Accept(c)
	}
}

func (c *Compiler) VisitPass(*PassStatement) {}

func (c *Compiler) VisitStatements(n *StatementList) {
	if n.Scope {
		c.openScope()
	}
	for _, s := range n.Statements {
		s.Accept(c)
	}
	if n.Scope {
		c.closeScope()
	}
}
