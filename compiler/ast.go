package compiler

// ---------------------------------------------------------------------------
// AST: abstract syntax tree
// ---------------------------------------------------------------------------

// Node is the interface implemented by all AST nodes. Every node owns its
// children: the tree never shares subtrees.
type Node interface {
	Line() int
	Accept(v Visitor)
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	// IsAssigned reports whether the expression is the target of an
	// assignment.
	IsAssigned() bool
	// IsCompound reports whether the expression is the container part of
	// an index or field expression.
	IsCompound() bool
	expr()
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt()
}

type base struct {
	Pos Position
}

func (b *base) Line() int { return b.Pos.Line }

type exprBase struct {
	base
	assigned bool
	compound bool
}

func (e *exprBase) IsAssigned() bool { return e.assigned }
func (e *exprBase) IsCompound() bool { return e.compound }
func (e *exprBase) expr()            {}

func markAssigned(e Expr) {
	switch n := e.(type) {
	case *Variable:
		n.assigned = true
	case *IndexExpr:
		n.assigned = true
	case *FieldExpr:
		n.assigned = true
	}
}

func markCompound(e Expr) {
	switch n := e.(type) {
	case *Variable:
		n.compound = true
	case *IndexExpr:
		n.compound = true
	case *FieldExpr:
		n.compound = true
	}
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

// ConstantLiteral is true, false, null or nan.
type ConstantLiteral struct {
	exprBase
	Value TokenType
}

// IntegerLiteral is an integer constant.
type IntegerLiteral struct {
	exprBase
	Value int64
}

// FloatLiteral is a float constant.
type FloatLiteral struct {
	exprBase
	Value float64
}

// StringLiteral is a string constant.
type StringLiteral struct {
	exprBase
	Value string
}

// ListLiteral is [a, b, ...].
type ListLiteral struct {
	exprBase
	Items []Expr
}

// ArrayLiteral is @[a, b; c, d]. Items are stored row by row.
type ArrayLiteral struct {
	exprBase
	Items []Expr
	Rows  int
	Cols  int
}

// TableLiteral is {k: v, ...}.
type TableLiteral struct {
	exprBase
	Keys   []Expr
	Values []Expr
}

// SetLiteral is {a, b, ...}.
type SetLiteral struct {
	exprBase
	Items []Expr
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// UnaryExpr is -e or not e.
type UnaryExpr struct {
	exprBase
	Op   TokenType
	Expr Expr
}

// BinaryExpr is an arithmetic, comparison or logical operation.
type BinaryExpr struct {
	exprBase
	Op    TokenType
	Left  Expr
	Right Expr
}

// ConcatExpr is a & b & c, folded into a single n-ary node.
type ConcatExpr struct {
	exprBase
	Items []Expr
}

// CallExpr is callee(args...).
type CallExpr struct {
	exprBase
	Callee Expr
	Args   []Expr
}

// IndexExpr is expr[i, j, ...].
type IndexExpr struct {
	exprBase
	Expr    Expr
	Indexes []Expr
}

// FieldExpr is expr.name.
type FieldExpr struct {
	exprBase
	Expr Expr
	Name string
}

// ReferenceExpr is ref expr.
type ReferenceExpr struct {
	exprBase
	Expr Expr
}

// Variable is a name.
type Variable struct {
	exprBase
	Name string
}

// Parameter is one parameter of a routine definition.
type Parameter struct {
	base
	Name  string
	ByRef bool
	Type  Expr // nil when untyped
}

// RoutineDef is a function declaration or a function expression. Name is
// empty for function expressions.
type RoutineDef struct {
	exprBase
	Name   string
	Params []*Parameter
	Body   *StatementList
	Local  bool
	IsExpr bool
}

func (r *RoutineDef) stmt() {}

// ConditionalExpr is a if cond else b.
type ConditionalExpr struct {
	exprBase
	Cond Expr
	Then Expr
	Else Expr
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ExprStmt is an expression evaluated for its effect, typically a call.
type ExprStmt struct {
	base
	Expr Expr
}

// Assignment is target = value or target op= value.
type Assignment struct {
	base
	Target Expr
	Value  Expr
	Op     TokenType // TokenAssign or a compound assignment
}

// Declaration is local a, b = x, y.
type Declaration struct {
	base
	Names  []*Variable
	Values []Expr
}

// IfBranch is one condition and its block.
type IfBranch struct {
	base
	Cond Expr
	Body *StatementList
}

// IfStatement is if/elsif/else.
type IfStatement struct {
	base
	Branches []*IfBranch
	Else     *StatementList
}

// WhileStatement is while cond do ... end.
type WhileStatement struct {
	base
	Cond Expr
	Body *StatementList
}

// RepeatStatement is repeat ... until cond. The condition sees the locals
// of the body.
type RepeatStatement struct {
	base
	Body *StatementList
	Cond Expr
}

// ForStatement is for v = start to|downto end [step s] do ... end.
type ForStatement struct {
	base
	Var   *Variable
	Start Expr
	End   Expr
	Step  Expr // nil when absent
	Down  bool
	Body  *StatementList
}

// ForeachStatement is foreach [k,] [ref] v in collection do ... end.
type ForeachStatement struct {
	base
	Key        *Variable // nil when absent
	Value      *Variable
	ByRef      bool
	Collection Expr
	Body       *StatementList
}

// LoopExit is break or continue.
type LoopExit struct {
	base
	Kind TokenType
}

// ReturnStatement is return [e].
type ReturnStatement struct {
	base
	Value Expr // nil for a bare return
}

// ThrowStatement is throw e.
type ThrowStatement struct {
	base
	Value Expr
}

// AssertStatement is assert cond[, message].
type AssertStatement struct {
	base
	Cond    Expr
	Message Expr
}

// PrintStatement is print e, ...; a trailing comma suppresses the newline.
type PrintStatement struct {
	base
	Values  []Expr
	Newline bool
}

// DebugStatement is only compiled in debug mode.
type DebugStatement struct {
	base
	Body Stmt
}

// PassStatement does nothing.
type PassStatement struct {
	base
}

// StatementList is a block. Scope is set when the block opens its own
// scope; loops and functions open the scope themselves so that their
// control variables and parameters share it.
type StatementList struct {
	base
	Statements []Stmt
	Scope      bool
}

// Program is a parsed compilation unit.
type Program struct {
	Name  string
	Debug bool // set by "option debug"
	Body  *StatementList
}

func (*ExprStmt) stmt()         {}
func (*Assignment) stmt()       {}
func (*Declaration) stmt()      {}
func (*IfStatement) stmt()      {}
func (*WhileStatement) stmt()   {}
func (*RepeatStatement) stmt()  {}
func (*ForStatement) stmt()     {}
func (*ForeachStatement) stmt() {}
func (*LoopExit) stmt()         {}
func (*ReturnStatement) stmt()  {}
func (*ThrowStatement) stmt()   {}
func (*AssertStatement) stmt()  {}
func (*PrintStatement) stmt()   {}
func (*DebugStatement) stmt()   {}
func (*PassStatement) stmt()    {}
func (*StatementList) stmt()    {}

// ---------------------------------------------------------------------------
// Visitor
// ---------------------------------------------------------------------------

// Visitor dispatches on the concrete node type.
type Visitor interface {
	VisitConstant(*ConstantLiteral)
	VisitInteger(*IntegerLiteral)
	VisitFloat(*FloatLiteral)
	VisitString(*StringLiteral)
	VisitList(*ListLiteral)
	VisitArray(*ArrayLiteral)
	VisitTable(*TableLiteral)
	VisitSet(*SetLiteral)
	VisitUnary(*UnaryExpr)
	VisitBinary(*BinaryExpr)
	VisitConcat(*ConcatExpr)
	VisitCall(*CallExpr)
	VisitIndex(*IndexExpr)
	VisitField(*FieldExpr)
	VisitReference(*ReferenceExpr)
	VisitVariable(*Variable)
	VisitParameter(*Parameter)
	VisitRoutine(*RoutineDef)
	VisitConditional(*ConditionalExpr)

	VisitExprStmt(*ExprStmt)
	VisitAssignment(*Assignment)
	VisitDeclaration(*Declaration)
	VisitIfBranch(*IfBranch)
	VisitIf(*IfStatement)
	VisitWhile(*WhileStatement)
	VisitRepeat(*RepeatStatement)
	VisitFor(*ForStatement)
	VisitForeach(*ForeachStatement)
	VisitLoopExit(*LoopExit)
	VisitReturn(*ReturnStatement)
	VisitThrow(*ThrowStatement)
	VisitAssert(*AssertStatement)
	VisitPrint(*PrintStatement)
	VisitDebug(*DebugStatement)
	VisitPass(*PassStatement)
	VisitStatements(*StatementList)
}

func (n *ConstantLiteral) Accept(v Visitor)  { v.VisitConstant(n) }
func (n *IntegerLiteral) Accept(v Visitor)   { v.VisitInteger(n) }
func (n *FloatLiteral) Accept(v Visitor)     { v.VisitFloat(n) }
func (n *StringLiteral) Accept(v Visitor)    { v.VisitString(n) }
func (n *ListLiteral) Accept(v Visitor)      { v.VisitList(n) }
func (n *ArrayLiteral) Accept(v Visitor)     { v.VisitArray(n) }
func (n *TableLiteral) Accept(v Visitor)     { v.VisitTable(n) }
func (n *SetLiteral) Accept(v Visitor)       { v.VisitSet(n) }
func (n *UnaryExpr) Accept(v Visitor)        { v.VisitUnary(n) }
func (n *BinaryExpr) Accept(v Visitor)       { v.VisitBinary(n) }
func (n *ConcatExpr) Accept(v Visitor)       { v.VisitConcat(n) }
func (n *CallExpr) Accept(v Visitor)         { v.VisitCall(n) }
func (n *IndexExpr) Accept(v Visitor)        { v.VisitIndex(n) }
func (n *FieldExpr) Accept(v Visitor)        { v.VisitField(n) }
func (n *ReferenceExpr) Accept(v Visitor)    { v.VisitReference(n) }
func (n *Variable) Accept(v Visitor)         { v.VisitVariable(n) }
func (n *Parameter) Accept(v Visitor)        { v.VisitParameter(n) }
func (n *RoutineDef) Accept(v Visitor)       { v.VisitRoutine(n) }
func (n *ConditionalExpr) Accept(v Visitor)  { v.VisitConditional(n) }
func (n *ExprStmt) Accept(v Visitor)         { v.VisitExprStmt(n) }
func (n *Assignment) Accept(v Visitor)       { v.VisitAssignment(n) }
func (n *Declaration) Accept(v Visitor)      { v.VisitDeclaration(n) }
func (n *IfBranch) Accept(v Visitor)         { v.VisitIfBranch(n) }
func (n *IfStatement) Accept(v Visitor)      { v.VisitIf(n) }
func (n *WhileStatement) Accept(v Visitor)   { v.VisitWhile(n) }
func (n *RepeatStatement) Accept(v Visitor)  { v.VisitRepeat(n) }
func (n *ForStatement) Accept(v Visitor)     { v.VisitFor(n) }
func (n *ForeachStatement) Accept(v Visitor) { v.VisitForeach(n) }
func (n *LoopExit) Accept(v Visitor)         { v.VisitLoopExit(n) }
func (n *ReturnStatement) Accept(v Visitor)  { v.VisitReturn(n) }
func (n *ThrowStatement) Accept(v Visitor)   { v.VisitThrow(n) }
func (n *AssertStatement) Accept(v Visitor)  { v.VisitAssert(n) }
func (n *PrintStatement) Accept(v Visitor)   { v.VisitPrint(n) }
func (n *DebugStatement) Accept(v Visitor)   { v.VisitDebug(n) }
func (n *PassStatement) Accept(v Visitor)    { v.VisitPass(n) }
func (n *StatementList) Accept(v Visitor)    { v.VisitStatements(n) }

// ---------------------------------------------------------------------------
// Traversal
// ---------------------------------------------------------------------------

// Inspect traverses the tree rooted at n in depth-first order, calling fn
// for each node. Children are skipped when fn returns false.
func Inspect(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	each := func(nodes ...Node) {
		for _, c := range nodes {
			if c != nil {
				Inspect(c, fn)
			}
		}
	}
	exprs := func(list []Expr) {
		for _, e := range list {
			Inspect(e, fn)
		}
	}
	switch n := n.(type) {
	case *ListLiteral:
		exprs(n.Items)
	case *ArrayLiteral:
		exprs(n.Items)
	case *TableLiteral:
		for i := range n.Keys {
			each(n.Keys[i], n.Values[i])
		}
	case *SetLiteral:
		exprs(n.Items)
	case *UnaryExpr:
		each(n.Expr)
	case *BinaryExpr:
		each(n.Left, n.Right)
	case *ConcatExpr:
		exprs(n.Items)
	case *CallExpr:
		each(n.Callee)
		exprs(n.Args)
	case *IndexExpr:
		each(n.Expr)
		exprs(n.Indexes)
	case *FieldExpr:
		each(n.Expr)
	case *ReferenceExpr:
		each(n.Expr)
	case *Parameter:
		if n.Type != nil {
			each(n.Type)
		}
	case *RoutineDef:
		for _, p := range n.Params {
			each(p)
		}
		each(n.Body)
	case *ConditionalExpr:
		each(n.Cond, n.Then, n.Else)
	case *ExprStmt:
		each(n.Expr)
	case *Assignment:
		each(n.Target, n.Value)
	case *Declaration:
		for _, v := range n.Names {
			each(v)
		}
		exprs(n.Values)
	case *IfBranch:
		each(n.Cond, n.Body)
	case *IfStatement:
		for _, b := range n.Branches {
			each(b)
		}
		if n.Else != nil {
			each(n.Else)
		}
	case *WhileStatement:
		each(n.Cond, n.Body)
	case *RepeatStatement:
		each(n.Body, n.Cond)
	case *ForStatement:
		each(n.Var, n.Start, n.End)
		if n.Step != nil {
			each(n.Step)
		}
		each(n.Body)
	case *ForeachStatement:
		if n.Key != nil {
			each(n.Key)
		}
		each(n.Value, n.Collection, n.Body)
	case *ReturnStatement:
		if n.Value != nil {
			each(n.Value)
		}
	case *ThrowStatement:
		each(n.Value)
	case *AssertStatement:
		each(n.Cond)
		if n.Message != nil {
			each(n.Message)
		}
	case *PrintStatement:
		exprs(n.Values)
	case *DebugStatement:
		each(n.Body)
	case *StatementList:
		for _, s := range n.Statements {
			each(s)
		}
	}
}
