package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/phon/vm"
)

func parseOK(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Parse(src, "test")
	require.NoError(t, err)
	return prog
}

func parseExpr(t *testing.T, src string) Expr {
	t.Helper()
	prog := parseOK(t, src)
	require.Len(t, prog.Body.Statements, 1)
	stmt, ok := prog.Body.Statements[0].(*ExprStmt)
	require.True(t, ok, "expected an expression statement, got %T", prog.Body.Statements[0])
	return stmt.Expr
}

func parseError(t *testing.T, src string) *vm.Error {
	t.Helper()
	_, err := Parse(src, "test")
	require.Error(t, err)
	e, ok := vm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, vm.SyntaxError, e.Kind)
	return e
}

func TestParsePrecedence(t *testing.T) {
	e := parseExpr(t, "2 + 3 * 4")
	add, ok := e.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenPlus, add.Op)
	assert.Equal(t, int64(2), add.Left.(*IntegerLiteral).Value)
	mul, ok := add.Right.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenStar, mul.Op)
	assert.Equal(t, int64(3), mul.Left.(*IntegerLiteral).Value)
	assert.Equal(t, int64(4), mul.Right.(*IntegerLiteral).Value)
}

func TestParseOperatorLevels(t *testing.T) {
	// Unary minus binds looser than exponentiation.
	neg := parseExpr(t, "-2 ^ 2").(*UnaryExpr)
	assert.Equal(t, TokenMinus, neg.Op)
	assert.Equal(t, TokenPower, neg.Expr.(*BinaryExpr).Op)

	// "not" applies to a whole comparison.
	not := parseExpr(t, "not a == b").(*UnaryExpr)
	assert.Equal(t, TokenNot, not.Op)
	assert.Equal(t, TokenEqual, not.Expr.(*BinaryExpr).Op)

	// "and" binds tighter than "or".
	or := parseExpr(t, "a or b and c").(*BinaryExpr)
	assert.Equal(t, TokenOr, or.Op)
	assert.Equal(t, TokenAnd, or.Right.(*BinaryExpr).Op)

	// Subtraction is left associative.
	sub := parseExpr(t, "10 - 3 - 2").(*BinaryExpr)
	assert.Equal(t, TokenMinus, sub.Op)
	assert.Equal(t, int64(2), sub.Right.(*IntegerLiteral).Value)
	assert.IsType(t, &BinaryExpr{}, sub.Left)
}

func TestParseConcatIsFlattened(t *testing.T) {
	concat, ok := parseExpr(t, `a & "b" & 3`).(*ConcatExpr)
	require.True(t, ok)
	require.Len(t, concat.Items, 3)
	assert.Equal(t, "a", concat.Items[0].(*Variable).Name)
	assert.Equal(t, "b", concat.Items[1].(*StringLiteral).Value)
	assert.Equal(t, int64(3), concat.Items[2].(*IntegerLiteral).Value)

	// Arithmetic binds tighter than concatenation.
	concat = parseExpr(t, `"n = " & 1 + 2`).(*ConcatExpr)
	require.Len(t, concat.Items, 2)
}

func TestParseComparisonsDoNotChain(t *testing.T) {
	e := parseError(t, "x = 1 < 2 < 3")
	assert.Contains(t, e.Message, "unexpected")
}

func TestParsePostfix(t *testing.T) {
	call := parseExpr(t, "obj.items[1, 2](x, ref y)").(*CallExpr)
	require.Len(t, call.Args, 2)
	assert.IsType(t, &ReferenceExpr{}, call.Args[1])

	idx := call.Callee.(*IndexExpr)
	require.Len(t, idx.Indexes, 2)
	field := idx.Expr.(*FieldExpr)
	assert.Equal(t, "items", field.Name)
	assert.True(t, field.IsCompound())
	assert.True(t, field.Expr.IsCompound())
	assert.False(t, idx.IsCompound())
}

func TestParseConditionalExpression(t *testing.T) {
	prog := parseOK(t, "x = 1 if c else 2")
	assign := prog.Body.Statements[0].(*Assignment)
	assert.True(t, assign.Target.IsAssigned())
	cond := assign.Value.(*ConditionalExpr)
	assert.Equal(t, "c", cond.Cond.(*Variable).Name)
	assert.Equal(t, int64(1), cond.Then.(*IntegerLiteral).Value)
	assert.Equal(t, int64(2), cond.Else.(*IntegerLiteral).Value)
}

func TestParseContainerLiterals(t *testing.T) {
	assert.IsType(t, &TableLiteral{}, parseExpr(t, "{}"))

	table := parseExpr(t, "{'a': 1,\n 'b': 2}").(*TableLiteral)
	assert.Len(t, table.Keys, 2)
	assert.Len(t, table.Values, 2)

	set := parseExpr(t, "{1, 2, 3}").(*SetLiteral)
	assert.Len(t, set.Items, 3)

	list := parseExpr(t, "[\n  1,\n  2\n]").(*ListLiteral)
	assert.Len(t, list.Items, 2)

	arr := parseExpr(t, "@[1, 2, 3; 4, 5, 6]").(*ArrayLiteral)
	assert.Equal(t, 2, arr.Rows)
	assert.Equal(t, 3, arr.Cols)
	assert.Len(t, arr.Items, 6)

	empty := parseExpr(t, "@[]").(*ArrayLiteral)
	assert.Equal(t, 0, empty.Rows)

	row := parseExpr(t, "@[1, 2]").(*ArrayLiteral)
	assert.Equal(t, 1, row.Rows)
	assert.Equal(t, 2, row.Cols)
}

func TestParseArrayRowsMustMatch(t *testing.T) {
	e := parseError(t, "a = @[1, 2; 3]")
	assert.Contains(t, e.Message, "inconsistent number of columns")
	parseError(t, "a = @[1; 2, 3; 4]")
}

func TestParseMissingThen(t *testing.T) {
	e := parseError(t, "if true\n  print 1\nend")
	assert.Equal(t, 1, e.Line)
	assert.Contains(t, e.Message, `expected "then"`)
	assert.Contains(t, e.Message, "end of line")
	assert.Contains(t, e.Error(), `[Syntax error] File "test" at line 1`)
}

func TestParseIfChain(t *testing.T) {
	prog := parseOK(t, `
if a then
  x = 1
elsif b then
  x = 2
elsif c then
  pass
else
  x = 3
end`)
	stmt := prog.Body.Statements[0].(*IfStatement)
	assert.Len(t, stmt.Branches, 3)
	require.NotNil(t, stmt.Else)
	assert.True(t, stmt.Else.Scope)
	assert.IsType(t, &PassStatement{}, stmt.Branches[2].Body.Statements[0])
	assert.Equal(t, 2, stmt.Line())
}

func TestParseOneLineBlocks(t *testing.T) {
	prog := parseOK(t, "if x then y = 1 else y = 2 end; while y do y = false end")
	require.Len(t, prog.Body.Statements, 2)
	assert.IsType(t, &WhileStatement{}, prog.Body.Statements[1])
}

func TestParseLoops(t *testing.T) {
	prog := parseOK(t, `
for i = 10 downto 1 step 2 do
  print i
end
repeat
  local n = 1
until n > 0
foreach k, ref v in t do
  v = k
end
foreach item in list do
  break
end`)
	require.Len(t, prog.Body.Statements, 4)

	loop := prog.Body.Statements[0].(*ForStatement)
	assert.True(t, loop.Down)
	assert.Equal(t, "i", loop.Var.Name)
	require.NotNil(t, loop.Step)
	assert.False(t, loop.Body.Scope)

	repeat := prog.Body.Statements[1].(*RepeatStatement)
	assert.Len(t, repeat.Body.Statements, 1)
	assert.IsType(t, &BinaryExpr{}, repeat.Cond)

	each := prog.Body.Statements[2].(*ForeachStatement)
	require.NotNil(t, each.Key)
	assert.Equal(t, "k", each.Key.Name)
	assert.Equal(t, "v", each.Value.Name)
	assert.True(t, each.ByRef)

	single := prog.Body.Statements[3].(*ForeachStatement)
	assert.Nil(t, single.Key)
	assert.Equal(t, "item", single.Value.Name)
	assert.False(t, single.ByRef)
}

func TestParseForeachRefKey(t *testing.T) {
	e := parseError(t, "foreach ref k, v in t do end")
	assert.Contains(t, e.Message, "cannot be taken by reference")
}

func TestParseDeclarations(t *testing.T) {
	prog := parseOK(t, "local a, b = 1, 2\nlocal c")
	decl := prog.Body.Statements[0].(*Declaration)
	assert.Len(t, decl.Names, 2)
	assert.Len(t, decl.Values, 2)
	assert.Empty(t, prog.Body.Statements[1].(*Declaration).Values)

	e := parseError(t, "local a, b = 1")
	assert.Contains(t, e.Message, "2 names but 1 values")
}

func TestParseFunctions(t *testing.T) {
	prog := parseOK(t, `
function add(ref a, b as Integer)
  return a + b
end
local function helper()
  return
end
f = function(x) return x * 2 end`)
	def := prog.Body.Statements[0].(*RoutineDef)
	assert.Equal(t, "add", def.Name)
	require.Len(t, def.Params, 2)
	assert.True(t, def.Params[0].ByRef)
	assert.Nil(t, def.Params[0].Type)
	assert.Equal(t, "Integer", def.Params[1].Type.(*Variable).Name)
	assert.False(t, def.Local)

	helper := prog.Body.Statements[1].(*RoutineDef)
	assert.True(t, helper.Local)
	assert.Nil(t, helper.Body.Statements[0].(*ReturnStatement).Value)

	anon := prog.Body.Statements[2].(*Assignment).Value.(*RoutineDef)
	assert.True(t, anon.IsExpr)
	assert.Empty(t, anon.Name)
}

func TestParsePrint(t *testing.T) {
	prog := parseOK(t, "print 1, 2\nprint 3,\nprint")
	assert.True(t, prog.Body.Statements[0].(*PrintStatement).Newline)
	p := prog.Body.Statements[1].(*PrintStatement)
	assert.False(t, p.Newline)
	assert.Len(t, p.Values, 1)
	assert.Empty(t, prog.Body.Statements[2].(*PrintStatement).Values)
}

func TestParseOptionsAndDebug(t *testing.T) {
	prog := parseOK(t, "option debug\ndebug print 1\ndebug\n  print 2\nend")
	assert.True(t, prog.Debug)
	require.Len(t, prog.Body.Statements, 2)
	assert.IsType(t, &PrintStatement{}, prog.Body.Statements[0].(*DebugStatement).Body)
	assert.IsType(t, &StatementList{}, prog.Body.Statements[1].(*DebugStatement).Body)

	prog = parseOK(t, "option debug = false\nx = 1")
	assert.False(t, prog.Debug)

	parseError(t, "option fast")
}

func TestParseStatementsWithoutSeparators(t *testing.T) {
	prog := parseOK(t, "for i = 1 to 10 do if i == 3 then continue end if i == 5 then break end print i end")
	require.Len(t, prog.Body.Statements, 1)
	loop, ok := prog.Body.Statements[0].(*ForStatement)
	require.True(t, ok)
	require.Len(t, loop.Body.Statements, 3)
	assert.IsType(t, &IfStatement{}, loop.Body.Statements[0])
	assert.IsType(t, &IfStatement{}, loop.Body.Statements[1])
	assert.IsType(t, &PrintStatement{}, loop.Body.Statements[2])

	prog = parseOK(t, "x = 1 y = 2")
	require.Len(t, prog.Body.Statements, 2)
	assert.IsType(t, &Assignment{}, prog.Body.Statements[1])

	prog = parseOK(t, "local a print a")
	require.Len(t, prog.Body.Statements, 2)
	assert.IsType(t, &Declaration{}, prog.Body.Statements[0])
}

func TestParseUnclosedBlock(t *testing.T) {
	e := parseError(t, "while true do\n  x = 1\n")
	assert.Contains(t, e.Message, "unexpected end of text")
	assert.Contains(t, e.Hint, `"end"`)
}

func TestInspectVisitsEveryNode(t *testing.T) {
	prog := parseOK(t, `
function f(a)
  return a + b[c]
end
print f(d) & e`)
	var names []string
	Inspect(prog.Body, func(n Node) bool {
		if v, ok := n.(*Variable); ok {
			names = append(names, v.Name)
		}
		return true
	})
	assert.Equal(t, []string{"a", "b", "c", "f", "d", "e"}, names)

	// Returning false prunes the subtree.
	count := 0
	Inspect(prog.Body, func(n Node) bool {
		count++
		_, isRoutine := n.(*RoutineDef)
		return !isRoutine
	})
	assert.Less(t, count, 12)
}

type countingVisitor struct {
	Compiler
	calls int
}

func (v *countingVisitor) VisitCall(n *CallExpr) { v.calls++ }

func TestVisitorDispatch(t *testing.T) {
	prog := parseOK(t, "f(1)")
	v := &countingVisitor{}
	prog.Body.Statements[0].(*ExprStmt).Expr.Accept(v)
	assert.Equal(t, 1, v.calls)
}
