package compiler

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/phon/vm"
)

func compileOK(t *testing.T, src string) *vm.Routine {
	t.Helper()
	r, err := CompileString(src, Options{Name: "test"})
	require.NoError(t, err)
	return r
}

func compileError(t *testing.T, src string) *vm.Error {
	t.Helper()
	_, err := CompileString(src, Options{Name: "test"})
	require.Error(t, err)
	e, ok := vm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, vm.SyntaxError, e.Kind)
	return e
}

// opcodes decodes the instruction stream of r.
func opcodes(r *vm.Routine) []vm.Opcode {
	var ops []vm.Opcode
	reader := vm.NewBytecodeReader(r.Code)
	for reader.Position() < len(r.Code) {
		op := reader.ReadOpcode()
		ops = append(ops, op)
		reader.Skip(op.OperandBytes())
	}
	return ops
}

func run(t *testing.T, src string) string {
	t.Helper()
	var buf bytes.Buffer
	rt := vm.New(vm.WithOutput(&buf), vm.WithCompiler(CompileSource))
	_, err := rt.DoString(src)
	require.NoError(t, err)
	return buf.String()
}

func TestCompileDisassembly(t *testing.T) {
	r := compileOK(t, "print 1 + 2")
	out := vm.Disassemble(r)
	assert.Contains(t, out, "ADD")
	assert.Contains(t, out, "PRINT_LINE")
	assert.Contains(t, out, "; line 1")
	assert.Equal(t, []vm.Opcode{
		vm.OpPushSmallInt, vm.OpPushSmallInt, vm.OpAdd, vm.OpPrintLine, vm.OpPushNull, vm.OpReturn,
	}, opcodes(r))
}

func TestCompileConstantPools(t *testing.T) {
	r := compileOK(t, "a = 100000\nb = 100000\nc = 2.5\nd = 'x' & 'x'")
	assert.Equal(t, []int64{100000}, r.Integers)
	assert.Equal(t, []float64{2.5}, r.Floats)
	assert.Contains(t, r.Strings, "x")
	assert.Len(t, r.Strings, 5, "a, b, c, d and x")
}

func TestCompileFoldsNegativeLiterals(t *testing.T) {
	r := compileOK(t, "x = -5\ny = -1.5\nz = -w")
	ops := opcodes(r)
	assert.NotContains(t, ops[:4], vm.OpNegate)
	assert.Contains(t, ops, vm.OpNegate)
	assert.Equal(t, []float64{-1.5}, r.Floats)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
		line int
	}{
		{"break outside loop", "x = 1\nbreak", `"break" outside of a loop`, 2},
		{"continue in function", "while true do\n  f = function() continue end\nend", `"continue" outside of a loop`, 2},
		{"duplicate local", "local a\nlocal a", `variable "a" is already declared in this scope`, 2},
		{"non lvalue", "f() = 1", "cannot assign to this expression", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := compileError(t, tt.src)
			assert.Contains(t, e.Message, tt.msg)
			assert.Equal(t, tt.line, e.Line)
			assert.Equal(t, "test", e.File)
		})
	}
}

func TestCompileShadowingInNestedScope(t *testing.T) {
	compileOK(t, "local a = 1\ndo\n  local a = 2\nend")
}

func TestCompileTooManyParameters(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("function f(")
	for i := 0; i <= vm.MaxParams; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("p")
		b.WriteString(string(rune('a' + i%26)))
		b.WriteString(string(rune('a' + i/26)))
	}
	b.WriteString(")\nend")
	e := compileError(t, b.String())
	assert.Contains(t, e.Message, "too many parameters")
}

func TestCompileDebugStatements(t *testing.T) {
	src := "debug print 'checking'\nprint 'done'"
	plain, err := CompileString(src, Options{Name: "test"})
	require.NoError(t, err)
	debug, err := CompileString(src, Options{Name: "test", Debug: true})
	require.NoError(t, err)
	assert.Less(t, len(plain.Code), len(debug.Code))
	assert.NotContains(t, plain.Strings, "checking")

	withOption := compileOK(t, "option debug\n"+src)
	assert.True(t, withOption.Debug)
	assert.Contains(t, withOption.Strings, "checking")
}

func TestCompileUpvalues(t *testing.T) {
	r := compileOK(t, `
function outer()
  local n = 0
  return function()
    return n
  end
end`)
	require.Len(t, r.Routines, 1)
	outer := r.Routines[0]
	require.Len(t, outer.Routines, 1)
	inner := outer.Routines[0]
	assert.Equal(t, []vm.UpvalueInfo{{Index: 0, IsLocal: true}}, inner.Upvalues)
	assert.Contains(t, opcodes(inner), vm.OpGetUpvalue)
	assert.Contains(t, opcodes(r), vm.OpDefineFunction)
}

func TestCompileLocalFunction(t *testing.T) {
	r := compileOK(t, "local function f() return 1 end")
	ops := opcodes(r)
	assert.Contains(t, ops, vm.OpSetLocal)
	assert.NotContains(t, ops, vm.OpDefineFunction)
	assert.Equal(t, 1, r.Locals)
}

func TestCompileParameterTypes(t *testing.T) {
	r := compileOK(t, "function f(a, b as String, c)\nend")
	fn := r.Routines[0]
	assert.Equal(t, 3, fn.Params)
	assert.Contains(t, r.Strings, "Object", "untyped parameters before a typed one default to Object")
	assert.Contains(t, r.Strings, "String")

	r = compileOK(t, "function g(ref a, b)\nend")
	assert.Equal(t, vm.ByRef(0), r.Routines[0].Refs)
	assert.NotContains(t, r.Strings, "Object", "trailing untyped parameters are not compiled")
}

func TestCompileReturnLast(t *testing.T) {
	r, err := CompileString("x = 2\nx * 21", Options{Name: "repl", ReturnLast: true})
	require.NoError(t, err)
	rt := vm.New(vm.WithCompiler(CompileSource))
	v, err := rt.Interpret(r)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int())
}

func TestRunLoops(t *testing.T) {
	out := run(t, `
local total = 0
for i = 1 to 10 do
  if i % 2 == 0 then continue end
  total += i
end
print total
for i = 5 downto 1 step 2 do print i, end
print
local n = 0
repeat
  n += 1
  if n == 2 then continue end
until n >= 3
print n
while true do
  n -= 1
  if n == 0 then break end
end
print n`)
	assert.Equal(t, "25\n531\n3\n0\n", out)
}

func TestRunOneLineLoop(t *testing.T) {
	out := run(t, "for i = 1 to 10 do if i == 3 then continue end if i == 5 then break end print i end")
	assert.Equal(t, "1\n2\n4\n", out)
}

func TestRunForeach(t *testing.T) {
	out := run(t, `
local items = [10, 20, 30]
foreach i, v in items do print i, v end
foreach ref v in items do v *= 2 end
print items`)
	assert.Equal(t, "1 10\n2 20\n3 30\n[20, 40, 60]\n", out)
}

func TestRunClosureCounter(t *testing.T) {
	out := run(t, `
function make_counter()
  local n = 0
  return function()
    n += 1
    return n
  end
end
local c = make_counter()
print c(), c(), c()`)
	assert.Equal(t, "1 2 3\n", out)
}

func TestRunRecursiveLocalFunction(t *testing.T) {
	out := run(t, `
do
  local function fact(n)
    return 1 if n <= 1 else n * fact(n - 1)
  end
  print fact(10)
end`)
	assert.Equal(t, "3628800\n", out)
}

func TestRunByReference(t *testing.T) {
	out := run(t, `
function swap(ref a, ref b)
  local tmp = a
  a = b
  b = tmp
end
local x, y = 1, 2
swap(x, y)
print x, y
local list = [1, 2, 3]
swap(list[1], list[3])
print list`)
	assert.Equal(t, "2 1\n[3, 2, 1]\n", out)
}

func TestRunCopyOnWrite(t *testing.T) {
	out := run(t, `
a = [1, 2]
b = a
b[1] = 10
print a, b
function mutate(l)
  l[2] = 99
  return l
end
c = mutate(a)
print a, c`)
	assert.Equal(t, "[1, 2] [10, 2]\n[1, 2] [1, 99]\n", out)
}

func TestRunMultipleDeclarationEvaluatesFirst(t *testing.T) {
	out := run(t, `
local a, b = 1, 2
do
  local a, b = b, a
  print a, b
end
print a, b`)
	assert.Equal(t, "2 1\n1 2\n", out)
}

func TestRunRuntimeErrorLine(t *testing.T) {
	rt := vm.New(vm.WithOutput(&bytes.Buffer{}), vm.WithCompiler(CompileSource))
	_, err := rt.DoString("x = 1\ny = x + 'a'")
	require.Error(t, err)
	assert.ErrorIs(t, err, vm.ErrType)
	e, _ := vm.AsError(err)
	assert.Equal(t, 2, e.Line)
}
