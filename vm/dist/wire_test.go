package dist

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/phon/compiler"
	"github.com/chazu/phon/vm"
)

const program = `
function fib(n)
  return n if n < 2 else fib(n - 1) + fib(n - 2)
end
local squares = []
for i = 1 to 5 do append(squares, i * i) end
print fib(15), squares, 2.5 * 2, "done"
`

func compile(t *testing.T, src string) *vm.Routine {
	t.Helper()
	r, err := compiler.CompileString(src, compiler.Options{Name: "prog.phon"})
	require.NoError(t, err)
	return r
}

func runRoutine(t *testing.T, r *vm.Routine) string {
	t.Helper()
	var out bytes.Buffer
	rt := vm.New(vm.WithOutput(&out), vm.WithCompiler(compiler.CompileSource))
	_, err := rt.Interpret(r)
	require.NoError(t, err)
	return out.String()
}

func TestChunkRoundTripRuns(t *testing.T) {
	r := compile(t, program)
	c := FromRoutine(r, "prog.phon", program)

	data, err := MarshalChunk(c)
	require.NoError(t, err)
	assert.Equal(t, Magic[:], data[:4])

	got, err := UnmarshalChunk(data)
	require.NoError(t, err)
	assert.Equal(t, "prog.phon", got.Name)
	assert.Equal(t, c.SourceHash, got.SourceHash)
	assert.Equal(t, vm.Disassemble(r), vm.Disassemble(got.Routine))
	assert.Equal(t, runRoutine(t, r), runRoutine(t, got.Routine))
	assert.Equal(t, "610 [1, 4, 9, 16, 25] 5 done\n", runRoutine(t, got.Routine))
}

func TestChunkEncodingIsDeterministic(t *testing.T) {
	a, err := MarshalChunk(FromRoutine(compile(t, program), "p", program))
	require.NoError(t, err)
	b, err := MarshalChunk(FromRoutine(compile(t, program), "p", program))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnmarshalRejectsForeignData(t *testing.T) {
	_, err := UnmarshalChunk([]byte("PH"))
	assert.ErrorContains(t, err, "not a phon chunk")

	_, err = UnmarshalChunk([]byte("PHC\x09rest"))
	assert.ErrorContains(t, err, "unsupported chunk version 9")

	_, err = UnmarshalChunk(append(Magic[:], "garbage"...))
	assert.ErrorContains(t, err, "decompress")

	_, err = MarshalChunk(&Chunk{Name: "empty"})
	assert.Error(t, err)
}

func TestVerifyChunk(t *testing.T) {
	c := FromRoutine(compile(t, program), "prog.phon", program)
	assert.NoError(t, VerifyChunk(c, program))

	err := VerifyChunk(c, program+"print 1\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `chunk "prog.phon" is stale`)
}

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.phc")
	require.NoError(t, WriteFile(path, FromRoutine(compile(t, program), "prog.phon", program)))

	c, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "prog.phon", c.Name)

	_, err = ReadFile(path + ".missing")
	assert.ErrorContains(t, err, "dist: read")
}

func TestGlobalsAndCapabilities(t *testing.T) {
	src := `
function load(path)
  local f = open(path)
  return read_lines(f)
end
m = import("util")
print load("x"), len(m)
`
	r := compile(t, src)
	globals := Globals(r)
	assert.Contains(t, globals, "open")
	assert.Contains(t, globals, "read_lines")
	assert.Contains(t, globals, "import")
	assert.NotContains(t, globals, "path", "locals are not globals")
	assert.NotContains(t, globals, "f")

	assert.Equal(t, []string{"file", "import"}, RequiredCapabilities(r))
	assert.Empty(t, RequiredCapabilities(compile(t, "print 1 + 2")))
}

func TestCapabilityPolicy(t *testing.T) {
	fileChunk := FromRoutine(compile(t, `f = open("x")`), "f", "")
	pure := FromRoutine(compile(t, `print 1`), "p", "")
	m := BuildManifest(fileChunk, pure)
	require.NotNil(t, m)
	assert.Equal(t, []string{"file"}, m.Required)
	assert.Nil(t, BuildManifest(pure))

	assert.NoError(t, NewPermissivePolicy().CheckManifest(m))
	assert.NoError(t, NewPermissivePolicy().CheckManifest(nil))
	assert.NoError(t, NewPermissivePolicy().CheckChunk(fileChunk))
	assert.ErrorContains(t, NewRestrictedPolicy([]string{"import"}).CheckManifest(m), `capability "file" is not allowed`)

	p := NewPermissivePolicy()
	p.Deny("file", "random")
	assert.NoError(t, p.CheckChunk(pure))
	err := p.CheckChunk(fileChunk)
	assert.EqualError(t, err, `dist: f: capability "file" is explicitly denied (used by open)`)

	data, err := MarshalManifest(m)
	require.NoError(t, err)
	back, err := UnmarshalManifest(data)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestCheckChunkDerivesCapabilities(t *testing.T) {
	c := FromRoutine(compile(t, `print exists("/"), random()`), "c", "")
	assert.Equal(t, []string{"file", "random"}, c.Capabilities)

	// The recorded list is ignored in favor of the code.
	c.Capabilities = []string{"random"}
	assert.Nil(t, BuildManifest(&Chunk{Name: "empty"}))
	assert.Equal(t, []string{"file", "random"}, BuildManifest(c).Required)

	var mismatch *MismatchError
	require.ErrorAs(t, NewPermissivePolicy().CheckChunk(c), &mismatch)
	assert.Equal(t, []string{"random"}, mismatch.Recorded)
	assert.Equal(t, []string{"file", "random"}, mismatch.Required)

	c.Capabilities = []string{"random", "file"}
	assert.NoError(t, NewPermissivePolicy().CheckChunk(c), "order does not matter")

	p := NewRestrictedPolicy([]string{"random"})
	var denied *CapabilityError
	require.ErrorAs(t, p.CheckRoutine("c", c.Routine), &denied)
	assert.Equal(t, "file", denied.Capability)
	assert.False(t, denied.Denied)
	assert.Equal(t, []string{"exists"}, denied.Builtins)

	assert.Error(t, p.CheckChunk(&Chunk{Name: "empty"}))
}
