package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/phon/manifest"
	"github.com/chazu/phon/vm"
	"github.com/chazu/phon/vm/dist"
)

func newEngine(t *testing.T, opts ...Option) (*Engine, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return New(append([]Option{WithOutput(&out)}, opts...)...), &out
}

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"precedence", "local x = 1 + 2 * 3\nprint x", "7\n"},
		{"reference parameter", "function f(ref x) x = x + 1 end\nlocal y = 1\nf(y)\nprint y", "2\n"},
		{"for loop", "for i = 1 to 5 do print i end", "1\n2\n3\n4\n5\n"},
		{"three-way concat", `print "a" & 1 & "b"`, "a1b\n"},
		{"null equality", "print null == null", "true\n"},
		{"numeric equality", "print 1 == 1.0", "true\n"},
		{"copy on write", "a = [1]\nb = a\nappend(b, 2)\nprint a, b", "[1] [1, 2]\n"},
		{"ref to element", "function inc(ref n) n += 1 end\nl = [1, 2]\ninc(l[2])\nprint l", "[1, 3]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, out := newEngine(t)
			_, err := e.DoString(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestScenarioMissingThen(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.DoString("x = 1\nif true\n  print x\nend")
	require.Error(t, err)
	assert.ErrorIs(t, err, vm.ErrSyntax)
	ve, ok := vm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, 2, ve.Line)
	assert.Contains(t, err.Error(), "[Syntax error]")
}

func TestIncompatibleComparisonIsTypeError(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.DoString(`print [] < 1`)
	assert.ErrorIs(t, err, vm.ErrType)
}

func TestSelfCycleGarbageReturnsToBaseline(t *testing.T) {
	e, _ := newEngine(t)
	baseline := e.CollectGarbage().Live
	_, err := e.DoString(`
for i = 1 to 50 do
  local function again() return again end
end`)
	require.NoError(t, err)
	stats := e.CollectGarbage()
	assert.GreaterOrEqual(t, stats.Freed, 50)
	assert.Equal(t, baseline, stats.Live)
}

func TestManifestSettings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "lib"), 0o755))
	writeScript(t, filepath.Join(dir, "lib"), "greet.phon", "function hello(n) return \"hello \" & n end\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(`
[engine]
debug = true
stack-size = 32

[import]
paths = ["lib"]
`), 0o644))
	m, err := manifest.Load(dir)
	require.NoError(t, err)

	e, out := newEngine(t, WithManifest(m))
	assert.Same(t, m, e.Manifest())
	_, err = e.DoString(`
g = import("greet")
debug print "debugging"
print g.hello("phon")`)
	require.NoError(t, err)
	assert.Equal(t, "debugging\nhello phon\n", out.String())

	_, err = e.DoString("function down(n) return down(n + 1) end\ndown(0)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum call depth is 32")
}

func TestDebugStatementsSkippedByDefault(t *testing.T) {
	e, out := newEngine(t)
	_, err := e.DoString("debug print \"hidden\"\nprint \"shown\"")
	require.NoError(t, err)
	assert.Equal(t, "shown\n", out.String())
}

func TestArgs(t *testing.T) {
	e, out := newEngine(t, WithArgs([]string{"one", "two"}))
	_, err := e.DoString("print args()")
	require.NoError(t, err)
	assert.Equal(t, `["one", "two"]`+"\n", out.String())
}

func TestDoFile(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "helper.phon", "value = 41\n")
	path := writeScript(t, dir, "main.phon", "h = import(\"helper\")\nprint h.value + 1\n")

	e, out := newEngine(t)
	_, err := e.DoFile(path)
	require.NoError(t, err)
	assert.Equal(t, "42\n", out.String())

	_, err = e.DoFile(filepath.Join(dir, "missing.phon"))
	assert.ErrorIs(t, err, vm.ErrIO)
}

func TestCompileAndRunChunk(t *testing.T) {
	dir := t.TempDir()
	src := "total = 0\nfor i = 1 to 10 do total += i end\nprint total\n"
	path := writeScript(t, dir, "sum.phon", src)

	e, out := newEngine(t)
	chunk, err := e.CompileTo(path, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sum.phc"), chunk)

	_, err = e.DoFile(chunk)
	require.NoError(t, err)
	assert.Equal(t, "55\n", out.String())
}

func TestStaleChunkRunsSource(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "v.phon", "print \"old\"\n")
	e, out := newEngine(t)
	chunk, err := e.CompileTo(path, filepath.Join(dir, "v.phc"))
	require.NoError(t, err)

	writeScript(t, dir, "v.phon", "print \"new\"\n")
	_, err = e.RunChunk(chunk)
	require.NoError(t, err)
	assert.Equal(t, "new\n", out.String())

	// Without the source the chunk runs as built.
	require.NoError(t, os.Remove(path))
	out.Reset()
	_, err = e.RunChunk(chunk)
	require.NoError(t, err)
	assert.Equal(t, "old\n", out.String())
}

func TestChunkPolicy(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "io.phon", "print exists(\"/\")\n")

	m := manifest.Default()
	m.Chunks.Deny = []string{"file"}
	e, _ := newEngine(t, WithManifest(m))
	chunk, err := e.CompileTo(path, "")
	require.NoError(t, err)
	_, err = e.RunChunk(chunk)
	assert.ErrorContains(t, err, `capability "file" is explicitly denied`)

	e, out := newEngine(t, WithPolicy(dist.NewPermissivePolicy()))
	_, err = e.RunChunk(chunk)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out.String())
}

func TestCompileErrors(t *testing.T) {
	dir := t.TempDir()
	e, _ := newEngine(t)
	_, err := e.Compile(filepath.Join(dir, "none.phon"))
	assert.ErrorContains(t, err, "cannot read script")

	path := writeScript(t, dir, "bad.phon", "print (1\n")
	_, err = e.CompileTo(path, "")
	assert.ErrorIs(t, err, vm.ErrSyntax)
	_, statErr := os.Stat(filepath.Join(dir, "bad.phc"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDisassemble(t *testing.T) {
	e, _ := newEngine(t)
	listing, err := e.Disassemble("print 1 + 2", "demo")
	require.NoError(t, err)
	assert.Contains(t, listing, "routine <main>")
	assert.Contains(t, listing, "; line 1")
}

func TestChunkPath(t *testing.T) {
	assert.Equal(t, "dir/a.phc", ChunkPath("dir/a.phon"))
	assert.Equal(t, "noext.phc", ChunkPath("noext"))
}

func TestEvalReturnsLastExpression(t *testing.T) {
	e, out := newEngine(t)
	v, err := e.Eval("x = 20\nx * 2 + 2")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int())

	v, err = e.Eval("print x")
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	assert.Equal(t, "20\n", out.String())
}

func TestChunkCapabilitiesComeFromCode(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "probe.phon", "print exists(\""+dir+"\")\n")
	e, out := newEngine(t)
	c, err := e.Compile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"file"}, c.Capabilities)

	// A chunk claiming fewer capabilities than its code uses is refused.
	c.Capabilities = nil
	chunk := filepath.Join(dir, "probe.phc")
	require.NoError(t, dist.WriteFile(chunk, c))

	_, err = e.RunChunk(chunk)
	var mismatch *dist.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"file"}, mismatch.Required)
	assert.Empty(t, out.String())

	m := manifest.Default()
	m.Chunks.Deny = []string{"file"}
	e, out = newEngine(t, WithManifest(m))
	_, err = e.RunChunk(chunk)
	require.Error(t, err)
	assert.Empty(t, out.String())
}

func TestStaleChunkSourceIsCheckedByPolicy(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "s.phon", "print \"pure\"\n")
	m := manifest.Default()
	m.Chunks.Deny = []string{"file"}
	e, out := newEngine(t, WithManifest(m))
	chunk, err := e.CompileTo(path, "")
	require.NoError(t, err)

	_, err = e.RunChunk(chunk)
	require.NoError(t, err)
	assert.Equal(t, "pure\n", out.String())

	writeScript(t, dir, "s.phon", "print exists(\""+dir+"\")\n")
	out.Reset()
	_, err = e.RunChunk(chunk)
	var denied *dist.CapabilityError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "file", denied.Capability)
	assert.True(t, denied.Denied)
	assert.Equal(t, []string{"exists"}, denied.Builtins)
	assert.Empty(t, out.String())
}
