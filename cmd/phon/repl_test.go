package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/phon/engine"
)

func newREPL() (*repl, *bytes.Buffer) {
	var out bytes.Buffer
	return &repl{eng: engine.New(engine.WithOutput(&out)), out: &out}, &out
}

func TestREPLPrintsExpressionValues(t *testing.T) {
	r, out := newREPL()
	assert.False(t, r.feed("x = 20"))
	assert.False(t, r.feed("x * 2 + 2"))
	assert.False(t, r.feed(`"done"`))
	assert.Equal(t, "42\n\"done\"\n", out.String())
}

func TestREPLContinuesOpenBlocks(t *testing.T) {
	r, out := newREPL()
	r.feed("function twice(n)")
	assert.Equal(t, continuePrompt, r.prompt())
	r.feed("  return n * 2")
	assert.Equal(t, continuePrompt, r.prompt())
	r.feed("end")
	assert.Equal(t, prompt, r.prompt())
	r.feed("print twice(4)")
	assert.Equal(t, "8\n", out.String())
}

func TestREPLReportsErrors(t *testing.T) {
	r, out := newREPL()
	r.feed("print 1 +* 2")
	assert.Contains(t, out.String(), "error:")
	assert.Equal(t, prompt, r.prompt())

	out.Reset()
	r.feed("print [1][5]")
	assert.Contains(t, out.String(), "error:")
}

func TestREPLCommands(t *testing.T) {
	r, out := newREPL()
	r.feed("answer = 42")
	r.feed(":globals")
	assert.Contains(t, out.String(), "answer = 42\n")

	out.Reset()
	r.feed(":gc")
	assert.Contains(t, out.String(), "garbage collected")

	out.Reset()
	r.feed(":dis print 1")
	assert.Contains(t, out.String(), "routine <main>")

	out.Reset()
	r.feed(":nope")
	assert.Contains(t, out.String(), "Unknown command: :nope")

	assert.True(t, r.feed("exit"))
	assert.True(t, r.feed("  quit "))
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newCommand(strings.NewReader(stdin), &out).Run(context.Background(), append([]string{"phon"}, args...))
	return out.String(), err
}

func TestRunStdin(t *testing.T) {
	out, err := run(t, "print 6 * 7\n")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestRunScannerREPL(t *testing.T) {
	out, err := run(t, "for i = 1 to 2 do\nprint i\nend\n1 + 1\n", "repl")
	require.NoError(t, err)
	assert.Equal(t, ">> .. .. 1\n2\n>> 2\n>> \n", out)
}

func TestRunFileWithArgs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echo.phon")
	require.NoError(t, os.WriteFile(path, []byte("print args()\n"), 0o644))

	out, err := run(t, "", "run", path, "-x", "y")
	require.NoError(t, err)
	assert.Equal(t, `["-x", "y"]`+"\n", out)

	out, err = run(t, "", path, "z")
	require.NoError(t, err)
	assert.Equal(t, `["z"]`+"\n", out)
}

func TestCompileCommand(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.phon")
	b := filepath.Join(dir, "b.phon")
	require.NoError(t, os.WriteFile(a, []byte("print \"a\"\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("print \"b\"\n"), 0o644))

	out, err := run(t, "", "compile", a, b)
	require.NoError(t, err)
	assert.Contains(t, out, a+" -> "+filepath.Join(dir, "a.phc"))
	assert.Contains(t, out, b+" -> "+filepath.Join(dir, "b.phc"))

	out, err = run(t, "", filepath.Join(dir, "b.phc"))
	require.NoError(t, err)
	assert.Equal(t, "b\n", out)

	_, err = run(t, "", "compile", "-o", filepath.Join(dir, "x.phc"), a, b)
	assert.ErrorContains(t, err, "single input file")
}

func TestDisasmCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.phon")
	require.NoError(t, os.WriteFile(path, []byte("print 1\n"), 0o644))
	out, err := run(t, "", "disasm", path)
	require.NoError(t, err)
	assert.Contains(t, out, "routine <main>")
}

func TestConfigFlag(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(config, []byte("[engine]\ndebug = true\n"), 0o644))
	out, err := run(t, "debug print \"on\"\n", "--config", config)
	require.NoError(t, err)
	assert.Equal(t, "on\n", out)

	_, err = run(t, "", "--config", filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}
