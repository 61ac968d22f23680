package server

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/phon/compiler"
	"github.com/chazu/phon/vm"
)

func newRuntime() *vm.Runtime {
	return vm.New(vm.WithCompiler(compiler.CompileSource))
}

func labels(items []protocol.CompletionItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label
	}
	return out
}

// ---------------------------------------------------------------------------
// Text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"simple word", "x = to_up", protocol.Position{Line: 0, Character: 9}, "to_up"},
		{"at start", "pri", protocol.Position{Line: 0, Character: 3}, "pri"},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, ""},
		{"multi line", "first\nsecond\nlen", protocol.Position{Line: 2, Character: 3}, "len"},
		{"after dot", "l.leng", protocol.Position{Line: 0, Character: 6}, "leng"},
		{"dollar suffix", "x = name$", protocol.Position{Line: 0, Character: 9}, "name$"},
		{"non-ascii", "print état", protocol.Position{Line: 0, Character: 10}, "état"},
		{"cursor at beginning", "hello", protocol.Position{Line: 0, Character: 0}, ""},
		{"beyond document", "one line", protocol.Position{Line: 5, Character: 0}, ""},
		{"beyond line end", "abc", protocol.Position{Line: 0, Character: 40}, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractPrefix(tt.text, tt.pos))
		})
	}
}

func TestExtractWord(t *testing.T) {
	text := "print to_upper(s)\nlocal état = 1"
	assert.Equal(t, "to_upper", extractWord(text, protocol.Position{Line: 0, Character: 8}))
	assert.Equal(t, "to_upper", extractWord(text, protocol.Position{Line: 0, Character: 14}))
	assert.Equal(t, "print", extractWord(text, protocol.Position{Line: 0, Character: 0}))
	assert.Equal(t, "état", extractWord(text, protocol.Position{Line: 1, Character: 7}))
	assert.Equal(t, "", extractWord("a + b", protocol.Position{Line: 0, Character: 2}))
	assert.Equal(t, "", extractWord(text, protocol.Position{Line: 9, Character: 0}))
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestDiagnoseValidDocument(t *testing.T) {
	d := diagnose("local x = 1\nprint x\n", "file:///ok.phon")
	assert.NotNil(t, d)
	assert.Empty(t, d)
}

func TestDiagnoseSyntaxErrorLine(t *testing.T) {
	text := "x = 1\nif x > 0\n  print x\nend\n"
	d := diagnose(text, "file:///bad.phon")
	require.Len(t, d, 1)
	assert.Equal(t, protocol.UInteger(1), d[0].Range.Start.Line)
	assert.Equal(t, protocol.UInteger(1), d[0].Range.End.Line)
	assert.Equal(t, protocol.UInteger(len("if x > 0")), d[0].Range.End.Character)
	assert.Contains(t, d[0].Message, "Syntax error")
	assert.Contains(t, d[0].Message, `"then"`)
	require.NotNil(t, d[0].Severity)
	assert.Equal(t, protocol.DiagnosticSeverityError, *d[0].Severity)
}

func TestDiagnoseCompileError(t *testing.T) {
	d := diagnose("print 1\nbreak\n", "file:///loop.phon")
	require.Len(t, d, 1)
	assert.Equal(t, protocol.UInteger(1), d[0].Range.Start.Line)
	assert.Contains(t, d[0].Message, "break")
}

// ---------------------------------------------------------------------------
// Completion, hover, symbols
// ---------------------------------------------------------------------------

const document = `function greet(ref name, times as Integer)
  return name
end
function grow(l) append(l, 1) end
`

func TestCompleteKeywordsAndBuiltins(t *testing.T) {
	rt := newRuntime()
	got := labels(complete(rt, document, "fo"))
	assert.Contains(t, got, "for")
	assert.Contains(t, got, "foreach")

	got = labels(complete(rt, document, "to_"))
	assert.Equal(t, []string{"to_lower", "to_upper"}, got)

	items := complete(rt, document, "Li")
	require.NotEmpty(t, items)
	assert.Equal(t, "List", items[0].Label)
	assert.Equal(t, protocol.CompletionItemKindClass, *items[0].Kind)
}

func TestCompleteDocumentFunctions(t *testing.T) {
	rt := newRuntime()
	items := complete(rt, document, "gr")
	assert.Equal(t, []string{"greet", "group", "grow"}, labels(items))
	assert.Equal(t, "function greet(ref name, times as Integer)", *items[0].Detail)
	assert.Equal(t, "function grow(l)", *items[2].Detail)
	assert.Equal(t, protocol.CompletionItemKindFunction, *items[1].Kind, "builtins are functions too")
}

func TestCompleteRuntimeGlobals(t *testing.T) {
	rt := newRuntime()
	_, err := rt.DoString("counter = 3")
	require.NoError(t, err)
	items := complete(rt, "", "counte")
	require.Len(t, items, 1)
	assert.Equal(t, "Integer", *items[0].Detail)
	assert.Equal(t, protocol.CompletionItemKindVariable, *items[0].Kind)
}

func TestHover(t *testing.T) {
	rt := newRuntime()

	h := hover(rt, document, "greet")
	require.NotNil(t, h)
	content := h.Contents.(protocol.MarkupContent)
	assert.Contains(t, content.Value, "function greet(ref name, times as Integer)")
	assert.Contains(t, content.Value, "line 1")

	h = hover(rt, document, "append")
	require.NotNil(t, h)
	assert.Contains(t, h.Contents.(protocol.MarkupContent).Value, "append(ref List, Object)")

	h = hover(rt, document, "Integer")
	require.NotNil(t, h)
	assert.Contains(t, h.Contents.(protocol.MarkupContent).Value, "**Integer** inherits Number → Object")

	assert.Nil(t, hover(rt, document, "nothing_here"))
}

func TestDocumentSymbols(t *testing.T) {
	symbols := documentSymbols(document, "file:///doc.phon")
	require.Len(t, symbols, 2)
	assert.Equal(t, "greet", symbols[0].Name)
	assert.Equal(t, protocol.SymbolKindFunction, symbols[0].Kind)
	assert.Equal(t, protocol.UInteger(0), symbols[0].Range.Start.Line)
	assert.Equal(t, "grow", symbols[1].Name)
	assert.Equal(t, protocol.UInteger(3), symbols[1].Range.Start.Line)

	assert.Empty(t, documentSymbols("function broken(", "x"))
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

func TestWorkerSerializesAccess(t *testing.T) {
	w := NewWorker(newRuntime())
	defer w.Stop()

	_, err := w.Do(func(rt *vm.Runtime) any {
		rt.SetGlobal("n", vm.FromInt(0))
		return nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := w.Do(func(rt *vm.Runtime) any {
				_, err := rt.DoString("n += 1")
				return err
			})
			assert.NoError(t, err)
			assert.Nil(t, res)
		}()
	}
	wg.Wait()

	v, err := w.Do(func(rt *vm.Runtime) any {
		n, _ := rt.Global("n")
		return n.Int()
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20), v)
}

func TestWorkerRecoversPanics(t *testing.T) {
	w := NewWorker(newRuntime())
	defer w.Stop()

	_, err := w.Do(func(*vm.Runtime) any { panic("boom") })
	assert.EqualError(t, err, "boom")

	_, err = w.Do(func(*vm.Runtime) any {
		vm.Throwf(vm.IndexError, "bad index")
		return nil
	})
	var ve *vm.Error
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, vm.IndexError, ve.Kind)

	w.Stop()
	w.Stop()
	_, err = w.Do(func(*vm.Runtime) any { return nil })
	assert.Error(t, err)
}
