package server

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/phon/compiler"
	"github.com/chazu/phon/vm"
)

const maxCompletionItems = 100

// diagnose compiles text and reports its first error, if any.
func diagnose(text, name string) []protocol.Diagnostic {
	_, err := compiler.CompileString(text, compiler.Options{Name: name})
	if err == nil {
		return []protocol.Diagnostic{}
	}

	line, msg := 0, err.Error()
	if e, ok := vm.AsError(err); ok {
		line = max(e.Line-1, 0)
		msg = e.Message
		if e.Hint != "" {
			msg += "\nHint: " + e.Hint
		}
		msg = e.Kind.String() + ": " + msg
	}
	severity := protocol.DiagnosticSeverityError
	source := lspName
	return []protocol.Diagnostic{{
		Range:    lineRange(text, line),
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}}
}

// lineRange covers the whole of line (0-based) in text.
func lineRange(text string, line int) protocol.Range {
	lines := strings.Split(text, "\n")
	width := 0
	if line < len(lines) {
		width = len([]rune(strings.TrimRight(lines[line], "\r")))
	}
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(line), Character: 0},
		End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(width)},
	}
}

// declaredFunctions returns the named function declarations in text. A
// document that does not parse has none.
func declaredFunctions(text, name string) []*compiler.RoutineDef {
	prog, err := compiler.Parse(text, name)
	if err != nil {
		return nil
	}
	var defs []*compiler.RoutineDef
	compiler.Inspect(prog.Body, func(n compiler.Node) bool {
		if def, ok := n.(*compiler.RoutineDef); ok && def.Name != "" {
			defs = append(defs, def)
		}
		return true
	})
	return defs
}

func signature(def *compiler.RoutineDef) string {
	params := make([]string, len(def.Params))
	for i, p := range def.Params {
		s := p.Name
		if p.ByRef {
			s = "ref " + s
		}
		if v, ok := p.Type.(*compiler.Variable); ok {
			s += " as " + v.Name
		}
		params[i] = s
	}
	return fmt.Sprintf("function %s(%s)", def.Name, strings.Join(params, ", "))
}

// complete offers keywords, functions declared in the document, builtins
// and globals starting with prefix. Runs on the worker goroutine.
func complete(rt *vm.Runtime, text, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	seen := make(map[string]bool)
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if seen[label] || !strings.HasPrefix(label, prefix) {
			return
		}
		seen[label] = true
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	for _, kw := range compiler.Keywords() {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}
	for _, def := range declaredFunctions(text, "") {
		add(def.Name, protocol.CompletionItemKindFunction, signature(def))
	}
	for _, m := range []*vm.Module{rt.Globals(), rt.Builtins()} {
		for _, name := range m.Names() {
			v, _ := m.Get(name)
			switch p := v.Payload().(type) {
			case *vm.Function:
				add(name, protocol.CompletionItemKindFunction, describeFunction(p))
			default:
				if _, ok := rt.Class(name); ok {
					add(name, protocol.CompletionItemKindClass, "class")
				} else {
					add(name, protocol.CompletionItemKindVariable, vm.TypeName(v))
				}
			}
		}
	}

	slices.SortStableFunc(items, func(a, b protocol.CompletionItem) int {
		return strings.Compare(a.Label, b.Label)
	})
	if len(items) > maxCompletionItems {
		items = items[:maxCompletionItems]
	}
	return items
}

// describeFunction lists the overloads of fn, one per line.
func describeFunction(fn *vm.Function) string {
	lines := make([]string, len(fn.Overloads()))
	for i, c := range fn.Overloads() {
		lines[i] = c.String()
	}
	return strings.Join(lines, "\n")
}

// hover describes the class, function or global named word. Runs on the
// worker goroutine.
func hover(rt *vm.Runtime, text, word string) *protocol.Hover {
	var b strings.Builder

	for _, def := range declaredFunctions(text, "") {
		if def.Name == word {
			fmt.Fprintf(&b, "```phon\n%s\n```\n\nDeclared at line %d", signature(def), def.Line())
			return markdown(b.String())
		}
	}

	if cls, ok := rt.Class(word); ok {
		fmt.Fprintf(&b, "**%s**", cls.Name)
		var chain []string
		for base := cls.Base; base != nil; base = base.Base {
			chain = append(chain, base.Name)
		}
		if len(chain) > 0 {
			fmt.Fprintf(&b, " inherits %s", strings.Join(chain, " → "))
		}
		if methods := cls.Methods(); len(methods) > 0 {
			slices.Sort(methods)
			fmt.Fprintf(&b, "\n\nMethods: `%s`", strings.Join(methods, "`, `"))
		}
		return markdown(b.String())
	}

	for _, m := range []*vm.Module{rt.Globals(), rt.Builtins()} {
		v, ok := m.Get(word)
		if !ok {
			continue
		}
		if fn, ok := vm.As[*vm.Function](v); ok {
			fmt.Fprintf(&b, "```phon\n%s\n```", describeFunction(fn))
		} else {
			fmt.Fprintf(&b, "**%s**: %s = `%s`", word, vm.TypeName(v), vm.Display(v, true))
		}
		return markdown(b.String())
	}
	return nil
}

func markdown(s string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: s,
		},
	}
}

// documentSymbols lists the function declarations of a document.
func documentSymbols(text, name string) []protocol.DocumentSymbol {
	symbols := []protocol.DocumentSymbol{}
	for _, def := range declaredFunctions(text, name) {
		detail := signature(def)
		r := lineRange(text, max(def.Line()-1, 0))
		symbols = append(symbols, protocol.DocumentSymbol{
			Name:           def.Name,
			Detail:         &detail,
			Kind:           protocol.SymbolKindFunction,
			Range:          r,
			SelectionRange: r,
		})
	}
	return symbols
}

// --- Text extraction helpers ---

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || unicode.Is(unicode.Mn, ch) || ch == '_' || ch == '$'
}

// lineRunes returns the runes of the given line and the cursor column
// clamped to it.
func lineRunes(text string, pos protocol.Position) ([]rune, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return nil, 0, false
	}
	line := []rune(lines[pos.Line])
	return line, min(int(pos.Character), len(line)), true
}

// extractPrefix returns the identifier fragment before the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineRunes(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 && isIdentRune(line[start-1]) {
		start--
	}
	return string(line[start:col])
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineRunes(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 && isIdentRune(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isIdentRune(line[end]) {
		end++
	}
	return string(line[start:end])
}
