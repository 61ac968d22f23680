package compiler

import (
	"strings"
	"testing"

	"github.com/chazu/phon/vm"
)

// ---------------------------------------------------------------------------
// FuzzScanner: the scanner never panics and always terminates.
// ---------------------------------------------------------------------------

func FuzzScanner(f *testing.F) {
	seeds := []string{
		// Punctuation and operators
		`( ) [ ] { } , ; : . @ & ^ % + - * /`,
		`== != < <= > >= <=> = += -= *= /= ^= %= &=`,
		// Numbers
		`42`, `0`, `1_000`, `3.14`, `2e10`, `1.5E-3`, `7e`, `1.x`, `99999999999999999999`,
		// Strings
		`"hello"`, `'hello'`, `"a\nb\t\"c\""`, `'it\'s'`, `"unterminated`, "\"line\nbreak\"",
		// Identifiers and keywords
		`foo`, `init$`, `état`, "éte", `end`, `foreach`, `downto`,
		// Comments
		"# comment\nx", `x # trailing`,
		// Wide characters and invalid input
		`"日本" ?`, `!`, "\x00\xff",
		``, `   `, "\t\n\r",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("scanner panicked on input %q: %v", data, r)
			}
		}()

		s := NewScanner(data, "fuzz")
		for i := 0; i < len(data)+100; i++ {
			tok, err := s.ReadToken()
			if err != nil || tok.Type == TokenEOT {
				return
			}
		}
		t.Fatalf("scanner did not reach the end of %q", data)
	})
}

// ---------------------------------------------------------------------------
// FuzzTokenizeRoundTrip: joining the Text of every token and scanning the
// result gives back the same tokens.
// ---------------------------------------------------------------------------

func FuzzTokenizeRoundTrip(f *testing.F) {
	seeds := []string{
		"local x = 1_000 + 2.5e3 # comment\nprint x",
		`s = "tab\there" & 'it\'s' & "back\\slash"`,
		"s = \"\t\u0301\" & '\\\u0301'",
		"a <=> b <= c >= d != e == f",
		"état = naïve$ ^ 2",
		"\"\xf6\"", "\x00\xff", "1.x 7e 2e+",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		first, err := Tokenize(data, "fuzz")
		if err != nil {
			return
		}
		parts := make([]string, len(first))
		for i, tok := range first {
			parts[i] = tok.Text()
		}
		text := strings.Join(parts, " ")
		second, err := Tokenize(text, "fuzz")
		if err != nil {
			t.Fatalf("%q scans as %q, which does not scan: %v", data, text, err)
		}
		if len(first) != len(second) {
			t.Fatalf("%q scans as %d tokens but %q as %d", data, len(first), text, len(second))
		}
		for i := range first {
			if first[i].Type != second[i].Type || first[i].Spelling != second[i].Spelling {
				t.Fatalf("token %d of %q: %v %q became %v %q", i, data,
					first[i].Type, first[i].Spelling, second[i].Type, second[i].Spelling)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzCompile: parsing and code generation report errors, never panic.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	seeds := []string{
		`print 1 + 2 * 3`,
		`local a, b = 1, 2`,
		"if a then b = 1 elsif c then pass else d = 2 end",
		"while x do x -= 1 end",
		"repeat n += 1 until n > 3",
		"for i = 1 to 10 step 2 do print i, end",
		"foreach k, ref v in t do v = k end",
		"function f(ref a, b as String)\n  return a & b\nend",
		"f = function(x) return x if x else -x end",
		`t = {"a": 1}; s = {1, 2}; l = [1, 2]; a = @[1, 2; 3, 4]`,
		`x.y[1, 2] = z`,
		"option debug\ndebug print 1",
		"assert x, 'message'\nthrow 'error'",
		"do\n  local f\n  local function f() end\nend",
		// Edge cases
		``, `(`, `)`, `[`, `]`, `{`, `}`, `@[`, `@[1; 2, 3]`,
		`end`, `else`, `until`, `function`, `local`, `ref`, `break`,
		`f() = 1`, `1 < 2 < 3`, `local a, b = 1`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("compiler panicked on input %q: %v", data, r)
			}
		}()

		r, err := CompileString(data, Options{Name: "fuzz", Debug: true})
		if err != nil {
			if _, ok := vm.AsError(err); !ok {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
			return
		}
		_ = vm.Disassemble(r)
	})
}
