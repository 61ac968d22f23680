package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/phon/vm"
)

func tokenTypes(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, t := range tokens {
		out[i] = t.Type
	}
	return out
}

func TestTokenizeSimpleStatement(t *testing.T) {
	tokens, err := Tokenize("x = 1 + 2.5\n", "test")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{
		TokenIdentifier, TokenAssign, TokenInteger, TokenPlus, TokenFloat, TokenEOL, TokenEOT,
	}, tokenTypes(tokens))
	assert.Equal(t, "x", tokens[0].Spelling)
	assert.Equal(t, "2.5", tokens[4].Spelling)
	assert.Equal(t, 1, tokens[5].Line(), "end of line belongs to the line it ends")
}

func TestTokenizeRoundTrip(t *testing.T) {
	sources := []string{
		"local x = 1_000 + 2.5e3 # comment\nprint x",
		`s = "tab\there" & 'it\'s' & "back\\slash"`,
		"function f(ref a, b as String)\n  return a <=> b\nend",
		"if a >= 1 and not b != 2 then pass elsif c then x -= 1 else y &= z end",
		"t = {1: 'one', \"two\": 2}; s = {1, 2}; a = @[1, 2; 3, 4]",
		"foreach k, ref v in t do print k, v, end",
		"état = 1\nnaïve$ = état ^ 2 % 3",
		"s = \"\t\u0301x\" & 'a\\\u0301' & \"ok\\n\"",
	}
	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			first, err := Tokenize(src, "test")
			require.NoError(t, err)

			var parts []string
			for _, tok := range first {
				parts = append(parts, tok.Text())
			}
			second, err := Tokenize(strings.Join(parts, " "), "test")
			require.NoError(t, err)

			require.Equal(t, tokenTypes(first), tokenTypes(second))
			for i := range first {
				assert.Equal(t, first[i].Spelling, second[i].Spelling)
			}
		})
	}
}

func TestQuoteStringKeepsCombiningMarksApart(t *testing.T) {
	assert.Equal(t, `"a\tb\n"`, quoteString("a\tb\n"))
	// An escaped tab would read back as a backslash and an accented t.
	assert.Equal(t, "\"\t\u0301\"", quoteString("\t\u0301"))
}

func TestScannerKeywords(t *testing.T) {
	for _, kw := range Keywords() {
		tokens, err := Tokenize(kw, "test")
		require.NoError(t, err)
		assert.True(t, tokens[0].Type.IsKeyword(), kw)
		assert.Equal(t, kw, tokens[0].Type.String())
	}
	tokens, err := Tokenize("ending", "test")
	require.NoError(t, err)
	assert.Equal(t, TokenIdentifier, tokens[0].Type)
}

func TestScannerGraphemeIdentifiers(t *testing.T) {
	// "é" spelled as e + combining acute accent is one character.
	decomposed := "e\u0301te"
	tokens, err := Tokenize(decomposed+" = 1", "test")
	require.NoError(t, err)
	require.Equal(t, TokenIdentifier, tokens[0].Type)
	assert.Equal(t, decomposed, tokens[0].Spelling)
	assert.Equal(t, 5, tokens[1].Pos.Column, "columns count characters, not runes")

	tokens, err = Tokenize("init$$", "test")
	require.NoError(t, err)
	assert.Equal(t, "init$$", tokens[0].Spelling)
}

func TestScannerNumbers(t *testing.T) {
	tests := []struct {
		src      string
		typ      TokenType
		spelling string
	}{
		{"42", TokenInteger, "42"},
		{"1_000_000", TokenInteger, "1000000"},
		{"3.14", TokenFloat, "3.14"},
		{"2e10", TokenFloat, "2e10"},
		{"1.5E-3", TokenFloat, "1.5e-3"},
		{"7e", TokenInteger, "7"},
	}
	for _, tc := range tests {
		tokens, err := Tokenize(tc.src, "test")
		require.NoError(t, err, tc.src)
		assert.Equal(t, tc.typ, tokens[0].Type, tc.src)
		assert.Equal(t, tc.spelling, tokens[0].Spelling, tc.src)
	}

	// "1." is an integer followed by a dot.
	tokens, err := Tokenize("1.x", "test")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{TokenInteger, TokenDot, TokenIdentifier, TokenEOT}, tokenTypes(tokens))
}

func TestScannerIntegerOverflow(t *testing.T) {
	_, err := Tokenize("x = 99999999999999999999", "big.phon")
	require.Error(t, err)
	assert.ErrorIs(t, err, vm.ErrSyntax)
	e, ok := vm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "integer literal out of range", e.Message)
	assert.Equal(t, "big.phon", e.File)
}

func TestScannerStrings(t *testing.T) {
	tokens, err := Tokenize(`"a\nb\t\"c\" \q"`, "test")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\t\"c\" \\q", tokens[0].Spelling, "unknown escapes keep the backslash")

	tokens, err = Tokenize(`'single "quoted"'`, "test")
	require.NoError(t, err)
	assert.Equal(t, `single "quoted"`, tokens[0].Spelling)
}

func TestScannerUnterminatedString(t *testing.T) {
	_, err := Tokenize("x = \"abc\ny = 1", "test")
	require.Error(t, err)
	e, ok := vm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, vm.SyntaxError, e.Kind)
	assert.Equal(t, 1, e.Line)
	assert.Equal(t, "unterminated string", e.Message)
	assert.Equal(t, `add a closing "`, e.Hint)
	assert.Equal(t, "x = \"abc\n        ^", e.Snippet)
}

func TestScannerInvalidCharacters(t *testing.T) {
	_, err := Tokenize("a ! b", "test")
	require.Error(t, err)
	e, _ := vm.AsError(err)
	assert.Equal(t, "invalid token", e.Message)
	assert.Contains(t, e.Hint, `"not"`)

	_, err = Tokenize("a ? b", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid character")
}

func TestScannerInvalidUTF8(t *testing.T) {
	for _, src := range []string{
		"s = \"\xf6\"",
		"s = \"a\\\xf6\"",
		"x = 1 # \xf6",
		"\xf6 = 1",
		"x\xff = 1",
	} {
		_, err := Tokenize(src, "test")
		require.Error(t, err, "%q", src)
		e, ok := vm.AsError(err)
		require.True(t, ok)
		assert.Equal(t, vm.SyntaxError, e.Kind)
		assert.Equal(t, "invalid UTF-8 in source", e.Message, "%q", src)
	}

	_, err := Tokenize("s = \"\u00f6\" # \u00f6", "test")
	require.NoError(t, err)
}

func TestSyntaxErrorCaretUsesDisplayWidth(t *testing.T) {
	// Wide characters take two columns on a terminal.
	_, err := Tokenize("s = \"日本\" ?", "test")
	require.Error(t, err)
	e, _ := vm.AsError(err)
	lines := strings.Split(e.Snippet, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Repeat(" ", 11)+"^", lines[1])
}

func TestScannerComments(t *testing.T) {
	tokens, err := Tokenize("# only a comment\nx # trailing\n", "test")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{TokenEOL, TokenIdentifier, TokenEOL, TokenEOT}, tokenTypes(tokens))
	assert.Equal(t, 2, tokens[1].Line())
}
