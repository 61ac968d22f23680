package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"

	"github.com/chazu/phon/vm"
)

// ---------------------------------------------------------------------------
// Scanner: grapheme-aware tokenizer
// ---------------------------------------------------------------------------

// Scanner turns source text into tokens. It works one line at a time and
// steps through each line by grapheme cluster, so that a letter followed
// by combining marks is a single character.
type Scanner struct {
	name   string
	src    string
	offset int    // byte offset of the current line
	line   int    // current line (1-based)
	text   string // current line without its newline
	bounds []int  // grapheme boundaries in text
	pos    int    // index of the current grapheme in bounds
	eol    bool   // the current line ends with a newline
}

// NewScanner creates a scanner for src. name is used in error messages.
func NewScanner(src, name string) *Scanner {
	s := &Scanner{name: name, src: src, line: 1}
	s.loadLine()
	return s
}

func (s *Scanner) loadLine() {
	rest := s.src[s.offset:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		s.text, s.eol = rest[:i], true
	} else {
		s.text, s.eol = rest, false
	}
	s.bounds = s.bounds[:0]
	g := uniseg.NewGraphemes(s.text)
	for g.Next() {
		from, _ := g.Positions()
		s.bounds = append(s.bounds, from)
	}
	s.bounds = append(s.bounds, len(s.text))
	s.pos = 0
}

// char returns the current character, or "" at the end of the line.
func (s *Scanner) char() string {
	if s.pos >= len(s.bounds)-1 {
		return ""
	}
	return s.text[s.bounds[s.pos]:s.bounds[s.pos+1]]
}

// peek returns the character after the current one.
func (s *Scanner) peek() string {
	if s.pos+1 >= len(s.bounds)-1 {
		return ""
	}
	return s.text[s.bounds[s.pos+1]:s.bounds[s.pos+2]]
}

func (s *Scanner) advance() { s.pos++ }

func (s *Scanner) position() Position {
	return Position{Offset: s.offset + s.bounds[s.pos], Line: s.line, Column: s.pos + 1}
}

func firstRune(c string) rune {
	r, _ := utf8.DecodeRuneInString(c)
	return r
}

func isDigit(c string) bool { return len(c) == 1 && c[0] >= '0' && c[0] <= '9' }

func isIdentStart(c string) bool { return c != "" && unicode.IsLetter(firstRune(c)) }

func isIdentPart(c string) bool {
	return isIdentStart(c) || isDigit(c) || c == "_"
}

func isSpace(c string) bool {
	switch c {
	case " ", "\t", "\r", "\f", "\v":
		return true
	}
	return false
}

// ReadToken returns the next token.
func (s *Scanner) ReadToken() (Token, error) {
	for {
		c := s.char()
		switch {
		case c == "":
			pos := s.position()
			if !s.eol {
				return Token{Type: TokenEOT, Pos: pos}, nil
			}
			s.offset += len(s.text) + 1
			s.line++
			s.loadLine()
			return Token{Type: TokenEOL, Pos: pos}, nil
		case isSpace(c):
			s.advance()
			continue
		case !utf8.ValidString(c):
			return Token{}, s.invalidUTF8()
		case c == "#":
			for s.char() != "" {
				if !utf8.ValidString(s.char()) {
					return Token{}, s.invalidUTF8()
				}
				s.advance()
			}
			continue
		case isIdentStart(c):
			return s.scanIdentifier(), nil
		case isDigit(c):
			return s.scanNumber()
		case c == `"` || c == "'":
			return s.scanString(c)
		}
		return s.scanOperator()
	}
}

func (s *Scanner) scanIdentifier() Token {
	pos := s.position()
	start := s.bounds[s.pos]
	for isIdentPart(s.char()) {
		s.advance()
	}
	// Trailing '$' marks names reserved for the implementation.
	for s.char() == "$" {
		s.advance()
	}
	spelling := s.text[start:s.bounds[s.pos]]
	if kw, ok := keywords[spelling]; ok {
		return Token{Type: kw, Spelling: spelling, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Spelling: spelling, Pos: pos}
}

func (s *Scanner) scanDigits(b *strings.Builder) {
	for {
		c := s.char()
		if isDigit(c) {
			b.WriteString(c)
		} else if c != "_" {
			return
		}
		s.advance()
	}
}

func (s *Scanner) scanNumber() (Token, error) {
	pos := s.position()
	var b strings.Builder
	s.scanDigits(&b)
	typ := TokenInteger
	if s.char() == "." && isDigit(s.peek()) {
		typ = TokenFloat
		b.WriteByte('.')
		s.advance()
		s.scanDigits(&b)
	}
	if c := s.char(); c == "e" || c == "E" {
		next := s.peek()
		if isDigit(next) || ((next == "+" || next == "-") && s.pos+2 < len(s.bounds)-1 &&
			isDigit(s.text[s.bounds[s.pos+2]:s.bounds[s.pos+3]])) {
			typ = TokenFloat
			b.WriteByte('e')
			s.advance()
			if next == "+" || next == "-" {
				b.WriteString(next)
				s.advance()
			}
			s.scanDigits(&b)
		}
	}
	spelling := b.String()
	if typ == TokenInteger {
		if _, err := strconv.ParseInt(spelling, 10, 64); err != nil {
			return Token{}, s.errorAt(pos, "integer literal out of range", "use a float for numbers larger than 9223372036854775807")
		}
	}
	return Token{Type: typ, Spelling: spelling, Pos: pos}, nil
}

var escapes = map[string]string{
	"n": "\n",
	"t": "\t",
	"r": "\r",
	`\`: `\`,
	"'": "'",
	`"`: `"`,
	"v": "\v",
	"a": "\a",
	"b": "\b",
	"f": "\f",
}

func (s *Scanner) scanString(quote string) (Token, error) {
	pos := s.position()
	s.advance()
	var b strings.Builder
	for {
		c := s.char()
		switch c {
		case "":
			return Token{}, s.errorAt(s.position(), "unterminated string", "add a closing "+quote)
		case quote:
			s.advance()
			return Token{Type: TokenString, Spelling: b.String(), Pos: pos}, nil
		case `\`:
			s.advance()
			next := s.char()
			if next == "" {
				return Token{}, s.errorAt(s.position(), "unterminated string", "add a closing "+quote)
			}
			if e, ok := escapes[next]; ok {
				b.WriteString(e)
			} else if !utf8.ValidString(next) {
				return Token{}, s.invalidUTF8()
			} else {
				b.WriteString(`\`)
				b.WriteString(next)
			}
		default:
			if !utf8.ValidString(c) {
				return Token{}, s.invalidUTF8()
			}
			b.WriteString(c)
		}
		s.advance()
	}
}

// operators lists operator spellings, longest first for each prefix.
var operators = []struct {
	text string
	typ  TokenType
}{
	{"<=>", TokenCompare},
	{"==", TokenEqual},
	{"!=", TokenNotEqual},
	{"<=", TokenLessEqual},
	{">=", TokenGreaterEqual},
	{"+=", TokenAssignPlus},
	{"-=", TokenAssignMinus},
	{"*=", TokenAssignStar},
	{"/=", TokenAssignSlash},
	{"^=", TokenAssignPower},
	{"%=", TokenAssignMod},
	{"&=", TokenAssignConcat},
	{"=", TokenAssign},
	{"<", TokenLess},
	{">", TokenGreater},
	{"+", TokenPlus},
	{"-", TokenMinus},
	{"*", TokenStar},
	{"/", TokenSlash},
	{"^", TokenPower},
	{"%", TokenMod},
	{"&", TokenConcat},
	{"@", TokenAt},
	{",", TokenComma},
	{":", TokenColon},
	{";", TokenSemicolon},
	{".", TokenDot},
	{"(", TokenLParen},
	{")", TokenRParen},
	{"{", TokenLBrace},
	{"}", TokenRBrace},
	{"[", TokenLBracket},
	{"]", TokenRBracket},
}

func (s *Scanner) scanOperator() (Token, error) {
	pos := s.position()
	rest := s.text[s.bounds[s.pos]:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op.text) {
			s.pos += len(op.text) // operators are ASCII: one grapheme per byte
			return Token{Type: op.typ, Spelling: op.text, Pos: pos}, nil
		}
	}
	if s.char() == "!" {
		return Token{}, s.errorAt(pos, "invalid token", `use "not" for negation and "!=" for inequality`)
	}
	return Token{}, s.errorAt(pos, fmt.Sprintf("invalid character %q", s.char()), "")
}

func (s *Scanner) invalidUTF8() *vm.Error {
	return s.errorAt(s.position(), "invalid UTF-8 in source", "save the script as UTF-8")
}

func (s *Scanner) errorAt(pos Position, msg, hint string) *vm.Error {
	return syntaxError(s.src, s.name, pos, msg, hint)
}

// ---------------------------------------------------------------------------
// Syntax errors
// ---------------------------------------------------------------------------

// syntaxError builds a syntax error showing the offending line with a
// caret under pos.
func syntaxError(src, name string, pos Position, msg, hint string) *vm.Error {
	e := vm.NewError(vm.SyntaxError, "%s", msg)
	e.File = name
	e.Line = pos.Line
	e.Hint = hint
	if text, start, ok := sourceLine(src, pos.Line); ok {
		col := min(max(pos.Offset-start, 0), len(text))
		prefix := strings.ReplaceAll(text[:col], "\t", "    ")
		line := strings.TrimRight(strings.ReplaceAll(text, "\t", "    "), " \r")
		e.Snippet = line + "\n" + strings.Repeat(" ", runewidth.StringWidth(prefix)) + "^"
	}
	return e
}

// sourceLine returns line n of src and its byte offset.
func sourceLine(src string, n int) (string, int, bool) {
	start := 0
	for i := 1; i < n; i++ {
		j := strings.IndexByte(src[start:], '\n')
		if j < 0 {
			return "", 0, false
		}
		start += j + 1
	}
	text := src[start:]
	if j := strings.IndexByte(text, '\n'); j >= 0 {
		text = text[:j]
	}
	return text, start, true
}

// ---------------------------------------------------------------------------
// Token streams
// ---------------------------------------------------------------------------

// Tokenize scans src completely. The last token is always TokenEOT.
func Tokenize(src, name string) ([]Token, error) {
	s := NewScanner(src, name)
	var tokens []Token
	for {
		tok, err := s.ReadToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOT {
			return tokens, nil
		}
	}
}

// Text returns source text that scans back to the token.
func (t Token) Text() string {
	switch t.Type {
	case TokenEOT:
		return ""
	case TokenEOL:
		return "\n"
	case TokenString:
		return quoteString(t.Spelling)
	}
	return t.Spelling
}

var quoted = map[string]string{
	`"`:  `\"`,
	`\`: `\\`,
	"\n": `\n`,
	"\t": `\t`,
	"\r": `\r`,
	"\v": `\v`,
	"\a": `\a`,
	"\b": `\b`,
	"\f": `\f`,
}

// quoteString quotes s so that scanning the result yields s again. A tab
// or other control character is left raw when the escape letter would merge with
// the following combining mark into one character.
func quoteString(s string) string {
	var clusters []string
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		clusters = append(clusters, g.Str())
	}
	var b strings.Builder
	b.WriteByte('"')
	for i, c := range clusters {
		q, ok := quoted[c]
		if ok && c != `"` && c != `\` && c != "\n" && i+1 < len(clusters) &&
			uniseg.GraphemeClusterCount(q[1:]+clusters[i+1]) == 1 {
			ok = false
		}
		if ok {
			b.WriteString(q)
		} else {
			b.WriteString(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
