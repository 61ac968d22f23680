package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOT TokenType = iota // end of text
	TokenEOL                  // end of line

	// Literals
	TokenInteger    // 42, 1_000
	TokenFloat      // 3.14
	TokenString     // "hello", 'hello'
	TokenIdentifier // foo, état, init$

	// Keywords
	TokenAnd
	TokenAs
	TokenAssert
	TokenBreak
	TokenClass
	TokenContinue
	TokenDebug
	TokenDo
	TokenDownto
	TokenElse
	TokenElsif
	TokenEnd
	TokenExplicit
	TokenFalse
	TokenField
	TokenFor
	TokenForeach
	TokenFunction
	TokenIf
	TokenIn
	TokenInherits
	TokenLocal
	TokenMethod
	TokenNan
	TokenNot
	TokenNull
	TokenOption
	TokenOr
	TokenPass
	TokenPrint
	TokenRef
	TokenRepeat
	TokenReturn
	TokenStep
	TokenSuper
	TokenThen
	TokenThis
	TokenThrow
	TokenTo
	TokenTrue
	TokenUntil
	TokenWhile

	// Operators
	TokenPlus         // +
	TokenMinus        // -
	TokenStar         // *
	TokenSlash        // /
	TokenPower        // ^
	TokenMod          // %
	TokenConcat       // &
	TokenAssign       // =
	TokenEqual        // ==
	TokenNotEqual     // !=
	TokenLess         // <
	TokenLessEqual    // <=
	TokenCompare      // <=>
	TokenGreater      // >
	TokenGreaterEqual // >=
	TokenAt           // @

	// Compound assignment
	TokenAssignPlus   // +=
	TokenAssignMinus  // -=
	TokenAssignStar   // *=
	TokenAssignSlash  // /=
	TokenAssignPower  // ^=
	TokenAssignMod    // %=
	TokenAssignConcat // &=

	// Separators
	TokenComma     // ,
	TokenColon     // :
	TokenSemicolon // ;
	TokenDot       // .
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLBracket  // [
	TokenRBracket  // ]

	tokenCount
)

var tokenNames = [tokenCount]string{
	TokenEOT:        "end of text",
	TokenEOL:        "end of line",
	TokenInteger:    "integer",
	TokenFloat:      "float",
	TokenString:     "string",
	TokenIdentifier: "identifier",

	TokenAnd:      "and",
	TokenAs:       "as",
	TokenAssert:   "assert",
	TokenBreak:    "break",
	TokenClass:    "class",
	TokenContinue: "continue",
	TokenDebug:    "debug",
	TokenDo:       "do",
	TokenDownto:   "downto",
	TokenElse:     "else",
	TokenElsif:    "elsif",
	TokenEnd:      "end",
	TokenExplicit: "explicit",
	TokenFalse:    "false",
	TokenField:    "field",
	TokenFor:      "for",
	TokenForeach:  "foreach",
	TokenFunction: "function",
	TokenIf:       "if",
	TokenIn:       "in",
	TokenInherits: "inherits",
	TokenLocal:    "local",
	TokenMethod:   "method",
	TokenNan:      "nan",
	TokenNot:      "not",
	TokenNull:     "null",
	TokenOption:   "option",
	TokenOr:       "or",
	TokenPass:     "pass",
	TokenPrint:    "print",
	TokenRef:      "ref",
	TokenRepeat:   "repeat",
	TokenReturn:   "return",
	TokenStep:     "step",
	TokenSuper:    "super",
	TokenThen:     "then",
	TokenThis:     "this",
	TokenThrow:    "throw",
	TokenTo:       "to",
	TokenTrue:     "true",
	TokenUntil:    "until",
	TokenWhile:    "while",

	TokenPlus:         "+",
	TokenMinus:        "-",
	TokenStar:         "*",
	TokenSlash:        "/",
	TokenPower:        "^",
	TokenMod:          "%",
	TokenConcat:       "&",
	TokenAssign:       "=",
	TokenEqual:        "==",
	TokenNotEqual:     "!=",
	TokenLess:         "<",
	TokenLessEqual:    "<=",
	TokenCompare:      "<=>",
	TokenGreater:      ">",
	TokenGreaterEqual: ">=",
	TokenAt:           "@",

	TokenAssignPlus:   "+=",
	TokenAssignMinus:  "-=",
	TokenAssignStar:   "*=",
	TokenAssignSlash:  "/=",
	TokenAssignPower:  "^=",
	TokenAssignMod:    "%=",
	TokenAssignConcat: "&=",

	TokenComma:     ",",
	TokenColon:     ":",
	TokenSemicolon: ";",
	TokenDot:       ".",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
}

func (t TokenType) String() string {
	if t >= 0 && t < tokenCount {
		return tokenNames[t]
	}
	return fmt.Sprintf("Token(%d)", int(t))
}

// IsKeyword reports whether t is a reserved word.
func (t TokenType) IsKeyword() bool { return t >= TokenAnd && t <= TokenWhile }

// IsCompoundAssign reports whether t is a compound assignment operator.
func (t TokenType) IsCompoundAssign() bool {
	return t >= TokenAssignPlus && t <= TokenAssignConcat
}

// BinaryOperator returns the operator applied by a compound assignment.
func (t TokenType) BinaryOperator() TokenType {
	switch t {
	case TokenAssignPlus:
		return TokenPlus
	case TokenAssignMinus:
		return TokenMinus
	case TokenAssignStar:
		return TokenStar
	case TokenAssignSlash:
		return TokenSlash
	case TokenAssignPower:
		return TokenPower
	case TokenAssignMod:
		return TokenMod
	case TokenAssignConcat:
		return TokenConcat
	}
	return t
}

// keywords maps reserved words to their token types.
var keywords = func() map[string]TokenType {
	m := make(map[string]TokenType)
	for t := TokenAnd; t <= TokenWhile; t++ {
		m[tokenNames[t]] = t
	}
	return m
}()

// Keywords returns the reserved words of the language.
func Keywords() []string {
	out := make([]string, 0, TokenWhile-TokenAnd+1)
	for t := TokenAnd; t <= TokenWhile; t++ {
		out = append(out, tokenNames[t])
	}
	return out
}

// Position is a location in the source. Column counts characters
// (grapheme clusters) from 1.
type Position struct {
	Offset int
	Line   int
	Column int
}

// Token represents a lexical token.
type Token struct {
	Type     TokenType
	Spelling string // the raw text, or the decoded value of a string
	Pos      Position
}

// Line returns the line the token starts on.
func (t Token) Line() int { return t.Pos.Line }

func (t Token) String() string {
	switch t.Type {
	case TokenEOT, TokenEOL:
		return t.Type.String()
	case TokenInteger, TokenFloat, TokenIdentifier:
		return fmt.Sprintf("%s(%s)", t.Type, t.Spelling)
	case TokenString:
		if len(t.Spelling) > 20 {
			return fmt.Sprintf("string(%q...)", t.Spelling[:20])
		}
		return fmt.Sprintf("string(%q)", t.Spelling)
	}
	return fmt.Sprintf("%q", t.Type.String())
}

// IsSeparator reports whether the token ends a statement.
func (t Token) IsSeparator() bool {
	return t.Type == TokenEOL || t.Type == TokenSemicolon
}
