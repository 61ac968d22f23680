package compiler

import (
	"fmt"
	"os"
	"strconv"

	"github.com/chazu/phon/vm"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent, one token of lookahead
// ---------------------------------------------------------------------------

// Parser builds an AST from source text. Parsing stops at the first error.
type Parser struct {
	scanner *Scanner
	src     string
	name    string
	tok     Token
}

// Parse parses src. name is the file name reported in errors.
func Parse(src, name string) (prog *Program, err error) {
	p := &Parser{scanner: NewScanner(src, name), src: src, name: name}
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*vm.Error)
			if !ok {
				panic(r)
			}
			prog, err = nil, e
		}
	}()
	return p.parseProgram(), nil
}

// ParseString parses source that does not come from a file.
func ParseString(src string) (*Program, error) {
	return Parse(src, "<string>")
}

// ParseFile reads and parses a script file.
func ParseFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		e := vm.WrapError(vm.IOError, err, "cannot read file")
		e.File = path
		return nil, e
	}
	return Parse(string(data), path)
}

// ---------------------------------------------------------------------------
// Token handling
// ---------------------------------------------------------------------------

func (p *Parser) next() {
	tok, err := p.scanner.ReadToken()
	if err != nil {
		panic(err)
	}
	p.tok = tok
}

func (p *Parser) check(t TokenType) bool { return p.tok.Type == t }

func (p *Parser) accept(t TokenType) bool {
	if p.tok.Type == t {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(t TokenType, context string) Token {
	tok := p.tok
	if tok.Type != t {
		p.failf("", "expected %q %s, got %s", t.String(), context, describe(tok))
	}
	p.next()
	return tok
}

func (p *Parser) skipLines() {
	for p.tok.Type == TokenEOL {
		p.next()
	}
}

func (p *Parser) skipSeparators() {
	for p.tok.IsSeparator() {
		p.next()
	}
}

// endsBlock reports whether the current token closes the enclosing block.
func (p *Parser) endsBlock() bool {
	switch p.tok.Type {
	case TokenEOT, TokenEnd, TokenElse, TokenElsif, TokenUntil:
		return true
	}
	return false
}

// endStatement consumes the separators after a statement. Separators are
// optional: "if x then y = 1 end print y" holds two statements.
func (p *Parser) endStatement() {
	p.skipSeparators()
}

func (p *Parser) fail(pos Position, msg, hint string) {
	panic(syntaxError(p.src, p.name, pos, msg, hint))
}

func (p *Parser) failf(hint, format string, args ...any) {
	p.fail(p.tok.Pos, fmt.Sprintf(format, args...), hint)
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenEOT, TokenEOL:
		return tok.Type.String()
	case TokenIdentifier:
		return fmt.Sprintf("identifier %q", tok.Spelling)
	case TokenInteger, TokenFloat:
		return fmt.Sprintf("number %s", tok.Spelling)
	case TokenString:
		return "string " + quoteString(tok.Spelling)
	}
	return strconv.Quote(tok.Type.String())
}

// ---------------------------------------------------------------------------
// Program and blocks
// ---------------------------------------------------------------------------

func (p *Parser) parseProgram() *Program {
	p.next()
	prog := &Program{Name: p.name}
	p.skipSeparators()
	for p.accept(TokenOption) {
		prog.Debug = p.parseOption()
		p.skipSeparators()
	}
	body := &StatementList{base: base{Pos: p.tok.Pos}}
	for !p.check(TokenEOT) {
		body.Statements = append(body.Statements, p.parseStatement())
		if !p.check(TokenEOT) {
			if p.endsBlock() {
				p.failf("", "unexpected %s", describe(p.tok))
			}
			p.endStatement()
		}
	}
	prog.Body = body
	return prog
}

func (p *Parser) parseOption() bool {
	if !p.check(TokenDebug) {
		p.failf(`the only option is "debug"`, "invalid option %s", describe(p.tok))
	}
	p.next()
	value := true
	if p.accept(TokenAssign) {
		switch {
		case p.accept(TokenTrue):
		case p.accept(TokenFalse):
			value = false
		default:
			p.failf("", `option value must be "true" or "false", got %s`, describe(p.tok))
		}
	}
	return value
}

// parseBlock parses statements up to one of the given terminators, which
// is left unconsumed.
func (p *Parser) parseBlock(scope bool, context string, terminators ...TokenType) *StatementList {
	block := &StatementList{base: base{Pos: p.tok.Pos}, Scope: scope}
	p.skipSeparators()
	for {
		for _, t := range terminators {
			if p.check(t) {
				return block
			}
		}
		if p.check(TokenEOT) {
			p.failf(`add "end" to close the block`, "unexpected end of text %s", context)
		}
		block.Statements = append(block.Statements, p.parseStatement())
		p.endStatement()
	}
}

// parseBody parses statements up to and including "end".
func (p *Parser) parseBody(scope bool, context string) *StatementList {
	block := p.parseBlock(scope, context, TokenEnd)
	p.expect(TokenEnd, context)
	return block
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() Stmt {
	tok := p.tok
	pos := tok.Pos
	switch tok.Type {
	case TokenPrint:
		p.next()
		return p.parsePrint(pos)
	case TokenLocal:
		p.next()
		p.skipLines()
		if p.accept(TokenFunction) {
			return p.parseFunctionDeclaration(pos, true)
		}
		return p.parseDeclaration(pos)
	case TokenIf:
		p.next()
		return p.parseIf(pos)
	case TokenWhile:
		p.next()
		cond := p.parseExpression()
		p.expect(TokenDo, `in "while" loop`)
		return &WhileStatement{base: base{Pos: pos}, Cond: cond, Body: p.parseBody(true, `in "while" loop`)}
	case TokenRepeat:
		p.next()
		body := p.parseBlock(false, `in "repeat" loop`, TokenUntil)
		p.expect(TokenUntil, `in "repeat" loop`)
		return &RepeatStatement{base: base{Pos: pos}, Body: body, Cond: p.parseExpression()}
	case TokenFor:
		p.next()
		return p.parseFor(pos)
	case TokenForeach:
		p.next()
		return p.parseForeach(pos)
	case TokenFunction:
		p.next()
		return p.parseFunctionDeclaration(pos, false)
	case TokenReturn:
		p.next()
		ret := &ReturnStatement{base: base{Pos: pos}}
		if !p.tok.IsSeparator() && !p.endsBlock() {
			ret.Value = p.parseExpression()
		}
		return ret
	case TokenBreak, TokenContinue:
		p.next()
		return &LoopExit{base: base{Pos: pos}, Kind: tok.Type}
	case TokenAssert:
		p.next()
		stmt := &AssertStatement{base: base{Pos: pos}, Cond: p.parseExpression()}
		if p.accept(TokenComma) {
			stmt.Message = p.parseExpression()
		}
		return stmt
	case TokenThrow:
		p.next()
		return &ThrowStatement{base: base{Pos: pos}, Value: p.parseExpression()}
	case TokenDo:
		p.next()
		return p.parseBody(true, `in "do" block`)
	case TokenDebug:
		p.next()
		if p.tok.IsSeparator() {
			return &DebugStatement{base: base{Pos: pos}, Body: p.parseBody(true, `in "debug" block`)}
		}
		return &DebugStatement{base: base{Pos: pos}, Body: p.parseStatement()}
	case TokenPass:
		p.next()
		return &PassStatement{base: base{Pos: pos}}
	}
	return p.parseExpressionStatement(pos)
}

func (p *Parser) parsePrint(pos Position) Stmt {
	stmt := &PrintStatement{base: base{Pos: pos}, Newline: true}
	if p.tok.IsSeparator() || p.endsBlock() {
		return stmt
	}
	stmt.Values = append(stmt.Values, p.parseExpression())
	for p.accept(TokenComma) {
		if p.tok.IsSeparator() || p.endsBlock() {
			stmt.Newline = false
			break
		}
		stmt.Values = append(stmt.Values, p.parseExpression())
	}
	return stmt
}

func (p *Parser) parseExpressionStatement(pos Position) Stmt {
	e := p.parseExpression()
	switch {
	case p.check(TokenAssign), p.tok.Type.IsCompoundAssign():
		op := p.tok.Type
		p.next()
		markAssigned(e)
		return &Assignment{base: base{Pos: pos}, Target: e, Value: p.parseExpression(), Op: op}
	}
	return &ExprStmt{base: base{Pos: pos}, Expr: e}
}

func (p *Parser) parseIdentifier(context string) *Variable {
	tok := p.expect(TokenIdentifier, context)
	return &Variable{exprBase: exprBase{base: base{Pos: tok.Pos}}, Name: tok.Spelling}
}

func (p *Parser) parseDeclaration(pos Position) Stmt {
	const context = "in variable declaration"
	decl := &Declaration{base: base{Pos: pos}}
	decl.Names = append(decl.Names, p.parseIdentifier(context))
	for p.accept(TokenComma) {
		decl.Names = append(decl.Names, p.parseIdentifier(context))
	}
	if p.accept(TokenAssign) {
		decl.Values = append(decl.Values, p.parseExpression())
		for p.accept(TokenComma) {
			decl.Values = append(decl.Values, p.parseExpression())
		}
		if len(decl.Values) != len(decl.Names) {
			p.fail(pos, fmt.Sprintf("invalid declaration: %d names but %d values", len(decl.Names), len(decl.Values)),
				"declare as many variables as there are values")
		}
	}
	return decl
}

func (p *Parser) parseIf(pos Position) Stmt {
	stmt := &IfStatement{base: base{Pos: pos}}
	branch := func(bpos Position, context string) {
		cond := p.parseExpression()
		p.expect(TokenThen, context)
		body := p.parseBlock(true, context, TokenEnd, TokenElsif, TokenElse)
		stmt.Branches = append(stmt.Branches, &IfBranch{base: base{Pos: bpos}, Cond: cond, Body: body})
	}
	branch(pos, `in "if" statement`)
	for p.check(TokenElsif) {
		bpos := p.tok.Pos
		p.next()
		branch(bpos, `in "elsif" condition`)
	}
	if p.accept(TokenElse) {
		stmt.Else = p.parseBlock(true, `in "else" block`, TokenEnd)
	}
	p.expect(TokenEnd, `at the end of "if" statement`)
	return stmt
}

func (p *Parser) parseFor(pos Position) Stmt {
	const context = `in "for" loop`
	stmt := &ForStatement{base: base{Pos: pos}}
	stmt.Var = p.parseIdentifier(context)
	p.expect(TokenAssign, context)
	stmt.Start = p.parseExpression()
	switch {
	case p.accept(TokenTo):
	case p.accept(TokenDownto):
		stmt.Down = true
	default:
		p.failf("", `expected "to" or "downto" %s, got %s`, context, describe(p.tok))
	}
	stmt.End = p.parseExpression()
	if p.accept(TokenStep) {
		stmt.Step = p.parseExpression()
	}
	p.expect(TokenDo, context)
	stmt.Body = p.parseBody(false, context)
	return stmt
}

func (p *Parser) parseForeach(pos Position) Stmt {
	const context = `in "foreach" loop`
	stmt := &ForeachStatement{base: base{Pos: pos}}
	refPos := p.tok.Pos
	firstRef := p.accept(TokenRef)
	first := p.parseIdentifier(context)
	if p.accept(TokenComma) {
		if firstRef {
			p.fail(refPos, "the key of a foreach loop cannot be taken by reference", `remove "ref" before the key`)
		}
		stmt.Key = first
		stmt.ByRef = p.accept(TokenRef)
		stmt.Value = p.parseIdentifier(context)
	} else {
		stmt.Value, stmt.ByRef = first, firstRef
	}
	p.expect(TokenIn, context)
	coll := p.parseExpression()
	// The iterator always holds the collection by reference.
	if r, ok := coll.(*ReferenceExpr); ok {
		coll = r.Expr
	}
	stmt.Collection = coll
	p.expect(TokenDo, context)
	stmt.Body = p.parseBody(false, context)
	return stmt
}

func (p *Parser) parseParameters(context string) []*Parameter {
	p.expect(TokenLParen, context)
	var params []*Parameter
	p.skipLines()
	if p.accept(TokenRParen) {
		return params
	}
	for {
		pos := p.tok.Pos
		param := &Parameter{base: base{Pos: pos}, ByRef: p.accept(TokenRef)}
		param.Name = p.parseIdentifier("in parameter list").Name
		if p.accept(TokenAs) {
			param.Type = p.parseExpression()
		}
		params = append(params, param)
		p.skipLines()
		if !p.accept(TokenComma) {
			break
		}
		p.skipLines()
	}
	p.expect(TokenRParen, "in parameter list")
	return params
}

func (p *Parser) parseFunctionDeclaration(pos Position, local bool) Stmt {
	const context = "in function declaration"
	name := p.parseIdentifier(context)
	def := &RoutineDef{exprBase: exprBase{base: base{Pos: pos}}, Name: name.Name, Local: local}
	def.Params = p.parseParameters(context)
	def.Body = p.parseBody(false, context)
	return def
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression() Expr {
	e := p.parseOr()
	if p.check(TokenIf) {
		pos := p.tok.Pos
		p.next()
		cond := p.parseExpression()
		p.expect(TokenElse, "in conditional expression")
		return &ConditionalExpr{exprBase: exprBase{base: base{Pos: pos}}, Cond: cond, Then: e, Else: p.parseExpression()}
	}
	return e
}

func (p *Parser) binary(op TokenType, left, right Expr) Expr {
	return &BinaryExpr{exprBase: exprBase{base: base{Pos: Position{Line: left.Line()}}}, Op: op, Left: left, Right: right}
}

func (p *Parser) parseOr() Expr {
	e := p.parseAnd()
	for p.accept(TokenOr) {
		p.skipLines()
		e = p.binary(TokenOr, e, p.parseAnd())
	}
	return e
}

func (p *Parser) parseAnd() Expr {
	e := p.parseNot()
	for p.accept(TokenAnd) {
		p.skipLines()
		e = p.binary(TokenAnd, e, p.parseNot())
	}
	return e
}

func (p *Parser) parseNot() Expr {
	if p.check(TokenNot) {
		pos := p.tok.Pos
		p.next()
		return &UnaryExpr{exprBase: exprBase{base: base{Pos: pos}}, Op: TokenNot, Expr: p.parseNot()}
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() Expr {
	e := p.parseAdditive()
	switch p.tok.Type {
	case TokenEqual, TokenNotEqual, TokenLess, TokenLessEqual, TokenGreater, TokenGreaterEqual, TokenCompare:
		op := p.tok.Type
		p.next()
		e = p.binary(op, e, p.parseAdditive())
	}
	return e
}

func (p *Parser) parseAdditive() Expr {
	e := p.parseMultiplicative()
	for {
		switch p.tok.Type {
		case TokenPlus, TokenMinus:
			op := p.tok.Type
			p.next()
			e = p.binary(op, e, p.parseMultiplicative())
		case TokenConcat:
			concat := &ConcatExpr{exprBase: exprBase{base: base{Pos: Position{Line: e.Line()}}}, Items: []Expr{e}}
			for p.accept(TokenConcat) {
				p.skipLines()
				concat.Items = append(concat.Items, p.parseMultiplicative())
			}
			e = concat
		default:
			return e
		}
	}
}

func (p *Parser) parseMultiplicative() Expr {
	e := p.parseSigned()
	for {
		switch p.tok.Type {
		case TokenStar, TokenSlash, TokenMod:
			op := p.tok.Type
			p.next()
			e = p.binary(op, e, p.parseSigned())
		default:
			return e
		}
	}
}

func (p *Parser) parseSigned() Expr {
	if p.check(TokenMinus) {
		pos := p.tok.Pos
		p.next()
		return &UnaryExpr{exprBase: exprBase{base: base{Pos: pos}}, Op: TokenMinus, Expr: p.parseSigned()}
	}
	return p.parseExponent()
}

func (p *Parser) parseExponent() Expr {
	e := p.parsePostfix()
	for p.accept(TokenPower) {
		e = p.binary(TokenPower, e, p.parsePostfix())
	}
	return e
}

func (p *Parser) parsePostfix() Expr {
	e := p.parseReference()
	for {
		pos := p.tok.Pos
		switch {
		case p.accept(TokenDot):
			name := p.parseIdentifier("after \".\"")
			markCompound(e)
			e = &FieldExpr{exprBase: exprBase{base: base{Pos: pos}}, Expr: e, Name: name.Name}
		case p.accept(TokenLBracket):
			idx := &IndexExpr{exprBase: exprBase{base: base{Pos: pos}}, Expr: e}
			idx.Indexes = p.parseExpressionList(TokenRBracket, "in index")
			if len(idx.Indexes) == 0 {
				p.fail(pos, "missing index", "put an index between the brackets")
			}
			markCompound(e)
			e = idx
		case p.accept(TokenLParen):
			call := &CallExpr{exprBase: exprBase{base: base{Pos: pos}}, Callee: e}
			call.Args = p.parseExpressionList(TokenRParen, "in argument list")
			e = call
		default:
			return e
		}
	}
}

// parseExpressionList parses comma-separated expressions up to and
// including the closing token. Line breaks are allowed between items.
func (p *Parser) parseExpressionList(closing TokenType, context string) []Expr {
	var list []Expr
	p.skipLines()
	if p.accept(closing) {
		return list
	}
	for {
		list = append(list, p.parseExpression())
		p.skipLines()
		if !p.accept(TokenComma) {
			break
		}
		p.skipLines()
	}
	p.expect(closing, context)
	return list
}

func (p *Parser) parseReference() Expr {
	pos := p.tok.Pos
	switch {
	case p.accept(TokenRef):
		return &ReferenceExpr{exprBase: exprBase{base: base{Pos: pos}}, Expr: p.parseExpression()}
	case p.accept(TokenFunction):
		const context = "in function expression"
		def := &RoutineDef{exprBase: exprBase{base: base{Pos: pos}}, Local: true, IsExpr: true}
		def.Params = p.parseParameters(context)
		def.Body = p.parseBody(false, context)
		return def
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() Expr {
	tok := p.tok
	eb := exprBase{base: base{Pos: tok.Pos}}
	switch tok.Type {
	case TokenIdentifier:
		p.next()
		return &Variable{exprBase: eb, Name: tok.Spelling}
	case TokenString:
		p.next()
		return &StringLiteral{exprBase: eb, Value: tok.Spelling}
	case TokenInteger:
		p.next()
		n, err := strconv.ParseInt(tok.Spelling, 10, 64)
		if err != nil {
			p.fail(tok.Pos, "invalid integer", "")
		}
		return &IntegerLiteral{exprBase: eb, Value: n}
	case TokenFloat:
		p.next()
		f, err := strconv.ParseFloat(tok.Spelling, 64)
		if err != nil {
			p.fail(tok.Pos, "invalid float number", "")
		}
		return &FloatLiteral{exprBase: eb, Value: f}
	case TokenTrue, TokenFalse, TokenNull, TokenNan:
		p.next()
		return &ConstantLiteral{exprBase: eb, Value: tok.Type}
	case TokenLBracket:
		p.next()
		return &ListLiteral{exprBase: eb, Items: p.parseExpressionList(TokenRBracket, "in list literal")}
	case TokenAt:
		p.next()
		p.expect(TokenLBracket, "in array literal")
		return p.parseArray(eb)
	case TokenLBrace:
		p.next()
		return p.parseTableOrSet(eb)
	case TokenLParen:
		p.next()
		p.skipLines()
		e := p.parseExpression()
		p.skipLines()
		p.expect(TokenRParen, "in parenthesized expression")
		return e
	}
	p.failf("", "invalid expression: unexpected %s", describe(tok))
	return nil
}

func (p *Parser) parseArray(eb exprBase) Expr {
	arr := &ArrayLiteral{exprBase: eb}
	p.skipLines()
	if p.accept(TokenRBracket) {
		return arr
	}
	rows, cols, width := 1, 0, -1
	for {
		arr.Items = append(arr.Items, p.parseExpression())
		cols++
		p.skipLines()
		switch {
		case p.accept(TokenComma):
		case p.check(TokenSemicolon):
			if width != -1 && cols != width {
				p.failf("every row must have the same number of columns", "inconsistent number of columns in array literal")
			}
			p.next()
			width, cols = cols, 0
			rows++
		default:
			if width != -1 && cols != width {
				p.failf("every row must have the same number of columns", "inconsistent number of columns in array literal")
			}
			p.expect(TokenRBracket, "in array literal")
			arr.Rows, arr.Cols = rows, cols
			return arr
		}
		p.skipLines()
	}
}

// parseTableOrSet parses what follows "{". A colon after the first
// element makes a table; "{}" is an empty table.
func (p *Parser) parseTableOrSet(eb exprBase) Expr {
	p.skipLines()
	if p.accept(TokenRBrace) {
		return &TableLiteral{exprBase: eb}
	}
	first := p.parseExpression()
	if p.accept(TokenColon) {
		const context = "in table literal"
		table := &TableLiteral{exprBase: eb, Keys: []Expr{first}, Values: []Expr{p.parseExpression()}}
		p.skipLines()
		for p.accept(TokenComma) {
			p.skipLines()
			table.Keys = append(table.Keys, p.parseExpression())
			p.expect(TokenColon, context)
			table.Values = append(table.Values, p.parseExpression())
			p.skipLines()
		}
		p.expect(TokenRBrace, context)
		return table
	}
	set := &SetLiteral{exprBase: eb, Items: []Expr{first}}
	p.skipLines()
	for p.accept(TokenComma) {
		p.skipLines()
		set.Items = append(set.Items, p.parseExpression())
		p.skipLines()
	}
	p.expect(TokenRBrace, "in set literal")
	return set
}
