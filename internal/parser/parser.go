// Package parser builds the uC AST from the scanner's token stream with
// a hand-written recursive-descent parser.
package parser

import (
	"fmt"

	"ucc/internal/ast"
	"ucc/internal/lexer"
	"ucc/internal/uerr"
)

type Parser struct {
	tokens  []lexer.Token
	current int

	Errors []error
}

func NewParser(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse returns the program, or nil when the source had syntax errors
// (collected in p.Errors).
func Parse(source string) (*ast.Program, []error) {
	scanner := lexer.NewScanner(source)
	p := NewParser(scanner.ScanTokens())
	prog := p.ParseProgram()
	if len(p.Errors) > 0 {
		return nil, p.Errors
	}
	return prog, nil
}

func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}
	if len(p.tokens) > 0 {
		prog.Coordinate = p.coord(p.tokens[0])
	}
	for !p.isAtEnd() {
		decl := p.globalDeclaration()
		if decl == nil {
			// error recovery: skip to the next plausible top level token
			p.synchronize()
			continue
		}
		prog.GDecls = append(prog.GDecls, decl)
	}
	return prog
}

func (p *Parser) globalDeclaration() ast.Node {
	typeTok, ok := p.typeSpec()
	if !ok {
		p.errorAt(p.peek(), "expected type specifier")
		return nil
	}
	nameTok, ok := p.consume(lexer.TokenIdent, "expected identifier")
	if !ok {
		return nil
	}

	if p.check(lexer.TokenLParen) {
		return p.functionRest(typeTok, nameTok)
	}
	decls := p.declaratorListRest(typeTok, nameTok)
	if decls == nil {
		return nil
	}
	return &ast.GlobalDecl{Decls: decls}
}

// functionRest parses parameters and either a body (definition) or a
// semicolon (prototype), starting at the opening parenthesis.
func (p *Parser) functionRest(typeTok, nameTok lexer.Token) ast.Node {
	p.advance() // '('
	params := p.paramList()
	if _, ok := p.consume(lexer.TokenRParen, "expected ')' after parameters"); !ok {
		return nil
	}

	retType := p.typeNode(typeTok)
	name := p.identNode(nameTok)
	funcDecl := &ast.FuncDecl{
		Spec:   &ast.VarDecl{Primitive: retType, DeclName: name},
		Params: params,
	}
	funcDecl.Coordinate = p.coord(nameTok)
	decl := &ast.Decl{Name: name, Spec: funcDecl}
	decl.Coordinate = p.coord(nameTok)

	if p.match(lexer.TokenSemi) {
		return &ast.GlobalDecl{Decls: []*ast.Decl{decl}}
	}
	body := p.compound()
	if body == nil {
		return nil
	}
	def := &ast.FuncDef{Return: p.typeNode(typeTok), Decl: decl, Body: body}
	def.Coordinate = p.coord(typeTok)
	return def
}

func (p *Parser) paramList() *ast.ParamList {
	list := &ast.ParamList{}
	list.Coordinate = p.coord(p.peek())
	if p.check(lexer.TokenRParen) {
		return list
	}
	// void parameter list: f(void)
	if p.check(lexer.TokenVoid) && p.peekNext().Type == lexer.TokenRParen {
		p.advance()
		return list
	}
	for {
		typeTok, ok := p.typeSpec()
		if !ok {
			p.errorAt(p.peek(), "expected parameter type")
			return list
		}
		nameTok, ok := p.consume(lexer.TokenIdent, "expected parameter name")
		if !ok {
			return list
		}
		name := p.identNode(nameTok)
		varDecl := &ast.VarDecl{Primitive: p.typeNode(typeTok), DeclName: name}
		varDecl.Coordinate = p.coord(nameTok)
		decl := &ast.Decl{Name: name, Spec: varDecl}
		decl.Coordinate = p.coord(nameTok)
		list.Params = append(list.Params, decl)
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	return list
}

// declaratorListRest parses the remainder of a declaration whose type
// and first identifier were already consumed, through the semicolon.
func (p *Parser) declaratorListRest(typeTok, firstName lexer.Token) []*ast.Decl {
	var decls []*ast.Decl
	nameTok := firstName
	for {
		decl := p.declaratorRest(typeTok, nameTok)
		if decl == nil {
			return nil
		}
		decls = append(decls, decl)
		if !p.match(lexer.TokenComma) {
			break
		}
		var ok bool
		nameTok, ok = p.consume(lexer.TokenIdent, "expected identifier")
		if !ok {
			return nil
		}
	}
	if _, ok := p.consume(lexer.TokenSemi, "expected ';' after declaration"); !ok {
		return nil
	}
	return decls
}

func (p *Parser) declaratorRest(typeTok, nameTok lexer.Token) *ast.Decl {
	name := p.identNode(nameTok)
	varDecl := &ast.VarDecl{Primitive: p.typeNode(typeTok), DeclName: name}
	varDecl.Coordinate = p.coord(nameTok)

	// array dimensions, outermost first
	var dims []ast.Node
	hasDims := false
	for p.match(lexer.TokenLBracket) {
		hasDims = true
		var dim ast.Node
		if !p.check(lexer.TokenRBracket) {
			dim = p.expression()
		}
		if _, ok := p.consume(lexer.TokenRBracket, "expected ']'"); !ok {
			return nil
		}
		dims = append(dims, dim)
	}

	var spec ast.Node = varDecl
	if hasDims {
		for i := len(dims) - 1; i >= 0; i-- {
			arr := &ast.ArrayDecl{Elem: spec, Dim: dims[i]}
			arr.Coordinate = p.coord(nameTok)
			spec = arr
		}
	}

	decl := &ast.Decl{Name: name, Spec: spec}
	decl.Coordinate = p.coord(nameTok)
	if p.match(lexer.TokenEqual) {
		decl.Init = p.initializer()
	}
	return decl
}

func (p *Parser) initializer() ast.Node {
	if p.check(lexer.TokenLBrace) {
		return p.initList()
	}
	return p.expression()
}

func (p *Parser) initList() ast.Node {
	braceTok := p.advance() // '{'
	list := &ast.InitList{}
	list.Coordinate = p.coord(braceTok)
	if !p.check(lexer.TokenRBrace) {
		for {
			list.Exprs = append(list.Exprs, p.initializer())
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRBrace, "expected '}' after initializer list")
	return list
}

// STATEMENTS

func (p *Parser) statement() ast.Node {
	switch p.peek().Type {
	case lexer.TokenLBrace:
		return p.compound()
	case lexer.TokenIf:
		return p.ifStatement()
	case lexer.TokenWhile:
		return p.whileStatement()
	case lexer.TokenFor:
		return p.forStatement()
	case lexer.TokenBreak:
		tok := p.advance()
		p.consume(lexer.TokenSemi, "expected ';' after break")
		b := &ast.Break{}
		b.Coordinate = p.coord(tok)
		return b
	case lexer.TokenAssert:
		return p.assertStatement()
	case lexer.TokenPrint:
		return p.printStatement()
	case lexer.TokenRead:
		return p.readStatement()
	case lexer.TokenReturn:
		return p.returnStatement()
	case lexer.TokenSemi:
		tok := p.advance()
		e := &ast.EmptyStatement{}
		e.Coordinate = p.coord(tok)
		return e
	default:
		expr := p.expression()
		p.consume(lexer.TokenSemi, "expected ';' after expression")
		return expr
	}
}

func (p *Parser) compound() *ast.Compound {
	braceTok, ok := p.consume(lexer.TokenLBrace, "expected '{'")
	if !ok {
		return nil
	}
	block := &ast.Compound{}
	block.Coordinate = p.coord(braceTok)
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		if p.isTypeSpec(p.peek().Type) {
			for _, d := range p.declaration() {
				block.Items = append(block.Items, d)
			}
			continue
		}
		stmt := p.statement()
		if stmt == nil {
			p.synchronize()
			continue
		}
		block.Items = append(block.Items, stmt)
	}
	p.consume(lexer.TokenRBrace, "expected '}'")
	return block
}

func (p *Parser) declaration() []*ast.Decl {
	typeTok, _ := p.typeSpec()
	nameTok, ok := p.consume(lexer.TokenIdent, "expected identifier")
	if !ok {
		return nil
	}
	return p.declaratorListRest(typeTok, nameTok)
}

func (p *Parser) ifStatement() ast.Node {
	tok := p.advance() // 'if'
	p.consume(lexer.TokenLParen, "expected '(' after if")
	cond := p.expression()
	p.consume(lexer.TokenRParen, "expected ')' after condition")
	stmt := &ast.If{Cond: cond, IfTrue: p.statement()}
	stmt.Coordinate = p.coord(tok)
	if p.match(lexer.TokenElse) {
		stmt.IfFalse = p.statement()
	}
	return stmt
}

func (p *Parser) whileStatement() ast.Node {
	tok := p.advance() // 'while'
	p.consume(lexer.TokenLParen, "expected '(' after while")
	cond := p.expression()
	p.consume(lexer.TokenRParen, "expected ')' after condition")
	stmt := &ast.While{Cond: cond, Body: p.statement()}
	stmt.Coordinate = p.coord(tok)
	return stmt
}

func (p *Parser) forStatement() ast.Node {
	tok := p.advance() // 'for'
	p.consume(lexer.TokenLParen, "expected '(' after for")

	stmt := &ast.For{}
	stmt.Coordinate = p.coord(tok)

	if p.match(lexer.TokenSemi) {
		// no initializer
	} else if p.isTypeSpec(p.peek().Type) {
		decls := p.declaration()
		list := &ast.DeclList{Decls: decls}
		list.Coordinate = p.coord(tok)
		stmt.Init = list
	} else {
		stmt.Init = p.expression()
		p.consume(lexer.TokenSemi, "expected ';' after for initializer")
	}

	if !p.check(lexer.TokenSemi) {
		stmt.Cond = p.expression()
	}
	p.consume(lexer.TokenSemi, "expected ';' after for condition")

	if !p.check(lexer.TokenRParen) {
		stmt.Next = p.expression()
	}
	p.consume(lexer.TokenRParen, "expected ')' after for clauses")

	stmt.Body = p.statement()
	return stmt
}

func (p *Parser) assertStatement() ast.Node {
	tok := p.advance() // 'assert'
	stmt := &ast.Assert{Expr: p.expression()}
	stmt.Coordinate = p.coord(tok)
	p.consume(lexer.TokenSemi, "expected ';' after assert")
	return stmt
}

func (p *Parser) printStatement() ast.Node {
	tok := p.advance() // 'print'
	p.consume(lexer.TokenLParen, "expected '(' after print")
	stmt := &ast.Print{}
	stmt.Coordinate = p.coord(tok)
	if !p.check(lexer.TokenRParen) {
		stmt.Expr = p.expressionList()
	}
	p.consume(lexer.TokenRParen, "expected ')' after print arguments")
	p.consume(lexer.TokenSemi, "expected ';' after print")
	return stmt
}

func (p *Parser) readStatement() ast.Node {
	tok := p.advance() // 'read'
	p.consume(lexer.TokenLParen, "expected '(' after read")
	stmt := &ast.Read{}
	stmt.Coordinate = p.coord(tok)
	if !p.check(lexer.TokenRParen) {
		stmt.Names = p.expressionList()
	}
	p.consume(lexer.TokenRParen, "expected ')' after read arguments")
	p.consume(lexer.TokenSemi, "expected ';' after read")
	return stmt
}

func (p *Parser) returnStatement() ast.Node {
	tok := p.advance() // 'return'
	stmt := &ast.Return{}
	stmt.Coordinate = p.coord(tok)
	if !p.check(lexer.TokenSemi) {
		stmt.Expr = p.expression()
	}
	p.consume(lexer.TokenSemi, "expected ';' after return")
	return stmt
}

// EXPRESSIONS

// expressionList parses one or more comma-separated expressions; a single
// expression is returned bare, without an ExprList wrapper.
func (p *Parser) expressionList() ast.Node {
	first := p.expression()
	if !p.check(lexer.TokenComma) {
		return first
	}
	list := &ast.ExprList{Exprs: []ast.Node{first}}
	if c, ok := first.(ast.Expr); ok {
		list.Coordinate = c.Coord()
	}
	for p.match(lexer.TokenComma) {
		list.Exprs = append(list.Exprs, p.expression())
	}
	return list
}

func (p *Parser) expression() ast.Node {
	return p.assignment()
}

func (p *Parser) assignment() ast.Node {
	expr := p.logicalOr()
	if p.check(lexer.TokenEqual) {
		opTok := p.advance()
		switch expr.(type) {
		case *ast.ID, *ast.ArrayRef:
		default:
			p.errorAt(opTok, "invalid assignment target")
		}
		assign := &ast.Assignment{Op: opTok.Lexeme, LValue: expr, RValue: p.assignment()}
		assign.Coordinate = p.coord(opTok)
		return assign
	}
	return expr
}

func (p *Parser) logicalOr() ast.Node {
	expr := p.logicalAnd()
	for p.check(lexer.TokenOrOr) {
		opTok := p.advance()
		expr = p.binary(expr, opTok, p.logicalAnd())
	}
	return expr
}

func (p *Parser) logicalAnd() ast.Node {
	expr := p.equality()
	for p.check(lexer.TokenAndAnd) {
		opTok := p.advance()
		expr = p.binary(expr, opTok, p.equality())
	}
	return expr
}

func (p *Parser) equality() ast.Node {
	expr := p.relational()
	for p.check(lexer.TokenEqualEq) || p.check(lexer.TokenNotEqual) {
		opTok := p.advance()
		expr = p.binary(expr, opTok, p.relational())
	}
	return expr
}

func (p *Parser) relational() ast.Node {
	expr := p.additive()
	for p.check(lexer.TokenLT) || p.check(lexer.TokenGT) || p.check(lexer.TokenLE) || p.check(lexer.TokenGE) {
		opTok := p.advance()
		expr = p.binary(expr, opTok, p.additive())
	}
	return expr
}

func (p *Parser) additive() ast.Node {
	expr := p.term()
	for p.check(lexer.TokenPlus) || p.check(lexer.TokenMinus) {
		opTok := p.advance()
		expr = p.binary(expr, opTok, p.term())
	}
	return expr
}

func (p *Parser) term() ast.Node {
	expr := p.unary()
	for p.check(lexer.TokenStar) || p.check(lexer.TokenSlash) || p.check(lexer.TokenPercent) {
		opTok := p.advance()
		expr = p.binary(expr, opTok, p.unary())
	}
	return expr
}

func (p *Parser) binary(left ast.Node, opTok lexer.Token, right ast.Node) ast.Node {
	op := &ast.BinaryOp{Op: opTok.Lexeme, Left: left, Right: right}
	op.Coordinate = p.coord(opTok)
	return op
}

func (p *Parser) unary() ast.Node {
	if p.check(lexer.TokenBang) || p.check(lexer.TokenMinus) || p.check(lexer.TokenPlus) {
		opTok := p.advance()
		op := &ast.UnaryOp{Op: opTok.Lexeme, Expr: p.unary()}
		op.Coordinate = p.coord(opTok)
		return op
	}
	return p.postfix()
}

func (p *Parser) postfix() ast.Node {
	expr := p.primary()
	for {
		switch {
		case p.check(lexer.TokenLParen):
			callTok := p.advance()
			id, ok := expr.(*ast.ID)
			if !ok {
				p.errorAt(callTok, "called object is not a function name")
				return expr
			}
			call := &ast.FuncCall{Name: id}
			call.Coordinate = id.Coord()
			if !p.check(lexer.TokenRParen) {
				call.Args = p.expressionList()
			}
			p.consume(lexer.TokenRParen, "expected ')' after arguments")
			expr = call
		case p.check(lexer.TokenLBracket):
			brackTok := p.advance()
			ref := &ast.ArrayRef{Name: expr, Subscript: p.expression()}
			ref.Coordinate = p.coord(brackTok)
			p.consume(lexer.TokenRBracket, "expected ']' after subscript")
			expr = ref
		default:
			return expr
		}
	}
}

func (p *Parser) primary() ast.Node {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenIntConst:
		p.advance()
		return p.constant("int", tok)
	case lexer.TokenCharConst:
		p.advance()
		return p.constant("char", tok)
	case lexer.TokenStringLit:
		p.advance()
		return p.constant("string", tok)
	case lexer.TokenTrue, lexer.TokenFalse:
		p.advance()
		return p.constant("bool", tok)
	case lexer.TokenIdent:
		p.advance()
		return p.identNode(tok)
	case lexer.TokenLParen:
		p.advance()
		expr := p.expression()
		p.consume(lexer.TokenRParen, "expected ')' after expression")
		return expr
	case lexer.TokenError:
		p.advance()
		p.errorAt(tok, tok.Lexeme)
		return p.poison(tok)
	default:
		p.advance()
		p.errorAt(tok, fmt.Sprintf("unexpected token %q", tok.Lexeme))
		return p.poison(tok)
	}
}

// poison is a placeholder constant so parsing can continue after an error.
func (p *Parser) poison(tok lexer.Token) ast.Node {
	return p.constant("int", lexer.Token{Type: lexer.TokenIntConst, Lexeme: "0", Line: tok.Line, Column: tok.Column})
}

// HELPERS

func (p *Parser) constant(ctype string, tok lexer.Token) *ast.Constant {
	c := &ast.Constant{CType: ctype, Value: tok.Lexeme}
	c.Coordinate = p.coord(tok)
	return c
}

func (p *Parser) identNode(tok lexer.Token) *ast.ID {
	id := &ast.ID{Name: tok.Lexeme}
	id.Coordinate = p.coord(tok)
	return id
}

func (p *Parser) typeNode(tok lexer.Token) *ast.Type {
	t := &ast.Type{Name: tok.Lexeme}
	t.Coordinate = p.coord(tok)
	return t
}

func (p *Parser) coord(tok lexer.Token) ast.Coord {
	return ast.At(tok.Line, tok.Column)
}

func (p *Parser) isTypeSpec(t lexer.TokenType) bool {
	switch t {
	case lexer.TokenInt, lexer.TokenChar, lexer.TokenString, lexer.TokenBool, lexer.TokenVoid:
		return true
	}
	return false
}

func (p *Parser) typeSpec() (lexer.Token, bool) {
	if p.isTypeSpec(p.peek().Type) {
		return p.advance(), true
	}
	return p.peek(), false
}

func (p *Parser) match(t lexer.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) consume(t lexer.TokenType, message string) (lexer.Token, bool) {
	if p.check(t) {
		return p.advance(), true
	}
	p.errorAt(p.peek(), message)
	return p.peek(), false
}

func (p *Parser) check(t lexer.TokenType) bool {
	return p.peek().Type == t
}

func (p *Parser) peek() lexer.Token {
	return p.tokens[p.current]
}

func (p *Parser) peekNext() lexer.Token {
	if p.current+1 >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.current+1]
}

func (p *Parser) advance() lexer.Token {
	tok := p.tokens[p.current]
	if !p.isAtEnd() {
		p.current++
	}
	return tok
}

func (p *Parser) isAtEnd() bool {
	return p.tokens[p.current].Type == lexer.TokenEOF
}

func (p *Parser) errorAt(tok lexer.Token, message string) {
	coord := ast.At(tok.Line, tok.Column)
	p.Errors = append(p.Errors, uerr.New(uerr.ParseError, message, coord.String()))
}

// synchronize skips tokens until a statement boundary so one syntax
// error does not cascade.
func (p *Parser) synchronize() {
	for !p.isAtEnd() {
		if p.advance().Type == lexer.TokenSemi {
			return
		}
		switch p.peek().Type {
		case lexer.TokenIf, lexer.TokenWhile, lexer.TokenFor, lexer.TokenReturn,
			lexer.TokenInt, lexer.TokenChar, lexer.TokenString, lexer.TokenBool, lexer.TokenVoid,
			lexer.TokenRBrace:
			return
		}
	}
}
