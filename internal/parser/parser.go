package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xirelogy/go-laye/internal/ast"
	"github.com/xirelogy/go-laye/internal/lexer"
	"github.com/xirelogy/go-laye/internal/token"
)

// Error is a syntax error with its position.
type Error struct {
	Pos token.Position
	Msg string
}

func (e Error) String() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// Parser is a Pratt-style parser. Every parse method starts with curToken on
// the first token of its construct and returns with curToken on the last one.
type Parser struct {
	l          *lexer.Lexer
	curToken   token.Token
	peekToken  token.Token
	peekToken2 token.Token
	prevToken  token.Token
	errors     []Error
}

func New(l *lexer.Lexer) *Parser {
	p := &Parser{
		l:      l,
		errors: []Error{},
	}
	// Read three tokens, so curToken, peekToken and peekToken2 are set
	p.nextToken()
	p.nextToken()
	p.nextToken()
	return p
}

// Errors returns the syntax errors formatted as "line:col: message".
func (p *Parser) Errors() []string {
	out := make([]string, len(p.errors))
	for i, e := range p.errors {
		out[i] = e.String()
	}
	return out
}

// ErrorList returns the syntax errors with structured positions.
func (p *Parser) ErrorList() []Error {
	return p.errors
}

func (p *Parser) nextToken() {
	p.prevToken = p.curToken
	p.curToken = p.peekToken
	p.peekToken = p.peekToken2
	p.peekToken2 = p.l.NextToken()
}

func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}

	for p.curToken.Type != token.EOF {
		if p.curToken.Type == token.Semicolon {
			p.nextToken()
			continue
		}
		if item := p.parseItem(); item != nil {
			prog.Items = append(prog.Items, item)
		}
		p.finishItem()
	}
	if len(prog.Items) > 0 {
		prog.NodeSpan = token.Span{Start: prog.Items[0].Span().Start, End: prog.Items[len(prog.Items)-1].Span().End}
	}
	return prog
}

// finishItem moves past the last token of an item and its terminator.
func (p *Parser) finishItem() {
	endedWithBrace := p.curToken.Type == token.RBrace
	p.nextToken()
	switch {
	case p.curToken.Type == token.Semicolon:
		p.nextToken()
	case endedWithBrace, p.curToken.Type == token.RBrace, p.curToken.Type == token.EOF:
	default:
		p.errorf(p.curToken.Pos, "expected ';', got %s", describe(p.curToken))
		p.synchronize()
	}
}

func (p *Parser) synchronize() {
	for p.curToken.Type != token.EOF && p.curToken.Type != token.RBrace {
		if p.curToken.Type == token.Semicolon {
			p.nextToken()
			return
		}
		p.nextToken()
	}
}

func (p *Parser) parseItem() ast.Node {
	switch p.curToken.Type {
	case token.Var:
		return p.parseVarDef()
	case token.Extern:
		return p.parseExtern()
	case token.Return:
		return p.parseReturn()
	case token.Fn:
		if p.peekToken.Type == token.Ident {
			return p.parseFuncDef()
		}
		return p.parseExpression(lowest)
	default:
		return p.parseExpression(lowest)
	}
}

func (p *Parser) parseVarDef() ast.Node {
	def := &ast.VarDef{VarPos: p.curToken.Pos}
	if !p.expectPeek(token.Ident) {
		return nil
	}
	p.nextToken()
	def.Name = p.curToken.Literal
	def.NamePos = p.curToken.Pos
	end := p.curToken.Pos
	if p.peekToken.Type == token.Assign {
		p.nextToken() // move to '='
		p.nextToken() // move to initializer
		def.Value = p.parseExpression(lowest)
		if def.Value == nil {
			return nil
		}
		end = def.Value.Span().End
	}
	def.Sp = token.Span{Start: def.VarPos, End: end}
	return def
}

func (p *Parser) parseExtern() ast.Node {
	ext := &ast.Extern{ExternPos: p.curToken.Pos}
	if !p.expectPeek(token.Ident) {
		return nil
	}
	p.nextToken()
	ext.Name = p.curToken.Literal
	ext.Sp = token.Span{Start: ext.ExternPos, End: p.curToken.Pos}
	return ext
}

func (p *Parser) parseReturn() ast.Node {
	ret := &ast.Return{RetPos: p.curToken.Pos}
	end := ret.RetPos
	if !p.peekEndsExpression() {
		p.nextToken()
		ret.Value = p.parseExpression(lowest)
		if ret.Value == nil {
			return nil
		}
		end = ret.Value.Span().End
	}
	ret.Sp = token.Span{Start: ret.RetPos, End: end}
	return ret
}

func (p *Parser) parseFuncDef() ast.Node {
	def := &ast.FuncDef{}
	if !p.parseFunction(&def.Function, true) {
		return nil
	}
	return def
}

func (p *Parser) parseFuncExpr() ast.Node {
	expr := &ast.FuncExpr{}
	if !p.parseFunction(&expr.Function, false) {
		return nil
	}
	return expr
}

func (p *Parser) parseFunction(fn *ast.Function, named bool) bool {
	fn.FnPos = p.curToken.Pos
	if named {
		if !p.expectPeek(token.Ident) {
			return false
		}
		p.nextToken()
		fn.Name = p.curToken.Literal
		fn.NamePos = p.curToken.Pos
	}
	if !p.expectPeek(token.LParen) {
		return false
	}
	p.nextToken() // move to '('
	if !p.parseParamList(fn) {
		return false
	}
	p.nextToken() // move past ')'
	if p.curToken.Type == token.Return {
		fn.Body = p.parseReturn()
	} else {
		fn.Body = p.parseExpression(lowest)
	}
	if fn.Body == nil {
		return false
	}
	fn.Sp = token.Span{Start: fn.FnPos, End: fn.Body.Span().End}
	return true
}

func (p *Parser) parseParamList(fn *ast.Function) bool {
	if p.peekToken.Type == token.RParen {
		p.nextToken()
		return true
	}
	for {
		if !p.expectPeek(token.Ident) {
			return false
		}
		p.nextToken()
		param := ast.Param{Name: p.curToken.Literal, Pos: p.curToken.Pos}
		fn.Params = append(fn.Params, param)
		if p.peekToken.Type == token.Variadic {
			p.nextToken()
			if fn.Variadic {
				p.errorf(p.curToken.Pos, "only one variadic parameter is allowed")
			}
			fn.Variadic = true
			if p.peekToken.Type != token.RParen {
				p.errorf(p.curToken.Pos, "variadic parameter %s must be last", param.Name)
			}
		}
		if p.peekToken.Type == token.Comma {
			p.nextToken()
			continue
		}
		if !p.expectPeek(token.RParen) {
			return false
		}
		p.nextToken()
		return true
	}
}

func (p *Parser) parseExpression(precedence int) ast.Node {
	var left ast.Node

	switch p.curToken.Type {
	case token.Ident:
		left = &ast.Ident{Name: p.curToken.Literal, PosT: p.curToken.Pos, Sp: p.curSpan()}
	case token.Int:
		left = p.parseIntLiteral()
	case token.Float:
		left = p.parseFloatLiteral()
	case token.String:
		left = &ast.StringLit{Value: p.curToken.Literal, PosT: p.curToken.Pos, Sp: p.curSpan()}
	case token.True:
		left = &ast.BoolLit{Value: true, PosT: p.curToken.Pos, Sp: p.curSpan()}
	case token.False:
		left = &ast.BoolLit{Value: false, PosT: p.curToken.Pos, Sp: p.curSpan()}
	case token.Null:
		left = &ast.NullLit{PosT: p.curToken.Pos, Sp: p.curSpan()}
	case token.Fn:
		left = p.parseFuncExpr()
	case token.LParen:
		p.nextToken()
		left = p.parseExpression(lowest)
		if !p.expectPeek(token.RParen) {
			return nil
		}
		p.nextToken()
	case token.LBracket:
		left = p.parseListLiteral()
	case token.LBrace:
		left = p.parseBlock()
	case token.If:
		left = p.parseIf()
	case token.While:
		left = p.parseWhile()
	case token.Operator, token.Not:
		left = p.parsePrefixExpression()
	case token.TypeOf:
		left = p.parseTypeOf()
	default:
		p.errorf(p.curToken.Pos, "unexpected %s", describe(p.curToken))
		return nil
	}

	if left == nil {
		return nil
	}

	for precedence < p.peekPrecedence() {
		p.nextToken()
		switch p.curToken.Type {
		case token.Assign:
			left = p.parseAssignExpression(left)
		case token.Operator:
			if p.peekEndsExpression() {
				left = &ast.Postfix{
					Left:     left,
					Operator: p.curToken.Literal,
					PosT:     p.curToken.Pos,
					Sp:       token.Span{Start: left.Span().Start, End: p.curToken.Pos},
				}
				continue
			}
			left = p.parseInfixExpression(left)
		case token.And, token.Or, token.Xor:
			left = p.parseInfixExpression(left)
		case token.LParen:
			left = p.parseCallExpression(left)
		case token.LBracket:
			left = p.parseIndexExpression(left)
		default:
			return left
		}
		if left == nil {
			return nil
		}
	}

	return left
}

func (p *Parser) parseIntLiteral() ast.Node {
	lit := strings.ReplaceAll(p.curToken.Literal, "_", "")
	v, err := strconv.ParseInt(lit, 0, 64)
	if err != nil {
		p.errorf(p.curToken.Pos, "invalid integer literal %q", p.curToken.Literal)
		return nil
	}
	return &ast.IntLit{Value: v, PosT: p.curToken.Pos, Sp: p.curSpan()}
}

func (p *Parser) parseFloatLiteral() ast.Node {
	lit := strings.ReplaceAll(p.curToken.Literal, "_", "")
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		p.errorf(p.curToken.Pos, "invalid float literal %q", p.curToken.Literal)
		return nil
	}
	return &ast.FloatLit{Value: v, PosT: p.curToken.Pos, Sp: p.curSpan()}
}

func (p *Parser) parsePrefixExpression() ast.Node {
	expr := &ast.Prefix{
		Operator: p.curToken.Literal,
		PosT:     p.curToken.Pos,
	}
	p.nextToken()
	expr.Right = p.parseExpression(prefixPrecedence)
	if expr.Right == nil {
		return nil
	}
	expr.Sp = token.Span{Start: expr.PosT, End: expr.Right.Span().End}
	return expr
}

func (p *Parser) parseTypeOf() ast.Node {
	expr := &ast.TypeOf{PosT: p.curToken.Pos}
	p.nextToken()
	expr.Operand = p.parseExpression(prefixPrecedence)
	if expr.Operand == nil {
		return nil
	}
	expr.Sp = token.Span{Start: expr.PosT, End: expr.Operand.Span().End}
	return expr
}

func (p *Parser) parseInfixExpression(left ast.Node) ast.Node {
	expr := &ast.Infix{
		Left:     left,
		Operator: p.curToken.Literal,
		PosT:     p.curToken.Pos,
	}
	precedence := p.curPrecedence()
	if expr.Operator == "^" {
		// right associative
		precedence--
	}
	p.nextToken()
	expr.Right = p.parseExpression(precedence)
	if expr.Right == nil {
		return nil
	}
	expr.Sp = token.Span{Start: left.Span().Start, End: expr.Right.Span().End}
	return expr
}

func (p *Parser) parseAssignExpression(left ast.Node) ast.Node {
	switch left.Kind() {
	case ast.KindIdent, ast.KindIndex:
	default:
		p.errorf(p.curToken.Pos, "invalid assignment target %s", left.Kind())
		return nil
	}
	expr := &ast.Assign{
		Target: left,
		PosT:   p.curToken.Pos,
	}
	p.nextToken()
	expr.Value = p.parseExpression(assignPrecedence - 1)
	if expr.Value == nil {
		return nil
	}
	expr.Sp = token.Span{Start: left.Span().Start, End: expr.Value.Span().End}
	return expr
}

func (p *Parser) parseCallExpression(target ast.Node) ast.Node {
	expr := &ast.Call{
		Target: target,
		PosT:   p.curToken.Pos,
	}
	args, ok := p.parseExpressionList(token.RParen)
	if !ok {
		return nil
	}
	expr.Arguments = args
	expr.Sp = token.Span{Start: target.Span().Start, End: p.curToken.Pos}
	return expr
}

func (p *Parser) parseIndexExpression(left ast.Node) ast.Node {
	pos := p.curToken.Pos
	p.nextToken()
	index := p.parseExpression(lowest)
	if index == nil {
		return nil
	}
	if !p.expectPeek(token.RBracket) {
		return nil
	}
	p.nextToken()
	return &ast.Index{
		Target: left,
		Index:  index,
		PosT:   pos,
		Sp:     token.Span{Start: left.Span().Start, End: p.curToken.Pos},
	}
}

func (p *Parser) parseListLiteral() ast.Node {
	list := &ast.List{PosT: p.curToken.Pos}
	elems, ok := p.parseExpressionList(token.RBracket)
	if !ok {
		return nil
	}
	list.Elements = elems
	list.Sp = token.Span{Start: list.PosT, End: p.curToken.Pos}
	return list
}

// parseExpressionList parses a comma separated list. It starts on the opening
// delimiter and finishes on end.
func (p *Parser) parseExpressionList(end token.Type) ([]ast.Node, bool) {
	list := []ast.Node{}
	if p.peekToken.Type == end {
		p.nextToken()
		return list, true
	}
	for {
		p.nextToken()
		exp := p.parseExpression(lowest)
		if exp == nil {
			return list, false
		}
		list = append(list, exp)
		if p.peekToken.Type == token.Comma {
			p.nextToken()
			continue
		}
		if !p.expectPeek(end) {
			return list, false
		}
		p.nextToken()
		return list, true
	}
}

func (p *Parser) parseBlock() ast.Node {
	block := &ast.Block{LBrace: p.curToken.Pos}
	p.nextToken()
	for p.curToken.Type != token.RBrace && p.curToken.Type != token.EOF {
		if p.curToken.Type == token.Semicolon {
			p.nextToken()
			continue
		}
		if item := p.parseItem(); item != nil {
			block.Items = append(block.Items, item)
		}
		p.finishItem()
	}
	if p.curToken.Type != token.RBrace {
		p.errorf(p.curToken.Pos, "expected '}' to close block")
		return nil
	}
	block.BlockSpan = token.Span{Start: block.LBrace, End: p.curToken.Pos}
	return block
}

func (p *Parser) parseIf() ast.Node {
	stmt := &ast.If{IfPos: p.curToken.Pos}
	if !p.expectPeek(token.LParen) {
		return nil
	}
	p.nextToken() // move to '('
	p.nextToken() // move to condition
	stmt.Condition = p.parseExpression(lowest)
	if stmt.Condition == nil || !p.expectPeek(token.RParen) {
		return nil
	}
	p.nextToken() // move to ')'
	p.nextToken() // move to branch
	stmt.Then = p.parseItem()
	if stmt.Then == nil {
		return nil
	}
	end := stmt.Then.Span().End
	if p.peekToken.Type == token.Semicolon && p.peekToken2.Type == token.Else {
		p.nextToken()
	}
	if p.peekToken.Type == token.Else {
		p.nextToken() // move to 'el'
		p.nextToken() // move to branch
		stmt.Else = p.parseItem()
		if stmt.Else == nil {
			return nil
		}
		end = stmt.Else.Span().End
	}
	stmt.Sp = token.Span{Start: stmt.IfPos, End: end}
	return stmt
}

func (p *Parser) parseWhile() ast.Node {
	stmt := &ast.While{WhilePos: p.curToken.Pos}
	if !p.expectPeek(token.LParen) {
		return nil
	}
	p.nextToken()
	p.nextToken()
	stmt.Condition = p.parseExpression(lowest)
	if stmt.Condition == nil || !p.expectPeek(token.RParen) {
		return nil
	}
	p.nextToken()
	p.nextToken()
	stmt.Body = p.parseItem()
	if stmt.Body == nil {
		return nil
	}
	stmt.Sp = token.Span{Start: stmt.WhilePos, End: stmt.Body.Span().End}
	return stmt
}

func (p *Parser) curSpan() token.Span {
	return token.Span{Start: p.curToken.Pos, End: p.curToken.Pos}
}

func (p *Parser) expectPeek(t token.Type) bool {
	if p.peekToken.Type == t {
		return true
	}
	p.errorf(p.peekToken.Pos, "expected next token to be %s, got %s", t, describe(p.peekToken))
	return false
}

func (p *Parser) peekEndsExpression() bool {
	switch p.peekToken.Type {
	case token.Semicolon, token.RParen, token.RBracket, token.RBrace, token.Comma, token.Else, token.EOF:
		return true
	default:
		return false
	}
}

func (p *Parser) peekPrecedence() int {
	return precedenceOf(p.peekToken)
}

func (p *Parser) curPrecedence() int {
	return precedenceOf(p.curToken)
}

func (p *Parser) errorf(pos token.Position, format string, args ...any) {
	p.errors = append(p.errors, Error{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

func describe(tok token.Token) string {
	if tok.Literal == "" {
		return string(tok.Type)
	}
	return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
}

const (
	lowest = iota + 1
	assignPrecedence
	orPrecedence
	xorPrecedence
	andPrecedence
	operatorBase // operator precedences 1..8 are added to this
	prefixPrecedence = operatorBase + 9
	callPrecedence   = prefixPrecedence + 1
)

// defaultOperatorPrecedence applies to operators without an entry below,
// including user-spelled ones.
const defaultOperatorPrecedence = 7

var operatorPrecedences = map[string]int{
	"|":   1,
	"~":   2,
	"&":   3,
	"==":  4,
	"!=":  4,
	"<":   5,
	"<=":  5,
	">":   5,
	">=":  5,
	"<=>": 5,
	"<<":  6,
	">>":  6,
	"+":   7,
	"-":   7,
	"<>":  7,
	"*":   8,
	"/":   8,
	"//":  8,
	"%":   8,
	"^":   9,
}

func precedenceOf(tok token.Token) int {
	switch tok.Type {
	case token.Assign:
		return assignPrecedence
	case token.Or:
		return orPrecedence
	case token.Xor:
		return xorPrecedence
	case token.And:
		return andPrecedence
	case token.Operator:
		if prec, ok := operatorPrecedences[tok.Literal]; ok {
			return operatorBase + prec
		}
		return operatorBase + defaultOperatorPrecedence
	case token.LParen, token.LBracket:
		return callPrecedence
	default:
		return lowest
	}
}
