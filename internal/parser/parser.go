// Package parser implements a recursive-descent parser for the
// MiniJava-like source language, turning a lexer.Token stream into an
// internal/ast.Program.
//
// Like the lexer, the parser's output contract (a typed AST, or an error
// naming the offending token) is what the rest of the pipeline depends on;
// its internals are not part of the specified design (spec.md §1).
//
// The parser keeps a two-token lookahead window (curTok/peekTok) and
// accumulates syntax errors rather than panicking on the first one, in the
// same style as the teacher's Smalltalk-dialect parser.
package parser

import (
	"fmt"
	"strconv"

	"github.com/d-netto/minivm/internal/ast"
	"github.com/d-netto/minivm/internal/lexer"
)

// Parser holds the token lookahead window and the MiniJava-grammar
// recursive-descent parsing functions.
type Parser struct {
	l       *lexer.Lexer
	curTok  lexer.Token
	peekTok lexer.Token
	errors  []string
}

// New creates a Parser over src, primed with the first two tokens.
func New(src string) *Parser {
	p := &Parser{l: lexer.New(src)}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curTok = p.peekTok
	p.peekTok = p.l.NextToken()
}

func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *Parser) expect(tt lexer.TokenType) bool {
	if p.curTok.Type != tt {
		p.errorf("line %d: expected %s, got %s %q", p.curTok.Line, tt, p.curTok.Type, p.curTok.Literal)
		return false
	}
	p.nextToken()
	return true
}

// Parse parses a complete program: the main class followed by zero or more
// declared classes.
func (p *Parser) Parse() (*ast.Program, error) {
	prog := &ast.Program{}
	prog.Main = p.parseMainClass()
	for p.curTok.Type != lexer.TokenEOF {
		prog.Classes = append(prog.Classes, p.parseClassDecl())
	}
	if len(p.errors) > 0 {
		return nil, fmt.Errorf("%d syntax error(s): %v", len(p.errors), p.errors)
	}
	return prog, nil
}

func (p *Parser) parseMainClass() *ast.MainClass {
	mc := &ast.MainClass{}
	p.expect(lexer.TokenClass)
	mc.Name = p.curTok.Literal
	p.expect(lexer.TokenIdentifier)
	p.expect(lexer.TokenLBrace)
	p.expect(lexer.TokenPublic)
	p.expect(lexer.TokenStatic)
	p.expect(lexer.TokenVoid)
	p.expect(lexer.TokenMain)
	p.expect(lexer.TokenLParen)
	p.expect(lexer.TokenString)
	p.expect(lexer.TokenLBracket)
	p.expect(lexer.TokenRBracket)
	mc.Arg = p.curTok.Literal
	p.expect(lexer.TokenIdentifier)
	p.expect(lexer.TokenRParen)
	mc.Body = p.parseStatement()
	p.expect(lexer.TokenRBrace)
	return mc
}

func (p *Parser) parseClassDecl() *ast.ClassDecl {
	cd := &ast.ClassDecl{}
	p.expect(lexer.TokenClass)
	cd.Name = p.curTok.Literal
	p.expect(lexer.TokenIdentifier)
	if p.curTok.Type == lexer.TokenExtends {
		p.nextToken()
		cd.Parent = p.curTok.Literal
		p.expect(lexer.TokenIdentifier)
	}
	p.expect(lexer.TokenLBrace)
	for p.curTok.Type != lexer.TokenPublic && p.curTok.Type != lexer.TokenRBrace {
		cd.Fields = append(cd.Fields, p.parseVarDecl())
	}
	for p.curTok.Type == lexer.TokenPublic {
		cd.Methods = append(cd.Methods, p.parseMethodDecl())
	}
	p.expect(lexer.TokenRBrace)
	return cd
}

func (p *Parser) parseVarDecl() ast.VarDecl {
	t := p.parseType()
	name := p.curTok.Literal
	p.expect(lexer.TokenIdentifier)
	p.expect(lexer.TokenSemicolon)
	return ast.VarDecl{Name: name, Type: t}
}

func (p *Parser) parseType() ast.Type {
	switch p.curTok.Type {
	case lexer.TokenInt:
		p.nextToken()
		if p.curTok.Type == lexer.TokenLBracket {
			p.nextToken()
			p.expect(lexer.TokenRBracket)
			return ast.IntArrayType()
		}
		return ast.IntType()
	case lexer.TokenBoolean:
		p.nextToken()
		return ast.BoolType()
	case lexer.TokenIdentifier:
		name := p.curTok.Literal
		p.nextToken()
		return ast.ClassType(name)
	default:
		p.errorf("line %d: expected a type, got %s %q", p.curTok.Line, p.curTok.Type, p.curTok.Literal)
		p.nextToken()
		return ast.Type{}
	}
}

func (p *Parser) parseMethodDecl() *ast.MethodDecl {
	md := &ast.MethodDecl{}
	p.expect(lexer.TokenPublic)
	md.ReturnType = p.parseType()
	md.Name = p.curTok.Literal
	p.expect(lexer.TokenIdentifier)
	p.expect(lexer.TokenLParen)
	for p.curTok.Type != lexer.TokenRParen {
		t := p.parseType()
		name := p.curTok.Literal
		p.expect(lexer.TokenIdentifier)
		md.Params = append(md.Params, ast.VarDecl{Name: name, Type: t})
		if p.curTok.Type == lexer.TokenComma {
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRParen)
	p.expect(lexer.TokenLBrace)
	for p.startsLocalDecl() {
		md.Locals = append(md.Locals, p.parseVarDecl())
	}
	for !p.atReturn() && p.curTok.Type != lexer.TokenRBrace {
		md.Body = append(md.Body, p.parseStatement())
	}
	p.expect(lexer.TokenReturn)
	md.Return = p.parseExpr()
	p.expect(lexer.TokenSemicolon)
	p.expect(lexer.TokenRBrace)
	return md
}

func (p *Parser) atReturn() bool { return p.curTok.Type == lexer.TokenReturn }

// startsLocalDecl disambiguates a local-variable declaration from an
// assignment statement, both of which may open with an identifier. `int`
// and `boolean` are unambiguous (no statement begins with either keyword,
// and int[]'s `[` would otherwise defeat a naive single-token-lookahead
// check); a leading class-name identifier is only a declaration when the
// following token is itself an identifier (the variable name) rather than
// `=` or `[` (an assignment).
func (p *Parser) startsLocalDecl() bool {
	switch p.curTok.Type {
	case lexer.TokenInt, lexer.TokenBoolean:
		return true
	case lexer.TokenIdentifier:
		return p.peekTok.Type == lexer.TokenIdentifier
	default:
		return false
	}
}

func (p *Parser) parseStatement() ast.Stmt {
	switch p.curTok.Type {
	case lexer.TokenLBrace:
		return p.parseBlock()
	case lexer.TokenIf:
		return p.parseIf()
	case lexer.TokenWhile:
		return p.parseWhile()
	case lexer.TokenSystem:
		return p.parsePrint()
	case lexer.TokenIdentifier:
		return p.parseAssignOrArrayAssign()
	default:
		p.errorf("line %d: expected a statement, got %s %q", p.curTok.Line, p.curTok.Type, p.curTok.Literal)
		p.nextToken()
		return &ast.BlockStmt{}
	}
}

func (p *Parser) parseBlock() *ast.BlockStmt {
	p.expect(lexer.TokenLBrace)
	b := &ast.BlockStmt{}
	for p.curTok.Type != lexer.TokenRBrace && p.curTok.Type != lexer.TokenEOF {
		b.Stmts = append(b.Stmts, p.parseStatement())
	}
	p.expect(lexer.TokenRBrace)
	return b
}

func (p *Parser) parseIf() *ast.IfStmt {
	p.expect(lexer.TokenIf)
	p.expect(lexer.TokenLParen)
	cond := p.parseExpr()
	p.expect(lexer.TokenRParen)
	then := p.parseStatement()
	p.expect(lexer.TokenElse)
	els := p.parseStatement()
	return &ast.IfStmt{Cond: cond, Then: then, Else: els}
}

func (p *Parser) parseWhile() *ast.WhileStmt {
	p.expect(lexer.TokenWhile)
	p.expect(lexer.TokenLParen)
	cond := p.parseExpr()
	p.expect(lexer.TokenRParen)
	body := p.parseStatement()
	return &ast.WhileStmt{Cond: cond, Body: body}
}

func (p *Parser) parsePrint() *ast.PrintStmt {
	p.expect(lexer.TokenSystem)
	p.expect(lexer.TokenDot)
	p.expect(lexer.TokenOut)
	p.expect(lexer.TokenDot)
	p.expect(lexer.TokenPrintln)
	p.expect(lexer.TokenLParen)
	v := p.parseExpr()
	p.expect(lexer.TokenRParen)
	p.expect(lexer.TokenSemicolon)
	return &ast.PrintStmt{Value: v}
}

func (p *Parser) parseAssignOrArrayAssign() ast.Stmt {
	name := p.curTok.Literal
	p.expect(lexer.TokenIdentifier)
	if p.curTok.Type == lexer.TokenLBracket {
		p.nextToken()
		idx := p.parseExpr()
		p.expect(lexer.TokenRBracket)
		p.expect(lexer.TokenAssign)
		val := p.parseExpr()
		p.expect(lexer.TokenSemicolon)
		return &ast.ArrayAssignStmt{Name: name, Index: idx, Value: val}
	}
	p.expect(lexer.TokenAssign)
	val := p.parseExpr()
	p.expect(lexer.TokenSemicolon)
	return &ast.AssignStmt{Name: name, Value: val}
}

// Expression grammar, tightest-binding last:
//
//	expr   := and
//	and    := rel ( "&&" rel )*
//	rel    := add ( "<" add )*
//	add    := mul ( ("+" | "-") mul )*
//	mul    := unary ( "*" unary )*
//	unary  := "!" unary | postfix
//	postfix:= primary ( ".length" | "[" expr "]" | "." id "(" args ")" )*
//	primary:= INT | "true" | "false" | "this" | id
//	        | "new" "int" "[" expr "]" | "new" id "(" ")" | "(" expr ")"
func (p *Parser) parseExpr() ast.Expr { return p.parseAnd() }

func (p *Parser) parseAnd() ast.Expr {
	left := p.parseRel()
	for p.curTok.Type == lexer.TokenAnd {
		p.nextToken()
		right := p.parseRel()
		left = &ast.BinaryExpr{Op: ast.And, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseRel() ast.Expr {
	left := p.parseAdd()
	for p.curTok.Type == lexer.TokenLess {
		p.nextToken()
		right := p.parseAdd()
		left = &ast.BinaryExpr{Op: ast.Lt, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAdd() ast.Expr {
	left := p.parseMul()
	for p.curTok.Type == lexer.TokenPlus || p.curTok.Type == lexer.TokenMinus {
		op := ast.Add
		if p.curTok.Type == lexer.TokenMinus {
			op = ast.Sub
		}
		p.nextToken()
		right := p.parseMul()
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMul() ast.Expr {
	left := p.parseUnary()
	for p.curTok.Type == lexer.TokenStar {
		p.nextToken()
		right := p.parseUnary()
		left = &ast.BinaryExpr{Op: ast.Mul, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	if p.curTok.Type == lexer.TokenNot {
		p.nextToken()
		return &ast.NotExpr{Value: p.parseUnary()}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	e := p.parsePrimary()
	for {
		switch p.curTok.Type {
		case lexer.TokenDot:
			p.nextToken()
			if p.curTok.Type == lexer.TokenLength {
				p.nextToken()
				e = &ast.ArrayLengthExpr{Array: e}
				continue
			}
			name := p.curTok.Literal
			p.expect(lexer.TokenIdentifier)
			p.expect(lexer.TokenLParen)
			var args []ast.Expr
			for p.curTok.Type != lexer.TokenRParen {
				args = append(args, p.parseExpr())
				if p.curTok.Type == lexer.TokenComma {
					p.nextToken()
				}
			}
			p.expect(lexer.TokenRParen)
			e = &ast.MethodCallExpr{Receiver: e, Method: name, Args: args}
		case lexer.TokenLBracket:
			p.nextToken()
			idx := p.parseExpr()
			p.expect(lexer.TokenRBracket)
			e = &ast.ArrayIndexExpr{Array: e, Index: idx}
		default:
			return e
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	switch p.curTok.Type {
	case lexer.TokenInteger:
		v, err := strconv.ParseInt(p.curTok.Literal, 10, 64)
		if err != nil {
			p.errorf("line %d: invalid integer literal %q", p.curTok.Line, p.curTok.Literal)
		}
		p.nextToken()
		return &ast.IntLiteral{Value: v}
	case lexer.TokenTrue:
		p.nextToken()
		return &ast.BoolLiteral{Value: true}
	case lexer.TokenFalse:
		p.nextToken()
		return &ast.BoolLiteral{Value: false}
	case lexer.TokenThis:
		p.nextToken()
		return &ast.ThisExpr{}
	case lexer.TokenIdentifier:
		name := p.curTok.Literal
		p.nextToken()
		return &ast.IdentExpr{Name: name}
	case lexer.TokenNew:
		p.nextToken()
		if p.curTok.Type == lexer.TokenInt {
			p.nextToken()
			p.expect(lexer.TokenLBracket)
			size := p.parseExpr()
			p.expect(lexer.TokenRBracket)
			return &ast.NewIntArrayExpr{Size: size}
		}
		name := p.curTok.Literal
		p.expect(lexer.TokenIdentifier)
		p.expect(lexer.TokenLParen)
		p.expect(lexer.TokenRParen)
		return &ast.NewObjectExpr{ClassName: name}
	case lexer.TokenLParen:
		p.nextToken()
		e := p.parseExpr()
		p.expect(lexer.TokenRParen)
		return e
	default:
		p.errorf("line %d: expected an expression, got %s %q", p.curTok.Line, p.curTok.Type, p.curTok.Literal)
		p.nextToken()
		return &ast.IntLiteral{Value: 0}
	}
}
