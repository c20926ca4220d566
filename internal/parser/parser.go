// Package parser implements a recursive-descent parser producing a
// closed ast.Program: a cursor over a flat token slice, one method per
// grammar rule, one method per precedence level for binary expressions.
package parser

import (
	"github.com/axis-lang/axis/internal/ast"
	"github.com/axis-lang/axis/internal/diag"
	"github.com/axis-lang/axis/internal/token"
	"github.com/axis-lang/axis/internal/types"
)

type Parser struct {
	file string
	toks []token.Token
	pos  int
}

func New(file string, toks []token.Token) *Parser {
	return &Parser{file: file, toks: toks}
}

func Parse(file string, toks []token.Token) (*ast.Program, error) {
	return New(file, toks).parseProgram()
}

func (p *Parser) cur() token.Token  { return p.toks[p.pos] }
func (p *Parser) peekK() token.Kind { return p.toks[p.pos].Kind }

func (p *Parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) errf(format string, args ...interface{}) error {
	t := p.cur()
	return diag.New(diag.ParseError, p.file, t.Line, t.Col, format, args...)
}

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if p.peekK() != k {
		return token.Token{}, p.errf("expected %s, found %s", k, p.cur())
	}
	return p.advance(), nil
}

func (p *Parser) at(k token.Kind) bool { return p.peekK() == k }

// skipNewlines consumes stray NEWLINE tokens, used wherever the
// grammar allows empty lines between statements.
func (p *Parser) skipNewlines() {
	for p.at(token.NEWLINE) {
		p.advance()
	}
}

func (p *Parser) parseProgram() (*ast.Program, error) {
	t := p.cur()
	prog := &ast.Program{At: ast.NewAt(t.Line, t.Col)}

	p.skipNewlines()
	if p.at(token.MODE) {
		p.advance()
		name, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		prog.Mode = name.Lexeme
		if _, err := p.expect(token.NEWLINE); err != nil {
			return nil, err
		}
		p.skipNewlines()
	}

	for !p.at(token.EOF) {
		fn, err := p.parseFuncDecl()
		if err != nil {
			return nil, err
		}
		prog.Funcs = append(prog.Funcs, fn)
		p.skipNewlines()
	}
	return prog, nil
}

func (p *Parser) parseType() (types.Type, error) {
	name, err := p.expect(token.IDENT)
	if err != nil {
		return types.Type{}, err
	}
	t, ok := types.Lookup(name.Lexeme)
	if !ok {
		return types.Type{}, diag.New(diag.ParseError, p.file, name.Line, name.Col,
			"unknown type %q", name.Lexeme)
	}
	return t, nil
}

// func NAME ( params? ) -> TYPE : NEWLINE INDENT block DEDENT
func (p *Parser) parseFuncDecl() (*ast.FuncDecl, error) {
	start, err := p.expect(token.FUNC)
	if err != nil {
		return nil, err
	}
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var params []ast.Param
	for !p.at(token.RPAREN) {
		pname, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		ptyp, err := p.parseType()
		if err != nil {
			return nil, err
		}
		params = append(params, ast.Param{Name: pname.Lexeme, Type: ptyp})
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	if len(params) > 6 {
		return nil, diag.New(diag.ArityError, p.file, start.Line, start.Col,
			"function %q has %d parameters; codegen supports at most 6", name.Lexeme, len(params))
	}
	if _, err := p.expect(token.ARROW); err != nil {
		return nil, err
	}
	ret, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.NEWLINE); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FuncDecl{
		At:         ast.NewAt(start.Line, start.Col),
		Name:       name.Lexeme,
		Params:     params,
		ReturnType: ret,
		Body:       body,
	}, nil
}

func (p *Parser) parseBlock() (*ast.Block, error) {
	start, err := p.expect(token.INDENT)
	if err != nil {
		return nil, err
	}
	blk := &ast.Block{At: ast.NewAt(start.Line, start.Col)}
	for !p.at(token.DEDENT) && !p.at(token.EOF) {
		p.skipNewlines()
		if p.at(token.DEDENT) || p.at(token.EOF) {
			break
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		blk.Stmts = append(blk.Stmts, stmt)
		p.skipNewlines()
	}
	if _, err := p.expect(token.DEDENT); err != nil {
		return nil, err
	}
	return blk, nil
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	switch p.peekK() {
	case token.WHEN:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.LOOP, token.REPEAT:
		return p.parseLoop()
	case token.BREAK:
		t := p.advance()
		if err := p.endOfStmt(); err != nil {
			return nil, err
		}
		return &ast.Break{At: ast.NewAt(t.Line, t.Col)}, nil
	case token.CONTINUE:
		t := p.advance()
		if err := p.endOfStmt(); err != nil {
			return nil, err
		}
		return &ast.Continue{At: ast.NewAt(t.Line, t.Col)}, nil
	case token.GIVE:
		return p.parseReturn()
	case token.IDENT:
		return p.parseIdentLeadingStatement()
	default:
		return nil, p.errf("unexpected token %s at start of statement", p.cur())
	}
}

func (p *Parser) endOfStmt() error {
	_, err := p.expect(token.NEWLINE)
	return err
}

func (p *Parser) parseBlockHeader() error {
	if _, err := p.expect(token.COLON); err != nil {
		return err
	}
	_, err := p.expect(token.NEWLINE)
	return err
}

func (p *Parser) parseIf() (ast.Statement, error) {
	start, err := p.expect(token.WHEN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	if err := p.parseBlockHeader(); err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	node := &ast.If{At: ast.NewAt(start.Line, start.Col), Cond: cond, Then: then}
	save := p.pos
	p.skipNewlines()
	if p.at(token.ELSE) {
		p.advance()
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.NEWLINE); err != nil {
			return nil, err
		}
		elseBlk, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		node.Else = elseBlk
	} else {
		p.pos = save
	}
	return node, nil
}

func (p *Parser) parseWhile() (ast.Statement, error) {
	start, err := p.expect(token.WHILE)
	if err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.parseBlockHeader(); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.While{At: ast.NewAt(start.Line, start.Col), Cond: cond, Body: body}, nil
}

func (p *Parser) parseLoop() (ast.Statement, error) {
	start := p.advance() // LOOP or REPEAT
	if err := p.parseBlockHeader(); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.Loop{At: ast.NewAt(start.Line, start.Col), Body: body}, nil
}

func (p *Parser) parseReturn() (ast.Statement, error) {
	start, err := p.expect(token.GIVE)
	if err != nil {
		return nil, err
	}
	node := &ast.Return{At: ast.NewAt(start.Line, start.Col)}
	if !p.at(token.NEWLINE) {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node.Expr = expr
	}
	if err := p.endOfStmt(); err != nil {
		return nil, err
	}
	return node, nil
}

// parseIdentLeadingStatement disambiguates VarDecl, Assign, ReadTo, and
// ExprStmt (write/writeln/bare-call), all of which start with IDENT.
func (p *Parser) parseIdentLeadingStatement() (ast.Statement, error) {
	name := p.advance()

	switch name.Lexeme {
	case "write", "writeln":
		if _, err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		if err := p.endOfStmt(); err != nil {
			return nil, err
		}
		return &ast.Write{At: ast.NewAt(name.Line, name.Col), Expr: arg, Newline: name.Lexeme == "writeln"}, nil
	}

	switch p.peekK() {
	case token.COLON:
		// NAME : TYPE = expr
		p.advance()
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.ASSIGN); err != nil {
			return nil, err
		}
		init, err := p.parseReadOrExpr()
		if err != nil {
			return nil, err
		}
		if err := p.endOfStmt(); err != nil {
			return nil, err
		}
		if rd, ok := init.(*ast.ReadTo); ok {
			rd.Target = name.Lexeme
			rd.Type = typ
			rd.At = ast.NewAt(name.Line, name.Col)
			return rd, nil
		}
		return &ast.VarDecl{
			At:   ast.NewAt(name.Line, name.Col),
			Name: name.Lexeme,
			Type: typ,
			Init: init.(ast.Expression),
		}, nil
	case token.ASSIGN:
		p.advance()
		rhs, err := p.parseReadOrExpr()
		if err != nil {
			return nil, err
		}
		if err := p.endOfStmt(); err != nil {
			return nil, err
		}
		if rd, ok := rhs.(*ast.ReadTo); ok {
			rd.Target = name.Lexeme
			rd.At = ast.NewAt(name.Line, name.Col)
			return rd, nil
		}
		return &ast.Assign{At: ast.NewAt(name.Line, name.Col), Name: name.Lexeme, Expr: rhs.(ast.Expression)}, nil
	case token.LPAREN:
		call, err := p.parseCallTail(name)
		if err != nil {
			return nil, err
		}
		if err := p.endOfStmt(); err != nil {
			return nil, err
		}
		return &ast.ExprStmt{At: ast.NewAt(name.Line, name.Col), Call: call}, nil
	default:
		return nil, p.errf("expected ':', '=', or '(' after identifier %q, found %s", name.Lexeme, p.cur())
	}
}

// parseReadOrExpr recognizes the read()/readln()/readchar() builtins
// that only make sense on the right-hand side of a declaration or
// assignment, returning an *ast.ReadTo stand-in (Target unset) or a
// plain ast.Expression.
func (p *Parser) parseReadOrExpr() (ast.Node, error) {
	if p.at(token.IDENT) {
		name := p.cur()
		var kind ast.ReadKind
		switch name.Lexeme {
		case "read":
			kind = ast.ReadBytes
		case "readln":
			kind = ast.ReadLine
		case "readchar":
			kind = ast.ReadChar
		default:
			return p.parseExpr()
		}
		save := p.pos
		p.advance()
		if !p.at(token.LPAREN) {
			p.pos = save
			return p.parseExpr()
		}
		p.advance()
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return &ast.ReadTo{At: ast.NewAt(name.Line, name.Col), Kind: kind}, nil
	}
	return p.parseExpr()
}

// ---- Expressions, precedence low to high ----

func (p *Parser) parseExpr() (ast.Expression, error) {
	return p.parseComparison()
}

func (p *Parser) parseComparison() (ast.Expression, error) {
	lhs, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	op, ok := comparisonOp(p.peekK())
	if !ok {
		return lhs, nil
	}
	opTok := p.advance()
	rhs, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	if op2, ok := comparisonOp(p.peekK()); ok {
		_ = op2
		return nil, p.errf("comparison operators do not chain; wrap in parentheses")
	}
	return &ast.Binary{At: ast.NewAt(opTok.Line, opTok.Col), Op: op, L: lhs, R: rhs}, nil
}

func comparisonOp(k token.Kind) (ast.BinOp, bool) {
	switch k {
	case token.EQ:
		return ast.OpEq, true
	case token.NEQ:
		return ast.OpNeq, true
	case token.LT:
		return ast.OpLt, true
	case token.LE:
		return ast.OpLe, true
	case token.GT:
		return ast.OpGt, true
	case token.GE:
		return ast.OpGe, true
	}
	return 0, false
}

func (p *Parser) parseBitOr() (ast.Expression, error) {
	lhs, err := p.parseBitXor()
	if err != nil {
		return nil, err
	}
	for p.at(token.PIPE) {
		t := p.advance()
		rhs, err := p.parseBitXor()
		if err != nil {
			return nil, err
		}
		lhs = &ast.Binary{At: ast.NewAt(t.Line, t.Col), Op: ast.OpOr, L: lhs, R: rhs}
	}
	return lhs, nil
}

func (p *Parser) parseBitXor() (ast.Expression, error) {
	lhs, err := p.parseBitAnd()
	if err != nil {
		return nil, err
	}
	for p.at(token.CARET) {
		t := p.advance()
		rhs, err := p.parseBitAnd()
		if err != nil {
			return nil, err
		}
		lhs = &ast.Binary{At: ast.NewAt(t.Line, t.Col), Op: ast.OpXor, L: lhs, R: rhs}
	}
	return lhs, nil
}

func (p *Parser) parseBitAnd() (ast.Expression, error) {
	lhs, err := p.parseShift()
	if err != nil {
		return nil, err
	}
	for p.at(token.AMP) {
		t := p.advance()
		rhs, err := p.parseShift()
		if err != nil {
			return nil, err
		}
		lhs = &ast.Binary{At: ast.NewAt(t.Line, t.Col), Op: ast.OpAnd, L: lhs, R: rhs}
	}
	return lhs, nil
}

func (p *Parser) parseShift() (ast.Expression, error) {
	lhs, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.at(token.SHL) || p.at(token.SHR) {
		t := p.advance()
		op := ast.OpShl
		if t.Kind == token.SHR {
			op = ast.OpShr
		}
		rhs, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		lhs = &ast.Binary{At: ast.NewAt(t.Line, t.Col), Op: op, L: lhs, R: rhs}
	}
	return lhs, nil
}

func (p *Parser) parseAdditive() (ast.Expression, error) {
	lhs, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(token.PLUS) || p.at(token.MINUS) {
		t := p.advance()
		op := ast.OpAdd
		if t.Kind == token.MINUS {
			op = ast.OpSub
		}
		rhs, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		lhs = &ast.Binary{At: ast.NewAt(t.Line, t.Col), Op: op, L: lhs, R: rhs}
	}
	return lhs, nil
}

func (p *Parser) parseMultiplicative() (ast.Expression, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(token.STAR) || p.at(token.SLASH) || p.at(token.PERCENT) {
		t := p.advance()
		var op ast.BinOp
		switch t.Kind {
		case token.STAR:
			op = ast.OpMul
		case token.SLASH:
			op = ast.OpDiv
		case token.PERCENT:
			op = ast.OpMod
		}
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lhs = &ast.Binary{At: ast.NewAt(t.Line, t.Col), Op: op, L: lhs, R: rhs}
	}
	return lhs, nil
}

func (p *Parser) parseUnary() (ast.Expression, error) {
	if p.at(token.MINUS) || p.at(token.BANG) {
		t := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		op := ast.UnaryNeg
		if t.Kind == token.BANG {
			op = ast.UnaryNot
		}
		return &ast.Unary{At: ast.NewAt(t.Line, t.Col), Op: op, X: x}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (ast.Expression, error) {
	t := p.cur()
	switch t.Kind {
	case token.INT:
		p.advance()
		return &ast.IntLit{At: ast.NewAt(t.Line, t.Col), Value: t.IntVal}, nil
	case token.TRUE:
		p.advance()
		return &ast.BoolLit{At: ast.NewAt(t.Line, t.Col), Value: true}, nil
	case token.FALSE:
		p.advance()
		return &ast.BoolLit{At: ast.NewAt(t.Line, t.Col), Value: false}, nil
	case token.STR:
		p.advance()
		return &ast.StrLit{At: ast.NewAt(t.Line, t.Col), Value: t.StrVal}, nil
	case token.LPAREN:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return e, nil
	case token.IDENT:
		name := p.advance()
		if builtin, ok := builtinKind(name.Lexeme); ok && p.at(token.LPAREN) {
			p.advance()
			var args []ast.Expression
			for !p.at(token.RPAREN) {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.at(token.COMMA) {
					p.advance()
					continue
				}
				break
			}
			if _, err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
			return &ast.BuiltinCall{At: ast.NewAt(name.Line, name.Col), K: builtin, Args: args}, nil
		}
		if p.at(token.LPAREN) {
			return p.parseCallTail(name)
		}
		return &ast.Ident{At: ast.NewAt(name.Line, name.Col), Name: name.Lexeme}, nil
	default:
		return nil, p.errf("unexpected token %s in expression", t)
	}
}

func builtinKind(name string) (ast.BuiltinKind, bool) {
	switch name {
	case "read":
		return ast.BuiltinRead, true
	case "readln":
		return ast.BuiltinReadln, true
	case "readchar":
		return ast.BuiltinReadchar, true
	case "read_failed":
		return ast.BuiltinReadFailed, true
	}
	return 0, false
}

func (p *Parser) parseCallTail(name token.Token) (ast.Expression, error) {
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var args []ast.Expression
	for !p.at(token.RPAREN) {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.Call{At: ast.NewAt(name.Line, name.Col), Callee: name.Lexeme, Args: args}, nil
}
