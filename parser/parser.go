// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package parser is a recursive-descent parser for declarations and
// statements, with a Pratt (precedence-climbing) expression parser (§4.2).
package parser

import (
	"io"
	"strconv"

	"axc/ast"
	"axc/errs"
	"axc/lexer"
	"axc/token"
)

type Parser struct {
	lex *lexer.Lexer
	cur token.Token
}

// Parse reads a full translation unit from r and returns its AST.
func Parse(r io.Reader) (*ast.Program, error) {
	p := &Parser{lex: lexer.New(r)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseProgram()
}

func (p *Parser) advance() error {
	t, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

// peekNext looks one token past p.cur without consuming it.
func (p *Parser) peekNext() (token.Token, error) {
	return p.lex.Peek(1)
}

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if p.cur.Kind != k {
		return token.Token{}, errs.Parsef(p.cur.Loc, "expected %s, got %s", k, p.cur)
	}
	t := p.cur
	if err := p.advance(); err != nil {
		return token.Token{}, err
	}
	return t, nil
}

func (p *Parser) accept(k token.Kind) (bool, error) {
	if p.cur.Kind != k {
		return false, nil
	}
	return true, p.advance()
}

// -----------------------------------------------------------------------
// Precedence table for the expression climber.

const (
	precAssign = iota + 1
	precConditional
	precLogOr
	precLogAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precComparison
	precShift
	precAdditive
	precMultiplicative
)

var binaryOps = map[token.Kind]struct {
	prec int
	op   ast.BinaryOp
}{
	token.OROR:    {precLogOr, ast.OpLogOr},
	token.ANDAND:  {precLogAnd, ast.OpLogAnd},
	token.PIPE:    {precBitOr, ast.OpBitOr},
	token.CARET:   {precBitXor, ast.OpBitXor},
	token.AMP:     {precBitAnd, ast.OpBitAnd},
	token.EQ:      {precEquality, ast.OpEqual},
	token.NE:      {precEquality, ast.OpNotEqual},
	token.LESS:    {precComparison, ast.OpLess},
	token.LE:      {precComparison, ast.OpLessEqual},
	token.GREATER: {precComparison, ast.OpGreater},
	token.GE:      {precComparison, ast.OpGreaterEqual},
	token.SHL:     {precShift, ast.OpShl},
	token.SHR:     {precShift, ast.OpShr},
	token.PLUS:    {precAdditive, ast.OpAdd},
	token.MINUS:   {precAdditive, ast.OpSub},
	token.STAR:    {precMultiplicative, ast.OpMul},
	token.SLASH:   {precMultiplicative, ast.OpDiv},
	token.PERCENT: {precMultiplicative, ast.OpMod},
}

var assignOps = map[token.Kind]ast.AssignOp{
	token.ASSIGN:     ast.OpAssign,
	token.PLUS_EQ:    ast.OpAddAssign,
	token.MINUS_EQ:   ast.OpSubAssign,
	token.STAR_EQ:    ast.OpMulAssign,
	token.SLASH_EQ:   ast.OpDivAssign,
	token.PERCENT_EQ: ast.OpModAssign,
	token.AMP_EQ:     ast.OpAndAssign,
	token.PIPE_EQ:    ast.OpOrAssign,
	token.CARET_EQ:   ast.OpXorAssign,
	token.SHL_EQ:     ast.OpShlAssign,
	token.SHR_EQ:     ast.OpShrAssign,
}

// -----------------------------------------------------------------------
// Program & declarations

func (p *Parser) parseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	for p.cur.Kind != token.EOF {
		d, err := p.parseDeclaration()
		if err != nil {
			return nil, err
		}
		prog.Decls = append(prog.Decls, d)
	}
	return prog, nil
}

func isDeclStart(k token.Kind) bool {
	switch k {
	case token.KW_INT, token.KW_LONG, token.KW_STATIC, token.KW_EXTERN:
		return true
	}
	return false
}

// parseSpecifiers consumes the "(storage | type)+" prefix of a declaration.
func (p *Parser) parseSpecifiers() (ast.StorageClass, ast.Type, error) {
	storage := ast.StorageNone
	typ := ast.TypeInt
	sawType := false
	sawStorage := false
	for {
		switch p.cur.Kind {
		case token.KW_STATIC:
			if sawStorage {
				return 0, 0, errs.Parsef(p.cur.Loc, "storage class specified twice")
			}
			sawStorage = true
			storage = ast.StorageStatic
			if err := p.advance(); err != nil {
				return 0, 0, err
			}
		case token.KW_EXTERN:
			if sawStorage {
				return 0, 0, errs.Parsef(p.cur.Loc, "storage class specified twice")
			}
			sawStorage = true
			storage = ast.StorageExtern
			if err := p.advance(); err != nil {
				return 0, 0, err
			}
		case token.KW_INT:
			if sawType {
				return 0, 0, errs.Parsef(p.cur.Loc, "type specified twice")
			}
			sawType = true
			typ = ast.TypeInt
			if err := p.advance(); err != nil {
				return 0, 0, err
			}
		case token.KW_LONG:
			if sawType {
				return 0, 0, errs.Parsef(p.cur.Loc, "type specified twice")
			}
			sawType = true
			typ = ast.TypeLong
			if err := p.advance(); err != nil {
				return 0, 0, err
			}
		default:
			if !sawType {
				return 0, 0, errs.Parsef(p.cur.Loc, "expected a type specifier, got %s", p.cur)
			}
			return storage, typ, nil
		}
	}
}

func (p *Parser) parseDeclaration() (ast.Decl, error) {
	loc := p.cur.Loc
	storage, typ, err := p.parseSpecifiers()
	if err != nil {
		return nil, err
	}
	nameTok, err := p.expect(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if p.cur.Kind == token.LPAREN {
		return p.parseFunctionRest(nameTok.Lexeme, storage, typ, loc)
	}
	return p.parseVariableRest(nameTok.Lexeme, storage, typ, loc)
}

func (p *Parser) parseFunctionRest(name string, storage ast.StorageClass, ret ast.Type, loc token.Loc) (*ast.FunctionDef, error) {
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var params []ast.Param
	switch {
	case p.cur.Kind == token.KW_VOID:
		if err := p.advance(); err != nil {
			return nil, err
		}
	case p.cur.Kind != token.RPAREN:
		for {
			_, ptype, err := p.parseSpecifiers()
			if err != nil {
				return nil, err
			}
			pname, err := p.expect(token.IDENTIFIER)
			if err != nil {
				return nil, err
			}
			params = append(params, ast.Param{Name: pname.Lexeme, Type: ptype})
			ok, err := p.accept(token.COMMA)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
		}
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	var body *ast.Compound
	if p.cur.Kind == token.SEMI {
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else {
		c, err := p.parseCompound()
		if err != nil {
			return nil, err
		}
		body = c
	}
	return &ast.FunctionDef{Name: name, Params: params, ReturnType: ret, Storage: storage, Body: body, Loc_: loc}, nil
}

func (p *Parser) parseVariableRest(name string, storage ast.StorageClass, typ ast.Type, loc token.Loc) (*ast.VariableDef, error) {
	var init ast.Expr
	ok, err := p.accept(token.ASSIGN)
	if err != nil {
		return nil, err
	}
	if ok {
		init, err = p.parseExpr(precAssign)
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	return &ast.VariableDef{Name: name, Type: typ, Storage: storage, Init: init, Loc_: loc}, nil
}

// -----------------------------------------------------------------------
// Statements

func (p *Parser) parseCompound() (*ast.Compound, error) {
	loc := p.cur.Loc
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	c := &ast.Compound{Loc_: loc}
	for p.cur.Kind != token.RBRACE {
		if p.cur.Kind == token.EOF {
			return nil, errs.Parsef(p.cur.Loc, "unexpected end of file, expected }")
		}
		var item ast.BlockItem
		var err error
		if isDeclStart(p.cur.Kind) {
			item, err = p.parseDeclaration()
		} else {
			item, err = p.parseStatement()
		}
		if err != nil {
			return nil, err
		}
		c.Items = append(c.Items, item)
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Parser) parseStatement() (ast.Stmt, error) {
	loc := p.cur.Loc

	if p.cur.Kind == token.IDENTIFIER {
		nxt, err := p.peekNext()
		if err != nil {
			return nil, err
		}
		if nxt.Kind == token.COLON {
			label := p.cur.Lexeme
			if err := p.advance(); err != nil { // consume IDENTIFIER
				return nil, err
			}
			if err := p.advance(); err != nil { // consume COLON
				return nil, err
			}
			inner, err := p.parseStatement()
			if err != nil {
				return nil, err
			}
			return &ast.LabeledStmt{Label: label, Stmt: inner, Loc_: loc}, nil
		}
	}

	switch p.cur.Kind {
	case token.KW_RETURN:
		return p.parseReturn(loc)
	case token.KW_IF:
		return p.parseIf(loc)
	case token.KW_GOTO:
		return p.parseGoto(loc)
	case token.LBRACE:
		return p.parseCompound()
	case token.SEMI:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.NullStmt{Loc_: loc}, nil
	case token.KW_BREAK:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.SEMI); err != nil {
			return nil, err
		}
		return &ast.BreakStmt{Loc_: loc}, nil
	case token.KW_CONTINUE:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.SEMI); err != nil {
			return nil, err
		}
		return &ast.ContinueStmt{Loc_: loc}, nil
	case token.KW_WHILE:
		return p.parseWhile(loc)
	case token.KW_DO:
		return p.parseDoWhile(loc)
	case token.KW_FOR:
		return p.parseFor(loc)
	case token.KW_SWITCH:
		return p.parseSwitch(loc)
	case token.KW_CASE:
		return p.parseCase(loc)
	case token.KW_DEFAULT:
		return p.parseDefault(loc)
	default:
		e, err := p.parseExpr(precAssign)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.SEMI); err != nil {
			return nil, err
		}
		return &ast.ExprStmt{Expr: e, Loc_: loc}, nil
	}
}

func (p *Parser) parseReturn(loc token.Loc) (ast.Stmt, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	var e ast.Expr
	if p.cur.Kind != token.SEMI {
		var err error
		e, err = p.parseExpr(precAssign)
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	return &ast.ReturnStmt{Expr: e, Loc_: loc}, nil
}

func (p *Parser) parseIf(loc token.Loc) (ast.Stmt, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr(precAssign)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	var els ast.Stmt
	ok, err := p.accept(token.KW_ELSE)
	if err != nil {
		return nil, err
	}
	if ok {
		els, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
	}
	return &ast.IfStmt{Cond: cond, Then: then, Else: els, Loc_: loc}, nil
}

func (p *Parser) parseGoto(loc token.Loc) (ast.Stmt, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	name, err := p.expect(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	return &ast.GotoStmt{Label: name.Lexeme, Loc_: loc}, nil
}

func (p *Parser) parseWhile(loc token.Loc) (ast.Stmt, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr(precAssign)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ast.WhileStmt{Cond: cond, Body: body, Loc_: loc}, nil
}

func (p *Parser) parseDoWhile(loc token.Loc) (ast.Stmt, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.KW_WHILE); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr(precAssign)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	return &ast.DoWhileStmt{Body: body, Cond: cond, Loc_: loc}, nil
}

// parseForInit parses the init-clause of a for-header. A function
// definition there is a parse error; a variable definition is permitted.
func (p *Parser) parseForInit() (ast.ForInit, error) {
	if p.cur.Kind == token.SEMI {
		return ast.ForInit{}, p.advance()
	}
	if isDeclStart(p.cur.Kind) {
		loc := p.cur.Loc
		storage, typ, err := p.parseSpecifiers()
		if err != nil {
			return ast.ForInit{}, err
		}
		name, err := p.expect(token.IDENTIFIER)
		if err != nil {
			return ast.ForInit{}, err
		}
		if p.cur.Kind == token.LPAREN {
			return ast.ForInit{}, errs.Parsef(loc, "function definition not allowed in for-init")
		}
		vd, err := p.parseVariableRest(name.Lexeme, storage, typ, loc)
		if err != nil {
			return ast.ForInit{}, err
		}
		return ast.ForInit{Decl: vd}, nil
	}
	e, err := p.parseExpr(precAssign)
	if err != nil {
		return ast.ForInit{}, err
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return ast.ForInit{}, err
	}
	return ast.ForInit{Expr: e}, nil
}

func (p *Parser) parseFor(loc token.Loc) (ast.Stmt, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	init, err := p.parseForInit()
	if err != nil {
		return nil, err
	}
	var cond ast.Expr
	if p.cur.Kind != token.SEMI {
		cond, err = p.parseExpr(precAssign)
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.SEMI); err != nil {
		return nil, err
	}
	var post ast.Expr
	if p.cur.Kind != token.RPAREN {
		post, err = p.parseExpr(precAssign)
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ast.ForStmt{Init: init, Cond: cond, Post: post, Body: body, Loc_: loc}, nil
}

func (p *Parser) parseSwitch(loc token.Loc) (ast.Stmt, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr(precAssign)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ast.SwitchStmt{Cond: cond, Body: body, Loc_: loc}, nil
}

func (p *Parser) parseCase(loc token.Loc) (ast.Stmt, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	val, err := p.parseExpr(precAssign)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}
	if isDeclStart(p.cur.Kind) {
		return nil, errs.Parsef(p.cur.Loc, "a declaration may not be the first statement of a case")
	}
	inner, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	// Whether val is actually a constant expression is for the semantic
	// analyser to decide, once identifiers are resolvable.
	return &ast.CaseStmt{Expr: val, Stmt: inner, Loc_: loc}, nil
}

func (p *Parser) parseDefault(loc token.Loc) (ast.Stmt, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}
	if isDeclStart(p.cur.Kind) {
		return nil, errs.Parsef(p.cur.Loc, "a declaration may not be the first statement of a default")
	}
	inner, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ast.CaseStmt{Expr: nil, Stmt: inner, Loc_: loc}, nil
}

// -----------------------------------------------------------------------
// Expressions

func (p *Parser) parseExpr(minPrec int) (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		loc := p.cur.Loc
		if op, ok := assignOps[p.cur.Kind]; ok && precAssign >= minPrec {
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parseExpr(precAssign)
			if err != nil {
				return nil, err
			}
			left = &ast.AssignExpr{Op: op, LHS: left, RHS: right, Loc_: loc}
			continue
		}
		if p.cur.Kind == token.QUESTION && precConditional >= minPrec {
			if err := p.advance(); err != nil {
				return nil, err
			}
			then, err := p.parseExpr(precAssign)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.COLON); err != nil {
				return nil, err
			}
			els, err := p.parseExpr(precConditional)
			if err != nil {
				return nil, err
			}
			left = &ast.ConditionalExpr{Cond: left, Then: then, Else: els, Loc_: loc}
			continue
		}
		if info, ok := binaryOps[p.cur.Kind]; ok && info.prec >= minPrec {
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parseExpr(info.prec + 1)
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Op: info.op, Left: left, Right: right, Loc_: loc}
			continue
		}
		return left, nil
	}
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	loc := p.cur.Loc
	switch p.cur.Kind {
	case token.MINUS:
		return p.parsePrefix(loc, ast.OpNegate)
	case token.TILDE:
		return p.parsePrefix(loc, ast.OpComplement)
	case token.BANG:
		return p.parsePrefix(loc, ast.OpNot)
	case token.PLUSPLUS:
		return p.parsePrefix(loc, ast.OpPreIncrement)
	case token.MINUSMINUS:
		return p.parsePrefix(loc, ast.OpPreDecrement)
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePrefix(loc token.Loc, op ast.UnaryOp) (ast.Expr, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &ast.UnaryExpr{Op: op, Operand: operand, Loc_: loc}, nil
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		loc := p.cur.Loc
		switch p.cur.Kind {
		case token.PLUSPLUS:
			if err := p.advance(); err != nil {
				return nil, err
			}
			e = &ast.PostExpr{Op: ast.OpPostIncrement, Operand: e, Loc_: loc}
		case token.MINUSMINUS:
			if err := p.advance(); err != nil {
				return nil, err
			}
			e = &ast.PostExpr{Op: ast.OpPostDecrement, Operand: e, Loc_: loc}
		case token.LPAREN:
			v, ok := e.(*ast.VarExpr)
			if !ok {
				return nil, errs.Parsef(loc, "called expression must be an identifier")
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
			e = &ast.CallExpr{Name: v.Name, Args: args, Loc_: loc}
		default:
			return e, nil
		}
	}
}

func (p *Parser) parseArgList() ([]ast.Expr, error) {
	var args []ast.Expr
	if p.cur.Kind == token.RPAREN {
		return args, nil
	}
	first, err := p.parseExpr(precAssign)
	if err != nil {
		return nil, err
	}
	args = append(args, first)
	for {
		ok, err := p.accept(token.COMMA)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if p.cur.Kind == token.RPAREN || p.cur.Kind == token.COMMA {
			return nil, errs.Parsef(p.cur.Loc, "empty argument in call")
		}
		a, err := p.parseExpr(precAssign)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	loc := p.cur.Loc
	switch p.cur.Kind {
	case token.CONSTANT:
		lex := p.cur.Lexeme
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := strconv.ParseInt(lex, 10, 64)
		if err != nil {
			return nil, errs.Parsef(loc, "malformed integer constant %q", lex)
		}
		return &ast.ConstantExpr{Value: v, Loc_: loc}, nil
	case token.IDENTIFIER:
		name := p.cur.Lexeme
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.VarExpr{Name: name, Loc_: loc}, nil
	case token.LPAREN:
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr(precAssign)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, errs.Parsef(loc, "unexpected token %s in expression", p.cur)
	}
}
