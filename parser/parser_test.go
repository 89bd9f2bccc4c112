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

package parser

import (
	"strings"
	"testing"

	"axc/ast"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected parse error for %q: %v", src, err)
	}
	return prog
}

func soleFunction(t *testing.T, prog *ast.Program) *ast.FunctionDef {
	t.Helper()
	if len(prog.Decls) != 1 {
		t.Fatalf("expected exactly one top-level decl, got %d", len(prog.Decls))
	}
	fn, ok := prog.Decls[0].(*ast.FunctionDef)
	if !ok {
		t.Fatalf("expected a FunctionDef, got %T", prog.Decls[0])
	}
	return fn
}

func soleReturnExpr(t *testing.T, fn *ast.FunctionDef) ast.Expr {
	t.Helper()
	if len(fn.Body.Items) != 1 {
		t.Fatalf("expected exactly one body item, got %d", len(fn.Body.Items))
	}
	ret, ok := fn.Body.Items[0].(*ast.ReturnStmt)
	if !ok {
		t.Fatalf("expected a ReturnStmt, got %T", fn.Body.Items[0])
	}
	return ret.Expr
}

func TestSimpleReturn(t *testing.T) {
	prog := mustParse(t, "int main(void) { return 2; }")
	fn := soleFunction(t, prog)
	if fn.Name != "main" || len(fn.Params) != 0 {
		t.Fatalf("got %+v", fn)
	}
	e := soleReturnExpr(t, fn)
	c, ok := e.(*ast.ConstantExpr)
	if !ok || c.Value != 2 {
		t.Fatalf("got %#v", e)
	}
}

func TestAdditiveLeftAssociative(t *testing.T) {
	// 1-2-3 must parse as (1-2)-3, not 1-(2-3).
	prog := mustParse(t, "int main(void) { return 1-2-3; }")
	e := soleReturnExpr(t, soleFunction(t, prog))
	outer, ok := e.(*ast.BinaryExpr)
	if !ok || outer.Op != ast.OpSub {
		t.Fatalf("got %#v", e)
	}
	inner, ok := outer.Left.(*ast.BinaryExpr)
	if !ok || inner.Op != ast.OpSub {
		t.Fatalf("left operand should be (1-2), got %#v", outer.Left)
	}
	rhs, ok := outer.Right.(*ast.ConstantExpr)
	if !ok || rhs.Value != 3 {
		t.Fatalf("right operand should be 3, got %#v", outer.Right)
	}
}

func TestOperatorPrecedence(t *testing.T) {
	// 2*3+4*5/6-7+8*9  ==  ((((2*3)+((4*5)/6))-7)+(8*9))
	prog := mustParse(t, "int main(void) { return 2*3+4*5/6-7+8*9; }")
	e := soleReturnExpr(t, soleFunction(t, prog))
	got := printExprForTest(e)
	want := "((((2 * 3) + ((4 * 5) / 6)) - 7) + (8 * 9))"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func printExprForTest(e ast.Expr) string {
	prog := &ast.Program{Decls: []ast.Decl{&ast.FunctionDef{
		Name: "f",
		Body: &ast.Compound{Items: []ast.BlockItem{&ast.ReturnStmt{Expr: e}}},
	}}}
	s := ast.Print(prog)
	// Extract the Return(...) payload.
	start := strings.Index(s, "Return(") + len("Return(")
	end := strings.LastIndex(s, ")")
	return s[start:end]
}

func TestAssignmentRightAssociative(t *testing.T) {
	prog := mustParse(t, "int main(void) { int a; int b; a = b = 3; return a; }")
	fn := soleFunction(t, prog)
	stmt := fn.Body.Items[2].(*ast.ExprStmt)
	assign, ok := stmt.Expr.(*ast.AssignExpr)
	if !ok || assign.Op != ast.OpAssign {
		t.Fatalf("got %#v", stmt.Expr)
	}
	rhs, ok := assign.RHS.(*ast.AssignExpr)
	if !ok {
		t.Fatalf("rhs should itself be an assignment, got %#v", assign.RHS)
	}
	if _, ok := rhs.RHS.(*ast.ConstantExpr); !ok {
		t.Fatalf("got %#v", rhs.RHS)
	}
}

func TestConditionalExpression(t *testing.T) {
	prog := mustParse(t, "int main(void) { return 1 ? 2 : 3 ? 4 : 5; }")
	e := soleReturnExpr(t, soleFunction(t, prog))
	cond, ok := e.(*ast.ConditionalExpr)
	if !ok {
		t.Fatalf("got %#v", e)
	}
	// else-branch is right-associative: "3 ? 4 : 5" nests in Else.
	if _, ok := cond.Else.(*ast.ConditionalExpr); !ok {
		t.Fatalf("expected nested conditional in else branch, got %#v", cond.Else)
	}
}

func TestCallExpression(t *testing.T) {
	prog := mustParse(t, "int f(int a, int b); int main(void) { return f(1, 2+3); }")
	fn := prog.Decls[1].(*ast.FunctionDef)
	e := soleReturnExpr(t, fn)
	call, ok := e.(*ast.CallExpr)
	if !ok || call.Name != "f" || len(call.Args) != 2 {
		t.Fatalf("got %#v", e)
	}
}

func TestCallOnNonIdentifierIsError(t *testing.T) {
	_, err := Parse(strings.NewReader("int main(void) { return (1+2)(3); }"))
	if err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLabeledStatement(t *testing.T) {
	prog := mustParse(t, "int main(void) { foo: return 1; }")
	fn := soleFunction(t, prog)
	lbl, ok := fn.Body.Items[0].(*ast.LabeledStmt)
	if !ok || lbl.Label != "foo" {
		t.Fatalf("got %#v", fn.Body.Items[0])
	}
	if _, ok := lbl.Stmt.(*ast.ReturnStmt); !ok {
		t.Fatalf("got %#v", lbl.Stmt)
	}
}

func TestGotoAndGoesUnaffectedByLabelLookalike(t *testing.T) {
	prog := mustParse(t, "int main(void) { goto foo; foo: return 1; }")
	fn := soleFunction(t, prog)
	if _, ok := fn.Body.Items[0].(*ast.GotoStmt); !ok {
		t.Fatalf("got %#v", fn.Body.Items[0])
	}
}

func TestForWithDeclInit(t *testing.T) {
	prog := mustParse(t, "int main(void) { int x = 0; for (int i = 0; i < 3; i = i + 1) { x = x + i; } return x; }")
	fn := soleFunction(t, prog)
	forStmt, ok := fn.Body.Items[1].(*ast.ForStmt)
	if !ok {
		t.Fatalf("got %#v", fn.Body.Items[1])
	}
	if forStmt.Init.Decl == nil || forStmt.Init.Decl.Name != "i" {
		t.Fatalf("got %#v", forStmt.Init)
	}
}

func TestFunctionDefinitionInForInitIsError(t *testing.T) {
	_, err := Parse(strings.NewReader("int main(void) { for (int f(void); ; ) {} return 0; } "))
	if err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestSwitchCaseDefault(t *testing.T) {
	prog := mustParse(t, `int main(void) {
		switch (1) {
			case 1: return 1;
			case 2: return 2;
			default: return 0;
		}
	}`)
	fn := soleFunction(t, prog)
	sw, ok := fn.Body.Items[0].(*ast.SwitchStmt)
	if !ok {
		t.Fatalf("got %#v", fn.Body.Items[0])
	}
	body, ok := sw.Body.(*ast.Compound)
	if !ok || len(body.Items) != 3 {
		t.Fatalf("got %#v", sw.Body)
	}
	first := body.Items[0].(*ast.CaseStmt)
	c, ok := first.Expr.(*ast.ConstantExpr)
	if !ok || c.Value != 1 {
		t.Fatalf("got %#v", first)
	}
	last := body.Items[2].(*ast.CaseStmt)
	if last.Expr != nil {
		t.Fatalf("expected default (nil expr), got %#v", last)
	}
}

func TestDeclarationAsFirstStmtOfCaseIsError(t *testing.T) {
	_, err := Parse(strings.NewReader(`int main(void) {
		switch (1) { case 1: int x = 1; return x; }
	}`))
	if err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestDuplicateStorageClassIsError(t *testing.T) {
	_, err := Parse(strings.NewReader("static static int x;"))
	if err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestEmptyArgumentIsError(t *testing.T) {
	_, err := Parse(strings.NewReader("int f(int a); int main(void) { return f(1,); }"))
	if err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestNestedUnaryOperators(t *testing.T) {
	prog := mustParse(t, "int main(void) { return -~!5; }")
	e := soleReturnExpr(t, soleFunction(t, prog))
	neg, ok := e.(*ast.UnaryExpr)
	if !ok || neg.Op != ast.OpNegate {
		t.Fatalf("got %#v", e)
	}
	comp, ok := neg.Operand.(*ast.UnaryExpr)
	if !ok || comp.Op != ast.OpComplement {
		t.Fatalf("got %#v", neg.Operand)
	}
	not, ok := comp.Operand.(*ast.UnaryExpr)
	if !ok || not.Op != ast.OpNot {
		t.Fatalf("got %#v", comp.Operand)
	}
}

func TestPostIncrementVsPreIncrement(t *testing.T) {
	prog := mustParse(t, "int main(void) { int x = 0; int y = 0; x++; ++y; return x+y; }")
	fn := soleFunction(t, prog)
	post := fn.Body.Items[2].(*ast.ExprStmt).Expr.(*ast.PostExpr)
	if post.Op != ast.OpPostIncrement {
		t.Fatalf("got %#v", post)
	}
	pre := fn.Body.Items[3].(*ast.ExprStmt).Expr.(*ast.UnaryExpr)
	if pre.Op != ast.OpPreIncrement {
		t.Fatalf("got %#v", pre)
	}
}
