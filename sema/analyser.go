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

package sema

import (
	"fmt"

	"axc/ast"
	"axc/errs"
	"axc/utils"
)

// switchCtx tracks the enclosing switch while walking its body, so case and
// default labels can be attached to it (§4.3 "Switches").
type switchCtx struct {
	astLabel   string
	seen       map[int64]bool
	hasDefault bool
	cases      []*ast.CaseStmt
	loopDepth  int // len(loopStack) when the switch was entered
}

// Analyser runs one pass over a Program, mutating it in place. Counters are
// owned by the Analyser instance (not global), so two Analyser runs in the
// same process never collide.
type Analyser struct {
	table *symtab
	temps map[string]int

	// per-function state, reset on each FunctionDef with a body.
	labels      map[string]bool
	loopStack   []string
	switchStack []*switchCtx
	loopCount   int
	switchCount int
}

func New() *Analyser {
	return &Analyser{table: newSymtab(), temps: make(map[string]int)}
}

// freshName mints "base.N", incrementing a per-base counter so repeated
// shadowing declarations of the same source name stay distinguishable.
func (a *Analyser) freshName(base string) string {
	a.temps[base]++
	return uniqueName(base, a.temps[base])
}

// Analyse resolves identifiers and validates control flow across prog,
// returning the first error encountered.
func Analyse(prog *ast.Program) error {
	return New().analyseProgram(prog)
}

func (a *Analyser) analyseProgram(prog *ast.Program) error {
	for _, d := range prog.Decls {
		switch d := d.(type) {
		case *ast.FunctionDef:
			if err := a.resolveFunctionDecl(d); err != nil {
				return err
			}
		case *ast.VariableDef:
			if err := a.resolveFileScopeVar(d); err != nil {
				return err
			}
		default:
			utils.ShouldNotReachHere()
		}
	}
	return nil
}

func (a *Analyser) resolveFunctionDecl(fd *ast.FunctionDef) error {
	if existing, ok := a.table.lookup(fd.Name); ok {
		if existing.Type != SymFunction {
			return errs.Semanticf(fd.Loc(), "%s redeclared as a different kind of symbol", fd.Name)
		}
		if existing.ParamCount != len(fd.Params) {
			return errs.Semanticf(fd.Loc(), "conflicting declarations of %s", fd.Name)
		}
		if fd.Body != nil {
			if existing.Defined {
				return errs.Semanticf(fd.Loc(), "redefinition of %s", fd.Name)
			}
			existing.Defined = true
		}
	} else {
		sym := &Symbol{UniqueName: fd.Name, Type: SymFunction, ParamCount: len(fd.Params), Defined: fd.Body != nil}
		if fd.Storage == ast.StorageStatic {
			sym.Linkage = LinkageInternal
		} else {
			sym.Linkage = LinkageExternal
		}
		a.table.declare(fd.Name, sym)
	}

	if fd.Body == nil {
		return nil
	}

	prev := a.table.enter()
	defer a.table.leave(prev)

	seenParam := make(map[string]bool, len(fd.Params))
	for i := range fd.Params {
		p := &fd.Params[i]
		if seenParam[p.Name] {
			return errs.Semanticf(fd.Loc(), "duplicate parameter name: %s", p.Name)
		}
		seenParam[p.Name] = true
		unique := a.freshName(p.Name)
		a.table.declare(p.Name, &Symbol{UniqueName: unique, Type: fromASTType(p.Type)})
		p.Name = unique
	}

	savedLabels, savedLoops, savedSwitches := a.labels, a.loopStack, a.switchStack
	savedLoopCount, savedSwitchCount := a.loopCount, a.switchCount
	a.labels = make(map[string]bool)
	a.loopStack = nil
	a.switchStack = nil
	a.loopCount = 0
	a.switchCount = 0

	if err := a.resolveStmt(fd.Body); err != nil {
		return err
	}
	for name, defined := range a.labels {
		if !defined {
			return errs.Semanticf(fd.Loc(), "Label %s not defined", name)
		}
	}

	a.labels, a.loopStack, a.switchStack = savedLabels, savedLoops, savedSwitches
	a.loopCount, a.switchCount = savedLoopCount, savedSwitchCount
	return nil
}

func (a *Analyser) resolveFileScopeVar(vd *ast.VariableDef) error {
	if existing, ok := a.table.lookup(vd.Name); ok && existing.Type == SymFunction {
		return errs.Semanticf(vd.Loc(), "%s redeclared as a different kind of symbol", vd.Name)
	}
	sym := &Symbol{UniqueName: vd.Name, Type: fromASTType(vd.Type), Linkage: LinkageExternal}
	if vd.Storage == ast.StorageStatic {
		sym.Linkage = LinkageInternal
	}
	a.table.declare(vd.Name, sym)
	if vd.Init != nil {
		if _, ok := EvalConstant(vd.Init); !ok {
			return errs.Semanticf(vd.Loc(), "file-scope initializer for %s must be a constant expression", vd.Name)
		}
	}
	return nil
}

// resolveStmt dispatches on the concrete Stmt type, mutating the tree.
func (a *Analyser) resolveStmt(s ast.Stmt) error {
	switch s := s.(type) {
	case *ast.Compound:
		prev := a.table.enter()
		defer a.table.leave(prev)
		for _, item := range s.Items {
			switch it := item.(type) {
			case *ast.VariableDef:
				if err := a.resolveLocalVarDecl(it); err != nil {
					return err
				}
			case *ast.FunctionDef:
				if it.Body != nil {
					return errs.Semanticf(it.Loc(), "nested function definitions are not allowed: %s", it.Name)
				}
				if err := a.resolveFunctionDecl(it); err != nil {
					return err
				}
			case ast.Stmt:
				if err := a.resolveStmt(it); err != nil {
					return err
				}
			default:
				utils.ShouldNotReachHere()
			}
		}
		return nil

	case *ast.ReturnStmt:
		if s.Expr != nil {
			return a.resolveExpr(s.Expr)
		}
		return nil

	case *ast.ExprStmt:
		return a.resolveExpr(s.Expr)

	case *ast.NullStmt:
		return nil

	case *ast.IfStmt:
		if err := a.resolveExpr(s.Cond); err != nil {
			return err
		}
		if err := a.resolveStmt(s.Then); err != nil {
			return err
		}
		if s.Else != nil {
			return a.resolveStmt(s.Else)
		}
		return nil

	case *ast.GotoStmt:
		if _, ok := a.labels[s.Label]; !ok {
			a.labels[s.Label] = false
		}
		return nil

	case *ast.LabeledStmt:
		if defined, ok := a.labels[s.Label]; ok && defined {
			return errs.Semanticf(s.Loc(), "Label %s already defined", s.Label)
		}
		a.labels[s.Label] = true
		return a.resolveStmt(s.Stmt)

	case *ast.BreakStmt:
		if len(a.loopStack) == 0 && len(a.switchStack) == 0 {
			return errs.Semanticf(s.Loc(), "break statement outside of loop or switch")
		}
		s.AstLabel = a.enclosingBreakTarget()
		return nil

	case *ast.ContinueStmt:
		if len(a.loopStack) == 0 {
			return errs.Semanticf(s.Loc(), "continue statement outside of loop")
		}
		s.AstLabel = a.loopStack[len(a.loopStack)-1]
		return nil

	case *ast.WhileStmt:
		if err := a.resolveExpr(s.Cond); err != nil {
			return err
		}
		s.AstLabel = a.pushLoop()
		defer a.popLoop()
		return a.resolveStmt(s.Body)

	case *ast.DoWhileStmt:
		s.AstLabel = a.pushLoop()
		defer a.popLoop()
		if err := a.resolveStmt(s.Body); err != nil {
			return err
		}
		return a.resolveExpr(s.Cond)

	case *ast.ForStmt:
		prev := a.table.enter()
		defer a.table.leave(prev)
		if s.Init.Decl != nil {
			if s.Init.Decl.Storage != ast.StorageNone {
				return errs.Semanticf(s.Init.Decl.Loc(), "for-loop initializer may not have a storage class")
			}
			if err := a.resolveLocalVarDecl(s.Init.Decl); err != nil {
				return err
			}
		} else if s.Init.Expr != nil {
			if err := a.resolveExpr(s.Init.Expr); err != nil {
				return err
			}
		}
		if s.Cond != nil {
			if err := a.resolveExpr(s.Cond); err != nil {
				return err
			}
		}
		if s.Post != nil {
			if err := a.resolveExpr(s.Post); err != nil {
				return err
			}
		}
		s.AstLabel = a.pushLoop()
		defer a.popLoop()
		return a.resolveStmt(s.Body)

	case *ast.SwitchStmt:
		if err := a.resolveExpr(s.Cond); err != nil {
			return err
		}
		a.switchCount++
		label := fmt.Sprintf("switch.%d", a.switchCount)
		s.AstLabel = label
		ctx := &switchCtx{astLabel: label, seen: make(map[int64]bool), loopDepth: len(a.loopStack)}
		a.switchStack = append(a.switchStack, ctx)
		if err := a.resolveStmt(s.Body); err != nil {
			a.switchStack = a.switchStack[:len(a.switchStack)-1]
			return err
		}
		a.switchStack = a.switchStack[:len(a.switchStack)-1]
		s.Cases = ctx.cases
		return nil

	case *ast.CaseStmt:
		if len(a.switchStack) == 0 {
			return errs.Semanticf(s.Loc(), "case/default label outside of switch")
		}
		ctx := a.switchStack[len(a.switchStack)-1]
		if s.Expr == nil {
			if ctx.hasDefault {
				return errs.Semanticf(s.Loc(), "multiple default labels in one switch")
			}
			ctx.hasDefault = true
			s.AstLabel = ctx.astLabel + ".default"
		} else {
			if err := a.resolveExpr(s.Expr); err != nil {
				return err
			}
			if !IsConstantExpr(s.Expr) {
				return errs.Semanticf(s.Loc(), "case label does not reduce to a constant expression")
			}
			v, ok := EvalConstant(s.Expr)
			if !ok {
				return errs.Semanticf(s.Loc(), "case label does not reduce to a constant expression")
			}
			if ctx.seen[v] {
				return errs.Semanticf(s.Loc(), "duplicate case value: %d", v)
			}
			ctx.seen[v] = true
			s.Value = &v
			s.AstLabel = fmt.Sprintf("%s.case.%d", ctx.astLabel, len(ctx.cases))
		}
		ctx.cases = append(ctx.cases, s)
		return a.resolveStmt(s.Stmt)

	default:
		utils.ShouldNotReachHere()
		return nil
	}
}

// pushLoop increments the loop counter, pushes its label, and returns it.
func (a *Analyser) pushLoop() string {
	a.loopCount++
	label := fmt.Sprintf("loop.%d", a.loopCount)
	a.loopStack = append(a.loopStack, label)
	return label
}

func (a *Analyser) popLoop() {
	a.loopStack = a.loopStack[:len(a.loopStack)-1]
}

// enclosingBreakTarget returns the label of the innermost open switch or
// loop, as in C. Each switchCtx records how many loops were open when the
// switch was entered; if no loop has been pushed since, the switch is
// innermost and absorbs the break, otherwise the newest loop does.
func (a *Analyser) enclosingBreakTarget() string {
	if n := len(a.switchStack); n > 0 && len(a.loopStack) <= a.switchStack[n-1].loopDepth {
		return a.switchStack[n-1].astLabel
	}
	return a.loopStack[len(a.loopStack)-1]
}

func (a *Analyser) resolveLocalVarDecl(vd *ast.VariableDef) error {
	if vd.Storage == ast.StorageExtern {
		if vd.Init != nil {
			return errs.Semanticf(vd.Loc(), "extern variable %s may not have an initializer", vd.Name)
		}
		if existing, ok := a.table.declaredInCurrentScope(vd.Name); ok {
			if existing.Type == SymFunction {
				return errs.Semanticf(vd.Loc(), "%s redeclared as a different kind of symbol", vd.Name)
			}
			return nil
		}
		a.table.declare(vd.Name, &Symbol{UniqueName: vd.Name, Linkage: LinkageExternal, Type: fromASTType(vd.Type)})
		return nil
	}

	if _, ok := a.table.declaredInCurrentScope(vd.Name); ok {
		return errs.Semanticf(vd.Loc(), "Duplicate declaration: %s", vd.Name)
	}

	unique := a.freshName(vd.Name)
	sym := &Symbol{UniqueName: unique, Type: fromASTType(vd.Type)}
	a.table.declare(vd.Name, sym)
	vd.Name = unique

	if vd.Init != nil {
		if vd.Storage == ast.StorageStatic {
			if _, ok := EvalConstant(vd.Init); !ok {
				return errs.Semanticf(vd.Loc(), "static initializer must be a constant expression")
			}
		}
		if err := a.resolveExpr(vd.Init); err != nil {
			return err
		}
	}
	return nil
}

// resolveExpr rewrites every Var leaf to its unique name and enforces the
// l-value rule on assignment/increment/decrement operands.
func (a *Analyser) resolveExpr(e ast.Expr) error {
	switch e := e.(type) {
	case *ast.ConstantExpr:
		return nil

	case *ast.VarExpr:
		sym, ok := a.table.lookup(e.Name)
		if !ok {
			return errs.Semanticf(e.Loc(), "use of undeclared identifier: %s", e.Name)
		}
		e.Name = sym.UniqueName
		return nil

	case *ast.UnaryExpr:
		if e.Op == ast.OpPreIncrement || e.Op == ast.OpPreDecrement {
			if !isLvalue(e.Operand) {
				return errs.Semanticf(e.Loc(), "Invalid lvalue")
			}
		}
		return a.resolveExpr(e.Operand)

	case *ast.PostExpr:
		if !isLvalue(e.Operand) {
			return errs.Semanticf(e.Loc(), "Invalid lvalue")
		}
		return a.resolveExpr(e.Operand)

	case *ast.BinaryExpr:
		if err := a.resolveExpr(e.Left); err != nil {
			return err
		}
		return a.resolveExpr(e.Right)

	case *ast.ConditionalExpr:
		if err := a.resolveExpr(e.Cond); err != nil {
			return err
		}
		if err := a.resolveExpr(e.Then); err != nil {
			return err
		}
		return a.resolveExpr(e.Else)

	case *ast.AssignExpr:
		if !isLvalue(e.LHS) {
			return errs.Semanticf(e.Loc(), "Invalid lvalue")
		}
		if err := a.resolveExpr(e.LHS); err != nil {
			return err
		}
		return a.resolveExpr(e.RHS)

	case *ast.CallExpr:
		sym, ok := a.table.lookup(e.Name)
		if !ok {
			return errs.Semanticf(e.Loc(), "call to undeclared function: %s", e.Name)
		}
		if sym.Type != SymFunction {
			return errs.Semanticf(e.Loc(), "%s is not a function", e.Name)
		}
		if sym.ParamCount != len(e.Args) {
			return errs.Semanticf(e.Loc(), "%s called with %d arguments, expected %d", e.Name, len(e.Args), sym.ParamCount)
		}
		for _, arg := range e.Args {
			if err := a.resolveExpr(arg); err != nil {
				return err
			}
		}
		return nil

	default:
		utils.ShouldNotReachHere()
		return nil
	}
}

func isLvalue(e ast.Expr) bool {
	_, ok := e.(*ast.VarExpr)
	return ok
}

// IsConstantExpr implements the "is_constant" propagation rule of §4.3.
func IsConstantExpr(e ast.Expr) bool {
	switch e := e.(type) {
	case *ast.ConstantExpr:
		return true
	case *ast.UnaryExpr:
		if e.Op == ast.OpPreIncrement || e.Op == ast.OpPreDecrement {
			return false
		}
		return IsConstantExpr(e.Operand)
	case *ast.BinaryExpr:
		return IsConstantExpr(e.Left) && IsConstantExpr(e.Right)
	case *ast.ConditionalExpr:
		return IsConstantExpr(e.Cond) && IsConstantExpr(e.Then) && IsConstantExpr(e.Else)
	case *ast.PostExpr, *ast.AssignExpr, *ast.CallExpr, *ast.VarExpr:
		return false
	default:
		utils.ShouldNotReachHere()
		return false
	}
}

// EvalConstant evaluates an already-confirmed-constant expression tree to an
// int64. This is not the optimizer the spec excludes: it is the minimum
// arithmetic required to know a case label's or a static initializer's
// value at compile time, never applied to ordinary runtime expressions.
func EvalConstant(e ast.Expr) (int64, bool) {
	switch e := e.(type) {
	case *ast.ConstantExpr:
		return e.Value, true
	case *ast.UnaryExpr:
		v, ok := EvalConstant(e.Operand)
		if !ok {
			return 0, false
		}
		switch e.Op {
		case ast.OpNegate:
			return -v, true
		case ast.OpComplement:
			return ^v, true
		case ast.OpNot:
			if v == 0 {
				return 1, true
			}
			return 0, true
		default:
			return 0, false
		}
	case *ast.BinaryExpr:
		l, ok := EvalConstant(e.Left)
		if !ok {
			return 0, false
		}
		r, ok := EvalConstant(e.Right)
		if !ok {
			return 0, false
		}
		return evalBinary(e.Op, l, r)
	case *ast.ConditionalExpr:
		c, ok := EvalConstant(e.Cond)
		if !ok {
			return 0, false
		}
		if c != 0 {
			return EvalConstant(e.Then)
		}
		return EvalConstant(e.Else)
	default:
		return 0, false
	}
}

func evalBinary(op ast.BinaryOp, l, r int64) (int64, bool) {
	switch op {
	case ast.OpAdd:
		return l + r, true
	case ast.OpSub:
		return l - r, true
	case ast.OpMul:
		return l * r, true
	case ast.OpDiv:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case ast.OpMod:
		if r == 0 {
			return 0, false
		}
		return l % r, true
	case ast.OpBitAnd:
		return l & r, true
	case ast.OpBitOr:
		return l | r, true
	case ast.OpBitXor:
		return l ^ r, true
	case ast.OpShl:
		return l << uint(r), true
	case ast.OpShr:
		return l >> uint(r), true
	case ast.OpEqual:
		return boolToInt(l == r), true
	case ast.OpNotEqual:
		return boolToInt(l != r), true
	case ast.OpLess:
		return boolToInt(l < r), true
	case ast.OpLessEqual:
		return boolToInt(l <= r), true
	case ast.OpGreater:
		return boolToInt(l > r), true
	case ast.OpGreaterEqual:
		return boolToInt(l >= r), true
	case ast.OpLogAnd:
		return boolToInt(l != 0 && r != 0), true
	case ast.OpLogOr:
		return boolToInt(l != 0 || r != 0), true
	default:
		return 0, false
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
