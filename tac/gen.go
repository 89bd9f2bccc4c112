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

package tac

import (
	"fmt"

	"axc/ast"
	"axc/errs"
	"axc/sema"
	"axc/utils"
)

// Generator lowers a resolved AST (identifiers already renamed, ast_label
// fields already attached by sema.Analyse) into TAC. Counters are owned by
// the instance, per the per-compilation guidance in the design notes.
type Generator struct {
	tempCount  int
	labelCount int
	instrs     []Instruction
	statics    []TopLevel
}

// Generate lowers prog, which must already have passed sema.Analyse.
func Generate(prog *ast.Program) (*Program, error) {
	g := &Generator{}
	out := &Program{}
	for _, d := range prog.Decls {
		switch d := d.(type) {
		case *ast.FunctionDef:
			if d.Body == nil {
				continue
			}
			fn, err := g.lowerFunction(d)
			if err != nil {
				return nil, err
			}
			out.TopLevel = append(out.TopLevel, fn)
		case *ast.VariableDef:
			if d.Storage == ast.StorageExtern && d.Init == nil {
				continue
			}
			sv, err := g.lowerFileScopeVar(d)
			if err != nil {
				return nil, err
			}
			out.TopLevel = append(out.TopLevel, sv)
		default:
			utils.ShouldNotReachHere()
		}
	}
	out.TopLevel = append(out.TopLevel, g.statics...)
	return out, nil
}

func (g *Generator) freshTemp() Variable {
	g.tempCount++
	return Variable{Name: fmt.Sprintf("tmp.%d", g.tempCount)}
}

func (g *Generator) freshLabel(role string) string {
	g.labelCount++
	return fmt.Sprintf("%s.%d", role, g.labelCount)
}

func (g *Generator) emit(i Instruction) {
	g.instrs = append(g.instrs, i)
}

func (g *Generator) lowerFunction(fd *ast.FunctionDef) (*FunctionDef, error) {
	g.instrs = nil
	params := make([]string, len(fd.Params))
	for i, p := range fd.Params {
		params[i] = p.Name
	}
	if err := g.lowerStmt(fd.Body); err != nil {
		return nil, err
	}
	// A function whose control falls off its last statement without an
	// explicit return yields an unspecified value in C; we make it concrete.
	if n := len(g.instrs); n == 0 {
		g.emit(&Return{Val: Constant{Value: 0}})
	} else if _, ok := g.instrs[n-1].(*Return); !ok {
		g.emit(&Return{Val: Constant{Value: 0}})
	}
	instrs := g.instrs
	g.instrs = nil
	return &FunctionDef{
		Name:   fd.Name,
		Global: fd.Storage != ast.StorageStatic,
		Params: params,
		Instrs: instrs,
	}, nil
}

func (g *Generator) lowerFileScopeVar(vd *ast.VariableDef) (*StaticVariable, error) {
	var init int64
	if vd.Init != nil {
		v, ok := sema.EvalConstant(vd.Init)
		if !ok {
			return nil, errs.CodeGenf("file-scope initializer for %s is not a compile-time constant", vd.Name)
		}
		init = v
	}
	return &StaticVariable{
		Name:   vd.Name,
		Global: vd.Storage != ast.StorageStatic,
		Size:   vd.Type.Size(),
		Init:   init,
	}, nil
}

var binOpTable = map[ast.BinaryOp]BinaryOp{
	ast.OpAdd:          OpAdd,
	ast.OpSub:          OpSubtract,
	ast.OpMul:          OpMultiply,
	ast.OpDiv:          OpDivide,
	ast.OpMod:          OpModulo,
	ast.OpBitAnd:       OpBitAnd,
	ast.OpBitOr:        OpBitOr,
	ast.OpBitXor:       OpBitXor,
	ast.OpShl:          OpShiftLeft,
	ast.OpShr:          OpShiftRight,
	ast.OpEqual:        OpEqual,
	ast.OpNotEqual:     OpNotEqual,
	ast.OpLess:         OpLess,
	ast.OpLessEqual:    OpLessEqual,
	ast.OpGreater:      OpGreater,
	ast.OpGreaterEqual: OpGreaterEqual,
}

// loadExpr lowers e and returns the Value holding its result.
func (g *Generator) loadExpr(e ast.Expr) (Value, error) {
	switch e := e.(type) {
	case *ast.ConstantExpr:
		return Constant{Value: e.Value}, nil

	case *ast.VarExpr:
		return Variable{Name: e.Name}, nil

	case *ast.UnaryExpr:
		return g.loadUnary(e)

	case *ast.PostExpr:
		v := e.Operand.(*ast.VarExpr)
		varVal := Variable{Name: v.Name}
		t := g.freshTemp()
		g.emit(&Copy{Src: varVal, Dst: t})
		op := OpAdd
		if e.Op == ast.OpPostDecrement {
			op = OpSubtract
		}
		g.emit(&Binary{Op: op, Src1: varVal, Src2: Constant{Value: 1}, Dst: varVal})
		return t, nil

	case *ast.BinaryExpr:
		if e.Op == ast.OpLogAnd {
			return g.loadLogAnd(e)
		}
		if e.Op == ast.OpLogOr {
			return g.loadLogOr(e)
		}
		l, err := g.loadExpr(e.Left)
		if err != nil {
			return nil, err
		}
		r, err := g.loadExpr(e.Right)
		if err != nil {
			return nil, err
		}
		dst := g.freshTemp()
		g.emit(&Binary{Op: binOpTable[e.Op], Src1: l, Src2: r, Dst: dst})
		return dst, nil

	case *ast.ConditionalExpr:
		return g.loadConditional(e)

	case *ast.AssignExpr:
		return g.loadAssign(e)

	case *ast.CallExpr:
		args := make([]Value, len(e.Args))
		for i, a := range e.Args {
			v, err := g.loadExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		dst := g.freshTemp()
		g.emit(&FunCall{Name: e.Name, Args: args, Dst: dst})
		return dst, nil

	default:
		utils.ShouldNotReachHere()
		return nil, nil
	}
}

func (g *Generator) loadUnary(e *ast.UnaryExpr) (Value, error) {
	switch e.Op {
	case ast.OpNegate, ast.OpComplement:
		src, err := g.loadExpr(e.Operand)
		if err != nil {
			return nil, err
		}
		op := OpNegate
		if e.Op == ast.OpComplement {
			op = OpComplement
		}
		dst := g.freshTemp()
		g.emit(&Unary{Op: op, Src: src, Dst: dst})
		return dst, nil

	case ast.OpNot:
		src, err := g.loadExpr(e.Operand)
		if err != nil {
			return nil, err
		}
		dst := g.freshTemp()
		g.emit(&Binary{Op: OpEqual, Src1: src, Src2: Constant{Value: 0}, Dst: dst})
		return dst, nil

	case ast.OpPreIncrement, ast.OpPreDecrement:
		v := e.Operand.(*ast.VarExpr)
		varVal := Variable{Name: v.Name}
		op := OpAdd
		if e.Op == ast.OpPreDecrement {
			op = OpSubtract
		}
		g.emit(&Binary{Op: op, Src1: varVal, Src2: Constant{Value: 1}, Dst: varVal})
		return varVal, nil

	default:
		utils.ShouldNotReachHere()
		return nil, nil
	}
}

func (g *Generator) loadLogAnd(e *ast.BinaryExpr) (Value, error) {
	falseLbl := g.freshLabel("and_false")
	endLbl := g.freshLabel("and_end")
	dst := g.freshTemp()

	l, err := g.loadExpr(e.Left)
	if err != nil {
		return nil, err
	}
	g.emit(&JumpIfZero{Cond: l, Target: falseLbl})
	r, err := g.loadExpr(e.Right)
	if err != nil {
		return nil, err
	}
	g.emit(&JumpIfZero{Cond: r, Target: falseLbl})
	g.emit(&Copy{Src: Constant{Value: 1}, Dst: dst})
	g.emit(&Jump{Target: endLbl})
	g.emit(&Label{Name: falseLbl})
	g.emit(&Copy{Src: Constant{Value: 0}, Dst: dst})
	g.emit(&Label{Name: endLbl})
	return dst, nil
}

func (g *Generator) loadLogOr(e *ast.BinaryExpr) (Value, error) {
	trueLbl := g.freshLabel("or_true")
	endLbl := g.freshLabel("or_end")
	dst := g.freshTemp()

	l, err := g.loadExpr(e.Left)
	if err != nil {
		return nil, err
	}
	g.emit(&JumpIfNotZero{Cond: l, Target: trueLbl})
	r, err := g.loadExpr(e.Right)
	if err != nil {
		return nil, err
	}
	g.emit(&JumpIfNotZero{Cond: r, Target: trueLbl})
	g.emit(&Copy{Src: Constant{Value: 0}, Dst: dst})
	g.emit(&Jump{Target: endLbl})
	g.emit(&Label{Name: trueLbl})
	g.emit(&Copy{Src: Constant{Value: 1}, Dst: dst})
	g.emit(&Label{Name: endLbl})
	return dst, nil
}

func (g *Generator) loadConditional(e *ast.ConditionalExpr) (Value, error) {
	cond, err := g.loadExpr(e.Cond)
	if err != nil {
		return nil, err
	}
	elseLbl := g.freshLabel("cond_else")
	endLbl := g.freshLabel("cond_end")
	dst := g.freshTemp()

	g.emit(&JumpIfZero{Cond: cond, Target: elseLbl})
	thenVal, err := g.loadExpr(e.Then)
	if err != nil {
		return nil, err
	}
	g.emit(&Copy{Src: thenVal, Dst: dst})
	g.emit(&Jump{Target: endLbl})
	g.emit(&Label{Name: elseLbl})
	elseVal, err := g.loadExpr(e.Else)
	if err != nil {
		return nil, err
	}
	g.emit(&Copy{Src: elseVal, Dst: dst})
	g.emit(&Label{Name: endLbl})
	return dst, nil
}

func (g *Generator) loadAssign(e *ast.AssignExpr) (Value, error) {
	v := e.LHS.(*ast.VarExpr)
	varVal := Variable{Name: v.Name}
	rhs, err := g.loadExpr(e.RHS)
	if err != nil {
		return nil, err
	}
	if e.Op == ast.OpAssign {
		g.emit(&Copy{Src: rhs, Dst: varVal})
		return varVal, nil
	}
	g.emit(&Binary{Op: binOpTable[e.Op.CompoundBinaryOp()], Src1: varVal, Src2: rhs, Dst: varVal})
	return varVal, nil
}

// lowerStmt lowers s, appending instructions to g.instrs.
func (g *Generator) lowerStmt(s ast.Stmt) error {
	switch s := s.(type) {
	case *ast.Compound:
		for _, item := range s.Items {
			switch it := item.(type) {
			case *ast.VariableDef:
				if err := g.lowerLocalVarDecl(it); err != nil {
					return err
				}
			case *ast.FunctionDef:
				// A nested declaration with no body has nothing to lower.
			case ast.Stmt:
				if err := g.lowerStmt(it); err != nil {
					return err
				}
			default:
				utils.ShouldNotReachHere()
			}
		}
		return nil

	case *ast.ReturnStmt:
		if s.Expr == nil {
			g.emit(&Return{Val: Constant{Value: 0}})
			return nil
		}
		v, err := g.loadExpr(s.Expr)
		if err != nil {
			return err
		}
		g.emit(&Return{Val: v})
		return nil

	case *ast.ExprStmt:
		_, err := g.loadExpr(s.Expr)
		return err

	case *ast.NullStmt:
		return nil

	case *ast.IfStmt:
		return g.lowerIf(s)

	case *ast.WhileStmt:
		l := s.AstLabel
		g.emit(&Label{Name: l + "_continue"})
		cond, err := g.loadExpr(s.Cond)
		if err != nil {
			return err
		}
		g.emit(&JumpIfZero{Cond: cond, Target: l + "_break"})
		if err := g.lowerStmt(s.Body); err != nil {
			return err
		}
		g.emit(&Jump{Target: l + "_continue"})
		g.emit(&Label{Name: l + "_break"})
		return nil

	case *ast.DoWhileStmt:
		l := s.AstLabel
		g.emit(&Label{Name: l + "_start"})
		if err := g.lowerStmt(s.Body); err != nil {
			return err
		}
		g.emit(&Label{Name: l + "_continue"})
		cond, err := g.loadExpr(s.Cond)
		if err != nil {
			return err
		}
		g.emit(&JumpIfNotZero{Cond: cond, Target: l + "_start"})
		g.emit(&Label{Name: l + "_break"})
		return nil

	case *ast.ForStmt:
		return g.lowerFor(s)

	case *ast.BreakStmt:
		g.emit(&Jump{Target: s.AstLabel + "_break"})
		return nil

	case *ast.ContinueStmt:
		g.emit(&Jump{Target: s.AstLabel + "_continue"})
		return nil

	case *ast.SwitchStmt:
		return g.lowerSwitch(s)

	case *ast.CaseStmt:
		g.emit(&Label{Name: s.AstLabel})
		return g.lowerStmt(s.Stmt)

	case *ast.LabeledStmt:
		g.emit(&Label{Name: "ast." + s.Label})
		return g.lowerStmt(s.Stmt)

	case *ast.GotoStmt:
		g.emit(&Jump{Target: "ast." + s.Label})
		return nil

	default:
		utils.ShouldNotReachHere()
		return nil
	}
}

func (g *Generator) lowerIf(s *ast.IfStmt) error {
	cond, err := g.loadExpr(s.Cond)
	if err != nil {
		return err
	}
	if s.Else == nil {
		endLbl := g.freshLabel("if_end")
		g.emit(&JumpIfZero{Cond: cond, Target: endLbl})
		if err := g.lowerStmt(s.Then); err != nil {
			return err
		}
		g.emit(&Label{Name: endLbl})
		return nil
	}
	elseLbl := g.freshLabel("if_else")
	endLbl := g.freshLabel("if_end")
	g.emit(&JumpIfZero{Cond: cond, Target: elseLbl})
	if err := g.lowerStmt(s.Then); err != nil {
		return err
	}
	g.emit(&Jump{Target: endLbl})
	g.emit(&Label{Name: elseLbl})
	if err := g.lowerStmt(s.Else); err != nil {
		return err
	}
	g.emit(&Label{Name: endLbl})
	return nil
}

func (g *Generator) lowerFor(s *ast.ForStmt) error {
	if s.Init.Decl != nil {
		if err := g.lowerLocalVarDecl(s.Init.Decl); err != nil {
			return err
		}
	} else if s.Init.Expr != nil {
		if _, err := g.loadExpr(s.Init.Expr); err != nil {
			return err
		}
	}
	l := s.AstLabel
	g.emit(&Label{Name: l + "_start"})
	if s.Cond != nil {
		cond, err := g.loadExpr(s.Cond)
		if err != nil {
			return err
		}
		g.emit(&JumpIfZero{Cond: cond, Target: l + "_break"})
	}
	if err := g.lowerStmt(s.Body); err != nil {
		return err
	}
	g.emit(&Label{Name: l + "_continue"})
	if s.Post != nil {
		if _, err := g.loadExpr(s.Post); err != nil {
			return err
		}
	}
	g.emit(&Jump{Target: l + "_start"})
	g.emit(&Label{Name: l + "_break"})
	return nil
}

func (g *Generator) lowerSwitch(s *ast.SwitchStmt) error {
	cond, err := g.loadExpr(s.Cond)
	if err != nil {
		return err
	}
	defaultLbl := ""
	for _, c := range s.Cases {
		if c.Value == nil {
			defaultLbl = c.AstLabel
			continue
		}
		tk := g.freshTemp()
		g.emit(&Binary{Op: OpEqual, Src1: cond, Src2: Constant{Value: *c.Value}, Dst: tk})
		g.emit(&JumpIfNotZero{Cond: tk, Target: c.AstLabel})
	}
	if defaultLbl != "" {
		g.emit(&Jump{Target: defaultLbl})
	} else {
		g.emit(&Jump{Target: s.AstLabel + "_break"})
	}
	if err := g.lowerStmt(s.Body); err != nil {
		return err
	}
	g.emit(&Label{Name: s.AstLabel + "_break"})
	return nil
}

// lowerLocalVarDecl lowers a block-scoped variable: an ordinary local gets
// its initializer lowered as a Copy; a static local is lifted to a
// file-scope StaticVariable (constant-initialized once, not re-run every
// time control passes through the declaration).
func (g *Generator) lowerLocalVarDecl(vd *ast.VariableDef) error {
	if vd.Storage == ast.StorageStatic {
		var init int64
		if vd.Init != nil {
			v, ok := sema.EvalConstant(vd.Init)
			if !ok {
				return errs.CodeGenf("static initializer for %s is not a compile-time constant", vd.Name)
			}
			init = v
		}
		g.statics = append(g.statics, &StaticVariable{Name: vd.Name, Global: false, Size: vd.Type.Size(), Init: init})
		return nil
	}
	if vd.Storage == ast.StorageExtern {
		return nil
	}
	if vd.Init == nil {
		return nil
	}
	v, err := g.loadExpr(vd.Init)
	if err != nil {
		return err
	}
	g.emit(&Copy{Src: v, Dst: Variable{Name: vd.Name}})
	return nil
}
