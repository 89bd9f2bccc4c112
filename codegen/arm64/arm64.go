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

// Package arm64 is the AArch64 back end skeleton (SPEC_FULL.md §C): it
// selects and emits a genuine subset of TAC — functions with no parameters,
// no calls, every TAC variable in its own stack slot, and a frame small
// enough to address with a plain ldr/str — and returns a CodeGen error
// (errs.CodeGenf) for anything outside that subset rather than emitting
// incorrect code. w/x register pairs stand in for the x86 back
// end's 32/64-bit GP registers; ldr/str stand in for its single Mov.
package arm64

import (
	"fmt"
	"strings"

	"axc/errs"
	"axc/sema"
	"axc/tac"
	"axc/utils"
)

// maxFrameBytes bounds the stack frame this skeleton will address: beyond
// it, an immediate-offset ldr/str can't reach every slot and a real
// implementation would need register+offset addressing this one skips.
const maxFrameBytes = 4080

type Program struct {
	Functions []*FunctionDef
}

type FunctionDef struct {
	Name      string
	Global    bool
	FrameSize int
	Instrs    []Instruction
}

type Operand interface{ operandNode() }

type Imm struct{ Value int64 }
type WReg struct{ Index int } // w0-w30, 32-bit view
type XReg struct{ Index int } // x0-x30, 64-bit view
type Slot struct{ Offset int }

func (Imm) operandNode()  {}
func (WReg) operandNode() {}
func (XReg) operandNode() {}
func (Slot) operandNode() {}

type Instruction interface{ instrNode() }

type Mov struct{ Src, Dst Operand }
type Ldr struct{ Src Slot; Dst Operand }
type Str struct{ Src Operand; Dst Slot }
type Neg struct{ Src, Dst Operand }
type Mvn struct{ Src, Dst Operand } // bitwise NOT
type Cmp struct{ A, B Operand }
type Cset struct {
	Cond string
	Dst  Operand
}
type Add struct{ Src1, Src2, Dst Operand }
type Sub struct{ Src1, Src2, Dst Operand }
type Mul struct{ Src1, Src2, Dst Operand }
type Sdiv struct{ Src1, Src2, Dst Operand }
type Msub struct{ Src1, Src2, Src3, Dst Operand } // remainder: dst = src3 - src1*src2
type B struct{ Target string }
type BCond struct {
	Cond   string
	Target string
}
type Cbz struct {
	Src    Operand
	Target string
}
type Cbnz struct {
	Src    Operand
	Target string
}
type LabelInstr struct{ Name string }
type Ret struct{}

func (*Mov) instrNode()        {}
func (*Ldr) instrNode()        {}
func (*Str) instrNode()        {}
func (*Neg) instrNode()        {}
func (*Mvn) instrNode()        {}
func (*Cmp) instrNode()        {}
func (*Cset) instrNode()       {}
func (*Add) instrNode()        {}
func (*Sub) instrNode()        {}
func (*Mul) instrNode()        {}
func (*Sdiv) instrNode()       {}
func (*Msub) instrNode()       {}
func (*B) instrNode()          {}
func (*BCond) instrNode()      {}
func (*Cbz) instrNode()        {}
func (*Cbnz) instrNode()       {}
func (*LabelInstr) instrNode() {}
func (*Ret) instrNode()        {}

var condTable = map[tac.BinaryOp]string{
	tac.OpEqual:        "eq",
	tac.OpNotEqual:      "ne",
	tac.OpLess:          "lt",
	tac.OpLessEqual:     "le",
	tac.OpGreater:       "gt",
	tac.OpGreaterEqual:  "ge",
}

type selector struct {
	types  *sema.TypeInfo
	slots  map[string]int
	next   int
	instrs []Instruction
}

// Select lowers a single-function subset of tacProg. Any function with a
// FunCall, or whose frame would exceed maxFrameBytes, yields a CodeGen
// error naming the unsupported construct rather than miscompiling it.
func Select(tacProg *tac.Program, types *sema.TypeInfo) (*Program, error) {
	out := &Program{}
	for _, tl := range tacProg.TopLevel {
		fn, ok := tl.(*tac.FunctionDef)
		if !ok {
			continue // StaticVariable handling is identical across back ends; omitted from the skeleton.
		}
		selFn, err := selectFunction(fn, types)
		if err != nil {
			return nil, err
		}
		out.Functions = append(out.Functions, selFn)
	}
	return out, nil
}

func selectFunction(fn *tac.FunctionDef, types *sema.TypeInfo) (*FunctionDef, error) {
	if len(fn.Params) > 0 {
		return nil, errs.CodeGenf("arm64 skeleton does not support parameters (function %q)", fn.Name)
	}
	s := &selector{types: types, slots: make(map[string]int)}
	for _, instr := range fn.Instrs {
		if err := s.selectInstr(instr); err != nil {
			return nil, err
		}
	}
	frameBytes := roundUp16(s.next * 8)
	if frameBytes > maxFrameBytes {
		return nil, errs.CodeGenf("function %q needs a %d-byte frame, beyond the arm64 skeleton's immediate-offset range", fn.Name, frameBytes)
	}
	return &FunctionDef{Name: fn.Name, Global: fn.Global, FrameSize: frameBytes, Instrs: s.instrs}, nil
}

func roundUp16(n int) int {
	if n%16 == 0 {
		return n
	}
	return n + (16 - n%16)
}

func (s *selector) emit(i Instruction) { s.instrs = append(s.instrs, i) }

func (s *selector) slot(name string) Slot {
	if off, ok := s.slots[name]; ok {
		return Slot{Offset: off}
	}
	s.next++
	off := 8 * (s.next - 1)
	s.slots[name] = off
	return Slot{Offset: off}
}

// load materializes v (a Constant or Variable) into the scratch register
// reg (w0 or w1 at the call sites); the skeleton never holds values live
// across a call (calls are rejected outright).
func (s *selector) load(v tac.Value, reg WReg) Operand {
	switch v := v.(type) {
	case tac.Constant:
		s.emit(&Mov{Src: Imm{Value: v.Value}, Dst: reg})
	case tac.Variable:
		s.emit(&Ldr{Src: s.slot(v.Name), Dst: reg})
	default:
		utils.ShouldNotReachHere()
	}
	return reg
}

func (s *selector) store(reg Operand, v tac.Value) {
	dst, ok := v.(tac.Variable)
	if !ok {
		utils.ShouldNotReachHere()
	}
	s.emit(&Str{Src: reg, Dst: s.slot(dst.Name)})
}

func (s *selector) selectInstr(instr tac.Instruction) error {
	switch i := instr.(type) {
	case *tac.Return:
		s.load(i.Val, WReg{0})
		s.emit(&Ret{})
		return nil

	case *tac.Copy:
		s.load(i.Src, WReg{0})
		s.store(WReg{0}, i.Dst)
		return nil

	case *tac.Unary:
		s.load(i.Src, WReg{0})
		switch i.Op {
		case tac.OpNegate:
			s.emit(&Neg{Src: WReg{0}, Dst: WReg{0}})
		case tac.OpComplement:
			s.emit(&Mvn{Src: WReg{0}, Dst: WReg{0}})
		case tac.OpNot:
			s.emit(&Cmp{A: WReg{0}, B: Imm{Value: 0}})
			s.emit(&Cset{Cond: "eq", Dst: WReg{0}})
		}
		s.store(WReg{0}, i.Dst)
		return nil

	case *tac.Binary:
		return s.selectBinary(i)

	case *tac.Jump:
		s.emit(&B{Target: i.Target})
		return nil

	case *tac.JumpIfZero:
		s.load(i.Cond, WReg{0})
		s.emit(&Cbz{Src: WReg{0}, Target: i.Target})
		return nil

	case *tac.JumpIfNotZero:
		s.load(i.Cond, WReg{0})
		s.emit(&Cbnz{Src: WReg{0}, Target: i.Target})
		return nil

	case *tac.Label:
		s.emit(&LabelInstr{Name: i.Name})
		return nil

	case *tac.FunCall:
		return errs.CodeGenf("arm64 skeleton does not support calls (call to %q)", i.Name)

	default:
		utils.ShouldNotReachHere()
		return nil
	}
}

func (s *selector) selectBinary(i *tac.Binary) error {
	s.load(i.Src1, WReg{0})
	s.load(i.Src2, WReg{1})

	switch i.Op {
	case tac.OpAdd:
		s.emit(&Add{Src1: WReg{0}, Src2: WReg{1}, Dst: WReg{0}})
	case tac.OpSubtract:
		s.emit(&Sub{Src1: WReg{0}, Src2: WReg{1}, Dst: WReg{0}})
	case tac.OpMultiply:
		s.emit(&Mul{Src1: WReg{0}, Src2: WReg{1}, Dst: WReg{0}})
	case tac.OpDivide:
		s.emit(&Sdiv{Src1: WReg{0}, Src2: WReg{1}, Dst: WReg{0}})
	case tac.OpModulo:
		s.emit(&Sdiv{Src1: WReg{0}, Src2: WReg{1}, Dst: WReg{2}})
		s.emit(&Msub{Src1: WReg{2}, Src2: WReg{1}, Src3: WReg{0}, Dst: WReg{0}})
	default:
		if cond, ok := condTable[i.Op]; ok {
			s.emit(&Cmp{A: WReg{0}, B: WReg{1}})
			s.emit(&Cset{Cond: cond, Dst: WReg{0}})
		} else {
			return errs.CodeGenf("arm64 skeleton does not support binary op %v", i.Op)
		}
	}
	s.store(WReg{0}, i.Dst)
	return nil
}

// Emit renders prog as GAS-syntax AArch64 assembly text.
func Emit(prog *Program) string {
	var b strings.Builder
	for _, fn := range prog.Functions {
		emitFunction(&b, fn)
	}
	b.WriteString("\t.section .note.GNU-stack,\"\",@progbits\n")
	return b.String()
}

func emitFunction(b *strings.Builder, fn *FunctionDef) {
	if fn.Global {
		fmt.Fprintf(b, "\t.globl %s\n", fn.Name)
	}
	b.WriteString("\t.text\n")
	fmt.Fprintf(b, "%s:\n", fn.Name)
	if fn.FrameSize > 0 {
		fmt.Fprintf(b, "\tsub\tsp, sp, #%d\n", fn.FrameSize)
	}
	for _, instr := range fn.Instrs {
		if _, ok := instr.(*Ret); ok && fn.FrameSize > 0 {
			fmt.Fprintf(b, "\tadd\tsp, sp, #%d\n", fn.FrameSize)
		}
		emitInstr(b, fn.Name, instr)
	}
}

func localLabel(fn, name string) string { return fmt.Sprintf(".L%s.%s", fn, name) }

func operandStr(o Operand) string {
	switch o := o.(type) {
	case Imm:
		return fmt.Sprintf("#%d", o.Value)
	case WReg:
		return fmt.Sprintf("w%d", o.Index)
	case XReg:
		return fmt.Sprintf("x%d", o.Index)
	case Slot:
		return fmt.Sprintf("[sp, #%d]", o.Offset)
	default:
		utils.ShouldNotReachHere()
		return ""
	}
}

func emitInstr(b *strings.Builder, fn string, instr Instruction) {
	switch i := instr.(type) {
	case *Mov:
		fmt.Fprintf(b, "\tmov\t%s, %s\n", operandStr(i.Dst), operandStr(i.Src))
	case *Ldr:
		fmt.Fprintf(b, "\tldr\t%s, %s\n", operandStr(i.Dst), operandStr(i.Src))
	case *Str:
		fmt.Fprintf(b, "\tstr\t%s, %s\n", operandStr(i.Src), operandStr(i.Dst))
	case *Neg:
		fmt.Fprintf(b, "\tneg\t%s, %s\n", operandStr(i.Dst), operandStr(i.Src))
	case *Mvn:
		fmt.Fprintf(b, "\tmvn\t%s, %s\n", operandStr(i.Dst), operandStr(i.Src))
	case *Cmp:
		fmt.Fprintf(b, "\tcmp\t%s, %s\n", operandStr(i.A), operandStr(i.B))
	case *Cset:
		fmt.Fprintf(b, "\tcset\t%s, %s\n", operandStr(i.Dst), i.Cond)
	case *Add:
		fmt.Fprintf(b, "\tadd\t%s, %s, %s\n", operandStr(i.Dst), operandStr(i.Src1), operandStr(i.Src2))
	case *Sub:
		fmt.Fprintf(b, "\tsub\t%s, %s, %s\n", operandStr(i.Dst), operandStr(i.Src1), operandStr(i.Src2))
	case *Mul:
		fmt.Fprintf(b, "\tmul\t%s, %s, %s\n", operandStr(i.Dst), operandStr(i.Src1), operandStr(i.Src2))
	case *Sdiv:
		fmt.Fprintf(b, "\tsdiv\t%s, %s, %s\n", operandStr(i.Dst), operandStr(i.Src1), operandStr(i.Src2))
	case *Msub:
		fmt.Fprintf(b, "\tmsub\t%s, %s, %s, %s\n", operandStr(i.Dst), operandStr(i.Src1), operandStr(i.Src2), operandStr(i.Src3))
	case *B:
		fmt.Fprintf(b, "\tb\t%s\n", localLabel(fn, i.Target))
	case *BCond:
		fmt.Fprintf(b, "\tb.%s\t%s\n", i.Cond, localLabel(fn, i.Target))
	case *Cbz:
		fmt.Fprintf(b, "\tcbz\t%s, %s\n", operandStr(i.Src), localLabel(fn, i.Target))
	case *Cbnz:
		fmt.Fprintf(b, "\tcbnz\t%s, %s\n", operandStr(i.Src), localLabel(fn, i.Target))
	case *LabelInstr:
		fmt.Fprintf(b, "%s:\n", localLabel(fn, i.Name))
	case *Ret:
		b.WriteString("\tret\n")
	default:
		utils.ShouldNotReachHere()
	}
}
