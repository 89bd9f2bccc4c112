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

package x86

import (
	"axc/sema"
	"axc/tac"
	"axc/utils"
)

// paramRegs are the System V AMD64 integer argument registers, in order
// (§4.5.2). Only the first 6 arguments travel in registers; the rest are
// pushed on the stack, right to left.
var paramRegs = []RegName{DI, SI, DX, CX, R8, R9}

var binOpTable = map[tac.BinaryOp]BinaryOp{
	tac.OpAdd:       Add,
	tac.OpSubtract:  Sub,
	tac.OpMultiply:  Mul,
	tac.OpBitAnd:    And,
	tac.OpBitOr:     Or,
	tac.OpBitXor:    Xor,
	tac.OpShiftLeft: Shl,
	tac.OpShiftRight: Shr,
}

var relOpTable = map[tac.BinaryOp]CondCode{
	tac.OpEqual:        E,
	tac.OpNotEqual:     NE,
	tac.OpLess:         L,
	tac.OpLessEqual:    LE,
	tac.OpGreater:      G,
	tac.OpGreaterEqual: GE,
}

// Select lowers tac.Program into the x86-64 machine IR with Pseudo
// operands (§4.5.1). types supplies the width of every named value; a name
// absent from types (a compiler-generated temporary) defaults to 4 bytes.
func Select(prog *tac.Program, types *sema.TypeInfo) *Program {
	out := &Program{}
	for _, tl := range prog.TopLevel {
		switch tl := tl.(type) {
		case *tac.FunctionDef:
			out.TopLevel = append(out.TopLevel, selectFunction(tl, types))
		case *tac.StaticVariable:
			out.TopLevel = append(out.TopLevel, &StaticVariable{
				Name: tl.Name, Global: tl.Global, Size: tl.Size, Init: tl.Init,
			})
		default:
			utils.ShouldNotReachHere()
		}
	}
	return out
}

type selector struct {
	types  *sema.TypeInfo
	instrs []Instruction
}

func (s *selector) emit(i Instruction) { s.instrs = append(s.instrs, i) }

func (s *selector) sizeOf(v tac.Value) Size {
	switch v := v.(type) {
	case tac.Variable:
		return SizeOf(s.types.Width(v.Name))
	default:
		return Long
	}
}

func (s *selector) operand(v tac.Value) Operand {
	switch v := v.(type) {
	case tac.Constant:
		return Imm{Value: v.Value}
	case tac.Variable:
		return Pseudo{Name: v.Name}
	default:
		utils.ShouldNotReachHere()
		return nil
	}
}

func selectFunction(fn *tac.FunctionDef, types *sema.TypeInfo) *FunctionDef {
	s := &selector{types: types}

	// Prologue: move incoming parameters out of the argument registers (or
	// their stack slots, for the 7th parameter onward) into their pseudos.
	for i, name := range fn.Params {
		size := SizeOf(types.Width(name))
		if i < len(paramRegs) {
			s.emit(&Mov{Size: size, Src: Register{Name: paramRegs[i], Size: size}, Dst: Pseudo{Name: name}})
		} else {
			stackIdx := i - len(paramRegs)
			// Caller-pushed args sit above the saved %rbp/return address.
			s.emit(&Mov{Size: size, Src: Stack{Offset: 16 + 8*stackIdx}, Dst: Pseudo{Name: name}})
		}
	}

	for _, instr := range fn.Instrs {
		s.selectInstr(instr)
	}

	return &FunctionDef{Name: fn.Name, Global: fn.Global, Instrs: s.instrs}
}

func (s *selector) selectInstr(instr tac.Instruction) {
	switch i := instr.(type) {
	case *tac.Return:
		sz := s.sizeOf(i.Val)
		s.emit(&Mov{Size: sz, Src: s.operand(i.Val), Dst: Register{Name: AX, Size: sz}})
		s.emit(&Ret{})

	case *tac.Unary:
		s.selectUnary(i)

	case *tac.Binary:
		s.selectBinary(i)

	case *tac.Copy:
		dstSize := s.sizeOf(i.Dst)
		srcSize := s.sizeOf(i.Src)
		if srcSize == Long && dstSize == Qword {
			s.emit(&Movsx{Src: s.operand(i.Src), Dst: s.operand(i.Dst)})
			return
		}
		s.emit(&Mov{Size: dstSize, Src: s.operand(i.Src), Dst: s.operand(i.Dst)})

	case *tac.Jump:
		s.emit(&Jump{Target: i.Target})

	case *tac.JumpIfZero:
		sz := s.sizeOf(i.Cond)
		s.emit(&Cmp{Size: sz, A: Imm{Value: 0}, B: s.operand(i.Cond)})
		s.emit(&JumpCC{Cond: E, Target: i.Target})

	case *tac.JumpIfNotZero:
		sz := s.sizeOf(i.Cond)
		s.emit(&Cmp{Size: sz, A: Imm{Value: 0}, B: s.operand(i.Cond)})
		s.emit(&JumpCC{Cond: NE, Target: i.Target})

	case *tac.Label:
		s.emit(&Label{Name: i.Name})

	case *tac.FunCall:
		s.selectCall(i)

	default:
		utils.ShouldNotReachHere()
	}
}

func (s *selector) selectUnary(i *tac.Unary) {
	sz := s.sizeOf(i.Dst)
	if i.Op == tac.OpNot {
		s.emit(&Cmp{Size: sz, A: Imm{Value: 0}, B: s.operand(i.Src)})
		s.emit(&Mov{Size: sz, Src: Imm{Value: 0}, Dst: s.operand(i.Dst)})
		s.emit(&SetCC{Cond: E, Operand: s.operand(i.Dst)})
		return
	}
	op := Neg
	if i.Op == tac.OpComplement {
		op = Not
	}
	s.emit(&Mov{Size: sz, Src: s.operand(i.Src), Dst: s.operand(i.Dst)})
	s.emit(&Unary{Op: op, Operand: s.operand(i.Dst)})
}

func (s *selector) selectBinary(i *tac.Binary) {
	sz := s.sizeOf(i.Dst)

	if i.Op == tac.OpDivide || i.Op == tac.OpModulo {
		s.emit(&Mov{Size: sz, Src: s.operand(i.Src1), Dst: Register{Name: AX, Size: sz}})
		s.emit(&Cdq{})
		s.emit(&Idiv{Size: sz, Src: s.operand(i.Src2)})
		result := AX
		if i.Op == tac.OpModulo {
			result = DX
		}
		s.emit(&Mov{Size: sz, Src: Register{Name: result, Size: sz}, Dst: s.operand(i.Dst)})
		return
	}

	if cc, ok := relOpTable[i.Op]; ok {
		s.emit(&Cmp{Size: sz, A: s.operand(i.Src2), B: s.operand(i.Src1)})
		s.emit(&Mov{Size: sz, Src: Imm{Value: 0}, Dst: s.operand(i.Dst)})
		s.emit(&SetCC{Cond: cc, Operand: s.operand(i.Dst)})
		return
	}

	op := binOpTable[i.Op]
	s.emit(&Mov{Size: sz, Src: s.operand(i.Src1), Dst: s.operand(i.Dst)})
	s.emit(&Binary{Op: op, Size: sz, Src: s.operand(i.Src2), Dst: s.operand(i.Dst)})
}

func (s *selector) selectCall(i *tac.FunCall) {
	regArgs := i.Args
	var stackArgs []tac.Value
	if len(regArgs) > len(paramRegs) {
		stackArgs = regArgs[len(paramRegs):]
		regArgs = regArgs[:len(paramRegs)]
	}

	pad := 0
	if len(stackArgs)%2 == 1 {
		pad = 8
	}
	if pad != 0 {
		s.emit(&AllocateStack{Bytes: pad})
	}

	for idx, arg := range regArgs {
		sz := s.sizeOf(arg)
		s.emit(&Mov{Size: sz, Src: s.operand(arg), Dst: Register{Name: paramRegs[idx], Size: sz}})
	}

	// Stack arguments are pushed right to left so they land in left-to-right
	// order on the callee's frame.
	for idx := len(stackArgs) - 1; idx >= 0; idx-- {
		arg := stackArgs[idx]
		operand := s.operand(arg)
		if _, ok := operand.(Imm); ok {
			s.emit(&Push{Operand: operand})
			continue
		}
		sz := s.sizeOf(arg)
		if sz == Qword {
			s.emit(&Push{Operand: operand})
		} else {
			// Push always moves 8 bytes; widen a 4-byte value through AX first.
			s.emit(&Mov{Size: Long, Src: operand, Dst: Register{Name: AX, Size: Long}})
			s.emit(&Push{Operand: Register{Name: AX, Size: Qword}})
		}
	}

	s.emit(&Call{Name: i.Name})

	reclaim := pad + 8*len(stackArgs)
	if reclaim != 0 {
		s.emit(&DeallocateStack{Bytes: reclaim})
	}

	dstSize := s.sizeOf(i.Dst)
	s.emit(&Mov{Size: dstSize, Src: Register{Name: AX, Size: dstSize}, Dst: s.operand(i.Dst)})
}
