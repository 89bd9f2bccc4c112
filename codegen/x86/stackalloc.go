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

// AssignStackSlots rewrites every Pseudo operand in fn to a Stack offset
// from %rbp (§4.5.3). The first Pseudo seen gets -8, the next -16, and so
// on; a name keeps the slot it was first assigned. fn.StackSize is left as
// the number of 8-byte slots handed out.
//
// Slots are 8 bytes wide, not the 4 the spec's int-only formula assumes:
// this back end also stores long locals on the stack, and a long Pseudo
// sharing a 4-byte-strided slot with its neighbor would overlap it. Uniform
// 8-byte slots keep every Stack offset safely aligned for both widths, at
// the cost of wasting 4 bytes per int-sized local.
func AssignStackSlots(fn *FunctionDef) {
	offsets := make(map[string]int)
	next := 0

	rewrite := func(o Operand) Operand {
		p, ok := o.(Pseudo)
		if !ok {
			return o
		}
		off, seen := offsets[p.Name]
		if !seen {
			next++
			off = -8 * next
			offsets[p.Name] = off
		}
		return Stack{Offset: off}
	}

	for _, instr := range fn.Instrs {
		rewriteOperands(instr, rewrite)
	}
	fn.StackSize = next
}

// rewriteOperands applies f to every operand field of instr in place.
func rewriteOperands(instr Instruction, f func(Operand) Operand) {
	switch i := instr.(type) {
	case *Mov:
		i.Src, i.Dst = f(i.Src), f(i.Dst)
	case *Movsx:
		i.Src, i.Dst = f(i.Src), f(i.Dst)
	case *Unary:
		i.Operand = f(i.Operand)
	case *Binary:
		i.Src, i.Dst = f(i.Src), f(i.Dst)
	case *Cmp:
		i.A, i.B = f(i.A), f(i.B)
	case *Idiv:
		i.Src = f(i.Src)
	case *SetCC:
		i.Operand = f(i.Operand)
	case *Push:
		i.Operand = f(i.Operand)
	case *Cdq, *Jump, *JumpCC, *Label, *AllocateStack, *DeallocateStack, *Call, *Ret:
		// No operands to rewrite.
	}
}
