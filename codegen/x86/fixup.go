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

// scratch1/scratch2 are the two caller-saved registers reserved for the
// fix-up pass to shuttle operands through (§4.5.4); neither is ever a
// register AssignStackSlots or Select hands to a live value.
func scratch1(sz Size) Register { return Register{Name: R10, Size: sz} }
func scratch2(sz Size) Register { return Register{Name: R11, Size: sz} }

// FixupLegality rewrites fn's instructions so every invariant in §3.6 post
// fix-up holds. Must run after AssignStackSlots.
func FixupLegality(fn *FunctionDef) {
	var out []Instruction

	if fn.StackSize > 0 {
		// *8, not the spec's int-only *4: AssignStackSlots hands out 8-byte
		// slots so a long local never overlaps its neighbor.
		out = append(out, &AllocateStack{Bytes: roundUp16(fn.StackSize * 8)})
	}

	for _, instr := range fn.Instrs {
		out = append(out, fixupInstr(instr)...)
	}

	fn.Instrs = out
}

func fixupInstr(instr Instruction) []Instruction {
	switch i := instr.(type) {
	case *Mov:
		if isMemory(i.Src) && isMemory(i.Dst) {
			tmp := scratch1(i.Size)
			return []Instruction{
				&Mov{Size: i.Size, Src: i.Src, Dst: tmp},
				&Mov{Size: i.Size, Src: tmp, Dst: i.Dst},
			}
		}
		return []Instruction{i}

	case *Movsx:
		// Movsx can neither read nor write memory directly.
		var pre, post []Instruction
		src, dst := i.Src, i.Dst
		if isMemory(src) {
			tmp := scratch1(Long)
			pre = append(pre, &Mov{Size: Long, Src: src, Dst: tmp})
			src = tmp
		}
		if isMemory(dst) {
			tmp := scratch2(Qword)
			post = append(post, &Mov{Size: Qword, Src: tmp, Dst: dst})
			dst = tmp
		}
		return append(append(pre, &Movsx{Src: src, Dst: dst}), post...)

	case *Idiv:
		if _, ok := i.Src.(Imm); ok {
			tmp := scratch1(i.Size)
			return []Instruction{
				&Mov{Size: i.Size, Src: i.Src, Dst: tmp},
				&Idiv{Size: i.Size, Src: tmp},
			}
		}
		return []Instruction{i}

	case *Binary:
		switch i.Op {
		case Add, Sub, And, Or, Xor:
			if isMemory(i.Src) && isMemory(i.Dst) {
				tmp := scratch1(i.Size)
				return []Instruction{
					&Mov{Size: i.Size, Src: i.Src, Dst: tmp},
					&Binary{Op: i.Op, Size: i.Size, Src: tmp, Dst: i.Dst},
				}
			}
			return []Instruction{i}
		case Mul:
			if isMemory(i.Dst) {
				tmp := scratch2(i.Size)
				return []Instruction{
					&Mov{Size: i.Size, Src: i.Dst, Dst: tmp},
					&Binary{Op: Mul, Size: i.Size, Src: i.Src, Dst: tmp},
					&Mov{Size: i.Size, Src: tmp, Dst: i.Dst},
				}
			}
			return []Instruction{i}
		case Shl, Shr:
			// Route the shift count through CL directly; the source's
			// original implementation routed it through EAX and wrote the
			// shifted value back from there, corrupting a live EAX (§9).
			if _, ok := i.Src.(Imm); ok {
				return []Instruction{i}
			}
			return []Instruction{
				&Mov{Size: Long, Src: i.Src, Dst: Register{Name: CX, Size: Long}},
				&Binary{Op: i.Op, Size: i.Size, Src: Register{Name: CX, Size: Byte}, Dst: i.Dst},
			}
		default:
			return []Instruction{i}
		}

	case *Cmp:
		// These two cases are mutually exclusive: a memory/memory pair is
		// never also Imm-second-operand, since Imm is never a memory
		// operand. The source's unconditional fallthrough (§9) could
		// double-rewrite a memory/Imm pair; an if/else keeps them disjoint.
		if isMemory(i.A) && isMemory(i.B) {
			tmp := scratch1(i.Size)
			return []Instruction{
				&Mov{Size: i.Size, Src: i.A, Dst: tmp},
				&Cmp{Size: i.Size, A: tmp, B: i.B},
			}
		} else if _, ok := i.B.(Imm); ok {
			tmp := scratch2(i.Size)
			return []Instruction{
				&Mov{Size: i.Size, Src: i.B, Dst: tmp},
				&Cmp{Size: i.Size, A: i.A, B: tmp},
			}
		}
		return []Instruction{i}

	default:
		return []Instruction{i}
	}
}
