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
	"fmt"
	"strings"

	"axc/utils"
)

// regNames maps (RegName, Size) to its AT&T mnemonic. Push always widens to
// the Qword name (§4.5.5).
var regNames = map[RegName][3]string{
	AX:  {"al", "eax", "rax"},
	CX:  {"cl", "ecx", "rcx"},
	DX:  {"dl", "edx", "rdx"},
	DI:  {"dil", "edi", "rdi"},
	SI:  {"sil", "esi", "rsi"},
	R8:  {"r8b", "r8d", "r8"},
	R9:  {"r9b", "r9d", "r9"},
	R10: {"r10b", "r10d", "r10"},
	R11: {"r11b", "r11d", "r11"},
}

func regName(name RegName, size Size) string {
	return regNames[name][int(size)]
}

// emitter carries the per-OS conventions §4.5.5 describes: macOS prefixes
// global symbols with "_" and local labels with "L"; Linux/FreeBSD use no
// symbol prefix, ".L" for local labels, and a trailing note.GNU-stack
// section (so the linker doesn't mark the object executable-stack).
type emitter struct {
	buf        strings.Builder
	macOS      bool
	symPrefix  string
	labelPrefix string
	funcName   string
}

// Emit renders prog as GAS-syntax assembly text for goos ("darwin",
// "linux", or "freebsd" — the three §6 "Environment" names).
func Emit(prog *Program, goos string) string {
	e := &emitter{macOS: goos == "darwin"}
	if e.macOS {
		e.symPrefix = "_"
		e.labelPrefix = "L"
	} else {
		e.symPrefix = ""
		e.labelPrefix = ".L"
	}

	for _, tl := range prog.TopLevel {
		switch tl := tl.(type) {
		case *FunctionDef:
			e.emitFunction(tl)
		case *StaticVariable:
			e.emitStatic(tl)
		default:
			utils.ShouldNotReachHere()
		}
	}

	if !e.macOS {
		e.buf.WriteString("\t.section .note.GNU-stack,\"\",@progbits\n")
	}
	return e.buf.String()
}

func (e *emitter) sym(name string) string { return e.symPrefix + name }

// local namespaces a TAC-derived label under the emitting function, per
// §4.5.5 "Local labels are namespaced {prefix}{function}.{label}".
func (e *emitter) local(name string) string {
	return fmt.Sprintf("%s%s.%s", e.labelPrefix, e.funcName, name)
}

func (e *emitter) emitFunction(fn *FunctionDef) {
	e.funcName = fn.Name
	if fn.Global {
		fmt.Fprintf(&e.buf, "\t.globl %s\n", e.sym(fn.Name))
	}
	e.buf.WriteString("\t.text\n")
	fmt.Fprintf(&e.buf, "%s:\n", e.sym(fn.Name))
	e.buf.WriteString("\tpushq\t%rbp\n")
	e.buf.WriteString("\tmovq\t%rsp, %rbp\n")
	for _, instr := range fn.Instrs {
		e.emitInstr(instr)
	}
}

func (e *emitter) emitStatic(sv *StaticVariable) {
	if sv.Global {
		fmt.Fprintf(&e.buf, "\t.globl %s\n", e.sym(sv.Name))
	}
	if sv.Init == 0 {
		e.buf.WriteString("\t.bss\n")
	} else {
		e.buf.WriteString("\t.data\n")
	}
	fmt.Fprintf(&e.buf, "\t.align %d\n", sv.Size)
	fmt.Fprintf(&e.buf, "%s:\n", e.sym(sv.Name))
	if sv.Init == 0 {
		fmt.Fprintf(&e.buf, "\t.zero %d\n", sv.Size)
		return
	}
	directive := ".long"
	if sv.Size == 8 {
		directive = ".quad"
	}
	fmt.Fprintf(&e.buf, "\t%s %d\n", directive, sv.Init)
}

func (e *emitter) operand(o Operand) string {
	switch o := o.(type) {
	case Imm:
		return fmt.Sprintf("$%d", o.Value)
	case Register:
		return "%" + regName(o.Name, o.Size)
	case Stack:
		return fmt.Sprintf("%d(%%rbp)", o.Offset)
	case Data:
		return fmt.Sprintf("%s(%%rip)", e.sym(o.Name))
	case Pseudo:
		utils.ShouldNotReachHere() // a Pseudo surviving to emission is a compiler bug
		return ""
	default:
		utils.ShouldNotReachHere()
		return ""
	}
}

func (e *emitter) emitInstr(instr Instruction) {
	switch i := instr.(type) {
	case *Mov:
		fmt.Fprintf(&e.buf, "\tmov%s\t%s, %s\n", i.Size, e.operand(i.Src), e.operand(i.Dst))
	case *Movsx:
		fmt.Fprintf(&e.buf, "\tmovslq\t%s, %s\n", e.operand(i.Src), e.operand(i.Dst))
	case *Unary:
		mnemonic := "neg"
		if i.Op == Not {
			mnemonic = "not"
		}
		fmt.Fprintf(&e.buf, "\t%sl\t%s\n", mnemonic, e.operand(i.Operand))
	case *Binary:
		fmt.Fprintf(&e.buf, "\t%s%s\t%s, %s\n", i.Op.mnemonic(), i.Size, e.operand(i.Src), e.operand(i.Dst))
	case *Cmp:
		fmt.Fprintf(&e.buf, "\tcmp%s\t%s, %s\n", i.Size, e.operand(i.A), e.operand(i.B))
	case *Idiv:
		fmt.Fprintf(&e.buf, "\tidiv%s\t%s\n", i.Size, e.operand(i.Src))
	case *Cdq:
		e.buf.WriteString("\tcdq\n")
	case *Jump:
		fmt.Fprintf(&e.buf, "\tjmp\t%s\n", e.local(i.Target))
	case *JumpCC:
		fmt.Fprintf(&e.buf, "\tj%s\t%s\n", i.Cond, e.local(i.Target))
	case *SetCC:
		fmt.Fprintf(&e.buf, "\tset%s\t%s\n", i.Cond, e.setCCOperand(i.Operand))
	case *Label:
		fmt.Fprintf(&e.buf, "%s:\n", e.local(i.Name))
	case *AllocateStack:
		fmt.Fprintf(&e.buf, "\tsubq\t$%d, %%rsp\n", i.Bytes)
	case *DeallocateStack:
		fmt.Fprintf(&e.buf, "\taddq\t$%d, %%rsp\n", i.Bytes)
	case *Push:
		fmt.Fprintf(&e.buf, "\tpushq\t%s\n", e.operand(widenToQword(i.Operand)))
	case *Call:
		fmt.Fprintf(&e.buf, "\tcall\t%s\n", e.sym(i.Name))
	case *Ret:
		e.buf.WriteString("\tmovq\t%rbp, %rsp\n")
		e.buf.WriteString("\tpopq\t%rbp\n")
		e.buf.WriteString("\tret\n")
	default:
		utils.ShouldNotReachHere()
	}
}

// setCC always writes a single byte; a memory destination stays untouched,
// a register destination is narrowed to its byte name.
func (e *emitter) setCCOperand(o Operand) string {
	if r, ok := o.(Register); ok {
		return "%" + regName(r.Name, Byte)
	}
	return e.operand(o)
}

func widenToQword(o Operand) Operand {
	if r, ok := o.(Register); ok {
		return Register{Name: r.Name, Size: Qword}
	}
	return o
}
