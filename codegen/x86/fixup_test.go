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
	"strings"
	"testing"

	"axc/parser"
	"axc/sema"
	"axc/tac"
)

func buildAndFixup(t *testing.T, src string) *FunctionDef {
	t.Helper()
	prog, err := parser.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if err := sema.Analyse(prog); err != nil {
		t.Fatalf("sema error: %v", err)
	}
	types := sema.CollectTypes(prog)
	tacProg, err := tac.Generate(prog)
	if err != nil {
		t.Fatalf("tac error: %v", err)
	}
	xProg := Select(tacProg, types)
	var fn *FunctionDef
	for _, tl := range xProg.TopLevel {
		if f, ok := tl.(*FunctionDef); ok && f.Name == "main" {
			fn = f
		}
	}
	AssignStackSlots(fn)
	FixupLegality(fn)
	return fn
}

func TestNoMemoryMemoryInstructionsSurvive(t *testing.T) {
	fn := buildAndFixup(t, "int main(void) { int a=1; int b=2; int c=a+b; return c<b; }")
	for _, i := range fn.Instrs {
		switch i := i.(type) {
		case *Mov:
			if isMemory(i.Src) && isMemory(i.Dst) {
				t.Fatalf("Mov has both operands in memory: %#v", i)
			}
		case *Binary:
			if isMemory(i.Src) && isMemory(i.Dst) {
				t.Fatalf("Binary has both operands in memory: %#v", i)
			}
		case *Cmp:
			if isMemory(i.A) && isMemory(i.B) {
				t.Fatalf("Cmp has both operands in memory: %#v", i)
			}
		}
	}
}

func TestNoImmSecondOperandOnCmp(t *testing.T) {
	fn := buildAndFixup(t, "int main(void) { int a=1; return (a<5) + (5<a); }")
	for _, i := range fn.Instrs {
		if c, ok := i.(*Cmp); ok {
			if _, ok := c.B.(Imm); ok {
				t.Fatalf("Cmp has Imm second operand: %#v", c)
			}
		}
	}
}

func TestNoImmSourceOnIdiv(t *testing.T) {
	fn := buildAndFixup(t, "int main(void) { int a=10; return a/3; }")
	for _, i := range fn.Instrs {
		if d, ok := i.(*Idiv); ok {
			if _, ok := d.Src.(Imm); ok {
				t.Fatalf("Idiv has Imm source: %#v", d)
			}
		}
	}
}

func TestShiftCountRoutedThroughCL(t *testing.T) {
	fn := buildAndFixup(t, "int main(void) { int x=8; int y=2; return x<<y; }")
	var sawShiftWithCL bool
	for _, i := range fn.Instrs {
		if b, ok := i.(*Binary); ok && b.Op == Shl {
			if r, ok := b.Src.(Register); ok && r.Name == CX && r.Size == Byte {
				sawShiftWithCL = true
			}
			if r, ok := b.Src.(Register); ok && r.Name == AX {
				t.Fatalf("shift count should not route through EAX, got %#v", b)
			}
		}
	}
	if !sawShiftWithCL {
		t.Fatalf("expected the shift's count operand to be %%cl, got %#v", fn.Instrs)
	}
}

func TestAllocateStackIsSixteenByteAligned(t *testing.T) {
	fn := buildAndFixup(t, "int main(void) { int a=1; int b=2; int c=3; return a+b+c; }")
	for _, i := range fn.Instrs {
		if as, ok := i.(*AllocateStack); ok {
			if as.Bytes%16 != 0 {
				t.Fatalf("AllocateStack.Bytes = %d, not a multiple of 16", as.Bytes)
			}
			return
		}
	}
	t.Fatalf("expected an AllocateStack instruction, got %#v", fn.Instrs)
}

func TestNoPseudoSurvivesFixup(t *testing.T) {
	fn := buildAndFixup(t, "int main(void) { int a=1; int b=a+1; return b; }")
	for _, instr := range fn.Instrs {
		var bad bool
		rewriteOperands(instr, func(o Operand) Operand {
			if _, ok := o.(Pseudo); ok {
				bad = true
			}
			return o
		})
		if bad {
			t.Fatalf("Pseudo operand survived fix-up: %#v", instr)
		}
	}
}
