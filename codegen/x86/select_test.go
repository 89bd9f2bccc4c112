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

func selectSrc(t *testing.T, src string) *FunctionDef {
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
	for _, tl := range xProg.TopLevel {
		if fn, ok := tl.(*FunctionDef); ok && fn.Name == "main" {
			return fn
		}
	}
	t.Fatalf("no main in selected program")
	return nil
}

func TestReturnConstantSelectsMovEax(t *testing.T) {
	fn := selectSrc(t, "int main(void) { return 2; }")
	found := false
	for _, i := range fn.Instrs {
		if m, ok := i.(*Mov); ok {
			if r, ok := m.Dst.(Register); ok && r.Name == AX {
				if imm, ok := m.Src.(Imm); ok && imm.Value == 2 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatalf("expected Mov $2, %%eax among %#v", fn.Instrs)
	}
}

func TestDivideSelectsCdqAndIdiv(t *testing.T) {
	fn := selectSrc(t, "int main(void) { int a=10; int b=3; return a/b; }")
	var sawCdq, sawIdiv bool
	for _, i := range fn.Instrs {
		switch i.(type) {
		case *Cdq:
			sawCdq = true
		case *Idiv:
			sawIdiv = true
		}
	}
	if !sawCdq || !sawIdiv {
		t.Fatalf("expected Cdq and Idiv, got %#v", fn.Instrs)
	}
}

func TestRelationalSelectsCmpAndSetCC(t *testing.T) {
	fn := selectSrc(t, "int main(void) { int a=1; int b=2; return a<b; }")
	var sawCmp, sawSetCC bool
	for _, i := range fn.Instrs {
		switch v := i.(type) {
		case *Cmp:
			sawCmp = true
		case *SetCC:
			sawSetCC = true
			if v.Cond != L {
				t.Fatalf("expected SetCC L, got %v", v.Cond)
			}
		}
	}
	if !sawCmp || !sawSetCC {
		t.Fatalf("expected Cmp+SetCC, got %#v", fn.Instrs)
	}
}

func TestFunctionCallMovesArgsIntoParamRegisters(t *testing.T) {
	fn := selectSrc(t, "int f(int a, int b); int main(void) { return f(1, 2); }")
	var movsToDIandSI int
	for _, i := range fn.Instrs {
		if m, ok := i.(*Mov); ok {
			if r, ok := m.Dst.(Register); ok && (r.Name == DI || r.Name == SI) {
				movsToDIandSI++
			}
		}
	}
	if movsToDIandSI < 2 {
		t.Fatalf("expected args moved into DI/SI, got %#v", fn.Instrs)
	}
}

func TestIntAssignedToLongSelectsMovsx(t *testing.T) {
	fn := selectSrc(t, "int main(void) { long a = 0; int b = 5; a = b; return 0; }")
	var sawMovsx bool
	for _, i := range fn.Instrs {
		if _, ok := i.(*Movsx); ok {
			sawMovsx = true
		}
	}
	if !sawMovsx {
		t.Fatalf("expected a Movsx for the int->long assignment, got %#v", fn.Instrs)
	}
}
