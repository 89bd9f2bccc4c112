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

func compileToAsm(t *testing.T, src string, goos string) string {
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
		if fn, ok := tl.(*FunctionDef); ok {
			AssignStackSlots(fn)
			FixupLegality(fn)
		}
	}
	return Emit(xProg, goos)
}

func TestEmitReturnConstant(t *testing.T) {
	asm := compileToAsm(t, "int main(void) { return 2; }", "linux")
	if !strings.Contains(asm, "movl\t$2, %eax") {
		t.Fatalf("expected movl $2, %%eax in:\n%s", asm)
	}
	if !strings.Contains(asm, "ret") {
		t.Fatalf("expected a ret in:\n%s", asm)
	}
}

func TestEmitLinuxHasNoUnderscorePrefixAndNoteSection(t *testing.T) {
	asm := compileToAsm(t, "int main(void) { return 0; }", "linux")
	if strings.Contains(asm, "_main:") {
		t.Fatalf("Linux output should not prefix main with an underscore:\n%s", asm)
	}
	if !strings.Contains(asm, ".note.GNU-stack") {
		t.Fatalf("expected a trailing .note.GNU-stack section on Linux:\n%s", asm)
	}
}

func TestEmitDarwinPrefixesUnderscoreAndOmitsNoteSection(t *testing.T) {
	asm := compileToAsm(t, "int main(void) { return 0; }", "darwin")
	if !strings.Contains(asm, "_main:") {
		t.Fatalf("expected _main: on darwin:\n%s", asm)
	}
	if strings.Contains(asm, ".note.GNU-stack") {
		t.Fatalf("darwin output should not carry .note.GNU-stack:\n%s", asm)
	}
}

func TestEmitLocalLabelsAreNamespacedPerFunction(t *testing.T) {
	asm := compileToAsm(t, "int main(void) { int x=0; while (x<3) { x=x+1; } return x; }", "linux")
	if !strings.Contains(asm, ".Lmain.loop.1_continue:") {
		t.Fatalf("expected a namespaced local label in:\n%s", asm)
	}
}
