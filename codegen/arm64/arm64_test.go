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

package arm64

import (
	"strings"
	"testing"

	"axc/parser"
	"axc/sema"
	"axc/tac"
)

func selectSrc(t *testing.T, src string) (*Program, error) {
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
	return Select(tacProg, types)
}

func TestSimpleReturnSelectsAndEmits(t *testing.T) {
	p, err := selectSrc(t, "int main(void) { return 2; }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	asm := Emit(p)
	if !strings.Contains(asm, "mov\tw0, #2") {
		t.Fatalf("expected mov w0, #2 in:\n%s", asm)
	}
	if !strings.Contains(asm, "ret") {
		t.Fatalf("expected ret in:\n%s", asm)
	}
}

func TestAdditionLowersToAdd(t *testing.T) {
	p, err := selectSrc(t, "int main(void) { int a=1; int b=2; return a+b; }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	asm := Emit(p)
	if !strings.Contains(asm, "add\t") {
		t.Fatalf("expected an add in:\n%s", asm)
	}
}

func TestCallIsRejectedWithCodeGenError(t *testing.T) {
	_, err := selectSrc(t, "int f(void); int main(void) { return f(); }")
	if err == nil || !strings.Contains(err.Error(), "does not support calls") {
		t.Fatalf("expected a CodeGen error naming the call, got %v", err)
	}
}

func TestParametersAreRejectedWithCodeGenError(t *testing.T) {
	_, err := selectSrc(t, "int f(int a) { return a; }")
	if err == nil || !strings.Contains(err.Error(), "does not support parameters") {
		t.Fatalf("expected a CodeGen error naming the unsupported parameter, got %v", err)
	}
}

func TestWhileLoopLowersToCbzBranch(t *testing.T) {
	p, err := selectSrc(t, "int main(void) { int x=0; while (x<3) { x=x+1; } return x; }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	asm := Emit(p)
	if !strings.Contains(asm, "cset\t") {
		t.Fatalf("expected a cset for the < comparison in:\n%s", asm)
	}
	if !strings.Contains(asm, "cbz\t") {
		t.Fatalf("expected a cbz for the loop exit in:\n%s", asm)
	}
}
