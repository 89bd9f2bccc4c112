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

// Package driver orchestrates the fixed pipeline described in §5: Lexer ->
// Parser -> Semantic -> TAC -> Machine-IR -> Stack-assignment -> Fix-ups ->
// Emission, each stage consuming its predecessor's complete output. It is
// the one package that knows about every other package; cmd/axc builds an
// Options value and calls Run.
package driver

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"axc/ast"
	"axc/codegen/arm64"
	"axc/codegen/x86"
	"axc/errs"
	"axc/lexer"
	"axc/parser"
	"axc/sema"
	"axc/tac"
	"axc/token"
)

// Stage is a bitmask (§C.1 of SPEC_FULL.md): "-t/--tacky" means Lex|Parse|
// Semantic|Tac all run, not Tac in isolation, per the richer variant of
// option.h's Stages enum named canonical in the spec's design notes.
type Stage int

const (
	StageLex Stage = 1 << iota
	StageParse
	StageSemantic
	StageTac
	StageCodeGen
	StageFile
)

const StageAll = StageLex | StageParse | StageSemantic | StageTac | StageCodeGen | StageFile

// Machine selects the target back end (§6 "-m/--machine").
type Machine int

const (
	MachineX86_64 Machine = iota
	MachineARM64
)

func ParseMachine(s string) (Machine, error) {
	switch strings.ToLower(s) {
	case "x86_64", "amd64", "":
		return MachineX86_64, nil
	case "aarch64", "arm64":
		return MachineARM64, nil
	default:
		return 0, fmt.Errorf("unknown machine %q (want x86_64, amd64, aarch64, or arm64)", s)
	}
}

// Options mirrors the CLI surface in §6, already parsed by cmd/axc.
type Options struct {
	Input   string
	Stage   Stage
	Machine Machine
	Silent  bool
	GOOS    string // defaults to runtime.GOOS; overridable for tests
}

func (o Options) logf(format string, args ...interface{}) {
	if o.Silent {
		return
	}
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

// Run executes the pipeline up to the highest stage Options.Stage names,
// writing the output file only when StageFile is set. It returns the first
// error any stage raises; stages never partially recover.
func Run(opts Options) error {
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}

	src, err := os.ReadFile(opts.Input)
	if err != nil {
		return errs.Wrap(err, "reading input file")
	}

	opts.logf("Run lexer")
	if opts.Stage&StageParse == 0 {
		return runLexOnly(opts, src)
	}

	opts.logf("Run parser")
	prog, err := parser.Parse(bytes.NewReader(src))
	if err != nil {
		return err
	}
	if opts.Stage&StageSemantic == 0 {
		PrintAST(os.Stdout, prog)
		return nil
	}

	opts.logf("Run semantic analysis")
	if err := sema.Analyse(prog); err != nil {
		return err
	}
	if opts.Stage&StageTac == 0 {
		return nil
	}

	opts.logf("Run tacky generation")
	types := sema.CollectTypes(prog)
	tacProg, err := tac.Generate(prog)
	if err != nil {
		return err
	}
	if opts.Stage&StageCodeGen == 0 {
		return nil
	}

	opts.logf("Run code generation")
	text, err := codegen(opts, tacProg, types)
	if err != nil {
		return err
	}
	if opts.Stage&StageFile == 0 {
		return nil
	}

	outPath := outputPath(opts.Input)
	if err := os.WriteFile(outPath, []byte(text), 0644); err != nil {
		return errs.Wrap(err, "writing output file")
	}
	opts.logf("Wrote %s", outPath)
	return nil
}

// runLexOnly drains the token stream for its errors and side effects
// without handing anything to the parser, matching "-l/--lex".
func runLexOnly(opts Options, src []byte) error {
	lx := lexer.New(bytes.NewReader(src))
	for {
		tok, err := lx.Next()
		if err != nil {
			return err
		}
		if tok.Kind == token.EOF {
			return nil
		}
	}
}

func codegen(opts Options, tacProg *tac.Program, types *sema.TypeInfo) (string, error) {
	switch opts.Machine {
	case MachineARM64:
		prog, err := arm64.Select(tacProg, types)
		if err != nil {
			return "", err
		}
		return arm64.Emit(prog), nil
	default:
		prog := x86.Select(tacProg, types)
		for _, tl := range prog.TopLevel {
			if fn, ok := tl.(*x86.FunctionDef); ok {
				x86.AssignStackSlots(fn)
				x86.FixupLegality(fn)
			}
		}
		return x86.Emit(prog, opts.GOOS), nil
	}
}

func outputPath(input string) string {
	dir := filepath.Dir(input)
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, name+".s")
}

// PrintAST is a debug helper exposed for "-p/--parse" callers that also
// want to inspect the tree (mirrors the teacher's DebugPrintAst switch).
func PrintAST(w io.Writer, prog *ast.Program) {
	fmt.Fprint(w, ast.Print(prog))
}
