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

package main

import (
	"flag"
	"fmt"
	"os"

	"axc/driver"
)

func main() {
	var (
		silent   = flag.Bool("s", false, "suppress per-stage progress messages")
		machine  = flag.String("m", "x86_64", "target machine: x86_64, amd64, aarch64, or arm64")
		lexOnly  = flag.Bool("l", false, "stop after lexing")
		parse    = flag.Bool("p", false, "stop after parsing")
		validate = flag.Bool("v", false, "stop after semantic analysis")
		tacky    = flag.Bool("t", false, "stop after TAC generation")
		codegen  = flag.Bool("c", false, "stop after machine-IR generation, without writing a file")
	)
	flag.BoolVar(silent, "silent", false, "suppress per-stage progress messages")
	flag.StringVar(machine, "machine", "x86_64", "target machine: x86_64, amd64, aarch64, or arm64")
	flag.BoolVar(lexOnly, "lex", false, "stop after lexing")
	flag.BoolVar(parse, "parse", false, "stop after parsing")
	flag.BoolVar(validate, "validate", false, "stop after semantic analysis")
	flag.BoolVar(tacky, "tacky", false, "stop after TAC generation")
	flag.BoolVar(codegen, "codegen", false, "stop after machine-IR generation, without writing a file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: axc [-s|--silent] [-m|--machine {x86_64|amd64|aarch64|arm64}]")
		fmt.Fprintln(os.Stderr, "           [-l|--lex | -p|--parse | -v|--validate | -t|--tacky | -c|--codegen] <file>")
		os.Exit(1)
	}

	stageFlags := []bool{*lexOnly, *parse, *validate, *tacky, *codegen}
	selected := 0
	for _, f := range stageFlags {
		if f {
			selected++
		}
	}
	if selected > 1 {
		fmt.Fprintln(os.Stderr, "GenericError: -l, -p, -v, -t, and -c are mutually exclusive")
		os.Exit(1)
	}

	m, err := driver.ParseMachine(*machine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "GenericError: %v\n", err)
		os.Exit(1)
	}

	stage := driver.StageAll
	switch {
	case *lexOnly:
		stage = driver.StageLex
	case *parse:
		stage = driver.StageLex | driver.StageParse
	case *validate:
		stage = driver.StageLex | driver.StageParse | driver.StageSemantic
	case *tacky:
		stage = driver.StageLex | driver.StageParse | driver.StageSemantic | driver.StageTac
	case *codegen:
		stage = driver.StageLex | driver.StageParse | driver.StageSemantic | driver.StageTac | driver.StageCodeGen
	}

	opts := driver.Options{
		Input:   flag.Arg(0),
		Stage:   stage,
		Machine: m,
		Silent:  *silent,
	}

	if err := driver.Run(opts); err != nil {
		fmt.Fprintln(os.Stdout, err.Error())
		os.Exit(1)
	}
}
