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

// Package errs is AXC's error taxonomy (§7): every stage reports one of
// five kinds, each carrying an optional source location. The kinds wrap
// github.com/pkg/errors so a stack trace is available via "%+v" while
// Error() stays stable at "<kind> error: <loc> <message>" for the CLI.
package errs

import (
	"fmt"

	"github.com/pkg/errors"

	"axc/token"
)

type Kind int

const (
	Lexical Kind = iota
	Parse
	Semantic
	CodeGen
	Generic
)

func (k Kind) String() string {
	switch k {
	case Lexical:
		return "Lexical"
	case Parse:
		return "Parse"
	case Semantic:
		return "Semantic"
	case CodeGen:
		return "CodeGen"
	default:
		return "Generic"
	}
}

// CompileError is the concrete type behind every error AXC raises once a
// source file has been opened. loc is nil for errors with no meaningful
// source position (e.g. an I/O failure).
type CompileError struct {
	kind Kind
	loc  *token.Loc
	err  error
}

func new_(kind Kind, loc *token.Loc, format string, args ...interface{}) *CompileError {
	return &CompileError{kind: kind, loc: loc, err: errors.Errorf(format, args...)}
}

func (e *CompileError) Error() string {
	if e.loc != nil {
		return fmt.Sprintf("%s error: %s %s", e.kind, *e.loc, e.err.Error())
	}
	return fmt.Sprintf("%s error: %s", e.kind, e.err.Error())
}

// Unwrap lets errors.Is/errors.As (stdlib and pkg/errors) see through to
// the wrapped cause.
func (e *CompileError) Unwrap() error { return e.err }

func (e *CompileError) Kind() Kind { return e.kind }

func (e *CompileError) Loc() (token.Loc, bool) {
	if e.loc == nil {
		return token.Loc{}, false
	}
	return *e.loc, true
}

func Lexicalf(loc token.Loc, format string, args ...interface{}) error {
	return new_(Lexical, &loc, format, args...)
}

func Parsef(loc token.Loc, format string, args ...interface{}) error {
	return new_(Parse, &loc, format, args...)
}

func Semanticf(loc token.Loc, format string, args ...interface{}) error {
	return new_(Semantic, &loc, format, args...)
}

func CodeGenf(format string, args ...interface{}) error {
	return new_(CodeGen, nil, format, args...)
}

func CodeGenLocf(loc token.Loc, format string, args ...interface{}) error {
	return new_(CodeGen, &loc, format, args...)
}

// Wrap lifts a foreign error (I/O, os, ...) into the Generic kind, keeping
// its cause chain intact via errors.Wrap.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &CompileError{kind: Generic, err: errors.Wrap(err, message)}
}

// KindOf recovers the Kind of err by walking its cause chain, defaulting to
// Generic for anything that didn't originate in this package.
func KindOf(err error) Kind {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.kind
	}
	return Generic
}
