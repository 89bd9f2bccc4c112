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

package lexer

import (
	"strings"
	"testing"

	"axc/token"
)

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()
	l := New(strings.NewReader(src))
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			t.Fatalf("unexpected lex error: %v", err)
		}
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}

func kinds(toks []token.Token) []token.Kind {
	ks := make([]token.Kind, len(toks))
	for i, t := range toks {
		ks[i] = t.Kind
	}
	return ks
}

func sameKinds(t *testing.T, got []token.Kind, want []token.Kind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("kind count mismatch: got %v want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("kind[%d]: got %v want %v (full: got %v want %v)", i, got[i], want[i], got, want)
		}
	}
}

func TestMaximalMunch(t *testing.T) {
	cases := []struct {
		src  string
		want []token.Kind
	}{
		{"+ ++ += + +", []token.Kind{token.PLUS, token.PLUSPLUS, token.PLUS_EQ, token.PLUS, token.PLUS, token.EOF}},
		{"<<= << <= <", []token.Kind{token.SHL_EQ, token.SHL, token.LE, token.LESS, token.EOF}},
		{">>= >> >= >", []token.Kind{token.SHR_EQ, token.SHR, token.GE, token.GREATER, token.EOF}},
		{"&& & &=", []token.Kind{token.ANDAND, token.AMP, token.AMP_EQ, token.EOF}},
		{"|| | |=", []token.Kind{token.OROR, token.PIPE, token.PIPE_EQ, token.EOF}},
		{"== = !=  !", []token.Kind{token.EQ, token.ASSIGN, token.NE, token.BANG, token.EOF}},
	}
	for _, c := range cases {
		got := kinds(scanAll(t, c.src))
		sameKinds(t, got, c.want)
	}
}

func TestCommentsAreSkipped(t *testing.T) {
	src := "int // line comment\nmain /* block\ncomment */ ( ) ;"
	got := kinds(scanAll(t, src))
	want := []token.Kind{token.KW_INT, token.IDENTIFIER, token.LPAREN, token.RPAREN, token.SEMI, token.EOF}
	sameKinds(t, got, want)
}

func TestUnterminatedBlockComment(t *testing.T) {
	l := New(strings.NewReader("int x; /* never closes"))
	for {
		tok, err := l.Next()
		if err != nil {
			if !strings.Contains(err.Error(), "unterminated block comment") {
				t.Fatalf("wrong error: %v", err)
			}
			return
		}
		if tok.Kind == token.EOF {
			t.Fatal("expected an unterminated comment error before EOF")
		}
	}
}

func TestInvalidDigitInNumber(t *testing.T) {
	l := New(strings.NewReader("123x"))
	_, err := l.Next()
	if err == nil || !strings.Contains(err.Error(), "Invalid digit 'x' in number '123x'") {
		t.Fatalf("got %v, want an invalid-digit error", err)
	}
}

func TestIdentifierVsKeyword(t *testing.T) {
	toks := scanAll(t, "int integer return returning")
	want := []token.Kind{token.KW_INT, token.IDENTIFIER, token.KW_RETURN, token.IDENTIFIER, token.EOF}
	sameKinds(t, kinds(toks), want)
	if toks[1].Lexeme != "integer" || toks[3].Lexeme != "returning" {
		t.Fatalf("lexemes not preserved: %q %q", toks[1].Lexeme, toks[3].Lexeme)
	}
}

func TestPeekLookaheadForLabels(t *testing.T) {
	// "foo:" vs "foo ;" -- the parser distinguishes a labeled statement from
	// an expression statement by peeking two tokens ahead of an IDENTIFIER.
	l := New(strings.NewReader("foo: ;"))
	first, err := l.Peek(1)
	if err != nil || first.Kind != token.IDENTIFIER {
		t.Fatalf("Peek(1) = %v, %v", first, err)
	}
	second, err := l.Peek(2)
	if err != nil || second.Kind != token.COLON {
		t.Fatalf("Peek(2) = %v, %v", second, err)
	}
	// Peek must not have consumed anything.
	next, err := l.Next()
	if err != nil || next.Kind != token.IDENTIFIER || next.Lexeme != "foo" {
		t.Fatalf("Next() after Peek = %v, %v", next, err)
	}
}

func TestLocationTracking(t *testing.T) {
	toks := scanAll(t, "int\nx;")
	if toks[0].Loc.Line != 1 || toks[0].Loc.Column != 1 {
		t.Fatalf("first token loc = %v, want [1,1]", toks[0].Loc)
	}
	if toks[1].Loc.Line != 2 || toks[1].Loc.Column != 1 {
		t.Fatalf("second token loc = %v, want [2,1]", toks[1].Loc)
	}
}

func TestDivisionVsComment(t *testing.T) {
	got := kinds(scanAll(t, "a / b"))
	want := []token.Kind{token.IDENTIFIER, token.SLASH, token.IDENTIFIER, token.EOF}
	sameKinds(t, got, want)
}
