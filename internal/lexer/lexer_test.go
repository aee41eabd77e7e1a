package lexer

import (
	"testing"

	"github.com/briarlang/briar/internal/token"
)

func TestNextTokenBasics(t *testing.T) {
	input := `var x = 1 + 2; print x == "hi"; // comment
class Foo < Bar { init() { this.x = super.get(); } }`

	want := []token.Type{
		token.Var, token.Ident, token.Assign, token.Number, token.Plus, token.Number, token.Semicolon,
		token.Print, token.Ident, token.Equal, token.String, token.Semicolon,
		token.Class, token.Ident, token.Less, token.Ident, token.LBrace,
		token.Ident, token.LParen, token.RParen, token.LBrace,
		token.This, token.Dot, token.Ident, token.Assign, token.Super, token.Dot, token.Ident, token.LParen, token.RParen, token.Semicolon,
		token.RBrace, token.RBrace,
		token.EOF,
	}

	l := New(input)
	for i, wantType := range want {
		tok := l.NextToken()
		if tok.Type != wantType {
			t.Fatalf("token %d: got %s, want %s (literal %q)", i, tok.Type, wantType, tok.Literal)
		}
	}
}

func TestNumberAndStringLiterals(t *testing.T) {
	l := New(`3.14 "escaped text"`)

	num := l.NextToken()
	if num.Type != token.Number || num.Literal != "3.14" {
		t.Fatalf("got %v", num)
	}
	str := l.NextToken()
	if str.Type != token.String || str.Literal != "escaped text" {
		t.Fatalf("got %v", str)
	}
}

func TestLineTracking(t *testing.T) {
	l := New("var a\n= 1;")
	for {
		tok := l.NextToken()
		if tok.Type == token.Assign {
			if tok.Pos.Line != 2 {
				t.Fatalf("expected assign on line 2, got %d", tok.Pos.Line)
			}
			return
		}
		if tok.Type == token.EOF {
			t.Fatal("did not find assign token")
		}
	}
}
