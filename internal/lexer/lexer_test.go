package lexer

import (
	"testing"

	"github.com/axis-lang/axis/internal/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestLexSimpleFunction(t *testing.T) {
	src := "func main() -> i32:\n    give 42\n"
	toks, err := Lex("t.axis", []byte(src))
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	want := []token.Kind{
		token.FUNC, token.IDENT, token.LPAREN, token.RPAREN, token.ARROW, token.IDENT,
		token.COLON, token.NEWLINE, token.INDENT, token.GIVE, token.INT, token.NEWLINE,
		token.DEDENT, token.EOF,
	}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLexCRLFNormalized(t *testing.T) {
	toks, err := Lex("t.axis", []byte("func f() -> i32:\r\n    give 1\r\n"))
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	if toks[len(toks)-1].Kind != token.EOF {
		t.Fatalf("last token should be EOF, got %v", toks[len(toks)-1].Kind)
	}
}

func TestLexUnterminatedStringIsDiagnostic(t *testing.T) {
	_, err := Lex("t.axis", []byte(`func f() -> i32:` + "\n    write \"oops\n"))
	if err == nil {
		t.Fatal("expected a lex error for an unterminated string literal")
	}
}

func TestLexIndentationMismatchIsDiagnostic(t *testing.T) {
	src := "func f() -> i32:\n    give 1\n   give 2\n"
	if _, err := Lex("t.axis", []byte(src)); err == nil {
		t.Fatal("expected an indentation error for a dedent to an unseen column")
	}
}
