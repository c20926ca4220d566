package sema

import (
	"testing"

	"github.com/axis-lang/axis/internal/ast"
	"github.com/axis-lang/axis/internal/lexer"
	"github.com/axis-lang/axis/internal/parser"
	"github.com/axis-lang/axis/internal/types"
)

func analyzeSrc(t *testing.T, src string) (*Module, error) {
	t.Helper()
	toks, err := lexer.Lex("t.axis", []byte(src))
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	prog, err := parser.Parse("t.axis", toks)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return Analyze("t.axis", prog)
}

func TestAnalyzeAssignsFrameOffsetsAndAligns(t *testing.T) {
	mod, err := analyzeSrc(t, "func main() -> i32:\n    x: i32 = 1\n    y: i32 = 2\n    give x + y\n")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	fn := mod.Program.Funcs[0]
	if x := fn.Body.Stmts[0].(*ast.VarDecl); x.Offset != -4 {
		t.Errorf("x offset = %d, want -4", x.Offset)
	}
	if y := fn.Body.Stmts[1].(*ast.VarDecl); y.Offset != -8 {
		t.Errorf("y offset = %d, want -8", y.Offset)
	}
	if fn.FrameSize%16 != 0 {
		t.Errorf("FrameSize = %d, not 16-aligned", fn.FrameSize)
	}
}

func TestAnalyzeRejectsMissingMain(t *testing.T) {
	_, err := analyzeSrc(t, "func f() -> i32:\n    give 1\n")
	if err == nil {
		t.Fatal("expected a NameError for a program with no main")
	}
}

func TestAnalyzeRejectsDuplicateFunction(t *testing.T) {
	_, err := analyzeSrc(t, "func f() -> i32:\n    give 1\n\nfunc f() -> i32:\n    give 2\n\nfunc main() -> i32:\n    give f()\n")
	if err == nil {
		t.Fatal("expected a NameError for a redeclared function")
	}
}

func TestAnalyzeRejectsUndefinedName(t *testing.T) {
	_, err := analyzeSrc(t, "func main() -> i32:\n    give y\n")
	if err == nil {
		t.Fatal("expected a NameError for an undefined identifier")
	}
}

func TestAnalyzeRejectsBreakOutsideLoop(t *testing.T) {
	_, err := analyzeSrc(t, "func main() -> i32:\n    break\n    give 0\n")
	if err == nil {
		t.Fatal("expected an error for break outside of a loop")
	}
}

func TestAnalyzeRejectsRepeatedParameterName(t *testing.T) {
	_, err := analyzeSrc(t, "func f(x: i32, x: i32) -> i32:\n    give x\n\nfunc main() -> i32:\n    give f(1, 2)\n")
	if err == nil {
		t.Fatal("expected an error for a function with a repeated parameter name")
	}
}

func TestAnalyzeLiteralTakesContextFromDeclaredType(t *testing.T) {
	mod, err := analyzeSrc(t, "func main() -> i32:\n    x: i64 = 1\n    give 0\n")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	decl := mod.Program.Funcs[0].Body.Stmts[0].(*ast.VarDecl)
	lit := decl.Init.(*ast.IntLit)
	if lit.Type.Kind != types.I64.Kind || lit.Type.Width != types.I64.Width {
		t.Errorf("literal 1 assigned to an i64 local kept type %v, want i64", lit.Type)
	}
}
