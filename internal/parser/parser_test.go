package parser

import (
	"testing"

	"github.com/axis-lang/axis/internal/ast"
	"github.com/axis-lang/axis/internal/lexer"
)

func parseSrc(t *testing.T, src string) (*ast.Program, error) {
	t.Helper()
	toks, err := lexer.Lex("t.axis", []byte(src))
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	return Parse("t.axis", toks)
}

func TestParseFuncWithParamsAndReturn(t *testing.T) {
	prog, err := parseSrc(t, "func add(x: i32, y: i32) -> i32:\n    give x + y\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(prog.Funcs) != 1 {
		t.Fatalf("Funcs = %d, want 1", len(prog.Funcs))
	}
	fn := prog.Funcs[0]
	if fn.Name != "add" || len(fn.Params) != 2 {
		t.Fatalf("got func %q with %d params, want \"add\" with 2", fn.Name, len(fn.Params))
	}
	ret, ok := fn.Body.Stmts[0].(*ast.Return)
	if !ok {
		t.Fatalf("first statement is %T, want *ast.Return", fn.Body.Stmts[0])
	}
	bin, ok := ret.Expr.(*ast.Binary)
	if !ok || bin.Op != ast.OpAdd {
		t.Fatalf("return expr = %#v, want Binary(OpAdd)", ret.Expr)
	}
}

func TestParseRejectsChainedComparisons(t *testing.T) {
	_, err := parseSrc(t, "func main() -> i32:\n    when (1 < 2 < 3):\n        give 1\n    give 0\n")
	if err == nil {
		t.Fatal("expected an error for a chained comparison")
	}
}

func TestParseRejectsMoreThanSixParameters(t *testing.T) {
	src := "func f(a: i32, b: i32, c: i32, d: i32, e: i32, f: i32, g: i32) -> i32:\n    give a\n"
	_, err := parseSrc(t, src)
	if err == nil {
		t.Fatal("expected an arity error for more than six parameters")
	}
}

func TestParseIfElseChain(t *testing.T) {
	prog, err := parseSrc(t, "func main() -> i32:\n    when (1 > 0):\n        give 1\n    else:\n        give 0\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ifStmt, ok := prog.Funcs[0].Body.Stmts[0].(*ast.If)
	if !ok {
		t.Fatalf("got %T, want *ast.If", prog.Funcs[0].Body.Stmts[0])
	}
	if ifStmt.Else == nil {
		t.Fatal("expected an else block to be attached")
	}
}

func TestParseReadBuiltinBecomesReadTo(t *testing.T) {
	prog, err := parseSrc(t, "func main() -> i32:\n    x: i32 = read()\n    give x\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rd, ok := prog.Funcs[0].Body.Stmts[0].(*ast.ReadTo)
	if !ok {
		t.Fatalf("got %T, want *ast.ReadTo", prog.Funcs[0].Body.Stmts[0])
	}
	if rd.Target != "x" || rd.Kind != ast.ReadBytes {
		t.Errorf("ReadTo = %+v, want Target=x Kind=ReadBytes", rd)
	}
}

func TestParsePrecedenceMulBeforeAdd(t *testing.T) {
	prog, err := parseSrc(t, "func main() -> i32:\n    give 1 + 2 * 3\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ret := prog.Funcs[0].Body.Stmts[0].(*ast.Return)
	top, ok := ret.Expr.(*ast.Binary)
	if !ok || top.Op != ast.OpAdd {
		t.Fatalf("top-level op = %#v, want OpAdd", ret.Expr)
	}
	if _, ok := top.R.(*ast.Binary); !ok {
		t.Fatalf("right operand = %#v, want a nested Binary(OpMul)", top.R)
	}
}
