package codegen

import (
	"testing"

	"github.com/axis-lang/axis/internal/axlog"
	"github.com/axis-lang/axis/internal/ir"
	"github.com/axis-lang/axis/internal/lexer"
	"github.com/axis-lang/axis/internal/parser"
	"github.com/axis-lang/axis/internal/sema"
)

func generateSrc(t *testing.T, src string) *ir.Program {
	t.Helper()
	toks, err := lexer.Lex("t.axis", []byte(src))
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	prog, err := parser.Parse("t.axis", toks)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	mod, err := sema.Analyze("t.axis", prog)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	irProg, err := Generate("t.axis", mod, axlog.New(false))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return irProg
}

func findFunc(t *testing.T, prog *ir.Program, name string) ir.Function {
	t.Helper()
	for _, fn := range prog.Functions {
		if fn.Name == name {
			return fn
		}
	}
	t.Fatalf("no function named %q in generated program", name)
	return ir.Function{}
}

func TestGenerateEmitsPrologueAndEpilogueForEveryFunction(t *testing.T) {
	prog := generateSrc(t, "func main() -> i32:\n    give 1\n")
	fn := findFunc(t, prog, "main")

	if fn.Instrs[0].Op != ir.OpLabelDef || fn.Instrs[0].Label != "main" {
		t.Fatalf("first instruction = %+v, want a label def for \"main\"", fn.Instrs[0])
	}
	if fn.Instrs[1].Op != ir.OpPush || fn.Instrs[2].Op != ir.OpMovRR || fn.Instrs[3].Op != ir.OpSubRI {
		t.Fatalf("prologue mismatch: %+v", fn.Instrs[1:4])
	}
	last := fn.Instrs[len(fn.Instrs)-1]
	if last.Op != ir.OpRet {
		t.Fatalf("last instruction = %+v, want OpRet", last)
	}
}

func TestGenerateFrameSizeIsSixteenAligned(t *testing.T) {
	prog := generateSrc(t, "func main() -> i32:\n    x: i32 = 1\n    give x\n")
	fn := findFunc(t, prog, "main")
	if fn.FrameSize%16 != 0 {
		t.Errorf("FrameSize = %d, not 16-aligned", fn.FrameSize)
	}
}

func TestGenerateBindsParametersFromABIRegisters(t *testing.T) {
	prog := generateSrc(t, "func add(x: i32, y: i32) -> i32:\n    give x + y\n\nfunc main() -> i32:\n    give add(1, 2)\n")
	fn := findFunc(t, prog, "add")

	var stores []ir.Instr
	for _, ins := range fn.Instrs {
		if ins.Op == ir.OpMovMR {
			stores = append(stores, ins)
		}
	}
	if len(stores) < 2 {
		t.Fatalf("expected at least 2 parameter stores, got %d", len(stores))
	}
	if stores[0].Src.Reg != ir.RDI || stores[1].Src.Reg != ir.RSI {
		t.Errorf("parameter stores read from %v, %v; want rdi, rsi", stores[0].Src.Reg, stores[1].Src.Reg)
	}
}

func opSeq(fn ir.Function) []ir.Mnemonic {
	out := make([]ir.Mnemonic, len(fn.Instrs))
	for i, ins := range fn.Instrs {
		out[i] = ins.Op
	}
	return out
}

func containsSeq(haystack, needle []ir.Mnemonic) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, n := range needle {
			if haystack[i+j] != n {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestGenerateByteDivisionWidensBeforeCwd(t *testing.T) {
	prog := generateSrc(t, "func main() -> i32:\n    x: i8 = 7\n    y: i8 = 2\n    z: i8 = x / y\n    give 0\n")
	fn := findFunc(t, prog, "main")
	ops := opSeq(fn)
	if !containsSeq(ops, []ir.Mnemonic{ir.OpMovsxRR, ir.OpMovsxRR, ir.OpCwd, ir.OpIdiv}) {
		t.Fatalf("expected byte division to widen both operands then cwd+idiv, got %v", ops)
	}
}

func TestGenerateByteModulusReadsRemainderFromDX(t *testing.T) {
	prog := generateSrc(t, "func main() -> i32:\n    x: u8 = 7\n    y: u8 = 2\n    z: u8 = x % y\n    give 0\n")
	fn := findFunc(t, prog, "main")
	ops := opSeq(fn)
	if !containsSeq(ops, []ir.Mnemonic{ir.OpMovzxRR, ir.OpMovzxRR, ir.OpXorRR, ir.OpDiv, ir.OpMovRR}) {
		t.Fatalf("expected unsigned byte modulus to widen, clear dx, div, then move dx into ax, got %v", ops)
	}
}

func TestGenerateByteMultiplyWidensBeforeImul(t *testing.T) {
	prog := generateSrc(t, "func main() -> i32:\n    x: i8 = 3\n    y: i8 = 4\n    z: i8 = x * y\n    give 0\n")
	fn := findFunc(t, prog, "main")
	ops := opSeq(fn)
	if !containsSeq(ops, []ir.Mnemonic{ir.OpMovsxRR, ir.OpMovsxRR, ir.OpImulRR}) {
		t.Fatalf("expected byte multiply to widen both operands before imul, got %v", ops)
	}
	for _, ins := range fn.Instrs {
		if ins.Op == ir.OpImulRR && ins.Size == 1 {
			t.Fatal("OpImulRR must never be emitted at byte size")
		}
	}
}

func TestGenerateWordDivisionUsesCwdNotCdq(t *testing.T) {
	prog := generateSrc(t, "func main() -> i32:\n    x: i16 = 100\n    y: i16 = 3\n    z: i16 = x / y\n    give 0\n")
	fn := findFunc(t, prog, "main")
	for _, ins := range fn.Instrs {
		if ins.Op == ir.OpCdq {
			t.Fatal("a 16-bit division must use cwd, not cdq")
		}
	}
	if !containsSeq(opSeq(fn), []ir.Mnemonic{ir.OpCwd, ir.OpIdiv}) {
		t.Fatalf("expected a cwd before the 16-bit idiv, got %v", opSeq(fn))
	}
}

func TestGenerateWhileLoopBranchesBackToItsOwnStart(t *testing.T) {
	prog := generateSrc(t, "func main() -> i32:\n    i: i32 = 0\n    while i < 3:\n        i = i + 1\n    give i\n")
	fn := findFunc(t, prog, "main")

	// The loop's backward jmp is the first jmp in the body; the later
	// one is give's jump to the shared epilogue.
	var jccLabel, jmpLabel string
	jmpIdx := -1
	for i, ins := range fn.Instrs {
		if ins.Op == ir.OpJcc {
			jccLabel = ins.Label
		}
		if ins.Op == ir.OpJmp && ins.Label != "" && jmpLabel == "" {
			jmpLabel = ins.Label
			jmpIdx = i
		}
	}
	if jccLabel == "" || jmpLabel == "" {
		t.Fatal("expected both a conditional exit jump and a backward jump for the loop")
	}

	var sawStart bool
	for i, ins := range fn.Instrs {
		if ins.Op == ir.OpLabelDef && ins.Label == jmpLabel && i < jmpIdx {
			sawStart = true
		}
	}
	if !sawStart {
		t.Errorf("backward jump target %q was not defined as a label before the jump", jmpLabel)
	}
}
