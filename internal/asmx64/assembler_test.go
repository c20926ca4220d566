package asmx64

import (
	"testing"

	"github.com/axis-lang/axis/internal/ir"
)

func simpleProgram() *ir.Program {
	return &ir.Program{
		EntryFunc: "main",
		BSSSymbol: "_read_failed",
		Functions: []ir.Function{
			{
				Name:      "main",
				FrameSize: 16,
				Instrs: []ir.Instr{
					ir.Label("main"),
					{Op: ir.OpPush, Dst: ir.Register(ir.RBP), Size: 8},
					{Op: ir.OpMovRR, Dst: ir.Register(ir.RBP), Src: ir.Register(ir.RSP), Size: 8},
					{Op: ir.OpMovRI, Dst: ir.Register(ir.RAX), Src: ir.Imm(42), Size: 4},
					{Op: ir.OpPop, Dst: ir.Register(ir.RBP), Size: 8},
					{Op: ir.OpRet},
				},
			},
		},
	}
}

func TestAssembleSimpleProgram(t *testing.T) {
	out, err := Assemble(simpleProgram())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if out.EntryOffset != 0 {
		t.Errorf("EntryOffset = %d, want 0 (main is the only and first function)", out.EntryOffset)
	}
	if len(out.Text) == 0 {
		t.Fatal("expected non-empty .text")
	}
	// push rbp; mov rbp,rsp; mov eax,imm32; pop rbp; ret
	wantLen := 1 + 3 + 5 + 1 + 1
	if len(out.Text) != wantLen {
		t.Errorf(".text length = %d, want %d", len(out.Text), wantLen)
	}
	if out.Text[0] != 0x55 {
		t.Errorf("first byte = %#x, want 0x55 (push rbp)", out.Text[0])
	}
	if out.Text[len(out.Text)-1] != 0xC3 {
		t.Errorf("last byte = %#x, want 0xC3 (ret)", out.Text[len(out.Text)-1])
	}
}

// TestRelaxationWidensOverflowingShortJump builds a function whose body
// between a conditional jump and its target exceeds 127 bytes, forcing
// the assembler to widen the jcc from short to near form.
func TestRelaxationWidensOverflowingShortJump(t *testing.T) {
	var instrs []ir.Instr
	instrs = append(instrs, ir.Label("big"))
	instrs = append(instrs, ir.Instr{Op: ir.OpTestRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RAX), Size: 4})
	instrs = append(instrs, ir.Instr{Op: ir.OpJcc, Cond: ir.CondE, Label: "end"})
	for i := 0; i < 30; i++ {
		instrs = append(instrs, ir.Instr{Op: ir.OpAddRI, Dst: ir.Register(ir.RAX), Src: ir.Imm(1), Size: 8})
	}
	instrs = append(instrs, ir.Label("end"))
	instrs = append(instrs, ir.Instr{Op: ir.OpRet})

	prog := &ir.Program{
		EntryFunc: "big",
		Functions: []ir.Function{{Name: "big", Instrs: instrs}},
	}

	out, err := Assemble(prog)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	// the label emits no bytes; "test eax,eax" is 2 bytes (85 C0); the
	// jcc follows immediately at offset 2.
	if out.Text[2] != 0x0F || out.Text[3] != 0x84 {
		t.Errorf("expected near-form je (0F 84), got % x", out.Text[2:4])
	}
}

func TestShortJumpStaysShortWhenItFits(t *testing.T) {
	instrs := []ir.Instr{
		ir.Label("f"),
		{Op: ir.OpTestRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RAX), Size: 4},
		{Op: ir.OpJcc, Cond: ir.CondE, Label: "end"},
		{Op: ir.OpAddRI, Dst: ir.Register(ir.RAX), Src: ir.Imm(1), Size: 8},
		ir.Label("end"),
		{Op: ir.OpRet},
	}
	prog := &ir.Program{EntryFunc: "f", Functions: []ir.Function{{Name: "f", Instrs: instrs}}}
	out, err := Assemble(prog)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if out.Text[2] != 0x74 { // short je
		t.Errorf("expected short je (0x74), got %#x", out.Text[2])
	}
}
