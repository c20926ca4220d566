package ir

import "testing"

func TestListingRendersLabelsAndMnemonics(t *testing.T) {
	prog := &Program{
		Functions: []Function{
			{
				Name: "main",
				Instrs: []Instr{
					Label("main"),
					{Op: OpMovRI, Dst: Register(RAX), Src: Imm(42), Size: 4},
					{Op: OpRet},
				},
			},
		},
	}

	got := prog.Listing()
	want := "main:\nmain:\n    mov eax, 42\n    ret\n"
	if got != want {
		t.Errorf("Listing() = %q, want %q", got, want)
	}
}

func TestInstrStringRendersSetccAndJcc(t *testing.T) {
	setcc := Instr{Op: OpSetcc, Dst: Register(RAX), Cond: CondL, Size: 1}
	if got, want := setcc.String(), "setl al"; got != want {
		t.Errorf("setcc.String() = %q, want %q", got, want)
	}

	jcc := Instr{Op: OpJcc, Cond: CondNE, Label: "loop_start"}
	if got, want := jcc.String(), "jne loop_start"; got != want {
		t.Errorf("jcc.String() = %q, want %q", got, want)
	}
}

func TestInstrStringWidensMovzxOperandsSeparately(t *testing.T) {
	ins := Instr{Op: OpMovzxRR, Dst: Register(RAX), Src: Register(RAX), Size: 2, SrcSize: 1}
	if got, want := ins.String(), "movzx ax, al"; got != want {
		t.Errorf("movzx.String() = %q, want %q", got, want)
	}
}
