package asmx64

import (
	"bytes"
	"testing"

	"github.com/axis-lang/axis/internal/ir"
)

func encodeOne(t *testing.T, ins ir.Instr) []byte {
	t.Helper()
	e := &encoder{}
	if err := e.encodeInstr(ins, 0, nil, "t"); err != nil {
		t.Fatalf("encodeInstr: %v", err)
	}
	return e.out
}

func TestEncodeRegToRegNeedsREXWForExtendedRegisters(t *testing.T) {
	got := encodeOne(t, ir.Instr{Op: ir.OpMovRR, Dst: ir.Register(ir.R9), Src: ir.Register(ir.RAX), Size: 8})
	want := []byte{0x49, 0x89, 0xC1} // REX.WB, mov r/m64,r64, modrm(reg=rax=0,rm=r9=1)
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestEncodeMovRIByteWidth(t *testing.T) {
	got := encodeOne(t, ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RAX), Src: ir.Imm(7), Size: 1})
	want := []byte{0xB0, 0x07}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestEncodeSyscall(t *testing.T) {
	got := encodeOne(t, ir.Instr{Op: ir.OpSyscall})
	want := []byte{0x0F, 0x05}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestEncodeSignedVsUnsignedShiftRight(t *testing.T) {
	sar := encodeOne(t, ir.Instr{Op: ir.OpSarCL, Dst: ir.Register(ir.RAX), Size: 8})
	shr := encodeOne(t, ir.Instr{Op: ir.OpShrCL, Dst: ir.Register(ir.RAX), Size: 8})
	if sar[len(sar)-1] == shr[len(shr)-1] {
		t.Fatalf("sar and shr must select different /digit ModR/M fields: sar=% x shr=% x", sar, shr)
	}
	// /7 for sar, /5 for shr, both against rax (rm=0): C0|(7<<3)=0xF8, C0|(5<<3)=0xE8
	if sar[len(sar)-1] != 0xF8 {
		t.Errorf("sar modrm = %#x, want 0xF8", sar[len(sar)-1])
	}
	if shr[len(shr)-1] != 0xE8 {
		t.Errorf("shr modrm = %#x, want 0xE8", shr[len(shr)-1])
	}
}

func TestEncodeMovRMUsesDisp32Always(t *testing.T) {
	got := encodeOne(t, ir.Instr{Op: ir.OpMovRM, Dst: ir.Register(ir.RAX), Src: ir.Mem(ir.RBP, -8), Size: 8})
	// REX.W, 8B /r, modrm(mod=10,reg=rax=0,rm=rbp=5), disp32 = -8
	want := []byte{0x48, 0x8B, 0x85, 0xF8, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestEncodeCwdUsesOperandSizePrefixNotCdq(t *testing.T) {
	got := encodeOne(t, ir.Instr{Op: ir.OpCwd, Size: 2})
	want := []byte{0x66, 0x99}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
	cdq := encodeOne(t, ir.Instr{Op: ir.OpCdq, Size: 4})
	if bytes.Equal(got, cdq) {
		t.Error("cwd and cdq must not encode identically")
	}
}

func TestEncodeImulRRAddsOperandSizePrefixForWordOperands(t *testing.T) {
	got := encodeOne(t, ir.Instr{Op: ir.OpImulRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RCX), Size: 2})
	want := []byte{0x66, 0x0F, 0xAF, 0xC1}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestEncodeImulRRRejectsByteSize(t *testing.T) {
	e := &encoder{}
	err := e.encodeInstr(ir.Instr{Op: ir.OpImulRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RCX), Size: 1}, 0, nil, "t")
	if err == nil {
		t.Fatal("expected an error encoding a byte-size imul: no two-operand 8-bit form exists")
	}
}

func TestEncodeSetccPicksConditionNibble(t *testing.T) {
	got := encodeOne(t, ir.Instr{Op: ir.OpSetcc, Dst: ir.Register(ir.RAX), Cond: ir.CondL})
	want := []byte{0x0F, 0x9C, 0xC0}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}
