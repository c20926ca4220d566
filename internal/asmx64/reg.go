// Package asmx64 is the two-pass assembler: it turns an ir.Program into
// final bytes, resolving labels and relocations along the way.
package asmx64

import "github.com/axis-lang/axis/internal/ir"

// xreg names an x86-64 register's ModR/M encoding number, independent
// of ir.Reg's own declaration order.
type xreg struct {
	num  uint8 // 0-15; >=8 needs a REX extension bit
	name string
}

var encoding = map[ir.Reg]xreg{
	ir.RAX: {0, "rax"},
	ir.RCX: {1, "rcx"},
	ir.RDX: {2, "rdx"},
	ir.RBX: {3, "rbx"},
	ir.RSP: {4, "rsp"},
	ir.RBP: {5, "rbp"},
	ir.RSI: {6, "rsi"},
	ir.RDI: {7, "rdi"},
	ir.R8:  {8, "r8"},
	ir.R9:  {9, "r9"},
	ir.R10: {10, "r10"},
	ir.R11: {11, "r11"},
	ir.R12: {12, "r12"},
	ir.R13: {13, "r13"},
	ir.R14: {14, "r14"},
	ir.R15: {15, "r15"},
}

func regNum(r ir.Reg) uint8 { return encoding[r].num }

// needsREX reports whether addressing r as a ModR/M r/m or reg field
// needs the REX.B/R extension bit (registers r8-r15).
func needsREX(r ir.Reg) bool { return regNum(r) >= 8 }

// modrm packs the standard mod/reg/rm byte.
func modrm(mod, reg, rm uint8) byte {
	return (mod << 6) | ((reg & 7) << 3) | (rm & 7)
}

// rex builds a REX prefix byte; w selects the 64-bit operand size.
func rex(w, r, x, b bool) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

func isExt(r ir.Reg) bool { return needsREX(r) }
