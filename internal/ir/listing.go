package ir

import (
	"fmt"
	"strings"
)

var regNames = map[Reg][4]string{
	RAX: {"al", "ax", "eax", "rax"},
	RBX: {"bl", "bx", "ebx", "rbx"},
	RCX: {"cl", "cx", "ecx", "rcx"},
	RDX: {"dl", "dx", "edx", "rdx"},
	RSI: {"sil", "si", "esi", "rsi"},
	RDI: {"dil", "di", "edi", "rdi"},
	RBP: {"bpl", "bp", "ebp", "rbp"},
	RSP: {"spl", "sp", "esp", "rsp"},
	R8:  {"r8b", "r8w", "r8d", "r8"},
	R9:  {"r9b", "r9w", "r9d", "r9"},
	R10: {"r10b", "r10w", "r10d", "r10"},
	R11: {"r11b", "r11w", "r11d", "r11"},
	R12: {"r12b", "r12w", "r12d", "r12"},
	R13: {"r13b", "r13w", "r13d", "r13"},
	R14: {"r14b", "r14w", "r14d", "r14"},
	R15: {"r15b", "r15w", "r15d", "r15"},
}

// Name renders r at the given operand width (1, 2, 4, or 8 bytes); any
// other width falls back to the 64-bit form.
func (r Reg) Name(size int) string {
	names, ok := regNames[r]
	if !ok {
		return "?"
	}
	switch size {
	case 1:
		return names[0]
	case 2:
		return names[1]
	case 4:
		return names[2]
	default:
		return names[3]
	}
}

var condNames = [...]string{
	CondE: "e", CondNE: "ne", CondL: "l", CondLE: "le", CondG: "g",
	CondGE: "ge", CondB: "b", CondBE: "be", CondA: "a", CondAE: "ae",
}

func (c Cond) String() string {
	if int(c) < 0 || int(c) >= len(condNames) {
		return "?"
	}
	return condNames[c]
}

var mnemonicNames = [...]string{
	OpLabelDef:     "",
	OpPush:         "push",
	OpPop:          "pop",
	OpMovRR:        "mov",
	OpMovRM:        "mov",
	OpMovMR:        "mov",
	OpMovRI:        "mov",
	OpMovabsRI:     "movabs",
	OpMovRLabel:    "lea",
	OpMovabsRLabel: "movabs",
	OpLeaRM:        "lea",
	OpMovsxRR:      "movsx",
	OpMovzxRR:      "movzx",
	OpAddRR:        "add",
	OpSubRR:        "sub",
	OpAddRI:        "add",
	OpSubRI:        "sub",
	OpAndRR:        "and",
	OpOrRR:         "or",
	OpXorRR:        "xor",
	OpXorRI:        "xor",
	OpShlCL:        "shl",
	OpShrCL:        "shr",
	OpSarCL:        "sar",
	OpNeg:          "neg",
	OpNot:          "not",
	OpImulRR:       "imul",
	OpCwd:          "cwd",
	OpCdq:          "cdq",
	OpCqo:          "cqo",
	OpIdiv:         "idiv",
	OpDiv:          "div",
	OpCmpRR:        "cmp",
	OpCmpRI:        "cmp",
	OpTestRR:       "test",
	OpSetcc:        "set",
	OpJmp:          "jmp",
	OpJcc:          "j",
	OpCallLabel:    "call",
	OpCallReg:      "call",
	OpRet:          "ret",
	OpSyscall:      "syscall",
}

func (m Mnemonic) String() string {
	if int(m) < 0 || int(m) >= len(mnemonicNames) {
		return "?"
	}
	return mnemonicNames[m]
}

func formatOperand(o Operand, size int) string {
	switch o.Kind {
	case OpReg:
		return o.Reg.Name(size)
	case OpMem:
		if o.Disp == 0 {
			return fmt.Sprintf("[%s]", o.Base.Name(8))
		}
		return fmt.Sprintf("[%s%+d]", o.Base.Name(8), o.Disp)
	case OpImm:
		return fmt.Sprintf("%d", o.Imm)
	case OpLabel:
		return o.Label
	default:
		return ""
	}
}

// String renders ins as a single pseudo-assembly line, Intel operand
// order (destination first), for the -v listing. It's a readable
// approximation of what the assembler will encode, not a format any
// assembler consumes back.
func (ins Instr) String() string {
	mn := ins.Op.String()
	var operands []string
	switch ins.Op {
	case OpSetcc:
		mn += ins.Cond.String()
		operands = append(operands, formatOperand(ins.Dst, ins.Size))
	case OpJcc:
		mn = "j" + ins.Cond.String()
		operands = append(operands, ins.Label)
	case OpJmp, OpCallLabel:
		operands = append(operands, ins.Label)
	case OpMovsxRR, OpMovzxRR:
		operands = append(operands, ins.Dst.Reg.Name(ins.Size), ins.Src.Reg.Name(ins.SrcSize))
	case OpPush, OpPop, OpNeg, OpNot:
		operands = append(operands, formatOperand(ins.Dst, ins.Size))
	default:
		if ins.Dst.Kind != OpNone {
			operands = append(operands, formatOperand(ins.Dst, ins.Size))
		}
		if ins.Src.Kind != OpNone {
			operands = append(operands, formatOperand(ins.Src, ins.Size))
		}
	}

	if len(operands) == 0 {
		return mn
	}
	return mn + " " + strings.Join(operands, ", ")
}

// Listing renders p's functions as a flat pseudo-assembly text, one
// line per instruction, label definitions as bare "name:" lines. It's
// what -v dumps alongside the compiled output.
func (p *Program) Listing() string {
	var b strings.Builder
	for _, fn := range p.Functions {
		fmt.Fprintf(&b, "%s:\n", fn.Name)
		for _, ins := range fn.Instrs {
			if ins.Op == OpLabelDef {
				fmt.Fprintf(&b, "%s:\n", ins.Label)
				continue
			}
			fmt.Fprintf(&b, "    %s\n", ins)
		}
	}
	return b.String()
}
