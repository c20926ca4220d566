package asmx64

import (
	"encoding/binary"

	"github.com/axis-lang/axis/internal/diag"
	"github.com/axis-lang/axis/internal/ir"
)

var ccCode = map[ir.Cond]byte{
	ir.CondE: 0x4, ir.CondNE: 0x5,
	ir.CondL: 0xC, ir.CondLE: 0xE, ir.CondG: 0xF, ir.CondGE: 0xD,
	ir.CondB: 0x2, ir.CondBE: 0x6, ir.CondA: 0x7, ir.CondAE: 0x3,
}

// encoder appends final bytes for one instruction and records any
// relocation sites it needed. It is used for both the sizing pass
// (sizeOf, which encodes into a throwaway encoder and takes the length
// of its output) and the final emission pass.
type encoder struct {
	out   []byte
	relocs []Relocation
}

func (e *encoder) u8(b byte)  { e.out = append(e.out, b) }
func (e *encoder) bytes(b []byte) { e.out = append(e.out, b...) }

func (e *encoder) imm32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	e.bytes(b[:])
}

func (e *encoder) imm64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	e.bytes(b[:])
}

func (e *encoder) pos() int { return len(e.out) }

// memModRM returns the ModR/M byte (+REX.B need is returned to the caller
// so they can be folded into one prefix byte) for [base+disp], always
// using the disp32 form so no base register ever collides with the
// mod=00/rm=101 RIP-relative special case.
func memModRM(regField uint8, base ir.Reg) (modrm byte, needB bool) {
	return (2 << 6) | ((regField & 7) << 3) | (regNum(base) & 7), isExt(base)
}

func regModRM(regField, rm uint8) byte {
	return (3 << 6) | ((regField & 7) << 3) | (rm & 7)
}

// encodeInstr appends ins's final bytes to e. Jump and call
// displacements are left zeroed; patchJumpLike fills them in once the
// label table is final.
func (e *encoder) encodeInstr(ins ir.Instr, selfOffset int, labelOf func(string) (int, bool), fn string) error {
	switch ins.Op {
	case ir.OpLabelDef:
		return nil

	case ir.OpPush:
		r := ins.Dst.Reg
		if isExt(r) {
			e.u8(rex(false, false, false, true))
		}
		e.u8(0x50 + regNum(r)&7)
		return nil

	case ir.OpPop:
		r := ins.Dst.Reg
		if isExt(r) {
			e.u8(rex(false, false, false, true))
		}
		e.u8(0x58 + regNum(r)&7)
		return nil

	case ir.OpMovRR:
		return e.encodeRR(0x89, ins.Dst.Reg, ins.Src.Reg, ins.Size)

	case ir.OpMovRM:
		return e.encodeRM(0x8B, ins.Dst.Reg, ins.Src.Base, ins.Src.Disp, ins.Size)

	case ir.OpMovMR:
		return e.encodeMR(0x89, ins.Dst.Base, ins.Dst.Disp, ins.Src.Reg, ins.Size)

	case ir.OpMovRI:
		return e.encodeMovRI(ins.Dst.Reg, ins.Src.Imm, ins.Size)

	case ir.OpMovabsRI:
		r := ins.Dst.Reg
		e.u8(rex(true, false, false, isExt(r)))
		e.u8(0xB8 + regNum(r)&7)
		e.imm64(ins.Src.Imm)
		return nil

	case ir.OpMovRLabel:
		r := ins.Dst.Reg
		e.u8(rex(true, isExt(r), false, false))
		e.u8(0x8D)
		e.u8((0 << 6) | ((regNum(r) & 7) << 3) | 5)
		site := e.pos()
		e.imm32(0)
		e.relocs = append(e.relocs, Relocation{Kind: RelocPC32, Offset: site, Symbol: ins.Src.Label})
		return nil

	case ir.OpMovabsRLabel:
		r := ins.Dst.Reg
		e.u8(rex(true, false, false, isExt(r)))
		e.u8(0xB8 + regNum(r)&7)
		site := e.pos()
		e.imm64(0)
		e.relocs = append(e.relocs, Relocation{Kind: RelocAbs64, Offset: site, Symbol: ins.Src.Label})
		return nil

	case ir.OpLeaRM:
		return e.encodeRM(0x8D, ins.Dst.Reg, ins.Src.Base, ins.Src.Disp, 8)

	case ir.OpMovsxRR, ir.OpMovzxRR:
		return e.encodeExtend(ins)

	case ir.OpAddRR:
		return e.encodeRR(0x01, ins.Dst.Reg, ins.Src.Reg, ins.Size)
	case ir.OpSubRR:
		return e.encodeRR(0x29, ins.Dst.Reg, ins.Src.Reg, ins.Size)
	case ir.OpAndRR:
		return e.encodeRR(0x21, ins.Dst.Reg, ins.Src.Reg, ins.Size)
	case ir.OpOrRR:
		return e.encodeRR(0x09, ins.Dst.Reg, ins.Src.Reg, ins.Size)
	case ir.OpXorRR:
		return e.encodeRR(0x31, ins.Dst.Reg, ins.Src.Reg, ins.Size)
	case ir.OpCmpRR:
		return e.encodeRR(0x39, ins.Dst.Reg, ins.Src.Reg, ins.Size)
	case ir.OpTestRR:
		return e.encodeRR(0x85, ins.Dst.Reg, ins.Src.Reg, ins.Size)

	case ir.OpAddRI:
		return e.encodeGroup1(0, ins.Dst.Reg, ins.Src.Imm, ins.Size)
	case ir.OpSubRI:
		return e.encodeGroup1(5, ins.Dst.Reg, ins.Src.Imm, ins.Size)
	case ir.OpCmpRI:
		return e.encodeGroup1(7, ins.Dst.Reg, ins.Src.Imm, ins.Size)
	case ir.OpXorRI:
		return e.encodeGroup1(6, ins.Dst.Reg, ins.Src.Imm, ins.Size)

	case ir.OpShlCL:
		return e.encodeShift(4, ins.Dst.Reg, ins.Size)
	case ir.OpShrCL:
		return e.encodeShift(5, ins.Dst.Reg, ins.Size)
	case ir.OpSarCL:
		return e.encodeShift(7, ins.Dst.Reg, ins.Size)

	case ir.OpNeg:
		return e.encodeUnaryF7(3, ins.Dst.Reg, ins.Size)
	case ir.OpNot:
		return e.encodeUnaryF7(2, ins.Dst.Reg, ins.Size)
	case ir.OpIdiv:
		return e.encodeUnaryF7(7, ins.Src.Reg, ins.Size)
	case ir.OpDiv:
		return e.encodeUnaryF7(6, ins.Src.Reg, ins.Size)

	case ir.OpImulRR:
		// The two-operand IMUL r,r/m form (0F AF) has no 8-bit
		// encoding; codegen widens byte operands to word size before
		// emitting this, so reaching Size==1 here is a codegen bug.
		if ins.Size == 1 {
			return diag.NewAssembler(fn, "<encode>", "imul has no 8-bit two-operand form")
		}
		r, x := ins.Dst.Reg, ins.Src.Reg
		w := ins.Size == 8
		if ins.Size == 2 {
			e.u8(0x66)
		}
		if w || isExt(r) || isExt(x) {
			e.u8(rex(w, isExt(r), false, isExt(x)))
		}
		e.u8(0x0F)
		e.u8(0xAF)
		e.u8(regModRM(regNum(r), regNum(x)))
		return nil

	case ir.OpCwd:
		e.u8(0x66)
		e.u8(0x99)
		return nil
	case ir.OpCdq:
		e.u8(0x99)
		return nil
	case ir.OpCqo:
		e.u8(rex(true, false, false, false))
		e.u8(0x99)
		return nil

	case ir.OpSetcc:
		r := ins.Dst.Reg
		if isExt(r) {
			e.u8(rex(false, false, false, true))
		}
		e.u8(0x0F)
		e.u8(0x90 + ccCode[ins.Cond])
		e.u8(regModRM(0, regNum(r)))
		return nil

	case ir.OpJmp:
		e.u8(0xE9)
		site := e.pos()
		e.imm32(0) // patched in the emission pass once the target offset is known
		_ = site
		return nil

	case ir.OpJcc:
		if ins.Form == ir.Near {
			e.u8(0x0F)
			e.u8(0x80 + ccCode[ins.Cond])
			e.imm32(0)
		} else {
			e.u8(0x70 + ccCode[ins.Cond])
			e.u8(0)
		}
		return nil

	case ir.OpCallLabel:
		e.u8(0xE8)
		e.imm32(0)
		return nil

	case ir.OpCallReg:
		r := ins.Dst.Reg
		if isExt(r) {
			e.u8(rex(false, false, false, true))
		}
		e.u8(0xFF)
		e.u8(regModRM(2, regNum(r)))
		return nil

	case ir.OpRet:
		e.u8(0xC3)
		return nil

	case ir.OpSyscall:
		e.u8(0x0F)
		e.u8(0x05)
		return nil

	default:
		return diag.NewAssembler(fn, "<encode>", "no encoding for mnemonic %v", ins.Op)
	}
}

func (e *encoder) encodeRR(opcode byte, dst, src ir.Reg, size int) error {
	w := size == 8
	if size == 2 {
		e.u8(0x66)
	}
	if w || isExt(dst) || isExt(src) || size == 1 {
		e.u8(rex(w, isExt(src), false, isExt(dst)))
	}
	op := opcode
	if size == 1 {
		op &^= 1 // clear the width bit: 0x89->0x88, 0x29->0x28, etc. match the byte-op encoding
	}
	e.u8(op)
	e.u8(regModRM(regNum(src), regNum(dst)))
	return nil
}

func (e *encoder) encodeRM(opcode byte, dst, base ir.Reg, disp int32, size int) error {
	w := size == 8
	if size == 2 {
		e.u8(0x66)
	}
	mm, needB := memModRM(regNum(dst), base)
	if w || isExt(dst) || needB {
		e.u8(rex(w, isExt(dst), false, needB))
	}
	e.u8(opcode)
	e.u8(mm)
	e.imm32(disp)
	return nil
}

func (e *encoder) encodeMR(opcode byte, base ir.Reg, disp int32, src ir.Reg, size int) error {
	w := size == 8
	if size == 2 {
		e.u8(0x66)
	}
	mm, needB := memModRM(regNum(src), base)
	if w || isExt(src) || needB {
		e.u8(rex(w, isExt(src), false, needB))
	}
	op := opcode
	if size == 1 {
		op &^= 1
	}
	e.u8(op)
	e.u8(mm)
	e.imm32(disp)
	return nil
}

func (e *encoder) encodeMovRI(dst ir.Reg, imm int64, size int) error {
	switch size {
	case 1:
		if isExt(dst) {
			e.u8(rex(false, false, false, true))
		}
		e.u8(0xB0 + regNum(dst)&7)
		e.u8(byte(imm))
	case 2:
		e.u8(0x66)
		if isExt(dst) {
			e.u8(rex(false, false, false, true))
		}
		e.u8(0xB8 + regNum(dst)&7)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(imm))
		e.bytes(b[:])
	case 4:
		if isExt(dst) {
			e.u8(rex(false, false, false, true))
		}
		e.u8(0xB8 + regNum(dst)&7)
		e.imm32(int32(imm))
	default: // 8: C7 /0, sign-extended imm32
		e.u8(rex(true, false, false, isExt(dst)))
		e.u8(0xC7)
		e.u8(regModRM(0, regNum(dst)))
		e.imm32(int32(imm))
	}
	return nil
}

func (e *encoder) encodeGroup1(digit uint8, dst ir.Reg, imm int64, size int) error {
	w := size == 8
	switch size {
	case 1:
		if isExt(dst) {
			e.u8(rex(false, false, false, true))
		}
		e.u8(0x80)
		e.u8(regModRM(digit, regNum(dst)))
		e.u8(byte(imm))
	case 2:
		e.u8(0x66)
		if isExt(dst) {
			e.u8(rex(false, false, false, true))
		}
		e.u8(0x81)
		e.u8(regModRM(digit, regNum(dst)))
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(imm))
		e.bytes(b[:])
	default:
		if w || isExt(dst) {
			e.u8(rex(w, false, false, isExt(dst)))
		}
		e.u8(0x81)
		e.u8(regModRM(digit, regNum(dst)))
		e.imm32(int32(imm))
	}
	return nil
}

func (e *encoder) encodeShift(digit uint8, dst ir.Reg, size int) error {
	w := size == 8
	if size == 2 {
		e.u8(0x66)
	}
	if w || isExt(dst) {
		e.u8(rex(w, false, false, isExt(dst)))
	}
	op := byte(0xD3)
	if size == 1 {
		op = 0xD2
	}
	e.u8(op)
	e.u8(regModRM(digit, regNum(dst)))
	return nil
}

func (e *encoder) encodeUnaryF7(digit uint8, r ir.Reg, size int) error {
	w := size == 8
	if size == 2 {
		e.u8(0x66)
	}
	if w || isExt(r) {
		e.u8(rex(w, false, false, isExt(r)))
	}
	op := byte(0xF7)
	if size == 1 {
		op = 0xF6
	}
	e.u8(op)
	e.u8(regModRM(digit, regNum(r)))
	return nil
}

// encodeExtend lowers OpMovsxRR/OpMovzxRR. A 4-to-8 byte unsigned
// widening is just an ordinary 32-bit mov (the architecture zero-fills
// the upper 32 bits for free); a 4-to-8 signed widening needs
// movsxd (0x63) rather than the 0F BE/BF family, which only reaches
// dword from byte/word sources.
func (e *encoder) encodeExtend(ins ir.Instr) error {
	dst, src := ins.Dst.Reg, ins.Src.Reg
	if ins.SrcSize == 4 && ins.Size == 8 {
		if ins.Op == ir.OpMovzxRR {
			return e.encodeRR(0x89, dst, src, 4)
		}
		e.u8(rex(true, isExt(dst), false, isExt(src)))
		e.u8(0x63)
		e.u8(regModRM(regNum(dst), regNum(src)))
		return nil
	}
	w := ins.Size == 8
	op2 := byte(0xB6)
	if ins.SrcSize == 2 {
		op2 = 0xB7
	}
	if ins.Op == ir.OpMovsxRR {
		op2 += 0x08 // B6->BE, B7->BF
	}
	if w || isExt(dst) || isExt(src) {
		e.u8(rex(w, isExt(dst), false, isExt(src)))
	}
	e.u8(0x0F)
	e.u8(op2)
	e.u8(regModRM(regNum(dst), regNum(src)))
	return nil
}
