package codegen

import (
	"github.com/axis-lang/axis/internal/ast"
	"github.com/axis-lang/axis/internal/diag"
	"github.com/axis-lang/axis/internal/ir"
	"github.com/axis-lang/axis/internal/types"
)

// newlineLabel names the single shared .rodata byte every write()/
// writeln() call borrows for its trailing newline.
const newlineLabel = ".L.newline"

const (
	mmapProtRW    = 3    // PROT_READ|PROT_WRITE
	mmapPrivAnon  = 0x22 // MAP_PRIVATE|MAP_ANONYMOUS
	mmapLen       = 4096
	mmapFdNone    = -1
	readFailedSym = "_read_failed"
)

func (g *funcGen) genBuiltinCall(n *ast.BuiltinCall) error {
	if n.K != ast.BuiltinReadFailed {
		return diag.NewAssembler(g.fn.Name, "<builtin>", "builtin kind %v reached codegen outside of a ReadTo", n.K)
	}
	g.emit(ir.Instr{Op: ir.OpMovabsRLabel, Dst: ir.Register(ir.R11), Src: ir.LabelRef(readFailedSym), Size: 8})
	g.emit(ir.Instr{Op: ir.OpMovRM, Dst: ir.Register(ir.RAX), Src: ir.Mem(ir.R11, 0), Size: 1})
	g.emit(ir.Instr{Op: ir.OpMovzxRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RAX), Size: 4, SrcSize: 1})
	return nil
}

// genWrite lowers write()/writeln(). A str literal has a compile-time
// known length; every other str-typed expression needs a runtime
// strlen scan; integer and bool expressions go through itoa first.
func (g *funcGen) genWrite(n *ast.Write) error {
	var bufReg, lenReg ir.Reg

	if lit, ok := n.Expr.(*ast.StrLit); ok {
		g.emit(ir.Instr{Op: ir.OpMovRLabel, Dst: ir.Register(ir.RBX), Src: ir.LabelRef(lit.Label), Size: 8})
		g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RCX), Src: ir.Imm(int64(len(lit.Value))), Size: 8})
		bufReg, lenReg = ir.RBX, ir.RCX
	} else {
		t := exprType(n.Expr)
		if err := g.genExpr(n.Expr); err != nil {
			return err
		}
		switch t.Kind {
		case types.Str:
			g.emit(ir.Instr{Op: ir.OpMovRR, Dst: ir.Register(ir.RBX), Src: ir.Register(ir.RAX), Size: 8})
			g.genStrlen()
			bufReg, lenReg = ir.RBX, ir.RCX
		case types.Bool:
			g.genItoa(types.U32)
			bufReg, lenReg = ir.RBX, ir.RCX
		default:
			g.genItoa(t)
			bufReg, lenReg = ir.RBX, ir.RCX
		}
	}

	g.emitWriteSyscall(bufReg, lenReg)
	if n.Newline {
		g.emit(ir.Instr{Op: ir.OpMovRLabel, Dst: ir.Register(ir.RSI), Src: ir.LabelRef(newlineLabel), Size: 8})
		g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(1), Size: 4})
		g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RDI), Src: ir.Imm(1), Size: 4})
		g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RAX), Src: ir.Imm(sysWrite), Size: 4})
		g.emit(ir.Instr{Op: ir.OpSyscall})
	}
	return nil
}

func (g *funcGen) emitWriteSyscall(buf, length ir.Reg) {
	g.emit(ir.Instr{Op: ir.OpMovRR, Dst: ir.Register(ir.RSI), Src: ir.Register(buf), Size: 8})
	g.emit(ir.Instr{Op: ir.OpMovRR, Dst: ir.Register(ir.RDX), Src: ir.Register(length), Size: 8})
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RDI), Src: ir.Imm(1), Size: 4})
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RAX), Src: ir.Imm(sysWrite), Size: 4})
	g.emit(ir.Instr{Op: ir.OpSyscall})
}

// genStrlen scans the NUL-terminated buffer at rbx and leaves its
// length in rcx. Plain byte-at-a-time scan; nothing in this language
// needs it to be fast.
func (g *funcGen) genStrlen() {
	start := g.newLabel("strlen")
	end := g.newLabel("strlen_end")
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RCX), Src: ir.Imm(0), Size: 8})
	g.emit(ir.Label(start))
	g.emit(ir.Instr{Op: ir.OpMovRM, Dst: ir.Register(ir.RDX), Src: ir.Mem(ir.RBX, 0), Size: 1})
	g.emit(ir.Instr{Op: ir.OpCmpRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(0), Size: 1})
	g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondE, Label: end})
	g.emit(ir.Instr{Op: ir.OpAddRI, Dst: ir.Register(ir.RBX), Src: ir.Imm(1), Size: 8})
	g.emit(ir.Instr{Op: ir.OpAddRI, Dst: ir.Register(ir.RCX), Src: ir.Imm(1), Size: 8})
	g.emit(ir.Instr{Op: ir.OpJmp, Label: start})
	g.emit(ir.Label(end))
	g.emit(ir.Instr{Op: ir.OpSubRR, Dst: ir.Register(ir.RBX), Src: ir.Register(ir.RCX), Size: 8})
}

// genItoa converts the integer currently in rax (interpreted as type
// t) to a decimal ASCII string written backward into the per-function
// scratch buffer, leaving the string's first byte in rbx and its
// length in rcx. r8, r9, r11 are clobbered as working registers.
func (g *funcGen) genItoa(t types.Type) {
	if t.Width < 8 {
		if t.Signed {
			g.emit(ir.Instr{Op: ir.OpMovsxRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RAX), Size: 8, SrcSize: t.Width})
		} else {
			g.emit(ir.Instr{Op: ir.OpMovzxRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RAX), Size: 8, SrcSize: t.Width})
		}
	}

	negative := g.newLabel("itoa_neg")
	afterSign := g.newLabel("itoa_sign_done")
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.R8), Src: ir.Imm(0), Size: 8}) // sign flag
	if t.Signed {
		g.emit(ir.Instr{Op: ir.OpCmpRI, Dst: ir.Register(ir.RAX), Src: ir.Imm(0), Size: 8})
		g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondGE, Label: afterSign})
		g.emit(ir.Label(negative))
		g.emit(ir.Instr{Op: ir.OpNeg, Dst: ir.Register(ir.RAX), Size: 8})
		g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.R8), Src: ir.Imm(1), Size: 8})
		g.emit(ir.Label(afterSign))
	}

	end := g.itoaBufBase() + itoaScratch - 1
	g.emit(ir.Instr{Op: ir.OpLeaRM, Dst: ir.Register(ir.RBX), Src: ir.Mem(ir.RBP, end), Size: 8})
	g.emit(ir.Instr{Op: ir.OpLeaRM, Dst: ir.Register(ir.R11), Src: ir.Mem(ir.RBP, end), Size: 8})
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.R9), Src: ir.Imm(10), Size: 8})

	loop := g.newLabel("itoa_digit")
	g.emit(ir.Label(loop))
	g.emit(ir.Instr{Op: ir.OpXorRR, Dst: ir.Register(ir.RDX), Src: ir.Register(ir.RDX), Size: 8})
	g.emit(ir.Instr{Op: ir.OpDiv, Src: ir.Register(ir.R9), Size: 8})
	g.emit(ir.Instr{Op: ir.OpAddRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(48), Size: 8})
	g.emit(ir.Instr{Op: ir.OpMovMR, Dst: ir.Mem(ir.RBX, 0), Src: ir.Register(ir.RDX), Size: 1})
	g.emit(ir.Instr{Op: ir.OpSubRI, Dst: ir.Register(ir.RBX), Src: ir.Imm(1), Size: 8})
	g.emit(ir.Instr{Op: ir.OpTestRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RAX), Size: 8})
	g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondNE, Label: loop})

	if t.Signed {
		skipSign := g.newLabel("itoa_nosign")
		g.emit(ir.Instr{Op: ir.OpTestRR, Dst: ir.Register(ir.R8), Src: ir.Register(ir.R8), Size: 8})
		g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondE, Label: skipSign})
		g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(45), Size: 8})
		g.emit(ir.Instr{Op: ir.OpMovMR, Dst: ir.Mem(ir.RBX, 0), Src: ir.Register(ir.RDX), Size: 1})
		g.emit(ir.Instr{Op: ir.OpSubRI, Dst: ir.Register(ir.RBX), Src: ir.Imm(1), Size: 8})
		g.emit(ir.Label(skipSign))
	}

	// rbx now points one byte before the string's first character.
	g.emit(ir.Instr{Op: ir.OpAddRI, Dst: ir.Register(ir.RBX), Src: ir.Imm(1), Size: 8})
	g.emit(ir.Instr{Op: ir.OpMovRR, Dst: ir.Register(ir.RCX), Src: ir.Register(ir.R11), Size: 8})
	g.emit(ir.Instr{Op: ir.OpSubRR, Dst: ir.Register(ir.RCX), Src: ir.Register(ir.RBX), Size: 8})
	g.emit(ir.Instr{Op: ir.OpAddRI, Dst: ir.Register(ir.RCX), Src: ir.Imm(1), Size: 8})
}

// genReadTo lowers read()/readln()/readchar() bound directly to a
// variable: mmap a fresh page, read into it, optionally trim a
// trailing newline, then either store the buffer pointer (str
// destination) or parse it as a signed decimal (integer destination).
func (g *funcGen) genReadTo(n *ast.ReadTo) error {
	g.emitMmap()
	g.emit(ir.Instr{Op: ir.OpMovRR, Dst: ir.Register(ir.RBX), Src: ir.Register(ir.RAX), Size: 8})

	readLen := int64(mmapLen)
	if n.Kind == ast.ReadChar {
		readLen = 1
	}
	g.emit(ir.Instr{Op: ir.OpMovRR, Dst: ir.Register(ir.RSI), Src: ir.Register(ir.RBX), Size: 8})
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RDI), Src: ir.Imm(0), Size: 4})
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(readLen), Size: 4})
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RAX), Src: ir.Imm(sysRead), Size: 4})
	g.emit(ir.Instr{Op: ir.OpSyscall})

	if n.Kind == ast.ReadLine {
		g.genTrimNewline()
	}

	if n.Type.IsInteger() {
		g.genParseDecimal(n.Type)
	} else {
		g.emit(ir.Instr{Op: ir.OpMovRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RBX), Size: 8})
		g.setReadFailed(false)
	}

	g.store(n.Offset, n.Type)
	return nil
}

func (g *funcGen) emitMmap() {
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RDI), Src: ir.Imm(0), Size: 4})
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RSI), Src: ir.Imm(mmapLen), Size: 4})
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(mmapProtRW), Size: 4})
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.R10), Src: ir.Imm(mmapPrivAnon), Size: 4})
	g.emit(ir.Instr{Op: ir.OpMovabsRI, Dst: ir.Register(ir.R8), Src: ir.Imm(mmapFdNone), Size: 8})
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.R9), Src: ir.Imm(0), Size: 4})
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RAX), Src: ir.Imm(sysMmap), Size: 4})
	g.emit(ir.Instr{Op: ir.OpSyscall})
}

// genTrimNewline scans the buffer at rbx for '\n' and overwrites it
// with 0; the zero-initialized mmap page guarantees everything after
// it already reads as NUL, so this alone bounds the line.
func (g *funcGen) genTrimNewline() {
	start := g.newLabel("trimnl")
	found := g.newLabel("trimnl_found")
	end := g.newLabel("trimnl_end")
	g.emit(ir.Instr{Op: ir.OpMovRR, Dst: ir.Register(ir.RCX), Src: ir.Register(ir.RBX), Size: 8})
	g.emit(ir.Label(start))
	g.emit(ir.Instr{Op: ir.OpMovRM, Dst: ir.Register(ir.RDX), Src: ir.Mem(ir.RCX, 0), Size: 1})
	g.emit(ir.Instr{Op: ir.OpCmpRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(0), Size: 1})
	g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondE, Label: end})
	g.emit(ir.Instr{Op: ir.OpCmpRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(10), Size: 1})
	g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondE, Label: found})
	g.emit(ir.Instr{Op: ir.OpAddRI, Dst: ir.Register(ir.RCX), Src: ir.Imm(1), Size: 8})
	g.emit(ir.Instr{Op: ir.OpJmp, Label: start})
	g.emit(ir.Label(found))
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(0), Size: 8})
	g.emit(ir.Instr{Op: ir.OpMovMR, Dst: ir.Mem(ir.RCX, 0), Src: ir.Register(ir.RDX), Size: 1})
	g.emit(ir.Label(end))
}

// genParseDecimal parses a leading signed decimal run out of the
// NUL-terminated buffer at rbx into rax, stopping at the first
// non-digit, and sets _read_failed. Failure means no digits were
// consumed at all (empty input, or a bare sign); a trailing non-digit
// after at least one digit just ends the number, matching the style
// of libc's strtol rather than demanding the whole buffer be numeric.
func (g *funcGen) genParseDecimal(t types.Type) {
	neg := g.newLabel("parse_neg")
	afterSign := g.newLabel("parse_after_sign")
	loop := g.newLabel("parse_digit")
	notDigit := g.newLabel("parse_notdigit")
	done := g.newLabel("parse_done")
	fail := g.newLabel("parse_fail")
	ok := g.newLabel("parse_ok")
	after := g.newLabel("parse_after")

	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.R8), Src: ir.Imm(0), Size: 8})  // sign flag
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.R9), Src: ir.Imm(0), Size: 8})  // digit count
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RAX), Src: ir.Imm(0), Size: 8}) // accumulator

	g.emit(ir.Instr{Op: ir.OpMovRM, Dst: ir.Register(ir.RDX), Src: ir.Mem(ir.RBX, 0), Size: 1})
	g.emit(ir.Instr{Op: ir.OpCmpRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(45), Size: 1})
	g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondNE, Label: afterSign})
	g.emit(ir.Label(neg))
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.R8), Src: ir.Imm(1), Size: 8})
	g.emit(ir.Instr{Op: ir.OpAddRI, Dst: ir.Register(ir.RBX), Src: ir.Imm(1), Size: 8})
	g.emit(ir.Label(afterSign))

	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.R10), Src: ir.Imm(10), Size: 8})
	g.emit(ir.Label(loop))
	g.emit(ir.Instr{Op: ir.OpMovRM, Dst: ir.Register(ir.RDX), Src: ir.Mem(ir.RBX, 0), Size: 1})
	g.emit(ir.Instr{Op: ir.OpMovzxRR, Dst: ir.Register(ir.RDX), Src: ir.Register(ir.RDX), Size: 4, SrcSize: 1})
	g.emit(ir.Instr{Op: ir.OpCmpRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(48), Size: 1})
	g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondL, Label: notDigit})
	g.emit(ir.Instr{Op: ir.OpCmpRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(57), Size: 1})
	g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondG, Label: notDigit})
	g.emit(ir.Instr{Op: ir.OpImulRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.R10), Size: 8})
	g.emit(ir.Instr{Op: ir.OpSubRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(48), Size: 8})
	g.emit(ir.Instr{Op: ir.OpAddRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RDX), Size: 8})
	g.emit(ir.Instr{Op: ir.OpAddRI, Dst: ir.Register(ir.RBX), Src: ir.Imm(1), Size: 8})
	g.emit(ir.Instr{Op: ir.OpAddRI, Dst: ir.Register(ir.R9), Src: ir.Imm(1), Size: 8})
	g.emit(ir.Instr{Op: ir.OpJmp, Label: loop})

	g.emit(ir.Label(notDigit))
	g.emit(ir.Instr{Op: ir.OpCmpRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(0), Size: 1})
	g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondE, Label: done})

	g.emit(ir.Label(done))
	g.emit(ir.Instr{Op: ir.OpTestRR, Dst: ir.Register(ir.R9), Src: ir.Register(ir.R9), Size: 8})
	g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondE, Label: fail})
	g.emit(ir.Instr{Op: ir.OpTestRR, Dst: ir.Register(ir.R8), Src: ir.Register(ir.R8), Size: 8})
	g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondE, Label: ok})
	g.emit(ir.Instr{Op: ir.OpNeg, Dst: ir.Register(ir.RAX), Size: 8})
	g.emit(ir.Instr{Op: ir.OpJmp, Label: ok})

	g.emit(ir.Label(fail))
	g.setReadFailed(true)
	g.emit(ir.Instr{Op: ir.OpJmp, Label: after})

	g.emit(ir.Label(ok))
	g.setReadFailed(false)
	g.emit(ir.Label(after))
}

func (g *funcGen) setReadFailed(failed bool) {
	v := int64(0)
	if failed {
		v = 1
	}
	g.emit(ir.Instr{Op: ir.OpMovabsRLabel, Dst: ir.Register(ir.R11), Src: ir.LabelRef(readFailedSym), Size: 8})
	g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RDX), Src: ir.Imm(v), Size: 8})
	g.emit(ir.Instr{Op: ir.OpMovMR, Dst: ir.Mem(ir.R11, 0), Src: ir.Register(ir.RDX), Size: 1})
}
