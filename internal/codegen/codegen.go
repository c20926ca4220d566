// Package codegen lowers the semantically-checked AST to the abstract
// x86-64 instruction stream the assembler consumes. It follows System V
// AMD64: integer args in rdi/rsi/rdx/rcx/r8/r9, return in rax/eax/al, a
// push-rbp/mov-rbp,rsp/sub-rsp prologue and a single shared epilogue per
// function. One file per concern (this file, expr.go, builtins.go), a funcGen
// struct threading the in-progress instruction list.
package codegen

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/axis-lang/axis/internal/ast"
	"github.com/axis-lang/axis/internal/axlog"
	"github.com/axis-lang/axis/internal/diag"
	"github.com/axis-lang/axis/internal/ir"
	"github.com/axis-lang/axis/internal/sema"
	"github.com/axis-lang/axis/internal/types"
)

// itoaScratch is the fixed extra stack space every function reserves
// below its declared locals for the write() integer-conversion
// buffer: a sign byte plus 20 decimal digits for an i64/u64, rounded up
// with room to spare.
const itoaScratch = 32

// abiRegs is the System V AMD64 integer argument register order.
var abiRegs = []ir.Reg{ir.RDI, ir.RSI, ir.RDX, ir.RCX, ir.R8, ir.R9}

// Linux x86-64 syscall numbers, taken from x/sys/unix rather than
// hand-copied so they can't drift from the kernel ABI it tracks.
const (
	sysRead  = unix.SYS_READ
	sysWrite = unix.SYS_WRITE
	sysMmap  = unix.SYS_MMAP
	sysExit  = unix.SYS_EXIT
)

type loopLabels struct {
	start, end string
}

type funcGen struct {
	file    string
	fn      *ast.FuncDecl
	log     *axlog.Logger
	instrs  []ir.Instr
	labelN  int
	loops   []loopLabels
	scratch int32 // total stack frame size this function allocates, 16-aligned
}

// itoaBufBase is the (most negative) rbp-relative offset of the first
// byte of the itoa/read scratch buffer: the itoaScratch bytes
// immediately below the function's declared locals.
func (g *funcGen) itoaBufBase() int32 {
	return -int32(g.fn.FrameSize + itoaScratch)
}

func Generate(file string, mod *sema.Module, log *axlog.Logger) (*ir.Program, error) {
	prog := &ir.Program{BSSSymbol: "_read_failed", EntryFunc: "main"}
	prog.Rodata = append(prog.Rodata, ir.RodataEntry{Label: newlineLabel, Bytes: []byte{'\n'}})
	for _, entry := range mod.Strings {
		prog.Rodata = append(prog.Rodata, ir.RodataEntry{Label: entry.Label, Bytes: append(append([]byte{}, entry.Value...), 0)})
	}
	for _, fn := range mod.Program.Funcs {
		g := &funcGen{file: file, fn: fn, log: log}
		if err := g.generate(); err != nil {
			return nil, err
		}
		prog.Functions = append(prog.Functions, ir.Function{Name: fn.Name, FrameSize: int(g.scratch), Instrs: g.instrs})
	}
	return prog, nil
}

func (g *funcGen) emit(i ir.Instr) { g.instrs = append(g.instrs, i) }

func (g *funcGen) newLabel(tag string) string {
	g.labelN++
	return fmt.Sprintf(".L%s_%s_%d", g.fn.Name, tag, g.labelN)
}

func (g *funcGen) epilogueLabel() string { return ".L" + g.fn.Name + "_epilogue" }

func (g *funcGen) generate() error {
	frameSize := int32(g.fn.FrameSize + itoaScratch)
	if rem := frameSize % 16; rem != 0 {
		frameSize += 16 - rem
	}
	g.scratch = frameSize

	g.emit(ir.Label(g.fn.Name))
	g.emit(ir.Instr{Op: ir.OpPush, Dst: ir.Register(ir.RBP), Size: 8})
	g.emit(ir.Instr{Op: ir.OpMovRR, Dst: ir.Register(ir.RBP), Src: ir.Register(ir.RSP), Size: 8})
	g.emit(ir.Instr{Op: ir.OpSubRI, Dst: ir.Register(ir.RSP), Src: ir.Imm(int64(frameSize)), Size: 8})

	for i, p := range g.fn.Params {
		off := paramOffset(g.fn, i)
		g.emit(ir.Instr{Op: ir.OpMovMR, Dst: ir.Mem(ir.RBP, int32(off)), Src: ir.Register(abiRegs[i]), Size: p.Type.Width})
	}

	if err := g.genBlock(g.fn.Body); err != nil {
		return err
	}

	g.emit(ir.Label(g.epilogueLabel()))
	g.emit(ir.Instr{Op: ir.OpMovRR, Dst: ir.Register(ir.RSP), Src: ir.Register(ir.RBP), Size: 8})
	g.emit(ir.Instr{Op: ir.OpPop, Dst: ir.Register(ir.RBP), Size: 8})
	g.emit(ir.Instr{Op: ir.OpRet})
	return nil
}

// paramOffset recovers the frame offset the analyzer assigned to
// parameter i by re-walking the same alignment rule sema used; params
// are bound first in analyzeFunc so this reproduces the identical
// sequence deterministically.
func paramOffset(fn *ast.FuncDecl, idx int) int {
	off := 0
	for i := 0; i <= idx; i++ {
		w := fn.Params[i].Type.Width
		if w < 1 {
			w = 1
		}
		off += w
		if rem := off % w; rem != 0 {
			off += w - rem
		}
	}
	return -off
}

func (g *funcGen) genBlock(blk *ast.Block) error {
	for _, stmt := range blk.Stmts {
		if err := g.genStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (g *funcGen) genStmt(stmt ast.Statement) error {
	switch n := stmt.(type) {
	case *ast.VarDecl:
		if err := g.genExpr(n.Init); err != nil {
			return err
		}
		g.store(n.Offset, n.Type)
		return nil

	case *ast.Assign:
		t := exprType(n.Expr)
		if err := g.genExpr(n.Expr); err != nil {
			return err
		}
		g.store(n.Offset, t)
		return nil

	case *ast.ReadTo:
		return g.genReadTo(n)

	case *ast.If:
		return g.genIf(n)

	case *ast.While:
		return g.genWhile(n)

	case *ast.Loop:
		return g.genLoop(n)

	case *ast.Break:
		if len(g.loops) == 0 {
			return diag.NewAssembler(g.fn.Name, "<break>", "break outside of a loop reached codegen")
		}
		g.emit(ir.Instr{Op: ir.OpJmp, Label: g.loops[len(g.loops)-1].end})
		return nil

	case *ast.Continue:
		if len(g.loops) == 0 {
			return diag.NewAssembler(g.fn.Name, "<continue>", "continue outside of a loop reached codegen")
		}
		g.emit(ir.Instr{Op: ir.OpJmp, Label: g.loops[len(g.loops)-1].start})
		return nil

	case *ast.Return:
		if n.Expr != nil {
			if err := g.genExpr(n.Expr); err != nil {
				return err
			}
		}
		g.emit(ir.Instr{Op: ir.OpJmp, Label: g.epilogueLabel()})
		return nil

	case *ast.ExprStmt:
		return g.genExpr(n.Call)

	case *ast.Write:
		return g.genWrite(n)

	default:
		return diag.NewAssembler(g.fn.Name, "<stmt>", "unhandled statement %T in codegen", stmt)
	}
}

// exprType reads back the Type annotation sema attached to an
// expression node. An Assign's own symbol type always equals its RHS
// type after a successful analysis pass, so this is enough to pick the
// right store width without threading a symbol table through codegen.
func exprType(e ast.Expression) types.Type {
	switch n := e.(type) {
	case *ast.IntLit:
		return n.Type
	case *ast.BoolLit:
		return types.Bln
	case *ast.StrLit:
		return types.Strn
	case *ast.Ident:
		return n.Type
	case *ast.Unary:
		return n.Type
	case *ast.Binary:
		return n.Type
	case *ast.Call:
		return n.ReturnType
	case *ast.BuiltinCall:
		return n.Type
	default:
		return types.Type{}
	}
}

func (g *funcGen) store(offset int, t types.Type) {
	g.emit(ir.Instr{Op: ir.OpMovMR, Dst: ir.Mem(ir.RBP, int32(offset)), Src: ir.Register(ir.RAX), Size: t.Width})
}

func (g *funcGen) genIf(n *ast.If) error {
	elseLabel := g.newLabel("else")
	endLabel := g.newLabel("endif")
	if err := g.genCond(n.Cond); err != nil {
		return err
	}
	target := endLabel
	if n.Else != nil {
		target = elseLabel
	}
	g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondE, Label: target})
	if err := g.genBlock(n.Then); err != nil {
		return err
	}
	if n.Else != nil {
		g.emit(ir.Instr{Op: ir.OpJmp, Label: endLabel})
		g.emit(ir.Label(elseLabel))
		if err := g.genBlock(n.Else); err != nil {
			return err
		}
	}
	g.emit(ir.Label(endLabel))
	return nil
}

func (g *funcGen) genWhile(n *ast.While) error {
	start := g.newLabel("while")
	end := g.newLabel("endwhile")
	g.emit(ir.Label(start))
	if err := g.genCond(n.Cond); err != nil {
		return err
	}
	g.emit(ir.Instr{Op: ir.OpJcc, Cond: ir.CondE, Label: end})
	g.loops = append(g.loops, loopLabels{start: start, end: end})
	if err := g.genBlock(n.Body); err != nil {
		return err
	}
	g.loops = g.loops[:len(g.loops)-1]
	g.emit(ir.Instr{Op: ir.OpJmp, Label: start})
	g.emit(ir.Label(end))
	return nil
}

func (g *funcGen) genLoop(n *ast.Loop) error {
	start := g.newLabel("loop")
	end := g.newLabel("endloop")
	g.emit(ir.Label(start))
	g.loops = append(g.loops, loopLabels{start: start, end: end})
	if err := g.genBlock(n.Body); err != nil {
		return err
	}
	g.loops = g.loops[:len(g.loops)-1]
	g.emit(ir.Instr{Op: ir.OpJmp, Label: start})
	g.emit(ir.Label(end))
	return nil
}

// genCond evaluates a bool-typed condition and emits "test al, al"
// so the caller only needs to follow with a jz.
func (g *funcGen) genCond(cond ast.Expression) error {
	if err := g.genExpr(cond); err != nil {
		return err
	}
	g.emit(ir.Instr{Op: ir.OpTestRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RAX), Size: 1})
	return nil
}
