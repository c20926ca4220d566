package codegen

import (
	"github.com/axis-lang/axis/internal/ast"
	"github.com/axis-lang/axis/internal/diag"
	"github.com/axis-lang/axis/internal/ir"
)

// genExpr lowers expr so its result ends up in rax (or al for a bool
// result), sized according to the expression's resolved type.
func (g *funcGen) genExpr(expr ast.Expression) error {
	switch n := expr.(type) {
	case *ast.IntLit:
		g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RAX), Src: ir.Imm(n.Value), Size: n.Type.RegWidth()})
		return nil

	case *ast.BoolLit:
		v := int64(0)
		if n.Value {
			v = 1
		}
		g.emit(ir.Instr{Op: ir.OpMovRI, Dst: ir.Register(ir.RAX), Src: ir.Imm(v), Size: 4})
		return nil

	case *ast.StrLit:
		g.emit(ir.Instr{Op: ir.OpMovRLabel, Dst: ir.Register(ir.RAX), Src: ir.LabelRef(n.Label), Size: 8})
		return nil

	case *ast.Ident:
		g.emit(ir.Instr{Op: ir.OpMovRM, Dst: ir.Register(ir.RAX), Src: ir.Mem(ir.RBP, int32(n.Offset)), Size: n.Type.RegWidth()})
		return nil

	case *ast.Unary:
		return g.genUnary(n)

	case *ast.Binary:
		return g.genBinary(n)

	case *ast.Call:
		return g.genCall(n)

	case *ast.BuiltinCall:
		return g.genBuiltinCall(n)

	default:
		return diag.NewAssembler(g.fn.Name, "<expr>", "unhandled expression %T in codegen", expr)
	}
}

func (g *funcGen) genUnary(n *ast.Unary) error {
	if err := g.genExpr(n.X); err != nil {
		return err
	}
	switch n.Op {
	case ast.UnaryNeg:
		g.emit(ir.Instr{Op: ir.OpNeg, Dst: ir.Register(ir.RAX), Size: n.Type.RegWidth()})
	case ast.UnaryNot:
		g.emit(ir.Instr{Op: ir.OpXorRI, Dst: ir.Register(ir.RAX), Src: ir.Imm(1), Size: 4})
	}
	return nil
}

// genCall pushes arguments left to right then pops them into ABI
// registers right to left, so evaluation order matches source order
// even though rsp grows downward.
func (g *funcGen) genCall(n *ast.Call) error {
	for _, arg := range n.Args {
		if err := g.genExpr(arg); err != nil {
			return err
		}
		g.emit(ir.Instr{Op: ir.OpPush, Dst: ir.Register(ir.RAX), Size: 8})
	}
	for i := len(n.Args) - 1; i >= 0; i-- {
		g.emit(ir.Instr{Op: ir.OpPop, Dst: ir.Register(abiRegs[i]), Size: 8})
	}
	g.emit(ir.Instr{Op: ir.OpCallLabel, Label: n.Callee})
	return nil
}

// genBinary lowers a binary operator with the stack-discipline
// protocol: evaluate L into rax, push it, evaluate R into rax, move it
// to rcx, pop L back into rax. Every operator below then reads its
// operands from the fixed pair (rax=L, rcx=R), including the shift
// amount (cl) and the div/idiv divisor.
func (g *funcGen) genBinary(n *ast.Binary) error {
	if err := g.genExpr(n.L); err != nil {
		return err
	}
	g.emit(ir.Instr{Op: ir.OpPush, Dst: ir.Register(ir.RAX), Size: 8})
	if err := g.genExpr(n.R); err != nil {
		return err
	}
	g.emit(ir.Instr{Op: ir.OpMovRR, Dst: ir.Register(ir.RCX), Src: ir.Register(ir.RAX), Size: 8})
	g.emit(ir.Instr{Op: ir.OpPop, Dst: ir.Register(ir.RAX), Size: 8})

	w := n.OperandType.RegWidth()
	signed := n.OperandType.Signed

	switch n.Op {
	case ast.OpAdd:
		g.emit(ir.Instr{Op: ir.OpAddRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RCX), Size: w})
	case ast.OpSub:
		g.emit(ir.Instr{Op: ir.OpSubRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RCX), Size: w})
	case ast.OpMul:
		mulW := w
		if mulW == 1 {
			// Two-operand imul has no 8-bit form: widen both operands
			// to word size first and let the low byte of the product
			// carry the (truncated, and so width-correct) result.
			mulW = 2
			g.widenByteOperand(ir.RAX, signed)
			g.widenByteOperand(ir.RCX, signed)
		}
		g.emit(ir.Instr{Op: ir.OpImulRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RCX), Size: mulW})
	case ast.OpAnd:
		g.emit(ir.Instr{Op: ir.OpAndRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RCX), Size: w})
	case ast.OpOr:
		g.emit(ir.Instr{Op: ir.OpOrRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RCX), Size: w})
	case ast.OpXor:
		g.emit(ir.Instr{Op: ir.OpXorRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RCX), Size: w})

	case ast.OpDiv, ast.OpMod:
		g.genDivMod(n.Op, w, signed)

	case ast.OpShl:
		g.emit(ir.Instr{Op: ir.OpShlCL, Dst: ir.Register(ir.RAX), Size: w})
	case ast.OpShr:
		if signed {
			g.emit(ir.Instr{Op: ir.OpSarCL, Dst: ir.Register(ir.RAX), Size: w})
		} else {
			g.emit(ir.Instr{Op: ir.OpShrCL, Dst: ir.Register(ir.RAX), Size: w})
		}

	case ast.OpEq, ast.OpNeq, ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		cw := n.OperandType.RegWidth()
		g.emit(ir.Instr{Op: ir.OpCmpRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RCX), Size: cw})
		g.emit(ir.Instr{Op: ir.OpSetcc, Dst: ir.Register(ir.RAX), Cond: condFor(n.Op, n.OperandType.Signed), Size: 1})
		g.emit(ir.Instr{Op: ir.OpMovzxRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RAX), Size: 4})

	default:
		return diag.NewAssembler(g.fn.Name, "<binary>", "unhandled binary operator %v", n.Op)
	}
	return nil
}

func condFor(op ast.BinOp, signed bool) ir.Cond {
	switch op {
	case ast.OpEq:
		return ir.CondE
	case ast.OpNeq:
		return ir.CondNE
	case ast.OpLt:
		if signed {
			return ir.CondL
		}
		return ir.CondB
	case ast.OpLe:
		if signed {
			return ir.CondLE
		}
		return ir.CondBE
	case ast.OpGt:
		if signed {
			return ir.CondG
		}
		return ir.CondA
	case ast.OpGe:
		if signed {
			return ir.CondGE
		}
		return ir.CondAE
	}
	return ir.CondE
}

// widenByteOperand sign- or zero-extends the low byte of r into its
// 16-bit form in place (the cbw step 8-bit idiv/imul have no direct
// two-register encoding for): ax<-al, or cx<-cl.
func (g *funcGen) widenByteOperand(r ir.Reg, signed bool) {
	op := ir.OpMovzxRR
	if signed {
		op = ir.OpMovsxRR
	}
	g.emit(ir.Instr{Op: op, Dst: ir.Register(r), Src: ir.Register(r), Size: 2, SrcSize: 1})
}

// genDivMod lowers rax/rcx to a quotient or remainder, sign/zero
// extending rax into rdx (idiv) or clearing rdx (div) first per the
// width-appropriate extension instruction.
//
// 8-bit IDIV/DIV divide ax (not dx:ax) and leave their remainder in ah,
// which this encoder has no way to address directly, so byte operands
// are widened to word size first (cbw-style, via widenByteOperand) and
// divided as 16-bit values; the low byte of the 16-bit quotient or
// remainder is the width-correct 8-bit result either way, since
// widening both operands the same way never changes a truncated
// division's low-order result.
func (g *funcGen) genDivMod(op ast.BinOp, w int, signed bool) {
	divW := w
	if divW == 1 {
		divW = 2
		g.widenByteOperand(ir.RAX, signed)
		g.widenByteOperand(ir.RCX, signed)
	}
	if signed {
		switch divW {
		case 8:
			g.emit(ir.Instr{Op: ir.OpCqo, Size: 8})
		case 2:
			g.emit(ir.Instr{Op: ir.OpCwd, Size: 2})
		default:
			g.emit(ir.Instr{Op: ir.OpCdq, Size: 4})
		}
		g.emit(ir.Instr{Op: ir.OpIdiv, Src: ir.Register(ir.RCX), Size: divW})
	} else {
		g.emit(ir.Instr{Op: ir.OpXorRR, Dst: ir.Register(ir.RDX), Src: ir.Register(ir.RDX), Size: divW})
		g.emit(ir.Instr{Op: ir.OpDiv, Src: ir.Register(ir.RCX), Size: divW})
	}
	if op == ast.OpMod {
		g.emit(ir.Instr{Op: ir.OpMovRR, Dst: ir.Register(ir.RAX), Src: ir.Register(ir.RDX), Size: w})
	}
}
