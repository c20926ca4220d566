// Package sema implements a single-pass semantic analyzer: name
// resolution, type checking, and per-function frame layout.
package sema

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/axis-lang/axis/internal/ast"
	"github.com/axis-lang/axis/internal/diag"
	"github.com/axis-lang/axis/internal/types"
)

// Frame describes a function's stack layout.
type Frame struct {
	Size int // rounded up to 16
}

// Module is the result of semantic analysis: the frame layout per
// function plus the table of string literals discovered along the way.
type Module struct {
	Program  *ast.Program
	Frames   map[string]*Frame
	Strings  []StringEntry
	FuncSigs map[string]*ast.FuncDecl
}

type StringEntry struct {
	Label string
	Value []byte
}

type symbol struct {
	typ    types.Type
	offset int
}

type scope struct {
	vars   map[string]symbol
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: map[string]symbol{}, parent: parent}
}

func (s *scope) lookup(name string) (symbol, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if sym, ok := cur.vars[name]; ok {
			return sym, true
		}
	}
	return symbol{}, false
}

func (s *scope) declaredHere(name string) bool {
	_, ok := s.vars[name]
	return ok
}

type analyzer struct {
	file    string
	funcs   map[string]*ast.FuncDecl
	frames  map[string]*Frame
	strings []StringEntry
	strSeen map[string]string

	cur      *ast.FuncDecl
	frameOff int
}

func Analyze(file string, prog *ast.Program) (*Module, error) {
	a := &analyzer{
		file:    file,
		funcs:   map[string]*ast.FuncDecl{},
		frames:  map[string]*Frame{},
		strSeen: map[string]string{},
	}
	for _, fn := range prog.Funcs {
		if _, dup := a.funcs[fn.Name]; dup {
			line, col := fn.Pos()
			return nil, diag.New(diag.NameError, file, line, col, "function %q redeclared", fn.Name)
		}
		a.funcs[fn.Name] = fn
	}
	if _, ok := a.funcs["main"]; !ok {
		return nil, diag.New(diag.NameError, file, 0, 0, "no function named \"main\"")
	}
	for _, fn := range prog.Funcs {
		if err := a.analyzeFunc(fn); err != nil {
			return nil, err
		}
	}
	return &Module{Program: prog, Frames: a.frames, Strings: a.strings, FuncSigs: a.funcs}, nil
}

func (a *analyzer) errf(kind diag.Kind, n ast.Node, format string, args ...interface{}) error {
	line, col := n.Pos()
	return diag.New(kind, a.file, line, col, format, args...)
}

func (a *analyzer) alignedOffset(width int) int {
	if width < 1 {
		width = 1
	}
	a.frameOff += width
	if rem := a.frameOff % width; rem != 0 {
		a.frameOff += width - rem
	}
	return -a.frameOff
}

func (a *analyzer) analyzeFunc(fn *ast.FuncDecl) error {
	a.cur = fn
	a.frameOff = 0
	top := newScope(nil)

	names := lo.Map(fn.Params, func(p ast.Param, _ int) string { return p.Name })
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return a.errf(diag.NameError, fn, "function %q repeats parameter name %q", fn.Name, dups[0])
	}

	for i := range fn.Params {
		p := &fn.Params[i]
		off := a.alignedOffset(p.Type.Width)
		top.vars[p.Name] = symbol{typ: p.Type, offset: off}
	}

	if err := a.analyzeBlock(fn.Body, top, false); err != nil {
		return err
	}

	size := a.frameOff
	if rem := size % 16; rem != 0 {
		size += 16 - rem
	}
	fn.FrameSize = size
	a.frames[fn.Name] = &Frame{Size: size}
	return nil
}

func (a *analyzer) analyzeBlock(blk *ast.Block, parent *scope, inLoop bool) error {
	s := newScope(parent)
	for _, stmt := range blk.Stmts {
		if err := a.analyzeStmt(stmt, s, inLoop); err != nil {
			return err
		}
	}
	return nil
}

func (a *analyzer) analyzeStmt(stmt ast.Statement, s *scope, inLoop bool) error {
	switch n := stmt.(type) {
	case *ast.VarDecl:
		if s.declaredHere(n.Name) {
			return a.errf(diag.NameError, n, "%q redeclared in this scope", n.Name)
		}
		t, err := a.analyzeExpr(n.Init, s, &n.Type)
		if err != nil {
			return err
		}
		if !t.Equal(n.Type) {
			return a.errf(diag.TypeError, n, "cannot initialize %q of type %s with value of type %s", n.Name, n.Type, t)
		}
		off := a.alignedOffset(n.Type.Width)
		n.Offset = off
		s.vars[n.Name] = symbol{typ: n.Type, offset: off}
		return nil

	case *ast.ReadTo:
		if n.Type.Kind != types.Invalid {
			if s.declaredHere(n.Target) {
				return a.errf(diag.NameError, n, "%q redeclared in this scope", n.Target)
			}
			n.Offset = a.alignedOffset(n.Type.Width)
			s.vars[n.Target] = symbol{typ: n.Type, offset: n.Offset}
			return nil
		}
		sym, ok := s.lookup(n.Target)
		if !ok {
			return a.errf(diag.NameError, n, "undefined identifier %q", n.Target)
		}
		if n.Type.Kind == types.Invalid {
			n.Type = sym.typ
		}
		if !sym.typ.Equal(n.Type) {
			return a.errf(diag.TypeError, n, "cannot assign result of read into %q of type %s", n.Target, sym.typ)
		}
		n.Offset = sym.offset
		return nil

	case *ast.Assign:
		sym, ok := s.lookup(n.Name)
		if !ok {
			return a.errf(diag.NameError, n, "undefined identifier %q", n.Name)
		}
		t, err := a.analyzeExpr(n.Expr, s, &sym.typ)
		if err != nil {
			return err
		}
		if !t.Equal(sym.typ) {
			return a.errf(diag.TypeError, n, "cannot assign value of type %s to %q of type %s", t, n.Name, sym.typ)
		}
		n.Offset = sym.offset
		return nil

	case *ast.If:
		t, err := a.analyzeExpr(n.Cond, s, &types.Bln)
		if err != nil {
			return err
		}
		if !t.Equal(types.Bln) {
			return a.errf(diag.TypeError, n, "when condition must be bool, found %s", t)
		}
		if err := a.analyzeBlock(n.Then, s, inLoop); err != nil {
			return err
		}
		if n.Else != nil {
			return a.analyzeBlock(n.Else, s, inLoop)
		}
		return nil

	case *ast.While:
		t, err := a.analyzeExpr(n.Cond, s, &types.Bln)
		if err != nil {
			return err
		}
		if !t.Equal(types.Bln) {
			return a.errf(diag.TypeError, n, "while condition must be bool, found %s", t)
		}
		return a.analyzeBlock(n.Body, s, true)

	case *ast.Loop:
		return a.analyzeBlock(n.Body, s, true)

	case *ast.Break:
		if !inLoop {
			return a.errf(diag.ParseError, n, "break outside of a loop")
		}
		return nil

	case *ast.Continue:
		if !inLoop {
			return a.errf(diag.ParseError, n, "continue outside of a loop")
		}
		return nil

	case *ast.Return:
		if n.Expr == nil {
			if a.cur.ReturnType.Kind != types.Void {
				return a.errf(diag.TypeError, n, "function %q returns %s; bare give is only valid in void functions", a.cur.Name, a.cur.ReturnType)
			}
			return nil
		}
		t, err := a.analyzeExpr(n.Expr, s, &a.cur.ReturnType)
		if err != nil {
			return err
		}
		if !t.Equal(a.cur.ReturnType) {
			return a.errf(diag.TypeError, n, "function %q returns %s, found %s", a.cur.Name, a.cur.ReturnType, t)
		}
		return nil

	case *ast.ExprStmt:
		_, err := a.analyzeExpr(n.Call, s, nil)
		return err

	case *ast.Write:
		_, err := a.analyzeExpr(n.Expr, s, nil)
		return err

	default:
		return a.errf(diag.ParseError, stmt, "unhandled statement %T", stmt)
	}
}

// analyzeExpr type-checks expr bottom-up. expected carries the type
// context a caller already knows (a declared variable's type, a
// function's return type, a sibling operand's resolved type); it lets
// an untyped integer literal pick up that type instead of always
// defaulting to i32, the same way an untyped constant in a typed slot
// takes on that slot's type.
func (a *analyzer) analyzeExpr(expr ast.Expression, s *scope, expected *types.Type) (types.Type, error) {
	switch n := expr.(type) {
	case *ast.IntLit:
		t := types.I32
		if expected != nil && expected.IsInteger() {
			t = *expected
		}
		if !t.InRange(n.Value) {
			return types.Type{}, a.errf(diag.RangeError, n, "literal %d out of range for %s", n.Value, t)
		}
		n.Type = t
		n.InferredWidth = t.Width
		return t, nil

	case *ast.BoolLit:
		return types.Bln, nil

	case *ast.StrLit:
		if label, ok := a.strSeen[string(n.Value)]; ok {
			n.Label = label
		} else {
			label := fmt.Sprintf(".L.str.%d", len(a.strings))
			a.strings = append(a.strings, StringEntry{Label: label, Value: n.Value})
			a.strSeen[string(n.Value)] = label
			n.Label = label
		}
		return types.Strn, nil

	case *ast.Ident:
		sym, ok := s.lookup(n.Name)
		if !ok {
			return types.Type{}, a.errf(diag.NameError, n, "undefined identifier %q", n.Name)
		}
		n.Offset = sym.offset
		n.Type = sym.typ
		return sym.typ, nil

	case *ast.Unary:
		subExpected := expected
		if n.Op == ast.UnaryNot {
			subExpected = &types.Bln
		}
		t, err := a.analyzeExpr(n.X, s, subExpected)
		if err != nil {
			return types.Type{}, err
		}
		switch n.Op {
		case ast.UnaryNeg:
			if !t.IsInteger() || !t.Signed {
				return types.Type{}, a.errf(diag.TypeError, n, "unary '-' requires a signed integer, found %s", t)
			}
		case ast.UnaryNot:
			if !t.Equal(types.Bln) {
				return types.Type{}, a.errf(diag.TypeError, n, "unary '!' requires bool, found %s", t)
			}
		}
		n.Type = t
		return t, nil

	case *ast.Binary:
		return a.analyzeBinary(n, s, expected)

	case *ast.Call:
		fn, ok := a.funcs[n.Callee]
		if !ok {
			return types.Type{}, a.errf(diag.NameError, n, "undefined function %q", n.Callee)
		}
		if len(n.Args) != len(fn.Params) {
			return types.Type{}, a.errf(diag.ArityError, n, "%q expects %d argument(s), found %d", n.Callee, len(fn.Params), len(n.Args))
		}
		for i, arg := range n.Args {
			pt := fn.Params[i].Type
			t, err := a.analyzeExpr(arg, s, &pt)
			if err != nil {
				return types.Type{}, err
			}
			if !t.Equal(fn.Params[i].Type) {
				return types.Type{}, a.errf(diag.TypeError, n, "argument %d of %q expects %s, found %s", i+1, n.Callee, fn.Params[i].Type, t)
			}
		}
		n.ReturnType = fn.ReturnType
		return fn.ReturnType, nil

	case *ast.BuiltinCall:
		return a.analyzeBuiltin(n, s)

	default:
		return types.Type{}, a.errf(diag.ParseError, expr, "unhandled expression %T", expr)
	}
}

func (a *analyzer) analyzeBuiltin(n *ast.BuiltinCall, s *scope) (types.Type, error) {
	for _, arg := range n.Args {
		if _, err := a.analyzeExpr(arg, s, nil); err != nil {
			return types.Type{}, err
		}
	}
	switch n.K {
	case ast.BuiltinReadFailed:
		if len(n.Args) != 0 {
			return types.Type{}, a.errf(diag.ArityError, n, "read_failed() takes no arguments")
		}
		// read_failed() returns bool truncated from the byte
		// flag stored in .bss; the storage is one byte either way.
		n.Type = types.Bln
		return types.Bln, nil
	case ast.BuiltinRead, ast.BuiltinReadln, ast.BuiltinReadchar:
		return types.Type{}, a.errf(diag.ParseError, n, "read/readln/readchar must be used directly as the right-hand side of a declaration or assignment")
	default:
		return types.Type{}, a.errf(diag.ParseError, n, "unknown builtin")
	}
}

func (a *analyzer) analyzeBinary(n *ast.Binary, s *scope, expected *types.Type) (types.Type, error) {
	switch n.Op {
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpAnd, ast.OpOr, ast.OpXor, ast.OpDiv, ast.OpMod:
		lt, err := a.analyzeExpr(n.L, s, expected)
		if err != nil {
			return types.Type{}, err
		}
		rt, err := a.analyzeExpr(n.R, s, &lt)
		if err != nil {
			return types.Type{}, err
		}
		if !lt.IsInteger() || !rt.IsInteger() || !lt.Equal(rt) {
			return types.Type{}, a.errf(diag.TypeError, n, "operands must be equal integer types, found %s and %s", lt, rt)
		}
		// signed/unsigned mismatch for / and % is rejected
		// above (lt.Equal(rt) already enforces equal signedness), never
		// silently coerced.
		n.OperandType = lt
		n.Type = lt
		return lt, nil

	case ast.OpShl, ast.OpShr:
		lt, err := a.analyzeExpr(n.L, s, expected)
		if err != nil {
			return types.Type{}, err
		}
		if !lt.IsInteger() {
			return types.Type{}, a.errf(diag.TypeError, n, "left operand of shift must be an integer, found %s", lt)
		}
		rt, err := a.analyzeExpr(n.R, s, &types.U8)
		if err != nil {
			return types.Type{}, err
		}
		if !rt.IsInteger() || rt.Signed {
			return types.Type{}, a.errf(diag.TypeError, n, "shift amount must be an unsigned integer, found %s", rt)
		}
		n.OperandType = lt
		n.Type = lt
		return lt, nil

	case ast.OpEq, ast.OpNeq, ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		lt, err := a.analyzeExpr(n.L, s, nil)
		if err != nil {
			return types.Type{}, err
		}
		rt, err := a.analyzeExpr(n.R, s, &lt)
		if err != nil {
			return types.Type{}, err
		}
		if !lt.Equal(rt) {
			return types.Type{}, a.errf(diag.TypeError, n, "comparison operands must have equal types, found %s and %s", lt, rt)
		}
		n.OperandType = lt
		n.Type = types.Bln
		return types.Bln, nil

	default:
		return types.Type{}, a.errf(diag.ParseError, n, "unknown binary operator")
	}
}
