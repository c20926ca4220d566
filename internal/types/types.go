// Package types implements the closed AXIS type set: signed
// and unsigned integers of width 1/2/4/8, bool, str, ptr, and void.
package types

import "fmt"

type Kind int

const (
	Invalid Kind = iota
	Int
	Bool
	Str
	Ptr
	Void
)

// Type is a value type: two Types are equal iff their fields match.
type Type struct {
	Kind   Kind
	Width  int // 1, 2, 4, or 8; meaningful for Int and Bool (storage width)
	Signed bool
}

var (
	I8   = Type{Kind: Int, Width: 1, Signed: true}
	I16  = Type{Kind: Int, Width: 2, Signed: true}
	I32  = Type{Kind: Int, Width: 4, Signed: true}
	I64  = Type{Kind: Int, Width: 8, Signed: true}
	U8   = Type{Kind: Int, Width: 1, Signed: false}
	U16  = Type{Kind: Int, Width: 2, Signed: false}
	U32  = Type{Kind: Int, Width: 4, Signed: false}
	U64  = Type{Kind: Int, Width: 8, Signed: false}
	Bln  = Type{Kind: Bool, Width: 1, Signed: false}
	Strn = Type{Kind: Str, Width: 8, Signed: false}
	Ptrn = Type{Kind: Ptr, Width: 8, Signed: false}
	Vd   = Type{Kind: Void, Width: 0, Signed: false}
)

var byName = map[string]Type{
	"i8": I8, "i16": I16, "i32": I32, "i64": I64,
	"u8": U8, "u16": U16, "u32": U32, "u64": U64,
	"bool": Bln, "str": Strn, "ptr": Ptrn, "void": Vd,
}

// Lookup resolves a type-hint identifier to its Type; the second return
// is false for anything outside the closed set.
func Lookup(name string) (Type, bool) {
	t, ok := byName[name]
	return t, ok
}

func (t Type) String() string {
	switch t.Kind {
	case Int:
		if t.Signed {
			return fmt.Sprintf("i%d", t.Width*8)
		}
		return fmt.Sprintf("u%d", t.Width*8)
	case Bool:
		return "bool"
	case Str:
		return "str"
	case Ptr:
		return "ptr"
	case Void:
		return "void"
	default:
		return "<invalid>"
	}
}

func (t Type) Equal(o Type) bool { return t == o }

func (t Type) IsInteger() bool { return t.Kind == Int }

// RegWidth is the width (in bytes) a value of this type occupies in a
// register, as distinct from its storage Width — bool is stored in one
// byte but the accumulator width used to load and compare it is 4.
func (t Type) RegWidth() int {
	if t.Kind == Bool {
		return 4
	}
	return t.Width
}

// InRange reports whether v is representable in this integer type.
func (t Type) InRange(v int64) bool {
	if t.Kind != Int {
		return false
	}
	bits := uint(t.Width * 8)
	if t.Signed {
		lo := -(int64(1) << (bits - 1))
		hi := (int64(1) << (bits - 1)) - 1
		return v >= lo && v <= hi
	}
	if v < 0 {
		return false
	}
	if bits >= 64 {
		return true
	}
	hi := (uint64(1) << bits) - 1
	return uint64(v) <= hi
}
