package types

import "testing"

func TestLookupKnownNames(t *testing.T) {
	cases := map[string]Type{
		"i8": I8, "i32": I32, "i64": I64, "u8": U8,
		"bool": Bln, "str": Strn, "ptr": Ptrn, "void": Vd,
	}
	for name, want := range cases {
		got, ok := Lookup(name)
		if !ok || got != want {
			t.Errorf("Lookup(%q) = %v, %v; want %v, true", name, got, ok, want)
		}
	}
	if _, ok := Lookup("f64"); ok {
		t.Error("Lookup(\"f64\") should fail: AXIS has no floating point")
	}
}

func TestInRangeSignedBoundaries(t *testing.T) {
	if !I8.InRange(127) || I8.InRange(128) {
		t.Error("i8 upper bound should be 127")
	}
	if !I8.InRange(-128) || I8.InRange(-129) {
		t.Error("i8 lower bound should be -128")
	}
}

func TestInRangeUnsignedRejectsNegative(t *testing.T) {
	if U8.InRange(-1) {
		t.Error("u8 must reject negative values")
	}
	if !U8.InRange(255) || U8.InRange(256) {
		t.Error("u8 upper bound should be 255")
	}
}

func TestInRangeRejectsNonInteger(t *testing.T) {
	if Bln.InRange(0) {
		t.Error("InRange should only accept Int-kind types")
	}
}

func TestRegWidthPromotesBoolToFour(t *testing.T) {
	if Bln.RegWidth() != 4 {
		t.Errorf("bool RegWidth = %d, want 4", Bln.RegWidth())
	}
	if I64.RegWidth() != 8 {
		t.Errorf("i64 RegWidth = %d, want 8", I64.RegWidth())
	}
}

func TestStringRoundTripsThroughLookup(t *testing.T) {
	for _, name := range []string{"i16", "u32"} {
		typ, ok := Lookup(name)
		if !ok || typ.String() != name {
			t.Errorf("Lookup(%q) = %v, %v; String() = %q, want %q", name, typ, ok, typ.String(), name)
		}
	}
}
