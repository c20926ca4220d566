// Package elfimg writes the final static ELF64 executable: one ELF
// header, one PT_LOAD program header, and the .text/.rodata/.bss bytes
// the assembler produced, laid out at a fixed virtual base with no
// dynamic linker and no section header table.
package elfimg

import (
	"bytes"
	"encoding/binary"
)

const (
	vbase      = 0x400000
	ehdrSize   = 0x40
	phdrSize   = 0x38
	textOffset = 0x1000 // page-aligned start of .text inside the single R|W|X PT_LOAD that also maps the header
)

// startStubSize is the length in bytes of the fixed _start preamble
// emitted ahead of every function's code: it calls main, then exits
// with main's return value as the process status.
const startStubSize = 16

// Image is the fully laid-out byte image of the program, ready to be
// written to a file and chmod'd executable.
type Image struct {
	Bytes      []byte
	EntryVAddr uint64
}

// Input is what the assembler hands to Build: the assembled .text
// blob, the concatenated .rodata blob, and the one .bss byte the
// read-failure flag lives in.
type Input struct {
	Text         []byte
	MainOffset   int // main's offset within Text, for the _start call
	Rodata       []byte
	RodataOffset map[string]int
	BSSSymbol    string
	Relocs       []Reloc
}

// RelocKind mirrors asmx64.RelocKind without importing it, keeping
// elfimg decoupled from the assembler's internal types.
type RelocKind int

const (
	RelocAbs64 RelocKind = iota
	RelocPC32
)

type Reloc struct {
	Kind   RelocKind
	Offset int
	Symbol string
}

// Build lays out a single read+execute+write PT_LOAD segment holding
// the ELF header, the start stub, .text, .rodata and a single .bss
// byte, patches every relocation against the now-fixed virtual
// addresses, and returns the finished image.
//
// One PT_LOAD carries everything; R|W|X rather than the traditional
// R|X is deliberate here since _read_failed lives in that same mapped
// page and every read()/readln()/readchar() call needs to store to it with no second
// segment or mprotect available.
func Build(in Input) (*Image, error) {
	textVAddr := vbase + textOffset
	// The OS-level entry point is the _start stub itself, not main: the
	// stub is what calls main and then turns its return value into an
	// exit() syscall. Entering at main directly would skip that exit
	// wrapper and run off the end of the function with no return
	// address on the stack.
	entryVAddr := textVAddr

	rodataOffset := textOffset + startStubSize + len(in.Text)
	rodataVAddr := vbase + rodataOffset

	bssOffset := rodataOffset + len(in.Rodata)
	bssVAddr := vbase + bssOffset

	var buf bytes.Buffer
	writeEhdr(&buf, uint64(entryVAddr))
	writePhdr(&buf, uint64(rodataOffset+len(in.Rodata)+1))

	pad(&buf, textOffset)
	// main's first byte sits startStubSize+MainOffset bytes into the
	// stub; startStub derives the call's rel32 from that and its own
	// internal layout.
	buf.Write(startStub(int32(startStubSize + in.MainOffset)))
	buf.Write(in.Text)
	buf.Write(in.Rodata)
	buf.WriteByte(0) // the sole .bss byte: _read_failed, zero-initialized

	img := buf.Bytes()
	for _, r := range in.Relocs {
		var target uint64
		if r.Symbol == in.BSSSymbol {
			target = uint64(bssVAddr)
		} else {
			off, ok := in.RodataOffset[r.Symbol]
			if !ok {
				return nil, errUndefined(r.Symbol)
			}
			target = uint64(rodataVAddr + off)
		}
		site := textOffset + startStubSize + r.Offset
		switch r.Kind {
		case RelocAbs64:
			binary.LittleEndian.PutUint64(img[site:site+8], target)
		case RelocPC32:
			rel := int32(int64(target) - int64(vbase+site+4))
			binary.LittleEndian.PutUint32(img[site:site+4], uint32(rel))
		}
	}

	return &Image{Bytes: img, EntryVAddr: uint64(entryVAddr)}, nil
}

func errUndefined(sym string) error {
	return &undefinedSymbolError{sym}
}

type undefinedSymbolError struct{ sym string }

func (e *undefinedSymbolError) Error() string {
	return "elfimg: relocation against undefined symbol " + e.sym
}

func pad(buf *bytes.Buffer, to int) {
	for buf.Len() < to {
		buf.WriteByte(0)
	}
}
