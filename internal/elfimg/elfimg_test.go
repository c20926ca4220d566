package elfimg

import (
	"debug/elf"
	"os"
	"testing"
)

// buildMinimal assembles a trivial "call main; main: mov eax,7; ret"
// image by hand, the same shape Build expects from the assembler.
func buildMinimal(t *testing.T) *Image {
	t.Helper()
	// main: mov eax, 7 ; ret
	text := []byte{0xB8, 0x07, 0x00, 0x00, 0x00, 0xC3}
	img, err := Build(Input{
		Text:         text,
		MainOffset:   0,
		Rodata:       nil,
		RodataOffset: map[string]int{},
		BSSSymbol:    "_read_failed",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return img
}

func TestBuildProducesValidELF(t *testing.T) {
	img := buildMinimal(t)

	f, err := os.CreateTemp(t.TempDir(), "axis-test-*")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(img.Bytes); err != nil {
		t.Fatal(err)
	}
	f.Close()

	ef, err := elf.Open(f.Name())
	if err != nil {
		t.Fatalf("debug/elf could not parse output: %v", err)
	}
	defer ef.Close()

	if ef.Type != elf.ET_EXEC {
		t.Errorf("e_type = %v, want ET_EXEC", ef.Type)
	}
	if ef.Machine != elf.EM_X86_64 {
		t.Errorf("e_machine = %v, want EM_X86_64", ef.Machine)
	}
	if ef.Entry != img.EntryVAddr {
		t.Errorf("e_entry = %#x, want %#x", ef.Entry, img.EntryVAddr)
	}
	wantEntry := uint64(vbase + textOffset)
	if ef.Entry != wantEntry {
		t.Errorf("e_entry = %#x, want %#x (vbase+textOffset, the _start stub itself)", ef.Entry, wantEntry)
	}

	progs := ef.Progs
	if len(progs) != 1 {
		t.Fatalf("program headers = %d, want 1", len(progs))
	}
	p := progs[0]
	if p.Type != elf.PT_LOAD {
		t.Errorf("p_type = %v, want PT_LOAD", p.Type)
	}
	if p.Filesz != p.Memsz {
		t.Errorf("p_filesz (%d) != p_memsz (%d): invariant 5 requires no bss beyond the flag byte", p.Filesz, p.Memsz)
	}
	if p.Flags&elf.PF_W == 0 {
		t.Error("expected the PT_LOAD segment to be writable for _read_failed")
	}
}

func TestBuildPatchesRelocations(t *testing.T) {
	// lea rax, [rip+0] placeholder followed by a rodata string "hi\x00".
	text := []byte{0x48, 0x8D, 0x05, 0, 0, 0, 0, 0xC3}
	img, err := Build(Input{
		Text:         text,
		MainOffset:   0,
		Rodata:       []byte("hi\x00"),
		RodataOffset: map[string]int{"greeting": 0},
		BSSSymbol:    "_read_failed",
		Relocs:       []Reloc{{Kind: RelocPC32, Offset: 3, Symbol: "greeting"}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	site := textOffset + startStubSize + 3
	rel := int32(uint32(img.Bytes[site]) | uint32(img.Bytes[site+1])<<8 | uint32(img.Bytes[site+2])<<16 | uint32(img.Bytes[site+3])<<24)
	if rel == 0 {
		t.Error("relocation was never patched, still zero")
	}
}
