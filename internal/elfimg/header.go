package elfimg

import "bytes"

// writeEhdr appends the 64-byte ELF64 header for a static, non-PIE,
// non-PIE-relocatable executable: one PT_LOAD, no section headers.
func writeEhdr(buf *bytes.Buffer, entry uint64) {
	buf.WriteByte(0x7f)
	buf.WriteByte('E')
	buf.WriteByte('L')
	buf.WriteByte('F')
	buf.WriteByte(2) // ELFCLASS64
	buf.WriteByte(1) // ELFDATA2LSB
	buf.WriteByte(1) // EV_CURRENT
	buf.WriteByte(0) // ELFOSABI_SYSV
	w8(buf, 0)       // ABI version + 7 bytes padding
	w2(buf, 2)       // e_type: ET_EXEC
	w2(buf, 0x3e)    // e_machine: EM_X86_64
	w4(buf, 1)       // e_version
	w8(buf, entry)   // e_entry
	w8(buf, ehdrSize)            // e_phoff: program header table follows immediately
	w8(buf, 0)                   // e_shoff: no section headers
	w4(buf, 0)                   // e_flags
	w2(buf, ehdrSize)            // e_ehsize
	w2(buf, phdrSize)            // e_phentsize
	w2(buf, 1)                   // e_phnum
	w2(buf, 0)                   // e_shentsize
	w2(buf, 0)                   // e_shnum
	w2(buf, 0)                   // e_shstrndx
}

// writePhdr appends the single PT_LOAD program header covering the
// whole image from file offset 0 through memsz bytes.
func writePhdr(buf *bytes.Buffer, memsz uint64) {
	w4(buf, 1)          // p_type: PT_LOAD
	w4(buf, 7)           // p_flags: PF_R | PF_W | PF_X
	w8(buf, 0)           // p_offset
	w8(buf, vbase)       // p_vaddr
	w8(buf, vbase)       // p_paddr
	w8(buf, memsz)       // p_filesz
	w8(buf, memsz)       // p_memsz
	w8(buf, 0x1000)      // p_align
}

// startStub is the fixed _start preamble: zero edi, call main, then
// exit(2) with main's return value as the process status. mainOffset
// is main's byte offset from the start of this stub.
func startStub(mainOffset int32) []byte {
	b := make([]byte, 0, startStubSize)
	b = append(b, 0x31, 0xFF) // xor edi, edi
	callSite := len(b)
	b = append(b, 0xE8, 0, 0, 0, 0) // call rel32, patched below
	rel := mainOffset - int32(len(b))
	copy(b[callSite+1:callSite+5], i32le(rel))
	b = append(b, 0x89, 0xC7) // mov edi, eax
	b = append(b, 0xB8)       // mov eax, imm32
	b = append(b, i32le(60)...)
	b = append(b, 0x0F, 0x05) // syscall
	return b
}

func i32le(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

func w2(buf *bytes.Buffer, v uint16) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
}

func w4(buf *bytes.Buffer, v uint32) {
	for i := 0; i < 4; i++ {
		buf.WriteByte(byte(v >> (8 * i)))
	}
}

func w8(buf *bytes.Buffer, v uint64) {
	for i := 0; i < 8; i++ {
		buf.WriteByte(byte(v >> (8 * i)))
	}
}
