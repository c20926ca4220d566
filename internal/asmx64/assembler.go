package asmx64

import (
	"github.com/axis-lang/axis/internal/diag"
	"github.com/axis-lang/axis/internal/ir"
)

// Output is everything the ELF writer needs: the assembled .text blob,
// the concatenated .rodata blob with each label's offset inside it, the
// sites still needing an address patched in once section layout is
// decided, and the entry function's offset within .text.
type Output struct {
	Text         []byte
	Rodata       []byte
	RodataOffset map[string]int
	Relocs       []Relocation
	EntryOffset  int
}

type label struct {
	fn     string
	offset int
}

// Assemble lowers an ir.Program to final machine code. It runs two
// passes over the concatenated instruction stream: the first assigns
// tentative byte offsets (short form for every conditional jump) and
// records every label's offset; the second re-walks the stream
// widening any conditional jump whose resolved displacement no longer
// fits in a signed byte, repeating until a fixed point, then a last
// walk emits the real bytes and relocation records against the
// now-final label table.
func Assemble(prog *ir.Program) (*Output, error) {
	labels := map[string]int{}
	forms := map[int]ir.JumpForm{} // instruction index (flattened) -> current form

	flat, owner := flatten(prog)

	for {
		offsets, size, err := layout(flat, forms)
		if err != nil {
			return nil, err
		}
		for i, ins := range flat {
			if ins.Op == ir.OpLabelDef {
				labels[ins.Label] = offsets[i]
			}
		}
		changed, err := relax(flat, offsets, labels, forms)
		if err != nil {
			return nil, err
		}
		if !changed {
			text, relocs, err := emit(flat, offsets, labels, forms, owner)
			if err != nil {
				return nil, err
			}
			_ = size
			entryOff, ok := labels[prog.EntryFunc]
			if !ok {
				return nil, diag.NewAssembler(prog.EntryFunc, "<entry>", "entry function %q not found", prog.EntryFunc)
			}
			rodata, rodataOff := packRodata(prog.Rodata)
			return &Output{
				Text:         text,
				Rodata:       rodata,
				RodataOffset: rodataOff,
				Relocs:       relocs,
				EntryOffset:  entryOff,
			}, nil
		}
	}
}

func flatten(prog *ir.Program) ([]ir.Instr, []string) {
	var flat []ir.Instr
	var owner []string
	for _, fn := range prog.Functions {
		for _, ins := range fn.Instrs {
			flat = append(flat, ins)
			owner = append(owner, fn.Name)
		}
	}
	return flat, owner
}

// sizeOf returns how many bytes ins occupies given its current
// relaxation form, without needing a resolved target (jump/call
// targets only affect the *value* patched into a fixed-size
// placeholder, never the instruction's length, except for jcc's
// short-vs-near relaxation captured in forms).
func sizeOf(ins ir.Instr, form ir.JumpForm) int {
	e := &encoder{}
	switch ins.Op {
	case ir.OpJcc:
		withForm := ins
		withForm.Form = form
		e.encodeInstr(withForm, 0, nil, "")
	default:
		e.encodeInstr(ins, 0, nil, "")
	}
	return len(e.out)
}

func layout(flat []ir.Instr, forms map[int]ir.JumpForm) (offsets []int, total int, err error) {
	offsets = make([]int, len(flat))
	pos := 0
	for i, ins := range flat {
		offsets[i] = pos
		pos += sizeOf(ins, forms[i])
	}
	return offsets, pos, nil
}

// relax re-checks every short-form jcc's displacement against the
// current label table and widens any that no longer fit in an int8.
// Widening changes sizes, which can in turn push other displacements
// out of range, so the caller loops relax+layout to a fixed point.
func relax(flat []ir.Instr, offsets []int, labels map[string]int, forms map[int]ir.JumpForm) (bool, error) {
	changed := false
	for i, ins := range flat {
		if ins.Op != ir.OpJcc || forms[i] == ir.Near {
			continue
		}
		target, ok := labels[ins.Label]
		if !ok {
			return false, diag.NewAssembler("", ins.Label, "undefined label %q", ins.Label)
		}
		siteEnd := offsets[i] + sizeOf(ins, ir.Short)
		disp := target - siteEnd
		if disp < -128 || disp > 127 {
			forms[i] = ir.Near
			changed = true
		}
	}
	return changed, nil
}

func emit(flat []ir.Instr, offsets []int, labels map[string]int, forms map[int]ir.JumpForm, owner []string) ([]byte, []Relocation, error) {
	var out []byte
	var relocs []Relocation
	for i, ins := range flat {
		site := len(out)
		e := &encoder{}
		withForm := ins
		if ins.Op == ir.OpJcc {
			withForm.Form = forms[i]
		}
		if err := e.encodeInstr(withForm, offsets[i], nil, owner[i]); err != nil {
			return nil, nil, err
		}
		if ins.Op == ir.OpJmp || ins.Op == ir.OpCallLabel {
			if _, ok := labels[ins.Label]; !ok {
				return nil, nil, diag.NewAssembler(owner[i], ins.Label, "undefined label %q", ins.Label)
			}
		}
		patchJumpLike(&e.out, ins, withForm.Form, site, offsets[i], labels)
		for _, r := range e.relocs {
			r.Offset += site
			relocs = append(relocs, r)
		}
		out = append(out, e.out...)
	}
	if len(out) != totalLen(offsets, flat, forms) {
		// layout and emission disagreed on a size; a bug in sizeOf/encodeInstr.
		return nil, nil, diag.NewAssembler("", "<assemble>", "internal size mismatch: laid out %d bytes, emitted %d", totalLen(offsets, flat, forms), len(out))
	}
	return out, relocs, nil
}

func totalLen(offsets []int, flat []ir.Instr, forms map[int]ir.JumpForm) int {
	if len(flat) == 0 {
		return 0
	}
	last := len(flat) - 1
	return offsets[last] + sizeOf(flat[last], forms[last])
}

// patchJumpLike fills in the rel8/rel32 displacement for jmp/jcc/call,
// which encodeInstr leaves zeroed since it doesn't see the label
// table. site is this instruction's first byte within the final
// buffer; instrOffset is its offset within the whole .text blob (used
// to compute the displacement against the label's own .text offset).
func patchJumpLike(buf *[]byte, ins ir.Instr, form ir.JumpForm, site, instrOffset int, labels map[string]int) {
	if ins.Op != ir.OpJmp && ins.Op != ir.OpJcc && ins.Op != ir.OpCallLabel {
		return
	}
	target, ok := labels[ins.Label]
	if !ok {
		return // unreachable: relax rejects an undefined jcc target and emit rejects an undefined jmp/call target before calling here
	}
	b := *buf
	switch ins.Op {
	case ir.OpJmp:
		rel := int32(target - (instrOffset + 5))
		putI32(b[1:5], rel)
	case ir.OpCallLabel:
		rel := int32(target - (instrOffset + 5))
		putI32(b[1:5], rel)
	case ir.OpJcc:
		if form == ir.Near {
			rel := int32(target - (instrOffset + 6))
			putI32(b[2:6], rel)
		} else {
			rel := int8(target - (instrOffset + 2))
			b[1] = byte(rel)
		}
	}
}

func putI32(b []byte, v int32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func packRodata(entries []ir.RodataEntry) ([]byte, map[string]int) {
	var buf []byte
	offs := map[string]int{}
	for _, e := range entries {
		offs[e.Label] = len(buf)
		buf = append(buf, e.Bytes...)
	}
	return buf, offs
}
