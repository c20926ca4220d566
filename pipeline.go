package main

import (
	"os"

	"github.com/axis-lang/axis/internal/asmx64"
	"github.com/axis-lang/axis/internal/axlog"
	"github.com/axis-lang/axis/internal/codegen"
	"github.com/axis-lang/axis/internal/elfimg"
	"github.com/axis-lang/axis/internal/ir"
	"github.com/axis-lang/axis/internal/lexer"
	"github.com/axis-lang/axis/internal/parser"
	"github.com/axis-lang/axis/internal/sema"
)

// compileResult carries the assembled program and the final image
// through to whichever output mode the caller asked for.
type compileResult struct {
	irProg *ir.Program
	asm    *asmx64.Output
	img    *elfimg.Image
}

// compile runs the whole pipeline: lex, parse, analyze, generate code,
// assemble, and lay out the final executable image. check stops after
// semantic analysis and leaves asm/img nil.
func compile(path string, check bool, log *axlog.Logger) (*compileResult, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	log.Tracef("lexing %s", path)
	toks, err := lexer.Lex(path, src)
	if err != nil {
		return nil, err
	}

	log.Tracef("parsing %d tokens", len(toks))
	prog, err := parser.Parse(path, toks)
	if err != nil {
		return nil, err
	}

	log.Tracef("analyzing %d functions", len(prog.Funcs))
	mod, err := sema.Analyze(path, prog)
	if err != nil {
		return nil, err
	}
	if check {
		return &compileResult{}, nil
	}

	log.Tracef("generating code")
	irProg, err := codegen.Generate(path, mod, log)
	if err != nil {
		return nil, err
	}

	log.Tracef("assembling %d functions", len(irProg.Functions))
	asmOut, err := asmx64.Assemble(irProg)
	if err != nil {
		return nil, err
	}

	log.Tracef("laying out ELF image (%d bytes of .text, %d bytes of .rodata)", len(asmOut.Text), len(asmOut.Rodata))
	relocs := make([]elfimg.Reloc, len(asmOut.Relocs))
	for i, r := range asmOut.Relocs {
		relocs[i] = elfimg.Reloc{Kind: elfimg.RelocKind(r.Kind), Offset: r.Offset, Symbol: r.Symbol}
	}
	img, err := elfimg.Build(elfimg.Input{
		Text:         asmOut.Text,
		MainOffset:   asmOut.EntryOffset,
		Rodata:       asmOut.Rodata,
		RodataOffset: asmOut.RodataOffset,
		BSSSymbol:    irProg.BSSSymbol,
		Relocs:       relocs,
	})
	if err != nil {
		return nil, err
	}

	return &compileResult{irProg: irProg, asm: asmOut, img: img}, nil
}
