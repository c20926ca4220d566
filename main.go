// AXIS compiles a small statically-typed, Python-indented source
// language straight to a self-contained Linux x86-64 ELF64 executable:
// no runtime library, no external assembler, no linker.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/axis-lang/axis/internal/axlog"
	"github.com/axis-lang/axis/internal/config"
)

const versionString = "axis 1.0.0"

var (
	flagOutput  string
	flagELF     bool
	flagCheck   bool
	flagVerbose bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "axis SOURCE",
		Short:         "compile an AXIS source file to a Linux x86-64 executable",
		Version:       versionString,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCompile,
	}
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output executable path (default: source name without extension)")
	cmd.Flags().BoolVar(&flagELF, "elf", false, "dump ELF section/program-header layout instead of writing the executable")
	cmd.Flags().BoolVar(&flagCheck, "check", false, "stop after semantic analysis; report errors without generating code")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "trace each compiler stage and dump the assembly listing to stderr")
	return cmd
}

func runCompile(cmd *cobra.Command, args []string) error {
	src := args[0]
	log := axlog.New(flagVerbose)

	cfg, err := config.Load(src)
	if err != nil {
		return fmt.Errorf("axis.toml: %w", err)
	}

	out := flagOutput
	if out == "" {
		out = cfg.Output
	}
	if out == "" {
		out = defaultOutputPath(src)
	}
	check := flagCheck
	dumpELF := flagELF || cfg.ELF

	res, err := compile(src, check, log)
	if err != nil {
		return err
	}
	if check {
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	}

	if flagVerbose {
		fmt.Fprint(os.Stderr, res.irProg.Listing())
	}

	if dumpELF {
		return dumpLayout(cmd, res)
	}

	if err := os.WriteFile(out, res.img.Bytes, 0o755); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	log.Tracef("wrote %s (%d bytes, entry 0x%x)", out, len(res.img.Bytes), res.img.EntryVAddr)
	return nil
}

func dumpLayout(cmd *cobra.Command, res *compileResult) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "entry: 0x%x\n", res.img.EntryVAddr)
	fmt.Fprintf(w, ".text: %d bytes\n", len(res.asm.Text))
	fmt.Fprintf(w, ".rodata: %d bytes\n", len(res.asm.Rodata))
	fmt.Fprintf(w, "relocations: %d\n", len(res.asm.Relocs))
	return nil
}

func defaultOutputPath(src string) string {
	base := src
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			base = base[:i]
			break
		}
		if base[i] == '/' {
			break
		}
	}
	return base
}
