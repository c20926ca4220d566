package main

import (
	"debug/elf"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/axis-lang/axis/internal/axlog"
)

func writeSource(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "in.axis")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompileExitCodeScenarios(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"literal_return", "func main() -> i32:\n    give 42\n"},
		{"addition", "func main() -> i32:\n    x: i32 = 10\n    y: i32 = 20\n    give x + y\n"},
		{"while_loop", "func main() -> i32:\n    i: i32 = 0\n    while i < 10:\n        i = i + 1\n    give i\n"},
		{"branch", "func main() -> i32:\n    when (5 > 3):\n        give 1\n    give 0\n"},
		{"recursion", "func fact(n: i32) -> i32:\n    when (n < 2):\n        give 1\n    give n * fact(n - 1)\n\nfunc main() -> i32:\n    give fact(5)\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := writeSource(t, c.src)
			res, err := compile(path, false, axlog.New(false))
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if res.img == nil || len(res.img.Bytes) == 0 {
				t.Fatal("expected a non-empty image")
			}

			out := filepath.Join(t.TempDir(), "bin")
			if err := os.WriteFile(out, res.img.Bytes, 0o755); err != nil {
				t.Fatal(err)
			}
			ef, err := elf.Open(out)
			if err != nil {
				t.Fatalf("debug/elf rejected the output: %v", err)
			}
			defer ef.Close()
			if ef.Type != elf.ET_EXEC || ef.Machine != elf.EM_X86_64 {
				t.Errorf("unexpected ELF header: type=%v machine=%v", ef.Type, ef.Machine)
			}
		})
	}
}

func TestCompileKeepsIRForListing(t *testing.T) {
	path := writeSource(t, "func main() -> i32:\n    give 1\n")
	res, err := compile(path, false, axlog.New(false))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if res.irProg == nil {
		t.Fatal("expected compile to retain the IR program for -v's listing dump")
	}
	listing := res.irProg.Listing()
	if !strings.Contains(listing, "main:") {
		t.Errorf("listing = %q, want it to mention the main function", listing)
	}
}

func TestCheckModeStopsBeforeCodegen(t *testing.T) {
	path := writeSource(t, "func main() -> i32:\n    give 1\n")
	res, err := compile(path, true, axlog.New(false))
	if err != nil {
		t.Fatalf("compile --check: %v", err)
	}
	if res.img != nil || res.asm != nil {
		t.Error("--check should not produce an assembled image")
	}
}

func TestCheckModeReportsTypeErrors(t *testing.T) {
	path := writeSource(t, "func main() -> i32:\n    x: i32 = True\n    give x\n")
	if _, err := compile(path, true, axlog.New(false)); err == nil {
		t.Error("expected a type error assigning a bool literal to an i32 local")
	}
}
