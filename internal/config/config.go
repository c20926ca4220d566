// Package config reads the optional axis.toml project file: per-project
// defaults for the output path and the --elf dump flag, and a [target]
// table reserved for a future non-x86-64 backend. CLI flags always
// override a value this package loaded, which override its own
// built-ins.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Target names the backend a project builds for. Only amd64-linux
// exists today; the field exists so a project file written now keeps
// working once a second backend lands.
type Target struct {
	Arch string `toml:"arch"`
	OS   string `toml:"os"`
}

// Config is axis.toml's shape.
type Config struct {
	Output string `toml:"output"`
	ELF    bool   `toml:"elf"`
	Target Target `toml:"target"`
}

// Default returns the built-in values used when no axis.toml exists.
func Default() Config {
	return Config{Target: Target{Arch: "amd64", OS: "linux"}}
}

// Load looks for axis.toml next to sourcePath, then in the current
// working directory, and returns Default() unchanged if neither
// exists: the file is optional, never required.
func Load(sourcePath string) (Config, error) {
	cfg := Default()

	for _, dir := range candidateDirs(sourcePath) {
		path := filepath.Join(dir, "axis.toml")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	return cfg, nil
}

func candidateDirs(sourcePath string) []string {
	wd, err := os.Getwd()
	dirs := []string{filepath.Dir(sourcePath)}
	if err == nil {
		dirs = append(dirs, wd)
	}
	return dirs
}
