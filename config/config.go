// Package config handles glux.toml interpreter configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents a glux.toml file.
type Config struct {
	Interpreter Interpreter `toml:"interpreter"`
	Save        Save        `toml:"save"`

	// Dir is the directory containing the glux.toml file (set at load time).
	Dir string `toml:"-"`
}

// Interpreter configures the engine itself.
type Interpreter struct {
	// MemCeiling caps @setmemsize growth, in bytes. Zero means unbounded.
	MemCeiling uint32 `toml:"mem-ceiling"`

	// SkipVerify disables the gamefile checksum check at load time.
	SkipVerify bool `toml:"skip-verify"`
}

// Save configures save-state storage.
type Save struct {
	// Dir is where save states are written. Defaults to "saves".
	Dir string `toml:"dir"`
}

// Default returns the configuration used when no glux.toml is found.
func Default() *Config {
	return &Config{
		Save: Save{Dir: "saves"},
	}
}

// Load parses a glux.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "glux.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if c.Save.Dir == "" {
		c.Save.Dir = "saves"
	}

	return &c, nil
}

// FindAndLoad walks up from startDir to find a glux.toml file, then loads
// and returns it. Returns the defaults if no config file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", startDir, err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "glux.toml")); err == nil {
			return Load(dir)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}
