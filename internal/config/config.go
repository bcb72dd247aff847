// Package config handles laye.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/xirelogy/go-laye/internal/compiler"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "laye.toml"

// Config represents a laye.toml file.
type Config struct {
	Compiler Compiler `toml:"compiler"`
	VM       VM       `toml:"vm"`
	Log      Log      `toml:"log"`
	Cache    Cache    `toml:"cache"`

	// Dir is the directory containing the laye.toml file (set at load time).
	Dir string `toml:"-"`
}

// Compiler selects the declaration policies.
type Compiler struct {
	Duplicate  string `toml:"duplicate"`
	Unresolved string `toml:"unresolved"`
}

// VM configures execution limits.
type VM struct {
	InstructionLimit int  `toml:"instruction_limit"`
	MaxDepth         int  `toml:"max_depth"`
	Trace            bool `toml:"trace"`
}

// Log configures the session logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Cache configures the compiled-program cache.
type Cache struct {
	Path    string `toml:"path"`
	Enabled bool   `toml:"enabled"`
}

// Default returns the configuration used when no laye.toml exists.
func Default() *Config {
	return &Config{
		Compiler: Compiler{Duplicate: "reject", Unresolved: "fail"},
		VM:       VM{MaxDepth: 256},
		Log:      Log{Level: "warn", Format: "console"},
		Cache:    Cache{Path: filepath.Join(".laye", "cache.db")},
	}
}

// Load parses the laye.toml file in dir. Missing keys keep their defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	cfg.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults and validates the result.
func Parse(text string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(text, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindAndLoad walks up from startDir to find a laye.toml file, then loads
// it. Returns Default() with Dir set to startDir if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	start := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			cfg := Default()
			cfg.Dir = start
			return cfg, nil
		}
		dir = parent
	}
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	if _, err := compiler.ParseDuplicatePolicy(c.Compiler.Duplicate); err != nil {
		return fmt.Errorf("[compiler] %w", err)
	}
	if _, err := compiler.ParseUnresolvedPolicy(c.Compiler.Unresolved); err != nil {
		return fmt.Errorf("[compiler] %w", err)
	}
	if c.VM.InstructionLimit < 0 {
		return fmt.Errorf("[vm] instruction_limit must not be negative")
	}
	if c.VM.MaxDepth < 0 {
		return fmt.Errorf("[vm] max_depth must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("[log] unknown format %q", c.Log.Format)
	}
	return nil
}

// CompilerOptions converts the [compiler] section. Validate must have passed.
func (c *Config) CompilerOptions() compiler.Options {
	dup, _ := compiler.ParseDuplicatePolicy(c.Compiler.Duplicate)
	unres, _ := compiler.ParseUnresolvedPolicy(c.Compiler.Unresolved)
	return compiler.Options{Duplicate: dup, Unresolved: unres}
}

// CachePath resolves the cache path against Dir.
func (c *Config) CachePath() string {
	if c.Cache.Path == "" || filepath.IsAbs(c.Cache.Path) || c.Dir == "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Dir, c.Cache.Path)
}
