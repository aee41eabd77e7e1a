// Package config loads a VM's tunables from an optional briar.toml file
// using a github.com/BurntSushi/toml-based Load(dir)/FindAndLoad(startDir)
// pair: Load reads one directory, FindAndLoad walks upward looking for
// the first briar.toml it can find.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/briarlang/briar/internal/vm"
)

// Config mirrors vm.Options' tunables (every field but Stdout), with TOML
// tags; Options converts one into the other so internal/vm never has to
// import a TOML library itself — only cmd/briar uses config.
type Config struct {
	StackMax           int     `toml:"stack_max"`
	FramesMax          int     `toml:"frames_max"`
	HeapGrowFactor     float64 `toml:"heap_grow_factor"`
	InitialGCThreshold int     `toml:"initial_gc_threshold"`
	StressGC           bool    `toml:"stress_gc"`
	TraceExecution     bool    `toml:"trace_execution"`
	Verbose            bool    `toml:"verbose"`
}

// Load parses briar.toml from dir, if present, falling back to an empty
// (all-default) Config when the file does not exist — a missing manifest
// is not an error, it just means "use defaults".
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "briar.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir looking for briar.toml, so a VM
// launched from a subdirectory of a project still picks up its config.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "briar.toml")); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return &Config{}, nil
		}
		dir = parent
	}
}

// Options converts this Config into vm.Options, leaving zero fields to be
// filled in by vm.DefaultOptions at VM construction time.
func (c *Config) Options() vm.Options {
	return vm.Options{
		StackMax:           c.StackMax,
		FramesMax:          c.FramesMax,
		HeapGrowFactor:     c.HeapGrowFactor,
		InitialGCThreshold: c.InitialGCThreshold,
		StressGC:           c.StressGC,
		TraceExecution:     c.TraceExecution,
		Verbose:            c.Verbose,
	}
}
