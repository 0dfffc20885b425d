// Package config is the single YAML-loadable object cmd/ropgen builds an
// engine.Params/arch.Architecture pair from, modeled on
// morpher.MorphConfig's one-struct-one-constructor shape.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BuildConfig controls a whole ropgen build run: which architecture to
// search against, which registers/bytes to avoid, and the search
// bounds to hand the engine.
type BuildConfig struct {
	Arch     string   `yaml:"arch"`      // "amd64" or "i386"
	KeepRegs []string `yaml:"keep_regs"` // register names never to clobber
	BadBytes []string `yaml:"bad_bytes"` // hex byte strings, e.g. "0x0a"
	Lmax     int      `yaml:"lmax"`
	MaxDepth int      `yaml:"max_depth"`
	Shortest bool     `yaml:"shortest"`
}

// DefaultBuildConfig returns the configuration ropgen build uses when
// no --config flag is given.
func DefaultBuildConfig() *BuildConfig {
	return &BuildConfig{
		Arch:     "amd64",
		KeepRegs: nil,
		BadBytes: nil,
		Lmax:     6,
		MaxDepth: 8,
		Shortest: false,
	}
}

// Load reads and parses a BuildConfig from a YAML file, filling in any
// field left zero from DefaultBuildConfig.
func Load(path string) (*BuildConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultBuildConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
