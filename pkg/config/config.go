// Package config loads the runtime's tunables from an optional YAML file,
// the layer the teacher never had (its only runtime toggles were
// compile-time debug flags in pkg/vm). Grounded on zboralski/galago's
// gopkg.in/yaml.v3 usage for its own config file.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in spec.md's constants and SPEC_FULL's
// ambient-stack section.
type Config struct {
	// PoolMax records the byte-size ceiling for the small-object pool
	// (spec.md §4.2 POOL_MAX). vm.New does not read it; pkg/memory uses
	// its own PoolMax constant.
	PoolMax int `yaml:"poolMax"`
	// MaxFrames bounds call-frame nesting depth (spec.md §3 call frames);
	// exceeding it raises a StackOverflow VelaError.
	MaxFrames int `yaml:"maxFrames"`
	// MaxRegisters sizes the register stack: the VM reserves
	// MaxFrames*MaxRegisters registers shared by all frames. A single
	// frame's window is not capped at MaxRegisters.
	MaxRegisters int `yaml:"maxRegisters"`
	// InitialHeapCapacity is loaded but not read by vm.New; the
	// memory.Manager's live-object registry starts empty.
	InitialHeapCapacity int `yaml:"initialHeapCapacity"`
	// GCVerbose is loaded but not read by vm.New; the collector logs its
	// pass summaries at Debug level through the VM's logger either way.
	GCVerbose bool `yaml:"gcVerbose"`
	// TrackGlobalRC enables the engine-wide live-reference counter (spec.md
	// §4.2); disabling it trades the GetGlobalRC() diagnostic for one
	// fewer atomic op per retain/release.
	TrackGlobalRC bool `yaml:"trackGlobalRC"`
}

// Default returns the tunables spec.md's constants imply when no vela.yaml
// is present.
func Default() Config {
	return Config{
		PoolMax:             32,
		MaxFrames:            256,
		MaxRegisters:         256,
		InitialHeapCapacity:  256,
		GCVerbose:            false,
		TrackGlobalRC:        true,
	}
}

// Load reads path as YAML and overlays it onto Default(); a missing file
// is not an error — callers get the defaults. An unreadable or malformed
// existing file is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
