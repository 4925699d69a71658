// Package config loads a resource-limit profile for package tracker from
// YAML, mirroring the teacher's runtime.IniStorage (a sync.Once-seeded
// table of named settings with defaults, there for PHP's php.ini-style
// knobs) in the idiom the rest of the Go ecosystem uses for structured
// config instead of an INI parser: a typed struct decoded via
// gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wudi/heysb/tracker"
)

// TrackerProfile is the on-disk shape of a resource-limit configuration.
// A zero value for any field means "unlimited" for that dimension,
// matching tracker.NewLimited's own zero-means-unlimited convention.
type TrackerProfile struct {
	Name            string `yaml:"name"`
	MaxMemoryBytes  int64  `yaml:"max_memory_bytes"`
	MaxInstructions int64  `yaml:"max_instructions"`
	MaxFrames       int64  `yaml:"max_frames"`
}

// Default matches the teacher's habit of shipping sane out-of-the-box
// settings (runtime.initializeDefaultSettings) rather than requiring a
// config file before anything runs.
var Default = TrackerProfile{
	Name:            "default",
	MaxMemoryBytes:  64 << 20,
	MaxInstructions: 10_000_000,
	MaxFrames:       1000,
}

// Load reads a YAML tracker profile from path. A missing or zero field
// falls back to Default's value for that dimension rather than becoming
// "unlimited", so a profile file only needs to override the limits it
// actually cares about.
func Load(path string) (TrackerProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TrackerProfile{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	profile := Default
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return TrackerProfile{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return profile, nil
}

// Tracker builds a tracker.Tracker from the profile. A profile with every
// dimension set to zero yields tracker.NoLimit(), matching the intuition
// that an explicitly empty profile means "don't bother charging gas".
func (p TrackerProfile) Tracker() tracker.Tracker {
	if p.MaxMemoryBytes == 0 && p.MaxInstructions == 0 && p.MaxFrames == 0 {
		return tracker.NoLimit()
	}
	return tracker.NewLimited(p.MaxMemoryBytes, p.MaxInstructions, p.MaxFrames)
}
