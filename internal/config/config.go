// Package config handles merge tool configuration loading and management.
package config

import (
	"github.com/Faultbox/skelmerge/pkg/atlas"
	"github.com/Faultbox/skelmerge/pkg/merge"
)

// Config holds all merge tool settings.
type Config struct {
	Merge   MergeConfig   `yaml:"merge"`
	Atlas   AtlasConfig   `yaml:"atlas"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
}

// MergeConfig holds merge engine settings.
type MergeConfig struct {
	// MaxBonesPerSection is the hardware max-bones-per-draw budget.
	MaxBonesPerSection int `yaml:"max_bones_per_section"`
	// StripTopLODs skips the given number of highest-detail LOD levels.
	StripTopLODs int `yaml:"strip_top_lods"`
	// CPUAccessible requests CPU+GPU buffer residency for the output.
	CPUAccessible bool `yaml:"cpu_accessible"`
	// UnionSkeletons appends bones unique to non-first source meshes
	// instead of taking the first skeleton verbatim.
	UnionSkeletons bool `yaml:"union_skeletons"`
}

// AtlasConfig holds texture atlas settings.
type AtlasConfig struct {
	// Channels are the tracked material texture channels.
	Channels []merge.TextureChannel `yaml:"channels"`
	// MaxPackRetries bounds the packer's shrink-and-retry loop.
	MaxPackRetries int `yaml:"max_pack_retries"`
}

// ExportConfig holds diagnostic atlas export settings.
type ExportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Format  string `yaml:"format"` // "png" or "webp"
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Merge: MergeConfig{
			MaxBonesPerSection: merge.DefaultMaxBones,
		},
		Atlas: AtlasConfig{
			Channels:       merge.DefaultChannels(),
			MaxPackRetries: atlas.DefaultMaxRetries,
		},
		Export: ExportConfig{
			Dir:    "atlases",
			Format: "png",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
