package config

import "flag"

var (
	flagConfig   = flag.String("config", "", "Path to config file")
	flagDebug    = flag.Bool("debug", false, "Enable debug logging")
	flagExport   = flag.Bool("export-atlases", false, "Export atlas canvases as images")
	flagDir      = flag.String("export-dir", "", "Atlas export directory")
	flagMaxBones = flag.Int("max-bones", 0, "Max bones per output section")
	flagStrip    = flag.Int("strip-lods", -1, "Number of top LODs to strip")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagExport {
		cfg.Export.Enabled = true
	}
	if *flagDir != "" {
		cfg.Export.Dir = *flagDir
	}
	if *flagMaxBones > 0 {
		cfg.Merge.MaxBonesPerSection = *flagMaxBones
	}
	if *flagStrip >= 0 {
		cfg.Merge.StripTopLODs = *flagStrip
	}
}
