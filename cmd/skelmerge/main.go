// skelmerge merges a set of skinned meshes described by a YAML manifest
// into a single mesh with atlased textures and a unified skeleton.
//
// Usage:
//
//	skelmerge -manifest job.yaml -out merged.json [options]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/skelmerge/internal/config"
	"github.com/Faultbox/skelmerge/internal/export"
	"github.com/Faultbox/skelmerge/internal/logger"
	"github.com/Faultbox/skelmerge/pkg/compositor"
	"github.com/Faultbox/skelmerge/pkg/merge"
)

var (
	flagManifest = flag.String("manifest", "", "Path to merge manifest (YAML)")
	flagOut      = flag.String("out", "merged.json", "Output mesh path")
)

func main() {
	config.ParseFlags()

	if *flagManifest == "" {
		fmt.Fprintln(os.Stderr, "skelmerge: -manifest is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Log.Fatal("Merge failed", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	manifest, err := LoadManifest(*flagManifest)
	if err != nil {
		return err
	}
	baseDir := filepath.Dir(*flagManifest)

	channels := cfg.Atlas.Channels
	req, err := manifest.BuildRequest(baseDir, channels)
	if err != nil {
		return err
	}
	req.StripTopLODs = cfg.Merge.StripTopLODs
	if cfg.Merge.CPUAccessible {
		req.BufferAccess = merge.BufferAccessForceCPUAndGPU
	}

	comp := compositor.NewSoftware(logger.Log)
	defer comp.Close()

	opts := merge.Options{
		Compositor:         comp,
		Channels:           channels,
		MaxBonesPerSection: cfg.Merge.MaxBonesPerSection,
		MaxPackRetries:     cfg.Atlas.MaxPackRetries,
		Logger:             logger.Log,
	}
	if cfg.Merge.UnionSkeletons {
		opts.SkeletonPolicy = merge.SkeletonUnion
	}
	if cfg.Export.Enabled {
		prefix := baseName(*flagOut)
		opts.AtlasExporter = export.NewDumper(cfg.Export.Dir, prefix, cfg.Export.Format)
	}

	merger := merge.New(opts)
	if err := merger.Merge(req); err != nil {
		return err
	}

	if err := writeMesh(*flagOut, req.Dest); err != nil {
		return err
	}

	logger.Log.Info("Wrote merged mesh",
		zap.String("path", *flagOut),
		zap.Int("lods", len(req.Dest.LODs)),
		zap.Int("bones", len(req.Dest.Skeleton.Bones)))
	return nil
}

func writeMesh(path string, m any) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding mesh: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing mesh: %w", err)
	}
	return nil
}

func baseName(path string) string {
	name := filepath.Base(path)
	return name[:len(name)-len(filepath.Ext(name))]
}
