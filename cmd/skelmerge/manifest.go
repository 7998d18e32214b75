package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/skelmerge/pkg/merge"
	"github.com/Faultbox/skelmerge/pkg/mesh"
	"github.com/Faultbox/skelmerge/pkg/texture"
)

// Manifest describes one merge job: the parts to merge and optional
// bind-pose overrides. Paths are relative to the manifest file.
type Manifest struct {
	BaseMaterial string         `yaml:"base_material"`
	Parts        []ManifestPart `yaml:"parts"`
	Overrides    []ManifestPose `yaml:"pose_overrides"`
}

// ManifestPart is one source mesh entry.
type ManifestPart struct {
	Mesh       string     `yaml:"mesh"`
	AttachBone string     `yaml:"attach_bone"`
	Translate  [3]float32 `yaml:"translate"`
	// Rotate is a quaternion in x, y, z, w order; zero means identity.
	Rotate [4]float32 `yaml:"rotate"`
	// Scale of zero means identity.
	Scale [3]float32 `yaml:"scale"`
	// Textures binds channel names to image files, applied to every
	// material of the mesh.
	Textures map[string]string `yaml:"textures"`
}

// ManifestPose is one bind-pose override entry.
type ManifestPose struct {
	Mesh  string `yaml:"mesh"`
	Bones []struct {
		Bone string `yaml:"bone"`
		Mode string `yaml:"mode"` // "bone", "children" or "both"
	} `yaml:"bones"`
}

// LoadManifest reads and resolves a manifest into a merge request skeleton.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// BuildRequest loads every referenced mesh and texture and assembles the
// merge request. baseDir anchors relative paths.
func (m *Manifest) BuildRequest(baseDir string, channels []merge.TextureChannel) (*merge.Request, error) {
	req := &merge.Request{
		Dest:         &mesh.MergedMesh{},
		BaseMaterial: &mesh.Material{Name: m.BaseMaterial},
	}

	linear := make(map[string]bool, len(channels))
	for _, ch := range channels {
		linear[ch.Name] = ch.Linear
	}

	for _, part := range m.Parts {
		src, err := loadMesh(filepath.Join(baseDir, part.Mesh))
		if err != nil {
			return nil, err
		}
		for channel, texPath := range part.Textures {
			tex, err := texture.Load(filepath.Join(baseDir, texPath), !linear[channel])
			if err != nil {
				return nil, fmt.Errorf("loading %s texture for %s: %w", channel, part.Mesh, err)
			}
			for _, mat := range src.Materials {
				mat.SetTexture(channel, tex)
			}
		}
		req.Parts = append(req.Parts, merge.Part{
			Mesh:       src,
			AttachBone: part.AttachBone,
			Transform:  part.transform(),
		})
	}

	for _, pose := range m.Overrides {
		src, err := loadMesh(filepath.Join(baseDir, pose.Mesh))
		if err != nil {
			return nil, err
		}
		po := merge.PoseOverride{Mesh: src}
		for _, b := range pose.Bones {
			mode, err := parseOverrideMode(b.Mode)
			if err != nil {
				return nil, err
			}
			po.Overrides = append(po.Overrides, merge.BoneOverride{Bone: b.Bone, Mode: mode})
		}
		req.PoseOverrides = append(req.PoseOverrides, po)
	}
	return req, nil
}

func (p ManifestPart) transform() mesh.Transform {
	t := mesh.IdentityTransform()
	t.Translation = mgl32.Vec3{p.Translate[0], p.Translate[1], p.Translate[2]}
	if p.Rotate != ([4]float32{}) {
		t.Rotation = mgl32.Quat{
			W: p.Rotate[3],
			V: mgl32.Vec3{p.Rotate[0], p.Rotate[1], p.Rotate[2]},
		}
	}
	if p.Scale != ([3]float32{}) {
		t.Scale = mgl32.Vec3{p.Scale[0], p.Scale[1], p.Scale[2]}
	}
	return t
}

func parseOverrideMode(mode string) (merge.PoseOverrideMode, error) {
	switch mode {
	case "bone", "":
		return merge.OverrideBoneOnly, nil
	case "children":
		return merge.OverrideChildrenOnly, nil
	case "both":
		return merge.OverrideBoneAndChildren, nil
	}
	return 0, fmt.Errorf("unknown override mode %q", mode)
}

// loadMesh reads a JSON-serialized source mesh and validates its skeleton.
func loadMesh(path string) (*mesh.SourceMesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mesh: %w", err)
	}
	var src mesh.SourceMesh
	if err := json.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("parsing mesh %s: %w", path, err)
	}
	if src.Name == "" {
		src.Name = filepath.Base(path)
	}
	if src.Skeleton == nil {
		return nil, fmt.Errorf("mesh %s has no skeleton", path)
	}
	if err := src.Skeleton.Validate(); err != nil {
		return nil, fmt.Errorf("mesh %s: %w", path, err)
	}
	return &src, nil
}
