// Package merge implements skinned mesh merging: N independently-authored
// skinned meshes are composited into a single mesh with a unified skeleton,
// one shared material per texture-channel atlas, and consolidated per-LOD
// vertex and index buffers.
package merge

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/skelmerge/pkg/mesh"
)

// ErrNoCommonLOD is the single hard failure of a merge: no source mesh
// contributes any LOD.
var ErrNoCommonLOD = errors.New("no source mesh contributes any LOD")

// DefaultMaxBones is the default hardware max-bones-per-draw budget.
const DefaultMaxBones = 256

// BufferAccess selects the GPU-buffer residency the host should give the
// merged mesh.
type BufferAccess int

const (
	BufferAccessDefault BufferAccess = iota
	BufferAccessForceCPUAndGPU
)

// Part is one merge input: a source mesh, an optional bone of the merged
// skeleton to attach it to, and a local pre-transform applied to its
// vertices.
type Part struct {
	Mesh       *mesh.SourceMesh
	AttachBone string
	Transform  mesh.Transform
}

// Request describes one merge invocation. Dest is mutated in place: on
// success it is fully populated, on failure it is left empty.
type Request struct {
	Dest         *mesh.MergedMesh
	BaseMaterial *mesh.Material
	Parts        []Part
	// ForcedMaterialIDs optionally carries a per-(mesh, section) material
	// id. When present its length must equal len(Parts). Ids are recorded
	// on the groups they seed; they do not restrict grouping.
	ForcedMaterialIDs [][]int
	// StripTopLODs skips the given number of highest-detail LOD levels.
	StripTopLODs  int
	BufferAccess  BufferAccess
	PoseOverrides []PoseOverride
}

// AtlasExporter receives finished atlas canvases for diagnostic export.
type AtlasExporter interface {
	Export(channel string, tex *mesh.Texture) error
}

// Options configures a Merger.
type Options struct {
	// Compositor executes atlas pixel copies. When nil, texture
	// composition is skipped and UV transforms stay identity.
	Compositor Compositor
	// Channels are the tracked texture channels. Nil selects
	// DefaultChannels; an explicit empty slice disables composition.
	Channels []TextureChannel
	// MaxBonesPerSection is the hardware bone budget per draw call.
	// Zero selects DefaultMaxBones.
	MaxBonesPerSection int
	// MaxPackRetries bounds the atlas shrink-and-retry loop. Zero selects
	// atlas.DefaultMaxRetries.
	MaxPackRetries int
	SkeletonPolicy SkeletonPolicy
	// AtlasExporter, when set, receives each channel's finished canvas.
	// Purely diagnostic; export failures never fail the merge.
	AtlasExporter AtlasExporter
	Logger        *zap.Logger
}

// Merger merges source meshes per its options. A Merger is stateless across
// invocations; every Merge recomputes the full result from scratch.
type Merger struct {
	opts Options
	log  *zap.Logger
}

// New returns a Merger with the given options.
func New(opts Options) *Merger {
	if opts.MaxBonesPerSection <= 0 {
		opts.MaxBonesPerSection = DefaultMaxBones
	}
	if opts.Channels == nil {
		opts.Channels = DefaultChannels()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Merger{opts: opts, log: opts.Logger}
}

// Merge runs one full merge into req.Dest. It assumes exclusive write access
// to the destination and exclusive-of-mutation read access to the sources
// for its duration; it runs to completion on the calling goroutine, with the
// single exception of compositor copies, which are awaited once before the
// merged material is exposed.
func (m *Merger) Merge(req *Request) error {
	if req == nil || req.Dest == nil {
		panic("merge: nil destination mesh")
	}
	if req.ForcedMaterialIDs != nil && len(req.ForcedMaterialIDs) != len(req.Parts) {
		panic(fmt.Sprintf("merge: forced material table length %d != part count %d",
			len(req.ForcedMaterialIDs), len(req.Parts)))
	}
	if req.StripTopLODs < 0 {
		panic("merge: negative StripTopLODs")
	}

	dest := req.Dest
	dest.Reset()

	matRes, err := mergeMaterials(req.Parts, req.BaseMaterial, m.opts.Channels,
		m.opts.Compositor, m.opts.MaxPackRetries, m.log)
	if err != nil {
		dest.Reset()
		return fmt.Errorf("merging materials: %w", err)
	}

	skeleton, err := m.mergeSkeleton(dest, req)
	if err != nil {
		dest.Reset()
		return err
	}

	lodCount, ok := commonLODCount(req.Parts, req.StripTopLODs)
	if !ok {
		m.log.Warn("merge failed: no source mesh contributes any LOD")
		dest.Reset()
		return ErrNoCommonLOD
	}

	bindings := bindParts(req.Parts, skeleton, m.log)

	for _, p := range req.Parts {
		if p.Mesh != nil && p.Mesh.HasVertexColors {
			dest.HasVertexColors = true
			break
		}
	}

	for lod := 0; lod < lodCount; lod++ {
		groups := aggregateSections(lod+req.StripTopLODs, req.Parts, bindings,
			matRes.uvTransforms, matRes.material, req.ForcedMaterialIDs,
			m.opts.MaxBonesPerSection, m.log)
		dest.LODs = append(dest.LODs, consolidateLOD(groups, skeleton, dest.HasVertexColors))
	}

	// One-shot barrier: every scheduled pixel copy must have executed
	// before the atlas canvases are sample-ready.
	m.awaitComposition(matRes)

	m.finalize(dest, req, matRes)

	m.log.Info("merge complete",
		zap.Int("sources", len(req.Parts)),
		zap.Int("lods", len(dest.LODs)),
		zap.Int("bones", len(skeleton.Bones)))
	return nil
}

// mergeSkeleton builds the unified skeleton and socket list, applies pose
// overrides, and assigns both to the destination.
func (m *Merger) mergeSkeleton(dest *mesh.MergedMesh, req *Request) (*mesh.Skeleton, error) {
	skeleton, err := buildSkeleton(req.Parts, m.opts.SkeletonPolicy)
	if err != nil {
		return nil, fmt.Errorf("merging skeletons: %w", err)
	}
	sockets := buildSockets(req.Parts, m.log)

	if len(req.PoseOverrides) > 0 {
		applyPoseOverrides(skeleton, req.PoseOverrides)
		overrideSockets(sockets, req.PoseOverrides)
	}

	dest.Skeleton = skeleton
	dest.Sockets = sockets
	return skeleton, nil
}

// awaitComposition waits on every outstanding copy ticket and drains the
// compositor. Copy failures leave default content in the affected region and
// are soft.
func (m *Merger) awaitComposition(matRes *materialResult) {
	if m.opts.Compositor != nil && len(matRes.tickets) > 0 {
		if err := m.opts.Compositor.Flush(); err != nil {
			m.log.Warn("compositor flush failed", zap.Error(err))
		}
	}
	for _, t := range matRes.tickets {
		if err := t.Wait(); err != nil {
			m.log.Warn("atlas copy failed", zap.Error(err))
		}
	}
	if m.opts.AtlasExporter != nil {
		for channel, canvas := range matRes.canvases {
			if err := m.opts.AtlasExporter.Export(channel, canvas.Texture()); err != nil {
				m.log.Warn("atlas export failed", zap.String("channel", channel), zap.Error(err))
			}
		}
	}
}

// finalize populates the remaining destination state: the shared material,
// merged bounds seeded from the first non-nil source, mirror metadata from
// the first non-nil source, and the residency flag.
func (m *Merger) finalize(dest *mesh.MergedMesh, req *Request, matRes *materialResult) {
	dest.Materials = []*mesh.Material{matRes.material}
	dest.CPUAccessible = req.BufferAccess == BufferAccessForceCPUAndGPU

	first := true
	for _, p := range req.Parts {
		if p.Mesh == nil {
			continue
		}
		if first {
			dest.Bounds = p.Mesh.Bounds
			dest.Mirror = p.Mesh.Mirror
			first = false
		} else {
			dest.Bounds = dest.Bounds.Union(p.Mesh.Bounds)
		}
	}
}

// commonLODCount returns the number of LOD levels to generate: the minimum
// LOD count across source meshes that have any, minus the stripped top
// levels, floored at one. ok is false when no source mesh has any LOD.
func commonLODCount(parts []Part, strip int) (count int, ok bool) {
	min := -1
	for _, p := range parts {
		if p.Mesh == nil || len(p.Mesh.LODs) == 0 {
			continue
		}
		if min == -1 || len(p.Mesh.LODs) < min {
			min = len(p.Mesh.LODs)
		}
	}
	if min == -1 {
		return 0, false
	}
	if min -= strip; min < 1 {
		min = 1
	}
	return min, true
}
