package merge

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	deepcopy "github.com/tiendc/go-deepcopy"
	"go.uber.org/zap"

	"github.com/Faultbox/skelmerge/pkg/mesh"
)

// PoseOverrideMode selects which bones a bind-pose override touches.
type PoseOverrideMode int

const (
	// OverrideBoneOnly replaces the named bone's bind transform.
	OverrideBoneOnly PoseOverrideMode = iota
	// OverrideChildrenOnly replaces every strict descendant, leaving the
	// named bone itself untouched.
	OverrideChildrenOnly
	// OverrideBoneAndChildren replaces the named bone and its descendants.
	OverrideBoneAndChildren
)

func (m PoseOverrideMode) valid() bool {
	return m >= OverrideBoneOnly && m <= OverrideBoneAndChildren
}

// BoneOverride names one bone of an override source and the override mode.
type BoneOverride struct {
	Bone string
	Mode PoseOverrideMode
}

// PoseOverride replaces merged bind poses (and socket transforms) with those
// of another source mesh.
type PoseOverride struct {
	Mesh      *mesh.SourceMesh
	Overrides []BoneOverride
}

// SkeletonPolicy selects how the merged skeleton is composed.
type SkeletonPolicy int

const (
	// SkeletonBaseline takes the first non-nil source mesh's skeleton
	// verbatim; bones unique to later meshes are not added.
	SkeletonBaseline SkeletonPolicy = iota
	// SkeletonUnion additionally appends bones of later meshes whose
	// parent resolves by name in the merged skeleton.
	SkeletonUnion
)

// maxAncestorFallback bounds the parent walk used to resolve source bones
// that have no name match in the merged skeleton.
const maxAncestorFallback = 3

// buildSkeleton composes the unified bone hierarchy from the source meshes.
func buildSkeleton(parts []Part, policy SkeletonPolicy) (*mesh.Skeleton, error) {
	merged := &mesh.Skeleton{}
	for _, p := range parts {
		if p.Mesh == nil || p.Mesh.Skeleton == nil {
			continue
		}
		src := p.Mesh.Skeleton
		if len(merged.Bones) == 0 {
			if err := deepcopy.Copy(merged, src); err != nil {
				return nil, fmt.Errorf("copying skeleton of %q: %w", p.Mesh.Name, err)
			}
			continue
		}
		if policy != SkeletonUnion {
			continue
		}
		for i := 1; i < len(src.Bones); i++ {
			bone := src.Bones[i]
			if merged.FindBone(bone.Name) != mesh.NoBone {
				continue
			}
			parent := merged.FindBone(src.Bones[bone.Parent].Name)
			if parent == mesh.NoBone {
				continue
			}
			bone.Parent = parent
			merged.Bones = append(merged.Bones, bone)
		}
	}
	return merged, nil
}

// buildSockets concatenates all mesh-level sockets, then all skeleton-level
// sockets, in source-mesh order. The first socket of a given name wins;
// later collisions are discarded.
func buildSockets(parts []Part, log *zap.Logger) []mesh.Socket {
	var out []mesh.Socket
	names := make(map[string]struct{})

	add := func(meshName string, sockets []mesh.Socket) {
		for _, s := range sockets {
			if _, ok := names[s.Name]; ok {
				log.Debug("discarding colliding socket",
					zap.String("socket", s.Name), zap.String("mesh", meshName))
				continue
			}
			names[s.Name] = struct{}{}
			out = append(out, s)
		}
	}
	for _, p := range parts {
		if p.Mesh != nil {
			add(p.Mesh.Name, p.Mesh.Sockets)
		}
	}
	for _, p := range parts {
		if p.Mesh != nil {
			add(p.Mesh.Name, p.Mesh.SkeletonSockets)
		}
	}
	return out
}

// applyPoseOverrides copies bind transforms from each override source onto
// same-named bones of the merged skeleton. Descendants are resolved in the
// override source's hierarchy, then matched by name.
func applyPoseOverrides(merged *mesh.Skeleton, overrides []PoseOverride) {
	for _, po := range overrides {
		if po.Mesh == nil || po.Mesh.Skeleton == nil {
			continue
		}
		src := po.Mesh.Skeleton
		for _, ov := range po.Overrides {
			if !ov.Mode.valid() {
				panic(fmt.Sprintf("merge: invalid pose override mode %d", ov.Mode))
			}
			srcBone := src.FindBone(ov.Bone)
			if srcBone == mesh.NoBone {
				continue
			}
			if ov.Mode != OverrideChildrenOnly {
				overrideBonePose(merged, src, srcBone)
			}
			if ov.Mode != OverrideBoneOnly {
				for child := srcBone + 1; child < len(src.Bones); child++ {
					if src.IsDescendant(child, srcBone) {
						overrideBonePose(merged, src, child)
					}
				}
			}
		}
	}
}

// overrideBonePose copies one source bone's bind transform onto the merged
// skeleton's same-named bone. A missing name is a no-op.
func overrideBonePose(merged, src *mesh.Skeleton, srcBone int) {
	if target := merged.FindBone(src.Bones[srcBone].Name); target != mesh.NoBone {
		merged.Bones[target].Bind = src.Bones[srcBone].Bind
	}
}

// overrideSockets re-applies pose overrides to the already-merged socket
// list: for every affected bone, merged sockets are overwritten from the
// override source's socket of the same socket name.
func overrideSockets(merged []mesh.Socket, overrides []PoseOverride) {
	for _, po := range overrides {
		if po.Mesh == nil || po.Mesh.Skeleton == nil {
			continue
		}
		src := po.Mesh.Skeleton
		for _, ov := range po.Overrides {
			srcBone := src.FindBone(ov.Bone)
			if srcBone == mesh.NoBone {
				continue
			}
			if ov.Mode != OverrideChildrenOnly {
				overrideBoneSockets(merged, ov.Bone, po.Mesh.SkeletonSockets)
				overrideBoneSockets(merged, ov.Bone, po.Mesh.Sockets)
			}
			if ov.Mode != OverrideBoneOnly {
				for child := srcBone + 1; child < len(src.Bones); child++ {
					if src.IsDescendant(child, srcBone) {
						name := src.Bones[child].Name
						overrideBoneSockets(merged, name, po.Mesh.SkeletonSockets)
						overrideBoneSockets(merged, name, po.Mesh.Sockets)
					}
				}
			}
		}
	}
}

func overrideBoneSockets(merged []mesh.Socket, bone string, source []mesh.Socket) {
	for _, srcSocket := range source {
		if srcSocket.Bone != bone {
			continue
		}
		for i := range merged {
			if merged[i].Name == srcSocket.Name {
				merged[i].Bone = srcSocket.Bone
				merged[i].Relative = srcSocket.Relative
			}
		}
	}
}

// buildRemapTable maps every bone of the source skeleton into the merged
// skeleton. The table is total: when a source mesh is attached to a bone,
// every source bone maps to it; otherwise exact name match is tried, then up
// to maxAncestorFallback ancestors of the source bone, and finally the
// merged root.
func buildRemapTable(src, merged *mesh.Skeleton, attachBone int, meshName string, log *zap.Logger) mesh.BoneRemapTable {
	table := make(mesh.BoneRemapTable, len(src.Bones))
	for i := range src.Bones {
		dest := attachBone
		if dest == mesh.NoBone {
			dest = merged.FindBone(src.Bones[i].Name)
		}
		if dest == mesh.NoBone {
			parent := src.Bones[i].Parent
			for j := 0; j < maxAncestorFallback && parent != mesh.NoBone; j++ {
				dest = merged.FindBone(src.Bones[parent].Name)
				if dest != mesh.NoBone {
					break
				}
				parent = src.Bones[parent].Parent
			}
		}
		if dest == mesh.NoBone {
			// Missing bones can happen with mismatched hierarchies; fall
			// back to the merged root.
			log.Debug("bone unresolved in merged skeleton, remapping to root",
				zap.String("bone", src.Bones[i].Name), zap.String("mesh", meshName))
			dest = 0
		}
		table[i] = dest
	}
	return table
}

// partBinding is the per-source-mesh output of the skeleton merge: the total
// bone remap table and the final vertex pre-transform.
type partBinding struct {
	remap     mesh.BoneRemapTable
	transform mgl32.Mat4
}

// bindParts resolves each part's attach bone against the merged skeleton and
// derives its remap table and vertex pre-transform. An attached mesh's
// vertices move from its own root space into the attach bone's component
// space, composed after the caller-supplied transform.
func bindParts(parts []Part, merged *mesh.Skeleton, log *zap.Logger) []partBinding {
	mergedCS := merged.ComponentSpace()
	out := make([]partBinding, len(parts))
	for i, p := range parts {
		if p.Mesh == nil || p.Mesh.Skeleton == nil {
			continue
		}
		attach := mesh.NoBone
		if p.AttachBone != "" {
			attach = merged.FindBone(p.AttachBone)
			if attach == mesh.NoBone {
				log.Warn("attach bone not found in merged skeleton",
					zap.String("bone", p.AttachBone), zap.String("mesh", p.Mesh.Name))
			}
		}

		transform := p.Transform.Mat4()
		if attach != mesh.NoBone {
			srcCS := p.Mesh.Skeleton.ComponentSpace()
			srcRootInv := srcCS[0].Inv()
			transform = mergedCS[attach].Mul4(srcRootInv).Mul4(transform)
		}

		out[i] = partBinding{
			remap:     buildRemapTable(p.Mesh.Skeleton, merged, attach, p.Mesh.Name, log),
			transform: transform,
		}
	}
	return out
}
