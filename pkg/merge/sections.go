package merge

import (
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/skelmerge/pkg/mesh"
)

// contributor records one source section admitted into a section group,
// together with everything the consolidator needs to copy it: the UV remap,
// the vertex pre-transform, the mesh's bone remap table, and the slot map
// translating the section's local bonemap slots into positions of the
// group's bonemap. Because bonemap growth only appends, a slot map computed
// at admission time stays valid as later sections grow the group.
type contributor struct {
	meshIndex int
	mesh      *mesh.SourceMesh
	lod       *mesh.LOD
	section   *mesh.Section
	uv        UVTransform
	transform mgl32.Mat4
	remap     mesh.BoneRemapTable
	slotMap   []int
}

// sectionGroup accumulates source sections that share one output draw call.
// Its bonemap holds merged-skeleton indices and grows by append-if-absent;
// existing slot positions never move once assigned.
type sectionGroup struct {
	material     *mesh.Material
	materialID   int
	boneMap      []int
	contributors []contributor
}

// mergeBoneMap unions a remapped section bonemap into an existing group
// bonemap, returning the union and the local-slot-to-union-slot map.
func mergeBoneMap(merged, boneMap []int) (union []int, slotMap []int) {
	union = append(union, merged...)
	slotMap = make([]int, len(boneMap))
	for i, bone := range boneMap {
		pos := -1
		for j, existing := range union {
			if existing == bone {
				pos = j
				break
			}
		}
		if pos == -1 {
			pos = len(union)
			union = append(union, bone)
		}
		slotMap[i] = pos
	}
	return union, slotMap
}

// aggregateSections groups the source sections of one LOD level into output
// sections, subject to the hardware bone budget. Sections are visited in
// mesh-then-section order; each attempts admission into every existing group
// in first-admission order and starts a new group when no union stays within
// maxBones.
//
// A forced material id, when present, is recorded on the group it seeds but
// deliberately does not restrict admission: grouping is governed by the bone
// budget alone.
func aggregateSections(lodIdx int, parts []Part, bindings []partBinding,
	uvTransforms [][]UVTransform, sharedMaterial *mesh.Material,
	forced [][]int, maxBones int, log *zap.Logger) []sectionGroup {

	var groups []sectionGroup

	for meshIdx, p := range parts {
		if p.Mesh == nil || len(p.Mesh.LODs) == 0 {
			continue
		}
		srcLODIdx := lodIdx
		if last := len(p.Mesh.LODs) - 1; srcLODIdx > last {
			srcLODIdx = last
		}
		srcLOD := p.Mesh.LODs[srcLODIdx]

		for sectionIdx := range srcLOD.Sections {
			section := &srcLOD.Sections[sectionIdx]

			materialID := -1
			if forced != nil && meshIdx < len(forced) && sectionIdx < len(forced[meshIdx]) {
				materialID = forced[meshIdx][sectionIdx]
			}

			destBoneMap := bindings[meshIdx].remap.Remap(section.BoneMap)

			uv := IdentityUV()
			if uvs := uvTransforms[meshIdx]; section.MaterialIndex < len(uvs) {
				uv = uvs[section.MaterialIndex]
			}

			contrib := contributor{
				meshIndex: meshIdx,
				mesh:      p.Mesh,
				lod:       srcLOD,
				section:   section,
				uv:        uv,
				transform: bindings[meshIdx].transform,
				remap:     bindings[meshIdx].remap,
			}

			admitted := false
			for gi := range groups {
				union, slotMap := mergeBoneMap(groups[gi].boneMap, destBoneMap)
				if len(union) > maxBones {
					continue
				}
				groups[gi].boneMap = union
				contrib.slotMap = slotMap
				groups[gi].contributors = append(groups[gi].contributors, contrib)
				admitted = true
				break
			}
			if admitted {
				continue
			}

			// Seed a new group with this section's bonemap; the slot map
			// is pass-through.
			slotMap := make([]int, len(destBoneMap))
			for i := range slotMap {
				slotMap[i] = i
			}
			contrib.slotMap = slotMap
			groups = append(groups, sectionGroup{
				material:     sharedMaterial,
				materialID:   materialID,
				boneMap:      append([]int(nil), destBoneMap...),
				contributors: []contributor{contrib},
			})
			log.Debug("started section group",
				zap.Int("lod", lodIdx),
				zap.Int("group", len(groups)-1),
				zap.Int("bones", len(destBoneMap)))
		}
	}
	return groups
}
