package merge

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/skelmerge/pkg/mesh"
)

// consolidateLOD builds one output LOD from the aggregated section groups:
// it copies and transforms vertex, weight and color data, rewrites bone
// slots through each contributor's slot map, re-bases triangle indices onto
// the consolidated buffers, and selects the index width.
func consolidateLOD(groups []sectionGroup, skeleton *mesh.Skeleton, hasColors bool) *mesh.LOD {
	out := &mesh.LOD{
		TexCoordCount: 1,
		ScreenSize:    math.MaxFloat32,
		Hysteresis:    math.MaxFloat32,
	}

	// The packed vertex layout is chosen once per LOD: as many texcoord
	// channels as any contributor carries, extended influences if any
	// contributing section used them.
	for gi := range groups {
		for _, c := range groups[gi].contributors {
			if c.lod.TexCoordCount > out.TexCoordCount {
				out.TexCoordCount = c.lod.TexCoordCount
			}
			out.ExtendedInfluences = out.ExtendedInfluences || c.lod.ExtendedInfluences
		}
	}
	if out.TexCoordCount > mesh.MaxTexCoords {
		out.TexCoordCount = mesh.MaxTexCoords
	}

	activeBones := make(map[int]struct{})
	requiredBones := make(map[int]struct{})
	var maxIndex uint32

	for gi := range groups {
		group := &groups[gi]
		for _, bone := range group.boneMap {
			activeBones[bone] = struct{}{}
		}

		section := mesh.Section{
			MaterialIndex: 0,
			BoneMap:       group.boneMap,
			BaseVertex:    len(out.Positions),
			BaseIndex:     len(out.Indices),
		}

		var dup mesh.DuplicateVertexData
		hasDup := false

		for _, c := range group.contributors {
			for _, rb := range c.lod.RequiredBones {
				if rb >= 0 && rb < len(c.remap) {
					requiredBones[c.remap[rb]] = struct{}{}
				}
			}
			if c.lod.ScreenSize < out.ScreenSize {
				out.ScreenSize = c.lod.ScreenSize
			}
			if c.lod.Hysteresis < out.Hysteresis {
				out.Hysteresis = c.lod.Hysteresis
			}
			mergeUVDensities(group.material, c)

			currentBase := len(out.Positions)
			copied := copyVertices(out, c, hasColors)
			section.NumVertices += copied

			section.NumTriangles += copyIndices(out, c, currentBase, &maxIndex)

			if appendDuplicates(&dup, c, currentBase, copied) {
				hasDup = true
			}
		}

		if hasDup {
			section.Duplicates = &dup
		}
		out.Sections = append(out.Sections, section)
	}

	out.ActiveBones = sortedBoneSet(activeBones)
	closeOverAncestry(requiredBones, skeleton)
	out.RequiredBones = sortedBoneSet(requiredBones)

	if maxIndex < math.MaxUint16 {
		out.IndexWidth = mesh.IndexWidth16
	} else {
		out.IndexWidth = mesh.IndexWidth32
	}
	return out
}

// copyVertices appends one contributor's vertex range to the output buffers,
// applying the vertex pre-transform to positions and the UV remap to every
// texcoord channel. The range is clamped against the source buffer size to
// guard against malformed sections. It returns the number of copied
// vertices.
func copyVertices(out *mesh.LOD, c contributor, hasColors bool) int {
	src := c.lod
	start := c.section.BaseVertex
	end := c.section.BaseVertex + c.section.NumVertices
	if n := src.NumVertices(); end > n {
		end = n
	}
	if start > end {
		start = end
	}

	srcInfluences := mesh.BaseInfluences
	if src.ExtendedInfluences {
		srcInfluences = mesh.MaxInfluences
	}

	for v := start; v < end; v++ {
		out.Positions = append(out.Positions, mgl32.TransformCoordinate(src.Positions[v], c.transform))

		// Tangent frames are copied verbatim; renormalization under
		// non-uniform scale is out of scope.
		out.TangentsX = append(out.TangentsX, tangentX(src, v))
		out.TangentsZ = append(out.TangentsZ, tangentZ(src, v))

		for ch := 0; ch < out.TexCoordCount; ch++ {
			var uv mgl32.Vec2
			if ch < src.TexCoordCount {
				uv = c.uv.Apply(src.UV(v, ch))
			}
			out.UVs = append(out.UVs, uv)
		}

		if hasColors {
			color := mesh.ColorWhite
			if v < len(src.Colors) {
				color = src.Colors[v]
			}
			out.Colors = append(out.Colors, color)
		}

		// Zero all weight slots first, then copy what the source carries;
		// sections without extended influences stay zero-padded in the
		// extra slots.
		var w mesh.SkinWeights
		if v < len(src.Weights) {
			sw := src.Weights[v]
			for i := 0; i < srcInfluences; i++ {
				w.Bones[i] = sw.Bones[i]
				w.Weights[i] = sw.Weights[i]
			}
		}
		for i := 0; i < mesh.MaxInfluences; i++ {
			if w.Weights[i] == 0 {
				continue
			}
			if slot := int(w.Bones[i]); slot < len(c.slotMap) {
				w.Bones[i] = uint8(c.slotMap[slot])
			}
		}
		out.Weights = append(out.Weights, w)
	}
	return end - start
}

func tangentX(src *mesh.LOD, v int) mgl32.Vec3 {
	if v < len(src.TangentsX) {
		return src.TangentsX[v]
	}
	return mgl32.Vec3{}
}

func tangentZ(src *mesh.LOD, v int) mgl32.Vec4 {
	if v < len(src.TangentsZ) {
		return src.TangentsZ[v]
	}
	return mgl32.Vec4{}
}

// copyIndices appends the contributor's triangle indices, re-based so they
// address the vertex range just appended at currentBase. It returns the
// number of copied triangles.
func copyIndices(out *mesh.LOD, c contributor, currentBase int, maxIndex *uint32) int {
	src := c.lod
	start := c.section.BaseIndex
	end := c.section.BaseIndex + c.section.NumTriangles*3
	if n := len(src.Indices); end > n {
		end = n
	}
	for i := start; i < end; i++ {
		dst := src.Indices[i] - uint32(c.section.BaseVertex) + uint32(currentBase)
		out.Indices = append(out.Indices, dst)
		if dst > *maxIndex {
			*maxIndex = dst
		}
	}
	if end <= start {
		return 0
	}
	return (end - start) / 3
}

// appendDuplicates concatenates the contributor's duplicate-vertex data with
// the same re-basing as the index buffer. Contributors lacking the data
// contribute a default (empty) run per vertex. It reports whether the
// contributor actually carried duplicate data.
func appendDuplicates(dup *mesh.DuplicateVertexData, c contributor, currentBase, copied int) bool {
	if c.section.Duplicates == nil {
		for i := 0; i < copied; i++ {
			dup.Entries = append(dup.Entries, mesh.DupEntry{})
		}
		return false
	}

	src := c.section.Duplicates
	rebase := uint32(currentBase) - uint32(c.section.BaseVertex)
	dupStart := uint32(len(dup.Vertices))

	for i := 0; i < copied; i++ {
		var e mesh.DupEntry
		if i < len(src.Entries) {
			e = src.Entries[i]
			e.Index += dupStart
		}
		dup.Entries = append(dup.Entries, e)
	}
	for _, v := range src.Vertices {
		dup.Vertices = append(dup.Vertices, v+rebase)
	}
	return true
}

// mergeUVDensities keeps the max per-channel UV density across every section
// merged into the shared material.
func mergeUVDensities(mat *mesh.Material, c contributor) {
	if mat == nil || c.section.MaterialIndex >= len(c.mesh.Materials) {
		return
	}
	srcMat := c.mesh.Materials[c.section.MaterialIndex]
	if srcMat == nil {
		return
	}
	for i := 0; i < mesh.MaxTexCoords; i++ {
		if srcMat.UVDensities[i] > mat.UVDensities[i] {
			mat.UVDensities[i] = srcMat.UVDensities[i]
		}
	}
}

// closeOverAncestry adds every included bone's ancestors to the set.
func closeOverAncestry(bones map[int]struct{}, skeleton *mesh.Skeleton) {
	for bone := range bones {
		for p := bone; p != mesh.NoBone; {
			p = skeleton.Bones[p].Parent
			if p != mesh.NoBone {
				bones[p] = struct{}{}
			}
		}
	}
}

func sortedBoneSet(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Ints(out)
	return out
}
