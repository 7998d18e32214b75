package mesh

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Hard limits of the vertex layout.
const (
	// MaxTexCoords is the maximum number of UV channels per vertex.
	MaxTexCoords = 4
	// BaseInfluences is the number of skin influences in the compact layout.
	BaseInfluences = 4
	// MaxInfluences is the number of influences with the extended layout.
	MaxInfluences = 8
)

// Index buffer widths in bytes per index.
const (
	IndexWidth16 = 2
	IndexWidth32 = 4
)

// Color is an 8-bit RGBA vertex color.
type Color [4]uint8

// ColorWhite is the opaque white default for vertices whose source mesh
// carries no color data.
var ColorWhite = Color{255, 255, 255, 255}

// SkinWeights holds the bone influences of one vertex. Bone entries are
// slots (positions) into the owning section's bonemap, not skeleton indices.
// Weights are normalized to the 0..255 range. Slots past BaseInfluences are
// only meaningful when the LOD uses the extended layout; they stay zero
// otherwise.
type SkinWeights struct {
	Bones   [MaxInfluences]uint8
	Weights [MaxInfluences]uint8
}

// DupEntry addresses a vertex's run of coincident vertices inside
// DuplicateVertexData.Vertices.
type DupEntry struct {
	Index  uint32
	Length uint32
}

// DuplicateVertexData accelerates adjacency queries over geometrically
// coincident vertices. Entries has one run per section vertex; Vertices
// holds LOD-wide vertex indices.
type DuplicateVertexData struct {
	Entries  []DupEntry
	Vertices []uint32
}

// Section is a contiguous run of a LOD's vertex and index buffers sharing
// one material and one bonemap.
type Section struct {
	MaterialIndex int
	// BoneMap is the ordered set of skeleton bone indices this section
	// references; per-vertex influence slots index into it.
	BoneMap      []int
	BaseVertex   int
	NumVertices  int
	BaseIndex    int
	NumTriangles int
	// Duplicates is optional acceleration data; nil when absent.
	Duplicates *DuplicateVertexData
}

// LOD is one level of detail: sections plus the consolidated buffers they
// address. All vertex attribute slices share the same length. UVs is packed
// with stride TexCoordCount.
type LOD struct {
	Sections []Section

	Positions []mgl32.Vec3
	TangentsX []mgl32.Vec3
	// TangentsZ holds the normal in xyz and the bitangent sign in w.
	TangentsZ []mgl32.Vec4
	UVs       []mgl32.Vec2
	Colors    []Color
	Weights   []SkinWeights

	Indices    []uint32
	IndexWidth int

	// TexCoordCount and ExtendedInfluences describe the packed vertex
	// layout of this LOD (1..MaxTexCoords channels, BaseInfluences or
	// MaxInfluences weight slots).
	TexCoordCount      int
	ExtendedInfluences bool

	// RequiredBones are the skeleton bones needed to evaluate this LOD,
	// sorted and closed under ancestry. ActiveBones are the bones any
	// section's bonemap references, sorted.
	RequiredBones []int
	ActiveBones   []int

	ScreenSize float32
	Hysteresis float32
}

// UV returns vertex v's texcoord channel ch.
func (l *LOD) UV(v, ch int) mgl32.Vec2 {
	return l.UVs[v*l.TexCoordCount+ch]
}

// NumVertices returns the vertex count of the LOD's buffers.
func (l *LOD) NumVertices() int {
	return len(l.Positions)
}

// SourceMesh is an immutable view of one merge input. The merge engine only
// reads it; ownership stays with the caller.
type SourceMesh struct {
	Name     string
	Skeleton *Skeleton
	// Sockets live on the mesh itself; SkeletonSockets come from a shared
	// skeleton asset.
	Sockets         []Socket
	SkeletonSockets []Socket
	Materials       []*Material
	LODs            []*LOD
	HasVertexColors bool
	Bounds          Bounds
	Mirror          MirrorInfo
}

// MergedMesh is the destination of a merge: a unified skeleton and socket
// list, a single shared material, and consolidated per-LOD buffers. A merge
// fully replaces its prior content.
type MergedMesh struct {
	Skeleton        *Skeleton
	Sockets         []Socket
	Materials       []*Material
	LODs            []*LOD
	HasVertexColors bool
	Bounds          Bounds
	Mirror          MirrorInfo
	// CPUAccessible requests CPU+GPU buffer residency from the host.
	CPUAccessible bool
}

// Reset releases all merged content, leaving the mesh empty and
// uninitialized. Callers must not use the mesh until a merge succeeds.
func (m *MergedMesh) Reset() {
	m.Skeleton = nil
	m.Sockets = nil
	m.Materials = nil
	m.LODs = nil
	m.HasVertexColors = false
	m.Bounds = Bounds{}
	m.Mirror = MirrorInfo{}
	m.CPUAccessible = false
}
