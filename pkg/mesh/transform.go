package mesh

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform is a translation/rotation/scale triple, applied scale first,
// then rotation, then translation.
type Transform struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3
}

// IdentityTransform returns a transform that leaves points unchanged.
func IdentityTransform() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Mat4 returns the transform as a 4x4 matrix (T * R * S).
func (t Transform) Mat4() mgl32.Mat4 {
	m := mgl32.Translate3D(t.Translation.X(), t.Translation.Y(), t.Translation.Z())
	m = m.Mul4(t.Rotation.Mat4())
	return m.Mul4(mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z()))
}

// TransformPoint applies the transform to a point.
func (t Transform) TransformPoint(p mgl32.Vec3) mgl32.Vec3 {
	return mgl32.TransformCoordinate(p, t.Mat4())
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Union returns the smallest bounds enclosing both b and other.
func (b Bounds) Union(other Bounds) Bounds {
	out := b
	for i := 0; i < 3; i++ {
		if other.Min[i] < out.Min[i] {
			out.Min[i] = other.Min[i]
		}
		if other.Max[i] > out.Max[i] {
			out.Max[i] = other.Max[i]
		}
	}
	return out
}

// MirrorAxis identifies a mesh mirroring axis.
type MirrorAxis int

const (
	MirrorAxisNone MirrorAxis = iota
	MirrorAxisX
	MirrorAxisY
	MirrorAxisZ
)

// MirrorInfo holds mesh mirroring metadata, carried through a merge verbatim
// from the first source mesh.
type MirrorInfo struct {
	Axis     MirrorAxis
	FlipAxis MirrorAxis
}
