// Package mesh defines the skinned mesh data model shared by the merge
// engine: skeletons, sockets, materials, LODs and their buffers.
package mesh

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Skeleton validation errors.
var (
	ErrEmptySkeleton   = errors.New("skeleton has no bones")
	ErrBadParentIndex  = errors.New("bone parent index must be less than bone index")
	ErrDuplicateBone   = errors.New("duplicate bone name")
	ErrRootHasParent   = errors.New("root bone must not have a parent")
	ErrMissingRootBone = errors.New("non-root bone must have a parent")
)

// NoBone marks the absence of a bone index (unparented root, failed lookup).
const NoBone = -1

// Bone is a single joint in a skeleton hierarchy. Bind is the local bind-pose
// transform relative to the parent bone.
type Bone struct {
	Name   string
	Parent int
	Bind   Transform
}

// Skeleton is an ordered bone list. Bone indices are topologically ordered:
// every bone's parent index is strictly less than its own index, and the root
// sits at index 0 with Parent == NoBone.
type Skeleton struct {
	Bones []Bone
}

// Validate checks the skeleton's structural invariants.
func (s *Skeleton) Validate() error {
	if len(s.Bones) == 0 {
		return ErrEmptySkeleton
	}
	seen := make(map[string]struct{}, len(s.Bones))
	for i, b := range s.Bones {
		if _, ok := seen[b.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateBone, b.Name)
		}
		seen[b.Name] = struct{}{}
		switch {
		case i == 0:
			if b.Parent != NoBone {
				return ErrRootHasParent
			}
		case b.Parent == NoBone:
			return fmt.Errorf("%w: bone %d %q", ErrMissingRootBone, i, b.Name)
		case b.Parent >= i || b.Parent < 0:
			return fmt.Errorf("%w: bone %d %q has parent %d", ErrBadParentIndex, i, b.Name, b.Parent)
		}
	}
	return nil
}

// FindBone returns the index of the bone with the given name, or NoBone.
func (s *Skeleton) FindBone(name string) int {
	for i := range s.Bones {
		if s.Bones[i].Name == name {
			return i
		}
	}
	return NoBone
}

// IsDescendant reports whether bone is a strict descendant of ancestor.
func (s *Skeleton) IsDescendant(bone, ancestor int) bool {
	if bone <= 0 || bone >= len(s.Bones) {
		return false
	}
	for p := s.Bones[bone].Parent; p != NoBone; p = s.Bones[p].Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// ComponentSpace returns per-bone component-space matrices, composing each
// local bind pose onto its parent's accumulated transform.
func (s *Skeleton) ComponentSpace() []mgl32.Mat4 {
	out := make([]mgl32.Mat4, len(s.Bones))
	for i, b := range s.Bones {
		local := b.Bind.Mat4()
		if b.Parent == NoBone {
			out[i] = local
		} else {
			out[i] = out[b.Parent].Mul4(local)
		}
	}
	return out
}

// BoneRemapTable maps source-skeleton bone indices to merged-skeleton bone
// indices. It is total: every source bone has an entry.
type BoneRemapTable []int

// Remap translates a bonemap of source indices into merged indices,
// preserving order.
func (t BoneRemapTable) Remap(bonemap []int) []int {
	out := make([]int, len(bonemap))
	for i, b := range bonemap {
		out[i] = t[b]
	}
	return out
}

// Socket is a named attachment point: a transform relative to its owning
// bone, usable for parenting other objects.
type Socket struct {
	Name     string
	Bone     string
	Relative Transform
}
