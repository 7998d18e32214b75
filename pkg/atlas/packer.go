// Package atlas implements rectangle bin packing for texture atlas layout.
package atlas

import (
	"errors"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrOverflow is returned when the sources cannot be packed into the canvas
// within the retry limit.
var ErrOverflow = errors.New("atlas packing exceeded retry limit")

// DefaultMaxRetries bounds the shrink-and-retry loop of Pack.
const DefaultMaxRetries = 256

// Each failed pass scales every source's target size by this factor before
// packing restarts from an empty canvas.
const shrinkFactor = 0.99

// Box is an axis-aligned placement rectangle inside a canvas.
type Box struct {
	Min  mgl32.Vec2
	Size mgl32.Vec2
}

// Max returns the box's maximum corner.
func (b Box) Max() mgl32.Vec2 {
	return b.Min.Add(b.Size)
}

// Area returns the box's surface area.
func (b Box) Area() float32 {
	return b.Size.X() * b.Size.Y()
}

// Overlaps reports whether two boxes share interior area.
func (b Box) Overlaps(o Box) bool {
	return b.Min.X() < o.Max().X() && o.Min.X() < b.Max().X() &&
		b.Min.Y() < o.Max().Y() && o.Min.Y() < b.Max().Y()
}

// Pack lays the source rectangles out in a canvas of the given size, one
// non-overlapping box per source index. Sources are placed largest width
// first into the tightest-fitting free rectangle; when a pass cannot place
// every source, all target sizes shrink by a fixed factor and packing
// restarts, up to maxRetries passes (DefaultMaxRetries when <= 0).
//
// An empty source list or a degenerate canvas yields no boxes; callers must
// treat that channel as skipped.
func Pack(canvas mgl32.Vec2, sizes []mgl32.Vec2, maxRetries int) ([]Box, error) {
	if len(sizes) == 0 || canvas.X() <= 0 || canvas.Y() <= 0 {
		return nil, nil
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	order := make([]weighted, len(sizes))
	for i, sz := range sizes {
		order[i] = weighted{index: i, size: sz, weight: sz.X() / canvas.X()}
	}
	// Insert order is by weight, high to low. Equal weights keep their
	// source order.
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].weight > order[j].weight
	})

	out := make([]Box, len(sizes))
	for attempt := 0; attempt < maxRetries; attempt++ {
		if packOnce(canvas, order, out) {
			return out, nil
		}
		for i := range order {
			order[i].size = order[i].size.Mul(shrinkFactor)
		}
	}
	return nil, ErrOverflow
}

type weighted struct {
	index  int
	size   mgl32.Vec2
	weight float32
}

// packOnce runs a single packing pass over an empty canvas, writing one box
// per source into out. It returns false as soon as any source fails to fit.
func packOnce(canvas mgl32.Vec2, order []weighted, out []Box) bool {
	free := []Box{{Size: canvas}}

	for _, tex := range order {
		best := -1
		leftover := float32(math.MaxFloat32)
		for i, area := range free {
			if area.Size.X() < tex.size.X() || area.Size.Y() < tex.size.Y() {
				continue
			}
			if rem := area.Area() - tex.size.X()*tex.size.Y(); rem < leftover {
				best = i
				leftover = rem
			}
		}
		if best == -1 {
			return false
		}

		area := free[best]
		out[tex.index] = Box{Min: area.Min, Size: tex.size}

		// Split the consumed rectangle into a bottom remainder under the
		// placed box and a right remainder spanning the full height.
		horizontal := Box{
			Min:  mgl32.Vec2{area.Min.X(), area.Min.Y() + tex.size.Y()},
			Size: mgl32.Vec2{tex.size.X(), area.Size.Y() - tex.size.Y()},
		}
		vertical := Box{
			Min:  mgl32.Vec2{area.Min.X() + tex.size.X(), area.Min.Y()},
			Size: mgl32.Vec2{area.Size.X() - tex.size.X(), area.Size.Y()},
		}

		switch {
		case horizontal.Area() > 0 && vertical.Area() > 0:
			free[best] = horizontal
			free = append(free, vertical)
		case vertical.Area() > 0:
			free[best] = vertical
		case horizontal.Area() > 0:
			free[best] = horizontal
		default:
			free[best] = free[len(free)-1]
			free = free[:len(free)-1]
		}
	}
	return true
}
