package merge

import (
	"image"

	"github.com/Faultbox/skelmerge/pkg/mesh"
)

// Canvas is a destination texture under composition. Its Texture is only
// sample-ready after the owning Compositor has been flushed.
type Canvas interface {
	Bounds() image.Rectangle
	Format() mesh.PixelFormat
	Texture() *mesh.Texture
}

// Ticket is the completion handle of one submitted pixel copy.
type Ticket interface {
	// Wait blocks until the copy has executed and reports its outcome.
	Wait() error
}

// Compositor abstracts the asynchronously executing command stream that
// performs pixel copies into atlas canvases. Copies submitted through Copy
// may execute in any order; the merge orchestrator waits on every ticket
// once, before the canvases are treated as usable.
type Compositor interface {
	// NewCanvas allocates a destination texture of the given size. srgb
	// marks color data; linear channels (normal maps) pass false.
	NewCanvas(width, height int, format mesh.PixelFormat, srgb bool) (Canvas, error)

	// Copy schedules a copy of the source texture's full pixel data into
	// the destination rectangle, scaling when the sizes differ.
	Copy(dst Canvas, src *mesh.Texture, region image.Rectangle) Ticket

	// Flush blocks until every scheduled copy has executed.
	Flush() error
}

// TextureChannel describes one tracked material texture channel and the
// atlas canvas it merges into.
type TextureChannel struct {
	// Name is the material parameter the channel reads from and the
	// merged material binds its canvas to.
	Name string `yaml:"name"`
	// Width and Height fix the destination canvas size.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// Linear marks normal/data channels that bypass gamma treatment.
	Linear bool `yaml:"linear"`
}

// DefaultChannels tracks a base-color channel and a normal-map channel on
// 1024x1024 canvases.
func DefaultChannels() []TextureChannel {
	return []TextureChannel{
		{Name: "MainTexture", Width: 1024, Height: 1024},
		{Name: "NormalMap", Width: 1024, Height: 1024, Linear: true},
	}
}
