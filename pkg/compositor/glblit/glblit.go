// Package glblit implements merge.Compositor on top of OpenGL 4.1 core,
// for hosts that already own a GL context. Copies are recorded by Copy and
// executed as framebuffer blits when Flush runs; every method must be called
// from the thread the GL context is current on.
package glblit

import (
	"fmt"
	"image"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/skelmerge/pkg/merge"
	"github.com/Faultbox/skelmerge/pkg/mesh"
)

// Compositor records blit commands against GL textures.
type Compositor struct {
	log      *zap.Logger
	pending  []command
	canvases []*canvas
}

type command struct {
	dst    *canvas
	src    *mesh.Texture
	region image.Rectangle
	done   *result
}

// New returns a GL-backed compositor. The caller's GL context must be
// current, now and for every later call.
func New(log *zap.Logger) *Compositor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Compositor{log: log}
}

// NewCanvas allocates a GL texture of the given size.
func (c *Compositor) NewCanvas(width, height int, format mesh.PixelFormat, srgb bool) (merge.Canvas, error) {
	glFormat, err := pixelFormat(format)
	if err != nil {
		return nil, err
	}
	internal := int32(gl.RGBA8)
	if srgb {
		internal = gl.SRGB8_ALPHA8
	}

	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(width), int32(height), 0,
		glFormat, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	cv := &canvas{
		id: tex,
		tex: &mesh.Texture{
			Width:  width,
			Height: height,
			Format: format,
			SRGB:   srgb,
		},
	}
	c.canvases = append(c.canvases, cv)
	return cv, nil
}

// Copy records one blit. The source pixels upload when Flush executes.
func (c *Compositor) Copy(dst merge.Canvas, src *mesh.Texture, region image.Rectangle) merge.Ticket {
	done := &result{}
	cv, ok := dst.(*canvas)
	if !ok {
		done.set(fmt.Errorf("canvas %T was not created by this compositor", dst))
		return done
	}
	c.pending = append(c.pending, command{dst: cv, src: src, region: region, done: done})
	return done
}

// Flush executes every recorded blit, reads the canvases back into their
// CPU-side textures, and waits for the GPU to finish.
func (c *Compositor) Flush() error {
	if len(c.pending) == 0 {
		return nil
	}

	var fbos [2]uint32
	gl.GenFramebuffers(2, &fbos[0])
	defer gl.DeleteFramebuffers(2, &fbos[0])

	for _, cmd := range c.pending {
		cmd.done.set(c.execute(fbos, cmd))
	}
	c.pending = c.pending[:0]

	for _, cv := range c.canvases {
		c.readBack(fbos[0], cv)
	}
	gl.Finish()
	return nil
}

// execute uploads the source texture and blits it into the destination
// region, scaling linearly when the sizes differ.
func (c *Compositor) execute(fbos [2]uint32, cmd command) error {
	if cmd.src == nil || len(cmd.src.Pixels) == 0 {
		return fmt.Errorf("empty source texture")
	}
	glFormat, err := pixelFormat(cmd.src.Format)
	if err != nil {
		return err
	}

	var src uint32
	gl.GenTextures(1, &src)
	defer gl.DeleteTextures(1, &src)
	gl.BindTexture(gl.TEXTURE_2D, src)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(cmd.src.Width), int32(cmd.src.Height), 0,
		glFormat, gl.UNSIGNED_BYTE, gl.Ptr(cmd.src.Pixels))
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, fbos[0])
	gl.FramebufferTexture2D(gl.READ_FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, src, 0)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, fbos[1])
	gl.FramebufferTexture2D(gl.DRAW_FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, cmd.dst.id, 0)

	gl.BlitFramebuffer(
		0, 0, int32(cmd.src.Width), int32(cmd.src.Height),
		int32(cmd.region.Min.X), int32(cmd.region.Min.Y),
		int32(cmd.region.Max.X), int32(cmd.region.Max.Y),
		gl.COLOR_BUFFER_BIT, gl.LINEAR)

	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, 0)
	return nil
}

// readBack mirrors a canvas texture into CPU memory so Texture() is usable.
func (c *Compositor) readBack(fbo uint32, cv *canvas) {
	size := cv.tex.Width * cv.tex.Height * cv.tex.Format.BytesPerPixel()
	if cap(cv.tex.Pixels) < size {
		cv.tex.Pixels = make([]byte, size)
	}
	cv.tex.Pixels = cv.tex.Pixels[:size]

	glFormat, err := pixelFormat(cv.tex.Format)
	if err != nil {
		c.log.Warn("canvas readback skipped", zap.Error(err))
		return
	}
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, fbo)
	gl.FramebufferTexture2D(gl.READ_FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, cv.id, 0)
	gl.ReadPixels(0, 0, int32(cv.tex.Width), int32(cv.tex.Height),
		glFormat, gl.UNSIGNED_BYTE, gl.Ptr(cv.tex.Pixels))
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
}

// Destroy releases every canvas texture.
func (c *Compositor) Destroy() {
	for _, cv := range c.canvases {
		gl.DeleteTextures(1, &cv.id)
	}
	c.canvases = nil
	c.pending = nil
}

func pixelFormat(f mesh.PixelFormat) (uint32, error) {
	switch f {
	case mesh.FormatRGBA8:
		return gl.RGBA, nil
	case mesh.FormatBGRA8:
		return gl.BGRA, nil
	}
	return 0, fmt.Errorf("unsupported pixel format %v", f)
}

type canvas struct {
	id  uint32
	tex *mesh.Texture
}

func (c *canvas) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.tex.Width, c.tex.Height)
}

func (c *canvas) Format() mesh.PixelFormat { return c.tex.Format }

func (c *canvas) Texture() *mesh.Texture { return c.tex }

// result is a resolved-at-flush ticket.
type result struct {
	resolved bool
	err      error
}

func (r *result) set(err error) {
	r.resolved = true
	r.err = err
}

// Wait reports the blit outcome. Blits resolve when Flush runs; waiting
// earlier reports an in-flight error.
func (r *result) Wait() error {
	if !r.resolved {
		return fmt.Errorf("blit not yet flushed")
	}
	return r.err
}
