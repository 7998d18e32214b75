// Package compositor provides merge.Compositor implementations: a software
// backend that blits on the CPU, and an OpenGL backend in the glblit
// subpackage.
package compositor

import (
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/Faultbox/skelmerge/pkg/merge"
	"github.com/Faultbox/skelmerge/pkg/mesh"
)

// Software executes pixel copies on a single worker goroutine, emulating an
// asynchronously-executing command stream. Copies scheduled with Copy run in
// submission order; Flush blocks until the stream has drained.
type Software struct {
	jobs chan softwareJob
	wg   sync.WaitGroup
	log  *zap.Logger

	closeOnce sync.Once
}

type softwareJob struct {
	dst    *softwareCanvas
	src    *mesh.Texture
	region image.Rectangle
	done   chan error
}

// NewSoftware starts a software compositor. Callers must Close it when done.
func NewSoftware(log *zap.Logger) *Software {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Software{
		jobs: make(chan softwareJob, 64),
		log:  log,
	}
	go s.run()
	return s
}

func (s *Software) run() {
	for job := range s.jobs {
		job.done <- s.blit(job.dst, job.src, job.region)
		s.wg.Done()
	}
}

// NewCanvas allocates a zero-filled destination texture.
func (s *Software) NewCanvas(width, height int, format mesh.PixelFormat, srgb bool) (merge.Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", width, height)
	}
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("unsupported canvas format %v", format)
	}
	return &softwareCanvas{tex: &mesh.Texture{
		Width:  width,
		Height: height,
		Format: format,
		SRGB:   srgb,
		Pixels: make([]byte, width*height*bpp),
	}}, nil
}

// Copy schedules one blit and returns its completion handle.
func (s *Software) Copy(dst merge.Canvas, src *mesh.Texture, region image.Rectangle) merge.Ticket {
	done := make(chan error, 1)
	sc, ok := dst.(*softwareCanvas)
	if !ok {
		done <- fmt.Errorf("canvas %T was not created by this compositor", dst)
		return &ticket{done: done}
	}
	s.wg.Add(1)
	s.jobs <- softwareJob{dst: sc, src: src, region: region, done: done}
	return &ticket{done: done}
}

// Flush blocks until every scheduled copy has executed.
func (s *Software) Flush() error {
	s.wg.Wait()
	return nil
}

// Close drains and stops the worker. The compositor is unusable afterwards.
func (s *Software) Close() error {
	err := s.Flush()
	s.closeOnce.Do(func() { close(s.jobs) })
	return err
}

// blit copies the source's full pixel data into the destination region,
// scaling when the region size differs from the source size.
func (s *Software) blit(dst *softwareCanvas, src *mesh.Texture, region image.Rectangle) error {
	if src == nil || len(src.Pixels) == 0 {
		return fmt.Errorf("empty source texture")
	}
	if src.Format != dst.tex.Format {
		return fmt.Errorf("source format %v does not match canvas format %v", src.Format, dst.tex.Format)
	}

	srcImg := wrapRGBA(src.Pixels, src.Width, src.Height)
	dstImg := wrapRGBA(dst.tex.Pixels, dst.tex.Width, dst.tex.Height)

	if region.Dx() == src.Width && region.Dy() == src.Height {
		draw.Copy(dstImg, region.Min, srcImg, srcImg.Bounds(), draw.Src, nil)
	} else {
		draw.ApproxBiLinear.Scale(dstImg, region, srcImg, srcImg.Bounds(), draw.Src, nil)
	}
	return nil
}

// wrapRGBA views 4-byte-per-pixel texture data as an image without copying.
// BGRA data is viewed with swapped channels; since both endpoints of a blit
// share one format, the swap cancels out.
func wrapRGBA(pix []byte, w, h int) *image.RGBA {
	return &image.RGBA{Pix: pix, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
}

type softwareCanvas struct {
	tex *mesh.Texture
}

func (c *softwareCanvas) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.tex.Width, c.tex.Height)
}

func (c *softwareCanvas) Format() mesh.PixelFormat { return c.tex.Format }

// Texture returns the canvas texture; sample-ready only after Flush.
func (c *softwareCanvas) Texture() *mesh.Texture { return c.tex }

// ticket is the completion handle of one scheduled copy.
type ticket struct {
	once sync.Once
	done chan error
	err  error
}

func (t *ticket) Wait() error {
	t.once.Do(func() { t.err = <-t.done })
	return t.err
}
