package compositor

import (
	"image"
	"testing"

	"github.com/Faultbox/skelmerge/pkg/mesh"
)

func solidTexture(w, h int, r, g, b, a byte) *mesh.Texture {
	tex := &mesh.Texture{
		Width:  w,
		Height: h,
		Format: mesh.FormatRGBA8,
		Pixels: make([]byte, w*h*4),
	}
	for i := 0; i < len(tex.Pixels); i += 4 {
		tex.Pixels[i+0] = r
		tex.Pixels[i+1] = g
		tex.Pixels[i+2] = b
		tex.Pixels[i+3] = a
	}
	return tex
}

func pixelAt(tex *mesh.Texture, x, y int) [4]byte {
	off := (y*tex.Width + x) * 4
	return [4]byte{tex.Pixels[off], tex.Pixels[off+1], tex.Pixels[off+2], tex.Pixels[off+3]}
}

func TestSoftwareCopy(t *testing.T) {
	comp := NewSoftware(nil)
	defer comp.Close()

	canvas, err := comp.NewCanvas(8, 8, mesh.FormatRGBA8, false)
	if err != nil {
		t.Fatalf("NewCanvas() error = %v", err)
	}

	src := solidTexture(4, 4, 255, 0, 0, 255)
	ticket := comp.Copy(canvas, src, image.Rect(2, 2, 6, 6))
	if err := comp.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := ticket.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	out := canvas.Texture()
	if got := pixelAt(out, 3, 3); got != [4]byte{255, 0, 0, 255} {
		t.Errorf("inside region = %v, want red", got)
	}
	if got := pixelAt(out, 0, 0); got != [4]byte{} {
		t.Errorf("outside region = %v, want untouched zero", got)
	}
	if got := pixelAt(out, 7, 7); got != [4]byte{} {
		t.Errorf("outside region = %v, want untouched zero", got)
	}
}

func TestSoftwareCopyScales(t *testing.T) {
	comp := NewSoftware(nil)
	defer comp.Close()

	canvas, err := comp.NewCanvas(8, 8, mesh.FormatRGBA8, false)
	if err != nil {
		t.Fatalf("NewCanvas() error = %v", err)
	}

	// Source is larger than the region: the blit must downscale into it
	// rather than spill over.
	src := solidTexture(16, 16, 0, 255, 0, 255)
	ticket := comp.Copy(canvas, src, image.Rect(0, 0, 4, 4))
	if err := comp.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := ticket.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	out := canvas.Texture()
	if got := pixelAt(out, 1, 1); got != [4]byte{0, 255, 0, 255} {
		t.Errorf("scaled pixel = %v, want green", got)
	}
	if got := pixelAt(out, 5, 5); got != [4]byte{} {
		t.Errorf("outside region = %v, want untouched zero", got)
	}
}

func TestSoftwareCopyOrder(t *testing.T) {
	comp := NewSoftware(nil)
	defer comp.Close()

	canvas, err := comp.NewCanvas(4, 4, mesh.FormatRGBA8, false)
	if err != nil {
		t.Fatalf("NewCanvas() error = %v", err)
	}

	// Two copies into the same region: the second submission must win.
	first := comp.Copy(canvas, solidTexture(4, 4, 255, 0, 0, 255), image.Rect(0, 0, 4, 4))
	second := comp.Copy(canvas, solidTexture(4, 4, 0, 0, 255, 255), image.Rect(0, 0, 4, 4))
	if err := comp.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	for _, tk := range []interface{ Wait() error }{first, second} {
		if err := tk.Wait(); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	if got := pixelAt(canvas.Texture(), 2, 2); got != [4]byte{0, 0, 255, 255} {
		t.Errorf("pixel = %v, want blue from second copy", got)
	}
}

func TestSoftwareFormatMismatch(t *testing.T) {
	comp := NewSoftware(nil)
	defer comp.Close()

	canvas, err := comp.NewCanvas(4, 4, mesh.FormatRGBA8, false)
	if err != nil {
		t.Fatalf("NewCanvas() error = %v", err)
	}

	src := solidTexture(4, 4, 1, 2, 3, 4)
	src.Format = mesh.FormatBGRA8
	ticket := comp.Copy(canvas, src, image.Rect(0, 0, 4, 4))
	if err := comp.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := ticket.Wait(); err == nil {
		t.Error("Wait() = nil, want format mismatch error")
	}
}

func TestSoftwareInvalidCanvas(t *testing.T) {
	comp := NewSoftware(nil)
	defer comp.Close()

	if _, err := comp.NewCanvas(0, 64, mesh.FormatRGBA8, false); err == nil {
		t.Error("NewCanvas(0, 64) = nil error, want failure")
	}
	if _, err := comp.NewCanvas(64, -1, mesh.FormatRGBA8, false); err == nil {
		t.Error("NewCanvas(64, -1) = nil error, want failure")
	}
}
