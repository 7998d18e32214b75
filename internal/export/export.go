// Package export writes atlas canvases to disk for inspection.
package export

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/HugoSmits86/nativewebp"

	"github.com/Faultbox/skelmerge/pkg/mesh"
)

// Image formats supported by the dumper.
const (
	FormatPNG  = "png"
	FormatWebP = "webp"
)

// Dumper writes textures to timestamped image files in one directory. It
// implements merge.AtlasExporter.
type Dumper struct {
	outputDir string
	prefix    string
	format    string
}

// NewDumper creates a dumper writing the given image format (FormatPNG when
// empty).
func NewDumper(outputDir, prefix, format string) *Dumper {
	if format == "" {
		format = FormatPNG
	}
	return &Dumper{outputDir: outputDir, prefix: prefix, format: format}
}

// Export writes one channel's texture. The filename carries the prefix, the
// channel name, and a timestamp.
func (d *Dumper) Export(channel string, tex *mesh.Texture) (err error) {
	if tex == nil || len(tex.Pixels) == 0 {
		return fmt.Errorf("channel %q has no pixel data", channel)
	}
	img, err := toImage(tex)
	if err != nil {
		return fmt.Errorf("converting channel %q: %w", channel, err)
	}

	if d.outputDir != "" {
		if err := os.MkdirAll(d.outputDir, 0755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	name := fmt.Sprintf("%s_%s_%s.%s", d.prefix, channel, timestamp, d.format)
	path := filepath.Join(d.outputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	switch d.format {
	case FormatWebP:
		err = nativewebp.Encode(f, img, nil)
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

// toImage converts texture pixel data to an NRGBA image, swizzling BGRA
// channel order when needed.
func toImage(tex *mesh.Texture) (*image.NRGBA, error) {
	bpp := tex.Format.BytesPerPixel()
	if bpp != 4 {
		return nil, fmt.Errorf("unsupported pixel format %v", tex.Format)
	}
	if len(tex.Pixels) < tex.Width*tex.Height*bpp {
		return nil, fmt.Errorf("pixel data size mismatch: expected %d, got %d",
			tex.Width*tex.Height*bpp, len(tex.Pixels))
	}

	img := image.NewNRGBA(image.Rect(0, 0, tex.Width, tex.Height))
	copy(img.Pix, tex.Pixels[:tex.Width*tex.Height*4])
	if tex.Format == mesh.FormatBGRA8 {
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		}
	}
	return img, nil
}
