// Package texture loads texture files into the mesh data model.
package texture

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"

	"github.com/Faultbox/skelmerge/pkg/mesh"
)

// Load reads an image file into an RGBA8 texture. The decoder is selected by
// file extension: .tga decodes as TGA, everything else as PNG. srgb marks
// color data; pass false for normal maps and other linear data.
func Load(path string, srgb bool) (*mesh.Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening texture: %w", err)
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tga":
		img, err = tga.Decode(f)
	default:
		img, err = png.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return FromImage(img, srgb), nil
}

// FromImage converts any image to an RGBA8 texture.
func FromImage(img image.Image, srgb bool) *mesh.Texture {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return &mesh.Texture{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: mesh.FormatRGBA8,
		SRGB:   srgb,
		Pixels: rgba.Pix,
	}
}
