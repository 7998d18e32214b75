package merge

import (
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"
	deepcopy "github.com/tiendc/go-deepcopy"
	"go.uber.org/zap"

	"github.com/Faultbox/skelmerge/pkg/atlas"
	"github.com/Faultbox/skelmerge/pkg/mesh"
)

// UVTransform maps a source UV in [0,1]^2 into its sub-rectangle of a merged
// atlas: uv' = uv*Scale + Offset.
type UVTransform struct {
	Offset mgl32.Vec2
	Scale  mgl32.Vec2
}

// IdentityUV returns the transform that leaves UVs unchanged.
func IdentityUV() UVTransform {
	return UVTransform{Scale: mgl32.Vec2{1, 1}}
}

// Apply transforms one UV pair.
func (t UVTransform) Apply(uv mgl32.Vec2) mgl32.Vec2 {
	return mgl32.Vec2{
		uv.X()*t.Scale.X() + t.Offset.X(),
		uv.Y()*t.Scale.Y() + t.Offset.Y(),
	}
}

// materialResult is the MaterialMerger output consumed by the rest of the
// merge: the single shared material, the per-(mesh, material slot) UV
// transforms, the atlas canvases keyed by channel name, and the tickets of
// every pixel copy still in flight.
type materialResult struct {
	material     *mesh.Material
	uvTransforms [][]UVTransform
	canvases     map[string]Canvas
	tickets      []Ticket
}

// identityMaterials builds a materialResult that performs no atlas
// composition: a copy of the base material and identity UV transforms.
func identityMaterials(parts []Part, base *mesh.Material) (*materialResult, error) {
	merged, err := cloneMaterial(base)
	if err != nil {
		return nil, err
	}
	res := &materialResult{material: merged}
	for _, p := range parts {
		var uvs []UVTransform
		if p.Mesh != nil {
			uvs = make([]UVTransform, len(p.Mesh.Materials))
			for i := range uvs {
				uvs[i] = IdentityUV()
			}
		}
		res.uvTransforms = append(res.uvTransforms, uvs)
	}
	return res, nil
}

// mergeMaterials lays every source material's tracked textures out into
// shared atlas canvases, schedules the pixel copies, and builds the merged
// material plus per-(mesh, material slot) UV transforms.
//
// One packing, computed against the first tracked channel, is reused for
// every channel; each material must therefore bind a texture to the first
// channel, and all of a material's channel textures must be assignable to
// the same relative box.
func mergeMaterials(parts []Part, base *mesh.Material, channels []TextureChannel,
	comp Compositor, maxRetries int, log *zap.Logger) (*materialResult, error) {

	if comp == nil || len(channels) == 0 {
		return identityMaterials(parts, base)
	}

	// Flatten (mesh, material slot) pairs, weighting each by its first
	// tracked channel's texture size.
	type slotKey struct{ mesh, slot int }
	var materials []*mesh.Material
	slotIndex := make(map[slotKey]int)
	var sizes []mgl32.Vec2
	for meshIdx, p := range parts {
		if p.Mesh == nil {
			continue
		}
		for slot, mat := range p.Mesh.Materials {
			primary := mat.Texture(channels[0].Name)
			if primary == nil {
				panic(fmt.Sprintf("merge: material %q of mesh %q has no %q texture",
					mat.Name, p.Mesh.Name, channels[0].Name))
			}
			slotIndex[slotKey{meshIdx, slot}] = len(materials)
			materials = append(materials, mat)
			sizes = append(sizes, mgl32.Vec2{float32(primary.Width), float32(primary.Height)})
		}
	}

	packCanvas := mgl32.Vec2{float32(channels[0].Width), float32(channels[0].Height)}
	boxes, err := atlas.Pack(packCanvas, sizes, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("packing %d textures into %gx%g canvas: %w",
			len(sizes), packCanvas.X(), packCanvas.Y(), err)
	}
	if len(boxes) != len(materials) {
		// Degenerate canvas or no sources: channel merging is skipped.
		log.Warn("atlas layout skipped", zap.Int("textures", len(materials)))
		return identityMaterials(parts, base)
	}

	merged, err := cloneMaterial(base)
	if err != nil {
		return nil, err
	}
	res := &materialResult{
		material: merged,
		canvases: make(map[string]Canvas, len(channels)),
	}

	if len(boxes) > 0 {
		for _, ch := range channels {
			if err := res.compositeChannel(ch, materials, boxes, packCanvas, comp, log); err != nil {
				return nil, err
			}
		}
	}

	// UV transforms map each source slot into its normalized box.
	for meshIdx, p := range parts {
		var uvs []UVTransform
		if p.Mesh != nil {
			uvs = make([]UVTransform, len(p.Mesh.Materials))
			for slot := range p.Mesh.Materials {
				box := boxes[slotIndex[slotKey{meshIdx, slot}]]
				uvs[slot] = UVTransform{
					Offset: mgl32.Vec2{box.Min.X() / packCanvas.X(), box.Min.Y() / packCanvas.Y()},
					Scale:  mgl32.Vec2{box.Size.X() / packCanvas.X(), box.Size.Y() / packCanvas.Y()},
				}
			}
		}
		res.uvTransforms = append(res.uvTransforms, uvs)
	}
	return res, nil
}

// compositeChannel builds one channel's canvas and schedules a copy per
// matching source texture. Sources without a texture for the channel, or
// with a pixel format differing from the canvas, are skipped.
func (r *materialResult) compositeChannel(ch TextureChannel, materials []*mesh.Material,
	boxes []atlas.Box, packCanvas mgl32.Vec2, comp Compositor, log *zap.Logger) error {

	var format mesh.PixelFormat
	found := false
	for _, mat := range materials {
		if tex := mat.Texture(ch.Name); tex != nil {
			format = tex.Format
			found = true
			break
		}
	}
	if !found {
		log.Debug("no source textures for channel, skipping", zap.String("channel", ch.Name))
		return nil
	}

	canvas, err := comp.NewCanvas(ch.Width, ch.Height, format, !ch.Linear)
	if err != nil {
		return fmt.Errorf("creating %dx%d canvas for channel %q: %w", ch.Width, ch.Height, ch.Name, err)
	}

	// Boxes were computed against the first channel's canvas; rescale when
	// this channel's canvas differs.
	sx := float32(ch.Width) / packCanvas.X()
	sy := float32(ch.Height) / packCanvas.Y()

	for i, mat := range materials {
		tex := mat.Texture(ch.Name)
		if tex == nil {
			continue
		}
		if tex.Format != format {
			log.Warn("texture format mismatch, skipping copy",
				zap.String("channel", ch.Name),
				zap.String("material", mat.Name),
				zap.Stringer("have", tex.Format),
				zap.Stringer("want", format))
			continue
		}
		box := boxes[i]
		region := image.Rect(
			int(box.Min.X()*sx), int(box.Min.Y()*sy),
			int(box.Max().X()*sx), int(box.Max().Y()*sy),
		)
		r.tickets = append(r.tickets, comp.Copy(canvas, tex, region))
	}

	r.canvases[ch.Name] = canvas
	r.material.SetTexture(ch.Name, canvas.Texture())
	return nil
}

// cloneMaterial deep-copies the base material so the merge never aliases
// caller-owned texture maps.
func cloneMaterial(base *mesh.Material) (*mesh.Material, error) {
	merged := &mesh.Material{}
	if base != nil {
		if err := deepcopy.Copy(merged, base); err != nil {
			return nil, fmt.Errorf("copying base material: %w", err)
		}
	}
	return merged, nil
}
