package mesh

// PixelFormat identifies the in-memory layout of texture pixel data.
type PixelFormat int

const (
	FormatRGBA8 PixelFormat = iota // 4 bytes per pixel, R G B A order
	FormatBGRA8                    // 4 bytes per pixel, B G R A order
)

// BytesPerPixel returns the pixel stride of the format.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGBA8, FormatBGRA8:
		return 4
	}
	return 0
}

// String returns a human-readable format name.
func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatBGRA8:
		return "BGRA8"
	}
	return "unknown"
}

// Texture holds uncompressed pixel data. SRGB marks color data needing gamma
// treatment; linear data (normal maps) has it unset.
type Texture struct {
	Width  int
	Height int
	Format PixelFormat
	SRGB   bool
	Pixels []byte
}

// Material references one texture per named channel, plus per-UV-channel
// density bookkeeping used by streaming heuristics.
type Material struct {
	Name        string
	Textures    map[string]*Texture
	UVDensities [MaxTexCoords]float32
}

// Texture returns the texture bound to the named channel, or nil.
func (m *Material) Texture(channel string) *Texture {
	if m.Textures == nil {
		return nil
	}
	return m.Textures[channel]
}

// SetTexture binds a texture to the named channel.
func (m *Material) SetTexture(channel string, tex *Texture) {
	if m.Textures == nil {
		m.Textures = make(map[string]*Texture)
	}
	m.Textures[channel] = tex
}
