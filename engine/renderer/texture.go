package renderer

import (
	"fmt"
	"image"
	"image/color"
	"math/bits"

	"github.com/chewxy/math32"
	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"golang.org/x/image/draw"
)

type TextureFormat uint8

const (
	TextureFormatRGB8 TextureFormat = iota
	TextureFormatSRGB8
	TextureFormatRGBA8
	TextureFormatSRGB8_A8
)

func (f TextureFormat) IsSRGB() bool {
	return f == TextureFormatSRGB8 || f == TextureFormatSRGB8_A8
}

func (f TextureFormat) hasAlpha() bool {
	return f == TextureFormatRGBA8 || f == TextureFormatSRGB8_A8
}

// PixelDataFormat is the channel layout of pixels handed to SetImage.
type PixelDataFormat uint8

const (
	PixelDataFormatR PixelDataFormat = iota
	PixelDataFormatRG
	PixelDataFormatRGB
	PixelDataFormatRGBA
)

func (f PixelDataFormat) channels() int {
	return int(f) + 1
}

type PixelDataType uint8

const (
	PixelDataTypeUByte PixelDataType = iota
)

/**
 * @brief PixelBufferDescriptor wraps client pixel data for an upload. Callback,
 * when set, is invoked with Data once the texture no longer needs it.
 */
type PixelBufferDescriptor struct {
	Data     []byte
	Format   PixelDataFormat
	Type     PixelDataType
	Callback func(data []byte)
}

func NewPixelBufferDescriptor(data []byte, format PixelDataFormat, typ PixelDataType, callback func([]byte)) PixelBufferDescriptor {
	return PixelBufferDescriptor{Data: data, Format: format, Type: typ, Callback: callback}
}

type TextureBuilder struct {
	width  uint32
	height uint32
	levels uint8
	format TextureFormat
}

func NewTextureBuilder() *TextureBuilder {
	return &TextureBuilder{levels: 1, format: TextureFormatRGBA8}
}

func (b *TextureBuilder) Width(w uint32) *TextureBuilder {
	b.width = w
	return b
}

func (b *TextureBuilder) Height(h uint32) *TextureBuilder {
	b.height = h
	return b
}

// Levels sets the number of mip levels. Values past the full chain are clamped,
// so 0xff always requests every level down to 1x1.
func (b *TextureBuilder) Levels(levels uint8) *TextureBuilder {
	b.levels = levels
	return b
}

func (b *TextureBuilder) Format(f TextureFormat) *TextureBuilder {
	b.format = f
	return b
}

// MaxLevelCount returns the length of the full mip chain of a width x height image.
func MaxLevelCount(width, height uint32) int {
	return bits.Len32(max(width, height))
}

func (b *TextureBuilder) Build(engine *Engine) (*Texture, error) {
	if b.width == 0 || b.height == 0 {
		return nil, fmt.Errorf("%w: texture of %dx%d", core.ErrInvalidSize, b.width, b.height)
	}
	count := math.Clamp(int(b.levels), 1, MaxLevelCount(b.width, b.height))
	t := &Texture{
		engine: engine,
		width:  b.width,
		height: b.height,
		format: b.format,
		levels: make([]*image.NRGBA, count),
	}
	for l := range t.levels {
		w, h := t.GetWidth(l), t.GetHeight(l)
		t.levels[l] = image.NewNRGBA(image.Rect(0, 0, int(w), int(h)))
	}
	engine.track(t)
	return t, nil
}

/**
 * @brief Texture is a 2D image with an optional mip chain. Texels are stored
 * as 8-bit RGBA; sRGB formats are decoded to linear when sampled.
 */
type Texture struct {
	engine *Engine
	width  uint32
	height uint32
	format TextureFormat
	levels []*image.NRGBA
}

func (t *Texture) GetWidth(level int) uint32 {
	return max(t.width>>uint(level), 1)
}

func (t *Texture) GetHeight(level int) uint32 {
	return max(t.height>>uint(level), 1)
}

func (t *Texture) GetLevels() int {
	return len(t.levels)
}

func (t *Texture) GetFormat() TextureFormat {
	return t.format
}

// Level returns the pixels of a mip level.
func (t *Texture) Level(level int) *image.NRGBA {
	if level < 0 || level >= len(t.levels) {
		return nil
	}
	return t.levels[level]
}

// SetImage uploads the pixels of one mip level.
func (t *Texture) SetImage(engine *Engine, level int, buffer PixelBufferDescriptor) error {
	if level < 0 || level >= len(t.levels) {
		return fmt.Errorf("%w: level %d of a %d level texture", core.ErrInvalidSize, level, len(t.levels))
	}
	if buffer.Type != PixelDataTypeUByte {
		return fmt.Errorf("%w: pixel type %d", core.ErrUnsupportedFormat, buffer.Type)
	}
	w, h := int(t.GetWidth(level)), int(t.GetHeight(level))
	n := buffer.Format.channels()
	if len(buffer.Data) < w*h*n {
		return fmt.Errorf("%w: level %d needs %d bytes, got %d", core.ErrInvalidSize, level, w*h*n, len(buffer.Data))
	}

	dst := t.levels[level]
	opaque := !t.format.hasAlpha()
	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		src := buffer.Data[y*w*n : (y+1)*w*n]
		for x := 0; x < w; x++ {
			p := src[x*n : x*n+n]
			o := row[x*4 : x*4+4]
			o[0], o[1], o[2], o[3] = 0, 0, 0, 255
			copy(o[:min(n, 4)], p)
			if opaque {
				o[3] = 255
			}
		}
	}
	if buffer.Callback != nil {
		buffer.Callback(buffer.Data)
	}
	return nil
}

/**
 * @brief GenerateMipmaps fills every level below the first by down-sampling
 * the level above it. sRGB textures are filtered in linear space.
 */
func (t *Texture) GenerateMipmaps(engine *Engine) error {
	if len(t.levels) < 2 {
		return nil
	}
	srgb := t.format.IsSRGB()

	prev := toLinear64(t.levels[0], srgb)
	for l := 1; l < len(t.levels); l++ {
		next := image.NewRGBA64(t.levels[l].Rect)
		draw.BiLinear.Scale(next, next.Rect, prev, prev.Rect, draw.Src, nil)
		fromLinear64(t.levels[l], next, srgb)
		prev = next
	}
	return nil
}

func toLinear64(src *image.NRGBA, srgb bool) *image.RGBA64 {
	dst := image.NewRGBA64(src.Rect)
	for y := src.Rect.Min.Y; y < src.Rect.Max.Y; y++ {
		for x := src.Rect.Min.X; x < src.Rect.Max.X; x++ {
			c := src.NRGBAAt(x, y)
			a := uint32(c.A) * 0x101
			conv := func(v uint8) uint16 {
				f := float32(v) / 255
				if srgb {
					f = srgbToLinearLUT[v]
				}
				// premultiplied, as image.RGBA64 expects
				return uint16(f*float32(a) + 0.5)
			}
			dst.SetRGBA64(x, y, color.RGBA64{R: conv(c.R), G: conv(c.G), B: conv(c.B), A: uint16(a)})
		}
	}
	return dst
}

func fromLinear64(dst *image.NRGBA, src *image.RGBA64, srgb bool) {
	for y := src.Rect.Min.Y; y < src.Rect.Max.Y; y++ {
		for x := src.Rect.Min.X; x < src.Rect.Max.X; x++ {
			c := src.RGBA64At(x, y)
			if c.A == 0 {
				dst.SetNRGBA(x, y, color.NRGBA{})
				continue
			}
			a := float32(c.A)
			conv := func(v uint16) uint8 {
				f := math.Saturate(float32(v) / a)
				if srgb {
					f = math.LinearToSRGB(f)
				}
				return uint8(f*255 + 0.5)
			}
			dst.SetNRGBA(x, y, color.NRGBA{R: conv(c.R), G: conv(c.G), B: conv(c.B), A: uint8(uint32(c.A) >> 8)})
		}
	}
}

var srgbToLinearLUT = func() (lut [256]float32) {
	for i := range lut {
		lut[i] = math.SRGBToLinear(float32(i) / 255)
	}
	return lut
}()

func (t *Texture) texel(level, x, y int) math.Vec4 {
	img := t.levels[level]
	o := y*img.Stride + x*4
	p := img.Pix[o : o+4 : o+4]
	if t.format.IsSRGB() {
		return math.Vec4{X: srgbToLinearLUT[p[0]], Y: srgbToLinearLUT[p[1]], Z: srgbToLinearLUT[p[2]], W: float32(p[3]) / 255}
	}
	return math.Vec4{X: float32(p[0]) / 255, Y: float32(p[1]) / 255, Z: float32(p[2]) / 255, W: float32(p[3]) / 255}
}

func (t *Texture) nearest(s TextureSampler, level int, uv math.Vec2) math.Vec4 {
	w, h := int(t.GetWidth(level)), int(t.GetHeight(level))
	x := wrap(int(math32.Floor(uv.X*float32(w))), w, s.WrapS)
	y := wrap(int(math32.Floor(uv.Y*float32(h))), h, s.WrapT)
	return t.texel(level, x, y)
}

func (t *Texture) bilinear(s TextureSampler, level int, uv math.Vec2) math.Vec4 {
	w, h := int(t.GetWidth(level)), int(t.GetHeight(level))
	fx := uv.X*float32(w) - 0.5
	fy := uv.Y*float32(h) - 0.5
	x0f, y0f := math32.Floor(fx), math32.Floor(fy)
	ax, ay := fx-x0f, fy-y0f
	x0, y0 := int(x0f), int(y0f)
	xa, xb := wrap(x0, w, s.WrapS), wrap(x0+1, w, s.WrapS)
	ya, yb := wrap(y0, h, s.WrapT), wrap(y0+1, h, s.WrapT)

	top := t.texel(level, xa, ya).Lerp(t.texel(level, xb, ya), ax)
	bottom := t.texel(level, xa, yb).Lerp(t.texel(level, xb, yb), ax)
	return top.Lerp(bottom, ay)
}

// lod returns the mip level for a footprint given by the UV derivatives.
func (t *Texture) lod(s TextureSampler, dx, dy math.Vec2) float32 {
	w, h := float32(t.width), float32(t.height)
	lx := math32.Hypot(dx.X*w, dx.Y*h)
	ly := math32.Hypot(dy.X*w, dy.Y*h)
	pmax, pmin := math32.Max(lx, ly), math32.Min(lx, ly)
	if pmax <= 0 {
		return 0
	}
	n := float32(1)
	if s.Anisotropy > 1 && pmin > 0 {
		n = math32.Min(math32.Ceil(pmax/pmin), s.Anisotropy)
	}
	return math32.Log2(pmax / n)
}

// Sample filters the texture at uv with the footprint given by the screen
// space derivatives of uv. The result is linear.
func (t *Texture) Sample(s TextureSampler, uv, dx, dy math.Vec2) math.Vec4 {
	if len(t.levels) == 0 {
		// destroyed
		return math.Vec4{W: 1}
	}
	lod := t.lod(s, dx, dy)
	if lod <= 0 {
		if s.MagFilter == MagFilterNearest {
			return t.nearest(s, 0, uv)
		}
		return t.bilinear(s, 0, uv)
	}

	last := float32(len(t.levels) - 1)
	lod = math32.Min(lod, last)
	switch s.MinFilter {
	case MinFilterNearest:
		return t.nearest(s, 0, uv)
	case MinFilterLinear:
		return t.bilinear(s, 0, uv)
	case MinFilterNearestMipmapNearest:
		return t.nearest(s, int(lod+0.5), uv)
	case MinFilterLinearMipmapNearest:
		return t.bilinear(s, int(lod+0.5), uv)
	}

	l0 := int(lod)
	l1 := min(l0+1, len(t.levels)-1)
	f := lod - float32(l0)
	sample := t.bilinear
	if s.MinFilter == MinFilterNearestMipmapLinear {
		sample = t.nearest
	}
	a := sample(s, l0, uv)
	if f == 0 || l0 == l1 {
		return a
	}
	return a.Lerp(sample(s, l1, uv), f)
}
