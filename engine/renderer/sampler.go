package renderer

import "github.com/spaghettifunk/anima-samples/engine/math"

type SamplerMinFilter uint8

const (
	MinFilterNearest SamplerMinFilter = iota
	MinFilterLinear
	MinFilterNearestMipmapNearest
	MinFilterLinearMipmapNearest
	MinFilterNearestMipmapLinear
	MinFilterLinearMipmapLinear
)

type SamplerMagFilter uint8

const (
	MagFilterNearest SamplerMagFilter = iota
	MagFilterLinear
)

type SamplerWrapMode uint8

const (
	WrapModeClampToEdge SamplerWrapMode = iota
	WrapModeRepeat
	WrapModeMirroredRepeat
)

/**
 * @brief TextureSampler describes how a texture is filtered and addressed
 * when a material reads it.
 */
type TextureSampler struct {
	MinFilter  SamplerMinFilter
	MagFilter  SamplerMagFilter
	WrapS      SamplerWrapMode
	WrapT      SamplerWrapMode
	Anisotropy float32
}

// NewTextureSampler returns a sampler using wrap for both axes.
func NewTextureSampler(min SamplerMinFilter, mag SamplerMagFilter, wrap SamplerWrapMode) TextureSampler {
	return TextureSampler{
		MinFilter:  min,
		MagFilter:  mag,
		WrapS:      wrap,
		WrapT:      wrap,
		Anisotropy: 1,
	}
}

// SetAnisotropy sets the maximum anisotropy, clamped to [1, 16].
func (s *TextureSampler) SetAnisotropy(anisotropy float32) {
	s.Anisotropy = math.Clamp(anisotropy, 1, 16)
}

func wrap(coord, size int, mode SamplerWrapMode) int {
	switch mode {
	case WrapModeRepeat:
		coord %= size
		if coord < 0 {
			coord += size
		}
		return coord
	case WrapModeMirroredRepeat:
		period := 2 * size
		coord %= period
		if coord < 0 {
			coord += period
		}
		if coord >= size {
			coord = period - 1 - coord
		}
		return coord
	default:
		return math.Clamp(coord, 0, size-1)
	}
}
