package loaders

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/spaghettifunk/anima-samples/engine/resources"
)

// ImageLoader loads an image file as tightly packed 8-bit pixels.
type ImageLoader struct {
	decoder TextureLoader
}

func (il *ImageLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	p := resources.ImageResourceParams{ChannelCount: 4}
	switch typed := params.(type) {
	case nil:
	case *resources.ImageResourceParams:
		p = *typed
	case resources.ImageResourceParams:
		p = typed
	default:
		return nil, fmt.Errorf("failed to cast params in image loader")
	}
	if p.ChannelCount != 3 && p.ChannelCount != 4 {
		return nil, fmt.Errorf("image loader: %d channels requested, only 3 or 4 are supported", p.ChannelCount)
	}

	res, err := il.decoder.Load(path, nil)
	if err != nil {
		return nil, err
	}
	img := res.Data.(image.Image)
	res.Data = Pixels(img, p.ChannelCount, p.FlipY)
	return res, nil
}

func (il *ImageLoader) Unload(r *resources.Resource) error {
	r.Data = nil
	return nil
}

// Pixels converts img to non premultiplied 8-bit rows of channels components.
func Pixels(img image.Image, channels uint8, flipY bool) *resources.ImageResourceData {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Rect, img, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	n := int(channels)
	out := make([]uint8, w*h*n)
	for y := 0; y < h; y++ {
		sy := y
		if flipY {
			sy = h - 1 - y
		}
		src := nrgba.Pix[sy*nrgba.Stride : sy*nrgba.Stride+w*4]
		dst := out[y*w*n : (y+1)*w*n]
		for x := 0; x < w; x++ {
			copy(dst[x*n:x*n+n], src[x*4:x*4+n])
		}
	}
	return &resources.ImageResourceData{
		ChannelCount: channels,
		Width:        uint32(w),
		Height:       uint32(h),
		Pixels:       out,
	}
}
