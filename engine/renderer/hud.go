package renderer

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const hudMargin = 6

var (
	hudBackground = image.NewUniform(color.NRGBA{A: 160})
	hudForeground = image.NewUniform(color.NRGBA{R: 235, G: 235, B: 235, A: 255})
)

// DrawHUD writes lines of text in the top left corner of target, over a
// translucent panel.
func DrawHUD(target *image.RGBA, lines []string) {
	if target == nil || len(lines) == 0 {
		return
	}
	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil()

	width := 0
	for _, l := range lines {
		width = max(width, font.MeasureString(face, l).Ceil())
	}
	panel := image.Rect(0, 0, width+2*hudMargin, len(lines)*lineHeight+2*hudMargin).
		Add(target.Rect.Min).
		Intersect(target.Rect)
	draw.Draw(target, panel, hudBackground, image.Point{}, draw.Over)

	d := &font.Drawer{Dst: target, Src: hudForeground, Face: face}
	for i, l := range lines {
		d.Dot = fixed.P(target.Rect.Min.X+hudMargin, target.Rect.Min.Y+hudMargin+(i+1)*lineHeight-face.Descent)
		d.DrawString(l)
	}
}
