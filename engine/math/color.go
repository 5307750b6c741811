package math

import "github.com/chewxy/math32"

// SRGBToLinear converts one sRGB encoded channel to linear using the exact
// piecewise transfer function.
func SRGBToLinear(c float32) float32 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math32.Pow((c+0.055)/1.055, 2.4)
}

// LinearToSRGB is the inverse of SRGBToLinear.
func LinearToSRGB(c float32) float32 {
	if c <= 0.0031308 {
		return c * 12.92
	}
	return 1.055*math32.Pow(c, 1.0/2.4) - 0.055
}

// ToLinear converts an sRGB color to linear space.
func ToLinear(c Vec3) Vec3 {
	return Vec3{SRGBToLinear(c.X), SRGBToLinear(c.Y), SRGBToLinear(c.Z)}
}

// ToSRGB converts a linear color to sRGB space.
func ToSRGB(c Vec3) Vec3 {
	return Vec3{LinearToSRGB(c.X), LinearToSRGB(c.Y), LinearToSRGB(c.Z)}
}

// Luminance returns the relative luminance of a linear color (Rec. 709 primaries).
func Luminance(c Vec3) float32 {
	return 0.2126*c.X + 0.7152*c.Y + 0.0722*c.Z
}
