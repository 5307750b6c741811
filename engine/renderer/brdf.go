package renderer

import (
	"github.com/chewxy/math32"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/renderer/shader"
)

const (
	minPerceptualRoughness float32 = 0.045
	minNoV                 float32 = 1e-4
)

// pixelParams are the material inputs turned into what the lighting model needs.
type pixelParams struct {
	diffuseColor        math.Vec3
	f0                  math.Vec3
	perceptualRoughness float32
	roughness           float32
	ao                  float32
}

func getPixelParams(in *shader.MaterialInputs) pixelParams {
	base := in.BaseColor.ToVec3()
	metallic := math.Saturate(in.Metallic)
	reflectance := math.Saturate(in.Reflectance)

	pr := math.Clamp(in.Roughness, minPerceptualRoughness, 1)
	dielectric := 0.16 * reflectance * reflectance * (1 - metallic)
	return pixelParams{
		diffuseColor:        base.MulScalar(1 - metallic),
		f0:                  base.MulScalar(metallic).Add(math.NewVec3(dielectric, dielectric, dielectric)),
		perceptualRoughness: pr,
		roughness:           pr * pr,
		ao:                  math.Saturate(in.AmbientOcclusion),
	}
}

// distribution is the GGX normal distribution function.
func distribution(roughness, NoH float32, h, n math.Vec3) float32 {
	nxh := n.Cross(h)
	oneMinusNoHSquared := nxh.Dot(nxh)
	a := NoH * roughness
	k := roughness / (oneMinusNoHSquared + a*a)
	return k * k * math.K_ONE_OVER_PI
}

// visibility is the height-correlated Smith-GGX term.
func visibility(roughness, NoV, NoL float32) float32 {
	a2 := roughness * roughness
	lambdaV := NoL * math32.Sqrt((NoV-a2*NoV)*NoV+a2)
	lambdaL := NoV * math32.Sqrt((NoL-a2*NoL)*NoL+a2)
	return 0.5 / (lambdaV + lambdaL)
}

func fresnel(f0 math.Vec3, VoH float32) math.Vec3 {
	f := math32.Pow(1-VoH, 5)
	return f0.MulScalar(1 - f).Add(math.NewVec3(f, f, f))
}

// surfaceShading returns the BRDF times NoL for a light coming from l.
func surfaceShading(p *pixelParams, n, v, l math.Vec3, NoV float32) math.Vec3 {
	NoL := math.Saturate(n.Dot(l))
	if NoL <= 0 {
		return math.Vec3{}
	}
	h := v.Add(l).Normalized()
	NoH := math.Saturate(n.Dot(h))
	LoH := math.Saturate(l.Dot(h))

	D := distribution(p.roughness, NoH, h, n)
	V := visibility(p.roughness, NoV, NoL)
	F := fresnel(p.f0, LoH)
	Fr := F.MulScalar(D * V)
	Fd := p.diffuseColor.MulScalar(math.K_ONE_OVER_PI)
	return Fd.Add(Fr).MulScalar(NoL)
}

// envBRDF approximates the pre-integrated specular response (Karis).
func envBRDF(f0 math.Vec3, perceptualRoughness, NoV float32) math.Vec3 {
	r0 := -perceptualRoughness + 1
	r1 := -0.0275*perceptualRoughness + 0.0425
	r2 := -0.572*perceptualRoughness + 1.04
	r3 := 0.022*perceptualRoughness - 0.04
	a004 := math32.Min(r0*r0, math32.Exp2(-9.28*NoV))*r0 + r1
	ax := -1.04*a004 + r2
	ay := 1.04*a004 + r3
	return f0.MulScalar(ax).Add(math.NewVec3(ay, ay, ay))
}

type lightData struct {
	kind       LightType
	color      math.Vec3 // color * intensity
	direction  math.Vec3 // towards the light, directional lights only
	position   math.Vec3
	falloffInv float32
}

// shadeLit evaluates the standard lit model at a surface point.
func shadeLit(in *shader.MaterialInputs, pos, n, v math.Vec3, f *frameData) math.Vec3 {
	p := getPixelParams(in)
	NoV := math32.Max(n.Dot(v), minNoV)

	var color math.Vec3
	for i := range f.lights {
		lt := &f.lights[i]
		switch lt.kind {
		case LightTypePoint:
			toLight := lt.position.Sub(pos)
			d2 := toLight.LengthSquared()
			factor := d2 * lt.falloffInv * lt.falloffInv
			smooth := math.Saturate(1 - factor*factor)
			attenuation := smooth * smooth / math32.Max(d2, 1e-4)
			if attenuation <= 0 {
				continue
			}
			l := toLight.Normalized()
			color = color.Add(surfaceShading(&p, n, v, l, NoV).Mul(lt.color).MulScalar(attenuation))
		default:
			color = color.Add(surfaceShading(&p, n, v, lt.direction, NoV).Mul(lt.color))
		}
	}

	if il := f.indirectLight; il != nil {
		E := envBRDF(p.f0, p.perceptualRoughness, NoV)
		diffuse := p.diffuseColor.Mul(il.Irradiance(n)).Mul(math.NewVec3One().Sub(E))
		r := v.Negate().Sub(n.MulScalar(2 * n.Dot(v.Negate())))
		specular := E.Mul(il.Irradiance(r))
		color = color.Add(diffuse.Add(specular).MulScalar(il.intensity * p.ao))
	}

	return color.Add(emission(in, f.ev100))
}

func emission(in *shader.MaterialInputs, ev100 float32) math.Vec3 {
	e := in.Emissive
	if e.X == 0 && e.Y == 0 && e.Z == 0 {
		return math.Vec3{}
	}
	return e.ToVec3().MulScalar(math32.Pow(2, ev100+e.W-3))
}

// shadeUnlit returns the base color as a luminance, plus emission.
func shadeUnlit(in *shader.MaterialInputs, f *frameData) math.Vec3 {
	return in.BaseColor.ToVec3().Add(emission(in, f.ev100))
}

// toneMapACES is Narkowicz's fit of the ACES filmic curve.
func toneMapACES(x float32) float32 {
	const a, b, c, d, e = 2.51, 0.03, 2.43, 0.59, 0.14
	return math.Saturate((x * (a*x + b)) / (x*(c*x+d) + e))
}

var linearToSRGB8LUT = func() (lut [4096]uint8) {
	for i := range lut {
		lut[i] = uint8(math.LinearToSRGB(float32(i)/float32(len(lut)-1))*255 + 0.5)
	}
	return lut
}()

func encode(c float32, tm ToneMapping) uint8 {
	if tm == ToneMappingACES {
		c = toneMapACES(c)
	} else {
		c = math.Saturate(c)
	}
	return linearToSRGB8LUT[int(c*float32(len(linearToSRGB8LUT)-1)+0.5)]
}
