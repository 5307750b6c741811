package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-4

func TestMat4InverseRoundTrip(t *testing.T) {
	m := NewMat4Scale(NewVec3(2, 3, 4)).
		Mul(NewQuatFromAxisAngle(NewVec3(0, 1, 0), 0.7, true).ToMat4()).
		Mul(NewMat4Translation(NewVec3(1, -2, 5)))

	require.True(t, m.Mul(m.Inverse()).Compare(NewMat4Identity(), eps))
	require.True(t, m.Inverse().Mul(m).Compare(NewMat4Identity(), eps))
}

func TestMat4MulAppliesLeftFirst(t *testing.T) {
	scale := NewMat4Scale(NewVec3(2, 2, 2))
	move := NewMat4Translation(NewVec3(0, 0, -4))

	p := NewVec3(1, 0, 0)
	// scale, then translate
	assert.True(t, p.Transform(scale.Mul(move)).Compare(NewVec3(2, 0, -4), eps))
	// translate, then scale
	assert.True(t, p.Transform(move.Mul(scale)).Compare(NewVec3(2, 0, -8), eps))
}

func TestMat4FromMat3Translation(t *testing.T) {
	m := NewMat4FromMat3Translation(NewMat3Scale(0.5), NewVec3(0, 0, -4))
	assert.True(t, NewVec3(2, 2, 2).Transform(m).Compare(NewVec3(1, 1, -3), eps))
	assert.Equal(t, NewVec3(0, 0, -4), m.Translation())
	assert.Equal(t, float32(1), m.Data[15])
}

func TestLookAtMapsTargetOntoNegativeZ(t *testing.T) {
	eye := NewVec3(0, 0, 5)
	view := NewMat4LookAt(eye, NewVec3Zero(), NewVec3Up())

	p := NewVec3Zero().Transform(view)
	assert.True(t, p.Compare(NewVec3(0, 0, -5), eps), "%v", p)

	// +X in the world stays on the right for a camera looking down -Z
	r := NewVec3(1, 0, 0).Transform(view)
	assert.Greater(t, r.X, float32(0))
}

func TestPerspectiveDepthRange(t *testing.T) {
	proj := NewMat4Perspective(DegToRad(45), 1, 0.1, 100)

	near := proj.MulVec4(NewVec4(0, 0, -0.1, 1))
	far := proj.MulVec4(NewVec4(0, 0, -100, 1))
	assert.InDelta(t, -1.0, near.Z/near.W, eps)
	assert.InDelta(t, 1.0, far.Z/far.W, eps)
}

func TestNormalMatrixUndoesNonUniformScale(t *testing.T) {
	world := NewMat4Scale(NewVec3(4, 1, 1))
	n := NormalMatrix(world).MulVec3(NewVec3(1, 1, 0)).Normalized()
	// the normal leans towards the axis that was squashed relative to the others
	assert.Greater(t, n.Y, n.X)
}

func TestQuaternionRotation(t *testing.T) {
	q := NewQuatFromAxisAngle(NewVec3(0, 1, 0), K_HALF_PI, true)
	v := NewVec3(1, 0, 0).Transform(q.ToMat4())
	assert.True(t, v.Compare(NewVec3(0, 0, -1), eps), "%v", v)
}

func TestTransformHierarchy(t *testing.T) {
	parent := TransformFromPosition(NewVec3(10, 0, 0))
	child := TransformFromPosition(NewVec3(1, 0, 0))
	child.Parent = parent

	p := NewVec3Zero().Transform(child.GetWorld())
	assert.True(t, p.Compare(NewVec3(11, 0, 0), eps))

	parent.SetScale(NewVec3(2, 2, 2))
	p = NewVec3Zero().Transform(child.GetWorld())
	assert.True(t, p.Compare(NewVec3(12, 0, 0), eps))
}

func TestSRGBConversion(t *testing.T) {
	assert.InDelta(t, 0.0, SRGBToLinear(0), eps)
	assert.InDelta(t, 1.0, SRGBToLinear(1), eps)
	assert.InDelta(t, 0.2140, SRGBToLinear(0.5), eps)

	for _, c := range []float32{0.001, 0.2, 0.5, 0.98} {
		assert.InDelta(t, c, LinearToSRGB(SRGBToLinear(c)), eps)
	}

	lin := ToLinear(NewVec3(0.98, 0.92, 0.89))
	assert.InDelta(t, 0.9551, lin.X, 1e-3)
	assert.InDelta(t, 0.8276, lin.Y, 1e-3)
	assert.InDelta(t, 0.7678, lin.Z, 1e-3)
}

func TestGenerateNormalsAndExtents(t *testing.T) {
	verts := []Vertex3D{
		{Position: NewVec3(0, 0, 0)},
		{Position: NewVec3(1, 0, 0)},
		{Position: NewVec3(0, 1, 0)},
	}
	GeometryGenerateNormals(verts, []uint32{0, 1, 2})
	for _, v := range verts {
		assert.True(t, v.Normal.Compare(NewVec3(0, 0, 1), eps))
	}

	e := GeometryComputeExtents(verts)
	assert.Equal(t, NewVec3(0, 0, 0), e.Min)
	assert.Equal(t, NewVec3(1, 1, 0), e.Max)
	assert.True(t, e.Center().Compare(NewVec3(0.5, 0.5, 0), eps))

	moved := e.Transform(NewMat4Translation(NewVec3(0, 0, -4)))
	assert.True(t, moved.Min.Compare(NewVec3(0, 0, -4), eps))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 3, Clamp(5, 0, 3))
	assert.Equal(t, float32(0), Saturate(-1))
	assert.Equal(t, uint32(7), Clamp(uint32(7), 1, 10))
}
