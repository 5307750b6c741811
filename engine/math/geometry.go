package math

/**
 * @brief Generates smooth vertex normals for an indexed triangle list by
 * accumulating the (area weighted) face normals of every triangle touching a vertex.
 */
func GeometryGenerateNormals(vertices []Vertex3D, indices []uint32) {
	for i := range vertices {
		vertices[i].Normal = Vec3{}
	}
	for i := 0; i+2 < len(indices); i += 3 {
		i0 := indices[i+0]
		i1 := indices[i+1]
		i2 := indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)

		// NOTE: not normalized, larger faces weigh more.
		n := edge1.Cross(edge2)
		vertices[i0].Normal = vertices[i0].Normal.Add(n)
		vertices[i1].Normal = vertices[i1].Normal.Add(n)
		vertices[i2].Normal = vertices[i2].Normal.Add(n)
	}
	for i := range vertices {
		vertices[i].Normal = vertices[i].Normal.Normalized()
	}
}

/**
 * @brief Computes the axis aligned bounds of the given vertices.
 */
func GeometryComputeExtents(vertices []Vertex3D) Extents3D {
	if len(vertices) == 0 {
		return Extents3D{}
	}
	e := Extents3D{Min: vertices[0].Position, Max: vertices[0].Position}
	for _, v := range vertices[1:] {
		e = e.Expand(v.Position)
	}
	return e
}

func (e Extents3D) Expand(p Vec3) Extents3D {
	if p.X < e.Min.X {
		e.Min.X = p.X
	}
	if p.Y < e.Min.Y {
		e.Min.Y = p.Y
	}
	if p.Z < e.Min.Z {
		e.Min.Z = p.Z
	}
	if p.X > e.Max.X {
		e.Max.X = p.X
	}
	if p.Y > e.Max.Y {
		e.Max.Y = p.Y
	}
	if p.Z > e.Max.Z {
		e.Max.Z = p.Z
	}
	return e
}

func (e Extents3D) Center() Vec3 {
	return e.Min.Add(e.Max).MulScalar(0.5)
}

func (e Extents3D) HalfExtent() Vec3 {
	return e.Max.Sub(e.Min).MulScalar(0.5)
}

/**
 * @brief Returns the bounds of e after transforming its eight corners by m.
 */
func (e Extents3D) Transform(m Mat4) Extents3D {
	first := true
	var out Extents3D
	for i := 0; i < 8; i++ {
		c := Vec3{e.Min.X, e.Min.Y, e.Min.Z}
		if i&1 != 0 {
			c.X = e.Max.X
		}
		if i&2 != 0 {
			c.Y = e.Max.Y
		}
		if i&4 != 0 {
			c.Z = e.Max.Z
		}
		p := c.Transform(m)
		if first {
			out = Extents3D{Min: p, Max: p}
			first = false
			continue
		}
		out = out.Expand(p)
	}
	return out
}
