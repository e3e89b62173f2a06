package mesher

import (
	"math"

	"github.com/navforge/navforge/geom"
)

// MarkWalkableTriangles sets areas[i] to walkableArea for every triangle whose
// face normal is within walkableSlopeAngle degrees of vertical. Entries of
// steeper triangles are left untouched.
func MarkWalkableTriangles(walkableSlopeAngle float32, verts []float32, tris []int32, areas []uint8, walkableArea uint8) {
	walkableThr := float32(math.Cos(float64(walkableSlopeAngle) / 180 * math.Pi))
	norm := make([]float32, 3)
	for i := 0; i < len(tris)/3; i++ {
		tri := tris[i*3:]
		calcTriNormal(geom.Vert(verts, tri[0]), geom.Vert(verts, tri[1]), geom.Vert(verts, tri[2]), norm)
		if norm[1] > walkableThr {
			areas[i] = walkableArea
		}
	}
}

// ClearUnwalkableTriangles resets areas[i] to NullArea for every triangle
// steeper than walkableSlopeAngle degrees.
func ClearUnwalkableTriangles(walkableSlopeAngle float32, verts []float32, tris []int32, areas []uint8) {
	walkableThr := float32(math.Cos(float64(walkableSlopeAngle) / 180 * math.Pi))
	norm := make([]float32, 3)
	for i := 0; i < len(tris)/3; i++ {
		tri := tris[i*3:]
		calcTriNormal(geom.Vert(verts, tri[0]), geom.Vert(verts, tri[1]), geom.Vert(verts, tri[2]), norm)
		if norm[1] <= walkableThr {
			areas[i] = NullArea
		}
	}
}

func calcTriNormal(v0, v1, v2, norm []float32) {
	var e0, e1 [3]float32
	geom.Vsub(e0[:], v1, v0)
	geom.Vsub(e1[:], v2, v0)
	geom.Vcross(norm, e0[:], e1[:])
	geom.Vnormalize(norm)
}

// RasterizeTriangles voxelizes the indexed triangles into hf. Each triangle
// carries its own area id; spans merged within mergeThreshold cells of each
// other unify their area ids with the higher id winning.
func RasterizeTriangles(hf *Heightfield, verts []float32, tris []int32, areas []uint8, mergeThreshold int32) error {
	invCS := 1.0 / hf.CS
	invCH := 1.0 / hf.CH
	for i := 0; i < len(tris)/3; i++ {
		v0 := geom.Vert(verts, tris[i*3+0])
		v1 := geom.Vert(verts, tris[i*3+1])
		v2 := geom.Vert(verts, tris[i*3+2])
		if err := rasterizeTri(v0, v1, v2, areas[i], hf, invCS, invCH, mergeThreshold); err != nil {
			return err
		}
	}
	return nil
}

// rasterizeTri clips the triangle to grid rows and then to grid columns, and
// stamps a span per covered cell.
func rasterizeTri(v0, v1, v2 []float32, area uint8, hf *Heightfield, invCS, invCH float32, mergeThreshold int32) error {
	var tmin, tmax [3]float32
	geom.Vcopy(tmin[:], v0)
	geom.Vcopy(tmax[:], v0)
	geom.Vmin(tmin[:], v1)
	geom.Vmin(tmin[:], v2)
	geom.Vmax(tmax[:], v1)
	geom.Vmax(tmax[:], v2)

	// Entirely outside the field's AABB.
	if !geom.OverlapBounds(tmin[:], tmax[:], hf.BMin[:], hf.BMax[:]) {
		return nil
	}

	by := hf.BMax[1] - hf.BMin[1]

	z0 := int32((tmin[2] - hf.BMin[2]) * invCS)
	z1 := int32((tmax[2] - hf.BMin[2]) * invCS)
	// Keep one row of padding so clipped triangles touching the border still
	// land in a valid row.
	z0 = geom.Clamp(z0, -1, hf.Height-1)
	z1 = geom.Clamp(z1, 0, hf.Height-1)

	// Clip buffers: 7 verts each is enough for a triangle clipped by two
	// parallel planes.
	var buf [7 * 3 * 4]float32
	in := buf[0:]
	inRow := buf[7*3:]
	p1 := buf[7*3*2:]
	p2 := buf[7*3*3:]

	geom.Vcopy(in, v0)
	geom.Vcopy(in[3:], v1)
	geom.Vcopy(in[6:], v2)
	nvIn := int32(3)

	for z := z0; z <= z1; z++ {
		// Clip polygon to the row.
		cellZ := hf.BMin[2] + float32(z)*hf.CS
		var nvRow int32
		nvRow, nvIn = dividePoly(in, nvIn, inRow, p1, cellZ+hf.CS, 2)
		in, p1 = p1, in
		if nvRow < 3 || z < 0 {
			continue
		}

		minX := inRow[0]
		maxX := inRow[0]
		for i := int32(1); i < nvRow; i++ {
			if inRow[i*3] < minX {
				minX = inRow[i*3]
			}
			if inRow[i*3] > maxX {
				maxX = inRow[i*3]
			}
		}
		x0 := int32((minX - hf.BMin[0]) * invCS)
		x1 := int32((maxX - hf.BMin[0]) * invCS)
		if x1 < 0 || x0 >= hf.Width {
			continue
		}
		x0 = geom.Clamp(x0, -1, hf.Width-1)
		x1 = geom.Clamp(x1, 0, hf.Width-1)

		nv2 := nvRow
		for x := x0; x <= x1; x++ {
			// Clip row polygon to the column.
			cellX := hf.BMin[0] + float32(x)*hf.CS
			var nv int32
			nv, nv2 = dividePoly(inRow, nv2, p1, p2, cellX+hf.CS, 0)
			inRow, p2 = p2, inRow
			if nv < 3 || x < 0 {
				continue
			}

			// Span limits from the clipped polygon's y extent.
			smin := p1[1]
			smax := p1[1]
			for i := int32(1); i < nv; i++ {
				if p1[i*3+1] < smin {
					smin = p1[i*3+1]
				}
				if p1[i*3+1] > smax {
					smax = p1[i*3+1]
				}
			}
			smin -= hf.BMin[1]
			smax -= hf.BMin[1]
			if smax < 0 || smin > by {
				continue
			}
			if smin < 0 {
				smin = 0
			}
			if smax > by {
				smax = by
			}

			ismin := geom.Clamp(int32(math.Floor(float64(smin*invCH))), 0, SpanMaxHeight)
			ismax := geom.Clamp(int32(math.Ceil(float64(smax*invCH))), ismin+1, SpanMaxHeight)
			hf.AddSpan(x, z, uint16(ismin), uint16(ismax), area, mergeThreshold)
		}
	}
	return nil
}

// dividePoly splits the convex polygon in by the axis-aligned plane at x and
// writes the part below the plane to out1 and the part above to out2.
// axis selects the coordinate (0 for x, 2 for z). Returns both vertex counts.
func dividePoly(in []float32, nin int32, out1, out2 []float32, x float32, axis int32) (int32, int32) {
	var d [12]float32
	for i := int32(0); i < nin; i++ {
		d[i] = x - in[i*3+axis]
	}

	var m, n int32
	for i, j := int32(0), nin-1; i < nin; j, i = i, i+1 {
		ina := d[j] >= 0
		inb := d[i] >= 0
		if ina != inb {
			s := d[j] / (d[j] - d[i])
			out1[m*3+0] = in[j*3+0] + (in[i*3+0]-in[j*3+0])*s
			out1[m*3+1] = in[j*3+1] + (in[i*3+1]-in[j*3+1])*s
			out1[m*3+2] = in[j*3+2] + (in[i*3+2]-in[j*3+2])*s
			geom.Vcopy(out2[n*3:], out1[m*3:])
			m++
			n++
			// Add the i-th point to the right polygon. Addition to the left
			// polygon is skipped; it is on the dividing line.
			if d[i] > 0 {
				geom.Vcopy(out1[m*3:], in[i*3:])
				m++
			} else if d[i] < 0 {
				geom.Vcopy(out2[n*3:], in[i*3:])
				n++
			}
		} else {
			// Same side; add the i-th point to the corresponding polygon. A
			// point on the line goes left only.
			if d[i] >= 0 {
				geom.Vcopy(out1[m*3:], in[i*3:])
				m++
				if d[i] != 0 {
					continue
				}
			}
			geom.Vcopy(out2[n*3:], in[i*3:])
			n++
		}
	}
	return m, n
}
