package mesher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// planeGeometry returns a flat axis-aligned quad [0,w]x[0,h] at height y,
// wound so the face normal points up.
func planeGeometry(w, h, y float32) ([]float32, []int32) {
	verts := []float32{
		0, y, 0,
		w, y, 0,
		w, y, h,
		0, y, h,
	}
	tris := []int32{0, 2, 1, 0, 3, 2}
	return verts, tris
}

// planeHeightfield rasterizes a flat walkable plane covering a w x h cell
// grid (cs=1, ch=0.5). Every column ends up with one span [0,1).
func planeHeightfield(t *testing.T, w, h int32) *Heightfield {
	t.Helper()
	bmin := []float32{0, 0, 0}
	bmax := []float32{float32(w), 10, float32(h)}
	hf := NewHeightfield(w, h, bmin, bmax, 1, 0.5)
	verts, tris := planeGeometry(float32(w), float32(h), 0.25)
	areas := []uint8{WalkableArea, WalkableArea}
	require.NoError(t, RasterizeTriangles(hf, verts, tris, areas, 1))
	return hf
}

// planeField builds the compact heightfield of a flat plane.
func planeField(t *testing.T, w, h int32) *CompactHeightfield {
	t.Helper()
	hf := planeHeightfield(t, w, h)
	chf, err := BuildCompactHeightfield(3, 1, hf)
	require.NoError(t, err)
	return chf
}

// columnSpans collects the spans of one heightfield column, bottom first.
func columnSpans(hf *Heightfield, x, z int32) []Span {
	var out []Span
	for si := hf.columns[x+z*hf.Width]; si != nilSpan; si = hf.spans[si].next {
		out = append(out, hf.spans[si])
	}
	return out
}
