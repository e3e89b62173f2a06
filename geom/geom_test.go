package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalcBounds(t *testing.T) {
	verts := []float32{
		1, 2, 3,
		-4, 5, 0,
		2, -1, 7,
	}
	bmin := make([]float32, 3)
	bmax := make([]float32, 3)
	CalcBounds(verts, 3, bmin, bmax)

	assert.Equal(t, []float32{-4, -1, 0}, bmin)
	assert.Equal(t, []float32{2, 5, 7}, bmax)
}

func TestCalcGridSize(t *testing.T) {
	bmin := []float32{0, 0, 0}
	bmax := []float32{10, 5, 20}

	w, h := CalcGridSize(bmin, bmax, 1)
	assert.Equal(t, int32(10), w)
	assert.Equal(t, int32(20), h)

	// Fractional extents round to the nearest cell.
	w, h = CalcGridSize(bmin, []float32{10.6, 5, 19.4}, 1)
	assert.Equal(t, int32(11), w)
	assert.Equal(t, int32(19), h)
}

func TestCompactVertices(t *testing.T) {
	verts := []float32{
		0, 0, 0, // used
		9, 9, 9, // unused
		1, 0, 0, // used
		1, 0, 1, // used
	}
	tris := []int32{0, 2, 3}

	cv, ct := CompactVertices(verts, tris)
	assert.Equal(t, []float32{0, 0, 0, 1, 0, 0, 1, 0, 1}, cv)
	assert.Equal(t, []int32{0, 1, 2}, ct)

	// Empty triangle list passes through untouched.
	cv, ct = CompactVertices(verts, nil)
	assert.Equal(t, verts, cv)
	assert.Empty(t, ct)
}

func TestNextPow2AndIlog2(t *testing.T) {
	cases := []struct{ in, pow2, log2 uint32 }{
		{1, 1, 0},
		{2, 2, 1},
		{3, 4, 1},
		{4, 4, 2},
		{5, 8, 2},
		{1000, 1024, 9},
		{1 << 20, 1 << 20, 20},
	}
	for _, c := range cases {
		assert.Equal(t, c.pow2, NextPow2(c.in), "NextPow2(%d)", c.in)
		assert.Equal(t, c.log2, Ilog2(c.in), "Ilog2(%d)", c.in)
	}
}

func TestDirOffsets(t *testing.T) {
	// Walking one step in each direction and back returns to the origin.
	for dir := int32(0); dir < 4; dir++ {
		back := (dir + 2) & 3
		assert.Equal(t, int32(0), DirOffsetX(dir)+DirOffsetX(back))
		assert.Equal(t, int32(0), DirOffsetZ(dir)+DirOffsetZ(back))
	}
	assert.Equal(t, int32(-1), DirOffsetX(0))
	assert.Equal(t, int32(1), DirOffsetZ(1))
}

func TestVectorOps(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	out := make([]float32, 3)

	Vcross(out, a, b)
	assert.Equal(t, []float32{0, 0, 1}, out)
	assert.Equal(t, float32(0), Vdot(a, b))

	assert.Equal(t, float32(25), VdistSqr([]float32{0, 0, 0}, []float32{3, 0, 4}))
	assert.Equal(t, float32(5), Vdist([]float32{0, 0, 0}, []float32{3, 0, 4}))

	assert.Equal(t, int32(7), Clamp(int32(10), 0, 7))
	assert.Equal(t, float32(2), Abs(float32(-2)))
}
