package mesher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRasterizePlaneFillsGrid(t *testing.T) {
	hf := planeHeightfield(t, 4, 4)

	assert.Equal(t, int32(16), hf.SpanCount())
	for z := int32(0); z < 4; z++ {
		for x := int32(0); x < 4; x++ {
			spans := columnSpans(hf, x, z)
			require.Len(t, spans, 1, "column %d,%d", x, z)
			assert.Equal(t, uint16(0), spans[0].SMin)
			assert.Equal(t, uint16(1), spans[0].SMax)
			assert.Equal(t, uint8(WalkableArea), spans[0].Area)
		}
	}
}

func TestRasterizeTriangleOutsideBounds(t *testing.T) {
	hf := NewHeightfield(4, 4, []float32{0, 0, 0}, []float32{4, 10, 4}, 1, 0.5)
	verts := []float32{
		10, 0.25, 10,
		14, 0.25, 10,
		14, 0.25, 14,
	}
	areas := []uint8{WalkableArea}
	require.NoError(t, RasterizeTriangles(hf, verts, []int32{0, 2, 1}, areas, 1))
	assert.Equal(t, int32(0), hf.SpanCount())
}

func TestRasterizePartialTriangle(t *testing.T) {
	hf := NewHeightfield(8, 8, []float32{0, 0, 0}, []float32{8, 10, 8}, 1, 0.5)
	// Small triangle in the lower-left corner.
	verts := []float32{
		0.1, 0.25, 0.1,
		1.9, 0.25, 0.1,
		0.1, 0.25, 1.9,
	}
	areas := []uint8{WalkableArea}
	require.NoError(t, RasterizeTriangles(hf, verts, []int32{0, 2, 1}, areas, 1))

	assert.NotZero(t, hf.SpanCount())
	// Nothing lands outside the triangle's bounding cells.
	for z := int32(0); z < 8; z++ {
		for x := int32(0); x < 8; x++ {
			if x >= 2 || z >= 2 {
				assert.Empty(t, columnSpans(hf, x, z), "column %d,%d", x, z)
			}
		}
	}
}

func TestMarkWalkableTriangles(t *testing.T) {
	// One flat triangle, one vertical wall.
	verts := []float32{
		0, 0, 0,
		4, 0, 0,
		4, 0, 4,
		0, 4, 0,
	}
	tris := []int32{0, 2, 1, 0, 1, 3}
	areas := []uint8{NullArea, NullArea}

	MarkWalkableTriangles(45, verts, tris, areas, WalkableArea)
	assert.Equal(t, uint8(WalkableArea), areas[0])
	assert.Equal(t, uint8(NullArea), areas[1])
}

func TestClearUnwalkableTriangles(t *testing.T) {
	verts := []float32{
		0, 0, 0,
		4, 0, 0,
		4, 0, 4,
		0, 4, 0,
	}
	tris := []int32{0, 2, 1, 0, 1, 3}
	areas := []uint8{WalkableArea, WalkableArea}

	ClearUnwalkableTriangles(45, verts, tris, areas)
	assert.Equal(t, uint8(WalkableArea), areas[0])
	assert.Equal(t, uint8(NullArea), areas[1])
}

func TestMarkSteepTriangles(t *testing.T) {
	// A ~63 degree ramp: walkable at 70 degrees but steeper than 50.
	verts := []float32{
		0, 0, 0,
		4, 0, 0,
		4, 8, 4,
		0, 8, 4,
	}
	tris := []int32{0, 2, 1, 0, 3, 2}
	areas := []uint8{AreaGround, AreaGround}

	MarkSteepTriangles(50, verts, tris, areas)
	assert.Equal(t, uint8(AreaGroundSteep), areas[0])
	assert.Equal(t, uint8(AreaGroundSteep), areas[1])
}
