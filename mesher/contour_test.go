package mesher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// regionField builds a plane with distance field and regions ready for
// contour tracing.
func regionField(t *testing.T, w, h int32) *CompactHeightfield {
	t.Helper()
	chf := planeField(t, w, h)
	require.NoError(t, BuildDistanceField(chf))
	require.NoError(t, BuildRegions(chf, 0, 8, 20))
	return chf
}

func TestBuildContoursFlatSquare(t *testing.T) {
	chf := regionField(t, 20, 20)

	cset, err := BuildContours(chf, 1.3, 0, 0)
	require.NoError(t, err)
	require.Len(t, cset.Conts, 1)

	cont := &cset.Conts[0]
	// A square region simplifies to its four corners.
	require.Equal(t, 4, len(cont.Verts)/4)
	assert.NotZero(t, cont.Reg)
	assert.Equal(t, uint8(WalkableArea), cont.Area)
	assert.GreaterOrEqual(t, len(cont.RawVerts)/4, 4)
}

func TestBuildContoursMaxEdgeLen(t *testing.T) {
	chf := regionField(t, 20, 20)

	cset, err := BuildContours(chf, 1.3, 5, TessWallEdges)
	require.NoError(t, err)
	require.Len(t, cset.Conts, 1)

	// Forced tessellation splits the 20 cell edges into pieces of at most
	// 5 cells, so well over 4 vertices survive.
	nverts := len(cset.Conts[0].Verts) / 4
	assert.GreaterOrEqual(t, nverts, 12)
}

func TestContourSimplificationError(t *testing.T) {
	chf := regionField(t, 20, 20)

	maxError := float32(1.3)
	cset, err := BuildContours(chf, maxError, 0, 0)
	require.NoError(t, err)
	require.Len(t, cset.Conts, 1)

	cont := &cset.Conts[0]
	nsimp := int32(len(cont.Verts) / 4)
	nraw := int32(len(cont.RawVerts) / 4)

	// Every raw boundary vertex stays within maxError of the simplified
	// outline.
	for i := int32(0); i < nraw; i++ {
		rx := cont.RawVerts[i*4+0]
		rz := cont.RawVerts[i*4+2]
		best := float32(1e30)
		for j := int32(0); j < nsimp; j++ {
			k := (j + 1) % nsimp
			ax := cont.Verts[j*4+0]
			az := cont.Verts[j*4+2]
			bx := cont.Verts[k*4+0]
			bz := cont.Verts[k*4+2]
			d := distancePtSeg2D(rx, rz, ax, az, bx, bz)
			if d < best {
				best = d
			}
		}
		assert.LessOrEqual(t, best, maxError*maxError,
			"raw vertex %d deviates beyond the configured error", i)
	}
}

func TestBuildContoursWithHole(t *testing.T) {
	chf := planeField(t, 20, 20)
	for z := int32(8); z < 12; z++ {
		for x := int32(8); x < 12; x++ {
			c := &chf.Cells[x+z*chf.Width]
			chf.Areas[c.Index] = NullArea
		}
	}
	require.NoError(t, BuildDistanceField(chf))
	require.NoError(t, BuildRegions(chf, 0, 4, 400))

	cset, err := BuildContours(chf, 1.3, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, cset.Conts)

	// Outline plus hole vertices: holes are merged into their containing
	// region's contour, so at least 8 vertices describe the shape.
	total := 0
	for i := range cset.Conts {
		total += len(cset.Conts[i].Verts) / 4
	}
	assert.GreaterOrEqual(t, total, 8)
}
