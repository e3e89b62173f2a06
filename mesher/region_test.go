package mesher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDistanceField(t *testing.T) {
	chf := planeField(t, 10, 10)
	require.NoError(t, BuildDistanceField(chf))

	require.Len(t, chf.Dist, int(chf.SpanCount))
	assert.NotZero(t, chf.MaxDistance)

	// Boundary cells are at distance zero and the value grows toward the
	// middle of the plane.
	corner := chf.Cells[0]
	near := chf.Cells[1+1*chf.Width]
	center := chf.Cells[5+5*chf.Width]
	assert.Zero(t, chf.Dist[corner.Index])
	assert.Greater(t, chf.Dist[center.Index], chf.Dist[near.Index])
	assert.GreaterOrEqual(t, chf.MaxDistance, chf.Dist[center.Index])
}

func TestBuildRegionsSinglePlane(t *testing.T) {
	chf := planeField(t, 20, 20)
	require.NoError(t, BuildDistanceField(chf))
	require.NoError(t, BuildRegions(chf, 0, 8, 20))

	assert.NotZero(t, chf.MaxRegions)

	regs := make(map[uint16]int32)
	for i := range chf.Spans {
		regs[chf.Spans[i].Reg]++
	}
	// One region covering every span, no unassigned spans.
	require.Len(t, regs, 1)
	for reg, count := range regs {
		assert.NotZero(t, reg)
		assert.Zero(t, reg&BorderReg)
		assert.Equal(t, int32(400), count)
	}
}

func TestBuildRegionsDeterministic(t *testing.T) {
	build := func() []uint16 {
		chf := planeField(t, 16, 16)
		// Punch a hole so more than one watershed basin forms.
		for z := int32(6); z < 10; z++ {
			for x := int32(6); x < 10; x++ {
				c := &chf.Cells[x+z*chf.Width]
				chf.Areas[c.Index] = NullArea
			}
		}
		require.NoError(t, BuildDistanceField(chf))
		require.NoError(t, BuildRegions(chf, 0, 4, 10))
		out := make([]uint16, len(chf.Spans))
		for i := range chf.Spans {
			out[i] = chf.Spans[i].Reg
		}
		return out
	}

	first := build()
	for run := 0; run < 3; run++ {
		assert.Equal(t, first, build(), "region ids must be identical across runs")
	}
}

func TestBuildRegionsRespectsNullArea(t *testing.T) {
	chf := planeField(t, 12, 12)
	for z := int32(4); z < 8; z++ {
		for x := int32(4); x < 8; x++ {
			c := &chf.Cells[x+z*chf.Width]
			chf.Areas[c.Index] = NullArea
		}
	}
	require.NoError(t, BuildDistanceField(chf))
	require.NoError(t, BuildRegions(chf, 0, 4, 10))

	for z := int32(0); z < chf.Height; z++ {
		for x := int32(0); x < chf.Width; x++ {
			c := &chf.Cells[x+z*chf.Width]
			for i := c.Index; i < c.Index+uint32(c.Count); i++ {
				if chf.Areas[i] == NullArea {
					assert.Zero(t, chf.Spans[i].Reg, "null area span got a region at %d,%d", x, z)
				} else {
					assert.NotZero(t, chf.Spans[i].Reg, "walkable span left unassigned at %d,%d", x, z)
				}
			}
		}
	}
}

func TestBuildRegionsBorder(t *testing.T) {
	chf := planeField(t, 16, 16)
	require.NoError(t, BuildDistanceField(chf))
	require.NoError(t, BuildRegions(chf, 4, 4, 10))

	// Spans inside the border band carry the border flag.
	c := &chf.Cells[1+1*chf.Width]
	assert.NotZero(t, chf.Spans[c.Index].Reg&BorderReg)

	center := &chf.Cells[8+8*chf.Width]
	assert.Zero(t, chf.Spans[center.Index].Reg&BorderReg)
	assert.NotZero(t, chf.Spans[center.Index].Reg)
}

func TestRegionSpanCounts(t *testing.T) {
	chf := planeField(t, 10, 10)
	require.NoError(t, BuildDistanceField(chf))
	require.NoError(t, BuildRegions(chf, 0, 8, 20))

	counts := regionSpanCounts(chf)
	total := int32(0)
	for reg, n := range counts {
		if reg == 0 {
			continue
		}
		total += n
	}
	assert.Equal(t, chf.SpanCount, total)
}

func TestMergeRegionsAbsorbsEnclosedRegion(t *testing.T) {
	const side = 12
	chf := planeField(t, side, side)

	// Region 1 sits fully inside a ring split into regions 2 and 3, so it
	// never touches the tile border; the ring halves do. Region 1 exceeds
	// the merge threshold but must still be absorbed into a ring half.
	srcReg := make([]uint16, chf.SpanCount)
	for z := int32(0); z < side; z++ {
		for x := int32(0); x < side; x++ {
			i := chf.Cells[x+z*side].Index
			switch {
			case x >= 2 && x < 10 && z >= 2 && z < 10:
				srcReg[i] = 1
			case x < 6:
				srcReg[i] = 2
			default:
				srcReg[i] = 3
			}
		}
	}

	maxID, err := mergeAndFilterRegions(1, 20, 3, chf, srcReg)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), maxID)

	center := srcReg[chf.Cells[5+5*side].Index]
	left := srcReg[chf.Cells[0+0*side].Index]
	right := srcReg[chf.Cells[11+11*side].Index]
	require.NotZero(t, center)
	assert.NotEqual(t, left, right)
	assert.True(t, center == left || center == right)

	ids := map[uint16]bool{}
	for _, r := range srcReg {
		require.NotZero(t, r)
		ids[r] = true
	}
	assert.Len(t, ids, 2)
}

func TestMergeRegionsKeepsLargeBorderRegions(t *testing.T) {
	const side = 12
	chf := planeField(t, side, side)

	// Both halves touch the tile border and exceed the merge threshold,
	// so neither may be folded into the other.
	srcReg := make([]uint16, chf.SpanCount)
	for z := int32(0); z < side; z++ {
		for x := int32(0); x < side; x++ {
			i := chf.Cells[x+z*side].Index
			if x < 6 {
				srcReg[i] = 1
			} else {
				srcReg[i] = 2
			}
		}
	}

	maxID, err := mergeAndFilterRegions(1, 20, 2, chf, srcReg)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), maxID)

	left := srcReg[chf.Cells[0+0*side].Index]
	right := srcReg[chf.Cells[11+0*side].Index]
	assert.NotZero(t, left)
	assert.NotZero(t, right)
	assert.NotEqual(t, left, right)
}
