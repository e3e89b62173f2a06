package mesher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterLowHangingWalkableObstacles(t *testing.T) {
	hf := NewHeightfield(1, 1, []float32{0, 0, 0}, []float32{1, 10, 1}, 1, 0.5)
	hf.AddSpan(0, 0, 0, 2, WalkableArea, 1)
	hf.AddSpan(0, 0, 2, 3, NullArea, 1)

	FilterLowHangingWalkableObstacles(1, hf)

	spans := columnSpans(hf, 0, 0)
	require.Len(t, spans, 2)
	// The obstacle sits 1 cell above a walkable floor, within climb reach.
	assert.Equal(t, uint8(WalkableArea), spans[1].Area)
}

func TestFilterLowHangingKeepsTallObstacles(t *testing.T) {
	hf := NewHeightfield(1, 1, []float32{0, 0, 0}, []float32{1, 10, 1}, 1, 0.5)
	hf.AddSpan(0, 0, 0, 2, WalkableArea, 1)
	hf.AddSpan(0, 0, 2, 6, NullArea, 1)

	FilterLowHangingWalkableObstacles(1, hf)

	spans := columnSpans(hf, 0, 0)
	require.Len(t, spans, 2)
	assert.Equal(t, uint8(NullArea), spans[1].Area)
}

func TestFilterLedgeSpans(t *testing.T) {
	hf := planeHeightfield(t, 5, 5)
	// Raise the center column into a pillar.
	hf.AddSpan(2, 2, 0, 10, WalkableArea, 1)

	FilterLedgeSpans(3, 2, hf)

	center := columnSpans(hf, 2, 2)
	require.Len(t, center, 1)
	assert.Equal(t, uint8(NullArea), center[0].Area, "pillar top should be a ledge")

	// Flat interior cells survive, even next to the pillar wall.
	beside := columnSpans(hf, 1, 2)
	require.Len(t, beside, 1)
	assert.Equal(t, uint8(WalkableArea), beside[0].Area)

	// The grid edge counts as a drop.
	corner := columnSpans(hf, 0, 0)
	require.Len(t, corner, 1)
	assert.Equal(t, uint8(NullArea), corner[0].Area)
}

func TestFilterWalkableLowHeightSpans(t *testing.T) {
	hf := NewHeightfield(1, 1, []float32{0, 0, 0}, []float32{1, 10, 1}, 1, 0.5)
	hf.AddSpan(0, 0, 0, 1, WalkableArea, 1)
	hf.AddSpan(0, 0, 3, 4, WalkableArea, 1)

	FilterWalkableLowHeightSpans(3, hf)

	spans := columnSpans(hf, 0, 0)
	require.Len(t, spans, 2)
	// Only 2 cells of clearance under the upper span.
	assert.Equal(t, uint8(NullArea), spans[0].Area)
	assert.Equal(t, uint8(WalkableArea), spans[1].Area)
}
