package mesher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSpanOrdering(t *testing.T) {
	hf := NewHeightfield(1, 1, []float32{0, 0, 0}, []float32{1, 10, 1}, 1, 0.5)

	hf.AddSpan(0, 0, 6, 8, WalkableArea, 1)
	hf.AddSpan(0, 0, 0, 2, WalkableArea, 1)

	spans := columnSpans(hf, 0, 0)
	require.Len(t, spans, 2)
	assert.Equal(t, uint16(0), spans[0].SMin)
	assert.Equal(t, uint16(2), spans[0].SMax)
	assert.Equal(t, uint16(6), spans[1].SMin)
	assert.Equal(t, uint16(8), spans[1].SMax)
}

func TestAddSpanMergeOverlap(t *testing.T) {
	hf := NewHeightfield(1, 1, []float32{0, 0, 0}, []float32{1, 10, 1}, 1, 0.5)

	hf.AddSpan(0, 0, 0, 5, 1, 4)
	hf.AddSpan(0, 0, 3, 8, 2, 4)

	spans := columnSpans(hf, 0, 0)
	require.Len(t, spans, 1)
	assert.Equal(t, uint16(0), spans[0].SMin)
	assert.Equal(t, uint16(8), spans[0].SMax)
	// Tops differ by 3 <= threshold 4, higher area id wins.
	assert.Equal(t, uint8(2), spans[0].Area)
}

func TestAddSpanMergeAreaThreshold(t *testing.T) {
	hf := NewHeightfield(1, 1, []float32{0, 0, 0}, []float32{1, 10, 1}, 1, 0.5)

	hf.AddSpan(0, 0, 0, 2, 7, 1)
	hf.AddSpan(0, 0, 0, 10, 5, 1)

	spans := columnSpans(hf, 0, 0)
	require.Len(t, spans, 1)
	// The old top sits 8 below the merged top, beyond threshold 1: the
	// covering span keeps its own area id.
	assert.Equal(t, uint8(5), spans[0].Area)

	hf2 := NewHeightfield(1, 1, []float32{0, 0, 0}, []float32{1, 10, 1}, 1, 0.5)
	hf2.AddSpan(0, 0, 0, 2, 7, 8)
	hf2.AddSpan(0, 0, 0, 10, 5, 8)
	spans = columnSpans(hf2, 0, 0)
	require.Len(t, spans, 1)
	// Within threshold 8 the higher area id wins.
	assert.Equal(t, uint8(7), spans[0].Area)
}

func TestAddSpanBridgesGap(t *testing.T) {
	hf := NewHeightfield(1, 1, []float32{0, 0, 0}, []float32{1, 10, 1}, 1, 0.5)

	hf.AddSpan(0, 0, 0, 2, WalkableArea, 1)
	hf.AddSpan(0, 0, 6, 8, WalkableArea, 1)
	hf.AddSpan(0, 0, 1, 7, WalkableArea, 1)

	spans := columnSpans(hf, 0, 0)
	require.Len(t, spans, 1)
	assert.Equal(t, uint16(0), spans[0].SMin)
	assert.Equal(t, uint16(8), spans[0].SMax)
	// Merged spans are recycled through the freelist.
	assert.NotEqual(t, nilSpan, hf.freelist)
}

func TestSpanCountSkipsNullArea(t *testing.T) {
	hf := NewHeightfield(2, 1, []float32{0, 0, 0}, []float32{2, 10, 1}, 1, 0.5)

	hf.AddSpan(0, 0, 0, 2, WalkableArea, 1)
	hf.AddSpan(1, 0, 0, 2, NullArea, 1)

	assert.Equal(t, int32(1), hf.SpanCount())
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		CS:              1,
		CH:              0.5,
		WalkableHeight:  3,
		MaxVertsPerPoly: 6,
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.CS = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = valid
	bad.WalkableSlopeAngle = 90
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = valid
	bad.MaxVertsPerPoly = MaxVertsPerPolygon + 1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = valid
	bad.DetailSampleDist = 0.5
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}
