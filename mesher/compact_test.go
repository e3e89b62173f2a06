package mesher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navforge/navforge/geom"
)

func TestBuildCompactHeightfieldCounts(t *testing.T) {
	chf := planeField(t, 6, 6)

	assert.Equal(t, int32(6), chf.Width)
	assert.Equal(t, int32(6), chf.Height)
	assert.Equal(t, int32(36), chf.SpanCount)
	require.Len(t, chf.Spans, 36)
	for i := range chf.Spans {
		assert.Equal(t, uint16(1), chf.Spans[i].Y)
		assert.Equal(t, uint8(WalkableArea), chf.Areas[i])
	}
}

func TestCompactNeighbourSymmetry(t *testing.T) {
	// Ground plane plus a raised platform over the left half, giving
	// columns with two spans and partial connectivity.
	hf := planeHeightfield(t, 8, 8)
	verts, tris := planeGeometry(4, 8, 2.25)
	areas := []uint8{WalkableArea, WalkableArea}
	require.NoError(t, RasterizeTriangles(hf, verts, tris, areas, 1))

	chf, err := BuildCompactHeightfield(3, 1, hf)
	require.NoError(t, err)
	requireSymmetricConnections(t, chf)
}

// requireSymmetricConnections checks that every neighbour link has a
// matching link back from the neighbour.
func requireSymmetricConnections(t *testing.T, chf *CompactHeightfield) {
	t.Helper()
	for z := int32(0); z < chf.Height; z++ {
		for x := int32(0); x < chf.Width; x++ {
			c := &chf.Cells[x+z*chf.Width]
			for i := int32(c.Index); i < int32(c.Index+c.Count); i++ {
				s := &chf.Spans[i]
				for dir := int32(0); dir < 4; dir++ {
					layer := s.GetCon(dir)
					if layer == NotConnected {
						continue
					}
					nx := x + geom.DirOffsetX(dir)
					nz := z + geom.DirOffsetZ(dir)
					require.True(t, nx >= 0 && nz >= 0 && nx < chf.Width && nz < chf.Height,
						"connection out of grid at %d,%d dir %d", x, z, dir)
					nc := &chf.Cells[nx+nz*chf.Width]
					ni := int32(nc.Index) + layer
					ns := &chf.Spans[ni]
					back := ns.GetCon((dir + 2) & 3)
					require.Equal(t, i-int32(c.Index), back,
						"asymmetric link %d,%d dir %d", x, z, dir)
				}
			}
		}
	}
}

func TestCompactPlaneFullyConnected(t *testing.T) {
	chf := planeField(t, 4, 4)

	// Interior spans connect on all four sides.
	c := &chf.Cells[1+1*chf.Width]
	s := &chf.Spans[c.Index]
	for dir := int32(0); dir < 4; dir++ {
		assert.NotEqual(t, int32(NotConnected), s.GetCon(dir))
	}
	requireSymmetricConnections(t, chf)
}
