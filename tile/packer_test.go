package tile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// singleTriangleParams builds the smallest packable tile: one triangle
// polygon with a matching one-triangle detail mesh.
func singleTriangleParams() *CreateParams {
	return &CreateParams{
		Verts: []uint16{
			0, 2, 0,
			10, 2, 0,
			0, 2, 10,
		},
		VertCount: 3,
		Polys: []uint16{
			// Vertex indices, then neighbours (all border).
			0, 1, 2, 0xffff, 0xffff, 0xffff,
			0xffff, 0xffff, 0xffff, 0xffff, 0xffff, 0xffff,
		},
		PolyFlags: []uint16{1},
		PolyAreas: []uint8{1},
		PolyCount: 1,
		Nvp:       6,

		DetailMeshes:    []uint32{0, 3, 0, 1},
		DetailVerts:     []float32{0, 0.6, 0, 3, 0.6, 0, 0, 0.6, 3},
		DetailVertCount: 3,
		DetailTris:      []uint8{0, 1, 2, 0},
		DetailTriCount:  1,

		TileX:          0,
		TileY:          0,
		BMin:           [3]float32{0, 0, 0},
		BMax:           [3]float32{3, 1, 3},
		WalkableHeight: 2,
		WalkableRadius: 0.6,
		WalkableClimb:  0.9,
		CS:             0.3,
		CH:             0.2,
		BuildBVTree:    true,
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	params := singleTriangleParams()

	data, err := Pack(params)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	td, err := Unpack(data)
	require.NoError(t, err)

	h := &td.Header
	assert.Equal(t, int32(NavMeshMagic), h.Magic)
	assert.Equal(t, int32(NavMeshVersion), h.Version)
	assert.Equal(t, int32(1), h.PolyCount)
	assert.Equal(t, int32(3), h.VertCount)
	assert.Equal(t, int32(1), h.DetailMeshCount)
	assert.Equal(t, int32(1), h.DetailTriCount)
	assert.Equal(t, params.BMin[0], h.BMin[0])
	assert.Equal(t, params.BMax[2], h.BMax[2])
	assert.Equal(t, int32(2), h.BVNodeCount)

	// Vertices dequantize into world space.
	require.Len(t, td.Verts, 9)
	assert.InDelta(t, 0, td.Verts[0], 1e-6)
	assert.InDelta(t, 3, td.Verts[3], 1e-6)

	require.Len(t, td.Polys, 1)
	p := &td.Polys[0]
	assert.Equal(t, uint8(3), p.VertCount)
	assert.Equal(t, uint16(1), p.Flags)
	assert.Equal(t, uint8(1), p.Area())
	assert.Equal(t, uint8(PolyTypeGround), p.Type())
	assert.Equal(t, NullLink, p.FirstLink)

	require.Len(t, td.DetailMeshes, 1)
	assert.Equal(t, uint8(0), td.DetailMeshes[0].VertCount)
	assert.Equal(t, uint8(1), td.DetailMeshes[0].TriCount)
}

func TestPackRejectsInvalidParams(t *testing.T) {
	params := singleTriangleParams()
	params.Nvp = VertsPerPolygon + 1
	_, err := Pack(params)
	assert.ErrorIs(t, err, ErrInvalidParam)

	params = singleTriangleParams()
	params.VertCount = 0
	_, err = Pack(params)
	assert.ErrorIs(t, err, ErrInvalidParam)

	params = singleTriangleParams()
	params.PolyCount = 0
	_, err = Pack(params)
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestUnpackRejectsCorruptData(t *testing.T) {
	params := singleTriangleParams()
	data, err := Pack(params)
	require.NoError(t, err)

	// Truncated buffer.
	_, err = Unpack(data[:len(data)-8])
	assert.ErrorIs(t, err, ErrFormat)

	// Wrong magic.
	bad := append([]byte(nil), data...)
	bad[0] ^= 0xff
	_, err = Unpack(bad)
	assert.ErrorIs(t, err, ErrFormat)

	// Wrong version.
	bad = append([]byte(nil), data...)
	bad[4] = 99
	_, err = Unpack(bad)
	assert.ErrorIs(t, err, ErrFormat)

	// Too short for even a header.
	_, err = Unpack(data[:10])
	assert.ErrorIs(t, err, ErrFormat)
}

func TestPackOffMeshConnections(t *testing.T) {
	params := singleTriangleParams()
	// One connection starting inside the tile, one far outside.
	params.OffMeshConVerts = []float32{
		1, 0.5, 1, 8, 0.5, 8,
		100, 0.5, 100, 101, 0.5, 101,
	}
	params.OffMeshConRad = []float32{0.5, 0.5}
	params.OffMeshConFlags = []uint16{0xff, 0xff}
	params.OffMeshConAreas = []uint8{0x3f, 0x3f}
	params.OffMeshConDir = []uint8{1, 1}
	params.OffMeshConCount = 2

	data, err := Pack(params)
	require.NoError(t, err)

	td, err := Unpack(data)
	require.NoError(t, err)

	// Only the in-tile connection is stored, as an extra 2-vertex polygon.
	assert.Equal(t, int32(1), td.Header.OffMeshConCount)
	assert.Equal(t, int32(2), td.Header.PolyCount)
	assert.Equal(t, int32(5), td.Header.VertCount)
	assert.Equal(t, int32(1), td.Header.OffMeshBase)

	require.Len(t, td.OffMeshCons, 1)
	con := &td.OffMeshCons[0]
	assert.Equal(t, uint16(1), con.Poly)
	assert.Equal(t, uint8(OffMeshConBidir), con.Flags)
	assert.Equal(t, float32(0.5), con.Rad)

	link := &td.Polys[1]
	assert.Equal(t, uint8(PolyTypeOffMeshConnection), link.Type())
	assert.Equal(t, uint8(2), link.VertCount)
	assert.Equal(t, uint16(3), link.Verts[0])
	assert.Equal(t, uint16(4), link.Verts[1])
}

func TestBVTreeCoversPolys(t *testing.T) {
	params := singleTriangleParams()
	data, err := Pack(params)
	require.NoError(t, err)
	td, err := Unpack(data)
	require.NoError(t, err)

	require.NotEmpty(t, td.BVTree)
	// The first node holds the single polygon.
	assert.Equal(t, int32(0), td.BVTree[0].I)
	for k := 0; k < 3; k++ {
		assert.LessOrEqual(t, td.BVTree[0].BMin[k], td.BVTree[0].BMax[k])
	}
	assert.InDelta(t, 1/params.CS, td.Header.BVQuantFactor, 1e-6)
}
