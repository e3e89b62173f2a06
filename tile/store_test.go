package tile

import (
	"testing"

	"github.com/navforge/navforge/binio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStoreParams(maxTiles int32) *StoreParams {
	return &StoreParams{
		Orig:       [3]float32{0, 0, 0},
		TileWidth:  10,
		TileHeight: 10,
		MaxTiles:   maxTiles,
		MaxPolys:   1 << PolyBits,
	}
}

// packTestTile serializes a minimal tile at the given grid position.
func packTestTile(t *testing.T, x, y int32) []byte {
	t.Helper()
	params := singleTriangleParams()
	params.TileX = x
	params.TileY = y
	data, err := Pack(params)
	require.NoError(t, err)
	return data
}

func TestNewNavMeshValidation(t *testing.T) {
	_, err := NewNavMesh(testStoreParams(0))
	assert.ErrorIs(t, err, ErrInvalidParam)

	p := testStoreParams(8)
	p.TileWidth = 0
	_, err = NewNavMesh(p)
	assert.ErrorIs(t, err, ErrInvalidParam)

	// Capacity so large the reference has no room left for salt bits.
	p = testStoreParams(1 << 28)
	p.MaxPolys = 1 << 30
	_, err = NewNavMesh(p)
	assert.ErrorIs(t, err, ErrInvalidParam)

	m, err := NewNavMesh(testStoreParams(8))
	require.NoError(t, err)
	assert.Equal(t, 0, m.TileCount())
}

func TestAddAndGetTile(t *testing.T) {
	m, err := NewNavMesh(testStoreParams(4))
	require.NoError(t, err)

	ref, err := m.AddTile(packTestTile(t, 2, 3), true, 0)
	require.NoError(t, err)
	require.NotZero(t, ref)

	tile := m.GetTileAt(2, 3, 0)
	require.NotNil(t, tile)
	assert.Equal(t, ref, m.TileRef(tile))
	assert.Equal(t, int32(1), tile.Header().PolyCount)

	byRef, err := m.GetTileByRef(ref)
	require.NoError(t, err)
	assert.Same(t, tile, byRef)

	assert.Nil(t, m.GetTileAt(0, 0, 0))
	assert.Equal(t, 1, m.TileCount())
}

func TestAddTileOccupied(t *testing.T) {
	m, err := NewNavMesh(testStoreParams(4))
	require.NoError(t, err)

	_, err = m.AddTile(packTestTile(t, 1, 1), true, 0)
	require.NoError(t, err)

	_, err = m.AddTile(packTestTile(t, 1, 1), true, 0)
	assert.ErrorIs(t, err, ErrTileExists)
}

func TestAddTileCapacity(t *testing.T) {
	m, err := NewNavMesh(testStoreParams(2))
	require.NoError(t, err)

	_, err = m.AddTile(packTestTile(t, 0, 0), true, 0)
	require.NoError(t, err)
	_, err = m.AddTile(packTestTile(t, 1, 0), true, 0)
	require.NoError(t, err)

	_, err = m.AddTile(packTestTile(t, 2, 0), true, 0)
	assert.ErrorIs(t, err, ErrNoSpace)
}

func TestAddTileRejectsBadData(t *testing.T) {
	m, err := NewNavMesh(testStoreParams(4))
	require.NoError(t, err)

	data := packTestTile(t, 0, 0)
	data[4] = 99 // version
	_, err = m.AddTile(data, true, 0)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestRemoveTileStaleRef(t *testing.T) {
	m, err := NewNavMesh(testStoreParams(4))
	require.NoError(t, err)

	data := packTestTile(t, 0, 0)
	ref, err := m.AddTile(data, false, 0)
	require.NoError(t, err)

	got, err := m.RemoveTile(ref)
	require.NoError(t, err)
	// The store did not own the buffer, so it hands it back.
	assert.Equal(t, data, got)

	// The original reference is dead even though the slot is free again.
	_, err = m.GetTileByRef(ref)
	assert.ErrorIs(t, err, ErrStaleRef)
	_, err = m.RemoveTile(ref)
	assert.ErrorIs(t, err, ErrStaleRef)
	assert.Nil(t, m.GetTileAt(0, 0, 0))

	// Reusing the slot yields a different reference.
	ref2, err := m.AddTile(packTestTile(t, 0, 0), true, 0)
	require.NoError(t, err)
	assert.NotEqual(t, ref, ref2)
	_, err = m.GetTileByRef(ref)
	assert.ErrorIs(t, err, ErrStaleRef)
}

func TestRemoveOwnedTileKeepsData(t *testing.T) {
	m, err := NewNavMesh(testStoreParams(4))
	require.NoError(t, err)

	ref, err := m.AddTile(packTestTile(t, 0, 0), true, 0)
	require.NoError(t, err)

	got, err := m.RemoveTile(ref)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAddTileLastRefRestoresSlot(t *testing.T) {
	m, err := NewNavMesh(testStoreParams(4))
	require.NoError(t, err)

	ref, err := m.AddTile(packTestTile(t, 5, 5), true, 0)
	require.NoError(t, err)
	_, err = m.RemoveTile(ref)
	require.NoError(t, err)

	// Reinsert asking for the old slot and salt: outstanding copies of the
	// original reference become valid again.
	ref2, err := m.AddTile(packTestTile(t, 5, 5), true, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, ref2)

	tile, err := m.GetTileByRef(ref)
	require.NoError(t, err)
	assert.Equal(t, int32(5), tile.Header().X)
}

func TestAddTileLastRefSlotTaken(t *testing.T) {
	m, err := NewNavMesh(testStoreParams(1))
	require.NoError(t, err)

	ref, err := m.AddTile(packTestTile(t, 0, 0), true, 0)
	require.NoError(t, err)

	// The only slot is occupied, so a relocation request cannot be served.
	_, err = m.AddTile(packTestTile(t, 1, 1), true, ref)
	assert.ErrorIs(t, err, ErrNoSpace)
}

func TestGetTilesAtLayers(t *testing.T) {
	m, err := NewNavMesh(testStoreParams(4))
	require.NoError(t, err)

	layer0 := singleTriangleParams()
	layer0.TileX, layer0.TileY, layer0.TileLayer = 1, 1, 0
	d0, err := Pack(layer0)
	require.NoError(t, err)

	layer1 := singleTriangleParams()
	layer1.TileX, layer1.TileY, layer1.TileLayer = 1, 1, 1
	d1, err := Pack(layer1)
	require.NoError(t, err)

	_, err = m.AddTile(d0, true, 0)
	require.NoError(t, err)
	_, err = m.AddTile(d1, true, 0)
	require.NoError(t, err)

	assert.Len(t, m.GetTilesAt(1, 1), 2)
	require.NotNil(t, m.GetTileAt(1, 1, 1))
	assert.Equal(t, int32(1), m.GetTileAt(1, 1, 1).Header().Layer)
}

func TestStoreParamsRoundTrip(t *testing.T) {
	p := StoreParams{
		Orig:       [3]float32{-100, 5, -200},
		TileWidth:  533.3333313,
		TileHeight: 533.3333313,
		MaxTiles:   64,
		MaxPolys:   1 << PolyBits,
	}

	w := binio.NewWriter()
	p.Encode(w)
	got, err := DecodeStoreParams(binio.NewReader(w.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestFileHeaderRoundTrip(t *testing.T) {
	h := NewFileHeader(1234, true)

	w := binio.NewWriter()
	h.Encode(w)
	got, err := DecodeFileHeader(binio.NewReader(w.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, h, got)

	// A mismatched generator version is rejected.
	bad := NewFileHeader(10, false)
	bad.MmapVersion = 3
	w = binio.NewWriter()
	bad.Encode(w)
	_, err = DecodeFileHeader(binio.NewReader(w.Bytes()))
	assert.ErrorIs(t, err, ErrFormat)
}
