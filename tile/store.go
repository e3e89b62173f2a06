package tile

import (
	"errors"
	"fmt"

	"github.com/navforge/navforge/geom"
)

// Store errors.
var (
	// ErrStaleRef reports a reference whose tile was removed or replaced.
	ErrStaleRef = errors.New("tile: stale reference")
	// ErrTileExists reports an insertion at an occupied grid position.
	ErrTileExists = errors.New("tile: position already occupied")
	// ErrNoSpace reports an exhausted tile capacity.
	ErrNoSpace = errors.New("tile: out of tile slots")
)

// Ref is an opaque tile reference. It packs the slot's salt (generation)
// and the slot index; a removed tile's references stay invalid even after
// the slot is reused.
type Ref uint64

// MeshTile is one loaded tile slot.
type MeshTile struct {
	Salt uint32

	// Data is the raw serialized tile, Decoded its parsed form.
	Data    []byte
	Decoded *TileData

	// OwnsData records whether the store frees the buffer on removal.
	OwnsData bool

	index uint32
	next  *MeshTile
}

// Header returns the tile's mesh header, or nil for an empty slot.
func (t *MeshTile) Header() *MeshHeader {
	if t.Decoded == nil {
		return nil
	}
	return &t.Decoded.Header
}

type tilePos struct {
	x, y int32
}

// NavMesh is the tile store: a fixed pool of tile slots indexed by grid
// position and layer, handing out salted references. Mutating calls must be
// serialized by the caller; concurrent reads of an unmodified store are
// safe.
type NavMesh struct {
	params StoreParams

	tiles     []MeshTile
	posLookup map[tilePos]*MeshTile
	nextFree  *MeshTile

	saltBits uint32
	tileBits uint32
	polyBits uint32
}

// NewNavMesh initializes a store from layout parameters. The max tile and
// polygon counts bound the bit widths used by references; the remaining
// bits carry the salt and must allow at least 10 bits.
func NewNavMesh(params *StoreParams) (*NavMesh, error) {
	if params.MaxTiles <= 0 || params.MaxPolys <= 0 {
		return nil, fmt.Errorf("%w: maxTiles %d, maxPolys %d", ErrInvalidParam, params.MaxTiles, params.MaxPolys)
	}
	if params.TileWidth <= 0 || params.TileHeight <= 0 {
		return nil, fmt.Errorf("%w: tile dimensions %gx%g", ErrInvalidParam, params.TileWidth, params.TileHeight)
	}

	m := &NavMesh{
		params:    *params,
		posLookup: make(map[tilePos]*MeshTile),
	}
	m.tileBits = geom.Ilog2(geom.NextPow2(uint32(params.MaxTiles)))
	m.polyBits = geom.Ilog2(geom.NextPow2(uint32(params.MaxPolys)))
	if m.tileBits+m.polyBits > 54 {
		return nil, fmt.Errorf("%w: only %d salt bits left by tile/poly capacity", ErrInvalidParam, 64-m.tileBits-m.polyBits)
	}
	m.saltBits = 64 - m.tileBits - m.polyBits
	if m.saltBits > 31 {
		m.saltBits = 31
	}
	m.tiles = make([]MeshTile, params.MaxTiles)

	// Free list, lowest index first.
	for i := int(params.MaxTiles) - 1; i >= 0; i-- {
		t := &m.tiles[i]
		t.Salt = 1
		t.index = uint32(i)
		t.next = m.nextFree
		m.nextFree = t
	}
	return m, nil
}

// Params returns the store's layout parameters.
func (m *NavMesh) Params() StoreParams { return m.params }

// encodeTileRef packs a salt and slot index into a reference.
func (m *NavMesh) encodeTileRef(salt, it uint32) Ref {
	return Ref(uint64(salt)<<(m.polyBits+m.tileBits) | uint64(it)<<m.polyBits)
}

// decodeTileRef splits a reference into salt and slot index.
func (m *NavMesh) decodeTileRef(ref Ref) (salt, it uint32) {
	saltMask := uint64(1)<<m.saltBits - 1
	tileMask := uint64(1)<<m.tileBits - 1
	salt = uint32(uint64(ref) >> (m.polyBits + m.tileBits) & saltMask)
	it = uint32(uint64(ref) >> m.polyBits & tileMask)
	return salt, it
}

// TileRef returns the current reference of a loaded tile, or 0 for nil or
// an empty slot.
func (m *NavMesh) TileRef(t *MeshTile) Ref {
	if t == nil || t.Decoded == nil {
		return 0
	}
	return m.encodeTileRef(t.Salt, t.index)
}

// GetTileAt returns the tile at a grid position and layer, or nil.
func (m *NavMesh) GetTileAt(x, y, layer int32) *MeshTile {
	for t := m.posLookup[tilePos{x, y}]; t != nil; t = t.next {
		if t.Header().Layer == layer {
			return t
		}
	}
	return nil
}

// GetTilesAt returns all loaded layers at a grid position.
func (m *NavMesh) GetTilesAt(x, y int32) []*MeshTile {
	var out []*MeshTile
	for t := m.posLookup[tilePos{x, y}]; t != nil; t = t.next {
		out = append(out, t)
	}
	return out
}

// GetTileByRef resolves a reference, rejecting stale ones.
func (m *NavMesh) GetTileByRef(ref Ref) (*MeshTile, error) {
	if ref == 0 {
		return nil, fmt.Errorf("%w: zero reference", ErrInvalidParam)
	}
	salt, it := m.decodeTileRef(ref)
	if it >= uint32(m.params.MaxTiles) {
		return nil, fmt.Errorf("%w: tile index %d out of range", ErrInvalidParam, it)
	}
	t := &m.tiles[it]
	if t.Salt != salt || t.Decoded == nil {
		return nil, ErrStaleRef
	}
	return t, nil
}

// AddTile inserts serialized tile data and returns its reference. A nonzero
// lastRef asks for the same slot and salt the tile occupied before, so
// previously handed out references stay valid across a reload; the request
// fails if that slot is taken. When ownsData is set the store drops the
// buffer on removal instead of returning it.
func (m *NavMesh) AddTile(data []byte, ownsData bool, lastRef Ref) (Ref, error) {
	td, err := Unpack(data)
	if err != nil {
		return 0, err
	}
	h := &td.Header

	if m.GetTileAt(h.X, h.Y, h.Layer) != nil {
		return 0, fmt.Errorf("%w: tile %d,%d layer %d", ErrTileExists, h.X, h.Y, h.Layer)
	}

	var t *MeshTile
	if lastRef == 0 {
		if m.nextFree != nil {
			t = m.nextFree
			m.nextFree = t.next
			t.next = nil
		}
	} else {
		// Relocate to the slot the reference names, keeping its salt.
		salt, it := m.decodeTileRef(lastRef)
		if it >= uint32(m.params.MaxTiles) {
			return 0, fmt.Errorf("%w: tile index %d out of range", ErrInvalidParam, it)
		}
		prev := (*MeshTile)(nil)
		for cand := m.nextFree; cand != nil; cand = cand.next {
			if cand.index == it {
				t = cand
				break
			}
			prev = cand
		}
		if t == nil {
			return 0, fmt.Errorf("%w: slot %d not free", ErrNoSpace, it)
		}
		if prev == nil {
			m.nextFree = t.next
		} else {
			prev.next = t.next
		}
		t.next = nil
		t.Salt = salt
	}
	if t == nil {
		return 0, ErrNoSpace
	}

	pos := tilePos{h.X, h.Y}
	t.next = m.posLookup[pos]
	m.posLookup[pos] = t

	t.Data = data
	t.Decoded = td
	t.OwnsData = ownsData

	return m.encodeTileRef(t.Salt, t.index), nil
}

// RemoveTile removes the referenced tile, invalidating all references to
// it. It returns the tile buffer when the store does not own it, so the
// caller can reclaim it.
func (m *NavMesh) RemoveTile(ref Ref) ([]byte, error) {
	t, err := m.GetTileByRef(ref)
	if err != nil {
		return nil, err
	}
	h := t.Header()

	// Unlink from the position chain.
	pos := tilePos{h.X, h.Y}
	if head := m.posLookup[pos]; head == t {
		if t.next == nil {
			delete(m.posLookup, pos)
		} else {
			m.posLookup[pos] = t.next
		}
	} else {
		for cur := head; cur != nil; cur = cur.next {
			if cur.next == t {
				cur.next = t.next
				break
			}
		}
	}
	t.next = nil

	var data []byte
	if !t.OwnsData {
		data = t.Data
	}
	t.Data = nil
	t.Decoded = nil
	t.OwnsData = false

	// Bump the salt so outstanding references go stale.
	t.Salt = (t.Salt + 1) & (1<<m.saltBits - 1)
	if t.Salt == 0 {
		t.Salt++
	}

	t.next = m.nextFree
	m.nextFree = t

	return data, nil
}

// TileCount returns the number of loaded tiles.
func (m *NavMesh) TileCount() int {
	n := 0
	for i := range m.tiles {
		if m.tiles[i].Decoded != nil {
			n++
		}
	}
	return n
}
