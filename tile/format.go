// Package tile serializes navigation mesh tiles into the versioned binary
// format and manages them in a salt-checked tile store.
package tile

import (
	"errors"
	"fmt"

	"github.com/navforge/navforge/binio"
)

// Navigation data format identifiers. A tile blob starts with the mesh magic
// and version; a tile file wraps the blob in a container header carrying the
// generator version.
const (
	// NavMeshMagic identifies serialized navigation mesh data ('DNAV').
	NavMeshMagic = int32('D')<<24 | int32('N')<<16 | int32('A')<<8 | int32('V')
	// NavMeshVersion is the navigation data format version.
	NavMeshVersion = 7

	// ContainerMagic identifies tile container files ('MMAP').
	ContainerMagic = 0x4d4d4150
	// ContainerVersion is the generator output version.
	ContainerVersion = 8
)

const (
	// VertsPerPolygon is the maximum vertex count of a stored polygon.
	VertsPerPolygon = 6

	// PolyBits is the reference bit budget for polygon ids within a tile;
	// stores built from generator output size MaxPolys as 1<<PolyBits.
	PolyBits = 20

	// ExtLink marks a polygon neighbour entry as an external (portal) link;
	// the low bits give the portal side.
	ExtLink = uint16(0x8000)
	// NullLink marks an absent link index.
	NullLink = uint32(0xffffffff)

	// OffMeshConBidir flags an off-mesh connection as bidirectional.
	OffMeshConBidir = 1

	// PolyTypeGround marks a regular polygon, PolyTypeOffMeshConnection an
	// off-mesh connection pseudo-polygon.
	PolyTypeGround            = 0
	PolyTypeOffMeshConnection = 1
)

// Serialized struct sizes in bytes.
const (
	headerSize     = 100
	polySize       = 32
	linkSize       = 12
	polyDetailSize = 12
	bvNodeSize     = 16
	offMeshConSize = 36
	fileHeaderSize = 20
	paramsSize     = 28
)

// ErrFormat reports data that does not parse as a navigation tile.
var ErrFormat = errors.New("tile: bad format")

// ErrInvalidParam reports invalid packing or store parameters.
var ErrInvalidParam = errors.New("tile: invalid parameter")

// MeshHeader is the fixed-size prefix of serialized tile data.
type MeshHeader struct {
	Magic           int32
	Version         int32
	X               int32
	Y               int32
	Layer           int32
	UserID          uint32
	PolyCount       int32
	VertCount       int32
	MaxLinkCount    int32
	DetailMeshCount int32
	DetailVertCount int32
	DetailTriCount  int32
	BVNodeCount     int32
	OffMeshConCount int32
	OffMeshBase     int32
	WalkableHeight  float32
	WalkableRadius  float32
	WalkableClimb   float32
	BMin            [3]float32
	BMax            [3]float32
	BVQuantFactor   float32
}

func (h *MeshHeader) encode(w *binio.Writer) {
	w.WriteInt32(h.Magic)
	w.WriteInt32(h.Version)
	w.WriteInt32(h.X)
	w.WriteInt32(h.Y)
	w.WriteInt32(h.Layer)
	w.WriteUint32(h.UserID)
	w.WriteInt32(h.PolyCount)
	w.WriteInt32(h.VertCount)
	w.WriteInt32(h.MaxLinkCount)
	w.WriteInt32(h.DetailMeshCount)
	w.WriteInt32(h.DetailVertCount)
	w.WriteInt32(h.DetailTriCount)
	w.WriteInt32(h.BVNodeCount)
	w.WriteInt32(h.OffMeshConCount)
	w.WriteInt32(h.OffMeshBase)
	w.WriteFloat32(h.WalkableHeight)
	w.WriteFloat32(h.WalkableRadius)
	w.WriteFloat32(h.WalkableClimb)
	for _, v := range h.BMin {
		w.WriteFloat32(v)
	}
	for _, v := range h.BMax {
		w.WriteFloat32(v)
	}
	w.WriteFloat32(h.BVQuantFactor)
}

func (h *MeshHeader) decode(r *binio.Reader) error {
	var err error
	read32 := func(dst *int32) {
		if err != nil {
			return
		}
		*dst, err = r.ReadInt32()
	}
	readf := func(dst *float32) {
		if err != nil {
			return
		}
		*dst, err = r.ReadFloat32()
	}
	read32(&h.Magic)
	read32(&h.Version)
	read32(&h.X)
	read32(&h.Y)
	read32(&h.Layer)
	if err == nil {
		h.UserID, err = r.ReadUint32()
	}
	read32(&h.PolyCount)
	read32(&h.VertCount)
	read32(&h.MaxLinkCount)
	read32(&h.DetailMeshCount)
	read32(&h.DetailVertCount)
	read32(&h.DetailTriCount)
	read32(&h.BVNodeCount)
	read32(&h.OffMeshConCount)
	read32(&h.OffMeshBase)
	readf(&h.WalkableHeight)
	readf(&h.WalkableRadius)
	readf(&h.WalkableClimb)
	for i := range h.BMin {
		readf(&h.BMin[i])
	}
	for i := range h.BMax {
		readf(&h.BMax[i])
	}
	readf(&h.BVQuantFactor)
	return err
}

// Poly is one stored polygon: up to VertsPerPolygon vertex indices and the
// matching neighbour references.
type Poly struct {
	FirstLink   uint32
	Verts       [VertsPerPolygon]uint16
	Neis        [VertsPerPolygon]uint16
	Flags       uint16
	VertCount   uint8
	areaAndType uint8
}

// SetArea stores the area id (low 6 bits).
func (p *Poly) SetArea(a uint8) { p.areaAndType = (p.areaAndType & 0xc0) | (a & 0x3f) }

// SetType stores the polygon type (high 2 bits).
func (p *Poly) SetType(t uint8) { p.areaAndType = (p.areaAndType & 0x3f) | (t << 6) }

// Area returns the area id.
func (p *Poly) Area() uint8 { return p.areaAndType & 0x3f }

// Type returns the polygon type.
func (p *Poly) Type() uint8 { return p.areaAndType >> 6 }

func (p *Poly) encode(w *binio.Writer) {
	w.WriteUint32(p.FirstLink)
	for _, v := range p.Verts {
		w.WriteUint16(v)
	}
	for _, v := range p.Neis {
		w.WriteUint16(v)
	}
	w.WriteUint16(p.Flags)
	w.WriteUint8(p.VertCount)
	w.WriteUint8(p.areaAndType)
}

func (p *Poly) decode(r *binio.Reader) error {
	var err error
	p.FirstLink, err = r.ReadUint32()
	if err != nil {
		return err
	}
	for i := range p.Verts {
		if p.Verts[i], err = r.ReadUint16(); err != nil {
			return err
		}
	}
	for i := range p.Neis {
		if p.Neis[i], err = r.ReadUint16(); err != nil {
			return err
		}
	}
	if p.Flags, err = r.ReadUint16(); err != nil {
		return err
	}
	if p.VertCount, err = r.ReadUint8(); err != nil {
		return err
	}
	p.areaAndType, err = r.ReadUint8()
	return err
}

// PolyDetail points one polygon at its slice of the detail arrays. VertCount
// counts only the detail vertices beyond the polygon's own.
type PolyDetail struct {
	VertBase  uint32
	TriBase   uint32
	VertCount uint8
	TriCount  uint8
}

func (d *PolyDetail) encode(w *binio.Writer) {
	w.WriteUint32(d.VertBase)
	w.WriteUint32(d.TriBase)
	w.WriteUint8(d.VertCount)
	w.WriteUint8(d.TriCount)
	w.Pad(2)
}

func (d *PolyDetail) decode(r *binio.Reader) error {
	var err error
	if d.VertBase, err = r.ReadUint32(); err != nil {
		return err
	}
	if d.TriBase, err = r.ReadUint32(); err != nil {
		return err
	}
	if d.VertCount, err = r.ReadUint8(); err != nil {
		return err
	}
	if d.TriCount, err = r.ReadUint8(); err != nil {
		return err
	}
	return r.Skip(2)
}

// BVNode is one bounding volume tree node with bounds quantized to the tile.
// A negative I is an escape index; a non-negative I is a polygon index.
type BVNode struct {
	BMin [3]uint16
	BMax [3]uint16
	I    int32
}

func (n *BVNode) encode(w *binio.Writer) {
	for _, v := range n.BMin {
		w.WriteUint16(v)
	}
	for _, v := range n.BMax {
		w.WriteUint16(v)
	}
	w.WriteInt32(n.I)
}

func (n *BVNode) decode(r *binio.Reader) error {
	var err error
	for i := range n.BMin {
		if n.BMin[i], err = r.ReadUint16(); err != nil {
			return err
		}
	}
	for i := range n.BMax {
		if n.BMax[i], err = r.ReadUint16(); err != nil {
			return err
		}
	}
	n.I, err = r.ReadInt32()
	return err
}

// OffMeshCon is a stored off-mesh connection.
type OffMeshCon struct {
	Pos    [6]float32
	Rad    float32
	Poly   uint16
	Flags  uint8
	Side   uint8
	UserID uint32
}

func (c *OffMeshCon) encode(w *binio.Writer) {
	for _, v := range c.Pos {
		w.WriteFloat32(v)
	}
	w.WriteFloat32(c.Rad)
	w.WriteUint16(c.Poly)
	w.WriteUint8(c.Flags)
	w.WriteUint8(c.Side)
	w.WriteUint32(c.UserID)
}

func (c *OffMeshCon) decode(r *binio.Reader) error {
	var err error
	for i := range c.Pos {
		if c.Pos[i], err = r.ReadFloat32(); err != nil {
			return err
		}
	}
	if c.Rad, err = r.ReadFloat32(); err != nil {
		return err
	}
	if c.Poly, err = r.ReadUint16(); err != nil {
		return err
	}
	if c.Flags, err = r.ReadUint8(); err != nil {
		return err
	}
	if c.Side, err = r.ReadUint8(); err != nil {
		return err
	}
	c.UserID, err = r.ReadUint32()
	return err
}

// FileHeader is the container prefix of a tile file: identifies the data
// format, the generator version and the payload size.
type FileHeader struct {
	Magic       uint32
	DtVersion   uint32
	MmapVersion uint32
	Size        uint32
	UsesLiquids uint32
}

// NewFileHeader returns a header for a payload of size bytes.
func NewFileHeader(size int, usesLiquids bool) FileHeader {
	h := FileHeader{
		Magic:       ContainerMagic,
		DtVersion:   NavMeshVersion,
		MmapVersion: ContainerVersion,
		Size:        uint32(size),
	}
	if usesLiquids {
		h.UsesLiquids = 1
	}
	return h
}

// Encode appends the header bytes to w.
func (h *FileHeader) Encode(w *binio.Writer) {
	w.WriteUint32(h.Magic)
	w.WriteUint32(h.DtVersion)
	w.WriteUint32(h.MmapVersion)
	w.WriteUint32(h.Size)
	w.WriteUint32(h.UsesLiquids)
}

// DecodeFileHeader reads and validates a container header.
func DecodeFileHeader(r *binio.Reader) (FileHeader, error) {
	var h FileHeader
	var err error
	if h.Magic, err = r.ReadUint32(); err != nil {
		return h, err
	}
	if h.DtVersion, err = r.ReadUint32(); err != nil {
		return h, err
	}
	if h.MmapVersion, err = r.ReadUint32(); err != nil {
		return h, err
	}
	if h.Size, err = r.ReadUint32(); err != nil {
		return h, err
	}
	if h.UsesLiquids, err = r.ReadUint32(); err != nil {
		return h, err
	}
	if h.Magic != ContainerMagic {
		return h, fmt.Errorf("%w: container magic %#x", ErrFormat, h.Magic)
	}
	if h.DtVersion != NavMeshVersion {
		return h, fmt.Errorf("%w: navmesh version %d (want %d)", ErrFormat, h.DtVersion, NavMeshVersion)
	}
	if h.MmapVersion != ContainerVersion {
		return h, fmt.Errorf("%w: container version %d (want %d)", ErrFormat, h.MmapVersion, ContainerVersion)
	}
	return h, nil
}

// StoreParams is the persisted navmesh layout: world origin, tile grid
// dimensions and capacity limits. It is written once per map next to the
// tile files.
type StoreParams struct {
	Orig       [3]float32
	TileWidth  float32
	TileHeight float32
	MaxTiles   int32
	MaxPolys   int32
}

// Encode appends the parameter block to w.
func (p *StoreParams) Encode(w *binio.Writer) {
	for _, v := range p.Orig {
		w.WriteFloat32(v)
	}
	w.WriteFloat32(p.TileWidth)
	w.WriteFloat32(p.TileHeight)
	w.WriteInt32(p.MaxTiles)
	w.WriteInt32(p.MaxPolys)
}

// DecodeStoreParams reads a parameter block.
func DecodeStoreParams(r *binio.Reader) (StoreParams, error) {
	var p StoreParams
	var err error
	for i := range p.Orig {
		if p.Orig[i], err = r.ReadFloat32(); err != nil {
			return p, err
		}
	}
	if p.TileWidth, err = r.ReadFloat32(); err != nil {
		return p, err
	}
	if p.TileHeight, err = r.ReadFloat32(); err != nil {
		return p, err
	}
	if p.MaxTiles, err = r.ReadInt32(); err != nil {
		return p, err
	}
	p.MaxPolys, err = r.ReadInt32()
	return p, err
}
