package tile

import (
	"fmt"
	"math"
	"sort"

	"github.com/navforge/navforge/binio"
)

// CreateParams carries everything needed to serialize one tile: the polygon
// mesh arrays, the optional detail mesh arrays, off-mesh connections and the
// agent dimensions baked into the tile header.
type CreateParams struct {
	// Polygon mesh attributes. Verts are grid-quantized cell coordinates.
	Verts     []uint16 // nverts*3
	VertCount int32
	Polys     []uint16 // npolys*2*nvp
	PolyFlags []uint16
	PolyAreas []uint8
	PolyCount int32
	Nvp       int32

	// Detail mesh attributes. Optional; when absent dummy fan triangles are
	// generated from the polygon vertices.
	DetailMeshes    []uint32 // npolys*4
	DetailVerts     []float32
	DetailVertCount int32
	DetailTris      []uint8
	DetailTriCount  int32

	// Off-mesh connections. Verts holds 2 world-space endpoints per
	// connection; only connections whose start point lands inside the tile
	// are stored.
	OffMeshConVerts  []float32 // count*2*3
	OffMeshConRad    []float32
	OffMeshConFlags  []uint16
	OffMeshConAreas  []uint8
	OffMeshConDir    []uint8
	OffMeshConUserID []uint32
	OffMeshConCount  int32

	// Tile identity and header attributes.
	UserID         uint32
	TileX          int32
	TileY          int32
	TileLayer      int32
	BMin           [3]float32
	BMax           [3]float32
	WalkableHeight float32
	WalkableRadius float32
	WalkableClimb  float32
	CS             float32
	CH             float32
	BuildBVTree    bool
}

const (
	offMeshSideMask = 0xff

	classXP = 1 << 0
	classZP = 1 << 1
	classXM = 1 << 2
	classZM = 1 << 3
)

// classifyOffMeshPoint maps a point's position relative to the tile bounds
// onto a portal side, or 0xff when the point is inside the bounds.
func classifyOffMeshPoint(pt, bmin, bmax []float32) uint8 {
	outcode := 0
	if pt[0] >= bmax[0] {
		outcode |= classXP
	}
	if pt[2] >= bmax[2] {
		outcode |= classZP
	}
	if pt[0] < bmin[0] {
		outcode |= classXM
	}
	if pt[2] < bmin[2] {
		outcode |= classZM
	}
	switch outcode {
	case classXP:
		return 0
	case classXP | classZP:
		return 1
	case classZP:
		return 2
	case classXM | classZP:
		return 3
	case classXM:
		return 4
	case classXM | classZM:
		return 5
	case classZM:
		return 6
	case classXP | classZM:
		return 7
	}
	return offMeshSideMask
}

type bvItem struct {
	bmin [3]uint16
	bmax [3]uint16
	i    int32
}

func calcItemExtents(items []bvItem, imin, imax int32, bmin, bmax *[3]uint16) {
	*bmin = items[imin].bmin
	*bmax = items[imin].bmax
	for i := imin + 1; i < imax; i++ {
		it := &items[i]
		for j := 0; j < 3; j++ {
			if it.bmin[j] < bmin[j] {
				bmin[j] = it.bmin[j]
			}
			if it.bmax[j] > bmax[j] {
				bmax[j] = it.bmax[j]
			}
		}
	}
}

func longestAxis(x, y, z uint16) int {
	axis := 0
	max := x
	if y > max {
		axis = 1
		max = y
	}
	if z > max {
		axis = 2
	}
	return axis
}

func subdivide(items []bvItem, imin, imax int32, curNode *int32, nodes []BVNode) {
	inum := imax - imin
	icur := *curNode
	node := &nodes[*curNode]
	*curNode++

	if inum == 1 {
		node.BMin = items[imin].bmin
		node.BMax = items[imin].bmax
		node.I = items[imin].i
		return
	}

	calcItemExtents(items, imin, imax, &node.BMin, &node.BMax)

	axis := longestAxis(node.BMax[0]-node.BMin[0], node.BMax[1]-node.BMin[1], node.BMax[2]-node.BMin[2])
	seg := items[imin:imax]
	sort.SliceStable(seg, func(a, b int) bool {
		return seg[a].bmin[axis] < seg[b].bmin[axis]
	})

	isplit := imin + inum/2
	subdivide(items, imin, isplit, curNode, nodes)
	subdivide(items, isplit, imax, curNode, nodes)

	iescape := *curNode - icur
	node.I = -iescape
}

// createBVTree builds the tile's bounding volume tree and returns the node
// count. Item bounds come from the detail vertices when present so the tree
// covers the true surface, and are quantized with the cell size.
func createBVTree(params *CreateParams, nodes []BVNode) int32 {
	items := make([]bvItem, params.PolyCount)
	quantFactor := 1 / params.CS
	for i := int32(0); i < params.PolyCount; i++ {
		it := &items[i]
		it.i = i
		if params.DetailMeshes != nil {
			vb := int32(params.DetailMeshes[i*4+0])
			ndv := int32(params.DetailMeshes[i*4+1])
			var bmin, bmax [3]float32
			dv := params.DetailVerts[vb*3 : vb*3+3]
			copy(bmin[:], dv)
			copy(bmax[:], dv)
			for j := int32(1); j < ndv; j++ {
				v := params.DetailVerts[(vb+j)*3 : (vb+j)*3+3]
				for k := 0; k < 3; k++ {
					bmin[k] = minf32(bmin[k], v[k])
					bmax[k] = maxf32(bmax[k], v[k])
				}
			}
			for k := 0; k < 3; k++ {
				it.bmin[k] = uint16(clampI32(int32((bmin[k]-params.BMin[k])*quantFactor), 0, 0xffff))
				it.bmax[k] = uint16(clampI32(int32((bmax[k]-params.BMin[k])*quantFactor), 0, 0xffff))
			}
		} else {
			p := params.Polys[i*params.Nvp*2:]
			v := params.Verts[int32(p[0])*3 : int32(p[0])*3+3]
			it.bmin[0] = v[0]
			it.bmin[1] = v[1]
			it.bmin[2] = v[2]
			it.bmax = it.bmin
			for j := int32(1); j < params.Nvp; j++ {
				if p[j] == 0xffff {
					break
				}
				v := params.Verts[int32(p[j])*3 : int32(p[j])*3+3]
				it.bmin[0] = minU16(it.bmin[0], v[0])
				it.bmin[1] = minU16(it.bmin[1], v[1])
				it.bmin[2] = minU16(it.bmin[2], v[2])
				it.bmax[0] = maxU16(it.bmax[0], v[0])
				it.bmax[1] = maxU16(it.bmax[1], v[1])
				it.bmax[2] = maxU16(it.bmax[2], v[2])
			}
			// Remap y to the bv-tree coordinate space.
			it.bmin[1] = uint16(math.Floor(float64(it.bmin[1]) * float64(params.CH) / float64(params.CS)))
			it.bmax[1] = uint16(math.Ceil(float64(it.bmax[1]) * float64(params.CH) / float64(params.CS)))
		}
	}

	var curNode int32
	subdivide(items, 0, params.PolyCount, &curNode, nodes)
	return curNode
}

// Pack serializes a tile into its binary form. The layout is the fixed
// header followed by the vertex, polygon, link, detail, bv-tree and off-mesh
// connection sections in that order, each 4-byte aligned.
func Pack(params *CreateParams) ([]byte, error) {
	if params.Nvp > VertsPerPolygon {
		return nil, fmt.Errorf("%w: nvp %d exceeds %d", ErrInvalidParam, params.Nvp, VertsPerPolygon)
	}
	if params.VertCount >= 0xffff {
		return nil, fmt.Errorf("%w: vertex count %d exceeds limit", ErrInvalidParam, params.VertCount)
	}
	if params.VertCount == 0 || params.Verts == nil {
		return nil, fmt.Errorf("%w: no vertices", ErrInvalidParam)
	}
	if params.PolyCount == 0 || params.Polys == nil {
		return nil, fmt.Errorf("%w: no polygons", ErrInvalidParam)
	}

	nvp := params.Nvp

	// Classify off-mesh connection endpoints against the tile bounds and
	// count the ones this tile stores.
	var offMeshConClass []uint8
	var storedOffMeshConCount int32
	var offMeshConLinkCount int32
	if params.OffMeshConCount > 0 {
		offMeshConClass = make([]uint8, params.OffMeshConCount*2)

		// Height bounds are used for culling out-of-tile start locations.
		hmin := float32(math.MaxFloat32)
		hmax := float32(-math.MaxFloat32)
		if params.DetailVerts != nil && params.DetailVertCount > 0 {
			for i := int32(0); i < params.DetailVertCount; i++ {
				h := params.DetailVerts[i*3+1]
				hmin = minf32(hmin, h)
				hmax = maxf32(hmax, h)
			}
		} else {
			for i := int32(0); i < params.VertCount; i++ {
				h := params.BMin[1] + float32(params.Verts[i*3+1])*params.CH
				hmin = minf32(hmin, h)
				hmax = maxf32(hmax, h)
			}
		}
		hmin -= params.WalkableClimb
		hmax += params.WalkableClimb
		bmin := params.BMin
		bmax := params.BMax
		bmin[1] = hmin
		bmax[1] = hmax

		for i := int32(0); i < params.OffMeshConCount; i++ {
			p0 := params.OffMeshConVerts[i*2*3 : i*2*3+3]
			p1 := params.OffMeshConVerts[(i*2+1)*3 : (i*2+1)*3+3]
			offMeshConClass[i*2+0] = classifyOffMeshPoint(p0, bmin[:], bmax[:])
			offMeshConClass[i*2+1] = classifyOffMeshPoint(p1, bmin[:], bmax[:])

			// Cull start points outside the tile height range.
			if offMeshConClass[i*2+0] == offMeshSideMask {
				if p0[1] < bmin[1] || p0[1] > bmax[1] {
					offMeshConClass[i*2+0] = 0
				}
			}
			if offMeshConClass[i*2+0] == offMeshSideMask {
				storedOffMeshConCount++
			}
			if offMeshConClass[i*2+1] == offMeshSideMask {
				offMeshConLinkCount++
			}
		}
	}

	totPolyCount := params.PolyCount + storedOffMeshConCount
	totVertCount := params.VertCount + storedOffMeshConCount*2

	// Count edges and tile border portals to size the link pool.
	var edgeCount, portalCount int32
	for i := int32(0); i < params.PolyCount; i++ {
		p := params.Polys[i*2*nvp:]
		for j := int32(0); j < nvp; j++ {
			if p[j] == 0xffff {
				break
			}
			edgeCount++
			if p[nvp+j]&ExtLink != 0 {
				dir := p[nvp+j] & 0xf
				if dir != 0xf {
					portalCount++
				}
			}
		}
	}
	maxLinkCount := edgeCount + portalCount*2 + offMeshConLinkCount*4

	// Detail mesh totals. Without source detail, each polygon gets a
	// triangle fan over its own vertices.
	var uniqueDetailVertCount int32
	detailTriCount := params.DetailTriCount
	if params.DetailMeshes != nil {
		for i := int32(0); i < params.PolyCount; i++ {
			p := params.Polys[i*2*nvp:]
			ndv := int32(params.DetailMeshes[i*4+1])
			nv := countPolyVerts(p, nvp)
			uniqueDetailVertCount += ndv - nv
		}
	} else {
		detailTriCount = 0
		for i := int32(0); i < params.PolyCount; i++ {
			p := params.Polys[i*2*nvp:]
			nv := countPolyVerts(p, nvp)
			detailTriCount += nv - 2
		}
	}

	bvNodeCount := int32(0)
	if params.BuildBVTree {
		bvNodeCount = params.PolyCount * 2
	}

	hmin := float32(math.MaxFloat32)
	hmax := float32(-math.MaxFloat32)
	if params.DetailVerts != nil && params.DetailVertCount > 0 {
		for i := int32(0); i < params.DetailVertCount; i++ {
			h := params.DetailVerts[i*3+1]
			hmin = minf32(hmin, h)
			hmax = maxf32(hmax, h)
		}
	} else {
		for i := int32(0); i < params.VertCount; i++ {
			h := params.BMin[1] + float32(params.Verts[i*3+1])*params.CH
			hmin = minf32(hmin, h)
			hmax = maxf32(hmax, h)
		}
	}
	hmin -= params.WalkableClimb
	hmax += params.WalkableClimb

	header := MeshHeader{
		Magic:           NavMeshMagic,
		Version:         NavMeshVersion,
		X:               params.TileX,
		Y:               params.TileY,
		Layer:           params.TileLayer,
		UserID:          params.UserID,
		PolyCount:       totPolyCount,
		VertCount:       totVertCount,
		MaxLinkCount:    maxLinkCount,
		DetailMeshCount: params.PolyCount,
		DetailVertCount: uniqueDetailVertCount,
		DetailTriCount:  detailTriCount,
		BVNodeCount:     bvNodeCount,
		OffMeshConCount: storedOffMeshConCount,
		OffMeshBase:     params.PolyCount,
		WalkableHeight:  params.WalkableHeight,
		WalkableRadius:  params.WalkableRadius,
		WalkableClimb:   params.WalkableClimb,
		BMin:            params.BMin,
		BMax:            params.BMax,
		BVQuantFactor:   1 / params.CS,
	}
	header.BMin[1] = hmin
	header.BMax[1] = hmax

	size := headerSize +
		align4(int(totVertCount)*12) +
		align4(int(totPolyCount)*polySize) +
		align4(int(maxLinkCount)*linkSize) +
		align4(int(params.PolyCount)*polyDetailSize) +
		align4(int(uniqueDetailVertCount)*12) +
		align4(int(detailTriCount)*4) +
		align4(int(bvNodeCount)*bvNodeSize) +
		align4(int(storedOffMeshConCount)*offMeshConSize)

	w := binio.NewWriterSize(size)
	header.encode(w)

	// Vertices: mesh vertices dequantized to world space, then the stored
	// off-mesh connection endpoints.
	for i := int32(0); i < params.VertCount; i++ {
		iv := params.Verts[i*3 : i*3+3]
		w.WriteFloat32(params.BMin[0] + float32(iv[0])*params.CS)
		w.WriteFloat32(params.BMin[1] + float32(iv[1])*params.CH)
		w.WriteFloat32(params.BMin[2] + float32(iv[2])*params.CS)
	}
	for i := int32(0); i < params.OffMeshConCount; i++ {
		if offMeshConClass[i*2+0] != offMeshSideMask {
			continue
		}
		w.WriteFloat32s(params.OffMeshConVerts[i*2*3 : i*2*3+6])
	}
	w.Pad(align4(int(totVertCount)*12) - int(totVertCount)*12)

	// Polygons. Neighbour entries keep internal adjacency 1-based; border
	// edges with a portal direction become external links.
	for i := int32(0); i < params.PolyCount; i++ {
		var p Poly
		p.FirstLink = NullLink
		p.Flags = params.PolyFlags[i]
		p.SetArea(params.PolyAreas[i])
		p.SetType(PolyTypeGround)
		src := params.Polys[i*2*nvp:]
		for j := int32(0); j < nvp; j++ {
			if src[j] == 0xffff {
				break
			}
			p.Verts[j] = src[j]
			if src[nvp+j]&ExtLink != 0 {
				switch src[nvp+j] & 0xf {
				case 0xf: // border edge, no portal
					p.Neis[j] = 0
				case 0:
					p.Neis[j] = ExtLink | 4
				case 1:
					p.Neis[j] = ExtLink | 2
				case 2:
					p.Neis[j] = ExtLink | 0
				case 3:
					p.Neis[j] = ExtLink | 6
				}
			} else {
				p.Neis[j] = src[nvp+j] + 1
			}
			p.VertCount++
		}
		p.encode(w)
	}
	n := int32(0)
	for i := int32(0); i < params.OffMeshConCount; i++ {
		if offMeshConClass[i*2+0] != offMeshSideMask {
			continue
		}
		var p Poly
		p.FirstLink = NullLink
		p.VertCount = 2
		p.Verts[0] = uint16(params.VertCount + n*2)
		p.Verts[1] = uint16(params.VertCount + n*2 + 1)
		p.Flags = params.OffMeshConFlags[i]
		p.SetArea(params.OffMeshConAreas[i])
		p.SetType(PolyTypeOffMeshConnection)
		p.encode(w)
		n++
	}

	// Link pool: zeroed on disk, rebuilt when the tile is added to a mesh.
	w.Pad(align4(int(maxLinkCount) * linkSize))

	// Detail meshes.
	if params.DetailMeshes != nil {
		vbase := uint32(0)
		for i := int32(0); i < params.PolyCount; i++ {
			p := params.Polys[i*2*nvp:]
			nv := countPolyVerts(p, nvp)
			ndv := int32(params.DetailMeshes[i*4+1])
			d := PolyDetail{
				VertBase:  vbase,
				TriBase:   params.DetailMeshes[i*4+2],
				VertCount: uint8(ndv - nv),
				TriCount:  uint8(params.DetailMeshes[i*4+3]),
			}
			d.encode(w)
			vbase += uint32(ndv - nv)
		}
		// Detail vertices beyond each polygon's own.
		for i := int32(0); i < params.PolyCount; i++ {
			p := params.Polys[i*2*nvp:]
			nv := countPolyVerts(p, nvp)
			vb := int32(params.DetailMeshes[i*4+0])
			ndv := int32(params.DetailMeshes[i*4+1])
			if ndv > nv {
				w.WriteFloat32s(params.DetailVerts[(vb+nv)*3 : (vb+ndv)*3])
			}
		}
		w.WriteUint8s(params.DetailTris[:detailTriCount*4])
		w.Pad(align4(int(detailTriCount)*4) - int(detailTriCount)*4)
	} else {
		// Dummy detail: fan triangles over polygon vertices.
		tbase := uint32(0)
		for i := int32(0); i < params.PolyCount; i++ {
			p := params.Polys[i*2*nvp:]
			nv := countPolyVerts(p, nvp)
			d := PolyDetail{
				VertBase:  0,
				TriBase:   tbase,
				VertCount: 0,
				TriCount:  uint8(nv - 2),
			}
			d.encode(w)
			tbase += uint32(nv - 2)
		}
		for i := int32(0); i < params.PolyCount; i++ {
			p := params.Polys[i*2*nvp:]
			nv := countPolyVerts(p, nvp)
			for j := int32(2); j < nv; j++ {
				flags := uint8(1 << 2)
				if j == 2 {
					flags |= 1 << 0
				}
				if j == nv-1 {
					flags |= 1 << 4
				}
				w.WriteUint8(0)
				w.WriteUint8(uint8(j - 1))
				w.WriteUint8(uint8(j))
				w.WriteUint8(flags)
			}
		}
		w.Pad(align4(int(detailTriCount)*4) - int(detailTriCount)*4)
	}

	// Bounding volume tree.
	if params.BuildBVTree {
		nodes := make([]BVNode, bvNodeCount)
		createBVTree(params, nodes)
		for i := range nodes {
			nodes[i].encode(w)
		}
	}

	// Off-mesh connections.
	n = 0
	for i := int32(0); i < params.OffMeshConCount; i++ {
		if offMeshConClass[i*2+0] != offMeshSideMask {
			continue
		}
		con := OffMeshCon{
			Rad:  params.OffMeshConRad[i],
			Poly: uint16(params.PolyCount + n),
			Side: offMeshConClass[i*2+1],
		}
		copy(con.Pos[:], params.OffMeshConVerts[i*2*3:i*2*3+6])
		if params.OffMeshConDir[i] != 0 {
			con.Flags = OffMeshConBidir
		}
		if params.OffMeshConUserID != nil {
			con.UserID = params.OffMeshConUserID[i]
		}
		con.encode(w)
		n++
	}

	if w.Len() != size {
		return nil, fmt.Errorf("tile: size mismatch: wrote %d bytes, expected %d", w.Len(), size)
	}
	return w.Bytes(), nil
}

// TileData is a decoded tile: the header plus the deserialized sections.
type TileData struct {
	Header       MeshHeader
	Verts        []float32
	Polys        []Poly
	DetailMeshes []PolyDetail
	DetailVerts  []float32
	DetailTris   []uint8
	BVTree       []BVNode
	OffMeshCons  []OffMeshCon
}

// Unpack decodes serialized tile data. Every section is located by offset
// and length derived from the header counts and validated against the buffer
// before reading, so truncated or corrupt data yields an error.
func Unpack(data []byte) (*TileData, error) {
	r := binio.NewReader(data)
	var td TileData
	if err := td.Header.decode(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	h := &td.Header
	if h.Magic != NavMeshMagic {
		return nil, fmt.Errorf("%w: mesh magic %#x", ErrFormat, h.Magic)
	}
	if h.Version != NavMeshVersion {
		return nil, fmt.Errorf("%w: mesh version %d (want %d)", ErrFormat, h.Version, NavMeshVersion)
	}
	if h.PolyCount < 0 || h.VertCount < 0 || h.MaxLinkCount < 0 ||
		h.DetailMeshCount < 0 || h.DetailVertCount < 0 || h.DetailTriCount < 0 ||
		h.BVNodeCount < 0 || h.OffMeshConCount < 0 {
		return nil, fmt.Errorf("%w: negative section count", ErrFormat)
	}

	// Validate the total layout before decoding any section.
	want := headerSize +
		align4(int(h.VertCount)*12) +
		align4(int(h.PolyCount)*polySize) +
		align4(int(h.MaxLinkCount)*linkSize) +
		align4(int(h.DetailMeshCount)*polyDetailSize) +
		align4(int(h.DetailVertCount)*12) +
		align4(int(h.DetailTriCount)*4) +
		align4(int(h.BVNodeCount)*bvNodeSize) +
		align4(int(h.OffMeshConCount)*offMeshConSize)
	if want > len(data) {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrFormat, want, len(data))
	}

	td.Verts = make([]float32, h.VertCount*3)
	if err := r.ReadFloat32s(td.Verts); err != nil {
		return nil, err
	}
	if err := r.Skip(align4(int(h.VertCount)*12) - int(h.VertCount)*12); err != nil {
		return nil, err
	}

	td.Polys = make([]Poly, h.PolyCount)
	for i := range td.Polys {
		if err := td.Polys[i].decode(r); err != nil {
			return nil, err
		}
	}

	if err := r.Skip(align4(int(h.MaxLinkCount) * linkSize)); err != nil {
		return nil, err
	}

	td.DetailMeshes = make([]PolyDetail, h.DetailMeshCount)
	for i := range td.DetailMeshes {
		if err := td.DetailMeshes[i].decode(r); err != nil {
			return nil, err
		}
	}

	td.DetailVerts = make([]float32, h.DetailVertCount*3)
	if err := r.ReadFloat32s(td.DetailVerts); err != nil {
		return nil, err
	}

	td.DetailTris = make([]uint8, h.DetailTriCount*4)
	if err := r.ReadUint8s(td.DetailTris); err != nil {
		return nil, err
	}
	if err := r.Skip(align4(int(h.DetailTriCount)*4) - int(h.DetailTriCount)*4); err != nil {
		return nil, err
	}

	td.BVTree = make([]BVNode, h.BVNodeCount)
	for i := range td.BVTree {
		if err := td.BVTree[i].decode(r); err != nil {
			return nil, err
		}
	}

	td.OffMeshCons = make([]OffMeshCon, h.OffMeshConCount)
	for i := range td.OffMeshCons {
		if err := td.OffMeshCons[i].decode(r); err != nil {
			return nil, err
		}
	}

	// Cross-check section references.
	for i := range td.Polys {
		p := &td.Polys[i]
		for j := uint8(0); j < p.VertCount; j++ {
			if int32(p.Verts[j]) >= h.VertCount {
				return nil, fmt.Errorf("%w: poly %d references vertex %d of %d", ErrFormat, i, p.Verts[j], h.VertCount)
			}
		}
	}
	for i := range td.DetailMeshes {
		d := &td.DetailMeshes[i]
		if int32(d.VertBase)+int32(d.VertCount) > h.DetailVertCount {
			return nil, fmt.Errorf("%w: detail mesh %d vertex range out of bounds", ErrFormat, i)
		}
		if int32(d.TriBase)+int32(d.TriCount) > h.DetailTriCount {
			return nil, fmt.Errorf("%w: detail mesh %d triangle range out of bounds", ErrFormat, i)
		}
	}
	for i := range td.OffMeshCons {
		if int32(td.OffMeshCons[i].Poly) >= h.PolyCount {
			return nil, fmt.Errorf("%w: off-mesh connection %d references poly %d of %d", ErrFormat, i, td.OffMeshCons[i].Poly, h.PolyCount)
		}
	}

	return &td, nil
}

func countPolyVerts(p []uint16, nvp int32) int32 {
	for i := int32(0); i < nvp; i++ {
		if p[i] == 0xffff {
			return i
		}
	}
	return nvp
}

func align4(n int) int { return (n + 3) &^ 3 }

func minf32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minU16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

func maxU16(a, b uint16) uint16 {
	if a > b {
		return a
	}
	return b
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
