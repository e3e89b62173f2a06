package mesher

import (
	"fmt"
	"math"
)

// PolyMesh is a collection of convex polygons built from contour outlines.
// Verts holds (x, y, z) triples in cell units relative to BMin. Polys holds
// npolys entries of nvp vertex indices followed by nvp neighbour entries;
// unused slots are MeshNullIdx. Neighbour entries with the 0x8000 bit set are
// portal edges on the tile border, low bits giving the side.
type PolyMesh struct {
	Verts        []uint16
	Polys        []uint16
	Regs         []uint16
	Flags        []uint16
	Areas        []uint8
	NVerts       int32
	NPolys       int32
	NVP          int32
	BMin         [3]float32
	BMax         [3]float32
	CS           float32
	CH           float32
	BorderSize   int32
	MaxEdgeError float32
}

const vertexBucketCount = 1 << 12

// multipleRegs marks a polygon whose triangles came from different regions.
const multipleRegs = 0

func computeVertexHash(x, y, z int32) int32 {
	const (
		h1 = 0x8da6b343
		h2 = 0xd8163841
		h3 = 0xcb1ab31f
	)
	n := uint32(h1)*uint32(x) + uint32(h2)*uint32(y) + uint32(h3)*uint32(z)
	return int32(n & (vertexBucketCount - 1))
}

func addVertex(x, y, z uint16, verts []uint16, firstVert, nextVert []int32, nv *int32) (uint16, []uint16) {
	bucket := computeVertexHash(int32(x), 0, int32(z))
	i := firstVert[bucket]
	for i != -1 {
		v := verts[i*3:]
		if v[0] == x && absInt32(int32(v[1])-int32(y)) <= 2 && v[2] == z {
			return uint16(i), verts
		}
		i = nextVert[i]
	}

	i = *nv
	*nv++
	verts = append(verts, x, y, z)
	nextVert[i] = firstVert[bucket]
	firstVert[bucket] = i
	return uint16(i), verts
}

func prevIndex(i, n int32) int32 {
	if i-1 >= 0 {
		return i - 1
	}
	return n - 1
}

func nextIndex(i, n int32) int32 {
	if i+1 < n {
		return i + 1
	}
	return 0
}

const triFlag = int32(1) << 30 // marks an index whose vertex can be clipped

func deflag(i int32) int32 { return i & 0x0fffffff }

func area2i(a, b, c []int32) int32 {
	return (b[0]-a[0])*(c[2]-a[2]) - (c[0]-a[0])*(b[2]-a[2])
}

func lefti(a, b, c []int32) bool      { return area2i(a, b, c) < 0 }
func leftOni(a, b, c []int32) bool    { return area2i(a, b, c) <= 0 }
func collineari(a, b, c []int32) bool { return area2i(a, b, c) == 0 }

func intersectPropi(a, b, c, d []int32) bool {
	if collineari(a, b, c) || collineari(a, b, d) || collineari(c, d, a) || collineari(c, d, b) {
		return false
	}
	return xor(lefti(a, b, c), lefti(a, b, d)) && xor(lefti(c, d, a), lefti(c, d, b))
}

func betweeni(a, b, c []int32) bool {
	if !collineari(a, b, c) {
		return false
	}
	if a[0] != b[0] {
		return (a[0] <= c[0] && c[0] <= b[0]) || (a[0] >= c[0] && c[0] >= b[0])
	}
	return (a[2] <= c[2] && c[2] <= b[2]) || (a[2] >= c[2] && c[2] >= b[2])
}

func intersecti(a, b, c, d []int32) bool {
	if intersectPropi(a, b, c, d) {
		return true
	}
	return betweeni(a, b, c) || betweeni(a, b, d) || betweeni(c, d, a) || betweeni(c, d, b)
}

func vequali(a, b []int32) bool { return a[0] == b[0] && a[2] == b[2] }

// diagonalie tests whether (i, j) is a proper internal or external diagonal
// of the polygon, ignoring edges incident to i and j.
func diagonalie(i, j, n int32, verts, indices []int32) bool {
	d0 := verts[deflag(indices[i])*4:]
	d1 := verts[deflag(indices[j])*4:]

	for k := int32(0); k < n; k++ {
		k1 := nextIndex(k, n)
		if k == i || k1 == i || k == j || k1 == j {
			continue
		}
		p0 := verts[deflag(indices[k])*4:]
		p1 := verts[deflag(indices[k1])*4:]
		if vequali(d0, p0) || vequali(d1, p0) || vequali(d0, p1) || vequali(d1, p1) {
			continue
		}
		if intersecti(d0, d1, p0, p1) {
			return false
		}
	}
	return true
}

func inConei(i, j, n int32, verts, indices []int32) bool {
	pi := verts[deflag(indices[i])*4:]
	pj := verts[deflag(indices[j])*4:]
	pi1 := verts[deflag(indices[nextIndex(i, n)])*4:]
	pin1 := verts[deflag(indices[prevIndex(i, n)])*4:]

	if leftOni(pin1, pi, pi1) {
		return lefti(pi, pj, pin1) && lefti(pj, pi, pi1)
	}
	return !(leftOni(pi, pj, pi1) && leftOni(pj, pi, pin1))
}

func diagonali(i, j, n int32, verts, indices []int32) bool {
	return inConei(i, j, n, verts, indices) && diagonalie(i, j, n, verts, indices)
}

func diagonalieLoose(i, j, n int32, verts, indices []int32) bool {
	d0 := verts[deflag(indices[i])*4:]
	d1 := verts[deflag(indices[j])*4:]

	for k := int32(0); k < n; k++ {
		k1 := nextIndex(k, n)
		if k == i || k1 == i || k == j || k1 == j {
			continue
		}
		p0 := verts[deflag(indices[k])*4:]
		p1 := verts[deflag(indices[k1])*4:]
		if vequali(d0, p0) || vequali(d1, p0) || vequali(d0, p1) || vequali(d1, p1) {
			continue
		}
		if intersectPropi(d0, d1, p0, p1) {
			return false
		}
	}
	return true
}

func inConeLoose(i, j, n int32, verts, indices []int32) bool {
	pi := verts[deflag(indices[i])*4:]
	pj := verts[deflag(indices[j])*4:]
	pi1 := verts[deflag(indices[nextIndex(i, n)])*4:]
	pin1 := verts[deflag(indices[prevIndex(i, n)])*4:]

	if leftOni(pin1, pi, pi1) {
		return leftOni(pi, pj, pin1) && leftOni(pj, pi, pi1)
	}
	return !(leftOni(pi, pj, pi1) && leftOni(pj, pi, pin1))
}

func diagonalLoose(i, j, n int32, verts, indices []int32) bool {
	return inConeLoose(i, j, n, verts, indices) && diagonalieLoose(i, j, n, verts, indices)
}

// triangulate ear-clips the polygon described by indices into tris. Returns
// the negated triangle count when the polygon had to be finished with loose
// diagonals due to overlapping segments.
func triangulate(n int32, verts []int32, indices []int32, tris *[]int32) int32 {
	ntris := int32(0)
	*tris = (*tris)[:0]

	// Mark removable vertices.
	for i := int32(0); i < n; i++ {
		i1 := nextIndex(i, n)
		i2 := nextIndex(i1, n)
		if diagonali(i, i2, n, verts, indices) {
			indices[i1] |= triFlag
		}
	}

	bad := false
	for n > 3 {
		minLen := int32(-1)
		mini := int32(-1)
		for i := int32(0); i < n; i++ {
			i1 := nextIndex(i, n)
			if indices[i1]&triFlag != 0 {
				p0 := verts[deflag(indices[i])*4:]
				p2 := verts[deflag(indices[nextIndex(i1, n)])*4:]
				dx := p2[0] - p0[0]
				dz := p2[2] - p0[2]
				l := dx*dx + dz*dz
				if minLen < 0 || l < minLen {
					minLen = l
					mini = i
				}
			}
		}

		if mini == -1 {
			// Contour segments overlap; retry with looser tests. The result
			// may be slightly wrong but the mesh stays usable.
			for i := int32(0); i < n; i++ {
				i1 := nextIndex(i, n)
				i2 := nextIndex(i1, n)
				if diagonalLoose(i, i2, n, verts, indices) {
					p0 := verts[deflag(indices[i])*4:]
					p2 := verts[deflag(indices[nextIndex(i2, n)])*4:]
					dx := p2[0] - p0[0]
					dz := p2[2] - p0[2]
					l := dx*dx + dz*dz
					if minLen < 0 || l < minLen {
						minLen = l
						mini = i
					}
				}
			}
			if mini == -1 {
				return -ntris
			}
			bad = true
		}

		i := mini
		i1 := nextIndex(i, n)
		i2 := nextIndex(i1, n)

		*tris = append(*tris, deflag(indices[i]), deflag(indices[i1]), deflag(indices[i2]))
		ntris++

		// Remove p[i1] by shifting the rest down.
		n--
		for k := i1; k < n; k++ {
			indices[k] = indices[k+1]
		}
		if i1 >= n {
			i1 = 0
		}
		i = prevIndex(i1, n)
		// Update the diagonal flags around the clipped ear.
		if diagonali(prevIndex(i, n), i1, n, verts, indices) {
			indices[i] |= triFlag
		} else {
			indices[i] &^= triFlag
		}
		if diagonali(i, nextIndex(i1, n), n, verts, indices) {
			indices[i1] |= triFlag
		} else {
			indices[i1] &^= triFlag
		}
	}

	*tris = append(*tris, deflag(indices[0]), deflag(indices[1]), deflag(indices[2]))
	ntris++
	if bad {
		return -ntris
	}
	return ntris
}

func countPolyVerts(p []uint16, nvp int32) int32 {
	for i := int32(0); i < nvp; i++ {
		if p[i] == MeshNullIdx {
			return i
		}
	}
	return nvp
}

func uleft(a, b, c []uint16) bool {
	return (int32(b[0])-int32(a[0]))*(int32(c[2])-int32(a[2]))-
		(int32(c[0])-int32(a[0]))*(int32(b[2])-int32(a[2])) < 0
}

// getPolyMergeValue returns the squared length of the edge shared by pa and
// pb when merging them keeps both convexity and the vertex budget, or -1.
// ea and eb are the shared edge start positions in each polygon.
func getPolyMergeValue(pa, pb []uint16, verts []uint16, nvp int32) (length, ea, eb int32) {
	na := countPolyVerts(pa, nvp)
	nb := countPolyVerts(pb, nvp)

	if na+nb-2 > nvp {
		return -1, 0, 0
	}

	// Shared edge.
	ea, eb = -1, -1
	for i := int32(0); i < na; i++ {
		va0 := pa[i]
		va1 := pa[(i+1)%na]
		if va0 > va1 {
			va0, va1 = va1, va0
		}
		for j := int32(0); j < nb; j++ {
			vb0 := pb[j]
			vb1 := pb[(j+1)%nb]
			if vb0 > vb1 {
				vb0, vb1 = vb1, vb0
			}
			if va0 == vb0 && va1 == vb1 {
				ea = i
				eb = j
				break
			}
		}
	}
	if ea == -1 || eb == -1 {
		return -1, 0, 0
	}

	// The merged polygon must stay convex at the joined corners.
	va := pa[(ea+na-1)%na]
	vb := pa[ea]
	vc := pb[(eb+2)%nb]
	if !uleft(verts[va*3:], verts[vb*3:], verts[vc*3:]) {
		return -1, 0, 0
	}
	va = pb[(eb+nb-1)%nb]
	vb = pb[eb]
	vc = pa[(ea+2)%na]
	if !uleft(verts[va*3:], verts[vb*3:], verts[vc*3:]) {
		return -1, 0, 0
	}

	va = pa[ea]
	vb = pa[(ea+1)%na]
	dx := int32(verts[va*3]) - int32(verts[vb*3])
	dz := int32(verts[va*3+2]) - int32(verts[vb*3+2])
	return dx*dx + dz*dz, ea, eb
}

func mergePolyVerts(pa, pb []uint16, ea, eb int32, tmp []uint16, nvp int32) {
	na := countPolyVerts(pa, nvp)
	nb := countPolyVerts(pb, nvp)

	for i := range tmp[:nvp] {
		tmp[i] = MeshNullIdx
	}
	n := int32(0)
	for i := int32(0); i < na-1; i++ {
		tmp[n] = pa[(ea+1+i)%na]
		n++
	}
	for i := int32(0); i < nb-1; i++ {
		tmp[n] = pb[(eb+1+i)%nb]
		n++
	}
	copy(pa[:nvp], tmp[:nvp])
}

type meshEdge struct {
	vert     [2]uint16
	polyEdge [2]uint16
	poly     [2]uint16
}

func buildMeshAdjacency(polys []uint16, npolys, nverts, vertsPerPoly int32) {
	maxEdgeCount := npolys * vertsPerPoly
	firstEdge := make([]uint16, nverts)
	nextEdge := make([]uint16, maxEdgeCount)
	edges := make([]meshEdge, 0, maxEdgeCount)

	for i := range firstEdge {
		firstEdge[i] = MeshNullIdx
	}

	for i := int32(0); i < npolys; i++ {
		t := polys[i*vertsPerPoly*2:]
		for j := int32(0); j < vertsPerPoly; j++ {
			if t[j] == MeshNullIdx {
				break
			}
			v0 := t[j]
			var v1 uint16
			if j+1 >= vertsPerPoly || t[j+1] == MeshNullIdx {
				v1 = t[0]
			} else {
				v1 = t[j+1]
			}
			if v0 < v1 {
				edges = append(edges, meshEdge{
					vert:     [2]uint16{v0, v1},
					poly:     [2]uint16{uint16(i), uint16(i)},
					polyEdge: [2]uint16{uint16(j), 0},
				})
				nextEdge[len(edges)-1] = firstEdge[v0]
				firstEdge[v0] = uint16(len(edges) - 1)
			}
		}
	}

	for i := int32(0); i < npolys; i++ {
		t := polys[i*vertsPerPoly*2:]
		for j := int32(0); j < vertsPerPoly; j++ {
			if t[j] == MeshNullIdx {
				break
			}
			v0 := t[j]
			var v1 uint16
			if j+1 >= vertsPerPoly || t[j+1] == MeshNullIdx {
				v1 = t[0]
			} else {
				v1 = t[j+1]
			}
			if v0 > v1 {
				for e := firstEdge[v1]; e != MeshNullIdx; e = nextEdge[e] {
					edge := &edges[e]
					if edge.vert[1] == v0 && edge.poly[0] == edge.poly[1] {
						edge.poly[1] = uint16(i)
						edge.polyEdge[1] = uint16(j)
						break
					}
				}
			}
		}
	}

	// Store adjacency.
	for i := range edges {
		e := &edges[i]
		if e.poly[0] != e.poly[1] {
			p0 := polys[int32(e.poly[0])*vertsPerPoly*2:]
			p1 := polys[int32(e.poly[1])*vertsPerPoly*2:]
			p0[vertsPerPoly+int32(e.polyEdge[0])] = e.poly[1]
			p1[vertsPerPoly+int32(e.polyEdge[1])] = e.poly[0]
		}
	}
}

func canRemoveVertex(mesh *PolyMesh, rem uint16) bool {
	nvp := mesh.NVP

	// Count the number of edges touching rem.
	numTouchedVerts := int32(0)
	numRemainingEdges := int32(0)
	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p, nvp)
		numRemoved := int32(0)
		numVerts := int32(0)
		for j := int32(0); j < nv; j++ {
			if p[j] == rem {
				numTouchedVerts++
				numRemoved++
			}
			numVerts++
		}
		if numRemoved > 0 {
			numRemainingEdges += numVerts - (numRemoved + 1)
		}
	}
	// Fewer than two remaining edges collapses the hole into a segment.
	if numRemainingEdges <= 2 {
		return false
	}

	// Find edges which share the removed vertex.
	maxEdges := numTouchedVerts * 2
	edges := make([]int32, 0, maxEdges*3)

	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p, nvp)
		for j, k := int32(0), nv-1; j < nv; k, j = j, j+1 {
			if p[j] != rem && p[k] != rem {
				continue
			}
			// The edge is touching rem; store the opposite endpoint.
			a, b := p[j], p[k]
			if b == rem {
				a, b = b, a
			}
			exists := false
			for m := 0; m < len(edges)/3; m++ {
				e := edges[m*3:]
				if e[1] == int32(b) {
					e[2]++
					exists = true
				}
			}
			if !exists {
				edges = append(edges, int32(a), int32(b), 1)
			}
		}
	}

	// An open edge means the hole is on the mesh boundary; removal would
	// tear the boundary.
	numOpenEdges := 0
	for m := 0; m < len(edges)/3; m++ {
		if edges[m*3+2] < 2 {
			numOpenEdges++
		}
	}
	return numOpenEdges <= 2
}

func removeVertex(mesh *PolyMesh, rem uint16, maxTris int32) error {
	nvp := mesh.NVP

	// Count polygons to remove.
	numRemovedVerts := int32(0)
	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p, nvp)
		for j := int32(0); j < nv; j++ {
			if p[j] == rem {
				numRemovedVerts++
			}
		}
	}

	edges := make([]int32, 0, numRemovedVerts*nvp*4)
	hole := make([]int32, 0, numRemovedVerts*nvp)
	hreg := make([]int32, 0, numRemovedVerts*nvp)
	harea := make([]int32, 0, numRemovedVerts*nvp)

	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p, nvp)
		hasRem := false
		for j := int32(0); j < nv; j++ {
			if p[j] == rem {
				hasRem = true
			}
		}
		if !hasRem {
			continue
		}
		// Collect edges not touching the removed vertex.
		for j, k := int32(0), nv-1; j < nv; k, j = j, j+1 {
			if p[j] != rem && p[k] != rem {
				edges = append(edges, int32(p[k]), int32(p[j]), int32(mesh.Regs[i]), int32(mesh.Areas[i]))
			}
		}
		// Remove the polygon.
		p2 := mesh.Polys[(mesh.NPolys-1)*nvp*2:]
		if !sameSlice16(p, p2) {
			copy(p[:nvp], p2[:nvp])
		}
		for k := nvp; k < nvp*2; k++ {
			p[k] = MeshNullIdx
		}
		mesh.Regs[i] = mesh.Regs[mesh.NPolys-1]
		mesh.Areas[i] = mesh.Areas[mesh.NPolys-1]
		mesh.NPolys--
		i--
	}

	// Remove the vertex.
	for i := int32(rem); i < mesh.NVerts-1; i++ {
		mesh.Verts[i*3+0] = mesh.Verts[(i+1)*3+0]
		mesh.Verts[i*3+1] = mesh.Verts[(i+1)*3+1]
		mesh.Verts[i*3+2] = mesh.Verts[(i+1)*3+2]
	}
	mesh.NVerts--

	// Adjust indices that point past the removed vertex.
	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p, nvp)
		for j := int32(0); j < nv; j++ {
			if p[j] > rem {
				p[j]--
			}
		}
	}
	for i := 0; i < len(edges)/4; i++ {
		if edges[i*4] > int32(rem) {
			edges[i*4]--
		}
		if edges[i*4+1] > int32(rem) {
			edges[i*4+1]--
		}
	}

	if len(edges) == 0 {
		return nil
	}

	// Stitch the edges into a hole outline.
	hole = append(hole, edges[0])
	hreg = append(hreg, edges[2])
	harea = append(harea, edges[3])

	for len(edges) > 4 {
		match := false
		for i := 0; i < len(edges)/4; i++ {
			ea := edges[i*4]
			eb := edges[i*4+1]
			r := edges[i*4+2]
			a := edges[i*4+3]
			add := false
			if hole[0] == eb {
				// Matches the beginning of the hole.
				hole = append([]int32{ea}, hole...)
				hreg = append([]int32{r}, hreg...)
				harea = append([]int32{a}, harea...)
				add = true
			} else if hole[len(hole)-1] == ea {
				// Matches the end of the hole.
				hole = append(hole, eb)
				hreg = append(hreg, r)
				harea = append(harea, a)
				add = true
			}
			if add {
				edges = append(edges[:i*4], edges[(i+1)*4:]...)
				match = true
				i--
			}
		}
		if !match {
			break
		}
	}

	nhole := int32(len(hole))
	tverts := make([]int32, nhole*4)
	thole := make([]int32, nhole)
	for i := int32(0); i < nhole; i++ {
		pi := hole[i]
		tverts[i*4+0] = int32(mesh.Verts[pi*3+0])
		tverts[i*4+1] = int32(mesh.Verts[pi*3+1])
		tverts[i*4+2] = int32(mesh.Verts[pi*3+2])
		tverts[i*4+3] = 0
		thole[i] = i
	}

	var tris []int32
	ntris := triangulate(nhole, tverts, thole, &tris)
	if ntris < 0 {
		ntris = -ntris
	}

	// Merge the triangles back into polygons.
	polys := make([]uint16, (ntris+1)*nvp)
	pregs := make([]uint16, ntris)
	pareas := make([]uint8, ntris)
	for i := range polys {
		polys[i] = MeshNullIdx
	}

	npolys := int32(0)
	for i := int32(0); i < ntris; i++ {
		t := tris[i*3:]
		if t[0] != t[1] && t[0] != t[2] && t[1] != t[2] {
			polys[npolys*nvp+0] = uint16(hole[t[0]])
			polys[npolys*nvp+1] = uint16(hole[t[1]])
			polys[npolys*nvp+2] = uint16(hole[t[2]])

			// All hole edges should carry the same region; pick one that is
			// not a mixed marker.
			if hreg[t[0]] != hreg[t[1]] || hreg[t[1]] != hreg[t[2]] {
				pregs[npolys] = multipleRegs
			} else {
				pregs[npolys] = uint16(hreg[t[0]])
			}
			pareas[npolys] = uint8(harea[t[0]])
			npolys++
		}
	}
	if npolys == 0 {
		return nil
	}

	if nvp > 3 {
		for {
			bestMergeVal := int32(0)
			bestPa, bestPb, bestEa, bestEb := int32(0), int32(0), int32(0), int32(0)
			for j := int32(0); j < npolys-1; j++ {
				pj := polys[j*nvp:]
				for k := j + 1; k < npolys; k++ {
					pk := polys[k*nvp:]
					v, ea, eb := getPolyMergeValue(pj, pk, mesh.Verts, nvp)
					if v > bestMergeVal {
						bestMergeVal = v
						bestPa, bestPb, bestEa, bestEb = j, k, ea, eb
					}
				}
			}
			if bestMergeVal <= 0 {
				break
			}
			pa := polys[bestPa*nvp:]
			pb := polys[bestPb*nvp:]
			tmp := polys[npolys*nvp:]
			mergePolyVerts(pa, pb, bestEa, bestEb, tmp, nvp)
			if pregs[bestPa] != pregs[bestPb] {
				pregs[bestPa] = multipleRegs
			}
			last := polys[(npolys-1)*nvp:]
			if !sameSlice16(pb, last) {
				copy(pb[:nvp], last[:nvp])
			}
			pregs[bestPb] = pregs[npolys-1]
			pareas[bestPb] = pareas[npolys-1]
			npolys--
		}
	}

	// Store the new polygons.
	for i := int32(0); i < npolys; i++ {
		if mesh.NPolys >= maxTris {
			return fmt.Errorf("%w: too many polygons after vertex removal", ErrCapacity)
		}
		p := mesh.Polys[mesh.NPolys*nvp*2:]
		for j := int32(0); j < nvp*2; j++ {
			p[j] = MeshNullIdx
		}
		for j := int32(0); j < nvp; j++ {
			p[j] = polys[i*nvp+j]
		}
		mesh.Regs[mesh.NPolys] = pregs[i]
		mesh.Areas[mesh.NPolys] = pareas[i]
		mesh.NPolys++
	}

	return nil
}

func sameSlice16(a, b []uint16) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}

// BuildPolyMesh triangulates every contour and greedily merges the triangles
// into convex polygons with at most nvp vertices. Polygons inherit the
// contour's region and area ids; adjacency is computed over shared edges and
// border-portal edges are tagged with their side.
func BuildPolyMesh(cset *ContourSet, nvp int32) (*PolyMesh, error) {
	mesh := &PolyMesh{
		BMin:         cset.BMin,
		BMax:         cset.BMax,
		CS:           cset.CS,
		CH:           cset.CH,
		BorderSize:   cset.BorderSize,
		MaxEdgeError: cset.MaxError,
		NVP:          nvp,
	}

	maxVertices := int32(0)
	maxTris := int32(0)
	maxVertsPerCont := int32(0)
	for i := range cset.Conts {
		nverts := int32(len(cset.Conts[i].Verts) / 4)
		if nverts < 3 {
			continue
		}
		maxVertices += nverts
		maxTris += nverts - 2
		maxVertsPerCont = maxInt32(maxVertsPerCont, nverts)
	}
	if maxVertices >= 0xfffe {
		return nil, fmt.Errorf("%w: too many vertices %d", ErrCapacity, maxVertices)
	}

	vflags := make([]uint8, maxVertices)

	mesh.Verts = make([]uint16, 0, maxVertices*3)
	mesh.Polys = make([]uint16, maxTris*nvp*2)
	mesh.Regs = make([]uint16, maxTris)
	mesh.Areas = make([]uint8, maxTris)
	for i := range mesh.Polys {
		mesh.Polys[i] = MeshNullIdx
	}

	nextVert := make([]int32, maxVertices)
	firstVert := make([]int32, vertexBucketCount)
	for i := range firstVert {
		firstVert[i] = -1
	}

	indices := make([]int32, maxVertsPerCont)
	var tris []int32
	polys := make([]uint16, (maxVertsPerCont+1)*nvp)

	for ci := range cset.Conts {
		cont := &cset.Conts[ci]
		nverts := int32(len(cont.Verts) / 4)
		if nverts < 3 {
			continue
		}

		for j := int32(0); j < nverts; j++ {
			indices[j] = j
		}
		ntris := triangulate(nverts, cont.Verts, indices[:nverts], &tris)
		if ntris <= 0 {
			// An error has occurred; keep what was produced.
			ntris = -ntris
		}

		// Add and merge vertices.
		for j := int32(0); j < nverts; j++ {
			v := cont.Verts[j*4:]
			var idx uint16
			idx, mesh.Verts = addVertex(uint16(v[0]), uint16(v[1]), uint16(v[2]),
				mesh.Verts, firstVert, nextVert, &mesh.NVerts)
			indices[j] = int32(idx)
			if v[3]&BorderVertex != 0 {
				// The vertex needs removal after all meshing is done.
				vflags[idx] = 1
			}
		}

		// Build initial polygons.
		npolys := int32(0)
		for i := range polys {
			polys[i] = MeshNullIdx
		}
		for j := int32(0); j < ntris; j++ {
			t := tris[j*3:]
			if t[0] != t[1] && t[0] != t[2] && t[1] != t[2] {
				polys[npolys*nvp+0] = uint16(indices[t[0]])
				polys[npolys*nvp+1] = uint16(indices[t[1]])
				polys[npolys*nvp+2] = uint16(indices[t[2]])
				npolys++
			}
		}
		if npolys == 0 {
			continue
		}

		// Merge polygons by longest shared edge first.
		if nvp > 3 {
			for {
				bestMergeVal := int32(0)
				bestPa, bestPb, bestEa, bestEb := int32(0), int32(0), int32(0), int32(0)
				for j := int32(0); j < npolys-1; j++ {
					pj := polys[j*nvp:]
					for k := j + 1; k < npolys; k++ {
						pk := polys[k*nvp:]
						v, ea, eb := getPolyMergeValue(pj, pk, mesh.Verts, nvp)
						if v > bestMergeVal {
							bestMergeVal = v
							bestPa, bestPb, bestEa, bestEb = j, k, ea, eb
						}
					}
				}
				if bestMergeVal <= 0 {
					break
				}
				pa := polys[bestPa*nvp:]
				pb := polys[bestPb*nvp:]
				tmp := polys[npolys*nvp:]
				mergePolyVerts(pa, pb, bestEa, bestEb, tmp, nvp)
				last := polys[(npolys-1)*nvp:]
				if !sameSlice16(pb, last) {
					copy(pb[:nvp], last[:nvp])
				}
				npolys--
			}
		}

		// Store polygons.
		for j := int32(0); j < npolys; j++ {
			if mesh.NPolys >= maxTris {
				return nil, fmt.Errorf("%w: too many polygons %d (max %d)", ErrCapacity, mesh.NPolys, maxTris)
			}
			p := mesh.Polys[mesh.NPolys*nvp*2:]
			for k := int32(0); k < nvp; k++ {
				p[k] = polys[j*nvp+k]
			}
			mesh.Regs[mesh.NPolys] = cont.Reg
			mesh.Areas[mesh.NPolys] = cont.Area
			mesh.NPolys++
		}
	}

	// Remove edge vertices created on tile borders.
	for i := int32(0); i < mesh.NVerts; i++ {
		if vflags[i] == 0 {
			continue
		}
		if !canRemoveVertex(mesh, uint16(i)) {
			continue
		}
		if err := removeVertex(mesh, uint16(i), maxTris); err != nil {
			return nil, err
		}
		// The vertex array shifted down; shift the flags too.
		copy(vflags[i:mesh.NVerts], vflags[i+1:mesh.NVerts+1])
		i--
	}

	buildMeshAdjacency(mesh.Polys, mesh.NPolys, mesh.NVerts, nvp)

	// Find portal edges.
	if mesh.BorderSize > 0 {
		w := cset.Width
		h := cset.Height
		for i := int32(0); i < mesh.NPolys; i++ {
			p := mesh.Polys[i*nvp*2:]
			for j := int32(0); j < nvp; j++ {
				if p[j] == MeshNullIdx {
					break
				}
				// Skip connected edges.
				if p[nvp+j] != MeshNullIdx {
					continue
				}
				nj := j + 1
				if nj >= nvp || p[nj] == MeshNullIdx {
					nj = 0
				}
				va := mesh.Verts[p[j]*3:]
				vb := mesh.Verts[p[nj]*3:]
				switch {
				case va[0] == 0 && vb[0] == 0:
					p[nvp+j] = 0x8000 | 0
				case int32(va[2]) == h && int32(vb[2]) == h:
					p[nvp+j] = 0x8000 | 1
				case int32(va[0]) == w && int32(vb[0]) == w:
					p[nvp+j] = 0x8000 | 2
				case va[2] == 0 && vb[2] == 0:
					p[nvp+j] = 0x8000 | 3
				}
			}
		}
	}

	mesh.Flags = make([]uint16, mesh.NPolys)
	return mesh, nil
}

// MergePolyMeshes combines per-cell meshes built over a common bounding box
// into one mesh, welding vertices across cell seams and keeping only portal
// edges that lie on the combined border. Adjacency is rebuilt from scratch.
func MergePolyMeshes(meshes []*PolyMesh) (*PolyMesh, error) {
	if len(meshes) == 0 {
		return nil, fmt.Errorf("no meshes to merge")
	}

	mesh := &PolyMesh{
		NVP: meshes[0].NVP,
		CS:  meshes[0].CS,
		CH:  meshes[0].CH,
	}
	mesh.BMin = meshes[0].BMin
	mesh.BMax = meshes[0].BMax

	maxVerts := int32(0)
	maxPolys := int32(0)
	maxVertsPerMesh := int32(0)
	for _, m := range meshes {
		for k := 0; k < 3; k++ {
			if m.BMin[k] < mesh.BMin[k] {
				mesh.BMin[k] = m.BMin[k]
			}
			if m.BMax[k] > mesh.BMax[k] {
				mesh.BMax[k] = m.BMax[k]
			}
		}
		maxVertsPerMesh = maxInt32(maxVertsPerMesh, m.NVerts)
		maxVerts += m.NVerts
		maxPolys += m.NPolys
	}
	if maxVerts >= 0xfffe {
		return nil, fmt.Errorf("%w: too many vertices %d after merge", ErrCapacity, maxVerts)
	}

	nvp := mesh.NVP
	mesh.Verts = make([]uint16, 0, maxVerts*3)
	mesh.Polys = make([]uint16, maxPolys*nvp*2)
	mesh.Regs = make([]uint16, maxPolys)
	mesh.Areas = make([]uint8, maxPolys)
	mesh.Flags = make([]uint16, maxPolys)
	for i := range mesh.Polys {
		mesh.Polys[i] = MeshNullIdx
	}

	nextVert := make([]int32, maxVerts)
	firstVert := make([]int32, vertexBucketCount)
	for i := range firstVert {
		firstVert[i] = -1
	}
	vremap := make([]uint16, maxVertsPerMesh)

	for _, pmesh := range meshes {
		ox := int32(math.Floor(float64((pmesh.BMin[0]-mesh.BMin[0])/mesh.CS + 0.5)))
		oz := int32(math.Floor(float64((pmesh.BMin[2]-mesh.BMin[2])/mesh.CS + 0.5)))

		isMinX := ox == 0
		isMinZ := oz == 0
		isMaxX := int32(math.Floor(float64((mesh.BMax[0]-pmesh.BMax[0])/mesh.CS+0.5))) == 0
		isMaxZ := int32(math.Floor(float64((mesh.BMax[2]-pmesh.BMax[2])/mesh.CS+0.5))) == 0
		isOnBorder := isMinX || isMinZ || isMaxX || isMaxZ

		for j := int32(0); j < pmesh.NVerts; j++ {
			v := pmesh.Verts[j*3:]
			vremap[j], mesh.Verts = addVertex(v[0]+uint16(ox), v[1], v[2]+uint16(oz),
				mesh.Verts, firstVert, nextVert, &mesh.NVerts)
		}

		for j := int32(0); j < pmesh.NPolys; j++ {
			tgt := mesh.Polys[mesh.NPolys*2*nvp:]
			src := pmesh.Polys[j*2*nvp:]
			mesh.Regs[mesh.NPolys] = pmesh.Regs[j]
			mesh.Areas[mesh.NPolys] = pmesh.Areas[j]
			mesh.Flags[mesh.NPolys] = pmesh.Flags[j]
			mesh.NPolys++
			for k := int32(0); k < nvp; k++ {
				if src[k] == MeshNullIdx {
					break
				}
				tgt[k] = vremap[src[k]]
			}
			if isOnBorder {
				// Keep portal flags that still lie on the merged border.
				for k := nvp; k < nvp*2; k++ {
					if src[k]&0x8000 != 0 && src[k] != 0xffff {
						switch src[k] & 0xf {
						case 0:
							if isMinX {
								tgt[k] = src[k]
							}
						case 1:
							if isMaxZ {
								tgt[k] = src[k]
							}
						case 2:
							if isMaxX {
								tgt[k] = src[k]
							}
						case 3:
							if isMinZ {
								tgt[k] = src[k]
							}
						}
					}
				}
			}
		}
	}

	buildMeshAdjacency(mesh.Polys, mesh.NPolys, mesh.NVerts, nvp)
	return mesh, nil
}
