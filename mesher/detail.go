package mesher

import (
	"math"

	"github.com/navforge/navforge/geom"
)

// PolyMeshDetail stores per-polygon height detail. Meshes holds 4 entries per
// polygon: vertex base, vertex count, triangle base, triangle count. Verts
// holds world-space (x, y, z) triples, Tris (a, b, c, flags) quads where the
// flag bits mark which triangle edges lie on the polygon boundary.
type PolyMeshDetail struct {
	Meshes  []uint32
	Verts   []float32
	Tris    []uint8
	NMeshes int32
	NVerts  int32
	NTris   int32
}

const unsetHeight = 0xffff

type heightPatch struct {
	data   []uint16
	xmin   int32
	zmin   int32
	width  int32
	height int32
}

func vdot2(a, b []float32) float32 {
	return a[0]*b[0] + a[2]*b[2]
}

func vdistSq2(p, q []float32) float32 {
	dx := q[0] - p[0]
	dz := q[2] - p[2]
	return dx*dx + dz*dz
}

func vdist2(p, q []float32) float32 {
	return float32(math.Sqrt(float64(vdistSq2(p, q))))
}

func vcross2(p1, p2, p3 []float32) float32 {
	u1 := p2[0] - p1[0]
	v1 := p2[2] - p1[2]
	u2 := p3[0] - p1[0]
	v2 := p3[2] - p1[2]
	return u1*v2 - v1*u2
}

func circumCircle(p1, p2, p3 []float32, c []float32) (float32, bool) {
	const eps = 1e-6
	// Calculate the circle relative to p1 to avoid precision issues.
	var v1 [3]float32
	var v2, v3 [3]float32
	geom.Vsub(v2[:], p2, p1)
	geom.Vsub(v3[:], p3, p1)

	cp := vcross2(v1[:], v2[:], v3[:])
	if absf(cp) <= eps {
		geom.Vcopy(c, p1)
		return 0, false
	}

	v1Sq := vdot2(v1[:], v1[:])
	v2Sq := vdot2(v2[:], v2[:])
	v3Sq := vdot2(v3[:], v3[:])
	c[0] = (v1Sq*(v2[2]-v3[2]) + v2Sq*(v3[2]-v1[2]) + v3Sq*(v1[2]-v2[2])) / (2 * cp)
	c[1] = 0
	c[2] = (v1Sq*(v3[0]-v2[0]) + v2Sq*(v1[0]-v3[0]) + v3Sq*(v2[0]-v1[0])) / (2 * cp)
	r := vdist2(c, v1[:])
	geom.Vadd(c, c, p1)
	return r, true
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func distPtTri(p, a, b, c []float32) float32 {
	var v0, v1, v2 [3]float32
	geom.Vsub(v0[:], c, a)
	geom.Vsub(v1[:], b, a)
	geom.Vsub(v2[:], p, a)

	dot00 := vdot2(v0[:], v0[:])
	dot01 := vdot2(v0[:], v1[:])
	dot02 := vdot2(v0[:], v2[:])
	dot11 := vdot2(v1[:], v1[:])
	dot12 := vdot2(v1[:], v2[:])

	invDenom := 1.0 / (dot00*dot11 - dot01*dot01)
	u := (dot11*dot02 - dot01*dot12) * invDenom
	v := (dot00*dot12 - dot01*dot02) * invDenom

	// If point lies inside the triangle, return interpolated y-coord.
	const eps = 1e-4
	if u >= -eps && v >= -eps && u+v <= 1+eps {
		y := a[1] + v0[1]*u + v1[1]*v
		return absf(y - p[1])
	}
	return float32(math.MaxFloat32)
}

func distancePtSeg(pt, p, q []float32) float32 {
	pqx := q[0] - p[0]
	pqy := q[1] - p[1]
	pqz := q[2] - p[2]
	dx := pt[0] - p[0]
	dy := pt[1] - p[1]
	dz := pt[2] - p[2]
	d := pqx*pqx + pqy*pqy + pqz*pqz
	t := pqx*dx + pqy*dy + pqz*dz
	if d > 0 {
		t /= d
	}
	t = geom.Clamp(t, 0, 1)

	dx = p[0] + t*pqx - pt[0]
	dy = p[1] + t*pqy - pt[1]
	dz = p[2] + t*pqz - pt[2]
	return dx*dx + dy*dy + dz*dz
}

func distancePtSeg2d(pt, p, q []float32) float32 {
	pqx := q[0] - p[0]
	pqz := q[2] - p[2]
	dx := pt[0] - p[0]
	dz := pt[2] - p[2]
	d := pqx*pqx + pqz*pqz
	t := pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	t = geom.Clamp(t, 0, 1)

	dx = p[0] + t*pqx - pt[0]
	dz = p[2] + t*pqz - pt[2]
	return dx*dx + dz*dz
}

func distToTriMesh(p, verts []float32, tris []int32, ntris int32) float32 {
	dmin := float32(math.MaxFloat32)
	for i := int32(0); i < ntris; i++ {
		va := verts[tris[i*4+0]*3:]
		vb := verts[tris[i*4+1]*3:]
		vc := verts[tris[i*4+2]*3:]
		d := distPtTri(p, va, vb, vc)
		if d < dmin {
			dmin = d
		}
	}
	if dmin == float32(math.MaxFloat32) {
		return -1
	}
	return dmin
}

func distToPoly(nvert int32, verts, p []float32) float32 {
	dmin := float32(math.MaxFloat32)
	c := false
	for i, j := int32(0), nvert-1; i < nvert; j, i = i, i+1 {
		vi := verts[i*3:]
		vj := verts[j*3:]
		if (vi[2] > p[2]) != (vj[2] > p[2]) &&
			p[0] < (vj[0]-vi[0])*(p[2]-vi[2])/(vj[2]-vi[2])+vi[0] {
			c = !c
		}
		d := distancePtSeg2d(p, vj, vi)
		if d < dmin {
			dmin = d
		}
	}
	if c {
		return -dmin
	}
	return dmin
}

func getHeight(fx, fy, fz, ics, ch float32, radius int32, hp *heightPatch) uint16 {
	ix := int32(math.Floor(float64(fx*ics + 0.01)))
	iz := int32(math.Floor(float64(fz*ics + 0.01)))
	ix = geom.Clamp(ix-hp.xmin, 0, hp.width-1)
	iz = geom.Clamp(iz-hp.zmin, 0, hp.height-1)
	h := hp.data[ix+iz*hp.width]
	if h != unsetHeight {
		return h
	}

	// Search in a spiral up to the given radius for the nearest set height,
	// stopping on the first ring that found one.
	x, z, dx, dz := int32(1), int32(0), int32(1), int32(0)
	maxSize := radius*2 + 1
	maxIter := maxSize*maxSize - 1

	nextRingIterStart := int32(8)
	nextRingIters := int32(16)

	dmin := float32(math.MaxFloat32)
	for i := int32(0); i < maxIter; i++ {
		nx := ix + x
		nz := iz + z
		if nx >= 0 && nz >= 0 && nx < hp.width && nz < hp.height {
			nh := hp.data[nx+nz*hp.width]
			if nh != unsetHeight {
				d := absf(float32(nh)*ch - fy)
				if d < dmin {
					h = nh
					dmin = d
				}
			}
		}
		if i+1 == nextRingIterStart {
			if h != unsetHeight {
				break
			}
			nextRingIterStart += nextRingIters
			nextRingIters += 8
		}
		if x == z || (x < 0 && x == -z) || (x > 0 && x == 1-z) {
			dx, dz = -dz, dx
		}
		x += dx
		z += dz
	}
	return h
}

const (
	edgeUndef = int32(-1)
	edgeHull  = int32(-2)
)

func findEdge(edges []int32, nedges, s, t int32) int32 {
	for i := int32(0); i < nedges; i++ {
		e := edges[i*4:]
		if (e[0] == s && e[1] == t) || (e[0] == t && e[1] == s) {
			return i
		}
	}
	return edgeUndef
}

func addEdge(edges []int32, nedges *int32, maxEdges, s, t, l, r int32) int32 {
	if *nedges >= maxEdges {
		return edgeUndef
	}
	// Add edge if not already in the triangulation.
	e := findEdge(edges, *nedges, s, t)
	if e == edgeUndef {
		edge := edges[*nedges*4:]
		edge[0] = s
		edge[1] = t
		edge[2] = l
		edge[3] = r
		idx := *nedges
		*nedges++
		return idx
	}
	return edgeUndef
}

func updateLeftFace(e []int32, s, t, f int32) {
	if e[0] == s && e[1] == t && e[2] == edgeUndef {
		e[2] = f
	} else if e[1] == s && e[0] == t && e[3] == edgeUndef {
		e[3] = f
	}
}

func overlapSegSeg2d(a, b, c, d []float32) bool {
	a1 := vcross2(a, b, d)
	a2 := vcross2(a, b, c)
	if a1*a2 < 0 {
		a3 := vcross2(c, d, a)
		a4 := a3 + a2 - a1
		if a3*a4 < 0 {
			return true
		}
	}
	return false
}

func overlapEdges(edges []int32, nedges, s1, t1 int32, verts []float32) bool {
	for i := int32(0); i < nedges; i++ {
		s0 := edges[i*4]
		t0 := edges[i*4+1]
		// Same or connected edges do not overlap.
		if s0 == s1 || s0 == t1 || t0 == s1 || t0 == t1 {
			continue
		}
		if overlapSegSeg2d(verts[s0*3:], verts[t0*3:], verts[s1*3:], verts[t1*3:]) {
			return true
		}
	}
	return false
}

func completeFacet(pts []float32, npts int32, edges []int32, nedges *int32, maxEdges int32, nfaces *int32, e int32) {
	const eps = 1e-5

	edge := edges[e*4:]

	// Cache s and t.
	var s, t int32
	if edge[2] == edgeUndef {
		s = edge[0]
		t = edge[1]
	} else if edge[3] == edgeUndef {
		s = edge[1]
		t = edge[0]
	} else {
		// Edge already completed.
		return
	}

	// Find best point on left of edge.
	pt := npts
	var c [3]float32
	r := float32(-1)
	for u := int32(0); u < npts; u++ {
		if u == s || u == t {
			continue
		}
		if vcross2(pts[s*3:], pts[t*3:], pts[u*3:]) > eps {
			if r < 0 {
				// The circle is not updated yet, do it now.
				pt = u
				r, _ = circumCircle(pts[s*3:], pts[t*3:], pts[u*3:], c[:])
				continue
			}
			d := vdist2(c[:], pts[u*3:])
			tol := float32(0.001)
			if d > r*(1+tol) {
				// Outside current circumcircle, skip.
				continue
			} else if d < r*(1-tol) {
				// Inside safe circumcircle, update circle.
				pt = u
				r, _ = circumCircle(pts[s*3:], pts[t*3:], pts[u*3:], c[:])
			} else {
				// Inside epsilon circumcircle, do extra tests to make sure
				// the edge is valid.
				if overlapEdges(edges, *nedges, s, u, pts) {
					continue
				}
				if overlapEdges(edges, *nedges, t, u, pts) {
					continue
				}
				pt = u
				r, _ = circumCircle(pts[s*3:], pts[t*3:], pts[u*3:], c[:])
			}
		}
	}

	// Add new triangle or update edge info if s-t is on hull.
	if pt < npts {
		// Update face information of edge being completed.
		updateLeftFace(edges[e*4:], s, t, *nfaces)

		// Add new edge or update face info of old edge.
		e = findEdge(edges, *nedges, pt, s)
		if e == edgeUndef {
			addEdge(edges, nedges, maxEdges, pt, s, *nfaces, edgeUndef)
		} else {
			updateLeftFace(edges[e*4:], pt, s, *nfaces)
		}

		e = findEdge(edges, *nedges, t, pt)
		if e == edgeUndef {
			addEdge(edges, nedges, maxEdges, t, pt, *nfaces, edgeUndef)
		} else {
			updateLeftFace(edges[e*4:], t, pt, *nfaces)
		}

		*nfaces++
	} else {
		updateLeftFace(edges[e*4:], s, t, edgeHull)
	}
}

func delaunayHull(npts int32, pts []float32, nhull int32, hull []int32, tris *[]int32) {
	nfaces := int32(0)
	nedges := int32(0)
	maxEdges := npts * 10
	edges := make([]int32, maxEdges*4)

	for i, j := int32(0), nhull-1; i < nhull; j, i = i, i+1 {
		addEdge(edges, &nedges, maxEdges, hull[j], hull[i], edgeHull, edgeUndef)
	}

	currentEdge := int32(0)
	for currentEdge < nedges {
		if edges[currentEdge*4+2] == edgeUndef {
			completeFacet(pts, npts, edges, &nedges, maxEdges, &nfaces, currentEdge)
		}
		if edges[currentEdge*4+3] == edgeUndef {
			completeFacet(pts, npts, edges, &nedges, maxEdges, &nfaces, currentEdge)
		}
		currentEdge++
	}

	// Create tris.
	*tris = (*tris)[:0]
	for i := int32(0); i < nfaces*4; i++ {
		*tris = append(*tris, -1)
	}
	t := *tris

	for i := int32(0); i < nedges; i++ {
		e := edges[i*4:]
		if e[3] >= 0 {
			// Left face.
			tri := t[e[3]*4:]
			if tri[0] == -1 {
				tri[0] = e[0]
				tri[1] = e[1]
			} else if tri[0] == e[1] {
				tri[2] = e[0]
			} else if tri[1] == e[0] {
				tri[2] = e[1]
			}
		}
		if e[2] >= 0 {
			// Right face.
			tri := t[e[2]*4:]
			if tri[0] == -1 {
				tri[0] = e[1]
				tri[1] = e[0]
			} else if tri[0] == e[0] {
				tri[2] = e[1]
			} else if tri[1] == e[1] {
				tri[2] = e[0]
			}
		}
	}

	// Remove dangling faces.
	for i := 0; i < len(t)/4; i++ {
		if t[i*4] == -1 || t[i*4+1] == -1 || t[i*4+2] == -1 {
			copy(t[i*4:i*4+4], t[len(t)-4:])
			t = t[:len(t)-4]
			i--
		}
	}
	*tris = t
}

// polyMinExtent returns the shortest distance across the polygon, used to
// detect slivers.
func polyMinExtent(verts []float32, nverts int32) float32 {
	minDist := float32(math.MaxFloat32)
	for i := int32(0); i < nverts; i++ {
		ni := (i + 1) % nverts
		p1 := verts[i*3:]
		p2 := verts[ni*3:]
		maxEdgeDist := float32(0)
		for j := int32(0); j < nverts; j++ {
			if j == i || j == ni {
				continue
			}
			d := distancePtSeg2d(verts[j*3:], p1, p2)
			maxEdgeDist = maxf(maxEdgeDist, d)
		}
		minDist = minf(minDist, maxEdgeDist)
	}
	return float32(math.Sqrt(float64(minDist)))
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func prevHull(i, n int32) int32 {
	if i-1 >= 0 {
		return i - 1
	}
	return n - 1
}

func nextHull(i, n int32) int32 {
	if i+1 < n {
		return i + 1
	}
	return 0
}

func triangulateHull(verts []float32, nhull int32, hull []int32, nin int32, tris *[]int32) {
	start, left, right := int32(0), int32(1), nhull-1

	// Start from an ear with the shortest perimeter. Ears have an original
	// polygon vertex in the middle so they never span an edge tessellation.
	dmin := float32(math.MaxFloat32)
	for i := int32(0); i < nhull; i++ {
		if hull[i] >= nin {
			continue
		}
		pi := prevHull(i, nhull)
		ni := nextHull(i, nhull)
		pv := verts[hull[pi]*3:]
		cv := verts[hull[i]*3:]
		nv := verts[hull[ni]*3:]
		d := vdist2(pv, cv) + vdist2(cv, nv) + vdist2(nv, pv)
		if d < dmin {
			start = i
			left = ni
			right = pi
			dmin = d
		}
	}

	*tris = append(*tris, hull[start], hull[left], hull[right], 0)

	// Advance the side whose next triangle has the shorter perimeter.
	for nextHull(left, nhull) != right {
		nleft := nextHull(left, nhull)
		nright := prevHull(right, nhull)

		cvleft := verts[hull[left]*3:]
		nvleft := verts[hull[nleft]*3:]
		cvright := verts[hull[right]*3:]
		nvright := verts[hull[nright]*3:]

		dleft := vdist2(cvleft, nvleft) + vdist2(nvleft, cvright)
		dright := vdist2(cvright, nvright) + vdist2(cvleft, nvright)

		if dleft < dright {
			*tris = append(*tris, hull[left], hull[nleft], hull[right], 0)
			left = nleft
		} else {
			*tris = append(*tris, hull[left], hull[nright], hull[right], 0)
			right = nright
		}
	}
}

func getEdgeFlags(va, vb, vpoly []float32, npoly int32) uint8 {
	// The flag returned by this function matches getDetailTriEdgeFlags.
	// Figure out if edge (va, vb) is part of the polygon boundary.
	const thrSqr = 0.001 * 0.001
	for i, j := int32(0), npoly-1; i < npoly; j, i = i, i+1 {
		if distancePtSeg2d(va, vpoly[j*3:], vpoly[i*3:]) < thrSqr &&
			distancePtSeg2d(vb, vpoly[j*3:], vpoly[i*3:]) < thrSqr {
			return 1
		}
	}
	return 0
}

func getTriFlags(va, vb, vc, vpoly []float32, npoly int32) uint8 {
	flags := getEdgeFlags(va, vb, vpoly, npoly)
	flags |= getEdgeFlags(vb, vc, vpoly, npoly) << 2
	flags |= getEdgeFlags(vc, va, vpoly, npoly) << 4
	return flags
}

const (
	detailMaxVerts        = 127
	detailMaxTris         = 255
	detailMaxVertsPerEdge = 32
)

func buildPolyDetail(in []float32, nin int32, sampleDist, sampleMaxError float32,
	heightSearchRadius int32, chf *CompactHeightfield, hp *heightPatch,
	verts []float32, tris *[]int32) (int32, error) {

	var edge [(detailMaxVertsPerEdge + 1) * 3]float32
	var hull [detailMaxVerts]int32
	nhull := int32(0)

	nverts := nin
	for i := int32(0); i < nin; i++ {
		geom.Vcopy(verts[i*3:], in[i*3:])
	}
	*tris = (*tris)[:0]

	cs := chf.CS
	ics := 1.0 / cs

	// Calculate minimum extents of the polygon based on input data.
	minExtent := polyMinExtent(verts, nverts)

	// Tessellate outlines; this is done in separate passes to ensure
	// seamless height values across the ploy boundaries.
	if sampleDist > 0 {
		for i, j := int32(0), nin-1; i < nin; j, i = i, i+1 {
			vj := in[j*3:]
			vi := in[i*3:]
			swapped := false
			// Make sure the segments are always handled in same order using
			// lexological sort or else there will be seams.
			if absf(vj[0]-vi[0]) < 1e-6 {
				if vj[2] > vi[2] {
					vj, vi = vi, vj
					swapped = true
				}
			} else if vj[0] > vi[0] {
				vj, vi = vi, vj
				swapped = true
			}
			// Create samples along the edge.
			dx := vi[0] - vj[0]
			dy := vi[1] - vj[1]
			dz := vi[2] - vj[2]
			d := float32(math.Sqrt(float64(dx*dx + dz*dz)))
			nn := 1 + int32(math.Floor(float64(d/sampleDist)))
			if nn >= detailMaxVertsPerEdge {
				nn = detailMaxVertsPerEdge - 1
			}
			if nverts+nn >= detailMaxVerts {
				nn = detailMaxVerts - 1 - nverts
			}

			for k := int32(0); k <= nn; k++ {
				u := float32(k) / float32(nn)
				pos := edge[k*3:]
				pos[0] = vj[0] + dx*u
				pos[1] = vj[1] + dy*u
				pos[2] = vj[2] + dz*u
				pos[1] = float32(getHeight(pos[0], pos[1], pos[2], ics, chf.CH, heightSearchRadius, hp)) * chf.CH
			}
			// Simplify samples.
			var idx [detailMaxVertsPerEdge]int32
			idx[0], idx[1] = 0, nn
			nidx := int32(2)
			for k := int32(0); k < nidx-1; {
				a := idx[k]
				b := idx[k+1]
				va := edge[a*3:]
				vb := edge[b*3:]
				// Find maximum deviation along the segment.
				maxd := float32(0)
				maxi := int32(-1)
				for m := a + 1; m < b; m++ {
					dev := distancePtSeg(edge[m*3:], va, vb)
					if dev > maxd {
						maxd = dev
						maxi = m
					}
				}
				// If the max deviation is larger than accepted error, add a
				// new point, else continue to next segment.
				if maxi != -1 && maxd > sampleMaxError*sampleMaxError {
					for m := nidx; m > k; m-- {
						idx[m] = idx[m-1]
					}
					idx[k+1] = maxi
					nidx++
				} else {
					k++
				}
			}

			hull[nhull] = j
			nhull++
			// Add new vertices.
			if swapped {
				for k := nidx - 2; k > 0; k-- {
					geom.Vcopy(verts[nverts*3:], edge[idx[k]*3:])
					hull[nhull] = nverts
					nhull++
					nverts++
				}
			} else {
				for k := int32(1); k < nidx-1; k++ {
					geom.Vcopy(verts[nverts*3:], edge[idx[k]*3:])
					hull[nhull] = nverts
					nhull++
					nverts++
				}
			}
		}
	}

	// If the polygon minimum extent is small (sliver or small triangle), do
	// not try to add internal points.
	if minExtent < sampleDist*2 {
		triangulateHull(verts, nhull, hull[:], nin, tris)
		return nverts, nil
	}

	// Tessellate the base mesh. Use the triangulateHull instead of
	// delaunayHull as it tends to create a bit better triangulation for long
	// thin triangles when there are no internal points.
	triangulateHull(verts, nhull, hull[:], nin, tris)
	if len(*tris) == 0 {
		// Could not triangulate the polygon, keep the flat variant.
		return nverts, nil
	}

	if sampleDist > 0 {
		// Create sample locations in a grid.
		var bmin, bmax [3]float32
		geom.Vcopy(bmin[:], in)
		geom.Vcopy(bmax[:], in)
		for i := int32(1); i < nin; i++ {
			geom.Vmin(bmin[:], in[i*3:])
			geom.Vmax(bmax[:], in[i*3:])
		}
		x0 := int32(math.Floor(float64(bmin[0] / sampleDist)))
		x1 := int32(math.Ceil(float64(bmax[0] / sampleDist)))
		z0 := int32(math.Floor(float64(bmin[2] / sampleDist)))
		z1 := int32(math.Ceil(float64(bmax[2] / sampleDist)))

		var samples []int32
		for z := z0; z < z1; z++ {
			for x := x0; x < x1; x++ {
				var pt [3]float32
				pt[0] = float32(x) * sampleDist
				pt[1] = (bmax[1] + bmin[1]) * 0.5
				pt[2] = float32(z) * sampleDist
				// Make sure the samples are not too close to the edges.
				if distToPoly(nin, in, pt[:]) > -sampleDist/2 {
					continue
				}
				samples = append(samples, x,
					int32(getHeight(pt[0], pt[1], pt[2], ics, chf.CH, heightSearchRadius, hp)),
					z, 0)
			}
		}

		// Add the samples starting from the one that has the most error.
		nsamples := int32(len(samples) / 4)
		for iter := int32(0); iter < nsamples; iter++ {
			if nverts >= detailMaxVerts {
				break
			}

			// Find sample with most error.
			var bestpt [3]float32
			bestd := float32(0)
			besti := int32(-1)
			for i := int32(0); i < nsamples; i++ {
				s := samples[i*4:]
				if s[3] != 0 {
					continue // skip added
				}
				var pt [3]float32
				// The sample location is jittered to get rid of some bad
				// triangulations which are caused by symmetrical data from
				// the grid structure.
				pt[0] = float32(s[0])*sampleDist + getJitterX(i)*cs*0.1
				pt[1] = float32(s[1]) * chf.CH
				pt[2] = float32(s[2])*sampleDist + getJitterY(i)*cs*0.1
				d := distToTriMesh(pt[:], verts, *tris, int32(len(*tris)/4))
				if d < 0 {
					continue // did not hit the mesh
				}
				if d > bestd {
					bestd = d
					besti = i
					bestpt = pt
				}
			}
			// If the max error is within accepted threshold, stop tessellating.
			if bestd <= sampleMaxError || besti == -1 {
				break
			}
			// Mark sample as added.
			samples[besti*4+3] = 1
			// Add the new sample point.
			geom.Vcopy(verts[nverts*3:], bestpt[:])
			nverts++

			// Create new triangulation. Full rebuild.
			delaunayHull(nverts, verts, nhull, hull[:], tris)
		}
	}

	ntris := int32(len(*tris) / 4)
	if ntris > detailMaxTris {
		*tris = (*tris)[:detailMaxTris*4]
	}
	return nverts, nil
}

func getJitterX(i int32) float32 {
	return (float32((uint32(i)*0x8da6b343)&0xffff) / 65535.0 * 2.0) - 1.0
}

func getJitterY(i int32) float32 {
	return (float32((uint32(i)*0xd8163841)&0xffff) / 65535.0 * 2.0) - 1.0
}

type queueItem struct {
	x, z, index int32
}

func dirForOffset(x, z int32) int32 {
	dirs := [5]int32{3, 0, -1, 2, 1}
	return dirs[((z+1)<<1)+x]
}

func seedArrayWithPolyCenter(chf *CompactHeightfield, poly []uint16, npoly int32,
	verts []uint16, bs int32, hp *heightPatch, queue *[]queueItem) {

	// Note: reads to the compact heightfield are offset by the border size
	// since border spans were removed from the polygon coordinates.
	offset := [9 * 2]int32{0, 0, -1, -1, 0, -1, 1, -1, 1, 0, 1, 1, 0, 1, -1, 1, -1, 0}

	// Find cell closest to a poly vertex.
	startCellX, startCellZ, startSpanIndex := int32(0), int32(0), int32(-1)
	dmin := int32(unsetHeight)
	for j := int32(0); j < npoly && dmin > 0; j++ {
		for k := int32(0); k < 9 && dmin > 0; k++ {
			ax := int32(verts[poly[j]*3+0]) + offset[k*2+0]
			ay := int32(verts[poly[j]*3+1])
			az := int32(verts[poly[j]*3+2]) + offset[k*2+1]
			if ax < hp.xmin || ax >= hp.xmin+hp.width ||
				az < hp.zmin || az >= hp.zmin+hp.height {
				continue
			}
			c := &chf.Cells[(ax+bs)+(az+bs)*chf.Width]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				d := absInt32(ay - int32(s.Y))
				if d < dmin {
					startCellX = ax
					startCellZ = az
					startSpanIndex = int32(i)
					dmin = d
				}
			}
		}
	}

	// Find center of the polygon.
	pcx, pcz := int32(0), int32(0)
	for j := int32(0); j < npoly; j++ {
		pcx += int32(verts[poly[j]*3+0])
		pcz += int32(verts[poly[j]*3+2])
	}
	pcx /= npoly
	pcz /= npoly

	// Use seeds array as a stack for DFS.
	*queue = (*queue)[:0]
	*queue = append(*queue, queueItem{startCellX, startCellZ, startSpanIndex})

	dirs := [4]int32{0, 1, 2, 3}
	for i := range hp.data {
		hp.data[i] = 0
	}
	// DFS to move to the center. Classical DFS is not used because the
	// output needs the last visited cell.
	cx, cz, ci := int32(-1), int32(-1), int32(-1)
	for {
		if len(*queue) < 1 {
			// Walked out of bounds before reaching the center.
			break
		}
		item := (*queue)[len(*queue)-1]
		*queue = (*queue)[:len(*queue)-1]
		cx, cz, ci = item.x, item.z, item.index

		if cx == pcx && cz == pcz {
			break
		}

		// Head in the direction of the center on the axis farthest away.
		var directDir int32
		if cx == pcx {
			if pcz > cz {
				directDir = dirForOffset(0, 1)
			} else {
				directDir = dirForOffset(0, -1)
			}
		} else {
			if pcx > cx {
				directDir = dirForOffset(1, 0)
			} else {
				directDir = dirForOffset(-1, 0)
			}
		}

		// Push the direct dir last so it is popped first.
		dirs[directDir], dirs[3] = dirs[3], dirs[directDir]

		cs := &chf.Spans[ci]
		for i := int32(0); i < 4; i++ {
			dir := dirs[i]
			if cs.GetCon(dir) == NotConnected {
				continue
			}
			newX := cx + geom.DirOffsetX(dir)
			newZ := cz + geom.DirOffsetZ(dir)
			hpx := newX - hp.xmin
			hpz := newZ - hp.zmin
			if hpx < 0 || hpx >= hp.width || hpz < 0 || hpz >= hp.height {
				continue
			}
			if hp.data[hpx+hpz*hp.width] != 0 {
				continue
			}
			hp.data[hpx+hpz*hp.width] = 1
			ni := int32(chf.Cells[(newX+bs)+(newZ+bs)*chf.Width].Index) + cs.GetCon(dir)
			*queue = append(*queue, queueItem{newX, newZ, ni})
		}

		dirs[directDir], dirs[3] = dirs[3], dirs[directDir]
	}

	*queue = (*queue)[:0]
	// getHeightData seeds are given in coordinates with borders.
	*queue = append(*queue, queueItem{cx + bs, cz + bs, ci})

	for i := range hp.data {
		hp.data[i] = unsetHeight
	}
	if ci != -1 {
		cs := &chf.Spans[ci]
		hp.data[(cx-hp.xmin)+(cz-hp.zmin)*hp.width] = cs.Y
	}
}

const retractSize = 256

func getHeightData(chf *CompactHeightfield, poly []uint16, npoly int32,
	verts []uint16, bs int32, hp *heightPatch, queue *[]queueItem, region uint16) {

	// Floodfill the heightfield to get 2D height data, starting at vertex
	// locations as seeds.
	*queue = (*queue)[:0]
	for i := range hp.data {
		hp.data[i] = unsetHeight
	}

	empty := true

	// The seeds of the flood fill are the region borders; the region data
	// itself is copied directly.
	if region != multipleRegs {
		for hz := int32(0); hz < hp.height; hz++ {
			z := hp.zmin + hz + bs
			for hx := int32(0); hx < hp.width; hx++ {
				x := hp.xmin + hx + bs
				c := &chf.Cells[x+z*chf.Width]
				for i := c.Index; i < c.Index+c.Count; i++ {
					s := &chf.Spans[i]
					if s.Reg != region {
						continue
					}
					// Store height.
					hp.data[hx+hz*hp.width] = s.Y
					empty = false

					// If any of the neighbours is not in the same region,
					// the span is at a border and becomes a seed point.
					border := false
					for dir := int32(0); dir < 4; dir++ {
						if s.GetCon(dir) == NotConnected {
							continue
						}
						ax := x + geom.DirOffsetX(dir)
						az := z + geom.DirOffsetZ(dir)
						ai := int32(chf.Cells[ax+az*chf.Width].Index) + s.GetCon(dir)
						if chf.Spans[ai].Reg != region {
							border = true
							break
						}
					}
					if border {
						*queue = append(*queue, queueItem{x, z, int32(i)})
					}
					break
				}
			}
		}
	}

	// The polygon may not have any region data when it was produced by
	// removing vertices; in that case seed from the polygon center.
	if empty {
		seedArrayWithPolyCenter(chf, poly, npoly, verts, bs, hp, queue)
	}

	// BFS over the open space under the polygon. The queue retracts in
	// blocks to bound the memory of the sliding window.
	head := 0
	for head < len(*queue) {
		item := (*queue)[head]
		head++
		if head >= retractSize {
			head = 0
			*queue = append((*queue)[:0], (*queue)[retractSize:]...)
		}

		cx, cz, ci := item.x, item.z, item.index
		if ci < 0 {
			continue
		}
		cs := &chf.Spans[ci]
		for dir := int32(0); dir < 4; dir++ {
			if cs.GetCon(dir) == NotConnected {
				continue
			}
			ax := cx + geom.DirOffsetX(dir)
			az := cz + geom.DirOffsetZ(dir)
			hx := ax - hp.xmin - bs
			hz := az - hp.zmin - bs
			if hx < 0 || hx >= hp.width || hz < 0 || hz >= hp.height {
				continue
			}
			if hp.data[hx+hz*hp.width] != unsetHeight {
				continue
			}
			ai := int32(chf.Cells[ax+az*chf.Width].Index) + cs.GetCon(dir)
			hp.data[hx+hz*hp.width] = chf.Spans[ai].Y
			*queue = append(*queue, queueItem{ax, az, ai})
		}
	}
}

// BuildPolyMeshDetail builds a height-accurate triangle mesh for every
// polygon of mesh by sampling the compact heightfield under it. sampleDist
// and sampleMaxError are in world units.
func BuildPolyMeshDetail(mesh *PolyMesh, chf *CompactHeightfield, sampleDist, sampleMaxError float32) (*PolyMeshDetail, error) {
	dmesh := &PolyMeshDetail{}
	if mesh.NVerts == 0 || mesh.NPolys == 0 {
		return dmesh, nil
	}

	nvp := mesh.NVP
	cs := mesh.CS
	ch := mesh.CH
	orig := mesh.BMin
	borderSize := mesh.BorderSize
	heightSearchRadius := maxInt32(1, int32(math.Ceil(float64(mesh.MaxEdgeError))))

	var tris []int32
	var queue []queueItem
	verts := make([]float32, 256*3)
	var hp heightPatch
	nPolyVerts := int32(0)
	maxhw, maxhh := int32(0), int32(0)

	bounds := make([]int32, mesh.NPolys*4)
	poly := make([]float32, nvp*3)

	// Find max size for a polygon area.
	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		xmin := chf.Width
		xmax := int32(0)
		zmin := chf.Height
		zmax := int32(0)
		for j := int32(0); j < nvp; j++ {
			if p[j] == MeshNullIdx {
				break
			}
			v := mesh.Verts[p[j]*3:]
			xmin = minInt32(xmin, int32(v[0]))
			xmax = maxInt32(xmax, int32(v[0]))
			zmin = minInt32(zmin, int32(v[2]))
			zmax = maxInt32(zmax, int32(v[2]))
			nPolyVerts++
		}
		xmin = maxInt32(0, xmin-1)
		xmax = minInt32(chf.Width, xmax+1)
		zmin = maxInt32(0, zmin-1)
		zmax = minInt32(chf.Height, zmax+1)
		bounds[i*4+0] = xmin
		bounds[i*4+1] = xmax
		bounds[i*4+2] = zmin
		bounds[i*4+3] = zmax
		if xmin >= xmax || zmin >= zmax {
			continue
		}
		maxhw = maxInt32(maxhw, xmax-xmin)
		maxhh = maxInt32(maxhh, zmax-zmin)
	}

	hp.data = make([]uint16, maxhw*maxhh)

	dmesh.NMeshes = mesh.NPolys
	dmesh.Meshes = make([]uint32, dmesh.NMeshes*4)

	vcap := nPolyVerts + nPolyVerts/2
	tcap := vcap * 2
	dmesh.Verts = make([]float32, 0, vcap*3)
	dmesh.Tris = make([]uint8, 0, tcap*4)

	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.Polys[i*nvp*2:]

		// Store polygon vertices for processing.
		npoly := int32(0)
		for j := int32(0); j < nvp; j++ {
			if p[j] == MeshNullIdx {
				break
			}
			v := mesh.Verts[p[j]*3:]
			poly[j*3+0] = float32(v[0]) * cs
			poly[j*3+1] = float32(v[1]) * ch
			poly[j*3+2] = float32(v[2]) * cs
			npoly++
		}

		// Get the height data from the area of the polygon.
		hp.xmin = bounds[i*4+0]
		hp.zmin = bounds[i*4+2]
		hp.width = bounds[i*4+1] - bounds[i*4+0]
		hp.height = bounds[i*4+3] - bounds[i*4+2]
		getHeightData(chf, p, npoly, mesh.Verts, borderSize, &hp, &queue, mesh.Regs[i])

		// Build detail mesh.
		nverts, err := buildPolyDetail(poly, npoly, sampleDist, sampleMaxError,
			heightSearchRadius, chf, &hp, verts, &tris)
		if err != nil {
			return nil, err
		}

		// Move detail verts to world space.
		for j := int32(0); j < nverts; j++ {
			verts[j*3+0] += orig[0]
			verts[j*3+1] += orig[1] + chf.CH
			verts[j*3+2] += orig[2]
		}
		// Offset poly too, it is used to flag the boundary edges.
		for j := int32(0); j < npoly; j++ {
			poly[j*3+0] += orig[0]
			poly[j*3+1] += orig[1]
			poly[j*3+2] += orig[2]
		}

		// Store detail submesh.
		ntris := int32(len(tris) / 4)

		dmesh.Meshes[i*4+0] = uint32(dmesh.NVerts)
		dmesh.Meshes[i*4+1] = uint32(nverts)
		dmesh.Meshes[i*4+2] = uint32(dmesh.NTris)
		dmesh.Meshes[i*4+3] = uint32(ntris)

		for j := int32(0); j < nverts; j++ {
			dmesh.Verts = append(dmesh.Verts, verts[j*3], verts[j*3+1], verts[j*3+2])
		}
		dmesh.NVerts += nverts

		for j := int32(0); j < ntris; j++ {
			t := tris[j*4:]
			dmesh.Tris = append(dmesh.Tris,
				uint8(t[0]), uint8(t[1]), uint8(t[2]),
				getTriFlags(verts[t[0]*3:], verts[t[1]*3:], verts[t[2]*3:], poly, npoly))
		}
		dmesh.NTris += ntris
	}

	return dmesh, nil
}

// MergePolyMeshDetails concatenates detail meshes, rebasing each submesh's
// vertex and triangle offsets into the combined arrays.
func MergePolyMeshDetails(meshes []*PolyMeshDetail) (*PolyMeshDetail, error) {
	mesh := &PolyMeshDetail{}

	maxVerts := int32(0)
	maxTris := int32(0)
	maxMeshes := int32(0)
	for _, dm := range meshes {
		if dm == nil {
			continue
		}
		maxVerts += dm.NVerts
		maxTris += dm.NTris
		maxMeshes += dm.NMeshes
	}

	mesh.Meshes = make([]uint32, 0, maxMeshes*4)
	mesh.Tris = make([]uint8, 0, maxTris*4)
	mesh.Verts = make([]float32, 0, maxVerts*3)

	for _, dm := range meshes {
		if dm == nil {
			continue
		}
		for j := int32(0); j < dm.NMeshes; j++ {
			src := dm.Meshes[j*4:]
			mesh.Meshes = append(mesh.Meshes,
				uint32(mesh.NVerts)+src[0], src[1],
				uint32(mesh.NTris)+src[2], src[3])
			mesh.NMeshes++
		}
		mesh.Verts = append(mesh.Verts, dm.Verts[:dm.NVerts*3]...)
		mesh.NVerts += dm.NVerts
		mesh.Tris = append(mesh.Tris, dm.Tris[:dm.NTris*4]...)
		mesh.NTris += dm.NTris
	}
	return mesh, nil
}
