package mesher

import (
	"sort"

	"github.com/navforge/navforge/geom"
)

// Contour tessellation flags.
const (
	// TessWallEdges splits long edges bordering un-walkable space.
	TessWallEdges = 0x01
	// TessAreaEdges splits long edges between different areas.
	TessAreaEdges = 0x02
)

// Contour is one simplified region outline. Verts holds (x, y, z, flag)
// quads in cell units; RawVerts holds the un-simplified boundary.
type Contour struct {
	Verts    []int32
	RawVerts []int32
	Reg      uint16
	Area     uint8
}

// ContourSet holds the simplified outlines of all regions.
type ContourSet struct {
	Conts      []Contour
	BMin       [3]float32
	BMax       [3]float32
	CS         float32
	CH         float32
	Width      int32
	Height     int32
	BorderSize int32
	MaxError   float32
}

func getCornerHeight(x, z, i, dir int32, chf *CompactHeightfield) (int32, bool) {
	w := chf.Width
	s := &chf.Spans[i]
	ch := int32(s.Y)
	dirp := (dir + 1) & 3

	var regs [4]uint32

	// Combined region and area codes, so that borders between areas count as
	// corners too.
	regs[0] = uint32(s.Reg) | uint32(chf.Areas[i])<<16

	if s.GetCon(dir) != NotConnected {
		ax := x + geom.DirOffsetX(dir)
		az := z + geom.DirOffsetZ(dir)
		ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(dir)
		as := &chf.Spans[ai]
		ch = maxInt32(ch, int32(as.Y))
		regs[1] = uint32(as.Reg) | uint32(chf.Areas[ai])<<16
		if as.GetCon(dirp) != NotConnected {
			ax2 := ax + geom.DirOffsetX(dirp)
			az2 := az + geom.DirOffsetZ(dirp)
			ai2 := int32(chf.Cells[ax2+az2*w].Index) + as.GetCon(dirp)
			as2 := &chf.Spans[ai2]
			ch = maxInt32(ch, int32(as2.Y))
			regs[2] = uint32(as2.Reg) | uint32(chf.Areas[ai2])<<16
		}
	}
	if s.GetCon(dirp) != NotConnected {
		ax := x + geom.DirOffsetX(dirp)
		az := z + geom.DirOffsetZ(dirp)
		ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(dirp)
		as := &chf.Spans[ai]
		ch = maxInt32(ch, int32(as.Y))
		regs[3] = uint32(as.Reg) | uint32(chf.Areas[ai])<<16
		if as.GetCon(dir) != NotConnected {
			ax2 := ax + geom.DirOffsetX(dir)
			az2 := az + geom.DirOffsetZ(dir)
			ai2 := int32(chf.Cells[ax2+az2*w].Index) + as.GetCon(dir)
			as2 := &chf.Spans[ai2]
			ch = maxInt32(ch, int32(as2.Y))
			regs[2] = uint32(as2.Reg) | uint32(chf.Areas[ai2])<<16
		}
	}

	// The vertex is a border vertex when two same-id exterior cells line up
	// along one side of it.
	isBorderVertex := false
	for j := 0; j < 4; j++ {
		a := j
		b := (j + 1) & 3
		c := (j + 2) & 3
		d := (j + 3) & 3
		twoSameExts := regs[a] == regs[b] && uint16(regs[a])&BorderReg != 0
		twoInts := uint16(regs[c])&BorderReg == 0 && uint16(regs[d])&BorderReg == 0
		intsSameArea := regs[c]>>16 == regs[d]>>16
		noZeros := regs[a] != 0 && regs[b] != 0 && regs[c] != 0 && regs[d] != 0
		if twoSameExts && twoInts && intsSameArea && noZeros {
			isBorderVertex = true
			break
		}
	}
	return ch, isBorderVertex
}

func walkContour(x, z, i int32, chf *CompactHeightfield, flags []uint8, points *[]int32) {
	// Choose the first un-connected edge.
	dir := int32(0)
	for flags[i]&(1<<uint(dir)) == 0 {
		dir++
	}
	startDir := dir
	starti := i
	area := chf.Areas[i]
	w := chf.Width

	for iter := 0; iter < 40000; iter++ {
		if flags[i]&(1<<uint(dir)) != 0 {
			// Region edge: emit a vertex.
			py, isBorderVertex := getCornerHeight(x, z, i, dir, chf)
			isAreaBorder := false
			px := x
			pz := z
			switch dir {
			case 1:
				pz++
			case 2:
				px++
				pz++
			case 3:
				px++
			}
			r := int32(0)
			s := &chf.Spans[i]
			if s.GetCon(dir) != NotConnected {
				ax := x + geom.DirOffsetX(dir)
				az := z + geom.DirOffsetZ(dir)
				ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(dir)
				r = int32(chf.Spans[ai].Reg)
				if area != chf.Areas[ai] {
					isAreaBorder = true
				}
			}
			if isBorderVertex {
				r |= BorderVertex
			}
			if isAreaBorder {
				r |= AreaBorder
			}
			*points = append(*points, px, py, pz, r)

			flags[i] &^= 1 << uint(dir)
			dir = (dir + 1) & 3 // rotate CW
		} else {
			ni := int32(-1)
			nx := x + geom.DirOffsetX(dir)
			nz := z + geom.DirOffsetZ(dir)
			s := &chf.Spans[i]
			if s.GetCon(dir) != NotConnected {
				ni = int32(chf.Cells[nx+nz*w].Index) + s.GetCon(dir)
			}
			if ni == -1 {
				// Should not happen.
				return
			}
			x = nx
			z = nz
			i = ni
			dir = (dir + 3) & 3 // rotate CCW
		}

		if starti == i && startDir == dir {
			break
		}
	}
}

func distancePtSeg2D(x, z, px, pz, qx, qz int32) float32 {
	pqx := float32(qx - px)
	pqz := float32(qz - pz)
	dx := float32(x - px)
	dz := float32(z - pz)
	d := pqx*pqx + pqz*pqz
	t := pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	t = geom.Clamp(t, 0, 1)
	dx = float32(px) + t*pqx - float32(x)
	dz = float32(pz) + t*pqz - float32(z)
	return dx*dx + dz*dz
}

func simplifyContour(points []int32, simplified *[]int32, maxError float32, maxEdgeLen int32, buildFlags int32) {
	// A contour touching other regions keeps the transition vertices; a
	// completely isolated one keeps its lower-left and upper-right extremes.
	hasConnections := false
	for i := 0; i < len(points); i += 4 {
		if points[i+3]&ContourRegMask != 0 {
			hasConnections = true
			break
		}
	}

	*simplified = (*simplified)[:0]
	npts := int32(len(points) / 4)

	if hasConnections {
		// Add a point at every region transition.
		for i := int32(0); i < npts; i++ {
			ii := (i + 1) % npts
			differentRegs := points[i*4+3]&ContourRegMask != points[ii*4+3]&ContourRegMask
			areaBorders := points[i*4+3]&AreaBorder != points[ii*4+3]&AreaBorder
			if differentRegs || areaBorders {
				*simplified = append(*simplified, points[i*4], points[i*4+1], points[i*4+2], i)
			}
		}
	}

	if len(*simplified) == 0 {
		llx, lly, llz, lli := points[0], points[1], points[2], int32(0)
		urx, ury, urz, uri := points[0], points[1], points[2], int32(0)
		for i := int32(0); i < npts; i++ {
			x, y, z := points[i*4], points[i*4+1], points[i*4+2]
			if x < llx || (x == llx && z < llz) {
				llx, lly, llz, lli = x, y, z, i
			}
			if x > urx || (x == urx && z > urz) {
				urx, ury, urz, uri = x, y, z, i
			}
		}
		*simplified = append(*simplified, llx, lly, llz, lli, urx, ury, urz, uri)
	}

	// Add points until all raw points are within error tolerance of the
	// simplified shape.
	for i := 0; i < len(*simplified)/4; {
		s := *simplified
		ii := (i + 1) % (len(s) / 4)

		ax := s[i*4]
		az := s[i*4+2]
		ai := s[i*4+3]
		bx := s[ii*4]
		bz := s[ii*4+2]
		bi := s[ii*4+3]

		// Traverse the segment in lexicographic order so results do not
		// depend on walk direction.
		var cinc int32
		var ci, endi int32
		if bx > ax || (bx == ax && bz > az) {
			cinc = 1
			ci = (ai + cinc) % npts
			endi = bi
		} else {
			cinc = npts - 1
			ci = (bi + cinc) % npts
			endi = ai
			ax, bx = bx, ax
			az, bz = bz, az
		}

		maxd := float32(0)
		maxi := int32(-1)
		// Tessellate only outer edges or edges between areas.
		if points[ci*4+3]&ContourRegMask == 0 || points[ci*4+3]&AreaBorder != 0 {
			for ci != endi {
				d := distancePtSeg2D(points[ci*4], points[ci*4+2], ax, az, bx, bz)
				if d > maxd {
					maxd = d
					maxi = ci
				}
				ci = (ci + cinc) % npts
			}
		}

		if maxi != -1 && maxd > maxError*maxError {
			// Insert the deviating point.
			s = append(s, 0, 0, 0, 0)
			n := len(s) / 4
			for j := n - 1; j > i+1; j-- {
				copy(s[j*4:j*4+4], s[(j-1)*4:(j-1)*4+4])
			}
			s[(i+1)*4] = points[maxi*4]
			s[(i+1)*4+1] = points[maxi*4+1]
			s[(i+1)*4+2] = points[maxi*4+2]
			s[(i+1)*4+3] = maxi
			*simplified = s
		} else {
			i++
		}
	}

	// Split long edges.
	if maxEdgeLen > 0 && buildFlags&(TessWallEdges|TessAreaEdges) != 0 {
		for i := 0; i < len(*simplified)/4; {
			s := *simplified
			ii := (i + 1) % (len(s) / 4)

			ax := s[i*4]
			az := s[i*4+2]
			ai := s[i*4+3]
			bx := s[ii*4]
			bz := s[ii*4+2]
			bi := s[ii*4+3]

			maxi := int32(-1)
			ci := (ai + 1) % npts

			// Tessellate only edges of the requested kind.
			tess := false
			if buildFlags&TessWallEdges != 0 && points[ci*4+3]&ContourRegMask == 0 {
				tess = true
			}
			if buildFlags&TessAreaEdges != 0 && points[ci*4+3]&AreaBorder != 0 {
				tess = true
			}

			if tess {
				dx := bx - ax
				dz := bz - az
				if dx*dx+dz*dz > maxEdgeLen*maxEdgeLen {
					// Round based on segment direction so lengths of matching
					// tile-border segments split the same way.
					var n int32
					if bi < ai {
						n = bi + npts - ai
					} else {
						n = bi - ai
					}
					if n > 1 {
						if bx > ax || (bx == ax && bz > az) {
							maxi = (ai + n/2) % npts
						} else {
							maxi = (ai + (n+1)/2) % npts
						}
					}
				}
			}

			if maxi != -1 {
				s = append(s, 0, 0, 0, 0)
				nn := len(s) / 4
				for j := nn - 1; j > i+1; j-- {
					copy(s[j*4:j*4+4], s[(j-1)*4:(j-1)*4+4])
				}
				s[(i+1)*4] = points[maxi*4]
				s[(i+1)*4+1] = points[maxi*4+1]
				s[(i+1)*4+2] = points[maxi*4+2]
				s[(i+1)*4+3] = maxi
				*simplified = s
			} else {
				i++
			}
		}
	}

	// Replace the raw-point indices with edge flags and region ids.
	s := *simplified
	for i := 0; i < len(s)/4; i++ {
		// The edge vertex flag is taken from the current raw point and the
		// neighbour region from the next raw point.
		ai := (s[i*4+3] + 1) % npts
		bi := s[i*4+3]
		s[i*4+3] = points[ai*4+3]&(ContourRegMask|AreaBorder) | points[bi*4+3]&BorderVertex
	}
}

func removeDegenerateSegments(simplified []int32) []int32 {
	// Remove adjacent vertices that are equal on the xz-plane.
	for i := 0; i < len(simplified)/4; {
		npts := len(simplified) / 4
		ni := (i + 1) % npts
		if simplified[i*4] == simplified[ni*4] && simplified[i*4+2] == simplified[ni*4+2] {
			simplified = append(simplified[:i*4], simplified[(i+1)*4:]...)
		} else {
			i++
		}
	}
	return simplified
}

func calcAreaOfPolygon2D(verts []int32, nverts int32) int32 {
	area := int32(0)
	for i, j := int32(0), nverts-1; i < nverts; j, i = i, i+1 {
		vi := verts[i*4:]
		vj := verts[j*4:]
		area += vi[0]*vj[2] - vj[0]*vi[2]
	}
	return (area + 1) / 2
}

// mergeContours splices cb into ca starting at vertex indices ia and ib. The
// duplicated connecting vertices keep both contours traversable as one loop.
func mergeContours(ca, cb *Contour, ia, ib int32) {
	na := int32(len(ca.Verts) / 4)
	nb := int32(len(cb.Verts) / 4)
	verts := make([]int32, 0, (na+nb+2)*4)

	for i := int32(0); i <= na; i++ {
		src := ca.Verts[((ia+i)%na)*4:]
		verts = append(verts, src[0], src[1], src[2], src[3])
	}
	for i := int32(0); i <= nb; i++ {
		src := cb.Verts[((ib+i)%nb)*4:]
		verts = append(verts, src[0], src[1], src[2], src[3])
	}

	ca.Verts = verts
	cb.Verts = nil
}

type contourHole struct {
	contour  *Contour
	minx     int32
	minz     int32
	leftmost int32
}

type contourRegion struct {
	outline *Contour
	holes   []contourHole
}

type potentialDiagonal struct {
	vert int32
	dist int32
}

// findLeftMostVertex returns the index of the lowest, leftmost vertex of the
// contour.
func findLeftMostVertex(contour *Contour) (minx, minz, leftmost int32) {
	minx = contour.Verts[0]
	minz = contour.Verts[2]
	leftmost = 0
	n := int32(len(contour.Verts) / 4)
	for i := int32(1); i < n; i++ {
		x := contour.Verts[i*4]
		z := contour.Verts[i*4+2]
		if x < minx || (x == minx && z < minz) {
			minx = x
			minz = z
			leftmost = i
		}
	}
	return
}

func intersectSegContour(d0, d1 []int32, i, n int32, verts []int32) bool {
	for k := int32(0); k < n; k++ {
		k1 := (k + 1) % n
		// Skip edges incident to the diagonal ends.
		if i == k || i == k1 {
			continue
		}
		p0 := verts[k*4:]
		p1 := verts[k1*4:]
		if (d0[0] == p0[0] && d0[2] == p0[2]) || (d1[0] == p0[0] && d1[2] == p0[2]) ||
			(d0[0] == p1[0] && d0[2] == p1[2]) || (d1[0] == p1[0] && d1[2] == p1[2]) {
			continue
		}
		if intersect2D(d0, d1, p0, p1) {
			return true
		}
	}
	return false
}

func inConeContour(i, n int32, verts []int32, pj []int32) bool {
	pi := verts[i*4:]
	pi1 := verts[((i+1)%n)*4:]
	pin1 := verts[((i+n-1)%n)*4:]

	if leftOn4(pin1, pi, pi1) {
		return left4(pi, pj, pin1) && left4(pj, pi, pi1)
	}
	return !(leftOn4(pi, pj, pi1) && leftOn4(pj, pi, pin1))
}

// mergeRegionHoles joins each hole in the region to the outline through the
// shortest non-intersecting diagonal, leftmost hole first.
func mergeRegionHoles(reg *contourRegion) {
	for h := range reg.holes {
		hole := &reg.holes[h]
		hole.minx, hole.minz, hole.leftmost = findLeftMostVertex(hole.contour)
	}
	sort.SliceStable(reg.holes, func(a, b int) bool {
		ha, hb := &reg.holes[a], &reg.holes[b]
		if ha.minx == hb.minx {
			return ha.minz < hb.minz
		}
		return ha.minx < hb.minx
	})

	maxVerts := len(reg.outline.Verts) / 4
	for _, h := range reg.holes {
		maxVerts += len(h.contour.Verts) / 4
	}
	diags := make([]potentialDiagonal, 0, maxVerts)

	outline := reg.outline

	// Merge holes into the outline one by one.
	for i := range reg.holes {
		hole := reg.holes[i].contour

		index := int32(-1)
		bestVertex := reg.holes[i].leftmost
		nhole := int32(len(hole.Verts) / 4)
		for iter := int32(0); iter < nhole; iter++ {
			// Find potential diagonals from the hole vertex to outline
			// vertices inside its cone, closest first.
			diags = diags[:0]
			corner := hole.Verts[bestVertex*4:]
			nout := int32(len(outline.Verts) / 4)
			for j := int32(0); j < nout; j++ {
				if inConeContour(j, nout, outline.Verts, corner) {
					dx := outline.Verts[j*4] - corner[0]
					dz := outline.Verts[j*4+2] - corner[2]
					diags = append(diags, potentialDiagonal{vert: j, dist: dx*dx + dz*dz})
				}
			}
			sort.SliceStable(diags, func(a, b int) bool { return diags[a].dist < diags[b].dist })

			// First diagonal not intersecting the outline nor any hole.
			index = -1
			for j := range diags {
				pt := outline.Verts[diags[j].vert*4:]
				intersect := intersectSegContour(pt, corner, diags[j].vert, nout, outline.Verts)
				for k := i; k < len(reg.holes) && !intersect; k++ {
					hc := reg.holes[k].contour
					intersect = intersectSegContour(pt, corner, -1, int32(len(hc.Verts)/4), hc.Verts)
				}
				if !intersect {
					index = diags[j].vert
					break
				}
			}
			if index != -1 {
				break
			}
			// All vertices were intersecting; try the next hole vertex.
			bestVertex = (bestVertex + 1) % nhole
		}

		if index == -1 {
			continue
		}
		mergeContours(outline, hole, index, bestVertex)
	}
}

// BuildContours traces region boundaries in chf, simplifies them under
// maxError cells of deviation, splits edges longer than maxEdgeLen cells per
// buildFlags, and merges hole outlines into their containing regions.
func BuildContours(chf *CompactHeightfield, maxError float32, maxEdgeLen int32, buildFlags int32) (*ContourSet, error) {
	w, h := chf.Width, chf.Height
	borderSize := chf.BorderSize

	cset := &ContourSet{
		BMin:       chf.BMin,
		BMax:       chf.BMax,
		CS:         chf.CS,
		CH:         chf.CH,
		Width:      w - borderSize*2,
		Height:     h - borderSize*2,
		BorderSize: borderSize,
		MaxError:   maxError,
	}
	if borderSize > 0 {
		// Bounds without the border.
		pad := float32(borderSize) * chf.CS
		cset.BMin[0] += pad
		cset.BMin[2] += pad
		cset.BMax[0] -= pad
		cset.BMax[2] -= pad
	}

	// Mark boundaries: bit per direction where the neighbour has a
	// different region.
	flags := make([]uint8, chf.SpanCount)
	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := &chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				if s.Reg == 0 || s.Reg&BorderReg != 0 {
					continue
				}
				res := uint8(0)
				for dir := int32(0); dir < 4; dir++ {
					r := uint16(0)
					if s.GetCon(dir) != NotConnected {
						ax := x + geom.DirOffsetX(dir)
						az := z + geom.DirOffsetZ(dir)
						ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(dir)
						r = chf.Spans[ai].Reg
					}
					if r == s.Reg {
						res |= 1 << uint(dir)
					}
				}
				flags[i] = res ^ 0xf // inverse, mark non-connected edges
			}
		}
	}

	var verts []int32
	var simplified []int32

	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := &chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				if flags[i] == 0 || flags[i] == 0xf {
					flags[i] = 0
					continue
				}
				reg := chf.Spans[i].Reg
				if reg == 0 || reg&BorderReg != 0 {
					continue
				}
				area := chf.Areas[i]

				verts = verts[:0]
				simplified = simplified[:0]
				walkContour(x, z, int32(i), chf, flags, &verts)
				simplifyContour(verts, &simplified, maxError, maxEdgeLen, buildFlags)
				simplified = removeDegenerateSegments(simplified)

				if len(simplified)/4 < 3 {
					continue
				}

				cont := Contour{
					Reg:      reg,
					Area:     area,
					Verts:    append([]int32(nil), simplified...),
					RawVerts: append([]int32(nil), verts...),
				}
				if borderSize > 0 {
					// Shift back to un-bordered coordinates.
					for j := 0; j < len(cont.Verts)/4; j++ {
						cont.Verts[j*4] -= borderSize
						cont.Verts[j*4+2] -= borderSize
					}
					for j := 0; j < len(cont.RawVerts)/4; j++ {
						cont.RawVerts[j*4] -= borderSize
						cont.RawVerts[j*4+2] -= borderSize
					}
				}
				cset.Conts = append(cset.Conts, cont)
			}
		}
	}

	// Merge holes. A contour with negative winding is a hole inside the
	// same-region outline.
	hasHoles := false
	for i := range cset.Conts {
		cont := &cset.Conts[i]
		if calcAreaOfPolygon2D(cont.Verts, int32(len(cont.Verts)/4)) < 0 {
			hasHoles = true
			break
		}
	}
	if hasHoles {
		nregions := int32(chf.MaxRegions) + 1
		regions := make([]contourRegion, nregions)

		for i := range cset.Conts {
			cont := &cset.Conts[i]
			winding := calcAreaOfPolygon2D(cont.Verts, int32(len(cont.Verts)/4))
			if winding < 0 {
				regions[cont.Reg].holes = append(regions[cont.Reg].holes, contourHole{contour: cont})
			} else {
				regions[cont.Reg].outline = cont
			}
		}

		for i := range regions {
			r := &regions[i]
			if len(r.holes) == 0 {
				continue
			}
			if r.outline == nil {
				// Holes without an outline were created by regions split by
				// layering during the partition; drop them.
				for _, hole := range r.holes {
					hole.contour.Verts = nil
				}
				continue
			}
			mergeRegionHoles(r)
		}

		// Compact away the merged-away contours.
		kept := cset.Conts[:0]
		for _, cont := range cset.Conts {
			if len(cont.Verts) > 0 {
				kept = append(kept, cont)
			}
		}
		cset.Conts = kept
	}

	return cset, nil
}

// left tests for int32 xz points stored as (x, y, z, flag) quads.

func area2q(a, b, c []int32) int32 {
	return (b[0]-a[0])*(c[2]-a[2]) - (c[0]-a[0])*(b[2]-a[2])
}

func left4(a, b, c []int32) bool   { return area2q(a, b, c) < 0 }
func leftOn4(a, b, c []int32) bool { return area2q(a, b, c) <= 0 }

func intersect2D(a, b, c, d []int32) bool {
	if intersectProp(a, b, c, d) {
		return true
	}
	return between4(a, b, c) || between4(a, b, d) || between4(c, d, a) || between4(c, d, b)
}

func intersectProp(a, b, c, d []int32) bool {
	if collinear4(a, b, c) || collinear4(a, b, d) || collinear4(c, d, a) || collinear4(c, d, b) {
		return false
	}
	return xor(left4(a, b, c), left4(a, b, d)) && xor(left4(c, d, a), left4(c, d, b))
}

func collinear4(a, b, c []int32) bool { return area2q(a, b, c) == 0 }

func between4(a, b, c []int32) bool {
	if !collinear4(a, b, c) {
		return false
	}
	if a[0] != b[0] {
		return (a[0] <= c[0] && c[0] <= b[0]) || (a[0] >= c[0] && c[0] >= b[0])
	}
	return (a[2] <= c[2] && c[2] <= b[2]) || (a[2] >= c[2] && c[2] >= b[2])
}

func xor(a, b bool) bool { return a != b }
