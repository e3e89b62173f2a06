package mesher

import (
	"fmt"

	"github.com/navforge/navforge/geom"
)

// BuildDistanceField computes for every walkable span the chamfer distance to
// the nearest un-walkable span or area transition, then smooths the field
// with a box blur. The result is stored in chf.Dist and chf.MaxDistance.
func BuildDistanceField(chf *CompactHeightfield) error {
	src := make([]uint16, chf.SpanCount)
	maxDist := calculateDistanceField(chf, src)
	chf.MaxDistance = maxDist

	dst := make([]uint16, chf.SpanCount)
	chf.Dist = boxBlur(chf, 1, src, dst)
	return nil
}

func calculateDistanceField(chf *CompactHeightfield, src []uint16) uint16 {
	w, h := chf.Width, chf.Height

	for i := range src {
		src[i] = 0xffff
	}

	// Boundary spans: area transition or missing neighbour.
	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := &chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				area := chf.Areas[i]
				nc := int32(0)
				for dir := int32(0); dir < 4; dir++ {
					if s.GetCon(dir) == NotConnected {
						continue
					}
					ax := x + geom.DirOffsetX(dir)
					az := z + geom.DirOffsetZ(dir)
					ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(dir)
					if area == chf.Areas[ai] {
						nc++
					}
				}
				if nc != 4 {
					src[i] = 0
				}
			}
		}
	}

	// Pass 1.
	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := &chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				if s.GetCon(0) != NotConnected {
					// (-1,0)
					ax := x + geom.DirOffsetX(0)
					az := z + geom.DirOffsetZ(0)
					ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(0)
					as := &chf.Spans[ai]
					if src[ai]+2 < src[i] {
						src[i] = src[ai] + 2
					}
					// (-1,-1)
					if as.GetCon(3) != NotConnected {
						aax := ax + geom.DirOffsetX(3)
						aaz := az + geom.DirOffsetZ(3)
						aai := int32(chf.Cells[aax+aaz*w].Index) + as.GetCon(3)
						if src[aai]+3 < src[i] {
							src[i] = src[aai] + 3
						}
					}
				}
				if s.GetCon(3) != NotConnected {
					// (0,-1)
					ax := x + geom.DirOffsetX(3)
					az := z + geom.DirOffsetZ(3)
					ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(3)
					as := &chf.Spans[ai]
					if src[ai]+2 < src[i] {
						src[i] = src[ai] + 2
					}
					// (1,-1)
					if as.GetCon(2) != NotConnected {
						aax := ax + geom.DirOffsetX(2)
						aaz := az + geom.DirOffsetZ(2)
						aai := int32(chf.Cells[aax+aaz*w].Index) + as.GetCon(2)
						if src[aai]+3 < src[i] {
							src[i] = src[aai] + 3
						}
					}
				}
			}
		}
	}

	// Pass 2.
	for z := h - 1; z >= 0; z-- {
		for x := w - 1; x >= 0; x-- {
			c := &chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				if s.GetCon(2) != NotConnected {
					// (1,0)
					ax := x + geom.DirOffsetX(2)
					az := z + geom.DirOffsetZ(2)
					ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(2)
					as := &chf.Spans[ai]
					if src[ai]+2 < src[i] {
						src[i] = src[ai] + 2
					}
					// (1,1)
					if as.GetCon(1) != NotConnected {
						aax := ax + geom.DirOffsetX(1)
						aaz := az + geom.DirOffsetZ(1)
						aai := int32(chf.Cells[aax+aaz*w].Index) + as.GetCon(1)
						if src[aai]+3 < src[i] {
							src[i] = src[aai] + 3
						}
					}
				}
				if s.GetCon(1) != NotConnected {
					// (0,1)
					ax := x + geom.DirOffsetX(1)
					az := z + geom.DirOffsetZ(1)
					ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(1)
					as := &chf.Spans[ai]
					if src[ai]+2 < src[i] {
						src[i] = src[ai] + 2
					}
					// (-1,1)
					if as.GetCon(0) != NotConnected {
						aax := ax + geom.DirOffsetX(0)
						aaz := az + geom.DirOffsetZ(0)
						aai := int32(chf.Cells[aax+aaz*w].Index) + as.GetCon(0)
						if src[aai]+3 < src[i] {
							src[i] = src[aai] + 3
						}
					}
				}
			}
		}
	}

	maxDist := uint16(0)
	for i := int32(0); i < chf.SpanCount; i++ {
		if src[i] > maxDist {
			maxDist = src[i]
		}
	}
	return maxDist
}

func boxBlur(chf *CompactHeightfield, thr uint16, src, dst []uint16) []uint16 {
	w, h := chf.Width, chf.Height
	thr *= 2

	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := &chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				cd := src[i]
				if cd <= thr {
					dst[i] = cd
					continue
				}
				d := int32(cd)
				for dir := int32(0); dir < 4; dir++ {
					if s.GetCon(dir) == NotConnected {
						d += int32(cd) * 2
						continue
					}
					ax := x + geom.DirOffsetX(dir)
					az := z + geom.DirOffsetZ(dir)
					ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(dir)
					d += int32(src[ai])

					as := &chf.Spans[ai]
					dir2 := (dir + 1) & 3
					if as.GetCon(dir2) == NotConnected {
						d += int32(cd)
						continue
					}
					ax2 := ax + geom.DirOffsetX(dir2)
					az2 := az + geom.DirOffsetZ(dir2)
					ai2 := int32(chf.Cells[ax2+az2*w].Index) + as.GetCon(dir2)
					d += int32(src[ai2])
				}
				dst[i] = uint16((d + 5) / 9)
			}
		}
	}
	return dst
}

type levelStackEntry struct {
	x, z, index int32
}

type dirtyEntry struct {
	index    int32
	region   uint16
	distance uint16
}

func paintRectRegion(minx, maxx, minz, maxz int32, regID uint16, chf *CompactHeightfield, srcReg []uint16) {
	w := chf.Width
	for z := minz; z < maxz; z++ {
		for x := minx; x < maxx; x++ {
			c := &chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				if chf.Areas[i] != NullArea {
					srcReg[i] = regID
				}
			}
		}
	}
}

func floodRegion(x, z, i, level int32, r uint16, chf *CompactHeightfield, srcReg, srcDist []uint16, stack *[]levelStackEntry) bool {
	w := chf.Width
	area := chf.Areas[i]

	*stack = (*stack)[:0]
	*stack = append(*stack, levelStackEntry{x, z, i})
	srcReg[i] = r
	srcDist[i] = 0

	lev := int32(0)
	if level >= 2 {
		lev = level - 2
	}
	count := 0

	for len(*stack) > 0 {
		back := (*stack)[len(*stack)-1]
		*stack = (*stack)[:len(*stack)-1]
		cx, cz, ci := back.x, back.z, back.index
		cs := &chf.Spans[ci]

		// Check if any of the neighbours already have a valid region set.
		ar := uint16(0)
		for dir := int32(0); dir < 4; dir++ {
			if cs.GetCon(dir) == NotConnected {
				continue
			}
			ax := cx + geom.DirOffsetX(dir)
			az := cz + geom.DirOffsetZ(dir)
			ai := int32(chf.Cells[ax+az*w].Index) + cs.GetCon(dir)
			if chf.Areas[ai] != area {
				continue
			}
			nr := srcReg[ai]
			if nr&BorderReg != 0 {
				// Borders do not claim the seed.
				continue
			}
			if nr != 0 && nr != r {
				ar = nr
				break
			}

			as := &chf.Spans[ai]
			dir2 := (dir + 1) & 3
			if as.GetCon(dir2) == NotConnected {
				continue
			}
			ax2 := ax + geom.DirOffsetX(dir2)
			az2 := az + geom.DirOffsetZ(dir2)
			ai2 := int32(chf.Cells[ax2+az2*w].Index) + as.GetCon(dir2)
			if chf.Areas[ai2] != area {
				continue
			}
			nr2 := srcReg[ai2]
			if nr2 != 0 && nr2 != r {
				ar = nr2
				break
			}
		}
		if ar != 0 {
			srcReg[ci] = 0
			continue
		}
		count++

		// Expand into neighbours.
		for dir := int32(0); dir < 4; dir++ {
			if cs.GetCon(dir) == NotConnected {
				continue
			}
			ax := cx + geom.DirOffsetX(dir)
			az := cz + geom.DirOffsetZ(dir)
			ai := int32(chf.Cells[ax+az*w].Index) + cs.GetCon(dir)
			if chf.Areas[ai] != area {
				continue
			}
			if int32(chf.Dist[ai]) >= lev && srcReg[ai] == 0 {
				srcReg[ai] = r
				srcDist[ai] = 0
				*stack = append(*stack, levelStackEntry{ax, az, ai})
			}
		}
	}

	return count > 0
}

func expandRegions(maxIter, level int32, chf *CompactHeightfield, srcReg, srcDist []uint16, stack *[]levelStackEntry, fillStack bool) {
	w, h := chf.Width, chf.Height

	if fillStack {
		*stack = (*stack)[:0]
		for z := int32(0); z < h; z++ {
			for x := int32(0); x < w; x++ {
				c := &chf.Cells[x+z*w]
				for i := c.Index; i < c.Index+c.Count; i++ {
					if int32(chf.Dist[i]) >= level && srcReg[i] == 0 && chf.Areas[i] != NullArea {
						*stack = append(*stack, levelStackEntry{x, z, int32(i)})
					}
				}
			}
		}
	} else {
		// Mark entries that were claimed since the stack was built.
		for j := range *stack {
			if srcReg[(*stack)[j].index] != 0 {
				(*stack)[j].index = -1
			}
		}
	}

	var dirty []dirtyEntry
	iter := int32(0)
	for len(*stack) > 0 {
		failed := 0
		dirty = dirty[:0]

		for j := range *stack {
			x, z, i := (*stack)[j].x, (*stack)[j].z, (*stack)[j].index
			if i < 0 {
				failed++
				continue
			}

			r := srcReg[i]
			d2 := uint16(0xffff)
			area := chf.Areas[i]
			s := &chf.Spans[i]
			for dir := int32(0); dir < 4; dir++ {
				if s.GetCon(dir) == NotConnected {
					continue
				}
				ax := x + geom.DirOffsetX(dir)
				az := z + geom.DirOffsetZ(dir)
				ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(dir)
				if chf.Areas[ai] != area {
					continue
				}
				if srcReg[ai] > 0 && srcReg[ai]&BorderReg == 0 {
					if srcDist[ai]+2 < d2 {
						r = srcReg[ai]
						d2 = srcDist[ai] + 2
					}
				}
			}
			if r != 0 {
				(*stack)[j].index = -1
				dirty = append(dirty, dirtyEntry{i, r, d2})
			} else {
				failed++
			}
		}

		// Copy entries that differ between src and dst to keep them in sync.
		for _, e := range dirty {
			srcReg[e.index] = e.region
			srcDist[e.index] = e.distance
		}

		if failed == len(*stack) {
			break
		}
		if level > 0 {
			iter++
			if iter >= maxIter {
				break
			}
		}
	}
}

func sortCellsByLevel(startLevel int32, chf *CompactHeightfield, srcReg []uint16, stacks [][]levelStackEntry, logLevelsPerStack int32) {
	w, h := chf.Width, chf.Height
	startLevel >>= uint(logLevelsPerStack)

	for j := range stacks {
		stacks[j] = stacks[j][:0]
	}

	// Place spans into stacks by distance level; the last stack holds
	// everything below the covered range.
	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := &chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				if chf.Areas[i] == NullArea || srcReg[i] != 0 {
					continue
				}
				level := int32(chf.Dist[i]) >> uint(logLevelsPerStack)
				sID := startLevel - level
				if sID >= int32(len(stacks)) {
					continue
				}
				if sID < 0 {
					sID = 0
				}
				stacks[sID] = append(stacks[sID], levelStackEntry{x, z, int32(i)})
			}
		}
	}
}

func appendStacks(src []levelStackEntry, dst *[]levelStackEntry, srcReg []uint16) {
	for _, e := range src {
		if e.index < 0 || srcReg[e.index] != 0 {
			continue
		}
		*dst = append(*dst, e)
	}
}

// BuildRegions partitions the walkable spans of chf into regions using
// watershed growth over the distance field: region seeds appear at distance
// maxima and flood outward level by level. A border of borderSize cells is
// painted with border region ids first. Regions smaller than minRegionArea
// spans are removed unless they touch a border; regions smaller than
// mergeRegionArea are merged into neighbours when possible.
// BuildDistanceField must have been called on chf.
func BuildRegions(chf *CompactHeightfield, borderSize, minRegionArea, mergeRegionArea int32) error {
	w, h := chf.Width, chf.Height

	const nbStacks = 8
	lvlStacks := make([][]levelStackEntry, nbStacks)
	var stack []levelStackEntry

	srcReg := make([]uint16, chf.SpanCount)
	srcDist := make([]uint16, chf.SpanCount)

	regionID := uint16(1)
	level := int32(chf.MaxDistance+1) &^ 1

	const expandIters = 8

	if borderSize > 0 {
		bw := minInt32(w, borderSize)
		bh := minInt32(h, borderSize)
		paintRectRegion(0, bw, 0, h, regionID|BorderReg, chf, srcReg)
		regionID++
		paintRectRegion(w-bw, w, 0, h, regionID|BorderReg, chf, srcReg)
		regionID++
		paintRectRegion(0, w, 0, bh, regionID|BorderReg, chf, srcReg)
		regionID++
		paintRectRegion(0, w, h-bh, h, regionID|BorderReg, chf, srcReg)
		regionID++
	}
	chf.BorderSize = borderSize

	sID := int32(-1)
	for level > 0 {
		if level >= 2 {
			level -= 2
		} else {
			level = 0
		}
		sID = (sID + 1) & (nbStacks - 1)

		if sID == 0 {
			sortCellsByLevel(level, chf, srcReg, lvlStacks, 1)
		} else {
			appendStacks(lvlStacks[sID-1], &lvlStacks[sID], srcReg)
		}

		// Expand current regions until no empty connected cells are found.
		expandRegions(expandIters, level, chf, srcReg, srcDist, &lvlStacks[sID], false)

		// Mark new regions with ids.
		for j := range lvlStacks[sID] {
			e := lvlStacks[sID][j]
			if e.index >= 0 && srcReg[e.index] == 0 {
				if floodRegion(e.x, e.z, e.index, level, regionID, chf, srcReg, srcDist, &stack) {
					if regionID == 0xffff {
						return fmt.Errorf("%w: region id overflow", ErrCapacity)
					}
					regionID++
				}
			}
		}
	}

	// Expand current regions until no empty connected cells are found.
	expandRegions(expandIters*8, 0, chf, srcReg, srcDist, &stack, true)

	maxRegionID, err := mergeAndFilterRegions(minRegionArea, mergeRegionArea, regionID, chf, srcReg)
	if err != nil {
		return err
	}
	chf.MaxRegions = maxRegionID

	for i := int32(0); i < chf.SpanCount; i++ {
		chf.Spans[i].Reg = srcReg[i]
	}
	return nil
}

// region is the bookkeeping record used while merging and filtering.
type region struct {
	spanCount        int32
	id               uint16
	areaType         uint8
	remap            bool
	visited          bool
	overlap          bool
	connectsToBorder bool
	connections      []int32
	floors           []int32
}

func (r *region) isConnectedToBorder() bool {
	for _, c := range r.connections {
		if c == 0 {
			return true
		}
	}
	return false
}

func (r *region) canMergeWith(other *region) bool {
	if r.areaType != other.areaType {
		return false
	}
	n := 0
	for _, c := range r.connections {
		if c == int32(other.id) {
			n++
		}
	}
	// Merging would create a non-simple boundary.
	if n > 1 {
		return false
	}
	for _, f := range r.floors {
		if f == int32(other.id) {
			return false
		}
	}
	return true
}

func (r *region) addUniqueFloor(n int32) {
	for _, f := range r.floors {
		if f == n {
			return
		}
	}
	r.floors = append(r.floors, n)
}

// removeAdjacentNeighbours collapses runs of duplicate neighbour ids left by
// connection splicing.
func (r *region) removeAdjacentNeighbours() {
	for i := 0; i < len(r.connections) && len(r.connections) > 1; {
		ni := (i + 1) % len(r.connections)
		if r.connections[i] == r.connections[ni] {
			r.connections = append(r.connections[:i], r.connections[i+1:]...)
		} else {
			i++
		}
	}
}

func (r *region) replaceNeighbour(oldID, newID uint16) {
	changed := false
	for i := range r.connections {
		if r.connections[i] == int32(oldID) {
			r.connections[i] = int32(newID)
			changed = true
		}
	}
	for i := range r.floors {
		if r.floors[i] == int32(oldID) {
			r.floors[i] = int32(newID)
		}
	}
	if changed {
		r.removeAdjacentNeighbours()
	}
}

// mergeRegionInto splices regb's boundary into rega's at their shared edge
// and moves regb's span count over. Returns false when the regions do not
// share a simple edge.
func mergeRegionInto(rega, regb *region) bool {
	aid := int32(rega.id)
	bid := int32(regb.id)

	// Duplicate both connection lists starting at the other region's edge.
	insa := -1
	for i, c := range rega.connections {
		if c == bid {
			insa = i
			break
		}
	}
	if insa == -1 {
		return false
	}
	insb := -1
	for i, c := range regb.connections {
		if c == aid {
			insb = i
			break
		}
	}
	if insb == -1 {
		return false
	}

	acon := make([]int32, 0, len(rega.connections)+len(regb.connections))
	na := len(rega.connections)
	for i := 0; i < na-1; i++ {
		acon = append(acon, rega.connections[(insa+1+i)%na])
	}
	nb := len(regb.connections)
	for i := 0; i < nb-1; i++ {
		acon = append(acon, regb.connections[(insb+1+i)%nb])
	}

	rega.connections = acon
	rega.removeAdjacentNeighbours()

	for _, f := range regb.floors {
		rega.addUniqueFloor(f)
	}
	rega.spanCount += regb.spanCount
	regb.spanCount = 0
	regb.connections = regb.connections[:0]
	return true
}

func isSolidEdge(chf *CompactHeightfield, srcReg []uint16, x, z, i, dir int32) bool {
	s := &chf.Spans[i]
	r := uint16(0)
	if s.GetCon(dir) != NotConnected {
		ax := x + geom.DirOffsetX(dir)
		az := z + geom.DirOffsetZ(dir)
		ai := int32(chf.Cells[ax+az*chf.Width].Index) + s.GetCon(dir)
		r = srcReg[ai]
	}
	return r != srcReg[i]
}

// walkRegionContour follows the region boundary starting at (x, z, i) facing
// dir and records each distinct neighbouring region id along the way.
func walkRegionContour(x, z, i, dir int32, chf *CompactHeightfield, srcReg []uint16, cont *[]int32) {
	startDir := dir
	starti := i

	ss := &chf.Spans[i]
	curReg := uint16(0)
	if ss.GetCon(dir) != NotConnected {
		ax := x + geom.DirOffsetX(dir)
		az := z + geom.DirOffsetZ(dir)
		ai := int32(chf.Cells[ax+az*chf.Width].Index) + ss.GetCon(dir)
		curReg = srcReg[ai]
	}
	*cont = append(*cont, int32(curReg))

	for iter := 0; iter < 40000; iter++ {
		s := &chf.Spans[i]

		if isSolidEdge(chf, srcReg, x, z, i, dir) {
			r := uint16(0)
			if s.GetCon(dir) != NotConnected {
				ax := x + geom.DirOffsetX(dir)
				az := z + geom.DirOffsetZ(dir)
				ai := int32(chf.Cells[ax+az*chf.Width].Index) + s.GetCon(dir)
				r = srcReg[ai]
			}
			if r != curReg {
				curReg = r
				*cont = append(*cont, int32(curReg))
			}
			dir = (dir + 1) & 3 // rotate CW
		} else {
			ni := int32(-1)
			nx := x + geom.DirOffsetX(dir)
			nz := z + geom.DirOffsetZ(dir)
			if s.GetCon(dir) != NotConnected {
				ni = int32(chf.Cells[nx+nz*chf.Width].Index) + s.GetCon(dir)
			}
			if ni == -1 {
				// Should not happen on an open edge.
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

	// Remove adjacent duplicates.
	c := *cont
	for j := 0; j < len(c) && len(c) > 1; {
		nj := (j + 1) % len(c)
		if c[j] == c[nj] {
			c = append(c[:j], c[j+1:]...)
		} else {
			j++
		}
	}
	*cont = c
}

func mergeAndFilterRegions(minRegionArea, mergeRegionArea int32, maxRegionID uint16, chf *CompactHeightfield, srcReg []uint16) (uint16, error) {
	w, h := chf.Width, chf.Height

	nreg := int32(maxRegionID) + 1
	regions := make([]region, nreg)
	for i := int32(0); i < nreg; i++ {
		regions[i].id = uint16(i)
	}

	// Gather region span counts, boundary connections and stacked floors.
	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := &chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				r := srcReg[i]
				if r == 0 || int32(r) >= nreg {
					continue
				}
				reg := &regions[r]
				reg.spanCount++

				// Other regions sharing the column are floors.
				for j := c.Index; j < c.Index+c.Count; j++ {
					if i == j {
						continue
					}
					fr := srcReg[j]
					if fr == 0 || int32(fr) >= nreg {
						continue
					}
					if fr == r {
						reg.overlap = true
					}
					reg.addUniqueFloor(int32(fr))
				}

				if len(reg.connections) > 0 {
					continue
				}
				reg.areaType = chf.Areas[i]

				// Walk the boundary once from the first solid edge found.
				edgeDir := int32(-1)
				for dir := int32(0); dir < 4; dir++ {
					if isSolidEdge(chf, srcReg, x, z, int32(i), dir) {
						edgeDir = dir
						break
					}
				}
				if edgeDir != -1 {
					walkRegionContour(x, z, int32(i), edgeDir, chf, srcReg, &reg.connections)
				}
			}
		}
	}

	// Remove too small regions that are not connected to a tile border.
	// Regions are grouped into connected components first so a chain of
	// small regions forming one big surface survives.
	var stack []int32
	var trace []int32
	for i := int32(0); i < nreg; i++ {
		reg := &regions[i]
		if reg.id == 0 || reg.id&BorderReg != 0 {
			continue
		}
		if reg.spanCount == 0 || reg.visited {
			continue
		}

		connectsToBorder := false
		spanCount := int32(0)
		stack = stack[:0]
		trace = trace[:0]

		reg.visited = true
		stack = append(stack, i)

		for len(stack) > 0 {
			ri := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			creg := &regions[ri]

			spanCount += creg.spanCount
			trace = append(trace, ri)

			for _, conn := range creg.connections {
				if uint16(conn)&BorderReg != 0 {
					connectsToBorder = true
					continue
				}
				if conn == 0 {
					continue
				}
				nreg2 := &regions[conn]
				if nreg2.visited || nreg2.id == 0 || nreg2.id&BorderReg != 0 {
					continue
				}
				nreg2.visited = true
				stack = append(stack, conn)
			}
		}

		if spanCount < minRegionArea && !connectsToBorder {
			for _, ri := range trace {
				regions[ri].spanCount = 0
				regions[ri].id = 0
			}
		}
	}

	// Merge too small regions into larger neighbours.
	for {
		mergeCount := 0
		for i := int32(0); i < nreg; i++ {
			reg := &regions[i]
			if reg.id == 0 || reg.id&BorderReg != 0 {
				continue
			}
			if reg.overlap || reg.spanCount == 0 {
				continue
			}
			// Region should be merged when it is small, or when it has no
			// contact with a tile border at all.
			if reg.spanCount > mergeRegionArea && reg.isConnectedToBorder() {
				continue
			}

			// Smallest eligible neighbour.
			smallest := int32(-1)
			mergeID := reg.id
			for _, conn := range reg.connections {
				if uint16(conn)&BorderReg != 0 || conn <= 0 {
					continue
				}
				mreg := &regions[conn]
				if mreg.id == 0 || mreg.id&BorderReg != 0 || mreg.overlap {
					continue
				}
				if (smallest == -1 || mreg.spanCount < smallest) &&
					reg.canMergeWith(mreg) && mreg.canMergeWith(reg) {
					smallest = mreg.spanCount
					mergeID = mreg.id
				}
			}
			if mergeID != reg.id {
				oldID := reg.id
				target := &regions[mergeID]
				if mergeRegionInto(target, reg) {
					for j := int32(0); j < nreg; j++ {
						r2 := &regions[j]
						if r2.id == 0 || r2.id&BorderReg != 0 {
							continue
						}
						// Regions absorbed earlier may still refer to oldID.
						if r2.id == oldID {
							r2.id = mergeID
						}
						r2.replaceNeighbour(oldID, mergeID)
					}
					mergeCount++
				}
			}
		}
		if mergeCount == 0 {
			break
		}
	}

	// Compact region ids.
	for i := range regions {
		regions[i].remap = false
		if regions[i].id == 0 || regions[i].id&BorderReg != 0 {
			continue
		}
		regions[i].remap = true
	}
	regIDGen := uint16(0)
	for i := int32(0); i < nreg; i++ {
		if !regions[i].remap {
			continue
		}
		oldID := regions[i].id
		regIDGen++
		newID := regIDGen
		for j := i; j < nreg; j++ {
			if regions[j].id == oldID {
				regions[j].id = newID
				regions[j].remap = false
			}
		}
	}

	// Remap span region ids.
	for i := int32(0); i < chf.SpanCount; i++ {
		if srcReg[i]&BorderReg != 0 {
			continue
		}
		srcReg[i] = regions[srcReg[i]].id
	}

	return regIDGen, nil
}

// regionSpanCounts returns the span count per live (non-border, non-null)
// region id in ascending id order. Used by callers validating partitions.
func regionSpanCounts(chf *CompactHeightfield) map[uint16]int32 {
	counts := make(map[uint16]int32)
	for i := int32(0); i < chf.SpanCount; i++ {
		r := chf.Spans[i].Reg
		if r == 0 || r&BorderReg != 0 {
			continue
		}
		counts[r]++
	}
	return counts
}
