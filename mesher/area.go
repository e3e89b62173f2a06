package mesher

import "github.com/navforge/navforge/geom"

// ErodeWalkableArea marks every span within radius cells of an un-walkable
// span or a boundary as un-walkable, shrinking the walkable surface by the
// agent radius. Distances are computed with a two-pass chamfer transform
// (2 per axis step, 3 per diagonal step).
func ErodeWalkableArea(radius int32, chf *CompactHeightfield) error {
	w, h := chf.Width, chf.Height
	dist := make([]uint8, chf.SpanCount)

	// Seed: boundary spans get distance 0, interior spans 255.
	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := &chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				if chf.Areas[i] == NullArea {
					dist[i] = 0
					continue
				}
				s := &chf.Spans[i]
				// A span missing any walkable neighbour is at the boundary.
				nc := int32(0)
				for dir := int32(0); dir < 4; dir++ {
					if s.GetCon(dir) == NotConnected {
						continue
					}
					nx := x + geom.DirOffsetX(dir)
					nz := z + geom.DirOffsetZ(dir)
					ni := int32(chf.Cells[nx+nz*w].Index) + s.GetCon(dir)
					if chf.Areas[ni] != NullArea {
						nc++
					}
				}
				if nc != 4 {
					dist[i] = 0
				} else {
					dist[i] = 255
				}
			}
		}
	}

	// Pass 1: top-left to bottom-right, directions (-1,0) and (0,-1) with
	// their diagonals.
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
					if d := satAdd(dist[ai], 2); d < dist[i] {
						dist[i] = d
					}
					// (-1,-1)
					if as.GetCon(3) != NotConnected {
						aax := ax + geom.DirOffsetX(3)
						aaz := az + geom.DirOffsetZ(3)
						aai := int32(chf.Cells[aax+aaz*w].Index) + as.GetCon(3)
						if d := satAdd(dist[aai], 3); d < dist[i] {
							dist[i] = d
						}
					}
				}
				if s.GetCon(3) != NotConnected {
					// (0,-1)
					ax := x + geom.DirOffsetX(3)
					az := z + geom.DirOffsetZ(3)
					ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(3)
					as := &chf.Spans[ai]
					if d := satAdd(dist[ai], 2); d < dist[i] {
						dist[i] = d
					}
					// (1,-1)
					if as.GetCon(2) != NotConnected {
						aax := ax + geom.DirOffsetX(2)
						aaz := az + geom.DirOffsetZ(2)
						aai := int32(chf.Cells[aax+aaz*w].Index) + as.GetCon(2)
						if d := satAdd(dist[aai], 3); d < dist[i] {
							dist[i] = d
						}
					}
				}
			}
		}
	}

	// Pass 2: bottom-right to top-left, directions (1,0) and (0,1) with
	// their diagonals.
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
					if d := satAdd(dist[ai], 2); d < dist[i] {
						dist[i] = d
					}
					// (1,1)
					if as.GetCon(1) != NotConnected {
						aax := ax + geom.DirOffsetX(1)
						aaz := az + geom.DirOffsetZ(1)
						aai := int32(chf.Cells[aax+aaz*w].Index) + as.GetCon(1)
						if d := satAdd(dist[aai], 3); d < dist[i] {
							dist[i] = d
						}
					}
				}
				if s.GetCon(1) != NotConnected {
					// (0,1)
					ax := x + geom.DirOffsetX(1)
					az := z + geom.DirOffsetZ(1)
					ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(1)
					as := &chf.Spans[ai]
					if d := satAdd(dist[ai], 2); d < dist[i] {
						dist[i] = d
					}
					// (-1,1)
					if as.GetCon(0) != NotConnected {
						aax := ax + geom.DirOffsetX(0)
						aaz := az + geom.DirOffsetZ(0)
						aai := int32(chf.Cells[aax+aaz*w].Index) + as.GetCon(0)
						if d := satAdd(dist[aai], 3); d < dist[i] {
							dist[i] = d
						}
					}
				}
			}
		}
	}

	thr := uint8(geom.Clamp(radius*2, 0, 255))
	for i := int32(0); i < chf.SpanCount; i++ {
		if dist[i] < thr {
			chf.Areas[i] = NullArea
		}
	}
	return nil
}

// MedianFilterWalkableArea replaces each walkable span's area id with the
// median of its own and its eight neighbours' area ids, removing
// single-span area noise. Un-walkable spans are never changed.
func MedianFilterWalkableArea(chf *CompactHeightfield) error {
	w, h := chf.Width, chf.Height
	areas := make([]uint8, chf.SpanCount)
	copy(areas, chf.Areas)

	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := &chf.Cells[x+z*w]
			for i := c.Index; i < c.Index+c.Count; i++ {
				if chf.Areas[i] == NullArea {
					continue
				}
				s := &chf.Spans[i]
				var nei [9]uint8
				for k := range nei {
					nei[k] = chf.Areas[i]
				}
				for dir := int32(0); dir < 4; dir++ {
					if s.GetCon(dir) == NotConnected {
						continue
					}
					ax := x + geom.DirOffsetX(dir)
					az := z + geom.DirOffsetZ(dir)
					ai := int32(chf.Cells[ax+az*w].Index) + s.GetCon(dir)
					if chf.Areas[ai] != NullArea {
						nei[dir*2] = chf.Areas[ai]
					}
					// Diagonal through this neighbour.
					as := &chf.Spans[ai]
					dir2 := (dir + 1) & 3
					if as.GetCon(dir2) != NotConnected {
						ax2 := ax + geom.DirOffsetX(dir2)
						az2 := az + geom.DirOffsetZ(dir2)
						ai2 := int32(chf.Cells[ax2+az2*w].Index) + as.GetCon(dir2)
						if chf.Areas[ai2] != NullArea {
							nei[dir*2+1] = chf.Areas[ai2]
						}
					}
				}
				insertionSortU8(nei[:])
				areas[i] = nei[4]
			}
		}
	}

	copy(chf.Areas, areas)
	return nil
}

func satAdd(a, b uint8) uint8 {
	if int32(a)+int32(b) > 255 {
		return 255
	}
	return a + b
}

func insertionSortU8(a []uint8) {
	for i := 1; i < len(a); i++ {
		v := a[i]
		j := i - 1
		for j >= 0 && a[j] > v {
			a[j+1] = a[j]
			j--
		}
		a[j+1] = v
	}
}
