package mesher

import (
	"fmt"

	"github.com/navforge/navforge/geom"
)

// CompactCell indexes the open spans of one column in the compact arena.
type CompactCell struct {
	Index uint32 // first open span in the arena
	Count uint32 // number of open spans in the column
}

// CompactSpan is one open (walkable) interval between solid spans.
type CompactSpan struct {
	Y   uint16 // floor height
	Reg uint16 // region id, 0 when unassigned
	con uint32 // packed neighbour connections, 6 bits per direction
	H   uint8  // clearance to the next solid span, clamped to 255
}

// SetCon stores the neighbour layer index for the given direction, or
// NotConnected.
func (s *CompactSpan) SetCon(dir, layer int32) {
	shift := uint(dir) * 6
	s.con = (s.con &^ (0x3f << shift)) | uint32(layer&0x3f)<<shift
}

// GetCon returns the neighbour layer index for the given direction, or
// NotConnected.
func (s *CompactSpan) GetCon(dir int32) int32 {
	return int32(s.con >> (uint(dir) * 6) & 0x3f)
}

// CompactHeightfield is the open-space view of a heightfield: one span per
// walkable floor, with 4-neighbour connectivity, areas and distances stored
// in flat arrays indexed by the cell table.
type CompactHeightfield struct {
	Width          int32
	Height         int32
	SpanCount      int32
	WalkableHeight int32
	WalkableClimb  int32
	BorderSize     int32
	MaxDistance    uint16
	MaxRegions     uint16
	BMin           [3]float32
	BMax           [3]float32
	CS             float32
	CH             float32

	Cells []CompactCell
	Spans []CompactSpan
	Dist  []uint16
	Areas []uint8
}

const maxLayers = NotConnected - 1

// BuildCompactHeightfield converts the solid heightfield into its open-space
// complement and links neighbouring spans that are walkable from one another
// under walkableHeight clearance and walkableClimb step height. The solid
// field is not needed afterwards.
func BuildCompactHeightfield(walkableHeight, walkableClimb int32, hf *Heightfield) (*CompactHeightfield, error) {
	spanCount := hf.SpanCount()

	chf := &CompactHeightfield{
		Width:          hf.Width,
		Height:         hf.Height,
		SpanCount:      spanCount,
		WalkableHeight: walkableHeight,
		WalkableClimb:  walkableClimb,
		BMin:           hf.BMin,
		BMax:           hf.BMax,
		CS:             hf.CS,
		CH:             hf.CH,
		Cells:          make([]CompactCell, hf.Width*hf.Height),
		Spans:          make([]CompactSpan, spanCount),
		Areas:          make([]uint8, spanCount),
	}
	chf.BMax[1] += float32(walkableHeight) * hf.CH

	// Fill cells and spans.
	idx := uint32(0)
	for z := int32(0); z < hf.Height; z++ {
		for x := int32(0); x < hf.Width; x++ {
			col := x + z*hf.Width
			c := &chf.Cells[col]
			c.Index = idx
			for si := hf.columns[col]; si != nilSpan; si = hf.spans[si].next {
				s := &hf.spans[si]
				if s.Area == NullArea {
					continue
				}
				bot := int32(s.SMax)
				top := int32(maxHeight)
				if s.next != nilSpan {
					top = int32(hf.spans[s.next].SMin)
				}
				chf.Spans[idx].Y = uint16(geom.Clamp(bot, 0, maxHeight))
				chf.Spans[idx].H = uint8(geom.Clamp(top-bot, 0, 0xff))
				chf.Areas[idx] = s.Area
				idx++
				c.Count++
			}
		}
	}

	// Find neighbour connections.
	tooHighLayer := false
	for z := int32(0); z < hf.Height; z++ {
		for x := int32(0); x < hf.Width; x++ {
			c := &chf.Cells[x+z*hf.Width]
			for i := c.Index; i < c.Index+c.Count; i++ {
				s := &chf.Spans[i]
				for dir := int32(0); dir < 4; dir++ {
					s.SetCon(dir, NotConnected)
					nx := x + geom.DirOffsetX(dir)
					nz := z + geom.DirOffsetZ(dir)
					if nx < 0 || nz < 0 || nx >= hf.Width || nz >= hf.Height {
						continue
					}
					nc := &chf.Cells[nx+nz*hf.Width]
					for k := nc.Index; k < nc.Index+nc.Count; k++ {
						ns := &chf.Spans[k]
						bot := maxInt32(int32(s.Y), int32(ns.Y))
						top := minInt32(int32(s.Y)+int32(s.H), int32(ns.Y)+int32(ns.H))
						// The gap must fit the agent and the step must be
						// climbable.
						if top-bot >= walkableHeight && absInt32(int32(ns.Y)-int32(s.Y)) <= walkableClimb {
							layer := int32(k - nc.Index)
							if layer < 0 || layer > maxLayers {
								tooHighLayer = true
								continue
							}
							s.SetCon(dir, layer)
							break
						}
					}
				}
			}
		}
	}

	if tooHighLayer {
		return nil, fmt.Errorf("%w: more than %d layers in a column, connections truncated", ErrCapacity, maxLayers)
	}
	return chf, nil
}
