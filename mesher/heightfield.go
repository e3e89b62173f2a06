// Package mesher implements the geometry-to-navmesh build pipeline: triangle
// rasterization into a heightfield, span filtering, compact heightfield
// construction, walkable-area refinement, watershed region partitioning,
// contour extraction and polygon/detail mesh construction.
//
// Every stage is a pure build step: it consumes the previous stage's output
// and returns a new owned value or an error. Nothing is freed manually; spans
// and cells live in flat arrays linked by indices.
package mesher

import (
	"errors"
	"fmt"
)

const (
	// NullArea marks a span or cell as un-walkable.
	NullArea = 0
	// WalkableArea is the default area id for walkable geometry. It is the
	// maximum area id; higher values never appear.
	WalkableArea = 63

	// SpanHeightBits is the number of bits used for span height limits.
	SpanHeightBits = 13
	// SpanMaxHeight is the maximum span ceiling value.
	SpanMaxHeight = (1 << SpanHeightBits) - 1

	// BorderReg flags a region id as a tile-border region whose spans are
	// excluded from contour and polygon generation.
	BorderReg = 0x8000
	// BorderVertex flags a contour vertex that lies on a tile border.
	BorderVertex = 0x10000
	// AreaBorder flags a contour vertex on an area-id transition.
	AreaBorder = 0x20000
	// ContourRegMask extracts the region id from a contour vertex flag field.
	ContourRegMask = 0xffff

	// MeshNullIdx is the sentinel for unused polygon vertex slots.
	MeshNullIdx = 0xffff

	// MaxVertsPerPolygon is the highest vertex count a mesh polygon may have.
	MaxVertsPerPolygon = 6

	// NotConnected marks an absent neighbour link on a compact span.
	NotConnected = 0x3f

	maxHeight = 0xffff
	nilSpan   = int32(-1)
)

// ErrCapacity reports that a fixed capacity (region ids, vertex indices,
// internal buffer growth) was exhausted during a build stage.
var ErrCapacity = errors.New("capacity exhausted")

// ErrInvalidConfig reports configuration values outside the valid range.
var ErrInvalidConfig = errors.New("invalid build config")

// Config collects every parameter of one pipeline run. Units: vx = voxels
// (cells), wu = world units.
type Config struct {
	// Width and Height are the heightfield grid size in vx. Derived from the
	// bounds and cell size by geom.CalcGridSize.
	Width  int32
	Height int32

	// TileSize is the un-bordered tile side length in vx (0 for single-shot
	// builds).
	TileSize int32
	// BorderSize is the non-navigable border around the heightfield in vx.
	BorderSize int32

	// CS and CH are the xz-plane cell size and the y-axis cell height in wu.
	CS float32
	CH float32

	// BMin and BMax are the world-space bounds of the field's AABB.
	BMin [3]float32
	BMax [3]float32

	// WalkableSlopeAngle is the maximum walkable slope in degrees, [0, 90).
	WalkableSlopeAngle float32
	// WalkableHeight is the minimum floor-to-ceiling clearance in vx.
	WalkableHeight int32
	// WalkableClimb is the maximum traversable ledge height in vx.
	WalkableClimb int32
	// WalkableRadius is the erosion distance from obstructions in vx.
	WalkableRadius int32

	// MaxEdgeLen bounds contour border edge length in vx (0 disables).
	MaxEdgeLen int32
	// MaxSimplificationError bounds contour deviation from the raw boundary
	// in vx.
	MaxSimplificationError float32

	// MinRegionArea is the smallest span count an isolated region may keep.
	MinRegionArea int32
	// MergeRegionArea is the span count below which regions are merged into
	// neighbours when possible.
	MergeRegionArea int32

	// MaxVertsPerPoly limits polygon vertex counts, [3, MaxVertsPerPolygon].
	MaxVertsPerPoly int32

	// DetailSampleDist is the detail mesh sampling distance in wu (0 or
	// >= 0.9).
	DetailSampleDist float32
	// DetailSampleMaxError is the maximum detail surface deviation in wu.
	DetailSampleMaxError float32

	// SpanMergeThreshold is the vertical distance within which the area ids
	// of merged spans are unified, in vx.
	SpanMergeThreshold int32
}

// Validate rejects configuration values outside their documented limits
// before any processing begins.
func (c *Config) Validate() error {
	switch {
	case c.CS <= 0:
		return fmt.Errorf("%w: cell size %v must be > 0", ErrInvalidConfig, c.CS)
	case c.CH <= 0:
		return fmt.Errorf("%w: cell height %v must be > 0", ErrInvalidConfig, c.CH)
	case c.WalkableSlopeAngle < 0 || c.WalkableSlopeAngle >= 90:
		return fmt.Errorf("%w: walkable slope angle %v out of [0, 90)", ErrInvalidConfig, c.WalkableSlopeAngle)
	case c.WalkableHeight < 3:
		return fmt.Errorf("%w: walkable height %d must be >= 3", ErrInvalidConfig, c.WalkableHeight)
	case c.WalkableClimb < 0:
		return fmt.Errorf("%w: walkable climb %d must be >= 0", ErrInvalidConfig, c.WalkableClimb)
	case c.WalkableRadius < 0:
		return fmt.Errorf("%w: walkable radius %d must be >= 0", ErrInvalidConfig, c.WalkableRadius)
	case c.MaxVertsPerPoly < 3 || c.MaxVertsPerPoly > MaxVertsPerPolygon:
		return fmt.Errorf("%w: max verts per poly %d out of [3, %d]", ErrInvalidConfig, c.MaxVertsPerPoly, MaxVertsPerPolygon)
	case c.DetailSampleDist != 0 && c.DetailSampleDist < 0.9:
		return fmt.Errorf("%w: detail sample dist %v must be 0 or >= 0.9", ErrInvalidConfig, c.DetailSampleDist)
	case c.DetailSampleMaxError < 0:
		return fmt.Errorf("%w: detail sample max error %v must be >= 0", ErrInvalidConfig, c.DetailSampleMaxError)
	case c.MaxSimplificationError < 0:
		return fmt.Errorf("%w: max simplification error %v must be >= 0", ErrInvalidConfig, c.MaxSimplificationError)
	}
	return nil
}

// Span is a solid vertical interval within one heightfield column. Spans are
// stored in the heightfield's arena and linked by index.
type Span struct {
	SMin uint16 // lower limit, < SMax
	SMax uint16 // upper limit, <= SpanMaxHeight
	Area uint8  // area id
	next int32  // arena index of the next span up the column, nilSpan at top
}

// Heightfield is a grid of span columns produced by rasterization. Columns
// reference the first span by arena index; freeing the whole field is just
// dropping the struct.
type Heightfield struct {
	Width  int32
	Height int32
	BMin   [3]float32
	BMax   [3]float32
	CS     float32
	CH     float32

	columns  []int32 // head span arena index per column, nilSpan when empty
	spans    []Span  // span arena
	freelist int32   // head of the free span chain within the arena
}

// NewHeightfield returns an empty heightfield covering the given grid.
func NewHeightfield(width, height int32, bmin, bmax []float32, cs, ch float32) *Heightfield {
	hf := &Heightfield{
		Width:    width,
		Height:   height,
		CS:       cs,
		CH:       ch,
		columns:  make([]int32, width*height),
		freelist: nilSpan,
	}
	copy(hf.BMin[:], bmin)
	copy(hf.BMax[:], bmax)
	for i := range hf.columns {
		hf.columns[i] = nilSpan
	}
	return hf
}

func (hf *Heightfield) allocSpan() int32 {
	if hf.freelist != nilSpan {
		idx := hf.freelist
		hf.freelist = hf.spans[idx].next
		return idx
	}
	hf.spans = append(hf.spans, Span{})
	return int32(len(hf.spans) - 1)
}

func (hf *Heightfield) freeSpan(idx int32) {
	hf.spans[idx].next = hf.freelist
	hf.freelist = idx
}

// SpanCount returns the number of walkable spans in the field.
func (hf *Heightfield) SpanCount() int32 {
	count := int32(0)
	for col := range hf.columns {
		for si := hf.columns[col]; si != nilSpan; si = hf.spans[si].next {
			if hf.spans[si].Area != NullArea {
				count++
			}
		}
	}
	return count
}

// AddSpan inserts span [smin, smax) with the given area id into column
// (x, z), merging it with any overlapping spans. When the merged tops are
// within mergeThreshold cells the higher-priority area id wins.
func (hf *Heightfield) AddSpan(x, z int32, smin, smax uint16, area uint8, mergeThreshold int32) {
	idx := hf.allocSpan()
	hf.spans[idx] = Span{SMin: smin, SMax: smax, Area: area, next: nilSpan}
	newSpan := &hf.spans[idx]

	col := x + z*hf.Width
	prev := nilSpan
	cur := hf.columns[col]

	// Insert the new span, possibly merging it with existing spans.
	for cur != nilSpan {
		cs := &hf.spans[cur]
		if cs.SMin > newSpan.SMax {
			// Current span is completely after the new span.
			break
		}
		if cs.SMax < newSpan.SMin {
			// Current span is completely before the new span. Keep going.
			prev = cur
			cur = cs.next
			continue
		}
		// Overlap: merge into the new span.
		if cs.SMin < newSpan.SMin {
			newSpan.SMin = cs.SMin
		}
		if cs.SMax > newSpan.SMax {
			newSpan.SMax = cs.SMax
		}
		// Merge area ids when the tops are close; the higher id wins.
		if absInt32(int32(newSpan.SMax)-int32(cs.SMax)) <= mergeThreshold {
			if cs.Area > newSpan.Area {
				newSpan.Area = cs.Area
			}
		}
		// Unlink and recycle the merged span.
		next := cs.next
		hf.freeSpan(cur)
		if prev != nilSpan {
			hf.spans[prev].next = next
		} else {
			hf.columns[col] = next
		}
		cur = next
	}

	if prev != nilSpan {
		newSpan.next = hf.spans[prev].next
		hf.spans[prev].next = idx
	} else {
		newSpan.next = hf.columns[col]
		hf.columns[col] = idx
	}
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
