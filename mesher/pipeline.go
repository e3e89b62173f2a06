package mesher

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/navforge/navforge/geom"
)

// Navigation area ids. Higher ids win when rasterized spans merge, so ground
// covers liquids and water covers magma.
const (
	AreaEmpty       = 0
	AreaMagmaSlime  = 8
	AreaWater       = 9
	AreaGroundSteep = 10
	AreaGround      = 11

	// AreaMask extracts the area id from a span area byte.
	AreaMask = 0x3f
)

// Polygon flag bits derived from area ids.
const (
	FlagGround     = uint16(1) << (AreaGround - AreaGround)
	FlagSteep      = uint16(1) << (AreaGround - AreaGroundSteep)
	FlagWater      = uint16(1) << (AreaGround - AreaWater)
	FlagMagmaSlime = uint16(1) << (AreaGround - AreaMagmaSlime)
)

// OffMeshConnection is a hand-authored traversal link between two points,
// such as a jump or a teleport.
type OffMeshConnection struct {
	Start  [3]float32
	End    [3]float32
	Radius float32
}

// Geometry is the input of one tile build: a walkable (solid) surface and an
// optional liquid surface whose triangles carry their own area ids.
type Geometry struct {
	SolidVerts  []float32
	SolidTris   []int32
	LiquidVerts []float32
	LiquidTris  []int32
	LiquidAreas []uint8

	OffMeshConnections []OffMeshConnection
}

// Empty reports whether there is nothing to build from.
func (g *Geometry) Empty() bool {
	return len(g.SolidTris) == 0 && len(g.LiquidTris) == 0
}

// Compact drops unreferenced vertices from both surfaces and remaps the
// triangle indices.
func (g *Geometry) Compact() {
	if len(g.SolidTris) > 0 {
		g.SolidVerts, g.SolidTris = geom.CompactVertices(g.SolidVerts, g.SolidTris)
	}
	if len(g.LiquidTris) > 0 {
		g.LiquidVerts, g.LiquidTris = geom.CompactVertices(g.LiquidVerts, g.LiquidTris)
	}
}

// MarkSteepTriangles downgrades walkable triangles steeper than
// steepSlopeAngle degrees to the steep-ground area. Triangles already marked
// un-walkable are left alone.
func MarkSteepTriangles(steepSlopeAngle float32, verts []float32, tris []int32, areas []uint8) {
	walkableThr := float32(math.Cos(float64(steepSlopeAngle) / 180 * math.Pi))
	norm := make([]float32, 3)
	for i := 0; i < len(tris)/3; i++ {
		if areas[i]&AreaMask == 0 {
			continue
		}
		tri := tris[i*3:]
		calcTriNormal(geom.Vert(verts, tri[0]), geom.Vert(verts, tri[1]), geom.Vert(verts, tri[2]), norm)
		if norm[1] <= walkableThr {
			areas[i] = AreaGroundSteep
		}
	}
}

// DerivePolyFlags fills mesh.Flags from the polygon area ids: each navigation
// area gets its own flag bit, unknown non-zero areas count as ground.
func DerivePolyFlags(mesh *PolyMesh) {
	for i := int32(0); i < mesh.NPolys; i++ {
		area := mesh.Areas[i] & AreaMask
		if area == 0 {
			mesh.Flags[i] = 0
			continue
		}
		if area >= AreaMagmaSlime {
			mesh.Flags[i] = uint16(1) << (AreaGround - area)
		} else {
			mesh.Flags[i] = FlagGround
		}
	}
}

// steepSlopeAngle is the slope in degrees above which ground is downgraded
// to the steep area even when still walkable.
const steepSlopeAngle = 50.0

// Pipeline runs the geometry-to-mesh stages for one tile.
type Pipeline struct {
	log *zap.Logger
}

// NewPipeline returns a pipeline logging through log. A nil logger disables
// logging.
func NewPipeline(log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{log: log}
}

// BuildTile voxelizes and meshes the geometry inside cfg's bounds. The tile
// is built as a grid of bordered sub-tiles of cfg.TileSize cells each, and
// the per-cell meshes are merged into a single polygon mesh and detail mesh.
// Polygon flags are derived from area ids before returning.
func (p *Pipeline) BuildTile(cfg Config, g *Geometry) (*PolyMesh, *PolyMeshDetail, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if g.Empty() {
		return nil, nil, nil
	}

	gw, gh := geom.CalcGridSize(cfg.BMin[:], cfg.BMax[:], cfg.CS)
	ts := cfg.TileSize
	tw := (gw + ts - 1) / ts
	th := (gh + ts - 1) / ts

	p.log.Debug("building tile",
		zap.Int32("grid_width", gw), zap.Int32("grid_height", gh),
		zap.Int32("sub_tiles_x", tw), zap.Int32("sub_tiles_y", th))

	var pmeshes []*PolyMesh
	var dmeshes []*PolyMeshDetail

	tcs := float32(ts) * cfg.CS
	pad := float32(cfg.BorderSize) * cfg.CS

	for y := int32(0); y < th; y++ {
		for x := int32(0); x < tw; x++ {
			sub := cfg
			sub.Width = ts + cfg.BorderSize*2
			sub.Height = ts + cfg.BorderSize*2

			sub.BMin[0] = cfg.BMin[0] + float32(x)*tcs - pad
			sub.BMin[2] = cfg.BMin[2] + float32(y)*tcs - pad
			sub.BMax[0] = cfg.BMin[0] + float32(x+1)*tcs + pad
			sub.BMax[2] = cfg.BMin[2] + float32(y+1)*tcs + pad

			pmesh, dmesh, err := p.buildSubTile(sub, g)
			if err != nil {
				return nil, nil, fmt.Errorf("sub-tile (%d,%d): %w", x, y, err)
			}
			if pmesh == nil {
				continue
			}
			pmeshes = append(pmeshes, pmesh)
			dmeshes = append(dmeshes, dmesh)
		}
	}

	if len(pmeshes) == 0 {
		p.log.Debug("no sub-tile meshes produced")
		return nil, nil, nil
	}

	pmesh, err := MergePolyMeshes(pmeshes)
	if err != nil {
		return nil, nil, fmt.Errorf("merge poly meshes: %w", err)
	}
	dmesh, err := MergePolyMeshDetails(dmeshes)
	if err != nil {
		return nil, nil, fmt.Errorf("merge detail meshes: %w", err)
	}

	DerivePolyFlags(pmesh)

	p.log.Debug("tile meshed",
		zap.Int32("verts", pmesh.NVerts),
		zap.Int32("polys", pmesh.NPolys),
		zap.Int32("detail_tris", dmesh.NTris))
	return pmesh, dmesh, nil
}

// buildSubTile runs the full stage chain on one bordered cell of the tile
// grid. Returns nil meshes when the cell holds no walkable surface.
func (p *Pipeline) buildSubTile(cfg Config, g *Geometry) (*PolyMesh, *PolyMeshDetail, error) {
	hf := NewHeightfield(cfg.Width, cfg.Height, cfg.BMin[:], cfg.BMax[:], cfg.CS, cfg.CH)

	if len(g.SolidTris) > 0 {
		ntris := len(g.SolidTris) / 3
		areas := make([]uint8, ntris)
		for i := range areas {
			areas[i] = AreaGround
		}
		ClearUnwalkableTriangles(cfg.WalkableSlopeAngle, g.SolidVerts, g.SolidTris, areas)
		MarkSteepTriangles(steepSlopeAngle, g.SolidVerts, g.SolidTris, areas)
		if err := RasterizeTriangles(hf, g.SolidVerts, g.SolidTris, areas, cfg.SpanMergeThreshold); err != nil {
			return nil, nil, fmt.Errorf("rasterize solid: %w", err)
		}
	}

	FilterLowHangingWalkableObstacles(cfg.WalkableClimb, hf)
	FilterLedgeSpans(cfg.WalkableHeight, cfg.WalkableClimb, hf)
	FilterWalkableLowHeightSpans(cfg.WalkableHeight, hf)

	// Liquids go in after the ground filters so their spans are never
	// rejected as ledges.
	if len(g.LiquidTris) > 0 {
		if err := RasterizeTriangles(hf, g.LiquidVerts, g.LiquidTris, g.LiquidAreas, cfg.SpanMergeThreshold); err != nil {
			return nil, nil, fmt.Errorf("rasterize liquid: %w", err)
		}
	}

	if hf.SpanCount() == 0 {
		return nil, nil, nil
	}

	chf, err := BuildCompactHeightfield(cfg.WalkableHeight, cfg.WalkableClimb, hf)
	if err != nil {
		return nil, nil, fmt.Errorf("compact heightfield: %w", err)
	}

	if err := ErodeWalkableArea(cfg.WalkableRadius, chf); err != nil {
		return nil, nil, fmt.Errorf("erode: %w", err)
	}
	if err := MedianFilterWalkableArea(chf); err != nil {
		return nil, nil, fmt.Errorf("median filter: %w", err)
	}

	if err := BuildDistanceField(chf); err != nil {
		return nil, nil, fmt.Errorf("distance field: %w", err)
	}
	if err := BuildRegions(chf, cfg.BorderSize, cfg.MinRegionArea, cfg.MergeRegionArea); err != nil {
		return nil, nil, fmt.Errorf("regions: %w", err)
	}

	cset, err := BuildContours(chf, cfg.MaxSimplificationError, cfg.MaxEdgeLen, TessWallEdges)
	if err != nil {
		return nil, nil, fmt.Errorf("contours: %w", err)
	}
	if len(cset.Conts) == 0 {
		return nil, nil, nil
	}

	pmesh, err := BuildPolyMesh(cset, cfg.MaxVertsPerPoly)
	if err != nil {
		return nil, nil, fmt.Errorf("poly mesh: %w", err)
	}
	if pmesh.NPolys == 0 {
		return nil, nil, nil
	}

	dmesh, err := BuildPolyMeshDetail(pmesh, chf, cfg.DetailSampleDist, cfg.DetailSampleMaxError)
	if err != nil {
		return nil, nil, fmt.Errorf("detail mesh: %w", err)
	}

	return pmesh, dmesh, nil
}
