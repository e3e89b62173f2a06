package mesher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPipelineConfig() Config {
	return Config{
		TileSize:               16,
		BorderSize:             2,
		CS:                     1,
		CH:                     0.5,
		BMin:                   [3]float32{0, 0, 0},
		BMax:                   [3]float32{16, 10, 16},
		WalkableSlopeAngle:     60,
		WalkableHeight:         3,
		WalkableClimb:          1,
		WalkableRadius:         1,
		MaxEdgeLen:             0,
		MaxSimplificationError: 1.3,
		MinRegionArea:          8,
		MergeRegionArea:        20,
		MaxVertsPerPoly:        6,
		DetailSampleDist:       4,
		DetailSampleMaxError:   0.5,
		SpanMergeThreshold:     1,
	}
}

func TestPipelineBuildTileFlatPlane(t *testing.T) {
	verts, tris := planeGeometry(16, 16, 0.25)
	g := &Geometry{SolidVerts: verts, SolidTris: tris}

	p := NewPipeline(nil)
	pmesh, dmesh, err := p.BuildTile(testPipelineConfig(), g)
	require.NoError(t, err)
	require.NotNil(t, pmesh)
	require.NotNil(t, dmesh)

	assert.NotZero(t, pmesh.NPolys)
	assert.Equal(t, pmesh.NPolys, dmesh.NMeshes)
	for i := int32(0); i < pmesh.NPolys; i++ {
		assert.Equal(t, uint8(AreaGround), pmesh.Areas[i]&AreaMask)
		assert.Equal(t, FlagGround, pmesh.Flags[i])
	}
}

func TestPipelineBuildTileEmptyGeometry(t *testing.T) {
	p := NewPipeline(nil)
	pmesh, dmesh, err := p.BuildTile(testPipelineConfig(), &Geometry{})
	require.NoError(t, err)
	assert.Nil(t, pmesh)
	assert.Nil(t, dmesh)
}

func TestPipelineBuildTileInvalidConfig(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.CS = 0

	verts, tris := planeGeometry(16, 16, 0.25)
	p := NewPipeline(nil)
	_, _, err := p.BuildTile(cfg, &Geometry{SolidVerts: verts, SolidTris: tris})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPipelineLiquidAreas(t *testing.T) {
	// Ground plane with a water surface two units above one half, so the
	// water spans stay separate from the ground spans.
	gverts, gtris := planeGeometry(16, 16, 0.25)
	wverts, wtris := planeGeometry(8, 16, 2.0)

	g := &Geometry{
		SolidVerts:  gverts,
		SolidTris:   gtris,
		LiquidVerts: wverts,
		LiquidTris:  wtris,
		LiquidAreas: []uint8{AreaWater, AreaWater},
	}

	p := NewPipeline(nil)
	pmesh, _, err := p.BuildTile(testPipelineConfig(), g)
	require.NoError(t, err)
	require.NotNil(t, pmesh)

	areas := map[uint8]bool{}
	for i := int32(0); i < pmesh.NPolys; i++ {
		areas[pmesh.Areas[i]&AreaMask] = true
	}
	assert.True(t, areas[AreaWater], "expected water polygons")
	assert.True(t, areas[AreaGround], "expected ground polygons")

	for i := int32(0); i < pmesh.NPolys; i++ {
		if pmesh.Areas[i]&AreaMask == AreaWater {
			assert.Equal(t, FlagWater, pmesh.Flags[i])
		}
	}
}

func TestDerivePolyFlags(t *testing.T) {
	mesh := &PolyMesh{
		NPolys: 4,
		Areas:  []uint8{AreaGround, AreaGroundSteep, AreaWater, 0},
		Flags:  make([]uint16, 4),
	}
	DerivePolyFlags(mesh)
	assert.Equal(t, FlagGround, mesh.Flags[0])
	assert.Equal(t, FlagSteep, mesh.Flags[1])
	assert.Equal(t, FlagWater, mesh.Flags[2])
	assert.Zero(t, mesh.Flags[3])
}

func TestLoadOffMeshConnections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "offmesh.txt")
	content := "0 1,2 (10 20 30) (11 21 31) 2.5\n" +
		"1 1,2 (1 2 3) (4 5 6) 1.0\n" +
		"0 3,4 (7 8 9) (10 11 12) 1.5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cons, err := LoadOffMeshConnections(path, 0, 1, 2)
	require.NoError(t, err)
	require.Len(t, cons, 1)

	// Coordinates are swizzled from (x y z) to (y z x).
	assert.Equal(t, [3]float32{20, 30, 10}, cons[0].Start)
	assert.Equal(t, [3]float32{21, 31, 11}, cons[0].End)
	assert.Equal(t, float32(2.5), cons[0].Radius)
}

func TestLoadOffMeshConnectionsMissingFile(t *testing.T) {
	cons, err := LoadOffMeshConnections(filepath.Join(t.TempDir(), "none.txt"), 0, 0, 0)
	require.NoError(t, err)
	assert.Nil(t, cons)
}

func TestGeometryCompact(t *testing.T) {
	g := &Geometry{
		SolidVerts: []float32{0, 0, 0, 1, 0, 0, 1, 0, 1, 9, 9, 9},
		SolidTris:  []int32{0, 2, 1},
	}
	g.Compact()
	assert.Len(t, g.SolidVerts, 9)
	assert.Equal(t, []int32{0, 2, 1}, g.SolidTris)
}

func TestPipelineBuildTileSubGrid(t *testing.T) {
	// 32 cells against a 16-cell sub-tile size runs the bordered build
	// four times and stitches the pieces back together.
	cfg := testPipelineConfig()
	cfg.BMax = [3]float32{32, 10, 32}

	verts, tris := planeGeometry(32, 32, 0.25)
	p := NewPipeline(nil)
	pmesh, dmesh, err := p.BuildTile(cfg, &Geometry{SolidVerts: verts, SolidTris: tris})
	require.NoError(t, err)
	require.NotNil(t, pmesh)
	require.NotNil(t, dmesh)

	require.GreaterOrEqual(t, pmesh.NPolys, int32(4))
	assert.Equal(t, pmesh.NPolys, dmesh.NMeshes)
	requirePolyMeshInvariants(t, pmesh)

	for i := int32(0); i < pmesh.NPolys; i++ {
		assert.Equal(t, uint8(AreaGround), pmesh.Areas[i]&AreaMask)
		assert.Equal(t, FlagGround, pmesh.Flags[i])
	}

	// The merged mesh covers the whole plane, not just one sub-tile cell.
	// Only the outer rim is lost to erosion; the internal seams are welded
	// shut by the merge.
	v0 := pmesh.Verts
	minX := pmesh.BMin[0] + float32(v0[0])*pmesh.CS
	maxX := minX
	minZ := pmesh.BMin[2] + float32(v0[2])*pmesh.CS
	maxZ := minZ
	for i := int32(1); i < pmesh.NVerts; i++ {
		v := pmesh.Verts[i*3:]
		x := pmesh.BMin[0] + float32(v[0])*pmesh.CS
		z := pmesh.BMin[2] + float32(v[2])*pmesh.CS
		minX = minf(minX, x)
		maxX = maxf(maxX, x)
		minZ = minf(minZ, z)
		maxZ = maxf(maxZ, z)
	}
	assert.LessOrEqual(t, minX, float32(2))
	assert.GreaterOrEqual(t, maxX, float32(30))
	assert.LessOrEqual(t, minZ, float32(2))
	assert.GreaterOrEqual(t, maxZ, float32(30))
}
