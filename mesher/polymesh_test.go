package mesher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPlaneMesh runs the plane through contours into a polygon mesh.
func buildPlaneMesh(t *testing.T, w, h int32) (*PolyMesh, *CompactHeightfield) {
	t.Helper()
	chf := planeField(t, w, h)
	require.NoError(t, BuildDistanceField(chf))
	require.NoError(t, BuildRegions(chf, 0, 8, 20))
	cset, err := BuildContours(chf, 1.3, 0, 0)
	require.NoError(t, err)
	mesh, err := BuildPolyMesh(cset, 6)
	require.NoError(t, err)
	return mesh, chf
}

func TestBuildPolyMeshFlatSquare(t *testing.T) {
	mesh, _ := buildPlaneMesh(t, 20, 20)

	// One convex quad covers the whole plane.
	assert.Equal(t, int32(1), mesh.NPolys)
	assert.Equal(t, int32(4), mesh.NVerts)
	requirePolyMeshInvariants(t, mesh)
}

// requirePolyMeshInvariants checks convexity, vertex budget and mutual
// adjacency for every polygon.
func requirePolyMeshInvariants(t *testing.T, mesh *PolyMesh) {
	t.Helper()
	nvp := mesh.NVP
	for i := int32(0); i < mesh.NPolys; i++ {
		p := mesh.Polys[i*2*nvp:]
		nv := countPolyVerts(p, nvp)
		require.GreaterOrEqual(t, nv, int32(3), "poly %d degenerate", i)
		require.LessOrEqual(t, nv, nvp, "poly %d exceeds vertex budget", i)

		// Convex in the xz plane: no corner turns against the winding.
		// Collinear corners are allowed.
		for j := int32(0); j < nv; j++ {
			a := mesh.Verts[int32(p[j])*3:]
			b := mesh.Verts[int32(p[(j+1)%nv])*3:]
			c := mesh.Verts[int32(p[(j+2)%nv])*3:]
			cross := (int32(b[0])-int32(a[0]))*(int32(c[2])-int32(a[2])) -
				(int32(c[0])-int32(a[0]))*(int32(b[2])-int32(a[2]))
			require.LessOrEqual(t, cross, int32(0), "poly %d concave at corner %d", i, j)
		}

		// Internal adjacency is symmetric.
		for j := int32(0); j < nv; j++ {
			nei := p[nvp+j]
			if nei == MeshNullIdx || nei&0x8000 != 0 {
				continue
			}
			q := mesh.Polys[int32(nei)*2*nvp:]
			qnv := countPolyVerts(q, nvp)
			found := false
			for k := int32(0); k < qnv; k++ {
				if q[nvp+k] == uint16(i) {
					found = true
					break
				}
			}
			require.True(t, found, "poly %d edge %d: neighbour %d does not point back", i, j, nei)
		}
	}
}

func TestBuildPolyMeshAdjacency(t *testing.T) {
	// Force several polygons by tessellating the contour edges.
	chf := regionField(t, 20, 20)
	cset, err := BuildContours(chf, 1.3, 5, TessWallEdges)
	require.NoError(t, err)
	mesh, err := BuildPolyMesh(cset, 6)
	require.NoError(t, err)

	require.Greater(t, mesh.NPolys, int32(1))
	requirePolyMeshInvariants(t, mesh)
	for i := int32(0); i < mesh.NPolys; i++ {
		assert.Equal(t, uint8(WalkableArea), mesh.Areas[i])
		assert.NotZero(t, mesh.Regs[i])
	}
}

func TestMergePolyMeshesWeldsSeam(t *testing.T) {
	// Two halves of a flat 20x20 plane split along x.
	left, _ := buildPlaneMesh(t, 10, 20)
	right, _ := buildPlaneMesh(t, 10, 20)
	// Shift the right half into place.
	right.BMin[0] += 10
	right.BMax[0] += 10

	sumVerts := left.NVerts + right.NVerts
	sumPolys := left.NPolys + right.NPolys

	merged, err := MergePolyMeshes([]*PolyMesh{left, right})
	require.NoError(t, err)

	assert.Equal(t, sumPolys, merged.NPolys)
	// Seam vertices weld: fewer vertices than the two inputs combined.
	assert.Less(t, merged.NVerts, sumVerts)
	assert.Equal(t, int32(6), merged.NVerts)
	requirePolyMeshInvariants(t, merged)
}

func TestMergePolyMeshSingle(t *testing.T) {
	mesh, _ := buildPlaneMesh(t, 12, 12)
	merged, err := MergePolyMeshes([]*PolyMesh{mesh})
	require.NoError(t, err)
	assert.Equal(t, mesh.NPolys, merged.NPolys)
	assert.Equal(t, mesh.NVerts, merged.NVerts)
}
