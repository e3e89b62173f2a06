package mesher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPolyMeshDetailFlat(t *testing.T) {
	mesh, chf := buildPlaneMesh(t, 20, 20)

	dmesh, err := BuildPolyMeshDetail(mesh, chf, 4, 0.5)
	require.NoError(t, err)

	assert.Equal(t, mesh.NPolys, dmesh.NMeshes)
	require.NotZero(t, dmesh.NVerts)
	require.NotZero(t, dmesh.NTris)

	// The plane's surface height is uniform, so every detail vertex sits at
	// the same height.
	want := dmesh.Verts[1]
	for i := int32(0); i < dmesh.NVerts; i++ {
		assert.InDelta(t, want, dmesh.Verts[i*3+1], 0.01, "vertex %d height", i)
	}

	// Triangle indices stay within each sub-mesh's vertex range.
	for m := int32(0); m < dmesh.NMeshes; m++ {
		nverts := dmesh.Meshes[m*4+1]
		tbase := dmesh.Meshes[m*4+2]
		ntris := dmesh.Meshes[m*4+3]
		for j := uint32(0); j < ntris; j++ {
			tri := dmesh.Tris[(tbase+j)*4:]
			for k := 0; k < 3; k++ {
				assert.Less(t, uint32(tri[k]), nverts, "mesh %d tri %d", m, j)
			}
		}
	}
}

func TestBuildPolyMeshDetailNoSampling(t *testing.T) {
	mesh, chf := buildPlaneMesh(t, 12, 12)

	dmesh, err := BuildPolyMeshDetail(mesh, chf, 0, 0)
	require.NoError(t, err)

	// Without sampling each polygon keeps just its hull triangulation.
	assert.Equal(t, mesh.NPolys, dmesh.NMeshes)
	assert.NotZero(t, dmesh.NTris)
}

func TestMergePolyMeshDetails(t *testing.T) {
	meshA, chfA := buildPlaneMesh(t, 10, 10)
	meshB, chfB := buildPlaneMesh(t, 12, 12)

	da, err := BuildPolyMeshDetail(meshA, chfA, 0, 0)
	require.NoError(t, err)
	db, err := BuildPolyMeshDetail(meshB, chfB, 0, 0)
	require.NoError(t, err)

	merged, err := MergePolyMeshDetails([]*PolyMeshDetail{da, db})
	require.NoError(t, err)

	assert.Equal(t, da.NMeshes+db.NMeshes, merged.NMeshes)
	assert.Equal(t, da.NVerts+db.NVerts, merged.NVerts)
	assert.Equal(t, da.NTris+db.NTris, merged.NTris)

	// Sub-mesh bases are rebased past the first input's arrays.
	secondBase := merged.Meshes[da.NMeshes*4+0]
	assert.Equal(t, uint32(da.NVerts), secondBase)
}
