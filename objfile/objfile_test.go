package objfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeObj(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mesh.obj")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadTriangles(t *testing.T) {
	path := writeObj(t, `
# comment
v 0 0 0
v 1 0 0
v 1 0 1

f 1 2 3
`)
	m, err := Load(path, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, m.VertCount())
	assert.Equal(t, 1, m.TriCount())
	assert.Equal(t, []float32{0, 0, 0, 1, 0, 0, 1, 0, 1}, m.Verts)
	assert.Equal(t, []int32{0, 1, 2}, m.Tris)
}

func TestLoadScale(t *testing.T) {
	path := writeObj(t, "v 1 2 3\nv 0 0 0\nv 1 0 0\nf 1 2 3\n")
	m, err := Load(path, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1, 1.5}, m.Verts[:3])
}

func TestLoadQuadFanning(t *testing.T) {
	path := writeObj(t, `
v 0 0 0
v 1 0 0
v 1 0 1
v 0 0 1
f 1 2 3 4
`)
	m, err := Load(path, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, m.TriCount())
	assert.Equal(t, []int32{0, 1, 2, 0, 2, 3}, m.Tris)
}

func TestLoadFaceIndexForms(t *testing.T) {
	path := writeObj(t, `
v 0 0 0
v 1 0 0
v 1 0 1
f 1/5 2/5/7 3//7
`)
	m, err := Load(path, 1)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, m.Tris)
}

func TestLoadNegativeIndices(t *testing.T) {
	path := writeObj(t, `
v 0 0 0
v 1 0 0
v 1 0 1
f -3 -2 -1
`)
	m, err := Load(path, 1)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, m.Tris)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.obj"), 1)
	assert.Error(t, err)

	// Face references a vertex that does not exist.
	_, err = Load(writeObj(t, "v 0 0 0\nf 1 2 3\n"), 1)
	assert.Error(t, err)

	// Malformed vertex coordinate.
	_, err = Load(writeObj(t, "v 0 zero 0\n"), 1)
	assert.Error(t, err)

	// Face with fewer than three corners.
	_, err = Load(writeObj(t, "v 0 0 0\nv 1 0 0\nf 1 2\n"), 1)
	assert.Error(t, err)
}
