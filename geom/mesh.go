package geom

import "sort"

// CalcBounds computes the axis-aligned bounds of a packed vertex array.
func CalcBounds(verts []float32, numVerts int32, bmin, bmax []float32) {
	Vcopy(bmin, verts)
	Vcopy(bmax, verts)
	for i := int32(1); i < numVerts; i++ {
		v := Vert(verts, i)
		Vmin(bmin, v)
		Vmax(bmax, v)
	}
}

// CalcGridSize returns the heightfield grid size for the given bounds and
// cell size.
func CalcGridSize(bmin, bmax []float32, cellSize float32) (width, height int32) {
	width = int32((bmax[0]-bmin[0])/cellSize + 0.5)
	height = int32((bmax[2]-bmin[2])/cellSize + 0.5)
	return width, height
}

// CompactVertices removes vertices not referenced by any triangle and remaps
// the triangle indices. The surviving vertices keep their relative order, so
// the result is deterministic for identical input.
func CompactVertices(verts []float32, tris []int32) ([]float32, []int32) {
	if len(tris) == 0 {
		return verts, tris
	}

	used := make(map[int32]int32, len(tris))
	for _, t := range tris {
		used[t] = 0
	}
	order := make([]int32, 0, len(used))
	for idx := range used {
		order = append(order, idx)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	cleanVerts := make([]float32, 0, len(order)*3)
	for newIdx, oldIdx := range order {
		used[oldIdx] = int32(newIdx)
		cleanVerts = append(cleanVerts, verts[oldIdx*3], verts[oldIdx*3+1], verts[oldIdx*3+2])
	}

	cleanTris := make([]int32, len(tris))
	for i, t := range tris {
		cleanTris[i] = used[t]
	}
	return cleanVerts, cleanTris
}
