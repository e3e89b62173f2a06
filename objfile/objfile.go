// Package objfile loads triangle geometry from Wavefront OBJ files. Only
// vertex positions and faces are read; faces with more than three corners
// are fanned into triangles.
package objfile

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Mesh is the loaded triangle soup.
type Mesh struct {
	Verts []float32
	Tris  []int32
}

// VertCount returns the number of vertices.
func (m *Mesh) VertCount() int { return len(m.Verts) / 3 }

// TriCount returns the number of triangles.
func (m *Mesh) TriCount() int { return len(m.Tris) / 3 }

// Load reads an OBJ file. Vertex coordinates are scaled by scale.
func Load(path string, scale float32) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := &Mesh{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineno := 0
	for sc.Scan() {
		lineno++
		row := strings.TrimSpace(sc.Text())
		if row == "" || strings.HasPrefix(row, "#") {
			continue
		}
		fields := strings.Fields(row)
		switch fields[0] {
		case "v":
			if err := m.parseVertex(fields[1:], scale); err != nil {
				return nil, fmt.Errorf("objfile: %s:%d: %w", path, lineno, err)
			}
		case "f":
			if err := m.parseFace(fields[1:]); err != nil {
				return nil, fmt.Errorf("objfile: %s:%d: %w", path, lineno, err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("objfile: %s: %w", path, err)
	}
	return m, nil
}

func (m *Mesh) parseVertex(fields []string, scale float32) error {
	if len(fields) < 3 {
		return fmt.Errorf("vertex needs 3 coordinates, got %d", len(fields))
	}
	for _, s := range fields[:3] {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return fmt.Errorf("bad coordinate %q: %w", s, err)
		}
		m.Verts = append(m.Verts, float32(v)*scale)
	}
	return nil
}

func (m *Mesh) parseFace(fields []string) error {
	nverts := len(m.Verts) / 3
	idx := make([]int32, 0, len(fields))
	for _, s := range fields {
		// "v", "v/vt", "v//vn" and "v/vt/vn" forms; only the position
		// index matters here.
		vs := s
		if i := strings.IndexByte(vs, '/'); i >= 0 {
			vs = vs[:i]
		}
		vi, err := strconv.Atoi(vs)
		if err != nil {
			return fmt.Errorf("bad face index %q: %w", s, err)
		}
		if vi < 0 {
			vi += nverts
		} else {
			vi--
		}
		if vi < 0 || vi >= nverts {
			return fmt.Errorf("face index %d out of range (%d vertices)", vi, nverts)
		}
		idx = append(idx, int32(vi))
	}
	if len(idx) < 3 {
		return fmt.Errorf("face needs 3 corners, got %d", len(idx))
	}
	for i := 2; i < len(idx); i++ {
		m.Tris = append(m.Tris, idx[0], idx[i-1], idx[i])
	}
	return nil
}
