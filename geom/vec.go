// Package geom holds the small amount of vector and grid math shared by the
// navmesh build pipeline. All vectors are [3]float32 slices laid out as
// (x, y, z) with y up, matching the build pipeline's coordinate convention.
package geom

import (
	"cmp"
	"math"
)

// Sqr returns a*a.
func Sqr[T int | int32 | float32 | float64](a T) T {
	return a * a
}

// Abs returns the absolute value.
func Abs[T int | int32 | float32 | float64](a T) T {
	if a < 0 {
		return -a
	}
	return a
}

// Clamp limits value to [lo, hi].
func Clamp[T cmp.Ordered](value, lo, hi T) T {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// Vert returns the i-th (x,y,z) triple of a packed vertex array.
func Vert(verts []float32, i int32) []float32 {
	return verts[i*3 : i*3+3]
}

func Vadd(dst, v1, v2 []float32) {
	dst[0] = v1[0] + v2[0]
	dst[1] = v1[1] + v2[1]
	dst[2] = v1[2] + v2[2]
}

func Vsub(dst, v1, v2 []float32) {
	dst[0] = v1[0] - v2[0]
	dst[1] = v1[1] - v2[1]
	dst[2] = v1[2] - v2[2]
}

// Vmin folds the component-wise minimum of v into mn.
func Vmin(mn, v []float32) {
	mn[0] = min(mn[0], v[0])
	mn[1] = min(mn[1], v[1])
	mn[2] = min(mn[2], v[2])
}

// Vmax folds the component-wise maximum of v into mx.
func Vmax(mx, v []float32) {
	mx[0] = max(mx[0], v[0])
	mx[1] = max(mx[1], v[1])
	mx[2] = max(mx[2], v[2])
}

func Vcopy(dst, src []float32) {
	dst[0] = src[0]
	dst[1] = src[1]
	dst[2] = src[2]
}

func Vcross(dst, v1, v2 []float32) {
	dst[0] = v1[1]*v2[2] - v1[2]*v2[1]
	dst[1] = v1[2]*v2[0] - v1[0]*v2[2]
	dst[2] = v1[0]*v2[1] - v1[1]*v2[0]
}

func Vdot(v1, v2 []float32) float32 {
	return v1[0]*v2[0] + v1[1]*v2[1] + v1[2]*v2[2]
}

func Vnormalize(v []float32) {
	d := float32(1.0 / math.Sqrt(float64(Sqr(v[0])+Sqr(v[1])+Sqr(v[2]))))
	v[0] *= d
	v[1] *= d
	v[2] *= d
}

func Vdist(v1, v2 []float32) float32 {
	return float32(math.Sqrt(float64(VdistSqr(v1, v2))))
}

func VdistSqr(v1, v2 []float32) float32 {
	dx := v2[0] - v1[0]
	dy := v2[1] - v1[1]
	dz := v2[2] - v1[2]
	return dx*dx + dy*dy + dz*dz
}

// OverlapBounds reports whether two axis-aligned boxes intersect.
func OverlapBounds(aMin, aMax, bMin, bMax []float32) bool {
	return aMin[0] <= bMax[0] && aMax[0] >= bMin[0] &&
		aMin[1] <= bMax[1] && aMax[1] >= bMin[1] &&
		aMin[2] <= bMax[2] && aMax[2] >= bMin[2]
}

// Grid neighbour directions, counter-clockwise starting at -x:
// 0 = (-1,0), 1 = (0,1), 2 = (1,0), 3 = (0,-1).
var (
	dirOffsetX = [4]int32{-1, 0, 1, 0}
	dirOffsetZ = [4]int32{0, 1, 0, -1}
)

// DirOffsetX returns the x offset of grid direction dir.
func DirOffsetX(dir int32) int32 { return dirOffsetX[dir&3] }

// DirOffsetZ returns the z offset of grid direction dir.
func DirOffsetZ(dir int32) int32 { return dirOffsetZ[dir&3] }

// NextPow2 rounds v up to the next power of two.
func NextPow2(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}

// Ilog2 returns floor(log2(v)).
func Ilog2(v uint32) uint32 {
	var r, shift uint32
	if v > 0xffff {
		r = 1 << 4
	}
	v >>= r
	if v > 0xff {
		shift = 1 << 3
	}
	v >>= shift
	r |= shift
	if v > 0xf {
		shift = 1 << 2
	} else {
		shift = 0
	}
	v >>= shift
	r |= shift
	if v > 0x3 {
		shift = 1 << 1
	} else {
		shift = 0
	}
	v >>= shift
	r |= shift
	r |= v >> 1
	return r
}
