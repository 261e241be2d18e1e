package common

import (
	"cmp"
	"math"
)

// / Returns the square of the value.
func Sqr[T IT](a T) T {
	return a * a
}

// / Returns the absolute value.
func Abs[T IT](a T) T {
	if a < 0 {
		return -a
	}
	return a
}

// Clamp limits value to [minInclusive, maxInclusive].
func Clamp[T cmp.Ordered](value, minInclusive, maxInclusive T) T {
	if value < minInclusive {
		return minInclusive
	}
	if value > maxInclusive {
		return maxInclusive
	}
	return value
}

// / Returns the distance between two points.
func Vdist(v1, v2 Vec3) float32 {
	return v1.Sub(v2).Len()
}

// / Returns the distance between two points on the xz-plane.
func Vdist2D(v1, v2 Vec3) float32 {
	dx := v2[0] - v1[0]
	dz := v2[2] - v1[2]
	return float32(math.Sqrt(float64(dx*dx + dz*dz)))
}

// / Performs a linear interpolation between two vectors. (@p v1 toward @p v2)
func Vlerp(v1, v2 Vec3, t float32) Vec3 {
	return Vec3{
		v1[0] + (v2[0]-v1[0])*t,
		v1[1] + (v2[1]-v1[1])*t,
		v1[2] + (v2[2]-v1[2])*t,
	}
}

// / Selects the minimum value of each element from the specified vectors.
func Vmin(mn, v Vec3) Vec3 {
	return Vec3{min(mn[0], v[0]), min(mn[1], v[1]), min(mn[2], v[2])}
}

// / Selects the maximum value of each element from the specified vectors.
func Vmax(mx, v Vec3) Vec3 {
	return Vec3{max(mx[0], v[0]), max(mx[1], v[1]), max(mx[2], v[2])}
}

// / Gets the standard width (x-axis) offset for the specified direction.
// / Directions 0-3 are the cardinal ones, 4-7 the diagonals between them.
func GetDirOffsetX(direction int) int {
	offset := [8]int{-1, 0, 1, 0, -1, 1, 1, -1}
	return offset[direction&0x07]
}

// / Gets the standard height (z-axis) offset for the specified direction.
func GetDirOffsetY(direction int) int {
	offset := [8]int{0, 1, 0, -1, 1, 1, -1, -1}
	return offset[direction&0x07]
}

// / Returns true if the two axis-aligned boxes overlap.
func OverlapBounds(aMin, aMax, bMin, bMax Vec3) bool {
	return aMin[0] <= bMax[0] && aMax[0] >= bMin[0] &&
		aMin[1] <= bMax[1] && aMax[1] >= bMin[1] &&
		aMin[2] <= bMax[2] && aMax[2] >= bMin[2]
}
