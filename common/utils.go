package common

import "github.com/go-gl/mathgl/mgl32"

type Vec3 = mgl32.Vec3

type IT interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Index3 flattens a 3d grid coordinate, x fastest.
func Index3(x, y, z, sizeX, sizeY int) int {
	return x + sizeX*(y+sizeY*z)
}

// Index2 flattens a 2d grid coordinate, x fastest.
func Index2(x, z, sizeX int) int {
	return x + z*sizeX
}

// CeilDiv returns ceil(a/b) for positive b.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}
