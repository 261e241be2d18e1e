package detour

import (
	"math"

	"github.com/pkg/errors"
)

var (
	ErrWrongMagic   = errors.New("detour: input data is not recognized")      // DT_WRONG_MAGIC
	ErrWrongVersion = errors.New("detour: input data is in wrong version")    // DT_WRONG_VERSION
	ErrInvalidParam = errors.New("detour: an input parameter was invalid")    // DT_INVALID_PARAM
	ErrNoPath       = errors.New("detour: query did not reach the end")       // DT_PARTIAL_RESULT without a partial path
	ErrNoVolume     = errors.New("detour: navmesh has no volume for flying")
)

const (
	// Searches re-check their context after this many node expansions.
	cancelCheckInterval = 64
	// Max ring distance, in cells or voxels, searched for a start or end point.
	nearestSearchRadius = 8
	// Node budget per search.
	DefaultMaxNodes = 1 << 20
	// Largest surface grid, in cells.
	MaxGridCells = 1 << 26
	// Largest volume, in voxels; search node ids are int32.
	MaxVoxelCount = math.MaxInt32
)
