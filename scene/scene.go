// Package scene describes the world geometry a navmesh is built from and
// derives the identities used to decide when a navmesh must be reloaded.
package scene

import (
	"github.com/gorustyt/vnavmesh/common"
)

// Collider is an axis-aligned solid box. Its top face is a candidate floor.
type Collider struct {
	Min common.Vec3 `yaml:"min"`
	Max common.Vec3 `yaml:"max"`
}

// Snapshot captures everything needed to build the navmesh of one region.
// It is not modified after capture; the build task owns it.
type Snapshot struct {
	TerritoryID    uint32
	Bg             string
	FilterKey      uint32
	FestivalLayers []uint32
	Colliders      []Collider
}

// Bounds returns the box enclosing all colliders.
func (s *Snapshot) Bounds() (bmin, bmax common.Vec3) {
	if len(s.Colliders) == 0 {
		return bmin, bmax
	}
	bmin, bmax = s.Colliders[0].Min, s.Colliders[0].Max
	for _, c := range s.Colliders[1:] {
		bmin = common.Vmin(bmin, c.Min)
		bmax = common.Vmax(bmax, c.Max)
	}
	return bmin, bmax
}

// World is the live game state the navmesh manager polls.
type World interface {
	// LiveKey identifies the region that should be loaded right now, or ""
	// while the world is mid-transition. Called every tick.
	LiveKey() string
	// CaptureScene snapshots the geometry of the active region.
	CaptureScene() (*Snapshot, error)
	// CacheKey names the cache entry for a snapshot; filename safe.
	CacheKey(s *Snapshot) string
}
