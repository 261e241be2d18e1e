package recast

import (
	"github.com/pkg/errors"
)

var ErrInvalidCustomization = errors.New("recast: invalid customization")

// Customization holds the build settings of one territory. Version is stored
// in every built navmesh; bumping it invalidates cached navmeshes built with
// older settings.
type Customization struct {
	Territory   uint32  `yaml:"territory"`
	Version     int32   `yaml:"version"`
	CellSize    float32 `yaml:"cell_size"`    // xz size of a heightfield cell
	TileSize    int32   `yaml:"tile_size"`    // tile width and depth in cells
	AgentHeight float32 `yaml:"agent_height"` // clearance needed above a floor
	AgentClimb  float32 `yaml:"agent_climb"`  // max step between neighbouring floors
	AgentRadius float32 `yaml:"agent_radius"` // walkable area is eroded by this much
	Flyable     bool    `yaml:"flyable"`      // build a voxel volume for flying paths
	VoxelSize   float32 `yaml:"voxel_size"`
	VoxelHeight float32 `yaml:"voxel_height"`
}

func DefaultCustomization() Customization {
	return Customization{
		Version:     1,
		CellSize:    0.5,
		TileSize:    32,
		AgentHeight: 2,
		AgentClimb:  0.55,
		AgentRadius: 0.5,
		VoxelSize:   2,
		VoxelHeight: 2,
	}
}

func (c Customization) Validate() error {
	switch {
	case !(c.CellSize > 0):
		return errors.Wrapf(ErrInvalidCustomization, "cell_size %v", c.CellSize)
	case c.TileSize <= 0:
		return errors.Wrapf(ErrInvalidCustomization, "tile_size %v", c.TileSize)
	case !(c.AgentHeight > 0):
		return errors.Wrapf(ErrInvalidCustomization, "agent_height %v", c.AgentHeight)
	case !(c.AgentClimb >= 0):
		return errors.Wrapf(ErrInvalidCustomization, "agent_climb %v", c.AgentClimb)
	case !(c.AgentRadius >= 0):
		return errors.Wrapf(ErrInvalidCustomization, "agent_radius %v", c.AgentRadius)
	case c.Flyable && (!(c.VoxelSize > 0) || !(c.VoxelHeight > 0)):
		return errors.Wrapf(ErrInvalidCustomization, "voxel size %vx%v", c.VoxelSize, c.VoxelHeight)
	}
	return nil
}

// Registry resolves the customization of a territory.
type Registry struct {
	def         Customization
	territories map[uint32]Customization
}

// NewRegistry returns a registry answering with list entries by territory and
// def for every other territory.
func NewRegistry(def Customization, list ...Customization) *Registry {
	r := &Registry{def: def, territories: make(map[uint32]Customization, len(list))}
	for _, c := range list {
		r.territories[c.Territory] = c
	}
	return r
}

func (r *Registry) For(territory uint32) (Customization, error) {
	c, ok := r.territories[territory]
	if !ok {
		c = r.def
		c.Territory = territory
	}
	if err := c.Validate(); err != nil {
		return Customization{}, errors.Wrapf(err, "territory %d", territory)
	}
	return c, nil
}
