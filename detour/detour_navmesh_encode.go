package detour

import (
	"github.com/pkg/errors"

	"github.com/gorustyt/vnavmesh/common"
	"github.com/gorustyt/vnavmesh/common/rw"
)

const (
	NavmeshMagic  = 'V'<<24 | 'N'<<16 | 'A'<<8 | 'V'
	NavmeshFormat = 1
	tileMissing   = 0
	tilePresent   = 1
)

// Encode serializes nm. The output is deterministic: equal navmeshes encode
// to equal bytes.
func Encode(nm *Navmesh) []byte {
	w := rw.NewNavMeshDataBinWriter()
	w.WriteUInt32(NavmeshMagic)
	w.WriteUInt32(NavmeshFormat)
	w.WriteInt32(nm.Version)

	m := nm.Mesh
	writeVec3(w, m.Params.Origin)
	w.WriteFloat32(m.Params.CellSize)
	w.WriteInt32(m.Params.TileSize)
	w.WriteInt32(m.Params.Width)
	w.WriteInt32(m.Params.Depth)
	w.WriteFloat32(m.Params.WalkableHeight)
	w.WriteFloat32(m.Params.WalkableClimb)
	for _, tile := range m.Tiles {
		if tile == nil {
			w.WriteUInt8(tileMissing)
			continue
		}
		w.WriteUInt8(tilePresent)
		w.WriteInt32(tile.X)
		w.WriteInt32(tile.Z)
		w.WriteInt32(tile.Width)
		w.WriteInt32(tile.Depth)
		w.WriteFloat32s(tile.Heights)
		w.WriteUInt8s(tile.Areas)
	}

	if nm.Volume == nil {
		w.WriteUInt8(0)
		return w.GetWriteBytes()
	}
	w.WriteUInt8(1)
	v := nm.Volume
	writeVec3(w, v.Params.Origin)
	w.WriteFloat32(v.Params.VoxelSize)
	w.WriteFloat32(v.Params.VoxelHeight)
	w.WriteInt32(v.Params.SizeX)
	w.WriteInt32(v.Params.SizeY)
	w.WriteInt32(v.Params.SizeZ)
	w.WriteUInt32(uint32(len(v.Solid)))
	w.WriteUInt64s(v.Solid)
	return w.GetWriteBytes()
}

// Decode parses data written by Encode. version is the customization version
// the caller expects; data built with another version is rejected with
// ErrWrongVersion.
func Decode(data []byte, version int32) (*Navmesh, error) {
	r := rw.NewNavMeshDataBinReader(data)
	if r.ReadUInt32() != NavmeshMagic {
		return nil, ErrWrongMagic
	}
	if f := r.ReadUInt32(); f != NavmeshFormat {
		return nil, errors.Wrapf(ErrWrongVersion, "format %d", f)
	}
	nm := &Navmesh{Version: r.ReadInt32()}
	if nm.Version != version {
		return nil, errors.Wrapf(ErrWrongVersion, "built with version %d, want %d", nm.Version, version)
	}

	var params MeshParams
	params.Origin = readVec3(r)
	params.CellSize = r.ReadFloat32()
	params.TileSize = r.ReadInt32()
	params.Width = r.ReadInt32()
	params.Depth = r.ReadInt32()
	params.WalkableHeight = r.ReadFloat32()
	params.WalkableClimb = r.ReadFloat32()
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "read mesh params")
	}
	if !(params.CellSize > 0) || params.TileSize <= 0 || params.Width < 0 || params.Depth < 0 ||
		int64(params.Width)*int64(params.Depth) > MaxGridCells {
		return nil, errors.Wrapf(ErrInvalidParam, "mesh params %+v", params)
	}

	nm.Mesh = NewMesh(params)
	for i := range nm.Mesh.Tiles {
		switch r.ReadUInt8() {
		case tileMissing:
			continue
		case tilePresent:
		default:
			return nil, errors.Wrapf(ErrInvalidParam, "tile %d marker", i)
		}
		tile := &MeshTile{X: r.ReadInt32(), Z: r.ReadInt32(), Width: r.ReadInt32(), Depth: r.ReadInt32()}
		n := int64(tile.Width) * int64(tile.Depth)
		if tile.Width < 0 || tile.Depth < 0 || n*5 > int64(r.Remaining()) {
			return nil, errors.Wrapf(ErrInvalidParam, "tile %d size %dx%d", i, tile.Width, tile.Depth)
		}
		tile.Heights = make([]float32, n)
		tile.Areas = make([]uint8, n)
		r.ReadFloat32s(tile.Heights)
		r.ReadUInt8s(tile.Areas)
		if err := r.Err(); err != nil {
			return nil, errors.Wrapf(err, "read tile %d", i)
		}
		if err := nm.Mesh.AddTile(tile); err != nil {
			return nil, err
		}
	}

	hasVolume := r.ReadUInt8()
	if hasVolume == 1 {
		var vp VoxelParams
		vp.Origin = readVec3(r)
		vp.VoxelSize = r.ReadFloat32()
		vp.VoxelHeight = r.ReadFloat32()
		vp.SizeX = r.ReadInt32()
		vp.SizeY = r.ReadInt32()
		vp.SizeZ = r.ReadInt32()
		words := int64(r.ReadUInt32())
		if err := r.Err(); err != nil {
			return nil, errors.Wrap(err, "read volume params")
		}
		count, ok := VoxelCount(vp.SizeX, vp.SizeY, vp.SizeZ)
		if !(vp.VoxelSize > 0) || !(vp.VoxelHeight > 0) || !ok || words != (count+63)/64 || words*8 > int64(r.Remaining()) {
			return nil, errors.Wrapf(ErrInvalidParam, "volume params %+v", vp)
		}
		nm.Volume = NewVoxelMap(vp)
		r.ReadUInt64s(nm.Volume.Solid)
	} else if hasVolume != 0 {
		return nil, errors.Wrap(ErrInvalidParam, "volume marker")
	}
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "read volume")
	}
	if r.Remaining() != 0 {
		return nil, errors.Wrapf(ErrInvalidParam, "%d trailing bytes", r.Remaining())
	}
	return nm, nil
}

func writeVec3(w *rw.ReaderWriter, v common.Vec3) {
	w.WriteFloat32(v[0])
	w.WriteFloat32(v[1])
	w.WriteFloat32(v[2])
}

func readVec3(r *rw.ReaderWriter) common.Vec3 {
	return common.Vec3{r.ReadFloat32(), r.ReadFloat32(), r.ReadFloat32()}
}
