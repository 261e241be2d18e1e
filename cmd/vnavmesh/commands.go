package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/gorustyt/vnavmesh/common"
	"github.com/gorustyt/vnavmesh/common/rw"
	"github.com/gorustyt/vnavmesh/debug_utils"
	"github.com/gorustyt/vnavmesh/navmesh"
)

// loadZone opens the environment and waits for the zone's navmesh.
func loadZone(c *cli.Context, opts envOptions) (*env, error) {
	e, err := newEnv(c, opts)
	if err != nil {
		return nil, err
	}
	e.mgr.AutoLoad = true
	err = waitReady(c.Context, e.mgr, e.cfg.TickInterval, func(p float32) {
		e.log.Debug("building", zap.Float32("progress", p))
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func buildAction(c *cli.Context) error {
	e, err := loadZone(c, envOptions{rebuild: c.Bool("rebuild")})
	if err != nil {
		return err
	}
	defer e.Close()
	nm := e.mgr.Navmesh()
	fmt.Fprintf(c.App.Writer, "%s: %d walkable cells, volume %t\n", e.mgr.CurrentKey(), nm.Mesh.NumWalkable(), nm.Volume != nil)
	return nil
}

func pathAction(c *cli.Context) error {
	from, to, err := pathEnds(c)
	if err != nil {
		return err
	}
	e, err := loadZone(c, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	points, err := findPath(c, e, from, to)
	if err != nil {
		return err
	}
	for _, p := range points {
		fmt.Fprintln(c.App.Writer, formatVec(p))
	}
	return nil
}

func pathEnds(c *cli.Context) (from, to common.Vec3, err error) {
	if from, err = parseVec(c.String("from")); err != nil {
		return from, to, errors.Wrap(err, "--from")
	}
	if to, err = parseVec(c.String("to")); err != nil {
		return from, to, errors.Wrap(err, "--to")
	}
	return from, to, nil
}

// findPath queues a path request on the loaded manager and ticks it until the
// request resolves.
func findPath(c *cli.Context, e *env, from, to common.Vec3) ([]common.Vec3, error) {
	task := e.mgr.QueryPath(from, to, c.Bool("fly"), c.Context)
	if task == nil {
		return nil, navmesh.ErrNotReady
	}
	if err := waitTask(c.Context, e.mgr, task, e.cfg.TickInterval); err != nil {
		return nil, err
	}
	return task.Result()
}

func dumpAction(c *cli.Context) error {
	withPath := c.IsSet("from") || c.IsSet("to")
	var from, to common.Vec3
	if withPath {
		var err error
		if from, to, err = pathEnds(c); err != nil {
			return err
		}
	}
	e, err := loadZone(c, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	w := rw.NewNavMeshDataBinWriter()
	if c.Bool("surface-only") {
		err = debug_utils.DumpMeshToObj(e.mgr.Navmesh().Mesh, w)
	} else {
		err = debug_utils.DumpNavmeshToObj(e.mgr.Navmesh(), w)
	}
	if err != nil {
		return err
	}
	if withPath {
		points, err := findPath(c, e, from, to)
		if err != nil {
			return err
		}
		if err := debug_utils.DumpPathToObj(points, w); err != nil {
			return err
		}
	}
	out := c.String("out")
	if err := os.WriteFile(out, w.GetWriteBytes(), 0o644); err != nil {
		return errors.Wrap(err, "write obj")
	}
	e.log.Info("navmesh dumped", zap.String("file", out), zap.Int("bytes", w.Size()))
	return nil
}

// parseVec parses "x,y,z"; spaces are accepted as separators too.
func parseVec(s string) (common.Vec3, error) {
	var v common.Vec3
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) != 3 {
		return v, errors.Errorf("want x,y,z, got %q", s)
	}
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return v, errors.Wrapf(err, "coordinate %d", i)
		}
		v[i] = float32(n)
	}
	return v, nil
}

func formatVec(v common.Vec3) string {
	return fmt.Sprintf("%.2f,%.2f,%.2f", v[0], v[1], v[2])
}
