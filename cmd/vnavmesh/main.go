// Command vnavmesh builds, caches and queries navmeshes for the zones of a
// world description file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML configuration file",
		EnvVars: []string{"VNAVMESH_CONFIG"},
	}
	worldFlag = &cli.StringFlag{
		Name:     "world",
		Aliases:  []string{"w"},
		Usage:    "YAML world description",
		Required: true,
	}
	zoneFlag = &cli.StringFlag{
		Name:    "zone",
		Aliases: []string{"z"},
		Usage:   "zone to activate",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "override log.level from the configuration",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "vnavmesh",
		Usage: "navmesh build, cache and pathfinding tool",
		Flags: []cli.Flag{configFlag, worldFlag, logLevelFlag},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "load or build the navmesh of a zone and store it in the cache",
				Flags:  []cli.Flag{requiredZone(), &cli.BoolFlag{Name: "rebuild", Usage: "ignore the cached navmesh"}},
				Action: buildAction,
			},
			{
				Name:  "path",
				Usage: "print the path between two points",
				Flags: []cli.Flag{
					requiredZone(),
					&cli.StringFlag{Name: "from", Usage: "start point x,y,z", Required: true},
					&cli.StringFlag{Name: "to", Usage: "end point x,y,z", Required: true},
					&cli.BoolFlag{Name: "fly", Usage: "search the flying volume"},
				},
				Action: pathAction,
			},
			{
				Name:  "dump",
				Usage: "write the navmesh of a zone as Wavefront OBJ",
				Flags: []cli.Flag{
					requiredZone(),
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file", Value: "navmesh.obj"},
					&cli.BoolFlag{Name: "surface-only", Usage: "leave out the flying volume"},
					&cli.StringFlag{Name: "from", Usage: "also dump the path from x,y,z (needs --to)"},
					&cli.StringFlag{Name: "to", Usage: "end point x,y,z of the dumped path"},
					&cli.BoolFlag{Name: "fly", Usage: "search the flying volume for the dumped path"},
				},
				Action: dumpAction,
			},
			{
				Name:   "run",
				Usage:  "tick a navmesh manager and read commands from stdin",
				Flags:  []cli.Flag{zoneFlag},
				Action: runAction,
			},
		},
	}
}

func requiredZone() cli.Flag {
	f := *zoneFlag
	f.Required = true
	return &f
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "vnavmesh:", err)
		os.Exit(1)
	}
}
