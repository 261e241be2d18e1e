package main

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/gorustyt/vnavmesh/cache"
	"github.com/gorustyt/vnavmesh/common/logger"
	"github.com/gorustyt/vnavmesh/config"
	"github.com/gorustyt/vnavmesh/navmesh"
	"github.com/gorustyt/vnavmesh/scene"
)

// env is everything a command needs: configuration, logger, world, cache
// and a manager wired to them.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	world    *scene.StaticWorld
	cache    *cache.Cache
	registry *prometheus.Registry
	mgr      *navmesh.Manager
	closers  []io.Closer
}

type envOptions struct {
	rebuild bool // bypass cache reads for the first load
}

func newEnv(c *cli.Context, opts envOptions) (*env, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	if lvl := c.String(logLevelFlag.Name); lvl != "" {
		cfg.Log.Level = lvl
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: log, registry: prometheus.NewRegistry()}

	e.world, err = scene.LoadWorld(c.String(worldFlag.Name))
	if err != nil {
		return nil, e.fail(err)
	}
	if zone := c.String(zoneFlag.Name); zone != "" {
		if err := e.world.SetZone(zone); err != nil {
			return nil, e.fail(err)
		}
	}

	store, err := e.openStore()
	if err != nil {
		return nil, e.fail(err)
	}
	if e.cache, err = cache.New(store, log); err != nil {
		return nil, e.fail(err)
	}
	metrics, err := navmesh.NewMetrics(e.registry)
	if err != nil {
		return nil, e.fail(err)
	}

	var navCache navmesh.Cache = e.cache
	if opts.rebuild {
		navCache = writeOnlyCache{e.cache}
	}
	e.mgr = navmesh.New(e.world, navmesh.Options{
		Cache:            navCache,
		Customizations:   cfg.Registry(),
		Logger:           log,
		Metrics:          metrics,
		AutoLoad:         cfg.Navmesh.AutoLoad,
		UseRaycasts:      cfg.Navmesh.UseRaycasts,
		UseStringPulling: cfg.Navmesh.UseStringPulling,
	})
	return e, nil
}

func (e *env) openStore() (cache.Store, error) {
	switch e.cfg.Cache.Backend {
	case config.BackendSQLite:
		s, err := cache.OpenSQLite(e.cfg.Cache.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite cache")
		}
		e.closers = append(e.closers, s)
		return s, nil
	default:
		return cache.NewFileStore(e.cfg.Cache.Dir)
	}
}

func (e *env) fail(err error) error {
	e.Close()
	return err
}

func (e *env) Close() {
	if e.mgr != nil {
		e.mgr.Close()
	}
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			e.log.Warn("close failed", zap.Error(err))
		}
	}
	_ = e.log.Sync()
}

// writeOnlyCache hides existing entries so the manager rebuilds, while still
// storing the result.
type writeOnlyCache struct {
	navmesh.Cache
}

func (writeOnlyCache) Exists(string) bool { return false }

// waitReady ticks m until its navmesh is ready or the load fails.
func waitReady(ctx context.Context, m *navmesh.Manager, interval time.Duration, progress func(float32)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := float32(-1)
	for {
		m.Update()
		switch m.State() {
		case navmesh.Ready:
			return nil
		case navmesh.Unloaded:
			if err := m.LastError(); err != nil {
				return err
			}
		case navmesh.Loading:
			if p := m.LoadTaskProgress(); p != last && progress != nil {
				progress(p)
				last = p
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitTask ticks m until t resolves.
func waitTask(ctx context.Context, m *navmesh.Manager, t *navmesh.PathTask, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m.Update()
		select {
		case <-t.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
