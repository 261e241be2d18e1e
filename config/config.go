// Package config loads the vnavmesh YAML configuration.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gorustyt/vnavmesh/recast"
)

const envPrefix = "VNAVMESH"

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Config struct {
	Cache                Cache                  `yaml:"cache"`
	Navmesh              Navmesh                `yaml:"navmesh"`
	Log                  Log                    `yaml:"log"`
	TickInterval         time.Duration          `yaml:"tick_interval"`
	MetricsAddr          string                 `yaml:"metrics_addr"`
	DefaultCustomization recast.Customization   `yaml:"default_customization"`
	Customizations       []recast.Customization `yaml:"customizations"`
}

type Cache struct {
	Dir        string `yaml:"dir"`
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

type Navmesh struct {
	AutoLoad         bool `yaml:"auto_load"`
	UseRaycasts      bool `yaml:"use_raycasts"`
	UseStringPulling bool `yaml:"use_string_pulling"`
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func Default() *Config {
	return &Config{
		Cache: Cache{
			Dir:     "navmeshcache",
			Backend: BackendFile,
		},
		Navmesh: Navmesh{
			AutoLoad:         true,
			UseRaycasts:      true,
			UseStringPulling: true,
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		TickInterval:         50 * time.Millisecond,
		DefaultCustomization: recast.DefaultCustomization(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if val := os.Getenv(envPrefix + "_CACHE_DIR"); val != "" {
		c.Cache.Dir = val
	}
	if val := os.Getenv(envPrefix + "_CACHE_BACKEND"); val != "" {
		c.Cache.Backend = val
	}
	if val := os.Getenv(envPrefix + "_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv(envPrefix + "_METRICS_ADDR"); val != "" {
		c.MetricsAddr = val
	}
}

func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendFile:
		if c.Cache.Dir == "" {
			return errors.New("config: cache.dir is required for the file backend")
		}
	case BackendSQLite:
		if c.Cache.SQLitePath == "" {
			return errors.New("config: cache.sqlite_path is required for the sqlite backend")
		}
	default:
		return errors.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.TickInterval <= 0 {
		return errors.Errorf("config: tick_interval must be positive, got %v", c.TickInterval)
	}
	if err := c.DefaultCustomization.Validate(); err != nil {
		return errors.Wrap(err, "config: default_customization")
	}
	seen := make(map[uint32]bool, len(c.Customizations))
	for _, cust := range c.Customizations {
		if seen[cust.Territory] {
			return errors.Errorf("config: duplicate customization for territory %d", cust.Territory)
		}
		seen[cust.Territory] = true
		if err := cust.Validate(); err != nil {
			return errors.Wrapf(err, "config: customization for territory %d", cust.Territory)
		}
	}
	return nil
}

// Registry returns the customization registry described by the config.
func (c *Config) Registry() *recast.Registry {
	return recast.NewRegistry(c.DefaultCustomization, c.Customizations...)
}
