package scene

import (
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotReady    = errors.New("scene: world is not ready")
	ErrUnknownZone = errors.New("scene: unknown zone")
)

// FestivalLayer is extra geometry present while a festival is active.
type FestivalLayer struct {
	ID        uint32     `yaml:"id"`
	Colliders []Collider `yaml:"colliders"`
}

// Zone is one region of a StaticWorld.
type Zone struct {
	Name      string          `yaml:"name"`
	Territory uint32          `yaml:"territory"`
	Bg        string          `yaml:"bg"`
	Colliders []Collider      `yaml:"colliders"`
	Festivals []FestivalLayer `yaml:"festivals"`
}

type worldFile struct {
	Zones []*Zone `yaml:"zones"`
}

// StaticWorld is a World backed by a fixed set of zones. The active zone,
// layout filter, festivals and readiness are switched from the outside, which
// stands in for the game client moving between areas.
type StaticWorld struct {
	mu        sync.Mutex
	zones     map[string]*Zone
	active    *Zone
	ready     bool
	filterKey uint32
	festivals [4]uint32
}

func NewStaticWorld(zones ...*Zone) *StaticWorld {
	w := &StaticWorld{zones: make(map[string]*Zone, len(zones))}
	for _, z := range zones {
		w.zones[z.Name] = z
	}
	return w
}

// LoadWorld reads zones from a YAML file.
func LoadWorld(path string) (*StaticWorld, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read world file")
	}
	var f worldFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "parse world file %s", path)
	}
	for _, z := range f.Zones {
		if z.Name == "" || z.Bg == "" {
			return nil, errors.Errorf("world file %s: zone needs name and bg", path)
		}
	}
	return NewStaticWorld(f.Zones...), nil
}

// SetZone activates a zone; the world stays ready. An empty name leaves the
// world without an active zone.
func (w *StaticWorld) SetZone(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if name == "" {
		w.active = nil
		return nil
	}
	z, ok := w.zones[name]
	if !ok {
		return errors.Wrap(ErrUnknownZone, name)
	}
	w.active = z
	w.ready = true
	return nil
}

// SetReady toggles whether the active layout is fully initialised.
func (w *StaticWorld) SetReady(ready bool) {
	w.mu.Lock()
	w.ready = ready
	w.mu.Unlock()
}

func (w *StaticWorld) SetFilter(key uint32) {
	w.mu.Lock()
	w.filterKey = key
	w.mu.Unlock()
}

func (w *StaticWorld) SetFestivals(festivals [4]uint32) {
	w.mu.Lock()
	w.festivals = festivals
	w.mu.Unlock()
}

func (w *StaticWorld) Zones() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.zones))
	for name := range w.zones {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (w *StaticWorld) LiveKey() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.ready || w.active == nil {
		return ""
	}
	return LiveKey(w.active.Bg, w.filterKey, w.festivals)
}

func (w *StaticWorld) CaptureScene() (*Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.ready || w.active == nil {
		return nil, ErrNotReady
	}
	z := w.active
	s := &Snapshot{
		TerritoryID: z.Territory,
		Bg:          z.Bg,
		FilterKey:   w.filterKey,
		Colliders:   append([]Collider(nil), z.Colliders...),
	}
	for _, id := range w.festivals {
		if id == 0 {
			continue
		}
		for _, layer := range z.Festivals {
			if layer.ID == id {
				s.FestivalLayers = append(s.FestivalLayers, id)
				s.Colliders = append(s.Colliders, layer.Colliders...)
			}
		}
	}
	return s, nil
}

func (w *StaticWorld) CacheKey(s *Snapshot) string {
	return CacheKey(s)
}
