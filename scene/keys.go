package scene

import (
	"fmt"
	"strings"
)

// LiveKey formats the cheap per-tick identity of a region:
// "{bg}//{filter}//{f0}.{f1}.{f2}.{f3}" with hex numbers.
func LiveKey(bg string, filterKey uint32, festivals [4]uint32) string {
	return fmt.Sprintf("%s//%X//%X.%X.%X.%X", bg, filterKey, festivals[0], festivals[1], festivals[2], festivals[3])
}

// CacheKey derives a filename-safe cache identity from a snapshot. Festivals
// are global, but only the layers the zone actually has are part of the key,
// so most zones share one entry across festival changes.
func CacheKey(s *Snapshot) string {
	layers := make([]string, len(s.FestivalLayers))
	for i, id := range s.FestivalLayers {
		layers[i] = fmt.Sprintf("%X", id)
	}
	bg := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(s.Bg)
	return fmt.Sprintf("%s__%X__%s", bg, s.FilterKey, strings.Join(layers, "."))
}
