// Package stations provides CRS-code lookups for station names and locations.
package stations

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

//go:embed data/stations.json
var defaultData []byte

// Detail describes a single station.
type Detail struct {
	Name string  `json:"name"`
	Lat  float32 `json:"lat"`
	Lon  float32 `json:"lon"`
}

// Registry is a concurrency-safe, reloadable station dataset.
type Registry struct {
	mu       sync.RWMutex
	data     map[string]*Detail
	checksum string
}

// NewRegistry returns a registry populated with the embedded dataset.
func NewRegistry() (*Registry, error) {
	r := &Registry{}
	if _, err := r.Load(defaultData); err != nil {
		return nil, fmt.Errorf("stations: embedded data: %w", err)
	}
	return r, nil
}

// Load replaces the dataset with the JSON in raw. It reports false without
// touching state when raw is identical to what is already loaded.
func (r *Registry) Load(raw []byte) (bool, error) {
	sum := sha256.Sum256(raw)
	cs := hex.EncodeToString(sum[:])

	r.mu.RLock()
	same := cs == r.checksum
	r.mu.RUnlock()
	if same {
		return false, nil
	}

	var parsed map[string]*Detail
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return false, fmt.Errorf("stations: decode: %w", err)
	}
	if len(parsed) == 0 {
		return false, fmt.Errorf("stations: dataset is empty")
	}
	data := make(map[string]*Detail, len(parsed))
	for code, d := range parsed {
		if d == nil {
			continue
		}
		data[strings.ToUpper(code)] = d
	}

	r.mu.Lock()
	r.data = data
	r.checksum = cs
	r.mu.Unlock()
	return true, nil
}

// LoadFile loads a dataset from disk.
func (r *Registry) LoadFile(path string) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("stations: read %s: %w", path, err)
	}
	return r.Load(raw)
}

// Detail returns the station for code, or nil when unknown.
func (r *Registry) Detail(code string) *Detail {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data[strings.ToUpper(code)]
}

// Name returns the full station name, falling back to the code itself.
func (r *Registry) Name(code string) string {
	if d := r.Detail(code); d != nil && d.Name != "" {
		return d.Name
	}
	return code
}

// Len returns the number of known stations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
