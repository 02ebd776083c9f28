package stations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/carlmjohnson/requests"
)

// DefaultOverpassURL is the public Overpass API interpreter endpoint.
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

const overpassQuery = `[out:json][timeout:25];
(node["ref:crs"];);
out body;`

type overpassResponse struct {
	Elements []struct {
		Lat  float32           `json:"lat"`
		Lon  float32           `json:"lon"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// FetchOverpass queries OpenStreetMap for every node tagged with a CRS code
// and returns the dataset keyed by upper-case code.
func FetchOverpass(ctx context.Context, endpoint string) (map[string]*Detail, error) {
	if endpoint == "" {
		endpoint = DefaultOverpassURL
	}
	var resp overpassResponse
	err := requests.
		URL(endpoint).
		BodyForm(url.Values{"data": {overpassQuery}}).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("stations: query overpass: %w", err)
	}

	out := make(map[string]*Detail)
	for _, el := range resp.Elements {
		crs := strings.ToUpper(strings.TrimSpace(el.Tags["ref:crs"]))
		if crs == "" {
			continue
		}
		out[crs] = &Detail{
			Name: el.Tags["name"],
			Lat:  el.Lat,
			Lon:  el.Lon,
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("stations: overpass returned no stations")
	}
	return out, nil
}

// Bootstrap writes a full dataset from Overpass to path when no file exists
// there yet. It reports whether a file was created.
func Bootstrap(ctx context.Context, path, endpoint string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stations: stat %s: %w", path, err)
	}
	data, err := FetchOverpass(ctx, endpoint)
	if err != nil {
		return false, err
	}
	if err := WriteFile(path, data); err != nil {
		return false, err
	}
	return true, nil
}

// WriteFile atomically writes data as JSON to path: tmp file, fsync, rename.
func WriteFile(path string, data map[string]*Detail) error {
	raw, err := json.MarshalIndent(data, "", " ")
	if err != nil {
		return fmt.Errorf("stations: encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("stations: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".railmiles-stations-*")
	if err != nil {
		return fmt.Errorf("stations: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(raw); err != nil {
		return fmt.Errorf("stations: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("stations: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stations: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("stations: rename: %w", err)
	}
	success = true
	return nil
}
