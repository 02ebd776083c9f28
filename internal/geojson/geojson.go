// Package geojson renders journeys as GeoJSON for the map views.
package geojson

import (
	"github.com/google/uuid"

	"github.com/starford/railmiles/internal/models"
	"github.com/starford/railmiles/internal/stations"
)

// FeatureCollection is a GeoJSON root object.
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   Geometry       `json:"geometry"`
}

// Geometry is either a Point ([lon, lat]) or a LineString ([][lon, lat]).
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// Lookup resolves station codes to locations.
type Lookup interface {
	Detail(code string) *stations.Detail
	Name(code string) string
}

type stationRef struct {
	code string
	kind string
}

// Build returns one LineString per journey, drawn through its stored calling
// points, followed by one Point per distinct origin and destination station.
// When includeIntermediaries is set, via stations are added as points typed
// "intermediary". Journeys whose origin or destination cannot be located are
// left out; unknown calling points are skipped.
func Build(journeys []*models.Journey, routes map[uuid.UUID][]string, includeIntermediaries bool, lookup Lookup) *FeatureCollection {
	fc := &FeatureCollection{Type: "FeatureCollection", Features: []*Feature{}}

	for _, j := range journeys {
		if f := lineFor(j, routes[j.ID], lookup); f != nil {
			fc.Features = append(fc.Features, f)
		}
	}

	seen := make(map[stationRef]struct{})
	var refs []stationRef
	add := func(r stationRef) {
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		refs = append(refs, r)
	}
	for _, j := range journeys {
		add(stationRef{code: j.To.Shortcode})
		add(stationRef{code: j.From.Shortcode})
		if includeIntermediaries {
			for _, v := range j.Via {
				add(stationRef{code: v.Shortcode, kind: "intermediary"})
			}
		}
	}

	for _, r := range refs {
		d := lookup.Detail(r.code)
		if d == nil {
			continue
		}
		props := map[string]any{"name": r.code + " " + lookup.Name(r.code)}
		if r.kind != "" {
			props["type"] = r.kind
		}
		fc.Features = append(fc.Features, &Feature{
			Type:       "Feature",
			Properties: props,
			Geometry:   Geometry{Type: "Point", Coordinates: []float32{d.Lon, d.Lat}},
		})
	}
	return fc
}

func lineFor(j *models.Journey, route []string, lookup Lookup) *Feature {
	points := make([]string, 0, len(route)+2)
	points = append(points, j.From.Shortcode)
	points = append(points, route...)
	points = append(points, j.To.Shortcode)

	last := len(points) - 1
	coords := make([][]float32, 0, len(points))
	for i, code := range points {
		d := lookup.Detail(code)
		if d == nil {
			if i == 0 || i == last {
				return nil
			}
			continue
		}
		coords = append(coords, []float32{d.Lon, d.Lat})
	}
	return &Feature{
		Type:       "Feature",
		Properties: map[string]any{"id": j.ID.String()},
		Geometry:   Geometry{Type: "LineString", Coordinates: coords},
	}
}
