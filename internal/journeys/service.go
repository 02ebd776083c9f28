// Package journeys is the application layer: it records journeys, answers
// listing and dashboard queries and links return journeys.
package journeys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/railmiles/internal/apperr"
	"github.com/starford/railmiles/internal/distance"
	"github.com/starford/railmiles/internal/geojson"
	"github.com/starford/railmiles/internal/models"
	"github.com/starford/railmiles/internal/processor"
	"github.com/starford/railmiles/internal/store"
)

// PageSize is the number of journeys per listing page.
const PageSize = 20

const internalError = "Internal Server Error"

// ErrReturnExists is returned when a journey already has a return leg.
var ErrReturnExists = fmt.Errorf("return journey already exists: %w", apperr.ErrAlreadyExists)

// Distancer computes route distances.
type Distancer interface {
	Route(ctx context.Context, stops, services []string, date time.Time, progress distance.ProgressFunc) (*distance.Result, error)
}

// Events receives journey change notifications.
type Events interface {
	JourneyCreated(id string)
	JourneyDeleted(id string)
}

type noEvents struct{}

func (noEvents) JourneyCreated(string) {}
func (noEvents) JourneyDeleted(string) {}

// Deps are the collaborators of a Service. Events may be nil.
type Deps struct {
	Store      store.JourneyStore
	Distance   Distancer
	Processors *processor.Registry
	Stations   geojson.Lookup
	Events     Events
	Logger     *slog.Logger
}

// Service coordinates the store, distance lookups and station data.
type Service struct {
	store    store.JourneyStore
	dist     Distancer
	procs    *processor.Registry
	stations geojson.Lookup
	events   Events
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a journey service.
func NewService(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		dist:     d.Distance,
		procs:    d.Processors,
		stations: d.Stations,
		events:   d.Events,
		logger:   d.Logger,
		now:      time.Now,
	}
	if s.events == nil {
		s.events = noEvents{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Stats groups the dashboard statistics windows.
type Stats struct {
	LastMonth *models.JourneyStats `json:"lastMonth"`
	YTD       *models.JourneyStats `json:"ytd"`
	AllTime   *models.JourneyStats `json:"allTime"`
}

// Dashboard is the home page payload.
type Dashboard struct {
	GeoJSON  *geojson.FeatureCollection `json:"geoJSON"`
	Stats    Stats                      `json:"stats"`
	Journeys []*models.Journey          `json:"journeys"`
}

// Page is one page of the journey listing.
type Page struct {
	NumPages   int               `json:"numPages"`
	PageNumber int               `json:"pageNumber"`
	Data       []*models.Journey `json:"data"`
}

// Detail is a single journey with its map.
type Detail struct {
	GeoJSON *geojson.FeatureCollection `json:"geoJSON"`
	Data    *models.Journey            `json:"data"`
}

// StationInfo describes a station for lookups.
type StationInfo struct {
	Code string  `json:"code"`
	Name string  `json:"name"`
	Lat  float32 `json:"lat"`
	Lon  float32 `json:"lon"`
}

// Dashboard returns the last month's journeys and the statistics windows.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	journeys, err := s.store.ListJourneys(ctx, store.ListQuery{Since: models.LastMonth})
	if err != nil {
		return nil, fmt.Errorf("journeys: last month: %w", err)
	}
	if journeys == nil {
		journeys = []*models.Journey{}
	}

	fc, err := s.geoJSON(ctx, journeys, false)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{GeoJSON: fc, Journeys: journeys}
	if d.Stats, err = s.Stats(ctx); err != nil {
		return nil, err
	}
	PopulateFullStationNames(journeys, s.stations)
	return d, nil
}

// Stats returns journey statistics for every window.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	for _, w := range []struct {
		since models.Since
		dst   **models.JourneyStats
	}{
		{models.LastMonth, &out.LastMonth},
		{models.YearToDate, &out.YTD},
		{models.AllTime, &out.AllTime},
	} {
		st, err := s.store.Stats(ctx, w.since)
		if err != nil {
			return Stats{}, fmt.Errorf("journeys: %s stats: %w", w.since, err)
		}
		*w.dst = st
	}
	return out, nil
}

// List returns page number page (zero based) of the journeys inside since,
// newest first. Pages beyond the end have no data.
func (s *Service) List(ctx context.Context, page int, since models.Since) (*Page, error) {
	if page < 0 {
		page = 0
	}
	all, err := s.store.Stats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("journeys: count: %w", err)
	}

	p := &Page{
		NumPages:   all.Count/PageSize + 1,
		PageNumber: page,
		Data:       []*models.Journey{},
	}
	if page*PageSize > all.Count {
		return p, nil
	}

	journeys, err := s.store.ListJourneys(ctx, store.ListQuery{Since: since, Offset: page * PageSize, Limit: PageSize})
	if err != nil {
		return nil, fmt.Errorf("journeys: page %d: %w", page, err)
	}
	if journeys != nil {
		p.Data = journeys
	}
	PopulateFullStationNames(p.Data, s.stations)
	return p, nil
}

// Get returns a journey with a map that includes its via stations.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	j, err := s.store.GetJourney(ctx, id)
	if err != nil {
		return nil, err
	}
	fc, err := s.geoJSON(ctx, []*models.Journey{j}, true)
	if err != nil {
		return nil, err
	}
	PopulateFullStationNames([]*models.Journey{j}, s.stations)
	return &Detail{GeoJSON: fc, Data: j}, nil
}

// Delete removes a journey.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteJourney(ctx, id); err != nil {
		return err
	}
	s.logger.Info("journey deleted", slog.String("journey", id.String()))
	s.events.JourneyDeleted(id.String())
	return nil
}

// CreateReturn records the reverse of journey id on the same date and links
// the two. It fails with ErrReturnExists if a return is already linked.
func (s *Service) CreateReturn(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	source, err := s.store.GetJourney(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if source.ReturnID != nil {
		return uuid.Nil, ErrReturnExists
	}
	route, err := s.store.CallingPoints(ctx, id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("journeys: calling points: %w", err)
	}
	return s.createReturn(ctx, source, route)
}

func (s *Service) createReturn(ctx context.Context, source *models.Journey, route []string) (uuid.UUID, error) {
	stops := source.Stops()
	slices.Reverse(stops)

	reversed := slices.Clone(route)
	slices.Reverse(reversed)

	sourceID := source.ID
	ret := &models.Journey{
		ID:       uuid.New(),
		From:     &models.StationName{Shortcode: stops[0]},
		To:       &models.StationName{Shortcode: stops[len(stops)-1]},
		Via:      models.Stations(stops[1 : len(stops)-1]),
		Distance: source.Distance,
		Date:     source.Date,
		ReturnID: &sourceID,
	}
	if err := s.store.InsertReturnJourney(ctx, source, ret, reversed); err != nil {
		return uuid.Nil, err
	}
	s.events.JourneyCreated(ret.ID.String())
	return ret.ID, nil
}

// Station looks up a station by CRS code.
func (s *Service) Station(code string) (*StationInfo, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	d := s.stations.Detail(code)
	if d == nil {
		return nil, fmt.Errorf("station %q: %w", code, apperr.ErrNotFound)
	}
	return &StationInfo{Code: code, Name: d.Name, Lat: d.Lat, Lon: d.Lon}, nil
}

// Processor returns a running or recently finished submission.
func (s *Service) Processor(id uuid.UUID) (*processor.Job, error) {
	job, ok := s.procs.Get(id)
	if !ok {
		return nil, fmt.Errorf("processor %s: %w", id, apperr.ErrNotFound)
	}
	return job, nil
}

func (s *Service) geoJSON(ctx context.Context, journeys []*models.Journey, includeIntermediaries bool) (*geojson.FeatureCollection, error) {
	routes := make(map[uuid.UUID][]string, len(journeys))
	for _, j := range journeys {
		calls, err := s.store.CallingPoints(ctx, j.ID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("journeys: calling points for %s: %w", j.ID, err)
		}
		routes[j.ID] = calls
	}
	return geojson.Build(journeys, routes, includeIntermediaries, s.stations), nil
}

// PopulateFullStationNames fills in the display names of every station
// referenced by journeys.
func PopulateFullStationNames(journeys []*models.Journey, lookup geojson.Lookup) {
	for _, j := range journeys {
		j.From.Full = lookup.Name(j.From.Shortcode)
		j.To.Full = lookup.Name(j.To.Shortcode)
		for _, v := range j.Via {
			v.Full = lookup.Name(v.Shortcode)
		}
	}
}
