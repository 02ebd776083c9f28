package journeys

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/starford/railmiles/internal/apperr"
	"github.com/starford/railmiles/internal/distance"
	"github.com/starford/railmiles/internal/models"
	"github.com/starford/railmiles/internal/processor"
	"github.com/starford/railmiles/internal/stations"
	"github.com/starford/railmiles/internal/store"
	"github.com/starford/railmiles/internal/testutil"
)

type fakeDistancer struct {
	res      *distance.Result
	err      error
	services []string
}

func (f *fakeDistancer) Route(_ context.Context, stops, services []string, _ time.Time, progress distance.ProgressFunc) (*distance.Result, error) {
	f.services = append([]string(nil), services...)
	progress("Searching for a service from " + stops[0] + " to " + stops[1])
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type recorder struct {
	mu      sync.Mutex
	created []string
	deleted []string
}

func (r *recorder) JourneyCreated(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, id)
}

func (r *recorder) JourneyDeleted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	svc    *Service
	db     *store.DB
	dist   *fakeDistancer
	events *recorder
	logs   *lockedBuffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := stations.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	procs := processor.NewRegistry(processor.Options{}, testutil.Logger())
	t.Cleanup(procs.Close)

	f := &fixture{
		db:     testutil.TestStore(t),
		dist:   &fakeDistancer{res: &distance.Result{Distance: 158.25, Route: []string{"WFJ", "MKC", "RUG"}}},
		events: &recorder{},
		logs:   &lockedBuffer{},
	}
	f.svc = NewService(Deps{
		Store:      f.db,
		Distance:   f.dist,
		Processors: procs,
		Stations:   reg,
		Events:     f.events,
		Logger:     slog.New(slog.NewJSONHandler(f.logs, nil)),
	})
	return f
}

func (f *fixture) await(t *testing.T, id uuid.UUID) []processor.Event {
	t.Helper()
	job, err := f.svc.Processor(id)
	if err != nil {
		t.Fatalf("Processor: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var events []processor.Event
	if err := job.Stream(ctx, func(ev processor.Event) error {
		events = append(events, ev)
		return nil
	}); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	return events
}

func route(codes ...string) [][]string {
	out := make([][]string, len(codes))
	for i, c := range codes {
		out[i] = []string{c, ""}
	}
	return out
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	yesterday := now.AddDate(0, 0, -1)

	tests := []struct {
		name    string
		req     NewJourneyRequest
		wantMsg string
	}{
		{"future date", NewJourneyRequest{Date: now.Add(48 * time.Hour), Route: route("EUS", "MAN")}, ""},
		{"missing date", NewJourneyRequest{Route: route("EUS", "MAN")}, ""},
		{"single stop", NewJourneyRequest{Date: now, Route: route("EUS")}, ""},
		{"bad station code", NewJourneyRequest{Date: now, Route: route("EUS", "MANC")}, ""},
		{"negative manual distance", NewJourneyRequest{Date: now, Route: route("EUS", "MAN"), ManualDistance: -1}, ""},
		{
			"service uids required on another day",
			NewJourneyRequest{Date: yesterday, Route: route("EUS", "MAN")},
			"Service UIDs required as services were run on a different day to today",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), &tt.req)
			if !errors.Is(err, apperr.ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
			if tt.wantMsg != "" && err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestSubmit_OtherDayWithServices(t *testing.T) {
	f := newFixture(t)
	req := &NewJourneyRequest{
		Date:  time.Now().UTC().AddDate(0, 0, -3),
		Route: [][]string{{"eus", " W12345 "}, {"MAN"}},
	}
	id, err := f.svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.await(t, id)
	if diff := cmp.Diff([]string{"W12345", ""}, f.dist.services); diff != "" {
		t.Errorf("services (-want +got):\n%s", diff)
	}
}

func TestSubmit_ManualDistanceSkipsLookup(t *testing.T) {
	f := newFixture(t)
	f.dist.err = errors.New("must not be called")
	req := &NewJourneyRequest{Date: time.Now().UTC().AddDate(0, 0, -10), Route: route("EUS", "CRE", "MAN"), ManualDistance: 183.5}

	id, err := f.svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	events := f.await(t, id)
	last := events[len(events)-1]
	if last.Kind != processor.KindFinished {
		t.Fatalf("last event = %+v", last)
	}
	j, err := f.db.GetJourney(context.Background(), uuid.MustParse(last.Data))
	if err != nil {
		t.Fatal(err)
	}
	if j.Distance != 183.5 || len(j.Via) != 1 || j.Via[0].Shortcode != "CRE" {
		t.Errorf("journey = %+v", j)
	}
}

func TestSubmit_RecordsJourney(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.svc.Submit(ctx, &NewJourneyRequest{Date: time.Now().UTC(), Route: route("EUS", "CRE")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	events := f.await(t, id)
	if len(events) != 2 || events[0].Kind != processor.KindProgress || events[1].Kind != processor.KindFinished {
		t.Fatalf("events = %+v", events)
	}
	jid := uuid.MustParse(events[1].Data)

	j, err := f.db.GetJourney(ctx, jid)
	if err != nil {
		t.Fatal(err)
	}
	if j.From.Shortcode != "EUS" || j.To.Shortcode != "CRE" || j.Distance != 158.25 {
		t.Errorf("journey = %+v", j)
	}
	calls, _ := f.db.CallingPoints(ctx, jid)
	if diff := cmp.Diff([]string{"WFJ", "MKC", "RUG"}, calls); diff != "" {
		t.Errorf("calling points (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{jid.String()}, f.events.created); diff != "" {
		t.Errorf("created events (-want +got):\n%s", diff)
	}
}

func TestSubmit_LogsReadableDistance(t *testing.T) {
	f := newFixture(t)
	f.dist.res = &distance.Result{Distance: 1234.5, Route: []string{}}
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	id, err := f.svc.Submit(context.Background(), &NewJourneyRequest{
		Date:  date,
		Route: [][]string{{"EUS", "W1"}, {"MAN"}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.await(t, id)

	logs := f.logs.String()
	for _, want := range []string{`"msg":"journey recorded"`, `"date":"5 Mar 2024"`, `"miles":"1,234.50"`} {
		if !strings.Contains(logs, want) {
			t.Errorf("log output missing %s:\n%s", want, logs)
		}
	}
}

func TestSubmit_WithReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.svc.Submit(ctx, &NewJourneyRequest{Date: time.Now().UTC(), Route: route("EUS", "CRE"), IsReturn: true})
	if err != nil {
		t.Fatal(err)
	}
	events := f.await(t, id)
	jid := uuid.MustParse(events[len(events)-1].Data)

	j, _ := f.db.GetJourney(ctx, jid)
	if j.ReturnID == nil {
		t.Fatal("outbound journey not linked to a return")
	}
	ret, err := f.db.GetJourney(ctx, *j.ReturnID)
	if err != nil {
		t.Fatal(err)
	}
	if ret.From.Shortcode != "CRE" || ret.To.Shortcode != "EUS" || ret.ReturnID == nil || *ret.ReturnID != jid {
		t.Errorf("return journey = %+v", ret)
	}
	if len(f.events.created) != 2 {
		t.Errorf("created events = %v", f.events.created)
	}
}

func TestSubmit_DistanceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"user error", apperr.User("manual distance required"), "Unable to fetch distance: manual distance required"},
		{"internal error", errors.New("connection refused"), "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.dist.err = tt.err
			id, err := f.svc.Submit(context.Background(), &NewJourneyRequest{Date: time.Now().UTC(), Route: route("EUS", "CRE")})
			if err != nil {
				t.Fatal(err)
			}
			events := f.await(t, id)
			last := events[len(events)-1]
			if last.Kind != processor.KindError || last.Data != tt.want {
				t.Errorf("last event = %+v, want error %q", last, tt.want)
			}
			if len(f.events.created) != 0 {
				t.Error("no journey should have been announced")
			}
		})
	}
}

func insertJourneys(t *testing.T, db *store.DB, n int, date time.Time) []*models.Journey {
	t.Helper()
	out := make([]*models.Journey, n)
	for i := range out {
		out[i] = &models.Journey{
			ID:       uuid.New(),
			From:     &models.StationName{Shortcode: "EUS"},
			To:       &models.StationName{Shortcode: "MAN"},
			Distance: 10,
			Date:     date.Add(-time.Duration(i) * time.Hour),
		}
		if err := db.InsertJourney(context.Background(), out[i]); err != nil {
			t.Fatal(err)
		}
	}
	return out
}

func TestList_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	insertJourneys(t, f.db, 25, time.Now().UTC().Truncate(time.Second))

	p0, err := f.svc.List(ctx, 0, models.AllTime)
	if err != nil {
		t.Fatal(err)
	}
	if p0.NumPages != 2 || len(p0.Data) != PageSize {
		t.Errorf("page 0: numPages=%d len=%d", p0.NumPages, len(p0.Data))
	}
	if p0.Data[0].From.Full != "London Euston" {
		t.Errorf("full station name not populated: %+v", p0.Data[0].From)
	}

	p1, _ := f.svc.List(ctx, 1, models.AllTime)
	if len(p1.Data) != 5 || p1.PageNumber != 1 {
		t.Errorf("page 1: %+v", p1)
	}

	p9, _ := f.svc.List(ctx, 9, models.AllTime)
	if p9.Data == nil || len(p9.Data) != 0 {
		t.Errorf("out of range page should have empty non-nil data, got %v", p9.Data)
	}
}

func TestList_Since(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	insertJourneys(t, f.db, 3, time.Now().UTC().Truncate(time.Second))
	insertJourneys(t, f.db, 2, time.Now().UTC().AddDate(-2, 0, 0))

	p, err := f.svc.List(ctx, 0, models.LastMonth)
	if err != nil {
		t.Fatal(err)
	}
	if p.NumPages != 1 || len(p.Data) != 3 {
		t.Errorf("last month: numPages=%d len=%d", p.NumPages, len(p.Data))
	}
	all, _ := f.svc.List(ctx, 0, models.AllTime)
	if len(all.Data) != 5 {
		t.Errorf("all time len = %d, want 5", len(all.Data))
	}
}

func TestCreateReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := &models.Journey{
		ID:       uuid.New(),
		From:     &models.StationName{Shortcode: "EUS"},
		To:       &models.StationName{Shortcode: "MAN"},
		Via:      models.Stations([]string{"MKC", "CRE"}),
		Distance: 183.5,
		Date:     time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := f.db.InsertJourney(ctx, src); err != nil {
		t.Fatal(err)
	}
	if err := f.db.InsertRoute(ctx, src.ID, []string{"WFJ", "MKC", "CRE", "SPT"}); err != nil {
		t.Fatal(err)
	}

	retID, err := f.svc.CreateReturn(ctx, src.ID)
	if err != nil {
		t.Fatalf("CreateReturn: %v", err)
	}
	ret, _ := f.db.GetJourney(ctx, retID)
	if diff := cmp.Diff([]string{"MAN", "CRE", "MKC", "EUS"}, ret.Stops()); diff != "" {
		t.Errorf("return stops (-want +got):\n%s", diff)
	}
	calls, _ := f.db.CallingPoints(ctx, retID)
	if diff := cmp.Diff([]string{"SPT", "CRE", "MKC", "WFJ"}, calls); diff != "" {
		t.Errorf("return route (-want +got):\n%s", diff)
	}
	if !ret.Date.Equal(src.Date) || ret.Distance != src.Distance {
		t.Errorf("return journey = %+v", ret)
	}

	if _, err := f.svc.CreateReturn(ctx, src.ID); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("second return err = %v, want ErrAlreadyExists", err)
	}
	if _, err := f.svc.CreateReturn(ctx, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown journey err = %v, want ErrNotFound", err)
	}
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.svc.Dashboard(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Journeys == nil || empty.Stats.AllTime.Count != 0 {
		t.Errorf("empty dashboard = %+v", empty)
	}

	insertJourneys(t, f.db, 3, time.Now().UTC().Truncate(time.Second))
	insertJourneys(t, f.db, 1, time.Now().UTC().AddDate(-2, 0, 0))

	d, err := f.svc.Dashboard(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Journeys) != 3 {
		t.Errorf("last month journeys = %d, want 3", len(d.Journeys))
	}
	if d.Stats.LastMonth.Count != 3 || d.Stats.AllTime.Count != 4 || d.Stats.AllTime.Miles != 40 {
		t.Errorf("stats = %+v %+v", d.Stats.LastMonth, d.Stats.AllTime)
	}
	if len(d.GeoJSON.Features) == 0 {
		t.Error("dashboard map is empty")
	}
}

func TestGetAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := insertJourneys(t, f.db, 1, time.Now().UTC().Truncate(time.Second))[0]

	d, err := f.svc.Get(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Data.ID != j.ID || d.Data.To.Full != "Manchester Piccadilly" {
		t.Errorf("detail = %+v", d.Data)
	}

	if err := f.svc.Delete(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Get(ctx, j.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	if err := f.svc.Delete(ctx, j.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
	if diff := cmp.Diff([]string{j.ID.String()}, f.events.deleted); diff != "" {
		t.Errorf("deleted events (-want +got):\n%s", diff)
	}
}

func TestStation(t *testing.T) {
	f := newFixture(t)
	st, err := f.svc.Station("eus")
	if err != nil {
		t.Fatal(err)
	}
	if st.Code != "EUS" || st.Name != "London Euston" {
		t.Errorf("station = %+v", st)
	}
	if _, err := f.svc.Station("QQQ"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown station err = %v", err)
	}
}
