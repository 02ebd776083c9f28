package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/railmiles/internal/sse"
	"github.com/starford/railmiles/internal/stations"
	"github.com/starford/railmiles/internal/testutil"
)

func TestReadyHandler(t *testing.T) {
	reg, err := stations.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	svc := &services{db: testutil.TestStore(t), stations: reg, broker: broker}

	w := httptest.NewRecorder()
	readyHandler(svc)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body readiness
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.SSEClients != 1 || body.Stations != reg.Len() {
		t.Errorf("body = %+v", body)
	}
}

func TestReadyHandler_StoreDown(t *testing.T) {
	reg, _ := stations.NewRegistry()
	broker := sse.NewBroker(time.Second)
	defer broker.Close()

	db := testutil.TestStore(t)
	_ = db.Close()
	svc := &services{db: db, stations: reg, broker: broker}

	w := httptest.NewRecorder()
	readyHandler(svc)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestRun_RequiresRealTimeTrainsCredentials(t *testing.T) {
	err := Run(context.Background(), WithConfig(NewDefaultConfig()), WithLogOutput(io.Discard))
	if err == nil || !strings.Contains(err.Error(), "realtimetrains") {
		t.Fatalf("err = %v, want missing credentials", err)
	}
}

func TestRefreshStations_WithoutCredentials(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"elements":[{"lat":51.75,"lon":-0.33,"tags":{"ref:crs":"SAC","name":"St Albans City"}}]}`))
	}))
	defer srv.Close()

	cfg := NewDefaultConfig()
	cfg.Stations.OverpassURL = srv.URL
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config without credentials: %v", err)
	}
	out := t.TempDir() + "/stations.json"
	if err := RefreshStations(context.Background(), out, WithConfig(cfg), WithLogOutput(io.Discard)); err != nil {
		t.Fatal(err)
	}
	reg, _ := stations.NewRegistry()
	if _, err := reg.LoadFile(out); err != nil {
		t.Fatal(err)
	}
	if hits != 1 || reg.Name("SAC") != "St Albans City" {
		t.Errorf("hits = %d, SAC = %q", hits, reg.Name("SAC"))
	}
}
