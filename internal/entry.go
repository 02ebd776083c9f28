// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/railmiles/internal/api"
	"github.com/starford/railmiles/internal/cache"
	"github.com/starford/railmiles/internal/distance"
	"github.com/starford/railmiles/internal/journeys"
	"github.com/starford/railmiles/internal/mcpserver"
	"github.com/starford/railmiles/internal/processor"
	"github.com/starford/railmiles/internal/rtt"
	"github.com/starford/railmiles/internal/sse"
	"github.com/starford/railmiles/internal/stations"
	"github.com/starford/railmiles/internal/store"
	"github.com/starford/railmiles/internal/web"
)

func newApplication(opts []Option) (*application, *slog.Logger, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app, logger, nil
}

// services holds every long-lived component shared by the HTTP and MCP
// front ends.
type services struct {
	db       *store.DB
	stations *stations.Registry
	redis    *cache.Redis
	procs    *processor.Registry
	broker   *sse.Broker
	journeys *journeys.Service
}

func (s *services) Close() {
	s.procs.Close()
	s.broker.Close()
	if s.redis != nil {
		_ = s.redis.Close()
	}
	_ = s.db.Close()
}

func buildServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*services, error) {
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if _, err := db.Migrate(ctx, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	reg, err := stations.NewRegistry()
	if err != nil {
		db.Close()
		return nil, err
	}
	if path := cfg.Stations.Path; path != "" {
		created, err := stations.Bootstrap(ctx, path, cfg.Stations.OverpassURL)
		if err != nil {
			logger.Warn("station data not fetched from overpass",
				slog.String("path", path), slog.String("error", err.Error()))
		} else if created {
			logger.Info("station data written from overpass", slog.String("path", path))
		}
		if _, err := reg.LoadFile(path); err != nil {
			logger.Warn("station override not loaded, using embedded data",
				slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	logger.Info("stations loaded", slog.Int("count", reg.Len()))

	s := &services{db: db, stations: reg}

	var legs cache.LegCache
	if cfg.Cache.RedisURL != "" {
		client, err := cache.Connect(cfg.Cache.RedisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		rc := cache.NewRedis(client, cfg.Cache.TTL)
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, leg cache reads will miss", slog.String("error", err.Error()))
		}
		s.redis = rc
		legs = rc
	} else {
		legs = cache.NewMemory(cfg.Cache.TTL)
	}

	client := rtt.New(rtt.Options{
		APIURL:        cfg.RealTimeTrains.APIURL,
		SiteURL:       cfg.RealTimeTrains.SiteURL,
		Username:      cfg.RealTimeTrains.Username,
		Password:      cfg.RealTimeTrains.Password,
		SearchTimeout: cfg.RealTimeTrains.Timeout,
		DetailTimeout: 2 * cfg.RealTimeTrains.Timeout,
	})

	s.procs = processor.NewRegistry(processor.Options{MaxConcurrent: cfg.RealTimeTrains.Concurrency}, logger)
	s.broker = sse.NewBroker(2 * time.Second)
	s.journeys = journeys.NewService(journeys.Deps{
		Store:      db,
		Distance:   distance.NewCalculator(client, legs, logger),
		Processors: s.procs,
		Stations:   reg,
		Events:     s.broker,
		Logger:     logger,
	})
	return s, nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type readiness struct {
	Status     string `json:"status"`
	Stations   int    `json:"stations"`
	SSEClients int    `json:"sseClients"`
}

func readyHandler(svc *services) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body := readiness{Status: "ok", Stations: svc.stations.Len(), SSEClients: svc.broker.ClientCount()}
		status := http.StatusOK
		if err := svc.db.Ping(req.Context()); err != nil {
			body.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	if err := cfg.RealTimeTrains.RequireCredentials(); err != nil {
		return err
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("stations_path", cfg.Stations.Path),
		slog.Bool("redis_cache", cfg.Cache.RedisURL != ""),
		slog.Bool("debug", cfg.App.Debug),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	webHandler, err := web.NewHandler(logger)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.App.Debug {
		r.Use(api.CORSMiddleware)
	}

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthHandler)
	r.Get("/health/ready", readyHandler(svc))

	r.Mount("/api", api.NewRouter(svc.journeys, cfg.Auth.AuthEnabled(), cfg.Auth.Token, svc.broker))

	// Everything else belongs to the single-page client.
	r.NotFound(webHandler.ServeHTTP)
	r.MethodNotAllowed(webHandler.ServeHTTP)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Stations.Path != "" {
		g.Go(func() error {
			err := stations.Watch(gCtx, svc.stations, cfg.Stations.Path, logger, func(count int) {
				svc.broker.Publish(sse.Event{Type: "stations.reloaded", Data: map[string]int{"count": count}})
			})
			if err != nil {
				logger.Warn("stations watcher not running", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()), slog.String("base_url", cfg.App.BaseURL))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the stations watcher exits with the
// server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the journey tools over stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}

	svc, err := buildServices(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	logger.Info("MCP server starting", slog.String("version", app.version))
	return mcpserver.New(svc.journeys, app.version).ServeStdio()
}

// RefreshStations rebuilds the station dataset from OpenStreetMap and writes
// it to output, or to stations.path when output is empty. A running server
// watching that file picks the new data up on its own.
func RefreshStations(ctx context.Context, output string, opts ...Option) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	if output == "" {
		output = cfg.Stations.Path
	}
	if output == "" {
		return fmt.Errorf("no output file: set stations.path or pass --output")
	}

	logger.Info("fetching stations", slog.String("overpass_url", cfg.Stations.OverpassURL))
	data, err := stations.FetchOverpass(ctx, cfg.Stations.OverpassURL)
	if err != nil {
		return err
	}
	if err := stations.WriteFile(output, data); err != nil {
		return err
	}
	logger.Info("stations written", slog.String("path", output), slog.Int("count", len(data)))
	return nil
}
