// Package distance works out how far a multi-leg rail journey travelled.
package distance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/railmiles/internal/apperr"
	"github.com/starford/railmiles/internal/cache"
	"github.com/starford/railmiles/internal/rtt"
)

// Source looks up services and their legs.
type Source interface {
	FindService(ctx context.Context, from, to string, date time.Time) (string, error)
	ServiceLeg(ctx context.Context, uid, from, to string, date time.Time) (*rtt.Leg, error)
}

// ProgressFunc receives human-readable progress messages.
type ProgressFunc func(msg string)

// Result is the total distance and the stations passed on the way, excluding
// the origin and the final destination.
type Result struct {
	Distance float32
	Route    []string
}

// Calculator combines a Source with an optional LegCache.
type Calculator struct {
	src    Source
	cache  cache.LegCache
	logger *slog.Logger
}

// NewCalculator creates a Calculator. legs may be nil to disable caching.
func NewCalculator(src Source, legs cache.LegCache, logger *slog.Logger) *Calculator {
	return &Calculator{src: src, cache: legs, logger: logger}
}

// Route computes the distance of the journey through stops. services[i] is
// the UID of the train taken from stops[i]; empty entries are searched for.
// services may be modified in place.
func (c *Calculator) Route(ctx context.Context, stops, services []string, date time.Time, progress ProgressFunc) (*Result, error) {
	if len(stops) < 2 {
		return nil, fmt.Errorf("distance: need at least two stops: %w", apperr.ErrInvalid)
	}
	if len(services) < len(stops)-1 {
		return nil, fmt.Errorf("distance: %d services for %d legs: %w", len(services), len(stops)-1, apperr.ErrInvalid)
	}
	if progress == nil {
		progress = func(string) {}
	}

	for i := 0; i < len(stops)-1; i++ {
		if services[i] != "" {
			continue
		}
		progress(fmt.Sprintf("Searching for a service from %s to %s", stops[i], stops[i+1]))
		uid, err := c.src.FindService(ctx, stops[i], stops[i+1], date)
		if errors.Is(err, rtt.ErrNoService) {
			return nil, &apperr.UserError{
				Msg:  fmt.Sprintf("no service found from %s to %s on %s", stops[i], stops[i+1], date.Format("2006-01-02")),
				Kind: rtt.ErrNoService,
			}
		}
		if err != nil {
			return nil, apperr.Wrap(err, "distance: leg %d", i+1)
		}
		services[i] = uid
	}

	res := &Result{Route: []string{}}
	for i := 0; i < len(stops)-1; i++ {
		progress(fmt.Sprintf("Fetching distance for %s (%s to %s)", services[i], stops[i], stops[i+1]))
		leg, err := c.leg(ctx, services[i], stops[i], stops[i+1], date)
		if err != nil {
			return nil, apperr.Wrap(err, "distance: scraping train %s", services[i])
		}
		if i > 0 {
			res.Route = append(res.Route, stops[i])
		}
		res.Route = append(res.Route, leg.CallingPoints...)
		res.Distance += leg.Distance
	}
	return res, nil
}

func (c *Calculator) leg(ctx context.Context, uid, from, to string, date time.Time) (*rtt.Leg, error) {
	key := cache.Key{UID: uid, Date: date, From: from, To: to}
	if c.cache != nil {
		leg, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("leg cache read failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		} else if ok {
			return leg, nil
		}
	}

	leg, err := c.src.ServiceLeg(ctx, uid, from, to, date)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, leg); err != nil {
			c.logger.Warn("leg cache write failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		}
	}
	return leg, nil
}
