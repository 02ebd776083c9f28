package journeys

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/railmiles/internal/apperr"
	"github.com/starford/railmiles/internal/distance"
	"github.com/starford/railmiles/internal/format"
	"github.com/starford/railmiles/internal/models"
	"github.com/starford/railmiles/internal/processor"
)

var crsRe = regexp.MustCompile(`^[A-Z]{3}$`)

// NewJourneyRequest is the body of a journey submission. Each Route line is
// a station code optionally followed by the UID of the service boarded there.
type NewJourneyRequest struct {
	Date           time.Time  `json:"date"`
	Route          [][]string `json:"route"`
	ManualDistance float32    `json:"manualDistance"`
	IsReturn       bool       `json:"isReturn"`
}

// Validate checks the request against now. It does not check service UIDs.
func (r *NewJourneyRequest) Validate(now time.Time) error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Date, validation.Required, validation.By(func(v any) error {
			if v.(time.Time).After(now) {
				return errors.New("occurs in the future")
			}
			return nil
		})),
		validation.Field(&r.Route,
			validation.Required,
			validation.Length(2, 0).Error("must contain at least two stations"),
			validation.Each(validation.By(validateRouteLine)),
		),
		validation.Field(&r.ManualDistance, validation.Min(float32(0))),
	)
}

func validateRouteLine(v any) error {
	line, _ := v.([]string)
	if len(line) < 1 || len(line) > 2 {
		return errors.New("must be [station] or [station, service]")
	}
	if !crsRe.MatchString(strings.ToUpper(strings.TrimSpace(line[0]))) {
		return errors.New("station must be a three letter CRS code")
	}
	return nil
}

type submission struct {
	date           time.Time
	stops          []string
	services       []string
	manualDistance float32
	isReturn       bool
}

// Submit validates req and starts processing it in the background. The
// returned id names the processor whose progress can be streamed.
func (s *Service) Submit(_ context.Context, req *NewJourneyRequest) (uuid.UUID, error) {
	now := s.now().UTC()
	if err := req.Validate(now); err != nil {
		return uuid.Nil, apperr.Invalid("%s", err.Error())
	}

	sub := &submission{
		date:           req.Date.UTC(),
		manualDistance: req.ManualDistance,
		isReturn:       req.IsReturn,
	}
	needsServiceUID := !sameDay(now, sub.date)
	for i, line := range req.Route {
		var svc string
		if len(line) > 1 {
			svc = strings.TrimSpace(line[1])
		}
		if svc == "" && needsServiceUID && i != len(req.Route)-1 && req.ManualDistance == 0 {
			return uuid.Nil, apperr.Invalid("Service UIDs required as services were run on a different day to today")
		}
		sub.stops = append(sub.stops, strings.ToUpper(strings.TrimSpace(line[0])))
		sub.services = append(sub.services, svc)
	}

	job := s.procs.Start(func(ctx context.Context, job *processor.Job) {
		s.process(ctx, job, sub)
	})
	s.logger.Info("journey submitted",
		slog.String("processor", job.ID.String()),
		slog.String("from", sub.stops[0]),
		slog.String("to", sub.stops[len(sub.stops)-1]),
	)
	return job.ID, nil
}

func (s *Service) process(ctx context.Context, job *processor.Job, sub *submission) {
	logger := s.logger.With(slog.String("processor", job.ID.String()))

	res := &distance.Result{Distance: sub.manualDistance, Route: []string{}}
	if sub.manualDistance == 0 {
		r, err := s.dist.Route(ctx, sub.stops, sub.services, sub.date, job.Progress)
		if err != nil {
			if ue, ok := apperr.AsUser(err); ok {
				job.Fail("Unable to fetch distance: " + ue.Msg)
				return
			}
			logger.Error("distance lookup failed", slog.String("error", err.Error()))
			job.Fail(internalError)
			return
		}
		res = r
	}

	var via []string
	if len(sub.stops) > 2 {
		via = sub.stops[1 : len(sub.stops)-1]
	}
	j := &models.Journey{
		ID:       uuid.New(),
		From:     &models.StationName{Shortcode: sub.stops[0]},
		To:       &models.StationName{Shortcode: sub.stops[len(sub.stops)-1]},
		Via:      models.Stations(via),
		Distance: res.Distance,
		Date:     sub.date,
	}

	if err := s.store.InsertJourney(ctx, j); err != nil {
		logger.Error("insert journey failed", slog.String("error", err.Error()))
		job.Fail(internalError)
		return
	}
	if err := s.store.InsertRoute(ctx, j.ID, res.Route); err != nil {
		logger.Error("insert journey route failed", slog.String("journey", j.ID.String()), slog.String("error", err.Error()))
		job.Fail(internalError)
		return
	}
	s.events.JourneyCreated(j.ID.String())

	if sub.isReturn {
		if _, err := s.createReturn(ctx, j, res.Route); err != nil {
			logger.Error("create return journey failed", slog.String("journey", j.ID.String()), slog.String("error", err.Error()))
			job.Fail(internalError)
			return
		}
	}

	logger.Info("journey recorded",
		slog.String("journey", j.ID.String()),
		slog.String("date", format.Date(j.Date)),
		slog.String("miles", format.Miles(float64(j.Distance))),
	)
	job.Finish(j.ID.String())
}

func sameDay(a, b time.Time) bool {
	return a.Truncate(24 * time.Hour).Equal(b.Truncate(24 * time.Hour))
}
