package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/starford/railmiles/internal/models"
)

// JourneyStore defines the persistence operations used by the journey service.
// Consumers should depend on this interface rather than the concrete *DB type.
type JourneyStore interface {
	InsertJourney(ctx context.Context, j *models.Journey) error
	UpdateJourney(ctx context.Context, j *models.Journey) error
	GetJourney(ctx context.Context, id uuid.UUID) (*models.Journey, error)
	ListJourneys(ctx context.Context, q ListQuery) ([]*models.Journey, error)
	Stats(ctx context.Context, since models.Since) (*models.JourneyStats, error)
	DeleteJourney(ctx context.Context, id uuid.UUID) error
	InsertRoute(ctx context.Context, journeyID uuid.UUID, stations []string) error
	CallingPoints(ctx context.Context, journeyID uuid.UUID) ([]string, error)
	InsertReturnJourney(ctx context.Context, source, ret *models.Journey, route []string) error
	Close() error
}

// Verify *DB satisfies JourneyStore at compile time.
var _ JourneyStore = (*DB)(nil)

// ListQuery narrows a journey listing.
type ListQuery struct {
	Since  models.Since
	Offset int
	Limit  int
}
