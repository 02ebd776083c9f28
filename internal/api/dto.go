package api

import (
	"github.com/google/uuid"

	"github.com/starford/railmiles/internal/journeys"
)

// NewJourneyRequest is the request body for submitting a journey.
type NewJourneyRequest = journeys.NewJourneyRequest

// DashboardResponse is the home page payload (aliased from the domain layer).
type DashboardResponse = journeys.Dashboard

// JourneyPage is one page of the listing (aliased from the domain layer).
type JourneyPage = journeys.Page

// JourneyDetail is a single journey and its map (aliased from the domain layer).
type JourneyDetail = journeys.Detail

// StationResponse describes a station (aliased from the domain layer).
type StationResponse = journeys.StationInfo

// SubmitResponse names the processor handling a submission.
type SubmitResponse struct {
	ProcessorID uuid.UUID `json:"processorID"`
}

// ReturnResponse names the newly created return journey.
type ReturnResponse struct {
	ID uuid.UUID `json:"id"`
}
