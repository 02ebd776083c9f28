// Package models defines the domain types for railmiles.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Journey is a single recorded train journey.
type Journey struct {
	ID       uuid.UUID      `json:"id"`
	From     *StationName   `json:"from"`
	To       *StationName   `json:"to"`
	Via      []*StationName `json:"via"`
	Distance float32        `json:"distance"`
	Date     time.Time      `json:"date"`
	ReturnID *uuid.UUID     `json:"returnID,omitempty"`
}

// Stops returns the origin, every via station and the destination as codes.
func (j *Journey) Stops() []string {
	out := make([]string, 0, len(j.Via)+2)
	out = append(out, j.From.Shortcode)
	for _, v := range j.Via {
		out = append(out, v.Shortcode)
	}
	return append(out, j.To.Shortcode)
}

// StationName is a CRS shortcode with an optional full name for display.
type StationName struct {
	Shortcode string
	Full      string
}

// UnmarshalJSON accepts a bare shortcode string. null leaves sn untouched.
func (sn *StationName) UnmarshalJSON(x []byte) error {
	if bytes.Equal(x, []byte("null")) {
		return nil
	}
	return json.Unmarshal(x, &sn.Shortcode)
}

// MarshalJSON emits the bare shortcode unless a full name is populated.
func (sn *StationName) MarshalJSON() ([]byte, error) {
	if sn.Full == "" {
		return json.Marshal(sn.Shortcode)
	}
	return json.Marshal(map[string]string{"full": sn.Full, "shortcode": sn.Shortcode})
}

// Stations builds StationName values from codes.
func Stations(codes []string) []*StationName {
	if len(codes) == 0 {
		return nil
	}
	out := make([]*StationName, len(codes))
	for i, c := range codes {
		out[i] = &StationName{Shortcode: c}
	}
	return out
}

// JourneyStats aggregates journeys within a time window.
type JourneyStats struct {
	Count int     `json:"count"`
	Miles float32 `json:"miles"`
}

// Since selects a reporting window.
type Since uint8

const (
	AllTime Since = iota
	LastMonth
	YearToDate
)

func (s Since) String() string {
	switch s {
	case AllTime:
		return "all-time"
	case LastMonth:
		return "last-month"
	case YearToDate:
		return "year-to-date"
	}
	return fmt.Sprintf("Since(%d)", uint8(s))
}

// Cutoff returns the earliest instant inside the window relative to now.
// ok is false for AllTime.
func (s Since) Cutoff(now time.Time) (cutoff time.Time, ok bool, err error) {
	now = now.UTC()
	switch s {
	case AllTime:
		return time.Time{}, false, nil
	case LastMonth:
		d := now.AddDate(0, -1, 0)
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), true, nil
	case YearToDate:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), true, nil
	default:
		return time.Time{}, false, fmt.Errorf("unknown window %d", uint8(s))
	}
}

// ParseSince maps the query-string names onto windows.
func ParseSince(s string) (Since, error) {
	switch s {
	case "", "all", "all-time":
		return AllTime, nil
	case "month", "last-month":
		return LastMonth, nil
	case "ytd", "year-to-date":
		return YearToDate, nil
	}
	return 0, fmt.Errorf("unknown window %q", s)
}
