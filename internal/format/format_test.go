package format

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRoundFloat(t *testing.T) {
	tests := []struct {
		in     float64
		places int
		want   float64
	}{
		{1.005, 0, 1},
		{1.25, 1, 1.3},
		{183.456, 2, 183.46},
		{-2.5, 0, -2},
		{-0.125, 2, -0.12},
		{2.5, 0, 3},
	}
	for _, tt := range tests {
		if got := RoundFloat(tt.in, tt.places); got != tt.want {
			t.Errorf("RoundFloat(%v, %d) = %v, want %v", tt.in, tt.places, got, tt.want)
		}
	}
}

func TestMakeURL(t *testing.T) {
	tests := []struct{ base, path, want string }{
		{"", "/api/journeys", "/api/journeys"},
		{"https://example.com/", "/api", "https://example.com/api"},
		{"https://example.com", "/api", "https://example.com/api"},
		{"https://example.com/", "api", "https://example.com/api"},
	}
	for _, tt := range tests {
		if got := MakeURL(tt.base, tt.path); got != tt.want {
			t.Errorf("MakeURL(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
		}
	}
}

func TestLeftPad(t *testing.T) {
	if got := LeftPad(7, "0", 2); got != "07" {
		t.Errorf("got %q", got)
	}
	if got := LeftPad(12, "0", 2); got != "12" {
		t.Errorf("already long enough: got %q", got)
	}
	if got := LeftPad("2024", "0", 2); got != "2024" {
		t.Errorf("longer than n: got %q", got)
	}
	if got := LeftPad("é", "0", 3); got != "00é" {
		t.Errorf("padding counts characters: got %q", got)
	}
	if got := LeftPad("x", "", 5); got != "x" {
		t.Errorf("empty pad must not loop: got %q", got)
	}
}

func TestFormatDate(t *testing.T) {
	tests := map[string]string{
		"2024-03-05":                "5 Mar 2024",
		"2024-03-05T23:10:00Z":      "5 Mar 2024",
		"2023-12-25T08:00:00+01:00": "25 Dec 2023",
		"2024-03-05T10:30":          "5 Mar 2024",
		"2024-03-05T10:30Z":         "5 Mar 2024",
		"2024-03-05T10:30+01:00":    "5 Mar 2024",
		"not a date":                InvalidDate,
		"":                          InvalidDate,
	}
	for in, want := range tests {
		if got := FormatDate(in); got != want {
			t.Errorf("FormatDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMiles(t *testing.T) {
	if got := Miles(1234.567); got != "1,234.57" {
		t.Errorf("Miles = %q", got)
	}
}

func TestDebounce_LastCallWins(t *testing.T) {
	var calls atomic.Int32
	trigger, stop := Debounce(func() { calls.Add(1) }, 30*time.Millisecond)
	defer stop()

	for i := 0; i < 5; i++ {
		trigger()
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("fn ran %d times, want 1", n)
	}
}

func TestDebounce_Stop(t *testing.T) {
	var calls atomic.Int32
	trigger, stop := Debounce(func() { calls.Add(1) }, 20*time.Millisecond)
	trigger()
	stop()
	time.Sleep(60 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("fn ran %d times after stop, want 0", n)
	}
}
