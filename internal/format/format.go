// Package format holds small presentation helpers shared by the HTTP, MCP and
// scraping layers.
package format

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// InvalidDate is rendered for dates that cannot be parsed.
const InvalidDate = "Invalid Date"

// RoundFloat rounds x to the given number of decimal places. Halves round
// toward positive infinity, so -2.5 becomes -2.
func RoundFloat(x float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Floor(x*scale+0.5) / scale
}

// MakeURL joins base and path, collapsing the slash between them when both
// sides carry one.
func MakeURL(base, path string) string {
	if strings.HasSuffix(base, "/") && strings.HasPrefix(path, "/") {
		return base + path[1:]
	}
	return base + path
}

// LeftPad prepends pad to the string form of v until it is at least n
// characters long.
func LeftPad(v any, pad string, n int) string {
	s := fmt.Sprint(v)
	if pad == "" {
		return s
	}
	for utf8.RuneCountInString(s) < n {
		s = pad + s
	}
	return s
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// FormatDate renders an ISO-8601 date or timestamp as "2 Jan 2006".
func FormatDate(s string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date(t)
		}
	}
	return InvalidDate
}

// Date renders t as "2 Jan 2006".
func Date(t time.Time) string {
	return t.Format("2 Jan 2006")
}

var milesPrinter = message.NewPrinter(language.BritishEnglish)

// Miles renders a distance with thousands separators and two decimals.
func Miles(x float64) string {
	return milesPrinter.Sprintf("%.2f", RoundFloat(x, 2))
}

// Debounce returns a trigger that delays fn until wait has elapsed since the
// most recent call, and a stop func that cancels any pending run.
func Debounce(fn func(), wait time.Duration) (trigger func(), stop func()) {
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	trigger = func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(wait, fn)
	}
	stop = func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
			timer = nil
		}
	}
	return trigger, stop
}
