// Package web owns the browser-facing side of railmiles: the client route
// table and the embedded single-page shell.
package web

import "strings"

// Page names a client view.
type Page string

const (
	Home           Page = "Home"
	JourneyListing Page = "JourneyListing"
	JourneyDetail  Page = "JourneyDetail"
	NewJourney     Page = "NewJourney"
	NotFound       Page = "NotFound"
)

// Route maps a path pattern to a page. Segments starting with ':' capture a
// parameter; the pattern "*" matches anything.
type Route struct {
	Pattern string
	Page    Page
}

// Routes is consulted in order; the wildcard is always tried last.
var Routes = []Route{
	{Pattern: "/", Page: Home},
	{Pattern: "/journeys", Page: JourneyListing},
	{Pattern: "/journeys/:id", Page: JourneyDetail},
	{Pattern: "/new", Page: NewJourney},
	{Pattern: "*", Page: NotFound},
}

// Match returns the page for path and any captured parameters.
func Match(path string) (Page, map[string]string) {
	segs := split(path)
	var fallback *Route
	for i := range Routes {
		rt := &Routes[i]
		if rt.Pattern == "*" {
			if fallback == nil {
				fallback = rt
			}
			continue
		}
		if params, ok := matchSegments(split(rt.Pattern), segs); ok {
			return rt.Page, params
		}
	}
	if fallback != nil {
		return fallback.Page, map[string]string{}
	}
	return NotFound, map[string]string{}
}

func matchSegments(pattern, segs []string) (map[string]string, bool) {
	if len(pattern) != len(segs) {
		return nil, false
	}
	params := map[string]string{}
	for i, p := range pattern {
		if name, ok := strings.CutPrefix(p, ":"); ok {
			if segs[i] == "" {
				return nil, false
			}
			params[name] = segs[i]
			continue
		}
		if p != segs[i] {
			return nil, false
		}
	}
	return params, true
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
