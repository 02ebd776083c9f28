// Package rtt talks to RealTimeTrains: the JSON search API to find a service
// between two stations, and the public detailed service page for mileages and
// calling points.
package rtt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/carlmjohnson/requests"

	"github.com/starford/railmiles/internal/apperr"
	"github.com/starford/railmiles/internal/format"
)

const (
	DefaultAPIURL  = "https://api.rtt.io"
	DefaultSiteURL = "https://www.realtimetrains.co.uk"
)

// ErrNoService is returned when a search finds no usable passenger service.
var ErrNoService = errors.New("no route found")

// Options configures a Client.
type Options struct {
	APIURL        string
	SiteURL       string
	Username      string
	Password      string
	SearchTimeout time.Duration
	DetailTimeout time.Duration
	HTTPClient    *http.Client
}

// Client is a RealTimeTrains client.
type Client struct {
	opts Options
}

// New returns a client, filling unset options with defaults.
func New(opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.SiteURL == "" {
		opts.SiteURL = DefaultSiteURL
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 5 * time.Second
	}
	if opts.DetailTimeout <= 0 {
		opts.DetailTimeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Client{opts: opts}
}

// Leg is the portion of one service between two stations.
type Leg struct {
	UID           string   `json:"uid"`
	From          string   `json:"from"`
	To            string   `json:"to"`
	Distance      float32  `json:"distance"`
	CallingPoints []string `json:"callingPoints"`
}

type searchResponse struct {
	Services []struct {
		ServiceUID     string `json:"serviceUid"`
		IsPassenger    bool   `json:"isPassenger"`
		RunDate        string `json:"runDate"`
		LocationDetail struct {
			DisplayAs string `json:"displayAs"`
		} `json:"locationDetail"`
	} `json:"services"`
}

// FindService returns the UID of the first passenger service running on date
// from one station to another that is not cancelled at the origin.
func (c *Client) FindService(ctx context.Context, from, to string, date time.Time) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.SearchTimeout)
	defer cancel()

	var resp searchResponse
	err := requests.
		URL(format.MakeURL(c.opts.APIURL, "/")).
		Client(c.opts.HTTPClient).
		Pathf("/api/v1/json/search/%s/to/%s/%d/%s/%s",
			from, to, date.Year(),
			format.LeftPad(int(date.Month()), "0", 2),
			format.LeftPad(date.Day(), "0", 2)).
		BasicAuth(c.opts.Username, c.opts.Password).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("rtt: search for service %s->%s: %w", from, to, err)
	}

	runDate := date.Format("2006-01-02")
	for _, s := range resp.Services {
		// Services that started the previous day and run through midnight
		// carry a different runDate.
		if s.RunDate != runDate || !s.IsPassenger {
			continue
		}
		if strings.EqualFold(s.LocationDetail.DisplayAs, "CANCELLED_CALL") {
			continue
		}
		return s.ServiceUID, nil
	}
	return "", ErrNoService
}

var shortcodeRe = regexp.MustCompile(`[A-Z]{3}`)

type waypoint struct {
	code   string
	miles  string
	chains string
}

// ServiceLeg scrapes the detailed service page for uid on date and returns
// the distance between the two stations and the codes of every location
// between them.
func (c *Client) ServiceLeg(ctx context.Context, uid, from, to string, date time.Time) (*Leg, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.DetailTimeout)
	defer cancel()

	var page bytes.Buffer
	err := requests.
		URL(format.MakeURL(c.opts.SiteURL, "/")).
		Client(c.opts.HTTPClient).
		Pathf("/service/gb-nr:%s/%s/detailed", uid, date.Format("2006-01-02")).
		ToBytesBuffer(&page).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("rtt: fetch train with UID %s: %w", uid, err)
	}
	return parseServicePage(&page, uid, from, to)
}

func parseServicePage(page *bytes.Buffer, uid, from, to string) (*Leg, error) {
	doc, err := goquery.NewDocumentFromReader(page)
	if err != nil {
		return nil, fmt.Errorf("rtt: load service HTML: %w", err)
	}

	var waypoints []waypoint
	doc.Find(".location.call,.location.pass").Each(func(_ int, sel *goquery.Selection) {
		code := shortcodeRe.FindString(sel.Find(".location a").Text())
		if code == "" {
			return
		}
		waypoints = append(waypoints, waypoint{
			code:   code,
			miles:  strings.TrimSpace(sel.Find("span.miles").Text()),
			chains: strings.TrimSpace(sel.Find("span.chains").Text()),
		})
	})

	var mileages []float64
	for _, wp := range waypoints {
		if !strings.EqualFold(wp.code, from) && !strings.EqualFold(wp.code, to) {
			continue
		}
		if wp.miles == "" || wp.chains == "" {
			return nil, apperr.User("no distance information provided for %s -> %s (%s) - manual distance required", from, to, uid)
		}
		miles, err := strconv.Atoi(wp.miles)
		if err != nil {
			return nil, fmt.Errorf("rtt: parse miles %q: %w", wp.miles, err)
		}
		chains, err := strconv.Atoi(wp.chains)
		if err != nil {
			return nil, fmt.Errorf("rtt: parse chains %q: %w", wp.chains, err)
		}
		mileages = append(mileages, float64(miles)+ChainsToMiles(chains))
	}
	if len(mileages) != 2 {
		return nil, fmt.Errorf("rtt: unexpected number of occurrences of %s/%s in service %s (got %d, expected 2)", from, to, uid, len(mileages))
	}

	var (
		between []string
		inside  bool
	)
	for _, wp := range waypoints {
		switch {
		case strings.EqualFold(wp.code, from):
			inside = true
		case strings.EqualFold(wp.code, to):
			if !inside {
				return nil, fmt.Errorf("rtt: unexpectedly formatted route: %s before %s in service %s", to, from, uid)
			}
			return &Leg{
				UID:           uid,
				From:          from,
				To:            to,
				Distance:      float32(math.Abs(mileages[1] - mileages[0])),
				CallingPoints: nonNil(between),
			}, nil
		case inside:
			between = append(between, wp.code)
		}
	}
	return nil, fmt.Errorf("rtt: destination %s not found after %s in service %s", to, from, uid)
}

// ChainsToMiles converts chains to miles; there are 80 chains to a mile.
func ChainsToMiles(chains int) float64 {
	return float64(chains) / 80
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
