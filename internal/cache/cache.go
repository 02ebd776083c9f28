// Package cache stores scraped service legs so that repeated submissions of
// the same train do not hit RealTimeTrains again.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/starford/railmiles/internal/rtt"
)

// LegCache is a keyed store of leg results.
type LegCache interface {
	// Get returns the cached leg and true, or nil and false on a miss.
	Get(ctx context.Context, key Key) (*rtt.Leg, bool, error)
	Set(ctx context.Context, key Key, leg *rtt.Leg) error
}

// Key identifies one leg of one service on one day.
type Key struct {
	UID  string
	Date time.Time
	From string
	To   string
}

func (k Key) String() string {
	return strings.Join([]string{
		k.UID,
		k.Date.Format("2006-01-02"),
		strings.ToUpper(k.From),
		strings.ToUpper(k.To),
	}, ":")
}

type memEntry struct {
	leg     *rtt.Leg
	expires time.Time
}

// Memory is an in-process LegCache with per-entry expiry.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	entries   map[string]memEntry
	lastSweep time.Time
}

// NewMemory returns an in-memory cache. ttl <= 0 means entries never expire.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memEntry),
	}
}

func (m *Memory) Get(_ context.Context, key Key) (*rtt.Leg, bool, error) {
	k := key.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[k]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.entries, k)
		return nil, false, nil
	}
	cp := *e.leg
	return &cp, true, nil
}

// Set stores leg under key. Expired entries are swept at most once per ttl.
func (m *Memory) Set(_ context.Context, key Key, leg *rtt.Leg) error {
	now := m.now()
	e := memEntry{leg: leg}
	if m.ttl > 0 {
		e.expires = now.Add(m.ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ttl > 0 && now.Sub(m.lastSweep) >= m.ttl {
		m.sweep(now)
	}
	m.entries[key.String()] = e
	return nil
}

func (m *Memory) sweep(now time.Time) {
	for k, e := range m.entries {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(m.entries, k)
		}
	}
	m.lastSweep = now
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
