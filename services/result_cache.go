package services

import (
	"log"
	"sync"
	"time"

	"loo-finder/metrics"
	"loo-finder/models"
	"loo-finder/utils/errors"
	"loo-finder/utils/geo"
)

type CacheState int

const (
	CacheEmpty CacheState = iota
	CacheFresh
	CacheStale
	CacheFetching
)

func (s CacheState) String() string {
	switch s {
	case CacheEmpty:
		return "empty"
	case CacheFresh:
		return "fresh"
	case CacheStale:
		return "stale"
	case CacheFetching:
		return "fetching"
	}
	return "unknown"
}

// CacheEntry is the last known good result set. It lives only in memory.
type CacheEntry struct {
	LastFetchCoordinate models.Coordinate
	LastFetchTimestamp  time.Time
	Bucket              string
	Points              []models.Toilet
	FetchInFlight       bool
}

// ResultCache decides when a location update warrants a new radius search and
// holds the toilets from the last successful one. At most one fetch may be in
// flight; the flag is always cleared by CompleteFetch or FailFetch.
type ResultCache struct {
	mu                sync.Mutex
	distanceThreshold float64
	timeThreshold     time.Duration
	bucketLevel       int

	entry    CacheEntry
	hasFetch bool
	forced   bool
}

func NewResultCache(distanceThresholdMeters float64, timeThreshold time.Duration) *ResultCache {
	return &ResultCache{
		distanceThreshold: distanceThresholdMeters,
		timeThreshold:     timeThreshold,
		bucketLevel:       geo.DefaultBucketLevel,
	}
}

// ShouldFetch reports whether a fetch should start for a user at location.
// It is false while a fetch is in flight and for invalid locations.
func (c *ResultCache) ShouldFetch(location models.Coordinate, now time.Time) bool {
	if !location.Valid() {
		log.Printf("cache: ignoring invalid location %+v", location)
		metrics.CacheDecisions.WithLabelValues("invalid").Inc()
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry.FetchInFlight {
		metrics.CacheDecisions.WithLabelValues("in_flight").Inc()
		return false
	}
	if c.stale(location, now) {
		metrics.CacheDecisions.WithLabelValues("fetch").Inc()
		return true
	}
	metrics.CacheDecisions.WithLabelValues("skip").Inc()
	return false
}

func (c *ResultCache) stale(location models.Coordinate, now time.Time) bool {
	if !c.hasFetch || c.forced {
		return true
	}
	if geo.DistanceMeters(c.entry.LastFetchCoordinate, location) > c.distanceThreshold {
		return true
	}
	return now.Sub(c.entry.LastFetchTimestamp) > c.timeThreshold
}

// BeginFetch marks a fetch as in flight. Calling it while a fetch is already
// in flight is a caller bug; it is logged and reported as false.
func (c *ResultCache) BeginFetch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry.FetchInFlight {
		log.Printf("cache: INVARIANT VIOLATION: BeginFetch called while a fetch is in flight")
		return false
	}
	c.entry.FetchInFlight = true
	return true
}

// CompleteFetch stores the result of a successful fetch made at
// fetchCoordinate. Toilets with invalid locations are dropped. An invalid
// fetchCoordinate discards the result as a failed fetch would.
func (c *ResultCache) CompleteFetch(toilets []models.Toilet, fetchCoordinate models.Coordinate, now time.Time) error {
	if !fetchCoordinate.Valid() {
		c.FailFetch()
		return errors.ErrInvalidCoordinate
	}

	valid := make([]models.Toilet, 0, len(toilets))
	for _, t := range toilets {
		if _, ok := t.Coordinate(); !ok {
			log.Printf("cache: dropping toilet %q with invalid location %v", t.ID, t.Location.Coordinates)
			metrics.InvalidPointsDropped.WithLabelValues("cache").Inc()
			continue
		}
		valid = append(valid, t)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.entry.FetchInFlight {
		log.Printf("cache: CompleteFetch without BeginFetch")
	}
	c.entry = CacheEntry{
		LastFetchCoordinate: fetchCoordinate,
		LastFetchTimestamp:  now,
		Bucket:              geo.BucketKey(fetchCoordinate, c.bucketLevel),
		Points:              valid,
	}
	c.hasFetch = true
	c.forced = false
	metrics.CacheFetches.WithLabelValues("success").Inc()
	return nil
}

// FailFetch clears the in-flight flag and keeps the previous result, its
// coordinate and its timestamp untouched.
func (c *ResultCache) FailFetch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entry.FetchInFlight = false
	metrics.CacheFetches.WithLabelValues("failure").Inc()
}

// ForceStale makes the next ShouldFetch return true regardless of thresholds
// (unless a fetch is in flight).
func (c *ResultCache) ForceStale() {
	c.mu.Lock()
	c.forced = true
	c.mu.Unlock()
}

// State reports the cache state for a user at location at time now.
func (c *ResultCache) State(location models.Coordinate, now time.Time) CacheState {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.entry.FetchInFlight:
		return CacheFetching
	case !c.hasFetch:
		return CacheEmpty
	case c.stale(location, now):
		return CacheStale
	}
	return CacheFresh
}

// Points returns the toilets of the last successful fetch. The slice is
// replaced, never modified, so callers may keep it.
func (c *ResultCache) Points() []models.Toilet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry.Points
}

func (c *ResultCache) Snapshot() CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry
}
