package services_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loo-finder/models"
	"loo-finder/services"
	"loo-finder/utils/errors"
)

var (
	t0       = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	firstFix = models.Coordinate{Latitude: 1.3000, Longitude: 103.8000}
)

func newCache() *services.ResultCache {
	return services.NewResultCache(100, 5*time.Minute)
}

func fetched(t *testing.T, c *services.ResultCache, at models.Coordinate, now time.Time, toilets ...models.Toilet) {
	t.Helper()
	require.True(t, c.ShouldFetch(at, now))
	require.True(t, c.BeginFetch())
	require.NoError(t, c.CompleteFetch(toilets, at, now))
}

func TestResultCache_ColdStart(t *testing.T) {
	c := newCache()
	assert.Equal(t, services.CacheEmpty, c.State(firstFix, t0))
	assert.True(t, c.ShouldFetch(firstFix, t0))

	require.True(t, c.BeginFetch())
	assert.Equal(t, services.CacheFetching, c.State(firstFix, t0))

	toilets := []models.Toilet{
		toiletAt("a", 1.3001, 103.8001),
		toiletAt("b", 1.3002, 103.8002),
		toiletAt("c", 1.3003, 103.8003),
	}
	require.NoError(t, c.CompleteFetch(toilets, firstFix, t0))

	assert.Equal(t, services.CacheFresh, c.State(firstFix, t0))
	assert.Len(t, c.Points(), 3)

	snap := c.Snapshot()
	assert.Equal(t, firstFix, snap.LastFetchCoordinate)
	assert.Equal(t, t0, snap.LastFetchTimestamp)
	assert.False(t, snap.FetchInFlight)
	assert.NotEmpty(t, snap.Bucket)
}

func TestResultCache_DistanceGating(t *testing.T) {
	c := newCache()
	fetched(t, c, firstFix, t0)

	near := models.Coordinate{Latitude: firstFix.Latitude + 50/metersPerDegreeLat, Longitude: firstFix.Longitude}
	far := models.Coordinate{Latitude: firstFix.Latitude + 150/metersPerDegreeLat, Longitude: firstFix.Longitude}

	assert.False(t, c.ShouldFetch(near, t0.Add(time.Minute)))
	assert.Equal(t, services.CacheFresh, c.State(near, t0.Add(time.Minute)))
	assert.True(t, c.ShouldFetch(far, t0.Add(time.Minute)))
	assert.Equal(t, services.CacheStale, c.State(far, t0.Add(time.Minute)))
}

func TestResultCache_TimeGating(t *testing.T) {
	c := newCache()
	fetched(t, c, firstFix, t0)

	assert.False(t, c.ShouldFetch(firstFix, t0.Add(5*time.Minute)), "threshold itself is still fresh")
	assert.True(t, c.ShouldFetch(firstFix, t0.Add(5*time.Minute+time.Second)))
}

func TestResultCache_AtMostOneFetch(t *testing.T) {
	c := newCache()
	require.True(t, c.ShouldFetch(firstFix, t0))
	require.True(t, c.BeginFetch())

	far := models.Coordinate{Latitude: 10, Longitude: 10}
	assert.False(t, c.ShouldFetch(firstFix, t0))
	assert.False(t, c.ShouldFetch(far, t0.Add(time.Hour)))
	assert.False(t, c.BeginFetch(), "second BeginFetch is rejected")

	require.NoError(t, c.CompleteFetch(nil, firstFix, t0))
	assert.True(t, c.ShouldFetch(far, t0))
}

func TestResultCache_ConcurrentBeginFetch(t *testing.T) {
	c := newCache()
	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.ShouldFetch(firstFix, t0) && c.BeginFetch() {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, started)
}

func TestResultCache_FailureRecovery(t *testing.T) {
	c := newCache()
	require.True(t, c.ShouldFetch(firstFix, t0))
	require.True(t, c.BeginFetch())
	c.FailFetch()

	assert.True(t, c.ShouldFetch(firstFix, t0))
	assert.Equal(t, services.CacheEmpty, c.State(firstFix, t0))
}

func TestResultCache_FailureKeepsPreviousResult(t *testing.T) {
	c := newCache()
	fetched(t, c, firstFix, t0, toiletAt("a", 1.3, 103.8))

	later := t0.Add(10 * time.Minute)
	require.True(t, c.ShouldFetch(firstFix, later))
	require.True(t, c.BeginFetch())
	c.FailFetch()

	snap := c.Snapshot()
	assert.Equal(t, t0, snap.LastFetchTimestamp)
	assert.Equal(t, firstFix, snap.LastFetchCoordinate)
	assert.Len(t, snap.Points, 1, "stale data is kept on failure")
	assert.Equal(t, services.CacheStale, c.State(firstFix, later))
	assert.True(t, c.ShouldFetch(firstFix, later))
}

func TestResultCache_DropsInvalidPoints(t *testing.T) {
	c := newCache()
	require.True(t, c.BeginFetch())
	err := c.CompleteFetch([]models.Toilet{
		toiletAt("bad", 200, 0),
		toiletAt("good", 1.3, 103.8),
		{ID: "empty"},
	}, firstFix, t0)
	require.NoError(t, err)

	points := c.Points()
	require.Len(t, points, 1)
	assert.Equal(t, "good", points[0].ID)
}

func TestResultCache_InvalidFetchCoordinate(t *testing.T) {
	c := newCache()
	require.True(t, c.BeginFetch())
	err := c.CompleteFetch([]models.Toilet{toiletAt("a", 1.3, 103.8)}, models.Coordinate{Latitude: 95}, t0)
	assert.ErrorIs(t, err, errors.ErrInvalidCoordinate)
	assert.Equal(t, services.CacheEmpty, c.State(firstFix, t0))
	assert.True(t, c.ShouldFetch(firstFix, t0), "in-flight flag must be cleared")
}

func TestResultCache_InvalidLocationNeverFetches(t *testing.T) {
	c := newCache()
	assert.False(t, c.ShouldFetch(models.Coordinate{Latitude: 200}, t0))
}

func TestResultCache_ReplacesWholesale(t *testing.T) {
	c := newCache()
	fetched(t, c, firstFix, t0, toiletAt("a", 1.3, 103.8), toiletAt("b", 1.3, 103.8))
	old := c.Points()

	later := t0.Add(time.Hour)
	fetched(t, c, firstFix, later, toiletAt("c", 1.3, 103.8))

	assert.Len(t, old, 2, "earlier readers keep their snapshot")
	require.Len(t, c.Points(), 1)
	assert.Equal(t, "c", c.Points()[0].ID)
}

func TestResultCache_ForceStale(t *testing.T) {
	c := newCache()
	fetched(t, c, firstFix, t0)
	assert.False(t, c.ShouldFetch(firstFix, t0))

	c.ForceStale()
	assert.True(t, c.ShouldFetch(firstFix, t0))

	require.True(t, c.BeginFetch())
	require.NoError(t, c.CompleteFetch(nil, firstFix, t0))
	assert.False(t, c.ShouldFetch(firstFix, t0))
}
