package services_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loo-finder/models"
	"loo-finder/services"
)

const metersPerDegreeLat = 111195.08

func toiletAt(id string, lat, lon float64) models.Toilet {
	return models.Toilet{
		ID:       id,
		Name:     "Toilet " + id,
		Location: models.Coordinate{Latitude: lat, Longitude: lon}.GeoJSON(),
	}
}

func north(t models.Toilet, id string, meters float64) models.Toilet {
	c, _ := t.Coordinate()
	return toiletAt(id, c.Latitude+meters/metersPerDegreeLat, c.Longitude)
}

func cityViewport() models.Viewport {
	return models.Viewport{
		Center:        models.Coordinate{Latitude: 1.3, Longitude: 103.8},
		LatitudeSpan:  0.045,
		LongitudeSpan: 0.045,
	}
}

func streetViewport() models.Viewport {
	return models.Viewport{
		Center:        models.Coordinate{Latitude: 1.3, Longitude: 103.8},
		LatitudeSpan:  0.00045,
		LongitudeSpan: 0.00045,
	}
}

func TestClusterEngine_Empty(t *testing.T) {
	engine := services.NewClusterEngine()
	clusters := engine.Cluster(nil, cityViewport())
	assert.NotNil(t, clusters)
	assert.Empty(t, clusters)
}

func TestClusterEngine_SinglePoint(t *testing.T) {
	engine := services.NewClusterEngine()
	clusters := engine.Cluster([]models.Toilet{toiletAt("a", 1.3, 103.8)}, cityViewport())

	require.Len(t, clusters, 1)
	assert.True(t, clusters[0].IsSingleton)
	assert.Equal(t, []string{"a"}, clusters[0].MemberIDs)
	assert.Equal(t, 1, clusters[0].Count)
	assert.Equal(t, "a@z12", clusters[0].ID)
}

func TestClusterEngine_CityVersusStreetZoom(t *testing.T) {
	engine := services.NewClusterEngine()
	a := toiletAt("a", 1.3, 103.8)
	pair := []models.Toilet{a, north(a, "b", 10)}

	city := engine.Cluster(pair, cityViewport())
	require.Len(t, city, 1)
	assert.False(t, city[0].IsSingleton)
	assert.Equal(t, []string{"a", "b"}, city[0].MemberIDs)
	assert.Equal(t, 2, city[0].Count)

	street := engine.Cluster(pair, streetViewport())
	require.Len(t, street, 2)
	assert.True(t, street[0].IsSingleton)
	assert.True(t, street[1].IsSingleton)
}

func TestClusterEngine_RepresentativeIsSeed(t *testing.T) {
	engine := services.NewClusterEngine()
	a := toiletAt("a", 1.3, 103.8)
	clusters := engine.Cluster([]models.Toilet{a, north(a, "b", 50), north(a, "c", 100)}, cityViewport())

	require.Len(t, clusters, 1)
	seed, _ := a.Coordinate()
	assert.Equal(t, seed, clusters[0].Coordinate)
}

func TestClusterEngine_NoChaining(t *testing.T) {
	engine := services.NewClusterEngine()
	v := cityViewport()
	r := engine.RadiusMeters(engine.Zoom(v), v.Center.Latitude)

	a := toiletAt("a", 1.3, 103.8)
	b := north(a, "b", 0.8*r)
	c := north(a, "c", 1.6*r) // within r of b, not of a

	clusters := engine.Cluster([]models.Toilet{a, b, c}, v)
	require.Len(t, clusters, 2)
	assert.Equal(t, []string{"a", "b"}, clusters[0].MemberIDs)
	assert.Equal(t, []string{"c"}, clusters[1].MemberIDs)
	assert.True(t, clusters[1].IsSingleton)
}

func TestClusterEngine_FarApartAreSingletons(t *testing.T) {
	engine := services.NewClusterEngine()
	a := toiletAt("a", 1.3, 103.8)
	toilets := []models.Toilet{a, north(a, "b", 5000), north(a, "c", 10000)}

	clusters := engine.Cluster(toilets, cityViewport())
	require.Len(t, clusters, 3)
	for _, c := range clusters {
		assert.True(t, c.IsSingleton)
	}
}

func TestClusterEngine_Deterministic(t *testing.T) {
	engine := services.NewClusterEngine()
	var toilets []models.Toilet
	for i := 0; i < 300; i++ {
		lat := 1.28 + float64((i*37)%100)*0.0004
		lon := 103.83 + float64((i*61)%100)*0.0004
		toilets = append(toilets, toiletAt(fmt.Sprintf("t%03d", i), lat, lon))
	}
	v := models.Viewport{Center: models.Coordinate{Latitude: 1.3, Longitude: 103.85}, LatitudeSpan: 0.1, LongitudeSpan: 0.1}

	first := engine.Cluster(toilets, v)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, engine.Cluster(toilets, v))
	}

	total := 0
	seen := map[string]bool{}
	for _, c := range first {
		total += len(c.MemberIDs)
		for _, id := range c.MemberIDs {
			assert.False(t, seen[id], "toilet %s in two clusters", id)
			seen[id] = true
		}
	}
	assert.Equal(t, len(toilets), total)
}

func TestClusterEngine_ZoomingInNeverMerges(t *testing.T) {
	engine := services.NewClusterEngine()
	a := toiletAt("a", 1.3, 103.8)
	pair := []models.Toilet{a, north(a, "b", 100)}

	prev := 1
	split := false
	for span := 10.0; span > 1e-5; span /= 2 {
		v := models.Viewport{Center: models.Coordinate{Latitude: 1.3, Longitude: 103.8}, LatitudeSpan: span, LongitudeSpan: span}
		n := len(engine.Cluster(pair, v))
		assert.GreaterOrEqual(t, n, prev, "span %g merged a split pair", span)
		if n == 2 {
			split = true
		}
		prev = n
	}
	assert.True(t, split, "pair never split when zooming in")
}

func TestClusterEngine_SkipsInvalidPoints(t *testing.T) {
	engine := services.NewClusterEngine()
	toilets := []models.Toilet{
		toiletAt("bad-lat", 200, 0),
		{ID: "no-location"},
		toiletAt("good", 1.3, 103.8),
	}

	var clusters []models.Cluster
	assert.NotPanics(t, func() { clusters = engine.Cluster(toilets, cityViewport()) })
	require.Len(t, clusters, 1)
	assert.Equal(t, []string{"good"}, clusters[0].MemberIDs)
}

func TestClusterEngine_SortByID(t *testing.T) {
	engine := services.NewClusterEngine()
	engine.SortByID = true
	a := toiletAt("a", 1.3, 103.8)
	b := north(a, "b", 10)

	forward := engine.Cluster([]models.Toilet{a, b}, cityViewport())
	reversed := engine.Cluster([]models.Toilet{b, a}, cityViewport())
	assert.Equal(t, forward, reversed)
	assert.Equal(t, "a@z12", forward[0].ID)
}

func TestClusterEngine_AcrossAntimeridian(t *testing.T) {
	engine := services.NewClusterEngine()
	toilets := []models.Toilet{
		toiletAt("west", 0, 179.9999),
		toiletAt("east", 0, -179.9999),
	}
	v := models.Viewport{Center: models.Coordinate{Latitude: 0, Longitude: 180}, LatitudeSpan: 0.045, LongitudeSpan: 0.045}

	clusters := engine.Cluster(toilets, v)
	require.Len(t, clusters, 1)
	assert.Equal(t, []string{"west", "east"}, clusters[0].MemberIDs)
}

func TestClusterEngine_RadiusShrinksWithZoom(t *testing.T) {
	engine := services.NewClusterEngine()
	for z := engine.MinZoom; z < engine.MaxZoom; z++ {
		assert.Greater(t, engine.RadiusMeters(z, 1.3), engine.RadiusMeters(z+1, 1.3))
	}
}

func TestClusterEngine_ExpansionViewport(t *testing.T) {
	engine := services.NewClusterEngine()
	v := cityViewport()
	a := toiletAt("a", 1.31, 103.81)
	clusters := engine.Cluster([]models.Toilet{a, north(a, "b", 10)}, v)
	require.Len(t, clusters, 1)

	next := engine.ExpansionViewport(clusters[0], v)
	assert.Equal(t, clusters[0].Coordinate, next.Center)
	assert.Equal(t, engine.Zoom(v)+1, engine.Zoom(next))
}
