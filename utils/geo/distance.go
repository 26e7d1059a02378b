// Package geo holds the distance and zoom arithmetic shared by the cluster
// engine, the result cache and the backend handlers.
package geo

import (
	"math"

	"github.com/golang/geo/s2"

	"loo-finder/models"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
	EarthRadiusMeters = 6371008.8

	// EquatorMetersPerPixel is the web-mercator ground resolution at zoom 0
	// for 256 px tiles.
	EquatorMetersPerPixel = 2 * math.Pi * 6378137 / 256

	MinZoom = 0
	MaxZoom = 21
)

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// DistanceMeters returns the great-circle distance between a and b using the
// haversine formula.
func DistanceMeters(a, b models.Coordinate) float64 {
	if a == b {
		return 0
	}
	φ1, φ2 := toRadians(a.Latitude), toRadians(b.Latitude)
	Δφ := toRadians(b.Latitude - a.Latitude)
	Δλ := toRadians(b.Longitude - a.Longitude)
	sinLat := math.Sin(Δφ / 2)
	sinLon := math.Sin(Δλ / 2)
	h := sinLat*sinLat + math.Cos(φ1)*math.Cos(φ2)*sinLon*sinLon
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// ValidCoordinate reports whether lat/lon are inside the WGS 84 ranges.
func ValidCoordinate(lat, lon float64) bool {
	return models.Coordinate{Latitude: lat, Longitude: lon}.Valid()
}

// ZoomLevelFor maps a viewport to floor(log2(360 / longitudeSpan)), clamped to
// [MinZoom, MaxZoom]. Non-positive spans are treated as fully zoomed in.
func ZoomLevelFor(v models.Viewport) int {
	span := v.LongitudeSpan
	if math.IsNaN(span) || span <= 0 {
		return MaxZoom
	}
	z := math.Floor(math.Log2(360 / span))
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return int(z)
}

// GroundResolution returns meters per pixel at the given zoom and latitude.
func GroundResolution(zoom int, latitude float64) float64 {
	c := math.Cos(toRadians(latitude))
	if c < 0.01 {
		c = 0.01
	}
	return EquatorMetersPerPixel * c / math.Exp2(float64(zoom))
}

// ViewportRadiusMeters returns the distance from the viewport center to its
// farthest corner, i.e. the radius of a search that covers the visible map.
func ViewportRadiusMeters(v models.Viewport) float64 {
	corner := models.Coordinate{
		Latitude:  clamp(v.Center.Latitude+v.LatitudeSpan/2, -90, 90),
		Longitude: v.Center.Longitude + v.LongitudeSpan/2,
	}
	// s2 normalises longitudes past the antimeridian for us.
	a := s2.LatLngFromDegrees(v.Center.Latitude, v.Center.Longitude)
	b := s2.LatLngFromDegrees(corner.Latitude, corner.Longitude).Normalized()
	return a.Distance(b).Radians() * EarthRadiusMeters
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
