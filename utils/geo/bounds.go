package geo

import (
	"math"

	"github.com/golang/geo/s2"

	"loo-finder/models"
)

// DefaultBucketLevel is an S2 level whose cells are roughly 1 km across.
const DefaultBucketLevel = 13

// Box is a latitude/longitude rectangle in degrees.
type Box struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

// BoundingBox returns a degree box enclosing every point within radiusMeters
// of center. ok is false when the box would cross a pole or the antimeridian;
// callers then have to consider every point.
func BoundingBox(center models.Coordinate, radiusMeters float64) (Box, bool) {
	dLat := radiusMeters / EarthRadiusMeters * 180 / math.Pi
	box := Box{
		MinLat: center.Latitude - dLat,
		MaxLat: center.Latitude + dLat,
	}
	if box.MinLat < -90 || box.MaxLat > 90 {
		return box, false
	}
	// widest longitude extent is at the latitude closest to a pole
	edge := math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat))
	c := math.Cos(toRadians(edge))
	if c < 1e-6 {
		return box, false
	}
	dLon := dLat / c
	box.MinLon = center.Longitude - dLon
	box.MaxLon = center.Longitude + dLon
	if box.MinLon < -180 || box.MaxLon > 180 {
		return box, false
	}
	return box, true
}

// BucketKey returns the S2 cell token containing c at the given level.
func BucketKey(c models.Coordinate, level int) string {
	id := s2.CellIDFromLatLng(s2.LatLngFromDegrees(c.Latitude, c.Longitude))
	return id.Parent(level).ToToken()
}
