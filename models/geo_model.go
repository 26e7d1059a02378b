package models

type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"` // [lon, lat]
}

// Coordinate is a WGS 84 position in degrees.
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Valid reports whether the coordinate lies inside the latitude/longitude ranges.
// NaN never passes.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// GeoJSON converts the coordinate to a GeoJSON point (longitude first).
func (c Coordinate) GeoJSON() GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{c.Longitude, c.Latitude}}
}

// Coordinate reads a GeoJSON point back. ok is false for malformed points.
func (g GeoPoint) Coordinate() (Coordinate, bool) {
	if len(g.Coordinates) < 2 {
		return Coordinate{}, false
	}
	return Coordinate{Latitude: g.Coordinates[1], Longitude: g.Coordinates[0]}, true
}

type Viewport struct {
	Center        Coordinate `json:"center"`
	LatitudeSpan  float64    `json:"lat_span"`
	LongitudeSpan float64    `json:"lon_span"`
}

type Cluster struct {
	ID          string     `json:"id"`
	Coordinate  Coordinate `json:"coordinate"`
	MemberIDs   []string   `json:"member_ids"`
	Count       int        `json:"count"`
	IsSingleton bool       `json:"is_singleton"`
	Zoom        int        `json:"zoom"`
}
