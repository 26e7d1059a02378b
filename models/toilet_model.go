package models

// Toilet is the point of interest served by the radius search. A fetched
// toilet is never mutated; refetches replace the whole set.
type Toilet struct {
	ID          string   `json:"id" bson:"_id,omitempty"`
	Name        string   `json:"name" bson:"name"`
	Description string   `json:"description" bson:"description"`
	Address     string   `json:"address" bson:"address"`
	Location    GeoPoint `json:"location" bson:"location"`
	Accessible  bool     `json:"accessible" bson:"accessible"`
	Tags        []string `json:"tags" bson:"tags"`
	SubmittedBy string   `json:"submitted_by,omitempty" bson:"submitted_by,omitempty"`
	Distance    float64  `json:"distance,omitempty" bson:"-"` // meters from the query center
}

// Coordinate returns the toilet position; ok is false when the location is
// malformed or out of range.
func (t Toilet) Coordinate() (Coordinate, bool) {
	c, ok := t.Location.Coordinate()
	if !ok || !c.Valid() {
		return c, false
	}
	return c, true
}
