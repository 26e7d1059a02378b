package handlers

import (
	"net/http"
	"strconv"

	"loo-finder/models"
	"loo-finder/utils/errors"
)

func queryFloat(r *http.Request, key string) (float64, error) {
	v, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	if err != nil {
		return 0, errors.NewAPIError("INVALID_INPUT", "Invalid or missing "+key, http.StatusBadRequest)
	}
	return v, nil
}

func queryCoordinate(r *http.Request) (models.Coordinate, error) {
	lat, err := queryFloat(r, "lat")
	if err != nil {
		return models.Coordinate{}, err
	}
	lon, err := queryFloat(r, "lon")
	if err != nil {
		return models.Coordinate{}, err
	}
	c := models.Coordinate{Latitude: lat, Longitude: lon}
	if !c.Valid() {
		return models.Coordinate{}, errors.ErrInvalidCoordinate
	}
	return c, nil
}

// accessibleOnly reads the optional accessible=true filter.
func accessibleOnly(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("accessible"))
	return err == nil && v
}

func filterAccessible(toilets []models.Toilet, only bool) []models.Toilet {
	if !only {
		return toilets
	}
	out := make([]models.Toilet, 0, len(toilets))
	for _, t := range toilets {
		if t.Accessible {
			out = append(out, t)
		}
	}
	return out
}
