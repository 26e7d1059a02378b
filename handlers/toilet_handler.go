package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"loo-finder/middleware"
	"loo-finder/models"
	"loo-finder/services"
	"loo-finder/utils/auth"
	"loo-finder/utils/errors"
	"loo-finder/utils/geo"
)

const defaultRadius = 1500 // meters

type ToiletStore interface {
	services.ToiletFinder
	GetToilet(ctx context.Context, id string) (models.Toilet, error)
	AddToilet(ctx context.Context, toilet models.Toilet) (models.Toilet, error)
}

type ToiletHandler struct {
	store  ToiletStore
	engine *services.ClusterEngine
}

type NearbyToiletsResponse struct {
	Toilets []models.Toilet `json:"toilets"`
	Count   int             `json:"count"`
	Lat     float64         `json:"lat"`
	Lon     float64         `json:"lon"`
	Radius  float64         `json:"radius"`
}

type ClustersResponse struct {
	Clusters []models.Cluster `json:"clusters"`
	Count    int              `json:"count"`
	Zoom     int              `json:"zoom"`
	Viewport models.Viewport  `json:"viewport"`
}

func NewToiletHandler(store ToiletStore, engine *services.ClusterEngine) *ToiletHandler {
	return &ToiletHandler{store: store, engine: engine}
}

func (h *ToiletHandler) GetNearbyToilets(w http.ResponseWriter, r *http.Request) {
	center, err := queryCoordinate(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	radius := float64(defaultRadius)
	if r.URL.Query().Get("radius") != "" {
		if radius, err = queryFloat(r, "radius"); err != nil {
			middleware.WriteError(w, err)
			return
		}
	}

	toilets, err := h.store.FindNearby(r.Context(), center, radius)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	toilets = filterAccessible(toilets, accessibleOnly(r))

	middleware.WriteJSON(w, NearbyToiletsResponse{
		Toilets: toilets,
		Count:   len(toilets),
		Lat:     center.Latitude,
		Lon:     center.Longitude,
		Radius:  radius,
	})
}

// GetClusters clusters every toilet covering the requested viewport.
func (h *ToiletHandler) GetClusters(w http.ResponseWriter, r *http.Request) {
	center, err := queryCoordinate(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	latSpan, err := queryFloat(r, "lat_span")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	lonSpan, err := queryFloat(r, "lon_span")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if latSpan <= 0 || lonSpan <= 0 || latSpan > 180 || lonSpan > 360 {
		middleware.WriteError(w, errors.NewAPIError("INVALID_INPUT", "Spans must be within (0, 180] and (0, 360]", http.StatusBadRequest))
		return
	}
	viewport := models.Viewport{Center: center, LatitudeSpan: latSpan, LongitudeSpan: lonSpan}

	radius := geo.ViewportRadiusMeters(viewport)
	if radius > services.MaxSearchRadius {
		radius = services.MaxSearchRadius
	}
	toilets, err := h.store.FindNearby(r.Context(), center, radius)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	toilets = filterAccessible(toilets, accessibleOnly(r))

	clusters := h.engine.Cluster(toilets, viewport)
	middleware.WriteJSON(w, ClustersResponse{
		Clusters: clusters,
		Count:    len(clusters),
		Zoom:     h.engine.Zoom(viewport),
		Viewport: viewport,
	})
}

func (h *ToiletHandler) GetToilet(w http.ResponseWriter, r *http.Request) {
	toilet, err := h.store.GetToilet(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, toilet)
}

func (h *ToiletHandler) SubmitToilet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}
	var input struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Address     string   `json:"address"`
		Lat         *float64 `json:"lat"`
		Lon         *float64 `json:"lon"`
		Accessible  bool     `json:"accessible"`
		Tags        []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Lat == nil || input.Lon == nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	toilet, err := h.store.AddToilet(r.Context(), models.Toilet{
		Name:        input.Name,
		Description: input.Description,
		Address:     input.Address,
		Location:    models.Coordinate{Latitude: *input.Lat, Longitude: *input.Lon}.GeoJSON(),
		Accessible:  input.Accessible,
		Tags:        input.Tags,
		SubmittedBy: userID,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toilet)
}
