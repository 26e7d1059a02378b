package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"loo-finder/middleware"
	"loo-finder/utils/auth"
	"loo-finder/utils/errors"
)

type UserStore interface {
	UserLocationPing(ctx context.Context, lat, lon float64) error
	Favorites(ctx context.Context) ([]string, error)
	AddFavorite(ctx context.Context, toiletID string) error
	RemoveFavorite(ctx context.Context, toiletID string) error
}

type UserHandler struct {
	users UserStore
}

type FavoritesResponse struct {
	Favorites []string `json:"favorites"`
	Count     int      `json:"count"`
}

func NewUserHandler(users UserStore) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) PingLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	// Parse GPS coordinates
	c, err := queryCoordinate(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	if err := h.users.UserLocationPing(r.Context(), c.Latitude, c.Longitude); err != nil {
		middleware.WriteError(w, err)
		return
	}

	middleware.WriteJSON(w, map[string]string{"status": "success", "message": "Location updated", "user_id": userID})
}

func (h *UserHandler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.users.Favorites(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, FavoritesResponse{Favorites: favorites, Count: len(favorites)})
}

func (h *UserHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ToiletID string `json:"toilet_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.ToiletID == "" {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}
	if err := h.users.AddFavorite(r.Context(), input.ToiletID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, map[string]string{"message": "Favourite added"})
}

func (h *UserHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	if err := h.users.RemoveFavorite(r.Context(), mux.Vars(r)["id"]); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, map[string]string{"message": "Favourite removed"})
}
