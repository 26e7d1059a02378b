package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"loo-finder/metrics"
	"loo-finder/middleware"
)

type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig, toilets *ToiletHandler, users *UserHandler, authHandler *AuthHandler) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.ErrorMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(metrics.Middleware)

	requireAuth := middleware.JWTMiddleware(cfg.JWTSecret)

	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, map[string]string{"status": "ok"})
	}).Methods("GET")

	// Auth routes
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandler.RegisterUser).Methods("POST", "OPTIONS")
	authRouter.HandleFunc("/login", authHandler.LoginUser).Methods("POST", "OPTIONS")

	// User routes
	userRouter := r.PathPrefix("/user").Subrouter()
	userRouter.Use(requireAuth)
	userRouter.HandleFunc("/ping", users.PingLocation).Methods("POST", "OPTIONS")
	userRouter.HandleFunc("/favorites", users.GetFavorites).Methods("GET", "OPTIONS")
	userRouter.HandleFunc("/favorites", users.AddFavorite).Methods("POST")
	userRouter.HandleFunc("/favorites/{id}", users.RemoveFavorite).Methods("DELETE", "OPTIONS")

	// Toilet routes
	r.Handle("/toilets", requireAuth(http.HandlerFunc(toilets.SubmitToilet))).Methods("POST", "OPTIONS")
	toiletRouter := r.PathPrefix("/toilets").Subrouter()
	toiletRouter.HandleFunc("/nearby", toilets.GetNearbyToilets).Methods("GET", "OPTIONS")
	toiletRouter.HandleFunc("/clusters", toilets.GetClusters).Methods("GET", "OPTIONS")
	toiletRouter.HandleFunc("/{id}", toilets.GetToilet).Methods("GET", "OPTIONS")

	return r
}
