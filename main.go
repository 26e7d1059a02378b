package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"loo-finder/config"
	"loo-finder/handlers"
	"loo-finder/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// MongoDB
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		log.Fatalf("MongoDB connection failed: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	if err := mongoClient.Ping(ctx, nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	log.Println("Connected to MongoDB")
	db := mongoClient.Database(cfg.Mongo.Database)

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	toiletService := services.NewToiletService(db.Collection("toilets"), redisClient)
	if err := toiletService.SeedIfEmpty(ctx, cfg.Server.SeedFile); err != nil {
		log.Fatalf("Failed to seed toilets: %v", err)
	}
	if err := toiletService.RebuildIndex(ctx); err != nil {
		log.Fatalf("Failed to index toilets: %v", err)
	}
	userService := services.NewUserService(db.Collection("users"), redisClient, cfg.Auth.JWTSecret)

	engine := services.NewClusterEngine()
	engine.PointSize = cfg.Cluster.PointSize
	engine.TileSize = cfg.Cluster.TileSize
	engine.MaxZoom = cfg.Cluster.MaxZoom
	engine.SortByID = cfg.Cluster.SortByID

	router := handlers.NewRouter(
		handlers.RouterConfig{JWTSecret: cfg.Auth.JWTSecret, AllowedOrigins: cfg.Server.AllowedOrigins},
		handlers.NewToiletHandler(toiletService, engine),
		handlers.NewUserHandler(userService),
		handlers.NewAuthHandler(userService),
	)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Server starting on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
