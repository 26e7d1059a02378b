package services

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"loo-finder/models"
	"loo-finder/utils/auth"
	"loo-finder/utils/errors"
	"loo-finder/utils/geo"
)

const userCacheTTL = 24 * time.Hour

type UserService struct {
	collection  *mongo.Collection
	redisClient *redis.Client
	jwtSecret   string
}

func NewUserService(collection *mongo.Collection, redisClient *redis.Client, jwtSecret string) *UserService {
	// Ensure unique index on username and email
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}, {Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := collection.Indexes().CreateOne(context.Background(), indexModel); err != nil {
		log.Printf("Failed to create unique index on users: %v", err)
	}

	return &UserService{
		collection:  collection,
		redisClient: redisClient,
		jwtSecret:   jwtSecret,
	}
}

// GetUser retrieves a user from Redis or MongoDB
func (s *UserService) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User

	// Check Redis first
	userJSON, err := s.redisClient.Get(ctx, "user:"+userID).Result()
	if err == nil {
		if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
			log.Printf("Failed to unmarshal user %s: %v", userID, err)
		} else {
			return user, nil
		}
	}

	err = s.collection.FindOne(ctx, bson.M{"public_id": bson.M{"$eq": userID}}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return models.User{}, errors.ErrNotFound
	}
	if err != nil {
		return models.User{}, errors.Wrap(err, "DB_ERROR", "Failed to load user", http.StatusInternalServerError)
	}

	s.cacheUser(ctx, user, userCacheTTL)
	return user, nil
}

func (s *UserService) cacheUser(ctx context.Context, user models.User, ttl time.Duration) {
	userJSON, err := json.Marshal(user)
	if err != nil {
		log.Printf("Failed to marshal user %s: %v", user.PublicID, err)
		return
	}
	if err := s.redisClient.Set(ctx, "user:"+user.PublicID, userJSON, ttl).Err(); err != nil {
		log.Printf("Failed to cache user %s: %v", user.PublicID, err)
	}
}

func (s *UserService) invalidate(ctx context.Context, userID string) {
	if err := s.redisClient.Del(ctx, "user:"+userID).Err(); err != nil {
		log.Printf("Failed to invalidate cached user %s: %v", userID, err)
	}
}

// UserLocationPing records the caller's last known location.
func (s *UserService) UserLocationPing(ctx context.Context, lat, lon float64) error {
	userID, ok := auth.UserID(ctx)
	if !ok {
		return errors.ErrUnauthorized
	}
	if !geo.ValidCoordinate(lat, lon) {
		return errors.ErrInvalidCoordinate
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	location := models.Coordinate{Latitude: lat, Longitude: lon}.GeoJSON()
	update := bson.M{"$set": bson.M{"last_location": location}}
	if _, err := s.collection.UpdateOne(ctx, bson.M{"public_id": userID}, update); err != nil {
		log.Printf("Failed to update MongoDB user location: %v", err)
		return errors.Wrap(err, "DB_ERROR", "Failed to update location", http.StatusInternalServerError)
	}

	// Short TTL so a stale location does not outlive the session
	user.LastLocation = location
	s.cacheUser(ctx, user, 5*time.Minute)

	log.Printf("Updated location for user %s: lat=%f, lon=%f", userID, lat, lon)
	return nil
}

// Favorites returns the caller's favourite toilet ids.
func (s *UserService) Favorites(ctx context.Context) ([]string, error) {
	userID, ok := auth.UserID(ctx)
	if !ok {
		return nil, errors.ErrUnauthorized
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.FavoriteToilets == nil {
		return []string{}, nil
	}
	return user.FavoriteToilets, nil
}

func (s *UserService) AddFavorite(ctx context.Context, toiletID string) error {
	return s.updateFavorites(ctx, "$addToSet", toiletID)
}

func (s *UserService) RemoveFavorite(ctx context.Context, toiletID string) error {
	return s.updateFavorites(ctx, "$pull", toiletID)
}

func (s *UserService) updateFavorites(ctx context.Context, op, toiletID string) error {
	userID, ok := auth.UserID(ctx)
	if !ok {
		return errors.ErrUnauthorized
	}
	if toiletID == "" {
		return errors.ErrInvalidInput
	}
	result, err := s.collection.UpdateOne(ctx, bson.M{"public_id": userID}, bson.M{
		op: bson.M{"favorite_toilets": toiletID},
	})
	if err != nil {
		log.Printf("Failed to update favourites for %s: %v", userID, err)
		return errors.Wrap(err, "DB_ERROR", "Failed to update favourites", http.StatusInternalServerError)
	}
	if result.MatchedCount == 0 {
		return errors.ErrNotFound
	}
	s.invalidate(ctx, userID)
	return nil
}
