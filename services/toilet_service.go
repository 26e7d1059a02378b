package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"loo-finder/models"
	"loo-finder/utils/errors"
)

const (
	toiletGeoKey     = "toilets:geo"
	toiletHashPrefix = "toilet:"

	// MaxSearchRadius caps a single radius search.
	MaxSearchRadius = 20000
	maxSearchCount  = 200
)

// ToiletFinder is the radius-search contract: every toilet within
// radiusMeters of center, closest first.
type ToiletFinder interface {
	FindNearby(ctx context.Context, center models.Coordinate, radiusMeters float64) ([]models.Toilet, error)
}

// ToiletService answers radius searches from a Redis GEO index that mirrors
// the Mongo toilet collection.
type ToiletService struct {
	collection  *mongo.Collection
	redisClient *redis.Client
}

func NewToiletService(collection *mongo.Collection, redisClient *redis.Client) *ToiletService {
	return &ToiletService{collection: collection, redisClient: redisClient}
}

// FindNearby with Redis
func (s *ToiletService) FindNearby(ctx context.Context, center models.Coordinate, radiusMeters float64) ([]models.Toilet, error) {
	if !center.Valid() {
		return nil, errors.ErrInvalidCoordinate
	}
	if radiusMeters <= 0 || radiusMeters > MaxSearchRadius {
		return nil, errors.NewAPIError("INVALID_RADIUS", fmt.Sprintf("radius must be within (0, %d] meters", MaxSearchRadius), http.StatusBadRequest)
	}

	geoResults, err := s.redisClient.GeoSearchLocation(ctx, toiletGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Longitude,
			Latitude:   center.Latitude,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
			Count:      maxSearchCount,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		log.Printf("Redis GeoSearch error: %v", err)
		return nil, errors.Wrap(err, "SEARCH_ERROR", "Failed to search toilets", http.StatusInternalServerError)
	}
	if len(geoResults) == 0 {
		return []models.Toilet{}, nil
	}

	pipe := s.redisClient.Pipeline()
	cmds := make([]*redis.StringCmd, len(geoResults))
	for i, geoResult := range geoResults {
		cmds[i] = pipe.HGet(ctx, toiletHashPrefix+geoResult.Name, "data")
	}
	// individual misses surface on each cmd below
	_, _ = pipe.Exec(ctx)

	results := make([]models.Toilet, 0, len(geoResults))
	for i, geoResult := range geoResults {
		toiletJSON, err := cmds[i].Result()
		if err != nil {
			log.Printf("Redis HGet error for toilet %s: %v", geoResult.Name, err)
			continue
		}
		var toilet models.Toilet
		if err := json.Unmarshal([]byte(toiletJSON), &toilet); err != nil {
			log.Printf("Failed to unmarshal toilet %s: %v", geoResult.Name, err)
			continue
		}
		toilet.Distance = geoResult.Dist
		results = append(results, toilet)
	}

	log.Printf("Found %d toilets within %.0f meters of %.5f,%.5f", len(results), radiusMeters, center.Latitude, center.Longitude)
	return results, nil
}

// GetToilet loads a single toilet from the Redis mirror.
func (s *ToiletService) GetToilet(ctx context.Context, id string) (models.Toilet, error) {
	toiletJSON, err := s.redisClient.HGet(ctx, toiletHashPrefix+id, "data").Result()
	if err == redis.Nil {
		return models.Toilet{}, errors.ErrNotFound
	}
	if err != nil {
		return models.Toilet{}, errors.Wrap(err, "CACHE_ERROR", "Failed to load toilet", http.StatusInternalServerError)
	}
	var toilet models.Toilet
	if err := json.Unmarshal([]byte(toiletJSON), &toilet); err != nil {
		return models.Toilet{}, errors.Wrap(err, "DECODE_ERROR", "Failed to decode toilet", http.StatusInternalServerError)
	}
	return toilet, nil
}

// AddToilet validates and stores a submitted toilet, returning it with its new id.
func (s *ToiletService) AddToilet(ctx context.Context, toilet models.Toilet) (models.Toilet, error) {
	toilet.Name = strings.TrimSpace(toilet.Name)
	if toilet.Name == "" {
		return models.Toilet{}, errors.NewAPIError("INVALID_INPUT", "Toilet name is required", http.StatusBadRequest)
	}
	coord, ok := toilet.Coordinate()
	if !ok {
		return models.Toilet{}, errors.ErrInvalidCoordinate
	}
	toilet.ID = uuid.New().String()
	toilet.Location = coord.GeoJSON()
	toilet.Distance = 0
	if toilet.Tags == nil {
		toilet.Tags = []string{}
	}

	if _, err := s.collection.InsertOne(ctx, toilet); err != nil {
		return models.Toilet{}, errors.Wrap(err, "DB_ERROR", "Failed to store toilet", http.StatusInternalServerError)
	}
	if err := s.index(ctx, toilet); err != nil {
		return models.Toilet{}, errors.Wrap(err, "CACHE_ERROR", "Failed to index toilet", http.StatusInternalServerError)
	}
	log.Printf("Toilet %s (%s) submitted by %s", toilet.ID, toilet.Name, toilet.SubmittedBy)
	return toilet, nil
}

func (s *ToiletService) index(ctx context.Context, toilet models.Toilet) error {
	coord, ok := toilet.Coordinate()
	if !ok {
		return fmt.Errorf("toilet %s: invalid location %v", toilet.ID, toilet.Location.Coordinates)
	}
	toiletJSON, err := json.Marshal(toilet)
	if err != nil {
		return fmt.Errorf("marshal toilet %s: %w", toilet.ID, err)
	}
	_, err = s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, toiletHashPrefix+toilet.ID, "data", toiletJSON)
		pipe.GeoAdd(ctx, toiletGeoKey, &redis.GeoLocation{
			Name:      toilet.ID,
			Longitude: coord.Longitude,
			Latitude:  coord.Latitude,
		})
		return nil
	})
	return err
}

// RebuildIndex reloads every toilet from Mongo into Redis.
func (s *ToiletService) RebuildIndex(ctx context.Context) error {
	log.Println("Indexing toilets into Redis...")
	if err := s.redisClient.Del(ctx, toiletGeoKey).Err(); err != nil {
		return fmt.Errorf("clear geo index: %w", err)
	}

	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("load toilets: %w", err)
	}
	defer cursor.Close(ctx)
	var toilets []models.Toilet
	if err := cursor.All(ctx, &toilets); err != nil {
		return fmt.Errorf("decode toilets: %w", err)
	}

	indexed := 0
	for _, toilet := range toilets {
		if err := s.index(ctx, toilet); err != nil {
			log.Printf("Failed to index toilet %s: %v", toilet.ID, err)
			continue
		}
		indexed++
	}
	log.Printf("Indexed %d of %d toilets into Redis", indexed, len(toilets))
	return nil
}

// SeedIfEmpty loads toilets from a JSON file into Mongo when the collection has none.
func (s *ToiletService) SeedIfEmpty(ctx context.Context, path string) error {
	count, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("count toilets: %w", err)
	}
	if count > 0 {
		return nil
	}

	log.Printf("No toilets found in MongoDB, seeding from %s...", path)
	toilets, err := LoadToilets(path)
	if err != nil {
		return err
	}
	docs := make([]any, 0, len(toilets))
	for _, toilet := range toilets {
		if _, ok := toilet.Coordinate(); !ok {
			log.Printf("Skipping seed toilet %s with invalid location", toilet.ID)
			continue
		}
		docs = append(docs, toilet)
	}
	if len(docs) == 0 {
		return nil
	}
	result, err := s.collection.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("seed toilets: %w", err)
	}
	log.Printf("Inserted %d toilets into MongoDB", len(result.InsertedIDs))
	return nil
}

// LoadToilets reads a JSON array of toilets.
func LoadToilets(path string) ([]models.Toilet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer file.Close()

	var toilets []models.Toilet
	if err := json.NewDecoder(file).Decode(&toilets); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return toilets, nil
}
