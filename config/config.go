package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Cluster ClusterConfig `mapstructure:"cluster"`
	Client  ClientConfig  `mapstructure:"client"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SeedFile       string   `mapstructure:"seed_file"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// CacheConfig tunes when the client's result cache refetches.
type CacheConfig struct {
	DistanceThresholdMeters float64       `mapstructure:"distance_threshold_meters"`
	TimeThreshold           time.Duration `mapstructure:"time_threshold"`
	SearchRadiusMeters      float64       `mapstructure:"search_radius_meters"`
}

type ClusterConfig struct {
	PointSize int  `mapstructure:"point_size"`
	TileSize  int  `mapstructure:"tile_size"`
	MaxZoom   int  `mapstructure:"max_zoom"`
	SortByID  bool `mapstructure:"sort_by_id"`
}

type ClientConfig struct {
	BackendURL      string  `mapstructure:"backend_url"`
	FetchMaxRetries int     `mapstructure:"fetch_max_retries"`
	DefaultSpan     float64 `mapstructure:"default_span"`
}

// environment variable names the backend has always used
var envBindings = map[string]string{
	"server.port":                     "PORT",
	"server.allowed_origins":          "ALLOWED_ORIGINS",
	"server.seed_file":                "SEED_FILE",
	"mongo.uri":                       "MONGODB_URI",
	"mongo.database":                  "MONGODB_DATABASE",
	"redis.addr":                      "REDIS_ADDR",
	"redis.db":                        "REDIS_DB",
	"auth.jwt_secret":                 "JWT_SECRET",
	"cache.distance_threshold_meters": "CACHE_DISTANCE_THRESHOLD_METERS",
	"cache.time_threshold":            "CACHE_TIME_THRESHOLD",
	"cache.search_radius_meters":      "SEARCH_RADIUS_METERS",
	"cluster.point_size":              "CLUSTER_POINT_SIZE",
	"cluster.tile_size":               "CLUSTER_TILE_SIZE",
	"cluster.max_zoom":                "CLUSTER_MAX_ZOOM",
	"cluster.sort_by_id":              "CLUSTER_SORT_BY_ID",
	"client.backend_url":              "BACKEND_URL",
	"client.fetch_max_retries":        "FETCH_MAX_RETRIES",
	"client.default_span":             "DEFAULT_SPAN",
}

// Load reads .env, an optional config.yaml and the environment, in that order
// of increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment and defaults")
	}

	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.seed_file", "./data/sg-toilets.json")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "loo_db")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("cache.distance_threshold_meters", 100.0)
	v.SetDefault("cache.time_threshold", 5*time.Minute)
	v.SetDefault("cache.search_radius_meters", 1500.0)
	v.SetDefault("cluster.point_size", 40)
	v.SetDefault("cluster.tile_size", 512)
	v.SetDefault("cluster.max_zoom", 21)
	v.SetDefault("cluster.sort_by_id", false)
	v.SetDefault("client.backend_url", "http://localhost:8080")
	v.SetDefault("client.fetch_max_retries", 2)
	v.SetDefault("client.default_span", 0.02)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Server.AllowedOrigins = splitOrigins(cfg.Server.AllowedOrigins)
	return &cfg, nil
}

// ALLOWED_ORIGINS arrives as one comma separated string.
func splitOrigins(in []string) []string {
	var out []string
	for _, s := range in {
		for _, o := range strings.Split(s, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

// Validate checks the settings the backend server needs.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Mongo.URI == "" {
		errs = append(errs, "MONGODB_URI is required")
	}
	if c.Redis.Addr == "" {
		errs = append(errs, "REDIS_ADDR is required")
	}
	if c.Redis.DB < 0 {
		errs = append(errs, "REDIS_DB must not be negative")
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}
	errs = append(errs, c.clientErrors()...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateClient checks only the settings the map client needs.
func (c *Config) ValidateClient() error {
	errs := c.clientErrors()
	if c.Client.BackendURL == "" {
		errs = append(errs, "BACKEND_URL is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) clientErrors() []string {
	var errs []string
	if c.Cache.DistanceThresholdMeters <= 0 {
		errs = append(errs, "cache.distance_threshold_meters must be positive")
	}
	if c.Cache.TimeThreshold <= 0 {
		errs = append(errs, "cache.time_threshold must be positive")
	}
	if c.Cache.SearchRadiusMeters <= 0 {
		errs = append(errs, "cache.search_radius_meters must be positive")
	}
	if c.Cluster.PointSize <= 0 || c.Cluster.TileSize <= 0 {
		errs = append(errs, "cluster.point_size and cluster.tile_size must be positive")
	}
	if c.Cluster.MaxZoom < 0 || c.Cluster.MaxZoom > 21 {
		errs = append(errs, fmt.Sprintf("cluster.max_zoom must be 0-21, got %d", c.Cluster.MaxZoom))
	}
	return errs
}
