// Package config reads service settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN is the libpq keyword/value form accepted by both gorm and lib/pq.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type Config struct {
	Port    string
	Backend string

	Database Database

	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostCacheTTL  time.Duration

	ElasticsearchURL   string
	ElasticsearchIndex string

	JWTSecret string

	SupabaseURL string
	SupabaseKey string
	BucketName  string

	LogLevel  string
	LogFormat string
}

// Load reads the environment. It fails only on settings that cannot be
// defaulted.
func Load() (*Config, error) {
	cfg := &Config{
		Port:    getenv("PORT", "8080"),
		Backend: strings.ToLower(getenv("STORE_BACKEND", BackendPostgres)),
		Database: Database{
			Host:     getenv("DB_HOST", "localhost"),
			Port:     getenv("DB_PORT", "5432"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getenv("DB_NAME", "tripshare"),
			SSLMode:  getenv("DB_SSLMODE", "disable"),
		},
		MongoURI:           getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getenv("MONGO_DATABASE", "tripshare"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            IntFromString(os.Getenv("REDIS_DB"), 0),
		PostCacheTTL:       time.Duration(IntFromString(os.Getenv("POST_CACHE_TTL_SECONDS"), 300)) * time.Second,
		ElasticsearchURL:   os.Getenv("ELASTICSEARCH_URL"),
		ElasticsearchIndex: getenv("ELASTICSEARCH_INDEX", "posts"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseKey:        os.Getenv("SUPABASE_KEY"),
		BucketName:         os.Getenv("BUCKET_NAME"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "text"),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}
	switch cfg.Backend {
	case BackendPostgres, BackendMongo, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Backend)
	}
	return cfg, nil
}

// IntFromString parses s, falling back to defaultValue when it is not a number.
func IntFromString(s string, defaultValue int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultValue
	}
	return n
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
