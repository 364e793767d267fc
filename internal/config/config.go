package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	StoreBackend string
	DatabaseURL  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI      string
	MongoDatabase string

	ExpoPushURL     string
	ExpoAccessToken string
	NotifyWorkers   int
	NotifyQueue     int

	WarSweepInterval time.Duration
	NegotiationTTL   time.Duration
	WarRetention     time.Duration

	WSPingInterval time.Duration
	RateLimit      float64
	RateBurst      int
}

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

func Load() (*Config, error) {
	env := getenv("ENV", "development")

	// .env.{ENV} first, then .env; variables already in the environment win.
	for _, path := range []string{".env." + env, ".env"} {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := &Config{
		Env:              env,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		StoreBackend:     getenv("STORE_BACKEND", BackendPostgres),
		DatabaseURL:      getenv("DATABASE_URL", ""),
		RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getenv("REDIS_PASSWORD", ""),
		RedisDB:          getenvInt("REDIS_DB", 0),
		MongoURI:         getenv("MONGO_URI", ""),
		MongoDatabase:    getenv("MONGO_DATABASE", "oreblogda"),
		ExpoPushURL:      getenv("EXPO_PUSH_URL", "https://exp.host/--/api/v2/push/send"),
		ExpoAccessToken:  getenv("EXPO_ACCESS_TOKEN", ""),
		NotifyWorkers:    getenvInt("NOTIFY_WORKERS", 4),
		NotifyQueue:      getenvInt("NOTIFY_QUEUE", 1024),
		WarSweepInterval: time.Duration(getenvInt("WAR_SWEEP_INTERVAL_SEC", 60)) * time.Second,
		NegotiationTTL:   time.Duration(getenvInt("NEGOTIATION_TTL_HOURS", 168)) * time.Hour,
		WarRetention:     time.Duration(getenvInt("WAR_RETENTION_DAYS", 30)) * 24 * time.Hour,
		WSPingInterval:   time.Duration(getenvInt("WS_PING_INTERVAL_SEC", 30)) * time.Second,
		RateLimit:        getenvFloat("RATE_LIMIT_RPS", 20),
		RateBurst:        getenvInt("RATE_LIMIT_BURST", 40),
	}

	switch cfg.StoreBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, cfg.StoreBackend)
	}
	if cfg.WarSweepInterval <= 0 {
		return nil, fmt.Errorf("WAR_SWEEP_INTERVAL_SEC must be positive")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
