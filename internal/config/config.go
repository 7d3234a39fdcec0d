package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUrl     string
	Port      string
	JWTSecret string

	RedisURL string
	CacheTTL time.Duration

	StoreOpTimeout time.Duration
	PageSize       int
	PageWait       time.Duration

	RateLimit float64
	RateBurst int

	LogLevel  string
	LogFormat string
}

func LoadConfig() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println(".env file not found, using defaults")
	}

	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		DBUrl:          getEnv("DB_URL", "root:root@tcp(localhost:3306)/merchants?parseTime=true"),
		Port:           port,
		JWTSecret:      os.Getenv("JWT_SECRET"),
		RedisURL:       os.Getenv("REDIS_URL"),
		CacheTTL:       getDuration("CACHE_TTL", 5*time.Minute),
		StoreOpTimeout: getDuration("STORE_OP_TIMEOUT", 10*time.Second),
		PageSize:       getInt("PAGE_SIZE", 20),
		PageWait:       getDuration("PAGE_WAIT", 2*time.Second),
		RateLimit:      getFloat("RATE_LIMIT", 10),
		RateBurst:      getInt("RATE_BURST", 20),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
