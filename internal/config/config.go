package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr            string
	DatabaseURL     string
	ProviderBaseURL string

	// AllowFallback substitutes built-in media when the provider is down.
	// Local-play affordance; never enable in production.
	AllowFallback bool

	Dev bool
}

// Load reads .env when present, then the environment. Missing keys fall
// back to local-development defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:            getenv("ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		ProviderBaseURL: getenv("PROVIDER_BASE_URL", "http://localhost:9000"),
		AllowFallback:   getbool("ALLOW_FALLBACK_MEDIA", false),
		Dev:             getbool("DEV", false),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
