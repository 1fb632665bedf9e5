package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	CSVDir      string
	PlanFile    string
	LogLevel    string
	DatabaseURL string
	WorkerCount int

	// DotEnv reports whether a .env file was loaded.
	DotEnv bool
}

// Load reads the configuration from the environment, after loading .env if
// one exists. Logging is not configured yet, so nothing is logged here.
func Load() *Config {
	loaded := godotenv.Load() == nil

	return &Config{
		CSVDir:      getEnv("CSV_DIR", "csv"),
		PlanFile:    getEnv("PLAN_FILE", "patch.yaml"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		WorkerCount: getEnvInt("WORKER_COUNT", 4),
		DotEnv:      loaded,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
