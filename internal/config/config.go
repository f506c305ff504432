package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string
	JWTSecret    string

	// Context window and caching knobs.
	TokenBudget          int
	ContextTailSize      int
	SummaryWindowSize    int
	CacheTTLSeconds      int
	StreamTimeoutSeconds int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:          getEnv("DATABASE_URL", "parley.db"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		TokenBudget:          getEnvAsInt("TOKEN_BUDGET", 900000),
		ContextTailSize:      getEnvAsInt("CONTEXT_TAIL_SIZE", 20),
		SummaryWindowSize:    getEnvAsInt("SUMMARY_WINDOW_SIZE", 20),
		CacheTTLSeconds:      getEnvAsInt("CACHE_TTL_SECONDS", 3600),
		StreamTimeoutSeconds: getEnvAsInt("STREAM_TIMEOUT_SECONDS", 120),
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
