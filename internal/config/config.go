package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"oraculo-bot/utils"

	"github.com/joho/godotenv"
)

const defaultSystemPrompt = "You are a helpful legal assistant. Answer clearly and objectively, " +
	"and when relevant context from uploaded legal documents is provided, ground your answer in it."

type Config struct {
	// Discord
	DiscordToken    string
	MaxHistoryTurns int

	// OpenRouter completion API
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	ModelDefault      string
	SystemPrompt      string
	RequestTimeout    time.Duration
	MaxOutputTokens   int
	Temperature       float64

	// RAG
	RAGEnabled          bool
	MaxContextTokens    int
	SimilarityThreshold float64
	ChunkSize           int
	ChunkOverlap        int
	SearchLimit         int

	// Embeddings API
	EmbeddingsAPIKey  string
	EmbeddingsBaseURL string
	EmbeddingsModel   string
	EmbeddingsRPS     float64
	EmbeddingsBurst   int

	// MongoDB vector store
	MongoURI            string
	DBName              string
	VectorSearchEnabled bool
	VectorIndexName     string
	VectorDimensions    int

	// Document ingestion
	MaxFileSize         int64
	SyncProcessingLimit int64
	FileStorageDir      string

	// Redis / queue
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Admin HTTP API ("" port disables it)
	AdminPort       string
	AdminAPIKeyHash string
	JWTSecret       string
	GinMode         string
	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow int

	// Moderation log files
	ModerationLogFile string
	WarnFile          string

	// Observability
	LogLevel     string
	OtelEnabled  bool
	OtelEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		DiscordToken:    getEnv("DISCORD_TOKEN", ""),
		MaxHistoryTurns: getEnvInt("MAX_HISTORY_TURNS", 6),

		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: strings.TrimRight(getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"), "/"),
		ModelDefault:      getEnv("MODEL_DEFAULT", "openai/gpt-4o-mini"),
		SystemPrompt:      getEnv("SYSTEM_PROMPT", defaultSystemPrompt),
		RequestTimeout:    time.Duration(getEnvInt("REQUEST_TIMEOUT", 60)) * time.Second,
		MaxOutputTokens:   getEnvInt("MAX_OUTPUT_TOKENS", 1024),
		Temperature:       getEnvFloat64("TEMPERATURE", 0.7),

		RAGEnabled:          getEnvBool("RAG_ENABLED", true),
		MaxContextTokens:    getEnvInt("MAX_CONTEXT_TOKENS", 3000),
		SimilarityThreshold: getEnvFloat64("SIMILARITY_THRESHOLD", 0.7),
		ChunkSize:           getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:        getEnvInt("CHUNK_OVERLAP", 200),
		SearchLimit:         getEnvInt("SEARCH_LIMIT", 10),

		EmbeddingsAPIKey:  getEnv("EMBEDDINGS_API_KEY", ""),
		EmbeddingsBaseURL: strings.TrimRight(getEnv("EMBEDDINGS_BASE_URL", "https://api.openai.com/v1"), "/"),
		EmbeddingsModel:   getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
		EmbeddingsRPS:     getEnvFloat64("EMBEDDINGS_RPS", 5),
		EmbeddingsBurst:   getEnvInt("EMBEDDINGS_BURST", 10),

		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017/oraculo"),
		DBName:              getEnv("DB_NAME", "oraculo"),
		VectorSearchEnabled: getEnvBool("MONGODB_VECTOR_ENABLED", false),
		VectorIndexName:     getEnv("VECTOR_INDEX_NAME", "chunks_vector"),
		VectorDimensions:    getEnvInt("VECTOR_DIM", 1536),

		MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 10485760), // 10MB
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 2097152),
		FileStorageDir:      getEnv("FILE_STORAGE_DIR", "./storage"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		AdminPort:       getEnv("ADMIN_PORT", "8080"),
		AdminAPIKeyHash: getEnv("ADMIN_API_KEY_HASH", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		GinMode:         getEnv("GIN_MODE", "release"),
		CORSOrigins:     strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		ModerationLogFile: getEnv("MODERATION_LOG_FILE", "moderation_log.json"),
		WarnFile:          getEnv("WARN_FILE", "warns.json"),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		OtelEnabled:  getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint: getEnv("OTEL_ENDPOINT", "localhost:4317"),
	}

	if cfg.EmbeddingsAPIKey == "" {
		cfg.EmbeddingsAPIKey = cfg.OpenRouterAPIKey
	}

	// A plain ADMIN_API_KEY is accepted as an alternative to the hash; it
	// is hashed at load so only the bcrypt hash stays in memory.
	if cfg.AdminAPIKeyHash == "" {
		if plain := getEnv("ADMIN_API_KEY", ""); plain != "" {
			hash, err := utils.HashAPIKey(plain)
			if err != nil {
				return nil, fmt.Errorf("failed to hash ADMIN_API_KEY: %v", err)
			}
			cfg.AdminAPIKeyHash = hash
		}
	}

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required - set it in .env file")
	}

	if cfg.OpenRouterAPIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required - set it in .env file")
	}

	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}

	if cfg.ChunkOverlap < 0 {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be non-negative, got %d", cfg.ChunkOverlap)
	}

	// An overlap at or above the chunk size would stall chunking progress.
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)",
			cfg.ChunkOverlap, cfg.ChunkSize)
	}

	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("SIMILARITY_THRESHOLD must be between 0 and 1, got %f", cfg.SimilarityThreshold)
	}

	if cfg.AdminPort != "" && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required when the admin API is enabled - set it in .env file")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
