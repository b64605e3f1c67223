/**
 * Configuration for the document-processing engine.
 *
 * Loads configuration from environment variables.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds engine-wide configuration.
type Config struct {
	// Storage
	StorageBaseDir  string
	OutputImageDir  string
	DatabaseURL     string
	QdrantURL       string
	QdrantCollection string

	// OCR
	OCREnabled bool
	OCRLang    string
	TesseractPath string

	// Quota manager
	QuotaEnabled    bool
	DailyTokenBudget int64
	QuotaTimezone   string

	// LLM providers
	PreferredProvider string // "remote-a", "remote-b", "auto"
	LLMFallbackEnabled bool
	ProviderAAPIKey   string
	ProviderABaseURL  string
	ProviderBAPIKey   string
	ProviderBBaseURL  string

	// Embedding
	EmbeddingAPIKey string
	EmbeddingModel  string
	EmbeddingBatchSize int

	// Orchestrator / queue
	WorkerPoolSize int
	RedisURL       string
	QueueName      string
	DocumentTaskTimeout time.Duration

	// Progress bus
	ProgressMaxSubscribers  int
	ProgressHeartbeat       time.Duration
	ProgressConnTimeout     time.Duration

	NodeEnv string
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		StorageBaseDir:   getEnvOrDefault("STORAGE_BASE_DIR", "/tmp/docengine/storage"),
		OutputImageDir:   getEnvOrDefault("OUTPUT_IMAGE_DIR", "/tmp/docengine/images"),
		DatabaseURL:      getEnvOrDefault("DATABASE_URL", ""),
		QdrantURL:        getEnvOrDefault("QDRANT_URL", "localhost:6334"),
		QdrantCollection: getEnvOrDefault("QDRANT_COLLECTION", "docengine_embeddings"),

		OCREnabled:    getEnvAsBoolOrDefault("OCR_ENABLED", true),
		OCRLang:       getEnvOrDefault("OCR_LANG", "eng"),
		TesseractPath: getEnvOrDefault("TESSERACT_PATH", "tesseract"),

		QuotaEnabled:     getEnvAsBoolOrDefault("QUOTA_ENABLED", true),
		DailyTokenBudget: getEnvAsInt64OrDefault("DAILY_TOKEN_BUDGET", 1000000),
		QuotaTimezone:    getEnvOrDefault("QUOTA_TIMEZONE", "America/Los_Angeles"),

		PreferredProvider:  getEnvOrDefault("PREFERRED_PROVIDER", "auto"),
		LLMFallbackEnabled: getEnvAsBoolOrDefault("LLM_FALLBACK_ENABLED", true),
		ProviderAAPIKey:    getEnvOrDefault("PROVIDER_A_API_KEY", ""),
		ProviderABaseURL:   getEnvOrDefault("PROVIDER_A_BASE_URL", "https://api.openai.com/v1"),
		ProviderBAPIKey:    getEnvOrDefault("PROVIDER_B_API_KEY", ""),
		ProviderBBaseURL:   getEnvOrDefault("PROVIDER_B_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		EmbeddingAPIKey:    getEnvOrDefault("EMBEDDING_API_KEY", ""),
		EmbeddingModel:     getEnvOrDefault("EMBEDDING_MODEL", "voyage-3"),
		EmbeddingBatchSize: getEnvAsIntOrDefault("EMBEDDING_BATCH_SIZE", 64),

		WorkerPoolSize:      getEnvAsIntOrDefault("WORKER_POOL_SIZE", 10),
		RedisURL:            getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:           getEnvOrDefault("QUEUE_NAME", "docengine:documents"),
		DocumentTaskTimeout: getEnvAsDurationOrDefault("DOCUMENT_TASK_TIMEOUT", 10*time.Minute),

		ProgressMaxSubscribers: getEnvAsIntOrDefault("PROGRESS_MAX_SUBSCRIBERS", 50),
		ProgressHeartbeat:      getEnvAsDurationOrDefault("PROGRESS_HEARTBEAT", 15*time.Second),
		ProgressConnTimeout:    getEnvAsDurationOrDefault("PROGRESS_CONN_TIMEOUT", 30*time.Second),

		NodeEnv: getEnvOrDefault("NODE_ENV", "development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.WorkerPoolSize < 1 || c.WorkerPoolSize > 1000 {
		return fmt.Errorf("WORKER_POOL_SIZE must be between 1 and 1000, got %d", c.WorkerPoolSize)
	}
	if c.DailyTokenBudget < 0 {
		return fmt.Errorf("DAILY_TOKEN_BUDGET must be non-negative, got %d", c.DailyTokenBudget)
	}
	if c.ProgressMaxSubscribers < 1 {
		return fmt.Errorf("PROGRESS_MAX_SUBSCRIBERS must be at least 1, got %d", c.ProgressMaxSubscribers)
	}
	pref := strings.ToLower(c.PreferredProvider)
	if pref != "remote-a" && pref != "remote-b" && pref != "auto" {
		return fmt.Errorf("PREFERRED_PROVIDER must be one of remote-a, remote-b, auto, got %q", c.PreferredProvider)
	}
	if c.EmbeddingBatchSize < 1 || c.EmbeddingBatchSize > 1000 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be between 1 and 1000, got %d", c.EmbeddingBatchSize)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return i
}

func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultValue
	}
	return i
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
