package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// Static API key protecting the HTTP surface; auth is disabled when empty.
	APIKey string `envconfig:"API_KEY"`

	// Optional durable pgvector index and graph edge store.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Optional workspace archive bucket.
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"recall-workspaces"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	// Inferred from the model name when unset. The pgvector index column is
	// sized at 1536, so DATABASE_URL requires a 1536-dimension model.
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS"`
	ChatModel           string `envconfig:"CHAT_MODEL"`

	// Memory file layout.
	ChunkSourcePaths   []string `envconfig:"CHUNK_SOURCE_PATHS"`
	EmbeddingsPath     string   `envconfig:"EMBEDDINGS_PATH"`
	InteractionLogPath string   `envconfig:"INTERACTION_LOG_PATH" default:"interactions.json"`
	MinEmbeddingsWarn  int      `envconfig:"MIN_EMBEDDINGS_WARN" default:"10"`

	// Research pipeline knobs.
	ResearchTargetSources int `envconfig:"RESEARCH_TARGET_SOURCES" default:"40"`
	ResearchBatchSize     int `envconfig:"RESEARCH_BATCH_SIZE" default:"8"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("RECALL", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}
