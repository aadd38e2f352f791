// Package config assembles the worker configuration from the environment
// and validates it before anything connects anywhere.
package config

import (
	"fmt"

	"github.com/tutorstack/backend/internal/util"

	"github.com/go-playground/validator"
)

// Config holds every setting the worker reads from the environment.
type Config struct {
	DatabaseURL string `validate:"required"`

	AIAdapter      string `validate:"oneof=openai ollama"`
	EmbedModel     string `validate:"required"`
	ChatModel      string `validate:"required"`
	ScoringModel   string
	EmbedURL       string
	EmbedKey       string
	ChatURL  string
	ChatKey  string
	// EmbedDimension must match the vector column width in the chunks
	// migration; changing it requires an ALTER TABLE migration too.
	EmbedDimension int `validate:"gt=0"`

	RabbitMQUser     string `validate:"required"`
	RabbitMQPassword string `validate:"required"`
	RabbitMQHost     string `validate:"required"`
	RabbitMQPort     string `validate:"required"`

	TargetChunkTokens  int     `validate:"gt=0"`
	OverlapTokens      int     `validate:"gte=0"`
	BoundarySimilarity float64 `validate:"gt=0,lte=1"`

	Debug bool
}

// Load reads the environment (including a local .env file) into a validated
// Config.
func Load() (*Config, error) {
	util.LoadEnv()

	cfg := &Config{
		DatabaseURL: util.GetEnv("DATABASE_URL"),

		AIAdapter:      util.GetEnvString("AI_ADAPTER", "openai"),
		EmbedModel:     util.GetEnv("AI_EMBED_MODEL"),
		ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
		ScoringModel:   util.GetEnv("AI_SCORING_MODEL"),
		EmbedURL:       util.GetEnv("AI_EMBED_URL"),
		EmbedKey:       util.GetEnv("AI_EMBED_KEY"),
		ChatURL:        util.GetEnv("AI_CHAT_URL"),
		ChatKey:        util.GetEnv("AI_CHAT_KEY"),
		EmbedDimension: util.GetEnvInt("AI_EMBED_DIM", 1536),

		RabbitMQUser:     util.GetEnv("RABBITMQ_USER"),
		RabbitMQPassword: util.GetEnv("RABBITMQ_PASSWORD"),
		RabbitMQHost:     util.GetEnv("RABBITMQ_HOST"),
		RabbitMQPort:     util.GetEnv("RABBITMQ_PORT"),

		TargetChunkTokens:  util.GetEnvInt("CHUNK_TARGET_TOKENS", 1000),
		OverlapTokens:      util.GetEnvInt("CHUNK_OVERLAP_TOKENS", 100),
		BoundarySimilarity: util.GetEnvFloat("CHUNK_BOUNDARY_SIMILARITY", 0.80),

		Debug: util.GetEnvBool("DEBUG", false),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
