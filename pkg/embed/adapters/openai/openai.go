package openai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/echomind-ai/echomind/pkg/log"
)

var (
	// ErrEmptyAPIKey is returned when the API key is missing.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrEmptyResponse is returned when the API returns no embedding data.
	ErrEmptyResponse = errors.New("no embedding data returned")
)

// Config holds the configuration for the OpenAI encoder.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the embedding model, e.g., "text-embedding-3-small".
	Model string
	// Dimension is the dimensionality the model produces.
	Dimension int
	// BaseURL is the base URL for the OpenAI API (for testing).
	BaseURL string
}

// Encoder implements embed.Encoder using the OpenAI embeddings API.
type Encoder struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewEncoder creates a new OpenAI embedding encoder.
func NewEncoder(config Config) (*Encoder, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.Dimension <= 0 {
		config.Dimension = 1536
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Encoder{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     config.Model,
		dimension: config.Dimension,
	}, nil
}

// Encode returns the embedding vector for the given text.
func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	request := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	}

	response, err := e.client.CreateEmbeddings(ctx, request)
	if err != nil {
		log.ErrorContext(ctx, "Failed to generate embedding", "error", err, "model", e.model)
		return nil, err
	}

	if len(response.Data) == 0 {
		return nil, ErrEmptyResponse
	}

	return response.Data[0].Embedding, nil
}

// Dimension returns the encoder's output dimensionality.
func (e *Encoder) Dimension() int {
	return e.dimension
}
