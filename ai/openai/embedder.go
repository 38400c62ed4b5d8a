package openai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/finrank/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

type Embedder struct {
	config *ai.Config
	logger *slog.Logger

	once     sync.Once
	embedder embeddings.Embedder
	initErr  error

	// build constructs the underlying client; replaced in tests.
	build func(*ai.Config) (embeddings.Embedder, error)
}

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Embedder{
		config: config,
		logger: slog.Default().With("component", "openai-embedder"),
		build:  buildClient,
	}, nil
}

// NewEmbedder validates config and returns an embedder whose client is
// created on first use.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

func buildClient(config *ai.Config) (embeddings.Embedder, error) {
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	return embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(config.BatchSize),
	)
}

func (e *Embedder) client() (embeddings.Embedder, error) {
	e.once.Do(func() {
		e.logger.Info("initializing embedding model", "host", e.config.EmbeddingHost, "model", e.config.EmbeddingModel)
		client, err := e.build(e.config)
		if err != nil {
			e.initErr = fmt.Errorf("%w: %w", ai.ErrModelInit, err)
			e.logger.Error("failed to initialize embedding model", "err", err)
			return
		}
		e.embedder = client
	})
	return e.embedder, e.initErr
}

func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	client, err := e.client()
	if err != nil {
		return nil, err
	}

	e.logger.Debug("generating embedding for single text", "length", len(text))
	vector, err := client.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return vector, nil
}

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	client, err := e.client()
	if err != nil {
		return nil, err
	}

	e.logger.Debug("generating embeddings for texts", "count", len(texts))
	vectors, err := client.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
