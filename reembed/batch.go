package reembed

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/finrank/ai"
	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/retry"
	"github.com/poiesic/finrank/storage"
)

// BatchProcessor re-embeds and rewrites one batch of chunks.
type BatchProcessor struct {
	repo     storage.ChunkRepository
	embedder ai.Embedder
	policy   retry.Policy
}

func NewBatchProcessor(repo storage.ChunkRepository, embedder ai.Embedder, policy retry.Policy) *BatchProcessor {
	return &BatchProcessor{
		repo:     repo,
		embedder: embedder,
		policy:   policy,
	}
}

// Process replaces the vector of every chunk in the batch.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var embeddings [][]float32
	err := retry.WithBackoff(ctx, bp.policy, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		if errors.Is(err, ai.ErrModelInit) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(chunks), len(embeddings))
	}

	for i := range chunks {
		chunks[i].Vector = embeddings[i]
	}

	err = retry.WithBackoff(ctx, bp.policy, func(ctx context.Context) error {
		err := bp.repo.Upsert(ctx, chunks...)
		if errors.Is(err, core.ErrInvalidChunk) || errors.Is(err, storage.ErrStorageClosed) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update chunks: %w", err)
	}

	return nil
}
