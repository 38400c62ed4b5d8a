// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/finrank/ai"
	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/metrics"
	"github.com/poiesic/finrank/retry"
	"github.com/poiesic/finrank/storage"
)

// batchProcessor embeds one batch of chunks and writes it to the
// repository, each step under its own retry policy.
type batchProcessor struct {
	repository  storage.ChunkRepository
	embedder    ai.Embedder
	embedPolicy retry.Policy
	indexPolicy retry.Policy
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// process fills in the vectors of chunks and upserts them.
func (p *batchProcessor) process(ctx context.Context, chunks []*core.Chunk) error {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var vectors [][]float32
	err := retry.WithBackoff(ctx, p.embedPolicy, func(ctx context.Context) error {
		start := time.Now()
		var err error
		vectors, err = p.embedder.EmbedTexts(ctx, texts)
		p.metrics.ObserveEmbed(time.Since(start))
		if errors.Is(err, ai.ErrModelInit) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("embed batch starting at chunk %d: %w", chunks[0].Metadata.ChunkIndex, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingCountMismatch, len(vectors), len(chunks))
	}
	for i, chunk := range chunks {
		chunk.Vector = vectors[i]
	}

	err = retry.WithBackoff(ctx, p.indexPolicy, func(ctx context.Context) error {
		err := p.repository.Upsert(ctx, chunks...)
		if errors.Is(err, core.ErrInvalidChunk) || errors.Is(err, storage.ErrStorageClosed) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert batch starting at chunk %d: %w", chunks[0].Metadata.ChunkIndex, err)
	}

	p.logger.Debug("wrote batch", "first", chunks[0].ID, "count", len(chunks))
	return nil
}
