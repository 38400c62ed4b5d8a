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


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/finrank/ai"
	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/retry"
	"github.com/poiesic/finrank/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks embedded and written together.
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks).
	ReportInterval int

	// MaxRetries is the maximum number of attempts per batch operation.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff.
	RetryDelay time.Duration

	// Timeout bounds each embed or write attempt.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      64,
		ReportInterval: 256,
		MaxRetries:     3,
		RetryDelay:     200 * time.Millisecond,
		Timeout:        30 * time.Second,
	}
}

// Reembedder rewrites the vector of every stored chunk.
type Reembedder struct {
	repo      storage.ChunkRepository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress receives human-readable progress lines and may be nil.
func NewReembedder(repo storage.ChunkRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}

	policy := retry.Policy{
		MaxAttempts: config.MaxRetries,
		BaseDelay:   config.RetryDelay,
		Timeout:     config.Timeout,
	}
	if policy.MaxAttempts < 1 {
		return nil, retry.ErrInvalidMaxAttempts
	}

	return &Reembedder{
		repo:      repo,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(repo, embedder, policy),
		logger:    slog.Default().With("component", "reembedder"),
	}, nil
}

// Run re-embeds all stored chunks and returns how many were rewritten.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	total, err := r.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		r.logger.Info("no chunks to reembed")
		return 0, nil
	}

	r.logger.Info("starting reembedding", "chunks", total, "batchSize", r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.repo.Iterate(ctx, r.config.BatchSize, func(batch []*core.Chunk) error {
		if err := r.processor.Process(ctx, batch); err != nil {
			return fmt.Errorf("failed to process batch after %d chunks: %w", processed, err)
		}
		processed += len(batch)
		tracker.Add(len(batch))
		return nil
	})
	tracker.Finish()

	snap := tracker.Snapshot()
	if err != nil {
		r.logger.Error("reembedding stopped", "processed", processed, "total", total, "err", err)
		return processed, err
	}

	r.logger.Info("reembedding complete",
		"chunks", processed,
		"elapsed", snap.Elapsed.Round(time.Millisecond),
		"rate", fmt.Sprintf("%.1f/s", snap.Rate()))
	return processed, nil
}
