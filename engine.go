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


// Package finrank indexes financial filings and answers ranked semantic
// queries over them.
//
// Engine wires the chunk index, the embedding provider, the ingestor and
// the retriever together. Construct one per data directory and share it.
package finrank

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/finrank/ai"
	"github.com/poiesic/finrank/ai/openai"
	"github.com/poiesic/finrank/chunker"
	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/ingestion"
	"github.com/poiesic/finrank/metrics"
	"github.com/poiesic/finrank/reembed"
	"github.com/poiesic/finrank/retry"
	"github.com/poiesic/finrank/search"
	"github.com/poiesic/finrank/storage"
	"github.com/poiesic/finrank/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
)

type Engine struct {
	backend   *badger.Backend
	repo      storage.ChunkRepository
	provider  ai.AIProvider
	ingestor  *ingestion.Ingestor
	retriever *search.Retriever
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	aiConfig      *ai.Config
	provider      ai.AIProvider
	inMemory      bool
	searchConfig  *search.Config
	chunkOptions  *chunker.Options
	cache         search.ResultCache
	registerer    prometheus.Registerer
	logger        *slog.Logger
	poolSize      int
	ingestOptions []ingestion.Option
}

// WithAIConfig configures the OpenAI-compatible embedding provider.
func WithAIConfig(cfg *ai.Config) EngineOption {
	return func(o *engineOptions) { o.aiConfig = cfg }
}

// WithProvider supplies a ready embedding provider, bypassing WithAIConfig.
// The engine takes ownership and closes it.
func WithProvider(p ai.AIProvider) EngineOption {
	return func(o *engineOptions) { o.provider = p }
}

// WithInMemory keeps the index in memory; the path is ignored.
func WithInMemory() EngineOption {
	return func(o *engineOptions) { o.inMemory = true }
}

func WithSearchConfig(cfg search.Config) EngineOption {
	return func(o *engineOptions) { o.searchConfig = &cfg }
}

func WithChunkOptions(opts chunker.Options) EngineOption {
	return func(o *engineOptions) { o.chunkOptions = &opts }
}

// WithCache enables search result caching. The cache is invalidated after
// every write.
func WithCache(c search.ResultCache) EngineOption {
	return func(o *engineOptions) { o.cache = c }
}

// WithMetricsRegisterer registers engine metrics with reg. Without it the
// engine keeps its metrics in a private registry.
func WithMetricsRegisterer(reg prometheus.Registerer) EngineOption {
	return func(o *engineOptions) { o.registerer = reg }
}

func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = logger }
}

// WithPoolSize bounds concurrent document ingestion in IngestAll.
func WithPoolSize(size int) EngineOption {
	return func(o *engineOptions) { o.poolSize = size }
}

// WithIngestionOptions passes extra options to the ingestor.
func WithIngestionOptions(opts ...ingestion.Option) EngineOption {
	return func(o *engineOptions) { o.ingestOptions = append(o.ingestOptions, opts...) }
}

// NewEngine opens (or creates) the index at path and builds the engine.
func NewEngine(path string, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	m, err := metrics.New(options.registerer)
	if err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(path, options.inMemory)
	if err != nil {
		return nil, err
	}

	repo, err := badger.NewChunkRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			repo.Close()
			backend.Close()
			return nil, err
		}
	}

	e := &Engine{
		backend:  backend,
		repo:     repo,
		provider: provider,
		metrics:  m,
		logger:   options.logger.With("component", "engine"),
	}

	searchOpts := []search.Option{
		search.WithLogger(options.logger),
		search.WithCache(options.cache),
		search.WithMetrics(m),
	}
	if options.searchConfig != nil {
		searchOpts = append(searchOpts, search.WithConfig(*options.searchConfig))
	}
	e.retriever, err = search.NewRetriever(repo, provider.Embedder(), searchOpts...)
	if err != nil {
		e.closeStores()
		return nil, err
	}

	ingestOpts := []ingestion.Option{
		ingestion.WithLogger(options.logger),
		ingestion.WithMetrics(m),
		ingestion.WithWriteHook(e.invalidate),
	}
	if options.poolSize > 0 {
		ingestOpts = append(ingestOpts, ingestion.WithPoolSize(options.poolSize))
	}
	if options.chunkOptions != nil {
		ingestOpts = append(ingestOpts, ingestion.WithChunkOptions(*options.chunkOptions))
	}
	if options.searchConfig != nil {
		sc := options.searchConfig
		ingestOpts = append(ingestOpts, ingestion.WithRetry(
			retryPolicy(sc.MaxAttempts, sc.RetryBaseDelay, sc.EmbedTimeout),
			retryPolicy(sc.MaxAttempts, sc.RetryBaseDelay, sc.IndexTimeout),
		))
	}
	ingestOpts = append(ingestOpts, options.ingestOptions...)

	e.ingestor, err = ingestion.NewIngestor(repo, provider.Embedder(), ingestOpts...)
	if err != nil {
		e.closeStores()
		return nil, err
	}

	return e, nil
}

// Close releases the worker pool, the provider and the index.
func (e *Engine) Close() error {
	e.ingestor.Release()
	return e.closeStores()
}

func (e *Engine) closeStores() error {
	var errs []error
	if err := e.provider.Close(); err != nil {
		e.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := e.repo.Close(); err != nil {
		e.logger.Error("error closing chunk repository", "err", err)
		errs = append(errs, err)
	}
	if err := e.backend.Close(); err != nil {
		e.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) invalidate() {
	if err := e.retriever.Invalidate(context.Background()); err != nil {
		e.logger.Warn("failed to invalidate search cache", "err", err)
	}
}

// Search ranks indexed chunks against q.
func (e *Engine) Search(ctx context.Context, q string, opts ...search.SearchOption) ([]*core.Result, error) {
	return e.retriever.Search(ctx, q, opts...)
}

// SearchWithMonitor is Search with ranking stage callbacks.
func (e *Engine) SearchWithMonitor(ctx context.Context, q string, monitor search.SearchMonitor, opts ...search.SearchOption) ([]*core.Result, error) {
	return e.retriever.SearchWithMonitor(ctx, q, monitor, opts...)
}

// BulkFetch returns up to limit chunks for company without ranking.
func (e *Engine) BulkFetch(ctx context.Context, company string, limit int) ([]*core.Chunk, error) {
	return e.retriever.BulkFetch(ctx, company, limit)
}

// Ingest chunks, embeds and indexes one document and returns how many
// chunks were written.
func (e *Engine) Ingest(ctx context.Context, doc core.Document) (int, error) {
	return e.ingestor.Ingest(ctx, doc)
}

// IngestAll ingests documents concurrently. One failure never stops the
// others.
func (e *Engine) IngestAll(ctx context.Context, docs []core.Document) *ingestion.Summary {
	return e.ingestor.IngestAll(ctx, docs)
}

// RecordCount returns the number of indexed chunks.
func (e *Engine) RecordCount(ctx context.Context) (int, error) {
	return e.repo.Count(ctx)
}

// Stats returns per-company and per-filing-type chunk counts.
func (e *Engine) Stats(ctx context.Context) (*core.CollectionStats, error) {
	return e.repo.Stats(ctx)
}

// ClearAll removes every indexed chunk.
func (e *Engine) ClearAll(ctx context.Context) error {
	defer e.invalidate()
	if err := e.repo.ClearAll(ctx); err != nil {
		e.logger.Error("failed to clear index", "err", err)
		return err
	}
	e.logger.Info("cleared index")
	return nil
}

// Reembed rewrites every chunk vector with the engine's embedder.
// progress receives human-readable progress and may be nil.
func (e *Engine) Reembed(ctx context.Context, cfg *reembed.Config, progress io.Writer) (int, error) {
	r, err := reembed.NewReembedder(e.repo, e.provider.Embedder(), cfg, progress)
	if err != nil {
		return 0, err
	}
	defer e.invalidate()
	return r.Run(ctx)
}

// Metrics exposes the engine's collectors, e.g. to serve Metrics().Handler().
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

func retryPolicy(attempts int, delay, timeout time.Duration) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: delay, Timeout: timeout}
}
