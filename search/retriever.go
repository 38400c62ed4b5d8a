package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/finrank/ai"
	"github.com/poiesic/finrank/cache"
	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/metrics"
	"github.com/poiesic/finrank/query"
	"github.com/poiesic/finrank/retry"
	"github.com/poiesic/finrank/storage"
)

// ResultCache stores ranked answers keyed by request. Implementations
// treat backend failures as misses.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]*core.Result, bool)
	Set(ctx context.Context, key string, results []*core.Result)
	Invalidate(ctx context.Context) error
}

// Retriever answers ranked similarity queries over the chunk index.
type Retriever struct {
	repository storage.ChunkRepository
	embedder   ai.Embedder
	planner    *query.Planner
	cache      ResultCache
	metrics    *metrics.Metrics
	config     Config
	logger     *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithConfig replaces the default tuning.
func WithConfig(cfg Config) Option {
	return func(r *Retriever) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		r.config = cfg
		return nil
	}
}

// WithPlanner sets the query planner. Default is query.DefaultPlanner.
func WithPlanner(p *query.Planner) Option {
	return func(r *Retriever) error {
		if p != nil {
			r.planner = p
		}
		return nil
	}
}

// WithCache enables result caching.
func WithCache(c ResultCache) Option {
	return func(r *Retriever) error {
		r.cache = c
		return nil
	}
}

// WithMetrics records search and cache metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Retriever) error {
		r.metrics = m
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(repository storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		repository: repository,
		embedder:   embedder,
		planner:    query.DefaultPlanner,
		config:     DefaultConfig(),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	r.logger = r.logger.With("component", "retriever")
	return r, nil
}

// Config returns the tuning in effect.
func (r *Retriever) Config() Config {
	return r.config
}

type request struct {
	company    string
	filingType string
	limit      int
}

func (q request) filter() storage.Filter {
	f := storage.Filter{}
	if q.company != "" {
		f[storage.FieldCompany] = q.company
	}
	if q.filingType != "" {
		f[storage.FieldFilingType] = q.filingType
	}
	return f
}

// SearchOption narrows a single search.
type SearchOption func(*request)

// WithCompany restricts results to one company.
func WithCompany(company string) SearchOption {
	return func(q *request) { q.company = company }
}

// WithFilingType restricts results to one filing type.
func WithFilingType(filingType string) SearchOption {
	return func(q *request) { q.filingType = filingType }
}

// WithLimit sets the maximum number of results. A limit of zero or less
// yields an empty result.
func WithLimit(n int) SearchOption {
	return func(q *request) { q.limit = n }
}

// Search returns up to the requested number of chunks ranked against q.
func (r *Retriever) Search(ctx context.Context, q string, opts ...SearchOption) ([]*core.Result, error) {
	return r.SearchWithMonitor(ctx, q, nil, opts...)
}

// SearchWithMonitor is Search with callbacks at each ranking stage.
func (r *Retriever) SearchWithMonitor(ctx context.Context, q string, monitor SearchMonitor, opts ...SearchOption) ([]*core.Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	req := request{limit: r.config.DefaultResults}
	for _, opt := range opts {
		opt(&req)
	}

	start := time.Now()
	results, err := r.search(ctx, q, req, monitor)
	r.metrics.ObserveSearch(time.Since(start), len(results), err)
	return results, err
}

func (r *Retriever) search(ctx context.Context, q string, req request, monitor SearchMonitor) ([]*core.Result, error) {
	plan := r.planner.Plan(q)
	monitor.Start(q, plan)

	if req.limit <= 0 {
		monitor.Finish(nil)
		return []*core.Result{}, nil
	}

	key := cache.Key(q, req.company, req.filingType, req.limit)
	if r.cache != nil {
		cached, ok := r.cache.Get(ctx, key)
		r.metrics.CacheLookup(ok)
		if ok {
			monitor.CacheHit(key)
			monitor.Finish(cached)
			return cached, nil
		}
	}

	total, err := r.repository.Count(ctx)
	if err != nil {
		r.logger.Error("error counting indexed chunks", "err", err)
		return nil, err
	}
	if total == 0 {
		monitor.Finish(nil)
		return []*core.Result{}, nil
	}

	vector, err := r.embedQuery(ctx, q)
	if err != nil {
		r.logger.Error("error generating embedding for query", "query", q, "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(len(vector))

	k := min(req.limit*r.config.OverFetchFactor, total)
	matches, fallback, err := r.retrieve(ctx, vector, k, req.filter())
	if err != nil {
		r.logger.Error("index query failed, returning no results", "err", err)
		monitor.Finish(nil)
		return []*core.Result{}, nil
	}
	monitor.AfterRetrieval(matches, fallback)

	results := make([]*core.Result, len(matches))
	for i, m := range matches {
		results[i] = toResult(m)
	}

	if plan.HasFiscalYear() {
		for _, res := range results {
			if query.MatchesAnyVariant(res.FiscalYear, plan.Variants) {
				res.Similarity += r.config.YearBoost
				monitor.YearBoosted(res)
			}
		}
	}

	if plan.WantsLatest {
		results = applyRecencyBoost(results, r.config.RecencyBoost, r.config.RecencyDecay)
		monitor.AfterRecencyBoost(results)
	}

	slices.SortStableFunc(results, bySimilarity)
	if len(results) > req.limit {
		results = results[:req.limit]
	}

	if r.cache != nil {
		r.cache.Set(ctx, key, results)
	}
	monitor.Finish(results)
	return results, nil
}

func (r *Retriever) embedQuery(ctx context.Context, q string) ([]float32, error) {
	var vector []float32
	start := time.Now()
	err := retry.WithBackoff(ctx, r.policy(r.config.EmbedTimeout), func(ctx context.Context) error {
		v, err := r.embedder.EmbedText(ctx, q)
		if err != nil {
			if errors.Is(err, ai.ErrModelInit) {
				return retry.Permanent(err)
			}
			return err
		}
		vector = v
		return nil
	})
	r.metrics.ObserveEmbed(time.Since(start))
	return vector, err
}

// retrieve runs the filtered query. If that fails, it retries once without
// a filter and applies the filter in process, so results never violate it.
func (r *Retriever) retrieve(ctx context.Context, vector []float32, k int, filter storage.Filter) ([]*core.Match, bool, error) {
	matches, err := r.query(ctx, vector, k, filter)
	if err == nil {
		return matches, false, nil
	}
	if len(filter) == 0 {
		return nil, false, err
	}

	r.logger.Warn("filtered query failed, retrying without filter", "filter", filter.String(), "err", err)
	r.metrics.FilterFallback()

	matches, err = r.query(ctx, vector, k, nil)
	if err != nil {
		return nil, true, fmt.Errorf("unfiltered fallback: %w", err)
	}
	kept := matches[:0]
	for _, m := range matches {
		if filter.Matches(m.Chunk.Metadata) {
			kept = append(kept, m)
		}
	}
	return kept, true, nil
}

func (r *Retriever) query(ctx context.Context, vector []float32, k int, filter storage.Filter) ([]*core.Match, error) {
	var matches []*core.Match
	err := retry.WithBackoff(ctx, r.policy(r.config.IndexTimeout), func(ctx context.Context) error {
		m, err := r.repository.Query(ctx, vector, k, filter)
		if err != nil {
			if errors.Is(err, storage.ErrInvalidQuery) || errors.Is(err, storage.ErrStorageClosed) {
				return retry.Permanent(err)
			}
			return err
		}
		matches = m
		return nil
	})
	return matches, err
}

func (r *Retriever) policy(timeout time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts: r.config.MaxAttempts,
		BaseDelay:   r.config.RetryBaseDelay,
		Timeout:     timeout,
	}
}

// BulkFetch returns stored chunks for company without ranking. An empty
// company fetches across all companies. Store failures are logged and
// produce an empty list.
func (r *Retriever) BulkFetch(ctx context.Context, company string, limit int) ([]*core.Chunk, error) {
	if limit <= 0 {
		limit = r.config.BulkFetchLimit
	}
	var filter storage.Filter
	if company != "" {
		filter = storage.Filter{storage.FieldCompany: company}
	}

	chunks, err := r.repository.Fetch(ctx, filter, limit)
	if err != nil {
		r.logger.Error("bulk fetch failed", "company", company, "err", err)
		return []*core.Chunk{}, nil
	}
	return chunks, nil
}

// Invalidate drops cached answers. Call it after every index write.
func (r *Retriever) Invalidate(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Invalidate(ctx)
}
