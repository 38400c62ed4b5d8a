package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/finrank/ai"
	"github.com/poiesic/finrank/chunker"
	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/metrics"
	"github.com/poiesic/finrank/retry"
	"github.com/poiesic/finrank/storage"
)

const (
	// DefaultBatchSize is the number of chunks embedded and written together.
	DefaultBatchSize = 64

	// DefaultMinDocumentChars skips documents too short to be worth indexing.
	DefaultMinDocumentChars = 100

	DefaultEmbedTimeout = 30 * time.Second
	DefaultIndexTimeout = 10 * time.Second
)

// Ingestor orchestrates chunking, embedding and indexing of documents.
type Ingestor struct {
	repository       storage.ChunkRepository
	processor        *batchProcessor
	pool             *ants.Pool
	chunkOptions     chunker.Options
	batchSize        int
	minDocumentChars int
	onWrite          func()
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor) error

// WithPoolSize sets the worker pool size used by IngestAll.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(i *Ingestor) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if i.pool != nil {
			i.pool.Release()
		}
		i.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingestor) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
		return nil
	}
}

// WithChunkOptions overrides the chunk window.
func WithChunkOptions(opts chunker.Options) Option {
	return func(i *Ingestor) error {
		if err := opts.Validate(); err != nil {
			return err
		}
		i.chunkOptions = opts
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded and written per call.
func WithBatchSize(size int) Option {
	return func(i *Ingestor) error {
		if size < 1 {
			return fmt.Errorf("batch size must be at least 1, got %d", size)
		}
		i.batchSize = size
		return nil
	}
}

// WithMinDocumentChars sets the trimmed length below which documents are
// skipped.
func WithMinDocumentChars(n int) Option {
	return func(i *Ingestor) error {
		i.minDocumentChars = n
		return nil
	}
}

// WithRetry sets the retry policies for embedding and index writes.
func WithRetry(embed, index retry.Policy) Option {
	return func(i *Ingestor) error {
		if embed.MaxAttempts < 1 || index.MaxAttempts < 1 {
			return retry.ErrInvalidMaxAttempts
		}
		i.processor.embedPolicy = embed
		i.processor.indexPolicy = index
		return nil
	}
}

// WithWriteHook registers fn to run after every document that wrote at
// least one batch, including documents that failed part way.
func WithWriteHook(fn func()) Option {
	return func(i *Ingestor) error {
		i.onWrite = fn
		return nil
	}
}

// WithMetrics enables prometheus reporting.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingestor) error {
		i.metrics = m
		return nil
	}
}

// NewIngestor creates an Ingestor writing to repository.
func NewIngestor(repository storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Ingestor, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	i := &Ingestor{
		repository: repository,
		processor: &batchProcessor{
			repository:  repository,
			embedder:    embedder,
			embedPolicy: retry.DefaultPolicy(DefaultEmbedTimeout),
			indexPolicy: retry.DefaultPolicy(DefaultIndexTimeout),
		},
		pool:             pool,
		chunkOptions:     chunker.DefaultOptions(),
		batchSize:        DefaultBatchSize,
		minDocumentChars: DefaultMinDocumentChars,
		logger:           slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(i); optErr != nil {
			i.Release()
			return nil, optErr
		}
	}

	i.logger = i.logger.With("component", "ingestor")
	i.processor.logger = i.logger
	i.processor.metrics = i.metrics
	return i, nil
}

// Release releases the worker pool.
// The ingestor should not be used after calling Release.
func (i *Ingestor) Release() {
	if i.pool != nil {
		i.pool.Release()
	}
}

// BuildChunks splits doc into chunks with ids and normalized metadata.
// Vectors are left empty.
func (i *Ingestor) BuildChunks(doc core.Document) ([]*core.Chunk, error) {
	doc = core.NormalizeDocument(doc)
	texts, err := chunker.Split(doc.Text, i.chunkOptions)
	if err != nil {
		return nil, err
	}

	sourceFile := doc.SourceFile
	if sourceFile != core.UnknownValue {
		sourceFile = baseName(sourceFile)
	}

	chunks := make([]*core.Chunk, len(texts))
	for idx, text := range texts {
		chunks[idx] = &core.Chunk{
			ID:   core.ChunkID(doc.Company, doc.SourceFile, idx),
			Text: text,
			Metadata: core.ChunkMetadata{
				Company:     doc.Company,
				SourceFile:  sourceFile,
				FilingType:  doc.FilingType,
				FiscalYear:  doc.FiscalYear,
				Quarter:     doc.Quarter,
				ChunkIndex:  idx,
				TotalChunks: len(texts),
			},
		}
	}
	return chunks, nil
}

// Ingest chunks, embeds and indexes one document and returns the number of
// chunks written. Documents whose trimmed text is shorter than the minimum
// length produce zero chunks and no error.
func (i *Ingestor) Ingest(ctx context.Context, doc core.Document) (int, error) {
	logger := i.logger.With("company", doc.Company, "source", doc.SourceFile)

	if len(strings.TrimSpace(doc.Text)) < i.minDocumentChars {
		logger.Debug("skipping short document", "length", len(strings.TrimSpace(doc.Text)))
		i.metrics.DocumentIngested(metrics.StatusSkipped, 0)
		return 0, nil
	}

	chunks, err := i.BuildChunks(doc)
	if err != nil {
		i.metrics.DocumentIngested(metrics.StatusFailed, 0)
		return 0, err
	}
	if len(chunks) == 0 {
		i.metrics.DocumentIngested(metrics.StatusSkipped, 0)
		return 0, nil
	}

	written := 0
	for start := 0; start < len(chunks); start += i.batchSize {
		end := min(start+i.batchSize, len(chunks))
		if err := i.processor.process(ctx, chunks[start:end]); err != nil {
			logger.Error("ingestion failed", "written", written, "total", len(chunks), "err", err)
			i.notifyWrite(written)
			i.metrics.DocumentIngested(metrics.StatusFailed, written)
			return written, err
		}
		written = end
	}

	logger.Info("ingested document", "chunks", len(chunks))
	i.notifyWrite(written)
	i.metrics.DocumentIngested(metrics.StatusIndexed, written)
	return len(chunks), nil
}

func (i *Ingestor) notifyWrite(written int) {
	if written > 0 && i.onWrite != nil {
		i.onWrite()
	}
}

func baseName(path string) string {
	if idx := strings.LastIndexAny(path, `/\`); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
