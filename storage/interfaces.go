package storage

import (
	"context"

	"github.com/poiesic/finrank/core"
)

// ChunkRepository stores chunks and answers nearest-neighbor queries.
// Implementations must be thread-safe and support concurrent access.
type ChunkRepository interface {
	// Upsert writes chunks in a single transaction. A chunk whose id already
	// exists is fully replaced, including its vector and metadata.
	Upsert(ctx context.Context, chunks ...*core.Chunk) error

	// Query returns up to k chunks matching filter, ordered by ascending
	// cosine distance to vector. Ties are broken by id.
	// Returns ErrInvalidQuery for unknown filter fields.
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]*core.Match, error)

	// Fetch returns up to limit chunks matching filter in id order, without
	// ranking.
	Fetch(ctx context.Context, filter Filter, limit int) ([]*core.Chunk, error)

	// Get retrieves a single chunk by id.
	// Returns ErrNotFound if the chunk doesn't exist.
	Get(ctx context.Context, id string) (*core.Chunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Stats returns total, per-company and per-filing-type counts.
	Stats(ctx context.Context) (*core.CollectionStats, error)

	// ClearAll removes every chunk. It is the only way records are deleted.
	ClearAll(ctx context.Context) error

	// Iterate walks all chunks in id order, handing them to fn in batches of
	// at most batchSize. Returning an error from fn stops the walk.
	Iterate(ctx context.Context, batchSize int, fn func(batch []*core.Chunk) error) error

	// Close releases resources held by the repository.
	Close() error
}
