package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
// Nearest-neighbor search is an exact scan over the stored vectors; the
// company index narrows the scan when a company filter is given.
type ChunkRepository struct {
	backend *Backend
	logger  *slog.Logger
	now     func() time.Time
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a ChunkRepository on top of backend. The
// backend stays owned by the caller.
func NewChunkRepository(backend *Backend) (storage.ChunkRepository, error) {
	return newChunkRepository(backend), nil
}

func newChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{
		backend: backend,
		logger:  slog.Default().With("component", "chunk-repository"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close is a no-op; the backend is closed by its owner.
func (r *ChunkRepository) Close() error {
	return nil
}

// Upsert writes chunks in one transaction, replacing existing records and
// moving their company index entry when the company changed.
func (r *ChunkRepository) Upsert(ctx context.Context, chunks ...*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := r.now()
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			chunk.Metadata = core.NormalizeMetadata(chunk.Metadata)
			chunk.IndexedAt = now
			key := makeChunkKey(chunk.ID)

			old, err := r.readChunk(tx, key)
			if err != nil {
				return err
			}
			if old != nil && old.Metadata.Company != chunk.Metadata.Company {
				if err := tx.Delete(makeCompanyKey(old.Metadata.Company, old.ID)); err != nil {
					return err
				}
			}

			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
			if err := tx.Set(makeCompanyKey(chunk.Metadata.Company, chunk.ID), []byte(chunk.ID)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("%w: upsert %d chunks: %w", storage.ErrTransactionFailed, len(chunks), err)
	}
	return nil
}

// Get retrieves a single chunk by id.
func (r *ChunkRepository) Get(ctx context.Context, id string) (*core.Chunk, error) {
	var chunk *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		chunk, err = r.readChunk(tx, makeChunkKey(id))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, storage.ErrNotFound
	}
	return chunk, nil
}

// Query scores every chunk matching filter by cosine distance and returns
// the k closest. Chunks whose vector length differs from the query are
// skipped.
func (r *ChunkRepository) Query(ctx context.Context, vector []float32, k int, filter storage.Filter) ([]*core.Match, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}
	if k <= 0 {
		return []*core.Match{}, nil
	}

	queryNorm := norm(vector)
	var matches []*core.Match
	skipped := 0
	err := r.scan(ctx, filter, func(chunk *core.Chunk) bool {
		if len(chunk.Vector) != len(vector) {
			skipped++
			return true
		}
		matches = append(matches, &core.Match{
			Chunk:    chunk,
			Distance: cosineDistance(vector, queryNorm, chunk.Vector),
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		r.logger.Warn("skipped chunks with mismatched vector dimension", "count", skipped, "dimension", len(vector))
	}

	slices.SortFunc(matches, func(a, b *core.Match) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.ID, b.Chunk.ID)
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	if matches == nil {
		matches = []*core.Match{}
	}
	return matches, nil
}

// Fetch returns up to limit chunks matching filter in id order. A limit
// of zero or less means no limit.
func (r *ChunkRepository) Fetch(ctx context.Context, filter storage.Filter, limit int) ([]*core.Chunk, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	chunks := []*core.Chunk{}
	err := r.scan(ctx, filter, func(chunk *core.Chunk) bool {
		chunks = append(chunks, chunk)
		return limit <= 0 || len(chunks) < limit
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// Count returns the number of stored chunks without decoding them.
func (r *ChunkRepository) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return ctx.Err()
	}, false)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Stats returns total, per-company and per-filing-type counts.
func (r *ChunkRepository) Stats(ctx context.Context) (*core.CollectionStats, error) {
	stats := &core.CollectionStats{
		Companies:   map[string]int{},
		FilingTypes: map[string]int{},
	}
	err := r.scan(ctx, nil, func(chunk *core.Chunk) bool {
		stats.Total++
		stats.Companies[chunk.Metadata.Company]++
		stats.FilingTypes[chunk.Metadata.FilingType]++
		return true
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ClearAll removes every chunk and index entry.
func (r *ChunkRepository) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deleted, err := r.backend.DeletePrefixes(chunkPrefix, chunkCompanyPrefix)
	if err != nil {
		return fmt.Errorf("%w: clear: %w", storage.ErrTransactionFailed, err)
	}
	r.logger.Info("cleared chunk collection", "keys", deleted)
	return nil
}

// Iterate walks all chunks in id order. Each batch is read in its own
// transaction so fn may write back to the repository.
func (r *ChunkRepository) Iterate(ctx context.Context, batchSize int, fn func(batch []*core.Chunk) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", storage.ErrInvalidQuery)
	}

	seek := []byte(chunkPrefix)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := make([]*core.Chunk, 0, batchSize)
		var lastKey []byte
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(chunkPrefix)
			iter := tx.NewIterator(opts)
			defer iter.Close()

			for iter.Seek(seek); iter.Valid() && len(batch) < batchSize; iter.Next() {
				item := iter.Item()
				chunk, err := decodeItem(item)
				if err != nil {
					return err
				}
				batch = append(batch, chunk)
				lastKey = item.KeyCopy(nil)
			}
			return nil
		}, false)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		// resume just past the last key
		seek = append(lastKey, 0)
	}
}

// scan visits chunks matching filter in id order until visit returns
// false. A company constraint is served from the company index.
func (r *ChunkRepository) scan(ctx context.Context, filter storage.Filter, visit func(*core.Chunk) bool) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if company, ok := filter.Company(); ok {
			return r.scanCompany(ctx, tx, company, filter, visit)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		n := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if n++; n%256 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			chunk, err := decodeItem(iter.Item())
			if err != nil {
				return err
			}
			if !filter.Matches(chunk.Metadata) {
				continue
			}
			if !visit(chunk) {
				return nil
			}
		}
		return ctx.Err()
	}, false)
}

func (r *ChunkRepository) scanCompany(ctx context.Context, tx *badger.Txn, company string, filter storage.Filter, visit func(*core.Chunk) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePartialCompanyKey(company)
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	n := 0
	for iter.Rewind(); iter.Valid(); iter.Next() {
		if n++; n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		id := string(iter.Item().Key()[len(opts.Prefix):])
		chunk, err := r.readChunk(tx, makeChunkKey(id))
		if err != nil {
			return err
		}
		if chunk == nil {
			r.logger.Warn("company index points at missing chunk", "company", company, "id", id)
			continue
		}
		if !filter.Matches(chunk.Metadata) {
			continue
		}
		if !visit(chunk) {
			return nil
		}
	}
	return ctx.Err()
}

// readChunk returns nil, nil when key does not exist.
func (r *ChunkRepository) readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeItem(item)
}

func decodeItem(item *badger.Item) (*core.Chunk, error) {
	var chunk *core.Chunk
	err := item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineDistance returns 1 - cos(a, b). Zero vectors are maximally distant.
func cosineDistance(a []float32, aNorm float64, b []float32) float64 {
	bNorm := norm(b)
	if aNorm == 0 || bNorm == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot/(aNorm*bNorm)
}
