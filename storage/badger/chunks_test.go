package badger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) storage.ChunkRepository {
	t.Helper()
	repo, backend, err := NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func makeChunk(company, source string, index, total int, vector []float32) *core.Chunk {
	return &core.Chunk{
		ID:     core.ChunkID(company, source, index),
		Text:   fmt.Sprintf("%s %s chunk %d text", company, source, index),
		Vector: vector,
		Metadata: core.ChunkMetadata{
			Company:     company,
			SourceFile:  source,
			FilingType:  "10-K",
			FiscalYear:  "FY2024",
			ChunkIndex:  index,
			TotalChunks: total,
		},
	}
}

func TestUpsert_AndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	c := makeChunk("ACME", "a.txt", 0, 1, []float32{1, 0, 0})
	require.NoError(t, repo.Upsert(ctx, c))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Text, got.Text)
	assert.Equal(t, c.Vector, got.Vector)
	assert.Equal(t, c.Metadata, got.Metadata)
	assert.False(t, got.IndexedAt.IsZero())

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpsert_NormalizesMetadata(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	c := makeChunk("ACME", "a.txt", 0, 1, []float32{1, 0})
	c.Metadata.FilingType = ""
	c.Metadata.FiscalYear = " "
	require.NoError(t, repo.Upsert(ctx, c))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, core.UnknownValue, got.Metadata.FilingType)
	assert.Equal(t, core.UnknownValue, got.Metadata.FiscalYear)
}

func TestUpsert_RejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	c := makeChunk("ACME", "a.txt", 0, 1, nil)
	err := repo.Upsert(context.Background(), c)
	assert.ErrorIs(t, err, core.ErrMissingVector)
}

func TestUpsert_Idempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chunks := []*core.Chunk{
		makeChunk("ACME", "a.txt", 0, 2, []float32{1, 0}),
		makeChunk("ACME", "a.txt", 1, 2, []float32{0, 1}),
	}
	require.NoError(t, repo.Upsert(ctx, chunks...))
	require.NoError(t, repo.Upsert(ctx, chunks...))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUpsert_OverwriteMovesCompanyIndex(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	c := makeChunk("ACME", "a.txt", 0, 1, []float32{1, 0})
	require.NoError(t, repo.Upsert(ctx, c))

	moved := makeChunk("ACME", "a.txt", 0, 1, []float32{0, 1})
	moved.Metadata.Company = "Globex"
	moved.Text = "rewritten"
	require.NoError(t, repo.Upsert(ctx, moved))

	acme, err := repo.Fetch(ctx, storage.Filter{storage.FieldCompany: "ACME"}, 0)
	require.NoError(t, err)
	assert.Empty(t, acme)

	globex, err := repo.Fetch(ctx, storage.Filter{storage.FieldCompany: "Globex"}, 0)
	require.NoError(t, err)
	require.Len(t, globex, 1)
	assert.Equal(t, "rewritten", globex[0].Text)
	assert.Equal(t, []float32{0, 1}, globex[0].Vector)
}

func TestQuery_OrdersByCosineDistance(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx,
		makeChunk("ACME", "a.txt", 0, 3, []float32{1, 0}),
		makeChunk("ACME", "a.txt", 1, 3, []float32{0, 1}),
		makeChunk("ACME", "a.txt", 2, 3, []float32{2, 2}), // not unit length
	))

	matches, err := repo.Query(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "ACME_a_chunk0000", matches[0].Chunk.ID)
	assert.InDelta(t, 0.0, matches[0].Distance, 1e-6)
	assert.Equal(t, "ACME_a_chunk0002", matches[1].Chunk.ID)
	assert.InDelta(t, 1-0.70710678, matches[1].Distance, 1e-6)
	assert.Equal(t, "ACME_a_chunk0001", matches[2].Chunk.ID)
	assert.InDelta(t, 1.0, matches[2].Distance, 1e-6)
}

func TestQuery_TiesBrokenByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx,
		makeChunk("B", "x.txt", 0, 1, []float32{1, 1}),
		makeChunk("A", "x.txt", 0, 1, []float32{1, 1}),
	))

	matches, err := repo.Query(ctx, []float32{1, 1}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "A_x_chunk0000", matches[0].Chunk.ID)
	assert.Equal(t, "B_x_chunk0000", matches[1].Chunk.ID)
}

func TestQuery_LimitAndFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Upsert(ctx, makeChunk("ACME", "a.txt", i, 5, []float32{1, float32(i)})))
		g := makeChunk("Globex", "g.txt", i, 5, []float32{1, float32(i)})
		g.Metadata.FilingType = "10-Q"
		require.NoError(t, repo.Upsert(ctx, g))
	}

	matches, err := repo.Query(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	matches, err = repo.Query(ctx, []float32{1, 0}, 100, storage.Filter{storage.FieldCompany: "Globex"})
	require.NoError(t, err)
	require.Len(t, matches, 5)
	for _, m := range matches {
		assert.Equal(t, "Globex", m.Chunk.Metadata.Company)
	}

	matches, err = repo.Query(ctx, []float32{1, 0}, 100, storage.Filter{
		storage.FieldCompany:    "ACME",
		storage.FieldFilingType: "10-Q",
	})
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = repo.Query(ctx, []float32{1, 0}, 100, storage.Filter{storage.FieldFilingType: "10-Q"})
	require.NoError(t, err)
	assert.Len(t, matches, 5)

	matches, err = repo.Query(ctx, []float32{1, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestQuery_InvalidInput(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Query(ctx, []float32{1}, 5, storage.Filter{"sector": "tech"})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = repo.Query(ctx, nil, 5, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestQuery_SkipsMismatchedDimensions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx,
		makeChunk("ACME", "a.txt", 0, 2, []float32{1, 0}),
		makeChunk("ACME", "a.txt", 1, 2, []float32{1, 0, 0}),
	))

	matches, err := repo.Query(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "ACME_a_chunk0000", matches[0].Chunk.ID)
}

func TestFetch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Upsert(ctx, makeChunk("ACME", "a.txt", i, 4, []float32{1})))
	}
	require.NoError(t, repo.Upsert(ctx, makeChunk("ACMEX", "b.txt", 0, 1, []float32{1})))

	chunks, err := repo.Fetch(ctx, storage.Filter{storage.FieldCompany: "ACME"}, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "ACME_a_chunk0000", chunks[0].ID)
	assert.Equal(t, "ACME_a_chunk0001", chunks[1].ID)

	chunks, err = repo.Fetch(ctx, storage.Filter{storage.FieldCompany: "ACME"}, 0)
	require.NoError(t, err)
	assert.Len(t, chunks, 4)

	chunks, err = repo.Fetch(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, chunks, 5)

	_, err = repo.Fetch(ctx, storage.Filter{"nope": "x"}, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	q := makeChunk("ACME", "q.txt", 0, 1, []float32{1})
	q.Metadata.FilingType = "10-Q"
	require.NoError(t, repo.Upsert(ctx,
		makeChunk("ACME", "a.txt", 0, 2, []float32{1}),
		makeChunk("ACME", "a.txt", 1, 2, []float32{1}),
		makeChunk("Globex", "g.txt", 0, 1, []float32{1}),
		q,
	))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, map[string]int{"ACME": 3, "Globex": 1}, stats.Companies)
	assert.Equal(t, map[string]int{"10-K": 3, "10-Q": 1}, stats.FilingTypes)
}

func TestClearAll(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx,
		makeChunk("ACME", "a.txt", 0, 1, []float32{1}),
		makeChunk("Globex", "g.txt", 0, 1, []float32{1}),
	))
	require.NoError(t, repo.ClearAll(ctx))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	chunks, err := repo.Fetch(ctx, storage.Filter{storage.FieldCompany: "ACME"}, 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIterate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, repo.Upsert(ctx, makeChunk("ACME", "a.txt", i, 7, []float32{1})))
	}

	var sizes []int
	var ids []string
	err := repo.Iterate(ctx, 3, func(batch []*core.Chunk) error {
		sizes = append(sizes, len(batch))
		for _, c := range batch {
			ids = append(ids, c.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	require.Len(t, ids, 7)
	assert.Equal(t, "ACME_a_chunk0000", ids[0])
	assert.Equal(t, "ACME_a_chunk0006", ids[6])
}

func TestIterate_WritesDuringWalk(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Upsert(ctx, makeChunk("ACME", "a.txt", i, 4, []float32{1, 0})))
	}

	visited := 0
	err := repo.Iterate(ctx, 2, func(batch []*core.Chunk) error {
		for _, c := range batch {
			c.Vector = []float32{0, 1}
		}
		visited += len(batch)
		return repo.Upsert(ctx, batch...)
	})
	require.NoError(t, err)
	assert.Equal(t, 4, visited)

	chunks, err := repo.Fetch(ctx, nil, 0)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.Equal(t, []float32{0, 1}, c.Vector)
	}
}

func TestIterate_StopsOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Upsert(ctx, makeChunk("ACME", "a.txt", i, 4, []float32{1})))
	}

	stop := errors.New("stop")
	calls := 0
	err := repo.Iterate(ctx, 1, func([]*core.Chunk) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)

	err = repo.Iterate(ctx, 0, func([]*core.Chunk) error { return nil })
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestUpsert_ClosedBackend(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	err = repo.Upsert(context.Background(), makeChunk("ACME", "a.txt", 0, 1, []float32{1}))
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
