package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/finrank/ai"
	"github.com/poiesic/finrank/ai/mock"
	"github.com/poiesic/finrank/chunker"
	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/retry"
	"github.com/poiesic/finrank/storage"
	"github.com/poiesic/finrank/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int, prefix string) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("%s%03d", prefix, i)
	}
	return strings.Join(w, " ")
}

func fastRetry() Option {
	p := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Timeout: time.Second}
	return WithRetry(p, p)
}

func setupIngestor(t *testing.T, embedder ai.Embedder, opts ...Option) (*Ingestor, storage.ChunkRepository) {
	t.Helper()
	repo, backend, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})

	ing, err := NewIngestor(repo, embedder, append([]Option{fastRetry()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(ing.Release)
	return ing, repo
}

func TestNewIngestor_RequiresDependencies(t *testing.T) {
	_, err := NewIngestor(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	repo, backend, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	defer backend.Close()

	_, err = NewIngestor(repo, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewIngestor(repo, mock.NewMockEmbedder(), WithBatchSize(0))
	assert.Error(t, err)

	_, err = NewIngestor(repo, mock.NewMockEmbedder(), WithChunkOptions(chunker.Options{WindowWords: 5, OverlapWords: 5}))
	assert.ErrorIs(t, err, chunker.ErrInvalidOptions)
}

func TestIngest_ThreeHundredWordDocument(t *testing.T) {
	ing, repo := setupIngestor(t, mock.NewMockEmbedder())
	ctx := context.Background()

	n, err := ing.Ingest(ctx, core.Document{
		SourceFile: "/filings/acme_10k_2024.txt",
		Company:    "Acme",
		FilingType: "10-K",
		FiscalYear: "FY2024",
		Text:       words(300, "w"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	chunks, err := repo.Fetch(ctx, storage.Filter{storage.FieldCompany: "Acme"}, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	for idx, c := range chunks {
		assert.Equal(t, fmt.Sprintf("Acme_acme_10k_2024_chunk%04d", idx), c.ID)
		assert.Equal(t, idx, c.Metadata.ChunkIndex)
		assert.Equal(t, 2, c.Metadata.TotalChunks)
		assert.Equal(t, "acme_10k_2024.txt", c.Metadata.SourceFile)
		assert.Equal(t, "FY2024", c.Metadata.FiscalYear)
		assert.Equal(t, "", c.Metadata.Quarter)
		assert.Len(t, c.Vector, mock.DefaultDimension)
	}

	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	assert.Equal(t, first[len(first)-50:], second[:50])
}

func TestIngest_Idempotent(t *testing.T) {
	ing, repo := setupIngestor(t, mock.NewMockEmbedder())
	ctx := context.Background()
	doc := core.Document{SourceFile: "a.txt", Company: "ACME", Text: words(1000, "x")}

	n1, err := ing.Ingest(ctx, doc)
	require.NoError(t, err)
	first, err := repo.Fetch(ctx, nil, 0)
	require.NoError(t, err)

	n2, err := ing.Ingest(ctx, doc)
	require.NoError(t, err)
	second, err := repo.Fetch(ctx, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, n1, n2)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Vector, second[i].Vector)
	}
}

func TestIngest_DefaultsMissingMetadata(t *testing.T) {
	ing, repo := setupIngestor(t, mock.NewMockEmbedder())
	ctx := context.Background()

	_, err := ing.Ingest(ctx, core.Document{SourceFile: "notes.txt", Text: words(120, "n")})
	require.NoError(t, err)

	chunks, err := repo.Fetch(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, core.UnknownValue, chunks[0].Metadata.Company)
	assert.Equal(t, core.UnknownValue, chunks[0].Metadata.FilingType)
	assert.Equal(t, core.UnknownValue, chunks[0].Metadata.FiscalYear)
	assert.Equal(t, "Unknown_notes_chunk0000", chunks[0].ID)
}

func TestIngest_SkipsShortDocuments(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	ing, repo := setupIngestor(t, embedder)

	n, err := ing.Ingest(context.Background(), core.Document{Company: "ACME", Text: "   too short   "})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, embedder.CallCount())

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngest_BatchesInOrder(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	var batches []int
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		batches = append(batches, len(texts))
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, 8)
		}
		return out, nil
	}
	ing, repo := setupIngestor(t, embedder,
		WithBatchSize(2),
		WithChunkOptions(chunker.Options{WindowWords: 20, OverlapWords: 5, MinChunkChars: 10}),
	)

	// 80 words, step 15: windows start at 0,15,30,45,60 -> 5 chunks
	n, err := ing.Ingest(context.Background(), core.Document{Company: "ACME", SourceFile: "a.txt", Text: words(80, "b")})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{2, 2, 1}, batches)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestIngest_PartialFailureLeavesEarlierBatches(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	var calls atomic.Int32
	boom := errors.New("embedding service unavailable")
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) > 1 {
			return nil, boom
		}
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 0}
		}
		return out, nil
	}
	var hooks int
	ing, repo := setupIngestor(t, embedder,
		WithBatchSize(2),
		WithChunkOptions(chunker.Options{WindowWords: 20, OverlapWords: 5, MinChunkChars: 10}),
		WithWriteHook(func() { hooks++ }),
	)

	n, err := ing.Ingest(context.Background(), core.Document{Company: "ACME", SourceFile: "a.txt", Text: words(80, "p")})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(4), calls.Load(), "one success then three failed attempts")
	assert.Equal(t, 1, hooks)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIngest_ModelInitIsNotRetried(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, fmt.Errorf("%w: weights missing", ai.ErrModelInit)
	}
	ing, _ := setupIngestor(t, embedder)

	_, err := ing.Ingest(context.Background(), core.Document{Company: "ACME", Text: words(200, "m")})
	assert.ErrorIs(t, err, ai.ErrModelInit)
	assert.Equal(t, 1, embedder.CallCount())
}

func TestIngest_TransientEmbedFailureRetried(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			return nil, context.DeadlineExceeded
		}
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{0, 1}
		}
		return out, nil
	}
	ing, _ := setupIngestor(t, embedder)

	n, err := ing.Ingest(context.Background(), core.Document{Company: "ACME", Text: words(200, "r")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(2), calls.Load())
}

func TestIngest_EmbeddingCountMismatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{}, nil
	}
	ing, _ := setupIngestor(t, embedder)

	_, err := ing.Ingest(context.Background(), core.Document{Company: "ACME", Text: words(200, "c")})
	assert.ErrorIs(t, err, ErrEmbeddingCountMismatch)
}

func TestIngestAll(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if strings.HasPrefix(texts[0], "bad") {
			return nil, retry.Permanent(errors.New("rejected"))
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, 8)
		}
		return out, nil
	}
	ing, repo := setupIngestor(t, embedder, WithPoolSize(3))

	docs := []core.Document{
		{Company: "ACME", SourceFile: "a.txt", Text: words(300, "a")},
		{Company: "Globex", SourceFile: "g.txt", Text: words(100, "g")},
		{Company: "Initech", SourceFile: "i.txt", Text: words(100, "bad")},
		{Company: "Umbrella", SourceFile: "u.txt", Text: "short"},
	}
	summary := ing.IngestAll(context.Background(), docs)

	assert.Equal(t, 3, summary.DocumentsProcessed)
	assert.Equal(t, 3, summary.ChunksAdded)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "i.txt", summary.Errors[0].SourceFile)
	assert.Error(t, summary.Err())

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestIngestAll_CanceledContext(t *testing.T) {
	ing, _ := setupIngestor(t, mock.NewMockEmbedder())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := ing.IngestAll(ctx, []core.Document{{Company: "ACME", Text: words(200, "z")}})
	assert.Zero(t, summary.DocumentsProcessed)
	require.Len(t, summary.Errors, 1)
	assert.ErrorIs(t, summary.Errors[0], context.Canceled)
}

func TestSummary_ErrNil(t *testing.T) {
	assert.NoError(t, (&Summary{}).Err())
}
