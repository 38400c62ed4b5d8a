package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/finrank/ai"
	"github.com/poiesic/finrank/ai/mock"
	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/retry"
	"github.com/poiesic/finrank/storage"
	"github.com/poiesic/finrank/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Timeout: time.Second}
}

func setupTestRepository(t *testing.T, n int) storage.ChunkRepository {
	t.Helper()
	repo, backend, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})

	if n > 0 {
		chunks := make([]*core.Chunk, n)
		for i := range chunks {
			chunks[i] = &core.Chunk{
				ID:     core.ChunkID("ACME", "10k.txt", i),
				Text:   fmt.Sprintf("chunk text %d", i),
				Vector: []float32{1, 0, 0},
				Metadata: core.ChunkMetadata{
					Company:     "ACME",
					SourceFile:  "10k.txt",
					FilingType:  "10-K",
					FiscalYear:  "FY2024",
					ChunkIndex:  i,
					TotalChunks: n,
				},
			}
		}
		require.NoError(t, repo.Upsert(context.Background(), chunks...))
	}
	return repo
}

func TestBatchProcessor_Process(t *testing.T) {
	repo := setupTestRepository(t, 3)
	ctx := context.Background()

	chunks, err := repo.Fetch(ctx, nil, 0)
	require.NoError(t, err)

	processor := NewBatchProcessor(repo, mock.NewMockEmbedder(), testPolicy())
	require.NoError(t, processor.Process(ctx, chunks))

	for _, c := range chunks {
		stored, err := repo.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, mock.DeterministicVector(c.Text, mock.DefaultDimension), stored.Vector)
		assert.Equal(t, c.Text, stored.Text)
		assert.Equal(t, "FY2024", stored.Metadata.FiscalYear)
	}
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	processor := NewBatchProcessor(setupTestRepository(t, 0), embedder, testPolicy())
	require.NoError(t, processor.Process(context.Background(), nil))
	assert.Equal(t, 0, embedder.CallCount())
}

func TestBatchProcessor_RetriesTransientFailure(t *testing.T) {
	repo := setupTestRepository(t, 2)
	ctx := context.Background()
	chunks, err := repo.Fetch(ctx, nil, 0)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		if embedder.CallCount() == 1 {
			return nil, errors.New("temporary failure")
		}
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{0, 1, 0}
		}
		return out, nil
	}

	processor := NewBatchProcessor(repo, embedder, testPolicy())
	require.NoError(t, processor.Process(ctx, chunks))
	assert.Equal(t, 2, embedder.CallCount())
}

func TestBatchProcessor_ModelInitNotRetried(t *testing.T) {
	repo := setupTestRepository(t, 1)
	ctx := context.Background()
	chunks, err := repo.Fetch(ctx, nil, 0)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, ai.ErrModelInit
	}

	processor := NewBatchProcessor(repo, embedder, testPolicy())
	err = processor.Process(ctx, chunks)
	assert.ErrorIs(t, err, ai.ErrModelInit)
	assert.Equal(t, 1, embedder.CallCount())
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	repo := setupTestRepository(t, 2)
	ctx := context.Background()
	chunks, err := repo.Fetch(ctx, nil, 0)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}

	processor := NewBatchProcessor(repo, embedder, testPolicy())
	err = processor.Process(ctx, chunks)
	assert.ErrorIs(t, err, ErrEmbeddingCountMismatch)
}
