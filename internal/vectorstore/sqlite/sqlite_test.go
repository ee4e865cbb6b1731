package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"handbook-agent/internal/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewStorage_EmptyDSN(t *testing.T) {
	_, err := NewStorage(" ")
	require.Error(t, err)
}

func TestStorage_RoundTripAndRanking(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.Init(ctx, 2))

	chunks := []domain.Chunk{
		{ChunkID: "doc:0", DocumentID: "doc", Source: "handbook", Text: "leave policy", Index: 0},
		{ChunkID: "doc:1", DocumentID: "doc", Source: "handbook", Text: "dress code", Index: 1},
	}
	require.NoError(t, s.Upsert(ctx, chunks, [][]float64{{0, 1}, {1, 0}}))

	res, err := s.Search(ctx, []float64{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, "dress code", res[0].Chunk.Text)
	require.Equal(t, "handbook", res[0].Chunk.Source)
	require.InDelta(t, 1.0, res[0].Score, 1e-9)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	dim, err := s.storedDimension(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, dim)
}

func TestStorage_InitResetsChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.Init(ctx, 1))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ChunkID: "a", Text: "a"}}, [][]float64{{1}}))
	require.NoError(t, s.Init(ctx, 1))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStorage_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.Init(ctx, 2))
	err := s.Upsert(ctx, []domain.Chunk{{ChunkID: "a"}}, [][]float64{{1}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "dimension")
}

func TestStorage_DimensionBeforeInit(t *testing.T) {
	dim, err := newTestStorage(t).storedDimension(context.Background())
	require.NoError(t, err)
	require.Zero(t, dim)
}

func TestStorage_ReopenRestoresDimension(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := NewStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ChunkID: "a", Text: "dress code"}}, [][]float64{{1, 0}}))
	require.NoError(t, s.Close())

	reopened, err := NewStorage(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	res, err := reopened.Search(ctx, []float64{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "dress code", res[0].Chunk.Text)

	_, err = reopened.Search(ctx, []float64{1, 0, 0}, 1)
	require.ErrorContains(t, err, "query dimension")
}
