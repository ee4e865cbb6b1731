package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"handbook-agent/internal/domain"
)

func chunk(id string, idx int) domain.Chunk {
	return domain.Chunk{ChunkID: id, Text: id, Index: idx}
}

func TestInit_InvalidDimension(t *testing.T) {
	require.Error(t, NewStorage().Init(context.Background(), 0))
}

func TestUpsert_Mismatch(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Init(context.Background(), 2))
	require.Error(t, s.Upsert(context.Background(), []domain.Chunk{chunk("a", 0)}, nil))
	require.Error(t, s.Upsert(context.Background(), []domain.Chunk{chunk("a", 0)}, [][]float64{{1, 0, 0}}))
}

func TestSearch_RankedWithStableTies(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx,
		[]domain.Chunk{chunk("low", 0), chunk("tie-first", 1), chunk("tie-second", 2), chunk("top", 3)},
		[][]float64{{0, 1}, {0.6, 0.8}, {0.6, 0.8}, {1, 0}},
	))

	res, err := s.Search(ctx, []float64{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, "top", res[0].Chunk.ChunkID)
	require.Equal(t, "tie-first", res[1].Chunk.ChunkID)
	require.Equal(t, "tie-second", res[2].Chunk.ChunkID)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 1))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{chunk("a", 0)}, [][]float64{{1}}))
	require.NoError(t, s.Clear(ctx))
	res, err := s.Search(ctx, []float64{1}, 3)
	require.NoError(t, err)
	require.Empty(t, res)
}
