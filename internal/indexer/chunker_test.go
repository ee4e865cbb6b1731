package indexer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"handbook-agent/internal/domain"
)

func TestChunk_EmptyDocument(t *testing.T) {
	chunks, err := NewRecursiveChunker(800, 100).Chunk(domain.Document{ID: "d", Content: "  \n "})
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestChunk_ShortDocumentIsSingleChunk(t *testing.T) {
	doc := domain.Document{ID: "d", Source: "company_handbook", Content: "The dress code is business casual."}
	chunks, err := NewRecursiveChunker(800, 100).Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "d:0", chunks[0].ChunkID)
	require.Equal(t, "company_handbook", chunks[0].Source)
	require.Equal(t, doc.Content, chunks[0].Text)
}

func TestChunk_RespectsSizeAndOverlaps(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("word")
		b.WriteString(strings.Repeat("x", i%7))
		b.WriteString(" ")
	}
	chunks, err := NewRecursiveChunker(100, 20).Chunk(domain.Document{ID: "d", Content: b.String()})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 5)

	for i, ch := range chunks {
		require.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 100)
		require.Equal(t, i, ch.Index)
		if i == 0 {
			continue
		}
		prev := []rune(chunks[i-1].Text)
		tail := string(prev[max(0, len(prev)-21):])
		firstWord := strings.Fields(ch.Text)[0]
		require.Contains(t, tail, firstWord, "chunk %d should start inside the previous chunk's tail", i)
	}
}

func TestChunk_PrefersParagraphBoundaries(t *testing.T) {
	para1 := strings.Repeat("a", 60)
	para2 := strings.Repeat("b", 60)
	chunks, err := NewRecursiveChunker(100, 0).Chunk(domain.Document{ID: "d", Content: para1 + "\n\n" + para2})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, para1, chunks[0].Text)
	require.Equal(t, para2, chunks[1].Text)
}

func TestChunk_SplitsOversizedWordByCharacter(t *testing.T) {
	chunks, err := NewRecursiveChunker(10, 0).Chunk(domain.Document{ID: "d", Content: strings.Repeat("z", 25)})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Equal(t, strings.Repeat("z", 10), chunks[0].Text)
	require.Equal(t, strings.Repeat("z", 5), chunks[2].Text)
}

func TestNewRecursiveChunker_Defaults(t *testing.T) {
	c := NewRecursiveChunker(0, -1)
	require.Equal(t, DefaultChunkSize, c.size)
	require.Zero(t, c.overlap)
}
