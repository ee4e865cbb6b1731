package indexer

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"handbook-agent/internal/domain"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits text on the coarsest separator that keeps pieces
// under the chunk size, then merges neighbouring pieces back together with
// overlap. Lengths are measured in characters.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators []string
}

func NewRecursiveChunker(size, overlap int) *RecursiveChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &RecursiveChunker{size: size, overlap: overlap, separators: defaultSeparators}
}

func (c *RecursiveChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}
	texts := c.split(doc.Content, c.separators)
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{
			DocumentID: doc.ID,
			ChunkID:    doc.ID + ":" + strconv.Itoa(i),
			Source:     doc.Source,
			Text:       text,
			Index:      i,
		})
	}
	return chunks, nil
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = strings.Split(text, "")
	} else {
		pieces = strings.Split(text, sep)
	}

	var out, pending []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if length(p) < c.size {
			pending = append(pending, p)
			continue
		}
		if len(pending) > 0 {
			out = append(out, c.merge(pending, sep)...)
			pending = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, c.split(p, rest)...)
		}
	}
	if len(pending) > 0 {
		out = append(out, c.merge(pending, sep)...)
	}
	return out
}

// merge joins pieces into chunks of at most size characters; each new chunk
// starts with up to overlap characters of trailing pieces from the last one.
func (c *RecursiveChunker) merge(pieces []string, sep string) []string {
	sepLen := length(sep)
	var (
		out     []string
		current []string
		total   int
	)
	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}
	for _, p := range pieces {
		l := length(p)
		if total+l+joinLen() > c.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
				out = append(out, doc)
			}
			for total > c.overlap || (total+l+joinLen() > c.size && total > 0) {
				drop := length(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		total += l + joinLen()
		current = append(current, p)
	}
	if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
		out = append(out, doc)
	}
	return out
}

func length(s string) int { return utf8.RuneCountInString(s) }
