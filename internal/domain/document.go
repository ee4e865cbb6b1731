package domain

// Document is a raw source text handed to the indexer.
type Document struct {
	ID      string
	Source  string
	Content string
}

// Chunk is a bounded fragment of a document produced at ingest time.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Source     string
	Text       string
	Index      int
}

// SearchResult is a matching chunk with its relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}
