package openai

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"
)

const DefaultEmbeddingModel = "text-embedding-3-small"

// Embedder adapts Client to the indexer's embedder contract. The vector
// dimension is learned from the first response.
type Embedder struct {
	client *Client
	model  string

	mu        sync.RWMutex
	dimension int
}

func NewEmbedder(client *Client, model string) (*Embedder, error) {
	if client == nil {
		return nil, errors.New("openai: embedder client must not be nil")
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{client: client, model: model}, nil
}

func (e *Embedder) Name() string { return "openai:" + e.model }

// Prepare embeds one chunk so Dimension is known before the first
// chunk is stored.
func (e *Embedder) Prepare(ctx context.Context, corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("openai: empty corpus")
	}
	_, err := e.Embed(ctx, corpus[0])
	return err
}

func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vec, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(vec)
	}
	e.mu.Unlock()
	return normalize(vec), nil
}

func normalize(vec []float64) []float64 {
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
