package indexer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"handbook-agent/internal/domain"
	"handbook-agent/internal/embedding/tfidf"
)

const embedConcurrency = 4

// Chunker splits a document into chunks suitable for indexing.
type Chunker interface {
	Chunk(doc domain.Document) ([]domain.Chunk, error)
}

// Embedder converts text into a vector. Prepare is called once with the
// whole corpus before any Embed call.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Storage persists vectors and supports similarity search.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// ErrNotIndexed is returned by Search before a successful Ingest.
var ErrNotIndexed = errors.New("indexer: no document has been ingested")

// Indexer builds a searchable embedding index from a document.
type Indexer struct {
	chunker  Chunker
	embedder Embedder
	store    Storage

	mu     sync.RWMutex
	ready  bool
	chunks []domain.Chunk
}

func New(chunker Chunker, embedder Embedder, store Storage) (*Indexer, error) {
	if chunker == nil {
		return nil, errors.New("indexer: chunker must not be nil")
	}
	if embedder == nil {
		return nil, errors.New("indexer: embedder must not be nil")
	}
	if store == nil {
		return nil, errors.New("indexer: storage must not be nil")
	}
	return &Indexer{chunker: chunker, embedder: embedder, store: store}, nil
}

// Ingest replaces the index contents with the chunks of doc and returns the
// number of chunks stored.
func (ix *Indexer) Ingest(ctx context.Context, doc domain.Document) (int, error) {
	chunks, err := ix.chunker.Chunk(doc)
	if err != nil {
		return 0, errors.Wrap(err, "indexer: chunk document")
	}
	if len(chunks) == 0 {
		return 0, errors.New("indexer: document produced no chunks")
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	// Prepare may replace the embedder's vocabulary, so searches must not
	// run until the stored vectors match it again.
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.ready = false
	if err := ix.embedder.Prepare(ctx, texts); err != nil {
		return 0, errors.Wrap(err, "indexer: prepare embedder")
	}

	vectors := make([][]float64, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i := range chunks {
		g.Go(func() error {
			vec, err := ix.embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				return errors.Wrapf(err, "indexer: embed chunk %s", chunks[i].ChunkID)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := ix.store.Init(ctx, ix.embedder.Dimension()); err != nil {
		return 0, errors.Wrap(err, "indexer: init storage")
	}
	if err := ix.store.Clear(ctx); err != nil {
		return 0, errors.Wrap(err, "indexer: clear storage")
	}
	if err := ix.store.Upsert(ctx, chunks, vectors); err != nil {
		return 0, errors.Wrap(err, "indexer: upsert chunks")
	}
	ix.chunks = chunks
	ix.ready = true

	log.Info().
		Str("source", doc.Source).
		Str("embedder", ix.embedder.Name()).
		Int("chunks", len(chunks)).
		Msg("indexer: document ingested")
	return len(chunks), nil
}

// Search returns up to k chunks ranked by similarity. Chunks with no
// similarity to the query are dropped, so the result may be empty. Search
// blocks while an Ingest is in progress.
func (ix *Indexer) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if !ix.ready {
		return nil, ErrNotIndexed
	}
	if k <= 0 {
		k = 3
	}

	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "indexer: embed query")
	}
	if isZero(vec) {
		return ix.lexicalSearch(query, k), nil
	}
	res, err := ix.store.Search(ctx, vec, k)
	if err != nil {
		return nil, errors.Wrap(err, "indexer: search storage")
	}
	return relevant(res), nil
}

// Ready reports whether a document has been ingested.
func (ix *Indexer) Ready() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.ready
}

// Count returns the number of stored chunks.
func (ix *Indexer) Count(ctx context.Context) (int, error) {
	return ix.store.Count(ctx)
}

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

func (ix *Indexer) lexicalSearch(query string, k int) []domain.SearchResult {
	qset := tokenSet(query)
	scored := make([]domain.SearchResult, len(ix.chunks))
	for i, ch := range ix.chunks {
		scored[i] = domain.SearchResult{Chunk: ch, Score: ochiai(qset, ch.Text)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return relevant(scored[:k])
}

func relevant(res []domain.SearchResult) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(res))
	for _, r := range res {
		if r.Score > 1e-9 {
			out = append(out, r)
		}
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	toks := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		if tfidf.IsStopword(t) {
			continue
		}
		m[t] = struct{}{}
	}
	return m
}

// ochiai computes |A∩B| / sqrt(|A||B|) over word sets.
func ochiai(qset map[string]struct{}, text string) float64 {
	seen := tokenSet(text)
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
