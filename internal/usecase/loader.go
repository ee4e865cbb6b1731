package usecase

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"handbook-agent/internal/domain"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// DocumentSource fetches the raw handbook text.
type DocumentSource interface {
	Fetch(ctx context.Context) (domain.Document, error)
}

type Ingester interface {
	Ingest(ctx context.Context, doc domain.Document) (int, error)
}

// FileSource reads the handbook from a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(_ context.Context) (domain.Document, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return domain.Document{}, errors.Wrapf(err, "usecase: read document %s", s.Path)
	}
	return domain.Document{
		ID:      strings.TrimSuffix(filepath.Base(s.Path), filepath.Ext(s.Path)),
		Source:  s.Path,
		Content: string(raw),
	}, nil
}

// ParamSource reads the handbook from a parameter store entry.
type ParamSource struct {
	Params ParamGetter
	Name   string
}

func (s ParamSource) Fetch(ctx context.Context) (domain.Document, error) {
	if s.Params == nil {
		return domain.Document{}, errors.New("usecase: param getter must not be nil")
	}
	content, err := s.Params.GetParameter(ctx, s.Name)
	if err != nil {
		return domain.Document{}, errors.Wrapf(err, "usecase: load document %s", s.Name)
	}
	return domain.Document{
		ID:      "handbook",
		Source:  s.Name,
		Content: content,
	}, nil
}

// DocumentLoader fetches a document and ingests it into a fresh index.
type DocumentLoader struct {
	source   DocumentSource
	ingester Ingester
}

func NewDocumentLoader(source DocumentSource, ingester Ingester) (*DocumentLoader, error) {
	if source == nil {
		return nil, errors.New("usecase: document source must not be nil")
	}
	if ingester == nil {
		return nil, errors.New("usecase: ingester must not be nil")
	}
	return &DocumentLoader{source: source, ingester: ingester}, nil
}

func (l *DocumentLoader) Load(ctx context.Context) (int, error) {
	doc, err := l.source.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(doc.Content) == "" {
		return 0, errors.Errorf("usecase: document %s is empty", doc.Source)
	}
	n, err := l.ingester.Ingest(ctx, doc)
	if err != nil {
		return 0, errors.Wrapf(err, "usecase: ingest %s", doc.Source)
	}
	log.Info().Str("source", doc.Source).Int("chunks", n).Msg("usecase: document loaded")
	return n, nil
}
