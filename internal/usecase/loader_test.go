package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"handbook-agent/internal/domain"
	"handbook-agent/internal/integrations/paramstore"
)

type fakeIngester struct {
	doc domain.Document
	n   int
	err error
}

func (f *fakeIngester) Ingest(_ context.Context, doc domain.Document) (int, error) {
	f.doc = doc
	return f.n, f.err
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "employee_handbook.md")
	require.NoError(t, os.WriteFile(path, []byte("Dress code: business casual."), 0o600))

	doc, err := FileSource{Path: path}.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "employee_handbook", doc.ID)
	require.Equal(t, path, doc.Source)
	require.Equal(t, "Dress code: business casual.", doc.Content)

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.md")}.Fetch(context.Background())
	require.ErrorContains(t, err, "read document")
}

func TestParamSource(t *testing.T) {
	params := paramstore.Static{"/handbook-agent/handbook": "Leave: twenty days."}
	doc, err := ParamSource{Params: params, Name: "/handbook-agent/handbook"}.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Leave: twenty days.", doc.Content)

	_, err = ParamSource{Params: params, Name: "/missing"}.Fetch(context.Background())
	require.ErrorContains(t, err, "load document /missing")

	_, err = ParamSource{Name: "/x"}.Fetch(context.Background())
	require.ErrorContains(t, err, "must not be nil")
}

func TestDocumentLoader(t *testing.T) {
	_, err := NewDocumentLoader(nil, &fakeIngester{})
	require.Error(t, err)
	_, err = NewDocumentLoader(staticSource{}, nil)
	require.Error(t, err)

	ing := &fakeIngester{n: 3}
	l, err := NewDocumentLoader(staticSource{doc: domain.Document{Source: "s", Content: "text"}}, ing)
	require.NoError(t, err)
	n, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "text", ing.doc.Content)

	l, _ = NewDocumentLoader(staticSource{doc: domain.Document{Source: "s", Content: "  "}}, ing)
	_, err = l.Load(context.Background())
	require.ErrorContains(t, err, "is empty")

	l, _ = NewDocumentLoader(staticSource{doc: domain.Document{Source: "s", Content: "text"}}, &fakeIngester{err: errors.New("embed failed")})
	_, err = l.Load(context.Background())
	require.ErrorContains(t, err, "embed failed")
}
