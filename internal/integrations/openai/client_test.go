package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"handbook-agent/internal/domain"
)

// fakeGetter is a minimal paramstore.Getter stub for use within this package.
type fakeGetter struct {
	val   string
	err   error
	calls int
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.val, f.err
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		&fakeGetter{val: `{"token":"sk-test"}`},
		"/handbook-agent",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func userMessage(content string) []domain.ChatMessage {
	return []domain.ChatMessage{{Role: "user", Content: content}}
}

func TestEndpointURLs(t *testing.T) {
	cases := []struct {
		base       string
		chat       string
		embeddings string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions", "https://api.openai.com/v1/embeddings"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions", "https://api.openai.com/v1/embeddings"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions", "http://localhost:8080/v1/embeddings"},
		{"", "https://api.openai.com/v1/chat/completions", "https://api.openai.com/v1/embeddings"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.chat, chatURL(tc.base), "base=%q", tc.base)
		require.Equal(t, tc.embeddings, embeddingsURL(tc.base), "base=%q", tc.base)
	}
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "/handbook-agent")
	require.ErrorContains(t, err, "nil")

	_, err = NewClient(&fakeGetter{}, " / ")
	require.ErrorContains(t, err, "prefix")

	c, err := NewClient(&fakeGetter{}, "/handbook-agent/")
	require.NoError(t, err)
	require.Equal(t, defaultBaseURL, c.baseURL)
	require.Equal(t, "/handbook-agent/open-ai-token", c.TokenParameterName())
}

func TestResolveAPIKey_CachedAfterSuccess(t *testing.T) {
	g := &fakeGetter{val: `{"token":"sk-from-ssm"}`}
	c, err := NewClient(g, "/handbook-agent")
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-from-ssm", key)

	_, _ = c.resolveAPIKey(context.Background())
	require.Equal(t, 1, g.calls)
}

func TestResolveAPIKey_RetriedAfterFailure(t *testing.T) {
	g := &fakeGetter{err: errors.New("ssm unavailable")}
	c, err := NewClient(g, "/handbook-agent")
	require.NoError(t, err)

	_, err = c.resolveAPIKey(context.Background())
	require.ErrorContains(t, err, "ssm unavailable")

	g.err = nil
	g.val = `{"token":"sk-later"}`
	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-later", key)
	require.Equal(t, 2, g.calls)
}

func TestFetchAPIKey(t *testing.T) {
	cases := []struct {
		name    string
		getter  Getter
		param   string
		want    string
		wantErr string
	}{
		{name: "json token", getter: &fakeGetter{val: `{"token":"sk-json"}`}, param: "/p/open-ai-token", want: "sk-json"},
		{name: "missing field", getter: &fakeGetter{val: `{"other":"x"}`}, param: "/p/open-ai-token", wantErr: "API token is empty"},
		{name: "malformed", getter: &fakeGetter{val: `{"broken`}, param: "/p/open-ai-token", wantErr: "unmarshal"},
		{name: "getter error", getter: &fakeGetter{err: errors.New("ssm unavailable")}, param: "/p/open-ai-token", wantErr: "ssm unavailable"},
		{name: "nil getter", getter: nil, param: "/p/open-ai-token", wantErr: "nil"},
		{name: "empty name", getter: &fakeGetter{val: `{"token":"x"}`}, param: " ", wantErr: "empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := fetchAPIKeyFromParamStore(context.Background(), tc.getter, tc.param)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, key)
		})
	}
}

func TestClient_Chat_SendsLimits(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody chatRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Business casual.  "}}]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Chat(context.Background(), domain.ChatRequest{
		Model:       "gpt-3.5-turbo",
		Messages:    userMessage("What is the dress code?"),
		MaxTokens:   500,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	require.Equal(t, "  Business casual.  ", resp)
	require.Equal(t, "/v1/chat/completions", gotPath)
	require.Equal(t, "Bearer sk-test", gotAuth)
	require.Equal(t, "gpt-3.5-turbo", gotBody.Model)
	require.Equal(t, 500, gotBody.MaxTokens)
	require.NotNil(t, gotBody.Temperature)
	require.InDelta(t, 0.7, *gotBody.Temperature, 1e-9)
}

func TestClient_Chat_StatusErrors(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))

		c := newTestClient(t, srv)
		_, err := c.Chat(context.Background(), domain.ChatRequest{Model: "gpt-mock", Messages: userMessage("hi")})
		srv.Close()

		var statusErr *HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, status, statusErr.HTTPStatusCode())
		require.Contains(t, err.Error(), "unexpected status")
	}
}

func TestClient_Chat_MalformedResponses(t *testing.T) {
	cases := []struct {
		body    string
		wantErr string
	}{
		{body: `not-a-json`, wantErr: "decode response"},
		{body: `{"choices":[]}`, wantErr: "no choices"},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(tc.body))
		}))
		c := newTestClient(t, srv)
		_, err := c.Chat(context.Background(), domain.ChatRequest{Model: "gpt-mock", Messages: userMessage("hi")})
		srv.Close()
		require.ErrorContains(t, err, tc.wantErr)
	}
}

func TestClient_Chat_InputValidation(t *testing.T) {
	c, err := NewClient(&fakeGetter{val: `{"token":"sk-test"}`}, "/handbook-agent")
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), domain.ChatRequest{Messages: userMessage("hi")})
	require.ErrorContains(t, err, "model")

	_, err = c.Chat(context.Background(), domain.ChatRequest{Model: "gpt-mock"})
	require.ErrorContains(t, err, "messages")
}

func TestClient_Chat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Chat(context.Background(), domain.ChatRequest{Model: "gpt-mock", Messages: userMessage("hi")})
	require.ErrorContains(t, err, "request failed")
}

func TestClient_Embed(t *testing.T) {
	var got embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		_, _ = w.Write([]byte(`{"data":[{"embedding":[3,4]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	vec, err := c.Embed(context.Background(), "text-embedding-3-small", "dress code")
	require.NoError(t, err)
	require.Equal(t, []float64{3, 4}, vec)
	require.Equal(t, "dress code", got.Input)
	require.Equal(t, "text-embedding-3-small", got.Model)

	_, err = c.Embed(context.Background(), "", "x")
	require.ErrorContains(t, err, "model")
}

func TestClient_Embed_EmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Embed(context.Background(), "m", "x")
	require.ErrorContains(t, err, "no embedding")
}
