package usecase

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"handbook-agent/internal/domain"
	"handbook-agent/internal/memory"
)

const (
	DefaultModel          = "gpt-3.5-turbo"
	DefaultMaxTokens      = 500
	DefaultTemperature    = 0.7
	DefaultSearchK        = 3
	DefaultMaxQuestionLen = 1000

	statusQuery     = "dress code"
	statusK         = 2
	statusSampleLen = 500
	noDocumentsText = "No documents found"

	notInitializedMessage = "I apologize, but the document system is not properly initialized. Please try again later."
	noResultsMessage      = "I couldn't find any relevant information in the documents to answer your question. " +
		"Please try asking about company policies, leave, benefits, or other topics covered in the employee handbook."
	errorMessagePrefix = "I apologize, but I encountered an error while processing your request: "
)

// State is the lifecycle position of a Responder.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// Index is the searchable document index the Responder retrieves from.
type Index interface {
	Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Ready() bool
}

// Loader builds the index from its configured document source.
type Loader interface {
	Load(ctx context.Context) (int, error)
}

type LLMClient interface {
	Chat(ctx context.Context, in domain.ChatRequest) (string, error)
}

type MemoryStore interface {
	Window(ctx context.Context, conversationID string) *memory.Window
	Len() int
}

// TurnRecorder persists answered turns. Failures never reach the caller.
type TurnRecorder interface {
	GetConversationTurnCount(ctx context.Context, conversationID string) (int, error)
	SaveCompletedTurn(ctx context.Context, conversationID, question, answer string, tokens, turns int) error
}

type TokenCounter interface {
	Count(text string) int
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type ResponderConfig struct {
	Model          string
	MaxTokens      int
	Temperature    float64
	SearchK        int
	MaxQuestionLen int
}

type Option func(*Responder)

func WithTurnRecorder(r TurnRecorder) Option {
	return func(s *Responder) { s.recorder = r }
}

func WithTokenCounter(c TokenCounter) Option {
	return func(s *Responder) { s.counter = c }
}

// Responder answers employee questions from the indexed handbook and the
// conversation's recent turns.
type Responder struct {
	index    Index
	loader   Loader
	llm      LLMClient
	memory   MemoryStore
	recorder TurnRecorder
	counter  TokenCounter
	cfg      ResponderConfig

	initMu  sync.Mutex
	mu      sync.RWMutex
	state   State
	lastErr error
	readyAt time.Time
}

type AnswerInput struct {
	Query          string
	ConversationID string
}

type AnswerOutput struct {
	Answer         string
	ConversationID string
}

// Status is a point-in-time view of the Responder for diagnostics.
type Status struct {
	State          State     `json:"state"`
	LastError      string    `json:"last_error,omitempty"`
	ReadyAt        time.Time `json:"ready_at,omitempty"`
	Indexed        bool      `json:"indexed"`
	Chunks         int       `json:"chunks"`
	Conversations  int       `json:"conversations"`
	TestQuery      string    `json:"test_query,omitempty"`
	DocumentsFound int       `json:"documents_found"`
	SampleContent  string    `json:"sample_content,omitempty"`
}

func NewResponder(index Index, loader Loader, llm LLMClient, mem MemoryStore, cfg ResponderConfig, opts ...Option) (*Responder, error) {
	if index == nil {
		return nil, errors.New("usecase: index must not be nil")
	}
	if loader == nil {
		return nil, errors.New("usecase: loader must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if mem == nil {
		return nil, errors.New("usecase: memory store must not be nil")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.SearchK <= 0 {
		cfg.SearchK = DefaultSearchK
	}
	if cfg.MaxQuestionLen <= 0 {
		cfg.MaxQuestionLen = DefaultMaxQuestionLen
	}
	r := &Responder{
		index:  index,
		loader: loader,
		llm:    llm,
		memory: mem,
		cfg:    cfg,
		state:  StateUninitialized,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Responder) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Initialize loads the index unless the Responder is already Ready.
func (r *Responder) Initialize(ctx context.Context) error {
	if r.State() == StateReady {
		return nil
	}
	return r.load(ctx, false)
}

// Reinitialize rebuilds the index regardless of the current state.
func (r *Responder) Reinitialize(ctx context.Context) error {
	return r.load(ctx, true)
}

func (r *Responder) load(ctx context.Context, force bool) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if !force && r.State() == StateReady {
		return nil
	}

	start := time.Now()
	chunks, err := r.loader.Load(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = StateFailed
		r.lastErr = err
		log.Error().Err(err).Str("state", string(r.state)).Msg("responder: initialization failed")
		return newError(ErrorIndexUnavailable, "initialization_failed", err)
	}
	r.state = StateReady
	r.lastErr = nil
	r.readyAt = time.Now().UTC()
	log.Info().
		Int("chunks", chunks).
		Dur("elapsed", time.Since(start)).
		Msg("responder: index ready")
	return nil
}

// ValidateQuery reports whether a query can be answered at all.
func (r *Responder) ValidateQuery(query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return newError(ErrorInvalidInput, "empty_question", nil)
	}
	if utf8.RuneCountInString(query) > r.cfg.MaxQuestionLen {
		return newError(ErrorInvalidInput, "question_too_long", nil)
	}
	return nil
}

// Answer always returns a non-empty answer. Failures are turned into an
// apology and logged.
func (r *Responder) Answer(ctx context.Context, in AnswerInput) AnswerOutput {
	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		convID = newUUID()
	}
	logger := log.Ctx(ctx).With().Str("conversation_id", convID).Logger()
	if logger.GetLevel() == zerolog.Disabled {
		logger = log.With().Str("conversation_id", convID).Logger()
	}

	answer, err := r.answer(logger.WithContext(ctx), convID, strings.TrimSpace(in.Query))
	if err != nil {
		var ucErr *Error
		if !errors.As(err, &ucErr) {
			ucErr = newError(ErrorInternal, "unexpected_error", err)
		}
		logger.Warn().
			Err(ucErr.Err).
			Str("code", string(ucErr.Code)).
			Str("reason", ucErr.Reason).
			Msg("responder: answer failed")
		answer = apologyFor(ucErr)
	}
	return AnswerOutput{Answer: answer, ConversationID: convID}
}

func (r *Responder) answer(ctx context.Context, convID, query string) (string, error) {
	if r.State() != StateReady {
		return "", newError(ErrorIndexUnavailable, "not_initialized", nil)
	}
	if err := r.ValidateQuery(query); err != nil {
		return "", err
	}

	results, err := r.index.Search(ctx, query, r.cfg.SearchK)
	if err != nil {
		return "", newError(ErrorInternal, "search_error", err)
	}
	if len(results) == 0 {
		return "", newError(ErrorNoRelevantContent, "no_results", nil)
	}

	window := r.memory.Window(ctx, convID)
	messages := buildPromptMessages(results, window.RecentTurns(), query)
	promptTokens := r.countTokens(messages)
	log.Ctx(ctx).Debug().
		Int("chunks", len(results)).
		Int("prompt_tokens", promptTokens).
		Str("context_sample", truncate(results[0].Chunk.Text, 200)).
		Msg("responder: calling model")

	raw, err := r.llm.Chat(ctx, domain.ChatRequest{
		Model:       r.cfg.Model,
		Messages:    messages,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return "", newError(ErrorRateLimited, "openai_rate_limited", err)
		}
		return "", newError(ErrorUpstream, "openai_error", err)
	}
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return "", newError(ErrorUpstream, "openai_empty_answer", errors.New("model returned an empty answer"))
	}

	window.Record(query, answer)
	r.persist(ctx, convID, query, answer, promptTokens+r.count(answer))
	return answer, nil
}

func (r *Responder) persist(ctx context.Context, convID, query, answer string, tokens int) {
	if r.recorder == nil {
		return
	}
	logger := log.Ctx(ctx)
	turns, err := r.recorder.GetConversationTurnCount(ctx, convID)
	if err != nil {
		logger.Warn().Err(err).Str("reason", "dynamodb_turn_count_error").Msg("responder: turn not persisted")
		return
	}
	if err := r.recorder.SaveCompletedTurn(ctx, convID, query, answer, tokens, turns+1); err != nil {
		logger.Warn().Err(err).Str("reason", "dynamodb_write_error").Msg("responder: turn not persisted")
	}
}

// Status reports the lifecycle state and runs a fixed test search.
func (r *Responder) Status(ctx context.Context) Status {
	r.mu.RLock()
	st := Status{State: r.state, ReadyAt: r.readyAt}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	r.mu.RUnlock()

	st.Conversations = r.memory.Len()
	st.Indexed = r.index.Ready()
	if st.State != StateReady || !st.Indexed {
		return st
	}
	if n, err := r.index.Count(ctx); err == nil {
		st.Chunks = n
	}
	st.TestQuery = statusQuery
	results, err := r.index.Search(ctx, statusQuery, statusK)
	if err != nil {
		st.SampleContent = err.Error()
		return st
	}
	st.DocumentsFound = len(results)
	if len(results) == 0 {
		st.SampleContent = noDocumentsText
		return st
	}
	st.SampleContent = truncate(results[0].Chunk.Text, statusSampleLen)
	return st
}

func (r *Responder) countTokens(messages []domain.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += r.count(m.Content)
	}
	return total
}

func (r *Responder) count(text string) int {
	if r.counter == nil {
		return 0
	}
	return r.counter.Count(text)
}

func apologyFor(err *Error) string {
	switch err.Code {
	case ErrorIndexUnavailable:
		return notInitializedMessage
	case ErrorNoRelevantContent:
		return noResultsMessage
	default:
		return errorMessagePrefix + err.Detail()
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
