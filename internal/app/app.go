// Package app wires configuration into a ready-to-serve handler. Both the
// Lambda entry point and the dev server build through it.
package app

import (
	"context"
	"strings"

	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"handbook-agent/handler"
	"handbook-agent/internal/config"
	"handbook-agent/internal/embedding/tfidf"
	"handbook-agent/internal/flow"
	"handbook-agent/internal/indexer"
	"handbook-agent/internal/integrations/openai"
	"handbook-agent/internal/memory"
	"handbook-agent/internal/repository"
	redisstore "handbook-agent/internal/sessionstore/redis"
	"handbook-agent/internal/tokens"
	"handbook-agent/internal/usecase"
	vsmemory "handbook-agent/internal/vectorstore/memory"
	"handbook-agent/internal/vectorstore/sqlite"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Deps are the process-level clients. DynamoDB may be nil when no state
// table is configured.
type Deps struct {
	Params   ParamGetter
	DynamoDB *awsdynamodb.Client
}

type App struct {
	Handler   *handler.Handler
	Responder *usecase.Responder
	Flows     *flow.Service
	Indexer   *indexer.Indexer

	closers []func() error
}

func Build(ctx context.Context, cfg config.Config, deps Deps) (*App, error) {
	if deps.Params == nil {
		return nil, errors.New("app: params must not be nil")
	}
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	model := resolveModel(ctx, cfg, deps.Params)

	llm, err := openai.NewClient(deps.Params, cfg.ParamPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "app: openai client")
	}

	embedder, err := buildEmbedder(cfg, llm)
	if err != nil {
		return nil, err
	}
	store, err := a.buildVectorStore(cfg)
	if err != nil {
		return nil, err
	}
	ix, err := indexer.New(indexer.NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap), embedder, store)
	if err != nil {
		return nil, errors.Wrap(err, "app: indexer")
	}
	a.Indexer = ix

	var source usecase.DocumentSource = usecase.ParamSource{Params: deps.Params, Name: cfg.HandbookParameter()}
	if cfg.DocumentPath != "" {
		source = usecase.FileSource{Path: cfg.DocumentPath}
	}
	loader, err := usecase.NewDocumentLoader(source, ix)
	if err != nil {
		return nil, errors.Wrap(err, "app: document loader")
	}

	var repo *repository.Client
	if cfg.StateTable != "" && deps.DynamoDB != nil {
		repo, err = repository.New(deps.DynamoDB, cfg.StateTable)
		if err != nil {
			return nil, errors.Wrap(err, "app: repository")
		}
	}

	var memOpts []memory.Option
	var respOpts []usecase.Option
	if repo != nil {
		memOpts = append(memOpts, memory.WithHistory(repo))
		respOpts = append(respOpts, usecase.WithTurnRecorder(repo))
	}
	mem, err := memory.NewStore(cfg.MemoryWindow, cfg.MemoryMaxConversations, cfg.MemoryTTL, memOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "app: memory store")
	}
	if counter, err := tokens.NewCounter(model); err != nil {
		log.Warn().Err(err).Str("model", model).Msg("app: token counting disabled")
	} else {
		respOpts = append(respOpts, usecase.WithTokenCounter(counter))
	}

	responder, err := usecase.NewResponder(ix, loader, llm, mem, usecase.ResponderConfig{
		Model:          model,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
		SearchK:        cfg.SearchK,
		MaxQuestionLen: cfg.MaxQuestionLen,
	}, respOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "app: responder")
	}
	a.Responder = responder

	flows, err := a.buildFlows(cfg, repo)
	if err != nil {
		return nil, err
	}
	a.Flows = flows

	h, err := handler.NewHandler(responder, flows)
	if err != nil {
		return nil, errors.Wrap(err, "app: handler")
	}
	a.Handler = h

	log.Info().
		Str("model", model).
		Str("embedder", embedder.Name()).
		Str("vector_store", cfg.VectorStore).
		Str("flow_store", cfg.FlowStore).
		Bool("persistence", repo != nil).
		Msg("app: built")
	ok = true
	return a, nil
}

// Close releases stores opened by Build.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func resolveModel(ctx context.Context, cfg config.Config, params ParamGetter) string {
	if cfg.OpenAIModel != "" {
		return cfg.OpenAIModel
	}
	model, err := params.GetParameter(ctx, cfg.ModelParameter())
	if err != nil || strings.TrimSpace(model) == "" {
		log.Info().Err(err).Str("model", usecase.DefaultModel).Msg("app: using default model")
		return usecase.DefaultModel
	}
	return strings.TrimSpace(model)
}

func buildEmbedder(cfg config.Config, llm *openai.Client) (indexer.Embedder, error) {
	switch cfg.Embedder {
	case config.EmbedderOpenAI:
		e, err := openai.NewEmbedder(llm, cfg.EmbeddingModel)
		if err != nil {
			return nil, errors.Wrap(err, "app: openai embedder")
		}
		return e, nil
	default:
		return tfidf.NewEmbedder(), nil
	}
}

func (a *App) buildVectorStore(cfg config.Config) (indexer.Storage, error) {
	switch cfg.VectorStore {
	case config.VectorStoreSQLite:
		s, err := sqlite.NewStorage(cfg.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "app: sqlite vector store")
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return vsmemory.NewStorage(), nil
	}
}

func (a *App) buildFlows(cfg config.Config, repo *repository.Client) (*flow.Service, error) {
	def, err := flow.LoadDefinition(cfg.FlowDefinitionPath)
	if err != nil {
		return nil, err
	}
	engine, err := flow.NewEngine(def)
	if err != nil {
		return nil, err
	}

	var store flow.SessionStore
	switch cfg.FlowStore {
	case config.FlowStoreDynamoDB:
		if repo == nil {
			return nil, errors.New("app: dynamodb flow store needs a state table client")
		}
		store = repo.FlowSessions(cfg.SessionTTL)
	case config.FlowStoreRedis:
		client := redisstore.NewClient(cfg.RedisAddr)
		a.closers = append(a.closers, client.Close)
		store, err = redisstore.New(client, cfg.SessionTTL)
		if err != nil {
			return nil, errors.Wrap(err, "app: redis session store")
		}
	default:
		store = flow.NewMemoryStore(cfg.SessionTTL)
	}
	return flow.NewService(engine, store)
}
