package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	FlowStoreMemory   = "memory"
	FlowStoreDynamoDB = "dynamodb"
	FlowStoreRedis    = "redis"

	EmbedderTFIDF  = "tfidf"
	EmbedderOpenAI = "openai"

	VectorStoreMemory = "memory"
	VectorStoreSQLite = "sqlite"
)

// Config is the process configuration, read from the environment and an
// optional YAML file named by CONFIG_FILE.
type Config struct {
	ParamPrefix string
	StateTable  string

	FlowStore          string
	FlowDefinitionPath string
	RedisAddr          string
	SessionTTL         time.Duration

	OpenAIModel    string
	Embedder       string
	EmbeddingModel string
	VectorStore    string
	SQLitePath     string
	DocumentPath   string

	ChunkSize    int
	ChunkOverlap int
	SearchK      int

	MemoryWindow           int
	MemoryMaxConversations int
	MemoryTTL              time.Duration

	MaxTokens      int
	Temperature    float64
	MaxQuestionLen int

	LogLevel  string
	LogFormat string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("param_prefix", "")
	v.SetDefault("state_table", "")
	v.SetDefault("flow_store", FlowStoreMemory)
	v.SetDefault("flow_definition_path", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("session_ttl", 24*time.Hour)
	v.SetDefault("openai_model", "")
	v.SetDefault("embedder", EmbedderTFIDF)
	v.SetDefault("embedding_model", "text-embedding-3-small")
	v.SetDefault("vector_store", VectorStoreMemory)
	v.SetDefault("sqlite_path", "handbook-index.db")
	v.SetDefault("document_path", "")
	v.SetDefault("chunk_size", 800)
	v.SetDefault("chunk_overlap", 100)
	v.SetDefault("search_k", 3)
	v.SetDefault("memory_window", 3)
	v.SetDefault("memory_max_conversations", 1000)
	v.SetDefault("memory_ttl", 30*time.Minute)
	v.SetDefault("max_tokens", 500)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_question_length", 1000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("config_file", "")
}

// Load reads configuration into a Config. A nil v uses a fresh instance.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("config_file")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "config: read %s", path)
		}
	}

	cfg := Config{
		ParamPrefix:            strings.TrimRight(strings.TrimSpace(v.GetString("param_prefix")), "/"),
		StateTable:             strings.TrimSpace(v.GetString("state_table")),
		FlowStore:              strings.ToLower(strings.TrimSpace(v.GetString("flow_store"))),
		FlowDefinitionPath:     strings.TrimSpace(v.GetString("flow_definition_path")),
		RedisAddr:              strings.TrimSpace(v.GetString("redis_addr")),
		SessionTTL:             v.GetDuration("session_ttl"),
		OpenAIModel:            strings.TrimSpace(v.GetString("openai_model")),
		Embedder:               strings.ToLower(strings.TrimSpace(v.GetString("embedder"))),
		EmbeddingModel:         strings.TrimSpace(v.GetString("embedding_model")),
		VectorStore:            strings.ToLower(strings.TrimSpace(v.GetString("vector_store"))),
		SQLitePath:             strings.TrimSpace(v.GetString("sqlite_path")),
		DocumentPath:           strings.TrimSpace(v.GetString("document_path")),
		ChunkSize:              v.GetInt("chunk_size"),
		ChunkOverlap:           v.GetInt("chunk_overlap"),
		SearchK:                v.GetInt("search_k"),
		MemoryWindow:           v.GetInt("memory_window"),
		MemoryMaxConversations: v.GetInt("memory_max_conversations"),
		MemoryTTL:              v.GetDuration("memory_ttl"),
		MaxTokens:              v.GetInt("max_tokens"),
		Temperature:            v.GetFloat64("temperature"),
		MaxQuestionLen:         v.GetInt("max_question_length"),
		LogLevel:               v.GetString("log_level"),
		LogFormat:              v.GetString("log_format"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ParamPrefix == "" {
		return errors.New("config: PARAM_PREFIX is required")
	}
	switch c.FlowStore {
	case FlowStoreMemory:
	case FlowStoreDynamoDB:
		if c.StateTable == "" {
			return errors.New("config: FLOW_STORE=dynamodb requires STATE_TABLE")
		}
	case FlowStoreRedis:
		if c.RedisAddr == "" {
			return errors.New("config: FLOW_STORE=redis requires REDIS_ADDR")
		}
	default:
		return errors.Errorf("config: unknown FLOW_STORE %q", c.FlowStore)
	}
	switch c.Embedder {
	case EmbedderTFIDF, EmbedderOpenAI:
	default:
		return errors.Errorf("config: unknown EMBEDDER %q", c.Embedder)
	}
	switch c.VectorStore {
	case VectorStoreMemory:
	case VectorStoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("config: VECTOR_STORE=sqlite requires SQLITE_PATH")
		}
	default:
		return errors.Errorf("config: unknown VECTOR_STORE %q", c.VectorStore)
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return errors.New("config: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.SearchK <= 0 || c.MemoryWindow <= 0 || c.MaxTokens <= 0 {
		return errors.New("config: SEARCH_K, MEMORY_WINDOW and MAX_TOKENS must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("config: TEMPERATURE must be in [0, 2]")
	}
	return nil
}

// HandbookParameter is the parameter holding the handbook text when no
// DOCUMENT_PATH is set.
func (c Config) HandbookParameter() string {
	return c.ParamPrefix + "/handbook"
}

// ModelParameter is the parameter consulted when OPENAI_MODEL is unset.
func (c Config) ModelParameter() string {
	return c.ParamPrefix + "/config/openai_model"
}
