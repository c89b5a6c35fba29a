package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"document-qa/internal/helper"
	"document-qa/internal/models"
)

const (
	DefaultConfigPath = "./configs/config.yaml"

	ProviderGoogle = "google"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	StorePGVector = "pgvector"
	StoreChromem  = "chromem"
	StoreQdrant   = "qdrant"

	DriverPGDriver = "pgdriver"
	DriverPQ       = "pq"
)

type Config struct {
	Document    DocumentConfig    `yaml:"document"`
	Database    DatabaseConfig    `yaml:"database"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	RAG         RAGConfig         `yaml:"rag"`
	Credentials Credentials       `yaml:"credentials"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	LogLevel       string        `yaml:"log_level"`
}

type DocumentConfig struct {
	Path string `yaml:"path"`
}

type DatabaseConfig struct {
	URL    string `yaml:"url"`
	Driver string `yaml:"driver"`
	Debug  bool   `yaml:"debug"`
}

type VectorStoreConfig struct {
	Type        string       `yaml:"type"`
	Collection  string       `yaml:"collection"`
	ChromemPath string       `yaml:"chromem_path"`
	Qdrant      QdrantConfig `yaml:"qdrant"`
}

type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
}

type RAGConfig struct {
	ChunkSize       int    `yaml:"chunk_size"`
	ChunkOverlap    int    `yaml:"chunk_overlap"`
	TopK            int    `yaml:"top_k"`
	Language        string `yaml:"language"`
	ResetCollection bool   `yaml:"reset_collection"`
}

type Credentials struct {
	GoogleAPIKey string `yaml:"google_api_key"`
	OpenAIAPIKey string `yaml:"openai_api_key"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Document: DocumentConfig{Path: "document.pdf"},
		Database: DatabaseConfig{Driver: DriverPGDriver},
		VectorStore: VectorStoreConfig{
			Type:       StorePGVector,
			Collection: "document_vectors",
			Qdrant:     QdrantConfig{Host: "localhost", Port: 6334},
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderGoogle,
			Model:     "gemini-embedding-001",
			BatchSize: 100,
		},
		LLM: LLMConfig{
			Provider: ProviderGoogle,
			Model:    "gemini-2.0-flash-lite",
		},
		RAG: RAGConfig{
			ChunkSize:    models.DefaultChunkSize,
			ChunkOverlap: models.DefaultChunkOverlap,
			TopK:         models.DefaultTopK,
			Language:     "en",
		},
		RequestTimeout: 30 * time.Second,
		LogLevel:       "info",
	}
}

// Load builds the process configuration: defaults, then the optional YAML
// file at path, then .env, then the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("%w: reading %s: %w", models.ErrConfiguration, path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: decoding %s: %w", models.ErrConfiguration, path, err)
			}
		}
	}

	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Database.URL = NormalizeDSN(cfg.Database.URL)
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	var errs []error
	num := func(dst *int, key string) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(dst *bool, key string) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str(&c.Document.Path, "PDF_PATH")
	str(&c.Database.URL, "DATABASE_URL")
	str(&c.Database.Driver, "DATABASE_DRIVER")
	flag(&c.Database.Debug, "DATABASE_DEBUG")

	str(&c.VectorStore.Type, "VECTOR_STORE")
	str(&c.VectorStore.Collection, "PG_VECTOR_COLLECTION_NAME")
	if v, ok := lookup("CHROMEM_PATH"); ok {
		c.VectorStore.ChromemPath = v
	}
	str(&c.VectorStore.Qdrant.Host, "QDRANT_HOST")
	num(&c.VectorStore.Qdrant.Port, "QDRANT_PORT")
	str(&c.VectorStore.Qdrant.APIKey, "QDRANT_API_KEY")
	flag(&c.VectorStore.Qdrant.UseTLS, "QDRANT_USE_TLS")

	str(&c.Embedding.Provider, "EMBEDDING_PROVIDER")
	str(&c.Embedding.Model, "EMBEDDING_MODEL", "GOOGLE_EMBEDDING_MODEL")
	str(&c.Embedding.BaseURL, "EMBEDDING_BASE_URL", "OLLAMA_HOST")
	num(&c.Embedding.Dimensions, "EMBEDDING_DIMENSIONS")
	num(&c.Embedding.BatchSize, "EMBEDDING_BATCH_SIZE")

	str(&c.LLM.Provider, "LLM_PROVIDER")
	str(&c.LLM.Model, "LLM_MODEL")
	str(&c.LLM.BaseURL, "LLM_BASE_URL", "OLLAMA_HOST")
	if v, ok := lookup("LLM_TEMPERATURE"); ok && v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("LLM_TEMPERATURE: %w", err))
		} else {
			c.LLM.Temperature = t
		}
	}
	if v, ok := lookup("OPENAI_BASE_URL"); ok && v != "" {
		if c.Embedding.Provider == ProviderOpenAI {
			c.Embedding.BaseURL = v
		}
		if c.LLM.Provider == ProviderOpenAI {
			c.LLM.BaseURL = v
		}
	}

	num(&c.RAG.ChunkSize, "CHUNK_SIZE")
	num(&c.RAG.ChunkOverlap, "CHUNK_OVERLAP")
	num(&c.RAG.TopK, "TOP_K")
	str(&c.RAG.Language, "PROMPT_LANGUAGE")
	flag(&c.RAG.ResetCollection, "RESET_COLLECTION")

	str(&c.Credentials.GoogleAPIKey, "GOOGLE_API_KEY")
	str(&c.Credentials.OpenAIAPIKey, "OPENAI_API_KEY")

	if v, ok := lookup("REQUEST_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT: %w", err))
		} else {
			c.RequestTimeout = d
		}
	}
	num(&c.MaxRetries, "MAX_RETRIES")
	str(&c.LogLevel, "LOG_LEVEL")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", models.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// RetryPolicy bounds every provider call made with this configuration.
func (c *Config) RetryPolicy() helper.RetryPolicy {
	return helper.RetryPolicy{
		MaxRetries: c.MaxRetries,
		Timeout:    c.RequestTimeout,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// NormalizeDSN strips SQLAlchemy driver suffixes such as "+psycopg" so the
// same DATABASE_URL works for Go Postgres drivers.
func NormalizeDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if base, _, found := strings.Cut(scheme, "+"); found {
		scheme = base
	}
	return scheme + "://" + rest
}

// ValidateIngest checks everything the ingestion command needs.
func (c *Config) ValidateIngest() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.Document.Path == "" {
		return fmt.Errorf("%w: PDF_PATH is empty", models.ErrConfiguration)
	}
	if c.RAG.ChunkSize <= 0 || c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap (%d) must be >= 0 and smaller than chunk_size (%d)",
			models.ErrConfiguration, c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("%w: EMBEDDING_BATCH_SIZE must be positive", models.ErrConfiguration)
	}
	return nil
}

// ValidateSearch checks what a retrieval without the chat model needs:
// the vector store and the embedding provider.
func (c *Config) ValidateSearch() error {
	return c.validateCommon()
}

// ValidateQuery checks everything the chat and search commands need.
func (c *Config) ValidateQuery() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.RAG.TopK < 1 {
		return fmt.Errorf("%w: TOP_K must be >= 1, got %d", models.ErrConfiguration, c.RAG.TopK)
	}
	if err := c.checkProvider("LLM_PROVIDER", c.LLM.Provider); err != nil {
		return err
	}
	switch c.RAG.Language {
	case "en", "pt":
	default:
		return fmt.Errorf("%w: unsupported PROMPT_LANGUAGE %q", models.ErrConfiguration, c.RAG.Language)
	}
	return nil
}

func (c *Config) validateCommon() error {
	if c.VectorStore.Collection == "" {
		return fmt.Errorf("%w: PG_VECTOR_COLLECTION_NAME is empty", models.ErrConfiguration)
	}
	switch c.VectorStore.Type {
	case StorePGVector:
		if c.Database.URL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required", models.ErrConfiguration)
		}
		if c.Database.Driver != DriverPGDriver && c.Database.Driver != DriverPQ {
			return fmt.Errorf("%w: unsupported DATABASE_DRIVER %q", models.ErrConfiguration, c.Database.Driver)
		}
	case StoreChromem, StoreQdrant:
	default:
		return fmt.Errorf("%w: unsupported VECTOR_STORE %q", models.ErrConfiguration, c.VectorStore.Type)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: REQUEST_TIMEOUT must be positive", models.ErrConfiguration)
	}
	return c.checkProvider("EMBEDDING_PROVIDER", c.Embedding.Provider)
}

func (c *Config) checkProvider(key, provider string) error {
	switch provider {
	case ProviderGoogle:
		if c.Credentials.GoogleAPIKey == "" {
			return fmt.Errorf("%w: GOOGLE_API_KEY is required for %s=%s", models.ErrConfiguration, key, provider)
		}
	case ProviderOpenAI:
		if c.Credentials.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for %s=%s", models.ErrConfiguration, key, provider)
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("%w: unsupported %s %q", models.ErrConfiguration, key, provider)
	}
	return nil
}
