package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"rag-media-search/internal/domain"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how content is split into chunks.
type ChunkerConfig struct {
	UnitSize        int     `yaml:"unit_size"`         // max tokens advanced per chunk
	Overlap         int     `yaml:"overlap"`           // tokens shared between consecutive chunks
	AudioWindowSecs float64 `yaml:"audio_window_secs"` // target duration of one audio chunk
}

// ElasticConfig contains connection details for an Elasticsearch-compatible backend.
type ElasticConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Index       string `yaml:"index"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SearchStoreConfig selects and configures the search/storage backend.
type SearchStoreConfig struct {
	Type    string         `yaml:"type"`
	Elastic *ElasticConfig `yaml:"elastic,omitempty"`
}

// RetrievalConfig tunes the hybrid retrieval and fusion pipeline.
type RetrievalConfig struct {
	TopK              int `yaml:"top_k"`
	RRFK              int `yaml:"rrf_k"`               // reciprocal rank fusion constant
	RerankCandidates  int `yaml:"rerank_candidates"`   // cap on pairs sent to the rerank service
	FusionVariants    int `yaml:"fusion_variants"`     // paraphrase count for fusion queries
	MaxSubQueries     int `yaml:"max_subqueries"`      // decomposition fan-out bound
	BranchTimeoutSecs int `yaml:"branch_timeout_secs"` // per sub-query timeout
}

// RerankConfig configures the relevance-scoring service.
type RerankConfig struct {
	Type        string `yaml:"type"` // "none" or "http"
	URL         string `yaml:"url,omitempty"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
	Model       string `yaml:"model,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs,omitempty"`
}

// GeneratorConfig configures the language-generation service used for query
// transformation, augmentation and summarization.
type GeneratorConfig struct {
	Type        string `yaml:"type"` // "none" or "openai"
	BaseURL     string `yaml:"base_url,omitempty"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
	Model       string `yaml:"model,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs,omitempty"`
}

// TranscriberConfig configures the speech-to-text service.
type TranscriberConfig struct {
	BaseURL        string `yaml:"base_url,omitempty"`
	APIKeyEnv      string `yaml:"api_key_env,omitempty"`
	Model          string `yaml:"model,omitempty"`
	TimeoutSecs    int    `yaml:"timeout_secs,omitempty"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes,omitempty"`
}

// VisionConfig configures the image description service.
type VisionConfig struct {
	BaseURL     string `yaml:"base_url,omitempty"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
	Model       string `yaml:"model,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs,omitempty"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"` // "frequency" or "llm"
	MaxSentences int    `yaml:"max_sentences"`
}

// IndexerConfig tunes batched embedding and indexing.
type IndexerConfig struct {
	BatchSize   int `yaml:"batch_size"`
	Concurrency int `yaml:"concurrency"`
	RetryBudget int `yaml:"retry_budget"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	SearchStore SearchStoreConfig `yaml:"search_store"`
	Indexer     IndexerConfig     `yaml:"indexer"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Rerank      RerankConfig      `yaml:"rerank"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Vision      VisionConfig      `yaml:"vision"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag-media-search/config.yaml.
// If neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate fails fast on parameter combinations the pipeline cannot run with.
func (cfg *AppConfig) Validate() error {
	if cfg.Chunker.UnitSize <= 0 {
		return fmt.Errorf("%w: chunker unit_size must be positive, got %d",
			domain.ErrConfiguration, cfg.Chunker.UnitSize)
	}
	if cfg.Chunker.Overlap < 0 || cfg.Chunker.Overlap >= cfg.Chunker.UnitSize {
		return fmt.Errorf("%w: chunker overlap %d must be in [0, unit_size %d)",
			domain.ErrConfiguration, cfg.Chunker.Overlap, cfg.Chunker.UnitSize)
	}
	if cfg.Chunker.AudioWindowSecs <= 0 {
		return fmt.Errorf("%w: chunker audio_window_secs must be positive",
			domain.ErrConfiguration)
	}
	if cfg.Retrieval.RRFK <= 0 {
		return fmt.Errorf("%w: retrieval rrf_k must be positive, got %d",
			domain.ErrConfiguration, cfg.Retrieval.RRFK)
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval top_k must be positive, got %d",
			domain.ErrConfiguration, cfg.Retrieval.TopK)
	}
	if cfg.Indexer.BatchSize <= 0 {
		return fmt.Errorf("%w: indexer batch_size must be positive, got %d",
			domain.ErrConfiguration, cfg.Indexer.BatchSize)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rag-media-search", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Chunker:     ChunkerConfig{UnitSize: 256, Overlap: 32, AudioWindowSecs: 60},
		SearchStore: SearchStoreConfig{Type: "memory"},
		Indexer:     IndexerConfig{BatchSize: 25, Concurrency: 2, RetryBudget: 3},
		Retrieval: RetrievalConfig{
			TopK:              10,
			RRFK:              60,
			RerankCandidates:  20,
			FusionVariants:    3,
			MaxSubQueries:     4,
			BranchTimeoutSecs: 15,
		},
		Rerank:     RerankConfig{Type: "none"},
		Generator:  GeneratorConfig{Type: "none"},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 5},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Chunker.UnitSize == 0 {
		cfg.Chunker.UnitSize = def.Chunker.UnitSize
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = def.Chunker.Overlap
		}
	}
	if cfg.Chunker.AudioWindowSecs == 0 {
		cfg.Chunker.AudioWindowSecs = def.Chunker.AudioWindowSecs
	}
	if cfg.Indexer.BatchSize == 0 {
		cfg.Indexer.BatchSize = def.Indexer.BatchSize
	}
	if cfg.Indexer.Concurrency == 0 {
		cfg.Indexer.Concurrency = def.Indexer.Concurrency
	}
	if cfg.Indexer.RetryBudget == 0 {
		cfg.Indexer.RetryBudget = def.Indexer.RetryBudget
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Retrieval.RRFK == 0 {
		cfg.Retrieval.RRFK = def.Retrieval.RRFK
	}
	if cfg.Retrieval.RerankCandidates == 0 {
		cfg.Retrieval.RerankCandidates = def.Retrieval.RerankCandidates
	}
	if cfg.Retrieval.FusionVariants == 0 {
		cfg.Retrieval.FusionVariants = def.Retrieval.FusionVariants
	}
	if cfg.Retrieval.MaxSubQueries == 0 {
		cfg.Retrieval.MaxSubQueries = def.Retrieval.MaxSubQueries
	}
	if cfg.Retrieval.BranchTimeoutSecs == 0 {
		cfg.Retrieval.BranchTimeoutSecs = def.Retrieval.BranchTimeoutSecs
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = def.Summarizer.MaxSentences
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.SearchStore.Type == "elastic" && cfg.SearchStore.Elastic != nil {
		if cfg.SearchStore.Elastic.Index == "" {
			cfg.SearchStore.Elastic.Index = "media_rag_index"
		}
		if cfg.SearchStore.Elastic.TimeoutSecs == 0 {
			cfg.SearchStore.Elastic.TimeoutSecs = 15
		}
	}
}
