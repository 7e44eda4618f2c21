package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"rag-media-search/internal/audio"
	"rag-media-search/internal/augment"
	"rag-media-search/internal/chunker"
	"rag-media-search/internal/config"
	"rag-media-search/internal/domain"
	"rag-media-search/internal/embedding"
	"rag-media-search/internal/generation"
	"rag-media-search/internal/indexer"
	"rag-media-search/internal/querytransform"
	"rag-media-search/internal/rerank"
	"rag-media-search/internal/retrieval"
	"rag-media-search/internal/searchstore/elastic"
	"rag-media-search/internal/searchstore/memory"
	"rag-media-search/internal/service"
	"rag-media-search/internal/summarizer"
	"rag-media-search/internal/tui"
	"rag-media-search/internal/vision"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, logPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/rag-media-search/config.yaml if not provided)")
	flag.StringVar(&logPath, "log", "rag-media-search.log", "Log file path")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Println("Usage: rag-media-search [--config=config.yaml] file1.txt [lecture.mp3 figure.png ...]")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// The TUI owns the terminal, so logs go to a file.
	logger, err := newFileLogger(logPath)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logger.Sync()

	svc, err := assemble(cfg, logger)
	if err != nil {
		log.Fatalf("failed to assemble pipeline: %v", err)
	}

	ctx := context.Background()
	banner, err := ingest(ctx, svc, inputs)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}

	m := tui.New(svc, banner)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

func assemble(cfg *config.AppConfig, logger *zap.Logger) (*service.RAGService, error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		emb = embedding.NewTFIDFEmbedder()
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := embedding.NewOpenAIClient(embedding.OpenAIConfig{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	tokenChunker, err := chunker.NewTokenChunker(cfg.Chunker.UnitSize, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}
	transcriptChunker, err := chunker.NewTranscriptChunker(cfg.Chunker.AudioWindowSecs)
	if err != nil {
		return nil, err
	}

	var store domain.SearchStore
	switch cfg.SearchStore.Type {
	case "memory", "":
		store = memory.NewStore()
	case "elastic":
		if cfg.SearchStore.Elastic == nil {
			return nil, errors.New("elastic config missing")
		}
		store = elastic.NewStore(elastic.Config{
			URL:     cfg.SearchStore.Elastic.URL,
			APIKey:  os.Getenv(cfg.SearchStore.Elastic.APIKeyEnv),
			Index:   cfg.SearchStore.Elastic.Index,
			Timeout: time.Duration(cfg.SearchStore.Elastic.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown search store: %s", cfg.SearchStore.Type)
	}

	var gen domain.Generator
	switch cfg.Generator.Type {
	case "none", "":
	case "openai":
		gen, err = generation.NewOpenAIClient(generation.OpenAIConfig{
			BaseURL:   cfg.Generator.BaseURL,
			APIKeyEnv: cfg.Generator.APIKeyEnv,
			Model:     cfg.Generator.Model,
			Timeout:   time.Duration(cfg.Generator.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("generator: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Generator.Type)
	}

	var scorer domain.RerankScorer
	switch cfg.Rerank.Type {
	case "none", "":
	case "http":
		scorer, err = rerank.NewClient(rerank.Config{
			URL:       cfg.Rerank.URL,
			APIKeyEnv: cfg.Rerank.APIKeyEnv,
			Model:     cfg.Rerank.Model,
			Timeout:   time.Duration(cfg.Rerank.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("reranker: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown rerank type: %s", cfg.Rerank.Type)
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency", "":
		sum = summarizer.NewFrequencySummarizer()
	case "llm":
		if gen == nil {
			return nil, errors.New("llm summarizer requires a generator")
		}
		sum = summarizer.NewLLMSummarizer(gen)
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	// Optional media collaborators; files of those types just fail to ingest
	// without them.
	var transcriber domain.Transcriber
	if cfg.Transcriber.APIKeyEnv != "" {
		transcriber, err = audio.NewWhisperClient(audio.WhisperConfig{
			BaseURL:        cfg.Transcriber.BaseURL,
			APIKeyEnv:      cfg.Transcriber.APIKeyEnv,
			Model:          cfg.Transcriber.Model,
			Timeout:        time.Duration(cfg.Transcriber.TimeoutSecs) * time.Second,
			MaxUploadBytes: cfg.Transcriber.MaxUploadBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("transcriber: %w", err)
		}
	}
	var describer domain.Describer
	if cfg.Vision.APIKeyEnv != "" {
		describer, err = vision.NewClient(vision.Config{
			BaseURL:   cfg.Vision.BaseURL,
			APIKeyEnv: cfg.Vision.APIKeyEnv,
			Model:     cfg.Vision.Model,
			Timeout:   time.Duration(cfg.Vision.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("vision: %w", err)
		}
	}

	ix := indexer.New(emb, store, indexer.Config{
		BatchSize:   cfg.Indexer.BatchSize,
		Concurrency: cfg.Indexer.Concurrency,
		RetryBudget: cfg.Indexer.RetryBudget,
	}, logger)
	retriever := retrieval.NewHybridRetriever(emb, store, cfg.Retrieval.TopK, cfg.Retrieval.RRFK, logger)
	reranker := retrieval.NewReranker(scorer, cfg.Retrieval.RerankCandidates, logger)
	transformer := querytransform.New(gen, cfg.Retrieval.MaxSubQueries, cfg.Retrieval.FusionVariants, logger)

	return service.New(service.Deps{
		Chunker:       tokenChunker,
		Transcripts:   transcriptChunker,
		Augmenter:     augment.New(gen, logger),
		Embedder:      emb,
		Store:         store,
		Indexer:       ix,
		Retriever:     retriever,
		Reranker:      reranker,
		Transformer:   transformer,
		Summarizer:    sum,
		Transcriber:   transcriber,
		Describer:     describer,
		Generator:     gen,
		TopK:          cfg.Retrieval.TopK,
		BranchTimeout: time.Duration(cfg.Retrieval.BranchTimeoutSecs) * time.Second,
		MaxSentences:  cfg.Summarizer.MaxSentences,
		Log:           logger,
	}), nil
}

// ingest routes each input file by extension and returns a one-line banner
// describing what was indexed.
func ingest(ctx context.Context, svc *service.RAGService, inputs []string) (string, error) {
	files, texts, media := 0, 0, 0
	total := 0
	for _, pattern := range inputs {
		matches, _ := filepath.Glob(pattern)
		if matches == nil {
			matches = []string{pattern}
		}
		for _, path := range matches {
			n, isText, err := ingestFile(ctx, svc, path)
			var perr *domain.PartialIndexError
			if errors.As(err, &perr) {
				fmt.Fprintf(os.Stderr, "warning: %s: %v\n", path, err)
				err = nil
				n = perr.Committed
			}
			if err != nil {
				return "", fmt.Errorf("%s: %w", path, err)
			}
			files++
			total += n
			if isText {
				texts++
			} else {
				media++
			}
		}
	}
	if files == 0 {
		return "", errors.New("no ingestable files found")
	}
	return fmt.Sprintf("Indexed %d chunks from %d files (%d text, %d media). Type to search.",
		total, files, texts, media), nil
}

func ingestFile(ctx context.Context, svc *service.RAGService, path string) (int, bool, error) {
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, true, err
		}
		_, n, err := svc.IngestText(ctx, name, string(data))
		return n, true, err
	case ".json":
		// Pre-extracted transcript: [{"text": ..., "start": ..., "end": ...}].
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, false, err
		}
		var segments []struct {
			Text  string  `json:"text"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		}
		if err := json.Unmarshal(data, &segments); err != nil {
			return 0, false, fmt.Errorf("parse transcript: %w", err)
		}
		parsed := make([]domain.TranscriptSegment, len(segments))
		for i, seg := range segments {
			parsed[i] = domain.TranscriptSegment{Text: seg.Text, Start: seg.Start, End: seg.End}
		}
		_, n, err := svc.IngestTranscript(ctx, name, parsed)
		return n, false, err
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, false, err
		}
		_, n, err := svc.IngestImage(ctx, name, 0, data, "", "")
		return n, false, err
	case ".mp3", ".wav", ".m4a", ".ogg", ".flac":
		f, err := os.Open(path)
		if err != nil {
			return 0, false, err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return 0, false, err
		}
		_, n, err := svc.IngestAudio(ctx, name, f, info.Size())
		return n, false, err
	default:
		return 0, true, fmt.Errorf("unsupported file type")
	}
}

func newFileLogger(path string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}
