// Package indexer commits chunks to the search store: embeds texts in
// batches, fans batches out with bounded concurrency, and retries failures
// at item granularity before reporting them.
package indexer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rag-media-search/internal/domain"
)

type Config struct {
	BatchSize   int
	Concurrency int
	RetryBudget int
	RetryDelay  time.Duration
}

type Indexer struct {
	embedder domain.Embedder
	store    domain.SearchStore
	cfg      Config
	log      *zap.Logger
}

func New(embedder domain.Embedder, store domain.SearchStore, cfg Config, log *zap.Logger) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RetryBudget < 0 {
		cfg.RetryBudget = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Indexer{embedder: embedder, store: store, cfg: cfg, log: log}
}

// Index embeds and commits the chunks, returning the committed count. When
// some items still fail after the retry budget, the error is a
// PartialIndexError listing them so the caller can re-submit only those.
// Batch completion order does not matter: every chunk carries its own ID.
func (ix *Indexer) Index(ctx context.Context, chunks []domain.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	var (
		mu        sync.Mutex
		committed int
		failed    []domain.ChunkFailure
	)

	var g errgroup.Group
	g.SetLimit(ix.cfg.Concurrency)
	for start := 0; start < len(chunks); start += ix.cfg.BatchSize {
		end := start + ix.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		g.Go(func() error {
			n, f := ix.indexBatch(ctx, batch)
			mu.Lock()
			committed += n
			failed = append(failed, f...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		ix.log.Warn("indexing finished with failures",
			zap.Int("committed", committed), zap.Int("failed", len(failed)))
		return committed, &domain.PartialIndexError{Committed: committed, Failed: failed}
	}
	ix.log.Info("indexing finished", zap.Int("committed", committed))
	return committed, nil
}

func (ix *Indexer) indexBatch(ctx context.Context, batch []domain.Chunk) (int, []domain.ChunkFailure) {
	texts := make([]string, len(batch))
	for i, ch := range batch {
		texts[i] = ch.Text
	}
	vectors, err := ix.embedWithRetry(ctx, texts)
	if err != nil {
		failures := make([]domain.ChunkFailure, len(batch))
		for i, ch := range batch {
			failures[i] = domain.ChunkFailure{ChunkID: ch.ID, Err: err}
		}
		return 0, failures
	}
	for i := range batch {
		batch[i].Vector = vectors[i]
	}

	err = ix.store.Upsert(ctx, batch)
	if err == nil {
		return len(batch), nil
	}

	// Retry only what the store reports as failed; anything else means the
	// whole batch is in doubt, so every item goes through the retry path.
	retry := batch
	n := 0
	var perr *domain.PartialIndexError
	if errors.As(err, &perr) {
		n = perr.Committed
		failedIDs := make(map[string]struct{}, len(perr.Failed))
		for _, f := range perr.Failed {
			failedIDs[f.ChunkID] = struct{}{}
		}
		retry = retry[:0:0]
		for _, ch := range batch {
			if _, ok := failedIDs[ch.ID]; ok {
				retry = append(retry, ch)
			}
		}
	}

	var failures []domain.ChunkFailure
	for _, ch := range retry {
		if err := ix.retryItem(ctx, ch); err != nil {
			failures = append(failures, domain.ChunkFailure{ChunkID: ch.ID, Err: err})
			continue
		}
		n++
	}
	return n, failures
}

func (ix *Indexer) retryItem(ctx context.Context, ch domain.Chunk) error {
	var err error
	for attempt := 0; attempt <= ix.cfg.RetryBudget; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ix.cfg.RetryDelay):
			}
		}
		err = ix.store.Upsert(ctx, []domain.Chunk{ch})
		if err == nil {
			return nil
		}
		ix.log.Warn("chunk commit failed, retrying",
			zap.String("chunk_id", ch.ID), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return err
}

func (ix *Indexer) embedWithRetry(ctx context.Context, texts []string) ([][]float64, error) {
	var err error
	for attempt := 0; attempt <= ix.cfg.RetryBudget; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(ix.cfg.RetryDelay):
			}
		}
		var vectors [][]float64
		vectors, err = ix.embedder.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		ix.log.Warn("embedding batch failed, retrying",
			zap.Int("batch_size", len(texts)), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, err
}
