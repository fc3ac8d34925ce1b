package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/thomasbeckford/pasichat/internal/domain"
	"github.com/thomasbeckford/pasichat/internal/metrics"
)

// Source labels for ingestion metrics.
const (
	SourceFact     = "fact"
	SourceDocument = "document"
)

// Service turns raw text into embedded passages in the vector index.
type Service struct {
	repo    Repository
	embed   domain.Embedder
	chunker Chunker
	log     *zap.Logger
}

func NewService(repo Repository, embed domain.Embedder, chunker Chunker, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		embed:   embed,
		chunker: chunker,
		log:     log,
	}
}

// IngestText chunks content and stores every resulting passage.
// Returns the number of passages actually stored.
func (s *Service) IngestText(ctx context.Context, content, source string) (int, error) {
	chunks := s.chunker.Chunk(content)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: nothing to ingest", domain.ErrEmptyContent)
	}
	return s.IngestChunks(ctx, chunks, source)
}

// IngestChunks embeds and stores pre-segmented passages. A chunk that
// fails to insert is logged and skipped rather than aborting the batch;
// the returned count reflects only the passages that were stored.
func (s *Service) IngestChunks(ctx context.Context, chunks []string, source string) (int, error) {
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: nothing to ingest", domain.ErrEmptyContent)
	}

	batch, err := s.embedAll(ctx, chunks)
	if err != nil {
		metrics.PassagesIngestedTotal.WithLabelValues(source, "failed").Add(float64(len(chunks)))
		return 0, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(batch.Embeddings) != len(chunks) {
		metrics.PassagesIngestedTotal.WithLabelValues(source, "failed").Add(float64(len(chunks)))
		return 0, fmt.Errorf("%w: got %d embeddings for %d chunks",
			domain.ErrEmbeddingProvider, len(batch.Embeddings), len(chunks))
	}

	stored := 0
	for i, chunk := range chunks {
		if err := s.repo.Insert(ctx, chunk, batch.Embeddings[i]); err != nil {
			metrics.PassagesIngestedTotal.WithLabelValues(source, "failed").Inc()
			s.log.Warn("chunk insert failed, skipping",
				zap.Int("chunk", i),
				zap.Int("chunk_len", len(chunk)),
				zap.Error(err))
			continue
		}
		metrics.PassagesIngestedTotal.WithLabelValues(source, "stored").Inc()
		stored++
	}

	s.log.Info("ingestion finished",
		zap.String("source", source),
		zap.Int("chunks", len(chunks)),
		zap.Int("stored", stored),
		zap.Int("tokens", batch.TotalTokens))

	return stored, nil
}

func (s *Service) embedAll(ctx context.Context, chunks []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := s.embed.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, chunks)
	}
	return domain.BatchFallback(ctx, s.embed, chunks)
}
