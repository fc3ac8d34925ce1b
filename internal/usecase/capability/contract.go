package capability

import (
	"context"

	"github.com/thomasbeckford/pasichat/internal/domain"
)

// Ingestor stores raw text or pre-segmented passages.
type Ingestor interface {
	IngestText(ctx context.Context, content, source string) (int, error)
	IngestChunks(ctx context.Context, chunks []string, source string) (int, error)
}

// Retriever answers similarity queries over the knowledge base.
type Retriever interface {
	Retrieve(ctx context.Context, queries []string) ([]domain.Match, error)
}

// Extractor turns a PDF byte stream into passage chunks.
type Extractor interface {
	ExtractText(data []byte) ([]string, error)
}

// Understander rephrases a query into similar questions.
type Understander interface {
	SimilarQuestions(ctx context.Context, query string) ([]string, error)
}
