package retrieval

import (
	"context"

	"github.com/thomasbeckford/pasichat/internal/domain"
)

// Repository answers similarity queries against the passage store.
type Repository interface {
	Query(ctx context.Context, embedding []float32, threshold float64, limit int) ([]domain.Match, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// ExpansionTable supplies deterministic alternates for a query term.
type ExpansionTable interface {
	Expansions(query string) []string
}
