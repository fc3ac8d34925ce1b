package ingest

import "context"

// Repository persists embedded passages.
type Repository interface {
	Insert(ctx context.Context, content string, embedding []float32) error
}

// Chunker segments raw text into bounded passages.
type Chunker interface {
	Chunk(text string) []string
}
