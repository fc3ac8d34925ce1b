// Package db defines the narrow store contract the passage repository
// consumes, plus the query/result types shared with drivers.
package db

import (
	"context"
	"encoding/binary"
	"math"
	"time"
)

// Store is the vector store facade. Consumers should depend on the
// narrow sub-interfaces instead.
type Store interface {
	Pinger
	HashStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides hash-based key-value operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher provides KNN search over an FT index.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}

// Hash field names shared between drivers and repositories.
const (
	FieldContent     = "__content"
	FieldVector      = "__vector"
	FieldVectorScore = "__vector_score"
)

// IndexDefinition describes a hash-backed HNSW cosine vector index.
// The driver owns the schema shape: FieldVector aliased as "vector".
type IndexDefinition struct {
	Name      string
	Prefix    string
	VectorDim int
}

// KNNQuery is a K-nearest-neighbor query against an FT index.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchEntry is one search hit. Score is cosine similarity
// (1 - cosine distance), unclamped.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// SearchResult carries the hits of one FT.SEARCH call.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// EncodeVector serializes a vector as little-endian float32 bytes, the
// layout FT vector fields expect in hash values and KNN params.
func EncodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
