// Package passage persists (content, embedding) pairs and answers
// similarity-ranked nearest-neighbor queries over them.
package passage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/thomasbeckford/pasichat/internal/db"
	"github.com/thomasbeckford/pasichat/internal/domain"
)

const (
	keyPrefix = domain.KeyPrefix + "passage:"
	indexName = domain.KeyPrefix + "passage:idx"
)

// store is the consumer interface for passage persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo is the vector store gateway: a narrow numeric-query façade with
// no business policy beyond threshold and limit application.
type Repo struct {
	store     store
	vectorDim int
}

// New creates a passage repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EnsureIndex creates the passage vector index if it does not exist.
// The dimension is remembered: Insert rejects vectors that do not
// match it, since the index silently skips mismatched hashes.
func (r *Repo) EnsureIndex(ctx context.Context, vectorDim int) error {
	r.vectorDim = vectorDim

	exists, err := r.store.IndexExists(ctx, indexName)
	if err != nil {
		return fmt.Errorf("%w: probe index: %w", domain.ErrStorage, err)
	}
	if exists {
		return nil
	}

	err = r.store.CreateIndex(ctx, &db.IndexDefinition{
		Name:      indexName,
		Prefix:    keyPrefix,
		VectorDim: vectorDim,
	})
	if err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("%w: create index: %w", domain.ErrStorage, err)
	}
	return nil
}

// Insert persists one passage. Keys derive from a content hash, so
// identical content maps to one key; a passage already present is left
// untouched rather than re-written.
func (r *Repo) Insert(ctx context.Context, content string, embedding []float32) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ErrEmptyContent
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding for insert", domain.ErrStorage)
	}
	if r.vectorDim > 0 && len(embedding) != r.vectorDim {
		return fmt.Errorf("%w: embedding has %d dimensions, index expects %d",
			domain.ErrStorage, len(embedding), r.vectorDim)
	}

	key := passageKey(content)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: probe passage: %w", domain.ErrStorage, err)
	}
	if exists {
		return nil
	}

	fields := map[string]string{
		db.FieldContent: content,
		db.FieldVector:  db.EncodeVector(embedding),
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("%w: hset passage: %w", domain.ErrStorage, err)
	}
	return nil
}

// Query runs a KNN search and applies the similarity threshold and
// limit: only matches with similarity strictly above threshold survive,
// ordered descending, at most limit of them.
func (r *Repo) Query(ctx context.Context, embedding []float32, threshold float64, limit int) ([]domain.Match, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexName,
		Vector:       embedding,
		K:            limit,
		ReturnFields: []string{db.FieldContent, db.FieldVectorScore},
	})
	if err != nil {
		if missingIndex(err) {
			// Nothing ingested yet.
			return nil, nil
		}
		return nil, fmt.Errorf("%w: search knn: %w", domain.ErrStorage, err)
	}

	matches := make([]domain.Match, 0, len(res.Entries))
	for _, entry := range res.Entries {
		if entry.Score <= threshold {
			continue
		}
		content := entry.Fields[db.FieldContent]
		if content == "" {
			continue
		}
		matches = append(matches, domain.Match{Content: content, Similarity: entry.Score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func passageKey(content string) string {
	sum := sha256.Sum256([]byte(content))
	return keyPrefix + hex.EncodeToString(sum[:8])
}

func missingIndex(err error) bool {
	return errors.Is(err, db.ErrIndexNotFound)
}
