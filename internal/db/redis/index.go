package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/thomasbeckford/pasichat/internal/db"
)

// CreateIndex creates a hash-backed HNSW cosine vector index.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

func buildCreateArgs(def *db.IndexDefinition) ([]string, error) {
	if def.Name == "" {
		return nil, errors.New("index name is required")
	}
	if def.Prefix == "" {
		return nil, errors.New("key prefix is required")
	}
	if def.VectorDim <= 0 {
		return nil, errors.New("vector dim must be positive")
	}

	return []string{
		def.Name,
		"ON", "HASH",
		"PREFIX", "1", def.Prefix,
		"SCHEMA",
		db.FieldVector, "AS", "vector", "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(def.VectorDim),
		"DISTANCE_METRIC", "COSINE",
	}, nil
}
