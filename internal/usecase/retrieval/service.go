// Package retrieval orchestrates multi-query similarity search: fan-out,
// merge, dedup and progressive synonym expansion.
package retrieval

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/thomasbeckford/pasichat/internal/domain"
	"github.com/thomasbeckford/pasichat/internal/metrics"
)

// Config holds retrieval policy knobs.
type Config struct {
	Threshold        float64 // minimum cosine similarity, exclusive
	QueryLimit       int     // per-query top-K
	ResultLimit      int     // merged result cap
	DisableExpansion bool
}

// Service is the retrieval orchestrator. It is stateless and never
// mutates the store.
type Service struct {
	repo   Repository
	embed  Embedder
	table  ExpansionTable
	cfg    Config
	logger *zap.Logger
}

// New creates a retrieval service. Zero config fields fall back to the
// observed production defaults.
func New(repo Repository, embed Embedder, table ExpansionTable, cfg Config, logger *zap.Logger) *Service {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.3
	}
	if cfg.QueryLimit <= 0 {
		cfg.QueryLimit = 4
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, embed: embed, table: table, cfg: cfg, logger: logger}
}

// Retrieve embeds and queries every input concurrently, then merges the
// per-query results in caller order, deduplicating by content with the
// first occurrence winning, capped at the configured result limit.
//
// A failing query degrades to an empty contribution instead of
// poisoning the fan-out; only when every query fails does the first
// error propagate, since the caller then has nothing to answer with.
func (s *Service) Retrieve(ctx context.Context, queries []string) ([]domain.Match, error) {
	cleaned := make([]string, 0, len(queries))
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			cleaned = append(cleaned, q)
		}
	}
	if len(cleaned) == 0 {
		return nil, nil
	}

	perQuery := make([][]domain.Match, len(cleaned))
	errs := make([]error, len(cleaned))

	var wg sync.WaitGroup
	for i, q := range cleaned {
		wg.Add(1)
		go func(slot int, query string) {
			defer wg.Done()
			perQuery[slot], errs[slot] = s.retrieveOne(ctx, query)
		}(i, q)
	}
	wg.Wait()

	var firstErr error
	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = err
		}
		s.logger.Warn("query degraded to empty result",
			zap.String("query", cleaned[i]),
			zap.Error(err),
		)
	}
	if failed == len(cleaned) {
		return nil, firstErr
	}

	return mergeMatches(perQuery, s.cfg.ResultLimit), nil
}

// retrieveOne embeds one query and searches the store. When the direct
// query comes back empty, it walks the expansion table's alternates in
// order, stopping at the first non-empty result.
func (s *Service) retrieveOne(ctx context.Context, query string) ([]domain.Match, error) {
	matches, err := s.searchText(ctx, query)
	if err != nil {
		metrics.RetrievalQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(matches) > 0 {
		metrics.RetrievalQueriesTotal.WithLabelValues("hit").Inc()
		return matches, nil
	}

	if !s.cfg.DisableExpansion {
		for _, alt := range s.table.Expansions(query) {
			metrics.ExpansionRetriesTotal.Inc()

			matches, err = s.searchText(ctx, alt)
			if err != nil {
				metrics.RetrievalQueriesTotal.WithLabelValues("error").Inc()
				return nil, err
			}
			if len(matches) > 0 {
				s.logger.Debug("expansion produced matches",
					zap.String("query", query),
					zap.String("expansion", alt),
					zap.Int("matches", len(matches)),
				)
				metrics.RetrievalQueriesTotal.WithLabelValues("hit").Inc()
				return matches, nil
			}
		}
	}

	metrics.RetrievalQueriesTotal.WithLabelValues("empty").Inc()
	return nil, nil
}

func (s *Service) searchText(ctx context.Context, text string) ([]domain.Match, error) {
	res, err := s.embed.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.repo.Query(ctx, res.Embedding, s.cfg.Threshold, s.cfg.QueryLimit)
}

// mergeMatches flattens per-query results in query order, keeping the
// first occurrence of each content and at most limit matches overall.
func mergeMatches(perQuery [][]domain.Match, limit int) []domain.Match {
	seen := make(map[string]struct{})
	var merged []domain.Match

	for _, matches := range perQuery {
		for _, m := range matches {
			if _, dup := seen[m.Content]; dup {
				continue
			}
			seen[m.Content] = struct{}{}
			merged = append(merged, m)
			if len(merged) == limit {
				return merged
			}
		}
	}
	return merged
}
