package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"leadboard/api/internal/cache"
	"leadboard/api/internal/logger"
	"leadboard/api/internal/metrics"
)

const cachePrefix = "search:"

type Cache interface {
	Get(ctx context.Context, name string, dest any) error
	Set(ctx context.Context, name string, value any, ttl time.Duration) error
	DeletePrefix(ctx context.Context, namePrefix string) (int, error)
}

// indexer is the write side of the Meilisearch index.
type indexer interface {
	Healthy() bool
	IndexCompanies([]Result) error
}

type Config struct {
	Sources []Source
	// Meili and Loaders are only used for indexing; nil Meili disables it.
	Meili    *Meili
	Loaders  []RecordLoader
	Cache    Cache
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Service federates a query over every source concurrently and concatenates
// the tagged hits in source order. It never fails: a source that errors
// contributes nothing.
type Service struct {
	sources  []Source
	meili    indexer
	loaders  []RecordLoader
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewService(cfg Config) *Service {
	s := &Service{
		sources:  cfg.Sources,
		loaders:  cfg.Loaders,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		logger:   logger.OrNop(cfg.Logger),
	}
	if cfg.Meili != nil {
		s.meili = cfg.Meili
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	q = q.normalized()
	if q.Text == "" {
		return Response{Results: []Result{}, Query: q.Text}
	}

	key := cacheKey(q)
	if s.cache != nil {
		var cached Response
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("search cache read failed", zap.Error(err))
		}
	}

	perSource := make([][]Result, len(s.sources))
	failed := make([]bool, len(s.sources))
	var g errgroup.Group
	for i, src := range s.sources {
		i, src := i, src
		g.Go(func() error {
			results, err := src.Search(ctx, q)
			if err != nil {
				metrics.SearchSourceFailures.WithLabelValues(string(src.Type())).Inc()
				s.logger.Warn("search source failed",
					zap.String("source", string(src.Type())),
					zap.String("query", q.Text),
					zap.Error(err),
				)
				failed[i] = true
				return nil
			}
			for j := range results {
				results[j].Type = src.Type()
			}
			perSource[i] = results
			return nil
		})
	}
	_ = g.Wait()

	resp := Response{Results: []Result{}, Query: q.Text}
	for i, results := range perSource {
		if failed[i] {
			resp.Failed = append(resp.Failed, s.sources[i].Type())
			continue
		}
		resp.Results = append(resp.Results, results...)
	}
	resp.Total = len(resp.Results)

	// Degraded responses are not cached so a recovered source shows up on the
	// next request.
	if s.cache != nil && len(resp.Failed) == 0 {
		if err := s.cache.Set(ctx, key, resp, s.cacheTTL); err != nil {
			s.logger.Warn("search cache write failed", zap.Error(err))
		}
	}
	return resp
}

// Invalidate drops every cached search response.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		s.logger.Warn("search cache invalidation failed", zap.Error(err))
	}
}

// Index adds or replaces records written outside the reindex job and drops
// the cached responses. Index failures are logged; the next reindex repairs
// them.
func (s *Service) Index(ctx context.Context, results ...Result) {
	if s.meili != nil && s.meili.Healthy() {
		if err := s.meili.IndexCompanies(results); err != nil {
			s.logger.Warn("search index update failed", zap.Int("records", len(results)), zap.Error(err))
		}
	}
	s.Invalidate(ctx)
}

// ReindexFromStore pushes every record from the loaders into Meilisearch.
func (s *Service) ReindexFromStore(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	for _, loader := range s.loaders {
		records, err := loader.LoadAll(ctx)
		if err != nil {
			s.logger.Warn("search reindex load failed", zap.String("source", string(loader.Type())), zap.Error(err))
			continue
		}
		if err := s.meili.IndexCompanies(records); err != nil {
			s.logger.Warn("search reindex failed", zap.String("source", string(loader.Type())), zap.Error(err))
			continue
		}
		s.logger.Info("search reindexed", zap.String("source", string(loader.Type())), zap.Int("records", len(records)))
	}
}

func cacheKey(q Query) string {
	return fmt.Sprintf("%s%s:%d:%s", cachePrefix, q.Mode, q.Limit, strings.ToLower(q.Text))
}
