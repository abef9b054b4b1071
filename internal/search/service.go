package search

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

const (
	EngineMeili = "meilisearch"
	EngineSQL   = "sql"
)

// Engine is a search backend that also accepts index updates.
type Engine interface {
	Searcher
	Index(records []Record) error
	Delete(id string) error
}

// Service is the facade that tries Meilisearch first and falls back to SQL.
type Service struct {
	primary  Engine
	fallback *SQLSearch
	log      zerolog.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. primary may be nil if Meilisearch is
// not configured.
func NewService(primary Engine, fallback *SQLSearch, log zerolog.Logger) *Service {
	return &Service{primary: primary, fallback: fallback, log: log.With().Str("component", "search").Logger()}
}

// Search tries the primary engine if healthy, otherwise falls back to SQL.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, err := s.primary.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Engine: EngineMeili, Query: q.Text}
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to sql")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Engine: EngineSQL, Query: q.Text}
	}
	results, err := s.fallback.SearchContext(ctx, q)
	if err != nil {
		s.log.Error().Err(err).Msg("sql search failed")
		return Response{Results: []Result{}, Engine: EngineSQL, Query: q.Text}
	}
	return Response{Results: nonNil(results), Engine: EngineSQL, Query: q.Text}
}

// Index pushes records to the primary engine (fire-and-forget).
func (s *Service) Index(records ...Record) {
	if s.primary == nil || !s.primary.Healthy() || len(records) == 0 {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.primary.Index(records); err != nil {
			s.log.Warn().Err(err).Int("records", len(records)).Msg("index records")
		}
	}()
}

// Delete removes records from the primary engine (fire-and-forget).
func (s *Service) Delete(ids ...string) {
	if s.primary == nil || !s.primary.Healthy() || len(ids) == 0 {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		for _, id := range ids {
			if err := s.primary.Delete(id); err != nil {
				s.log.Warn().Err(err).Str("id", id).Msg("delete record")
			}
		}
	}()
}

// Wait blocks until in-flight index updates finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
