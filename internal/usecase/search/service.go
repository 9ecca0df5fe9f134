package search

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/peersearch/internal/domain"
	domdoc "github.com/kailas-cloud/peersearch/internal/domain/document"
	"github.com/kailas-cloud/peersearch/internal/domain/query"
	"github.com/kailas-cloud/peersearch/internal/extract"
	"github.com/kailas-cloud/peersearch/internal/metrics"
	"github.com/kailas-cloud/peersearch/internal/node"
	"github.com/kailas-cloud/peersearch/internal/session"
)

// Service answers local queries and manages network search sessions.
type Service struct {
	index     Index
	docs      DocumentReader
	extractor *extract.Extractor
	pool      *ants.Pool
	logger    *zap.Logger

	network   Network
	sessions  Sessions
	searchCfg node.SearchConfig

	defaultLimit int
	maxLimit     int
}

// New creates a search service. Extraction of matching documents runs on pool.
func New(index Index, docs DocumentReader, extractor *extract.Extractor, pool *ants.Pool, logger *zap.Logger) *Service {
	return &Service{
		index:        index,
		docs:         docs,
		extractor:    extractor,
		pool:         pool,
		logger:       logger,
		defaultLimit: 20,
		maxLimit:     100,
	}
}

// WithNetwork enables network searches.
func (s *Service) WithNetwork(network Network, sessions Sessions, cfg node.SearchConfig) *Service {
	s.network = network
	s.sessions = sessions
	s.searchCfg = cfg
	return s
}

// WithLimits configures result limits.
func (s *Service) WithLimits(defaultLimit, maxLimit int) *Service {
	if defaultLimit > 0 {
		s.defaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		s.maxLimit = maxLimit
	}
	return s
}

// Local ranks the local documents matching q and summarises up to limit of them, best first.
// Documents the extractor rejects are skipped and the next ranked ones take their place.
func (s *Service) Local(ctx context.Context, q query.Query, limit int) ([]domdoc.Match, error) {
	limit = s.normalizeLimit(limit)
	ranked := s.index.Rank(q)
	terms := q.PositiveTerms()

	out := make([]domdoc.Match, 0, min(limit, len(ranked)))
	for start := 0; start < len(ranked) && len(out) < limit; start += limit {
		window := ranked[start:min(start+limit, len(ranked))]
		matches, err := s.extractWindow(ctx, window, terms)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if m == nil {
				continue
			}
			out = append(out, *m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// extractWindow summarises a window of ranked documents on the pool, keeping ranking order.
// Rejected or vanished documents leave a nil slot.
func (s *Service) extractWindow(ctx context.Context, window []query.Ranked, terms []string) ([]*domdoc.Match, error) {
	results := make([]*domdoc.Match, len(window))
	errs := make([]error, len(window))

	var wg sync.WaitGroup
	for i, r := range window {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i], errs[i] = s.extractOne(ctx, r, terms)
		}
		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit extraction: %w", err)
		}
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) extractOne(ctx context.Context, r query.Ranked, terms []string) (*domdoc.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	cid, ok := s.index.Lookup(r.Lcid)
	if !ok {
		return nil, nil
	}
	doc, err := s.docs.Get(ctx, cid)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		s.logger.Warn("indexed document missing from store", zap.String("cid", cid))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", cid, err)
	}

	result, ok := s.extractor.IntoResult(s.extractor.Parse(doc.HTML()), cid, doc.Metadata(), terms)
	if !ok {
		metrics.DocumentsRejectedTotal.Inc()
		return nil, nil
	}
	return &domdoc.Match{Result: result, Score: r.Score}, nil
}

// Submit starts a network search and returns the id of its session.
// Returns domain.ErrActorUnavailable when the network actor has stopped.
func (s *Service) Submit(ctx context.Context, q query.Query) (string, error) {
	if s.network == nil {
		return "", domain.ErrActorUnavailable
	}
	stream, err := s.network.Search(ctx, q, s.searchCfg)
	if err != nil {
		return "", fmt.Errorf("start network search: %w", err)
	}
	id := s.sessions.Insert(stream)
	s.logger.Info("network search started",
		zap.String("session_id", id),
		zap.Strings("terms", q.PositiveTerms()),
	)
	return id, nil
}

// Fetch drains the results a session has buffered since the previous fetch.
func (s *Service) Fetch(_ context.Context, id string) ([]session.Entry, error) {
	if s.sessions == nil {
		return nil, domain.ErrSessionNotFound
	}
	entries, err := s.sessions.Drain(id)
	if err != nil {
		return nil, fmt.Errorf("drain session %s: %w", id, err)
	}
	return entries, nil
}

func (s *Service) normalizeLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}
