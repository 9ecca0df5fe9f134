// Package peer is the HTTP network stack: it keeps the filters advertised by
// the other nodes and fans queries out to the peers that may hold matches.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/peersearch/internal/domain"
	"github.com/kailas-cloud/peersearch/internal/domain/document"
	"github.com/kailas-cloud/peersearch/internal/domain/filter"
	"github.com/kailas-cloud/peersearch/internal/domain/query"
	"github.com/kailas-cloud/peersearch/internal/metrics"
	"github.com/kailas-cloud/peersearch/internal/node"
	"github.com/kailas-cloud/peersearch/internal/version"
)

const (
	defaultConcurrency = 8
	defaultBuffer      = 64
	eventBuffer        = 64
	maxResponseSize    = 16 << 20
)

// LocalSearcher answers a query from the local index.
type LocalSearcher interface {
	Local(ctx context.Context, q query.Query, limit int) ([]document.Match, error)
}

// Peer is a remote node reachable over HTTP.
type Peer struct {
	ID  domain.PeerID
	URL string
}

// Config configures the stack.
type Config struct {
	Self            domain.PeerID
	Peers           []Peer
	RefreshInterval time.Duration
	Concurrency     int
	Buffer          int
}

// Stack implements node.Stack over HTTP.
type Stack struct {
	cfg    Config
	local  LocalSearcher
	client *http.Client
	logger *zap.Logger
	events chan node.Event

	mu      sync.RWMutex
	filters map[domain.PeerID]*filter.Filter
}

var _ node.Stack = (*Stack)(nil)

// New creates a stack. Peer filters are unknown until the first refresh.
func New(cfg Config, local LocalSearcher, client *http.Client, logger *zap.Logger) *Stack {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	return &Stack{
		cfg:     cfg,
		local:   local,
		client:  client,
		logger:  logger,
		events:  make(chan node.Event, eventBuffer),
		filters: make(map[domain.PeerID]*filter.Filter),
	}
}

// Events implements node.Stack.
func (s *Stack) Events() <-chan node.Event { return s.events }

// Run refreshes the peer filters now and then every RefreshInterval until ctx is done.
func (s *Stack) Run(ctx context.Context) error {
	s.Refresh(ctx)
	if s.cfg.RefreshInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh fetches the filter of every peer. A peer that fails keeps its previous filter.
func (s *Stack) Refresh(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, p := range s.cfg.Peers {
		g.Go(func() error {
			f, err := s.fetchFilter(ctx, p)
			if err != nil {
				s.emit(node.Event{Kind: node.EventPeerFailed, Peer: p.ID, Err: err})
				return nil
			}
			s.mu.Lock()
			s.filters[p.ID] = f
			s.mu.Unlock()
			s.logger.Debug("peer filter updated",
				zap.Stringer("peer", p.ID),
				zap.String("size", humanize.Bytes(uint64(f.Size()))),
				zap.Float64("load", f.Load()),
			)
			s.emit(node.Event{Kind: node.EventFilterUpdated, Peer: p.ID})
			return nil
		})
	}
	_ = g.Wait()
}

// PeerFilter returns the last filter fetched from id.
func (s *Stack) PeerFilter(id domain.PeerID) (*filter.Filter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.filters[id]
	return f, ok
}

// Search implements node.Stack. Local hits come first, then the hits of every peer whose
// filter may match, in the order peers answer. The stream ends when every peer has answered
// or cfg.Timeout has passed.
func (s *Stack) Search(ctx context.Context, q query.Query, cfg node.SearchConfig) *node.OngoingSearch {
	cancel := context.CancelFunc(func() {})
	if cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	}
	stream, sink := node.NewOngoingSearch(ctx, s.cfg.Buffer)
	go func() {
		defer cancel()
		defer sink.Close()
		s.search(sink, q, cfg.MaxResultsPerPeer)
	}()
	return stream
}

func (s *Stack) search(sink *node.Sink, q query.Query, limit int) {
	ctx := sink.Context()

	local, err := s.local.Local(ctx, q, limit)
	if err != nil {
		s.logger.Warn("local search failed", zap.Error(err))
	}
	for _, m := range local {
		if !sink.Send(node.Hit{Result: m.Result, Score: m.Score, Peer: s.cfg.Self}) {
			return
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, p := range s.candidates(q) {
		g.Go(func() error {
			matches, err := s.queryPeer(gctx, p, q, limit)
			if err != nil {
				s.emit(node.Event{Kind: node.EventPeerFailed, Peer: p.ID, Err: err})
				return nil
			}
			for _, m := range matches {
				if !sink.Send(node.Hit{Result: m.Result, Score: m.Score, Peer: p.ID}) {
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// candidates returns the peers whose filter gives q a positive score.
// Peers whose filter is not known yet are always asked.
func (s *Stack) candidates(q query.Query) []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Peer, 0, len(s.cfg.Peers))
	for _, p := range s.cfg.Peers {
		f, known := s.filters[p.ID]
		if known && q.MatchScore(f) == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Stack) fetchFilter(ctx context.Context, p Peer) (*filter.Filter, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL+FilterPath, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build filter request: %w", err)
	}
	var resp FilterResponse
	if err := s.do(req, &resp); err != nil {
		return nil, err
	}
	f, err := filter.Decompress(resp.Data, resp.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrPeerUnreachable, p.ID, err)
	}
	return f, nil
}

func (s *Stack) queryPeer(ctx context.Context, p Peer, q query.Query, limit int) ([]document.Match, error) {
	start := time.Now()
	defer func() { metrics.PeerQueryDuration.Observe(time.Since(start).Seconds()) }()

	body, err := q.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	target := p.URL + QueryPath
	if limit > 0 {
		target += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp QueryResponse
	if err := s.do(req, &resp); err != nil {
		metrics.PeerQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.PeerQueriesTotal.WithLabelValues("ok").Inc()
	if limit > 0 && len(resp.Items) > limit {
		resp.Items = resp.Items[:limit]
	}
	return resp.Items, nil
}

func (s *Stack) do(req *http.Request, out any) error {
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPeerUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return fmt.Errorf("%w: %s %s: status %d", domain.ErrPeerUnreachable, req.Method, req.URL.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", domain.ErrPeerUnreachable, req.URL.Path, err)
	}
	return nil
}

// emit never blocks; events are dropped when the actor lags behind.
func (s *Stack) emit(ev node.Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Debug("network event dropped", zap.String("kind", string(ev.Kind)))
	}
}
