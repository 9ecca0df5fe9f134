package peer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/peersearch/internal/domain"
	"github.com/kailas-cloud/peersearch/internal/domain/document"
	"github.com/kailas-cloud/peersearch/internal/domain/filter"
	"github.com/kailas-cloud/peersearch/internal/domain/query"
	"github.com/kailas-cloud/peersearch/internal/node"
	"github.com/kailas-cloud/peersearch/internal/version"
)

// --- Mocks ---

type mockLocal struct {
	matches []document.Match
	err     error
	limits  []int
	mu      sync.Mutex
}

func (m *mockLocal) Local(_ context.Context, _ query.Query, limit int) ([]document.Match, error) {
	m.mu.Lock()
	m.limits = append(m.limits, limit)
	m.mu.Unlock()
	return m.matches, m.err
}

// fakePeer serves the peer endpoints from a fixed filter and result list.
type fakePeer struct {
	id      domain.PeerID
	filter  *filter.Filter
	matches []document.Match
	delay   time.Duration
	status  int
	queries atomic.Int32
	lastRaw atomic.Value
	lastUA  atomic.Value
}

func (p *fakePeer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+FilterPath, func(w http.ResponseWriter, _ *http.Request) {
		if p.status != 0 {
			w.WriteHeader(p.status)
			return
		}
		_ = json.NewEncoder(w).Encode(FilterResponse{Peer: p.id, Size: p.filter.Size(), Data: p.filter.Compress()})
	})
	mux.HandleFunc("POST "+QueryPath, func(w http.ResponseWriter, r *http.Request) {
		p.queries.Add(1)
		p.lastUA.Store(r.UserAgent())
		raw, _ := io.ReadAll(r.Body)
		p.lastRaw.Store(raw)
		if p.delay > 0 {
			select {
			case <-time.After(p.delay):
			case <-r.Context().Done():
				return
			}
		}
		if p.status != 0 {
			w.WriteHeader(p.status)
			return
		}
		_ = json.NewEncoder(w).Encode(QueryResponse{Peer: p.id, Items: p.matches})
	})
	return mux
}

func startPeer(t *testing.T, p *fakePeer) Peer {
	t.Helper()
	srv := httptest.NewServer(p.handler())
	t.Cleanup(srv.Close)
	return Peer{ID: p.id, URL: srv.URL}
}

func match(cid string, score uint32) document.Match {
	return document.Match{Result: document.Result{CID: cid}, Score: score}
}

func filterWith(keys ...string) *filter.Filter {
	f := filter.New(1024)
	for _, k := range keys {
		f.Add(k, 1)
	}
	return f
}

func collect(t *testing.T, stream *node.OngoingSearch) []node.Hit {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var hits []node.Hit
	for {
		h, ok := stream.Recv(ctx)
		if !ok {
			if ctx.Err() != nil {
				t.Fatal("stream did not end")
			}
			return hits
		}
		hits = append(hits, h)
	}
}

func drainEvents(s *Stack) []node.Event {
	var out []node.Event
	for {
		select {
		case ev := <-s.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// --- Tests ---

func TestSearch_LocalFirstThenPeers(t *testing.T) {
	remote := &fakePeer{id: "peer-1", filter: filterWith("rust"), matches: []document.Match{match("r1", 2), match("r2", 1)}}
	local := &mockLocal{matches: []document.Match{match("l1", 3)}}
	s := New(Config{Self: "self", Peers: []Peer{startPeer(t, remote)}}, local, http.DefaultClient, zap.NewNop())

	q := query.FromWords([]string{"rust"})
	hits := collect(t, s.Search(context.Background(), q, node.SearchConfig{Timeout: 5 * time.Second, MaxResultsPerPeer: 10}))

	if len(hits) != 3 {
		t.Fatalf("hits = %d, want 3", len(hits))
	}
	if hits[0].Peer != "self" || hits[0].Result.CID != "l1" || hits[0].Score != 3 {
		t.Errorf("first hit = %+v, want local l1", hits[0])
	}
	if hits[1].Peer != "peer-1" || hits[1].Result.CID != "r1" || hits[2].Result.CID != "r2" {
		t.Errorf("peer hits out of order: %+v", hits[1:])
	}

	raw, _ := remote.lastRaw.Load().([]byte)
	sent, err := query.FromBytes(raw)
	if err != nil {
		t.Fatalf("peer received undecodable query: %v", err)
	}
	if terms := sent.PositiveTerms(); len(terms) != 1 || terms[0] != "rust" {
		t.Errorf("peer received %v", terms)
	}
	if local.limits[0] != 10 {
		t.Errorf("local limit = %d, want 10", local.limits[0])
	}
	if ua, _ := remote.lastUA.Load().(string); ua != version.UserAgent() {
		t.Errorf("User-Agent = %q, want %q", ua, version.UserAgent())
	}
}

func TestSearch_SkipsPeersWhoseFilterRejects(t *testing.T) {
	holder := &fakePeer{id: "holder", filter: filterWith("rust"), matches: []document.Match{match("a", 1)}}
	other := &fakePeer{id: "other", filter: filterWith("python"), matches: []document.Match{match("b", 1)}}
	s := New(Config{Self: "self", Peers: []Peer{startPeer(t, holder), startPeer(t, other)}},
		&mockLocal{}, http.DefaultClient, zap.NewNop())

	s.Refresh(context.Background())
	if _, ok := s.PeerFilter("other"); !ok {
		t.Fatal("filter of other not fetched")
	}

	hits := collect(t, s.Search(context.Background(), query.FromWords([]string{"rust"}), node.SearchConfig{}))
	if len(hits) != 1 || hits[0].Peer != "holder" {
		t.Errorf("hits = %+v, want only holder", hits)
	}
	if other.queries.Load() != 0 {
		t.Errorf("peer with a rejecting filter was queried %d times", other.queries.Load())
	}
}

func TestSearch_UnknownFilterIsAsked(t *testing.T) {
	remote := &fakePeer{id: "fresh", filter: filterWith(), matches: []document.Match{match("a", 1)}}
	s := New(Config{Self: "self", Peers: []Peer{startPeer(t, remote)}}, &mockLocal{}, http.DefaultClient, zap.NewNop())

	hits := collect(t, s.Search(context.Background(), query.FromWords([]string{"rust"}), node.SearchConfig{}))
	if len(hits) != 1 {
		t.Errorf("hits = %d, want 1", len(hits))
	}
}

func TestSearch_FailingPeerEmitsEvent(t *testing.T) {
	good := &fakePeer{id: "good", filter: filterWith("rust"), matches: []document.Match{match("a", 1)}}
	bad := &fakePeer{id: "bad", filter: filterWith("rust"), status: http.StatusInternalServerError}
	s := New(Config{Self: "self", Peers: []Peer{startPeer(t, good), startPeer(t, bad)}},
		&mockLocal{err: errors.New("index closed")}, http.DefaultClient, zap.NewNop())

	hits := collect(t, s.Search(context.Background(), query.FromWords([]string{"rust"}), node.SearchConfig{}))
	if len(hits) != 1 || hits[0].Peer != "good" {
		t.Errorf("hits = %+v", hits)
	}

	var failed []domain.PeerID
	for _, ev := range drainEvents(s) {
		if ev.Kind == node.EventPeerFailed {
			if !errors.Is(ev.Err, domain.ErrPeerUnreachable) {
				t.Errorf("event error = %v, want ErrPeerUnreachable", ev.Err)
			}
			if ev.Fatal {
				t.Error("peer failure must not be fatal")
			}
			failed = append(failed, ev.Peer)
		}
	}
	if len(failed) != 1 || failed[0] != "bad" {
		t.Errorf("failed peers = %v, want [bad]", failed)
	}
}

func TestSearch_TimeoutEndsStream(t *testing.T) {
	slow := &fakePeer{id: "slow", filter: filterWith("rust"), delay: 2 * time.Second, matches: []document.Match{match("late", 1)}}
	s := New(Config{Self: "self", Peers: []Peer{startPeer(t, slow)}},
		&mockLocal{matches: []document.Match{match("l", 1)}}, http.DefaultClient, zap.NewNop())

	start := time.Now()
	hits := collect(t, s.Search(context.Background(), query.FromWords([]string{"rust"}), node.SearchConfig{Timeout: 100 * time.Millisecond}))
	if time.Since(start) > time.Second {
		t.Errorf("stream outlived its timeout: %v", time.Since(start))
	}
	if len(hits) != 1 || hits[0].Peer != "self" {
		t.Errorf("hits = %+v, want only the local hit", hits)
	}
}

func TestSearch_TruncatesToMaxResultsPerPeer(t *testing.T) {
	remote := &fakePeer{id: "chatty", filter: filterWith("rust"),
		matches: []document.Match{match("a", 3), match("b", 2), match("c", 1)}}
	s := New(Config{Self: "self", Peers: []Peer{startPeer(t, remote)}}, &mockLocal{}, http.DefaultClient, zap.NewNop())

	hits := collect(t, s.Search(context.Background(), query.FromWords([]string{"rust"}), node.SearchConfig{MaxResultsPerPeer: 2}))
	if len(hits) != 2 {
		t.Errorf("hits = %d, want 2", len(hits))
	}
}

func TestRefresh_EventsAndFailures(t *testing.T) {
	up := &fakePeer{id: "up", filter: filterWith("rust")}
	down := &fakePeer{id: "down", filter: filterWith(), status: http.StatusServiceUnavailable}
	s := New(Config{Self: "self", Peers: []Peer{startPeer(t, up), startPeer(t, down)}}, &mockLocal{}, http.DefaultClient, zap.NewNop())

	s.Refresh(context.Background())

	f, ok := s.PeerFilter("up")
	if !ok || f.Weight("rust") == 0 {
		t.Fatalf("filter of up = %v, %v", f, ok)
	}
	if _, ok := s.PeerFilter("down"); ok {
		t.Error("failing peer got a filter")
	}

	var kinds []string
	for _, ev := range drainEvents(s) {
		kinds = append(kinds, string(ev.Kind)+":"+string(ev.Peer))
	}
	sort.Strings(kinds)
	want := []string{"filter_updated:up", "peer_failed:down"}
	if len(kinds) != 2 || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Errorf("events = %v, want %v", kinds, want)
	}
}

func TestRun_StopsWithContext(t *testing.T) {
	s := New(Config{Self: "self", RefreshInterval: time.Millisecond}, &mockLocal{}, http.DefaultClient, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestStack_DrivenByActor(t *testing.T) {
	remote := &fakePeer{id: "peer-1", filter: filterWith("rust"), matches: []document.Match{match("r", 1)}}
	s := New(Config{Self: "self", Peers: []Peer{startPeer(t, remote)}},
		&mockLocal{matches: []document.Match{match("l", 1)}}, http.DefaultClient, zap.NewNop())

	n := node.New(s, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	stream, err := n.Search(context.Background(), query.FromWords([]string{"rust"}), node.SearchConfig{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits := collect(t, stream); len(hits) != 2 {
		t.Errorf("hits = %d, want 2", len(hits))
	}
}
