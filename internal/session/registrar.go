// Package session keeps the buffers of network searches until clients fetch them.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/peersearch/internal/domain"
	"github.com/kailas-cloud/peersearch/internal/domain/document"
	"github.com/kailas-cloud/peersearch/internal/metrics"
	"github.com/kailas-cloud/peersearch/internal/node"
)

// Entry is one buffered result with the peer that produced it.
type Entry struct {
	Result document.Result `json:"result"`
	Peer   domain.PeerID   `json:"peer"`
}

// State of a session.
type State string

// Session states. Draining does not change the state.
const (
	StateStreaming State = "streaming"
	StateClosed    State = "closed"
)

type session struct {
	buffer  []Entry
	closed  bool
	touched time.Time
}

// Registrar maps session ids to result buffers. One lock guards the whole map;
// consumers hold it only while appending.
//
// Concurrent Drain calls on the same id split the buffered results between the callers.
type Registrar struct {
	mu       sync.RWMutex
	sessions map[string]*session

	self   domain.PeerID
	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistrar creates an empty registrar. Hits produced by self are counted as local results.
func NewRegistrar(self domain.PeerID, logger *zap.Logger) *Registrar {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registrar{
		sessions: make(map[string]*session),
		self:     self,
		logger:   logger,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Insert registers a new session fed by stream and returns its id.
func (r *Registrar) Insert(stream *node.OngoingSearch) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.sessions[id] = &session{touched: r.now()}
	r.mu.Unlock()

	metrics.SessionsCreatedTotal.Inc()
	metrics.SessionsStreaming.Inc()
	r.logger.Debug("search session created", zap.String("session_id", id))

	r.wg.Add(1)
	go r.consume(id, stream)
	return id
}

func (r *Registrar) consume(id string, stream *node.OngoingSearch) {
	defer r.wg.Done()
	defer metrics.SessionsStreaming.Dec()

	received := 0
	for {
		hit, ok := stream.Recv(r.ctx)
		if !ok {
			break
		}
		r.mu.Lock()
		s := r.sessions[id]
		if s != nil {
			s.buffer = append(s.buffer, Entry{Result: hit.Result, Peer: hit.Peer})
		}
		r.mu.Unlock()
		received++
		metrics.ResultsStreamedTotal.WithLabelValues(r.source(hit.Peer)).Inc()
	}
	stream.Cancel()

	r.mu.Lock()
	if s := r.sessions[id]; s != nil {
		s.closed = true
		s.touched = r.now()
	}
	r.mu.Unlock()

	r.logger.Debug("search session closed", zap.String("session_id", id), zap.Int("results", received))
}

func (r *Registrar) source(peer domain.PeerID) string {
	if peer == r.self {
		return metrics.SourceLocal
	}
	return metrics.SourcePeer
}

// Drain returns the results buffered since the previous drain and empties the buffer.
// The session stays registered.
func (r *Registrar) Drain(id string) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		metrics.DrainsTotal.WithLabelValues("not_found").Inc()
		return nil, domain.ErrSessionNotFound
	}
	out := s.buffer
	if out == nil {
		out = []Entry{}
	}
	s.buffer = nil
	s.touched = r.now()
	metrics.DrainsTotal.WithLabelValues("ok").Inc()
	return out, nil
}

// State reports whether the session is still streaming.
func (r *Registrar) State(id string) (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	if s.closed {
		return StateClosed, nil
	}
	return StateStreaming, nil
}

// Len returns the number of registered sessions.
func (r *Registrar) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts the closed sessions untouched for at least retention, undrained results included.
// Streaming sessions are kept. Returns the number of evicted sessions.
func (r *Registrar) Sweep(now time.Time, retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, s := range r.sessions {
		if s.closed && now.Sub(s.touched) >= retention {
			delete(r.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.SessionsEvictedTotal.Add(float64(evicted))
		r.logger.Debug("search sessions evicted", zap.Int("count", evicted))
	}
	return evicted
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registrar) RunSweeper(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Sweep(now, retention)
		}
	}
}

// Close stops every consumer and waits for them to exit. Buffered results stay drainable.
func (r *Registrar) Close() {
	r.cancel()
	r.wg.Wait()
}
