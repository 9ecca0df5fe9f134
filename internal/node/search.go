package node

import (
	"context"
	"sync"
	"time"

	"github.com/kailas-cloud/peersearch/internal/domain"
	"github.com/kailas-cloud/peersearch/internal/domain/document"
)

// Hit is one streamed search result with the peer that produced it.
type Hit struct {
	Result document.Result
	Score  uint32
	Peer   domain.PeerID
}

// SearchConfig bounds one network search.
type SearchConfig struct {
	// Timeout ends the stream even if some peers have not answered. Zero means no limit.
	Timeout time.Duration
	// MaxResultsPerPeer caps the results requested from each peer. Zero means no cap.
	MaxResultsPerPeer int
}

// OngoingSearch is the receiving end of a result stream.
type OngoingSearch struct {
	hits   <-chan Hit
	cancel context.CancelFunc
}

// Sink is the producing end of a result stream. Producers stop sending once Done is closed
// and call Close exactly once when finished.
type Sink struct {
	hits      chan Hit
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewOngoingSearch creates a stream bound to ctx with room for buffer pending hits.
func NewOngoingSearch(ctx context.Context, buffer int) (*OngoingSearch, *Sink) {
	ctx, cancel := context.WithCancel(ctx)
	hits := make(chan Hit, buffer)
	return &OngoingSearch{hits: hits, cancel: cancel},
		&Sink{hits: hits, ctx: ctx, cancel: cancel}
}

// Recv waits for the next hit. ok is false once the stream has ended or ctx is done.
func (s *OngoingSearch) Recv(ctx context.Context) (hit Hit, ok bool) {
	select {
	case hit, ok = <-s.hits:
		return hit, ok
	case <-ctx.Done():
		return Hit{}, false
	}
}

// Cancel asks the producers to stop. Hits already buffered can still be received.
func (s *OngoingSearch) Cancel() { s.cancel() }

// Send delivers h unless the stream was cancelled.
func (s *Sink) Send(h Hit) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.hits <- h:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Context is cancelled when the consumer gives up on the stream.
func (s *Sink) Context() context.Context { return s.ctx }

// Close ends the stream.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.hits)
		s.cancel()
	})
}
