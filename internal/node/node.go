// Package node runs the network actor: the single goroutine that owns the
// network stack and serves search commands from the rest of the process.
package node

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/peersearch/internal/domain"
	"github.com/kailas-cloud/peersearch/internal/domain/query"
)

// Stack is the network stack driven by the actor.
// Search must return immediately and stream its hits in the background.
type Stack interface {
	Search(ctx context.Context, q query.Query, cfg SearchConfig) *OngoingSearch
	Events() <-chan Event
}

// EventKind tags a network stack event.
type EventKind string

// Stack events.
const (
	EventFilterUpdated EventKind = "filter_updated"
	EventPeerFailed    EventKind = "peer_failed"
	EventTransport     EventKind = "transport"
)

// Event is emitted by the stack. A Fatal event stops the actor.
type Event struct {
	Kind  EventKind
	Peer  domain.PeerID
	Err   error
	Fatal bool
}

type command struct {
	query  query.Query
	config SearchConfig
	reply  chan *OngoingSearch
}

// Node is the network actor.
type Node struct {
	stack    Stack
	logger   *zap.Logger
	commands chan command
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

// New creates an actor around stack. Call Run to start it.
func New(stack Stack, logger *zap.Logger) *Node {
	return &Node{
		stack:    stack,
		logger:   logger,
		commands: make(chan command, 1),
		done:     make(chan struct{}),
	}
}

// Run serves commands and stack events until the command queue is closed,
// ctx is done or the stack reports a fatal event.
func (n *Node) Run(ctx context.Context) error {
	defer close(n.done)

	events := n.stack.Events()
	n.logger.Info("network actor started")
	for {
		select {
		case cmd, ok := <-n.commands:
			if !ok {
				n.logger.Info("command queue closed, network actor stopping")
				return nil
			}
			cmd.reply <- n.stack.Search(ctx, cmd.query, cmd.config)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := n.handleEvent(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			n.logger.Info("network actor stopping")
			return nil
		}
	}
}

func (n *Node) handleEvent(ev Event) error {
	fields := []zap.Field{zap.String("kind", string(ev.Kind)), zap.Stringer("peer", ev.Peer)}
	if ev.Fatal {
		n.logger.Error("fatal network event", append(fields, zap.Error(ev.Err))...)
		return fmt.Errorf("network stack: %w", ev.Err)
	}
	if ev.Err != nil {
		n.logger.Warn("network event", append(fields, zap.Error(ev.Err))...)
		return nil
	}
	n.logger.Debug("network event", fields...)
	return nil
}

// Search hands q to the actor and waits for the stream handle.
// Returns domain.ErrActorUnavailable when the actor has stopped.
func (n *Node) Search(ctx context.Context, q query.Query, cfg SearchConfig) (*OngoingSearch, error) {
	reply := make(chan *OngoingSearch, 1)
	if err := n.send(ctx, command{query: q, config: cfg, reply: reply}); err != nil {
		return nil, err
	}

	select {
	case s := <-reply:
		return s, nil
	case <-n.done:
		select {
		case s := <-reply:
			return s, nil
		default:
			return nil, domain.ErrActorUnavailable
		}
	case <-ctx.Done():
		// the actor still answers; nobody will read that stream
		go func() {
			select {
			case s := <-reply:
				s.Cancel()
			case <-n.done:
			}
		}()
		return nil, fmt.Errorf("await search handle: %w", ctx.Err())
	}
}

func (n *Node) send(ctx context.Context, cmd command) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return domain.ErrActorUnavailable
	}
	select {
	case n.commands <- cmd:
		return nil
	case <-n.done:
		return domain.ErrActorUnavailable
	case <-ctx.Done():
		return fmt.Errorf("submit search: %w", ctx.Err())
	}
}

// Close closes the command queue. The actor finishes the queued commands and stops.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed {
		n.closed = true
		close(n.commands)
	}
}

// Alive reports whether the actor loop is still running.
func (n *Node) Alive() bool {
	select {
	case <-n.done:
		return false
	default:
		return true
	}
}
