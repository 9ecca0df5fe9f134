package search

import (
	"context"

	"github.com/kailas-cloud/peersearch/internal/domain"
	domdoc "github.com/kailas-cloud/peersearch/internal/domain/document"
	"github.com/kailas-cloud/peersearch/internal/domain/query"
	"github.com/kailas-cloud/peersearch/internal/node"
	"github.com/kailas-cloud/peersearch/internal/session"
)

// Index ranks local documents for a query.
type Index interface {
	Rank(q query.Query) []query.Ranked
	Lookup(lcid domain.LocalCid) (string, bool)
}

// DocumentReader loads stored documents.
type DocumentReader interface {
	Get(ctx context.Context, cid string) (domdoc.Document, error)
}

// Network starts network searches through the actor.
type Network interface {
	Search(ctx context.Context, q query.Query, cfg node.SearchConfig) (*node.OngoingSearch, error)
}

// Sessions buffers network searches for later retrieval.
type Sessions interface {
	Insert(stream *node.OngoingSearch) string
	Drain(id string) ([]session.Entry, error)
}
