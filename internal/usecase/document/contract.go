package document

import (
	"context"

	"github.com/kailas-cloud/peersearch/internal/domain"
	domdoc "github.com/kailas-cloud/peersearch/internal/domain/document"
	"github.com/kailas-cloud/peersearch/internal/domain/query"
)

// Repository defines the storage contract for raw documents.
type Repository interface {
	Put(ctx context.Context, doc *domdoc.Document) (created bool, err error)
	Get(ctx context.Context, cid string) (domdoc.Document, error)
	List(ctx context.Context, cursor string, limit int) (docs []domdoc.Document, nextCursor string, err error)
	Delete(ctx context.Context, cid string) error
}

// Indexer is the local index fed with document words and filters.
type Indexer interface {
	Add(cid string, words []string, filters []query.FilterPair) domain.LocalCid
	Remove(cid string) bool
	Len() int
}
